package builder

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/qobs-build/plbuild/internal/builder/gen"
	"github.com/qobs-build/plbuild/internal/model"
	"github.com/qobs-build/plbuild/internal/msg"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrStale is returned in check mode when a script on disk differs from
	// what would be generated.
	ErrStale = errors.New("generated scripts are out of date")
)

type Builder struct {
	manifest *Manifest
	basedir  string
	env      ManifestEnv
}

// NewBuilderInDirectory loads <path>/Build.toml. A .env file next to it, if
// any, is visible to manifest expressions through `environ`.
func NewBuilderInDirectory(path string) (*Builder, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	dotenv, err := godotenv.Read(filepath.Join(path, ".env"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	if len(dotenv) > 0 {
		msg.Debug("loaded %d variables from .env", len(dotenv))
	}

	env := NewManifestEnv(path, dotenv)
	manifest, err := ParseManifestFromFile(filepath.Join(path, ManifestFile), env)
	if err != nil {
		return nil, err
	}
	return &Builder{manifest: manifest, basedir: path, env: env}, nil
}

// Project constructs, resolves and validates the project model.
func (b *Builder) Project() (*model.Project, error) {
	p, err := b.manifest.BuildProject(b.env, b.basedir)
	if err != nil {
		return nil, err
	}
	model.ResolveDefaults(p)
	if err := model.Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

// OutputDir is where the scripts of p are written.
func (b *Builder) OutputDir(p *model.Project) string {
	return filepath.Join(b.basedir, filepath.FromSlash(p.WorkingDirectory))
}

type Options struct {
	Platforms []model.Platform
	// Check compares against the scripts on disk instead of writing.
	Check bool
	// Stamp records the git revision of the project in script headers.
	Stamp bool
	// Diff receives the differences found in check mode.
	Diff io.Writer
}

// Script is one generated script.
type Script struct {
	Platform model.Platform
	Path     string
	Text     string
}

// Generate renders the scripts for platforms. The generators share
// nothing but the read-only model, so they run concurrently.
func (b *Builder) Generate(p *model.Project, platforms []model.Platform) ([]Script, error) {
	scripts := make([]Script, len(platforms))
	var eg errgroup.Group
	for i, platform := range platforms {
		eg.Go(func() error {
			g, err := gen.New(platform)
			if err != nil {
				return err
			}
			text, err := g.Generate(p)
			if err != nil {
				return fmt.Errorf("%s: %w", platform, err)
			}
			scripts[i] = Script{
				Platform: platform,
				Path:     filepath.Join(b.OutputDir(p), g.ScriptFile(p)),
				Text:     text,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return scripts, nil
}

// Build generates the requested scripts and writes them, or in check mode
// reports which of them are stale.
func (b *Builder) Build(opts Options) error {
	p, err := b.Project()
	if err != nil {
		return err
	}
	if opts.Stamp {
		rev, err := Revision(b.basedir)
		if err != nil {
			return fmt.Errorf("failed to read project revision: %w", err)
		}
		p.Revision = rev
		msg.Debug("stamping revision %s", rev)
	}

	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = model.Platforms
	}
	scripts, err := b.Generate(p, platforms)
	if err != nil {
		return err
	}

	if opts.Check {
		return checkScripts(scripts, opts.Diff)
	}

	if err := os.MkdirAll(b.OutputDir(p), 0755); err != nil {
		return err
	}
	for _, s := range scripts {
		if err := os.WriteFile(s.Path, []byte(s.Text), 0755); err != nil {
			return err
		}
		// WriteFile keeps the mode of an existing file
		if err := os.Chmod(s.Path, 0755); err != nil {
			return err
		}
		msg.Info("wrote %s", s.Path)
	}
	return nil
}
