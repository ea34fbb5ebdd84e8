package builder

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/plbuild/internal/model"
	"github.com/qobs-build/plbuild/internal/msg"
)

// BuildProject constructs the project model described by m. Entries whose
// `when` condition is false are skipped. Source globs are expanded relative
// to the working directory below basedir.
func (m *Manifest) BuildProject(env ManifestEnv, basedir string) (*model.Project, error) {
	pb, err := model.NewProject(m.Project.Name)
	if err != nil {
		return nil, err
	}
	env.Project = m.Project.Name

	if err := pb.AddConfiguration(m.Project.Configurations...); err != nil {
		return nil, err
	}
	workdir := m.Project.WorkingDirectory
	if workdir != "" {
		if err := pb.SetWorkingDirectory(workdir); err != nil {
			return nil, err
		}
	} else {
		workdir = model.DefaultWorkingDir
	}
	if err := pb.SetMainTarget(m.Project.MainTarget); err != nil {
		return nil, err
	}
	for platform, name := range m.Project.Scripts {
		if err := pb.SetScriptName(model.Platform(platform), name); err != nil {
			return nil, err
		}
	}

	root := filepath.Join(basedir, filepath.FromSlash(workdir))
	for _, t := range m.Targets {
		if err := m.addTarget(pb, t, env, root); err != nil {
			return nil, fmt.Errorf("target %q: %w", t.Name, err)
		}
	}
	return pb.Close()
}

func (m *Manifest) addTarget(pb *model.ProjectBuilder, t TargetSection, env ManifestEnv, root string) error {
	kind, err := model.ParseTargetKind(t.Kind)
	if err != nil {
		return err
	}
	env.Target, env.Kind = t.Name, kind.String()
	ok, err := evaluateCondition(t.When, env)
	if err != nil || !ok {
		return err
	}

	return pb.WithTarget(t.Name, kind, func(tb *model.TargetBuilder) error {
		if t.LockFile != "" {
			if err := tb.SetLockFile(t.LockFile); err != nil {
				return err
			}
		}
		for _, c := range t.Configurations {
			env.Config = c.Name
			ok, err := evaluateCondition(c.When, env)
			if err != nil {
				return fmt.Errorf("configuration %q: %w", c.Name, err)
			}
			if !ok {
				msg.Debug("skipping configuration %s of %s", c.Name, t.Name)
				continue
			}
			err = tb.WithConfiguration(c.Name, func(cb *model.ConfigurationBuilder) error {
				for _, comp := range c.Compilers {
					if err := m.addCompiler(cb, comp, env, root); err != nil {
						return fmt.Errorf("compiler %q: %w", comp.Name, err)
					}
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("configuration %q: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (m *Manifest) addCompiler(cb *model.ConfigurationBuilder, c CompilerSection, env ManifestEnv, root string) error {
	tc, err := model.ParseToolchain(c.Toolchain)
	if err != nil {
		return err
	}
	env.Toolchain = tc.String()
	ok, err := evaluateCondition(c.When, env)
	if err != nil || !ok {
		return err
	}

	c, err = m.resolveUse(c)
	if err != nil {
		return err
	}
	sources, err := expandSources(root, c.SourceFiles)
	if err != nil {
		return err
	}

	return cb.WithCompiler(c.Name, tc, func(sb *model.SettingsBuilder) error {
		if c.OutputDirectory != "" {
			if err := sb.SetOutputDirectory(c.OutputDirectory); err != nil {
				return err
			}
		}
		if err := sb.SetOutputBinary(c.OutputBinary); err != nil {
			return err
		}
		if c.OutputExtension != nil {
			if err := sb.SetOutputExtension(*c.OutputExtension); err != nil {
				return err
			}
		}
		for _, add := range []struct {
			fn     func(...string) error
			values []string
		}{
			{sb.AddDefinitions, c.Definitions},
			{sb.AddCompilerFlags, c.CompilerFlags},
			{sb.AddLinkerFlags, c.LinkerFlags},
			{sb.AddIncludeDirectories, c.IncludeDirectories},
			{sb.AddLinkDirectories, c.LinkDirectories},
			{sb.AddLinkLibraries, c.LinkLibraries},
			{sb.AddSourceFiles, sources},
		} {
			if err := add.fn(add.values...); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// expandSources replaces every glob pattern in patterns with the files it
// matches below root, in place. Plain paths are kept as written. Results stay
// relative to root with forward slashes, as the scripts run from there.
func expandSources(root string, patterns []string) ([]string, error) {
	var files []string
	for _, pat := range patterns {
		if !hasMeta(pat) {
			files = append(files, pat)
			continue
		}
		// doublestar walks an fs.FS, which cannot reach outside of its root
		base, rest := doublestar.SplitPattern(path.Clean(pat))
		matches, err := doublestar.Glob(os.DirFS(filepath.Join(root, filepath.FromSlash(base))), rest, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("source pattern %q: %w", pat, err)
		}
		if len(matches) == 0 {
			msg.Warn("source pattern %q matches no files", pat)
		}
		for _, match := range matches {
			if base == "." {
				files = append(files, match)
			} else {
				files = append(files, path.Join(base, match))
			}
		}
	}
	return files, nil
}
