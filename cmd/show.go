// plbuild show [path]
package cmd

import (
	"io"
	"os"
	"path"

	"github.com/pelletier/go-toml/v2"
	"github.com/qobs-build/plbuild/internal/builder"
	"github.com/qobs-build/plbuild/internal/builder/gen"
	"github.com/qobs-build/plbuild/internal/model"
	"github.com/qobs-build/plbuild/internal/msg"
	"github.com/spf13/cobra"
)

type shownProject struct {
	Name             string            `toml:"name"`
	Revision         string            `toml:"revision,omitempty"`
	WorkingDirectory string            `toml:"working-directory"`
	Configurations   []string          `toml:"configurations"`
	MainTarget       string            `toml:"main-target,omitempty"`
	Scripts          map[string]string `toml:"scripts"`
	Targets          []shownTarget     `toml:"target"`
}

type shownTarget struct {
	Name           string        `toml:"name"`
	Kind           string        `toml:"kind"`
	LockFile       string        `toml:"lock-file"`
	Configurations []shownConfig `toml:"configuration"`
}

type shownConfig struct {
	Name      string          `toml:"name"`
	Compilers []shownCompiler `toml:"compiler"`
}

type shownCompiler struct {
	Name               string   `toml:"name"`
	Toolchain          string   `toml:"toolchain"`
	Output             string   `toml:"output"`
	Definitions        []string `toml:"definitions,omitempty"`
	CompilerFlags      []string `toml:"compiler-flags,omitempty"`
	LinkerFlags        []string `toml:"linker-flags,omitempty"`
	IncludeDirectories []string `toml:"include-directories,omitempty"`
	LinkDirectories    []string `toml:"link-directories,omitempty"`
	LinkLibraries      []string `toml:"link-libraries,omitempty"`
	SourceFiles        []string `toml:"source-files,omitempty"`
}

// showProject describes the resolved model: every default filled in and
// every glob expanded.
func showProject(p *model.Project) shownProject {
	shown := shownProject{
		Name:             p.Name,
		Revision:         p.Revision,
		WorkingDirectory: p.WorkingDirectory,
		Configurations:   p.RegisteredConfigurations,
		MainTarget:       p.MainTargetName,
		Scripts:          make(map[string]string),
	}
	for _, platform := range model.Platforms {
		g, err := gen.New(platform)
		if err != nil {
			continue
		}
		shown.Scripts[string(platform)] = g.ScriptFile(p)
	}
	for _, t := range p.Targets {
		st := shownTarget{Name: t.Name, Kind: t.Kind.String(), LockFile: t.LockFileName}
		for _, c := range t.Configurations {
			sc := shownConfig{Name: c.Name}
			for _, s := range c.CompilerSettings {
				sc.Compilers = append(sc.Compilers, shownCompiler{
					Name:               s.Name,
					Toolchain:          s.Toolchain.String(),
					Output:             path.Join(s.OutputDirectory, s.OutputFile()),
					Definitions:        s.Definitions,
					CompilerFlags:      s.CompilerFlags,
					LinkerFlags:        s.LinkerFlags,
					IncludeDirectories: s.IncludeDirectories,
					LinkDirectories:    s.LinkDirectories,
					LinkLibraries:      s.LinkLibraries,
					SourceFiles:        s.SourceFiles,
				})
			}
			st.Configurations = append(st.Configurations, sc)
		}
		shown.Targets = append(shown.Targets, st)
	}
	return shown
}

func writeProject(w io.Writer, p *model.Project) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(showProject(p))
}

var showCmd = &cobra.Command{
	Use:   "show [project path]",
	Short: "Print the resolved project model",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		b, err := builder.NewBuilderInDirectory(targetDir(args))
		if err != nil {
			msg.Fatal("%v", err)
		}
		p, err := b.Project()
		if err != nil {
			msg.Fatal("%v", err)
		}
		if err := writeProject(os.Stdout, p); err != nil {
			msg.Fatal("%v", err)
		}
	},
}

func init() {
	// plbuild show subcommand
	rootCmd.AddCommand(showCmd)
}
