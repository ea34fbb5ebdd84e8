// Package gen lowers a resolved project model into standalone build scripts:
// a Windows batch script driving MSVC, and bash scripts driving GCC on Linux
// and Clang on macOS. All three share one command plan (see BuildPlan) and
// differ only in the printer.
package gen

import (
	"fmt"

	"github.com/qobs-build/plbuild/internal/model"
)

type Generator interface {
	Platform() model.Platform
	// ScriptFile is the file name the script is written to.
	ScriptFile(p *model.Project) string
	// Generate returns the script text. It never modifies p and returns the
	// same bytes for the same model.
	Generate(p *model.Project) (string, error)
}

type scriptGen struct {
	platform model.Platform
	ext      string
	print    func(*Plan) string
}

func (g *scriptGen) Platform() model.Platform { return g.platform }

func (g *scriptGen) ScriptFile(p *model.Project) string {
	return p.ScriptName(g.platform) + g.ext
}

func (g *scriptGen) Generate(p *model.Project) (string, error) {
	plan, err := BuildPlan(p, g.platform.Toolchain())
	if err != nil {
		return "", err
	}
	return g.print(plan), nil
}

func NewWin32Gen() Generator {
	return &scriptGen{platform: model.Win32, ext: ".bat", print: PrintBatch}
}

func NewLinuxGen() Generator {
	return &scriptGen{platform: model.Linux, ext: ".sh", print: PrintBash}
}

func NewMacOSGen() Generator {
	return &scriptGen{platform: model.MacOS, ext: ".sh", print: PrintBash}
}

// New returns the generator for platform.
func New(platform model.Platform) (Generator, error) {
	switch platform {
	case model.Win32:
		return NewWin32Gen(), nil
	case model.Linux:
		return NewLinuxGen(), nil
	case model.MacOS:
		return NewMacOSGen(), nil
	}
	return nil, fmt.Errorf("unknown platform %q", platform)
}
