// Package model describes a multi-target, multi-toolchain native build: a
// Project owns Targets, a Target owns Configurations, and a Configuration owns
// one Settings record per toolchain. The graph is populated only through the
// scoped Builder and is read-only once generation starts.
package model

import "fmt"

// Toolchain is a compiler family. It determines flag syntax and the host
// script dialect the settings are emitted for.
type Toolchain int

const (
	MSVC Toolchain = iota + 1
	GCC
	Clang
)

// Toolchains lists every supported toolchain in generation order.
var Toolchains = []Toolchain{MSVC, GCC, Clang}

func (tc Toolchain) String() string {
	switch tc {
	case MSVC:
		return "msvc"
	case GCC:
		return "gcc"
	case Clang:
		return "clang"
	default:
		return fmt.Sprintf("Toolchain(%d)", int(tc))
	}
}

// ParseToolchain maps "msvc", "gcc" or "clang" to a Toolchain
func ParseToolchain(s string) (Toolchain, error) {
	for _, tc := range Toolchains {
		if tc.String() == s {
			return tc, nil
		}
	}
	return 0, fmt.Errorf("unknown toolchain %q, must be one of msvc, gcc, clang", s)
}

// TargetKind selects the build strategy of a target.
type TargetKind int

const (
	StaticLibrary TargetKind = iota + 1
	DynamicLibrary
	Executable
)

func (k TargetKind) String() string {
	switch k {
	case StaticLibrary:
		return "static"
	case DynamicLibrary:
		return "dynamic"
	case Executable:
		return "executable"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// ParseTargetKind maps "static", "dynamic" or "executable" to a TargetKind
func ParseTargetKind(s string) (TargetKind, error) {
	for _, k := range []TargetKind{StaticLibrary, DynamicLibrary, Executable} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown target kind %q, must be one of static, dynamic, executable", s)
}

// Platform names one of the three generated scripts.
type Platform string

const (
	Win32 Platform = "win32"
	Linux Platform = "linux"
	MacOS Platform = "macos"
)

// Platforms lists every platform in generation order.
var Platforms = []Platform{Win32, Linux, MacOS}

// Toolchain returns the toolchain family a platform script drives.
func (p Platform) Toolchain() Toolchain {
	switch p {
	case Win32:
		return MSVC
	case Linux:
		return GCC
	case MacOS:
		return Clang
	}
	return 0
}

const (
	DefaultLockFile        = "lock.tmp"
	DefaultOutputDirectory = "./"
	DefaultWorkingDir      = "./"
)

// Settings holds one toolchain's build inputs for one (target, configuration)
// pair. List fields keep registration order and duplicates.
type Settings struct {
	Name      string
	Toolchain Toolchain

	OutputDirectory  string
	OutputBinaryName string
	// OutputExtension is nil until set explicitly or filled by ResolveDefaults.
	OutputExtension *string

	Definitions        []string
	CompilerFlags      []string
	LinkerFlags        []string
	IncludeDirectories []string
	LinkDirectories    []string
	LinkLibraries      []string
	SourceFiles        []string
}

// Extension returns the resolved output extension, or "" when unresolved.
func (s *Settings) Extension() string {
	if s.OutputExtension == nil {
		return ""
	}
	return *s.OutputExtension
}

// OutputFile is the output binary name with its extension.
func (s *Settings) OutputFile() string {
	return s.OutputBinaryName + s.Extension()
}

// Configuration is a named group of Settings for a single target.
type Configuration struct {
	Name             string
	CompilerSettings []*Settings
}

// Settings returns the settings registered for tc, or nil.
func (c *Configuration) Settings(tc Toolchain) *Settings {
	for _, s := range c.CompilerSettings {
		if s.Toolchain == tc {
			return s
		}
	}
	return nil
}

// Target is a named build unit.
type Target struct {
	Name           string
	Kind           TargetKind
	LockFileName   string
	Configurations []*Configuration
}

// Configuration returns the configuration called name, or nil.
func (t *Target) Configuration(name string) *Configuration {
	for _, c := range t.Configurations {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Settings is shorthand for looking up the settings of configuration
// config for toolchain tc; nil if either is missing.
func (t *Target) Settings(config string, tc Toolchain) *Settings {
	c := t.Configuration(config)
	if c == nil {
		return nil
	}
	return c.Settings(tc)
}

// Project is the root of the model.
type Project struct {
	Name                     string
	WorkingDirectory         string
	RegisteredConfigurations []string
	MainTargetName           string
	ScriptNames              map[Platform]string
	Targets                  []*Target

	// Revision is an optional source revision written into script headers.
	Revision string
}

// ScriptName returns the base file name (without extension) of the script
// generated for platform p.
func (p *Project) ScriptName(platform Platform) string {
	if name, ok := p.ScriptNames[platform]; ok && name != "" {
		return name
	}
	return "build_" + p.Name + "_" + string(platform)
}

// Target returns the target called name, or nil.
func (p *Project) Target(name string) *Target {
	for _, t := range p.Targets {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// MainTarget returns the hot-reloadable host executable, or nil when none is
// declared or the declared name matches no target.
func (p *Project) MainTarget() *Target {
	if p.MainTargetName == "" {
		return nil
	}
	return p.Target(p.MainTargetName)
}
