package model

import (
	"fmt"
	"slices"
)

// scope tracks one open object of the Builder. Scopes nest strictly: only the
// innermost open scope may be mutated, opened from or closed.
type scope struct {
	kind   string
	name   string
	root   *ProjectBuilder
	parent *scope
	child  *scope
	closed bool
	commit func() // appends the finished object to its parent
}

func (s *scope) String() string { return fmt.Sprintf("%s %q", s.kind, s.name) }

func (s *scope) errorf(op, format string, a ...any) error {
	return &InvalidScopeError{Op: op, Scope: s.String(), Reason: fmt.Sprintf(format, a...)}
}

// innermost fails unless s is open and has no open child.
func (s *scope) innermost(op string) error {
	if s.closed {
		return s.errorf(op, "scope is already closed")
	}
	if s.child != nil {
		return s.errorf(op, "%s is still open", s.child)
	}
	return nil
}

func (s *scope) open(op, kind, name string, commit func()) (*scope, error) {
	if err := s.innermost(op); err != nil {
		return nil, err
	}
	child := &scope{kind: kind, name: name, root: s.root, parent: s, commit: commit}
	s.child = child
	s.root.depth++
	return child, nil
}

func (s *scope) close(op string) error {
	if err := s.innermost(op); err != nil {
		return err
	}
	s.detach()
	if s.commit != nil {
		s.commit()
	}
	return nil
}

// release unwinds s and everything opened under it without committing.
func (s *scope) release() {
	if s.closed {
		return
	}
	if s.child != nil {
		s.child.release()
	}
	s.detach()
}

func (s *scope) detach() {
	s.closed = true
	s.root.depth--
	if s.parent != nil && s.parent.child == s {
		s.parent.child = nil
	}
}

// within runs fn inside s. On success s is closed and committed; on error or
// panic s (and anything left open below it) is released without committing.
func within(s *scope, op string, fn func() error) error {
	done := false
	defer func() {
		if !done {
			s.release()
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	if err := s.close(op); err != nil {
		return err
	}
	done = true
	return nil
}

// ProjectBuilder is the outermost scope. Targets are opened from it and
// appended to the project when they close.
type ProjectBuilder struct {
	scope
	project *Project
	depth   int
}

// NewProject opens a project scope.
func NewProject(name string) (*ProjectBuilder, error) {
	if name == "" {
		return nil, &InvalidModelError{Field: "project.name", Reason: "empty"}
	}
	b := &ProjectBuilder{
		project: &Project{
			Name:             name,
			WorkingDirectory: DefaultWorkingDir,
			ScriptNames:      make(map[Platform]string),
		},
		depth: 1,
	}
	b.scope = scope{kind: "project", name: name, root: b}
	return b, nil
}

// Depth reports how many scopes are currently open, the project included.
// It is zero once the project has been closed.
func (b *ProjectBuilder) Depth() int { return b.depth }

// Project-level registrations address the project explicitly, so they are
// accepted while child scopes are open.
func (b *ProjectBuilder) registration(op string) error {
	if b.closed {
		return b.errorf(op, "scope is already closed")
	}
	return nil
}

// AddConfiguration registers configuration names; registration order is
// generation order.
func (b *ProjectBuilder) AddConfiguration(names ...string) error {
	if err := b.registration("AddConfiguration"); err != nil {
		return err
	}
	for _, name := range names {
		if name == "" {
			return &InvalidModelError{Field: "project.configurations", Reason: "empty configuration name"}
		}
	}
	b.project.RegisteredConfigurations = append(b.project.RegisteredConfigurations, names...)
	return nil
}

func (b *ProjectBuilder) SetWorkingDirectory(dir string) error {
	if err := b.registration("SetWorkingDirectory"); err != nil {
		return err
	}
	b.project.WorkingDirectory = dir
	return nil
}

func (b *ProjectBuilder) SetMainTarget(name string) error {
	if err := b.registration("SetMainTarget"); err != nil {
		return err
	}
	b.project.MainTargetName = name
	return nil
}

func (b *ProjectBuilder) SetScriptName(platform Platform, name string) error {
	if err := b.registration("SetScriptName"); err != nil {
		return err
	}
	if !slices.Contains(Platforms, platform) {
		return &InvalidModelError{Field: "project.scripts", Reason: fmt.Sprintf("unknown platform %q", platform)}
	}
	b.project.ScriptNames[platform] = name
	return nil
}

// Target opens a target scope. It is appended to the project on Close.
func (b *ProjectBuilder) Target(name string, kind TargetKind) (*TargetBuilder, error) {
	if err := b.innermost("Target"); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &InvalidModelError{Field: "target.name", Reason: "empty"}
	}
	if kind < StaticLibrary || kind > Executable {
		return nil, &InvalidModelError{Field: "target " + name + " kind", Reason: kind.String() + " is not a valid kind"}
	}
	t := &Target{Name: name, Kind: kind, LockFileName: DefaultLockFile}
	s, err := b.open("Target", "target", name, func() {
		b.project.Targets = append(b.project.Targets, t)
	})
	if err != nil {
		return nil, err
	}
	return &TargetBuilder{scope: s, target: t}, nil
}

// WithTarget opens a target, runs fn and closes it, releasing the scope if
// fn fails or panics.
func (b *ProjectBuilder) WithTarget(name string, kind TargetKind, fn func(*TargetBuilder) error) error {
	t, err := b.Target(name, kind)
	if err != nil {
		return err
	}
	return within(t.scope, "Close", func() error { return fn(t) })
}

// Close ends construction and returns the finished project.
func (b *ProjectBuilder) Close() (*Project, error) {
	if err := b.close("Close"); err != nil {
		return nil, err
	}
	return b.project, nil
}

// TargetBuilder is an open target scope.
type TargetBuilder struct {
	*scope
	target *Target
}

func (t *TargetBuilder) SetLockFile(name string) error {
	if err := t.innermost("SetLockFile"); err != nil {
		return err
	}
	t.target.LockFileName = name
	return nil
}

// Configuration opens a configuration scope under the target.
func (t *TargetBuilder) Configuration(name string) (*ConfigurationBuilder, error) {
	if err := t.innermost("Configuration"); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &InvalidModelError{Field: "target " + t.target.Name + " configuration", Reason: "empty name"}
	}
	c := &Configuration{Name: name}
	s, err := t.open("Configuration", "configuration", name, func() {
		t.target.Configurations = append(t.target.Configurations, c)
	})
	if err != nil {
		return nil, err
	}
	return &ConfigurationBuilder{scope: s, config: c}, nil
}

func (t *TargetBuilder) WithConfiguration(name string, fn func(*ConfigurationBuilder) error) error {
	c, err := t.Configuration(name)
	if err != nil {
		return err
	}
	return within(c.scope, "Close", func() error { return fn(c) })
}

func (t *TargetBuilder) Close() error { return t.close("Close") }

// ConfigurationBuilder is an open configuration scope.
type ConfigurationBuilder struct {
	*scope
	config *Configuration
}

// Compiler opens a settings scope for toolchain tc. A configuration holds at
// most one settings record per toolchain.
func (c *ConfigurationBuilder) Compiler(name string, tc Toolchain) (*SettingsBuilder, error) {
	if err := c.innermost("Compiler"); err != nil {
		return nil, err
	}
	if tc < MSVC || tc > Clang {
		return nil, &InvalidModelError{Field: "configuration " + c.config.Name + " toolchain", Reason: tc.String() + " is not a valid toolchain"}
	}
	if c.config.Settings(tc) != nil {
		return nil, &InvalidModelError{
			Field:  "configuration " + c.config.Name,
			Reason: fmt.Sprintf("settings for toolchain %s already registered", tc),
		}
	}
	if name == "" {
		name = tc.String()
	}
	settings := &Settings{Name: name, Toolchain: tc, OutputDirectory: DefaultOutputDirectory}
	s, err := c.open("Compiler", "settings", name, func() {
		c.config.CompilerSettings = append(c.config.CompilerSettings, settings)
	})
	if err != nil {
		return nil, err
	}
	return &SettingsBuilder{scope: s, settings: settings}, nil
}

func (c *ConfigurationBuilder) WithCompiler(name string, tc Toolchain, fn func(*SettingsBuilder) error) error {
	s, err := c.Compiler(name, tc)
	if err != nil {
		return err
	}
	return within(s.scope, "Close", func() error { return fn(s) })
}

func (c *ConfigurationBuilder) Close() error { return c.close("Close") }

// SettingsBuilder is an open settings scope. List setters append, scalar
// setters overwrite.
type SettingsBuilder struct {
	*scope
	settings *Settings
}

func (s *SettingsBuilder) appendTo(op string, dst *[]string, values []string) error {
	if err := s.innermost(op); err != nil {
		return err
	}
	*dst = append(*dst, values...)
	return nil
}

func (s *SettingsBuilder) set(op string, dst *string, value string) error {
	if err := s.innermost(op); err != nil {
		return err
	}
	*dst = value
	return nil
}

func (s *SettingsBuilder) AddDefinitions(defs ...string) error {
	return s.appendTo("AddDefinitions", &s.settings.Definitions, defs)
}

func (s *SettingsBuilder) AddCompilerFlags(flags ...string) error {
	return s.appendTo("AddCompilerFlags", &s.settings.CompilerFlags, flags)
}

func (s *SettingsBuilder) AddLinkerFlags(flags ...string) error {
	return s.appendTo("AddLinkerFlags", &s.settings.LinkerFlags, flags)
}

func (s *SettingsBuilder) AddIncludeDirectories(dirs ...string) error {
	return s.appendTo("AddIncludeDirectories", &s.settings.IncludeDirectories, dirs)
}

func (s *SettingsBuilder) AddLinkDirectories(dirs ...string) error {
	return s.appendTo("AddLinkDirectories", &s.settings.LinkDirectories, dirs)
}

func (s *SettingsBuilder) AddLinkLibraries(libs ...string) error {
	return s.appendTo("AddLinkLibraries", &s.settings.LinkLibraries, libs)
}

func (s *SettingsBuilder) AddSourceFiles(files ...string) error {
	return s.appendTo("AddSourceFiles", &s.settings.SourceFiles, files)
}

func (s *SettingsBuilder) SetOutputDirectory(dir string) error {
	return s.set("SetOutputDirectory", &s.settings.OutputDirectory, dir)
}

func (s *SettingsBuilder) SetOutputBinary(name string) error {
	return s.set("SetOutputBinary", &s.settings.OutputBinaryName, name)
}

// SetOutputExtension sets an explicit extension; ResolveDefaults leaves it alone.
func (s *SettingsBuilder) SetOutputExtension(ext string) error {
	if err := s.innermost("SetOutputExtension"); err != nil {
		return err
	}
	s.settings.OutputExtension = &ext
	return nil
}

func (s *SettingsBuilder) Close() error { return s.close("Close") }
