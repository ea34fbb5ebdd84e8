package model

import "fmt"

// DefaultExtension returns the output extension used for a target of kind k
// built by toolchain tc when none is set explicitly.
func DefaultExtension(k TargetKind, tc Toolchain) string {
	msvc := tc == MSVC
	switch k {
	case StaticLibrary:
		if msvc {
			return ".lib"
		}
		return ".o"
	case DynamicLibrary:
		if msvc {
			return ".dll"
		}
		return ".so"
	case Executable:
		if msvc {
			return ".exe"
		}
		return ""
	}
	return ""
}

// ResolveDefaults fills in every unset output extension from DefaultExtension.
// Explicit extensions are never overwritten, so running it twice is a no-op.
func ResolveDefaults(projects ...*Project) {
	for _, p := range projects {
		for _, t := range p.Targets {
			for _, c := range t.Configurations {
				for _, s := range c.CompilerSettings {
					if s.OutputExtension != nil {
						continue
					}
					ext := DefaultExtension(t.Kind, s.Toolchain)
					s.OutputExtension = &ext
				}
			}
		}
	}
}

// Validate checks the invariants generation relies on. It expects
// ResolveDefaults to have run.
func Validate(p *Project) error {
	if p == nil {
		return &InvalidModelError{Field: "project", Reason: "nil"}
	}
	if p.Name == "" {
		return &InvalidModelError{Field: "project.name", Reason: "empty"}
	}
	if len(p.RegisteredConfigurations) == 0 {
		return &InvalidModelError{Field: "project.configurations", Reason: "no configuration registered"}
	}
	for i, name := range p.RegisteredConfigurations {
		if name == "" {
			return &InvalidModelError{Field: fmt.Sprintf("project.configurations[%d]", i), Reason: "empty name"}
		}
	}
	if main := p.MainTarget(); main != nil && main.Kind != Executable {
		return &InvalidModelError{
			Field:  "project.main-target",
			Reason: fmt.Sprintf("target %q is a %s, main target must be an executable", main.Name, main.Kind),
		}
	}

	for _, t := range p.Targets {
		if t.Name == "" {
			return &InvalidModelError{Field: "target.name", Reason: "empty"}
		}
		if t.LockFileName == "" {
			return &InvalidModelError{Field: "target " + t.Name + " lock file", Reason: "empty"}
		}
		for _, c := range t.Configurations {
			for _, s := range c.CompilerSettings {
				where := fmt.Sprintf("target %s, configuration %s, %s", t.Name, c.Name, s.Toolchain)
				if s.OutputBinaryName == "" {
					return &InvalidModelError{Field: where + ": output binary", Reason: "empty"}
				}
				if s.OutputExtension == nil {
					return &InvalidModelError{Field: where + ": output extension", Reason: "unresolved, run ResolveDefaults first"}
				}
			}
		}
	}
	return nil
}
