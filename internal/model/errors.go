package model

import "fmt"

// InvalidScopeError reports misuse of the scoped Builder: mutating or opening
// from a scope that is not the innermost open one, or closing out of order.
type InvalidScopeError struct {
	Op     string // e.g. "AddDefinitions", "Close"
	Scope  string // e.g. `settings "gcc"`
	Reason string
}

func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("invalid scope: %s on %s: %s", e.Op, e.Scope, e.Reason)
}

// InvalidModelError reports a structurally invalid model, such as a project
// without registered configurations.
type InvalidModelError struct {
	Field  string
	Reason string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("invalid model: %s: %s", e.Field, e.Reason)
}
