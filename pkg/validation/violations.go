// Package validation collects non-fatal rule violations for batch checks.
package validation

import "strings"

// Violation describes one broken rule on one field.
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Violations is returned by entity Validate methods. It implements error so
// callers that want fail-fast semantics can return it directly.
type Violations []Violation

func (v Violations) Error() string {
	if len(v) == 0 {
		return "no violations"
	}
	parts := make([]string, 0, len(v))
	for _, item := range v {
		parts = append(parts, item.Field+": "+item.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a violation.
func (v *Violations) Add(field, code, message string) {
	*v = append(*v, Violation{Field: field, Code: code, Message: message})
}

// Empty reports whether no violation was recorded.
func (v Violations) Empty() bool { return len(v) == 0 }

// Err returns nil when v is empty, otherwise v itself.
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
