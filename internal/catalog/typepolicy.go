package catalog

import "strings"

// TypePolicy maps a field class onto the storage type tag persisted with each
// field. It is injected rather than hard-coded so new classes can be
// registered without touching the versioning engine.
type TypePolicy map[string]string

// DefaultTypePolicy returns the mapping the legacy schema ships with.
func DefaultTypePolicy() TypePolicy {
	return TypePolicy{
		"number":  "number",
		"boolean": "boolean",
		"text":    "text",
		"string":  "text",
		"date":    "date",
		"hour":    "hour",
		"list":    "list",
		"group":   "group",
		"calc":    "calc",
		"dataset": "dataset",
		"firm":    "firm",
	}
}

// Resolve returns the storage type for a class, falling back to the generic
// text type for unregistered classes.
func (p TypePolicy) Resolve(class string) string {
	if t, ok := p[strings.ToLower(strings.TrimSpace(class))]; ok {
		return t
	}
	return "text"
}
