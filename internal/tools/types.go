// Package tools provides the tool catalog: a process-wide registry binding
// named, schema-validated operations to handlers, fronting every core
// component (the structural matcher, duplication pipeline, backup store,
// vocabulary client, trend store, and smell enforcer).
//
// Architecture:
//
//	caller → Registry.Get(name) → Tool.Execute(ctx, args) → ToolResult
package tools

import (
	"context"
)

// ToolCategory classifies tools for catalog browsing and dispatch.
type ToolCategory string

const (
	// CategorySearch covers structural search, rule scans, and streaming.
	CategorySearch ToolCategory = "/search"

	// CategoryDuplication covers duplicate detection, ranking, enrichment,
	// dry-run previews, applying deduplications, and single-file rewrites.
	CategoryDuplication ToolCategory = "/duplication"

	// CategoryBackup covers rollback and backup inspection.
	CategoryBackup ToolCategory = "/backup"

	// CategoryComplexity covers the complexity trend store.
	CategoryComplexity ToolCategory = "/complexity"

	// CategoryLint covers smell/lint rule enforcement.
	CategoryLint ToolCategory = "/lint"

	// CategoryVocabulary covers the ontology/vocabulary client.
	CategoryVocabulary ToolCategory = "/vocabulary"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
// This enables LLM tool calling with proper validation.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a modular tool that any agent can use.
// Tools are registered in the Registry and looked up by name.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does.
	// Used for LLM tool calling and documentation.
	Description string

	// Category classifies the tool for intent filtering.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority is used when multiple tools match.
	// Higher priority tools are preferred (default 50).
	Priority int

	// RequiresContext indicates if the tool needs session context.
	RequiresContext bool

	// Mutates marks tools that can create, modify, or delete files.
	// Mutating tools accept a dry_run argument that defaults to true.
	Mutates bool
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// WithPriority returns a copy of the tool with the given priority.
func (t *Tool) WithPriority(priority int) *Tool {
	copy := *t
	copy.Priority = priority
	return &copy
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Result is the string output from the tool.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}
