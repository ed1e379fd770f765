// Package tool defines domain types for invocable capabilities exposed to
// the planning layer. A tool is a named, schema-described operation; the
// registry stores handlers behind the Handler type, not by reflection.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/guard"
)

// Spec describes a registered tool. Immutable once registered; created at
// process startup by built-in and dynamically loaded tools.
type Spec struct {
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	InputSchema  json.RawMessage    `json:"input_schema"`
	OutputSchema json.RawMessage    `json:"output_schema,omitempty"`
	Access       []guard.AccessKind `json:"access,omitempty"`
	BaseRisk     guard.RiskLevel    `json:"base_risk,omitempty"`
}

// Handler executes one tool invocation with already-validated arguments.
type Handler func(ctx context.Context, args map[string]any) (*Result, error)

// Definition pairs a Spec with its Handler for registration.
type Definition struct {
	Spec    Spec
	Handler Handler
}

// Result is the outcome of a tool invocation, transport-independent.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"is_error,omitempty"`
}

// Content is one result fragment.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextResult returns a single-fragment text result.
func TextResult(text string) *Result {
	return &Result{Content: []Content{{Type: "text", Text: text}}}
}

// ErrorResult returns a text result flagged as a handler-level error.
func ErrorResult(format string, args ...any) *Result {
	return &Result{
		Content: []Content{{Type: "text", Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

// validAccess is the set of recognized access kinds.
var validAccess = map[guard.AccessKind]bool{
	guard.AccessNetwork:   true,
	guard.AccessFileRead:  true,
	guard.AccessFileWrite: true,
	guard.AccessCommand:   true,
}

// Validate checks that the Spec has all required fields. Returns a
// domain.ErrValidation-wrapped error on failure.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: tool name is required", domain.ErrValidation)
	}
	if len(s.InputSchema) == 0 {
		return fmt.Errorf("%w: tool %q: input schema is required", domain.ErrValidation, s.Name)
	}
	if !json.Valid(s.InputSchema) {
		return fmt.Errorf("%w: tool %q: input schema is not valid JSON", domain.ErrValidation, s.Name)
	}
	for _, kind := range s.Access {
		if !validAccess[kind] {
			return fmt.Errorf("%w: tool %q: unknown access kind %q", domain.ErrValidation, s.Name, kind)
		}
	}
	if s.BaseRisk != "" && !guard.IsValidRisk(s.BaseRisk) {
		return fmt.Errorf("%w: tool %q: unknown risk level %q", domain.ErrValidation, s.Name, s.BaseRisk)
	}
	return nil
}
