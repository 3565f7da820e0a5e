// Package ai wraps the external language-model collaborator that simplifies
// and translates discharge content. The server only depends on the
// Transformer contract: content in, simplified/translated content out.
package ai

import (
	"context"
	"strings"
)

// PlanContent is the structured discharge content exchanged with the
// collaborator. Every transform must round-trip through this shape.
type PlanContent struct {
	Diagnosis    string   `json:"diagnosis"`
	Medications  []string `json:"medications"`
	Appointments []string `json:"appointments"`
	Instructions string   `json:"instructions"`
	Warnings     string   `json:"warnings"`
}

// Empty reports whether the content carries no usable text.
func (p PlanContent) Empty() bool {
	return strings.TrimSpace(p.Diagnosis) == "" &&
		len(p.Medications) == 0 &&
		strings.TrimSpace(p.Instructions) == "" &&
		strings.TrimSpace(p.Warnings) == ""
}

// BackTranslation carries the translated fields rendered back into the
// source language. It is a quality signal for the reviewing interpreter,
// never a gate.
type BackTranslation struct {
	Diagnosis    string `json:"diagnosis"`
	Instructions string `json:"instructions"`
	Warnings     string `json:"warnings"`
}

// Result is the collaborator's output for one transform run. Translated and
// BackTranslated are nil for English targets.
type Result struct {
	Simplified     PlanContent      `json:"simplified"`
	Translated     *PlanContent     `json:"translated,omitempty"`
	BackTranslated *BackTranslation `json:"backTranslated,omitempty"`
}

// Transformer simplifies original discharge content and, for non-English
// targets, translates it and back-translates the critical fields.
type Transformer interface {
	Transform(ctx context.Context, content PlanContent, targetLanguage string) (*Result, error)
}
