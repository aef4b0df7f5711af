package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/veripop/internal/llm/prompts"
	"github.com/pavelanni/veripop/internal/model"
	"github.com/pavelanni/veripop/internal/tutor"
)

// SuccessMarker is the glyph the check prompt asks the model to start a
// correct verdict with.
const SuccessMarker = "✅"

// Verifier implements tutor.Verifier on top of a Completer.
type Verifier struct {
	completer Completer
	variant   prompts.PromptVariant
	precheck  func(lessonID, code string) bool
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithPrecheck installs an advisory local check. Its result is only logged.
func WithPrecheck(fn func(lessonID, code string) bool) VerifierOption {
	return func(v *Verifier) { v.precheck = fn }
}

// NewVerifier creates a verifier using the given check prompt variant.
func NewVerifier(c Completer, variant prompts.PromptVariant, opts ...VerifierOption) *Verifier {
	v := &Verifier{completer: c, variant: variant}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify asks the model to judge code for lesson.
func (v *Verifier) Verify(ctx context.Context, lesson model.Lesson, code string) (tutor.Result, error) {
	system, err := prompts.BuildCheckPrompt(v.variant, lesson)
	if err != nil {
		return tutor.Result{}, fmt.Errorf("build check prompt: %w", err)
	}
	if v.precheck != nil {
		slog.Debug("advisory precheck", "lesson", lesson.ID, "matched", v.precheck(lesson.ID, code))
	}

	text, err := v.completer.Complete(ctx, system, prompts.BuildSubmission(code), 0.2)
	if err != nil {
		return tutor.Result{}, fmt.Errorf("verify %s: %w", lesson.ID, err)
	}
	return ClassifyFeedback(text), nil
}

// ClassifyFeedback turns the model's free text into a discriminated result.
// Only a reply that starts with SuccessMarker counts as a pass.
func ClassifyFeedback(text string) tutor.Result {
	msg := strings.TrimSpace(text)
	return tutor.Result{
		Passed:  strings.HasPrefix(msg, SuccessMarker),
		Message: msg,
	}
}
