package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/veripop/internal/llm/prompts"
	"github.com/pavelanni/veripop/internal/tutor"
)

// Explainer implements tutor.Explainer on top of a Completer.
type Explainer struct {
	completer Completer
}

// NewExplainer creates an explainer.
func NewExplainer(c Completer) *Explainer {
	return &Explainer{completer: c}
}

// Explain asks the model for a plain-language explanation of a lesson.
func (e *Explainer) Explain(ctx context.Context, title, theory string) (string, error) {
	system, err := prompts.BuildExplainPrompt(title, theory)
	if err != nil {
		return "", fmt.Errorf("build explain prompt: %w", err)
	}
	text, err := e.completer.Complete(ctx, system, "Explain this lesson to me.", 0.7)
	if err != nil {
		return "", fmt.Errorf("explain %q: %w", title, err)
	}
	return strings.TrimSpace(text), nil
}

// Cache stores explanation text by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CachedExplainer serves repeated explanations of the same lesson from a
// cache shared by all workspaces. Cache errors are logged and otherwise
// ignored.
type CachedExplainer struct {
	next      tutor.Explainer
	cache     Cache
	namespace string
}

// NewCachedExplainer wraps next. namespace separates entries produced by
// different models.
func NewCachedExplainer(next tutor.Explainer, cache Cache, namespace string) *CachedExplainer {
	return &CachedExplainer{next: next, cache: cache, namespace: namespace}
}

// Explain implements tutor.Explainer.
func (c *CachedExplainer) Explain(ctx context.Context, title, theory string) (string, error) {
	key := c.key(title, theory)
	if text, ok, err := c.cache.Get(ctx, key); err != nil {
		slog.Warn("explanation cache read failed", "key", key, "error", err)
	} else if ok {
		slog.Debug("explanation cache hit", "title", title)
		return text, nil
	}

	text, err := c.next.Explain(ctx, title, theory)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, text); err != nil {
		slog.Warn("explanation cache write failed", "key", key, "error", err)
	}
	return text, nil
}

func (c *CachedExplainer) key(title, theory string) string {
	h := sha256.New()
	h.Write([]byte(c.namespace))
	h.Write([]byte{0})
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(theory))
	return "explain:" + hex.EncodeToString(h.Sum(nil))
}
