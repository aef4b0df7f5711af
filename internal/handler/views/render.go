// Package views renders the tutor's HTML pages as templ components.
package views

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"

	"github.com/pavelanni/veripop/internal/model"
)

// html accumulates the first write error so components can emit markup
// without checking every call.
type html struct {
	ctx context.Context
	w   io.Writer
	err error
}

func newHTML(ctx context.Context, w io.Writer) *html {
	return &html{ctx: ctx, w: w}
}

func (h *html) raw(parts ...string) {
	for _, s := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *html) text(s string) { h.raw(templ.EscapeString(s)) }

func (h *html) attr(name, value string) {
	h.raw(" ", name, `="`, templ.EscapeString(value), `"`)
}

func (h *html) render(c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(h.ctx, h.w)
}

// url prefixes path with the deployment base path.
func url(ctx context.Context, path string) string {
	return string(templ.URL(model.BasePathFromContext(ctx) + path))
}

func lessonURL(ctx context.Context, id, action string) string {
	p := "/lessons/" + id
	if action != "" {
		p += "/" + action
	}
	return url(ctx, p)
}

// csrfField emits the hidden double-submit token for POST forms.
func (h *html) csrfField() {
	h.raw(`<input type="hidden" name="csrf_token"`)
	h.attr("value", model.CSRFTokenFromContext(h.ctx))
	h.raw(">")
}

func itoa(n int) string { return strconv.Itoa(n) }
