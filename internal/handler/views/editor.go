package views

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/pavelanni/veripop/internal/i18n"
)

// MinEditorLines is the minimum number of line numbers shown in the gutter.
const MinEditorLines = 20

// Editor describes one code buffer widget.
type Editor struct {
	Code     string
	Filename string // defaults to solution.v
	Name     string // form field name; empty for read-only panels
	ReadOnly bool
}

// LineCount returns how many gutter numbers the editor shows for code.
func LineCount(code string) int {
	return max(strings.Count(code, "\n")+1, MinEditorLines)
}

// CodeEditor renders a line-numbered text area.
func CodeEditor(e Editor) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		filename := e.Filename
		if filename == "" {
			filename = "solution.v"
		}
		h := newHTML(ctx, w)
		if e.ReadOnly {
			h.raw(`<div class="editor readonly">`)
		} else {
			h.raw(`<div class="editor">`)
		}
		h.raw(`<div class="editor-bar"><span>`)
		h.text(filename)
		h.raw("</span>")
		if e.ReadOnly {
			h.raw(`<span class="badge">`)
			h.text(i18n.T(ctx, "ReadOnly"))
			h.raw("</span>")
		}
		h.raw(`</div><div class="editor-body"><div class="gutter" aria-hidden="true">`)
		n := LineCount(e.Code)
		for i := 1; i <= n; i++ {
			h.raw("<span>", itoa(i), "</span>")
		}
		h.raw(`</div><textarea spellcheck="false"`)
		h.attr("rows", itoa(n))
		h.attr("aria-label", filename)
		if e.Name != "" {
			h.attr("name", e.Name)
		}
		if e.ReadOnly {
			h.raw(" readonly")
		}
		// A newline right after the start tag is dropped by parsers, so one
		// is always emitted to keep a leading blank line in the code.
		h.raw(">\n")
		h.text(e.Code)
		h.raw("</textarea></div></div>")
		return h.err
	})
}
