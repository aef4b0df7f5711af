package views

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/pavelanni/veripop/internal/catalog"
	"github.com/pavelanni/veripop/internal/i18n"
)

// Sidebar lists every lesson grouped by category and marks the current one.
func Sidebar(groups []catalog.Group, currentID, modelName string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		h.raw(`<aside class="sidebar"><div class="brand"><h1>⚡ `)
		h.text(i18n.T(ctx, "AppTitle"))
		h.raw("</h1><p>")
		h.text(i18n.T(ctx, "Tagline"))
		h.raw(`</p></div><nav class="nav"`)
		h.attr("aria-label", i18n.T(ctx, "OpenMenu"))
		h.raw(">")
		for _, g := range groups {
			h.raw("<h3>")
			h.text(string(g.Category))
			h.raw("</h3>")
			for _, l := range g.Lessons {
				h.raw("<a")
				h.attr("href", lessonURL(ctx, l.ID, ""))
				if l.ID == currentID {
					h.raw(` class="active" aria-current="page"`)
				}
				h.raw(">")
				h.text(l.Title)
				h.raw("</a>")
			}
		}
		h.raw("</nav>")
		if modelName != "" {
			h.raw(`<div class="footer">`)
			h.text(i18n.Td(ctx, "PoweredBy", map[string]any{"Model": modelName}))
			h.raw("</div>")
		}
		h.raw("</aside>")
		return h.err
	})
}
