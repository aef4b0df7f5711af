package diagram

import (
	"html"
	"strings"
)

// Palette.
const (
	colorStroke    = "#4ECDC4"
	colorSecondary = "#FFE66D"
	colorThird     = "#FF6B97"
	colorViolet    = "#A29BFE"
	colorMuted     = "#94a3b8"
	colorDim       = "#64748b"
	colorPanel     = "#1e293b"
	colorWhite     = "#fff"

	strokeWidth = "3"
	glow        = "filter: drop-shadow(0 0 4px #4ECDC4)"
	mono        = "monospace"
)

type attr struct{ key, value string }

// node is an SVG element. A node with an empty name is a text run.
type node struct {
	name     string
	attrs    []attr
	children []node
	text     string
}

func attrs(kv ...string) []attr {
	out := make([]attr, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, attr{kv[i], kv[i+1]})
	}
	return out
}

func el(name string, a []attr, children ...node) node {
	return node{name: name, attrs: a, children: children}
}

func textNode(s string) node { return node{text: s} }

func (n node) write(sb *strings.Builder) {
	if n.name == "" {
		sb.WriteString(html.EscapeString(n.text))
		return
	}
	sb.WriteByte('<')
	sb.WriteString(n.name)
	for _, a := range n.attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.key)
		sb.WriteString(`="`)
		sb.WriteString(html.EscapeString(a.value))
		sb.WriteByte('"')
	}
	if len(n.children) == 0 {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	for _, c := range n.children {
		c.write(sb)
	}
	sb.WriteString("</")
	sb.WriteString(n.name)
	sb.WriteByte('>')
}

func svg(label string, children ...node) node {
	return el("svg", attrs(
		"xmlns", "http://www.w3.org/2000/svg",
		"viewBox", "0 0 400 200",
		"class", "diagram",
		"role", "img",
		"aria-label", label,
	), children...)
}

func path(d, stroke, width string, extra ...string) node {
	return el("path", append(attrs("d", d, "stroke", stroke, "stroke-width", width), attrs(extra...)...))
}

// outline is an unfilled, glowing gate body.
func outline(d string) node {
	return path(d, colorStroke, strokeWidth, "fill", "none", "style", glow)
}

func line(x1, y1, x2, y2, stroke, width string) node {
	return el("line", attrs("x1", x1, "y1", y1, "x2", x2, "y2", y2, "stroke", stroke, "stroke-width", width))
}

func circle(cx, cy, r string, extra ...string) node {
	return el("circle", append(attrs("cx", cx, "cy", cy, "r", r), attrs(extra...)...))
}

func rect(x, y, w, h string, extra ...string) node {
	return el("rect", append(attrs("x", x, "y", y, "width", w, "height", h), attrs(extra...)...))
}

func label(x, y, fill, s string, extra ...string) node {
	return el("text", append(attrs("x", x, "y", y, "fill", fill), attrs(extra...)...), textNode(s))
}

// monoLabel is a small monospace label.
func monoLabel(x, y, fill, s string, extra ...string) node {
	return label(x, y, fill, s, append([]string{"font-family", mono, "font-size", "12"}, extra...)...)
}

// particle is a dot travelling along d forever.
func particle(r, fill, dur, d string) node {
	return el("circle", attrs("r", r, "fill", fill),
		el("animateMotion", attrs("dur", dur, "repeatCount", "indefinite", "path", d)))
}

func group(a []attr, children ...node) node { return el("g", a, children...) }
