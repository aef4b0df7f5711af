// Package diagram renders the static illustrations shown above each lesson.
// Rendering is a pure function of the diagram tag.
package diagram

import (
	"sort"
	"strconv"
	"strings"
)

var diagrams = map[string]func() node{
	"chip_intro":       chipIntro,
	"output_zero":      outputZero,
	"wire":             wire,
	"four_wires":       fourWires,
	"not_gate":         notGate,
	"and_gate":         andGate,
	"or_gate":          orGate,
	"nand_gate":        nandGate,
	"nor_gate":         norGate,
	"xor_gate":         xorGate,
	"xnor_gate":        xnorGate,
	"internal_wires":   internalWires,
	"chip_7458":        chip7458,
	"dff":              dff,
	"vector_bus":       vectorBus,
	"vector_select":    vectorSelect,
	"vector_concat":    vectorConcat,
	"module_hierarchy": moduleHierarchy,
	"always_block":     alwaysBlock,
	"mux_2to1":         mux2to1,
	"reduction_gate":   reductionGate,
}

// Known reports whether tag has a dedicated illustration.
func Known(tag string) bool {
	_, ok := diagrams[tag]
	return ok
}

// Tags returns every known tag in sorted order.
func Tags() []string {
	tags := make([]string, 0, len(diagrams))
	for t := range diagrams {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Render returns the SVG markup for tag. Unknown tags render a placeholder
// that names the tag.
func Render(tag string) string {
	build, ok := diagrams[tag]
	var n node
	if ok {
		n = build()
	} else {
		n = placeholder(tag)
	}
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func placeholder(tag string) node {
	return svg("placeholder",
		label("200", "105", "#475569", "Visualization Placeholder: "+tag,
			"font-family", mono, "font-size", "12", "text-anchor", "middle"),
	)
}

func chipBody() node {
	return rect("120", "40", "160", "120", "rx", "8", "fill", colorPanel, "stroke", colorStroke, "stroke-width", "3", "style", glow)
}

func chipIntro() node {
	return svg("chip_intro",
		chipBody(),
		label("200", "100", colorWhite, "MODULE", "font-size", "16", "font-family", mono, "text-anchor", "middle"),
		label("200", "120", colorDim, "top_module", "font-size", "12", "font-family", mono, "text-anchor", "middle"),
		line("280", "100", "350", "100", colorSecondary, "4"),
		label("360", "105", colorSecondary, "1", "font-size", "14", "font-family", mono),
		circle("280", "100", "4", "fill", colorStroke),
		line("200", "40", "200", "10", colorSecondary, "2"),
		line("180", "10", "220", "10", colorSecondary, "2"),
		label("230", "15", colorSecondary, "VCC", "font-size", "10"),
	)
}

func outputZero() node {
	return svg("output_zero",
		chipBody(),
		label("200", "100", colorWhite, "MODULE", "font-size", "16", "font-family", mono, "text-anchor", "middle"),
		line("280", "100", "350", "100", colorMuted, "4"),
		label("360", "105", colorMuted, "0", "font-size", "14", "font-family", mono),
		line("200", "160", "200", "180", colorMuted, "2"),
		line("190", "180", "210", "180", colorMuted, "2"),
		line("195", "185", "205", "185", colorMuted, "2"),
		line("198", "190", "202", "190", colorMuted, "2"),
		label("215", "180", colorMuted, "GND", "font-size", "10"),
	)
}

func wire() node {
	const d = "M 50 100 L 350 100"
	return svg("wire",
		el("defs", nil,
			el("marker", attrs("id", "arrow", "viewBox", "0 0 10 10", "refX", "5", "refY", "5",
				"markerWidth", "6", "markerHeight", "6", "orient", "auto-start-reverse"),
				el("path", attrs("d", "M 0 0 L 10 5 L 0 10 z", "fill", colorStroke)),
			),
		),
		monoLabel("50", "90", colorMuted, "Input A"),
		monoLabel("300", "90", colorMuted, "Output Y"),
		path(d, colorStroke, strokeWidth, "marker-end", "url(#arrow)", "class", "pulse", "style", glow),
		particle("4", colorSecondary, "2s", d),
	)
}

func fourWires() node {
	type wireSpec struct {
		y, color, in, out string
	}
	specs := []wireSpec{
		{"50", colorStroke, "a", "w"},
		{"80", colorThird, "b", "x"},
		{"110", colorViolet, "c", "y"},
		{"140", colorSecondary, "d", "z"},
	}
	var wires, labels, particles []node
	for _, s := range specs {
		d := "M 80 " + s.y + " L 320 " + s.y
		wires = append(wires, path(d, s.color, "2"))
		labels = append(labels,
			monoLabel("60", offset(s.y, 5), s.color, s.in),
			monoLabel("330", offset(s.y, 5), s.color, s.out),
		)
		particles = append(particles, particle("3", colorWhite, "3s", d))
	}
	children := []node{group(attrs("style", glow), wires...)}
	children = append(children, labels...)
	children = append(children, particles...)
	return svg("four_wires", children...)
}

// offset shifts a numeric coordinate by d.
func offset(v string, d int) string {
	n, err := strconv.Atoi(v)
	if err != nil {
		return v
	}
	return strconv.Itoa(n + d)
}

// gateInputs draws the A and B input leads ending at x.
func gateInputs(x string) []node {
	return []node{
		path("M 100 70 L "+x+" 70", colorStroke, strokeWidth),
		path("M 100 130 L "+x+" 130", colorStroke, strokeWidth),
		label("80", "70", colorMuted, "A", "font-family", mono),
		label("80", "130", colorMuted, "B", "font-family", mono),
	}
}

func gateName(x, name string) node {
	return label(x, "105", colorThird, name, "font-weight", "bold", "font-size", "12", "text-anchor", "middle")
}

func bubble() node {
	return circle("290", "100", "10", "fill", "none", "stroke", colorStroke, "stroke-width", strokeWidth)
}

func gate(tag string, parts ...node) node {
	return svg(tag, parts...)
}

const (
	andBody  = "M 180 40 L 180 160 C 260 160 280 100 280 100 C 280 100 260 40 180 40 Z"
	orBody   = "M 150 40 C 170 70 170 130 150 160 C 250 160 280 100 280 100 C 280 100 250 40 150 40 Z"
	norBody  = "M 160 40 C 180 70 180 130 160 160 C 240 160 280 100 280 100 C 280 100 240 40 160 40"
	xorInput = "M 150 40 C 170 70 170 130 150 160"
)

func notGate() node {
	return svg("not_gate",
		path("M 100 100 L 180 100", colorStroke, strokeWidth),
		outline("M 180 60 L 180 140 L 260 100 Z"),
		circle("270", "100", "10", "fill", "none", "stroke", colorStroke, "stroke-width", strokeWidth),
		path("M 280 100 L 360 100", colorStroke, strokeWidth),
		label("80", "90", colorMuted, "In", "font-family", mono),
		label("350", "90", colorMuted, "Out", "font-family", mono),
		gateName("200", "NOT"),
	)
}

func andGate() node {
	return gate("and_gate", append(gateInputs("180"),
		outline(andBody),
		path("M 280 100 L 360 100", colorStroke, strokeWidth),
		gateName("210", "AND"),
	)...)
}

func orGate() node {
	return gate("or_gate", append(gateInputs("160"),
		outline(orBody),
		path("M 280 100 L 360 100", colorStroke, strokeWidth),
		gateName("220", "OR"),
	)...)
}

func nandGate() node {
	return gate("nand_gate", append(gateInputs("180"),
		outline(andBody),
		bubble(),
		path("M 300 100 L 360 100", colorStroke, strokeWidth),
		gateName("220", "NAND"),
	)...)
}

func norGate() node {
	return gate("nor_gate", append(gateInputs("170"),
		outline(norBody),
		bubble(),
		path("M 300 100 L 360 100", colorStroke, strokeWidth),
		gateName("220", "NOR"),
	)...)
}

func xorGate() node {
	return gate("xor_gate", append(gateInputs("160"),
		path(xorInput, colorStroke, strokeWidth, "fill", "none"),
		outline("M 160 40 C 180 70 180 130 160 160 C 260 160 290 100 290 100 C 290 100 260 40 160 40"),
		path("M 290 100 L 360 100", colorStroke, strokeWidth),
		gateName("220", "XOR"),
	)...)
}

func xnorGate() node {
	return gate("xnor_gate", append(gateInputs("160"),
		path(xorInput, colorStroke, strokeWidth, "fill", "none"),
		outline(norBody),
		bubble(),
		path("M 300 100 L 360 100", colorStroke, strokeWidth),
		gateName("220", "XNOR"),
	)...)
}

func internalWires() node {
	return svg("internal_wires",
		rect("100", "50", "40", "40", "fill", "none", "stroke", colorStroke, "stroke-width", "2"),
		label("120", "75", colorWhite, "&", "text-anchor", "middle", "font-size", "10"),
		rect("250", "80", "40", "40", "fill", "none", "stroke", colorStroke, "stroke-width", "2"),
		label("270", "105", colorWhite, "|", "text-anchor", "middle", "font-size", "10"),
		path("M 140 70 L 195 70 L 195 90 L 250 90", colorSecondary, "2", "fill", "none", "stroke-dasharray", "4 4", "class", "flow"),
		label("195", "60", colorSecondary, "wire internal_sig", "text-anchor", "middle", "font-size", "10", "font-family", mono),
		path("M 290 100 L 340 100", colorStroke, "2"),
	)
}

func chip7458() node {
	var pins []node
	for _, y := range []string{"50", "70", "90", "110"} {
		pins = append(pins, line("80", y, "60", y, colorStroke, "2"))
	}
	children := []node{
		rect("80", "30", "240", "140", "rx", "4", "fill", colorPanel, "stroke", colorStroke, "stroke-width", "2"),
		group(attrs("opacity", "0.5", "stroke", colorSecondary, "fill", "none"),
			rect("120", "50", "20", "20"),
			rect("120", "80", "20", "20"),
			circle("200", "80", "10"),
		),
		label("200", "100", colorWhite, "7458", "font-size", "24", "font-family", mono, "text-anchor", "middle", "font-weight", "bold"),
	}
	children = append(children, pins...)
	children = append(children,
		line("320", "80", "340", "80", colorSecondary, "2"),
		label("350", "85", colorSecondary, "Y", "font-size", "12"),
	)
	return svg("chip_7458", children...)
}

func dff() node {
	const clk = "M 80 150 L 150 150"
	return svg("dff",
		rect("150", "50", "100", "120", "rx", "4", "fill", colorPanel, "stroke", colorStroke, "stroke-width", strokeWidth, "style", glow),
		path("M 80 70 L 150 70", colorStroke, strokeWidth),
		path(clk, colorSecondary, strokeWidth),
		path("M 150 140 L 170 150 L 150 160", colorStroke, "2", "fill", "none"),
		path("M 250 70 L 320 70", colorStroke, strokeWidth),
		path("M 250 150 L 320 150", colorMuted, "2"),
		monoLabel("130", "75", colorMuted, "D", "text-anchor", "end"),
		monoLabel("130", "155", colorSecondary, "Clk", "text-anchor", "end"),
		monoLabel("270", "75", colorMuted, "Q"),
		monoLabel("270", "155", colorMuted, "Qn"),
		particle("3", colorSecondary, "2s", clk),
	)
}

// busWidth draws the slash-and-number notation for a multi-bit bus.
func busWidth(x, color, width, lx, ly string, fontSize string) []node {
	return []node{
		line(x, "110", offset(x, 20), "90", color, "3"),
		label(lx, ly, color, width, "font-size", fontSize, "font-weight", "bold"),
	}
}

func vectorBus() node {
	children := []node{
		path("M 50 100 L 350 100", colorStroke, "8", "class", "pulse", "style", glow),
	}
	children = append(children, busWidth("190", colorSecondary, "8", "215", "90", "14")...)
	children = append(children,
		monoLabel("200", "140", colorWhite, "wire [7:0] bus", "text-anchor", "middle"),
	)
	return svg("vector_bus", children...)
}

func vectorSelect() node {
	children := []node{path("M 50 100 L 150 100", colorStroke, "8")}
	children = append(children, busWidth("90", colorSecondary, "16", "95", "85", "12")...)
	children = append(children,
		path("M 150 100 C 200 100 200 60 250 60", colorStroke, "4", "fill", "none"),
		path("M 150 100 C 200 100 200 140 250 140", colorStroke, "4", "fill", "none"),
		path("M 250 60 L 350 60", colorStroke, "4"),
		monoLabel("360", "65", colorMuted, "Hi"),
		path("M 250 140 L 350 140", colorStroke, "4"),
		monoLabel("360", "145", colorMuted, "Lo"),
	)
	return svg("vector_select", children...)
}

func vectorConcat() node {
	children := []node{
		path("M 50 60 L 150 60", colorThird, "4"),
		monoLabel("40", "65", colorThird, "a[4:0]", "text-anchor", "end"),
		path("M 50 140 L 150 140", colorSecondary, "4"),
		monoLabel("40", "145", colorSecondary, "b[4:0]", "text-anchor", "end"),
		path("M 150 60 C 200 60 200 100 250 100", colorThird, "4", "fill", "none"),
		path("M 150 140 C 200 140 200 100 250 100", colorSecondary, "4", "fill", "none"),
		path("M 250 100 L 350 100", colorStroke, "8", "style", glow),
	}
	children = append(children, busWidth("290", colorWhite, "10", "315", "85", "12")...)
	children = append(children, monoLabel("300", "130", colorWhite, "{a, b}", "text-anchor", "middle"))
	return svg("vector_concat", children...)
}

func moduleHierarchy() node {
	return svg("module_hierarchy",
		rect("20", "20", "360", "160", "rx", "8", "fill", "none", "stroke", colorDim, "stroke-width", "2", "stroke-dasharray", "5 5"),
		monoLabel("40", "45", colorDim, "top_module", "font-weight", "bold"),
		rect("120", "60", "160", "80", "rx", "4", "fill", colorPanel, "stroke", colorStroke, "stroke-width", "3", "style", glow),
		label("200", "105", colorWhite, "mod_a", "text-anchor", "middle", "font-family", mono),
		path("M 20 80 L 120 80", colorSecondary, "2"),
		monoLabel("70", "75", colorSecondary, "wire1", "text-anchor", "middle"),
		path("M 280 100 L 380 100", colorStroke, "2"),
		monoLabel("330", "95", colorStroke, "out", "text-anchor", "middle"),
	)
}

func alwaysBlock() node {
	return svg("always_block",
		path("M 150 50 Q 200 20 250 50 Q 300 50 320 80 Q 350 120 300 150 Q 250 180 200 150 Q 150 170 120 130 Q 80 100 150 50",
			colorSecondary, "2", "fill", colorPanel, "style", glow),
		label("220", "100", colorSecondary, "LOGIC", "text-anchor", "middle", "font-family", mono, "font-weight", "bold"),
		monoLabel("220", "120", colorWhite, "always @(*)", "text-anchor", "middle"),
		path("M 50 80 L 130 90", colorStroke, "2"),
		path("M 50 120 L 130 110", colorStroke, "2"),
		monoLabel("80", "60", colorSecondary, "Trigger!"),
		path("M 90 70 L 110 90", colorSecondary, "1", "stroke-dasharray", "2 2"),
	)
}

func mux2to1() node {
	return svg("mux_2to1",
		path("M 150 40 L 250 60 L 250 140 L 150 160 Z", colorStroke, "3", "fill", colorPanel, "style", glow),
		label("200", "105", colorWhite, "MUX", "text-anchor", "middle", "font-family", mono, "font-weight", "bold"),
		path("M 50 60 L 150 60", colorMuted, "2"),
		monoLabel("140", "55", colorMuted, "0 (False)", "text-anchor", "end"),
		path("M 50 140 L 150 140", colorMuted, "2"),
		monoLabel("140", "135", colorMuted, "1 (True)", "text-anchor", "end"),
		path("M 200 180 L 200 150", colorSecondary, "2"),
		monoLabel("200", "195", colorSecondary, "sel", "text-anchor", "middle"),
		path("M 250 100 L 350 100", colorStroke, "3"),
	)
}

func reductionGate() node {
	return svg("reduction_gate",
		path("M 50 100 L 140 100", colorStroke, "8"),
		line("80", "110", "100", "90", colorWhite, "2"),
		label("90", "85", colorWhite, "8", "text-anchor", "middle", "font-size", "12"),
		path("M 140 40 C 160 70 160 130 140 160", colorStroke, "2", "fill", "none"),
		path("M 150 40 C 170 70 170 130 150 160 C 230 160 270 100 270 100 C 270 100 230 40 150 40",
			colorStroke, "3", "fill", colorPanel, "style", glow),
		label("210", "105", colorSecondary, "^", "text-anchor", "middle", "font-weight", "bold"),
		path("M 270 100 L 350 100", colorStroke, "2"),
		monoLabel("350", "90", colorStroke, "1 bit", "text-anchor", "end"),
	)
}
