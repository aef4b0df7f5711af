package model

import "testing"

func TestLessonTheorySplit(t *testing.T) {
	tests := []struct {
		name        string
		theory      string
		wantConcept string
		wantSyntax  string
	}{
		{
			name:        "both sections",
			theory:      "### Digital Logic Deep Dive\nA wire is a connection.\n\n### Verilog Implementation\nUse `assign`.\n",
			wantConcept: "A wire is a connection.",
			wantSyntax:  "Use `assign`.",
		},
		{
			name:        "no syntax section",
			theory:      "### Digital Logic Deep Dive\nJust prose.",
			wantConcept: "Just prose.",
			wantSyntax:  "",
		},
		{
			name:        "no headings",
			theory:      "  plain text  ",
			wantConcept: "plain text",
			wantSyntax:  "",
		},
		{
			name:        "empty",
			theory:      "",
			wantConcept: "",
			wantSyntax:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Lesson{Theory: tt.theory}
			if got := l.Concept(); got != tt.wantConcept {
				t.Errorf("Concept() = %q, want %q", got, tt.wantConcept)
			}
			if got := l.Syntax(); got != tt.wantSyntax {
				t.Errorf("Syntax() = %q, want %q", got, tt.wantSyntax)
			}
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := ContextWithBasePath(t.Context(), "/ru")
	ctx = ContextWithCSRFToken(ctx, "tok")
	ctx = ContextWithWorkspaceID(ctx, "ws-1")

	if got := BasePathFromContext(ctx); got != "/ru" {
		t.Errorf("BasePathFromContext = %q, want /ru", got)
	}
	if got := CSRFTokenFromContext(ctx); got != "tok" {
		t.Errorf("CSRFTokenFromContext = %q, want tok", got)
	}
	if got := WorkspaceIDFromContext(ctx); got != "ws-1" {
		t.Errorf("WorkspaceIDFromContext = %q, want ws-1", got)
	}
	if got := WorkspaceIDFromContext(t.Context()); got != "" {
		t.Errorf("empty context workspace = %q, want empty", got)
	}
}
