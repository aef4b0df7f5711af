package model

import (
	"context"
	"strings"
	"time"
)

// Category groups lessons in the navigation sidebar.
type Category string

const (
	CategoryGettingStarted  Category = "Getting Started"
	CategoryVerilogLanguage Category = "Verilog Language"
	CategoryLogicGates      Category = "Logic Gates"
	CategoryVectors         Category = "Vectors"
	CategoryModules         Category = "Modules"
	CategoryProcedures      Category = "Procedures"
	CategoryMoreFeatures    Category = "More Verilog Features"
	CategorySequentialLogic Category = "Sequential Logic"
)

// Categories lists the known categories in curriculum order.
var Categories = []Category{
	CategoryGettingStarted,
	CategoryVerilogLanguage,
	CategoryLogicGates,
	CategoryVectors,
	CategoryModules,
	CategoryProcedures,
	CategoryMoreFeatures,
	CategorySequentialLogic,
}

// Headings used inside lesson theory text.
const (
	SyntaxHeading  = "### Verilog Implementation"
	ConceptHeading = "### Digital Logic Deep Dive"
)

// Lesson is one exercise. Lessons are immutable once loaded.
type Lesson struct {
	ID              string   `json:"id" yaml:"id"`
	Title           string   `json:"title" yaml:"title"`
	Category        Category `json:"category" yaml:"category"`
	Diagram         string   `json:"diagram" yaml:"diagram"`
	Theory          string   `json:"theory" yaml:"theory"`
	StarterCode     string   `json:"starter_code" yaml:"starter_code"`
	SolutionCode    string   `json:"solution_code" yaml:"solution_code"`
	SolutionPattern string   `json:"solution_pattern,omitempty" yaml:"solution_pattern"`
}

// Concept returns the conceptual part of the theory, without its heading.
func (l Lesson) Concept() string {
	concept, _, _ := strings.Cut(l.Theory, SyntaxHeading)
	concept = strings.Replace(concept, ConceptHeading, "", 1)
	return strings.TrimSpace(concept)
}

// Syntax returns the language reference part of the theory, or "" when the
// lesson has none.
func (l Lesson) Syntax() string {
	_, syntax, found := strings.Cut(l.Theory, SyntaxHeading)
	if !found {
		return ""
	}
	return strings.TrimSpace(syntax)
}

// TutorConfig holds runtime parameters set via CLI flags.
type TutorConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
	PromptVariant string // Check prompt variant (strict, standard, lenient)
	RevealAfter   int    // Consecutive failures before the solution may be revealed
	EvalTimeout   time.Duration
	MaxWorkspaces int
	WorkspaceTTL  time.Duration
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

type workspaceCtxKey struct{}

// ContextWithWorkspaceID stores the browser workspace ID in context.
func ContextWithWorkspaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workspaceCtxKey{}, id)
}

// WorkspaceIDFromContext retrieves the workspace ID from context.
func WorkspaceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(workspaceCtxKey{}).(string)
	return id
}
