package views

import (
	"context"
	"io"

	"github.com/a-h/templ"

	"github.com/pavelanni/veripop/internal/catalog"
	"github.com/pavelanni/veripop/internal/diagram"
	"github.com/pavelanni/veripop/internal/i18n"
	"github.com/pavelanni/veripop/internal/model"
	"github.com/pavelanni/veripop/internal/tutor"
)

// LessonView is everything the lesson page shows.
type LessonView struct {
	Session  tutor.Snapshot
	Groups   []catalog.Group
	Position int // 1-based index of the lesson in the catalog
	Total    int
	Prev     *model.Lesson
	Next     *model.Lesson
	Model    string
}

// Pending reports whether an evaluator call is outstanding.
func (v LessonView) Pending() bool {
	return v.Session.Verdict.Kind == tutor.VerdictPending ||
		v.Session.Explanation == tutor.ExplanationPending
}

// LessonPage renders the full page for the active lesson.
func LessonPage(v LessonView) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		h.render(Sidebar(v.Groups, v.Session.LessonID, v.Model))
		h.raw("<main>")
		h.render(lessonHeader(v.Session))
		h.raw(`<div class="columns"><div class="theory">`)
		h.render(theory(v.Session.Lesson))
		h.render(Explanation(v.Session))
		h.raw(`</div><div class="sandbox">`)
		h.render(sandbox(v.Session))
		h.raw("</div></div>")
		h.render(pager(v))
		h.raw("</main>")
		return h.err
	})
	return Layout(v.Session.Lesson.Title, v.Pending(), body)
}

func lessonHeader(s tutor.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		h.raw(`<header><div><div class="category">`)
		h.text(string(s.Lesson.Category))
		h.raw("</div><h2>")
		h.text(s.Lesson.Title)
		h.raw("</h2></div><form method=\"post\"")
		h.attr("action", lessonURL(ctx, s.LessonID, "explain"))
		h.raw(">")
		h.csrfField()
		h.raw(`<button type="submit" class="tutor-button"`)
		if s.Explanation == tutor.ExplanationPending {
			h.raw(" disabled>")
			h.text(i18n.T(ctx, "AskingAI"))
		} else {
			h.raw(">💡 ")
			h.text(i18n.T(ctx, "AITutor"))
		}
		h.raw("</button></form></header>")
		return h.err
	})
}

func theory(l model.Lesson) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		h.raw("<section><h3>1 · ")
		h.text(i18n.T(ctx, "DigitalLogicConcept"))
		h.raw("</h3><p>")
		h.text(l.Concept())
		h.raw("</p></section><section><h3>2 · ")
		h.text(i18n.T(ctx, "Visualization"))
		h.raw(`</h3><div class="diagram">`)
		h.render(templ.Raw(diagram.Render(l.Diagram)))
		h.raw("</div></section>")
		if syntax := l.Syntax(); syntax != "" {
			h.raw("<section><h3>3 · ")
			h.text(i18n.T(ctx, "VerilogSyntax"))
			h.raw("</h3><p>")
			h.text(syntax)
			h.raw("</p></section>")
		}
		return h.err
	})
}

// Explanation renders the tutor panel: the explanation once ready, or the
// retry hint after a failed request.
func Explanation(s tutor.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		switch {
		case s.Explanation == tutor.ExplanationReady:
			h.raw(`<div class="tutor" id="explanation"><h4>💡 `)
			h.text(i18n.T(ctx, "AITutorHeading"))
			h.raw("</h4><p>")
			h.text(s.ExplanationText)
			h.raw("</p></div>")
		case s.ExplanationError != "":
			h.raw(`<div class="tutor" id="explanation" role="alert">`)
			h.text(i18n.T(ctx, "ExplainUnavailable"))
			h.raw("</div>")
		}
		return h.err
	})
}

func sandbox(s tutor.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		pending := s.Verdict.Kind == tutor.VerdictPending

		h.raw(`<div class="category">`)
		h.text(i18n.T(ctx, "InteractiveSandbox"))
		h.raw(`</div><form method="post" id="editor"`)
		h.attr("action", lessonURL(ctx, s.LessonID, "check"))
		h.attr("data-save", lessonURL(ctx, s.LessonID, "code"))
		h.raw(">")
		h.csrfField()
		h.render(CodeEditor(Editor{Code: s.Code, Name: "code"}))
		h.raw(`</form>`)

		h.render(Feedback(s.Verdict))
		h.render(RevealPanel(s))

		h.raw(`<div class="actions"><button type="submit" form="editor"`)
		h.attr("formaction", lessonURL(ctx, s.LessonID, "code"))
		h.raw(">")
		h.text(i18n.T(ctx, "SaveCode"))
		h.raw(`</button><button type="submit" form="editor" class="primary"`)
		if pending {
			h.raw(" disabled>")
			h.text(i18n.T(ctx, "VerifyingLogic"))
		} else {
			h.raw(">▶ ")
			h.text(i18n.T(ctx, "SubmitSolution"))
		}
		h.raw("</button></div>")
		return h.err
	})
}

// Feedback renders the verdict banner. Nothing is rendered before the first
// check.
func Feedback(v tutor.Verdict) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		switch v.Kind {
		case tutor.VerdictPending:
			h.raw(`<div class="feedback pending" role="status">`)
			h.text(i18n.T(ctx, "Thinking"))
		case tutor.VerdictSuccess:
			h.raw(`<div class="feedback success" role="status">`)
			h.text(v.Message)
		case tutor.VerdictFailure:
			h.raw(`<div class="feedback failure" role="alert">⚠ `)
			if v.Unavailable {
				h.text(i18n.T(ctx, "CheckUnavailable"))
			} else {
				h.text(v.Message)
			}
		default:
			return nil
		}
		h.raw("</div>")
		return h.err
	})
}

// RevealPanel offers the reference solution once the learner has failed
// enough times, and shows it read-only once revealed.
func RevealPanel(s tutor.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		switch {
		case s.SolutionRevealed:
			h.raw(`<div class="reveal"><h4 class="category">`)
			h.text(i18n.T(ctx, "ReferenceSolution"))
			h.raw("</h4>")
			h.render(CodeEditor(Editor{Code: s.Solution, Filename: "reference.v", ReadOnly: true}))
			h.raw("</div>")
		case s.RevealEligible:
			h.raw(`<form method="post" class="reveal"`)
			h.attr("action", lessonURL(ctx, s.LessonID, "reveal"))
			h.raw(">")
			h.csrfField()
			h.raw(`<button type="submit">🔓 `)
			h.text(i18n.Tp(ctx, "ShowSolution", s.FailureStreak))
			h.raw("</button></form>")
		}
		return h.err
	})
}

func pager(v LessonView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := newHTML(ctx, w)
		h.raw(`<nav class="pager">`)
		if v.Prev != nil {
			h.raw("<a rel=\"prev\"")
			h.attr("href", lessonURL(ctx, v.Prev.ID, ""))
			h.raw(">← ")
			h.text(i18n.T(ctx, "PreviousLesson"))
			h.raw("</a>")
		} else {
			h.raw("<span></span>")
		}
		h.raw("<span>")
		h.text(i18n.Td(ctx, "LessonNofM", map[string]any{"N": v.Position, "Total": v.Total}))
		h.raw("</span>")
		if v.Next != nil {
			h.raw("<a rel=\"next\"")
			h.attr("href", lessonURL(ctx, v.Next.ID, ""))
			h.raw(">")
			h.text(i18n.T(ctx, "NextLesson"))
			h.raw(" →</a>")
		} else {
			h.raw("<span></span>")
		}
		h.raw("</nav>")
		return h.err
	})
}
