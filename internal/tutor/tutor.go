// Package tutor owns a learner's in-progress work on one lesson: the code
// buffer, the verdict of the last check, the failure streak that gates the
// reference solution, and the per-activation explanation.
//
// Evaluator calls run on their own goroutines. Every response is tagged with
// the epoch of the activation that issued it and is dropped if the learner has
// switched lessons since.
package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/veripop/internal/model"
)

// DefaultRevealAfter is the number of consecutive failures after which the
// reference solution may be revealed.
const DefaultRevealAfter = 3

// ErrLessonInactive is returned by lesson-scoped commands addressed to a
// lesson other than the active one.
var ErrLessonInactive = errors.New("lesson is not active")

// Messages shown when an evaluator could not be reached.
const (
	CheckUnavailableMessage   = "The checker could not be reached. Please try again."
	ExplainUnavailableMessage = "The explanation could not be loaded. Please try again."
)

// VerdictKind classifies the state of the last verification.
type VerdictKind string

const (
	VerdictNone    VerdictKind = "none"
	VerdictPending VerdictKind = "pending"
	VerdictSuccess VerdictKind = "success"
	VerdictFailure VerdictKind = "failure"
)

// Verdict is the result of the most recent check.
type Verdict struct {
	Kind    VerdictKind `json:"kind"`
	Message string      `json:"message,omitempty"`
	// Unavailable marks a failure synthesized from a transport error rather
	// than returned by the verifier.
	Unavailable bool `json:"unavailable,omitempty"`
}

// ExplanationState tracks the explanation for the current activation.
type ExplanationState string

const (
	ExplanationNotRequested ExplanationState = "not_requested"
	ExplanationPending      ExplanationState = "pending"
	ExplanationReady        ExplanationState = "ready"
)

// Result is the discriminated outcome of one verification.
type Result struct {
	Passed  bool
	Message string
}

// Verifier judges a candidate solution for a lesson.
type Verifier interface {
	Verify(ctx context.Context, lesson model.Lesson, code string) (Result, error)
}

// Explainer produces explanatory prose for a lesson's theory.
type Explainer interface {
	Explain(ctx context.Context, title, theory string) (string, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, lesson model.Lesson, code string) (Result, error)

func (f VerifierFunc) Verify(ctx context.Context, lesson model.Lesson, code string) (Result, error) {
	return f(ctx, lesson, code)
}

// ExplainerFunc adapts a function to Explainer.
type ExplainerFunc func(ctx context.Context, title, theory string) (string, error)

func (f ExplainerFunc) Explain(ctx context.Context, title, theory string) (string, error) {
	return f(ctx, title, theory)
}

// Config configures a Controller.
type Config struct {
	Verifier  Verifier
	Explainer Explainer
	// RevealAfter defaults to DefaultRevealAfter when zero.
	RevealAfter int
	// Timeout bounds each evaluator call. Zero means no timeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	Lesson           model.Lesson     `json:"-"`
	LessonID         string           `json:"lesson_id"`
	Epoch            uint64           `json:"epoch"`
	Code             string           `json:"code"`
	Verdict          Verdict          `json:"verdict"`
	FailureStreak    int              `json:"failure_streak"`
	RevealEligible   bool             `json:"reveal_eligible"`
	SolutionRevealed bool             `json:"solution_revealed"`
	Solution         string           `json:"solution,omitempty"`
	Explanation      ExplanationState `json:"explanation"`
	ExplanationText  string           `json:"explanation_text,omitempty"`
	ExplanationError string           `json:"explanation_error,omitempty"`
}

// Controller is the only writer of a session. All methods are safe for
// concurrent use.
type Controller struct {
	verifier    Verifier
	explainer   Explainer
	revealAfter int
	timeout     time.Duration
	logger      *slog.Logger

	mu              sync.Mutex
	lesson          model.Lesson
	code            string
	verdict         Verdict
	streak          int
	revealed        bool
	explanation     ExplanationState
	explanationText string
	explanationErr  string
	epoch           uint64
	activeCtx       context.Context
	cancelActive    context.CancelFunc
	closed          bool
	subs            map[int]chan Snapshot
	nextSub         int

	inflight sync.WaitGroup
}

// New creates a controller with lesson selected.
func New(cfg Config, lesson model.Lesson) *Controller {
	c := &Controller{
		verifier:    cfg.Verifier,
		explainer:   cfg.Explainer,
		revealAfter: cfg.RevealAfter,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
		subs:        make(map[int]chan Snapshot),
	}
	if c.revealAfter <= 0 {
		c.revealAfter = DefaultRevealAfter
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.mu.Lock()
	c.activateLocked(lesson)
	c.mu.Unlock()
	return c
}

// activateLocked resets every field of the session for lesson and starts a
// new epoch. Calls issued under the previous epoch are cancelled.
func (c *Controller) activateLocked(lesson model.Lesson) {
	if c.cancelActive != nil {
		c.cancelActive()
	}
	c.activeCtx, c.cancelActive = context.WithCancel(context.Background())
	c.epoch++
	c.lesson = lesson
	c.code = lesson.StarterCode
	c.verdict = Verdict{Kind: VerdictNone}
	c.streak = 0
	c.revealed = false
	c.explanation = ExplanationNotRequested
	c.explanationText = ""
	c.explanationErr = ""
}

// SelectLesson makes lesson the active lesson and resets the session.
// Responses to requests issued before the switch are discarded.
func (c *Controller) SelectLesson(lesson model.Lesson) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.selectLocked(lesson)
}

// ActivateLesson selects lesson unless it is already the active lesson, and
// reports whether the session was reset.
func (c *Controller) ActivateLesson(lesson model.Lesson) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.lesson.ID == lesson.ID {
		return false
	}
	c.selectLocked(lesson)
	return true
}

func (c *Controller) selectLocked(lesson model.Lesson) {
	prev := c.lesson.ID
	c.activateLocked(lesson)
	c.logger.Debug("lesson selected", "from", prev, "to", lesson.ID, "epoch", c.epoch)
	c.notifyLocked()
}

// requireActiveLocked fails with ErrLessonInactive unless lessonID is the
// active lesson of an open controller.
func (c *Controller) requireActiveLocked(lessonID string) error {
	if c.closed || c.lesson.ID != lessonID {
		return fmt.Errorf("%w: %s", ErrLessonInactive, lessonID)
	}
	return nil
}

// EditCode replaces the code buffer. It never triggers a check.
func (c *Controller) EditCode(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editLocked(text)
}

// EditLessonCode is EditCode for a command addressed to lessonID.
func (c *Controller) EditLessonCode(lessonID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireActiveLocked(lessonID); err != nil {
		return err
	}
	c.editLocked(text)
	return nil
}

func (c *Controller) editLocked(text string) {
	if c.closed || c.code == text {
		return
	}
	c.code = text
	c.notifyLocked()
}

// Check submits the current code to the verifier. It reports false, and does
// nothing, while a previous check is still pending.
func (c *Controller) Check() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkLocked()
}

// CheckLesson applies code, when given, and submits the buffer, both as one
// step against lessonID. The bool is Check's result.
func (c *Controller) CheckLesson(lessonID string, code *string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireActiveLocked(lessonID); err != nil {
		return false, err
	}
	if code != nil {
		c.editLocked(*code)
	}
	return c.checkLocked(), nil
}

func (c *Controller) checkLocked() bool {
	if c.closed || c.verdict.Kind == VerdictPending {
		return false
	}
	c.verdict = Verdict{Kind: VerdictPending}
	c.inflight.Add(1)
	c.notifyLocked()
	go c.runCheck(c.activeCtx, c.epoch, c.lesson, c.code)
	return true
}

func (c *Controller) runCheck(ctx context.Context, epoch uint64, lesson model.Lesson, code string) {
	defer c.inflight.Done()

	ctx, cancel := c.callContext(ctx)
	defer cancel()
	res, err := c.verifier.Verify(ctx, lesson, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.logger.Debug("discarding stale verdict", "lesson", lesson.ID, "epoch", epoch, "current", c.epoch)
		return
	}

	switch {
	case err != nil:
		c.logger.Warn("verifier failed", "lesson", lesson.ID, "error", err)
		c.verdict = Verdict{Kind: VerdictFailure, Message: CheckUnavailableMessage, Unavailable: true}
		c.streak++
	case res.Passed:
		c.verdict = Verdict{Kind: VerdictSuccess, Message: res.Message}
		c.streak = 0
		c.revealed = false
	default:
		c.verdict = Verdict{Kind: VerdictFailure, Message: res.Message}
		c.streak++
	}
	c.logger.Debug("verdict applied", "lesson", lesson.ID, "kind", c.verdict.Kind, "streak", c.streak)
	c.notifyLocked()
}

// RevealSolution exposes the reference solution once the failure streak has
// reached the reveal threshold and the last verdict is not a success. It
// reports whether the solution is revealed afterwards.
func (c *Controller) RevealSolution() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revealLocked()
}

// RevealLessonSolution is RevealSolution for a command addressed to lessonID.
func (c *Controller) RevealLessonSolution(lessonID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireActiveLocked(lessonID); err != nil {
		return false, err
	}
	return c.revealLocked(), nil
}

func (c *Controller) revealLocked() bool {
	if c.closed || !c.revealEligibleLocked() {
		return c.revealed
	}
	if !c.revealed {
		c.revealed = true
		c.notifyLocked()
	}
	return true
}

func (c *Controller) revealEligibleLocked() bool {
	return c.streak >= c.revealAfter && c.verdict.Kind != VerdictSuccess
}

// Explain requests an explanation of the active lesson. It is a no-op once an
// explanation is pending or ready for this activation, and reports whether a
// request was issued.
func (c *Controller) Explain() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.explainLocked()
}

// ExplainLesson is Explain for a command addressed to lessonID.
func (c *Controller) ExplainLesson(lessonID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireActiveLocked(lessonID); err != nil {
		return false, err
	}
	return c.explainLocked(), nil
}

func (c *Controller) explainLocked() bool {
	if c.closed || c.explanation != ExplanationNotRequested {
		return false
	}
	c.explanation = ExplanationPending
	c.explanationErr = ""
	c.inflight.Add(1)
	c.notifyLocked()
	go c.runExplain(c.activeCtx, c.epoch, c.lesson)
	return true
}

func (c *Controller) runExplain(ctx context.Context, epoch uint64, lesson model.Lesson) {
	defer c.inflight.Done()

	ctx, cancel := c.callContext(ctx)
	defer cancel()
	text, err := c.explainer.Explain(ctx, lesson.Title, lesson.Theory)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.logger.Debug("discarding stale explanation", "lesson", lesson.ID, "epoch", epoch, "current", c.epoch)
		return
	}
	if err != nil {
		c.logger.Warn("explainer failed", "lesson", lesson.ID, "error", err)
		c.explanation = ExplanationNotRequested
		c.explanationErr = ExplainUnavailableMessage
	} else {
		c.explanation = ExplanationReady
		c.explanationText = text
	}
	c.notifyLocked()
}

func (c *Controller) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(parent, c.timeout)
	}
	return context.WithCancel(parent)
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Lesson:           c.lesson,
		LessonID:         c.lesson.ID,
		Epoch:            c.epoch,
		Code:             c.code,
		Verdict:          c.verdict,
		FailureStreak:    c.streak,
		RevealEligible:   c.revealEligibleLocked(),
		SolutionRevealed: c.revealed,
		Explanation:      c.explanation,
		ExplanationText:  c.explanationText,
		ExplanationError: c.explanationErr,
	}
	if c.revealed {
		s.Solution = c.lesson.SolutionCode
	}
	return s
}

// Subscribe returns a channel that receives the latest snapshot after every
// state change. Slow readers only ever see the most recent snapshot. The
// returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Controller) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Wait blocks until every evaluator call issued so far has returned.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close cancels outstanding calls, drops their responses and closes all
// subscriptions. Further mutations are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
	c.cancelActive()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}
