package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/veripop/internal/catalog"
	"github.com/pavelanni/veripop/internal/i18n"
	"github.com/pavelanni/veripop/internal/model"
	"github.com/pavelanni/veripop/internal/tutor"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeEvaluator fails every check until pass is set, and explains instantly.
type fakeEvaluator struct {
	mu    sync.Mutex
	pass  bool
	codes []string
}

func (f *fakeEvaluator) Verify(_ context.Context, _ model.Lesson, code string) (tutor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	if f.pass {
		return tutor.Result{Passed: true, Message: "✅ Correct!"}, nil
	}
	return tutor.Result{Message: "❌ Not quite."}, nil
}

func (f *fakeEvaluator) Explain(_ context.Context, title, _ string) (string, error) {
	return "All about " + title, nil
}

func (f *fakeEvaluator) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.codes...)
}

type testEnv struct {
	srv  *httptest.Server
	eval *fakeEvaluator
	reg  *tutor.Registry
	base string
}

func newTestEnv(t *testing.T, basePath string) *testEnv {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	eval := &fakeEvaluator{}
	reg := tutor.NewRegistry(cat, tutor.Config{Verifier: eval, Explainer: eval}, tutor.RegistryOptions{})
	t.Cleanup(reg.Close)

	h := New(reg, model.TutorConfig{BasePath: basePath}, "test-model")
	r := chi.NewRouter()
	r.Use(i18n.Middleware())
	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, eval: eval, reg: reg, base: srv.URL + basePath}
}

// browser is a cookie-carrying client that does not follow redirects.
type browser struct {
	t      *testing.T
	env    *testEnv
	client *http.Client
}

func (e *testEnv) browser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &browser{t: t, env: e, client: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.env.srv.URL + "/")
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Get(b.env.base + path)
	if err != nil {
		b.t.Fatalf("GET %s: %v", path, err)
	}
	return resp, readBody(b.t, resp)
}

// postJSON posts a form and asks for the snapshot back.
func (b *browser) postJSON(path string, form url.Values) (*http.Response, tutor.Snapshot) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodPost, b.env.base+path, strings.NewReader(form.Encode()))
	if err != nil {
		b.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CSRF-Token", b.cookie(csrfCookieName))
	resp, err := b.client.Do(req)
	if err != nil {
		b.t.Fatalf("POST %s: %v", path, err)
	}
	body := readBody(b.t, resp)
	var snap tutor.Snapshot
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusConflict {
		_ = json.Unmarshal([]byte(body), &snap)
	}
	return resp, snap
}

func (b *browser) session() tutor.Snapshot {
	b.t.Helper()
	_, body := b.get("/session")
	var snap tutor.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		b.t.Fatalf("decode session: %v\n%s", err, body)
	}
	return snap
}

// settle polls the session until no evaluator call is outstanding.
func (b *browser) settle() tutor.Snapshot {
	b.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s := b.session()
		if s.Verdict.Kind != tutor.VerdictPending && s.Explanation != tutor.ExplanationPending {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	b.t.Fatal("session did not settle")
	return tutor.Snapshot{}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "")
	resp, body := env.browser(t).get("/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("healthz = %d %s", resp.StatusCode, body)
	}
}

func TestHealthzReportsFailedCheck(t *testing.T) {
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	reg := tutor.NewRegistry(cat, tutor.Config{}, tutor.RegistryOptions{})
	t.Cleanup(reg.Close)
	h := New(reg, model.TutorConfig{}, "m", WithHealthCheck("cache", func(context.Context) error {
		return errors.New("connection refused")
	}))
	r := chi.NewRouter()
	h.Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestIndexRedirectsToActiveLesson(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)

	resp, _ := b.get("/")
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/lessons/getting_started" {
		t.Errorf("Location = %q", loc)
	}

	b.get("/lessons/wire")
	resp, _ = b.get("/")
	if loc := resp.Header.Get("Location"); loc != "/lessons/wire" {
		t.Errorf("Location after selecting wire = %q", loc)
	}
}

func TestLessonPage(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)

	resp, body := b.get("/lessons/wire")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{"Simple Wire", "solution.v", "test-model", `name="csrf_token"`} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if b.cookie(workspaceCookieName) == "" || b.cookie(csrfCookieName) == "" {
		t.Error("workspace and csrf cookies should be set")
	}

	resp, _ = b.get("/lessons/no_such_lesson")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown lesson status = %d", resp.StatusCode)
	}
}

func TestRevisitingActiveLessonKeepsSession(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)
	b.get("/lessons/wire")
	b.postJSON("/lessons/wire/code", url.Values{"code": {"assign out = in;"}})

	b.get("/lessons/wire")
	if s := b.session(); s.Code != "assign out = in;" {
		t.Errorf("code after revisit = %q", s.Code)
	}

	b.get("/lessons/not_gate")
	b.get("/lessons/wire")
	if s := b.session(); s.Code == "assign out = in;" {
		t.Error("switching lessons should reset the buffer")
	}
}

func TestCheckRevealFlow(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)
	b.get("/lessons/wire")

	for i := 1; i <= 3; i++ {
		resp, _ := b.postJSON("/lessons/wire/check", url.Values{"code": {"attempt\r\n"}})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("check %d status = %d", i, resp.StatusCode)
		}
		s := b.settle()
		if s.Verdict.Kind != tutor.VerdictFailure || s.FailureStreak != i {
			t.Fatalf("after check %d: verdict=%s streak=%d", i, s.Verdict.Kind, s.FailureStreak)
		}
		if i < 3 {
			if resp, _ := b.postJSON("/lessons/wire/reveal", nil); resp.StatusCode != http.StatusConflict {
				t.Errorf("reveal after %d failures status = %d", i, resp.StatusCode)
			}
		}
	}

	if got := env.eval.submitted(); got[0] != "attempt\n" {
		t.Errorf("submitted code = %q, want CRLF normalized", got[0])
	}

	resp, s := b.postJSON("/lessons/wire/reveal", nil)
	if resp.StatusCode != http.StatusOK || !s.SolutionRevealed || s.Solution == "" {
		t.Fatalf("reveal = %d %+v", resp.StatusCode, s)
	}

	env.eval.mu.Lock()
	env.eval.pass = true
	env.eval.mu.Unlock()
	b.postJSON("/lessons/wire/check", nil)
	s = b.settle()
	if s.Verdict.Kind != tutor.VerdictSuccess || s.FailureStreak != 0 || s.SolutionRevealed {
		t.Errorf("after success: %+v", s)
	}
}

func TestExplain(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)
	b.get("/lessons/wire")

	for range 2 {
		if resp, _ := b.postJSON("/lessons/wire/explain", nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("explain status = %d", resp.StatusCode)
		}
	}
	s := b.settle()
	if s.Explanation != tutor.ExplanationReady || s.ExplanationText != "All about Simple Wire" {
		t.Errorf("explanation = %s %q", s.Explanation, s.ExplanationText)
	}
}

func TestCommandForInactiveLessonConflicts(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)
	b.get("/lessons/wire")
	b.get("/lessons/not_gate")

	for _, action := range []string{"code", "check", "explain", "reveal"} {
		resp, _ := b.postJSON("/lessons/wire/"+action, url.Values{"code": {"x"}})
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("%s on inactive lesson status = %d, want 409", action, resp.StatusCode)
		}
	}
	if s := b.session(); s.LessonID != "not_gate" || s.Verdict.Kind != tutor.VerdictNone || s.Code == "x" {
		t.Errorf("active session disturbed: %+v", s)
	}
	if got := env.eval.submitted(); len(got) != 0 {
		t.Errorf("verifier called for inactive lesson with %q", got)
	}
}

func TestEditsAfterCheckSurviveReload(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)
	_, page := b.get("/lessons/wire")

	m := regexp.MustCompile(`data-save="([^"]+)"`).FindStringSubmatch(page)
	if m == nil {
		t.Fatal("editor form has no save endpoint")
	}
	saveURL := m[1]

	b.postJSON("/lessons/wire/check", url.Values{"code": {"attempt"}})
	resp, s := b.postJSON(saveURL, url.Values{"code": {"draft after submit"}})
	if resp.StatusCode != http.StatusOK || s.Code != "draft after submit" {
		t.Fatalf("save = %d %q", resp.StatusCode, s.Code)
	}

	b.settle()
	_, page = b.get("/lessons/wire")
	if !strings.Contains(page, "draft after submit") {
		t.Error("reloaded page lost the saved draft")
	}
	if got := env.eval.submitted(); len(got) != 1 || got[0] != "attempt" {
		t.Errorf("submitted = %q, want [attempt]", got)
	}
}

func TestCSRF(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)
	b.get("/lessons/wire")

	tests := []struct {
		name  string
		field string
		want  int
	}{
		{"missing", "", http.StatusForbidden},
		{"wrong", "not-the-token", http.StatusForbidden},
		{"valid", b.cookie(csrfCookieName), http.StatusSeeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{"code": {"module m; endmodule"}}
			if tt.field != "" {
				form.Set(csrfFieldName, tt.field)
			}
			resp, err := b.client.PostForm(env.base+"/lessons/wire/code", form)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == http.StatusSeeOther && resp.Header.Get("Location") != "/lessons/wire" {
				t.Errorf("Location = %q", resp.Header.Get("Location"))
			}
		})
	}
}

func TestCSRFTokenStableAcrossGets(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)
	b.get("/lessons/wire")
	first := b.cookie(csrfCookieName)
	b.get("/session")
	if got := b.cookie(csrfCookieName); got != first {
		t.Error("csrf token rotated on a safe request")
	}
}

func TestWorkspacesAreIsolated(t *testing.T) {
	env := newTestEnv(t, "")
	alice, bob := env.browser(t), env.browser(t)
	alice.get("/lessons/wire")
	bob.get("/lessons/dff")

	alice.postJSON("/lessons/wire/check", url.Values{"code": {"x"}})
	alice.settle()

	if s := bob.session(); s.LessonID != "dff" || s.FailureStreak != 0 {
		t.Errorf("bob's session changed: %+v", s)
	}
	if env.reg.Len() != 2 {
		t.Errorf("workspaces = %d, want 2", env.reg.Len())
	}
	if alice.cookie(workspaceCookieName) == bob.cookie(workspaceCookieName) {
		t.Error("browsers share a workspace id")
	}
}

func TestBasePath(t *testing.T) {
	env := newTestEnv(t, "/veripop")
	b := env.browser(t)

	resp, _ := b.get("/")
	if loc := resp.Header.Get("Location"); loc != "/veripop/lessons/getting_started" {
		t.Errorf("Location = %q", loc)
	}
	_, body := b.get("/lessons/wire")
	if !strings.Contains(body, `action="/veripop/lessons/wire/check"`) {
		t.Error("form actions should carry the base path")
	}
}

func TestSessionWebsocket(t *testing.T) {
	env := newTestEnv(t, "")
	b := env.browser(t)
	b.get("/lessons/wire")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.base, "http") + "/session/ws"
	header := http.Header{}
	header.Set("Cookie", workspaceCookieName+"="+b.cookie(workspaceCookieName))
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var snap tutor.Snapshot
	if err := wsjson.Read(ctx, conn, &snap); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if snap.LessonID != "wire" {
		t.Fatalf("initial snapshot lesson = %q", snap.LessonID)
	}

	b.postJSON("/lessons/wire/explain", nil)
	for snap.Explanation != tutor.ExplanationReady {
		if err := wsjson.Read(ctx, conn, &snap); err != nil {
			t.Fatalf("read update: %v", err)
		}
	}
	if snap.ExplanationText != "All about Simple Wire" {
		t.Errorf("pushed explanation = %q", snap.ExplanationText)
	}
}
