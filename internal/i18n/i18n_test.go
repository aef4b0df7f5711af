package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		lang, id, want string
	}{
		{"en", "AppTitle", "VeriPop"},
		{"en", "SubmitSolution", "Submit Solution"},
		{"ru", "SubmitSolution", "Отправить решение"},
		{"ru", "ReferenceSolution", "Эталонное решение"},
	}
	for _, tt := range tests {
		t.Run(tt.lang+"/"+tt.id, func(t *testing.T) {
			ctx := initLang(t, tt.lang)
			if got := T(ctx, tt.id); got != tt.want {
				t.Errorf("T(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestPluralTranslation(t *testing.T) {
	tests := []struct {
		lang  string
		count int
		want  string
	}{
		{"en", 1, "Show Correct Solution (1 failed attempt)"},
		{"en", 3, "Show Correct Solution (3 failed attempts)"},
		{"ru", 3, "Показать решение (3 неудачные попытки)"},
		{"ru", 5, "Показать решение (5 неудачных попыток)"},
		{"ru", 21, "Показать решение (21 неудачная попытка)"},
	}
	for _, tt := range tests {
		ctx := initLang(t, tt.lang)
		if got := Tp(ctx, "ShowSolution", tt.count); got != tt.want {
			t.Errorf("Tp(%s, %d) = %q, want %q", tt.lang, tt.count, got, tt.want)
		}
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")
	got := Td(ctx, "LessonNofM", map[string]any{"N": 2, "Total": 24})
	if got != "Lesson 2 of 24" {
		t.Errorf("Td(LessonNofM) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")
	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInitRejectsBadLanguage(t *testing.T) {
	if err := Init("not a language!"); err == nil {
		t.Error("expected error")
	}
}

func TestNegotiate(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		header, want string
	}{
		{"", "en"},
		{"ru-RU,ru;q=0.9,en;q=0.8", "ru"},
		{"de-DE", "en"},
		{"fr;q=0.9,ru;q=0.5", "ru"},
	}
	for _, tt := range tests {
		if got := Negotiate(tt.header); got.String() != tt.want {
			t.Errorf("Negotiate(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}
}

func TestMiddleware(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatal(err)
	}
	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "SaveCode")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got != "Сохранить" {
		t.Errorf("translated = %q", got)
	}
	if cl := rec.Header().Get("Content-Language"); cl != "ru" {
		t.Errorf("Content-Language = %q", cl)
	}
}
