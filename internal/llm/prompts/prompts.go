package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/veripop/internal/model"
)

// FS holds the built-in prompt templates.
//
//go:embed templates/*.txt
var FS embed.FS

const maxCodeRunes = 10000

var (
	studentCodeRegex        = regexp.MustCompile(`(?i)</?\s*student-code\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a check prompt variant.
type PromptVariant string

const (
	// PromptStrict requires compilable, exact answers.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default check variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient accepts the right idea despite small mistakes.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce        sync.Once
	loadErr         error
	checkTemplates  map[PromptVariant]*template.Template
	explainTemplate *template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// CheckData holds template data for check prompts.
type CheckData struct {
	Title    string
	Category string
	Theory   string
	Solution string
}

// ExplainData holds template data for explanation prompts.
type ExplainData struct {
	Title  string
	Theory string
}

// Load parses prompt templates from fsys. Only the first call has any effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		checkTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			name := "templates/check_" + string(v) + ".txt"
			tmpl, err := parseFile(fsys, name)
			if err != nil {
				loadErr = err
				return
			}
			checkTemplates[v] = tmpl
		}

		explainTemplate, loadErr = parseFile(fsys, "templates/explain.txt")
	})
	return loadErr
}

func parseFile(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

// BuildCheckPrompt builds the system prompt for verifying an answer to lesson.
func BuildCheckPrompt(variant PromptVariant, lesson model.Lesson) (string, error) {
	if checkTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := checkTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, CheckData{
		Title:    lesson.Title,
		Category: string(lesson.Category),
		Theory:   lesson.Theory,
		Solution: lesson.SolutionCode,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildExplainPrompt builds the system prompt for explaining a lesson.
func BuildExplainPrompt(title, theory string) (string, error) {
	if explainTemplate == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	var buf bytes.Buffer
	if err := explainTemplate.Execute(&buf, ExplainData{Title: title, Theory: theory}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BuildSubmission wraps learner code for the user message of a check.
func BuildSubmission(code string) string {
	return "<student-code>\n" + sanitizeCode(code) + "\n</student-code>"
}

func sanitizeCode(code string) string {
	code = studentCodeRegex.ReplaceAllString(code, "")
	code = systemInstructionsRegex.ReplaceAllString(code, "")
	code = strings.TrimRight(code, " \t\r\n")

	if strings.TrimSpace(code) == "" {
		return "[No code provided]"
	}

	if utf8.RuneCountInString(code) > maxCodeRunes {
		runes := []rune(code)
		code = string(runes[:maxCodeRunes]) + "\n\n[Code truncated due to length]"
	}

	return code
}
