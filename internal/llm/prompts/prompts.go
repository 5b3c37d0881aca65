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

	"github.com/pavelanni/examprep/internal/model"
)

// FS holds the built-in explanation templates.
//
//go:embed templates/*.txt
var FS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxFieldRunes = 4000

// PromptVariant selects how much detail an explanation carries.
type PromptVariant string

const (
	// PromptBrief asks for one or two sentences.
	PromptBrief PromptVariant = "brief"
	// PromptStandard is the default variant.
	PromptStandard PromptVariant = "standard"
	// PromptDetailed walks through every option.
	PromptDetailed PromptVariant = "detailed"
)

var variants = []PromptVariant{PromptBrief, PromptStandard, PromptDetailed}

var (
	loadOnce         sync.Once
	loadErr          error
	explainTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if PromptVariant(v) == known {
			return true
		}
	}
	return false
}

// OptionData is one lettered option in an explanation prompt.
type OptionData struct {
	Letter string
	Text   string
}

// ExplainData holds template data for explanation prompts.
type ExplainData struct {
	Topic         string
	QuestionText  string
	Options       []OptionData
	CorrectLetter string
	CorrectText   string
	Chosen        string
}

// Load parses the explanation templates found in fsys under templates/.
// Only the first call does any work.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		explainTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range variants {
			file := "templates/explain_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("explain_" + string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			explainTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildExplainPrompt renders the explanation prompt for q. chosen is the
// option the student picked, or "" when the question was not answered.
func BuildExplainPrompt(variant PromptVariant, q model.Question, chosen string) (string, error) {
	if explainTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := explainTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := ExplainData{
		Topic:         sanitize(q.Topic),
		QuestionText:  sanitize(q.Text),
		CorrectLetter: q.AnswerLetter(),
		CorrectText:   sanitize(q.CorrectOption()),
		Chosen:        sanitizeChosen(chosen),
	}
	for i, o := range q.Options {
		data.Options = append(data.Options, OptionData{
			Letter: string(rune('A' + i)),
			Text:   sanitize(o),
		})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitize(s string) string {
	s = studentAnswerRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxFieldRunes {
		s = string([]rune(s)[:maxFieldRunes]) + " [truncated]"
	}
	return s
}

func sanitizeChosen(chosen string) string {
	chosen = sanitize(chosen)
	if chosen == "" {
		return "[No answer provided]"
	}
	return chosen
}
