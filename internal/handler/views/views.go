// Package views renders the HTML pages of the practice server.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/a-h/templ"

	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Functions that depend on the request are replaced per render in bind.
var baseFuncs = template.FuncMap{
	"T":      func(string) string { return "" },
	"Td":     func(string, ...any) string { return "" },
	"Tp":     func(string, int) string { return "" },
	"path":   func(string) string { return "" },
	"csrf":   func() string { return "" },
	"user":   func() *model.User { return nil },
	"letter": letter,
	"inc":    func(i int) int { return i + 1 },
	"percent": func(s model.Score) string {
		return fmt.Sprintf("%.0f", s.Percent())
	},
	"modeLabel": modeLabel,
}

var pages = template.Must(template.New("").Funcs(baseFuncs).ParseFS(templateFS, "templates/*.html"))

func letter(i int) string {
	return string(rune('A' + i))
}

func modeLabel(m model.Mode) string {
	switch m {
	case model.ModeUnused:
		return "ModeUnused"
	case model.ModeIncorrect:
		return "ModeIncorrect"
	case model.ModeCorrect:
		return "ModeCorrect"
	}
	return string(m)
}

func bind(ctx context.Context) template.FuncMap {
	bp := model.BasePathFromContext(ctx)
	return template.FuncMap{
		"T": func(id string) string { return appI18n.T(ctx, id) },
		"Td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				if k, ok := kv[i].(string); ok {
					data[k] = kv[i+1]
				}
			}
			return appI18n.Td(ctx, id, data)
		},
		"Tp":   func(id string, n int) string { return appI18n.Tp(ctx, id, n) },
		"path": func(p string) string { return bp + p },
		"csrf": func() string { return model.CSRFTokenFromContext(ctx) },
		"user": func() *model.User { return model.UserFromContext(ctx) },
	}
}

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		t, err := pages.Clone()
		if err != nil {
			return err
		}
		return t.Funcs(bind(ctx)).ExecuteTemplate(w, name, data)
	})
}

// LoginPage renders the login form. errMsg is shown above the form if set.
func LoginPage(errMsg string) templ.Component {
	return render("login", struct{ Error string }{errMsg})
}

// TopicOption is one topic checkbox of the new-test form.
type TopicOption struct {
	Name    string
	Count   int
	Checked bool
}

// ModeOption is one performance-mode checkbox of the new-test form.
type ModeOption struct {
	Mode    model.Mode
	Count   int
	Checked bool
}

// SessionSummary describes the user's live test on the index page.
type SessionSummary struct {
	State    model.SessionState
	Total    int
	Answered int
	Score    model.Score
}

// IndexData holds everything the new-test form needs.
type IndexData struct {
	Topics       []TopicOption
	Modes        []ModeOption
	NumQuestions int
	MaxQuestions int
	Available    int
	Error        string
	Session      *SessionSummary
}

// IndexPage renders the new-test form.
func IndexPage(d IndexData) templ.Component {
	return render("index", d)
}

// TestData holds the current question of a live test.
type TestData struct {
	Item        session.Item
	Total       int
	Answered    int
	Submitted   bool
	HasPrevious bool
	HasNext     bool
	CanExplain  bool
	// LastAnswer is the option chosen for this question in an earlier test.
	LastAnswer string
	Error      string
}

// TestPage renders the current question.
func TestPage(d TestData) templ.Component {
	return render("test", d)
}

// ResultData holds a graded test.
type ResultData struct {
	Score      model.Score
	Items      []session.Item
	CanExplain bool
}

// ResultPage renders the score and per-question review.
func ResultPage(d ResultData) templ.Component {
	return render("result", d)
}

// HistoryPage renders the archived tests of the current user.
func HistoryPage(results []model.TestResult) templ.Component {
	return render("history", struct{ Results []model.TestResult }{results})
}

// ArchivedPage renders one archived test with its items.
func ArchivedPage(r model.TestResult, items []model.ItemResult) templ.Component {
	return render("archived", struct {
		Result model.TestResult
		Items  []model.ItemResult
	}{r, items})
}

// Explanation renders the fragment returned by the explain endpoint.
// An empty text renders the "not available" message.
func Explanation(text string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<div class="explanation">`)
		if text != "" {
			b.WriteString("<strong>")
			b.WriteString(templ.EscapeString(appI18n.T(ctx, "Explanation")))
			b.WriteString(":</strong> ")
			b.WriteString(templ.EscapeString(text))
		} else {
			b.WriteString(templ.EscapeString(appI18n.T(ctx, "ExplainUnavailable")))
		}
		b.WriteString("</div>")
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// AdminUsersPage renders the user management page.
func AdminUsersPage(users []model.User, msg string) templ.Component {
	return render("admin_users", struct {
		Users   []model.User
		Message string
	}{users, msg})
}
