package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/pavelanni/examprep/internal/bank"
	"github.com/pavelanni/examprep/internal/handler/views"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/practice"
	"github.com/pavelanni/examprep/internal/session"
	"github.com/pavelanni/examprep/internal/store"
)

// Explainer produces an explanation for a question that has none.
type Explainer interface {
	Explain(ctx context.Context, q model.Question, chosen string) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	registry  *practice.Registry
	explainer Explainer
	config    model.AppConfig
	topics    []string
	cors      *cors.Cors
}

// New creates a new Handler. explainer may be nil.
func New(s *store.Store, reg *practice.Registry, explainer Explainer, cfg model.AppConfig) *Handler {
	if cfg.DefaultQuestions < 1 {
		cfg.DefaultQuestions = 5
	}
	if cfg.MaxQuestions < 1 {
		cfg.MaxQuestions = 100
	}
	return &Handler{
		store:     s,
		registry:  reg,
		explainer: explainer,
		config:    cfg,
		topics:    bank.Topics(reg.Bank()),
		cors: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/login", h.handleLoginPage)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Get("/lang", h.handleSetLanguage)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/", h.handleIndex)
			r.Post("/test/generate", h.handleGenerate)
			r.Get("/test", h.handleTestPage)
			r.Post("/test/answer", h.handleAnswer)
			r.Post("/test/nav", h.handleNavigate)
			r.Post("/test/submit", h.handleSubmit)
			r.Post("/test/reset", h.handleReset)
			r.Get("/test/result", h.handleResult)
			r.Post("/test/explain", h.handleExplain)
			r.Get("/history", h.handleHistory)
			r.Get("/history/{resultID}", h.handleArchivedResult)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleAdminUsersPage)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
				r.Post("/users/{userID}/password", h.handleResetPassword)
			})
		})
	})

	r.Route("/api", h.apiRoutes)
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) state(r *http.Request) *practice.State {
	return h.registry.For(model.UserFromContext(r.Context()).ID)
}

func (h *Handler) maxQuestions() int {
	return max(1, min(len(h.registry.Bank()), h.config.MaxQuestions))
}

// render writes c with status. The component is rendered into a buffer
// first, so a failed render becomes a 500 instead of a truncated page.
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	templ.Handler(c,
		templ.WithStatus(status),
		templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
			slog.Error("render error", "path", r.URL.Path, "error", err)
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "internal error", http.StatusInternalServerError)
			})
		}),
	).ServeHTTP(w, r)
}

// form is the submitted new-test selection.
type form struct {
	topics model.TopicSelection
	modes  model.ModeFlags
	count  int
}

func (h *Handler) defaultForm() form {
	return form{
		topics: model.SelectAll(h.topics),
		modes:  model.AllModes(),
		count:  min(h.config.DefaultQuestions, h.maxQuestions()),
	}
}

func (h *Handler) parseForm(r *http.Request) form {
	f := form{topics: model.TopicSelection{}}
	allowed := model.SelectAll(h.topics)
	for _, t := range r.Form["topic"] {
		if allowed[t] {
			f.topics[t] = true
		}
	}
	for _, m := range r.Form["mode"] {
		f.modes.Set(model.Mode(m), true)
	}
	n, err := strconv.Atoi(r.FormValue("num_questions"))
	if err != nil {
		n = h.config.DefaultQuestions
	}
	f.count = min(max(n, 1), h.maxQuestions())
	return f
}

func (h *Handler) indexData(st *practice.State, f form) views.IndexData {
	counts := st.Counts()
	d := views.IndexData{
		NumQuestions: f.count,
		MaxQuestions: h.maxQuestions(),
		Available:    len(st.Candidates(f.modes, f.topics)),
	}
	for _, t := range h.topics {
		d.Topics = append(d.Topics, views.TopicOption{Name: t, Count: counts.ByTopic[t], Checked: f.topics[t]})
	}
	for _, m := range model.Modes {
		d.Modes = append(d.Modes, views.ModeOption{Mode: m, Count: counts.ByMode[m], Checked: f.modes.Includes(m)})
	}
	_ = st.Snapshot(func(s *session.Session) error {
		d.Session = &views.SessionSummary{
			State:    s.State(),
			Total:    s.Len(),
			Answered: s.Answered(),
			Score:    s.Grade(),
		}
		return nil
	})
	return d
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.IndexPage(h.indexData(h.state(r), h.defaultForm())))
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	st := h.state(r)
	f := h.parseForm(r)

	if _, err := st.Generate(f.modes, f.topics, f.count); err != nil {
		if errors.Is(err, session.ErrEmptyCandidates) {
			d := h.indexData(st, f)
			d.Error = appI18n.T(r.Context(), "NoQuestionsMatch")
			render(w, r, http.StatusUnprocessableEntity, views.IndexPage(d))
			return
		}
		slog.Error("failed to generate test", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/test"), http.StatusSeeOther)
}

func (h *Handler) testData(st *practice.State) (views.TestData, error) {
	var d views.TestData
	err := st.Snapshot(func(s *session.Session) error {
		d.Item, _ = s.ItemAt(s.Position)
		d.Total = s.Len()
		d.Answered = s.Answered()
		d.Submitted = s.Submitted
		d.HasPrevious = s.Position > 0
		d.HasNext = s.Position < s.Len()-1
		return nil
	})
	if err != nil {
		return d, err
	}
	if !d.Item.Answered {
		d.LastAnswer, _ = st.LastAnswer(d.Item.Question.ID)
	}
	d.CanExplain = h.explainer != nil
	return d, nil
}

func (h *Handler) handleTestPage(w http.ResponseWriter, r *http.Request) {
	d, err := h.testData(h.state(r))
	if errors.Is(err, practice.ErrNoSession) {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.TestPage(d))
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	st := h.state(r)
	pos, err := strconv.Atoi(r.FormValue("position"))
	if err != nil {
		http.Error(w, "invalid position", http.StatusBadRequest)
		return
	}

	// A missing option must not be confused with an empty option text.
	if option := r.PostForm["option"]; len(option) > 0 {
		_, err = st.Answer(pos, option[0])
	} else {
		err = session.ErrInvalidChoice
	}
	switch {
	case errors.Is(err, practice.ErrNoSession):
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	case errors.Is(err, session.ErrInvalidChoice), errors.Is(err, session.ErrInvalidPosition):
		d, derr := h.testData(st)
		if derr != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		d.Error = err.Error()
		render(w, r, http.StatusBadRequest, views.TestPage(d))
		return
	case err != nil:
		slog.Error("failed to record answer", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/test"), http.StatusSeeOther)
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	st := h.state(r)
	var err error
	if p := r.FormValue("position"); p != "" {
		pos, perr := strconv.Atoi(p)
		if perr != nil {
			http.Error(w, "invalid position", http.StatusBadRequest)
			return
		}
		err = st.Goto(pos)
	} else {
		err = st.Navigate(model.Direction(r.FormValue("direction")))
	}
	if errors.Is(err, practice.ErrNoSession) {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.path("/test"), http.StatusSeeOther)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	sub, err := h.registry.For(user.ID).SubmitTest()
	if errors.Is(err, practice.ErrNoSession) {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if sub.Newly {
		sub.Result.UserID = user.ID
		if err := h.archive(sub); err != nil {
			slog.Error("failed to archive test", "user_id", user.ID, "error", err)
		} else {
			slog.Info("test submitted", "user", user.Username, "correct", sub.Result.Score.Correct, "total", sub.Result.Score.Total)
		}
	}
	http.Redirect(w, r, h.path("/test/result"), http.StatusSeeOther)
}

// archive stores a submitted test.
func (h *Handler) archive(sub practice.Submission) error {
	_, err := h.store.SaveResult(sub.Result, sub.Items)
	return err
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.state(r).Reset()
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	d := views.ResultData{CanExplain: h.explainer != nil}
	err := h.state(r).Snapshot(func(s *session.Session) error {
		d.Score = s.Grade()
		d.Items = s.Review()
		return nil
	})
	if errors.Is(err, practice.ErrNoSession) {
		http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.ResultPage(d))
}

func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	if h.explainer == nil {
		http.Error(w, "explanations are disabled", http.StatusNotFound)
		return
	}
	pos, err := strconv.Atoi(r.FormValue("position"))
	if err != nil {
		http.Error(w, "invalid position", http.StatusBadRequest)
		return
	}

	var item session.Item
	err = h.state(r).Snapshot(func(s *session.Session) error {
		it, ok := s.ItemAt(pos)
		if !ok {
			return session.ErrInvalidPosition
		}
		item = it
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The LLM call runs outside the state lock.
	text := item.Explanation
	if text == "" {
		text, err = h.explainer.Explain(r.Context(), item.Question, item.Chosen)
		if err != nil {
			slog.Error("explanation failed", "question_id", item.Question.ID, "error", err)
			text = ""
		}
	}
	render(w, r, http.StatusOK, views.Explanation(text))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	results, err := h.store.ListResults(user.ID)
	if err != nil {
		slog.Error("failed to list results", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render(w, r, http.StatusOK, views.HistoryPage(results))
}

func (h *Handler) handleArchivedResult(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "resultID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid result ID", http.StatusBadRequest)
		return
	}
	res, err := h.store.GetResult(id)
	if err != nil {
		slog.Error("failed to get result", "result_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// Other users' results are reported as missing.
	if res == nil || (res.UserID != user.ID && user.Role != model.UserRoleAdmin) {
		http.NotFound(w, r)
		return
	}
	items, err := h.store.GetResultItems(id)
	if err != nil {
		slog.Error("failed to get result items", "result_id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render(w, r, http.StatusOK, views.ArchivedPage(*res, items))
}
