package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examprep/internal/handler/views"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/store"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
	langCookieName    = "lang"
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, httpOnly bool, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cookiePath(),
		MaxAge:   maxAge,
		HttpOnly: httpOnly,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// issueCSRFToken sets a fresh CSRF cookie and returns its value.
func (h *Handler) issueCSRFToken(w http.ResponseWriter) (string, error) {
	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}
	h.setCookie(w, csrfCookieName, token, false, 0)
	return token, nil
}

// csrfMiddleware implements the double-submit cookie pattern. The token is
// issued on the first GET and replaced at login and logout only, so that
// fragments posted in the background do not invalidate the forms on the page.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(csrfCookieName)
		hasCookie := err == nil && cookie.Value != ""

		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			token := ""
			if hasCookie {
				token = cookie.Value
			} else {
				token, err = h.issueCSRFToken(w)
				if err != nil {
					slog.Error("failed to generate CSRF token", "error", err)
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
			}
			ctx := model.ContextWithCSRFToken(r.Context(), token)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if !hasCookie {
			slog.Warn("CSRF cookie missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		formToken := r.FormValue("csrf_token")
		if formToken == "" {
			slog.Warn("CSRF form token missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		if subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch")
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}

		ctx := model.ContextWithCSRFToken(r.Context(), cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authenticate returns the active user behind the session cookie, or nil.
func (h *Handler) authenticate(r *http.Request) *model.User {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	authSess, err := h.store.GetAuthSession(cookie.Value)
	if err != nil {
		slog.Error("failed to get auth session", "error", err)
		return nil
	}
	if authSess == nil {
		return nil
	}

	user, err := h.store.GetUserByID(authSess.UserID)
	if err != nil || user == nil || !user.Active {
		return nil
	}
	return user
}

// requireAuth is middleware that checks for a valid session cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.authenticate(r)
		if user == nil {
			h.redirectToLogin(w, r)
			return
		}
		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	loginPath := h.path("/login")
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, views.LoginPage(""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	user, err := h.store.GetUserByUsername(username)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		h.renderLoginError(w, r)
		return
	}
	if user == nil || !user.Active {
		h.renderLoginError(w, r)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		h.renderLoginError(w, r)
		return
	}

	token, err := h.store.CreateAuthSession(user.ID, store.DefaultAuthSessionTTL)
	if err != nil {
		slog.Error("failed to create auth session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if _, err := h.issueCSRFToken(w); err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.setCookie(w, sessionCookieName, token, true, 0)
	slog.Info("user logged in", "user", user.Username)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		_ = h.store.DeleteAuthSession(cookie.Value)
	}
	h.setCookie(w, sessionCookieName, "", true, -1)
	if _, err := h.issueCSRFToken(w); err != nil {
		slog.Error("failed to generate CSRF token", "error", err)
	}
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

func (h *Handler) renderLoginError(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusUnauthorized, views.LoginPage(appI18n.T(r.Context(), "LoginError")))
}

// handleSetLanguage stores the chosen UI language in a cookie.
func (h *Handler) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := appI18n.Match(r.URL.Query().Get("l"))
	h.setCookie(w, langCookieName, lang, false, 365*24*3600)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}
