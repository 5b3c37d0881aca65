package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-chi/chi/v5"
	"github.com/pavelanni/examprep/internal/handler/views"
	"github.com/pavelanni/examprep/internal/model"
)

func (h *Handler) renderAdminUsers(w http.ResponseWriter, r *http.Request, status int, msg string) {
	users, err := h.store.ListUsers()
	if err != nil {
		slog.Error("failed to list users", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render(w, r, status, views.AdminUsersPage(users, msg))
}

func (h *Handler) handleAdminUsersPage(w http.ResponseWriter, r *http.Request) {
	h.renderAdminUsers(w, r, http.StatusOK, "")
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	displayName := strings.TrimSpace(r.FormValue("display_name"))
	password := r.FormValue("password")
	role := model.UserRole(r.FormValue("role"))

	if username == "" || password == "" {
		h.renderAdminUsers(w, r, http.StatusBadRequest, "username and password required")
		return
	}
	if role != model.UserRoleAdmin {
		role = model.UserRoleStudent
	}

	existing, err := h.store.GetUserByUsername(username)
	if err != nil {
		slog.Error("failed to look up user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		h.renderAdminUsers(w, r, http.StatusConflict, "user "+username+" already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if displayName == "" {
		displayName = username
	}

	_, err = h.store.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		slog.Error("failed to create user", "error", err)
		http.Error(w, "failed to create user: "+err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "userID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	if me := model.UserFromContext(r.Context()); me != nil && me.ID == id {
		h.renderAdminUsers(w, r, http.StatusBadRequest, "cannot deactivate yourself")
		return
	}

	if err := h.store.ToggleUserActive(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to toggle user active", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	password := r.FormValue("password")
	if password == "" {
		h.renderAdminUsers(w, r, http.StatusBadRequest, "password required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := h.store.UpdatePassword(id, string(hash)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to update password", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("password reset", "id", id)

	http.Redirect(w, r, h.path("/admin/users"), http.StatusSeeOther)
}
