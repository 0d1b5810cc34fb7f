package session_api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/utils"
)

// UserDirectory resolves the signing-in user and drops any cached copy of
// their document.
type UserDirectory interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	Invalidate(ctx context.Context, email string)
}

// Handler owns the station's sign-in lifecycle. The session gates the live
// surfaces and provides the default acting user for scans.
type Handler struct {
	Session *auth.Session
	Users   UserDirectory
	Logger  *logger.Logger
}

func NewHandler(session *auth.Session, users UserDirectory, log *logger.Logger) *Handler {
	return &Handler{Session: session, Users: users, Logger: log}
}

type signInRequest struct {
	Email string `json:"email"`
}

// SignIn handles POST /session. The cached user document is invalidated
// first, so a fresh sign-in always sees current permissions.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("email is required", ""))
		return
	}

	h.Users.Invalidate(r.Context(), email)
	user, err := h.Users.UserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("no account for "+email, ""))
			return
		}
		utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("sign-in temporarily unavailable", err.Error()))
		return
	}
	if user.Status != models.UserStatusActive {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("account is disabled", ""))
		return
	}

	h.Session.SignIn(user)
	if h.Logger != nil {
		h.Logger.Info("AUTH", "signed in "+email)
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("signed in", user))
}

// SignOut handles DELETE /session and drops the signed-out user's cache
// entry along with the session.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	if current := h.Session.Current(); current != nil {
		h.Users.Invalidate(r.Context(), current.Email)
	}
	h.Session.SignOut()
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("signed out", nil))
}

// Current handles GET /session.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	user := h.Session.Current()
	if user == nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("no user signed in", ""))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("current user", user))
}

// Require gates a route behind a settled sign-in. The request blocks on the
// session future until sign-in or client disconnect; live dashboards opened
// before the station signs in simply start streaming once it does.
func (h *Handler) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.Session.Wait(r.Context()); err != nil {
			utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("no user signed in", err.Error()))
			return
		}
		next(w, r)
	}
}
