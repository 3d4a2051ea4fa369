package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/fixed"
	"github.com/alanyoungcy/tradecore/internal/gateway/middleware"
)

const minPasswordLen = 8

// AuthHandler serves signup and signin.
type AuthHandler struct {
	users          domain.UserStore
	jwtSecret      []byte
	initialBalance fixed.Money
	logger         *slog.Logger
}

// NewAuthHandler creates an AuthHandler. New accounts start with the given
// balance.
func NewAuthHandler(users domain.UserStore, jwtSecret []byte, initialBalance fixed.Money, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		users:          users,
		jwtSecret:      jwtSecret,
		initialBalance: initialBalance,
		logger:         logHandler(logger, "auth"),
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c credentialsRequest) validate() string {
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return "invalid email"
	}
	if len(c.Password) < minPasswordLen {
		return "password must be at least 8 characters"
	}
	return ""
}

// Signup handles POST /api/v1/auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input format")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "hash password", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user, err := h.users.Create(r.Context(), req.Email, string(hash), h.initialBalance)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusBadRequest, "user already exists")
			return
		}
		h.logger.ErrorContext(r.Context(), "create user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"msg":    "signup successful",
		"userId": user.ID,
	})
}

// Signin handles POST /api/v1/auth/signin.
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid input format")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "incorrect credentials")
			return
		}
		h.logger.ErrorContext(r.Context(), "get user", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusBadRequest, "incorrect credentials")
		return
	}

	token, err := middleware.IssueToken(h.jwtSecret, user.ID, time.Now())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "issue token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"msg":   "signin successful",
		"token": token,
	})
}
