// internal/handlers/user.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/parlorkit/parlor/internal/auth"
	"github.com/parlorkit/parlor/internal/database"
	"github.com/parlorkit/parlor/internal/models"
)

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// CreateUserHandler registers a new account. Duplicate emails get a 409.
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Kind: "bad_request", Message: "invalid payload"})
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, apiError{Kind: "bad_request", Message: "email and password are required"})
		return
	}

	user := models.User{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	}
	if err := database.CreateUser(r.Context(), &user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			writeError(w, http.StatusConflict, apiError{Kind: "email_taken", Message: "email already exists"})
			return
		}
		s.Logger.WithError(err).Error("create user failed")
		writeError(w, http.StatusInternalServerError, apiError{Kind: "internal", Message: "error creating user"})
		return
	}

	user.Password = ""
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// LoginHandler verifies credentials and returns a signed JWT, also set as an
// auth_token cookie.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Kind: "bad_request", Message: "invalid payload"})
		return
	}

	token, err := database.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusForbidden, apiError{Kind: "invalid_credentials", Message: "invalid credentials"})
		return
	}

	setAuthCookie(w, token)
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// GuestHandler mints a guest identity without an account. The returned token
// is the caller's permanent key to any seats it takes.
func (s *Server) GuestHandler(w http.ResponseWriter, r *http.Request) {
	guestToken, err := auth.NewGuestToken()
	if err != nil {
		s.Logger.WithError(err).Error("guest token generation failed")
		writeError(w, http.StatusInternalServerError, apiError{Kind: "internal", Message: "internal error"})
		return
	}
	jwtStr, err := auth.CreateJWT(auth.KindGuest, guestToken)
	if err != nil {
		s.Logger.WithError(err).Error("guest jwt failed")
		writeError(w, http.StatusInternalServerError, apiError{Kind: "internal", Message: "internal error"})
		return
	}

	setAuthCookie(w, jwtStr)
	writeJSON(w, http.StatusOK, map[string]string{
		"guest_token": guestToken,
		"token":       jwtStr,
	})
}
