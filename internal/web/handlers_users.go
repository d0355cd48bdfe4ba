package web

import (
	"net/http"

	"github.com/JonMunkholm/csvportal/internal/core"
	"github.com/go-chi/chi/v5"
)

type createUserRequest struct {
	Username string    `json:"username"`
	Role     core.Role `json:"role"`
	Password string    `json:"password"`
}

type updateUserRequest struct {
	Role     *core.Role `json:"role"`
	IsActive *bool      `json:"isActive"`
	Password *string    `json:"password"`
}

type usersResponse struct {
	Users []core.UserInfo `json:"users"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if users == nil {
		users = []core.UserInfo{}
	}
	writeJSON(w, usersResponse{Users: users})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, user)
}

// handleCreateUser returns the generated password once when none was given.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		respondError(w, r, err)
		return
	}

	created, err := s.service.CreateUser(r.Context(), core.CreateUserInput{
		Username: req.Username,
		Role:     req.Role,
		Password: req.Password,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := s.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), core.UpdateUserInput{
		Role:     req.Role,
		IsActive: req.IsActive,
		Password: req.Password,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, user)
}

// handleDeleteUser deactivates the account; users are never removed.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.DeactivateUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, user)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	reset, err := s.service.ResetPassword(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, reset)
}
