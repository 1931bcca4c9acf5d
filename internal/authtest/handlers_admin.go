package authtest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

type accountPage struct {
	Total int           `json:"total"`
	Users []accountView `json:"users"`
}

// requireAdmin resolves the session cookie and rejects non-admin callers.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) *Account {
	a := s.currentAccount(r)
	if a == nil {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return nil
	}
	if a.Role != "admin" {
		writeDetail(w, http.StatusForbidden, "Not enough permissions")
		return nil
	}
	return a
}

func (s *Server) handleAdminList(w http.ResponseWriter, r *http.Request) {
	if s.requireAdmin(w, r) == nil {
		return
	}

	skip := intQuery(r, "skip", 0)
	limit := intQuery(r, "limit", 100)

	accounts, err := s.store.ListAccounts(r.Context(), skip, limit)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	total, err := s.store.CountAccounts(r.Context())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to count users")
		return
	}

	page := accountPage{Total: total, Users: make([]accountView, 0, len(accounts))}
	for _, a := range accounts {
		page.Users = append(page.Users, viewOf(a))
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleAdminGet(w http.ResponseWriter, r *http.Request) {
	if s.requireAdmin(w, r) == nil {
		return
	}

	id := r.URL.Query().Get("user_id")
	email := r.URL.Query().Get("user_email")
	if id == "" && email == "" {
		writeDetail(w, http.StatusBadRequest, "Either id or email must be provided")
		return
	}

	var a Account
	var err error
	if id != "" {
		a, err = s.store.GetAccountByID(r.Context(), id)
	} else {
		a, err = s.store.GetAccountByEmail(r.Context(), email)
	}
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(a))
}

func (s *Server) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	if s.requireAdmin(w, r) == nil {
		return
	}

	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Email == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "email is required")
		return
	}
	if body.Role == "" {
		body.Role = "user"
	}
	// An omitted password provisions a login-less account. Hashing a random
	// value keeps the column non-null without leaving a guessable login.
	if body.Password == "" {
		body.Password = uuid.NewString()
	}

	hash, err := hashPassword(body.Password)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	a := Account{
		ID:           uuid.NewString(),
		Email:        body.Email,
		PasswordHash: hash,
		Role:         body.Role,
		IsActive:     true,
	}
	if err := s.store.CreateAccount(r.Context(), a); err != nil {
		if errors.Is(err, ErrDuplicate) {
			writeDetail(w, http.StatusBadRequest, "User already exists")
			return
		}
		writeDetail(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(a))
}

func (s *Server) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	admin := s.requireAdmin(w, r)
	if admin == nil {
		return
	}

	id := r.PathValue("id")
	if admin.ID == id {
		writeDetail(w, http.StatusBadRequest, "Admin users cannot delete themselves")
		return
	}

	a, err := s.store.GetAccountByID(r.Context(), id)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if err := s.store.DeleteAccount(r.Context(), id); err != nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(a))
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
