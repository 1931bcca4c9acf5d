package authtest

import (
	"encoding/json"
	"net/http"

	"github.com/pquerna/otp/totp"
)

type tokenPayload struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type accountView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	IsActive    bool   `json:"is_active"`
	TOTPEnabled bool   `json:"totp_enabled"`
}

func viewOf(a Account) accountView {
	return accountView{
		ID:          a.ID,
		Email:       a.Email,
		Role:        a.Role,
		IsActive:    a.IsActive,
		TOTPEnabled: a.TOTPEnabled,
	}
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid form body")
		return
	}
	email := r.PostFormValue("username")
	password := r.PostFormValue("password")

	a, err := s.store.GetAccountByEmail(r.Context(), email)
	if err != nil || !verifyPassword(password, a.PasswordHash) {
		s.log.Debug("login rejected", "email", email)
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	if a.TOTPEnabled {
		verification, err := s.mintToken(a.Email, useTotp, totpTokenTTL)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "failed to mint token")
			return
		}
		writeJSON(w, http.StatusOK, tokenPayload{AccessToken: verification, TokenType: "totp"})
		return
	}

	session, err := s.mintToken(a.Email, useSession, sessionTokenTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to mint token")
		return
	}
	setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, tokenPayload{AccessToken: session, TokenType: "bearer"})
}

func (s *Server) handleToken2FA(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken string `json:"access_token"`
		Code        string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid body")
		return
	}

	claims, err := s.parseToken(body.AccessToken, useTotp)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	a, err := s.store.GetAccountByEmail(r.Context(), claims.Subject)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	if !totp.Validate(body.Code, a.TOTPSecret) {
		writeDetail(w, http.StatusUnauthorized, "Invalid 2FA code")
		return
	}

	// The verification token is one shot. A correct code spends it even if
	// a second request with the same token races in.
	if !s.consumeJTI(claims.ID) {
		writeDetail(w, http.StatusUnauthorized, "Invalid 2FA code")
		return
	}

	session, err := s.mintToken(a.Email, useSession, sessionTokenTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "failed to mint token")
		return
	}
	setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, tokenPayload{AccessToken: session, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	a := s.currentAccount(r)
	if a == nil {
		writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*a))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
}
