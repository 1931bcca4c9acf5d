// Package authtest provides an in-process Kombuchalyzer auth service backed
// by an in-memory SQLite database. Tests stand one up behind
// httptest.NewServer and point a real client at it, so the full login, TOTP
// and roster flows are exercised over HTTP instead of against stubs.
package authtest

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"github.com/kombuchalyzer/kbclient/internal/slogx"
)

const totpIssuer = "Kombuchalyzer"

// Server routes the same API surface as the production service.
type Server struct {
	store  *Store
	secret []byte
	log    *slog.Logger

	mu       sync.Mutex
	consumed map[string]struct{} // jti of spent intermediate tokens
}

type Option func(*Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// NewServer creates a server over the given store with a random signing
// secret, so tokens from one test server are worthless against another.
func NewServer(store *Store, opts ...Option) *Server {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}

	s := &Server{
		store:    store,
		secret:   secret,
		log:      slogx.Discard(),
		consumed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/token", s.handleToken)
	mux.HandleFunc("POST /api/auth/token-2fa", s.handleToken2FA)
	mux.HandleFunc("GET /api/auth/me", s.handleMe)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/otp/generate", s.handleOTPGenerate)
	mux.HandleFunc("POST /api/auth/otp/enable", s.handleOTPEnable)
	mux.HandleFunc("POST /api/auth/otp/disable", s.handleOTPDisable)

	mux.HandleFunc("GET /api/admin/user/all", s.handleAdminList)
	mux.HandleFunc("GET /api/admin/user/{$}", s.handleAdminGet)
	mux.HandleFunc("POST /api/admin/user/{$}", s.handleAdminCreate)
	mux.HandleFunc("DELETE /api/admin/user/{id}", s.handleAdminDelete)

	return slogx.HTTPMiddleware(s.log)(mux)
}

// Seed inserts an account directly into the store and returns it. The
// password is stored bcrypt-hashed the same way the create endpoint does it.
func (s *Server) Seed(ctx context.Context, email, password, role string) (Account, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return Account{}, err
	}

	a := Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// SeedWithTOTP inserts an account with TOTP already enrolled and returns the
// shared secret so the caller can mint valid codes.
func (s *Server) SeedWithTOTP(ctx context.Context, email, password, role string) (Account, string, error) {
	a, err := s.Seed(ctx, email, password, role)
	if err != nil {
		return Account{}, "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: email,
	})
	if err != nil {
		return Account{}, "", err
	}

	if err := s.store.SetTOTP(ctx, a.ID, key.Secret(), true); err != nil {
		return Account{}, "", err
	}
	a.TOTPSecret = key.Secret()
	a.TOTPEnabled = true
	return a, key.Secret(), nil
}

// consumeJTI marks an intermediate token as spent. Returns false when the
// token was already used.
func (s *Server) consumeJTI(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, used := s.consumed[jti]; used {
		return false
	}
	s.consumed[jti] = struct{}{}
	return true
}

// currentAccount resolves the session cookie to a stored account. Returns
// nil when the request carries no valid session.
func (s *Server) currentAccount(r *http.Request) *Account {
	cookie, err := r.Cookie("access_token")
	if err != nil {
		return nil
	}
	claims, err := s.parseToken(cookie.Value, useSession)
	if err != nil {
		return nil
	}
	a, err := s.store.GetAccountByEmail(r.Context(), claims.Subject)
	if err != nil {
		return nil
	}
	return &a
}
