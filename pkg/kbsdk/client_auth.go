package kbsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	tokenTypeBearer = "bearer"
	tokenTypeTotp   = "totp"
)

// Login exchanges the primary credentials for a session. A nil challenge
// means the session cookie is now valid; a non-nil challenge means the
// account requires a TOTP code and carries the intermediate token for
// CompleteTOTP. A rejected login is a KindInvalidCredentials *APIError with
// the server's detail, or "Login failed" if it gave none.
func (c *Client) Login(ctx context.Context, username, password string) (*TotpChallenge, error) {
	data := url.Values{
		"username": {username},
		"password": {password},
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/auth/token",
		strings.NewReader(data.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	)
	if err != nil {
		return nil, err
	}

	var token tokenResponse
	if err := decodeJSON(resp, &token, KindInvalidCredentials, "Login failed"); err != nil {
		return nil, err
	}

	if token.TokenType == tokenTypeTotp {
		return &TotpChallenge{IntermediateToken: token.AccessToken}, nil
	}
	return nil, nil
}

// CompleteTOTP finishes a two-factor login. On success the session cookie
// becomes authenticated; the intermediate token is single-use and must not
// be presented again.
func (c *Client) CompleteTOTP(ctx context.Context, intermediateToken, code string) error {
	payload, err := json.Marshal(map[string]string{
		"access_token": intermediateToken,
		"code":         code,
	})
	if err != nil {
		return &TransportError{Op: "marshal request", Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/auth/token-2fa",
		bytes.NewReader(payload),
		map[string]string{"Content-Type": "application/json"},
	)
	if err != nil {
		return err
	}

	return checkStatus(resp, KindInvalidTotpCode, "2FA verification failed")
}

// CurrentUser probes the session. It never fails: any transport error or
// non-2xx response means "no session" and returns nil, so it is safe to
// call before a session exists. It backs safety-critical UI gating and must
// not leave the caller stuck on an error path.
func (c *Client) CurrentUser(ctx context.Context) *User {
	resp, err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil
	}
	return &user
}

// Logout tells the service to clear the session cookie. It is best-effort:
// transport failures and error responses are swallowed, because logout is a
// local guarantee first and a remote notification second. The jar's cookie
// is expired by the service's Set-Cookie on success.
func (c *Client) Logout(ctx context.Context) {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
}
