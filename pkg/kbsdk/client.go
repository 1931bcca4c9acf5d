package kbsdk

import (
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// Client is a client for the Kombuchalyzer service API. Sessions are
// cookie-based: the service sets an httponly session cookie on successful
// login, and the Client's jar attaches it to every subsequent request. The
// client never parses or stores a bearer token, except the short-lived TOTP
// intermediate token returned by Login, which lives only in the caller's
// memory for the duration of the login flow.
//
// Client itself is stateless apart from the cookie jar; the session state
// machine lives in internal/session.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client for the service at baseURL with a fresh cookie jar
// and the default transport timeout.
func New(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}
}

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.BaseURL + path
}
