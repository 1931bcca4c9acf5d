package app

import (
	"net/http"
	"net/url"
	"os"
	"strings"
)

// The service authenticates with an HttpOnly access_token cookie. A CLI
// process dies between invocations, so the cookie value is parked in a
// state file and pushed back into the jar on startup.

func (app *App) restoreSession() {
	raw, err := os.ReadFile(app.cfg.StateFile)
	if err != nil {
		return
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return
	}

	base, err := url.Parse(app.cfg.BaseURL)
	if err != nil {
		return
	}
	app.client.HTTPClient.Jar.SetCookies(base, []*http.Cookie{{
		Name:  "access_token",
		Value: token,
		Path:  "/",
	}})
}

func (app *App) saveSession() error {
	base, err := url.Parse(app.cfg.BaseURL)
	if err != nil {
		return err
	}
	for _, cookie := range app.client.HTTPClient.Jar.Cookies(base) {
		if cookie.Name == "access_token" {
			return os.WriteFile(app.cfg.StateFile, []byte(cookie.Value), 0o600)
		}
	}
	// No cookie means the session is gone. Drop the state file too.
	return app.clearSession()
}

func (app *App) clearSession() error {
	err := os.Remove(app.cfg.StateFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
