// Package routeguard decides whether a navigation is admitted, redirected,
// or held pending, from the session's derived flags alone. The policies are
// pure functions so every navigation can consult them without network
// access; the middleware adapts them to net/http.
package routeguard

import (
	"net/http"

	"github.com/kombuchalyzer/kbclient/internal/slogx"
)

// Flags are the only inputs a guard may consult.
type Flags struct {
	IsLoading       bool
	IsAuthenticated bool
	IsAdmin         bool
}

// Decision is the outcome of evaluating a policy against Flags.
type Decision int

const (
	// Pending: the session check has not resolved yet. Render a neutral
	// pending state, never a redirect; redirecting here flashes the login
	// page at users who are about to be admitted.
	Pending Decision = iota

	// Allow admits the navigation.
	Allow

	// RedirectLogin sends the visitor to the login entry point.
	RedirectLogin

	// RedirectHome sends an authenticated-but-forbidden user to the
	// default landing page. Distinguished from RedirectLogin by target,
	// not by error: "not logged in" and "logged in but forbidden" must
	// route differently.
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectHome:
		return "redirect_home"
	default:
		return "pending"
	}
}

// Policy maps session flags to a Decision.
type Policy func(Flags) Decision

// RequireAuthenticated admits any authenticated user.
func RequireAuthenticated(f Flags) Decision {
	switch {
	case f.IsLoading:
		return Pending
	case f.IsAuthenticated:
		return Allow
	default:
		return RedirectLogin
	}
}

// RequireAdmin admits only authenticated admins. A signed-in non-admin
// goes home, never to login.
func RequireAdmin(f Flags) Decision {
	switch {
	case f.IsLoading:
		return Pending
	case !f.IsAuthenticated:
		return RedirectLogin
	case !f.IsAdmin:
		return RedirectHome
	default:
		return Allow
	}
}

// Middleware guards an http.Handler with a policy. flags is re-evaluated on
// every request so the guard always sees the current session state.
func Middleware(policy Policy, flags func() Flags, loginPath, homePath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := policy(flags())

			switch decision {
			case Allow:
				next.ServeHTTP(w, r)
			case Pending:
				// Neutral: nothing observable until the session resolves.
				w.WriteHeader(http.StatusNoContent)
			case RedirectLogin:
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
			case RedirectHome:
				slogx.FromContext(r.Context()).Debug("navigation refused",
					"path", r.URL.Path, "decision", decision.String())
				http.Redirect(w, r, homePath, http.StatusSeeOther)
			}
		})
	}
}
