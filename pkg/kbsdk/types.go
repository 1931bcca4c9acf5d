package kbsdk

// User roles known to the service. The service defaults new accounts to
// RoleUser; RoleAdmin unlocks the /api/admin surface.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the identity record owned by the service. The client only ever
// holds a read-mostly cached copy; it is replaced wholesale on refresh,
// never field-patched.
type User struct {
	// ID is the opaque stable identifier assigned by the service.
	ID string `json:"id"`

	// Email is the login identifier.
	Email string `json:"email"`

	// Role is the user's role name ("user" or "admin").
	Role string `json:"role"`

	// TOTPEnabled reports whether two-factor login is active for the account.
	TOTPEnabled bool `json:"totp_enabled"`

	// IsActive reports whether the account is enabled.
	IsActive bool `json:"is_active"`
}

// IsAdmin reports whether the user carries the admin role. Safe on nil.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// TotpChallenge is returned by Login when the account requires a second
// factor. The intermediate token is short-lived, single-use, and must only
// ever live in memory for the duration of the login flow.
type TotpChallenge struct {
	IntermediateToken string
}

// UserPage is one page of the admin user roster. Pages are recomputed per
// navigation and replaced on refetch, never mutated in place.
type UserPage struct {
	Users []User
	Total int

	// Page is the 1-based page index this page was fetched for.
	Page int

	// Size is the page size used for the fetch.
	Size int
}

// CreateUserRequest is the payload for the admin create-user operation.
// Password is optional (the service provisions a login-less account when
// omitted); Role defaults to "user" server-side.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role,omitempty"`
}

// GetUserQuery selects a single user by id or email. Exactly one field
// should be set; the service rejects an empty query.
type GetUserQuery struct {
	ID    string
	Email string
}

// tokenResponse is the body of the /api/auth/token and /api/auth/token-2fa
// endpoints. TokenType discriminates the login outcome: "bearer" means the
// session cookie is set, "totp" means AccessToken is an intermediate token
// for the 2FA step. The branch is decided once, in Login; the raw shape is
// never re-inspected downstream.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// detailResponse is the service's uniform error body.
type detailResponse struct {
	Detail string `json:"detail"`
}

// userPageResponse is the wire shape of the paginated admin roster.
type userPageResponse struct {
	Total int    `json:"total"`
	Users []User `json:"users"`
}
