package kbsdk

import (
	"regexp"
	"strings"
)

var reEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks the create-user payload before it goes on the wire.
// Returns a map of field names to error messages, or nil if the payload is
// valid. The service performs its own validation as well; this only catches
// what can be decided locally.
func (r CreateUserRequest) Validate() map[string]string {
	errs := make(map[string]string)

	email := strings.TrimSpace(r.Email)
	switch {
	case email == "":
		errs["email"] = "required"
	case !reEmail.MatchString(email):
		errs["email"] = "must be a valid email address"
	}

	if r.Password != "" {
		switch {
		case len(r.Password) < 8:
			errs["password"] = "too short (min 8)"
		case len(r.Password) > 128:
			errs["password"] = "too long (max 128)"
		}
	}

	if r.Role != "" && r.Role != RoleUser && r.Role != RoleAdmin {
		errs["role"] = `must be "user" or "admin"`
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
