package kbsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Admin operations. All of them require an authenticated session whose user
// carries the admin role; the service answers 401/403 otherwise.

// ListUsers fetches one page of the user roster. Pages are 1-based; the
// request is translated to the service's skip/limit form. Cursor bounds are
// not enforced here; that is the roster's policy (internal/roster).
func (c *Client) ListUsers(ctx context.Context, page, size int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}

	path := fmt.Sprintf("/api/admin/user/all?skip=%d&limit=%d", (page-1)*size, size)
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var wire userPageResponse
	if err := decodeJSON(resp, &wire, KindForbidden, "Failed to fetch users"); err != nil {
		return nil, err
	}

	return &UserPage{
		Users: wire.Users,
		Total: wire.Total,
		Page:  page,
		Size:  size,
	}, nil
}

// GetUser looks up a single user by id or email.
func (c *Client) GetUser(ctx context.Context, query GetUserQuery) (*User, error) {
	params := url.Values{}
	if query.ID != "" {
		params.Set("user_id", query.ID)
	}
	if query.Email != "" {
		params.Set("user_email", query.Email)
	}

	resp, err := c.do(ctx, http.MethodGet, "/api/admin/user/?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		kind := KindValidation
		if resp.StatusCode == http.StatusNotFound {
			kind = KindNotFound
		}
		return nil, apiError(resp.StatusCode, body, kind, "Failed to fetch user")
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, &TransportError{Op: "decode response", Err: err}
	}
	return &user, nil
}

// CreateUser creates a user through the admin surface. The payload is
// validated client-side first; a failed validation short-circuits to a
// KindValidation *APIError with field messages, without a wire call.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if fields := req.Validate(); fields != nil {
		return nil, &APIError{
			Kind:       KindValidation,
			StatusCode: http.StatusBadRequest,
			Detail:     "Invalid user payload",
			Fields:     fields,
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &TransportError{Op: "marshal request", Err: err}
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/admin/user/",
		bytes.NewReader(payload),
		map[string]string{"Content-Type": "application/json"},
	)
	if err != nil {
		return nil, err
	}

	var user User
	if err := decodeJSON(resp, &user, KindValidation, "Failed to create user"); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser deletes a user by id. The service answers 404 for an unknown
// id and refuses self-deletion; the roster additionally rejects self-delete
// before the request is ever issued.
//
// The service echoes the deleted user's view in the response body; the
// client discards it.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/admin/user/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	return apiError(resp.StatusCode, body, adminKind(resp.StatusCode, KindForbidden), "Failed to delete user")
}
