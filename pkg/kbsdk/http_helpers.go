package kbsdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// do performs an HTTP request against the service. The cookie jar attaches
// the session cookie automatically. Network-level failures come back as
// *TransportError; HTTP status handling is left to the caller.
func (c *Client) do(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, &TransportError{Op: "build request", Err: err}
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}

	return resp, nil
}

// decodeJSON decodes a 2xx response body into target, or maps a non-2xx
// response to a typed *APIError. The error branch is decided here, once;
// callers never see the raw body.
func decodeJSON(resp *http.Response, target any, kind Kind, fallback string) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp.StatusCode, bodyBytes, kind, fallback)
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return &TransportError{Op: "decode response", Err: err}
	}
	return nil
}

// checkStatus drains the body and maps any non-2xx response to an *APIError.
func checkStatus(resp *http.Response, kind Kind, fallback string) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	return apiError(resp.StatusCode, bodyBytes, kind, fallback)
}

// apiError builds an *APIError from an error response body. The
// server-provided detail wins; fallback covers bodies that are empty or not
// the service's {detail} shape (the /otp endpoints answer a bare 401).
func apiError(status int, body []byte, kind Kind, fallback string) error {
	detail := fallback

	var errResp detailResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
		detail = errResp.Detail
	}

	return &APIError{
		Kind:       kind,
		StatusCode: status,
		Detail:     detail,
	}
}

// adminKind refines the error kind for admin mutations, where the status
// code distinguishes missing resources from refused operations.
func adminKind(status int, fallback Kind) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusForbidden, http.StatusBadRequest:
		return fallback
	default:
		return KindRequestFailed
	}
}
