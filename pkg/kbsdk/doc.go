/*
Package kbsdk provides a client for the Kombuchalyzer service API.

# Overview

The Client is stateless request/response plumbing: it performs the
credential exchange, TOTP completion, logout, current-user probe, and the
admin user-management calls. Sessions are cookie-based; the client's cookie
jar carries the httponly session cookie set by the service, and the client
never inspects it.

	client := kbsdk.New("https://kb.example.com")

	challenge, err := client.Login(ctx, "admin@example.com", "password")
	if err != nil {
		// err.(*kbsdk.APIError).Detail holds the message to display
		return err
	}
	if challenge != nil {
		// account has 2FA enabled; finish with the code from the app
		err = client.CompleteTOTP(ctx, challenge.IntermediateToken, code)
	}

	user := client.CurrentUser(ctx) // nil when no session

# Error handling

Every failed operation returns a typed error decided once at the response
boundary:

  - *APIError with a Kind (invalid_credentials, invalid_totp_code,
    validation_error, not_found, forbidden, ...) and the server's detail
    message, or a fixed per-operation fallback when the server gave none
  - *TransportError for network-level failures with no response

Two operations deliberately never fail: CurrentUser degrades to nil (it is
a non-destructive probe used for session gating) and Logout is best-effort
(the local session is cleared regardless of the remote outcome).

No operation retries automatically; transient failures surface immediately
and the caller decides whether to retry.

# Session state

The client holds no identity state. The cached current user, the login
state machine, and the admin roster workflow live in internal/session and
internal/roster and compose this client.
*/
package kbsdk
