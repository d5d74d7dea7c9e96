/*
Package authsdk is the Go client for the sessionkeeper HTTP API.

# SDKClient vs Session

  - SDKClient: unauthenticated calls (register, login, refresh, health)
  - Session: calls made on behalf of a logged in user, with transparent rotation

	client := authsdk.NewSDKClient("https://sessions.example.com")

	session, err := client.Login(ctx, "alice", "correct horse", "")
	if err != nil {
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeInvalidCredentials {
			// wrong username or password
		}
	}

	sessions, err := session.ListSessions(ctx)

# Rotation

Refresh tokens are single use. A Session refreshes its pair 30 seconds before
the access token expires and replaces both tokens atomically; callers that
persist tokens should re-read RefreshToken after any call.

# Errors

Every non-2xx response decodes into *APIError. Validation failures keep the
per-field details in APIError.Details.

The request and response types in this package are also what the server
encodes, so the two sides cannot drift.
*/
package authsdk
