package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/service"
	"github.com/aussiebroadwan/sessionkeeper/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkeeper/pkg/httpx"
	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

// tokenErrors all surface as 401 invalid_token, with the kind as the
// description so clients can tell an expired token from a revoked one.
var tokenErrors = []error{
	service.ErrMalformedToken,
	service.ErrSignatureInvalid,
	service.ErrExpired,
	service.ErrRevoked,
	service.ErrNotARefreshToken,
	service.ErrNotAnAccessToken,
}

// apiError maps a service error onto the response body and status.
func apiError(err error) *authsdk.APIError {
	for _, k := range tokenErrors {
		if errors.Is(err, k) {
			return authsdk.ErrInvalidToken.WithDescription(k.Error())
		}
	}

	switch {
	case service.IsStoreUnavailable(err):
		return authsdk.ErrUnavailable
	case errors.Is(err, service.ErrInvalidCredentials):
		return authsdk.ErrInvalidCredentials
	case errors.Is(err, service.ErrUserInactive):
		return authsdk.ErrUserInactive
	case errors.Is(err, service.ErrUserExists):
		return authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeUserExists,
			"username or email is already taken")
	case errors.Is(err, service.ErrWeakPassword):
		return authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeWeakPassword,
			"password must be at least 8 characters")
	case errors.Is(err, service.ErrInvalidResetToken):
		return authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidResetToken,
			"the reset token is invalid, expired or already used")
	case errors.Is(err, service.ErrUserNotFound):
		return authsdk.ErrNotFound.WithDescription(service.ErrUserNotFound.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		return authsdk.ErrNotFound.WithDescription(service.ErrSessionNotFound.Error())
	case errors.Is(err, service.ErrInvalidTOTPCode):
		return authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest,
			service.ErrInvalidTOTPCode.Error())
	case errors.Is(err, service.ErrMFAAlreadyEnabled), errors.Is(err, service.ErrMFANotEnabled):
		return authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeConflict, err.Error())
	}
	return authsdk.ErrServerError
}

// writeError logs err at a level matching its class and writes the mapped
// body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apiError(err)
	log := slogx.FromContext(r.Context())

	switch apiErr.StatusCode {
	case http.StatusInternalServerError:
		log.Error("request failed", "error", err)
	case http.StatusServiceUnavailable:
		log.Warn("store unavailable", "error", err)
		w.Header().Set("Retry-After", "1")
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate",
			`Bearer error="`+apiErr.Code+`", error_description="`+apiErr.Description+`"`)
	}

	apiErr.WriteError(w)
}

// writeRequestError answers a body that failed decoding or validation.
func writeRequestError(w http.ResponseWriter, err error) {
	var verr *httpx.ValidationError
	if errors.As(err, &verr) {
		httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ValidationErrorResponse{
			Code:    authsdk.ErrorCodeValidation,
			Message: "request validation failed",
			Details: verr.Fields,
		})
		return
	}
	authsdk.ErrInvalidRequest.WriteError(w)
}

// identity returns the caller set by the bearer middleware. Handlers are
// only mounted behind it, so a missing identity is a wiring bug.
func identity(w http.ResponseWriter, r *http.Request) (httpx.Identity, bool) {
	id, ok := httpx.IdentityFromContext(r.Context())
	if !ok || id.UserID == "" {
		authsdk.ErrInvalidToken.WriteError(w)
		return httpx.Identity{}, false
	}
	return id, true
}
