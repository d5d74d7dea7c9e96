package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/service"
	"github.com/aussiebroadwan/sessionkeeper/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkeeper/pkg/httpx"
	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

// AuthHandler serves the account endpoints that issue or revoke tokens.
type AuthHandler struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
}

func tokenResponse(p domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
}

// HandleRegister handles POST /v1/auth/register
//
//	@Summary		Register an account
//	@Description	Creates an active account and logs it in. The first account on a fresh directory is also admin.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest				true	"Account details"
//	@Success		201		{object}	authsdk.RegisterResponse			"User id and token pair"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse		"Validation failed"
//	@Failure		409		{object}	authsdk.APIError					"Username or email taken"
//	@Failure		429		{object}	authsdk.APIError					"Rate limit exceeded"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	user, pair, err := h.Auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.RegisterResponse{
		UserID:        user.ID,
		TokenResponse: tokenResponse(pair),
	})
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Log in
//	@Description	Authenticates by username or email and returns a token pair. Accounts with MFA must send a current TOTP code.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest			true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse			"Token pair"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse	"Validation failed"
//	@Failure		401		{object}	authsdk.APIError				"Invalid credentials"
//	@Failure		403		{object}	authsdk.APIError				"Account deactivated"
//	@Failure		429		{object}	authsdk.APIError				"Rate limit exceeded"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	pair, err := h.Auth.Login(r.Context(), req.Identifier, req.Password, req.OTP)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleRefresh handles POST /v1/auth/refresh
//
//	@Summary		Rotate a refresh token
//	@Description	Consumes the refresh token and returns a new pair. A refresh token works exactly once.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse	"New token pair"
//	@Failure		401		{object}	authsdk.APIError		"Invalid, expired or revoked refresh token"
//	@Failure		403		{object}	authsdk.APIError		"Account deactivated"
//	@Failure		503		{object}	authsdk.APIError		"Session store unavailable"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	pair, err := h.Sessions.RefreshTokens(r.Context(), req.RefreshToken)
	if errors.Is(err, service.ErrUserNotFound) {
		// The subject is gone; to the client that is just a dead token.
		err = service.ErrRevoked
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Log out
//	@Description	Revokes the bearer access token and, when given, the refresh token from the same login.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.LogoutRequest	false	"Refresh token to drop"
//	@Success		204
//	@Failure		401	{object}	authsdk.APIError	"Invalid or missing access token"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req authsdk.LogoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	if err := h.Auth.Logout(ctx, id.Token); err != nil {
		writeError(w, r, err)
		return
	}

	// Only the caller's own refresh token is dropped; anything else is
	// ignored rather than revealed.
	if req.RefreshToken != "" {
		err := h.Sessions.Validate(ctx, req.RefreshToken, id.Subject)
		switch {
		case err == nil:
			if err := h.Sessions.RevokeToken(ctx, req.RefreshToken); err != nil {
				writeError(w, r, err)
				return
			}
		case service.IsStoreUnavailable(err):
			writeError(w, r, err)
			return
		default:
			slogx.FromContext(ctx).Info("logout ignored refresh token", "reason", err.Error())
		}
	}

	httpx.NoContent(w)
}

// HandleLogoutAll handles POST /v1/auth/logout-all
//
//	@Summary		Log out everywhere
//	@Description	Revokes every token of the caller, including the one making the request.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.RevokedResponse	"Number of tokens revoked"
//	@Failure		401	{object}	authsdk.APIError		"Invalid or missing access token"
//	@Router			/v1/auth/logout-all [post].
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	n, err := h.Auth.LogoutAllDevices(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}

// HandleChangePassword handles POST /v1/auth/password
//
//	@Summary		Change password
//	@Description	Checks the current password, sets the new one and revokes every token of the caller.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.ChangePasswordRequest	true	"Current and new password"
//	@Success		204
//	@Failure		400	{object}	authsdk.ValidationErrorResponse	"Validation failed"
//	@Failure		401	{object}	authsdk.APIError				"Wrong current password"
//	@Router			/v1/auth/password [post].
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req authsdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	if err := h.Auth.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// HandleDeactivateSelf handles POST /v1/auth/deactivate
//
//	@Summary		Deactivate own account
//	@Description	Disables the caller's account and revokes every token it holds, including the one making the request. Only an admin can reactivate it.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.RevokedResponse	"Number of tokens revoked"
//	@Failure		401	{object}	authsdk.APIError		"Invalid or missing access token"
//	@Router			/v1/auth/deactivate [post].
func (h *AuthHandler) HandleDeactivateSelf(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	n, err := h.Auth.DeactivateUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("user deactivated own account", "user_id", id.UserID, "revoked", n)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}

// resetRequestedMessage is returned for every reset request.
const resetRequestedMessage = "if the address is registered, a reset link has been sent"

// HandleRequestPasswordReset handles POST /v1/auth/password/reset-request
//
//	@Summary		Request a password reset
//	@Description	Sends a single use reset link, valid for 30 minutes, to the account registered under the address. The response is identical for unknown addresses.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.PasswordResetRequest	true	"Account email"
//	@Success		202		{object}	authsdk.MessageResponse			"Request accepted"
//	@Failure		400		{object}	authsdk.ValidationErrorResponse	"Validation failed"
//	@Failure		429		{object}	authsdk.APIError				"Rate limit exceeded"
//	@Router			/v1/auth/password/reset-request [post].
func (h *AuthHandler) HandleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req authsdk.PasswordResetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	if err := h.Auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.MessageResponse{Message: resetRequestedMessage})
}

// HandleConfirmPasswordReset handles POST /v1/auth/password/reset-confirm
//
//	@Summary		Confirm a password reset
//	@Description	Redeems a reset token, sets the new password and revokes every token of the account.
//	@Tags			Auth
//	@Accept			json
//	@Param			request	body	authsdk.PasswordResetConfirmRequest	true	"Reset token and new password"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"Invalid, expired or used reset token"
//	@Failure		429	{object}	authsdk.APIError	"Rate limit exceeded"
//	@Router			/v1/auth/password/reset-confirm [post].
func (h *AuthHandler) HandleConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req authsdk.PasswordResetConfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	if err := h.Auth.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoContent(w)
}
