package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/service"
	"github.com/aussiebroadwan/sessionkeeper/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkeeper/pkg/httpx"
)

// MFAHandler handles the TOTP endpoints.
type MFAHandler struct {
	MFA *service.MFAService
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
//
//	@Summary		Start TOTP enrollment
//	@Description	Generates a TOTP secret for the caller. Nothing is stored until the secret is confirmed.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPEnrollResponse	"Secret and otpauth URL"
//	@Failure		401	{object}	authsdk.APIError			"Invalid or missing access token"
//	@Failure		409	{object}	authsdk.APIError			"MFA already enabled"
//	@Router			/v1/mfa/totp/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	enr, err := h.MFA.EnrollTOTP(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{
		Secret:  enr.Secret,
		URL:     enr.URL,
		Issuer:  enr.Issuer,
		Account: enr.Account,
	})
}

// HandleConfirm handles POST /v1/mfa/totp/confirm
//
//	@Summary		Enable TOTP
//	@Description	Enables MFA once the code matches the enrolled secret, then revokes every other session of the caller.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TOTPConfirmRequest	true	"Secret and current code"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"Wrong code"
//	@Failure		409	{object}	authsdk.APIError	"MFA already enabled"
//	@Router			/v1/mfa/totp/confirm [post].
func (h *MFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req authsdk.TOTPConfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	if err := h.MFA.ConfirmTOTP(r.Context(), id.UserID, id.Token, req.Secret, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// HandleRemove handles DELETE /v1/mfa/totp
//
//	@Summary		Disable TOTP
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TOTPCodeRequest	true	"Current code"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"Wrong code"
//	@Failure		409	{object}	authsdk.APIError	"MFA not enabled"
//	@Router			/v1/mfa/totp [delete].
func (h *MFAHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var req authsdk.TOTPCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	if err := h.MFA.RemoveMFA(r.Context(), id.UserID, req.Code); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoContent(w)
}
