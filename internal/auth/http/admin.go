package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/service"
	"github.com/aussiebroadwan/sessionkeeper/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkeeper/pkg/httpx"
	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

// AdminHandler acts on other users' accounts. Mounted behind the admin
// role check.
type AdminHandler struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
}

// HandleRevokeUserSessions handles DELETE /v1/admin/users/{id}/sessions
//
//	@Summary		Revoke all sessions of a user
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string					true	"User id"
//	@Success		200	{object}	authsdk.RevokedResponse	"Number of tokens revoked"
//	@Failure		403	{object}	authsdk.APIError		"Caller is not admin"
//	@Router			/v1/admin/users/{id}/sessions [delete].
func (h *AdminHandler) HandleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	n, err := h.Sessions.RevokeAllUserTokens(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("admin revoked user sessions", "target_user_id", userID, "revoked", n)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}

// HandleDeactivate handles POST /v1/admin/users/{id}/deactivate
//
//	@Summary		Deactivate a user
//	@Description	Disables the account and revokes all of its tokens.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string					true	"User id"
//	@Success		200	{object}	authsdk.RevokedResponse	"Number of tokens revoked"
//	@Failure		403	{object}	authsdk.APIError		"Caller is not admin"
//	@Failure		404	{object}	authsdk.APIError		"No such user"
//	@Router			/v1/admin/users/{id}/deactivate [post].
func (h *AdminHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	n, err := h.Auth.DeactivateUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}

// HandleReactivate handles POST /v1/admin/users/{id}/reactivate
//
//	@Summary		Reactivate a user
//	@Description	Re-enables the account. Tokens revoked on deactivation stay revoked.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User id"
//	@Success		204
//	@Failure		403	{object}	authsdk.APIError	"Caller is not admin"
//	@Failure		404	{object}	authsdk.APIError	"No such user"
//	@Router			/v1/admin/users/{id}/reactivate [post].
func (h *AdminHandler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.ReactivateUser(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoContent(w)
}
