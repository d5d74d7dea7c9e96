package http

import (
	"net/http"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/service"
	"github.com/aussiebroadwan/sessionkeeper/pkg/authsdk"
	"github.com/aussiebroadwan/sessionkeeper/pkg/httpx"
)

// SessionsHandler lets a user see and cut off their own tokens.
type SessionsHandler struct {
	Sessions *service.SessionService
}

func sessionInfo(rec domain.TokenRecord, currentSession string) authsdk.SessionInfo {
	roles := rec.Roles
	if roles == nil {
		roles = []string{}
	}
	return authsdk.SessionInfo{
		ID:        rec.SessionID,
		Token:     rec.TokenID,
		Kind:      string(rec.Kind),
		Username:  rec.Username,
		Roles:     roles,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiryDate,
		PairID:    rec.PairID,
		Current:   rec.SessionID != "" && rec.SessionID == currentSession,
	}
}

// HandleList handles GET /v1/sessions
//
//	@Summary		List active sessions
//	@Description	Lists the caller's unrevoked, unexpired tokens, newest first. Token values are never returned.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionsResponse	"Active sessions"
//	@Failure		401	{object}	authsdk.APIError			"Invalid or missing access token"
//	@Failure		503	{object}	authsdk.APIError			"Session store unavailable"
//	@Router			/v1/sessions [get].
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	recs, err := h.Sessions.ListActiveSessions(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := authsdk.SessionsResponse{Sessions: make([]authsdk.SessionInfo, 0, len(recs))}
	for _, rec := range recs {
		out.Sessions = append(out.Sessions, sessionInfo(rec, id.SessionID))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke handles DELETE /v1/sessions/{id}
//
//	@Summary		Revoke one session
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Session id"
//	@Success		204
//	@Failure		401	{object}	authsdk.APIError	"Invalid or missing access token"
//	@Failure		404	{object}	authsdk.APIError	"No such session for this user"
//	@Router			/v1/sessions/{id} [delete].
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	if err := h.Sessions.RevokeSession(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// HandleRevokeOthers handles DELETE /v1/sessions
//
//	@Summary		Revoke other sessions
//	@Description	Revokes every token of the caller except the access token making the request and its refresh token.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.RevokedResponse	"Number of tokens revoked"
//	@Failure		401	{object}	authsdk.APIError		"Invalid or missing access token"
//	@Router			/v1/sessions [delete].
func (h *SessionsHandler) HandleRevokeOthers(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	n, err := h.Sessions.RevokeAllExceptCurrent(r.Context(), id.UserID, id.Token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}
