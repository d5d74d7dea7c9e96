package sessions_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkeeper/pkg/authsdk"
)

func TestAdminEndpoints(t *testing.T) {
	client := setupService(t)
	ctx := t.Context()

	// The first account on a fresh directory is admin
	admin, _ := registerUser(t, client, "root")
	bob, bobID := registerUser(t, client, "bob")

	t.Run("non-admin is forbidden", func(t *testing.T) {
		_, err := bob.DeactivateUser(ctx, bobID)
		assertAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeInsufficientRole, "")
	})

	t.Run("revoke user sessions", func(t *testing.T) {
		loginUser(t, client, "bob")

		n, err := admin.RevokeUserSessions(ctx, bobID)
		require.NoError(t, err)
		require.Equal(t, 4, n)

		_, err = bob.ListSessions(ctx)
		assertAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "")
	})

	t.Run("deactivate and reactivate", func(t *testing.T) {
		bob = loginUser(t, client, "bob")
		refresh := bob.RefreshToken()

		n, err := admin.DeactivateUser(ctx, bobID)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		_, err = client.Login(ctx, "bob", passwordFor("bob"), "")
		assertAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeUserInactive, "")

		_, err = client.Refresh(ctx, refresh)
		assertAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "token_revoked")

		require.NoError(t, admin.ReactivateUser(ctx, bobID))
		loginUser(t, client, "bob")
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := admin.DeactivateUser(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assertAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound, "user_not_found")
	})
}
