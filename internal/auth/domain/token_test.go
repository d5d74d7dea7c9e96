package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRecordExpiryBoundary(t *testing.T) {
	exp := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := TokenRecord{ExpiryDate: exp}

	require.False(t, rec.Expired(exp.Add(-time.Nanosecond)))
	require.True(t, rec.Expired(exp), "the expiry instant itself is already expired")
	require.True(t, rec.Expired(exp.Add(time.Second)))

	require.True(t, rec.Active(exp.Add(-time.Second)))
	require.False(t, rec.Active(exp))

	rec.Revoked = true
	require.False(t, rec.Active(exp.Add(-time.Second)))
}

func TestTokenRecordRedacted(t *testing.T) {
	rec := TokenRecord{TokenID: "secret", Roles: []string{RoleUser}}

	red := rec.Redacted()
	require.Equal(t, RedactedToken, red.TokenID)
	require.Equal(t, "secret", rec.TokenID)

	red.Roles[0] = "changed"
	require.Equal(t, RoleUser, rec.Roles[0])
}
