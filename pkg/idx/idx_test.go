package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/sessionkeeper/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(" " + id.String() + " ")
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-ulid", "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3Z"} {
		_, err := idx.Parse(in)
		require.ErrorIs(t, err, idx.ErrInvalid, in)
	}
}

func TestGeneratorUsesClock(t *testing.T) {
	fixed := time.Unix(1700000000, 0).UTC()
	g := idx.NewGenerator(func() time.Time { return fixed })

	a := g.New()
	b := g.New()

	// Same millisecond, monotonic entropy keeps them ordered and distinct
	require.NotEqual(t, a, b)
	require.Less(t, a.String(), b.String())
	require.WithinDuration(t, fixed, a.Time(), time.Millisecond)
}

func TestTimeOfInvalidID(t *testing.T) {
	require.True(t, idx.ID("nope").Time().IsZero())
}
