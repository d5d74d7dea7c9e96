package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	redisstore "github.com/aussiebroadwan/sessionkeeper/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessionkeeper/pkg/cryptox"
	"github.com/aussiebroadwan/sessionkeeper/pkg/jwtx"
)

const (
	testAccessTTL  = 900 * time.Second
	testRefreshTTL = 604800 * time.Second
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

// testEnv wires the real codec, a miniredis backed token store and an in
// memory user directory. advance moves the codec clock and Redis TTLs
// together.
type testEnv struct {
	sessions *SessionService
	auth     *AuthService
	users    *sqlite.Store
	tokens   *redisstore.Store
	mr       *miniredis.Miniredis
	clock    *testClock
	mail     *captureNotifier
}

func (e *testEnv) advance(d time.Duration) {
	e.clock.t = e.clock.t.Add(d)
	e.mr.FastForward(d)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := &testClock{t: time.Now().UTC().Truncate(time.Second)}
	codec, err := jwtx.NewCodec([]byte("0123456789abcdef0123456789abcdef"), jwtx.WithClock(clk.Now))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	tokens, err := redisstore.New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tokens.Close() })

	users, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, users.ApplyMigrations())
	t.Cleanup(func() { _ = users.Close() })

	sessions := &SessionService{
		Codec:      codec,
		Tokens:     tokens,
		Users:      users,
		AccessTTL:  testAccessTTL,
		RefreshTTL: testRefreshTTL,
	}

	mail := &captureNotifier{}

	return &testEnv{
		sessions: sessions,
		auth: &AuthService{
			Users:    users,
			Sessions: sessions,
			Hasher:   cryptox.NewPasswordHasher([]byte("test-pepper")),
			Resets:   tokens,
			Notifier: mail,
		},
		users:  users,
		tokens: tokens,
		mr:     mr,
		clock:  clk,
		mail:   mail,
	}
}

// createUser stores an active user directly, skipping the password hash.
func (e *testEnv) createUser(t *testing.T, username string) domain.User {
	t.Helper()

	u := domain.User{
		ID:           "user-" + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "unused",
		Roles:        []string{domain.RoleUser},
		Active:       true,
	}
	require.NoError(t, e.users.CreateUser(context.Background(), u))
	return u
}

// captureNotifier records reset tokens instead of delivering them.
type captureNotifier struct {
	mu     sync.Mutex
	tokens map[string]string // email -> last token
	err    error
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, user domain.User, token string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = make(map[string]string)
	}
	n.tokens[user.Email] = token
	return n.err
}

func (n *captureNotifier) token(email string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	tok, ok := n.tokens[email]
	return tok, ok
}

func (n *captureNotifier) sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tokens)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
