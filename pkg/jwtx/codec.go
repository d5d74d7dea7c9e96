package jwtx

import (
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionkeeper/pkg/idx"
)

// MinSecretSize is the smallest HMAC secret the codec accepts.
const MinSecretSize = 32

// ErrWeakSecret is returned by NewCodec for short secrets.
var ErrWeakSecret = errors.New("jwtx: secret must be at least 32 bytes")

// Codec signs and verifies HS256 tokens with one process wide secret. The
// secret is copied at construction and never changes afterwards.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
	ids    *idx.Generator
}

// CodecOption tweaks a Codec at construction.
type CodecOption func(*Codec)

// WithIssuer sets the "iss" claim on issued tokens.
func WithIssuer(iss string) CodecOption {
	return func(c *Codec) { c.issuer = iss }
}

// WithClock overrides the time source. Tests use this to step over expiry
// without sleeping.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a codec around secret.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretSize {
		return nil, ErrWeakSecret
	}

	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ids = idx.NewGenerator(c.now)

	return c, nil
}

// Now returns the codec's current time.
func (c *Codec) Now() time.Time { return c.now() }
