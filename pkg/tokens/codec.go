package tokens

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const MinSecretLen = 32

var signingMethod = jwt.SigningMethodHS512

type Codec struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

type Option func(*Codec)

// WithLeeway tolerates clock skew when checking expiry.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) {
		if d > 0 {
			c.leeway = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLen {
		return nil, ErrWeakSecret
	}
	c := &Codec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Codec) Now() time.Time { return c.now() }

// Leeway is how long past exp IsExpired still accepts a token.
func (c *Codec) Leeway() time.Duration { return c.leeway }

// Encode signs a new token for subject. sessionID may be empty.
func (c *Codec) Encode(subject string, typ TokenType, ttl time.Duration, sessionID string) (string, *Claims, error) {
	if subject == "" {
		return "", nil, fmt.Errorf("encode token: empty subject")
	}
	if !typ.Valid() {
		return "", nil, fmt.Errorf("encode token: unknown type %q", typ)
	}
	if ttl <= 0 {
		return "", nil, fmt.Errorf("encode token: ttl must be positive")
	}

	now := c.now()
	claims := &Claims{
		Type:      typ,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Decode verifies signature and structure only. Expiry is left to IsExpired.
func (c *Codec) Decode(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	var claims Claims
	tkn, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, fmt.Errorf("unexpected sign method %s", t.Method.Alg())
		}
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !tkn.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	switch {
	case claims.Subject == "":
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	case !claims.Type.Valid():
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidToken, claims.Type)
	case claims.RegisteredClaims.ExpiresAt == nil:
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	case claims.RegisteredClaims.IssuedAt == nil:
		return nil, fmt.Errorf("%w: missing iat", ErrInvalidToken)
	case claims.ID == "":
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	return &claims, nil
}

func (c *Codec) IsExpired(claims *Claims) bool {
	if claims == nil || claims.RegisteredClaims.ExpiresAt == nil {
		return true
	}
	return !c.now().Before(claims.Expiry().Add(c.leeway))
}

// DecodeAs decodes and then requires the given type and an unexpired token.
func (c *Codec) DecodeAs(token string, typ TokenType) (*Claims, error) {
	claims, err := c.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: want %s got %s", ErrWrongType, typ, claims.Type)
	}
	if c.IsExpired(claims) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}
