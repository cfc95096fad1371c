package revocation

import (
	"context"
	"time"
)

// Denylist records access tokens that were revoked before they expired.
// Entries only need to live until the token's own expiry.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
