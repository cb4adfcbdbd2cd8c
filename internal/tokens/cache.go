package tokens

import (
	"context"
	"time"
)

type (
	// Cache maps flow tokens to the name of the flow they were issued for,
	// so that requests which omit the flow name can be routed
	Cache interface {
		Remember(ctx context.Context, token, flowName string) error
		Resolve(ctx context.Context, token string) (string, bool, error)
	}

	// Clock provides the current time for entry expiry
	Clock func() time.Time
)

// DefaultTTL is how long a token mapping is kept after it was remembered
const DefaultTTL = time.Hour
