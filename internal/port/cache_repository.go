package port

import "context"

type CacheRepository interface {
	// SetIdempotency claims key, returns false if it was already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency drops a claim so the request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
