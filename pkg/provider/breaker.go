package provider

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerClient decorates a provider client with a circuit breaker so a
// flapping provider trips open instead of burning every run's budget on
// timeouts. All methods return the breaker's error while open.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps a client with a circuit breaker. The breaker opens
// after five consecutive failures and probes again after 30 seconds.
func NewBreakerClient(inner Client) *BreakerClient {
	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerClient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Name identifies the wrapped provider.
func (b *BreakerClient) Name() string {
	return b.inner.Name()
}

// VerifyCredential checks the credential through the breaker.
func (b *BreakerClient) VerifyCredential(ctx context.Context) (*Identity, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.VerifyCredential(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Identity), nil
}

// ListItemsSince fetches a batch through the breaker.
func (b *BreakerClient) ListItemsSince(ctx context.Context, cursor string, maxItems int, fromDate time.Time) ([]*Item, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.ListItemsSince(ctx, cursor, maxItems, fromDate)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*Item), nil
}

// GetItem fetches one item through the breaker.
func (b *BreakerClient) GetItem(ctx context.Context, externalID string) (*Item, error) {
	result, err := b.breaker.Execute(func() (any, error) {
		return b.inner.GetItem(ctx, externalID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Item), nil
}
