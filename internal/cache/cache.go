package cache

import (
	"context"
	"time"

	"billbook/backend/internal/domain"
)

// TotalsCache holds dashboard totals. Keys embed a generation number so a
// single Invalidate call retires every cached total at once.
type TotalsCache interface {
	Generation(ctx context.Context) (int64, error)
	Invalidate(ctx context.Context) error
	Get(ctx context.Context, key string) (*domain.TotalResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.TotalResponse, ttl time.Duration) error
}

type NoopTotalsCache struct{}

func (NoopTotalsCache) Generation(_ context.Context) (int64, error) {
	return 0, nil
}

func (NoopTotalsCache) Invalidate(_ context.Context) error {
	return nil
}

func (NoopTotalsCache) Get(_ context.Context, _ string) (*domain.TotalResponse, bool, error) {
	return nil, false, nil
}

func (NoopTotalsCache) Set(_ context.Context, _ string, _ *domain.TotalResponse, _ time.Duration) error {
	return nil
}
