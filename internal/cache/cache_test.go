package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billbook/backend/internal/domain"
)

func TestMemoryTotalsCacheInvalidateBumpsGeneration(t *testing.T) {
	c := NewMemoryTotalsCache()
	ctx := context.Background()

	if err := c.Set(ctx, "sales:0", &domain.TotalResponse{Total: decimal.NewFromInt(500), Count: 1}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, "sales:0")
	if err != nil || !ok {
		t.Fatalf("expected cached value, ok=%v err=%v", ok, err)
	}
	if !got.Total.Equal(decimal.NewFromInt(500)) || got.Count != 1 {
		t.Fatalf("unexpected cached value %+v", got)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	gen, _ := c.Generation(ctx)
	if gen != 1 {
		t.Fatalf("expected generation 1, got %d", gen)
	}
	if _, ok, _ := c.Get(ctx, "sales:0"); ok {
		t.Fatalf("expected entries to be dropped after invalidate")
	}
}

func TestMemoryTotalsCacheExpires(t *testing.T) {
	c := NewMemoryTotalsCache()
	ctx := context.Background()

	_ = c.Set(ctx, "k", &domain.TotalResponse{Count: 2}, -time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("expected expired entry to miss")
	}
}
