package newsvc

import (
	"context"
	"time"

	"newsbase/lib/store"
)

// deadlineBackend bounds every transaction of callers which didn't set deadline.
type deadlineBackend struct {
	store.Backend
	timeout time.Duration
}

func (b deadlineBackend) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b deadlineBackend) Update(ctx context.Context, fn func(store.Tx) error) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.Backend.Update(ctx, fn)
}

func (b deadlineBackend) View(ctx context.Context, fn func(store.Tx) error) error {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.Backend.View(ctx, fn)
}
