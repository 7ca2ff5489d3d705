package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retrying decorates a Store with bounded exponential backoff. It is a
// pluggable wrapper: the sync pipeline and reconciler only see the Store
// interface, so retry policy can be swapped or removed without touching
// either. ErrNotFound is never retried.
type Retrying struct {
	Inner    Store
	MaxTries uint
	Initial  time.Duration
}

// WithRetry wraps a store with the given attempt budget (minimum 1).
func WithRetry(inner Store, maxTries uint) *Retrying {
	if maxTries == 0 {
		maxTries = 1
	}
	return &Retrying{Inner: inner, MaxTries: maxTries, Initial: 200 * time.Millisecond}
}

func (r *Retrying) Name() string { return r.Inner.Name() }

func (r *Retrying) Create(ctx context.Context, rec Record) (Record, error) {
	return retryRecord(ctx, r, "create", func() (Record, error) { return r.Inner.Create(ctx, rec) })
}

func (r *Retrying) FindByURL(ctx context.Context, url string) (Record, error) {
	return retryRecord(ctx, r, "find", func() (Record, error) { return r.Inner.FindByURL(ctx, url) })
}

func (r *Retrying) Update(ctx context.Context, id string, patch Patch) (Record, error) {
	return retryRecord(ctx, r, "update", func() (Record, error) { return r.Inner.Update(ctx, id, patch) })
}

func (r *Retrying) ListStatuses(ctx context.Context) ([]StatusEntry, error) {
	return retry(ctx, r, "list", func() ([]StatusEntry, error) { return r.Inner.ListStatuses(ctx) })
}

func retryRecord(ctx context.Context, r *Retrying, op string, fn func() (Record, error)) (Record, error) {
	return retry(ctx, r, op, fn)
}

func retry[T any](ctx context.Context, r *Retrying, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.Initial
	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && errors.Is(err, ErrNotFound) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("backend call retrying",
				slog.String("backend", r.Inner.Name()),
				slog.String("op", op),
				slog.Duration("wait", wait),
				slog.Any("err", err))
		}),
	)
}
