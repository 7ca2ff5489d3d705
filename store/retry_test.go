package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/streamwall/streamsync/store"
)

// flaky fails a fixed number of calls before succeeding.
type flaky struct {
	failures int
	calls    int
	notFound bool
}

func (f *flaky) Name() string { return "flaky" }

func (f *flaky) step() error {
	f.calls++
	if f.notFound {
		return store.ErrNotFound
	}
	if f.calls <= f.failures {
		return errors.New("transient")
	}
	return nil
}

func (f *flaky) Create(ctx context.Context, rec store.Record) (store.Record, error) {
	if err := f.step(); err != nil {
		return store.Record{}, err
	}
	rec.ID = "1"
	return rec, nil
}

func (f *flaky) FindByURL(ctx context.Context, url string) (store.Record, error) {
	if err := f.step(); err != nil {
		return store.Record{}, err
	}
	return store.Record{ID: "1", URL: url}, nil
}

func (f *flaky) Update(ctx context.Context, id string, patch store.Patch) (store.Record, error) {
	if err := f.step(); err != nil {
		return store.Record{}, err
	}
	return store.Record{ID: id}, nil
}

func (f *flaky) ListStatuses(ctx context.Context) ([]store.StatusEntry, error) {
	if err := f.step(); err != nil {
		return nil, err
	}
	return []store.StatusEntry{}, nil
}

func fastRetry(inner store.Store, maxTries uint) *store.Retrying {
	r := store.WithRetry(inner, maxTries)
	r.Initial = time.Millisecond
	return r
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	inner := &flaky{failures: 2}
	r := fastRetry(inner, 3)

	rec, err := r.Create(context.Background(), store.Record{URL: "https://twitch.tv/a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != "1" {
		t.Errorf("id = %q, want 1", rec.ID)
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	inner := &flaky{failures: 10}
	r := fastRetry(inner, 3)

	if _, err := r.Create(context.Background(), store.Record{}); err == nil {
		t.Fatal("expected error after budget exhausted")
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestRetryNotFoundIsPermanent(t *testing.T) {
	inner := &flaky{notFound: true}
	r := fastRetry(inner, 5)

	_, err := r.FindByURL(context.Background(), "https://twitch.tv/absent")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1 (not found must not be retried)", inner.calls)
	}
}

func TestRetryNameDelegates(t *testing.T) {
	if got := fastRetry(&flaky{}, 2).Name(); got != "flaky" {
		t.Errorf("Name = %q, want flaky", got)
	}
}
