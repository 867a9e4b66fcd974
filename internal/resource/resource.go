// Package resource tracks a single remote document: the last fetched value,
// whether the fetch succeeded, and the error text when it did not.
package resource

import (
	"context"
	"fmt"
)

// Status is the fetch state of a resource.
type Status int

const (
	NotFetched Status = iota
	Fetched
	Failed
)

func (s Status) String() string {
	switch s {
	case NotFetched:
		return "not fetched"
	case Fetched:
		return "fetched"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Fetcher reads and writes the remote document.
type Fetcher[T any] interface {
	Fetch(ctx context.Context) (T, error)
	Store(ctx context.Context, v T) (T, error)
}

// Loader holds the current copy of a remote document.
type Loader[T any] struct {
	fetcher Fetcher[T]
	data    T
	status  Status
	err     error
}

// New creates a loader that has not fetched yet.
func New[T any](f Fetcher[T]) *Loader[T] {
	return &Loader[T]{fetcher: f}
}

// Invalidate drops the current data ahead of a reload.
func (l *Loader[T]) Invalidate() {
	var zero T
	l.data = zero
	l.status = NotFetched
	l.err = nil
}

// Load fetches the document. The previous data is dropped first, so a
// failed load leaves nothing behind.
func (l *Loader[T]) Load(ctx context.Context) error {
	l.Invalidate()

	v, err := l.fetcher.Fetch(ctx)
	if err != nil {
		l.status = Failed
		l.err = err
		return fmt.Errorf("load: %w", err)
	}

	l.data = v
	l.status = Fetched
	l.err = nil
	return nil
}

// Save writes v and adopts the stored document the remote returns. On
// failure the loader keeps its data and records the error.
func (l *Loader[T]) Save(ctx context.Context, v T) error {
	stored, err := l.fetcher.Store(ctx, v)
	if err != nil {
		l.status = Failed
		l.err = err
		return fmt.Errorf("save: %w", err)
	}

	l.data = stored
	l.status = Fetched
	l.err = nil
	return nil
}

// Apply records the outcome of a fetch or store performed elsewhere, such
// as inside a background command.
func (l *Loader[T]) Apply(v T, err error) {
	if err != nil {
		l.status = Failed
		l.err = err
		return
	}
	l.data = v
	l.status = Fetched
	l.err = nil
}

// Data returns the current document.
func (l *Loader[T]) Data() T { return l.data }

// Status returns the fetch state.
func (l *Loader[T]) Status() Status { return l.status }

// Err returns the error text of the last failed call, or "".
func (l *Loader[T]) Err() string {
	if l.err == nil {
		return ""
	}
	return l.err.Error()
}
