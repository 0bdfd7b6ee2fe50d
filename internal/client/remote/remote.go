// Package remote talks to the shared row store that holds one override set
// per timeline, with its provenance.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storyline/internal/client/models"
)

var (
	// ErrTransient marks failures worth retrying: 5xx answers and network
	// errors.
	ErrTransient = errors.New("remote temporarily unavailable")
	// ErrUnauthorized covers missing or rejected credentials.
	ErrUnauthorized = errors.New("remote refused credentials")
	// ErrRejected covers every other client-side refusal.
	ErrRejected = errors.New("remote rejected request")
	// ErrNotConfigured is returned by writes when no remote is set up.
	ErrNotConfigured = errors.New("remote not configured")
)

// Client reads and replaces the remote copy of a timeline's override set.
type Client interface {
	// Pull fetches the current row. A missing row yields an empty set and
	// zero metadata.
	Pull(ctx context.Context) (models.Snapshot, error)
	// Push replaces the whole row with set and returns the provenance the
	// store recorded.
	Push(ctx context.Context, set models.PatchSet) (models.RemoteMeta, error)
	// IsEditor reports whether email is on the editor allowlist.
	IsEditor(ctx context.Context, email string) (bool, error)
	Close() error
}

// BackoffObserver is told about every wait before a retry. attempt starts
// at 1.
type BackoffObserver func(attempt int, wait time.Duration)

// RetryOptions control push retries.
type RetryOptions struct {
	Max      int
	Base     time.Duration
	Observer BackoffObserver
}

// DefaultRetryOptions retries twice, waiting 200ms then 400ms.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{Max: 2, Base: 200 * time.Millisecond}
}

func (o RetryOptions) observe(attempt int, wait time.Duration) {
	if o.Observer != nil {
		o.Observer(attempt, wait)
	}
}

// StatusError is an HTTP answer the client did not accept.
type StatusError struct {
	Code int
	Body string
	kind error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote answered %d", e.Code)
	}
	return fmt.Sprintf("remote answered %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return e.kind }

func statusError(code int, body string) *StatusError {
	var kind error
	switch {
	case code >= 500:
		kind = ErrTransient
	case code == 401 || code == 403:
		kind = ErrUnauthorized
	default:
		kind = ErrRejected
	}
	return &StatusError{Code: code, Body: body, kind: kind}
}

// IsTransient reports whether err is worth retrying later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Disabled is the client used when no remote is configured. Reads see an
// empty store and writes fail with ErrNotConfigured.
type Disabled struct{}

func (Disabled) Pull(context.Context) (models.Snapshot, error) {
	return models.Snapshot{Patches: models.PatchSet{}}, nil
}

func (Disabled) Push(context.Context, models.PatchSet) (models.RemoteMeta, error) {
	return models.RemoteMeta{}, ErrNotConfigured
}

func (Disabled) IsEditor(context.Context, string) (bool, error) { return false, nil }

func (Disabled) Close() error { return nil }
