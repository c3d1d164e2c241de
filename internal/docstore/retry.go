package docstore

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds read retries on ErrUnavailable.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy is used when a zero policy is passed to RetryReads.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 100 * time.Millisecond,
	MaxDelay:  2 * time.Second,
}

// retryingStore retries Get and Query with exponential backoff. Writes are passed
// through untouched: a timed-out write may have been applied.
type retryingStore struct {
	Store
	policy RetryPolicy
}

// RetryReads wraps store so reads are retried on ErrUnavailable.
func RetryReads(store Store, policy RetryPolicy) Store {
	if policy.Attempts <= 0 {
		policy = DefaultRetryPolicy
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return &retryingStore{Store: store, policy: policy}
}

func (s *retryingStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := s.retry(ctx, "get "+collection+"/"+id, func() error {
		var err error
		doc, err = s.Store.Get(ctx, collection, id)
		return err
	})
	return doc, err
}

func (s *retryingStore) Query(ctx context.Context, collection string, filter Filter, orderBy string, dir Direction) ([]Document, error) {
	var docs []Document
	err := s.retry(ctx, "query "+collection, func() error {
		var err error
		docs, err = s.Store.Query(ctx, collection, filter, orderBy, dir)
		return err
	})
	return docs, err
}

// retry runs fn under an exponential backoff. Only ErrUnavailable is retried; any
// other error ends the loop at once. A cancelled context returns the last store error.
func (s *retryingStore) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.BaseDelay
	b.MaxInterval = s.policy.MaxDelay

	attempt := 0
	var lastErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		lastErr = fn()
		if lastErr != nil && !errors.Is(lastErr, ErrUnavailable) {
			return struct{}{}, backoff.Permanent(lastErr)
		}
		return struct{}{}, lastErr
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.policy.Attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("[DocStore] %s unavailable (attempt %d/%d), retrying in %v", op, attempt, s.policy.Attempts, next)
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && lastErr != nil {
		return lastErr
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}
