// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package places

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const maxAttempts = 5

type errorClass int

const (
	classSuccess errorClass = iota
	classInvalidKey
	classQuota
	classNetwork
	classOther
)

func classify(err error) errorClass {
	if err == nil {
		return classSuccess
	}
	if errors.Is(err, ErrInvalidKey) {
		return classInvalidKey
	}
	if errors.Is(err, ErrQuota) {
		return classQuota
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return classNetwork
	}
	return classOther
}

// rowBackOff implements backoff.BackOff with delay formula
// 250ms * 2^min(k-2, 6) + uniform[0, 250)ms for attempt k>=2.
// Attempt 1 (the first call) has no preceding delay.
type rowBackOff struct {
	attempt int
}

func (b *rowBackOff) NextBackOff() time.Duration {
	b.attempt++
	k := b.attempt + 1 // NextBackOff is called before attempt k>=2
	if k < 2 {
		return 0
	}
	exp := k - 2
	if exp > 6 {
		exp = 6
	}
	base := 250 * time.Millisecond * time.Duration(1<<uint(exp))
	jitter := time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
	return base + jitter
}

func (b *rowBackOff) Reset() { b.attempt = 0 }

// resolveWithRetry calls lookup.Resolve up to maxAttempts times,
// classifying each failure and stopping immediately on an InvalidKey
// error. Every attempt updates the process-wide counters.
func resolveWithRetry(ctx context.Context, lookup Lookup, q Query) (*Place, error) {
	bo := &rowBackOff{}
	op := func() (*Place, error) {
		recordAttempt()
		place, err := lookup.Resolve(ctx, q)
		class := classify(err)
		recordOutcome(class)
		if err == nil {
			return place, nil
		}
		if class == classInvalidKey {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(maxAttempts))
}
