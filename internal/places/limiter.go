// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package places

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

const (
	minQPS           = 1
	maxQPS           = 10
	minIntervalFloor = 50 * time.Millisecond
)

// RateLimiter enforces the minimum interval between remote-lookup
// calls: ceil(1000/qps) ms, floored at 50ms. It wraps
// golang.org/x/time/rate's token bucket with burst 1, giving a
// "wait until elapsed >= interval, then stamp now" behavior without a
// bespoke mutex-and-timestamp type.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter constructs a RateLimiter for qps, clamped to [1, 10].
func NewRateLimiter(qps int) *RateLimiter {
	if qps < minQPS {
		qps = minQPS
	}
	if qps > maxQPS {
		qps = maxQPS
	}
	interval := time.Duration(math.Ceil(1000.0/float64(qps))) * time.Millisecond
	if interval < minIntervalFloor {
		interval = minIntervalFloor
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is permitted or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
