// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package places

import "errors"

// ErrInvalidKey is returned by a Lookup implementation when the remote
// geocoding service rejects the request's credentials (HTTP
// 401/402/403). It is never retried.
var ErrInvalidKey = errors.New("invalid geocoding API key")

// ErrQuota is returned when the remote service signals rate limiting or
// transient unavailability (HTTP 429/503). It is retried with backoff.
var ErrQuota = errors.New("geocoding quota exceeded")

// ErrCancelled names a normalization cancelled mid-pass. Normalize does
// not return it: on cancel it stops early and returns its stats with a
// nil error, counting the rows not reached as unresolved.
var ErrCancelled = errors.New("normalization cancelled")
