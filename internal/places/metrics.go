// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package places

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// processCounters are process-wide, monotonic, and shared across every
// Normalizer instance in the running process.
var processCounters struct {
	totalRequests    atomic.Int64
	successes        atomic.Int64
	quotaErrors      atomic.Int64
	invalidKeyErrors atomic.Int64
	networkErrors    atomic.Int64
	otherErrors      atomic.Int64
}

// promVec exposes the same counters to a Prometheus scrape endpoint,
// labeled by outcome, alongside the in-process atomics the Normalizer
// reads back directly for its per-call NormalizationStats snapshot.
var promVec = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "listcompare",
	Subsystem: "places",
	Name:      "remote_lookup_total",
	Help:      "Remote place-lookup attempts, labeled by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(promVec)
}

func recordAttempt() {
	processCounters.totalRequests.Add(1)
	promVec.WithLabelValues("attempt").Inc()
}

func recordOutcome(class errorClass) {
	switch class {
	case classSuccess:
		processCounters.successes.Add(1)
		promVec.WithLabelValues("success").Inc()
	case classInvalidKey:
		processCounters.invalidKeyErrors.Add(1)
		promVec.WithLabelValues("invalid_key").Inc()
	case classQuota:
		processCounters.quotaErrors.Add(1)
		promVec.WithLabelValues("quota").Inc()
	case classNetwork:
		processCounters.networkErrors.Add(1)
		promVec.WithLabelValues("network").Inc()
	default:
		processCounters.otherErrors.Add(1)
		promVec.WithLabelValues("other").Inc()
	}
}

// snapshotCounters reads the current process-wide counters.
func snapshotCounters() Counters {
	return Counters{
		TotalRequests:    processCounters.totalRequests.Load(),
		Successes:        processCounters.successes.Load(),
		QuotaErrors:      processCounters.quotaErrors.Load(),
		InvalidKeyErrors: processCounters.invalidKeyErrors.Load(),
		NetworkErrors:    processCounters.networkErrors.Load(),
		OtherErrors:      processCounters.otherErrors.Load(),
	}
}
