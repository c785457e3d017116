package remoteconfig

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vitaliisemenov/remoteconfig/pkg/metrics"
)

// ReplicaRegistry tracks replica endpoints, their health, backoff-until
// timestamps, and sync tokens, and orders replicas for dispatch.
type ReplicaRegistry struct {
	mu       sync.Mutex
	replicas []*Replica
	backoff  *BackoffSchedule
	logger   *slog.Logger
}

// NewReplicaRegistry builds a registry from a configured, ordered endpoint
// list. The configured order (typically primary first) is preserved as the
// stable preference order.
func NewReplicaRegistry(endpoints []string, backoffSchedule *BackoffSchedule, logger *slog.Logger) *ReplicaRegistry {
	replicas := make([]*Replica, len(endpoints))
	for i, ep := range endpoints {
		replicas[i] = &Replica{Endpoint: ep}
	}
	return &ReplicaRegistry{
		replicas: replicas,
		backoff:  backoffSchedule,
		logger:   logger,
	}
}

// AllReplicas returns every known replica, in preference order, regardless
// of cooldown state.
func (r *ReplicaRegistry) AllReplicas() []*Replica {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Replica, len(r.replicas))
	copy(out, r.replicas)
	return out
}

// AvailableReplicas returns replicas with BackoffUntil <= now, in preference
// order (spec invariant 6).
func (r *ReplicaRegistry) AvailableReplicas(now time.Time) []*Replica {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Replica, 0, len(r.replicas))
	for _, rep := range r.replicas {
		available := !now.Before(rep.BackoffUntil)
		metrics.ReplicaAvailable.WithLabelValues(rep.Endpoint).Set(boolToFloat(available))
		if available {
			out = append(out, rep)
		}
	}
	return out
}

// MarkResult records the outcome of an attempt against one replica.
func (r *ReplicaRegistry) MarkResult(rep *Replica, success bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if success {
		rep.ConsecutiveFailures = 0
		rep.BackoffUntil = now
		metrics.ReplicaRequestsTotal.WithLabelValues(rep.Endpoint, "success").Inc()
		return
	}

	rep.ConsecutiveFailures++
	cooldown := r.backoff.ReplicaCooldown(rep.ConsecutiveFailures)
	rep.BackoffUntil = now.Add(cooldown)
	metrics.ReplicaRequestsTotal.WithLabelValues(rep.Endpoint, "failure").Inc()
	metrics.ReplicaBackoffSeconds.WithLabelValues(rep.Endpoint).Observe(cooldown.Seconds())

	if r.logger != nil {
		r.logger.Warn("replica entering cooldown",
			"endpoint", rep.Endpoint,
			"consecutive_failures", rep.ConsecutiveFailures,
			"backoff_until", rep.BackoffUntil,
		)
	}
}

// UpdateSyncToken records a push-delivered sync token for the replica whose
// endpoint matches resourceURI exactly. Returns false without mutating any
// state when resourceURI names no known replica (spec's sync-token
// isolation property).
func (r *ReplicaRegistry) UpdateSyncToken(resourceURI, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rep := range r.replicas {
		if rep.Endpoint == resourceURI {
			rep.SyncToken = token
			return true
		}
	}
	return false
}

// Merge replaces the registry's replica set with freshEndpoints, preserving
// the backoff/failure/sync-token state of any endpoint that survives the
// update and dropping replicas no longer present. Used by an optional
// discovery source (e.g. Kubernetes Endpoints) that resolves the replica
// list at runtime instead of it being statically configured.
func (r *ReplicaRegistry) Merge(freshEndpoints []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := make(map[string]*Replica, len(r.replicas))
	for _, rep := range r.replicas {
		existing[rep.Endpoint] = rep
	}

	merged := make([]*Replica, 0, len(freshEndpoints))
	for _, ep := range freshEndpoints {
		if rep, ok := existing[ep]; ok {
			merged = append(merged, rep)
			continue
		}
		merged = append(merged, &Replica{Endpoint: ep})
	}

	if r.logger != nil && len(merged) != len(r.replicas) {
		r.logger.Info("replica set updated by discovery", "count", len(merged))
	}
	r.replicas = merged
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
