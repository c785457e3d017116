package remoteconfig

import (
	"context"
	"log/slog"
	"time"
)

// FailoverExecutor runs one logical operation against an ordered replica
// list, advancing on fail-overable errors until success or exhaustion.
type FailoverExecutor struct {
	registry *ReplicaRegistry
	logger   *slog.Logger
}

// NewFailoverExecutor builds a FailoverExecutor bound to a registry.
func NewFailoverExecutor(registry *ReplicaRegistry, logger *slog.Logger) *FailoverExecutor {
	return &FailoverExecutor{registry: registry, logger: logger}
}

// Execute runs op against each replica in order until op succeeds, a
// non-fail-overable error occurs, the list is exhausted, or ctx is
// cancelled between attempts. On full exhaustion every tried replica is
// marked failed (entering cooldown) and the last error is returned.
func Execute[T any](ctx context.Context, fe *FailoverExecutor, replicas []*Replica, op func(context.Context, *Replica) (T, error)) (T, error) {
	var zero T
	var lastErr error
	var lastEndpoint string

	for i, rep := range replicas {
		if err := ctx.Err(); err != nil {
			var z T
			return z, NewError(KindCancelled, "failover cancelled", err)
		}

		result, err := op(ctx, rep)
		now := time.Now()
		if err == nil {
			fe.registry.MarkResult(rep, true, now)
			if i > 0 && fe.logger != nil {
				fe.logger.Info("failover succeeded on non-primary replica",
					"endpoint", rep.Endpoint, "attempt_index", i)
			}
			return result, nil
		}

		if !IsFailoverable(err) {
			fe.registry.MarkResult(rep, false, now)
			return zero, err
		}

		fe.registry.MarkResult(rep, false, now)
		if lastEndpoint != "" && lastEndpoint != rep.Endpoint && fe.logger != nil {
			fe.logger.Warn("failing over to next replica",
				"from", lastEndpoint, "to", rep.Endpoint, "error", err)
		}
		lastErr = err
		lastEndpoint = rep.Endpoint
	}

	if lastErr == nil {
		lastErr = NewError(KindTransient, "no replicas available", nil)
	}
	return zero, lastErr
}
