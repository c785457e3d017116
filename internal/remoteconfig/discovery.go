package remoteconfig

import (
	"context"
	"log/slog"
	"time"
)

// EndpointSource resolves a set of replica URIs at runtime. k8s.EndpointClient
// satisfies this by listing a headless Service's ready Endpoints addresses.
type EndpointSource interface {
	ListEndpoints(ctx context.Context, namespace, serviceName string) ([]string, error)
}

const defaultDiscoveryInterval = 15 * time.Second

// ReplicaDiscovery periodically resolves a replica set through an
// EndpointSource and folds it into a ReplicaRegistry, so a fixed,
// hand-configured endpoint list is optional rather than required (spec §6's
// Configuration options, "Endpoints ... statically or resolved externally").
type ReplicaDiscovery struct {
	source      EndpointSource
	registry    *ReplicaRegistry
	namespace   string
	serviceName string
	interval    time.Duration
	logger      *slog.Logger
}

// NewReplicaDiscovery builds a discovery loop targeting one Service's
// Endpoints. interval <= 0 defaults to 15s.
func NewReplicaDiscovery(source EndpointSource, registry *ReplicaRegistry, namespace, serviceName string, interval time.Duration, logger *slog.Logger) *ReplicaDiscovery {
	if interval <= 0 {
		interval = defaultDiscoveryInterval
	}
	return &ReplicaDiscovery{
		source:      source,
		registry:    registry,
		namespace:   namespace,
		serviceName: serviceName,
		interval:    interval,
		logger:      logger,
	}
}

// Run resolves the replica set once immediately, then on every tick, until
// ctx is cancelled. Resolution failures are logged and skipped: a transient
// discovery-API outage must not empty the registry that failover depends on.
func (d *ReplicaDiscovery) Run(ctx context.Context) error {
	d.resolveOnce(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.resolveOnce(ctx)
		}
	}
}

func (d *ReplicaDiscovery) resolveOnce(ctx context.Context) {
	endpoints, err := d.source.ListEndpoints(ctx, d.namespace, d.serviceName)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("replica discovery failed, keeping previous replica set",
				"namespace", d.namespace, "service", d.serviceName, "error", err)
		}
		return
	}
	if len(endpoints) == 0 {
		if d.logger != nil {
			d.logger.Warn("replica discovery returned no ready endpoints, keeping previous replica set",
				"namespace", d.namespace, "service", d.serviceName)
		}
		return
	}
	d.registry.Merge(endpoints)
}
