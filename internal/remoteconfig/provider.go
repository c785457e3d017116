package remoteconfig

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Options enumerates the provider's configuration surface (spec §6).
type Options struct {
	// Endpoints is the ordered list of configuration service replica URIs.
	// ConnectionStrings is an alternative form (e.g. "Endpoint=...;Id=...;Secret=...");
	// at least one of the two must be non-empty, and Endpoints is used when
	// both are set.
	Endpoints         []string
	ConnectionStrings []string

	Selectors      []Selector
	ChangeWatchers []Watcher
	PrefixWatchers []PrefixWatcher
	Mappers        []Mapper
	KeyPrefixes    []string
	Adapters       []Adapter

	StartupTimeout        time.Duration
	RequestTracingEnabled bool

	// PushNotificationRate/Burst bound the admin/relay push intake rate.
	PushNotificationRate  float64
	PushNotificationBurst int

	// ClientFor resolves a Replica to the RemoteClient used to talk to it.
	// Required: the wire client itself is an external collaborator (spec §1).
	ClientFor func(*Replica) RemoteClient

	// Discovery, when set, resolves the replica list at runtime (e.g. from a
	// Kubernetes Service's Endpoints) instead of it being limited to the
	// static Endpoints/ConnectionStrings list. Namespace/ServiceName name the
	// Service to watch; DiscoveryInterval defaults to 15s.
	Discovery            EndpointSource
	DiscoveryNamespace   string
	DiscoveryServiceName string
	DiscoveryInterval    time.Duration

	Backoff *BackoffSchedule
	Logger  *slog.Logger
}

// resolvedEndpoints returns Endpoints, or the endpoint portion parsed out of
// ConnectionStrings when Endpoints is empty.
func (o Options) resolvedEndpoints() ([]string, error) {
	if len(o.Endpoints) > 0 {
		return o.Endpoints, nil
	}
	if len(o.ConnectionStrings) == 0 {
		return nil, NewError(KindInvalidConfig, "one of Endpoints or ConnectionStrings is required", nil)
	}
	out := make([]string, 0, len(o.ConnectionStrings))
	for _, cs := range o.ConnectionStrings {
		endpoint, err := parseConnectionStringEndpoint(cs)
		if err != nil {
			return nil, err
		}
		out = append(out, endpoint)
	}
	return out, nil
}

// parseConnectionStringEndpoint extracts the "Endpoint=" component of a
// semicolon-delimited connection string of the form
// "Endpoint=https://host;Id=...;Secret=...".
func parseConnectionStringEndpoint(cs string) (string, error) {
	const prefix = "Endpoint="
	for _, part := range splitSemicolon(cs) {
		if len(part) > len(prefix) && part[:len(prefix)] == prefix {
			return part[len(prefix):], nil
		}
	}
	return "", NewError(KindInvalidConfig, "connection string missing Endpoint component", nil)
}

func splitSemicolon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// Provider is the public surface consumed by host applications: it loads
// and continuously refreshes a published key-value mapping from a remote
// configuration service.
type Provider struct {
	engine    *RefreshEngine
	publisher *OutputPublisher
	store     *SettingStore
	registry  *ReplicaRegistry
	push      *PushIntake
	discovery *ReplicaDiscovery
	options   Options
}

// New constructs a Provider and performs its blocking initial load. optional,
// when true, tolerates a total outage by leaving the published mapping
// empty (spec §4.7, scenario 6).
func New(ctx context.Context, opts Options, optional bool) (*Provider, error) {
	if opts.ClientFor == nil {
		return nil, NewError(KindInvalidConfig, "ClientFor is required", nil)
	}

	var endpoints []string
	if opts.Discovery != nil {
		discovered, err := opts.Discovery.ListEndpoints(ctx, opts.DiscoveryNamespace, opts.DiscoveryServiceName)
		if err != nil {
			return nil, fmt.Errorf("remoteconfig: initial replica discovery failed: %w", err)
		}
		endpoints = discovered
	} else {
		resolved, err := opts.resolvedEndpoints()
		if err != nil {
			return nil, err
		}
		endpoints = resolved
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backoffSchedule := opts.Backoff
	if backoffSchedule == nil {
		backoffSchedule = NewBackoffSchedule()
	}

	registry := NewReplicaRegistry(endpoints, backoffSchedule, logger)
	executor := NewFailoverExecutor(registry, logger)
	watchers := NewWatcherSet(opts.ChangeWatchers, opts.PrefixWatchers)
	store := NewSettingStore()
	adapters := NewAdapterChain(opts.Adapters)
	publisher := NewOutputPublisher()

	pushRate := opts.PushNotificationRate
	if pushRate <= 0 {
		pushRate = 10
	}
	pushBurst := opts.PushNotificationBurst
	if pushBurst <= 0 {
		pushBurst = 5
	}
	push := NewPushIntake(registry, watchers, pushRate, pushBurst, logger)

	startupTimeout := opts.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = 100 * time.Second
	}

	engine := NewRefreshEngine(RefreshEngineConfig{
		Registry:    registry,
		Executor:    executor,
		Watchers:    watchers,
		Store:       store,
		Adapters:    adapters,
		Publisher:   publisher,
		Backoff:     backoffSchedule,
		Logger:      logger,
		ClientFor:   opts.ClientFor,
		Selectors:   opts.Selectors,
		Mappers:     opts.Mappers,
		KeyPrefixes: opts.KeyPrefixes,
	})

	p := &Provider{
		engine:    engine,
		publisher: publisher,
		store:     store,
		registry:  registry,
		push:      push,
		options:   opts,
	}

	if opts.Discovery != nil {
		p.discovery = NewReplicaDiscovery(opts.Discovery, registry, opts.DiscoveryNamespace, opts.DiscoveryServiceName, opts.DiscoveryInterval, logger)
	}

	if err := engine.InitialLoad(ctx, optional, startupTimeout); err != nil {
		return nil, fmt.Errorf("remoteconfig: initial load failed: %w", err)
	}

	return p, nil
}

// RunDiscovery blocks, periodically re-resolving the replica set via the
// configured Discovery source, until ctx is cancelled. A no-op returning nil
// immediately when no Discovery source was configured.
func (p *Provider) RunDiscovery(ctx context.Context) error {
	if p.discovery == nil {
		return nil
	}
	return p.discovery.Run(ctx)
}

// Load re-runs the blocking initial load (exposed for hosts that construct
// the provider in two phases; New already performs it once).
func (p *Provider) Load(ctx context.Context, optional bool, timeout time.Duration) error {
	return p.engine.InitialLoad(ctx, optional, timeout)
}

// Refresh runs an incremental refresh cycle; cancellable via ctx.
func (p *Provider) Refresh(ctx context.Context) error {
	return p.engine.Refresh(ctx)
}

// TryRefresh calls Refresh, translating the expected error classes into a
// logged false (spec §6's Provider surface).
func (p *Provider) TryRefresh(ctx context.Context) bool {
	ok, _ := p.engine.TryRefresh(ctx)
	return ok
}

// ProcessPushNotification accepts an external dirty signal that accelerates
// the next refresh.
func (p *Provider) ProcessPushNotification(n PushNotification) error {
	return p.push.Process(n, time.Now())
}

// Data returns the currently published key-value mapping.
func (p *Provider) Data() map[string]string {
	return p.publisher.Data()
}

// OnReload registers an observer invoked after every successful publish.
func (p *Provider) OnReload(obs ReloadObserver) {
	p.publisher.OnReload(obs)
}

// PushIntake exposes the provider's push-notification intake so an external
// transport (the admin HTTP webhook, a Redis relay) can feed it directly
// instead of going through ProcessPushNotification's PushNotification shape.
func (p *Provider) PushIntake() *PushIntake {
	return p.push
}

// Snapshot returns a diagnostic, read-only view of internal store state,
// used by the admin /v1/config endpoint.
func (p *Provider) Snapshot() StoreSnapshot {
	return p.store.Snapshot(p.Data())
}
