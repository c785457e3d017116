package remoteconfig

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vitaliisemenov/remoteconfig/pkg/metrics"
)

// crashLoopFloor is the minimum elapsed time initialLoad enforces before
// propagating any unhandled failure, dampening orchestrator restart storms
// (spec §7).
const crashLoopFloor = 5 * time.Second

// RefreshEngine orchestrates initial load, incremental refresh, change
// application, adapter invalidation, and result publication (spec §4.7).
type RefreshEngine struct {
	registry  *ReplicaRegistry
	executor  *FailoverExecutor
	watchers  *WatcherSet
	store     *SettingStore
	adapters  *AdapterChain
	publisher *OutputPublisher
	backoff   *BackoffSchedule
	logger    *slog.Logger

	clientFor   func(*Replica) RemoteClient
	selectors   []Selector
	mappers     []Mapper
	keyPrefixes []string

	refreshing           atomic.Bool
	initializationExpiry time.Time
}

// RefreshEngineConfig bundles the dependencies and options RefreshEngine needs.
type RefreshEngineConfig struct {
	Registry    *ReplicaRegistry
	Executor    *FailoverExecutor
	Watchers    *WatcherSet
	Store       *SettingStore
	Adapters    *AdapterChain
	Publisher   *OutputPublisher
	Backoff     *BackoffSchedule
	Logger      *slog.Logger
	ClientFor   func(*Replica) RemoteClient
	Selectors   []Selector
	Mappers     []Mapper
	KeyPrefixes []string
}

// NewRefreshEngine wires a RefreshEngine from its configuration.
func NewRefreshEngine(cfg RefreshEngineConfig) *RefreshEngine {
	return &RefreshEngine{
		registry:    cfg.Registry,
		executor:    cfg.Executor,
		watchers:    cfg.Watchers,
		store:       cfg.Store,
		adapters:    cfg.Adapters,
		publisher:   cfg.Publisher,
		backoff:     cfg.Backoff,
		logger:      cfg.Logger,
		clientFor:   cfg.ClientFor,
		selectors:   cfg.Selectors,
		mappers:     cfg.Mappers,
		keyPrefixes: cfg.KeyPrefixes,
	}
}

// fullLoadResult is the intermediate outcome of one full-load replica attempt.
type fullLoadResult struct {
	settings []Setting
}

// InitialLoad performs the blocking initial load described in spec §4.7. If
// optional is true, terminal failures of the classes tryRefreshSwallows
// accepts (transient, auth, adapter, cancellation, timeout) are swallowed and
// the store is left empty rather than propagated, so the provider can still
// be constructed and retried on the next refresh; any other failure (e.g.
// KindInvalidConfig) is returned even when optional is true.
func (e *RefreshEngine) InitialLoad(ctx context.Context, optional bool, timeout time.Duration) error {
	startedAt := time.Now()
	deadline := startedAt.Add(timeout)
	var aggregate AggregateError
	attempt := 0

	for {
		replicas := e.registry.AllReplicas()
		result, err := Execute(ctx, e.executor, replicas, func(ctx context.Context, rep *Replica) (fullLoadResult, error) {
			return e.doFullLoad(ctx, rep)
		})

		if err == nil {
			e.applyFullLoad(result, time.Now())
			e.store.MarkLoaded()
			e.watchers.BumpAll(time.Now())
			e.republish(context.Background())
			metrics.RefreshTotal.WithLabelValues("success").Inc()
			return nil
		}

		aggregate.Attempts = append(aggregate.Attempts, err)

		if !IsFailoverable(err) && !IsCancelled(err) {
			return e.dampen(startedAt, optional, err)
		}

		if time.Now().After(deadline) {
			timeoutErr := NewError(KindTimeout, "initial load timed out", &aggregate)
			return e.dampen(startedAt, optional, timeoutErr)
		}

		attempt++
		delay := e.backoff.Next(time.Since(startedAt), attempt)
		if !sleepCtx(ctx, delay) {
			aggregate.Attempts = append(aggregate.Attempts, ctx.Err())
			cancelErr := NewError(KindTimeout, "initial load cancelled", &aggregate)
			return e.dampen(startedAt, optional, cancelErr)
		}
	}
}

// dampen enforces crashLoopFloor before returning err (or nil, if optional
// swallows it).
func (e *RefreshEngine) dampen(startedAt time.Time, optional bool, err error) error {
	elapsed := time.Since(startedAt)
	if elapsed < crashLoopFloor {
		time.Sleep(crashLoopFloor - elapsed)
	}

	metrics.RefreshTotal.WithLabelValues("error").Inc()

	if optional && tryRefreshSwallows(err) {
		if e.logger != nil {
			e.logger.Warn("optional initial load failed, continuing with empty store", "error", err)
		}
		return nil
	}
	return err
}

// doFullLoad runs every configured selector against one replica and returns
// the combined setting list.
func (e *RefreshEngine) doFullLoad(ctx context.Context, rep *Replica) (fullLoadResult, error) {
	client := e.clientFor(rep)
	var all []Setting

	for _, sel := range e.selectors {
		if sel.SnapshotName != "" {
			snap, err := client.GetSnapshot(ctx, sel.SnapshotName)
			if err != nil {
				return fullLoadResult{}, err
			}
			if snap.Composition != "key-partitioned" {
				return fullLoadResult{}, NewError(KindInvalidConfig, "snapshot composition must be key-partitioned, got "+snap.Composition, nil)
			}
			settings, err := client.ListSnapshot(ctx, sel.SnapshotName)
			if err != nil {
				return fullLoadResult{}, err
			}
			all = append(all, settings...)
			continue
		}

		settings, err := client.List(ctx, sel)
		if err != nil {
			return fullLoadResult{}, err
		}
		all = append(all, settings...)
	}

	return fullLoadResult{settings: all}, nil
}

// applyMappers runs setting through the ordered mapper chain. A nil return
// from any mapper drops the setting.
func (e *RefreshEngine) applyMappers(s Setting) *Setting {
	cur := s
	for _, m := range e.mappers {
		next := m(cur)
		if next == nil {
			return nil
		}
		cur = *next
	}
	return &cur
}

// applyFullLoad installs a fresh mapped/watched set derived from a full
// load or refreshAll reload result.
func (e *RefreshEngine) applyFullLoad(result fullLoadResult, now time.Time) {
	mapped := make(map[string]Setting)
	for _, s := range result.settings {
		if mappedSetting := e.applyMappers(s); mappedSetting != nil {
			mapped[mappedSetting.Key] = *mappedSetting
		}
		e.seedWatched(s)
	}
	e.store.ReplaceMapped(mapped)
}

// seedWatched records s in the watched set when it matches a configured
// single-key or prefix watcher identity (spec invariant 2).
func (e *RefreshEngine) seedWatched(s Setting) {
	for _, w := range e.watchers.Single {
		if w.Key == s.Key && w.Label == s.Label {
			e.store.PutWatched(s)
			return
		}
	}
	for _, p := range e.watchers.Prefix {
		if p.Label == s.Label && p.Matches(s.Key) {
			e.store.PutWatched(s)
			return
		}
	}
}

// Refresh performs a non-blocking, single-flight incremental refresh (spec
// §4.7). Concurrent callers while a refresh is in progress observe an
// immediate no-op success.
func (e *RefreshEngine) Refresh(ctx context.Context) error {
	if !e.refreshing.CompareAndSwap(false, true) {
		return nil
	}
	defer e.refreshing.Store(false)

	now := time.Now()
	expiredSingle := e.watchers.ExpiredSingle(now)
	expiredPrefix := e.watchers.ExpiredPrefix(now)

	if e.store.Loaded() && len(expiredSingle) == 0 && len(expiredPrefix) == 0 && !e.adapters.NeedsRefresh() {
		return nil
	}

	available := e.registry.AvailableReplicas(now)
	if len(available) == 0 {
		if e.logger != nil {
			e.logger.Warn("refresh skipped: no available replicas")
		}
		metrics.RefreshTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	if !e.store.Loaded() {
		if now.Before(e.initializationExpiry) {
			return nil
		}
		e.initializationExpiry = now.Add(e.watchers.EffectivePollInterval())

		result, err := Execute(ctx, e.executor, available, func(ctx context.Context, rep *Replica) (fullLoadResult, error) {
			return e.doFullLoad(ctx, rep)
		})
		if err != nil {
			metrics.RefreshTotal.WithLabelValues("error").Inc()
			return err
		}
		e.applyFullLoad(result, now)
		e.store.MarkLoaded()
		e.watchers.BumpAll(now)
		e.republish(ctx)
		metrics.RefreshTotal.WithLabelValues("success").Inc()
		return nil
	}

	type detectionResult struct {
		changes    []ChangeRecord
		refreshAll bool
		full       fullLoadResult
	}

	start := time.Now()
	detection, err := Execute(ctx, e.executor, available, func(ctx context.Context, rep *Replica) (detectionResult, error) {
		client := e.clientFor(rep)

		var changes []ChangeRecord
		for _, w := range expiredSingle {
			change, err := e.detectSingle(ctx, client, w)
			if err != nil {
				return detectionResult{}, err
			}
			changes = append(changes, change)
			if w.RefreshAll && change.Kind != ChangeNone {
				full, err := e.doFullLoad(ctx, rep)
				if err != nil {
					return detectionResult{}, err
				}
				return detectionResult{refreshAll: true, full: full}, nil
			}
		}

		for _, w := range expiredPrefix {
			settings, err := client.List(ctx, Selector{KeyFilter: w.KeyPattern, LabelFilter: w.Label})
			if err != nil {
				return detectionResult{}, err
			}
			old := e.store.WatchedSubset(w)
			changes = append(changes, collectPrefixChanges(old, settings, w.Label)...)
		}

		return detectionResult{changes: changes}, nil
	})
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return err
	}

	e.watchers.BumpExpired(now)

	changed := 0
	if detection.refreshAll {
		e.applyFullLoad(detection.full, now)
		e.watchers.BumpAll(now)
		e.adapters.Invalidate(nil)
		changed = len(detection.full.settings)
	} else {
		for _, change := range detection.changes {
			if change.Kind == ChangeNone {
				continue
			}
			changed++
			switch change.Kind {
			case ChangeModified:
				e.store.PutWatched(*change.Current)
				if mapped := e.applyMappers(*change.Current); mapped != nil {
					e.store.PutMapped(*mapped)
				} else {
					e.store.DeleteMapped(change.Key)
				}
			case ChangeDeleted:
				e.store.DeleteWatched(change.Key, change.Label)
				e.store.DeleteMapped(change.Key)
			}
			e.adapters.Invalidate(change.Current)
		}
	}

	if changed > 0 || e.adapters.NeedsRefresh() {
		e.republish(ctx)
	}

	metrics.RefreshTotal.WithLabelValues("success").Inc()
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	metrics.RefreshChangedSettings.Observe(float64(changed))
	metrics.RefreshLastSuccess.SetToCurrentTime()

	return nil
}

// detectSingle performs the conditional (or initial) fetch for one expired
// single-key watcher.
func (e *RefreshEngine) detectSingle(ctx context.Context, client RemoteClient, w *Watcher) (ChangeRecord, error) {
	known, ok := e.store.Watched(NewKeyLabelId(w.Key, w.Label))
	if !ok {
		setting, err := client.Get(ctx, w.Key, w.Label)
		if err != nil {
			if IsNotFound(err) {
				return ChangeRecord{Kind: ChangeNone, Key: w.Key, Label: w.Label}, nil
			}
			return ChangeRecord{}, err
		}
		s := setting
		metrics.WatcherEtagMismatches.WithLabelValues(w.Key, w.Label).Inc()
		return ChangeRecord{Kind: ChangeModified, Key: w.Key, Label: w.Label, Current: &s}, nil
	}

	change, err := client.GetChange(ctx, known)
	if err != nil {
		return ChangeRecord{}, err
	}
	if change.Kind != ChangeNone {
		metrics.WatcherEtagMismatches.WithLabelValues(w.Key, w.Label).Inc()
	}
	return change, nil
}

// IsNotFound reports whether err is the sentinel not-found error.
func IsNotFound(err error) bool {
	var rce *RemoteConfigError
	return errors.As(err, &rce) && rce.Kind == KindNotFound
}

// republish transforms mapped through the adapter chain, strips configured
// key prefixes, and installs the result through OutputPublisher.
func (e *RefreshEngine) republish(ctx context.Context) {
	mapped := e.store.MappedSnapshot()
	published := make(map[string]string, len(mapped))

	for _, setting := range mapped {
		entries, err := e.adapters.Process(ctx, setting)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("adapter processing failed, keeping previous published value", "key", setting.Key, "error", err)
			}
			continue
		}
		for _, kv := range entries {
			key := stripPrefixes(kv.Key, e.keyPrefixes)
			published[key] = kv.Value
		}
	}

	e.publisher.Publish(published)
}

// sleepCtx waits for d, respecting ctx cancellation. Returns true if the
// wait completed normally.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// TryRefresh calls Refresh and translates the expected error classes of
// spec §7 into a logged false; everything else propagates (spec's
// Provider surface contract).
func (e *RefreshEngine) TryRefresh(ctx context.Context) (bool, error) {
	err := e.Refresh(ctx)
	if err == nil {
		return true, nil
	}
	if tryRefreshSwallows(err) {
		if e.logger != nil {
			e.logger.Warn("refresh failed, will retry on next cycle", "error", err)
		}
		return false, nil
	}
	return false, err
}
