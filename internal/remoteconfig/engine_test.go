package remoteconfig

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemoteClient is a scriptable RemoteClient test double. listErr/getErr,
// when set, are returned (and cleared if once-only) instead of consulting
// settings, to simulate a replica that is transiently unreachable.
type fakeRemoteClient struct {
	settings map[KeyLabelId]Setting
	listErr  error
	getErr   error
	snapshot *Snapshot
	calls    int
}

func newFakeRemoteClient(settings ...Setting) *fakeRemoteClient {
	m := make(map[KeyLabelId]Setting, len(settings))
	for _, s := range settings {
		m[NewKeyLabelId(s.Key, s.Label)] = s
	}
	return &fakeRemoteClient{settings: m}
}

func (c *fakeRemoteClient) List(_ context.Context, selector Selector) ([]Setting, error) {
	c.calls++
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []Setting
	for _, s := range c.settings {
		if selector.LabelFilter != "" && s.Label != selector.LabelFilter {
			continue
		}
		if selector.KeyFilter != "" {
			w := PrefixWatcher{KeyPattern: selector.KeyFilter}
			if !w.Matches(s.Key) {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *fakeRemoteClient) ListSnapshot(_ context.Context, name string) ([]Setting, error) {
	var out []Setting
	for _, s := range c.settings {
		out = append(out, s)
	}
	return out, nil
}

func (c *fakeRemoteClient) GetSnapshot(_ context.Context, name string) (Snapshot, error) {
	if c.snapshot != nil {
		return *c.snapshot, nil
	}
	return Snapshot{Name: name, Composition: "key-partitioned"}, nil
}

func (c *fakeRemoteClient) Get(_ context.Context, key, label string) (Setting, error) {
	c.calls++
	if c.getErr != nil {
		return Setting{}, c.getErr
	}
	s, ok := c.settings[NewKeyLabelId(key, label)]
	if !ok {
		return Setting{}, ErrSettingNotFound
	}
	return s, nil
}

func (c *fakeRemoteClient) GetChange(_ context.Context, known Setting) (ChangeRecord, error) {
	c.calls++
	if c.getErr != nil {
		return ChangeRecord{}, c.getErr
	}
	s, ok := c.settings[NewKeyLabelId(known.Key, known.Label)]
	if !ok {
		return ChangeRecord{Kind: ChangeDeleted, Key: known.Key, Label: known.Label}, nil
	}
	if s.ETag == known.ETag {
		return ChangeRecord{Kind: ChangeNone, Key: known.Key, Label: known.Label}, nil
	}
	cur := s
	return ChangeRecord{Kind: ChangeModified, Key: known.Key, Label: known.Label, Current: &cur}, nil
}

func (c *fakeRemoteClient) put(s Setting) {
	c.settings[NewKeyLabelId(s.Key, s.Label)] = s
}

func (c *fakeRemoteClient) delete(key, label string) {
	delete(c.settings, NewKeyLabelId(key, label))
}

func newTestEngine(t *testing.T, endpoints []string, clients map[string]*fakeRemoteClient, opts RefreshEngineConfig) *RefreshEngine {
	t.Helper()
	backoffSchedule := NewBackoffSchedule()
	backoffSchedule.StartupWindow = time.Hour
	backoffSchedule.Min = time.Millisecond
	backoffSchedule.Max = 5 * time.Millisecond

	registry := NewReplicaRegistry(endpoints, backoffSchedule, nil)
	executor := NewFailoverExecutor(registry, nil)
	watchers := opts.Watchers
	if watchers == nil {
		watchers = NewWatcherSet(nil, nil)
	}
	store := NewSettingStore()
	adapters := NewAdapterChain(opts.Adapters)
	publisher := NewOutputPublisher()

	return NewRefreshEngine(RefreshEngineConfig{
		Registry:  registry,
		Executor:  executor,
		Watchers:  watchers,
		Store:     store,
		Adapters:  adapters,
		Publisher: publisher,
		Backoff:   backoffSchedule,
		ClientFor: func(rep *Replica) RemoteClient {
			return clients[rep.Endpoint]
		},
		Selectors:   opts.Selectors,
		Mappers:     opts.Mappers,
		KeyPrefixes: opts.KeyPrefixes,
	})
}

// Scenario 1: happy initial load against a single healthy replica.
func TestInitialLoad_HappyPath(t *testing.T) {
	client := newFakeRemoteClient(
		Setting{Key: "app:timeout", ETag: "e1", Value: "30"},
		Setting{Key: "app:retries", ETag: "e1", Value: "3"},
	)
	engine := newTestEngine(t, []string{"https://a"}, map[string]*fakeRemoteClient{"https://a": client},
		RefreshEngineConfig{Selectors: []Selector{{}}})

	err := engine.InitialLoad(context.Background(), false, time.Second)

	require.NoError(t, err)
	assert.True(t, engine.store.Loaded())
	data := engine.publisher.Data()
	assert.Equal(t, "30", data["app:timeout"])
	assert.Equal(t, "3", data["app:retries"])
}

// Scenario 2: primary replica fails transiently during initial load, engine
// fails over to the secondary and still completes the load.
func TestInitialLoad_FailsOverToSecondaryReplica(t *testing.T) {
	primary := newFakeRemoteClient()
	primary.listErr = NewError(KindTransient, "primary down", nil)
	secondary := newFakeRemoteClient(Setting{Key: "app:timeout", ETag: "e1", Value: "30"})

	engine := newTestEngine(t, []string{"https://primary", "https://secondary"},
		map[string]*fakeRemoteClient{"https://primary": primary, "https://secondary": secondary},
		RefreshEngineConfig{Selectors: []Selector{{}}})

	err := engine.InitialLoad(context.Background(), false, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "30", engine.publisher.Data()["app:timeout"])
	assert.Equal(t, 1, engine.registry.AllReplicas()[0].ConsecutiveFailures)
}

// Scenario 3: an incremental refresh detects an etag change on a watched
// single key and republishes just that key.
func TestRefresh_IncrementalChangeOnWatchedKey(t *testing.T) {
	client := newFakeRemoteClient(Setting{Key: "app:timeout", ETag: "e1", Value: "30"})
	watchers := NewWatcherSet([]Watcher{{Key: "app:timeout", PollInterval: time.Minute}}, nil)

	engine := newTestEngine(t, []string{"https://a"}, map[string]*fakeRemoteClient{"https://a": client},
		RefreshEngineConfig{Selectors: []Selector{{}}, Watchers: watchers})

	require.NoError(t, engine.InitialLoad(context.Background(), false, time.Second))
	assert.Equal(t, "30", engine.publisher.Data()["app:timeout"])

	client.put(Setting{Key: "app:timeout", ETag: "e2", Value: "60"})
	watchers.Single[0].NextDueAt = time.Now().Add(-time.Second)

	require.NoError(t, engine.Refresh(context.Background()))

	assert.Equal(t, "60", engine.publisher.Data()["app:timeout"])
}

// Scenario 4: a RefreshAll watcher's change promotes the cycle to a full
// reload instead of an incremental apply.
func TestRefresh_RefreshAllWatcherTriggersFullReload(t *testing.T) {
	client := newFakeRemoteClient(
		Setting{Key: "sentinel", ETag: "e1", Value: "v1"},
		Setting{Key: "app:timeout", ETag: "e1", Value: "30"},
	)
	watchers := NewWatcherSet([]Watcher{{Key: "sentinel", PollInterval: time.Minute, RefreshAll: true}}, nil)

	engine := newTestEngine(t, []string{"https://a"}, map[string]*fakeRemoteClient{"https://a": client},
		RefreshEngineConfig{Selectors: []Selector{{}}, Watchers: watchers})

	require.NoError(t, engine.InitialLoad(context.Background(), false, time.Second))

	client.put(Setting{Key: "sentinel", ETag: "e2", Value: "v2"})
	client.put(Setting{Key: "app:timeout", ETag: "e1", Value: "99"})
	watchers.Single[0].NextDueAt = time.Now().Add(-time.Second)

	require.NoError(t, engine.Refresh(context.Background()))

	assert.Equal(t, "99", engine.publisher.Data()["app:timeout"], "refreshAll must re-run every selector, not just detect the sentinel")
}

// Scenario 5: an accelerated watcher (as PushIntake.Process would produce)
// is picked up by the very next Refresh even though its poll interval has
// not otherwise elapsed.
func TestRefresh_PushAcceleratedWatcherIsHonored(t *testing.T) {
	client := newFakeRemoteClient(Setting{Key: "app:timeout", ETag: "e1", Value: "30"})
	watchers := NewWatcherSet([]Watcher{{Key: "app:timeout", PollInterval: time.Hour, NextDueAt: time.Now().Add(time.Hour)}}, nil)

	engine := newTestEngine(t, []string{"https://a"}, map[string]*fakeRemoteClient{"https://a": client},
		RefreshEngineConfig{Selectors: []Selector{{}}, Watchers: watchers})
	require.NoError(t, engine.InitialLoad(context.Background(), false, time.Second))

	registry := engine.registry
	intake := NewPushIntake(registry, watchers, 1000, 1000, nil)
	zero := time.Duration(0)
	require.NoError(t, intake.Process(PushNotification{
		SyncToken: "t1", EventType: "KeyValueModified", ResourceURI: "https://a", MaxDelay: &zero,
	}, time.Now()))

	client.put(Setting{Key: "app:timeout", ETag: "e2", Value: "75"})

	require.NoError(t, engine.Refresh(context.Background()))
	assert.Equal(t, "75", engine.publisher.Data()["app:timeout"])
}

// Scenario 6: an optional provider tolerates every replica being down and
// leaves the published mapping empty rather than propagating the error.
func TestInitialLoad_OptionalToleratesTotalOutage(t *testing.T) {
	client := newFakeRemoteClient()
	client.listErr = NewError(KindTransient, "down", nil)

	engine := newTestEngine(t, []string{"https://a"}, map[string]*fakeRemoteClient{"https://a": client},
		RefreshEngineConfig{Selectors: []Selector{{}}})

	start := time.Now()
	err := engine.InitialLoad(context.Background(), true, 20*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, engine.store.Loaded())
	assert.GreaterOrEqual(t, elapsed, crashLoopFloor, "dampen must enforce the crash-loop floor even on a swallowed failure")
}

func TestInitialLoad_RequiredPropagatesOnTotalOutage(t *testing.T) {
	client := newFakeRemoteClient()
	client.listErr = NewError(KindTransient, "down", nil)

	engine := newTestEngine(t, []string{"https://a"}, map[string]*fakeRemoteClient{"https://a": client},
		RefreshEngineConfig{Selectors: []Selector{{}}})

	err := engine.InitialLoad(context.Background(), false, 20*time.Millisecond)

	require.Error(t, err)
	assert.False(t, engine.store.Loaded())
}

func TestRefresh_SingleFlightNoopsWhileInProgress(t *testing.T) {
	client := newFakeRemoteClient(Setting{Key: "a", ETag: "e1", Value: "1"})
	engine := newTestEngine(t, []string{"https://a"}, map[string]*fakeRemoteClient{"https://a": client},
		RefreshEngineConfig{Selectors: []Selector{{}}})
	require.NoError(t, engine.InitialLoad(context.Background(), false, time.Second))

	engine.refreshing.Store(true)
	defer engine.refreshing.Store(false)

	err := engine.Refresh(context.Background())
	require.NoError(t, err, "a concurrent caller must observe an immediate no-op success")
}

func TestRefresh_NoOpWhenLoadedAndNothingExpired(t *testing.T) {
	client := newFakeRemoteClient(Setting{Key: "a", ETag: "e1", Value: "1"})
	watchers := NewWatcherSet([]Watcher{{Key: "a", PollInterval: time.Hour, NextDueAt: time.Now().Add(time.Hour)}}, nil)
	engine := newTestEngine(t, []string{"https://a"}, map[string]*fakeRemoteClient{"https://a": client},
		RefreshEngineConfig{Selectors: []Selector{{}}, Watchers: watchers})
	require.NoError(t, engine.InitialLoad(context.Background(), false, time.Second))

	callsBefore := client.calls
	require.NoError(t, engine.Refresh(context.Background()))
	assert.Equal(t, callsBefore, client.calls, "no expired watcher and no pending adapter work must skip the network entirely")
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrSettingNotFound))
	assert.False(t, IsNotFound(NewError(KindTransient, "x", nil)))
}
