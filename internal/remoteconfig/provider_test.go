package remoteconfig

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_ResolvedEndpoints_PrefersExplicitEndpoints(t *testing.T) {
	opts := Options{Endpoints: []string{"https://a"}, ConnectionStrings: []string{"Endpoint=https://b"}}
	got, err := opts.resolvedEndpoints()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a"}, got)
}

func TestOptions_ResolvedEndpoints_ParsesConnectionStrings(t *testing.T) {
	opts := Options{ConnectionStrings: []string{"Endpoint=https://b;Id=abc;Secret=def"}}
	got, err := opts.resolvedEndpoints()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b"}, got)
}

func TestOptions_ResolvedEndpoints_ErrorsWithNeitherSet(t *testing.T) {
	_, err := Options{}.resolvedEndpoints()
	require.Error(t, err)
	var rce *RemoteConfigError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, KindInvalidConfig, rce.Kind)
}

func TestOptions_ResolvedEndpoints_ErrorsOnMalformedConnectionString(t *testing.T) {
	_, err := Options{ConnectionStrings: []string{"Id=abc;Secret=def"}}.resolvedEndpoints()
	require.Error(t, err)
}

func TestNew_RequiresClientFor(t *testing.T) {
	_, err := New(context.Background(), Options{Endpoints: []string{"https://a"}}, false)
	require.Error(t, err)
}

func TestNew_PerformsInitialLoadAndExposesData(t *testing.T) {
	client := newFakeRemoteClient(Setting{Key: "app:timeout", ETag: "e1", Value: "30"})

	p, err := New(context.Background(), Options{
		Endpoints:      []string{"https://a"},
		Selectors:      []Selector{{}},
		StartupTimeout: time.Second,
		ClientFor:      func(*Replica) RemoteClient { return client },
	}, false)

	require.NoError(t, err)
	assert.Equal(t, "30", p.Data()["app:timeout"])
}

func TestNew_PropagatesRequiredInitialLoadFailure(t *testing.T) {
	client := newFakeRemoteClient()
	client.listErr = NewError(KindAuth, "forbidden", nil)

	_, err := New(context.Background(), Options{
		Endpoints:      []string{"https://a"},
		Selectors:      []Selector{{}},
		StartupTimeout: time.Second,
		ClientFor:      func(*Replica) RemoteClient { return client },
	}, false)

	require.Error(t, err)
}

func TestProvider_ProcessPushNotificationAndSnapshot(t *testing.T) {
	client := newFakeRemoteClient(Setting{Key: "app:timeout", ETag: "e1", Value: "30"})

	p, err := New(context.Background(), Options{
		Endpoints:      []string{"https://a"},
		Selectors:      []Selector{{}},
		ChangeWatchers: []Watcher{{Key: "app:timeout", PollInterval: time.Hour}},
		StartupTimeout: time.Second,
		ClientFor:      func(*Replica) RemoteClient { return client },
	}, false)
	require.NoError(t, err)

	snap := p.Snapshot()
	assert.Equal(t, "30", snap.Published["app:timeout"])

	zero := time.Duration(0)
	err = p.ProcessPushNotification(PushNotification{
		SyncToken: "t1", EventType: "KeyValueModified", ResourceURI: "https://a", MaxDelay: &zero,
	})
	require.NoError(t, err)

	client.put(Setting{Key: "app:timeout", ETag: "e2", Value: "60"})
	ok := p.TryRefresh(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "60", p.Data()["app:timeout"])
}

func TestProvider_RunDiscovery_NoopWithoutDiscoverySource(t *testing.T) {
	client := newFakeRemoteClient(Setting{Key: "a", ETag: "e1", Value: "1"})
	p, err := New(context.Background(), Options{
		Endpoints:      []string{"https://a"},
		Selectors:      []Selector{{}},
		StartupTimeout: time.Second,
		ClientFor:      func(*Replica) RemoteClient { return client },
	}, false)
	require.NoError(t, err)

	require.NoError(t, p.RunDiscovery(context.Background()))
}
