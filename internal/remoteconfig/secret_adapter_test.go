package remoteconfig

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	calls   int
	value   string
	err     error
	lastRef string
}

func (r *stubResolver) Resolve(_ context.Context, reference string) (string, error) {
	r.calls++
	r.lastRef = reference
	if r.err != nil {
		return "", r.err
	}
	return r.value, nil
}

func TestSecretReferenceAdapter_CanProcess(t *testing.T) {
	a, err := NewSecretReferenceAdapter(&stubResolver{}, 10)
	require.NoError(t, err)

	assert.True(t, a.CanProcess(Setting{Value: "@SecretReference:vault/db-password"}))
	assert.False(t, a.CanProcess(Setting{Value: "plain-value"}))
}

func TestSecretReferenceAdapter_Process_ResolvesAndCaches(t *testing.T) {
	resolver := &stubResolver{value: "s3cr3t"}
	a, err := NewSecretReferenceAdapter(resolver, 10)
	require.NoError(t, err)

	setting := Setting{Key: "db:password", Value: "@SecretReference:vault/db-password"}

	entries, err := a.Process(context.Background(), setting)
	require.NoError(t, err)
	assert.Equal(t, []KeyValue{{Key: "db:password", Value: "s3cr3t"}}, entries)
	assert.Equal(t, 1, resolver.calls)
	assert.Equal(t, "vault/db-password", resolver.lastRef)

	_, err = a.Process(context.Background(), setting)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls, "second Process must hit the cache, not the resolver")
}

func TestSecretReferenceAdapter_Process_FailureMarksNeedsRefresh(t *testing.T) {
	resolver := &stubResolver{err: errors.New("vault unreachable")}
	a, err := NewSecretReferenceAdapter(resolver, 10)
	require.NoError(t, err)

	setting := Setting{Key: "db:password", Value: "@SecretReference:vault/db-password"}

	_, err = a.Process(context.Background(), setting)
	require.Error(t, err)

	var rce *RemoteConfigError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, KindAdapterFailure, rce.Kind)
	assert.True(t, a.NeedsRefresh())
}

func TestSecretReferenceAdapter_Invalidate_SingleAndGlobal(t *testing.T) {
	resolver := &stubResolver{value: "s3cr3t"}
	a, err := NewSecretReferenceAdapter(resolver, 10)
	require.NoError(t, err)

	setting := Setting{Key: "db:password", Value: "@SecretReference:vault/db-password"}
	_, err = a.Process(context.Background(), setting)
	require.NoError(t, err)

	a.Invalidate(&setting)
	_, err = a.Process(context.Background(), setting)
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.calls, "Invalidate(setting) must evict the single cached reference")

	a.Invalidate(nil)
	_, err = a.Process(context.Background(), setting)
	require.NoError(t, err)
	assert.Equal(t, 3, resolver.calls, "Invalidate(nil) must purge the whole cache")
}

func TestSecretReferenceAdapter_NeedsRefresh_ClearsOnSuccessAfterFailure(t *testing.T) {
	resolver := &stubResolver{err: errors.New("vault unreachable")}
	a, err := NewSecretReferenceAdapter(resolver, 10)
	require.NoError(t, err)

	setting := Setting{Key: "db:password", Value: "@SecretReference:vault/db-password"}
	_, _ = a.Process(context.Background(), setting)
	require.True(t, a.NeedsRefresh())

	resolver.err = nil
	resolver.value = "recovered"
	_, err = a.Process(context.Background(), setting)
	require.NoError(t, err)
	assert.False(t, a.NeedsRefresh())
}
