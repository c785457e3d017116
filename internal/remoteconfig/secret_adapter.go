package remoteconfig

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SecretResolver resolves a vault reference URI to its plaintext value. The
// concrete secret store is an external collaborator (spec §1); this
// interface is the only surface the adapter consumes from it.
type SecretResolver interface {
	Resolve(ctx context.Context, reference string) (string, error)
}

// secretReferencePrefix marks a setting value as a secret reference rather
// than a literal value.
const secretReferencePrefix = "@SecretReference:"

// SecretReferenceAdapter claims settings whose value names a secret
// reference and resolves them through a SecretResolver, caching resolved
// values in-process so a reference is not re-fetched on every refresh
// unless invalidated. A resolution failure surfaces as KindAdapterFailure
// (spec §7 item 5) and leaves NeedsRefresh true so the next refresh retries.
type SecretReferenceAdapter struct {
	resolver SecretResolver
	cache    *lru.Cache[string, string]
	failed   map[string]bool
}

// NewSecretReferenceAdapter builds an adapter with an LRU cache bounded to
// cacheSize resolved references.
func NewSecretReferenceAdapter(resolver SecretResolver, cacheSize int) (*SecretReferenceAdapter, error) {
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, err
	}
	return &SecretReferenceAdapter{
		resolver: resolver,
		cache:    cache,
		failed:   make(map[string]bool),
	}, nil
}

// Name identifies this adapter for metrics labels.
func (a *SecretReferenceAdapter) Name() string { return "secret_reference" }

// CanProcess claims settings whose value begins with the secret reference marker.
func (a *SecretReferenceAdapter) CanProcess(s Setting) bool {
	return strings.HasPrefix(s.Value, secretReferencePrefix)
}

// Process resolves the referenced secret, consulting the cache first.
func (a *SecretReferenceAdapter) Process(ctx context.Context, s Setting) ([]KeyValue, error) {
	reference := strings.TrimPrefix(s.Value, secretReferencePrefix)

	if cached, ok := a.cache.Get(reference); ok {
		return []KeyValue{{Key: s.Key, Value: cached}}, nil
	}

	value, err := a.resolver.Resolve(ctx, reference)
	if err != nil {
		a.failed[reference] = true
		return nil, NewError(KindAdapterFailure, "secret reference resolution failed: "+reference, err)
	}

	a.cache.Add(reference, value)
	delete(a.failed, reference)
	return []KeyValue{{Key: s.Key, Value: value}}, nil
}

// Invalidate evicts one cached reference, or the entire cache when setting
// is nil.
func (a *SecretReferenceAdapter) Invalidate(setting *Setting) {
	if setting == nil {
		a.cache.Purge()
		a.failed = make(map[string]bool)
		return
	}
	if !a.CanProcess(*setting) {
		return
	}
	reference := strings.TrimPrefix(setting.Value, secretReferencePrefix)
	a.cache.Remove(reference)
}

// NeedsRefresh reports true while any reference's last resolution attempt failed.
func (a *SecretReferenceAdapter) NeedsRefresh() bool {
	return len(a.failed) > 0
}
