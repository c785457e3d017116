package remoteconfig

import (
	"context"
	"strings"

	"github.com/vitaliisemenov/remoteconfig/pkg/metrics"
)

// AdapterChain applies an ordered list of Adapter transforms to each
// setting before it is published. The order is fixed at construction
// (spec §4.6).
type AdapterChain struct {
	adapters []Adapter
}

// NewAdapterChain builds a chain from an ordered adapter list.
func NewAdapterChain(adapters []Adapter) *AdapterChain {
	return &AdapterChain{adapters: adapters}
}

// Process runs setting through the first adapter that claims it, falling
// back to the default singleton expansion when no adapter claims it.
func (c *AdapterChain) Process(ctx context.Context, s Setting) ([]KeyValue, error) {
	for _, a := range c.adapters {
		if a.CanProcess(s) {
			return a.Process(ctx, s)
		}
	}
	return []KeyValue{{Key: s.Key, Value: s.Value}}, nil
}

// Invalidate forwards to every adapter in the chain. When setting is nil
// this is a global invalidation (spec §4.6).
func (c *AdapterChain) Invalidate(setting *Setting) {
	for _, a := range c.adapters {
		a.Invalidate(setting)
		name := "unknown"
		if named, ok := a.(interface{ Name() string }); ok {
			name = named.Name()
		}
		metrics.AdapterInvalidationsTotal.WithLabelValues(name).Inc()
	}
}

// NeedsRefresh reports whether any adapter in the chain still has pending
// state requiring a republish.
func (c *AdapterChain) NeedsRefresh() bool {
	for _, a := range c.adapters {
		if a.NeedsRefresh() {
			return true
		}
	}
	return false
}

// stripPrefixes removes the first matching configured prefix (case
// insensitive) from key, used by the republish step of spec §4.7 step 6.
func stripPrefixes(key string, prefixes []string) string {
	lowerKey := strings.ToLower(key)
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if strings.HasPrefix(lowerKey, strings.ToLower(p)) {
			return key[len(p):]
		}
	}
	return key
}
