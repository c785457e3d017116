// Package remoteconfig implements the refresh and failover engine for a
// remote configuration provider: it materializes a key-value mapping by
// polling a set of replicated configuration service endpoints, detects
// changes via entity tags, and republishes the materialized mapping
// whenever a watched setting changes.
package remoteconfig

import (
	"context"
	"strings"
	"time"
)

// Setting is an immutable key-value record as returned by the remote
// configuration service. Equality for change detection purposes is by
// (Key, Label, ETag).
type Setting struct {
	Key   string
	Label string
	Value string
	ETag  string
}

// KeyLabelId identifies a Setting by key and label. A nil label and an
// empty-string label normalize to the same identity: NewKeyLabelId always
// stores "" for an absent label.
type KeyLabelId struct {
	Key   string
	Label string
}

// NewKeyLabelId builds a KeyLabelId, normalizing an absent label to "".
func NewKeyLabelId(key, label string) KeyLabelId {
	return KeyLabelId{Key: key, Label: label}
}

// Watcher declares that a single (key, label) pair should be polled on
// PollInterval. RefreshAll promotes any detected change on this watcher to
// a full reload of every selector instead of an incremental apply.
type Watcher struct {
	Key          string
	Label        string
	PollInterval time.Duration
	RefreshAll   bool
	NextDueAt    time.Time
}

// PrefixWatcher declares that a set of keys sharing a prefix (or an exact
// key) should be polled. KeyPattern is either an exact key or a pattern
// ending in "*" (suffix glob only).
type PrefixWatcher struct {
	KeyPattern   string
	Label        string
	PollInterval time.Duration
	NextDueAt    time.Time
}

// Matches reports whether key satisfies this prefix watcher's KeyPattern.
func (w PrefixWatcher) Matches(key string) bool {
	if strings.HasSuffix(w.KeyPattern, "*") {
		return strings.HasPrefix(key, strings.TrimSuffix(w.KeyPattern, "*"))
	}
	return key == w.KeyPattern
}

// Selector is a server-side filter describing which settings belong in the
// materialized view. When SnapshotName is set, the engine resolves it via
// RemoteClient.GetSnapshot and rejects any composition other than
// "key-partitioned".
type Selector struct {
	KeyFilter    string
	LabelFilter  string
	SnapshotName string
}

// Replica tracks one configuration service endpoint's dispatch eligibility.
type Replica struct {
	Endpoint            string
	SyncToken           string
	BackoffUntil        time.Time
	ConsecutiveFailures int
}

// ChangeKind classifies a ChangeRecord.
type ChangeKind int

const (
	// ChangeNone means no change was detected (etag match).
	ChangeNone ChangeKind = iota
	// ChangeModified means the setting is new or its etag differs from the known value.
	ChangeModified
	// ChangeDeleted means the setting was previously known and is now absent server-side.
	ChangeDeleted
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return "none"
	}
}

// ChangeRecord describes one detected change against the SettingStore's
// watched set.
type ChangeRecord struct {
	Kind    ChangeKind
	Key     string
	Label   string
	Current *Setting // nil when Kind == ChangeDeleted
}

// Snapshot describes a server-side named snapshot, as returned by
// RemoteClient.GetSnapshot.
type Snapshot struct {
	Name        string
	Composition string // must be "key-partitioned" to be accepted
}

// Mapper transforms one Setting before it enters the mapped set. Returning
// nil drops the setting from mapped entirely.
type Mapper func(Setting) *Setting

// Adapter is the capability record consumed by AdapterChain. Implementations
// may fan a single setting out to multiple published entries (e.g. a JSON
// blob expanded into several keys), resolve secret references, or evaluate
// feature-flag semantics.
type Adapter interface {
	// CanProcess reports whether this adapter claims the given setting.
	CanProcess(s Setting) bool
	// Process expands a claimed setting into zero or more published
	// (key, value) entries.
	Process(ctx context.Context, s Setting) ([]KeyValue, error)
	// Invalidate evicts any cached state for one setting, or for every
	// setting when s is nil (a global invalidation).
	Invalidate(s *Setting)
	// NeedsRefresh reports whether this adapter has pending state (e.g. an
	// expiring cached secret) that requires a republish even absent a
	// detected server-side change.
	NeedsRefresh() bool
}

// KeyValue is one published entry.
type KeyValue struct {
	Key   string
	Value string
}

// RemoteClient is the capability the engine consumes to talk to one
// configuration service replica. Implementations are expected to be
// stateless with respect to the engine (all engine-owned state lives in
// ReplicaRegistry and SettingStore).
type RemoteClient interface {
	// List pages through settings matching selector.
	List(ctx context.Context, selector Selector) ([]Setting, error)
	// ListSnapshot pages through settings belonging to a named snapshot.
	ListSnapshot(ctx context.Context, name string) ([]Setting, error)
	// GetSnapshot resolves a named snapshot's metadata.
	GetSnapshot(ctx context.Context, name string) (Snapshot, error)
	// Get fetches a single setting. Returns ErrSettingNotFound when absent.
	Get(ctx context.Context, key, label string) (Setting, error)
	// GetChange performs a conditional fetch against a known setting's etag.
	GetChange(ctx context.Context, known Setting) (ChangeRecord, error)
}

// StoreSnapshot is a point-in-time, read-only view of SettingStore, used by
// the admin surface and by tests asserting round-trip properties.
type StoreSnapshot struct {
	Watched   map[KeyLabelId]Setting
	Mapped    map[string]Setting
	Published map[string]string
}
