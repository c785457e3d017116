package remoteconfig

import "strings"

// SettingStore holds the last-known mapped settings and the last-known
// watched settings used for change detection. It is not thread-safe by
// itself; callers rely on the refresh single-flight gate (spec §4.5).
type SettingStore struct {
	watched map[KeyLabelId]Setting
	mapped  map[string]Setting // keyed by lower-cased key
	loaded  bool
}

// NewSettingStore returns an empty store, matching the spec's lifecycle
// ("SettingStore is created empty").
func NewSettingStore() *SettingStore {
	return &SettingStore{
		watched: make(map[KeyLabelId]Setting),
		mapped:  make(map[string]Setting),
	}
}

// Loaded reports whether mapped has been populated by a successful initial
// load or refresh (spec's "mapped is not yet loaded" guard).
func (s *SettingStore) Loaded() bool {
	return s.loaded
}

// MarkLoaded flags the store as populated.
func (s *SettingStore) MarkLoaded() {
	s.loaded = true
}

// Watched returns the known setting for id, if any.
func (s *SettingStore) Watched(id KeyLabelId) (Setting, bool) {
	v, ok := s.watched[id]
	return v, ok
}

// PutWatched overwrites the watched entry for (key,label) with a fresh copy.
func (s *SettingStore) PutWatched(setting Setting) {
	id := NewKeyLabelId(setting.Key, setting.Label)
	s.watched[id] = setting
}

// DeleteWatched removes the watched entry for (key,label).
func (s *SettingStore) DeleteWatched(key, label string) {
	delete(s.watched, NewKeyLabelId(key, label))
}

// Mapped returns the mapped setting for key, compared case-insensitively
// (spec §4.5).
func (s *SettingStore) Mapped(key string) (Setting, bool) {
	v, ok := s.mapped[strings.ToLower(key)]
	return v, ok
}

// PutMapped stores setting under its case-insensitive key, preserving the
// server-cased key in the Setting itself (spec §9 case-sensitivity note).
func (s *SettingStore) PutMapped(setting Setting) {
	s.mapped[strings.ToLower(setting.Key)] = setting
}

// DeleteMapped removes the mapped entry for key.
func (s *SettingStore) DeleteMapped(key string) {
	delete(s.mapped, strings.ToLower(key))
}

// ReplaceMapped discards the entire mapped set and installs replacement,
// used by the refreshAll apply path.
func (s *SettingStore) ReplaceMapped(replacement map[string]Setting) {
	s.mapped = make(map[string]Setting, len(replacement))
	for k, v := range replacement {
		s.mapped[strings.ToLower(k)] = v
	}
}

// MappedSnapshot returns a shallow copy of the mapped set, keyed by the
// server-preserved casing.
func (s *SettingStore) MappedSnapshot() map[string]Setting {
	out := make(map[string]Setting, len(s.mapped))
	for _, v := range s.mapped {
		out[v.Key] = v
	}
	return out
}

// WatchedSubset returns the watched entries matching a prefix watcher's
// (keyPattern,label), used as S_old in the change-collection algorithm.
func (s *SettingStore) WatchedSubset(w *PrefixWatcher) map[string]Setting {
	out := make(map[string]Setting)
	for id, setting := range s.watched {
		if id.Label != w.Label {
			continue
		}
		if w.Matches(id.Key) {
			out[id.Key] = setting
		}
	}
	return out
}

// Snapshot returns a read-only copy of the store for diagnostics.
func (s *SettingStore) Snapshot(published map[string]string) StoreSnapshot {
	watched := make(map[KeyLabelId]Setting, len(s.watched))
	for k, v := range s.watched {
		watched[k] = v
	}
	return StoreSnapshot{
		Watched:   watched,
		Mapped:    s.MappedSnapshot(),
		Published: published,
	}
}
