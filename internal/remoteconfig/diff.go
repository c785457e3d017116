package remoteconfig

// collectPrefixChanges implements the change-collection algorithm of spec
// §4.7: given the currently held subset oldSettings (S_old) and the fresh
// listing from the server, emit a Modified record for every server setting
// absent from S_old or whose etag differs, and a Deleted record for every
// S_old key absent from the server listing. Etag equality emits nothing,
// mirroring the teacher's added/modified-then-deleted two-pass walk over
// maps (internal/config/update_diff.go's compareRecursive, generalized here
// from arbitrary config sections to settings).
func collectPrefixChanges(oldSettings map[string]Setting, serverSettings []Setting, label string) []ChangeRecord {
	var changes []ChangeRecord
	seen := make(map[string]bool, len(serverSettings))

	for _, fresh := range serverSettings {
		seen[fresh.Key] = true
		old, existed := oldSettings[fresh.Key]
		if !existed || old.ETag != fresh.ETag {
			f := fresh
			changes = append(changes, ChangeRecord{
				Kind:    ChangeModified,
				Key:     fresh.Key,
				Label:   label,
				Current: &f,
			})
		}
	}

	for key := range oldSettings {
		if !seen[key] {
			changes = append(changes, ChangeRecord{
				Kind:  ChangeDeleted,
				Key:   key,
				Label: label,
			})
		}
	}

	return changes
}
