package config

import (
	"github.com/vitaliisemenov/remoteconfig/internal/remoteconfig"
	"github.com/vitaliisemenov/remoteconfig/pkg/logger"
)

// ResolvedSelectors converts the configured selector list to remoteconfig.Selector.
func (c *RemoteConfigConfig) ResolvedSelectors() []remoteconfig.Selector {
	out := make([]remoteconfig.Selector, 0, len(c.Selectors))
	for _, s := range c.Selectors {
		out = append(out, remoteconfig.Selector{
			KeyFilter:    s.KeyFilter,
			LabelFilter:  s.LabelFilter,
			SnapshotName: s.SnapshotName,
		})
	}
	return out
}

// Watchers converts the configured watcher list to remoteconfig.Watcher.
func (c *RemoteConfigConfig) Watchers() []remoteconfig.Watcher {
	out := make([]remoteconfig.Watcher, 0, len(c.ChangeWatchers))
	for _, w := range c.ChangeWatchers {
		out = append(out, remoteconfig.Watcher{
			Key:          w.Key,
			Label:        w.Label,
			PollInterval: w.PollInterval,
			RefreshAll:   w.RefreshAll,
		})
	}
	return out
}

// LoggerConfig converts the log section to pkg/logger's Config shape.
func (c *LogConfig) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		Filename:   c.Filename,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}
