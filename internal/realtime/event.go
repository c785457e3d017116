// Package realtime broadcasts configuration change events to subscribers
// (admin UI, CLI watchers) over a fan-out bus.
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a real-time event broadcast to subscribers.
type Event struct {
	// Type is the event type (setting_added, refresh_completed, replica_failed, etc.)
	Type string `json:"type"`

	// ID is a unique event ID (UUID)
	ID string `json:"id"`

	// Data is the event payload (varies by event type)
	Data map[string]interface{} `json:"data"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Source is the event source (refresh_engine, push_intake, failover_executor, etc.)
	Source string `json:"source"`

	// Sequence is a sequence number for event ordering (monotonically increasing)
	Sequence int64 `json:"sequence"`
}

// EventType constants for configuration change events.
const (
	// Setting change events, one per entry in a ChangeRecord set.
	EventTypeSettingAdded    = "setting_added"
	EventTypeSettingModified = "setting_modified"
	EventTypeSettingDeleted  = "setting_deleted"

	// Refresh cycle events.
	EventTypeRefreshStarted   = "refresh_started"
	EventTypeRefreshCompleted = "refresh_completed"
	EventTypeRefreshSkipped   = "refresh_skipped"

	// Replica failover events.
	EventTypeReplicaFailed    = "replica_failed"
	EventTypeReplicaRecovered = "replica_recovered"

	// Push notification intake events.
	EventTypePushReceived = "push_received"

	// Health/system events.
	EventTypeHealthChanged      = "health_changed"
	EventTypeSystemNotification = "system_notification"
)

// EventSource constants.
const (
	EventSourceRefreshEngine    = "refresh_engine"
	EventSourceFailoverExecutor = "failover_executor"
	EventSourcePushIntake       = "push_intake"
	EventSourceHealthMonitor    = "health_monitor"
	EventSourceSystem           = "system"
)

// NewEvent creates a new Event with the given type, data, and source.
func NewEvent(eventType string, data map[string]interface{}, source string) *Event {
	return &Event{
		Type:      eventType,
		ID:        generateEventID(),
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Sequence:  0, // Will be set by EventBus
	}
}

// generateEventID generates a unique event ID (UUID).
func generateEventID() string {
	return uuid.New().String()
}
