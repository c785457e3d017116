// Package realtime provides real-time event broadcasting for configuration changes.
package realtime

import (
	"log/slog"
)

// EventPublisher publishes events to EventBus from various sources.
//
// It deliberately takes primitive fields rather than remoteconfig domain
// types to avoid an import cycle between the engine and its event sink.
type EventPublisher struct {
	eventBus *DefaultEventBus
	logger   *slog.Logger
	metrics  *RealtimeMetrics
}

// NewEventPublisher creates a new event publisher.
func NewEventPublisher(eventBus *DefaultEventBus, logger *slog.Logger, metrics *RealtimeMetrics) *EventPublisher {
	return &EventPublisher{
		eventBus: eventBus,
		logger:   logger.With("component", "event_publisher"),
		metrics:  metrics,
	}
}

// PublishSettingChange publishes a single change record entry (added, modified, or deleted).
func (p *EventPublisher) PublishSettingChange(eventType, key, label, etag string) error {
	if p.eventBus == nil {
		return nil // EventBus not initialized, skip
	}

	data := map[string]interface{}{
		"key":   key,
		"label": label,
		"etag":  etag,
	}

	event := NewEvent(eventType, data, EventSourceRefreshEngine)
	return p.eventBus.Publish(*event)
}

// PublishRefreshEvent publishes a refresh-cycle lifecycle event.
func (p *EventPublisher) PublishRefreshEvent(eventType string, changed int, duration float64) error {
	if p.eventBus == nil {
		return nil // EventBus not initialized, skip
	}

	data := map[string]interface{}{
		"changed_settings": changed,
		"duration_ms":      duration,
	}

	event := NewEvent(eventType, data, EventSourceRefreshEngine)
	return p.eventBus.Publish(*event)
}

// PublishReplicaEvent publishes a replica failover state transition.
func (p *EventPublisher) PublishReplicaEvent(eventType, endpoint string, errType string) error {
	if p.eventBus == nil {
		return nil // EventBus not initialized, skip
	}

	data := map[string]interface{}{
		"endpoint": endpoint,
	}
	if errType != "" {
		data["error_type"] = errType
	}

	event := NewEvent(eventType, data, EventSourceFailoverExecutor)
	return p.eventBus.Publish(*event)
}

// PublishPushReceived publishes an accepted push notification intake event.
func (p *EventPublisher) PublishPushReceived(key, label string, delayMs float64) error {
	if p.eventBus == nil {
		return nil // EventBus not initialized, skip
	}

	data := map[string]interface{}{
		"key":        key,
		"label":      label,
		"delay_ms":   delayMs,
	}

	event := NewEvent(EventTypePushReceived, data, EventSourcePushIntake)
	return p.eventBus.Publish(*event)
}

// PublishHealthEvent publishes a health change event.
func (p *EventPublisher) PublishHealthEvent(component string, status string, latency float64, message string) error {
	if p.eventBus == nil {
		return nil // EventBus not initialized, skip
	}

	data := map[string]interface{}{
		"component":  component,
		"status":     status,
		"latency_ms": latency,
	}

	if message != "" {
		data["message"] = message
	}

	event := NewEvent(EventTypeHealthChanged, data, EventSourceHealthMonitor)
	return p.eventBus.Publish(*event)
}

// PublishSystemNotification publishes a system notification event.
func (p *EventPublisher) PublishSystemNotification(level string, message string) error {
	if p.eventBus == nil {
		return nil // EventBus not initialized, skip
	}

	data := map[string]interface{}{
		"level":   level, // info, warning, error
		"message": message,
	}

	event := NewEvent(EventTypeSystemNotification, data, EventSourceSystem)
	return p.eventBus.Publish(*event)
}
