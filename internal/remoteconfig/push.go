package remoteconfig

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/vitaliisemenov/remoteconfig/pkg/metrics"
	"golang.org/x/time/rate"
)

// PushNotification is the payload delivered by a configuration change
// notification (webhook or message-broker relay).
type PushNotification struct {
	SyncToken   string
	EventType   string
	ResourceURI string
	MaxDelay    *time.Duration
}

// defaultMaxDelay is used when a notification does not specify one.
const defaultMaxDelay = 30 * time.Second

// PushIntake validates incoming push notifications, updates the origin
// replica's sync token, and marks watchers dirty with a bounded random
// delay to avoid a thundering herd across consumers (spec §4.8).
type PushIntake struct {
	registry *ReplicaRegistry
	watchers *WatcherSet
	limiter  *rate.Limiter
	rand     *rand.Rand
	logger   *slog.Logger
}

// NewPushIntake builds a PushIntake. ratePerSecond/burst bound the accepted
// notification rate before it can reach WatcherSet.MarkAllDue.
func NewPushIntake(registry *ReplicaRegistry, watchers *WatcherSet, ratePerSecond float64, burst int, logger *slog.Logger) *PushIntake {
	return &PushIntake{
		registry: registry,
		watchers: watchers,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   logger,
	}
}

// Process validates and applies a push notification. Required-field
// violations are argument errors (spec §7 item 7): fail fast and surface to
// the caller rather than silently dropping.
func (p *PushIntake) Process(n PushNotification, now time.Time) error {
	if n.SyncToken == "" || n.EventType == "" || n.ResourceURI == "" {
		metrics.PushNotificationsTotal.WithLabelValues("rejected").Inc()
		return NewError(KindInvalidConfig, "push notification missing required field", nil)
	}

	if !p.limiter.Allow() {
		metrics.PushNotificationsTotal.WithLabelValues("rate_limited").Inc()
		if p.logger != nil {
			p.logger.Warn("push notification rate limited", "resource_uri", n.ResourceURI)
		}
		return nil
	}

	if !p.registry.UpdateSyncToken(n.ResourceURI, n.SyncToken) {
		metrics.PushNotificationsTotal.WithLabelValues("unknown_endpoint").Inc()
		if p.logger != nil {
			p.logger.Info("push notification for unknown endpoint, ignoring", "resource_uri", n.ResourceURI)
		}
		return nil
	}

	maxDelay := defaultMaxDelay
	if n.MaxDelay != nil {
		maxDelay = *n.MaxDelay
	}

	delay := time.Duration(0)
	if maxDelay > 0 {
		delay = time.Duration(p.rand.Int63n(int64(maxDelay) + 1))
	}

	p.watchers.MarkAllDue(now.Add(delay))
	metrics.PushNotificationsTotal.WithLabelValues("accepted").Inc()
	metrics.PushDelaySeconds.Observe(delay.Seconds())

	return nil
}
