// Package k8s resolves a headless Kubernetes Service's ready endpoints into
// replica URIs for remoteconfig's ReplicaRegistry, for deployments where
// configuration service replicas run as pods behind a Service rather than a
// static, hand-configured endpoint list.
package k8s

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/vitaliisemenov/remoteconfig/internal/remoteconfig"
	"github.com/vitaliisemenov/remoteconfig/pkg/metrics"
)

// retryOperation is the operation label retryWithBackoff records its
// metrics.RetryMetrics under.
const retryOperation = "k8s_list_endpoints"

// EndpointClient defines the Kubernetes operations needed to discover
// configuration service replicas.
type EndpointClient interface {
	// ListEndpoints returns the ready subset addresses of the named Service's
	// Endpoints resource.
	ListEndpoints(ctx context.Context, namespace, serviceName string) ([]string, error)

	// Health checks if the K8s API is accessible.
	Health(ctx context.Context) error

	// Close cleans up resources. Safe to call multiple times.
	Close() error
}

// EndpointClientConfig holds configuration for the discovery client.
type EndpointClientConfig struct {
	// Timeout for K8s API requests (default 30s)
	Timeout time.Duration

	// MaxRetries for transient errors (default 3)
	MaxRetries int

	// RetryBackoff initial backoff duration (default 100ms)
	RetryBackoff time.Duration

	// MaxRetryBackoff maximum backoff duration (default 5s)
	MaxRetryBackoff time.Duration

	// Scheme and Port build the replica URI from a bare pod IP
	// (e.g. "https" and 8443 yields "https://10.0.1.2:8443").
	Scheme string
	Port   int

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultEndpointClientConfig returns configuration with sensible defaults.
func DefaultEndpointClientConfig() *EndpointClientConfig {
	return &EndpointClientConfig{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
		Scheme:          "https",
		Port:            443,
		Logger:          slog.Default(),
	}
}

// DefaultEndpointClient implements EndpointClient using k8s.io/client-go.
type DefaultEndpointClient struct {
	clientset kubernetes.Interface
	config    *EndpointClientConfig
	logger    *slog.Logger
	backoff   *remoteconfig.BackoffSchedule
	retryM    *metrics.RetryMetrics
	mu        sync.RWMutex
}

// NewEndpointClient creates a new discovery client using in-cluster
// configuration.
func NewEndpointClient(config *EndpointClientConfig) (EndpointClient, error) {
	if config == nil {
		config = DefaultEndpointClientConfig()
	}

	k8sConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, NewConnectionError("failed to load in-cluster config", err)
	}
	k8sConfig.Timeout = config.Timeout

	clientset, err := kubernetes.NewForConfig(k8sConfig)
	if err != nil {
		return nil, NewConnectionError("failed to create K8s clientset", err)
	}

	client := &DefaultEndpointClient{
		clientset: clientset,
		config:    config,
		logger:    config.Logger,
		backoff: &remoteconfig.BackoffSchedule{
			Min: config.RetryBackoff,
			Max: config.MaxRetryBackoff,
		},
		retryM: metrics.NewRetryMetrics(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("K8s API health check failed: %w", err)
	}

	client.logger.Info("replica discovery client initialized successfully")

	return client, nil
}

// ListEndpoints returns "scheme://ip:port" replica URIs for every ready
// address of the named Service's Endpoints resource.
func (c *DefaultEndpointClient) ListEndpoints(ctx context.Context, namespace, serviceName string) ([]string, error) {
	c.logger.Debug("listing replica endpoints", "namespace", namespace, "service", serviceName)

	var endpoints *corev1.Endpoints
	err := c.retryWithBackoff(ctx, func() error {
		e, err := c.clientset.CoreV1().Endpoints(namespace).Get(ctx, serviceName, metav1.GetOptions{})
		if err != nil {
			return err
		}
		endpoints = e
		return nil
	})
	if err != nil {
		if isNotFoundErr(err) {
			return nil, NewNotFoundError(fmt.Sprintf("service %s/%s has no Endpoints", namespace, serviceName))
		}
		c.logger.Error("failed to list replica endpoints", "namespace", namespace, "service", serviceName, "error", err)
		return nil, wrapK8sError("list endpoints", err)
	}

	var uris []string
	for _, subset := range endpoints.Subsets {
		for _, addr := range subset.Addresses {
			uris = append(uris, fmt.Sprintf("%s://%s:%d", c.config.Scheme, addr.IP, c.config.Port))
		}
	}

	c.logger.Info("discovered replica endpoints", "namespace", namespace, "service", serviceName, "count", len(uris))

	return uris, nil
}

// Health checks if the K8s API is accessible.
func (c *DefaultEndpointClient) Health(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.clientset.Discovery().ServerVersion()
	if err != nil {
		c.logger.Warn("K8s health check failed", "error", err)
		return NewConnectionError("K8s API unavailable", err)
	}

	if healthCtx.Err() != nil {
		return NewTimeoutError("health check timeout", healthCtx.Err())
	}

	return nil
}

// Close cleans up resources.
func (c *DefaultEndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clientset = nil
	c.logger.Info("replica discovery client closed")
	return nil
}

// retryWithBackoff runs op until it succeeds, a non-retryable error comes
// back, the context is done, or MaxRetries retries (MaxRetries+1 attempts in
// all) have been exhausted.
// The delay between attempts comes from the client's BackoffSchedule — the
// same post-window exponential-with-jitter shape remoteconfig uses for
// replica cooldown, rather than a bespoke retry policy for this package.
func (c *DefaultEndpointClient) retryWithBackoff(ctx context.Context, op func() error) error {
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewTimeoutError("context cancelled during retry", err)
		}

		attemptStart := time.Now()
		lastErr = op()
		outcome, errorType := "success", "none"
		if lastErr != nil {
			outcome, errorType = "failure", errorTypeLabel(lastErr)
		}
		c.retryM.RecordAttempt(retryOperation, outcome, errorType, time.Since(attemptStart).Seconds())

		if lastErr == nil {
			c.retryM.RecordFinalAttempt(retryOperation, "success", attempt+1)
			return nil
		}
		if !isRetryableError(lastErr) {
			c.retryM.RecordFinalAttempt(retryOperation, "failure", attempt+1)
			return lastErr
		}
		if attempt == c.config.MaxRetries {
			break
		}

		delay := c.backoff.Next(time.Since(start), attempt+1)
		c.retryM.RecordBackoff(retryOperation, delay.Seconds())
		c.logger.Debug("retrying after transient k8s error", "attempt", attempt+1, "delay", delay, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return NewTimeoutError("context cancelled during retry backoff", ctx.Err())
		case <-timer.C:
		}
	}

	c.retryM.RecordFinalAttempt(retryOperation, "failure", c.config.MaxRetries+1)
	return lastErr
}

// errorTypeLabel classifies err for the retry-attempt metric's error_type
// label. op's errors arrive unwrapped (ListEndpoints wraps via
// wrapK8sError only once retries are exhausted), so this runs the same
// classification early for metrics purposes.
func errorTypeLabel(err error) string {
	var de *DiscoveryError
	if errors.As(err, &de) {
		return de.Kind.String()
	}
	if wrapped, ok := wrapK8sError("retry", err).(*DiscoveryError); ok {
		return wrapped.Kind.String()
	}
	return "unknown"
}

// isNotFoundErr reports whether err is a DiscoveryError classified as
// remoteconfig.KindNotFound.
func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	var de *DiscoveryError
	if !errors.As(err, &de) {
		return false
	}
	return de.Kind == remoteconfig.KindNotFound
}
