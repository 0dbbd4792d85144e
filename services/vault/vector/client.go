// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vector stores embedded chunks in Weaviate and generates
// embeddings through an OpenAI-compatible endpoint.
//
// The vector store is an optional dependency of the sync pipeline: a
// repo can be indexed into the graph without it, and all calls go
// through a circuit breaker so an unavailable Weaviate degrades the
// pipeline instead of failing it.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrUnavailable is returned when Weaviate is not reachable.
	ErrUnavailable = errors.New("vector store is not available")

	// ErrCircuitOpen is returned while the circuit breaker blocks
	// requests.
	ErrCircuitOpen = errors.New("vector store circuit breaker is open")

	// ErrClientClosed is returned after Close.
	ErrClientClosed = errors.New("vector client is closed")
)

// ConnectionState is the circuit breaker state of the client.
type ConnectionState int32

const (
	// StateConnected indicates normal operation.
	StateConnected ConnectionState = iota
	// StateDegraded indicates Weaviate is unreachable but requests
	// are still attempted.
	StateDegraded
	// StateCircuitOpen indicates requests are blocked until cooldown.
	StateCircuitOpen
	// StateHalfOpen indicates a single probe request is allowed.
	StateHalfOpen
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateCircuitOpen:
		return "circuit_open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ClientConfig configures the resilient Weaviate client.
type ClientConfig struct {
	// URL is the Weaviate endpoint, with or without scheme.
	URL string

	// RetryAttempts is the number of retries after the first attempt.
	RetryAttempts int
	// RetryBackoff is the initial backoff between retries.
	RetryBackoff time.Duration
	// MaxRetryBackoff caps the exponential backoff.
	MaxRetryBackoff time.Duration
	// RetryJitter randomizes backoff by up to this fraction (0-1).
	RetryJitter float64

	// CircuitThreshold is the failure count that opens the circuit.
	CircuitThreshold int
	// CircuitWindow is the sliding window failures are counted in.
	CircuitWindow time.Duration
	// CircuitCooldown is how long the circuit stays open before a
	// half-open probe.
	CircuitCooldown time.Duration

	// HealthCheckInterval is the probe period while connected.
	HealthCheckInterval time.Duration
	// DegradedCheckInterval is the probe period while degraded.
	DegradedCheckInterval time.Duration
	// HealthCheckTimeout bounds a single probe.
	HealthCheckTimeout time.Duration

	// AllowStartDegraded lets New succeed with Weaviate down. The
	// sync pipeline uses this so graph-only syncs work offline.
	AllowStartDegraded bool

	Logger *slog.Logger
}

// DefaultClientConfig returns production defaults.
func DefaultClientConfig(url string) ClientConfig {
	return ClientConfig{
		URL:                   url,
		RetryAttempts:         3,
		RetryBackoff:          100 * time.Millisecond,
		MaxRetryBackoff:       5 * time.Second,
		RetryJitter:           0.25,
		CircuitThreshold:      5,
		CircuitWindow:         30 * time.Second,
		CircuitCooldown:       30 * time.Second,
		HealthCheckInterval:   10 * time.Second,
		DegradedCheckInterval: 5 * time.Second,
		HealthCheckTimeout:    5 * time.Second,
		AllowStartDegraded:    true,
	}
}

func (c *ClientConfig) validate() error {
	if c.URL == "" {
		return errors.New("vector: url must not be empty")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return errors.New("vector: retry jitter must be between 0 and 1")
	}
	if c.CircuitThreshold < 1 {
		return errors.New("vector: circuit threshold must be at least 1")
	}
	return nil
}

func (c *ClientConfig) applyDefaults() {
	defaults := DefaultClientConfig(c.URL)
	if c.RetryAttempts == 0 {
		c.RetryAttempts = defaults.RetryAttempts
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = defaults.RetryBackoff
	}
	if c.MaxRetryBackoff == 0 {
		c.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if c.RetryJitter == 0 {
		c.RetryJitter = defaults.RetryJitter
	}
	if c.CircuitThreshold == 0 {
		c.CircuitThreshold = defaults.CircuitThreshold
	}
	if c.CircuitWindow == 0 {
		c.CircuitWindow = defaults.CircuitWindow
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = defaults.CircuitCooldown
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = defaults.HealthCheckInterval
	}
	if c.DegradedCheckInterval == 0 {
		c.DegradedCheckInterval = defaults.DegradedCheckInterval
	}
	if c.HealthCheckTimeout == 0 {
		c.HealthCheckTimeout = defaults.HealthCheckTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client wraps the Weaviate client with retries, a circuit breaker,
// and a background health checker.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	client *weaviate.Client
	cfg    ClientConfig
	log    *slog.Logger

	state           atomic.Int32
	closed          atomic.Bool
	circuitOpenTime atomic.Int64

	failureMu  sync.Mutex
	failures   []time.Time
	failureIdx int

	halfOpenProbe atomic.Bool

	healthCtx    context.Context
	healthCancel context.CancelFunc
	healthWg     sync.WaitGroup
}

// New connects to Weaviate. With AllowStartDegraded the client starts
// in degraded mode when the endpoint is down and recovers through the
// health checker.
func New(cfg ClientConfig) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	scheme, host := splitURL(cfg.URL)
	inner, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("vector: create weaviate client: %w", err)
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())
	c := &Client{
		client:       inner,
		cfg:          cfg,
		log:          cfg.Logger.With(slog.String("component", "vector_client")),
		failures:     make([]time.Time, cfg.CircuitThreshold),
		healthCtx:    healthCtx,
		healthCancel: healthCancel,
	}
	c.state.Store(int32(StateDegraded))

	if err := c.checkHealth(context.Background()); err != nil {
		if !cfg.AllowStartDegraded {
			healthCancel()
			return nil, fmt.Errorf("vector: weaviate not available: %w", err)
		}
		c.log.Warn("weaviate unavailable at startup, starting degraded",
			slog.String("url", cfg.URL), slog.String("error", err.Error()))
	} else {
		c.transitionState(StateConnected)
	}

	c.healthWg.Add(1)
	go c.runHealthChecker()
	return c, nil
}

// splitURL separates a scheme prefix from the host, defaulting to
// http.
func splitURL(url string) (scheme, host string) {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "https", strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "http", strings.TrimPrefix(url, "http://")
	default:
		return "http", url
	}
}

// Weaviate exposes the underlying client for query building. Callers
// must wrap executions in Execute.
func (c *Client) Weaviate() *weaviate.Client {
	return c.client
}

// State returns the current circuit breaker state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsAvailable reports whether requests are currently being allowed
// through to a healthy endpoint.
func (c *Client) IsAvailable() bool {
	return c.State() == StateConnected
}

// Execute runs fn under the circuit breaker with retry and backoff.
func (c *Client) Execute(ctx context.Context, op string, fn func() error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	ctx, span := otel.Tracer("vault.vector").Start(ctx, "vector."+op,
		trace.WithAttributes(attribute.String("state", c.State().String())))
	defer span.End()

	switch c.State() {
	case StateCircuitOpen:
		if !c.cooldownExpired() {
			span.SetStatus(codes.Error, "circuit open")
			return ErrCircuitOpen
		}
		c.transitionState(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		// A single probe request holds the half-open slot.
		if !c.halfOpenProbe.CompareAndSwap(false, true) {
			span.SetStatus(codes.Error, "half-open probe in flight")
			return ErrCircuitOpen
		}
		defer c.halfOpenProbe.Store(false)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("backoff_ms", backoff.Milliseconds())))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			c.recordSuccess()
			span.SetStatus(codes.Ok, "")
			return nil
		}
		if !isRetryable(lastErr) {
			break
		}
	}

	c.recordFailure()
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "request failed")
	return fmt.Errorf("vector: %s: %w", op, lastErr)
}

// WaitForReady blocks until the endpoint answers a readiness probe or
// the timeout elapses.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("vector: not ready within %v: %w", timeout, ErrUnavailable)
		case <-ticker.C:
			if c.checkHealth(ctx) == nil {
				return nil
			}
		}
	}
}

// Close stops the health checker. Idempotent.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.healthCancel()
	c.healthWg.Wait()
	return nil
}

func (c *Client) transitionState(newState ConnectionState) {
	oldState := ConnectionState(c.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}
	c.log.Info("vector store state transition",
		slog.String("from", oldState.String()),
		slog.String("to", newState.String()))
}

func (c *Client) checkHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthCheckTimeout)
	defer cancel()

	ready, err := c.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("vector: readiness probe: %w", err)
	}
	if !ready {
		return ErrUnavailable
	}
	return nil
}

func (c *Client) runHealthChecker() {
	defer c.healthWg.Done()

	for {
		interval := c.cfg.HealthCheckInterval
		if c.State() != StateConnected {
			interval = c.cfg.DegradedCheckInterval
		}

		select {
		case <-c.healthCtx.Done():
			return
		case <-time.After(interval):
			c.performHealthCheck()
		}
	}
}

func (c *Client) performHealthCheck() {
	err := c.checkHealth(c.healthCtx)
	state := c.State()

	if err == nil {
		switch state {
		case StateDegraded, StateHalfOpen:
			c.transitionState(StateConnected)
			c.resetFailures()
		case StateCircuitOpen:
			// An open circuit recovers through a half-open probe,
			// never directly to connected.
			if c.cooldownExpired() {
				c.transitionState(StateHalfOpen)
			}
		}
		return
	}
	if state == StateConnected {
		c.transitionState(StateDegraded)
	}
}

func (c *Client) recordSuccess() {
	if c.State() == StateHalfOpen {
		c.transitionState(StateConnected)
		c.resetFailures()
	}
}

func (c *Client) recordFailure() {
	c.failureMu.Lock()
	defer c.failureMu.Unlock()

	now := time.Now()
	c.failures[c.failureIdx] = now
	c.failureIdx = (c.failureIdx + 1) % len(c.failures)

	windowStart := now.Add(-c.cfg.CircuitWindow)
	count := 0
	for _, t := range c.failures {
		if !t.IsZero() && t.After(windowStart) {
			count++
		}
	}

	if count >= c.cfg.CircuitThreshold {
		if c.State() != StateCircuitOpen {
			c.circuitOpenTime.Store(now.Unix())
			c.transitionState(StateCircuitOpen)
			c.log.Warn("vector store circuit breaker opened",
				slog.Int("failures", count),
				slog.Duration("window", c.cfg.CircuitWindow))
		}
	} else if c.State() == StateConnected {
		c.transitionState(StateDegraded)
	}
}

func (c *Client) resetFailures() {
	c.failureMu.Lock()
	defer c.failureMu.Unlock()
	for i := range c.failures {
		c.failures[i] = time.Time{}
	}
	c.failureIdx = 0
}

func (c *Client) cooldownExpired() bool {
	openTime := time.Unix(c.circuitOpenTime.Load(), 0)
	return time.Since(openTime) >= c.cfg.CircuitCooldown
}

// backoff returns the exponential backoff for an attempt with jitter
// applied.
func (c *Client) backoff(attempt int) time.Duration {
	backoff := c.cfg.RetryBackoff * time.Duration(1<<attempt)
	if backoff > c.cfg.MaxRetryBackoff {
		backoff = c.cfg.MaxRetryBackoff
	}

	jitterRange := float64(backoff) * c.cfg.RetryJitter
	jitter := (rand.Float64()*2 - 1) * jitterRange
	backoff = time.Duration(float64(backoff) + jitter)
	if backoff < 0 {
		backoff = c.cfg.RetryBackoff
	}
	return backoff
}

// isRetryable reports whether an error is worth retrying: timeouts and
// connection errors are, application errors and cancellation are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
