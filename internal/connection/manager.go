// internal/connection/manager.go
package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Status is the externally observable connection state.
type Status int32

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusReconnecting
	StatusError
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// ProbeFunc issues one lightweight health probe against the endpoint.
type ProbeFunc func(ctx context.Context) error

// Config bounds the reconnect loop.
type Config struct {
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	ProbeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	return c
}

// State is a point-in-time snapshot of the manager.
type State struct {
	Status     Status
	LastError  string
	RetryCount int
	MaxRetries int
}

// Manager owns the connection state machine. All transitions happen inside
// CheckConnection; StatusDisconnected is terminal until the next external
// CheckConnection call, which starts a fresh retry budget.
type Manager struct {
	cfg    Config
	probe  ProbeFunc
	logger *zap.Logger

	mu         sync.Mutex
	status     Status
	lastErr    error
	retryCount int
	policy     *backoff.ExponentialBackOff

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a manager in StatusConnecting. The probe must be cheap;
// it runs under ProbeTimeout on every connectivity check.
func NewManager(probe ProbeFunc, cfg Config, logger *zap.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:    cfg,
		probe:  probe,
		logger: logger.Named("connection"),
		status: StatusConnecting,
		policy: newPolicy(cfg),
		sleep:  sleepContext,
	}
}

func newPolicy(cfg Config) *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.BaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = cfg.MaxDelay
	return policy
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Status returns the current state machine status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connected reports whether the endpoint answered the last probe.
func (m *Manager) Connected() bool {
	return m.Status() == StatusConnected
}

// State returns a snapshot for logging and health endpoints.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := State{
		Status:     m.status,
		RetryCount: m.retryCount,
		MaxRetries: m.cfg.MaxRetries,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// CheckConnection probes the endpoint once. On success the manager enters
// StatusConnected with a reset retry budget; on failure it enters StatusError
// and runs the bounded reconnect loop. Calling it on a StatusDisconnected
// manager starts over with a fresh budget.
func (m *Manager) CheckConnection(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusDisconnected {
		m.retryCount = 0
		m.policy.Reset()
		m.status = StatusConnecting
	}
	m.mu.Unlock()

	if err := m.runProbe(ctx); err != nil {
		m.transition(StatusError, err)
		m.logger.Warn("Health probe failed", zap.Error(err))
		return m.reconnect(ctx)
	}

	m.markConnected()
	return nil
}

// reconnect walks the bounded retry loop: wait, re-probe, repeat. Waits grow
// as BaseDelay*2^n capped at MaxDelay. After MaxRetries failed probes the
// manager lands in terminal StatusDisconnected.
func (m *Manager) reconnect(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.retryCount >= m.cfg.MaxRetries {
			m.status = StatusDisconnected
			lastErr := m.lastErr
			m.mu.Unlock()
			m.logger.Error("Connection lost, retries exhausted",
				zap.Int("max_retries", m.cfg.MaxRetries),
				zap.Error(lastErr))
			return fmt.Errorf("connection lost after %d reconnect attempts: %w", m.cfg.MaxRetries, lastErr)
		}
		m.status = StatusReconnecting
		m.retryCount++
		attempt := m.retryCount
		wait := m.policy.NextBackOff()
		m.mu.Unlock()

		m.logger.Info("Reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", m.cfg.MaxRetries),
			zap.Duration("wait", wait))

		if err := m.sleep(ctx, wait); err != nil {
			m.transition(StatusError, err)
			return err
		}

		if err := m.runProbe(ctx); err != nil {
			m.mu.Lock()
			m.lastErr = err
			m.mu.Unlock()
			continue
		}

		m.markConnected()
		m.logger.Info("Reconnected", zap.Int("attempts_used", attempt))
		return nil
	}
}

// Run probes on a fixed interval until the context ends or the manager hits
// terminal StatusDisconnected. Probe failures are handled by the reconnect
// loop inside CheckConnection.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.Status() == StatusDisconnected {
				return
			}
			if err := m.CheckConnection(ctx); err != nil {
				m.logger.Warn("Periodic connection check failed", zap.Error(err))
			}
		}
	}
}

func (m *Manager) runProbe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return m.probe(probeCtx)
}

func (m *Manager) markConnected() {
	m.mu.Lock()
	m.status = StatusConnected
	m.lastErr = nil
	m.retryCount = 0
	m.policy.Reset()
	m.mu.Unlock()
}

func (m *Manager) transition(status Status, err error) {
	m.mu.Lock()
	m.status = status
	m.lastErr = err
	m.mu.Unlock()
}
