// Package network reports whether the central API is reachable.
package network

import (
	"context"
	gosync "sync"
	"time"

	"github.com/kimhsiao/tijara/backend/internal/logging"
	"github.com/kimhsiao/tijara/backend/internal/telemetry"
)

// DefaultProbeTimeout bounds one reachability probe.
const DefaultProbeTimeout = 3 * time.Second

// Monitor reports connectivity to the central API.
type Monitor interface {
	IsOnline(ctx context.Context) bool
}

// Prober checks the health endpoint of the central API.
type Prober interface {
	Health(ctx context.Context) error
}

// HTTPMonitor probes the API health endpoint on every call. A manual
// override, when set, replaces the probe.
type HTTPMonitor struct {
	prober  Prober
	timeout time.Duration

	mu       gosync.Mutex
	override *bool
	last     *bool
}

// NewHTTPMonitor creates an HTTPMonitor. timeout <= 0 uses DefaultProbeTimeout.
func NewHTTPMonitor(p Prober, timeout time.Duration) *HTTPMonitor {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPMonitor{prober: p, timeout: timeout}
}

// IsOnline reports whether the API answered its health check.
func (m *HTTPMonitor) IsOnline(ctx context.Context) bool {
	m.mu.Lock()
	override := m.override
	m.mu.Unlock()

	var online bool
	if override != nil {
		online = *override
	} else {
		probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := m.prober.Health(probeCtx)
		cancel()
		online = err == nil
		if err != nil {
			logging.Debug("Health probe failed", map[string]interface{}{"error": err.Error()})
		}
	}

	m.record(online)
	return online
}

// SetOnline forces the reported status. nil restores probing.
func (m *HTTPMonitor) SetOnline(online *bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = online

	fields := map[string]interface{}{"override": nil}
	if online != nil {
		fields["override"] = *online
	}
	logging.Info("Online override changed", fields)
}

// Override returns the manual override, or nil when probing.
func (m *HTTPMonitor) Override() *bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.override
}

// Last returns the most recent result, or nil before the first check.
func (m *HTTPMonitor) Last() *bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *HTTPMonitor) record(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last == nil || *m.last != online {
		logging.Info("Online status changed", map[string]interface{}{"is_online": online})
	}
	m.last = &online
	telemetry.SetOnline(online)
}

// Static is a Monitor with a fixed answer.
type Static bool

// IsOnline returns the fixed answer.
func (s Static) IsOnline(context.Context) bool {
	return bool(s)
}
