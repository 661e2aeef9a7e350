// Package connectivity tracks online/offline transitions and connection
// quality, and notifies subscribers so the sync coordinator can drain on
// reconnect. The monitor is the sole owner of the connectivity state.
package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridworks/fieldsync/internal/logging"
	"github.com/gridworks/fieldsync/internal/models"
)

// Quality grades the connection from the platform's effective type hint.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityUnknown   Quality = "unknown"
)

// Prober performs the active connectivity check. Satisfied by api.Client.
type Prober interface {
	Health(ctx context.Context) error
}

// DefaultProbeTimeout bounds the active connectivity probe.
const DefaultProbeTimeout = 5 * time.Second

// Listener receives a state snapshot after each transition.
type Listener func(models.ConnectivityState)

// Monitor maintains the process-wide connectivity state.
type Monitor struct {
	prober       Prober
	probeTimeout time.Duration
	log          *logging.ComponentLogger

	mu     sync.RWMutex
	state  models.ConnectivityState
	subs   map[int]Listener
	nextID int
}

// Options tunes the monitor.
type Options struct {
	ProbeTimeout time.Duration
}

// NewMonitor creates a monitor that starts online. prober may be nil when
// no active probing is wanted; TestConnection then always reports false.
func NewMonitor(prober Prober, opts Options) *Monitor {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	return &Monitor{
		prober:       prober,
		probeTimeout: opts.ProbeTimeout,
		log:          logging.ForComponent("connectivity"),
		subs:         make(map[int]Listener),
	}
}

// State returns a snapshot of the current connectivity state.
func (m *Monitor) State() models.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsOffline reports whether the monitor currently considers the device
// offline.
func (m *Monitor) IsOffline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IsOffline
}

// Subscribe registers a listener and returns its unsubscribe function.
func (m *Monitor) Subscribe(listener Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.subs[id] = listener

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline records a platform online signal. A transition from offline
// stamps LastOnline and notifies subscribers; a redundant signal only
// refreshes the connection type fields.
func (m *Monitor) SetOnline(connectionType, effectiveType string) {
	m.mu.Lock()
	wasOffline := m.state.IsOffline
	m.state.IsOffline = false
	m.state.ConnectionType = connectionType
	m.state.EffectiveType = effectiveType
	if wasOffline {
		now := time.Now()
		m.state.LastOnline = &now
	}
	snapshot := m.state
	m.mu.Unlock()

	if wasOffline {
		m.log.Info("connectivity restored", map[string]interface{}{
			"connection_type": connectionType,
			"effective_type":  effectiveType,
		})
		m.notify(snapshot)
	}
}

// SetOffline records a platform offline signal. A transition from online
// stamps LastOffline and notifies subscribers.
func (m *Monitor) SetOffline() {
	m.mu.Lock()
	wasOffline := m.state.IsOffline
	m.state.IsOffline = true
	if !wasOffline {
		now := time.Now()
		m.state.LastOffline = &now
	}
	snapshot := m.state
	m.mu.Unlock()

	if !wasOffline {
		m.log.Info("connectivity lost")
		m.notify(snapshot)
	}
}

// notify delivers the snapshot to every subscriber. A panicking listener
// is recovered and logged; the rest still run.
func (m *Monitor) notify(state models.ConnectivityState) {
	m.mu.RLock()
	listeners := make([]Listener, 0, len(m.subs))
	for _, l := range m.subs {
		listeners = append(listeners, l)
	}
	m.mu.RUnlock()

	for _, listener := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("connectivity listener panicked",
						fmt.Errorf("%v", r))
				}
			}()
			listener(state)
		}()
	}
}

// Quality maps the platform's effective type to a connection grade.
// While offline the stored effective type is stale (it describes the
// connection that was lost), so Quality reports unknown until the next
// online signal refreshes it.
func (m *Monitor) Quality() Quality {
	m.mu.RLock()
	offline := m.state.IsOffline
	effective := m.state.EffectiveType
	m.mu.RUnlock()

	if offline {
		return QualityUnknown
	}
	switch effective {
	case "4g":
		return QualityExcellent
	case "3g":
		return QualityGood
	case "2g", "slow-2g":
		return QualityPoor
	default:
		return QualityUnknown
	}
}

// TestConnection actively probes the API with a short timeout, beyond the
// passive platform signals. The result is fed back through the normal
// transition path, so a successful probe while marked offline triggers
// the reconnect notification.
func (m *Monitor) TestConnection(ctx context.Context) bool {
	if m.prober == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	if err := m.prober.Health(probeCtx); err != nil {
		m.log.Debug("connectivity probe failed", map[string]interface{}{
			"error": err.Error(),
		})
		m.SetOffline()
		return false
	}

	m.mu.RLock()
	connectionType := m.state.ConnectionType
	effectiveType := m.state.EffectiveType
	m.mu.RUnlock()
	m.SetOnline(connectionType, effectiveType)
	return true
}
