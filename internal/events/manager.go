// Package events provides structured event emission plus a pub/sub fan-out so the WebSocket
// handler can push state deltas without the scanner or scorer depending on the server package.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType names a kind of HYDRA domain event.
type EventType string

const (
	SignalDetected           EventType = "SIGNAL_DETECTED"
	SignalsUpdated           EventType = "SIGNALS_UPDATED"
	BlowupScored             EventType = "BLOWUP_SCORED"
	WeightsCalibrated        EventType = "WEIGHTS_CALIBRATED"
	ComponentDegraded        EventType = "COMPONENT_DEGRADED"
	SubsystemSnapshotUpdated EventType = "SUBSYSTEM_SNAPSHOT_UPDATED"
	ConnectorErrored         EventType = "CONNECTOR_ERRORED"
	ErrorOccurred            EventType = "ERROR_OCCURRED"
)

// Event represents a system event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Manager handles event emission, logging, and fan-out to subscribers.
type Manager struct {
	log zerolog.Logger

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewManager creates a new event manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:         log.With().Str("service", "events").Logger(),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Emit emits an event: it is logged and fanned out to every current subscriber. Fan-out is
// non-blocking — a slow or absent subscriber never stalls the emitting worker.
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("event emitted")

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber's buffer is full; drop rather than block the publisher.
		}
	}
}

// EmitError emits an error event.
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}

// Subscribe registers a new listener and returns a channel of future events plus an unsubscribe
// function the caller must invoke when done (typically on WS disconnect).
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}
