// Package events supplies the street-closure event list consumed by
// the tick loop. Events advance Scheduled -> Active -> Expired as the
// simulated clock passes their tick window.
package events

import (
	"sync"

	"github.com/google/uuid"

	"citypulse/server/internal/sim"
)

type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusActive    Status = sim.EventStatusActive
	StatusExpired   Status = "Expired"
)

// Event is one operator-scheduled closure of a set of streets.
type Event struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Streets   []string `json:"streets"`
	StartTick uint64   `json:"startTick"`
	EndTick   uint64   `json:"endTick"`
	Status    Status   `json:"status"`
}

// Manager owns the event list. It implements sim.EventSource.
type Manager struct {
	mu     sync.Mutex
	events []Event
}

func NewManager() *Manager {
	return &Manager{}
}

// Schedule registers a new event. An event with EndTick at or before
// StartTick is active for zero ticks and expires immediately.
func (m *Manager) Schedule(name string, streets []string, startTick, endTick uint64) Event {
	event := Event{
		ID:        uuid.NewString(),
		Name:      name,
		Streets:   append([]string(nil), streets...),
		StartTick: startTick,
		EndTick:   endTick,
		Status:    StatusScheduled,
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return event
}

// UpdateStatuses advances every event's status for the given tick.
func (m *Manager) UpdateStatuses(tick uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		ev := &m.events[i]
		switch {
		case tick >= ev.EndTick:
			ev.Status = StatusExpired
		case tick >= ev.StartTick:
			ev.Status = StatusActive
		default:
			ev.Status = StatusScheduled
		}
	}
}

// Snapshot returns the view of the event list the core reads.
func (m *Manager) Snapshot() []sim.EventView {
	m.mu.Lock()
	defer m.mu.Unlock()
	views := make([]sim.EventView, 0, len(m.events))
	for _, ev := range m.events {
		views = append(views, sim.EventView{
			ID:      ev.ID,
			Name:    ev.Name,
			Status:  string(ev.Status),
			Streets: append([]string(nil), ev.Streets...),
		})
	}
	return views
}

// Events returns a copy of the full event list.
func (m *Manager) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]Event, len(m.events))
	copy(copied, m.events)
	for i := range copied {
		copied[i].Streets = append([]string(nil), m.events[i].Streets...)
	}
	return copied
}

// Reset drops every event.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}
