package sim

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON renders a GeoPoint as the [lon, lat] pair subscribers
// consume.
func (p GeoPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lon, p.Lat})
}

func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("geo point: %w", err)
	}
	p.Lon, p.Lat = pair[0], pair[1]
	return nil
}

// SignalColor is the rendered indication of one signal display.
type SignalColor string

const (
	SignalRed    SignalColor = "red"
	SignalYellow SignalColor = "yellow"
	SignalGreen  SignalColor = "green"
)

// VehicleMarker is the per-vehicle slice of a snapshot.
type VehicleMarker struct {
	Pos   GeoPoint     `json:"pos"`
	Angle float64      `json:"angle"`
	Class VehicleClass `json:"type"`
}

// SignalDisplay is one rendered signal bar, keyed by
// "<signalID>_<streetID>" — one entry per incoming street.
type SignalDisplay struct {
	Pos   GeoPoint    `json:"pos"`
	Color SignalColor `json:"state"`
	Angle float64     `json:"angle"`
}

// TickSnapshot is the immutable per-tick view handed to the publish
// boundary. It is built from a single engine query pass and discarded
// after send.
type TickSnapshot struct {
	Vehicles map[string]VehicleMarker
	Signals  map[string]SignalDisplay

	AvgSpeed    float64
	Waiting     int
	AmbCount    int
	AmbWaiting  int
	AmbAvgSpeed float64

	// Skipped counts entities omitted by per-entity failures. A bad
	// entity never drops the tick; it surfaces here instead.
	Skipped int
}

// EventView is the slice of the event collaborator the core reads:
// a status plus the streets the event closes.
type EventView struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Status  string   `json:"status"`
	Streets []string `json:"streets"`
}

// EventStatusActive is the only status value the extraction pipeline
// acts on.
const EventStatusActive = "Active"

// EventSource supplies the externally owned event list to the tick loop.
type EventSource interface {
	UpdateStatuses(tick uint64)
	Snapshot() []EventView
}

// SnapshotPublisher receives one snapshot per tick. Fan-out semantics
// belong to the collaborator behind it.
type SnapshotPublisher interface {
	PublishSnapshot(snapshot *TickSnapshot, tick uint64, events []EventView)
}

// SnapshotPublisherFunc adapts functions into SnapshotPublisher.
type SnapshotPublisherFunc func(snapshot *TickSnapshot, tick uint64, events []EventView)

func (f SnapshotPublisherFunc) PublishSnapshot(snapshot *TickSnapshot, tick uint64, events []EventView) {
	if f == nil {
		return
	}
	f(snapshot, tick, events)
}
