// Package proto defines the wire messages sent to snapshot subscribers.
package proto

import "citypulse/server/internal/sim"

const (
	// ProtocolVersion guards subscribers against incompatible payloads.
	ProtocolVersion = 1

	TypeState = "state"
)

// StateMessage carries one tick's snapshot to every subscriber.
type StateMessage struct {
	Ver           int                          `json:"ver"`
	Type          string                       `json:"type"`
	Time          uint64                       `json:"time"`
	Vehicles      map[string]sim.VehicleMarker `json:"vehicles"`
	TrafficLights map[string]sim.SignalDisplay `json:"traffic_lights"`
	AvgSpeed      float64                      `json:"avg_speed"`
	Waiting       int                          `json:"waiting"`
	AmbWaiting    int                          `json:"amb_waiting"`
	AmbCount      int                          `json:"amb_count"`
	AmbAvgSpeed   float64                      `json:"amb_avg_speed"`
	Events        []sim.EventView              `json:"events"`
}

// State builds the per-tick state message from a snapshot.
func State(snapshot *sim.TickSnapshot, tick uint64, events []sim.EventView) StateMessage {
	msg := StateMessage{
		Ver:           ProtocolVersion,
		Type:          TypeState,
		Time:          tick,
		Vehicles:      snapshot.Vehicles,
		TrafficLights: snapshot.Signals,
		AvgSpeed:      snapshot.AvgSpeed,
		Waiting:       snapshot.Waiting,
		AmbWaiting:    snapshot.AmbWaiting,
		AmbCount:      snapshot.AmbCount,
		AmbAvgSpeed:   snapshot.AmbAvgSpeed,
		Events:        events,
	}
	if msg.Vehicles == nil {
		msg.Vehicles = map[string]sim.VehicleMarker{}
	}
	if msg.TrafficLights == nil {
		msg.TrafficLights = map[string]sim.SignalDisplay{}
	}
	if msg.Events == nil {
		msg.Events = []sim.EventView{}
	}
	return msg
}
