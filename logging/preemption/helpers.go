package preemption

import (
	"context"

	"citypulse/server/logging"
)

const (
	// EventGranted is emitted when a signal link is forced green for a privileged vehicle.
	EventGranted logging.EventType = "preemption.granted"
	// EventFailed is emitted when reading or writing a signal's indication fails.
	EventFailed logging.EventType = "preemption.failed"
)

// GrantedPayload captures a single-link override.
type GrantedPayload struct {
	LinkIndex int     `json:"linkIndex"`
	Distance  float64 `json:"distance"`
	Before    string  `json:"before"`
	After     string  `json:"after"`
}

// Granted publishes a successful override.
func Granted(ctx context.Context, pub logging.Publisher, tick uint64, vehicleID, signalID string, payload GrantedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGranted,
		Tick:     tick,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryPreemption,
		Actor:    logging.EntityRef{ID: vehicleID, Kind: logging.EntityKindVehicle},
		Targets:  []logging.EntityRef{{ID: signalID, Kind: logging.EntityKindSignal}},
		Payload:  payload,
	})
}

// Failed publishes a per-signal override failure. Other signals in the
// same tick are unaffected.
func Failed(ctx context.Context, pub logging.Publisher, tick uint64, vehicleID, signalID string, err error) {
	if pub == nil {
		return
	}
	extra := map[string]any{}
	if err != nil {
		extra["error"] = err.Error()
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFailed,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryPreemption,
		Actor:    logging.EntityRef{ID: vehicleID, Kind: logging.EntityKindVehicle},
		Targets:  []logging.EntityRef{{ID: signalID, Kind: logging.EntityKindSignal}},
		Extra:    extra,
	})
}
