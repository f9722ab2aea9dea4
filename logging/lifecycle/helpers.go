package lifecycle

import (
	"context"

	"citypulse/server/logging"
)

const (
	// EventEngineStarted is emitted once the external engine session is live.
	EventEngineStarted logging.EventType = "lifecycle.engine_started"
	// EventEngineReloaded is emitted after the engine rewinds to time zero.
	EventEngineReloaded logging.EventType = "lifecycle.engine_reloaded"
	// EventSimulationReset is emitted when an operator resets the run.
	EventSimulationReset logging.EventType = "lifecycle.simulation_reset"
	// EventStreetClosed is emitted when an operator closes a street.
	EventStreetClosed logging.EventType = "lifecycle.street_closed"
	// EventStreetReopened is emitted when an operator reopens a street.
	EventStreetReopened logging.EventType = "lifecycle.street_reopened"
)

// EngineStartedPayload records the catalog sizes discovered at startup.
type EngineStartedPayload struct {
	ActiveSignals int `json:"activeSignals"`
	TotalSignals  int `json:"totalSignals"`
}

// EngineStarted publishes the post-initialization summary.
func EngineStarted(ctx context.Context, pub logging.Publisher, payload EngineStartedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEngineStarted,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Actor:    logging.EntityRef{Kind: logging.EntityKindEngine},
		Payload:  payload,
	})
}

// ReloadPayload records the catalog rebuilt by a reload.
type ReloadPayload struct {
	Streets      int `json:"streets"`
	NamedStreets int `json:"namedStreets"`
}

// EngineReloaded publishes the catalog summary after a reload.
func EngineReloaded(ctx context.Context, pub logging.Publisher, payload ReloadPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEngineReloaded,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Actor:    logging.EntityRef{Kind: logging.EntityKindEngine},
		Payload:  payload,
	})
}

// SimulationReset publishes the operator-triggered reset.
func SimulationReset(ctx context.Context, pub logging.Publisher, clearedClosures int) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSimulationReset,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Actor:    logging.EntityRef{Kind: logging.EntityKindEngine},
		Extra:    map[string]any{"clearedClosures": clearedClosures},
	})
}

// StreetClosed publishes a street closure command.
func StreetClosed(ctx context.Context, pub logging.Publisher, streetID string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStreetClosed,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Actor:    logging.EntityRef{ID: streetID, Kind: logging.EntityKindStreet},
	})
}

// StreetReopened publishes a street reopen command.
func StreetReopened(ctx context.Context, pub logging.Publisher, streetID string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStreetReopened,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Actor:    logging.EntityRef{ID: streetID, Kind: logging.EntityKindStreet},
	})
}
