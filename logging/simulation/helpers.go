package simulation

import (
	"context"

	"citypulse/server/logging"
)

const (
	// EventEngineLost is emitted when connectivity to the engine is fatally lost.
	EventEngineLost logging.EventType = "simulation.engine_lost"
	// EventTickPublished is emitted after every successful snapshot publish.
	EventTickPublished logging.EventType = "simulation.tick_published"
	// EventEntitySkipped is emitted when a vehicle or signal is omitted from a snapshot.
	EventEntitySkipped logging.EventType = "simulation.entity_skipped"
)

// EngineLost publishes the fatal loss of the engine session.
func EngineLost(ctx context.Context, pub logging.Publisher, tick uint64, err error) {
	if pub == nil {
		return
	}
	extra := map[string]any{}
	if err != nil {
		extra["error"] = err.Error()
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEngineLost,
		Tick:     tick,
		Severity: logging.SeverityError,
		Category: logging.CategorySimulation,
		Actor:    logging.EntityRef{Kind: logging.EntityKindEngine},
		Extra:    extra,
	})
}

// TickPublishedPayload summarizes one published snapshot.
type TickPublishedPayload struct {
	Vehicles int `json:"vehicles"`
	Signals  int `json:"signals"`
	Skipped  int `json:"skipped"`
}

// TickPublished records a snapshot handoff to the publish boundary.
func TickPublished(ctx context.Context, pub logging.Publisher, tick uint64, payload TickPublishedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickPublished,
		Tick:     tick,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}

// EntitySkipped records a per-entity extraction failure. The tick itself
// survives; the entity is simply absent from the snapshot.
func EntitySkipped(ctx context.Context, pub logging.Publisher, tick uint64, ref logging.EntityRef, err error) {
	if pub == nil {
		return
	}
	extra := map[string]any{}
	if err != nil {
		extra["error"] = err.Error()
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEntitySkipped,
		Tick:     tick,
		Severity: logging.SeverityDebug,
		Category: logging.CategorySimulation,
		Actor:    ref,
		Extra:    extra,
	})
}
