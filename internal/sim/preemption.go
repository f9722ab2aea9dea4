package sim

import (
	"context"
	"sort"

	"citypulse/server/logging"
	preemptlog "citypulse/server/logging/preemption"
)

// preemptionMaxDistance is how close (in engine distance units) a
// privileged vehicle must be before its signal is overridden.
const preemptionMaxDistance = 100.0

// PreemptionPolicy is the per-tick signal override capability. The
// tick driver is polymorphic over it: deployments without emergency
// preemption run the no-op policy.
type PreemptionPolicy interface {
	Apply(tick uint64)
}

// NoOpPreemption leaves every signal untouched.
type NoOpPreemption struct{}

func (NoOpPreemption) Apply(uint64) {}

// EmergencyPreemption forces the approach link of the nearest signal
// ahead of each ambulance to green. The override touches exactly one
// indication character; it deliberately does not compute a safe
// intersection phase or force conflicting links red.
type EmergencyPreemption struct {
	session   Session
	publisher logging.Publisher
}

func NewEmergencyPreemption(session Session, publisher logging.Publisher) *EmergencyPreemption {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &EmergencyPreemption{session: session, publisher: publisher}
}

// Apply runs one preemption pass. Per-vehicle and per-signal failures
// are logged and skipped; they never abort the pass. A signal already
// overridden this tick is not overridden again.
func (p *EmergencyPreemption) Apply(tick uint64) {
	ids, err := p.session.VehicleIDs()
	if err != nil {
		return
	}
	// Stable order so the first-seen-wins rule is at least deterministic.
	sort.Strings(ids)

	ctx := context.Background()
	processed := make(map[string]struct{})

	for _, id := range ids {
		typeID, err := p.session.VehicleTypeID(id)
		if err != nil || ClassifyVehicleType(typeID) != VehicleAmbulance {
			continue
		}

		upcoming, err := p.session.NextSignals(id)
		if err != nil || len(upcoming) == 0 {
			continue
		}
		next := upcoming[0]
		if next.Distance > preemptionMaxDistance {
			continue
		}
		if _, done := processed[next.SignalID]; done {
			continue
		}

		state, err := p.session.SignalState(next.SignalID)
		if err != nil {
			preemptlog.Failed(ctx, p.publisher, tick, id, next.SignalID, err)
			continue
		}
		if next.LinkIndex < 0 || next.LinkIndex >= len(state) {
			continue
		}
		if ch := state[next.LinkIndex]; ch == 'g' || ch == 'G' {
			continue
		}

		override := []byte(state)
		override[next.LinkIndex] = 'G'
		if err := p.session.SetSignalState(next.SignalID, string(override)); err != nil {
			preemptlog.Failed(ctx, p.publisher, tick, id, next.SignalID, err)
			continue
		}
		processed[next.SignalID] = struct{}{}

		preemptlog.Granted(ctx, p.publisher, tick, id, next.SignalID, preemptlog.GrantedPayload{
			LinkIndex: next.LinkIndex,
			Distance:  next.Distance,
			Before:    state,
			After:     string(override),
		})
	}
}
