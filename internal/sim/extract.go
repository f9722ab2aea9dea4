package sim

import (
	"context"
	"errors"
	"math"
	"sort"

	"citypulse/server/logging"
	simlog "citypulse/server/logging/simulation"
)

const (
	// waitingSpeedThreshold marks a vehicle as waiting (engine units).
	waitingSpeedThreshold = 0.1
	// speedToPerHour converts engine m/s into km/h for the aggregates.
	speedToPerHour = 3.6
)

// relevantRoadClasses filters signal lanes down to the ones road
// vehicles actually use; pedestrian- and bicycle-only lanes carry no
// useful display state.
var relevantRoadClasses = map[string]struct{}{
	"passenger":  {},
	"bus":        {},
	"truck":      {},
	"trailer":    {},
	"motorcycle": {},
	"moped":      {},
	"taxi":       {},
}

// errOmitted marks a vehicle that was filtered, not failed.
var errOmitted = errors.New("omitted")

// Extractor builds one TickSnapshot per call from a single engine
// query pass: a vehicle pass and a signal pass, each omitting entities
// on per-entity failure rather than dropping the tick.
type Extractor struct {
	session   Session
	manager   *Manager
	publisher logging.Publisher
}

func NewExtractor(session Session, manager *Manager, publisher logging.Publisher) *Extractor {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Extractor{session: session, manager: manager, publisher: publisher}
}

// Snapshot extracts the filtered per-tick view of vehicles and signals.
func (e *Extractor) Snapshot(tick uint64, events []EventView) *TickSnapshot {
	snap := &TickSnapshot{
		Vehicles: make(map[string]VehicleMarker),
		Signals:  make(map[string]SignalDisplay),
	}

	e.vehiclePass(tick, snap, events)
	e.signalPass(tick, snap)
	return snap
}

func (e *Extractor) vehiclePass(tick uint64, snap *TickSnapshot, events []EventView) {
	ctx := context.Background()
	closed := e.manager.ClosedStreets()

	ids, err := e.session.VehicleIDs()
	if err != nil {
		simlog.EntitySkipped(ctx, e.publisher, tick, logging.EntityRef{Kind: logging.EntityKindEngine}, err)
		return
	}

	var totalSpeed, ambTotalSpeed float64
	count := 0

	for _, id := range ids {
		marker, speed, err := e.extractVehicle(id, closed, events)
		if errors.Is(err, errOmitted) {
			continue
		}
		if err != nil {
			snap.Skipped++
			simlog.EntitySkipped(ctx, e.publisher, tick, logging.EntityRef{ID: id, Kind: logging.EntityKindVehicle}, err)
			continue
		}

		snap.Vehicles[id] = marker
		count++

		perHour := speed * speedToPerHour
		totalSpeed += perHour
		if speed < waitingSpeedThreshold {
			snap.Waiting++
		}
		if marker.Class == VehicleAmbulance {
			snap.AmbCount++
			ambTotalSpeed += perHour
			if speed < waitingSpeedThreshold {
				snap.AmbWaiting++
			}
		}
	}

	// Zero-count averages resolve to zero, never a fault.
	if count > 0 {
		snap.AvgSpeed = totalSpeed / float64(count)
	}
	if snap.AmbCount > 0 {
		snap.AmbAvgSpeed = ambTotalSpeed / float64(snap.AmbCount)
	}
}

// extractVehicle resolves one vehicle. errOmitted means the vehicle was
// filtered by a closure or event rule; other errors mean a per-entity
// query failed and the vehicle is skipped.
func (e *Extractor) extractVehicle(id string, closed map[string]struct{}, events []EventView) (VehicleMarker, float64, error) {
	var zero VehicleMarker

	road, err := e.session.VehicleRoadID(id)
	if err != nil {
		return zero, 0, err
	}

	// Remove vehicles whose planned route crosses a closed street.
	if route, err := e.session.VehicleRoute(id); err == nil {
		for _, edge := range route {
			if _, isClosed := closed[edge]; isClosed {
				_ = e.session.RemoveVehicle(id)
				return zero, 0, errOmitted
			}
		}
	}

	if _, isClosed := closed[road]; isClosed {
		return zero, 0, errOmitted
	}

	// First matching active event wins.
	for _, ev := range events {
		if ev.Status != EventStatusActive {
			continue
		}
		for _, street := range ev.Streets {
			if street == road {
				_ = e.session.RemoveVehicle(id)
				return zero, 0, errOmitted
			}
		}
	}

	pos, err := e.session.VehiclePosition(id)
	if err != nil {
		return zero, 0, err
	}
	geo, err := e.session.ConvertGeo(pos)
	if err != nil {
		return zero, 0, err
	}
	angle, err := e.session.VehicleAngle(id)
	if err != nil {
		return zero, 0, err
	}
	typeID, err := e.session.VehicleTypeID(id)
	if err != nil {
		return zero, 0, err
	}
	speed, err := e.session.VehicleSpeed(id)
	if err != nil {
		return zero, 0, err
	}

	return VehicleMarker{
		Pos:   geo,
		Angle: angle,
		Class: ClassifyVehicleType(typeID),
	}, speed, nil
}

func (e *Extractor) signalPass(tick uint64, snap *TickSnapshot) {
	ctx := context.Background()

	var targets []string
	if active := e.manager.ActiveSignals(); len(active) > 0 {
		targets = make([]string, 0, len(active))
		for id := range active {
			targets = append(targets, id)
		}
		sort.Strings(targets)
	} else {
		// Safety fallback only: the active set should never be empty
		// after a successful load.
		ids, err := e.session.SignalIDs()
		if err != nil {
			simlog.EntitySkipped(ctx, e.publisher, tick, logging.EntityRef{Kind: logging.EntityKindEngine}, err)
			return
		}
		targets = ids
	}

	for _, signalID := range targets {
		if isInternalID(signalID) {
			continue
		}
		if err := e.extractSignal(snap, signalID); err != nil {
			snap.Skipped++
			simlog.EntitySkipped(ctx, e.publisher, tick, logging.EntityRef{ID: signalID, Kind: logging.EntityKindSignal}, err)
		}
	}
}

// extractSignal emits one display entry per surviving incoming street
// of an active signal.
func (e *Extractor) extractSignal(snap *TickSnapshot, signalID string) error {
	lanes, err := e.session.ControlledLanes(signalID)
	if err != nil {
		return err
	}
	state, err := e.session.SignalState(signalID)
	if err != nil {
		return err
	}

	// The program pinned at reload time; a failed fetch disables the
	// phase filters rather than dropping the signal.
	var program *ProgramLogic
	if logics, err := e.session.ProgramLogics(signalID); err == nil && len(logics) > 0 {
		program = &logics[0]
	}
	// Single-phase programs are static signals with no visual state.
	if program != nil && len(program.Phases) <= 1 {
		return nil
	}

	processedStreets := make(map[string]struct{})
	for i, laneID := range lanes {
		street, err := e.session.LaneEdgeID(laneID)
		if err != nil {
			continue
		}
		if _, dup := processedStreets[street]; dup {
			continue
		}
		if isInternalID(street) {
			continue
		}
		// First lane wins for its street, even when filtered below.
		processedStreets[street] = struct{}{}

		// A non-empty allowed list that misses every road class marks a
		// pedestrian/bicycle-only lane.
		if allowed, err := e.session.LaneAllowed(laneID); err == nil && len(allowed) > 0 {
			if !intersectsRoadClasses(allowed) {
				continue
			}
		}

		// Lanes that never turn red are continuous-flow lanes.
		if program != nil && !linkCanTurnRed(program, i) {
			continue
		}

		shape, err := e.session.LaneShape(laneID)
		if err != nil || len(shape) < 2 {
			continue
		}
		tail, tip := shape[len(shape)-2], shape[len(shape)-1]
		geo, err := e.session.ConvertGeo(tip)
		if err != nil {
			continue
		}

		snap.Signals[signalID+"_"+street] = SignalDisplay{
			Pos:   geo,
			Color: colorForLink(state, i),
			Angle: math.Atan2(tip.Y-tail.Y, tip.X-tail.X) * 180 / math.Pi,
		}
	}
	return nil
}

func intersectsRoadClasses(allowed []string) bool {
	for _, class := range allowed {
		if _, ok := relevantRoadClasses[class]; ok {
			return true
		}
	}
	return false
}

// linkCanTurnRed reports whether the link index shows red in any phase
// of the program.
func linkCanTurnRed(program *ProgramLogic, linkIndex int) bool {
	for _, phase := range program.Phases {
		if linkIndex >= len(phase.State) {
			continue
		}
		switch phase.State[linkIndex] {
		case 'r', 'R':
			return true
		}
	}
	return false
}

func colorForLink(state string, linkIndex int) SignalColor {
	if linkIndex < 0 || linkIndex >= len(state) {
		return SignalGreen
	}
	switch state[linkIndex] {
	case 'r', 'R':
		return SignalRed
	case 'y', 'Y':
		return SignalYellow
	default:
		return SignalGreen
	}
}
