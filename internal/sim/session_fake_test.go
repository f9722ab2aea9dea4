package sim

import "fmt"

// fakeSession is the in-memory engine used across the sim tests. Its
// clock advances by one per step unless frozen; onStep lets tests
// mutate signal state mid-run.
type fakeSession struct {
	stepCount  int
	stepErr    error
	time       float64
	freezeTime bool
	timeErr    error
	onStep     func(stepCount int)

	startArgs  []string
	reloadArgs [][]string
	reloadErr  error
	closeErr   error
	closeCalls int

	vehicles    []string
	positions   map[string]Point
	speeds      map[string]float64
	angles      map[string]float64
	types       map[string]string
	roads       map[string]string
	routes      map[string][]string
	nextSignals map[string][]UpcomingSignal
	positionErr map[string]error
	removed     []string

	signals      []string
	states       map[string]string
	stateErr     map[string]error
	setStateErr  map[string]error
	setStates    []signalWrite
	lanes        map[string][]string
	programs     map[string][]ProgramLogic
	programErr   map[string]error
	pinnedPrograms []signalWrite

	edges       []string
	edgeNames   map[string]string
	edgeShapes  map[string][]Point
	laneShapes  map[string][]Point
	laneEdges   map[string]string
	laneAllowed map[string][]string

	geoErr error
}

type signalWrite struct {
	ID    string
	Value string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		positions:   make(map[string]Point),
		speeds:      make(map[string]float64),
		angles:      make(map[string]float64),
		types:       make(map[string]string),
		roads:       make(map[string]string),
		routes:      make(map[string][]string),
		nextSignals: make(map[string][]UpcomingSignal),
		positionErr: make(map[string]error),
		states:      make(map[string]string),
		stateErr:    make(map[string]error),
		setStateErr: make(map[string]error),
		lanes:       make(map[string][]string),
		programs:    make(map[string][]ProgramLogic),
		programErr:  make(map[string]error),
		edgeNames:   make(map[string]string),
		edgeShapes:  make(map[string][]Point),
		laneShapes:  make(map[string][]Point),
		laneEdges:   make(map[string]string),
		laneAllowed: make(map[string][]string),
	}
}

// addVehicle registers a vehicle with sensible defaults.
func (f *fakeSession) addVehicle(id, typeID, road string, speed float64) {
	f.vehicles = append(f.vehicles, id)
	f.types[id] = typeID
	f.roads[id] = road
	f.speeds[id] = speed
	f.positions[id] = Point{X: 100, Y: 200}
	f.angles[id] = 90
}

func (f *fakeSession) Start(args []string) error {
	f.startArgs = append([]string(nil), args...)
	return nil
}

func (f *fakeSession) Reload(args []string) error {
	if f.reloadErr != nil {
		return f.reloadErr
	}
	f.reloadArgs = append(f.reloadArgs, append([]string(nil), args...))
	f.time = 0
	return nil
}

func (f *fakeSession) Step() error {
	if f.stepErr != nil {
		return f.stepErr
	}
	f.stepCount++
	if !f.freezeTime {
		f.time++
	}
	if f.onStep != nil {
		f.onStep(f.stepCount)
	}
	return nil
}

func (f *fakeSession) CurrentTime() (float64, error) {
	if f.timeErr != nil {
		return 0, f.timeErr
	}
	return f.time, nil
}

func (f *fakeSession) Close() error {
	f.closeCalls++
	return f.closeErr
}

func (f *fakeSession) VehicleIDs() ([]string, error) {
	return append([]string(nil), f.vehicles...), nil
}

func (f *fakeSession) VehiclePosition(id string) (Point, error) {
	if err := f.positionErr[id]; err != nil {
		return Point{}, err
	}
	pos, ok := f.positions[id]
	if !ok {
		return Point{}, fmt.Errorf("unknown vehicle %q", id)
	}
	return pos, nil
}

func (f *fakeSession) VehicleSpeed(id string) (float64, error) {
	speed, ok := f.speeds[id]
	if !ok {
		return 0, fmt.Errorf("unknown vehicle %q", id)
	}
	return speed, nil
}

func (f *fakeSession) VehicleAngle(id string) (float64, error) {
	angle, ok := f.angles[id]
	if !ok {
		return 0, fmt.Errorf("unknown vehicle %q", id)
	}
	return angle, nil
}

func (f *fakeSession) VehicleTypeID(id string) (string, error) {
	typeID, ok := f.types[id]
	if !ok {
		return "", fmt.Errorf("unknown vehicle %q", id)
	}
	return typeID, nil
}

func (f *fakeSession) VehicleRoadID(id string) (string, error) {
	road, ok := f.roads[id]
	if !ok {
		return "", fmt.Errorf("unknown vehicle %q", id)
	}
	return road, nil
}

func (f *fakeSession) VehicleRoute(id string) ([]string, error) {
	route, ok := f.routes[id]
	if !ok {
		return nil, fmt.Errorf("no route for %q", id)
	}
	return append([]string(nil), route...), nil
}

func (f *fakeSession) NextSignals(id string) ([]UpcomingSignal, error) {
	return append([]UpcomingSignal(nil), f.nextSignals[id]...), nil
}

func (f *fakeSession) RemoveVehicle(id string) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeSession) SignalIDs() ([]string, error) {
	return append([]string(nil), f.signals...), nil
}

func (f *fakeSession) SignalState(id string) (string, error) {
	if err := f.stateErr[id]; err != nil {
		return "", err
	}
	state, ok := f.states[id]
	if !ok {
		return "", fmt.Errorf("unknown signal %q", id)
	}
	return state, nil
}

func (f *fakeSession) SetSignalState(id string, state string) error {
	if err := f.setStateErr[id]; err != nil {
		return err
	}
	f.states[id] = state
	f.setStates = append(f.setStates, signalWrite{ID: id, Value: state})
	return nil
}

func (f *fakeSession) ControlledLanes(id string) ([]string, error) {
	lanes, ok := f.lanes[id]
	if !ok {
		return nil, fmt.Errorf("unknown signal %q", id)
	}
	return append([]string(nil), lanes...), nil
}

func (f *fakeSession) ProgramLogics(id string) ([]ProgramLogic, error) {
	if err := f.programErr[id]; err != nil {
		return nil, err
	}
	return append([]ProgramLogic(nil), f.programs[id]...), nil
}

func (f *fakeSession) SetProgram(id string, programID string) error {
	f.pinnedPrograms = append(f.pinnedPrograms, signalWrite{ID: id, Value: programID})
	return nil
}

func (f *fakeSession) EdgeIDs() ([]string, error) {
	return append([]string(nil), f.edges...), nil
}

func (f *fakeSession) EdgeName(id string) (string, error) {
	name, ok := f.edgeNames[id]
	if !ok {
		return "", fmt.Errorf("no name for %q", id)
	}
	return name, nil
}

func (f *fakeSession) EdgeShape(id string) ([]Point, error) {
	shape, ok := f.edgeShapes[id]
	if !ok {
		return nil, fmt.Errorf("unknown edge %q", id)
	}
	return append([]Point(nil), shape...), nil
}

func (f *fakeSession) LaneShape(id string) ([]Point, error) {
	shape, ok := f.laneShapes[id]
	if !ok {
		return nil, fmt.Errorf("unknown lane %q", id)
	}
	return append([]Point(nil), shape...), nil
}

func (f *fakeSession) LaneEdgeID(id string) (string, error) {
	edge, ok := f.laneEdges[id]
	if !ok {
		return "", fmt.Errorf("unknown lane %q", id)
	}
	return edge, nil
}

func (f *fakeSession) LaneAllowed(id string) ([]string, error) {
	return append([]string(nil), f.laneAllowed[id]...), nil
}

// ConvertGeo projects local coordinates deterministically: one
// geographic degree per 100 local units.
func (f *fakeSession) ConvertGeo(p Point) (GeoPoint, error) {
	if f.geoErr != nil {
		return GeoPoint{}, f.geoErr
	}
	return GeoPoint{Lon: p.X / 100, Lat: p.Y / 100}, nil
}

var _ Session = (*fakeSession)(nil)
