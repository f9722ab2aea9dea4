package sim

import (
	"errors"
	"fmt"
)

// Point is a coordinate in the engine's local projection.
type Point struct {
	X float64
	Y float64
}

// GeoPoint is a geographic coordinate produced by the engine's projection.
type GeoPoint struct {
	Lon float64
	Lat float64
}

// UpcomingSignal describes a controlling signal ahead of a vehicle on
// its current route.
type UpcomingSignal struct {
	SignalID  string
	LinkIndex int
	Distance  float64
	State     string
}

// Phase is one step of a signal program. State holds one indication
// character per controlled link.
type Phase struct {
	Duration float64
	State    string
}

// ProgramLogic is a signal's phase program.
type ProgramLogic struct {
	ProgramID string
	Phases    []Phase
}

// Session is the synchronous remote-control surface of the external
// traffic engine. Every call may fail individually; calls that lose
// the underlying connection return a FatalError. A Session has no
// notion of transactions, so all calls within one tick must be issued
// from a single goroutine.
type Session interface {
	// Lifecycle.
	Start(args []string) error
	Reload(args []string) error
	Step() error
	CurrentTime() (float64, error)
	Close() error

	// Vehicles.
	VehicleIDs() ([]string, error)
	VehiclePosition(id string) (Point, error)
	VehicleSpeed(id string) (float64, error)
	VehicleAngle(id string) (float64, error)
	VehicleTypeID(id string) (string, error)
	VehicleRoadID(id string) (string, error)
	VehicleRoute(id string) ([]string, error)
	NextSignals(id string) ([]UpcomingSignal, error)
	RemoveVehicle(id string) error

	// Signals.
	SignalIDs() ([]string, error)
	SignalState(id string) (string, error)
	SetSignalState(id string, state string) error
	ControlledLanes(id string) ([]string, error)
	ProgramLogics(id string) ([]ProgramLogic, error)
	SetProgram(id string, programID string) error

	// Streets and lanes.
	EdgeIDs() ([]string, error)
	EdgeName(id string) (string, error)
	EdgeShape(id string) ([]Point, error)
	LaneShape(id string) ([]Point, error)
	LaneEdgeID(id string) (string, error)
	LaneAllowed(id string) ([]string, error)

	// Projection.
	ConvertGeo(p Point) (GeoPoint, error)
}

// FatalError marks loss of connectivity to the engine session. The
// tick loop stops on it; every other error is scoped to one entity.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine session lost during %s", e.Op)
	}
	return fmt.Sprintf("engine session lost during %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError for the given operation.
func Fatal(op string, err error) error {
	return &FatalError{Op: op, Err: err}
}

// IsFatal reports whether err signals a lost engine session.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// ConfigurationError is surfaced by Initialize before any tick runs.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("simulation configuration: %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
