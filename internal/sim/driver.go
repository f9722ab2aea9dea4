package sim

import (
	"context"
	"sync/atomic"
	"time"

	"citypulse/server/internal/telemetry"
	"citypulse/server/logging"
	simlog "citypulse/server/logging/simulation"
)

// DriverState is the tick loop's current activity, exposed for
// diagnostics only; synchronization lives in the manager's flags.
type DriverState int32

const (
	DriverIdle DriverState = iota
	DriverStepping
	DriverSleeping
	DriverStopped
)

func (s DriverState) String() string {
	switch s {
	case DriverStepping:
		return "stepping"
	case DriverSleeping:
		return "sleeping"
	case DriverStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// DriverDeps carries the collaborators of a Driver.
type DriverDeps struct {
	Manager   *Manager
	Policy    PreemptionPolicy
	Extractor *Extractor
	Events    EventSource
	Publisher SnapshotPublisher
	Logger    telemetry.Logger
	LogEvents logging.Publisher
}

// Driver is the cooperative tick loop: advance the engine, apply the
// preemption policy, extract a snapshot, publish, sleep, repeat. One
// loop per simulation instance; all engine calls within a tick are
// issued from it.
type Driver struct {
	manager   *Manager
	session   Session
	policy    PreemptionPolicy
	extractor *Extractor
	events    EventSource
	publisher SnapshotPublisher
	logger    telemetry.Logger
	logEvents logging.Publisher

	maxTicks int
	interval time.Duration

	running atomic.Bool
	state   atomic.Int32
	tick    atomic.Uint64
}

func NewDriver(deps DriverDeps) *Driver {
	manager := deps.Manager
	policy := deps.Policy
	if policy == nil {
		policy = NoOpPreemption{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	logEvents := deps.LogEvents
	if logEvents == nil {
		logEvents = logging.NopPublisher()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = SnapshotPublisherFunc(nil)
	}
	cfg := manager.Config()
	return &Driver{
		manager:   manager,
		session:   manager.Session(),
		policy:    policy,
		extractor: deps.Extractor,
		events:    deps.Events,
		publisher: publisher,
		logger:    logger,
		logEvents: logEvents,
		maxTicks:  cfg.MaxTicks,
		interval:  cfg.TickInterval.Std(),
	}
}

// State reports the loop's current activity.
func (d *Driver) State() DriverState {
	return DriverState(d.state.Load())
}

// Tick reports the loop's current tick counter.
func (d *Driver) Tick() uint64 {
	return d.tick.Load()
}

// Running reports whether a Run invocation is active.
func (d *Driver) Running() bool {
	return d.running.Load()
}

// Run drives the loop until the tick bound is reached, the running
// flag drops, the stop channel closes, or the engine session is lost.
// The local tick counter starts at zero regardless of previous runs
// and is resynchronized from the engine clock every tick, so an
// externally triggered reload is reflected immediately.
func (d *Driver) Run(stop <-chan struct{}) {
	if !d.running.CompareAndSwap(false, true) {
		return
	}
	defer d.running.Store(false)
	defer d.state.Store(int32(DriverStopped))

	tick := 0
	d.tick.Store(0)

	for tick < d.maxTicks {
		flags := d.manager.Flags()
		if !flags.Running {
			break
		}

		if !flags.Paused {
			d.state.Store(int32(DriverStepping))

			if err := d.session.Step(); err != nil {
				// Loss of the engine is the only condition that flips
				// the running flag from inside the loop.
				simlog.EngineLost(context.Background(), d.logEvents, uint64(tick), err)
				d.logger.Printf("engine step failed, stopping loop: %v", err)
				d.manager.StopRunning()
				break
			}
			if now, err := d.session.CurrentTime(); err == nil {
				tick = int(now)
			}

			current := uint64(tick)
			d.events.UpdateStatuses(current)
			d.policy.Apply(current)

			views := d.events.Snapshot()
			snap := d.extractor.Snapshot(current, views)
			d.publisher.PublishSnapshot(snap, current, views)
			simlog.TickPublished(context.Background(), d.logEvents, current, simlog.TickPublishedPayload{
				Vehicles: len(snap.Vehicles),
				Signals:  len(snap.Signals),
				Skipped:  snap.Skipped,
			})

			tick++
			d.tick.Store(uint64(tick))
			d.manager.SetTick(uint64(tick))
		}

		// The sleep is the loop's only suspension point; command
		// handlers run here and the next iteration reads their flags.
		d.state.Store(int32(DriverSleeping))
		select {
		case <-stop:
			return
		case <-time.After(d.interval):
		}
	}
}
