package sim

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"citypulse/server/internal/telemetry"
	"citypulse/server/logging"
	lifecyclelog "citypulse/server/logging/lifecycle"
)

// LifecycleState is the externally observable run state.
type LifecycleState int

const (
	LifecycleStopped LifecycleState = iota
	LifecycleRunning
	LifecyclePaused
)

func (s LifecycleState) String() string {
	switch s {
	case LifecycleRunning:
		return "running"
	case LifecyclePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Flags is the owned run/pause state shared between the tick loop and
// the command handlers. The loop reads it once at the top of every
// iteration; command handlers overwrite fields last-write-wins.
type Flags struct {
	Running bool
	Paused  bool
}

// ManagerDeps carries the ambient collaborators of a Manager.
type ManagerDeps struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
}

// Manager owns the external engine session: startup, reload to time
// zero, the run/pause flags, the closed-street set, and the catalogs
// rebuilt on every reload. It is consulted by the tick driver, the
// preemption policy, and the extractor — never bypassed.
type Manager struct {
	session   Session
	cfg       Config
	logger    telemetry.Logger
	publisher logging.Publisher

	startArgs []string

	mu      sync.Mutex
	flags   Flags
	closed  map[string]struct{}
	active  map[string]struct{}
	streets StreetCatalog
	tick    uint64
}

func NewManager(session Session, cfg Config, deps ManagerDeps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Manager{
		session:   session,
		cfg:       cfg,
		logger:    logger,
		publisher: publisher,
		closed:    make(map[string]struct{}),
		streets:   make(StreetCatalog),
	}
}

// Initialize resolves the engine config path, starts the engine
// session, computes the active-signal set, and reloads to time zero.
// It fails before any tick runs if the config path does not exist.
func (m *Manager) Initialize() error {
	path := m.cfg.EngineConfig
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return &ConfigurationError{Path: path, Err: err}
		}
		path = abs
	}
	if _, err := os.Stat(path); err != nil {
		return &ConfigurationError{Path: path, Err: err}
	}
	m.startArgs = engineStartArgs(path)

	if err := m.session.Start(m.startArgs); err != nil {
		return err
	}

	var (
		active map[string]struct{}
		err    error
	)
	if len(m.cfg.ControlledJunctions) > 0 {
		active, err = intersectSignals(m.cfg.ControlledJunctions, m.session)
	} else {
		active, err = detectActiveSignals(m.session)
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.active = active
	m.mu.Unlock()

	if err := m.Reload(); err != nil {
		return err
	}

	total := 0
	if ids, lerr := m.session.SignalIDs(); lerr == nil {
		total = len(ids)
	}
	lifecyclelog.EngineStarted(context.Background(), m.publisher, lifecyclelog.EngineStartedPayload{
		ActiveSignals: len(active),
		TotalSignals:  total,
	})
	m.logger.Printf("engine initialized: %d active signals", len(active))
	return nil
}

// engineStartArgs builds the load arguments reused verbatim by every
// reload, so a reload never respawns the engine process.
func engineStartArgs(configPath string) []string {
	return []string{
		"-c", configPath,
		"--no-warnings", "true",
		"--step-length", "1",
	}
}

// Reload rewinds the engine to simulated time zero using the original
// start arguments, pins signal programs, rebuilds the street catalog,
// and resets the tick counter. Closed streets are preserved.
func (m *Manager) Reload() error {
	if err := m.session.Reload(m.startArgs); err != nil {
		return err
	}
	pinFirstPrograms(m.session)

	streets, err := buildStreetCatalog(m.session, m.cfg.Bounds)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.streets = streets
	m.tick = 0
	m.mu.Unlock()

	named := 0
	for _, st := range streets {
		if st.Name != "" {
			named++
		}
	}
	lifecyclelog.EngineReloaded(context.Background(), m.publisher, lifecyclelog.ReloadPayload{
		Streets:      len(streets),
		NamedStreets: named,
	})
	return nil
}

// Start marks the simulation running and unpaused.
func (m *Manager) Start() {
	m.mu.Lock()
	m.flags.Running = true
	m.flags.Paused = false
	m.mu.Unlock()
}

// Pause withholds tick bodies without touching the engine session.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.flags.Paused = true
	m.mu.Unlock()
}

// Resume lifts a pause.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.flags.Paused = false
	m.mu.Unlock()
}

// StopRunning flips the running flag. The tick loop calls this on a
// fatal engine error; command handlers use Reset instead.
func (m *Manager) StopRunning() {
	m.mu.Lock()
	m.flags.Running = false
	m.mu.Unlock()
}

// Reset stops the run, clears the closed-street set, and reloads the
// engine to time zero. Reload alone preserves closures; only Reset
// clears them.
func (m *Manager) Reset() error {
	m.mu.Lock()
	m.flags.Running = false
	m.flags.Paused = false
	cleared := len(m.closed)
	m.closed = make(map[string]struct{})
	m.mu.Unlock()

	if err := m.Reload(); err != nil {
		return err
	}
	lifecyclelog.SimulationReset(context.Background(), m.publisher, cleared)
	return nil
}

// Close shuts the engine session down best-effort; the session may
// already be dead.
func (m *Manager) Close() {
	if err := m.session.Close(); err != nil {
		m.logger.Printf("engine close: %v", err)
	}
	m.StopRunning()
}

// Flags returns the current run/pause flags.
func (m *Manager) Flags() Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags
}

// State derives the lifecycle enum from the flags.
func (m *Manager) State() LifecycleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !m.flags.Running:
		return LifecycleStopped
	case m.flags.Paused:
		return LifecyclePaused
	default:
		return LifecycleRunning
	}
}

// CloseStreet adds a street to the closed set. Returns false when the
// street was already closed.
func (m *Manager) CloseStreet(streetID string) bool {
	m.mu.Lock()
	_, exists := m.closed[streetID]
	m.closed[streetID] = struct{}{}
	m.mu.Unlock()
	if !exists {
		lifecyclelog.StreetClosed(context.Background(), m.publisher, streetID)
	}
	return !exists
}

// OpenStreet removes a street from the closed set.
func (m *Manager) OpenStreet(streetID string) bool {
	m.mu.Lock()
	_, exists := m.closed[streetID]
	delete(m.closed, streetID)
	m.mu.Unlock()
	if exists {
		lifecyclelog.StreetReopened(context.Background(), m.publisher, streetID)
	}
	return exists
}

// ClosedStreets returns a copy of the closed-street set.
func (m *Manager) ClosedStreets() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]struct{}, len(m.closed))
	for id := range m.closed {
		copied[id] = struct{}{}
	}
	return copied
}

// ClosedStreetList returns the closed streets sorted for stable output.
func (m *Manager) ClosedStreetList() []string {
	closed := m.ClosedStreets()
	list := make([]string, 0, len(closed))
	for id := range closed {
		list = append(list, id)
	}
	sort.Strings(list)
	return list
}

// ActiveSignals returns a copy of the active-signal set. The set is
// frozen between reloads.
func (m *Manager) ActiveSignals() map[string]struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]struct{}, len(m.active))
	for id := range m.active {
		copied[id] = struct{}{}
	}
	return copied
}

// Streets returns a copy of the street catalog built by the last reload.
func (m *Manager) Streets() StreetCatalog {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(StreetCatalog, len(m.streets))
	for id, st := range m.streets {
		copied[id] = st
	}
	return copied
}

// EdgeGeometry returns a street's projected coordinate sequence, or an
// empty slice on any lookup failure — it never fails.
func (m *Manager) EdgeGeometry(streetID string) []GeoPoint {
	shape, err := m.session.EdgeShape(streetID)
	if err != nil {
		return nil
	}
	coords := make([]GeoPoint, 0, len(shape))
	for _, p := range shape {
		geo, err := m.session.ConvertGeo(p)
		if err != nil {
			return nil
		}
		coords = append(coords, geo)
	}
	return coords
}

// Tick reports the last tick recorded by the driver.
func (m *Manager) Tick() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick
}

// SetTick records the driver's current tick for diagnostics.
func (m *Manager) SetTick(tick uint64) {
	m.mu.Lock()
	m.tick = tick
	m.mu.Unlock()
}

// Config returns the immutable per-run settings.
func (m *Manager) Config() Config { return m.cfg }

// Session exposes the engine session for the tick loop's collaborators.
func (m *Manager) Session() Session { return m.session }
