package net

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"citypulse/server/internal/events"
	"citypulse/server/internal/sim"
)

type fakeSimulation struct {
	state     sim.LifecycleState
	tick      uint64
	closed    map[string]bool
	streets   sim.StreetCatalog
	geometry  map[string][]sim.GeoPoint
	resetErr  error
	resets    int
	lastClose string
}

func newFakeSimulation() *fakeSimulation {
	return &fakeSimulation{
		closed:   make(map[string]bool),
		streets:  make(sim.StreetCatalog),
		geometry: make(map[string][]sim.GeoPoint),
	}
}

func (f *fakeSimulation) Start()  { f.state = sim.LifecycleRunning }
func (f *fakeSimulation) Pause()  { f.state = sim.LifecyclePaused }
func (f *fakeSimulation) Resume() { f.state = sim.LifecycleRunning }

func (f *fakeSimulation) Reset() error {
	f.resets++
	if f.resetErr != nil {
		return f.resetErr
	}
	f.state = sim.LifecycleStopped
	return nil
}

func (f *fakeSimulation) State() sim.LifecycleState { return f.state }
func (f *fakeSimulation) Tick() uint64              { return f.tick }

func (f *fakeSimulation) CloseStreet(id string) bool {
	f.lastClose = id
	if f.closed[id] {
		return false
	}
	f.closed[id] = true
	return true
}

func (f *fakeSimulation) OpenStreet(id string) bool {
	if !f.closed[id] {
		return false
	}
	delete(f.closed, id)
	return true
}

func (f *fakeSimulation) ClosedStreetList() []string {
	var list []string
	for id := range f.closed {
		list = append(list, id)
	}
	return list
}

func (f *fakeSimulation) Streets() sim.StreetCatalog { return f.streets }

func (f *fakeSimulation) EdgeGeometry(id string) []sim.GeoPoint { return f.geometry[id] }

type fakeLoop struct {
	state   sim.DriverState
	tick    uint64
	running bool
}

func (f *fakeLoop) State() sim.DriverState { return f.state }
func (f *fakeLoop) Tick() uint64           { return f.tick }
func (f *fakeLoop) Running() bool          { return f.running }

func newTestHandler(simulation *fakeSimulation, scheduler EventScheduler, startRun func()) http.Handler {
	return NewHTTPHandler(HTTPHandlerDeps{
		Simulation: simulation,
		Loop:       &fakeLoop{},
		Events:     scheduler,
		StartRun:   startRun,
	}, HTTPHandlerConfig{})
}

func TestStartCommandLaunchesRun(t *testing.T) {
	simulation := newFakeSimulation()
	launched := 0
	handler := newTestHandler(simulation, events.NewManager(), func() { launched++ })

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/simulation/start", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if launched != 1 {
		t.Fatalf("run launched %d times, want 1", launched)
	}
	var resp struct {
		Status string `json:"status"`
		State  string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.State != "running" {
		t.Fatalf("state = %q, want running", resp.State)
	}
}

func TestLifecycleCommandsRequirePost(t *testing.T) {
	handler := newTestHandler(newFakeSimulation(), events.NewManager(), nil)

	for _, path := range []string{"/simulation/start", "/simulation/pause", "/simulation/resume", "/simulation/reset", "/streets/close"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s GET status = %d, want 405", path, rec.Code)
		}
	}
}

func TestResetFailureReturns500(t *testing.T) {
	simulation := newFakeSimulation()
	simulation.resetErr = errStub("engine gone")
	handler := newTestHandler(simulation, events.NewManager(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/simulation/reset", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestStreetCloseAndOpen(t *testing.T) {
	simulation := newFakeSimulation()
	handler := newTestHandler(simulation, events.NewManager(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/streets/close", strings.NewReader(`{"street":"main"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("close status = %d", rec.Code)
	}
	var resp struct {
		Street  string `json:"street"`
		Changed bool   `json:"changed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Street != "main" || !resp.Changed {
		t.Fatalf("response = %+v", resp)
	}

	// Closing again reports no change.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/streets/close", strings.NewReader(`{"street":"main"}`)))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Changed {
		t.Fatalf("second close must report changed=false")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/streets/open", strings.NewReader(`{"street":"main"}`)))
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Changed {
		t.Fatalf("open must report changed=true")
	}
}

func TestStreetCommandRejectsMissingBody(t *testing.T) {
	handler := newTestHandler(newFakeSimulation(), events.NewManager(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/streets/close", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStreetsListMarksClosures(t *testing.T) {
	simulation := newFakeSimulation()
	simulation.streets["main"] = sim.Street{Name: "Market Street", InBounds: true}
	simulation.streets["side"] = sim.Street{InBounds: true}
	simulation.closed["side"] = true
	handler := newTestHandler(simulation, events.NewManager(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streets", nil))

	var entries []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Closed bool   `json:"closed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	for _, entry := range entries {
		switch entry.ID {
		case "main":
			if entry.Name != "Market Street" || entry.Closed {
				t.Fatalf("main = %+v", entry)
			}
		case "side":
			if !entry.Closed {
				t.Fatalf("side = %+v", entry)
			}
		default:
			t.Fatalf("unexpected entry %+v", entry)
		}
	}
}

func TestStreetGeometry(t *testing.T) {
	simulation := newFakeSimulation()
	simulation.geometry["main"] = []sim.GeoPoint{{Lon: 16.3, Lat: 48.2}}
	handler := newTestHandler(simulation, events.NewManager(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streets/geometry?street=main", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streets/geometry", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing street param status = %d, want 400", rec.Code)
	}

	// Unknown streets resolve to an empty list, not an error.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streets/geometry?street=phantom", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("unknown street: status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestEventScheduling(t *testing.T) {
	scheduler := events.NewManager()
	handler := newTestHandler(newFakeSimulation(), scheduler, nil)

	body := `{"name":"marathon","streets":["main"],"startTick":10,"endTick":20}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var created events.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" || created.Name != "marathon" {
		t.Fatalf("created = %+v", created)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	var listed []events.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("listed = %+v", listed)
	}
}

func TestEventSchedulingRejectsEmptyStreets(t *testing.T) {
	handler := newTestHandler(newFakeSimulation(), events.NewManager(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(`{"name":"empty"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthAndDiagnostics(t *testing.T) {
	handler := newTestHandler(newFakeSimulation(), events.NewManager(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health: status=%d body=%q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("diagnostics status = %d", rec.Code)
	}
	var diag struct {
		Status    string `json:"status"`
		Lifecycle string `json:"lifecycle"`
		Loop      string `json:"loop"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &diag); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if diag.Status != "ok" || diag.Lifecycle != "stopped" || diag.Loop != "idle" {
		t.Fatalf("diagnostics = %+v", diag)
	}
}

type errStub string

func (e errStub) Error() string { return string(e) }
