package sim

import (
	"errors"
	"testing"
)

func TestDetectActiveSignalsMarksOnlyChangingSignals(t *testing.T) {
	session := newFakeSession()
	session.signals = []string{"J1", ":internal", "J2", "J3"}
	session.states["J1"] = "rrr"
	session.states["J2"] = "GGG"
	session.stateErr["J3"] = errors.New("read failed")

	session.onStep = func(step int) {
		if step == 5 {
			session.states["J1"] = "GGG"
		}
	}

	active, err := detectActiveSignals(session)
	if err != nil {
		t.Fatalf("detectActiveSignals: %v", err)
	}
	if session.stepCount != detectionTicks {
		t.Fatalf("stepped %d times, want %d", session.stepCount, detectionTicks)
	}
	if len(active) != 1 {
		t.Fatalf("active = %v, want only J1", active)
	}
	if _, ok := active["J1"]; !ok {
		t.Fatalf("J1 missing from active set: %v", active)
	}
}

func TestDetectActiveSignalsAbortsOnStepFailure(t *testing.T) {
	session := newFakeSession()
	session.signals = []string{"J1"}
	session.states["J1"] = "rrr"
	session.stepErr = errors.New("engine gone")

	if _, err := detectActiveSignals(session); err == nil {
		t.Fatalf("expected step failure to abort detection")
	}
}

func TestIntersectSignalsKeepsOnlyLiveJunctions(t *testing.T) {
	session := newFakeSession()
	session.signals = []string{"J1", "J2"}

	active, err := intersectSignals([]string{"J1", "missing"}, session)
	if err != nil {
		t.Fatalf("intersectSignals: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active = %v, want only J1", active)
	}
	if _, ok := active["J1"]; !ok {
		t.Fatalf("J1 missing from active set: %v", active)
	}
}

func TestPinFirstProgramsSkipsFailures(t *testing.T) {
	session := newFakeSession()
	session.signals = []string{"J1", "J2", "J3"}
	session.programs["J1"] = []ProgramLogic{{ProgramID: "p0"}, {ProgramID: "p1"}}
	session.programErr["J2"] = errors.New("no programs")

	pinFirstPrograms(session)

	if len(session.pinnedPrograms) != 1 {
		t.Fatalf("pinned %v, want one write", session.pinnedPrograms)
	}
	if got := session.pinnedPrograms[0]; got.ID != "J1" || got.Value != "p0" {
		t.Fatalf("pinned %+v, want J1/p0", got)
	}
}

func TestBuildStreetCatalog(t *testing.T) {
	session := newFakeSession()
	session.edges = []string{"main", "far", ":junction", "unmapped", "nameless"}
	// The fake projects one geographic degree per 100 local units.
	session.laneShapes["main_0"] = []Point{{X: 100, Y: 200}, {X: 110, Y: 210}}
	session.laneShapes["far_0"] = []Point{{X: 900, Y: 900}}
	session.laneShapes["nameless_0"] = []Point{{X: 100, Y: 200}}
	session.edgeNames["main"] = "Market Street"
	session.edgeNames["nameless"] = "   "

	bounds := Bounds{MinLat: 1, MaxLat: 3, MinLon: 0, MaxLon: 2}
	catalog, err := buildStreetCatalog(session, bounds)
	if err != nil {
		t.Fatalf("buildStreetCatalog: %v", err)
	}

	if street, ok := catalog["main"]; !ok || street.Name != "Market Street" || !street.InBounds {
		t.Fatalf("main = %+v, %v", street, ok)
	}
	if _, ok := catalog["far"]; ok {
		t.Fatalf("out-of-bounds street should be dropped")
	}
	if _, ok := catalog[":junction"]; ok {
		t.Fatalf("internal edge should be skipped")
	}
	// No lane shape resolvable: included by default, no name lookup.
	if street, ok := catalog["unmapped"]; !ok || !street.InBounds || street.Name != "" {
		t.Fatalf("unmapped = %+v, %v", street, ok)
	}
	if street := catalog["nameless"]; street.Name != "" {
		t.Fatalf("blank engine names should not be catalogued, got %q", street.Name)
	}
}
