package sim

import (
	"fmt"
	"strings"
)

// detectionTicks is the warm-up window used to tell real controllers
// apart from fixed/always-on signals: any signal whose indication
// string changes within the window is active.
const detectionTicks = 100

// Street is one catalogued edge. Name may be empty; InBounds records
// whether any point of its first lane projected into the configured
// bounding box.
type Street struct {
	Name     string
	InBounds bool
}

// StreetCatalog maps street (edge) identifiers to their catalogue entry.
type StreetCatalog map[string]Street

func isInternalID(id string) bool {
	return strings.HasPrefix(id, ":")
}

// detectActiveSignals snapshots every non-internal signal's indication
// string, advances the engine detectionTicks steps, and returns the set
// of signals whose string changed. A signal stops being re-checked the
// first tick it differs. Per-signal read failures exclude that signal;
// a failed step aborts detection.
func detectActiveSignals(s Session) (map[string]struct{}, error) {
	all, err := s.SignalIDs()
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}

	initial := make(map[string]string, len(all))
	for _, id := range all {
		if isInternalID(id) {
			continue
		}
		state, err := s.SignalState(id)
		if err != nil {
			continue
		}
		initial[id] = state
	}

	active := make(map[string]struct{})
	for i := 0; i < detectionTicks; i++ {
		if err := s.Step(); err != nil {
			return nil, fmt.Errorf("detection step %d: %w", i, err)
		}
		for id, snapshot := range initial {
			state, err := s.SignalState(id)
			if err != nil {
				continue
			}
			if state != snapshot {
				active[id] = struct{}{}
				delete(initial, id)
			}
		}
	}
	return active, nil
}

// intersectSignals keeps only the configured junctions that exist in
// the live signal list.
func intersectSignals(configured []string, s Session) (map[string]struct{}, error) {
	live, err := s.SignalIDs()
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	existing := make(map[string]struct{}, len(live))
	for _, id := range live {
		existing[id] = struct{}{}
	}
	active := make(map[string]struct{}, len(configured))
	for _, id := range configured {
		if _, ok := existing[id]; ok {
			active[id] = struct{}{}
		}
	}
	return active, nil
}

// pinFirstPrograms sets every signal to its first program logic so the
// extraction pass reads a stable program. Per-signal failures are skipped.
func pinFirstPrograms(s Session) {
	ids, err := s.SignalIDs()
	if err != nil {
		return
	}
	for _, id := range ids {
		logics, err := s.ProgramLogics(id)
		if err != nil || len(logics) == 0 {
			continue
		}
		_ = s.SetProgram(id, logics[0].ProgramID)
	}
}

// buildStreetCatalog catalogues every non-internal street, projecting
// the first lane's shape against the bounding box. A street whose shape
// cannot be resolved is still catalogued (include-by-default).
func buildStreetCatalog(s Session, bounds Bounds) (StreetCatalog, error) {
	edges, err := s.EdgeIDs()
	if err != nil {
		return nil, fmt.Errorf("list streets: %w", err)
	}

	catalog := make(StreetCatalog, len(edges))
	for _, edgeID := range edges {
		if isInternalID(edgeID) {
			continue
		}

		shape, err := s.LaneShape(edgeID + "_0")
		if err != nil {
			catalog[edgeID] = Street{InBounds: true}
			continue
		}

		entry := Street{}
		for _, p := range shape {
			geo, err := s.ConvertGeo(p)
			if err != nil {
				continue
			}
			if bounds.Contains(geo) {
				entry.InBounds = true
				if name, err := s.EdgeName(edgeID); err == nil && strings.TrimSpace(name) != "" {
					entry.Name = name
				}
				break
			}
		}
		if entry.InBounds {
			catalog[edgeID] = entry
		}
	}
	return catalog, nil
}
