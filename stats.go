package keyrotate

import "github.com/keyrotate/keyrotate/keystate"

// Stats is a point-in-time summary of pool health.
type Stats struct {
	TotalKeys      int
	DeadKeys       int
	OpenCircuits   int
	HalfOpenKeys   int
	ClosedKeys     int
	CacheEntries   int
	BulkheadActive int
}

// Stats summarizes the current pool and cache state.
func (m *Manager) Stats() Stats {
	s := Stats{BulkheadActive: m.bulkhead.InFlight()}
	if m.semanticCache != nil {
		s.CacheEntries = m.semanticCache.Len()
	}

	for _, k := range m.registry.All() {
		s.TotalKeys++
		switch k.Snapshot().CircuitState {
		case keystate.Dead:
			s.DeadKeys++
		case keystate.Open:
			s.OpenCircuits++
		case keystate.HalfOpen:
			s.HalfOpenKeys++
		default:
			s.ClosedKeys++
		}
	}
	return s
}
