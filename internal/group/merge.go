package group

import "github.com/pootle/pisteppers/internal/motor"

// mergedEntry is one tick of the merged stream: every record from every
// generator that shared the minimum us_clock this round, with their
// bit-masks already combined for the single DMA pulse slot they occupy.
type mergedEntry struct {
	usClock         int64
	onMask, offMask uint32
	records         []motor.PulseRecord
}

type mergeSource struct {
	rec motor.PulseRecord
	ok  bool
	gen *motor.PulseGenerator
}

func (s *mergeSource) advance() { s.rec, s.ok = s.gen.Next() }

// merger is a k-way stable merge-by-us_clock over a fixed set of
// motor.PulseGenerator streams. Grounded on
// _examples/original_source/steppergroup.py's pulsemerge, which
// hand-specialises the 0/1/2/N source cases; here a single generic
// minimum-scan handles all of them, since k is always small (one source
// per motor in the group) and this is not a per-pulse hot path the way
// the daemon's own wave playback is.
type merger struct {
	sources []*mergeSource
	pending *mergedEntry
}

func newMerger(gens []*motor.PulseGenerator) *merger {
	srcs := make([]*mergeSource, len(gens))
	for i, g := range gens {
		srcs[i] = &mergeSource{gen: g}
		srcs[i].advance()
	}
	return &merger{sources: srcs}
}

// Next returns the next merged entry in strictly increasing us_clock
// order, or (zero, false) once every source has ended.
func (m *merger) Next() (mergedEntry, bool) {
	if m.pending != nil {
		e := *m.pending
		m.pending = nil
		return e, true
	}

	var minClock int64
	found := false
	for _, s := range m.sources {
		if !s.ok {
			continue
		}
		if !found || s.rec.USClock < minClock {
			minClock = s.rec.USClock
			found = true
		}
	}
	if !found {
		return mergedEntry{}, false
	}

	entry := mergedEntry{usClock: minClock}
	for _, s := range m.sources {
		if !s.ok || s.rec.USClock != minClock {
			continue
		}
		entry.onMask |= s.rec.OnMask
		entry.offMask |= s.rec.OffMask
		entry.records = append(entry.records, s.rec)
		s.advance()
	}
	return entry, true
}

// pushback returns an entry already pulled from Next to the front of the
// stream, for buildWave's one-entry lookahead.
func (m *merger) pushback(e mergedEntry) {
	m.pending = &e
}
