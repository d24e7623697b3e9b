package ledger

import "sync"

// Scans maps ticket IDs to the timestamp of their first successful
// verification. Entries are write-once and never pruned; unbounded growth
// is an accepted limitation.
type Scans struct {
	mu   sync.Mutex
	seen map[string]int64
}

func NewScans() *Scans {
	return &Scans{seen: make(map[string]int64)}
}

// Restore replaces the ledger with state loaded from durable storage.
func (s *Scans) Restore(seen map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]int64, len(seen))
	for id, at := range seen {
		s.seen[id] = at
	}
}

// RecordScan returns the first-seen timestamp for the ticket ID and
// whether the ID had been scanned before. Exactly one caller wins the
// first-scan race for a given ID.
func (s *Scans) RecordScan(ticketID string, now int64) (firstSeen int64, already bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.seen[ticketID]; ok {
		return at, true
	}
	s.seen[ticketID] = now
	return now, false
}

// Len reports the number of recorded ticket IDs.
func (s *Scans) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Snapshot returns a copy of the ledger for persistence.
func (s *Scans) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.seen))
	for id, at := range s.seen {
		out[id] = at
	}
	return out
}
