package dedupe

import "sync"

// Ledger tracks which listing ids have been admitted in a run. An id is
// admitted at most once; restoring from a checkpoint reproduces the same
// admit/reject behavior as an uninterrupted run.
type Ledger struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// Restore rebuilds a ledger from previously admitted ids
func Restore(ids []string) *Ledger {
	l := NewLedger()
	for _, id := range ids {
		l.Admit(id)
	}
	return l
}

// Admit returns true if the id has not been admitted before and marks it
// admitted. Empty ids are never admitted.
func (l *Ledger) Admit(id string) bool {
	if id == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.seen[id]; exists {
		return false
	}
	l.seen[id] = struct{}{}
	l.order = append(l.order, id)
	return true
}

// Snapshot returns all admitted ids in admission order
func (l *Ledger) Snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of admitted ids
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
