package relink

import "fmt"

// Ledger records which package physically owns each source relpath. It is
// threaded through every package population of one run; later packages
// link to an owner instead of copying.
type Ledger struct {
	owners map[string]string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{owners: make(map[string]string)}
}

// Claim records dest as the physical location of rel. Claiming a relpath
// twice is a bug in package filtering and panics.
func (l *Ledger) Claim(rel, dest string) {
	if prev, ok := l.owners[rel]; ok {
		panic(fmt.Sprintf("relink: %s claimed twice (%s, then %s)", rel, prev, dest))
	}
	l.owners[rel] = dest
}

// Owner returns the absolute destination that claimed rel.
func (l *Ledger) Owner(rel string) (string, bool) {
	dest, ok := l.owners[rel]
	return dest, ok
}

func (l *Ledger) Len() int { return len(l.owners) }
