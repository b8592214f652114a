package checker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrUnknownValue = errors.New("value was never pushed")

type entryState byte

const (
	pending entryState = iota
	pushed
	popped
)

// Ledger records values pushed to and popped from lists and verifies each
// pushed value came back exactly once. A value is announced before its push
// so a racing pop never sees a value the ledger does not know.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]entryState
	dups    []string
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]entryState)}
}

// Announce registers value ahead of its push.
func (l *Ledger) Announce(value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[value] = pending
}

// Pushed marks an announced value as stored, unless it was popped already.
func (l *Ledger) Pushed(value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries[value] == pending {
		l.entries[value] = pushed
	}
}

// Abandon forgets a value whose push failed.
func (l *Ledger) Abandon(value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries[value] == pending {
		delete(l.entries, value)
	}
}

// Popped records a popped value. Unknown and repeated values are errors.
func (l *Ledger) Popped(value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.entries[value]
	switch {
	case !ok:
		return fmt.Errorf("%w: %q", ErrUnknownValue, value)
	case st == popped:
		l.dups = append(l.dups, value)
		return fmt.Errorf("value %q popped twice", value)
	}
	l.entries[value] = popped
	return nil
}

// Outstanding returns how many values were pushed and not yet popped.
func (l *Ledger) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, st := range l.entries {
		if st != popped {
			n++
		}
	}
	return n
}

// Verify reports pushed values that were never popped and values popped more
// than once.
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var lost []string
	for v, st := range l.entries {
		if st != popped {
			lost = append(lost, v)
		}
	}
	if len(lost) == 0 && len(l.dups) == 0 {
		return nil
	}
	sort.Strings(lost)

	var b strings.Builder
	if len(lost) > 0 {
		fmt.Fprintf(&b, "%d values lost: %s", len(lost), strings.Join(lost, ","))
	}
	if len(l.dups) > 0 {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%d values duplicated: %s", len(l.dups), strings.Join(l.dups, ","))
	}
	return errors.New(b.String())
}
