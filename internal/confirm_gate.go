package internal

import (
	"sync"

	"github.com/lychee-technology/formedit"
)

type gateState int

const (
	gateClean gateState = iota
	gatePendingConfirm
)

// ConfirmGate holds back discard-causing actions while there are unsaved
// changes. Each action kind has its own state: the first request with unsaved
// changes moves it to pending-confirm and is refused, the next request of the
// same kind goes through and returns it to clean.
type ConfirmGate struct {
	mu     sync.Mutex
	states map[formedit.ActionKind]gateState
}

// NewConfirmGate creates a gate with every action kind clean.
func NewConfirmGate() *ConfirmGate {
	return &ConfirmGate{states: make(map[formedit.ActionKind]gateState)}
}

// Admit reports whether an action of kind may proceed given the dirty state.
func (g *ConfirmGate) Admit(kind formedit.ActionKind, dirty bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.states[kind] == gateClean && dirty {
		g.states[kind] = gatePendingConfirm
		return false
	}
	g.states[kind] = gateClean
	return true
}

// Pending reports whether kind is waiting for a confirming request.
func (g *ConfirmGate) Pending(kind formedit.ActionKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states[kind] == gatePendingConfirm
}

// Clear returns every action kind to clean.
func (g *ConfirmGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states = make(map[formedit.ActionKind]gateState)
}
