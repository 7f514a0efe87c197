// Package gate implements the System-Status Gate: a single persisted
// {status: running|stopped} toggle checked by the Orchestrator before
// every Executor invocation. Modeled as an explicitly initialized,
// dependency-injected handle per the Design Notes' "Global state" rule —
// never ambient package state.
package gate

import "gridbot/internal/store"

// Gate wraps the Store's gate row with the two mutators the spec allows.
type Gate struct {
	store *store.Store
}

// New creates a Gate backed by the given Store.
func New(s *store.Store) *Gate {
	return &Gate{store: s}
}

// Running reports whether the Executor is currently permitted to run.
// Defaults to true when the status row is absent.
func (g *Gate) Running() (bool, error) {
	status, err := g.store.GateStatus()
	if err != nil {
		return false, err
	}
	return status == store.StatusRunning, nil
}

// Start is the Gate's only "resume" mutator.
func (g *Gate) Start() error {
	return g.store.SetGateStatus(store.StatusRunning)
}

// Stop is the Gate's only "suppress" mutator.
func (g *Gate) Stop() error {
	return g.store.SetGateStatus(store.StatusStopped)
}
