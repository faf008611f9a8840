package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrWaitTimeout reports that a consumer's precursors stayed outstanding past
// the manager's bounded wait.
var ErrWaitTimeout = errors.New("resource wait timed out")

// Resource describes one shared artifact and the consumption-order metadata
// that travels with it. Precursors and Consumer are participant identifiers,
// not item names; the engine passes them through without interpretation.
type Resource struct {
	ID         string   `json:"id"`
	Precursors []string `json:"precursors,omitempty"`
	Consumer   string   `json:"consumer"`
}

// Manager serializes consumers of shared artifacts. One entry exists per
// distinct resource identifier, created on first use and retained for the
// manager's lifetime; a manager lives for exactly one run.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*entry

	// waitBound caps how long ManagingOrder may block on outstanding
	// precursors; zero waits indefinitely.
	waitBound time.Duration
}

type entry struct {
	mu         sync.Mutex
	checkedOut map[string]struct{}
	// changed is closed and replaced on every checkout, waking all waiters.
	changed chan struct{}
}

// NewManager creates a manager. waitBound of zero disables the bounded wait.
func NewManager(waitBound time.Duration) *Manager {
	return &Manager{
		entries:   make(map[string]*entry),
		waitBound: waitBound,
	}
}

// ManagingOrder is a scoped acquisition. It blocks until every precursor of
// res has been recorded as checked out for res.ID, then runs body. On exit it
// unconditionally records res.Consumer as checked out for that id and wakes
// all waiters, whether or not the body returned an error. A resource with no
// precursors never blocks.
//
// Consumers of the same id whose precursors are already satisfied run their
// bodies concurrently; serialization happens only at the wait boundary.
func (m *Manager) ManagingOrder(ctx context.Context, res Resource, body func(ctx context.Context) error) error {
	e := m.entryFor(res.ID)

	var deadline <-chan time.Time
	if m.waitBound > 0 {
		t := time.NewTimer(m.waitBound)
		defer t.Stop()
		deadline = t.C
	}

	for {
		e.mu.Lock()
		if e.satisfied(res.Precursors) {
			e.mu.Unlock()
			break
		}
		wait := e.changed
		e.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("resource %q consumer %q waiting on %v: %w",
				res.ID, res.Consumer, e.outstanding(res.Precursors), ErrWaitTimeout)
		}
	}

	defer e.checkOut(res.Consumer)
	return body(ctx)
}

// CheckOut records participant as checked out for id without running a body.
// The scheduler uses it to account for participants that will never run, so
// waiters do not block forever on a skipped or failed precursor. It is
// idempotent.
func (m *Manager) CheckOut(id, participant string) {
	m.entryFor(id).checkOut(participant)
}

// CheckedOut reports whether participant has been recorded for id.
func (m *Manager) CheckedOut(id, participant string) bool {
	e := m.entryFor(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.checkedOut[participant]
	return ok
}

func (m *Manager) entryFor(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		e = &entry{
			checkedOut: make(map[string]struct{}),
			changed:    make(chan struct{}),
		}
		m.entries[id] = e
	}
	return e
}

func (e *entry) satisfied(precursors []string) bool {
	for _, p := range precursors {
		if _, ok := e.checkedOut[p]; !ok {
			return false
		}
	}
	return true
}

func (e *entry) outstanding(precursors []string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, p := range precursors {
		if _, ok := e.checkedOut[p]; !ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (e *entry) checkOut(participant string) {
	e.mu.Lock()
	e.checkedOut[participant] = struct{}{}
	close(e.changed)
	e.changed = make(chan struct{})
	e.mu.Unlock()
}
