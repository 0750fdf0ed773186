package dispatch

import "sync"

// Scope ties deferred tasks to one commit-scoped unit of work. Tasks
// registered while the scope is open are held back until Commit releases them
// to the pool; Abort discards them. The orchestrator creates a scope alongside
// its transaction and signals it explicitly after Commit/Rollback, so the
// ordering is carried by the call chain rather than ambient transaction state.
type Scope struct {
	pool *Pool

	mu      sync.Mutex
	state   scopeState
	pending []Task
}

type scopeState int

const (
	scopeOpen scopeState = iota
	scopeCommitted
	scopeAborted
)

// NewScope creates an open commit scope bound to the pool.
func (p *Pool) NewScope() *Scope {
	return &Scope{pool: p}
}

// AfterCommit registers a task against the scope. A nil scope, or one whose
// commit already fired, submits immediately; an aborted scope never runs the
// task.
func (p *Pool) AfterCommit(s *Scope, task Task) {
	if task == nil {
		return
	}
	if s == nil {
		p.Submit(task)
		return
	}

	s.mu.Lock()
	switch s.state {
	case scopeOpen:
		s.pending = append(s.pending, task)
		s.mu.Unlock()
	case scopeCommitted:
		s.mu.Unlock()
		p.Submit(task)
	default: // aborted
		s.mu.Unlock()
	}
}

// Commit marks the unit of work as durably completed and submits every task
// registered against the scope, in registration order. Subsequent
// registrations submit immediately.
func (s *Scope) Commit() {
	s.mu.Lock()
	if s.state != scopeOpen {
		s.mu.Unlock()
		return
	}
	s.state = scopeCommitted
	released := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, task := range released {
		s.pool.Submit(task)
	}
}

// Abort discards every registered task. Tasks registered after Abort are
// discarded as well.
func (s *Scope) Abort() {
	s.mu.Lock()
	if s.state == scopeOpen {
		s.state = scopeAborted
		s.pending = nil
	}
	s.mu.Unlock()
}
