package httpapi

import (
	"sync"
	"sync/atomic"
)

// Ender is anything the registry can force to stop, typically a consultation.
type Ender interface {
	End(reason string)
}

// SessionRegistry tracks live consultation sessions and supports graceful
// draining. While draining, new sessions are rejected and in-flight ones are
// allowed to finish.
//
// mu makes the draining check and wg.Add atomic in Add, so a Wait that
// follows StartDraining can never miss a session.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	sessions map[string]Ender
	wg       sync.WaitGroup
	count    atomic.Int64
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]Ender)}
}

// Add registers a live session. It returns false when the registry is
// draining or the id is already taken.
func (sr *SessionRegistry) Add(id string, s Ender) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	if _, dup := sr.sessions[id]; dup {
		return false
	}
	sr.sessions[id] = s
	sr.wg.Add(1)
	sr.count.Add(1)
	return true
}

// Done removes a session. Must be called exactly once per successful Add.
func (sr *SessionRegistry) Done(id string) {
	sr.mu.Lock()
	delete(sr.sessions, id)
	sr.mu.Unlock()
	sr.count.Add(-1)
	sr.wg.Done()
}

// StartDraining makes future Add calls fail.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

func (sr *SessionRegistry) ActiveCount() int64 {
	return sr.count.Load()
}

// EndAll asks every live session to end with the given reason. Sessions
// still call Done themselves once their handlers return.
func (sr *SessionRegistry) EndAll(reason string) {
	sr.mu.Lock()
	live := make([]Ender, 0, len(sr.sessions))
	for _, s := range sr.sessions {
		live = append(live, s)
	}
	sr.mu.Unlock()

	for _, s := range live {
		s.End(reason)
	}
}

// Wait blocks until every added session called Done.
func (sr *SessionRegistry) Wait() {
	sr.wg.Wait()
}
