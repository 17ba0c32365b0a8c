package listener

import (
	"sync"
	"time"
)

// StatusSnapshot is a point-in-time view of a running listener.
type StatusSnapshot struct {
	Listening bool       `json:"listening"`
	Folder    string     `json:"folder"`
	Started   time.Time  `json:"started"`
	Deadline  time.Time  `json:"deadline"`
	Cycles    int        `json:"cycles"`
	Messages  int        `json:"messages"`
	LastWake  WakeReason `json:"last_wake,omitempty"`
	LastCycle time.Time  `json:"last_cycle,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Status collects listener progress for readers on other goroutines.
type Status struct {
	mu   sync.RWMutex
	snap StatusSnapshot
}

// NewStatus returns an empty Status.
func NewStatus() *Status {
	return &Status{}
}

// Begin records the start of a listen run.
func (st *Status) Begin(folder string, deadline time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.snap = StatusSnapshot{
		Listening: true,
		Folder:    folder,
		Started:   time.Now(),
		Deadline:  deadline,
	}
}

// Observe is suitable as ListenOptions.OnCycle.
func (st *Status) Observe(c Cycle) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.snap.Cycles++
	st.snap.Messages += c.Messages
	st.snap.LastWake = c.Reason
	st.snap.LastCycle = c.At
}

// End records the end of a listen run and the error it returned, if any.
func (st *Status) End(err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.snap.Listening = false
	if err != nil {
		st.snap.LastError = err.Error()
	}
}

// Snapshot returns a copy of the current state.
func (st *Status) Snapshot() StatusSnapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return st.snap
}
