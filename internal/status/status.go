package status

import (
	"os"
	"sync"
	"time"
)

// State is the process-wide session record. The stream session is its only
// writer; everything else reads copies via Snapshot.
type State struct {
	Connected       bool       `json:"connected"`
	Reconnects      int        `json:"reconnects"`
	StartedAt       time.Time  `json:"started_at"`
	LastEventAt     *time.Time `json:"last_event_at,omitempty"`
	LastCancelAt    *time.Time `json:"last_cancel_at,omitempty"`
	LastCancelCount int        `json:"last_cancel_count,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	PID             int        `json:"pid"`
}

type Tracker struct {
	mu        sync.Mutex
	state     State
	listenKey string
}

func NewTracker() *Tracker {
	return &Tracker{state: State{
		StartedAt: time.Now().UTC(),
		PID:       os.Getpid(),
	}}
}

func (t *Tracker) SetConnected(listenKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Connected = true
	t.state.LastError = ""
	t.listenKey = listenKey
}

func (t *Tracker) SetDisconnected(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Connected = false
	t.listenKey = ""
	if err != nil {
		t.state.LastError = err.Error()
	}
}

func (t *Tracker) RecordReconnectAttempt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Reconnects++
}

func (t *Tracker) RecordEvent(at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := at.UTC()
	t.state.LastEventAt = &ts
}

func (t *Tracker) RecordCancel(count int, at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := at.UTC()
	t.state.LastCancelAt = &ts
	t.state.LastCancelCount = count
}

// ListenKey returns the credential currently held by the session. It is
// never exposed over the status endpoint.
func (t *Tracker) ListenKey() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listenKey
}

func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.state
	if t.state.LastEventAt != nil {
		ts := *t.state.LastEventAt
		s.LastEventAt = &ts
	}
	if t.state.LastCancelAt != nil {
		ts := *t.state.LastCancelAt
		s.LastCancelAt = &ts
	}
	return s
}
