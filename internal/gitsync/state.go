package gitsync

import (
	"sync"
	"time"
)

// Phase is the step a sync cycle is in.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePulling    Phase = "pulling"
	PhaseDecrypting Phase = "decrypting"
	PhaseEncrypting Phase = "encrypting"
	PhasePushing    Phase = "pushing"
	PhaseRestoring  Phase = "restoring"
)

// Trigger is what started a sync cycle.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerTimer    Trigger = "timer"
	TriggerMutation Trigger = "mutation"
	TriggerManual   Trigger = "manual"
)

// Direction tells pulls from pushes.
type Direction string

const (
	DirectionPull Direction = "pull"
	DirectionPush Direction = "push"
)

// SyncResult represents the result of a sync operation.
type SyncResult struct {
	ID        string        `json:"id"`
	Direction Direction     `json:"direction"`
	Trigger   Trigger       `json:"trigger"`
	Success   bool          `json:"success"`
	Skipped   bool          `json:"skipped,omitempty"`
	Message   string        `json:"message,omitempty"`
	Synced    []string      `json:"synced,omitempty"`
	Commit    string        `json:"commit,omitempty"`
	Errors    []SyncError   `json:"errors,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// SyncError represents an error during sync.
type SyncError struct {
	Collection string `json:"collection,omitempty"`
	Message    string `json:"message"`
}

// Outcome is the last result in one direction.
type Outcome struct {
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Commit  string    `json:"commit,omitempty"`
}

// SyncState is the process-wide view of the sync engine. It is kept in
// memory only.
type SyncState struct {
	Enabled     bool     `json:"enabled"`
	Repository  string   `json:"repository,omitempty"`
	Branch      string   `json:"branch,omitempty"`
	Phase       Phase    `json:"phase"`
	LastPull    *Outcome `json:"lastPull,omitempty"`
	LastPush    *Outcome `json:"lastPush,omitempty"`
	LastError   string   `json:"lastError,omitempty"`
	HeadCommit  string   `json:"headCommit,omitempty"`
	PendingPush bool     `json:"pendingPush"`
	Counts      Counts   `json:"counts"`
}

// Counts accumulates cycle outcomes since process start.
type Counts struct {
	Pulls    int `json:"pulls"`
	Pushes   int `json:"pushes"`
	Failures int `json:"failures"`
	Skipped  int `json:"skipped"`
}

// ConnectionResult represents the result of a connection test.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type stateTracker struct {
	mu    sync.RWMutex
	state SyncState
}

func newStateTracker(cfg *Config, maskedURL string) *stateTracker {
	return &stateTracker{state: SyncState{
		Enabled:    cfg.Enabled,
		Repository: maskedURL,
		Branch:     cfg.Branch,
		Phase:      PhaseIdle,
	}}
}

func (t *stateTracker) setPhase(p Phase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Phase = p
}

func (t *stateTracker) setPendingPush(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.PendingPush = v
}

func (t *stateTracker) pendingPush() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.PendingPush
}

func (t *stateTracker) setHead(commit string) {
	if commit == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.HeadCommit = commit
}

func (t *stateTracker) record(r *SyncResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r.Skipped {
		t.state.Counts.Skipped++
		return
	}
	outcome := &Outcome{At: r.Timestamp, Success: r.Success, Message: r.Message, Commit: r.Commit}
	switch r.Direction {
	case DirectionPull:
		t.state.Counts.Pulls++
		t.state.LastPull = outcome
	case DirectionPush:
		t.state.Counts.Pushes++
		t.state.LastPush = outcome
	}
	if r.Success {
		return
	}
	t.state.Counts.Failures++
	if len(r.Errors) > 0 {
		t.state.LastError = r.Errors[len(r.Errors)-1].Message
	} else {
		t.state.LastError = r.Message
	}
}

func (t *stateTracker) snapshot() SyncState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.state
	if s.LastPull != nil {
		s.LastPull = new(*s.LastPull)
	}
	if s.LastPush != nil {
		s.LastPush = new(*s.LastPush)
	}
	return s
}
