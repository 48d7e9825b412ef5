package dispatch

import (
	"context"
	"sync"
	"time"
)

// CommandRecord is one successfully issued command.
type CommandRecord struct {
	SessionID string    `json:"session_id"`
	ExecID    string    `json:"exec_id"`
	StepID    string    `json:"step_id"`
	Command   string    `json:"command"`
	IssuedAt  time.Time `json:"issued_at"`
}

// MemoryRecorder keeps issued commands in memory, in issue order.
type MemoryRecorder struct {
	mu      sync.Mutex
	records []CommandRecord
	nowFn   func() time.Time
}

// NewMemoryRecorder constructs an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{nowFn: func() time.Time { return time.Now().UTC() }}
}

// Record implements Recorder.
func (r *MemoryRecorder) Record(_ context.Context, sessionID, execID, stepID, command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, CommandRecord{
		SessionID: sessionID,
		ExecID:    execID,
		StepID:    stepID,
		Command:   command,
		IssuedAt:  r.nowFn(),
	})
	return nil
}

// BySession returns the issued commands for one session, in issue order.
func (r *MemoryRecorder) BySession(sessionID string) []CommandRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CommandRecord, 0)
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out
}
