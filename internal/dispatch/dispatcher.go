// Package dispatch walks dialplan scripts against live call sessions. It
// consumes start signals from the telephony engine, replays the ordered
// command steps through an execution capability, and tracks per-session
// state.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pbxcore/pkg/domain"
)

// Marker is the routing tag a start signal must carry. Signals tagged for
// other consumers are ignored without error.
const Marker = "pbx_dialplan"

// State tracks the lifecycle of one dispatched session.
type State string

// Session states. Completed and Aborted are terminal.
const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

// StartSignal is the engine's request to drive a session through a dialplan.
type StartSignal struct {
	SessionID  string
	Channel    string
	Marker     string
	DialplanID string
}

// Capability executes a single command against the engine. Invoke failures
// are per-step nonfatal; the walk continues with the next step.
type Capability interface {
	Invoke(ctx context.Context, channel, command, execID string) error
}

// Recorder persists the commands successfully issued for a session.
type Recorder interface {
	Record(ctx context.Context, sessionID, execID, stepID, command string) error
}

// Session is the dispatcher's view of one driven call.
type Session struct {
	SessionID  string
	Channel    string
	DialplanID string
	State      State
	StartedAt  time.Time
	EndedAt    *time.Time
}

// Dispatcher drives sessions through their dialplan scripts.
type Dispatcher struct {
	store      domain.PersistentStore
	capability Capability
	recorder   Recorder
	logger     zerolog.Logger
	idFn       func() string
	nowFn      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option customizes dispatcher construction.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithRecorder sets the issued-command recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// New constructs a dispatcher over the given store and capability.
func New(store domain.PersistentStore, capability Capability, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		capability: capability,
		recorder:   discardRecorder{},
		logger:     zerolog.Nop(),
		idFn:       uuid.NewString,
		nowFn:      func() time.Time { return time.Now().UTC() },
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type discardRecorder struct{}

func (discardRecorder) Record(context.Context, string, string, string, string) error { return nil }

// HandleStart processes a start signal. Signals without the dispatcher marker
// are ignored. The walk issues every live step in sequence order, assigning a
// fresh execution id per step. A failed step is logged and skipped; only an
// unresolvable dialplan aborts the session.
func (d *Dispatcher) HandleStart(ctx context.Context, sig StartSignal) error {
	if sig.Marker != Marker {
		d.logger.Debug().Str("marker", sig.Marker).Str("session_id", sig.SessionID).Msg("ignoring foreign start signal")
		return nil
	}

	session := &Session{
		SessionID:  sig.SessionID,
		Channel:    sig.Channel,
		DialplanID: sig.DialplanID,
		State:      StateRunning,
		StartedAt:  d.nowFn(),
	}
	d.mu.Lock()
	d.sessions[sig.SessionID] = session
	d.mu.Unlock()

	if _, ok := d.store.GetDialplanMaster(sig.DialplanID, domain.FilterActive); !ok {
		d.finish(sig.SessionID, StateAborted)
		return domain.NotFoundError{Family: domain.FamilyDialplanMaster, ID: sig.DialplanID}
	}

	steps := d.store.ListDialplanStepsByMaster(sig.DialplanID)
	for _, step := range steps {
		if d.state(sig.SessionID) != StateRunning {
			return nil
		}
		execID := d.idFn()
		if err := d.capability.Invoke(ctx, sig.Channel, step.Command, execID); err != nil {
			d.logger.Warn().Err(err).
				Str("session_id", sig.SessionID).
				Str("step_id", step.ID).
				Int("sequence", step.Sequence).
				Msg("step execution failed")
			continue
		}
		if err := d.recorder.Record(ctx, sig.SessionID, execID, step.ID, step.Command); err != nil {
			d.logger.Warn().Err(err).Str("session_id", sig.SessionID).Str("exec_id", execID).Msg("command record failed")
		}
	}

	d.finish(sig.SessionID, StateCompleted)
	return nil
}

// HandleEnd marks a session aborted if the engine tore it down mid-walk. Ends
// for completed or unknown sessions are no-ops.
func (d *Dispatcher) HandleEnd(_ context.Context, sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	session, ok := d.sessions[sessionID]
	if !ok || session.State != StateRunning {
		return
	}
	ended := d.nowFn()
	session.State = StateAborted
	session.EndedAt = &ended
}

// Session returns a copy of the tracked session.
func (d *Dispatcher) Session(sessionID string) (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	session, ok := d.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

func (d *Dispatcher) state(sessionID string) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	session, ok := d.sessions[sessionID]
	if !ok {
		return StateNotStarted
	}
	return session.State
}

func (d *Dispatcher) finish(sessionID string, terminal State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	session, ok := d.sessions[sessionID]
	if !ok || session.State != StateRunning {
		return
	}
	ended := d.nowFn()
	session.State = terminal
	session.EndedAt = &ended
}
