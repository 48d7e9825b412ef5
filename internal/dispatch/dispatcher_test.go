package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pbxcore/internal/core"
	"pbxcore/internal/dispatch"
	"pbxcore/internal/infra/persistence/memory"
	"pbxcore/pkg/domain"
)

// fakeCapability records invoked commands and can fail selected ones.
type fakeCapability struct {
	mu      sync.Mutex
	invoked []invocation
	failOn  map[string]bool

	onInvoke func(command string)
}

type invocation struct {
	channel string
	command string
	execID  string
}

func (c *fakeCapability) Invoke(_ context.Context, channel, command, execID string) error {
	c.mu.Lock()
	if c.onInvoke != nil {
		c.onInvoke(command)
	}
	fail := c.failOn[command]
	if !fail {
		c.invoked = append(c.invoked, invocation{channel: channel, command: command, execID: execID})
	}
	c.mu.Unlock()
	if fail {
		return errors.New("engine rejected command")
	}
	return nil
}

func (c *fakeCapability) commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.invoked))
	for _, inv := range c.invoked {
		out = append(out, inv.command)
	}
	return out
}

func seedDialplan(t *testing.T, store *memory.Store, commands ...string) domain.DialplanMaster {
	t.Helper()
	var master domain.DialplanMaster
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		var txErr error
		master, txErr = tx.CreateDialplanMaster(domain.DialplanMaster{Name: "inbound"})
		if txErr != nil {
			return txErr
		}
		for i, cmd := range commands {
			if _, txErr = tx.CreateDialplanStep(domain.DialplanStep{
				DialplanID: master.ID,
				Sequence:   i + 1,
				Command:    cmd,
			}); txErr != nil {
				return txErr
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed dialplan: %v", err)
	}
	return master
}

func TestHandleStartWalksStepsInOrder(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	master := seedDialplan(t, store, "answer", "playback", "hangup")
	fake := &fakeCapability{}
	recorder := dispatch.NewMemoryRecorder()
	d := dispatch.New(store, fake, dispatch.WithRecorder(recorder))

	err := d.HandleStart(context.Background(), dispatch.StartSignal{
		SessionID:  "sess-1",
		Channel:    "chan-1",
		Marker:     dispatch.Marker,
		DialplanID: master.ID,
	})
	if err != nil {
		t.Fatalf("handle start: %v", err)
	}

	want := []string{"answer", "playback", "hangup"}
	got := fake.commands()
	if len(got) != len(want) {
		t.Fatalf("expected %d invocations, got %v", len(want), got)
	}
	for i, cmd := range want {
		if got[i] != cmd {
			t.Fatalf("position %d: expected %q, got %q", i, cmd, got[i])
		}
	}

	session, ok := d.Session("sess-1")
	if !ok || session.State != dispatch.StateCompleted {
		t.Fatalf("expected completed session, got %+v", session)
	}
	if session.EndedAt == nil {
		t.Fatal("completed session missing end timestamp")
	}

	records := recorder.BySession("sess-1")
	if len(records) != 3 {
		t.Fatalf("expected 3 command records, got %d", len(records))
	}
	seen := make(map[string]bool)
	for _, rec := range records {
		if rec.ExecID == "" {
			t.Fatal("command record missing execution id")
		}
		if seen[rec.ExecID] {
			t.Fatalf("execution id %s reused", rec.ExecID)
		}
		seen[rec.ExecID] = true
	}
}

func TestHandleStartIgnoresForeignMarker(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	master := seedDialplan(t, store, "answer")
	fake := &fakeCapability{}
	d := dispatch.New(store, fake)

	err := d.HandleStart(context.Background(), dispatch.StartSignal{
		SessionID:  "sess-1",
		Channel:    "chan-1",
		Marker:     "someone_else",
		DialplanID: master.ID,
	})
	if err != nil {
		t.Fatalf("foreign marker must not error: %v", err)
	}
	if len(fake.commands()) != 0 {
		t.Fatal("foreign signal drove the dialplan")
	}
	if _, ok := d.Session("sess-1"); ok {
		t.Fatal("foreign signal must not create a session")
	}
}

func TestHandleStartAbortsOnUnknownDialplan(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	d := dispatch.New(store, &fakeCapability{})

	err := d.HandleStart(context.Background(), dispatch.StartSignal{
		SessionID:  "sess-1",
		Channel:    "chan-1",
		Marker:     dispatch.Marker,
		DialplanID: "missing",
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}

	session, ok := d.Session("sess-1")
	if !ok || session.State != dispatch.StateAborted {
		t.Fatalf("expected aborted session, got %+v", session)
	}
}

func TestStepFailureContinuesWalk(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	master := seedDialplan(t, store, "answer", "playback", "hangup")
	fake := &fakeCapability{failOn: map[string]bool{"playback": true}}
	recorder := dispatch.NewMemoryRecorder()
	d := dispatch.New(store, fake, dispatch.WithRecorder(recorder))

	err := d.HandleStart(context.Background(), dispatch.StartSignal{
		SessionID:  "sess-1",
		Channel:    "chan-1",
		Marker:     dispatch.Marker,
		DialplanID: master.ID,
	})
	if err != nil {
		t.Fatalf("handle start: %v", err)
	}

	got := fake.commands()
	if len(got) != 2 || got[0] != "answer" || got[1] != "hangup" {
		t.Fatalf("expected walk to skip the failed step, got %v", got)
	}

	records := recorder.BySession("sess-1")
	if len(records) != 2 {
		t.Fatalf("failed step must not be recorded, got %d records", len(records))
	}
	session, _ := d.Session("sess-1")
	if session.State != dispatch.StateCompleted {
		t.Fatalf("expected completed session despite step failure, got %s", session.State)
	}
}

func TestHandleEndAbortsRunningWalk(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	master := seedDialplan(t, store, "answer", "playback", "hangup")
	fake := &fakeCapability{}
	d := dispatch.New(store, fake)

	// Tear down the session from inside the first step, as the engine
	// would when the caller hangs up mid-script.
	fake.onInvoke = func(command string) {
		if command == "answer" {
			d.HandleEnd(context.Background(), "sess-1")
		}
	}

	err := d.HandleStart(context.Background(), dispatch.StartSignal{
		SessionID:  "sess-1",
		Channel:    "chan-1",
		Marker:     dispatch.Marker,
		DialplanID: master.ID,
	})
	if err != nil {
		t.Fatalf("handle start: %v", err)
	}

	got := fake.commands()
	if len(got) != 1 || got[0] != "answer" {
		t.Fatalf("expected walk to stop after teardown, got %v", got)
	}
	session, _ := d.Session("sess-1")
	if session.State != dispatch.StateAborted {
		t.Fatalf("expected aborted session, got %s", session.State)
	}
}

func TestHandleEndIgnoresFinishedSessions(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	master := seedDialplan(t, store, "answer")
	d := dispatch.New(store, &fakeCapability{})
	ctx := context.Background()

	if err := d.HandleStart(ctx, dispatch.StartSignal{
		SessionID:  "sess-1",
		Channel:    "chan-1",
		Marker:     dispatch.Marker,
		DialplanID: master.ID,
	}); err != nil {
		t.Fatalf("handle start: %v", err)
	}

	d.HandleEnd(ctx, "sess-1")
	session, _ := d.Session("sess-1")
	if session.State != dispatch.StateCompleted {
		t.Fatalf("end after completion must not change state, got %s", session.State)
	}

	d.HandleEnd(ctx, "never-started")
}
