package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pbxcore/internal/infra/persistence/memory"
	"pbxcore/pkg/domain"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	return memory.NewStore(nil)
}

func createDialList(t *testing.T, store *memory.Store, name string) domain.DialListMaster {
	t.Helper()
	var created domain.DialListMaster
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		var txErr error
		created, txErr = tx.CreateDialListMaster(domain.DialListMaster{Name: &name})
		return txErr
	})
	if err != nil {
		t.Fatalf("create dial list master: %v", err)
	}
	return created
}

func createDialEntry(t *testing.T, store *memory.Store, listID, number string) domain.DialEntry {
	t.Helper()
	var created domain.DialEntry
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		var txErr error
		created, txErr = tx.CreateDialEntry(domain.DialEntry{DialListID: listID, Number: number})
		return txErr
	})
	if err != nil {
		t.Fatalf("create dial entry: %v", err)
	}
	return created
}

func createDialplan(t *testing.T, store *memory.Store, name string) domain.DialplanMaster {
	t.Helper()
	var created domain.DialplanMaster
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		var txErr error
		created, txErr = tx.CreateDialplanMaster(domain.DialplanMaster{Name: name})
		return txErr
	})
	if err != nil {
		t.Fatalf("create dialplan master: %v", err)
	}
	return created
}

func createStep(t *testing.T, store *memory.Store, masterID string, seq int, command string) domain.DialplanStep {
	t.Helper()
	var created domain.DialplanStep
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		var txErr error
		created, txErr = tx.CreateDialplanStep(domain.DialplanStep{DialplanID: masterID, Sequence: seq, Command: command})
		return txErr
	})
	if err != nil {
		t.Fatalf("create dialplan step: %v", err)
	}
	return created
}

func createUser(t *testing.T, store *memory.Store, username string) domain.User {
	t.Helper()
	var created domain.User
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		var txErr error
		created, txErr = tx.CreateUser(domain.User{Username: username, Password: "secret", Name: username})
		return txErr
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return created
}

func TestCreateDialListMasterDerivesViewBinding(t *testing.T) {
	store := newTestStore(t)
	created := createDialList(t, store, "campaign")

	if created.ID == "" {
		t.Fatal("expected server-assigned id")
	}
	if created.Liveness != domain.LivenessActive {
		t.Fatalf("expected active liveness, got %s", created.Liveness)
	}
	want := domain.ViewNameFor(created.ID)
	if created.DialTable != want {
		t.Fatalf("expected dial table %q, got %q", want, created.DialTable)
	}
	if strings.ContainsAny(created.DialTable, "-.:") {
		t.Fatalf("dial table %q contains separator characters", created.DialTable)
	}
	if created.Variables == nil || len(created.Variables) != 0 {
		t.Fatalf("expected empty variables map, got %#v", created.Variables)
	}

	entries, ok := store.ViewEntries(created.DialTable)
	if !ok {
		t.Fatalf("expected view %q to resolve", created.DialTable)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty view, got %d entries", len(entries))
	}
}

func TestCreateDialListMasterIgnoresCallerTimestamps(t *testing.T) {
	store := newTestStore(t)
	name := "campaign"
	var created domain.DialListMaster
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		m := domain.DialListMaster{Name: &name}
		m.ID = "caller-picked"
		m.Liveness = domain.LivenessRetired
		var txErr error
		created, txErr = tx.CreateDialListMaster(m)
		return txErr
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "caller-picked" {
		t.Fatal("caller-supplied id must not survive")
	}
	if created.Liveness != domain.LivenessActive {
		t.Fatalf("expected active liveness, got %s", created.Liveness)
	}
	if created.RetiredAt != nil {
		t.Fatal("new record must not carry a retirement timestamp")
	}
}

func TestViewScopedToParentAndLiveness(t *testing.T) {
	store := newTestStore(t)
	listA := createDialList(t, store, "a")
	listB := createDialList(t, store, "b")

	e1 := createDialEntry(t, store, listA.ID, "100")
	e2 := createDialEntry(t, store, listA.ID, "200")
	createDialEntry(t, store, listB.ID, "300")

	entries, ok := store.ViewEntries(listA.DialTable)
	if !ok {
		t.Fatalf("view %q missing", listA.DialTable)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries in view, got %d", len(entries))
	}

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.RetireDialEntry(e1.ID)
		return txErr
	})
	if err != nil {
		t.Fatalf("retire entry: %v", err)
	}

	entries, _ = store.ViewEntries(listA.DialTable)
	if len(entries) != 1 || entries[0].ID != e2.ID {
		t.Fatalf("expected retired entry excluded from view, got %v", entries)
	}

	if _, ok := store.ViewEntries("no_such_view"); ok {
		t.Fatal("unknown view name must not resolve")
	}
}

func TestViewSurvivesParentRetirement(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.RetireDialListMaster(list.ID)
		return txErr
	})
	if err != nil {
		t.Fatalf("retire master: %v", err)
	}

	if _, ok := store.ViewEntries(list.DialTable); !ok {
		t.Fatal("view must remain resolvable after its parent retires")
	}
}

func TestRetireDialListMasterRejectsLiveChildren(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")
	createDialEntry(t, store, list.ID, "100")

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.RetireDialListMaster(list.ID)
		return txErr
	})
	if !domain.IsHasLiveChildren(err) {
		t.Fatalf("expected live-children rejection, got %v", err)
	}

	if _, ok := store.GetDialListMaster(list.ID, domain.FilterActive); !ok {
		t.Fatal("rejected retire must leave the master active")
	}
}

func TestCascadeRetireInSingleTransaction(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")
	createDialEntry(t, store, list.ID, "100")
	createDialEntry(t, store, list.ID, "200")

	var cascaded []domain.DialEntry
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		var txErr error
		cascaded, txErr = tx.RetireDialEntriesByList(list.ID)
		if txErr != nil {
			return txErr
		}
		_, txErr = tx.RetireDialListMaster(list.ID)
		return txErr
	})
	if err != nil {
		t.Fatalf("forced retire: %v", err)
	}
	if len(cascaded) != 2 {
		t.Fatalf("expected 2 cascaded entries, got %d", len(cascaded))
	}
	for _, e := range cascaded {
		if e.Liveness != domain.LivenessRetired || e.RetiredAt == nil {
			t.Fatalf("cascaded entry %s not retired: %+v", e.ID, e)
		}
	}

	if _, ok := store.GetDialListMaster(list.ID, domain.FilterActive); ok {
		t.Fatal("master still visible under active filter")
	}
	retired, ok := store.GetDialListMaster(list.ID, domain.FilterRetired)
	if !ok {
		t.Fatal("master not visible under retired filter")
	}
	if retired.RetiredAt == nil {
		t.Fatal("retired master missing retirement timestamp")
	}
}

func TestRetireIsTerminal(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.RetireDialListMaster(list.ID)
		return txErr
	})
	if err != nil {
		t.Fatalf("retire: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.RetireDialListMaster(list.ID)
		return txErr
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not-found for second retire, got %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.UpdateDialListMaster(list.ID, func(m *domain.DialListMaster) error { return nil })
		return txErr
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not-found for update of retired record, got %v", err)
	}
}

func TestUpdatePreservesIdentityFields(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")

	var updated domain.DialListMaster
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		var txErr error
		updated, txErr = tx.UpdateDialListMaster(list.ID, func(m *domain.DialListMaster) error {
			m.ID = "other"
			m.DialTable = "hijacked"
			m.Liveness = domain.LivenessRetired
			detail := "updated"
			m.Detail = &detail
			return nil
		})
		return txErr
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != list.ID {
		t.Fatalf("id changed from %s to %s", list.ID, updated.ID)
	}
	if updated.DialTable != list.DialTable {
		t.Fatalf("view binding changed from %s to %s", list.DialTable, updated.DialTable)
	}
	if updated.Liveness != domain.LivenessActive {
		t.Fatalf("liveness changed to %s", updated.Liveness)
	}
	if updated.Detail == nil || *updated.Detail != "updated" {
		t.Fatalf("mutator change lost: %+v", updated)
	}
	if !updated.UpdatedAt.After(list.UpdatedAt) && !updated.UpdatedAt.Equal(list.UpdatedAt) {
		t.Fatalf("update timestamp went backwards: %v < %v", updated.UpdatedAt, list.UpdatedAt)
	}
}

func TestMutatorErrorAbortsTransaction(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")

	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.UpdateDialListMaster(list.ID, func(m *domain.DialListMaster) error {
			detail := "half-applied"
			m.Detail = &detail
			return boom
		})
		return txErr
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}

	current, _ := store.GetDialListMaster(list.ID, domain.FilterActive)
	if current.Detail != nil {
		t.Fatal("aborted transaction leaked a mutation")
	}
}

func TestDialplanStepSequenceUniqueness(t *testing.T) {
	store := newTestStore(t)
	master := createDialplan(t, store, "inbound")
	createStep(t, store, master.ID, 1, "answer")

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.CreateDialplanStep(domain.DialplanStep{DialplanID: master.ID, Sequence: 1, Command: "hangup"})
		return txErr
	})
	if !domain.IsAlreadyExists(err) {
		t.Fatalf("expected duplicate sequence rejection, got %v", err)
	}

	steps := store.ListDialplanStepsByMaster(master.ID)
	if len(steps) != 1 || steps[0].Command != "answer" {
		t.Fatalf("duplicate create must not overwrite, got %v", steps)
	}
}

func TestDialplanStepSequenceFreedByRetire(t *testing.T) {
	store := newTestStore(t)
	master := createDialplan(t, store, "inbound")
	first := createStep(t, store, master.ID, 1, "answer")

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.RetireDialplanStep(first.ID)
		return txErr
	})
	if err != nil {
		t.Fatalf("retire step: %v", err)
	}

	replacement := createStep(t, store, master.ID, 1, "playback")
	steps := store.ListDialplanStepsByMaster(master.ID)
	if len(steps) != 1 || steps[0].ID != replacement.ID {
		t.Fatalf("freed sequence slot not reusable, got %v", steps)
	}
}

func TestDialplanStepRejectsNonPositiveSequence(t *testing.T) {
	store := newTestStore(t)
	master := createDialplan(t, store, "inbound")

	for _, seq := range []int{0, -1} {
		_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
			_, txErr := tx.CreateDialplanStep(domain.DialplanStep{DialplanID: master.ID, Sequence: seq, Command: "answer"})
			return txErr
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("sequence %d: expected validation error, got %v", seq, err)
		}
	}
}

func TestStepsOrderedBySequence(t *testing.T) {
	store := newTestStore(t)
	master := createDialplan(t, store, "inbound")
	createStep(t, store, master.ID, 3, "hangup")
	createStep(t, store, master.ID, 1, "answer")
	createStep(t, store, master.ID, 2, "playback")

	steps := store.ListDialplanStepsByMaster(master.ID)
	want := []string{"answer", "playback", "hangup"}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for i, cmd := range want {
		if steps[i].Command != cmd {
			t.Fatalf("position %d: expected %q, got %q", i, cmd, steps[i].Command)
		}
	}
}

func TestStepSequenceMoveChecksUniqueness(t *testing.T) {
	store := newTestStore(t)
	master := createDialplan(t, store, "inbound")
	createStep(t, store, master.ID, 1, "answer")
	second := createStep(t, store, master.ID, 2, "hangup")

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.UpdateDialplanStep(second.ID, func(st *domain.DialplanStep) error {
			st.Sequence = 1
			return nil
		})
		return txErr
	})
	if !domain.IsAlreadyExists(err) {
		t.Fatalf("expected occupied-slot rejection, got %v", err)
	}
}

func TestUserUsernameUniqueAmongLive(t *testing.T) {
	store := newTestStore(t)
	u := createUser(t, store, "alice")

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.CreateUser(domain.User{Username: "alice", Password: "other"})
		return txErr
	})
	if !domain.IsAlreadyExists(err) {
		t.Fatalf("expected duplicate username rejection, got %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.RetireUser(u.ID)
		return txErr
	})
	if err != nil {
		t.Fatalf("retire user: %v", err)
	}

	createUser(t, store, "alice")
}

func TestPermissionPairUniqueAmongLive(t *testing.T) {
	store := newTestStore(t)
	u := createUser(t, store, "alice")

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.CreatePermission(domain.Permission{UserID: u.ID, Permission: "admin"})
		return txErr
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.CreatePermission(domain.Permission{UserID: u.ID, Permission: "admin"})
		return txErr
	})
	if !domain.IsAlreadyExists(err) {
		t.Fatalf("expected duplicate grant rejection, got %v", err)
	}
}

func TestChildCreateRequiresLiveParent(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.RetireDialListMaster(list.ID)
		return txErr
	})
	if err != nil {
		t.Fatalf("retire: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.CreateDialEntry(domain.DialEntry{DialListID: list.ID, Number: "100"})
		return txErr
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not-found for retired parent, got %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		_, txErr := tx.CreateDialEntry(domain.DialEntry{DialListID: "missing", Number: "100"})
		return txErr
	})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not-found for unknown parent, got %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")
	createDialEntry(t, store, list.ID, "100")
	createUser(t, store, "alice")

	snapshot := store.ExportState()

	restored := memory.NewStore(nil)
	restored.ImportState(snapshot)

	got, ok := restored.GetDialListMaster(list.ID, domain.FilterActive)
	if !ok {
		t.Fatal("master lost across snapshot round trip")
	}
	if got.DialTable != list.DialTable {
		t.Fatalf("view binding lost: %q != %q", got.DialTable, list.DialTable)
	}
	entries, ok := restored.ViewEntries(list.DialTable)
	if !ok || len(entries) != 1 {
		t.Fatalf("view registry lost across round trip: ok=%v entries=%d", ok, len(entries))
	}
	if len(restored.ListUsers()) != 1 {
		t.Fatal("users lost across round trip")
	}
}

func TestTransactionIsolation(t *testing.T) {
	store := newTestStore(t)

	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		name := "doomed"
		if _, txErr := tx.CreateDialListMaster(domain.DialListMaster{Name: &name}); txErr != nil {
			return txErr
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}

	if got := store.ListDialListMasters(); len(got) != 0 {
		t.Fatalf("failed transaction leaked %d records", len(got))
	}
}

func TestSnapshotFindersInsideTransaction(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")
	entry := createDialEntry(t, store, list.ID, "100")
	user := createUser(t, store, "alice")

	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		view := tx.Snapshot()

		got, ok := view.FindDialEntry(entry.ID)
		if !ok || got.Number != "100" {
			t.Fatalf("committed entry not visible: ok=%v entry=%+v", ok, got)
		}
		if _, ok := view.FindDialEntry("missing"); ok {
			t.Fatal("finder returned a record for an unknown id")
		}

		vw, ok := view.FindView(list.DialTable)
		if !ok || vw.ParentID != list.ID {
			t.Fatalf("registered view not resolvable: ok=%v view=%+v", ok, vw)
		}

		contact, txErr := tx.CreateContact(domain.Contact{UserID: user.ID, Target: "sip:alice@host"})
		if txErr != nil {
			return txErr
		}
		// Finders observe uncommitted writes of the same transaction.
		if found, ok := view.FindContact(contact.ID); !ok || found.Target != "sip:alice@host" {
			t.Fatalf("in-transaction contact not visible: ok=%v contact=%+v", ok, found)
		}

		if _, txErr = tx.RetireContact(contact.ID); txErr != nil {
			return txErr
		}
		if _, ok := view.FindContact(contact.ID); ok {
			t.Fatal("retired contact still visible through the live finder")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestCascadeRetireOrderFollowsCreation(t *testing.T) {
	store := newTestStore(t)
	list := createDialList(t, store, "campaign")
	first := createDialEntry(t, store, list.ID, "100")
	second := createDialEntry(t, store, list.ID, "200")

	var retired []domain.DialEntry
	_, err := store.RunInTransaction(context.Background(), func(tx memory.Transaction) error {
		var txErr error
		retired, txErr = tx.RetireDialEntriesByList(list.ID)
		return txErr
	})
	if err != nil {
		t.Fatalf("cascade retire: %v", err)
	}
	if len(retired) != 2 || retired[0].ID != first.ID || retired[1].ID != second.ID {
		t.Fatalf("expected creation-ordered cascade [%s %s], got %+v", first.ID, second.ID, retired)
	}
	for _, e := range retired {
		if e.Liveness != domain.LivenessRetired || e.RetiredAt == nil {
			t.Fatalf("cascaded entry not retired: %+v", e)
		}
	}
}
