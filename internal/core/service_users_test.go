package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"pbxcore/internal/core"
	"pbxcore/internal/events"
	"pbxcore/internal/infra/persistence/memory"
	"pbxcore/pkg/domain"
)

// fakeProvisioner scripts endpoint engine behavior per call site and records
// the calls it receives.
type fakeProvisioner struct {
	failCreateAccount   bool
	failRegisterContact bool
	failCreateTrunk     bool

	accounts map[string]bool
	contacts map[string]bool
	trunks   map[string]bool
}

func newFakeProvisioner() *fakeProvisioner {
	return &fakeProvisioner{
		accounts: make(map[string]bool),
		contacts: make(map[string]bool),
		trunks:   make(map[string]bool),
	}
}

func (p *fakeProvisioner) CreateAccount(_ context.Context, username, _ string) error {
	if p.failCreateAccount {
		return errors.New("engine rejected account")
	}
	p.accounts[username] = true
	return nil
}

func (p *fakeProvisioner) RemoveAccount(_ context.Context, username string) error {
	delete(p.accounts, username)
	return nil
}

func (p *fakeProvisioner) RegisterContact(_ context.Context, username, target string) error {
	if p.failRegisterContact {
		return errors.New("engine rejected contact")
	}
	p.contacts[username+"/"+target] = true
	return nil
}

func (p *fakeProvisioner) RemoveContact(_ context.Context, username, target string) error {
	delete(p.contacts, username+"/"+target)
	return nil
}

func (p *fakeProvisioner) CreateTrunk(_ context.Context, trunk core.Trunk) error {
	if p.failCreateTrunk {
		return errors.New("engine rejected trunk")
	}
	p.trunks[trunk.Name] = true
	return nil
}

func (p *fakeProvisioner) RemoveTrunk(_ context.Context, name string) error {
	delete(p.trunks, name)
	return nil
}

func userInput(username string) core.CreateUserInput {
	return core.CreateUserInput{
		User:        core.User{Username: username, Password: "hunter2", Name: "Alice"},
		Permissions: []string{"admin", "agent"},
		ContactType: "sip",
	}
}

func TestCreateUserProvisionsEverything(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	prov := newFakeProvisioner()
	sink := &capture{}
	svc := core.NewService(store, core.WithProvisioner(prov), core.WithPublisher(sink))

	created, err := svc.CreateUser(context.Background(), userInput("alice"))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected server-assigned id")
	}
	if !prov.accounts["alice"] {
		t.Fatal("endpoint account not provisioned")
	}
	if !prov.contacts["alice/alice"] {
		t.Fatal("contact target must default to the username")
	}

	evs := sink.all()
	if len(evs) != 1 || evs[0].Family != core.FamilyUser || evs[0].Kind != events.KindCreated {
		t.Fatalf("expected one user created event, got %v", evs)
	}
	view, ok := evs[0].Payload.(core.ManagerUserView)
	if !ok {
		t.Fatalf("expected manager view payload, got %T", evs[0].Payload)
	}
	if view.Username != "alice" {
		t.Fatalf("unexpected payload %+v", view)
	}
}

func TestUserEventPayloadNeverCarriesPassword(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	sink := &capture{}
	svc := core.NewService(store, core.WithProvisioner(newFakeProvisioner()), core.WithPublisher(sink))
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, userInput("alice"))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, _, err := svc.UpdateUser(ctx, created.ID, func(u *core.User) error {
		u.Name = "Alice A."
		return nil
	}); err != nil {
		t.Fatalf("update user: %v", err)
	}
	if _, _, err := svc.DeleteUser(ctx, created.ID, true); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	for _, ev := range sink.all() {
		if ev.Family != core.FamilyUser {
			continue
		}
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		if strings.Contains(string(data), "hunter2") || strings.Contains(string(data), "password") {
			t.Fatalf("%s event payload leaks credentials: %s", ev.Kind, data)
		}
	}
}

func TestCreateUserAccountFailureLeavesNoRecords(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	prov := newFakeProvisioner()
	prov.failCreateAccount = true
	svc := core.NewService(store, core.WithProvisioner(prov))

	_, err := svc.CreateUser(context.Background(), userInput("alice"))
	var capErr domain.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected capability error, got %v", err)
	}
	if len(svc.ListUsers()) != 0 {
		t.Fatal("failed provisioning left a user record")
	}
}

func TestCreateUserContactFailureRollsBackSaga(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	prov := newFakeProvisioner()
	prov.failRegisterContact = true
	sink := &capture{}
	svc := core.NewService(store, core.WithProvisioner(prov), core.WithPublisher(sink))

	_, err := svc.CreateUser(context.Background(), userInput("alice"))
	var capErr domain.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected capability error, got %v", err)
	}

	if len(svc.ListUsers()) != 0 {
		t.Fatal("user record survived rollback")
	}
	if prov.accounts["alice"] {
		t.Fatal("endpoint account survived rollback")
	}
	if len(sink.all()) != 0 {
		t.Fatalf("rolled-back saga published %d events", len(sink.all()))
	}

	// The records exist as retired history; the saga compensates, it does
	// not erase.
	if _, err := svc.Authenticate(context.Background(), "alice", "hunter2"); !domain.IsNotFound(err) {
		t.Fatalf("rolled-back user must not authenticate, got %v", err)
	}
}

func TestDeleteUserForceCascades(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	prov := newFakeProvisioner()
	sink := &capture{}
	svc := core.NewService(store, core.WithProvisioner(prov), core.WithPublisher(sink))
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, userInput("alice"))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, _, err := svc.DeleteUser(ctx, created.ID, false); !domain.IsHasLiveChildren(err) {
		t.Fatalf("expected live-children rejection without force, got %v", err)
	}

	gone, _, err := svc.DeleteUser(ctx, created.ID, true)
	if err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	if gone.ID != created.ID || gone.Liveness != core.LivenessRetired || gone.RetiredAt == nil {
		t.Fatalf("forced delete must return the retired user, got %+v", gone)
	}
	if _, ok := svc.GetUser(created.ID, core.FilterActive); ok {
		t.Fatal("user still live after forced delete")
	}
	if prov.accounts["alice"] {
		t.Fatal("endpoint account survived user deletion")
	}

	var last events.Event
	for _, ev := range sink.all() {
		if ev.Kind == events.KindDeleted {
			last = ev
		}
	}
	if last.Family != core.FamilyUser {
		t.Fatalf("user deleted event must come after its children, last was %s", last.Family)
	}
}

func TestAuthenticate(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	svc := core.NewService(store, core.WithProvisioner(newFakeProvisioner()))
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, userInput("alice")); err != nil {
		t.Fatalf("create user: %v", err)
	}

	view, err := svc.Authenticate(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if view.Username != "alice" {
		t.Fatalf("unexpected view %+v", view)
	}

	if _, err := svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for bad password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "bob", "hunter2"); !domain.IsNotFound(err) {
		t.Fatalf("expected not-found for unknown user, got %v", err)
	}
}

func TestCreateUserDefaultsPermission(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	svc := core.NewService(store, core.WithProvisioner(newFakeProvisioner()))
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, core.CreateUserInput{
		User: core.User{Username: "alice", Password: "hunter2"},
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	view, ok := svc.GetManagerUserView(ctx, created.ID, core.FilterActive)
	if !ok {
		t.Fatal("manager view missing")
	}
	if len(view.Permissions) != 1 || view.Permissions[0] != "user" {
		t.Fatalf("expected default permission grant, got %v", view.Permissions)
	}
}

func TestGrantPermissionRejectsDuplicate(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	svc := core.NewService(store, core.WithProvisioner(newFakeProvisioner()))
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, core.CreateUserInput{
		User: core.User{Username: "alice", Password: "hunter2"},
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, _, err := svc.GrantPermission(ctx, created.ID, "admin"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, _, err := svc.GrantPermission(ctx, created.ID, "admin"); !domain.IsAlreadyExists(err) {
		t.Fatalf("expected duplicate grant rejection, got %v", err)
	}
}

func TestCreateTrunkRollsBackOnEngineFailure(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	prov := newFakeProvisioner()
	prov.failCreateTrunk = true
	svc := core.NewService(store, core.WithProvisioner(prov))

	_, err := svc.CreateTrunk(context.Background(), core.Trunk{Name: "carrier", Username: "t", Password: "p", Hostname: "sip.example.com"})
	var capErr domain.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected capability error, got %v", err)
	}
	if len(svc.ListTrunks()) != 0 {
		t.Fatal("trunk record survived rollback")
	}
}

func TestTrunkEventPayloadStripsCredentials(t *testing.T) {
	store := memory.NewStore(core.DefaultRulesEngine())
	prov := newFakeProvisioner()
	sink := &capture{}
	svc := core.NewService(store, core.WithProvisioner(prov), core.WithPublisher(sink))

	created, err := svc.CreateTrunk(context.Background(), core.Trunk{Name: "carrier", Username: "t", Password: "p", Hostname: "sip.example.com"})
	if err != nil {
		t.Fatalf("create trunk: %v", err)
	}
	if !prov.trunks["carrier"] {
		t.Fatal("trunk not pushed to engine")
	}
	if created.Password != "p" {
		t.Fatal("direct return should carry the stored record")
	}

	evs := sink.all()
	if len(evs) != 1 {
		t.Fatalf("expected one event, got %d", len(evs))
	}
	data, err := json.Marshal(evs[0].Payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	if strings.Contains(string(data), `"p"`) || strings.Contains(string(data), "password") {
		t.Fatalf("trunk event payload leaks credentials: %s", data)
	}
}
