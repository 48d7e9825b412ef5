package domain

import "context"

// LivenessFilter selects which liveness states a read should observe.
type LivenessFilter int

// Read filters. FilterActive is the default surface for all normal reads;
// FilterAny exposes retired history for audit.
const (
	FilterActive LivenessFilter = iota
	FilterRetired
	FilterAny
)

// Matches reports whether a record's liveness passes the filter.
func (f LivenessFilter) Matches(l Liveness) bool {
	switch f {
	case FilterActive:
		return l == LivenessActive
	case FilterRetired:
		return l == LivenessRetired
	default:
		return true
	}
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Create methods assign id, liveness and
// timestamps server-side; Retire methods reject parents with live children.
type Transaction interface {
	Snapshot() TransactionView

	CreateDialListMaster(DialListMaster) (DialListMaster, error)
	UpdateDialListMaster(id string, mutator func(*DialListMaster) error) (DialListMaster, error)
	RetireDialListMaster(id string) (DialListMaster, error)

	CreateDialEntry(DialEntry) (DialEntry, error)
	UpdateDialEntry(id string, mutator func(*DialEntry) error) (DialEntry, error)
	RetireDialEntry(id string) (DialEntry, error)
	RetireDialEntriesByList(listID string) ([]DialEntry, error)

	CreateDialplanMaster(DialplanMaster) (DialplanMaster, error)
	UpdateDialplanMaster(id string, mutator func(*DialplanMaster) error) (DialplanMaster, error)
	RetireDialplanMaster(id string) (DialplanMaster, error)

	CreateDialplanStep(DialplanStep) (DialplanStep, error)
	UpdateDialplanStep(id string, mutator func(*DialplanStep) error) (DialplanStep, error)
	RetireDialplanStep(id string) (DialplanStep, error)
	RetireDialplanStepsByMaster(masterID string) ([]DialplanStep, error)

	CreateUser(User) (User, error)
	UpdateUser(id string, mutator func(*User) error) (User, error)
	RetireUser(id string) (User, error)

	CreatePermission(Permission) (Permission, error)
	RetirePermission(id string) (Permission, error)
	RetirePermissionsByUser(userID string) ([]Permission, error)

	CreateContact(Contact) (Contact, error)
	UpdateContact(id string, mutator func(*Contact) error) (Contact, error)
	RetireContact(id string) (Contact, error)
	RetireContactsByUser(userID string) ([]Contact, error)

	CreateTrunk(Trunk) (Trunk, error)
	UpdateTrunk(id string, mutator func(*Trunk) error) (Trunk, error)
	RetireTrunk(id string) (Trunk, error)
}

// TransactionView provides read-only access to snapshot data for rules and
// lifecycle validation. All listings are restricted to live records.
type TransactionView interface {
	RuleView
	FindDialEntry(id string) (DialEntry, bool)
	FindDialplanStep(id string) (DialplanStep, bool)
	FindDialplanStepBySequence(masterID string, sequence int) (DialplanStep, bool)
	FindUserByUsername(username string) (User, bool)
	FindTrunkByName(name string) (Trunk, bool)
	FindContact(id string) (Contact, bool)
	ListDialEntriesByList(listID string) []DialEntry
	ListDialplanStepsByMaster(masterID string) []DialplanStep
	ListPermissionsByUser(userID string) []Permission
	ListContactsByUser(userID string) []Contact
	FindView(name string) (View, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error

	GetDialListMaster(id string, filter LivenessFilter) (DialListMaster, bool)
	GetDialEntry(id string, filter LivenessFilter) (DialEntry, bool)
	GetDialplanMaster(id string, filter LivenessFilter) (DialplanMaster, bool)
	GetDialplanStep(id string, filter LivenessFilter) (DialplanStep, bool)
	GetUser(id string, filter LivenessFilter) (User, bool)
	GetPermission(id string, filter LivenessFilter) (Permission, bool)
	GetContact(id string, filter LivenessFilter) (Contact, bool)
	GetTrunk(id string, filter LivenessFilter) (Trunk, bool)

	ListDialListMasters() []DialListMaster
	ListDialplanMasters() []DialplanMaster
	ListDialplanStepsByMaster(masterID string) []DialplanStep
	ListUsers() []User
	ListTrunks() []Trunk

	// ViewEntries resolves a materialized view name to the live dial entries
	// scoped to its parent. The projection always reflects current state.
	ViewEntries(name string) ([]DialEntry, bool)
}
