// Package memory provides the canonical in-memory transactional store for the
// pbxcore domain. Persistent backends build on it by snapshotting committed
// state. It lives under infra to keep domain dependencies one-way.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pbxcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store is an in-memory transactional store. Mutations serialize under a
// single lock, so the liveness and child-count checks a transaction performs
// are atomic with the commit that depends on them.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	idFn   func() string
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		idFn:   uuid.NewString,
	}
}

// SetClock overrides the transaction clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Registered rules evaluate against the candidate state before commit; a
// blocking violation discards the whole mutation set.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTxView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTxView(&snapshot))
}

// ExportState returns a deep copy of the committed state for persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the committed state with the supplied snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

func (tx *transaction) Snapshot() TransactionView {
	return newTxView(&tx.state)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// stampNew assigns server-side identity and timestamps. Caller-supplied values
// for these fields are always overwritten.
func (tx *transaction) stampNew(b *domain.Base) {
	b.ID = tx.store.idFn()
	b.Liveness = domain.LivenessActive
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	b.RetiredAt = nil
}

func (tx *transaction) retire(b *domain.Base) {
	retired := tx.now
	b.Liveness = domain.LivenessRetired
	b.UpdatedAt = tx.now
	b.RetiredAt = &retired
}

// CreateDialListMaster stores a new dial list master and materializes its
// entry view inside the same transaction. The create fails as a whole when
// the derived view name is already taken.
func (tx *transaction) CreateDialListMaster(m DialListMaster) (DialListMaster, error) {
	tx.stampNew(&m.Base)
	if _, exists := tx.state.dialLists[m.ID]; exists {
		return DialListMaster{}, domain.AlreadyExistsError{Family: domain.FamilyDialListMaster, Key: m.ID}
	}
	if m.Variables == nil {
		m.Variables = map[string]any{}
	}

	name := domain.ViewNameFor(m.ID)
	if _, taken := tx.Snapshot().FindView(name); taken {
		return DialListMaster{}, domain.ViewCollisionError{Name: name, ParentID: m.ID}
	}
	tx.state.views[name] = View{
		Name:      name,
		ParentID:  m.ID,
		Family:    domain.FamilyDialEntry,
		CreatedAt: tx.now,
	}
	m.DialTable = name

	tx.state.dialLists[m.ID] = cloneDialListMaster(m)
	tx.recordChange(Change{Family: domain.FamilyDialListMaster, Action: domain.ActionCreate, After: cloneDialListMaster(m)})
	return cloneDialListMaster(m), nil
}

// UpdateDialListMaster mutates a live dial list master. Identity, liveness and
// creation timestamps survive any mutator changes.
func (tx *transaction) UpdateDialListMaster(id string, mutator func(*DialListMaster) error) (DialListMaster, error) {
	current, ok := tx.state.dialLists[id]
	if !ok || !current.Live() {
		return DialListMaster{}, domain.NotFoundError{Family: domain.FamilyDialListMaster, ID: id}
	}
	before := cloneDialListMaster(current)
	if err := mutator(&current); err != nil {
		return DialListMaster{}, err
	}
	current.Base = before.Base
	current.DialTable = before.DialTable
	current.UpdatedAt = tx.now
	tx.state.dialLists[id] = cloneDialListMaster(current)
	tx.recordChange(Change{Family: domain.FamilyDialListMaster, Action: domain.ActionUpdate, Before: before, After: cloneDialListMaster(current)})
	return cloneDialListMaster(current), nil
}

// RetireDialListMaster soft-deletes a dial list master. The live-children
// count executes inside the transaction, so no entry can slip in between the
// check and the retire.
func (tx *transaction) RetireDialListMaster(id string) (DialListMaster, error) {
	current, ok := tx.state.dialLists[id]
	if !ok || !current.Live() {
		return DialListMaster{}, domain.NotFoundError{Family: domain.FamilyDialListMaster, ID: id}
	}
	if live := len(tx.Snapshot().ListDialEntriesByList(id)); live > 0 {
		return DialListMaster{}, domain.HasLiveChildrenError{
			Family:   domain.FamilyDialListMaster,
			ID:       id,
			Children: domain.FamilyDialEntry,
			Count:    live,
		}
	}
	before := cloneDialListMaster(current)
	tx.retire(&current.Base)
	tx.state.dialLists[id] = cloneDialListMaster(current)
	tx.recordChange(Change{Family: domain.FamilyDialListMaster, Action: domain.ActionRetire, Before: before, After: cloneDialListMaster(current)})
	return cloneDialListMaster(current), nil
}

// CreateDialEntry stores a dial entry under a live dial list master.
func (tx *transaction) CreateDialEntry(e DialEntry) (DialEntry, error) {
	parent, ok := tx.state.dialLists[e.DialListID]
	if !ok || !parent.Live() {
		return DialEntry{}, domain.NotFoundError{Family: domain.FamilyDialListMaster, ID: e.DialListID}
	}
	if e.Number == "" {
		return DialEntry{}, fmt.Errorf("dial entry number required: %w", domain.ErrValidation)
	}
	tx.stampNew(&e.Base)
	tx.state.dialEntries[e.ID] = e
	tx.recordChange(Change{Family: domain.FamilyDialEntry, Action: domain.ActionCreate, After: e})
	return e, nil
}

// UpdateDialEntry mutates a live dial entry.
func (tx *transaction) UpdateDialEntry(id string, mutator func(*DialEntry) error) (DialEntry, error) {
	current, ok := tx.state.dialEntries[id]
	if !ok || !current.Live() {
		return DialEntry{}, domain.NotFoundError{Family: domain.FamilyDialEntry, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return DialEntry{}, err
	}
	current.Base = before.Base
	current.DialListID = before.DialListID
	current.UpdatedAt = tx.now
	tx.state.dialEntries[id] = current
	tx.recordChange(Change{Family: domain.FamilyDialEntry, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// RetireDialEntry soft-deletes a single dial entry.
func (tx *transaction) RetireDialEntry(id string) (DialEntry, error) {
	current, ok := tx.state.dialEntries[id]
	if !ok || !current.Live() {
		return DialEntry{}, domain.NotFoundError{Family: domain.FamilyDialEntry, ID: id}
	}
	before := current
	tx.retire(&current.Base)
	tx.state.dialEntries[id] = current
	tx.recordChange(Change{Family: domain.FamilyDialEntry, Action: domain.ActionRetire, Before: before, After: current})
	return current, nil
}

// RetireDialEntriesByList retires every live entry owned by the dial list,
// returning the retired records in creation order.
func (tx *transaction) RetireDialEntriesByList(listID string) ([]DialEntry, error) {
	live := tx.Snapshot().ListDialEntriesByList(listID)
	retired := make([]DialEntry, 0, len(live))
	for _, e := range live {
		r, err := tx.RetireDialEntry(e.ID)
		if err != nil {
			return nil, err
		}
		retired = append(retired, r)
	}
	return retired, nil
}

// CreateDialplanMaster stores a new dialplan master.
func (tx *transaction) CreateDialplanMaster(m DialplanMaster) (DialplanMaster, error) {
	if m.Name == "" {
		return DialplanMaster{}, fmt.Errorf("dialplan master name required: %w", domain.ErrValidation)
	}
	tx.stampNew(&m.Base)
	tx.state.dialplans[m.ID] = m
	tx.recordChange(Change{Family: domain.FamilyDialplanMaster, Action: domain.ActionCreate, After: m})
	return m, nil
}

// UpdateDialplanMaster mutates a live dialplan master.
func (tx *transaction) UpdateDialplanMaster(id string, mutator func(*DialplanMaster) error) (DialplanMaster, error) {
	current, ok := tx.state.dialplans[id]
	if !ok || !current.Live() {
		return DialplanMaster{}, domain.NotFoundError{Family: domain.FamilyDialplanMaster, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return DialplanMaster{}, err
	}
	current.Base = before.Base
	current.UpdatedAt = tx.now
	tx.state.dialplans[id] = current
	tx.recordChange(Change{Family: domain.FamilyDialplanMaster, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// RetireDialplanMaster soft-deletes a dialplan master with no live steps.
func (tx *transaction) RetireDialplanMaster(id string) (DialplanMaster, error) {
	current, ok := tx.state.dialplans[id]
	if !ok || !current.Live() {
		return DialplanMaster{}, domain.NotFoundError{Family: domain.FamilyDialplanMaster, ID: id}
	}
	if live := len(tx.Snapshot().ListDialplanStepsByMaster(id)); live > 0 {
		return DialplanMaster{}, domain.HasLiveChildrenError{
			Family:   domain.FamilyDialplanMaster,
			ID:       id,
			Children: domain.FamilyDialplanStep,
			Count:    live,
		}
	}
	before := current
	tx.retire(&current.Base)
	tx.state.dialplans[id] = current
	tx.recordChange(Change{Family: domain.FamilyDialplanMaster, Action: domain.ActionRetire, Before: before, After: current})
	return current, nil
}

// CreateDialplanStep stores a command step for a live dialplan master. The
// (master, sequence) pair must be unique among live steps; there is no silent
// overwrite.
func (tx *transaction) CreateDialplanStep(st DialplanStep) (DialplanStep, error) {
	if st.Sequence <= 0 {
		return DialplanStep{}, fmt.Errorf("sequence must be positive: %w", domain.ErrValidation)
	}
	parent, ok := tx.state.dialplans[st.DialplanID]
	if !ok || !parent.Live() {
		return DialplanStep{}, domain.NotFoundError{Family: domain.FamilyDialplanMaster, ID: st.DialplanID}
	}
	if _, taken := tx.Snapshot().FindDialplanStepBySequence(st.DialplanID, st.Sequence); taken {
		return DialplanStep{}, domain.AlreadyExistsError{
			Family: domain.FamilyDialplanStep,
			Key:    fmt.Sprintf("%s/%d", st.DialplanID, st.Sequence),
		}
	}
	tx.stampNew(&st.Base)
	tx.state.steps[st.ID] = st
	tx.recordChange(Change{Family: domain.FamilyDialplanStep, Action: domain.ActionCreate, After: st})
	return st, nil
}

// UpdateDialplanStep mutates a live step. Sequence moves are checked against
// the uniqueness invariant.
func (tx *transaction) UpdateDialplanStep(id string, mutator func(*DialplanStep) error) (DialplanStep, error) {
	current, ok := tx.state.steps[id]
	if !ok || !current.Live() {
		return DialplanStep{}, domain.NotFoundError{Family: domain.FamilyDialplanStep, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return DialplanStep{}, err
	}
	current.Base = before.Base
	current.DialplanID = before.DialplanID
	current.UpdatedAt = tx.now
	if current.Sequence <= 0 {
		return DialplanStep{}, fmt.Errorf("sequence must be positive: %w", domain.ErrValidation)
	}
	if current.Sequence != before.Sequence {
		if other, taken := tx.Snapshot().FindDialplanStepBySequence(current.DialplanID, current.Sequence); taken && other.ID != id {
			return DialplanStep{}, domain.AlreadyExistsError{
				Family: domain.FamilyDialplanStep,
				Key:    fmt.Sprintf("%s/%d", current.DialplanID, current.Sequence),
			}
		}
	}
	tx.state.steps[id] = current
	tx.recordChange(Change{Family: domain.FamilyDialplanStep, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// RetireDialplanStep soft-deletes a step, freeing its sequence slot.
func (tx *transaction) RetireDialplanStep(id string) (DialplanStep, error) {
	current, ok := tx.state.steps[id]
	if !ok || !current.Live() {
		return DialplanStep{}, domain.NotFoundError{Family: domain.FamilyDialplanStep, ID: id}
	}
	before := current
	tx.retire(&current.Base)
	tx.state.steps[id] = current
	tx.recordChange(Change{Family: domain.FamilyDialplanStep, Action: domain.ActionRetire, Before: before, After: current})
	return current, nil
}

// RetireDialplanStepsByMaster retires every live step of a dialplan master.
func (tx *transaction) RetireDialplanStepsByMaster(masterID string) ([]DialplanStep, error) {
	live := tx.Snapshot().ListDialplanStepsByMaster(masterID)
	retired := make([]DialplanStep, 0, len(live))
	for _, st := range live {
		r, err := tx.RetireDialplanStep(st.ID)
		if err != nil {
			return nil, err
		}
		retired = append(retired, r)
	}
	return retired, nil
}

// CreateUser stores a user account. Username is unique among live users.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.Username == "" || u.Password == "" {
		return User{}, fmt.Errorf("username and password required: %w", domain.ErrValidation)
	}
	if _, taken := tx.Snapshot().FindUserByUsername(u.Username); taken {
		return User{}, domain.AlreadyExistsError{Family: domain.FamilyUser, Key: u.Username}
	}
	tx.stampNew(&u.Base)
	tx.state.users[u.ID] = u
	tx.recordChange(Change{Family: domain.FamilyUser, Action: domain.ActionCreate, After: u})
	return u, nil
}

// UpdateUser mutates a live user. Username stays fixed.
func (tx *transaction) UpdateUser(id string, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok || !current.Live() {
		return User{}, domain.NotFoundError{Family: domain.FamilyUser, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.Base = before.Base
	current.Username = before.Username
	current.UpdatedAt = tx.now
	tx.state.users[id] = current
	tx.recordChange(Change{Family: domain.FamilyUser, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// RetireUser soft-deletes a user with no live permissions or contacts.
func (tx *transaction) RetireUser(id string) (User, error) {
	current, ok := tx.state.users[id]
	if !ok || !current.Live() {
		return User{}, domain.NotFoundError{Family: domain.FamilyUser, ID: id}
	}
	if livePerms := len(tx.Snapshot().ListPermissionsByUser(id)); livePerms > 0 {
		return User{}, domain.HasLiveChildrenError{
			Family:   domain.FamilyUser,
			ID:       id,
			Children: domain.FamilyPermission,
			Count:    livePerms,
		}
	}
	if liveContacts := len(tx.Snapshot().ListContactsByUser(id)); liveContacts > 0 {
		return User{}, domain.HasLiveChildrenError{
			Family:   domain.FamilyUser,
			ID:       id,
			Children: domain.FamilyContact,
			Count:    liveContacts,
		}
	}
	before := current
	tx.retire(&current.Base)
	tx.state.users[id] = current
	tx.recordChange(Change{Family: domain.FamilyUser, Action: domain.ActionRetire, Before: before, After: current})
	return current, nil
}

// CreatePermission grants a permission to a live user. The (user, permission)
// pair is unique among live grants.
func (tx *transaction) CreatePermission(p Permission) (Permission, error) {
	if p.Permission == "" {
		return Permission{}, fmt.Errorf("permission name required: %w", domain.ErrValidation)
	}
	owner, ok := tx.state.users[p.UserID]
	if !ok || !owner.Live() {
		return Permission{}, domain.NotFoundError{Family: domain.FamilyUser, ID: p.UserID}
	}
	for _, existing := range tx.state.permissions {
		if existing.UserID == p.UserID && existing.Permission == p.Permission && existing.Live() {
			return Permission{}, domain.AlreadyExistsError{
				Family: domain.FamilyPermission,
				Key:    fmt.Sprintf("%s/%s", p.UserID, p.Permission),
			}
		}
	}
	tx.stampNew(&p.Base)
	tx.state.permissions[p.ID] = p
	tx.recordChange(Change{Family: domain.FamilyPermission, Action: domain.ActionCreate, After: p})
	return p, nil
}

// RetirePermission soft-deletes a permission grant.
func (tx *transaction) RetirePermission(id string) (Permission, error) {
	current, ok := tx.state.permissions[id]
	if !ok || !current.Live() {
		return Permission{}, domain.NotFoundError{Family: domain.FamilyPermission, ID: id}
	}
	before := current
	tx.retire(&current.Base)
	tx.state.permissions[id] = current
	tx.recordChange(Change{Family: domain.FamilyPermission, Action: domain.ActionRetire, Before: before, After: current})
	return current, nil
}

// RetirePermissionsByUser retires every live grant owned by the user.
func (tx *transaction) RetirePermissionsByUser(userID string) ([]Permission, error) {
	live := tx.Snapshot().ListPermissionsByUser(userID)
	retired := make([]Permission, 0, len(live))
	for _, p := range live {
		r, err := tx.RetirePermission(p.ID)
		if err != nil {
			return nil, err
		}
		retired = append(retired, r)
	}
	return retired, nil
}

// CreateContact binds a live user to a provisioned endpoint target.
func (tx *transaction) CreateContact(c Contact) (Contact, error) {
	if c.Target == "" {
		return Contact{}, fmt.Errorf("contact target required: %w", domain.ErrValidation)
	}
	owner, ok := tx.state.users[c.UserID]
	if !ok || !owner.Live() {
		return Contact{}, domain.NotFoundError{Family: domain.FamilyUser, ID: c.UserID}
	}
	tx.stampNew(&c.Base)
	tx.state.contacts[c.ID] = c
	tx.recordChange(Change{Family: domain.FamilyContact, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateContact mutates a live contact. Owner and target stay fixed.
func (tx *transaction) UpdateContact(id string, mutator func(*Contact) error) (Contact, error) {
	current, ok := tx.state.contacts[id]
	if !ok || !current.Live() {
		return Contact{}, domain.NotFoundError{Family: domain.FamilyContact, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Contact{}, err
	}
	current.Base = before.Base
	current.UserID = before.UserID
	current.Target = before.Target
	current.UpdatedAt = tx.now
	tx.state.contacts[id] = current
	tx.recordChange(Change{Family: domain.FamilyContact, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// RetireContact soft-deletes a contact.
func (tx *transaction) RetireContact(id string) (Contact, error) {
	current, ok := tx.state.contacts[id]
	if !ok || !current.Live() {
		return Contact{}, domain.NotFoundError{Family: domain.FamilyContact, ID: id}
	}
	before := current
	tx.retire(&current.Base)
	tx.state.contacts[id] = current
	tx.recordChange(Change{Family: domain.FamilyContact, Action: domain.ActionRetire, Before: before, After: current})
	return current, nil
}

// RetireContactsByUser retires every live contact owned by the user.
func (tx *transaction) RetireContactsByUser(userID string) ([]Contact, error) {
	live := tx.Snapshot().ListContactsByUser(userID)
	retired := make([]Contact, 0, len(live))
	for _, c := range live {
		r, err := tx.RetireContact(c.ID)
		if err != nil {
			return nil, err
		}
		retired = append(retired, r)
	}
	return retired, nil
}

// CreateTrunk stores a trunk registration. Name is unique among live trunks.
func (tx *transaction) CreateTrunk(t Trunk) (Trunk, error) {
	if t.Name == "" {
		return Trunk{}, fmt.Errorf("trunk name required: %w", domain.ErrValidation)
	}
	if _, taken := tx.Snapshot().FindTrunkByName(t.Name); taken {
		return Trunk{}, domain.AlreadyExistsError{Family: domain.FamilyTrunk, Key: t.Name}
	}
	tx.stampNew(&t.Base)
	tx.state.trunks[t.ID] = t
	tx.recordChange(Change{Family: domain.FamilyTrunk, Action: domain.ActionCreate, After: t})
	return t, nil
}

// UpdateTrunk mutates a live trunk. Name stays fixed.
func (tx *transaction) UpdateTrunk(id string, mutator func(*Trunk) error) (Trunk, error) {
	current, ok := tx.state.trunks[id]
	if !ok || !current.Live() {
		return Trunk{}, domain.NotFoundError{Family: domain.FamilyTrunk, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Trunk{}, err
	}
	current.Base = before.Base
	current.Name = before.Name
	current.UpdatedAt = tx.now
	tx.state.trunks[id] = current
	tx.recordChange(Change{Family: domain.FamilyTrunk, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// RetireTrunk soft-deletes a trunk.
func (tx *transaction) RetireTrunk(id string) (Trunk, error) {
	current, ok := tx.state.trunks[id]
	if !ok || !current.Live() {
		return Trunk{}, domain.NotFoundError{Family: domain.FamilyTrunk, ID: id}
	}
	before := current
	tx.retire(&current.Base)
	tx.state.trunks[id] = current
	tx.recordChange(Change{Family: domain.FamilyTrunk, Action: domain.ActionRetire, Before: before, After: current})
	return current, nil
}

// Read helpers ---------------------------------------------------------------

// GetDialListMaster retrieves a dial list master by id under the filter.
func (s *Store) GetDialListMaster(id string, filter domain.LivenessFilter) (DialListMaster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.dialLists[id]
	if !ok || !filter.Matches(m.Liveness) {
		return DialListMaster{}, false
	}
	return cloneDialListMaster(m), true
}

// GetDialEntry retrieves a dial entry by id under the filter.
func (s *Store) GetDialEntry(id string, filter domain.LivenessFilter) (DialEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.dialEntries[id]
	if !ok || !filter.Matches(e.Liveness) {
		return DialEntry{}, false
	}
	return e, true
}

// GetDialplanMaster retrieves a dialplan master by id under the filter.
func (s *Store) GetDialplanMaster(id string, filter domain.LivenessFilter) (DialplanMaster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.dialplans[id]
	if !ok || !filter.Matches(m.Liveness) {
		return DialplanMaster{}, false
	}
	return m, true
}

// GetDialplanStep retrieves a step by id under the filter.
func (s *Store) GetDialplanStep(id string, filter domain.LivenessFilter) (DialplanStep, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state.steps[id]
	if !ok || !filter.Matches(st.Liveness) {
		return DialplanStep{}, false
	}
	return st, true
}

// GetUser retrieves a user by id under the filter.
func (s *Store) GetUser(id string, filter domain.LivenessFilter) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	if !ok || !filter.Matches(u.Liveness) {
		return User{}, false
	}
	return u, true
}

// GetPermission retrieves a permission grant by id under the filter.
func (s *Store) GetPermission(id string, filter domain.LivenessFilter) (Permission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.permissions[id]
	if !ok || !filter.Matches(p.Liveness) {
		return Permission{}, false
	}
	return p, true
}

// GetContact retrieves a contact by id under the filter.
func (s *Store) GetContact(id string, filter domain.LivenessFilter) (Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.contacts[id]
	if !ok || !filter.Matches(c.Liveness) {
		return Contact{}, false
	}
	return c, true
}

// GetTrunk retrieves a trunk by id under the filter.
func (s *Store) GetTrunk(id string, filter domain.LivenessFilter) (Trunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.state.trunks[id]
	if !ok || !filter.Matches(t.Liveness) {
		return Trunk{}, false
	}
	return t, true
}

// ListDialListMasters returns all live dial list masters in creation order.
func (s *Store) ListDialListMasters() []DialListMaster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DialListMaster, 0, len(s.state.dialLists))
	for _, m := range s.state.dialLists {
		if m.Live() {
			out = append(out, cloneDialListMaster(m))
		}
	}
	sortByCreation(out, func(m DialListMaster) (time.Time, string) { return m.CreatedAt, m.ID })
	return out
}

// ListDialplanMasters returns all live dialplan masters in creation order.
func (s *Store) ListDialplanMasters() []DialplanMaster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DialplanMaster, 0, len(s.state.dialplans))
	for _, m := range s.state.dialplans {
		if m.Live() {
			out = append(out, m)
		}
	}
	sortByCreation(out, func(m DialplanMaster) (time.Time, string) { return m.CreatedAt, m.ID })
	return out
}

// ListDialplanStepsByMaster returns the live steps of a master ordered by
// sequence ascending. Ties are impossible among live steps.
func (s *Store) ListDialplanStepsByMaster(masterID string) []DialplanStep {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DialplanStep, 0)
	for _, st := range s.state.steps {
		if st.DialplanID == masterID && st.Live() {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// ListUsers returns all live users in creation order.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.state.users))
	for _, u := range s.state.users {
		if u.Live() {
			out = append(out, u)
		}
	}
	sortByCreation(out, func(u User) (time.Time, string) { return u.CreatedAt, u.ID })
	return out
}

// ListTrunks returns all live trunks in creation order.
func (s *Store) ListTrunks() []Trunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Trunk, 0, len(s.state.trunks))
	for _, t := range s.state.trunks {
		if t.Live() {
			out = append(out, t)
		}
	}
	sortByCreation(out, func(t Trunk) (time.Time, string) { return t.CreatedAt, t.ID })
	return out
}

// ViewEntries resolves a materialized view name to the live dial entries of
// its parent. The projection is computed against current state on every call,
// never a snapshot.
func (s *Store) ViewEntries(name string) ([]DialEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.state.views[name]
	if !ok {
		return nil, false
	}
	out := make([]DialEntry, 0)
	for _, e := range s.state.dialEntries {
		if e.DialListID == view.ParentID && e.Live() {
			out = append(out, e)
		}
	}
	sortByCreation(out, func(e DialEntry) (time.Time, string) { return e.CreatedAt, e.ID })
	return out, true
}

func sortByCreation[T any](items []T, key func(T) (time.Time, string)) {
	sort.Slice(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if ti.Equal(tj) {
			return idi < idj
		}
		return ti.Before(tj)
	})
}
