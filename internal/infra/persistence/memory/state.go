package memory

import "pbxcore/pkg/domain"

// Exported aliases to keep method signatures concise while still exposing
// domain types from this infra package.
type (
	// DialListMaster is an alias of domain.DialListMaster.
	DialListMaster = domain.DialListMaster
	// DialEntry is an alias of domain.DialEntry.
	DialEntry = domain.DialEntry
	// DialplanMaster is an alias of domain.DialplanMaster.
	DialplanMaster = domain.DialplanMaster
	// DialplanStep is an alias of domain.DialplanStep.
	DialplanStep = domain.DialplanStep
	// User is an alias of domain.User.
	User = domain.User
	// Permission is an alias of domain.Permission.
	Permission = domain.Permission
	// Contact is an alias of domain.Contact.
	Contact = domain.Contact
	// Trunk is an alias of domain.Trunk.
	Trunk = domain.Trunk
	// View is an alias of domain.View.
	View = domain.View
	// Change is an alias of domain.Change.
	Change = domain.Change
	// Result is an alias of domain.Result.
	Result = domain.Result
	// RulesEngine is an alias of domain.RulesEngine.
	RulesEngine = domain.RulesEngine
	// Transaction is an alias of domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView is an alias of domain.TransactionView.
	TransactionView = domain.TransactionView
	// PersistentStore is an alias of domain.PersistentStore.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	dialLists   map[string]DialListMaster
	dialEntries map[string]DialEntry
	dialplans   map[string]DialplanMaster
	steps       map[string]DialplanStep
	users       map[string]User
	permissions map[string]Permission
	contacts    map[string]Contact
	trunks      map[string]Trunk
	views       map[string]View
}

// Snapshot is the serialisable representation of the in-memory state.
type Snapshot struct {
	DialLists   map[string]DialListMaster `json:"dial_lists"`
	DialEntries map[string]DialEntry      `json:"dial_entries"`
	Dialplans   map[string]DialplanMaster `json:"dialplans"`
	Steps       map[string]DialplanStep   `json:"steps"`
	Users       map[string]User           `json:"users"`
	Permissions map[string]Permission     `json:"permissions"`
	Contacts    map[string]Contact        `json:"contacts"`
	Trunks      map[string]Trunk          `json:"trunks"`
	Views       map[string]View           `json:"views"`
}

func newMemoryState() memoryState {
	return memoryState{
		dialLists:   map[string]DialListMaster{},
		dialEntries: map[string]DialEntry{},
		dialplans:   map[string]DialplanMaster{},
		steps:       map[string]DialplanStep{},
		users:       map[string]User{},
		permissions: map[string]Permission{},
		contacts:    map[string]Contact{},
		trunks:      map[string]Trunk{},
		views:       map[string]View{},
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.dialLists {
		cloned.dialLists[k] = cloneDialListMaster(v)
	}
	for k, v := range s.dialEntries {
		cloned.dialEntries[k] = v
	}
	for k, v := range s.dialplans {
		cloned.dialplans[k] = v
	}
	for k, v := range s.steps {
		cloned.steps[k] = v
	}
	for k, v := range s.users {
		cloned.users[k] = v
	}
	for k, v := range s.permissions {
		cloned.permissions[k] = v
	}
	for k, v := range s.contacts {
		cloned.contacts[k] = v
	}
	for k, v := range s.trunks {
		cloned.trunks[k] = v
	}
	for k, v := range s.views {
		cloned.views[k] = v
	}
	return cloned
}

func cloneDialListMaster(m DialListMaster) DialListMaster {
	cp := m
	if m.Variables != nil {
		cp.Variables = make(map[string]any, len(m.Variables))
		for k, v := range m.Variables {
			cp.Variables[k] = v
		}
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		DialLists:   make(map[string]DialListMaster, len(state.dialLists)),
		DialEntries: make(map[string]DialEntry, len(state.dialEntries)),
		Dialplans:   make(map[string]DialplanMaster, len(state.dialplans)),
		Steps:       make(map[string]DialplanStep, len(state.steps)),
		Users:       make(map[string]User, len(state.users)),
		Permissions: make(map[string]Permission, len(state.permissions)),
		Contacts:    make(map[string]Contact, len(state.contacts)),
		Trunks:      make(map[string]Trunk, len(state.trunks)),
		Views:       make(map[string]View, len(state.views)),
	}
	for k, v := range state.dialLists {
		s.DialLists[k] = cloneDialListMaster(v)
	}
	for k, v := range state.dialEntries {
		s.DialEntries[k] = v
	}
	for k, v := range state.dialplans {
		s.Dialplans[k] = v
	}
	for k, v := range state.steps {
		s.Steps[k] = v
	}
	for k, v := range state.users {
		s.Users[k] = v
	}
	for k, v := range state.permissions {
		s.Permissions[k] = v
	}
	for k, v := range state.contacts {
		s.Contacts[k] = v
	}
	for k, v := range state.trunks {
		s.Trunks[k] = v
	}
	for k, v := range state.views {
		s.Views[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.DialLists {
		state.dialLists[k] = cloneDialListMaster(v)
	}
	for k, v := range s.DialEntries {
		state.dialEntries[k] = v
	}
	for k, v := range s.Dialplans {
		state.dialplans[k] = v
	}
	for k, v := range s.Steps {
		state.steps[k] = v
	}
	for k, v := range s.Users {
		state.users[k] = v
	}
	for k, v := range s.Permissions {
		state.permissions[k] = v
	}
	for k, v := range s.Contacts {
		state.contacts[k] = v
	}
	for k, v := range s.Trunks {
		state.trunks[k] = v
	}
	for k, v := range s.Views {
		state.views[k] = v
	}
	return state
}
