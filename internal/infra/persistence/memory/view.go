package memory

import (
	"sort"
	"time"

	"pbxcore/pkg/domain"
)

var _ domain.TransactionView = (*txView)(nil)

// txView is a read surface over a single state generation. Transactions hand
// it their candidate state; Store.View hands it a committed clone. Listings
// only surface live records.
type txView struct {
	state *memoryState
}

func newTxView(state *memoryState) *txView {
	return &txView{state: state}
}

func (v *txView) ListDialListMasters() []DialListMaster {
	out := make([]DialListMaster, 0, len(v.state.dialLists))
	for _, m := range v.state.dialLists {
		if m.Live() {
			out = append(out, cloneDialListMaster(m))
		}
	}
	sortByCreation(out, func(m DialListMaster) (time.Time, string) { return m.CreatedAt, m.ID })
	return out
}

func (v *txView) ListDialEntries() []DialEntry {
	out := make([]DialEntry, 0, len(v.state.dialEntries))
	for _, e := range v.state.dialEntries {
		if e.Live() {
			out = append(out, e)
		}
	}
	sortByCreation(out, func(e DialEntry) (time.Time, string) { return e.CreatedAt, e.ID })
	return out
}

func (v *txView) ListDialplanMasters() []DialplanMaster {
	out := make([]DialplanMaster, 0, len(v.state.dialplans))
	for _, m := range v.state.dialplans {
		if m.Live() {
			out = append(out, m)
		}
	}
	sortByCreation(out, func(m DialplanMaster) (time.Time, string) { return m.CreatedAt, m.ID })
	return out
}

func (v *txView) ListDialplanSteps() []DialplanStep {
	out := make([]DialplanStep, 0, len(v.state.steps))
	for _, st := range v.state.steps {
		if st.Live() {
			out = append(out, st)
		}
	}
	sortByCreation(out, func(st DialplanStep) (time.Time, string) { return st.CreatedAt, st.ID })
	return out
}

func (v *txView) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		if u.Live() {
			out = append(out, u)
		}
	}
	sortByCreation(out, func(u User) (time.Time, string) { return u.CreatedAt, u.ID })
	return out
}

func (v *txView) ListPermissions() []Permission {
	out := make([]Permission, 0, len(v.state.permissions))
	for _, p := range v.state.permissions {
		if p.Live() {
			out = append(out, p)
		}
	}
	sortByCreation(out, func(p Permission) (time.Time, string) { return p.CreatedAt, p.ID })
	return out
}

func (v *txView) ListContacts() []Contact {
	out := make([]Contact, 0, len(v.state.contacts))
	for _, c := range v.state.contacts {
		if c.Live() {
			out = append(out, c)
		}
	}
	sortByCreation(out, func(c Contact) (time.Time, string) { return c.CreatedAt, c.ID })
	return out
}

func (v *txView) ListTrunks() []Trunk {
	out := make([]Trunk, 0, len(v.state.trunks))
	for _, t := range v.state.trunks {
		if t.Live() {
			out = append(out, t)
		}
	}
	sortByCreation(out, func(t Trunk) (time.Time, string) { return t.CreatedAt, t.ID })
	return out
}

func (v *txView) ListViews() []View {
	out := make([]View, 0, len(v.state.views))
	for _, vw := range v.state.views {
		out = append(out, vw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (v *txView) FindDialListMaster(id string) (DialListMaster, bool) {
	m, ok := v.state.dialLists[id]
	if !ok || !m.Live() {
		return DialListMaster{}, false
	}
	return cloneDialListMaster(m), true
}

func (v *txView) FindDialplanMaster(id string) (DialplanMaster, bool) {
	m, ok := v.state.dialplans[id]
	if !ok || !m.Live() {
		return DialplanMaster{}, false
	}
	return m, true
}

func (v *txView) FindUser(id string) (User, bool) {
	u, ok := v.state.users[id]
	if !ok || !u.Live() {
		return User{}, false
	}
	return u, true
}

func (v *txView) FindDialEntry(id string) (DialEntry, bool) {
	e, ok := v.state.dialEntries[id]
	if !ok || !e.Live() {
		return DialEntry{}, false
	}
	return e, true
}

func (v *txView) FindDialplanStep(id string) (DialplanStep, bool) {
	st, ok := v.state.steps[id]
	if !ok || !st.Live() {
		return DialplanStep{}, false
	}
	return st, true
}

func (v *txView) FindDialplanStepBySequence(masterID string, sequence int) (DialplanStep, bool) {
	for _, st := range v.state.steps {
		if st.DialplanID == masterID && st.Sequence == sequence && st.Live() {
			return st, true
		}
	}
	return DialplanStep{}, false
}

func (v *txView) FindUserByUsername(username string) (User, bool) {
	for _, u := range v.state.users {
		if u.Username == username && u.Live() {
			return u, true
		}
	}
	return User{}, false
}

func (v *txView) FindTrunkByName(name string) (Trunk, bool) {
	for _, t := range v.state.trunks {
		if t.Name == name && t.Live() {
			return t, true
		}
	}
	return Trunk{}, false
}

func (v *txView) FindContact(id string) (Contact, bool) {
	c, ok := v.state.contacts[id]
	if !ok || !c.Live() {
		return Contact{}, false
	}
	return c, true
}

func (v *txView) ListDialEntriesByList(listID string) []DialEntry {
	out := make([]DialEntry, 0)
	for _, e := range v.state.dialEntries {
		if e.DialListID == listID && e.Live() {
			out = append(out, e)
		}
	}
	sortByCreation(out, func(e DialEntry) (time.Time, string) { return e.CreatedAt, e.ID })
	return out
}

func (v *txView) ListDialplanStepsByMaster(masterID string) []DialplanStep {
	out := make([]DialplanStep, 0)
	for _, st := range v.state.steps {
		if st.DialplanID == masterID && st.Live() {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (v *txView) ListPermissionsByUser(userID string) []Permission {
	out := make([]Permission, 0)
	for _, p := range v.state.permissions {
		if p.UserID == userID && p.Live() {
			out = append(out, p)
		}
	}
	sortByCreation(out, func(p Permission) (time.Time, string) { return p.CreatedAt, p.ID })
	return out
}

func (v *txView) ListContactsByUser(userID string) []Contact {
	out := make([]Contact, 0)
	for _, c := range v.state.contacts {
		if c.UserID == userID && c.Live() {
			out = append(out, c)
		}
	}
	sortByCreation(out, func(c Contact) (time.Time, string) { return c.CreatedAt, c.ID })
	return out
}

func (v *txView) FindView(name string) (View, bool) {
	vw, ok := v.state.views[name]
	return vw, ok
}
