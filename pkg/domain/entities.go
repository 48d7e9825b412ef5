// Package domain defines the persistent entity families, value types, and
// rule evaluation primitives used by pbxcore.
package domain

import "time"

// FamilyType identifies the family of record stored in the core domain.
type FamilyType string

// Supported family identifiers used in Change records and persistence buckets.
const (
	// FamilyDialListMaster identifies an outbound dial list master record.
	FamilyDialListMaster FamilyType = "dial_list_master"
	// FamilyDialEntry identifies a dial entry owned by a dial list master.
	FamilyDialEntry FamilyType = "dial_entry"
	// FamilyDialplanMaster identifies a dialplan master record.
	FamilyDialplanMaster FamilyType = "dialplan_master"
	// FamilyDialplanStep identifies an ordered dialplan command step.
	FamilyDialplanStep FamilyType = "dialplan_step"
	// FamilyUser identifies a user account record.
	FamilyUser FamilyType = "user"
	// FamilyPermission identifies a permission grant owned by a user.
	FamilyPermission FamilyType = "permission"
	// FamilyContact identifies a contact endpoint owned by a user.
	FamilyContact FamilyType = "contact"
	// FamilyTrunk identifies an outbound trunk record.
	FamilyTrunk FamilyType = "trunk"
)

// Liveness distinguishes current records from soft-deleted history.
type Liveness string

// Liveness states. The transition active -> retired is terminal; records are
// never physically erased.
const (
	LivenessActive  Liveness = "active"
	LivenessRetired Liveness = "retired"
)

// Base contains common fields for all domain records. ID and CreatedAt are
// assigned by the store at creation and are immutable afterwards.
type Base struct {
	ID        string     `json:"id"`
	Liveness  Liveness   `json:"liveness"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	RetiredAt *time.Time `json:"retired_at"`
}

// Live reports whether the record is in the active state.
func (b Base) Live() bool { return b.Liveness == LivenessActive }

// DialListMaster owns a collection of dial entries and carries the name of
// the parent-scoped view materialized over them at creation time.
type DialListMaster struct {
	Base
	Name      *string        `json:"name"`
	Detail    *string        `json:"detail"`
	DialTable string         `json:"dl_table"`
	Variables map[string]any `json:"variables"`
}

// DialEntry is a single outbound dial target owned by a dial list master.
type DialEntry struct {
	Base
	DialListID string  `json:"dlma_id"`
	Name       *string `json:"name"`
	Number     string  `json:"number"`
	TryCount   int     `json:"try_count"`
	Detail     *string `json:"detail"`
}

// DialplanMaster groups an ordered script of dialplan steps.
type DialplanMaster struct {
	Base
	Name   string  `json:"name"`
	Detail *string `json:"detail"`
}

// DialplanStep is one command in a dialplan script. Sequence is positive and
// unique among live steps of the same master.
type DialplanStep struct {
	Base
	DialplanID string `json:"dpma_id"`
	Sequence   int    `json:"sequence"`
	Command    string `json:"command"`
}

// User is an account record. Username is unique among live users.
type User struct {
	Base
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Permission grants a named capability to a user.
type Permission struct {
	Base
	UserID     string `json:"user_id"`
	Permission string `json:"permission"`
}

// Contact binds a user to a provisioned endpoint target.
type Contact struct {
	Base
	UserID string  `json:"user_id"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Detail *string `json:"detail"`
}

// Trunk is an outbound trunk registration. Name is unique among live trunks.
type Trunk struct {
	Base
	Name     string  `json:"name"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	Hostname string  `json:"hostname"`
	Detail   *string `json:"detail"`
}

// View is a permanent, read-only, parent-scoped projection over a child
// collection. Its name is derived deterministically from the parent id and is
// never renamed or recreated.
type View struct {
	Name      string     `json:"name"`
	ParentID  string     `json:"parent_id"`
	Family    FamilyType `json:"family"`
	CreatedAt time.Time  `json:"created_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Family FamilyType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutation kinds captured per transaction.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionRetire indicates an entity transitioned to the retired state.
	ActionRetire Action = "retire"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Family   FamilyType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
