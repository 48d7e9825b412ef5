package domain

import (
	"errors"
	"fmt"
)

// ErrValidation marks caller errors caused by malformed or missing input.
// Wrap it with context: fmt.Errorf("sequence must be positive: %w", ErrValidation).
var ErrValidation = errors.New("validation failed")

// NotFoundError is returned when an id does not resolve to a record under the
// requested liveness filter.
type NotFoundError struct {
	Family FamilyType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Family, e.ID)
}

// AlreadyExistsError is returned when a uniqueness invariant would be violated.
type AlreadyExistsError struct {
	Family FamilyType
	Key    string
}

func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Family, e.Key)
}

// HasLiveChildrenError rejects retirement of a parent that still owns live
// children. The force flag on lifecycle operations overrides it by retiring
// the children first.
type HasLiveChildrenError struct {
	Family   FamilyType
	ID       string
	Children FamilyType
	Count    int
}

func (e HasLiveChildrenError) Error() string {
	return fmt.Sprintf("%s %s still referenced by %d live %s records", e.Family, e.ID, e.Count, e.Children)
}

// ViewCollisionError is returned when a derived view name is already taken.
// Parent ids come from a large random space, so a collision is a hard failure
// rather than a retriable condition.
type ViewCollisionError struct {
	Name     string
	ParentID string
}

func (e ViewCollisionError) Error() string {
	return fmt.Sprintf("view %s already materialized for another parent", e.Name)
}

// BackendError wraps persisted-store I/O failures. The core does not retry;
// it surfaces the failure to the caller as a server-side error.
type BackendError struct {
	Op  string
	Err error
}

func (e BackendError) Error() string {
	return fmt.Sprintf("storage backend %s: %v", e.Op, e.Err)
}

func (e BackendError) Unwrap() error { return e.Err }

// CapabilityError wraps failures of the external execution capability. It is
// fatal in provisioning paths (triggering compensating rollback) and
// per-step nonfatal in the command dispatcher.
type CapabilityError struct {
	Op  string
	Err error
}

func (e CapabilityError) Error() string {
	return fmt.Sprintf("external capability %s: %v", e.Op, e.Err)
}

func (e CapabilityError) Unwrap() error { return e.Err }

// DeliveryError wraps event fan-out failures. It is logged by the publisher
// path and never undoes the committed mutation.
type DeliveryError struct {
	Topic string
	Err   error
}

func (e DeliveryError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Topic, e.Err)
}

func (e DeliveryError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsAlreadyExists reports whether err is an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var ae AlreadyExistsError
	return errors.As(err, &ae)
}

// IsHasLiveChildren reports whether err is a HasLiveChildrenError.
func IsHasLiveChildren(err error) bool {
	var hc HasLiveChildrenError
	return errors.As(err, &hc)
}
