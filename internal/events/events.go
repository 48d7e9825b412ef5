// Package events provides the post-commit change feed. Delivery is
// best-effort: a failed publish is logged by the caller and never undoes the
// mutation that produced it.
package events

import (
	"context"
	"time"

	"pbxcore/pkg/domain"
)

// Kind classifies a lifecycle event.
type Kind string

// Event kinds map one-to-one onto the store actions.
const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// Event is one lifecycle notification. Payload carries the record as it stood
// after the mutation, already reduced to its outward-facing shape.
type Event struct {
	Topic    string            `json:"topic"`
	Family   domain.FamilyType `json:"family"`
	Kind     Kind              `json:"kind"`
	EntityID string            `json:"entity_id"`
	Payload  any               `json:"payload"`
	At       time.Time         `json:"at"`
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, ev Event) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Discard swallows every event. Useful as a default.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
