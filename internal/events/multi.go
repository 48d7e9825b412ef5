package events

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// MultiPublisher delivers each event to every wrapped publisher, collecting
// failures instead of stopping at the first one.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher composes publishers. Nil entries are skipped.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	out := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &MultiPublisher{publishers: out}
}

// Publish fans the event out to all publishers.
func (m *MultiPublisher) Publish(ctx context.Context, ev Event) error {
	var result *multierror.Error
	for _, p := range m.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
