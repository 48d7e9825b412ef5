package core

import (
	"context"

	"github.com/rs/zerolog"
)

// saga tracks compensation steps for multi-entity provisioning flows. Each
// forward step registers its undo before the next step runs; on failure the
// undos execute in reverse order. Compensation is best-effort: a failed undo
// is logged and the remaining undos still run.
type saga struct {
	steps []sagaStep
}

type sagaStep struct {
	name string
	undo func(context.Context) error
}

func (s *saga) push(name string, undo func(context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, undo: undo})
}

func (s *saga) rollback(ctx context.Context, logger zerolog.Logger) {
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			logger.Error().Err(err).Str("step", step.name).Msg("saga compensation failed")
		}
	}
}
