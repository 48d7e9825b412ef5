package core

import (
	"context"

	"pbxcore/internal/events"
	"pbxcore/pkg/domain"
)

// CreateTrunk persists a trunk record and pushes its configuration to the
// endpoint engine. A provisioning failure unwinds the record so the store and
// the engine never disagree about which trunks exist.
func (s *Service) CreateTrunk(ctx context.Context, t Trunk) (Trunk, error) {
	var created Trunk
	err := s.run(ctx, "create_trunk", func(ctx context.Context) error {
		sg := &saga{}

		if err := s.sagaStep(ctx, sg, "retire_trunk", func(tx domain.Transaction) (string, error) {
			var txErr error
			created, txErr = tx.CreateTrunk(t)
			return created.ID, txErr
		}, func(tx domain.Transaction, id string) error {
			_, txErr := tx.RetireTrunk(id)
			return txErr
		}); err != nil {
			return err
		}

		if err := s.provisioner.CreateTrunk(ctx, created); err != nil {
			sg.rollback(ctx, s.logger)
			return domain.CapabilityError{Op: "create_trunk", Err: err}
		}

		canonical, ok := s.store.GetTrunk(created.ID, FilterActive)
		if !ok {
			return domain.NotFoundError{Family: FamilyTrunk, ID: created.ID}
		}
		created = canonical
		s.publish(ctx, FamilyTrunk, events.KindCreated, created.ID, NewManagerTrunkView(created))
		return nil
	})
	if err != nil {
		return Trunk{}, err
	}
	return created, nil
}

// UpdateTrunk applies the mutator to a live trunk. Name stays fixed.
func (s *Service) UpdateTrunk(ctx context.Context, id string, mutator func(*Trunk) error) (Trunk, Result, error) {
	var updated Trunk
	var res Result
	err := s.run(ctx, "update_trunk", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateTrunk(id, mutator)
			return txErr
		})
		if err != nil {
			return err
		}
		s.publish(ctx, FamilyTrunk, events.KindUpdated, id, NewManagerTrunkView(updated))
		return nil
	})
	if err != nil {
		return Trunk{}, res, err
	}
	return updated, res, nil
}

// DeleteTrunk retires a trunk, returning the retired record, and removes its
// engine configuration. Engine removal after commit is nonfatal.
func (s *Service) DeleteTrunk(ctx context.Context, id string) (Trunk, Result, error) {
	var retired Trunk
	var res Result
	err := s.run(ctx, "delete_trunk", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			retired, txErr = tx.RetireTrunk(id)
			return txErr
		})
		if err != nil {
			return err
		}
		s.archive(ctx, FamilyTrunk, retired.ID, NewManagerTrunkView(retired))
		s.publish(ctx, FamilyTrunk, events.KindDeleted, retired.ID, NewManagerTrunkView(retired))

		if err := s.provisioner.RemoveTrunk(ctx, retired.Name); err != nil {
			s.logger.Warn().Err(err).Str("trunk", retired.Name).Msg("endpoint trunk removal failed")
		}
		return nil
	})
	if err != nil {
		return Trunk{}, res, err
	}
	return retired, res, nil
}

// GetTrunk reads a trunk under the given liveness filter.
func (s *Service) GetTrunk(id string, filter LivenessFilter) (Trunk, bool) {
	return s.store.GetTrunk(id, filter)
}

// ListTrunks lists all live trunks.
func (s *Service) ListTrunks() []Trunk {
	return s.store.ListTrunks()
}
