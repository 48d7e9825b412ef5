package core

import (
	"context"

	"pbxcore/internal/events"
	"pbxcore/pkg/domain"
)

// CreateDialplanMaster persists a dialplan master.
func (s *Service) CreateDialplanMaster(ctx context.Context, m DialplanMaster) (DialplanMaster, Result, error) {
	var created DialplanMaster
	var res Result
	err := s.run(ctx, "create_dialplan_master", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateDialplanMaster(m)
			return txErr
		})
		if err != nil {
			return err
		}
		canonical, ok := s.store.GetDialplanMaster(created.ID, FilterActive)
		if !ok {
			return domain.NotFoundError{Family: FamilyDialplanMaster, ID: created.ID}
		}
		created = canonical
		s.publish(ctx, FamilyDialplanMaster, events.KindCreated, created.ID, created)
		return nil
	})
	if err != nil {
		return DialplanMaster{}, res, err
	}
	return created, res, nil
}

// UpdateDialplanMaster applies the mutator to a live dialplan master.
func (s *Service) UpdateDialplanMaster(ctx context.Context, id string, mutator func(*DialplanMaster) error) (DialplanMaster, Result, error) {
	var updated DialplanMaster
	var res Result
	err := s.run(ctx, "update_dialplan_master", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateDialplanMaster(id, mutator)
			return txErr
		})
		if err != nil {
			return err
		}
		s.publish(ctx, FamilyDialplanMaster, events.KindUpdated, id, updated)
		return nil
	})
	if err != nil {
		return DialplanMaster{}, res, err
	}
	return updated, res, nil
}

// DeleteDialplanMaster retires a dialplan master and returns the retired
// record. Without force the retire is rejected while live steps remain; with
// force the steps retire first in the same transaction.
func (s *Service) DeleteDialplanMaster(ctx context.Context, id string, force bool) (DialplanMaster, Result, error) {
	var retired DialplanMaster
	var cascaded []DialplanStep
	var res Result
	err := s.run(ctx, "delete_dialplan_master", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if force {
				var txErr error
				cascaded, txErr = tx.RetireDialplanStepsByMaster(id)
				if txErr != nil {
					return txErr
				}
			}
			var txErr error
			retired, txErr = tx.RetireDialplanMaster(id)
			return txErr
		})
		if err != nil {
			return err
		}
		for _, st := range cascaded {
			s.archive(ctx, FamilyDialplanStep, st.ID, st)
			s.publish(ctx, FamilyDialplanStep, events.KindDeleted, st.ID, st)
		}
		s.archive(ctx, FamilyDialplanMaster, retired.ID, retired)
		s.publish(ctx, FamilyDialplanMaster, events.KindDeleted, retired.ID, retired)
		return nil
	})
	if err != nil {
		return DialplanMaster{}, res, err
	}
	return retired, res, nil
}

// GetDialplanMaster reads a dialplan master under the given liveness filter.
func (s *Service) GetDialplanMaster(id string, filter LivenessFilter) (DialplanMaster, bool) {
	return s.store.GetDialplanMaster(id, filter)
}

// ListDialplanMasters lists all live dialplan masters.
func (s *Service) ListDialplanMasters() []DialplanMaster {
	return s.store.ListDialplanMasters()
}

// CreateDialplanStep appends a command step to a live dialplan master. The
// sequence slot must be free among live steps.
func (s *Service) CreateDialplanStep(ctx context.Context, st DialplanStep) (DialplanStep, Result, error) {
	var created DialplanStep
	var res Result
	err := s.run(ctx, "create_dialplan_step", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateDialplanStep(st)
			return txErr
		})
		if err != nil {
			return err
		}
		s.publish(ctx, FamilyDialplanStep, events.KindCreated, created.ID, created)
		return nil
	})
	if err != nil {
		return DialplanStep{}, res, err
	}
	return created, res, nil
}

// UpdateDialplanStep applies the mutator to a live step.
func (s *Service) UpdateDialplanStep(ctx context.Context, id string, mutator func(*DialplanStep) error) (DialplanStep, Result, error) {
	var updated DialplanStep
	var res Result
	err := s.run(ctx, "update_dialplan_step", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateDialplanStep(id, mutator)
			return txErr
		})
		if err != nil {
			return err
		}
		s.publish(ctx, FamilyDialplanStep, events.KindUpdated, id, updated)
		return nil
	})
	if err != nil {
		return DialplanStep{}, res, err
	}
	return updated, res, nil
}

// DeleteDialplanStep retires a step and returns the retired record, freeing
// its sequence slot for reuse.
func (s *Service) DeleteDialplanStep(ctx context.Context, id string) (DialplanStep, Result, error) {
	var retired DialplanStep
	var res Result
	err := s.run(ctx, "delete_dialplan_step", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			retired, txErr = tx.RetireDialplanStep(id)
			return txErr
		})
		if err != nil {
			return err
		}
		s.archive(ctx, FamilyDialplanStep, retired.ID, retired)
		s.publish(ctx, FamilyDialplanStep, events.KindDeleted, retired.ID, retired)
		return nil
	})
	if err != nil {
		return DialplanStep{}, res, err
	}
	return retired, res, nil
}

// GetDialplanStep reads a step under the given liveness filter.
func (s *Service) GetDialplanStep(id string, filter LivenessFilter) (DialplanStep, bool) {
	return s.store.GetDialplanStep(id, filter)
}

// ListDialplanStepsByMaster lists the live steps of a master ordered by
// sequence.
func (s *Service) ListDialplanStepsByMaster(masterID string) []DialplanStep {
	return s.store.ListDialplanStepsByMaster(masterID)
}
