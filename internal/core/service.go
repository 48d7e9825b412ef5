package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pbxcore/internal/events"
	"pbxcore/pkg/domain"
)

// EndpointProvisioner applies account and trunk configuration to the external
// telephony engine. Provisioning failures during creation flows trigger
// compensating rollback of the records created so far.
type EndpointProvisioner interface {
	CreateAccount(ctx context.Context, username, password string) error
	RemoveAccount(ctx context.Context, username string) error
	RegisterContact(ctx context.Context, username, target string) error
	RemoveContact(ctx context.Context, username, target string) error
	CreateTrunk(ctx context.Context, trunk Trunk) error
	RemoveTrunk(ctx context.Context, name string) error
}

// NoopProvisioner satisfies EndpointProvisioner without side effects.
type NoopProvisioner struct{}

func (NoopProvisioner) CreateAccount(context.Context, string, string) error  { return nil }
func (NoopProvisioner) RemoveAccount(context.Context, string) error          { return nil }
func (NoopProvisioner) RegisterContact(context.Context, string, string) error { return nil }
func (NoopProvisioner) RemoveContact(context.Context, string, string) error  { return nil }
func (NoopProvisioner) CreateTrunk(context.Context, Trunk) error             { return nil }
func (NoopProvisioner) RemoveTrunk(context.Context, string) error            { return nil }

// Archiver receives retired records for long-term audit storage. Archive
// failures never fail the retire that produced them.
type Archiver interface {
	ArchiveRetired(ctx context.Context, family FamilyType, id string, record any) error
}

// Service exposes the lifecycle operations over the entity store. All
// mutations run transactionally, publish change events after commit, and
// never physically erase records.
type Service struct {
	store       domain.PersistentStore
	publisher   events.Publisher
	provisioner EndpointProvisioner
	archiver    Archiver
	logger      zerolog.Logger
	metrics     MetricsRecorder
	tracer      Tracer
}

// ServiceOption customizes service construction.
type ServiceOption func(*Service)

// WithPublisher sets the post-commit event publisher.
func WithPublisher(p events.Publisher) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithProvisioner sets the telephony engine provisioner.
func WithProvisioner(p EndpointProvisioner) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.provisioner = p
		}
	}
}

// WithArchiver sets the retired-record archiver.
func WithArchiver(a Archiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(m MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the operation tracer.
func WithTracer(t Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		publisher:   events.Discard,
		provisioner: NoopProvisioner{},
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// run wraps an operation with tracing and metrics.
func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	var span TraceSpan
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operation)
	}
	err := fn(ctx)
	if span != nil {
		span.End(err)
	}
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
	}
	return err
}

// publish emits one lifecycle event. Delivery failures are logged and never
// propagate to the caller; the mutation is already committed.
func (s *Service) publish(ctx context.Context, family FamilyType, kind events.Kind, id string, payload any) {
	ev := events.Event{
		Topic:    string(family),
		Family:   family,
		Kind:     kind,
		EntityID: id,
		Payload:  payload,
		At:       time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("topic", ev.Topic).Str("entity_id", id).Msg("event delivery failed")
	}
}

// archive hands a retired record to the archiver, logging failures.
func (s *Service) archive(ctx context.Context, family FamilyType, id string, record any) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveRetired(ctx, family, id, record); err != nil {
		s.logger.Warn().Err(err).Str("family", string(family)).Str("entity_id", id).Msg("archive of retired record failed")
	}
}

// CreateDialListMaster persists a dial list master together with its entry
// view. Unset optional fields keep their documented defaults. The returned
// record is re-read from committed state.
func (s *Service) CreateDialListMaster(ctx context.Context, m DialListMaster) (DialListMaster, Result, error) {
	var created DialListMaster
	var res Result
	err := s.run(ctx, "create_dial_list_master", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateDialListMaster(m)
			return txErr
		})
		if err != nil {
			return err
		}
		canonical, ok := s.store.GetDialListMaster(created.ID, FilterActive)
		if !ok {
			return domain.NotFoundError{Family: FamilyDialListMaster, ID: created.ID}
		}
		created = canonical
		s.publish(ctx, FamilyDialListMaster, events.KindCreated, created.ID, created)
		return nil
	})
	if err != nil {
		return DialListMaster{}, res, err
	}
	return created, res, nil
}

// UpdateDialListMaster applies the mutator to a live master. Identity fields
// and the view binding survive the mutation.
func (s *Service) UpdateDialListMaster(ctx context.Context, id string, mutator func(*DialListMaster) error) (DialListMaster, Result, error) {
	var updated DialListMaster
	var res Result
	err := s.run(ctx, "update_dial_list_master", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateDialListMaster(id, mutator)
			return txErr
		})
		if err != nil {
			return err
		}
		canonical, ok := s.store.GetDialListMaster(id, FilterActive)
		if !ok {
			return domain.NotFoundError{Family: FamilyDialListMaster, ID: id}
		}
		updated = canonical
		s.publish(ctx, FamilyDialListMaster, events.KindUpdated, id, updated)
		return nil
	})
	if err != nil {
		return DialListMaster{}, res, err
	}
	return updated, res, nil
}

// DeleteDialListMaster retires a dial list master and returns the retired
// record with its retirement timestamp set. Without force the retire is
// rejected while live entries remain; with force the entries retire first
// in the same transaction and each retirement emits its own deleted event.
func (s *Service) DeleteDialListMaster(ctx context.Context, id string, force bool) (DialListMaster, Result, error) {
	var retired DialListMaster
	var cascaded []DialEntry
	var res Result
	err := s.run(ctx, "delete_dial_list_master", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if force {
				var txErr error
				cascaded, txErr = tx.RetireDialEntriesByList(id)
				if txErr != nil {
					return txErr
				}
			}
			var txErr error
			retired, txErr = tx.RetireDialListMaster(id)
			return txErr
		})
		if err != nil {
			return err
		}
		for _, e := range cascaded {
			s.archive(ctx, FamilyDialEntry, e.ID, e)
			s.publish(ctx, FamilyDialEntry, events.KindDeleted, e.ID, e)
		}
		s.archive(ctx, FamilyDialListMaster, retired.ID, retired)
		s.publish(ctx, FamilyDialListMaster, events.KindDeleted, retired.ID, retired)
		return nil
	})
	if err != nil {
		return DialListMaster{}, res, err
	}
	return retired, res, nil
}

// GetDialListMaster reads a master under the given liveness filter.
func (s *Service) GetDialListMaster(id string, filter LivenessFilter) (DialListMaster, bool) {
	return s.store.GetDialListMaster(id, filter)
}

// ListDialListMasters lists all live masters.
func (s *Service) ListDialListMasters() []DialListMaster {
	return s.store.ListDialListMasters()
}

// ViewEntries resolves a view name to the live entries of its parent list.
func (s *Service) ViewEntries(name string) ([]DialEntry, bool) {
	return s.store.ViewEntries(name)
}

// CreateDialEntry persists a dial entry under a live master.
func (s *Service) CreateDialEntry(ctx context.Context, e DialEntry) (DialEntry, Result, error) {
	var created DialEntry
	var res Result
	err := s.run(ctx, "create_dial_entry", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateDialEntry(e)
			return txErr
		})
		if err != nil {
			return err
		}
		s.publish(ctx, FamilyDialEntry, events.KindCreated, created.ID, created)
		return nil
	})
	if err != nil {
		return DialEntry{}, res, err
	}
	return created, res, nil
}

// UpdateDialEntry applies the mutator to a live entry.
func (s *Service) UpdateDialEntry(ctx context.Context, id string, mutator func(*DialEntry) error) (DialEntry, Result, error) {
	var updated DialEntry
	var res Result
	err := s.run(ctx, "update_dial_entry", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateDialEntry(id, mutator)
			return txErr
		})
		if err != nil {
			return err
		}
		s.publish(ctx, FamilyDialEntry, events.KindUpdated, id, updated)
		return nil
	})
	if err != nil {
		return DialEntry{}, res, err
	}
	return updated, res, nil
}

// DeleteDialEntry retires a single dial entry and returns the retired record.
func (s *Service) DeleteDialEntry(ctx context.Context, id string) (DialEntry, Result, error) {
	var retired DialEntry
	var res Result
	err := s.run(ctx, "delete_dial_entry", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			retired, txErr = tx.RetireDialEntry(id)
			return txErr
		})
		if err != nil {
			return err
		}
		s.archive(ctx, FamilyDialEntry, retired.ID, retired)
		s.publish(ctx, FamilyDialEntry, events.KindDeleted, retired.ID, retired)
		return nil
	})
	if err != nil {
		return DialEntry{}, res, err
	}
	return retired, res, nil
}

// GetDialEntry reads an entry under the given liveness filter.
func (s *Service) GetDialEntry(id string, filter LivenessFilter) (DialEntry, bool) {
	return s.store.GetDialEntry(id, filter)
}
