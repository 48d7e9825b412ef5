package core

import (
	"context"
	"fmt"

	"pbxcore/internal/events"
	"pbxcore/pkg/domain"
)

// CreateUserInput bundles the record and its provisioning companions. The
// creation flow spans the external endpoint account, the user record, its
// permission grants and its contact binding.
type CreateUserInput struct {
	User          User
	Permissions   []string
	ContactTarget string
	ContactType   string
}

// CreateUser runs the user provisioning saga: endpoint account first, then
// user, permissions and contact records. Each persisted step registers a
// compensating retire; any failure unwinds everything created so far before
// the error is returned. Event payloads never contain the password.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	var created User
	err := s.run(ctx, "create_user", func(ctx context.Context) error {
		sg := &saga{}

		username := input.User.Username
		if err := s.provisioner.CreateAccount(ctx, username, input.User.Password); err != nil {
			return domain.CapabilityError{Op: "create_account", Err: err}
		}
		sg.push("remove_account", func(ctx context.Context) error {
			return s.provisioner.RemoveAccount(ctx, username)
		})

		if err := s.sagaStep(ctx, sg, "retire_user", func(tx domain.Transaction) (string, error) {
			var txErr error
			created, txErr = tx.CreateUser(input.User)
			return created.ID, txErr
		}, func(tx domain.Transaction, id string) error {
			_, txErr := tx.RetireUser(id)
			return txErr
		}); err != nil {
			sg.rollback(ctx, s.logger)
			return err
		}

		perms := input.Permissions
		if len(perms) == 0 {
			perms = []string{"user"}
		}
		for _, perm := range perms {
			p := Permission{UserID: created.ID, Permission: perm}
			if err := s.sagaStep(ctx, sg, "retire_permission", func(tx domain.Transaction) (string, error) {
				grant, txErr := tx.CreatePermission(p)
				return grant.ID, txErr
			}, func(tx domain.Transaction, id string) error {
				_, txErr := tx.RetirePermission(id)
				return txErr
			}); err != nil {
				sg.rollback(ctx, s.logger)
				return err
			}
		}

		target := input.ContactTarget
		if target == "" {
			target = username
		}
		if err := s.provisioner.RegisterContact(ctx, username, target); err != nil {
			sg.rollback(ctx, s.logger)
			return domain.CapabilityError{Op: "register_contact", Err: err}
		}
		sg.push("remove_endpoint_contact", func(ctx context.Context) error {
			return s.provisioner.RemoveContact(ctx, username, target)
		})

		contact := Contact{UserID: created.ID, Target: target, Type: input.ContactType}
		if err := s.sagaStep(ctx, sg, "retire_contact", func(tx domain.Transaction) (string, error) {
			c, txErr := tx.CreateContact(contact)
			return c.ID, txErr
		}, func(tx domain.Transaction, id string) error {
			_, txErr := tx.RetireContact(id)
			return txErr
		}); err != nil {
			sg.rollback(ctx, s.logger)
			return err
		}

		canonical, ok := s.store.GetUser(created.ID, FilterActive)
		if !ok {
			sg.rollback(ctx, s.logger)
			return domain.NotFoundError{Family: FamilyUser, ID: created.ID}
		}
		created = canonical
		s.publish(ctx, FamilyUser, events.KindCreated, created.ID, NewManagerUserView(created))
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return created, nil
}

// sagaStep runs one persisted forward step in its own transaction and, on
// success, registers a compensating transaction for it.
func (s *Service) sagaStep(ctx context.Context, sg *saga, undoName string,
	forward func(domain.Transaction) (string, error),
	undo func(domain.Transaction, string) error,
) error {
	var id string
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var txErr error
		id, txErr = forward(tx)
		return txErr
	})
	if err != nil {
		return err
	}
	sg.push(undoName, func(ctx context.Context) error {
		_, undoErr := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return undo(tx, id)
		})
		return undoErr
	})
	return nil
}

// UpdateUser applies the mutator to a live user. Username stays fixed.
func (s *Service) UpdateUser(ctx context.Context, id string, mutator func(*User) error) (User, Result, error) {
	var updated User
	var res Result
	err := s.run(ctx, "update_user", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateUser(id, mutator)
			return txErr
		})
		if err != nil {
			return err
		}
		s.publish(ctx, FamilyUser, events.KindUpdated, id, NewManagerUserView(updated))
		return nil
	})
	if err != nil {
		return User{}, res, err
	}
	return updated, res, nil
}

// DeleteUser retires a user and returns the retired record. Without force the
// retire is rejected while live grants or contacts remain; with force they
// retire first in the same transaction. Endpoint deprovisioning runs after
// commit and is nonfatal.
func (s *Service) DeleteUser(ctx context.Context, id string, force bool) (User, Result, error) {
	var retired User
	var grants []Permission
	var contacts []Contact
	var res Result
	err := s.run(ctx, "delete_user", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if force {
				var txErr error
				if grants, txErr = tx.RetirePermissionsByUser(id); txErr != nil {
					return txErr
				}
				if contacts, txErr = tx.RetireContactsByUser(id); txErr != nil {
					return txErr
				}
			}
			var txErr error
			retired, txErr = tx.RetireUser(id)
			return txErr
		})
		if err != nil {
			return err
		}
		for _, p := range grants {
			s.archive(ctx, FamilyPermission, p.ID, p)
			s.publish(ctx, FamilyPermission, events.KindDeleted, p.ID, p)
		}
		for _, c := range contacts {
			s.archive(ctx, FamilyContact, c.ID, c)
			s.publish(ctx, FamilyContact, events.KindDeleted, c.ID, c)
		}
		s.archive(ctx, FamilyUser, retired.ID, NewManagerUserView(retired))
		s.publish(ctx, FamilyUser, events.KindDeleted, retired.ID, NewManagerUserView(retired))

		if err := s.provisioner.RemoveAccount(ctx, retired.Username); err != nil {
			s.logger.Warn().Err(err).Str("username", retired.Username).Msg("endpoint account removal failed")
		}
		return nil
	})
	if err != nil {
		return User{}, res, err
	}
	return retired, res, nil
}

// GetUser reads a user under the given liveness filter.
func (s *Service) GetUser(id string, filter LivenessFilter) (User, bool) {
	return s.store.GetUser(id, filter)
}

// GetManagerUserView reads a user and reduces it to its outward shape, with
// the names of its live permission grants embedded.
func (s *Service) GetManagerUserView(ctx context.Context, id string, filter LivenessFilter) (ManagerUserView, bool) {
	u, ok := s.store.GetUser(id, filter)
	if !ok {
		return ManagerUserView{}, false
	}
	view := NewManagerUserView(u)
	_ = s.store.View(ctx, func(tv domain.TransactionView) error {
		for _, p := range tv.ListPermissionsByUser(id) {
			view.Permissions = append(view.Permissions, p.Permission)
		}
		return nil
	})
	return view, true
}

// ListUsers lists all live users.
func (s *Service) ListUsers() []User {
	return s.store.ListUsers()
}

// GrantPermission adds a permission to a live user.
func (s *Service) GrantPermission(ctx context.Context, userID, permission string) (Permission, Result, error) {
	var created Permission
	var res Result
	err := s.run(ctx, "grant_permission", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreatePermission(Permission{UserID: userID, Permission: permission})
			return txErr
		})
		if err != nil {
			return err
		}
		s.publish(ctx, FamilyPermission, events.KindCreated, created.ID, created)
		return nil
	})
	if err != nil {
		return Permission{}, res, err
	}
	return created, res, nil
}

// RevokePermission retires a permission grant and returns the retired record.
func (s *Service) RevokePermission(ctx context.Context, id string) (Permission, Result, error) {
	var retired Permission
	var res Result
	err := s.run(ctx, "revoke_permission", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			retired, txErr = tx.RetirePermission(id)
			return txErr
		})
		if err != nil {
			return err
		}
		s.archive(ctx, FamilyPermission, retired.ID, retired)
		s.publish(ctx, FamilyPermission, events.KindDeleted, retired.ID, retired)
		return nil
	})
	if err != nil {
		return Permission{}, res, err
	}
	return retired, res, nil
}

// AddContact binds an additional contact to a live user and registers it with
// the endpoint engine.
func (s *Service) AddContact(ctx context.Context, c Contact) (Contact, Result, error) {
	var created Contact
	var res Result
	err := s.run(ctx, "add_contact", func(ctx context.Context) error {
		owner, ok := s.store.GetUser(c.UserID, FilterActive)
		if !ok {
			return domain.NotFoundError{Family: FamilyUser, ID: c.UserID}
		}
		if err := s.provisioner.RegisterContact(ctx, owner.Username, c.Target); err != nil {
			return domain.CapabilityError{Op: "register_contact", Err: err}
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			created, txErr = tx.CreateContact(c)
			return txErr
		})
		if err != nil {
			if undoErr := s.provisioner.RemoveContact(ctx, owner.Username, c.Target); undoErr != nil {
				s.logger.Error().Err(undoErr).Str("target", c.Target).Msg("contact deprovisioning failed after aborted create")
			}
			return err
		}
		s.publish(ctx, FamilyContact, events.KindCreated, created.ID, created)
		return nil
	})
	if err != nil {
		return Contact{}, res, err
	}
	return created, res, nil
}

// UpdateContact applies the mutator to a live contact.
func (s *Service) UpdateContact(ctx context.Context, id string, mutator func(*Contact) error) (Contact, Result, error) {
	var updated Contact
	var res Result
	err := s.run(ctx, "update_contact", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			updated, txErr = tx.UpdateContact(id, mutator)
			return txErr
		})
		if err != nil {
			return err
		}
		s.publish(ctx, FamilyContact, events.KindUpdated, id, updated)
		return nil
	})
	if err != nil {
		return Contact{}, res, err
	}
	return updated, res, nil
}

// RemoveContact retires a contact, returning the retired record, and
// deregisters it from the endpoint engine. Deprovisioning failures after
// commit are nonfatal.
func (s *Service) RemoveContact(ctx context.Context, id string) (Contact, Result, error) {
	var retired Contact
	var res Result
	err := s.run(ctx, "remove_contact", func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var txErr error
			retired, txErr = tx.RetireContact(id)
			return txErr
		})
		if err != nil {
			return err
		}
		s.archive(ctx, FamilyContact, retired.ID, retired)
		s.publish(ctx, FamilyContact, events.KindDeleted, retired.ID, retired)

		if owner, ok := s.store.GetUser(retired.UserID, FilterAny); ok {
			if err := s.provisioner.RemoveContact(ctx, owner.Username, retired.Target); err != nil {
				s.logger.Warn().Err(err).Str("target", retired.Target).Msg("endpoint contact removal failed")
			}
		}
		return nil
	})
	if err != nil {
		return Contact{}, res, err
	}
	return retired, res, nil
}

// Authenticate checks a username and password against live users. It exists
// for the manager surface; the stored password never leaves this method.
func (s *Service) Authenticate(ctx context.Context, username, password string) (ManagerUserView, error) {
	var found User
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		u, ok := view.FindUserByUsername(username)
		if !ok {
			return domain.NotFoundError{Family: FamilyUser, ID: username}
		}
		found = u
		return nil
	})
	if err != nil {
		return ManagerUserView{}, err
	}
	if found.Password != password {
		return ManagerUserView{}, fmt.Errorf("invalid credentials: %w", domain.ErrValidation)
	}
	return NewManagerUserView(found), nil
}
