package authenticator

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/oath"
)

// GetMechanism returns the mechanism with the given uuid, with its
// notifications populated for push mechanisms.
func (m *Manager) GetMechanism(ctx context.Context, uuid string) (*model.Mechanism, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadMechanism(ctx, uuid)
}

// GetMechanismForNotification returns the push mechanism a notification belongs to.
func (m *Manager) GetMechanismForNotification(ctx context.Context, n *model.Notification) (*model.Mechanism, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: notification is nil", ErrNotFound)
	}
	return m.GetMechanism(ctx, n.MechanismUUID)
}

// RemoveMechanism deletes a mechanism and its notifications. The owning
// account is kept. When any delete fails the records already deleted are restored.
func (m *Manager) RemoveMechanism(ctx context.Context, mechanism *model.Mechanism) error {
	if mechanism == nil {
		return fmt.Errorf("%w: mechanism is nil", model.ErrInvalidMechanism)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.loadMechanism(ctx, mechanism.UUID)
	if err != nil {
		return err
	}

	var undo rollback
	if err := m.removeMechanismRecords(ctx, &undo, stored); err != nil {
		return m.abort(ctx, &undo, err)
	}

	m.logger.Info("mechanism removed",
		logging.Account(stored.AccountIdentifier()),
		logging.Mechanism(stored.UUID),
		zap.Int("notifications", len(stored.Notifications)))
	return nil
}

// GenerateCode derives the current code for an OATH mechanism.
//
// TOTP codes come from the clock and change nothing. HOTP codes are derived
// from the stored counter, and counter+1 is persisted before the code is
// returned. When that write fails the call returns *UpdateError and the
// counter stays where it was, so a retry yields the same code. On success the
// caller's mechanism carries the advanced counter.
func (m *Manager) GenerateCode(ctx context.Context, mechanism *model.Mechanism) (model.Code, error) {
	if mechanism == nil {
		return model.Code{}, oath.ErrNilMechanism
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.storage.GetMechanism(ctx, mechanism.UUID)
	if err != nil {
		return model.Code{}, storageErr("get", "mechanism", mechanism.UUID, err)
	}
	if err := m.checkUnlocked(ctx, stored.AccountIdentifier()); err != nil {
		return model.Code{}, err
	}

	if stored.Type == model.TypeHOTP && stored.HOTP != nil && stored.HOTP.Counter == math.MaxUint64 {
		m.logger.Error("counter not persisted", logging.Mechanism(stored.UUID), zap.Error(ErrCounterExhausted))
		return model.Code{}, &UpdateError{Record: "mechanism", ID: stored.UUID, Err: ErrCounterExhausted}
	}

	code, err := oath.Generate(stored, m.clock())
	if err != nil {
		return model.Code{}, err
	}

	if stored.Type == model.TypeHOTP {
		next := stored.Clone()
		next.HOTP.Counter++
		if err := m.storage.PutMechanism(ctx, next); err != nil {
			m.logger.Error("counter not persisted", logging.Mechanism(stored.UUID), zap.Error(err))
			return model.Code{}, &UpdateError{Record: "mechanism", ID: stored.UUID, Err: err}
		}
		if mechanism.HOTP != nil {
			mechanism.HOTP.Counter = next.HOTP.Counter
		}
	}

	m.logger.Debug("code generated", logging.Mechanism(stored.UUID), zap.String("type", string(stored.Type)))
	return code, nil
}

// checkUnlocked returns *AccountLockedError when the account is locked.
// A mechanism whose account record is missing is treated as unlocked.
func (m *Manager) checkUnlocked(ctx context.Context, accountID string) error {
	account, err := m.storage.GetAccount(ctx, accountID)
	switch {
	case err == nil:
	case isNotFound(err):
		return nil
	default:
		return storageErr("get", "account", accountID, err)
	}

	if account.Lock {
		lockErr := &AccountLockedError{Identifier: accountID}
		if account.LockingPolicy != nil {
			lockErr.Policy = account.LockingPolicy.Name
		}
		return lockErr
	}
	return nil
}

// loadMechanism reads a mechanism with its notifications. Must be called with the lock held.
func (m *Manager) loadMechanism(ctx context.Context, uuid string) (*model.Mechanism, error) {
	mechanism, err := m.storage.GetMechanism(ctx, uuid)
	if err != nil {
		return nil, storageErr("get", "mechanism", uuid, err)
	}
	if mechanism.Type != model.TypePush {
		return mechanism, nil
	}

	notifications, err := m.storage.GetAllNotifications(ctx)
	if err != nil {
		return nil, storageErr("list", "notifications", "", err)
	}
	attach(nil, []*model.Mechanism{mechanism}, notifications)
	return mechanism, nil
}

// removeMechanismRecords deletes the mechanism's notifications and then the
// mechanism, recording a restore step for each delete. mechanism must have
// its notifications loaded.
func (m *Manager) removeMechanismRecords(ctx context.Context, undo *rollback, mechanism *model.Mechanism) error {
	for _, n := range mechanism.Notifications {
		if err := m.storage.RemoveNotification(ctx, n.Identifier()); err != nil {
			return storageErr("remove", "notification", n.Identifier(), err)
		}
		restored := n.Clone()
		undo.add(func(ctx context.Context) error {
			return m.storage.PutNotification(ctx, restored)
		})
	}

	if err := m.storage.RemoveMechanism(ctx, mechanism.UUID); err != nil {
		return storageErr("remove", "mechanism", mechanism.UUID, err)
	}
	restored := mechanism.Clone()
	restored.Notifications = nil
	undo.add(func(ctx context.Context) error {
		return m.storage.PutMechanism(ctx, restored)
	})
	return nil
}
