package authenticator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/model"
)

// CreateMechanismFromURI enrolls the mechanisms described by an enrollment URI.
//
// otpauth:// creates one HOTP or TOTP mechanism, pushauth:// one push
// mechanism, and mfauth:// a push mechanism plus an OATH mechanism under the
// same account. Push mechanisms are registered with the server before
// anything is stored. The account is created, or its display fields merged
// when it already exists, together with the mechanisms: either every record
// is written or none is. A new account that fails its policies is stored
// locked, or refused with *PolicyViolationError when RejectNonCompliant is set.
//
// For mfauth:// the OATH mechanism is returned; both are stored.
func (m *Manager) CreateMechanismFromURI(ctx context.Context, uri string) (*model.Mechanism, error) {
	e, err := parseEnrollmentURI(uri, m.clock())
	if err != nil {
		m.logger.Warn("enrollment uri rejected", zap.Error(err))
		return nil, err
	}
	logger := m.logger.With(logging.Account(e.account.Identifier()))

	if err := m.reserve(ctx, e); err != nil {
		logger.Warn("enrollment refused", zap.Error(err))
		return nil, err
	}
	defer m.release(e)

	if pm := e.push(); pm != nil {
		if err := m.push.Register(ctx, pm, m.DeviceToken()); err != nil {
			logger.Error("push registration failed", logging.Mechanism(pm.UUID), zap.Error(err))
			return nil, err
		}
		logger.Debug("push mechanism registered", logging.Mechanism(pm.UUID))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.persistEnrollment(ctx, e); err != nil {
		logger.Error("enrollment not stored", zap.Error(err))
		return nil, err
	}

	for _, mech := range e.mechanisms {
		logger.Info("mechanism enrolled", logging.Mechanism(mech.UUID), zap.String("type", string(mech.Type)))
	}
	return e.primary().Clone(), nil
}

// CreateMechanismFromURIAsync runs CreateMechanismFromURI on its own goroutine.
func (m *Manager) CreateMechanismFromURIAsync(ctx context.Context, uri string) <-chan Result[*model.Mechanism] {
	return async(func() (*model.Mechanism, error) {
		return m.CreateMechanismFromURI(ctx, uri)
	})
}

// reserve claims the enrollment's mechanism identifiers so that a concurrent
// enrollment of the same identifiers fails while registration is in flight.
func (m *Manager) reserve(ctx context.Context, e *enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.storage.GetAllMechanisms(ctx)
	if err != nil {
		return storageErr("list", "mechanisms", "", err)
	}
	taken := make(map[string]bool, len(stored))
	for _, mech := range stored {
		taken[mech.Identifier()] = true
	}
	for _, mech := range e.mechanisms {
		id := mech.Identifier()
		if taken[id] || m.reserved[id] {
			return &AlreadyExistsError{Identifier: id}
		}
	}

	if m.reject {
		if err := m.checkCompliance(ctx, e.account); err != nil {
			return err
		}
	}

	for _, mech := range e.mechanisms {
		m.reserved[mech.Identifier()] = true
	}
	return nil
}

func (m *Manager) release(e *enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mech := range e.mechanisms {
		delete(m.reserved, mech.Identifier())
	}
}

// checkCompliance refuses a new non-compliant account. Existing accounts are
// left to the lock state they already carry.
func (m *Manager) checkCompliance(ctx context.Context, account *model.Account) error {
	_, err := m.storage.GetAccount(ctx, account.Identifier())
	switch {
	case err == nil:
		return nil
	case !isNotFound(err):
		return storageErr("get", "account", account.Identifier(), err)
	}
	if lock := m.lockDecision(account); lock != nil {
		return &PolicyViolationError{Identifier: account.Identifier(), Lock: *lock}
	}
	return nil
}

// persistEnrollment writes the mechanisms and then the account, so a failed
// account write only has mechanisms to undo. Must be called with the write
// lock held. Records are stamped here, so listing order follows write order
// across concurrent enrollments.
func (m *Manager) persistEnrollment(ctx context.Context, e *enrollment) error {
	id := e.account.Identifier()

	now := m.clock()
	e.account.TimeAdded = now
	for _, mech := range e.mechanisms {
		mech.TimeAdded = now
	}

	account := e.account
	writeAccount := true
	existing, err := m.storage.GetAccount(ctx, id)
	switch {
	case err == nil:
		writeAccount = existing.MergeDisplay(e.account)
		account = existing
	case isNotFound(err):
		if lock := m.lockDecision(account); lock != nil {
			if m.reject {
				return &PolicyViolationError{Identifier: id, Lock: *lock}
			}
			account.Lock = true
			account.LockingPolicy = lock
			m.logger.Warn("account locked on enrollment", logging.Account(id), logging.Policy(lock.Name))
		}
	default:
		return storageErr("get", "account", id, err)
	}

	var undo rollback
	stampInOrder(e.mechanisms)
	for _, mech := range e.mechanisms {
		if err := m.storage.PutMechanism(ctx, mech); err != nil {
			return m.abort(ctx, &undo, storageErr("put", "mechanism", mech.Identifier(), err))
		}
		uuid := mech.UUID
		undo.add(func(ctx context.Context) error {
			return m.storage.RemoveMechanism(ctx, uuid)
		})
	}

	if writeAccount {
		if err := m.storage.PutAccount(ctx, account); err != nil {
			return m.abort(ctx, &undo, storageErr("put", "account", id, err))
		}
	}
	return nil
}

// stampInOrder makes enrollment timestamps strictly increasing so mechanisms
// created together keep their order in every store.
func stampInOrder(mechanisms []*model.Mechanism) {
	for i := 1; i < len(mechanisms); i++ {
		prev := mechanisms[i-1].TimeAdded
		if !mechanisms[i].TimeAdded.After(prev) {
			mechanisms[i].TimeAdded = prev.Add(time.Microsecond)
		}
	}
}
