package authenticator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/policy"
)

// StoreAccount creates or replaces an account record. An unlocked account
// that fails its policies is locked before it is written. The caller's
// account reflects the stored lock state only when the write succeeds.
func (m *Manager) StoreAccount(ctx context.Context, account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account is nil", model.ErrInvalidAccount)
	}
	if _, err := model.NewAccount(account.Issuer, account.AccountName); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record := account.Clone()
	record.Mechanisms = nil
	if !record.Lock {
		if lock := m.lockDecision(record); lock != nil {
			record.Lock = true
			record.LockingPolicy = lock
			m.logger.Warn("account locked on store", logging.Account(record.Identifier()), logging.Policy(lock.Name))
		}
	}

	if err := m.storage.PutAccount(ctx, record); err != nil {
		return storageErr("put", "account", record.Identifier(), err)
	}

	account.Lock = record.Lock
	account.LockingPolicy = record.LockingPolicy
	return nil
}

// GetAccount returns the account with its mechanisms and their notifications
// populated in order. An unlocked account that now fails its policies is
// locked and the lock persisted before it is returned.
func (m *Manager) GetAccount(ctx context.Context, identifier string) (*model.Account, error) {
	m.mu.RLock()
	account, err := m.loadAccount(ctx, identifier)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if err := m.enforcePolicies(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// GetAllAccounts returns every account in enrollment order with relations
// populated, applying the same policy enforcement as GetAccount.
func (m *Manager) GetAllAccounts(ctx context.Context) ([]*model.Account, error) {
	m.mu.RLock()
	accounts, err := m.loadAccounts(ctx)
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	for _, account := range accounts {
		if err := m.enforcePolicies(ctx, account); err != nil {
			return nil, err
		}
	}
	return accounts, nil
}

// RemoveAccount deletes the account, its mechanisms and their notifications.
// Notifications go first, then mechanisms, then the account. When any delete
// fails the records already deleted are restored.
func (m *Manager) RemoveAccount(ctx context.Context, account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account is nil", model.ErrInvalidAccount)
	}
	id := account.Identifier()

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.loadAccount(ctx, id)
	if err != nil {
		return err
	}

	var undo rollback
	for _, mech := range stored.Mechanisms {
		if err := m.removeMechanismRecords(ctx, &undo, mech); err != nil {
			return m.abort(ctx, &undo, err)
		}
	}

	if err := m.storage.RemoveAccount(ctx, id); err != nil {
		return m.abort(ctx, &undo, storageErr("remove", "account", id, err))
	}

	m.logger.Info("account removed", logging.Account(id), zap.Int("mechanisms", len(stored.Mechanisms)))
	return nil
}

// LockAccount locks the account on behalf of policyName, which must be
// registered and named in the account's policy configuration.
func (m *Manager) LockAccount(ctx context.Context, account *model.Account, policyName string) error {
	if account == nil {
		return fmt.Errorf("%w: account is nil", model.ErrInvalidAccount)
	}
	if policyName == "" {
		return ErrMissingPolicyName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.getAccountRecord(ctx, account.Identifier())
	if err != nil {
		return err
	}
	if stored.Lock {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyLocked, stored.Identifier())
	}
	if !m.policies.Recognizes(stored, policyName) {
		return fmt.Errorf("%w: %s", ErrInvalidPolicy, policyName)
	}

	stored.Lock = true
	stored.LockingPolicy = &model.LockRecord{Name: policyName}
	if err := m.storage.PutAccount(ctx, stored); err != nil {
		return &UpdateError{Record: "account", ID: stored.Identifier(), Err: err}
	}

	account.Lock = true
	account.LockingPolicy = &model.LockRecord{Name: policyName}
	m.logger.Info("account locked", logging.Account(stored.Identifier()), logging.Policy(policyName))
	return nil
}

// UnlockAccount clears the lock. An account that still fails its policies is
// locked again the next time it is retrieved.
func (m *Manager) UnlockAccount(ctx context.Context, account *model.Account) error {
	if account == nil {
		return fmt.Errorf("%w: account is nil", model.ErrInvalidAccount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.getAccountRecord(ctx, account.Identifier())
	if err != nil {
		return err
	}
	if !stored.Lock {
		return fmt.Errorf("%w: %s", ErrAccountNotLocked, stored.Identifier())
	}

	stored.Lock = false
	stored.LockingPolicy = nil
	if err := m.storage.PutAccount(ctx, stored); err != nil {
		return &UpdateError{Record: "account", ID: stored.Identifier(), Err: err}
	}

	account.Lock = false
	account.LockingPolicy = nil
	m.logger.Info("account unlocked", logging.Account(stored.Identifier()))
	return nil
}

// EvaluatePolicies runs the policy evaluator against the account without
// changing it.
func (m *Manager) EvaluatePolicies(account *model.Account) policy.Evaluation {
	return m.policies.Evaluate(account)
}

// enforcePolicies locks a retrieved account that fails its policies. The
// write lock is taken only when a lock has to be persisted, and the decision
// is repeated against the stored record under it.
func (m *Manager) enforcePolicies(ctx context.Context, account *model.Account) error {
	if account.Lock || m.lockDecision(account) == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.getAccountRecord(ctx, account.Identifier())
	if err != nil {
		return err
	}
	if !stored.Lock {
		lock := m.lockDecision(stored)
		if lock == nil {
			return nil
		}
		stored.Lock = true
		stored.LockingPolicy = lock
		if err := m.storage.PutAccount(ctx, stored); err != nil {
			return &UpdateError{Record: "account", ID: stored.Identifier(), Err: err}
		}
		m.logger.Warn("account locked on retrieval", logging.Account(stored.Identifier()), logging.Policy(lock.Name))
	}

	account.Lock = stored.Lock
	account.LockingPolicy = stored.LockingPolicy
	return nil
}

// getAccountRecord reads the bare account record.
func (m *Manager) getAccountRecord(ctx context.Context, identifier string) (*model.Account, error) {
	account, err := m.storage.GetAccount(ctx, identifier)
	if err != nil {
		return nil, storageErr("get", "account", identifier, err)
	}
	return account, nil
}

// loadAccount reads an account with its relations. Must be called with the lock held.
func (m *Manager) loadAccount(ctx context.Context, identifier string) (*model.Account, error) {
	account, err := m.getAccountRecord(ctx, identifier)
	if err != nil {
		return nil, err
	}

	mechanisms, notifications, err := m.loadMechanisms(ctx)
	if err != nil {
		return nil, err
	}
	attach([]*model.Account{account}, mechanisms, notifications)
	return account, nil
}

// loadAccounts reads every account with its relations. Must be called with the lock held.
func (m *Manager) loadAccounts(ctx context.Context) ([]*model.Account, error) {
	accounts, err := m.storage.GetAllAccounts(ctx)
	if err != nil {
		return nil, storageErr("list", "accounts", "", err)
	}

	mechanisms, notifications, err := m.loadMechanisms(ctx)
	if err != nil {
		return nil, err
	}
	attach(accounts, mechanisms, notifications)
	return accounts, nil
}

// loadMechanisms reads every mechanism and every notification.
func (m *Manager) loadMechanisms(ctx context.Context) ([]*model.Mechanism, []*model.Notification, error) {
	mechanisms, err := m.storage.GetAllMechanisms(ctx)
	if err != nil {
		return nil, nil, storageErr("list", "mechanisms", "", err)
	}
	notifications, err := m.storage.GetAllNotifications(ctx)
	if err != nil {
		return nil, nil, storageErr("list", "notifications", "", err)
	}
	return mechanisms, notifications, nil
}
