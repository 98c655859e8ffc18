package authenticator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/policy"
	"github.com/jeremyhahn/go-authenticator/pkg/push"
	"github.com/jeremyhahn/go-authenticator/pkg/storage"
)

// Manager owns every mutation of a storage namespace. Mutations hold the
// write lock across their check and their writes; reads hold the read lock so
// they never observe a half-applied cascade. Network round trips run without
// the lock, guarded by per-record reservations.
type Manager struct {
	storage  storage.Storage
	policies *policy.Evaluator
	push     *push.Client
	replay   *push.ReplayGuard
	logger   *zap.Logger
	clock    func() time.Time
	reject   bool

	mu         sync.RWMutex
	reserved   map[string]bool
	responding map[string]bool

	tokenMu     sync.RWMutex
	deviceToken string
}

// NewManager creates a Manager. The configuration is validated and defaults applied.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Manager{
		storage:     cfg.Storage,
		policies:    cfg.Policies,
		push:        cfg.Push,
		replay:      cfg.ReplayGuard,
		logger:      logging.WithComponent(cfg.Logger, "authenticator"),
		clock:       cfg.Clock,
		reject:      cfg.RejectNonCompliant,
		reserved:    make(map[string]bool),
		responding:  make(map[string]bool),
		deviceToken: strings.TrimSpace(cfg.DeviceToken),
	}, nil
}

// SetDeviceToken sets the platform push token sent when push mechanisms register.
func (m *Manager) SetDeviceToken(token string) {
	m.tokenMu.Lock()
	defer m.tokenMu.Unlock()
	m.deviceToken = strings.TrimSpace(token)
}

// DeviceToken returns the current platform push token.
func (m *Manager) DeviceToken() string {
	m.tokenMu.RLock()
	defer m.tokenMu.RUnlock()
	return m.deviceToken
}

// Result is the single value delivered by an asynchronous operation.
type Result[T any] struct {
	Value T
	Err   error
}

// async runs fn on its own goroutine. The returned channel yields exactly one
// Result and is then closed.
func async[T any](fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, err := fn()
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// rollback collects compensating writes for a multi-record operation.
type rollback struct {
	steps []func(context.Context) error
}

func (r *rollback) add(step func(context.Context) error) {
	r.steps = append(r.steps, step)
}

// run applies the steps newest first and keeps going past failures.
func (r *rollback) run(ctx context.Context) error {
	var errs []error
	for i := len(r.steps) - 1; i >= 0; i-- {
		if err := r.steps[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// abort undoes the writes recorded so far and returns cause, joined with any
// rollback failure. Rollback runs even when ctx has been cancelled.
func (m *Manager) abort(ctx context.Context, undo *rollback, cause error) error {
	if err := undo.run(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("rollback failed", zap.Error(err), zap.NamedError("cause", cause))
		return errors.Join(cause, err)
	}
	return cause
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

func storageErr(op, record, id string, err error) error {
	return &StorageError{Op: op, Record: record, ID: id, Err: err}
}

// attach fills the relation fields: notifications onto their mechanism in
// arrival order, mechanisms onto their account in enrollment order.
func attach(accounts []*model.Account, mechanisms []*model.Mechanism, notifications []*model.Notification) {
	byUUID := make(map[string]*model.Mechanism, len(mechanisms))
	for _, mech := range mechanisms {
		mech.Notifications = nil
		byUUID[mech.UUID] = mech
	}
	for _, n := range notifications {
		if mech, ok := byUUID[n.MechanismUUID]; ok {
			mech.Notifications = append(mech.Notifications, n)
		}
	}

	byAccount := make(map[string][]*model.Mechanism)
	for _, mech := range mechanisms {
		id := mech.AccountIdentifier()
		byAccount[id] = append(byAccount[id], mech)
	}
	for _, a := range accounts {
		a.Mechanisms = byAccount[a.Identifier()]
	}
}

// lockDecision evaluates the account's policies and returns the lock record
// of the first failing policy, or nil when the account is compliant.
func (m *Manager) lockDecision(account *model.Account) *model.LockRecord {
	if len(account.Policies) == 0 {
		return nil
	}
	eval := m.policies.Evaluate(account)
	if eval.Compliant {
		return nil
	}
	for _, name := range eval.Unrecognized {
		m.logger.Warn("account names an unregistered policy",
			logging.Account(account.Identifier()), logging.Policy(name))
	}
	return &model.LockRecord{Name: eval.NonCompliant.Name, Data: eval.NonCompliant.Result.Data}
}
