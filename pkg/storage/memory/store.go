// Package memory provides an in-process implementation of storage.Storage.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/storage"
)

type entry[T any] struct {
	value     T
	timeAdded time.Time
	seq       uint64
}

// table keeps records by identifier and remembers insertion order so that
// records sharing a timestamp list in the order they were first written.
type table[T any] struct {
	rows map[string]entry[T]
	seq  uint64
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]entry[T])}
}

func (t *table[T]) put(id string, v T, added time.Time) {
	e, ok := t.rows[id]
	if !ok {
		t.seq++
		e.seq = t.seq
	}
	e.value = v
	e.timeAdded = added
	t.rows[id] = e
}

func (t *table[T]) get(id string) (T, bool) {
	e, ok := t.rows[id]
	return e.value, ok
}

func (t *table[T]) remove(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	return true
}

func (t *table[T]) all() []T {
	entries := make([]entry[T], 0, len(t.rows))
	for _, e := range t.rows {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].timeAdded.Equal(entries[j].timeAdded) {
			return entries[i].timeAdded.Before(entries[j].timeAdded)
		}
		return entries[i].seq < entries[j].seq
	})

	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

// Store is a mutex-guarded in-memory storage.Storage. Records are copied on
// the way in and out, so callers never share state with the store.
// It is safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	accounts      *table[*model.Account]
	mechanisms    *table[*model.Mechanism]
	notifications *table[*model.Notification]
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:      newTable[*model.Account](),
		mechanisms:    newTable[*model.Mechanism](),
		notifications: newTable[*model.Notification](),
	}
}

// PutAccount stores a copy of the account, replacing any record with the same identifier.
func (s *Store) PutAccount(ctx context.Context, account *model.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := account.Clone()
	c.Mechanisms = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts.put(c.Identifier(), c, c.TimeAdded)
	return nil
}

// GetAccount returns a copy of the account or storage.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, identifier string) (*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts.get(identifier)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a.Clone(), nil
}

// GetAllAccounts returns copies of all accounts ordered by TimeAdded.
func (s *Store) GetAllAccounts(ctx context.Context) ([]*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.accounts.all()
	for i, a := range all {
		all[i] = a.Clone()
	}
	return all, nil
}

// RemoveAccount deletes the account or returns storage.ErrNotFound.
func (s *Store) RemoveAccount(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.accounts.remove(identifier) {
		return storage.ErrNotFound
	}
	return nil
}

// PutMechanism stores a copy of the mechanism without its notifications.
func (s *Store) PutMechanism(ctx context.Context, mechanism *model.Mechanism) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := mechanism.Clone()
	c.Notifications = nil

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mechanisms.put(c.UUID, c, c.TimeAdded)
	return nil
}

// GetMechanism returns a copy of the mechanism or storage.ErrNotFound.
func (s *Store) GetMechanism(ctx context.Context, uuid string) (*model.Mechanism, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mechanisms.get(uuid)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return m.Clone(), nil
}

// GetAllMechanisms returns copies of all mechanisms ordered by TimeAdded.
func (s *Store) GetAllMechanisms(ctx context.Context) ([]*model.Mechanism, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.mechanisms.all()
	for i, m := range all {
		all[i] = m.Clone()
	}
	return all, nil
}

// RemoveMechanism deletes the mechanism or returns storage.ErrNotFound.
func (s *Store) RemoveMechanism(ctx context.Context, uuid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mechanisms.remove(uuid) {
		return storage.ErrNotFound
	}
	return nil
}

// PutNotification stores a copy of the notification.
func (s *Store) PutNotification(ctx context.Context, notification *model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c := notification.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications.put(c.Identifier(), c, c.TimeAdded)
	return nil
}

// GetNotification returns a copy of the notification or storage.ErrNotFound.
func (s *Store) GetNotification(ctx context.Context, identifier string) (*model.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications.get(identifier)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return n.Clone(), nil
}

// GetAllNotifications returns copies of all notifications ordered by TimeAdded.
func (s *Store) GetAllNotifications(ctx context.Context) ([]*model.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.notifications.all()
	for i, n := range all {
		all[i] = n.Clone()
	}
	return all, nil
}

// RemoveNotification deletes the notification or returns storage.ErrNotFound.
func (s *Store) RemoveNotification(ctx context.Context, identifier string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.notifications.remove(identifier) {
		return storage.ErrNotFound
	}
	return nil
}
