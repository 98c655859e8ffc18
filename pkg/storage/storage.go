// Package storage defines the persistence contract used by the authenticator.
//
// Implementations persist three record classes (accounts, mechanisms and
// notifications) keyed by their identifiers. They are not required to be
// transactional across calls; the authenticator serializes mutations and
// compensates failed multi-record operations itself. Every mutating call must
// report failure so the caller never assumes a write landed when it did not.
//
// Two implementations ship with the module: memory.Store for tests and
// embedded use, and redis.Store for a shared backend.
package storage

import (
	"context"
	"errors"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("storage: not found")

// Storage is the persistence contract for authenticator records.
//
// Get* calls return copies; relation fields (Account.Mechanisms,
// Mechanism.Notifications) are never populated by the store. GetAll* calls
// return records ordered by TimeAdded ascending. Remove* on a missing
// identifier returns ErrNotFound.
type Storage interface {
	PutAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, identifier string) (*model.Account, error)
	GetAllAccounts(ctx context.Context) ([]*model.Account, error)
	RemoveAccount(ctx context.Context, identifier string) error

	PutMechanism(ctx context.Context, mechanism *model.Mechanism) error
	GetMechanism(ctx context.Context, uuid string) (*model.Mechanism, error)
	GetAllMechanisms(ctx context.Context) ([]*model.Mechanism, error)
	RemoveMechanism(ctx context.Context, uuid string) error

	PutNotification(ctx context.Context, notification *model.Notification) error
	GetNotification(ctx context.Context, identifier string) (*model.Notification, error)
	GetAllNotifications(ctx context.Context) ([]*model.Notification, error)
	RemoveNotification(ctx context.Context, identifier string) error
}
