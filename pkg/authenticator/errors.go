package authenticator

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
)

var (
	// ErrInvalidConfig indicates the manager configuration is invalid.
	ErrInvalidConfig = errors.New("authenticator: invalid configuration")

	// ErrInvalidURI indicates an enrollment URI with an unknown scheme or an unreadable structure.
	ErrInvalidURI = errors.New("authenticator: invalid uri")

	// ErrInvalidType indicates an enrollment URI whose host is not a known mechanism type.
	ErrInvalidType = errors.New("authenticator: invalid mechanism type")

	// ErrMissingInformation indicates a required enrollment URI parameter is absent.
	ErrMissingInformation = errors.New("authenticator: missing information")

	// ErrInvalidInformation indicates an enrollment URI parameter has an invalid value.
	ErrInvalidInformation = errors.New("authenticator: invalid information")

	// ErrAlreadyExists indicates the mechanism is already enrolled.
	ErrAlreadyExists = errors.New("authenticator: mechanism already exists")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("authenticator: not found")

	// ErrStorage indicates the storage backend rejected an operation.
	ErrStorage = errors.New("authenticator: storage failure")

	// ErrFailedToUpdate indicates a state change could not be persisted.
	ErrFailedToUpdate = errors.New("authenticator: failed to update")

	// ErrCounterExhausted indicates an HOTP counter cannot advance any further.
	ErrCounterExhausted = errors.New("authenticator: hotp counter exhausted")

	// ErrAccountLocked indicates an operation on a policy-locked account.
	ErrAccountLocked = errors.New("authenticator: account is locked")

	// ErrAccountAlreadyLocked indicates LockAccount on a locked account.
	ErrAccountAlreadyLocked = errors.New("authenticator: account already locked")

	// ErrAccountNotLocked indicates UnlockAccount on an unlocked account.
	ErrAccountNotLocked = errors.New("authenticator: account not locked")

	// ErrMissingPolicyName indicates LockAccount without a policy name.
	ErrMissingPolicyName = errors.New("authenticator: missing policy name")

	// ErrInvalidPolicy indicates a policy that is not registered or not attached to the account.
	ErrInvalidPolicy = errors.New("authenticator: invalid policy")

	// ErrPolicyViolation indicates enrollment was refused because the account failed a policy.
	ErrPolicyViolation = errors.New("authenticator: policy violation")

	// ErrChallengeResponseRequired indicates a numbers-challenge notification
	// answered without the number the user picked.
	ErrChallengeResponseRequired = errors.New("authenticator: challenge response required")
)

// MissingInformationError names the enrollment parameter that was absent.
type MissingInformationError struct {
	Param string
}

func (e *MissingInformationError) Error() string {
	return fmt.Sprintf("authenticator: missing information: %s", e.Param)
}

// Unwrap allows errors.Is(err, ErrMissingInformation).
func (e *MissingInformationError) Unwrap() error {
	return ErrMissingInformation
}

// InvalidInformationError names the enrollment parameter that failed validation.
type InvalidInformationError struct {
	Param string
	Value string
}

func (e *InvalidInformationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("authenticator: invalid information: %s", e.Param)
	}
	return fmt.Sprintf("authenticator: invalid information: %s (%s)", e.Param, e.Value)
}

// Unwrap allows errors.Is(err, ErrInvalidInformation).
func (e *InvalidInformationError) Unwrap() error {
	return ErrInvalidInformation
}

// AlreadyExistsError carries the identifier of the mechanism that is already enrolled.
type AlreadyExistsError struct {
	Identifier string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("authenticator: mechanism already exists: %s", e.Identifier)
}

// Unwrap allows errors.Is(err, ErrAlreadyExists).
func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// StorageError describes a failed storage call.
type StorageError struct {
	Op     string
	Record string
	ID     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("authenticator: %s %s %q: %v", e.Op, e.Record, e.ID, e.Err)
}

// Is matches ErrStorage, and ErrNotFound when the backend reported a missing record.
func (e *StorageError) Is(target error) bool {
	if target == ErrStorage {
		return true
	}
	return target == ErrNotFound && isNotFound(e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// UpdateError is returned when a state change could not be persisted. The
// in-memory record handed to the caller is left as it was.
type UpdateError struct {
	Record string
	ID     string
	Err    error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("authenticator: failed to update %s %q: %v", e.Record, e.ID, e.Err)
}

// Is matches ErrFailedToUpdate.
func (e *UpdateError) Is(target error) bool {
	return target == ErrFailedToUpdate
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// AccountLockedError is returned when the owning account is locked by a policy.
type AccountLockedError struct {
	Identifier string
	Policy     string
}

func (e *AccountLockedError) Error() string {
	if e.Policy == "" {
		return fmt.Sprintf("authenticator: account %q is locked", e.Identifier)
	}
	return fmt.Sprintf("authenticator: account %q is locked by policy %s", e.Identifier, e.Policy)
}

// Unwrap allows errors.Is(err, ErrAccountLocked).
func (e *AccountLockedError) Unwrap() error {
	return ErrAccountLocked
}

// PolicyViolationError names the policy an enrolling account failed.
type PolicyViolationError struct {
	Identifier string
	Lock       model.LockRecord
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("authenticator: account %q violates policy %s", e.Identifier, e.Lock.Name)
}

// Unwrap allows errors.Is(err, ErrPolicyViolation).
func (e *PolicyViolationError) Unwrap() error {
	return ErrPolicyViolation
}
