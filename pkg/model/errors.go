package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAccount indicates an account is missing its issuer or account name.
	ErrInvalidAccount = errors.New("model: invalid account")

	// ErrInvalidMechanism indicates a mechanism violates its variant invariants.
	ErrInvalidMechanism = errors.New("model: invalid mechanism")

	// ErrInvalidPayload indicates an inbound push payload could not be turned into a notification.
	ErrInvalidPayload = errors.New("model: invalid notification payload")

	// ErrUnsupportedAlgorithm indicates an OATH hash algorithm outside the supported set.
	ErrUnsupportedAlgorithm = errors.New("model: unsupported algorithm")

	// ErrUnsupportedDigits indicates an OATH digit count outside the supported set.
	ErrUnsupportedDigits = errors.New("model: unsupported digits")

	// ErrInvalidArchive indicates an archive blob is truncated or carries an unknown version.
	ErrInvalidArchive = errors.New("model: invalid archive")
)

// InvalidPayloadError names the notification payload field that failed validation.
type InvalidPayloadError struct {
	Field string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("model: invalid notification payload: missing or invalid %s", e.Field)
}

// Unwrap allows errors.Is(err, ErrInvalidPayload).
func (e *InvalidPayloadError) Unwrap() error {
	return ErrInvalidPayload
}
