package push

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates the client configuration is invalid.
	ErrInvalidConfig = errors.New("push: invalid configuration")

	// ErrMissingDeviceToken indicates registration was attempted before a device token was set.
	ErrMissingDeviceToken = errors.New("push: missing device token")

	// ErrNotPushMechanism indicates a non-push mechanism was used for a push operation.
	ErrNotPushMechanism = errors.New("push: mechanism is not a push mechanism")

	// ErrInvalidSecret indicates the shared secret or challenge could not be decoded.
	ErrInvalidSecret = errors.New("push: invalid secret or challenge")

	// ErrInvalidMessage indicates an inbound message is not a well formed JWT.
	ErrInvalidMessage = errors.New("push: invalid message")

	// ErrInvalidSignature indicates an inbound message was not signed with the mechanism secret.
	ErrInvalidSignature = errors.New("push: invalid signature")

	// ErrRegistrationFailed indicates the server rejected a registration.
	ErrRegistrationFailed = errors.New("push: registration failed")

	// ErrAuthenticationFailed indicates the server rejected an accept or deny response.
	ErrAuthenticationFailed = errors.New("push: authentication failed")

	// ErrNotificationInvalidStatus indicates the notification is no longer pending or has expired.
	ErrNotificationInvalidStatus = errors.New("push: notification is not pending")

	// ErrDuplicateMessage indicates the same message id was delivered twice.
	ErrDuplicateMessage = errors.New("push: duplicate message")
)

// StatusError carries the HTTP status of a rejected registration or authentication call.
type StatusError struct {
	// Kind is ErrRegistrationFailed or ErrAuthenticationFailed.
	Kind       error
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: status %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Body)
}

// Unwrap allows errors.Is(err, ErrRegistrationFailed) and errors.Is(err, ErrAuthenticationFailed).
func (e *StatusError) Unwrap() error {
	return e.Kind
}
