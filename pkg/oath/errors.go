package oath

import "errors"

var (
	// ErrNilMechanism indicates a nil mechanism was passed.
	ErrNilMechanism = errors.New("oath: mechanism is nil")
	// ErrInvalidSecret indicates the shared secret is empty or not valid base32.
	ErrInvalidSecret = errors.New("oath: invalid secret")
	// ErrUnsupportedType indicates a mechanism that does not produce codes.
	ErrUnsupportedType = errors.New("oath: mechanism does not generate codes")
)
