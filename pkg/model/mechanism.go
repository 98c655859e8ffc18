package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MechanismType tags the variant carried by a Mechanism.
type MechanismType string

const (
	// TypeHOTP is a counter-based OATH mechanism (RFC 4226).
	TypeHOTP MechanismType = "hotp"
	// TypeTOTP is a time-based OATH mechanism (RFC 6238).
	TypeTOTP MechanismType = "totp"
	// TypePush is a push-approval mechanism.
	TypePush MechanismType = "push"
)

// MechanismVersion is the schema version stamped on new mechanisms.
const MechanismVersion = 1

// HOTP holds the counter-based variant parameters.
type HOTP struct {
	Algorithm Algorithm `json:"algorithm"`
	Digits    int       `json:"digits"`
	Counter   uint64    `json:"counter"`
}

// TOTP holds the time-based variant parameters.
type TOTP struct {
	Algorithm Algorithm `json:"algorithm"`
	Digits    int       `json:"digits"`
	Period    int       `json:"period"`
}

// Push holds the push-approval variant parameters.
type Push struct {
	RegistrationEndpoint   string `json:"registrationEndpoint"`
	AuthenticationEndpoint string `json:"authenticationEndpoint"`
	MessageID              string `json:"messageId"`
	Challenge              string `json:"challenge"`
	LoadBalancer           string `json:"loadBalancer,omitempty"`
}

// Mechanism is an enrolled authentication method. The shared fields are common
// to every kind; exactly one of HOTP, TOTP or Push is set and matches Type.
type Mechanism struct {
	UUID        string        `json:"mechanismUID"`
	Type        MechanismType `json:"type"`
	Issuer      string        `json:"issuer"`
	AccountName string        `json:"accountName"`
	Secret      string        `json:"secret"`
	TimeAdded   time.Time     `json:"timeAdded"`
	Version     int           `json:"version"`

	HOTP *HOTP `json:"hotp,omitempty"`
	TOTP *TOTP `json:"totp,omitempty"`
	Push *Push `json:"push,omitempty"`

	// Notifications is populated on retrieval for push mechanisms, in arrival order. It is never persisted.
	Notifications []*Notification `json:"-"`
}

// NewHOTPMechanism creates a counter-based mechanism.
func NewHOTPMechanism(issuer, accountName, secret string, params HOTP, now time.Time) (*Mechanism, error) {
	m, err := newMechanism(TypeHOTP, issuer, accountName, secret, now)
	if err != nil {
		return nil, err
	}
	m.HOTP = &params
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewTOTPMechanism creates a time-based mechanism.
func NewTOTPMechanism(issuer, accountName, secret string, params TOTP, now time.Time) (*Mechanism, error) {
	m, err := newMechanism(TypeTOTP, issuer, accountName, secret, now)
	if err != nil {
		return nil, err
	}
	m.TOTP = &params
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewPushMechanism creates a push-approval mechanism.
func NewPushMechanism(issuer, accountName, secret string, params Push, now time.Time) (*Mechanism, error) {
	m, err := newMechanism(TypePush, issuer, accountName, secret, now)
	if err != nil {
		return nil, err
	}
	m.Push = &params
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func newMechanism(t MechanismType, issuer, accountName, secret string, now time.Time) (*Mechanism, error) {
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("%w: issuer must not be empty", ErrInvalidMechanism)
	}
	if strings.TrimSpace(accountName) == "" {
		return nil, fmt.Errorf("%w: account name must not be empty", ErrInvalidMechanism)
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: secret must not be empty", ErrInvalidMechanism)
	}

	return &Mechanism{
		UUID:        uuid.NewString(),
		Type:        t,
		Issuer:      issuer,
		AccountName: accountName,
		Secret:      secret,
		TimeAdded:   now,
		Version:     MechanismVersion,
	}, nil
}

// MechanismIdentifier builds the mechanism identifier for an issuer/account name/type triple.
func MechanismIdentifier(issuer, accountName string, t MechanismType) string {
	return issuer + "-" + accountName + "-" + string(t)
}

// Identifier returns issuer + "-" + accountName + "-" + type.
func (m *Mechanism) Identifier() string {
	return MechanismIdentifier(m.Issuer, m.AccountName, m.Type)
}

// AccountIdentifier returns the identifier of the owning account.
func (m *Mechanism) AccountIdentifier() string {
	return AccountIdentifier(m.Issuer, m.AccountName)
}

// Validate checks the shared fields and that exactly the variant matching Type is present.
func (m *Mechanism) Validate() error {
	if m.UUID == "" {
		return fmt.Errorf("%w: uuid must not be empty", ErrInvalidMechanism)
	}

	set := 0
	for _, present := range []bool{m.HOTP != nil, m.TOTP != nil, m.Push != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one variant must be set, got %d", ErrInvalidMechanism, set)
	}

	switch m.Type {
	case TypeHOTP:
		if m.HOTP == nil {
			return fmt.Errorf("%w: hotp parameters missing", ErrInvalidMechanism)
		}
		return validateOATH(m.HOTP.Algorithm, m.HOTP.Digits)
	case TypeTOTP:
		if m.TOTP == nil {
			return fmt.Errorf("%w: totp parameters missing", ErrInvalidMechanism)
		}
		if m.TOTP.Period <= 0 {
			return fmt.Errorf("%w: period must be positive", ErrInvalidMechanism)
		}
		return validateOATH(m.TOTP.Algorithm, m.TOTP.Digits)
	case TypePush:
		if m.Push == nil {
			return fmt.Errorf("%w: push parameters missing", ErrInvalidMechanism)
		}
		if m.Push.RegistrationEndpoint == "" || m.Push.AuthenticationEndpoint == "" {
			return fmt.Errorf("%w: push endpoints must not be empty", ErrInvalidMechanism)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMechanism, m.Type)
	}
}

func validateOATH(alg Algorithm, digits int) error {
	if !alg.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidMechanism, ErrUnsupportedAlgorithm)
	}
	if err := ValidateDigits(digits); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMechanism, err)
	}
	return nil
}

// PendingNotificationsAt returns the loaded notifications still pending at now.
func (m *Mechanism) PendingNotificationsAt(now time.Time) []*Notification {
	var pending []*Notification
	for _, n := range m.Notifications {
		if n.IsPendingAt(now) {
			pending = append(pending, n)
		}
	}
	return pending
}

// Clone returns a deep copy of the mechanism, including loaded notifications.
func (m *Mechanism) Clone() *Mechanism {
	if m == nil {
		return nil
	}

	out := *m
	if m.HOTP != nil {
		h := *m.HOTP
		out.HOTP = &h
	}
	if m.TOTP != nil {
		t := *m.TOTP
		out.TOTP = &t
	}
	if m.Push != nil {
		p := *m.Push
		out.Push = &p
	}
	if m.Notifications != nil {
		out.Notifications = make([]*Notification, len(m.Notifications))
		for i, n := range m.Notifications {
			out.Notifications[i] = n.Clone()
		}
	}
	return &out
}
