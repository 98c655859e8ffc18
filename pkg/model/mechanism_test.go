package model

import (
	"errors"
	"testing"
	"time"
)

func TestMechanismIdentifiers(t *testing.T) {
	now := time.Now()

	m, err := NewTOTPMechanism("ForgeRock", "demo", "JBSWY3DPEHPK3PXP", TOTP{Algorithm: AlgorithmSHA1, Digits: 6, Period: 30}, now)
	if err != nil {
		t.Fatalf("NewTOTPMechanism() error = %v", err)
	}
	if got := m.Identifier(); got != "ForgeRock-demo-totp" {
		t.Errorf("Identifier() = %q", got)
	}
	if got := m.AccountIdentifier(); got != "ForgeRock-demo" {
		t.Errorf("AccountIdentifier() = %q", got)
	}
	if m.UUID == "" || m.Version != MechanismVersion {
		t.Errorf("UUID/Version not stamped: %+v", m)
	}

	h, err := NewHOTPMechanism("ForgeRock", "demo", "JBSWY3DPEHPK3PXP", HOTP{Algorithm: AlgorithmSHA256, Digits: 8}, now)
	if err != nil {
		t.Fatalf("NewHOTPMechanism() error = %v", err)
	}
	if h.UUID == m.UUID {
		t.Errorf("mechanisms share a uuid")
	}
	if h.Identifier() == m.Identifier() {
		t.Errorf("hotp and totp identifiers collide")
	}
}

// TestMechanismValidate tests the variant invariants
func TestMechanismValidate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		build   func() (*Mechanism, error)
		wantErr error
	}{
		{
			name: "bad digits",
			build: func() (*Mechanism, error) {
				return NewHOTPMechanism("i", "a", "s", HOTP{Algorithm: AlgorithmSHA1, Digits: 7}, now)
			},
			wantErr: ErrUnsupportedDigits,
		},
		{
			name: "bad algorithm",
			build: func() (*Mechanism, error) {
				return NewTOTPMechanism("i", "a", "s", TOTP{Algorithm: "rs512", Digits: 6, Period: 30}, now)
			},
			wantErr: ErrUnsupportedAlgorithm,
		},
		{
			name: "zero period",
			build: func() (*Mechanism, error) {
				return NewTOTPMechanism("i", "a", "s", TOTP{Algorithm: AlgorithmSHA1, Digits: 6}, now)
			},
			wantErr: ErrInvalidMechanism,
		},
		{
			name: "missing endpoints",
			build: func() (*Mechanism, error) {
				return NewPushMechanism("i", "a", "s", Push{RegistrationEndpoint: "https://r"}, now)
			},
			wantErr: ErrInvalidMechanism,
		},
		{
			name: "empty secret",
			build: func() (*Mechanism, error) {
				return NewHOTPMechanism("i", "a", "", HOTP{Algorithm: AlgorithmSHA1, Digits: 6}, now)
			},
			wantErr: ErrInvalidMechanism,
		},
		{
			name: "two variants",
			build: func() (*Mechanism, error) {
				m, err := NewHOTPMechanism("i", "a", "s", HOTP{Algorithm: AlgorithmSHA1, Digits: 6}, now)
				if err != nil {
					return nil, err
				}
				m.TOTP = &TOTP{Algorithm: AlgorithmSHA1, Digits: 6, Period: 30}
				return m, m.Validate()
			},
			wantErr: ErrInvalidMechanism,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", AlgorithmSHA1, false},
		{"SHA256", AlgorithmSHA256, false},
		{"sha-384", AlgorithmSHA384, false},
		{"Sha224", AlgorithmSHA224, false},
		{"MD5", AlgorithmMD5, false},
		{"rs512", "", true},
	}

	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAlgorithm(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMechanismClone(t *testing.T) {
	m, err := NewPushMechanism("i", "a", "s", Push{RegistrationEndpoint: "https://r", AuthenticationEndpoint: "https://a"}, time.Now())
	if err != nil {
		t.Fatalf("NewPushMechanism() error = %v", err)
	}
	m.Notifications = []*Notification{{MessageID: "1", Pending: true}}

	c := m.Clone()
	c.Push.MessageID = "changed"
	c.Notifications[0].Pending = false

	if m.Push.MessageID == "changed" || !m.Notifications[0].Pending {
		t.Errorf("Clone() shares state with the original")
	}
}

func TestPendingNotificationsAt(t *testing.T) {
	now := time.Now()
	m := &Mechanism{Notifications: []*Notification{
		{MessageID: "fresh", Pending: true, TimeAdded: now, TTL: time.Minute},
		{MessageID: "stale", Pending: true, TimeAdded: now.Add(-2 * time.Minute), TTL: time.Minute},
		{MessageID: "answered", Pending: false, TimeAdded: now, TTL: time.Minute},
	}}

	pending := m.PendingNotificationsAt(now)
	if len(pending) != 1 || pending[0].MessageID != "fresh" {
		t.Errorf("PendingNotificationsAt() = %v", pending)
	}
}
