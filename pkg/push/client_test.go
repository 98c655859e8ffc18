package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
)

const (
	testSecret    = "5GuioYhLlh-xER3n5I8vrx0uuYQo3yD86aJi6KuWDsg"
	testChallenge = "KP0XQfZ21N_jsXP_xfVQMmsmoUiWvdDPWecHdb5_INQ"
	testResponse  = "r03LIyMM0RL2RH0tG7JbEs3KfDxIoDXXJa0nWejZyW8="
)

// recorded captures what a test endpoint received.
type recorded struct {
	header http.Header
	body   requestBody
	claims jwt.MapClaims
}

func newEndpoint(t *testing.T, status int) (*httptest.Server, *recorded) {
	t.Helper()

	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.header = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&rec.body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		rec.claims = jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(rec.body.JWT, rec.claims); err != nil {
			t.Errorf("parse jwt: %v", err)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newPushMechanism(t *testing.T, endpoint string) *model.Mechanism {
	t.Helper()

	m, err := model.NewPushMechanism("ForgeRockSandbox", "pushreg3", testSecret, model.Push{
		RegistrationEndpoint:   endpoint,
		AuthenticationEndpoint: endpoint,
		MessageID:              "REGISTER:a8970dea-3257-4be1-a37a-23eed2b692131588282723889",
		Challenge:              testChallenge,
		LoadBalancer:           "amlbcookie=01",
	}, time.Now())
	if err != nil {
		t.Fatalf("NewPushMechanism() error = %v", err)
	}
	return m
}

func TestChallengeResponse(t *testing.T) {
	got, err := ChallengeResponse(testSecret, testChallenge)
	if err != nil {
		t.Fatalf("ChallengeResponse() error = %v", err)
	}
	if got != testResponse {
		t.Errorf("ChallengeResponse() = %s, want %s", got, testResponse)
	}

	if _, err := ChallengeResponse("", testChallenge); !errors.Is(err, ErrInvalidSecret) {
		t.Errorf("ChallengeResponse(empty secret) error = %v", err)
	}
	if _, err := ChallengeResponse(testSecret, "***"); !errors.Is(err, ErrInvalidSecret) {
		t.Errorf("ChallengeResponse(bad challenge) error = %v", err)
	}
}

// TestRegister tests the registration request contents
func TestRegister(t *testing.T) {
	srv, rec := newEndpoint(t, http.StatusOK)
	client, err := NewClient(Config{HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	m := newPushMechanism(t, srv.URL)

	if err := client.Register(context.Background(), m, "device-token"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if rec.body.MessageID != m.Push.MessageID {
		t.Errorf("messageId = %q", rec.body.MessageID)
	}
	if err := VerifyMessage(rec.body.JWT, testSecret); err != nil {
		t.Errorf("registration jwt does not verify: %v", err)
	}

	want := map[string]string{
		ClaimResponse:          testResponse,
		ClaimMechanismUID:      m.UUID,
		ClaimDeviceID:          "device-token",
		ClaimDeviceType:        DefaultDeviceType,
		ClaimCommunicationType: DefaultCommunicationType,
	}
	for claim, value := range want {
		if rec.claims[claim] != value {
			t.Errorf("claim %s = %v, want %s", claim, rec.claims[claim], value)
		}
	}

	if got := rec.header.Get(HeaderAcceptAPIVersion); got != APIVersion {
		t.Errorf("%s = %q", HeaderAcceptAPIVersion, got)
	}
	if got := rec.header.Get("Cookie"); got != "amlbcookie=01" {
		t.Errorf("Cookie = %q", got)
	}
}

func TestRegisterErrors(t *testing.T) {
	srv, _ := newEndpoint(t, http.StatusUnauthorized)
	client, _ := NewClient(Config{HTTPClient: srv.Client()})
	m := newPushMechanism(t, srv.URL)

	err := client.Register(context.Background(), m, "device-token")
	if !errors.Is(err, ErrRegistrationFailed) {
		t.Fatalf("Register() error = %v, want ErrRegistrationFailed", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Register() error = %v, want *StatusError 401", err)
	}

	if err := client.Register(context.Background(), m, ""); !errors.Is(err, ErrMissingDeviceToken) {
		t.Errorf("Register(no token) error = %v", err)
	}

	totp, _ := model.NewTOTPMechanism("i", "a", "JBSWY3DPEHPK3PXP", model.TOTP{Algorithm: model.AlgorithmSHA1, Digits: 6, Period: 30}, time.Now())
	if err := client.Register(context.Background(), totp, "device-token"); !errors.Is(err, ErrNotPushMechanism) {
		t.Errorf("Register(totp) error = %v", err)
	}
}

// TestRespond tests accept, deny and numbers-challenge claims
func TestRespond(t *testing.T) {
	tests := []struct {
		name              string
		approve           bool
		challengeResponse string
		wantDeny          bool
	}{
		{name: "accept", approve: true},
		{name: "deny", approve: false, wantDeny: true},
		{name: "numbers challenge", approve: true, challengeResponse: "56"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := newEndpoint(t, http.StatusOK)
			client, _ := NewClient(Config{HTTPClient: srv.Client()})
			m := newPushMechanism(t, srv.URL)
			n := &model.Notification{
				MessageID:      "AUTHENTICATE:1",
				MechanismUUID:  m.UUID,
				Challenge:      testChallenge,
				LoadBalanceKey: "amlbcookie=01",
				TTL:            time.Minute,
				TimeAdded:      time.Now(),
				Pending:        true,
			}

			if err := client.Respond(context.Background(), m, n, tt.approve, tt.challengeResponse); err != nil {
				t.Fatalf("Respond() error = %v", err)
			}

			if rec.body.MessageID != "AUTHENTICATE:1" {
				t.Errorf("messageId = %q", rec.body.MessageID)
			}
			if rec.claims[ClaimResponse] != testResponse {
				t.Errorf("response claim = %v", rec.claims[ClaimResponse])
			}
			if _, denied := rec.claims[ClaimDeny]; denied != tt.wantDeny {
				t.Errorf("deny claim present = %v, want %v", denied, tt.wantDeny)
			}
			if tt.challengeResponse != "" && rec.claims[ClaimChallengeResponse] != tt.challengeResponse {
				t.Errorf("challengeResponse claim = %v", rec.claims[ClaimChallengeResponse])
			}
		})
	}
}

func TestRespondRejectsExpired(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client, _ := NewClient(Config{HTTPClient: srv.Client()})
	m := newPushMechanism(t, srv.URL)
	n := &model.Notification{MessageID: "1", Challenge: testChallenge, TTL: time.Second, TimeAdded: time.Now().Add(-time.Minute), Pending: true}

	if err := client.Respond(context.Background(), m, n, true, ""); !errors.Is(err, ErrNotificationInvalidStatus) {
		t.Errorf("Respond(expired) error = %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expired notification reached the server")
	}
}

func TestRespondTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, _ := NewClient(Config{HTTPClient: srv.Client(), Timeout: 50 * time.Millisecond})
	m := newPushMechanism(t, srv.URL)
	n := &model.Notification{MessageID: "1", Challenge: testChallenge, TTL: time.Minute, TimeAdded: time.Now(), Pending: true}

	err := client.Respond(context.Background(), m, n, true, "")
	if !errors.Is(err, ErrAuthenticationFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Respond() error = %v, want deadline exceeded", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v", client.Timeout())
	}

	if _, err := NewClient(Config{Timeout: -time.Second}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewClient(negative timeout) error = %v", err)
	}
}
