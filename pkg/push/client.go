package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
)

const (
	// HeaderAcceptAPIVersion pins the server API version for push endpoints.
	HeaderAcceptAPIVersion = "Accept-API-Version"
	// APIVersion is the resource and protocol version the requests are built for.
	APIVersion = "resource=1.0, protocol=1.0"

	maxErrorBody = 1024
)

// requestBody is the JSON body posted to registration and authentication endpoints.
type requestBody struct {
	MessageID string `json:"messageId"`
	JWT       string `json:"jwt"`
}

// Client builds, signs and sends push registration and authentication requests.
// It holds no per-mechanism state and is safe for concurrent use.
type Client struct {
	cfg  Config
	http HTTPClient
}

// NewClient creates a push client. The configuration is validated and defaults applied.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newDefaultHTTPClient(cfg.Timeout, cfg.TLSConfig)
	}

	return &Client{cfg: cfg, http: httpClient}, nil
}

// Timeout returns the bound applied to every round trip.
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// NewRegistrationRequest builds the signed registration request for a push mechanism.
func (c *Client) NewRegistrationRequest(ctx context.Context, m *model.Mechanism, deviceToken string) (*http.Request, error) {
	if m == nil || m.Push == nil {
		return nil, ErrNotPushMechanism
	}
	if strings.TrimSpace(deviceToken) == "" {
		return nil, ErrMissingDeviceToken
	}

	response, err := ChallengeResponse(m.Secret, m.Push.Challenge)
	if err != nil {
		return nil, err
	}

	token, err := Sign(m.Secret, jwt.MapClaims{
		ClaimResponse:          response,
		ClaimMechanismUID:      m.UUID,
		ClaimDeviceID:          deviceToken,
		ClaimDeviceType:        c.cfg.DeviceType,
		ClaimCommunicationType: c.cfg.CommunicationType,
	})
	if err != nil {
		return nil, err
	}

	return newRequest(ctx, m.Push.RegistrationEndpoint, m.Push.MessageID, token, m.Push.LoadBalancer)
}

// NewAuthenticationRequest builds the signed accept or deny request for a notification.
// challengeResponse is only sent for numbers-challenge notifications.
func (c *Client) NewAuthenticationRequest(ctx context.Context, m *model.Mechanism, n *model.Notification, approve bool, challengeResponse string) (*http.Request, error) {
	if m == nil || m.Push == nil {
		return nil, ErrNotPushMechanism
	}
	if n == nil {
		return nil, fmt.Errorf("%w: notification is nil", ErrNotificationInvalidStatus)
	}

	response, err := ChallengeResponse(m.Secret, n.Challenge)
	if err != nil {
		return nil, err
	}

	claims := jwt.MapClaims{ClaimResponse: response}
	if !approve {
		claims[ClaimDeny] = true
	}
	if challengeResponse != "" {
		claims[ClaimChallengeResponse] = challengeResponse
	}

	token, err := Sign(m.Secret, claims)
	if err != nil {
		return nil, err
	}

	return newRequest(ctx, m.Push.AuthenticationEndpoint, n.MessageID, token, n.LoadBalanceKey)
}

// Register sends the registration request and reports whether the server accepted it.
func (c *Client) Register(ctx context.Context, m *model.Mechanism, deviceToken string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := c.NewRegistrationRequest(ctx, m, deviceToken)
	if err != nil {
		return err
	}
	return c.send(req, ErrRegistrationFailed)
}

// Respond sends an accept (approve=true) or deny response for a pending notification.
// An expired or already answered notification is rejected before any request is made.
func (c *Client) Respond(ctx context.Context, m *model.Mechanism, n *model.Notification, approve bool, challengeResponse string) error {
	if n == nil || !n.IsPendingAt(c.cfg.Clock()) {
		return ErrNotificationInvalidStatus
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := c.NewAuthenticationRequest(ctx, m, n, approve, challengeResponse)
	if err != nil {
		return err
	}
	return c.send(req, ErrAuthenticationFailed)
}

func (c *Client) send(req *http.Request, kind error) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Kind: kind, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func newRequest(ctx context.Context, endpoint, messageID, token, cookie string) (*http.Request, error) {
	body, err := json.Marshal(requestBody{MessageID: messageID, JWT: token})
	if err != nil {
		return nil, fmt.Errorf("push: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAcceptAPIVersion, APIVersion)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return req, nil
}
