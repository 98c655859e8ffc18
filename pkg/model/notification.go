package model

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxTTLSeconds is the largest ttl that fits a time.Duration.
const maxTTLSeconds = float64(math.MaxInt64 / int64(time.Second))

// PushType identifies how the user is expected to answer a push challenge.
type PushType string

const (
	// PushTypeDefault is a plain approve/deny prompt.
	PushTypeDefault PushType = "default"
	// PushTypeChallenge asks the user to pick the number shown on the login screen.
	PushTypeChallenge PushType = "challenge"
	// PushTypeBiometric asks for local biometric confirmation before approving.
	PushTypeBiometric PushType = "biometric"
)

// Payload keys used by the identity server when delivering a push challenge.
const (
	PayloadChallenge     = "c"
	PayloadLoadBalancer  = "l"
	PayloadTTL           = "t"
	PayloadMechanismUUID = "u"
	PayloadTimeAdded     = "i"
	PayloadCustomPayload = "p"
	PayloadMessage       = "m"
	PayloadPushType      = "k"
	PayloadNumbers       = "n"
	PayloadContextInfo   = "x"
)

// Notification is one inbound push challenge.
type Notification struct {
	MessageID        string        `json:"messageId"`
	MechanismUUID    string        `json:"mechanismUID"`
	Challenge        string        `json:"challenge"`
	LoadBalanceKey   string        `json:"amlbCookie,omitempty"`
	TTL              time.Duration `json:"ttl"`
	TimeAdded        time.Time     `json:"timeAdded"`
	Pending          bool          `json:"pending"`
	Approved         bool          `json:"approved"`
	CustomPayload    string        `json:"customPayload,omitempty"`
	Message          string        `json:"message,omitempty"`
	PushType         PushType      `json:"pushType,omitempty"`
	NumbersChallenge string        `json:"numbersChallenge,omitempty"`
	ContextInfo      string        `json:"contextInfo,omitempty"`
}

// NewNotification builds a pending notification from a decoded push payload.
func NewNotification(messageID string, payload map[string]any) (*Notification, error) {
	return NewNotificationAt(messageID, payload, time.Now())
}

// NewNotificationAt builds a pending notification, using now when the payload
// carries no usable arrival timestamp.
func NewNotificationAt(messageID string, payload map[string]any, now time.Time) (*Notification, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, &InvalidPayloadError{Field: "messageId"}
	}

	challenge, ok := stringField(payload, PayloadChallenge)
	if !ok {
		return nil, &InvalidPayloadError{Field: "challenge"}
	}
	loadBalancer, ok := stringField(payload, PayloadLoadBalancer)
	if !ok {
		return nil, &InvalidPayloadError{Field: "loadBalanceKey"}
	}
	ttl, ok := numberField(payload, PayloadTTL)
	if !ok || ttl < 0 || ttl > maxTTLSeconds {
		return nil, &InvalidPayloadError{Field: "ttl"}
	}
	mechanismUUID, ok := stringField(payload, PayloadMechanismUUID)
	if !ok {
		return nil, &InvalidPayloadError{Field: "mechanismUUID"}
	}

	timeAdded := now
	if ms, ok := numberField(payload, PayloadTimeAdded); ok && ms > 0 {
		timeAdded = time.UnixMilli(int64(ms))
	}

	n := &Notification{
		MessageID:      messageID,
		MechanismUUID:  mechanismUUID,
		Challenge:      challenge,
		LoadBalanceKey: decodeLoadBalancer(loadBalancer),
		TTL:            time.Duration(ttl * float64(time.Second)),
		TimeAdded:      timeAdded,
		Pending:        true,
		PushType:       PushTypeDefault,
	}
	n.CustomPayload, _ = stringField(payload, PayloadCustomPayload)
	n.Message, _ = stringField(payload, PayloadMessage)
	n.NumbersChallenge, _ = stringField(payload, PayloadNumbers)
	n.ContextInfo, _ = stringField(payload, PayloadContextInfo)
	if pt, ok := stringField(payload, PayloadPushType); ok {
		n.PushType = PushType(strings.ToLower(pt))
	}

	return n, nil
}

// Identifier returns the notification identifier, which is its message id.
func (n *Notification) Identifier() string {
	return n.MessageID
}

// ExpiresAt returns the instant after which the notification can no longer be answered.
func (n *Notification) ExpiresAt() time.Time {
	return n.TimeAdded.Add(n.TTL)
}

// IsPendingAt reports whether the notification is still awaiting an answer at now.
func (n *Notification) IsPendingAt(now time.Time) bool {
	return n.Pending && now.Before(n.ExpiresAt())
}

// IsPending is IsPendingAt(time.Now()).
func (n *Notification) IsPending() bool {
	return n.IsPendingAt(time.Now())
}

// IsExpiredAt reports whether the ttl has elapsed at now without an answer.
func (n *Notification) IsExpiredAt(now time.Time) bool {
	return n.Pending && now.Sub(n.TimeAdded) >= n.TTL
}

// IsExpired is IsExpiredAt(time.Now()).
func (n *Notification) IsExpired() bool {
	return n.IsExpiredAt(time.Now())
}

// IsApproved reports whether the notification was accepted.
func (n *Notification) IsApproved() bool {
	return !n.Pending && n.Approved
}

// IsDenied reports whether the notification was rejected.
func (n *Notification) IsDenied() bool {
	return !n.Pending && !n.Approved
}

// Numbers parses the numbers challenge ("34,56,82").
func (n *Notification) Numbers() ([]int, error) {
	if n.NumbersChallenge == "" {
		return nil, nil
	}

	parts := strings.Split(n.NumbersChallenge, ",")
	numbers := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("%w: numbers challenge %q", ErrInvalidPayload, n.NumbersChallenge)
		}
		numbers = append(numbers, v)
	}
	return numbers, nil
}

// Clone returns a copy of the notification.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	out := *n
	return &out
}

func stringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func numberField(payload map[string]any, key string) (float64, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return 0, false
	}

	var f float64
	switch t := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// decodeLoadBalancer returns the decoded cookie, or the raw value when it is not base64.
func decodeLoadBalancer(value string) string {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(value); err == nil {
			return string(b)
		}
	}
	return value
}
