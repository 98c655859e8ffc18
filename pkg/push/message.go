package push

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
)

// Keys of a remote notification as delivered by the platform push service.
const (
	RemoteKeyEnvelope  = "aps"
	RemoteKeyMessageID = "messageId"
	RemoteKeyData      = "data"
)

// Message is an inbound push challenge before its signature has been checked.
type Message struct {
	MessageID string
	Token     string
	Claims    jwt.MapClaims
}

// MechanismUUID returns the uuid of the mechanism the message is addressed to.
func (m *Message) MechanismUUID() string {
	uuid, _ := m.Claims[model.PayloadMechanismUUID].(string)
	return uuid
}

// Payload returns the claims as a notification payload.
func (m *Message) Payload() map[string]any {
	return map[string]any(m.Claims)
}

// ParseMessage decodes the claims of an inbound message without verifying its
// signature. The claims are needed to find the mechanism whose secret verifies it.
func ParseMessage(messageID, token string) (*Message, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, &model.InvalidPayloadError{Field: "messageId"}
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidMessage)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	return &Message{MessageID: messageID, Token: token, Claims: claims}, nil
}

// ParseRemoteMessage extracts the message id and token from a remote
// notification. Both the bare form {"messageId", "data"} and the form nested
// under "aps" are accepted.
func ParseRemoteMessage(remote map[string]any) (*Message, error) {
	fields := remote
	if nested, ok := remote[RemoteKeyEnvelope].(map[string]any); ok {
		fields = nested
	}

	messageID, _ := fields[RemoteKeyMessageID].(string)
	token, _ := fields[RemoteKeyData].(string)
	if messageID == "" {
		return nil, &model.InvalidPayloadError{Field: "messageId"}
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidMessage, RemoteKeyData)
	}
	return ParseMessage(messageID, token)
}

// VerifyMessage checks that token is an HS256 JWT signed with the mechanism's shared secret.
func VerifyMessage(token, secret string) error {
	key, err := decodeSecret(secret)
	if err != nil {
		return err
	}

	_, err = jwt.Parse(token, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
