package push

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names used in signed registration and authentication payloads.
const (
	ClaimResponse          = "response"
	ClaimMechanismUID      = "mechanismUid"
	ClaimDeviceID          = "deviceId"
	ClaimDeviceType        = "deviceType"
	ClaimCommunicationType = "communicationType"
	ClaimDeny              = "deny"
	ClaimChallengeResponse = "challengeResponse"
)

// ChallengeResponse answers a server challenge: the base64 HMAC-SHA256 of the
// decoded challenge keyed with the decoded shared secret.
func ChallengeResponse(secret, challenge string) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	msg, err := decodeBase64(challenge)
	if err != nil {
		return "", fmt.Errorf("%w: challenge: %v", ErrInvalidSecret, err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Sign produces an HS256 compact JWT over claims keyed with the decoded shared secret.
func Sign(secret string, claims jwt.MapClaims) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("push: sign jwt: %w", err)
	}
	return signed, nil
}

// decodeSecret decodes the shared secret, which the server issues base64url encoded.
func decodeSecret(secret string) ([]byte, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: secret must not be empty", ErrInvalidSecret)
	}
	key, err := decodeBase64(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: secret: %v", ErrInvalidSecret, err)
	}
	return key, nil
}

// decodeBase64 accepts standard or URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	s = strings.TrimRight(s, "=")
	return base64.RawStdEncoding.DecodeString(s)
}
