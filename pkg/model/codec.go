package model

import (
	"encoding/json"
	"fmt"
)

// Codec serializes the persisted records. Relation fields (Account.Mechanisms,
// Mechanism.Notifications) are never part of the encoded form.
type Codec interface {
	EncodeAccount(a *Account) ([]byte, error)
	DecodeAccount(data []byte) (*Account, error)
	EncodeMechanism(m *Mechanism) ([]byte, error)
	DecodeMechanism(data []byte) (*Mechanism, error)
	EncodeNotification(n *Notification) ([]byte, error)
	DecodeNotification(data []byte) (*Notification, error)
}

// JSONCodec is the plain structured encoding of the records.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) EncodeAccount(a *Account) ([]byte, error) {
	return json.Marshal(a)
}

func (JSONCodec) DecodeAccount(data []byte) (*Account, error) {
	var a Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("model: decode account: %w", err)
	}
	return &a, nil
}

func (JSONCodec) EncodeMechanism(m *Mechanism) ([]byte, error) {
	return json.Marshal(m)
}

func (JSONCodec) DecodeMechanism(data []byte) (*Mechanism, error) {
	var m Mechanism
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("model: decode mechanism: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (JSONCodec) EncodeNotification(n *Notification) ([]byte, error) {
	return json.Marshal(n)
}

func (JSONCodec) DecodeNotification(data []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("model: decode notification: %w", err)
	}
	return &n, nil
}
