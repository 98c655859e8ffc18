package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// archiveVersion prefixes every archive blob.
const archiveVersion byte = 1

// ArchiveCodec is the compact binary form of the records: one version byte
// followed by a gob stream.
type ArchiveCodec struct{}

var _ Codec = ArchiveCodec{}

func (ArchiveCodec) EncodeAccount(a *Account) ([]byte, error) {
	out := *a
	out.Mechanisms = nil
	return archive(&out)
}

func (ArchiveCodec) DecodeAccount(data []byte) (*Account, error) {
	var a Account
	if err := unarchive(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (ArchiveCodec) EncodeMechanism(m *Mechanism) ([]byte, error) {
	out := *m
	out.Notifications = nil
	return archive(&out)
}

func (ArchiveCodec) DecodeMechanism(data []byte) (*Mechanism, error) {
	var m Mechanism
	if err := unarchive(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (ArchiveCodec) EncodeNotification(n *Notification) ([]byte, error) {
	return archive(n)
}

func (ArchiveCodec) DecodeNotification(data []byte) (*Notification, error) {
	var n Notification
	if err := unarchive(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func archive(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(archiveVersion)
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("model: archive: %w", err)
	}
	return buf.Bytes(), nil
}

func unarchive(data []byte, v any) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: truncated", ErrInvalidArchive)
	}
	if data[0] != archiveVersion {
		return fmt.Errorf("%w: unknown version %d", ErrInvalidArchive, data[0])
	}
	if err := gob.NewDecoder(bytes.NewReader(data[1:])).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	return nil
}
