// Package storagetest provides a conformance suite for storage.Storage implementations.
package storagetest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/storage"
)

// Run exercises a storage implementation against the storage contract.
// newStore must return an empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) storage.Storage) {
	t.Helper()

	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("Mechanisms", func(t *testing.T) { testMechanisms(t, newStore(t)) })
	t.Run("Notifications", func(t *testing.T) { testNotifications(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("SameTimestamp", func(t *testing.T) { testSameTimestamp(t, newStore(t)) })
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testAccounts(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	names := []string{"carol", "alice", "bob"}
	offsets := []time.Duration{2 * time.Second, 0, time.Second}
	for i, name := range names {
		a, err := model.NewAccountAt("ForgeRock", name, base.Add(offsets[i]))
		if err != nil {
			t.Fatalf("NewAccountAt() error = %v", err)
		}
		if err := s.PutAccount(ctx, a); err != nil {
			t.Fatalf("PutAccount() error = %v", err)
		}
	}

	all, err := s.GetAllAccounts(ctx)
	if err != nil {
		t.Fatalf("GetAllAccounts() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("GetAllAccounts() returned %d accounts, want 3", len(all))
	}
	for i, want := range []string{"alice", "bob", "carol"} {
		if all[i].AccountName != want {
			t.Errorf("GetAllAccounts()[%d] = %q, want %q", i, all[i].AccountName, want)
		}
	}

	got, err := s.GetAccount(ctx, "ForgeRock-alice")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	got.Lock = true
	got.LockingPolicy = &model.LockRecord{Name: "dummy"}
	if err := s.PutAccount(ctx, got); err != nil {
		t.Fatalf("PutAccount(update) error = %v", err)
	}

	updated, err := s.GetAccount(ctx, "ForgeRock-alice")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if !updated.Lock || updated.LockingPolicy == nil || updated.LockingPolicy.Name != "dummy" {
		t.Errorf("update was not persisted: %+v", updated)
	}

	if err := s.RemoveAccount(ctx, "ForgeRock-alice"); err != nil {
		t.Fatalf("RemoveAccount() error = %v", err)
	}
	if _, err := s.GetAccount(ctx, "ForgeRock-alice"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetAccount(removed) error = %v, want ErrNotFound", err)
	}
	all, _ = s.GetAllAccounts(ctx)
	if len(all) != 2 {
		t.Errorf("GetAllAccounts() after remove returned %d accounts, want 2", len(all))
	}
}

func testMechanisms(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	totp, err := model.NewTOTPMechanism("ForgeRock", "demo", "JBSWY3DPEHPK3PXP",
		model.TOTP{Algorithm: model.AlgorithmSHA1, Digits: 6, Period: 30}, base.Add(time.Second))
	if err != nil {
		t.Fatalf("NewTOTPMechanism() error = %v", err)
	}
	hotp, err := model.NewHOTPMechanism("ForgeRock", "demo", "IJQWIZ3FOIQUEYLE",
		model.HOTP{Algorithm: model.AlgorithmSHA256, Digits: 6}, base)
	if err != nil {
		t.Fatalf("NewHOTPMechanism() error = %v", err)
	}
	hotp.Notifications = []*model.Notification{{MessageID: "ignored"}}

	for _, m := range []*model.Mechanism{totp, hotp} {
		if err := s.PutMechanism(ctx, m); err != nil {
			t.Fatalf("PutMechanism() error = %v", err)
		}
	}

	all, err := s.GetAllMechanisms(ctx)
	if err != nil {
		t.Fatalf("GetAllMechanisms() error = %v", err)
	}
	if len(all) != 2 || all[0].UUID != hotp.UUID || all[1].UUID != totp.UUID {
		t.Fatalf("GetAllMechanisms() order is wrong")
	}

	hotp.HOTP.Counter = 5
	if err := s.PutMechanism(ctx, hotp); err != nil {
		t.Fatalf("PutMechanism(update) error = %v", err)
	}
	got, err := s.GetMechanism(ctx, hotp.UUID)
	if err != nil {
		t.Fatalf("GetMechanism() error = %v", err)
	}
	if got.HOTP.Counter != 5 {
		t.Errorf("Counter = %d, want 5", got.HOTP.Counter)
	}
	if got.Notifications != nil {
		t.Errorf("store populated the notifications relation")
	}

	got.HOTP.Counter = 99
	again, _ := s.GetMechanism(ctx, hotp.UUID)
	if again.HOTP.Counter != 5 {
		t.Errorf("store shares state with returned records")
	}

	if err := s.RemoveMechanism(ctx, totp.UUID); err != nil {
		t.Fatalf("RemoveMechanism() error = %v", err)
	}
	all, _ = s.GetAllMechanisms(ctx)
	if len(all) != 1 {
		t.Errorf("GetAllMechanisms() after remove returned %d, want 1", len(all))
	}
}

func testNotifications(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	for i, id := range []string{"AUTHENTICATE:2", "AUTHENTICATE:1"} {
		n := &model.Notification{
			MessageID:     id,
			MechanismUUID: "m",
			Challenge:     "c",
			TTL:           time.Minute,
			TimeAdded:     base.Add(time.Duration(1-i) * time.Second),
			Pending:       true,
		}
		if err := s.PutNotification(ctx, n); err != nil {
			t.Fatalf("PutNotification() error = %v", err)
		}
	}

	all, err := s.GetAllNotifications(ctx)
	if err != nil {
		t.Fatalf("GetAllNotifications() error = %v", err)
	}
	if len(all) != 2 || all[0].MessageID != "AUTHENTICATE:1" {
		t.Fatalf("GetAllNotifications() order is wrong")
	}

	n, err := s.GetNotification(ctx, "AUTHENTICATE:1")
	if err != nil {
		t.Fatalf("GetNotification() error = %v", err)
	}
	n.Pending = false
	n.Approved = true
	if err := s.PutNotification(ctx, n); err != nil {
		t.Fatalf("PutNotification(update) error = %v", err)
	}
	n, _ = s.GetNotification(ctx, "AUTHENTICATE:1")
	if !n.IsApproved() || n.TTL != time.Minute {
		t.Errorf("update was not persisted: %+v", n)
	}

	if err := s.RemoveNotification(ctx, "AUTHENTICATE:1"); err != nil {
		t.Fatalf("RemoveNotification() error = %v", err)
	}
	all, _ = s.GetAllNotifications(ctx)
	if len(all) != 1 {
		t.Errorf("GetAllNotifications() after remove returned %d, want 1", len(all))
	}
}

func testNotFound(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetAccount() error = %v", err)
	}
	if _, err := s.GetMechanism(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetMechanism() error = %v", err)
	}
	if _, err := s.GetNotification(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetNotification() error = %v", err)
	}
	if err := s.RemoveAccount(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("RemoveAccount() error = %v", err)
	}
	if err := s.RemoveMechanism(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("RemoveMechanism() error = %v", err)
	}
	if err := s.RemoveNotification(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("RemoveNotification() error = %v", err)
	}

	all, err := s.GetAllAccounts(ctx)
	if err != nil || len(all) != 0 {
		t.Errorf("GetAllAccounts() on empty store = %v, %v", all, err)
	}
}

// testSameTimestamp requires records sharing a TimeAdded to list in the order
// they were first written, regardless of their identifiers.
func testSameTimestamp(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	var mechanisms []*model.Mechanism
	for _, id := range []string{"zzz", "aaa", "mmm"} {
		m, err := model.NewTOTPMechanism("ForgeRock", id, "JBSWY3DPEHPK3PXP",
			model.TOTP{Algorithm: model.AlgorithmSHA1, Digits: 6, Period: 30}, base)
		if err != nil {
			t.Fatalf("NewTOTPMechanism() error = %v", err)
		}
		m.UUID = id
		if err := s.PutMechanism(ctx, m); err != nil {
			t.Fatalf("PutMechanism(%s) error = %v", id, err)
		}
		mechanisms = append(mechanisms, m)
	}

	// Rewriting a record keeps its place.
	if err := s.PutMechanism(ctx, mechanisms[0]); err != nil {
		t.Fatalf("PutMechanism(update) error = %v", err)
	}

	all, err := s.GetAllMechanisms(ctx)
	if err != nil {
		t.Fatalf("GetAllMechanisms() error = %v", err)
	}
	if got := mechanismIDs(all); got != "zzz,aaa,mmm" {
		t.Errorf("GetAllMechanisms() order = %s, want zzz,aaa,mmm", got)
	}

	for _, id := range []string{"AUTHENTICATE:z", "AUTHENTICATE:a"} {
		n := &model.Notification{
			MessageID:     id,
			MechanismUUID: "m",
			Challenge:     "c",
			TTL:           time.Minute,
			TimeAdded:     base,
			Pending:       true,
		}
		if err := s.PutNotification(ctx, n); err != nil {
			t.Fatalf("PutNotification(%s) error = %v", id, err)
		}
	}

	notifications, err := s.GetAllNotifications(ctx)
	if err != nil {
		t.Fatalf("GetAllNotifications() error = %v", err)
	}
	if len(notifications) != 2 || notifications[0].MessageID != "AUTHENTICATE:z" || notifications[1].MessageID != "AUTHENTICATE:a" {
		t.Errorf("GetAllNotifications() did not keep arrival order")
	}

	// A removed record that comes back is written anew and goes last.
	if err := s.RemoveMechanism(ctx, "zzz"); err != nil {
		t.Fatalf("RemoveMechanism() error = %v", err)
	}
	if err := s.PutMechanism(ctx, mechanisms[0]); err != nil {
		t.Fatalf("PutMechanism(again) error = %v", err)
	}
	all, _ = s.GetAllMechanisms(ctx)
	if got := mechanismIDs(all); got != "aaa,mmm,zzz" {
		t.Errorf("GetAllMechanisms() after re-insert = %s, want aaa,mmm,zzz", got)
	}
}

func mechanismIDs(mechanisms []*model.Mechanism) string {
	ids := make([]string, len(mechanisms))
	for i, m := range mechanisms {
		ids[i] = m.UUID
	}
	return strings.Join(ids, ",")
}
