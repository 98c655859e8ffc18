package authenticator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jeremyhahn/go-authenticator/pkg/logging"
	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/push"
)

// GetNotification returns the notification with the given message id.
func (m *Manager) GetNotification(ctx context.Context, messageID string) (*model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.storage.GetNotification(ctx, messageID)
	if err != nil {
		return nil, storageErr("get", "notification", messageID, err)
	}
	return n, nil
}

// GetAllNotifications returns every notification in arrival order.
func (m *Manager) GetAllNotifications(ctx context.Context) ([]*model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	notifications, err := m.storage.GetAllNotifications(ctx)
	if err != nil {
		return nil, storageErr("list", "notifications", "", err)
	}
	return notifications, nil
}

// GetNotificationsForMechanism returns the mechanism's notifications in arrival order.
func (m *Manager) GetNotificationsForMechanism(ctx context.Context, mechanism *model.Mechanism) ([]*model.Notification, error) {
	if mechanism == nil {
		return nil, fmt.Errorf("%w: mechanism is nil", model.ErrInvalidMechanism)
	}

	all, err := m.GetAllNotifications(ctx)
	if err != nil {
		return nil, err
	}
	var out []*model.Notification
	for _, n := range all {
		if n.MechanismUUID == mechanism.UUID {
			out = append(out, n)
		}
	}
	return out, nil
}

// GetPendingNotifications returns the notifications that can still be answered.
func (m *Manager) GetPendingNotifications(ctx context.Context) ([]*model.Notification, error) {
	all, err := m.GetAllNotifications(ctx)
	if err != nil {
		return nil, err
	}
	now := m.clock()
	var out []*model.Notification
	for _, n := range all {
		if n.IsPendingAt(now) {
			out = append(out, n)
		}
	}
	return out, nil
}

// RemoveNotification deletes a notification.
func (m *Manager) RemoveNotification(ctx context.Context, n *model.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is nil", model.ErrInvalidPayload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.RemoveNotification(ctx, n.Identifier()); err != nil {
		return storageErr("remove", "notification", n.Identifier(), err)
	}
	m.logger.Debug("notification removed", logging.MessageID(n.Identifier()))
	return nil
}

// HandleMessage turns an inbound push message into a stored pending
// notification. The message must be signed with the secret of the push
// mechanism it names. A message id that was already handled is rejected with
// push.ErrDuplicateMessage.
func (m *Manager) HandleMessage(ctx context.Context, messageID, token string) (*model.Notification, error) {
	msg, err := push.ParseMessage(messageID, token)
	if err != nil {
		m.logger.Warn("push message rejected", logging.MessageID(messageID), zap.Error(err))
		return nil, err
	}
	return m.handle(ctx, msg)
}

// HandleRemoteMessage is HandleMessage for a notification as delivered by the
// platform push service, {"messageId", "data"} bare or nested under "aps".
func (m *Manager) HandleRemoteMessage(ctx context.Context, remote map[string]any) (*model.Notification, error) {
	msg, err := push.ParseRemoteMessage(remote)
	if err != nil {
		m.logger.Warn("remote push message rejected", zap.Error(err))
		return nil, err
	}
	return m.handle(ctx, msg)
}

func (m *Manager) handle(ctx context.Context, msg *push.Message) (*model.Notification, error) {
	logger := m.logger.With(logging.MessageID(msg.MessageID))

	n, err := model.NewNotificationAt(msg.MessageID, msg.Payload(), m.clock())
	if err != nil {
		logger.Warn("push payload rejected", zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mechanism, err := m.storage.GetMechanism(ctx, n.MechanismUUID)
	if err != nil {
		return nil, storageErr("get", "mechanism", n.MechanismUUID, err)
	}
	if mechanism.Type != model.TypePush {
		return nil, fmt.Errorf("%w: %s", push.ErrNotPushMechanism, mechanism.UUID)
	}
	if err := push.VerifyMessage(msg.Token, mechanism.Secret); err != nil {
		logger.Warn("push message signature rejected", logging.Mechanism(mechanism.UUID), zap.Error(err))
		return nil, err
	}

	if m.replay.Seen(n.MessageID) {
		return nil, fmt.Errorf("%w: %s", push.ErrDuplicateMessage, n.MessageID)
	}
	switch _, err := m.storage.GetNotification(ctx, n.MessageID); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", push.ErrDuplicateMessage, n.MessageID)
	case !isNotFound(err):
		m.replay.Forget(n.MessageID)
		return nil, storageErr("get", "notification", n.MessageID, err)
	}

	if err := m.storage.PutNotification(ctx, n); err != nil {
		m.replay.Forget(n.MessageID)
		return nil, storageErr("put", "notification", n.MessageID, err)
	}

	logger.Info("notification received",
		logging.Account(mechanism.AccountIdentifier()),
		logging.Mechanism(mechanism.UUID),
		zap.String("push_type", string(n.PushType)))
	return n.Clone(), nil
}

// Accept approves a pending notification. The notification is marked
// approved and stored only after the server accepted the response; on any
// failure it stays pending.
func (m *Manager) Accept(ctx context.Context, n *model.Notification) error {
	return m.respond(ctx, n, true, "")
}

// Deny rejects a pending notification, with the same guarantees as Accept.
func (m *Manager) Deny(ctx context.Context, n *model.Notification) error {
	return m.respond(ctx, n, false, "")
}

// AcceptWithChallenge approves a numbers-challenge notification with the
// number the user picked.
func (m *Manager) AcceptWithChallenge(ctx context.Context, n *model.Notification, challengeResponse string) error {
	challengeResponse = strings.TrimSpace(challengeResponse)
	if challengeResponse == "" {
		return ErrChallengeResponseRequired
	}
	return m.respond(ctx, n, true, challengeResponse)
}

// AcceptAsync runs Accept on its own goroutine. The result carries the notification.
func (m *Manager) AcceptAsync(ctx context.Context, n *model.Notification) <-chan Result[*model.Notification] {
	return async(func() (*model.Notification, error) {
		return n, m.Accept(ctx, n)
	})
}

// DenyAsync runs Deny on its own goroutine. The result carries the notification.
func (m *Manager) DenyAsync(ctx context.Context, n *model.Notification) <-chan Result[*model.Notification] {
	return async(func() (*model.Notification, error) {
		return n, m.Deny(ctx, n)
	})
}

// AcceptWithChallengeAsync runs AcceptWithChallenge on its own goroutine.
func (m *Manager) AcceptWithChallengeAsync(ctx context.Context, n *model.Notification, challengeResponse string) <-chan Result[*model.Notification] {
	return async(func() (*model.Notification, error) {
		return n, m.AcceptWithChallenge(ctx, n, challengeResponse)
	})
}

// respond checks the stored notification, sends the signed response without
// holding the lock, and persists the terminal state once the server accepted it.
func (m *Manager) respond(ctx context.Context, n *model.Notification, approve bool, challengeResponse string) error {
	if n == nil {
		return fmt.Errorf("%w: notification is nil", push.ErrNotificationInvalidStatus)
	}
	id := n.Identifier()
	logger := m.logger.With(logging.MessageID(id), zap.Bool("approve", approve))

	stored, mechanism, err := m.beginResponse(ctx, id, approve, challengeResponse)
	if err != nil {
		logger.Warn("response refused", zap.Error(err))
		return err
	}

	sendErr := m.push.Respond(ctx, mechanism, stored, approve, challengeResponse)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.responding, id)

	if sendErr != nil {
		logger.Error("response not delivered", zap.Error(sendErr))
		return sendErr
	}

	current, err := m.storage.GetNotification(ctx, id)
	if err != nil {
		return &UpdateError{Record: "notification", ID: id, Err: err}
	}
	current.Pending = false
	current.Approved = approve
	if err := m.storage.PutNotification(ctx, current); err != nil {
		logger.Error("response delivered but state not stored", zap.Error(err))
		return &UpdateError{Record: "notification", ID: id, Err: err}
	}

	n.Pending = false
	n.Approved = approve
	logger.Info("notification answered", logging.Mechanism(mechanism.UUID))
	return nil
}

// beginResponse validates the notification under the write lock and marks it
// in flight so a concurrent response is refused.
func (m *Manager) beginResponse(ctx context.Context, id string, approve bool, challengeResponse string) (*model.Notification, *model.Mechanism, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.storage.GetNotification(ctx, id)
	if err != nil {
		return nil, nil, storageErr("get", "notification", id, err)
	}
	if m.responding[id] || !stored.IsPendingAt(m.clock()) {
		return nil, nil, fmt.Errorf("%w: %s", push.ErrNotificationInvalidStatus, id)
	}
	if approve && challengeResponse == "" && stored.PushType == model.PushTypeChallenge {
		return nil, nil, ErrChallengeResponseRequired
	}

	mechanism, err := m.storage.GetMechanism(ctx, stored.MechanismUUID)
	if err != nil {
		return nil, nil, storageErr("get", "mechanism", stored.MechanismUUID, err)
	}
	if err := m.checkUnlocked(ctx, mechanism.AccountIdentifier()); err != nil {
		return nil, nil, err
	}

	m.responding[id] = true
	return stored, mechanism, nil
}
