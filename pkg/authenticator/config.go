package authenticator

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jeremyhahn/go-authenticator/pkg/policy"
	"github.com/jeremyhahn/go-authenticator/pkg/push"
	"github.com/jeremyhahn/go-authenticator/pkg/storage"
)

// Config holds Manager configuration.
type Config struct {
	// Storage persists accounts, mechanisms and notifications (required).
	Storage storage.Storage

	// Policies evaluates account policies. When nil, an empty evaluator is
	// used and every account is compliant.
	Policies *policy.Evaluator

	// Push registers push mechanisms and answers notifications. When nil, a
	// client with default settings is created.
	Push *push.Client

	// ReplayGuard drops repeated deliveries of the same push message. When
	// nil, a guard with push.DefaultReplayWindow is created.
	ReplayGuard *push.ReplayGuard

	// Logger receives structured operation logs. Default: zap.NewNop()
	Logger *zap.Logger

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time

	// RejectNonCompliant refuses enrollment of a new account that fails policy
	// evaluation instead of storing it locked.
	RejectNonCompliant bool

	// DeviceToken is the platform push token sent on registration. It can be
	// changed later with SetDeviceToken.
	DeviceToken string
}

func (c *Config) validate() error {
	if c.Storage == nil {
		return fmt.Errorf("%w: storage is required", ErrInvalidConfig)
	}

	if c.Policies == nil {
		evaluator, err := policy.NewEvaluator()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		c.Policies = evaluator
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Push == nil {
		client, err := push.NewClient(push.Config{Clock: c.Clock})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		c.Push = client
	}

	if c.ReplayGuard == nil {
		c.ReplayGuard = push.NewReplayGuard(push.DefaultReplayWindow, push.DefaultReplaySize)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}
