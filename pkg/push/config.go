package push

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultDeviceType is reported to the server during registration.
	DefaultDeviceType = "ios"
	// DefaultCommunicationType names the notification channel used by the device.
	DefaultCommunicationType = "apns"
	// DefaultTimeout bounds each registration or authentication round trip.
	DefaultTimeout = 30 * time.Second
)

// Config holds push client configuration.
type Config struct {
	// HTTPClient performs the round trips. When nil, a pooled client with
	// retry on transient failures is created from Timeout and TLSConfig.
	HTTPClient HTTPClient

	// Timeout bounds every registration and authentication call.
	// Default: 30s
	Timeout time.Duration

	// TLSConfig allows custom TLS configuration for the default client.
	TLSConfig *tls.Config

	// DeviceType is sent as the deviceType claim on registration.
	// Default: "ios"
	DeviceType string

	// CommunicationType is sent as the communicationType claim on registration.
	// Default: "apns"
	CommunicationType string

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time
}

func (c *Config) validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}

	c.DeviceType = strings.TrimSpace(c.DeviceType)
	if c.DeviceType == "" {
		c.DeviceType = DefaultDeviceType
	}
	c.CommunicationType = strings.TrimSpace(c.CommunicationType)
	if c.CommunicationType == "" {
		c.CommunicationType = DefaultCommunicationType
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}
	return nil
}
