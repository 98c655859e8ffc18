package model

import "time"

// Code is a generated one-time password and its validity window.
// Until is zero for HOTP codes, which stay valid until used.
type Code struct {
	Type  MechanismType `json:"tokenType"`
	Value string        `json:"code"`
	Start time.Time     `json:"start"`
	Until time.Time     `json:"until,omitempty"`
}

// IsValidAt reports whether a TOTP code is inside its window at now. HOTP codes are always valid.
func (c Code) IsValidAt(now time.Time) bool {
	if c.Type != TypeTOTP || c.Until.IsZero() {
		return true
	}
	return !now.Before(c.Start) && now.Before(c.Until)
}

// ProgressAt returns how far through its window a TOTP code is, from 0.0 to 1.0.
// HOTP codes always report 0.
func (c Code) ProgressAt(now time.Time) float64 {
	if c.Type != TypeTOTP || c.Until.IsZero() {
		return 0
	}
	if now.Before(c.Start) {
		return 0
	}
	if !now.Before(c.Until) {
		return 1
	}
	return float64(now.Sub(c.Start)) / float64(c.Until.Sub(c.Start))
}
