package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// LockRecord captures the policy that locked an account and the diagnostic
// data produced when it was evaluated.
type LockRecord struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Account groups the mechanisms enrolled for one issuer/account name pair.
type Account struct {
	Issuer             string                     `json:"issuer"`
	AccountName        string                     `json:"accountName"`
	DisplayIssuer      string                     `json:"displayIssuer,omitempty"`
	DisplayAccountName string                     `json:"displayAccountName,omitempty"`
	ImageURL           string                     `json:"imageURL,omitempty"`
	BackgroundColor    string                     `json:"backgroundColor,omitempty"`
	TimeAdded          time.Time                  `json:"timeAdded"`
	Policies           map[string]json.RawMessage `json:"policies,omitempty"`
	Lock               bool                       `json:"lock"`
	LockingPolicy      *LockRecord                `json:"lockingPolicy,omitempty"`

	// Mechanisms is populated on retrieval, ordered by enrollment time. It is never persisted.
	Mechanisms []*Mechanism `json:"-"`
}

// NewAccount creates an account stamped with the current time.
func NewAccount(issuer, accountName string) (*Account, error) {
	return NewAccountAt(issuer, accountName, time.Now())
}

// NewAccountAt creates an account stamped with the given time.
func NewAccountAt(issuer, accountName string, now time.Time) (*Account, error) {
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("%w: issuer must not be empty", ErrInvalidAccount)
	}
	if strings.TrimSpace(accountName) == "" {
		return nil, fmt.Errorf("%w: account name must not be empty", ErrInvalidAccount)
	}

	return &Account{
		Issuer:      issuer,
		AccountName: accountName,
		TimeAdded:   now,
	}, nil
}

// AccountIdentifier builds the account identifier for an issuer/account name pair.
func AccountIdentifier(issuer, accountName string) string {
	return issuer + "-" + accountName
}

// Identifier returns issuer + "-" + accountName.
func (a *Account) Identifier() string {
	return AccountIdentifier(a.Issuer, a.AccountName)
}

// DisplayName returns the display overrides when set, falling back to the issuer and account name.
func (a *Account) DisplayName() (issuer, accountName string) {
	issuer, accountName = a.Issuer, a.AccountName
	if a.DisplayIssuer != "" {
		issuer = a.DisplayIssuer
	}
	if a.DisplayAccountName != "" {
		accountName = a.DisplayAccountName
	}
	return issuer, accountName
}

// MergeDisplay copies the image and background color of a newer enrollment
// onto this account. Empty values on the newer enrollment leave the current
// value in place. It reports whether anything changed.
func (a *Account) MergeDisplay(newer *Account) bool {
	changed := false
	if newer.ImageURL != "" && newer.ImageURL != a.ImageURL {
		a.ImageURL = newer.ImageURL
		changed = true
	}
	if newer.BackgroundColor != "" && newer.BackgroundColor != a.BackgroundColor {
		a.BackgroundColor = newer.BackgroundColor
		changed = true
	}
	return changed
}

// HasPolicy reports whether the named policy appears in the account's policy configuration.
func (a *Account) HasPolicy(name string) bool {
	_, ok := a.Policies[name]
	return ok
}

// Clone returns a deep copy of the account record. Mechanisms are cloned as well.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}

	out := *a
	if a.Policies != nil {
		out.Policies = make(map[string]json.RawMessage, len(a.Policies))
		for k, v := range a.Policies {
			out.Policies[k] = append(json.RawMessage(nil), v...)
		}
	}
	if a.LockingPolicy != nil {
		lr := *a.LockingPolicy
		lr.Data = append(json.RawMessage(nil), a.LockingPolicy.Data...)
		out.LockingPolicy = &lr
	}
	if a.Mechanisms != nil {
		out.Mechanisms = make([]*Mechanism, len(a.Mechanisms))
		for i, m := range a.Mechanisms {
			out.Mechanisms[i] = m.Clone()
		}
	}
	return &out
}

// ParsePolicies decodes a policy configuration document of the form
// {"policyName": {...params...}}.
func ParsePolicies(raw []byte) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var policies map[string]json.RawMessage
	if err := json.Unmarshal(raw, &policies); err != nil {
		return nil, fmt.Errorf("%w: policies: %v", ErrInvalidAccount, err)
	}
	return policies, nil
}
