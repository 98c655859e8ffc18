package authenticator

import (
	"encoding/base64"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
	"github.com/jeremyhahn/go-authenticator/pkg/oath"
)

// Enrollment URI schemes.
const (
	// SchemeOATH carries a single HOTP or TOTP mechanism: otpauth://totp/Issuer:name?secret=...
	SchemeOATH = "otpauth"
	// SchemePush carries a push mechanism: pushauth://push/Issuer:name?s=...&r=...
	SchemePush = "pushauth"
	// SchemeCombined carries a push mechanism and an OATH mechanism for one account,
	// plus an optional policy configuration: mfauth://totp/Issuer:name?secret=...&s=...
	SchemeCombined = "mfauth"
)

const hostPush = "push"

// Query parameter names.
const (
	paramSecret     = "secret"
	paramIssuer     = "issuer"
	paramAlgorithm  = "algorithm"
	paramDigits     = "digits"
	paramPeriod     = "period"
	paramCounter    = "counter"
	paramImage      = "image"
	paramBackground = "b"
	paramPolicies   = "policies"

	paramPushSecret   = "s"
	paramRegistration = "r"
	paramAuthenticate = "a"
	paramMessageID    = "m"
	paramChallenge    = "c"
	paramLoadBalancer = "l"
)

// enrollment is a parsed enrollment URI: the account it targets and the
// mechanisms to create under it, push first.
type enrollment struct {
	account    *model.Account
	mechanisms []*model.Mechanism
}

// push returns the push mechanism of the enrollment, or nil.
func (e *enrollment) push() *model.Mechanism {
	for _, m := range e.mechanisms {
		if m.Type == model.TypePush {
			return m
		}
	}
	return nil
}

// primary is the mechanism reported back to the caller: the OATH mechanism
// when there is one, otherwise the push mechanism.
func (e *enrollment) primary() *model.Mechanism {
	for _, m := range e.mechanisms {
		if m.Type != model.TypePush {
			return m
		}
	}
	return e.mechanisms[0]
}

// label is the "Issuer:accountName" path of an enrollment URI.
type label struct {
	issuer      string
	accountName string
}

func parseLabel(path string) (label, error) {
	path = strings.TrimPrefix(path, "/")
	var l label
	if issuer, name, ok := strings.Cut(path, ":"); ok {
		l.issuer = strings.TrimSpace(issuer)
		l.accountName = strings.TrimSpace(name)
	} else {
		l.accountName = strings.TrimSpace(path)
	}
	if l.accountName == "" {
		return l, &MissingInformationError{Param: "accountName"}
	}
	return l, nil
}

// parseEnrollmentURI classifies raw by scheme and host and builds the
// account and mechanisms it describes. Nothing is persisted.
func parseEnrollmentURI(raw string, now time.Time) (*enrollment, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}

	// Base64 values carry '+', which must not turn into a space.
	query, err := url.ParseQuery(strings.ReplaceAll(u.RawQuery, "+", "%2B"))
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrInvalidURI, err)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)

	switch scheme {
	case SchemeOATH:
		if !isOATHHost(host) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidType, u.Host)
		}
	case SchemePush:
		if host != hostPush {
			return nil, fmt.Errorf("%w: %q", ErrInvalidType, u.Host)
		}
	case SchemeCombined:
		if !isOATHHost(host) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidType, u.Host)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, u.Scheme)
	}

	l, err := parseLabel(u.Path)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case SchemeOATH:
		return parseOATHURI(model.MechanismType(host), l, query, now)
	case SchemePush:
		return parsePushURI(l, query, now)
	default:
		return parseCombinedURI(model.MechanismType(host), l, query, now)
	}
}

func isOATHHost(host string) bool {
	return host == string(model.TypeHOTP) || host == string(model.TypeTOTP)
}

func parseOATHURI(t model.MechanismType, l label, query url.Values, now time.Time) (*enrollment, error) {
	issuer := l.issuer
	if issuer == "" {
		issuer = strings.TrimSpace(query.Get(paramIssuer))
	}
	if issuer == "" {
		issuer = l.accountName
	}

	m, err := newOATHMechanism(t, issuer, l.accountName, query, now)
	if err != nil {
		return nil, err
	}
	account, err := newEnrollmentAccount(issuer, l.accountName, query, now)
	if err != nil {
		return nil, err
	}
	return &enrollment{account: account, mechanisms: []*model.Mechanism{m}}, nil
}

func parsePushURI(l label, query url.Values, now time.Time) (*enrollment, error) {
	encodedIssuer := query.Get(paramIssuer)
	if encodedIssuer == "" {
		return nil, &MissingInformationError{Param: paramIssuer}
	}
	issuer, err := decodeIssuer(encodedIssuer)
	if err != nil {
		return nil, err
	}

	m, err := newPushMechanism(issuer, l.accountName, query, now)
	if err != nil {
		return nil, err
	}
	account, err := newEnrollmentAccount(issuer, l.accountName, query, now)
	if err != nil {
		return nil, err
	}
	return &enrollment{account: account, mechanisms: []*model.Mechanism{m}}, nil
}

func parseCombinedURI(t model.MechanismType, l label, query url.Values, now time.Time) (*enrollment, error) {
	issuer := l.issuer
	if encoded := query.Get(paramIssuer); encoded != "" {
		decoded, err := decodeIssuer(encoded)
		if err != nil {
			return nil, err
		}
		issuer = decoded
	}
	if issuer == "" {
		issuer = l.accountName
	}

	pushMechanism, err := newPushMechanism(issuer, l.accountName, query, now)
	if err != nil {
		return nil, err
	}
	oathMechanism, err := newOATHMechanism(t, issuer, l.accountName, query, now)
	if err != nil {
		return nil, err
	}
	account, err := newEnrollmentAccount(issuer, l.accountName, query, now)
	if err != nil {
		return nil, err
	}

	if encoded := query.Get(paramPolicies); encoded != "" {
		raw, err := decodeBase64(encoded)
		if err != nil {
			return nil, &InvalidInformationError{Param: paramPolicies, Value: encoded}
		}
		account.Policies, err = model.ParsePolicies(raw)
		if err != nil {
			return nil, &InvalidInformationError{Param: paramPolicies, Value: string(raw)}
		}
	}

	return &enrollment{account: account, mechanisms: []*model.Mechanism{pushMechanism, oathMechanism}}, nil
}

func newOATHMechanism(t model.MechanismType, issuer, accountName string, query url.Values, now time.Time) (*model.Mechanism, error) {
	secret := strings.TrimSpace(query.Get(paramSecret))
	if secret == "" {
		return nil, &MissingInformationError{Param: paramSecret}
	}
	if _, err := oath.DecodeSecret(secret); err != nil {
		return nil, &InvalidInformationError{Param: paramSecret}
	}

	rawAlgorithm := query.Get(paramAlgorithm)
	algorithm, err := model.ParseAlgorithm(rawAlgorithm)
	if err != nil {
		return nil, &InvalidInformationError{Param: paramAlgorithm, Value: rawAlgorithm}
	}

	digits := model.DefaultDigits
	if raw := query.Get(paramDigits); raw != "" {
		digits, err = strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || model.ValidateDigits(digits) != nil {
			return nil, &InvalidInformationError{Param: paramDigits, Value: raw}
		}
	}

	switch t {
	case model.TypeHOTP:
		var counter uint64
		if raw := query.Get(paramCounter); raw != "" {
			counter, err = strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
			// The last value leaves no room to advance.
			if err != nil || counter == math.MaxUint64 {
				return nil, &InvalidInformationError{Param: paramCounter, Value: raw}
			}
		}
		return model.NewHOTPMechanism(issuer, accountName, secret, model.HOTP{
			Algorithm: algorithm,
			Digits:    digits,
			Counter:   counter,
		}, now)
	default:
		period := model.DefaultPeriod
		if raw := query.Get(paramPeriod); raw != "" {
			period, err = strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || period <= 0 {
				return nil, &InvalidInformationError{Param: paramPeriod, Value: raw}
			}
		}
		return model.NewTOTPMechanism(issuer, accountName, secret, model.TOTP{
			Algorithm: algorithm,
			Digits:    digits,
			Period:    period,
		}, now)
	}
}

func newPushMechanism(issuer, accountName string, query url.Values, now time.Time) (*model.Mechanism, error) {
	for _, name := range []string{paramPushSecret, paramRegistration, paramAuthenticate, paramMessageID, paramChallenge} {
		if strings.TrimSpace(query.Get(name)) == "" {
			return nil, &MissingInformationError{Param: name}
		}
	}

	secret := query.Get(paramPushSecret)
	if _, err := decodeBase64(secret); err != nil {
		return nil, &InvalidInformationError{Param: paramPushSecret}
	}

	registration, err := decodeEndpoint(paramRegistration, query.Get(paramRegistration))
	if err != nil {
		return nil, err
	}
	authentication, err := decodeEndpoint(paramAuthenticate, query.Get(paramAuthenticate))
	if err != nil {
		return nil, err
	}

	challenge := query.Get(paramChallenge)
	if _, err := decodeBase64(challenge); err != nil {
		return nil, &InvalidInformationError{Param: paramChallenge, Value: challenge}
	}

	params := model.Push{
		RegistrationEndpoint:   registration,
		AuthenticationEndpoint: authentication,
		MessageID:              query.Get(paramMessageID),
		Challenge:              challenge,
	}
	if raw := query.Get(paramLoadBalancer); raw != "" {
		params.LoadBalancer = raw
		if cookie, err := decodeBase64(raw); err == nil {
			params.LoadBalancer = string(cookie)
		}
	}

	return model.NewPushMechanism(issuer, accountName, secret, params, now)
}

func newEnrollmentAccount(issuer, accountName string, query url.Values, now time.Time) (*model.Account, error) {
	account, err := model.NewAccountAt(issuer, accountName, now)
	if err != nil {
		return nil, &MissingInformationError{Param: "issuer, or account name"}
	}
	account.ImageURL = decodeImage(query.Get(paramImage))
	account.BackgroundColor = strings.TrimSpace(query.Get(paramBackground))
	return account, nil
}

func decodeIssuer(encoded string) (string, error) {
	raw, err := decodeBase64(encoded)
	if err != nil || strings.TrimSpace(string(raw)) == "" {
		return "", &InvalidInformationError{Param: paramIssuer, Value: encoded}
	}
	return string(raw), nil
}

// decodeEndpoint decodes a base64url endpoint and requires an absolute http(s) URL.
func decodeEndpoint(param, encoded string) (string, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return "", &InvalidInformationError{Param: param, Value: encoded}
	}
	endpoint, err := url.Parse(string(raw))
	if err != nil || endpoint.Host == "" || (endpoint.Scheme != "http" && endpoint.Scheme != "https") {
		return "", &InvalidInformationError{Param: param, Value: string(raw)}
	}
	return endpoint.String(), nil
}

// decodeImage returns the decoded image URL. An undecodable value is dropped
// unless it is already a plain URL.
func decodeImage(encoded string) string {
	if encoded == "" {
		return ""
	}
	if raw, err := decodeBase64(encoded); err == nil {
		if u, err := url.Parse(string(raw)); err == nil && u.Scheme != "" {
			return string(raw)
		}
	}
	if u, err := url.Parse(encoded); err == nil && u.Scheme != "" && u.Host != "" {
		return encoded
	}
	return ""
}

// decodeBase64 accepts standard and URL alphabets, with or without padding.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	s = strings.TrimRight(s, "=")
	return base64.RawStdEncoding.DecodeString(s)
}
