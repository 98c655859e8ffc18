package oath

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"

	"github.com/jeremyhahn/go-authenticator/pkg/model"
)

// Generate derives the current code for an HOTP or TOTP mechanism.
//
// For HOTP the code is derived from the mechanism's current counter and the
// counter is not advanced; persisting counter+1 is the caller's job. For TOTP
// the code covers the time step containing now, and the returned Code carries
// that step's boundaries.
func Generate(m *model.Mechanism, now time.Time) (model.Code, error) {
	if m == nil {
		return model.Code{}, ErrNilMechanism
	}

	switch m.Type {
	case model.TypeHOTP:
		if m.HOTP == nil {
			return model.Code{}, fmt.Errorf("%w: hotp parameters missing", model.ErrInvalidMechanism)
		}
		code, err := HOTP(m.Secret, m.HOTP.Counter, m.HOTP.Algorithm, m.HOTP.Digits)
		if err != nil {
			return model.Code{}, err
		}
		return model.Code{Type: model.TypeHOTP, Value: code, Start: now}, nil

	case model.TypeTOTP:
		if m.TOTP == nil {
			return model.Code{}, fmt.Errorf("%w: totp parameters missing", model.ErrInvalidMechanism)
		}
		code, start, err := TOTP(m.Secret, now, m.TOTP.Period, m.TOTP.Algorithm, m.TOTP.Digits)
		if err != nil {
			return model.Code{}, err
		}
		return model.Code{
			Type:  model.TypeTOTP,
			Value: code,
			Start: start,
			Until: start.Add(time.Duration(m.TOTP.Period) * time.Second),
		}, nil

	default:
		return model.Code{}, fmt.Errorf("%w: %s", ErrUnsupportedType, m.Type)
	}
}

// HOTP computes the RFC 4226 code for a base32 secret and counter.
func HOTP(secret string, counter uint64, alg model.Algorithm, digits int) (string, error) {
	if err := validate(secret, alg, digits); err != nil {
		return "", err
	}

	if otpAlg, ok := pquernaAlgorithm(alg); ok {
		code, err := hotp.GenerateCodeCustom(secret, counter, hotp.ValidateOpts{
			Digits:    otp.Digits(digits),
			Algorithm: otpAlg,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
		}
		return code, nil
	}

	return truncate(secret, counter, alg, digits)
}

// TOTP computes the RFC 6238 code for the time step containing now and returns
// the start of that step.
func TOTP(secret string, now time.Time, period int, alg model.Algorithm, digits int) (string, time.Time, error) {
	if period <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: period must be positive", model.ErrInvalidMechanism)
	}
	if err := validate(secret, alg, digits); err != nil {
		return "", time.Time{}, err
	}

	step := now.Unix() / int64(period)
	start := time.Unix(step*int64(period), 0)

	if otpAlg, ok := pquernaAlgorithm(alg); ok {
		code, err := totp.GenerateCodeCustom(secret, now, totp.ValidateOpts{
			Period:    uint(period),
			Skew:      0,
			Digits:    otp.Digits(digits),
			Algorithm: otpAlg,
		})
		if err != nil {
			return "", time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
		}
		return code, start, nil
	}

	code, err := truncate(secret, uint64(step), alg, digits)
	if err != nil {
		return "", time.Time{}, err
	}
	return code, start, nil
}

func validate(secret string, alg model.Algorithm, digits int) error {
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("%w: secret must not be empty", ErrInvalidSecret)
	}
	if !alg.Valid() {
		return fmt.Errorf("%w: %s", model.ErrUnsupportedAlgorithm, alg)
	}
	return model.ValidateDigits(digits)
}

// pquernaAlgorithm maps to the algorithms github.com/pquerna/otp implements.
func pquernaAlgorithm(alg model.Algorithm) (otp.Algorithm, bool) {
	switch alg {
	case model.AlgorithmSHA1:
		return otp.AlgorithmSHA1, true
	case model.AlgorithmSHA256:
		return otp.AlgorithmSHA256, true
	case model.AlgorithmSHA512:
		return otp.AlgorithmSHA512, true
	case model.AlgorithmMD5:
		return otp.AlgorithmMD5, true
	}
	return 0, false
}

// truncate is the RFC 4226 dynamic truncation for algorithms pquerna/otp does not offer.
func truncate(secret string, counter uint64, alg model.Algorithm, digits int) (string, error) {
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(alg.Hash(), key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, value%mod), nil
}

// DecodeSecret decodes a base32 shared secret, tolerating lower case and missing padding.
func DecodeSecret(secret string) ([]byte, error) {
	s := strings.ToUpper(strings.TrimSpace(secret))
	if n := len(s) % 8; n != 0 {
		s += strings.Repeat("=", 8-n)
	}
	key, err := base32.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return key, nil
}

// ProvisioningURI returns the otpauth:// URI describing an HOTP or TOTP mechanism.
// The URI can be rendered as a QR code or fed back into enrollment.
func ProvisioningURI(m *model.Mechanism) (string, error) {
	if m == nil {
		return "", ErrNilMechanism
	}

	v := url.Values{}
	v.Set("secret", m.Secret)
	v.Set("issuer", m.Issuer)

	switch m.Type {
	case model.TypeHOTP:
		v.Set("algorithm", strings.ToUpper(string(m.HOTP.Algorithm)))
		v.Set("digits", strconv.Itoa(m.HOTP.Digits))
		v.Set("counter", strconv.FormatUint(m.HOTP.Counter, 10))
	case model.TypeTOTP:
		v.Set("algorithm", strings.ToUpper(string(m.TOTP.Algorithm)))
		v.Set("digits", strconv.Itoa(m.TOTP.Digits))
		v.Set("period", strconv.Itoa(m.TOTP.Period))
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, m.Type)
	}

	label := url.PathEscape(m.Issuer + ":" + m.AccountName)
	return fmt.Sprintf("otpauth://%s/%s?%s", m.Type, label, v.Encode()), nil
}

// GenerateSecret returns a random 160-bit secret, base32 encoded without padding.
func GenerateSecret() (string, error) {
	secret := make([]byte, 20)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("oath: failed to generate random secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret), nil
}
