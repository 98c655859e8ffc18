package model

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"
)

// Algorithm represents the keyed hash used by an OATH mechanism.
type Algorithm string

const (
	// AlgorithmSHA1 is the default OATH algorithm.
	AlgorithmSHA1 Algorithm = "sha1"
	// AlgorithmSHA224 uses SHA-224.
	AlgorithmSHA224 Algorithm = "sha224"
	// AlgorithmSHA256 uses SHA-256.
	AlgorithmSHA256 Algorithm = "sha256"
	// AlgorithmSHA384 uses SHA-384.
	AlgorithmSHA384 Algorithm = "sha384"
	// AlgorithmSHA512 uses SHA-512.
	AlgorithmSHA512 Algorithm = "sha512"
	// AlgorithmMD5 uses MD5. Kept for legacy tokens only.
	AlgorithmMD5 Algorithm = "md5"
)

const (
	// DefaultDigits is the code length used when an enrollment omits digits.
	DefaultDigits = 6
	// DefaultPeriod is the TOTP time step in seconds used when an enrollment omits period.
	DefaultPeriod = 30
)

// ParseAlgorithm normalises an algorithm name as it appears in enrollment URIs
// ("SHA256", "sha-256", "SHA 256") and rejects anything outside the supported set.
// An empty value yields AlgorithmSHA1.
func ParseAlgorithm(value string) (Algorithm, error) {
	normalised := strings.ToLower(strings.TrimSpace(value))
	normalised = strings.NewReplacer("-", "", " ", "", "_", "").Replace(normalised)
	if normalised == "" {
		return AlgorithmSHA1, nil
	}

	alg := Algorithm(normalised)
	if !alg.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, value)
	}
	return alg, nil
}

// Valid reports whether the algorithm is one of the supported values.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmSHA1, AlgorithmSHA224, AlgorithmSHA256, AlgorithmSHA384, AlgorithmSHA512, AlgorithmMD5:
		return true
	}
	return false
}

// Hash returns the hash constructor for the algorithm.
func (a Algorithm) Hash() func() hash.Hash {
	switch a {
	case AlgorithmSHA224:
		return sha256.New224
	case AlgorithmSHA256:
		return sha256.New
	case AlgorithmSHA384:
		return sha512.New384
	case AlgorithmSHA512:
		return sha512.New
	case AlgorithmMD5:
		return md5.New
	default:
		return sha1.New
	}
}

// ValidateDigits rejects code lengths other than 6 and 8.
func ValidateDigits(digits int) error {
	if digits != 6 && digits != 8 {
		return fmt.Errorf("%w: %d", ErrUnsupportedDigits, digits)
	}
	return nil
}
