// Package domain holds the typed primitives shared across claimreg packages.
//
// Primitives are parsed once at trust boundaries (HTTP, CLI) and passed around
// typed afterwards, so services never re-validate raw strings.
package domain

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "claimreg/pkg/domain-errors"
)

const (
	// MaxAccountIDLength bounds account identifiers accepted at the boundary.
	MaxAccountIDLength = 256
	// MaxFingerprintBytes bounds fingerprints accepted at the boundary.
	MaxFingerprintBytes = 4096
)

// AccountID identifies an owner. It is opaque to the registry and compared by
// exact equality.
type AccountID string

// ParseAccountID validates an account identifier.
func ParseAccountID(s string) (AccountID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	if len(s) > MaxAccountIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id must be valid UTF-8")
	}
	if strings.TrimSpace(s) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id must not have surrounding whitespace")
	}
	for _, r := range s {
		if unicode.IsControl(r) || r == '\u200B' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "account id contains invalid characters")
		}
	}
	return AccountID(s), nil
}

func (a AccountID) String() string {
	return string(a)
}

func (a AccountID) IsNil() bool {
	return a == ""
}

// Fingerprint is an opaque, caller-supplied byte string identifying a claimed
// item. The underlying string holds raw bytes, not text; use String for the
// hex form.
type Fingerprint string

// FingerprintFromBytes copies b into a Fingerprint.
func FingerprintFromBytes(b []byte) Fingerprint {
	return Fingerprint(b)
}

// ParseFingerprint decodes the hex form of a fingerprint. At most one leading
// "0x" or "0X" is accepted.
func ParseFingerprint(s string) (Fingerprint, error) {
	if len(s) >= 2 && strings.EqualFold(s[:2], "0x") {
		s = s[2:]
	}
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fingerprint is required")
	}
	if len(s) > 2*MaxFingerprintBytes {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fingerprint is too long")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "fingerprint must be hex encoded")
	}
	return Fingerprint(b), nil
}

// Bytes returns a copy of the raw fingerprint bytes.
func (f Fingerprint) Bytes() []byte {
	return []byte(f)
}

// String returns the lowercase hex encoding without prefix.
func (f Fingerprint) String() string {
	return hex.EncodeToString([]byte(f))
}

// MarshalText encodes the fingerprint as hex so JSON and logs never carry raw
// bytes.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes the hex form produced by MarshalText.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
