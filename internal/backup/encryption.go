package backup

import (
	"fmt"
	"strings"

	"filippo.io/age"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/scrypt"

	"github.com/tis24dev/dbsave/pkg/bech32"
)

const (
	passphraseSalt = "dbsave-backup-passphrase-v1"

	passphraseScryptN = 1 << 15
	passphraseScryptR = 8
	passphraseScryptP = 1
)

// ParseRecipients parses age X25519 recipient strings
// ("age1...").
func ParseRecipients(values []string) ([]age.Recipient, error) {
	parsed := make([]age.Recipient, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		rec, err := age.ParseX25519Recipient(value)
		if err != nil {
			return nil, fmt.Errorf("invalid age recipient %q: %w", value, err)
		}
		parsed = append(parsed, rec)
	}
	return parsed, nil
}

// deriveCurve25519Scalar stretches the passphrase into a clamped
// X25519 scalar. The derivation is deterministic, so the same
// passphrase always yields the same key pair.
func deriveCurve25519Scalar(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(passphraseSalt),
		passphraseScryptN, passphraseScryptR, passphraseScryptP, curve25519.ScalarSize)
	if err != nil {
		return nil, fmt.Errorf("derive key from passphrase: %w", err)
	}
	key[0] &= 248
	key[31] &= 127
	key[31] |= 64
	return key, nil
}

// IdentityFromPassphrase derives a deterministic age identity from a
// passphrase.
func IdentityFromPassphrase(passphrase string) (*age.X25519Identity, error) {
	key, err := deriveCurve25519Scalar(passphrase)
	if err != nil {
		return nil, err
	}
	secret, err := bech32.Encode("AGE-SECRET-KEY-", key)
	if err != nil {
		return nil, fmt.Errorf("encode secret key: %w", err)
	}
	return age.ParseX25519Identity(strings.ToUpper(secret))
}

// RecipientFromPassphrase derives the recipient matching
// IdentityFromPassphrase without exposing the secret key.
func RecipientFromPassphrase(passphrase string) (*age.X25519Recipient, error) {
	key, err := deriveCurve25519Scalar(passphrase)
	if err != nil {
		return nil, err
	}
	public, err := curve25519.X25519(key, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	encoded, err := bech32.Encode("age", public)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	return age.ParseX25519Recipient(encoded)
}
