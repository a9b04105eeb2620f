// Package contacts normalizes address book entries and derives stable
// contact ids from phone numbers.
package contacts

import (
	"context"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ProviderContact is an entry supplied by an external address book.
type ProviderContact struct {
	Name        string `yaml:"name" json:"name"`
	PhoneNumber string `yaml:"phone_number" json:"phone_number"`
}

// Provider lists address book entries.
type Provider interface {
	Contacts(ctx context.Context) ([]ProviderContact, error)
}

// NormalizePhone keeps the digits of phone and a single leading '+'.
// It returns "" when phone contains no digits.
func NormalizePhone(phone string) string {
	trimmed := strings.TrimSpace(phone)

	var b strings.Builder
	b.Grow(len(trimmed))
	for i, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}

	normalized := b.String()
	if strings.TrimPrefix(normalized, "+") == "" {
		return ""
	}
	return normalized
}

// ContactID derives the id of a contact from its phone number. Numbers that
// normalize to the same value share an id, so re-importing an address book
// never duplicates contacts. It returns "" when the number has no digits.
func ContactID(phone string) string {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}
