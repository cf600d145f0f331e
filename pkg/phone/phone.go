// Package phone normalizes customer phone numbers for each messaging channel.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

const (
	minInternationalDigits = 8
	maxInternationalDigits = 15
)

var ErrInvalidNumber = errors.New("invalid phone number")

// Normalizer turns user-entered numbers into the form each provider expects.
// Local numbers are assumed to belong to CountryCode.
type Normalizer struct {
	CountryCode string
	LocalLength int
}

func NewNormalizer(countryCode string, localLength int) (Normalizer, error) {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode == "" || !isDigits(countryCode) {
		return Normalizer{}, fmt.Errorf("country code %q must be digits", countryCode)
	}
	if localLength <= 0 {
		return Normalizer{}, fmt.Errorf("local length must be positive, got %d", localLength)
	}
	return Normalizer{CountryCode: countryCode, LocalLength: localLength}, nil
}

// ForSMS returns the E.164 form, e.g. +250788123456.
func (n Normalizer) ForSMS(raw string) (string, error) {
	digits, err := n.canonical(raw)
	if err != nil {
		return "", err
	}
	return "+" + digits, nil
}

// ForWhatsApp returns the country-coded digits without a plus, e.g. 250788123456.
func (n Normalizer) ForWhatsApp(raw string) (string, error) {
	return n.canonical(raw)
}

func (n Normalizer) canonical(raw string) (string, error) {
	cleaned := strip(raw)
	if cleaned == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNumber)
	}

	international := false
	switch {
	case strings.HasPrefix(cleaned, "+"):
		cleaned = cleaned[1:]
		international = true
	case strings.HasPrefix(cleaned, "00"):
		cleaned = cleaned[2:]
		international = true
	}
	if !isDigits(cleaned) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}

	codedLength := len(n.CountryCode) + n.LocalLength
	switch {
	case international:
		if strings.HasPrefix(cleaned, n.CountryCode) && len(cleaned) != codedLength {
			return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
		}
		if len(cleaned) < minInternationalDigits || len(cleaned) > maxInternationalDigits {
			return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
		}
		return cleaned, nil
	case len(cleaned) == codedLength && strings.HasPrefix(cleaned, n.CountryCode):
		return cleaned, nil
	case len(cleaned) == n.LocalLength+1 && cleaned[0] == '0':
		return n.CountryCode + cleaned[1:], nil
	case len(cleaned) == n.LocalLength:
		return n.CountryCode + cleaned, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
}

func strip(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
