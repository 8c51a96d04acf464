package utils

import (
	"regexp"
	"strings"
)

var (
	e164Pattern    = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)
	nonDialPattern = regexp.MustCompile(`[^\d+]`)
)

// MaskPhoneNumber masks a phone number for logging.
// Example: +447700900123 -> +447•••••0123
func MaskPhoneNumber(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	if len(phone) <= 4 {
		return strings.Repeat("•", len(phone))
	}

	keepHead := 0
	if strings.HasPrefix(phone, "+") && len(phone) > 8 {
		keepHead = 4
	}
	tail := phone[len(phone)-4:]
	hidden := len(phone) - 4 - keepHead
	return phone[:keepHead] + strings.Repeat("•", hidden) + tail
}

// ValidateE164 reports whether phone is a well-formed E.164 number.
func ValidateE164(phone string) bool {
	return e164Pattern.MatchString(phone)
}

// NormalizePhone converts caller ids as delivered by the telephony bridge
// or web clients to E.164. Numbers without a country code are assumed UK.
func NormalizePhone(phone string) string {
	cleaned := nonDialPattern.ReplaceAllString(strings.TrimSpace(phone), "")
	switch {
	case cleaned == "":
		return ""
	case strings.HasPrefix(cleaned, "+"):
		return cleaned
	case strings.HasPrefix(cleaned, "00"):
		return "+" + cleaned[2:]
	case strings.HasPrefix(cleaned, "44"):
		return "+" + cleaned
	case strings.HasPrefix(cleaned, "0"):
		return "+44" + cleaned[1:]
	default:
		return "+44" + cleaned
	}
}
