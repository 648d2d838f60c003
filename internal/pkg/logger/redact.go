package logger

import (
	"regexp"
	"strings"
)

var sensitiveKeys = []string{"credential", "token", "secret", "password", "session", "phone"}

// phone numbers in international format, e.g. +14155550123
var phoneRegex = regexp.MustCompile(`\+[1-9][0-9]{7,14}`)

func redactValue(key, val string) string {
	key = strings.ToLower(key)
	for _, k := range sensitiveKeys {
		if strings.Contains(key, k) {
			return RedactSecret(val)
		}
	}
	return phoneRegex.ReplaceAllStringFunc(val, RedactPhone)
}

// RedactSecret masks a secret-like value, keeping only a short prefix.
// "abcdef123456" → "ab***"; values of 4 chars or fewer become "***".
func RedactSecret(val string) string {
	if len(val) <= 4 {
		return "***"
	}
	return val[:2] + "***"
}

// RedactPhone masks all but the country prefix and last two digits.
// "+14155550123" → "+1***23"
func RedactPhone(phone string) string {
	if len(phone) < 5 {
		return "***"
	}
	return phone[:2] + "***" + phone[len(phone)-2:]
}
