package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	phonePattern = regexp.MustCompile(`^\d{10,15}$`)
	nonDigit     = regexp.MustCompile(`\D`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// Current UTC timestamp
func Now() time.Time {
	return time.Now().UTC()
}

// Phone with 10 to 15 digits, after sanitizing
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(SanitizePhone(phone))
}

// Strips everything that is not a digit
func SanitizePhone(phone string) string {
	return nonDigit.ReplaceAllString(phone, "")
}

// WhatsAppNumber turns a local number (0812...) into the international form
// the WhatsApp API expects (62812...). Numbers already starting with 62 are
// returned sanitized.
func WhatsAppNumber(phone string) string {
	clean := SanitizePhone(phone)
	if strings.HasPrefix(clean, "0") {
		return "62" + clean[1:]
	}
	return clean
}

func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Parses a uint, falling back to def
func ParseUint(s string, def uint) uint {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return def
	}
	return uint(n)
}

// Parses a positive int, falling back to def
func ParseInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// Masks all but the last 4 digits
func MaskPhone(phone string) string {
	clean := SanitizePhone(phone)
	if len(clean) <= 4 {
		return clean
	}
	return strings.Repeat("*", len(clean)-4) + clean[len(clean)-4:]
}
