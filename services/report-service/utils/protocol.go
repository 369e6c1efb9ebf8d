package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var protocolPattern = regexp.MustCompile(`^DEN-\d{4}-[A-Z0-9]+$`)

// GenerateProtocol composes the public tracking identifier: current year,
// two random bytes and the tail of the current unix-millisecond clock.
// Uniqueness is ultimately guaranteed by the store's unique index, not here.
func GenerateProtocol() string {
	year := time.Now().Year()

	buf := make([]byte, 2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the host is broken; fall back to the
		// clock so the store's unique index still has something to check.
		buf[0] = byte(time.Now().UnixNano())
		buf[1] = byte(time.Now().UnixNano() >> 8)
	}
	random := strings.ToUpper(hex.EncodeToString(buf))

	ms := strconv.FormatInt(time.Now().UnixMilli(), 10)
	suffix := ms[len(ms)-4:]

	return fmt.Sprintf("DEN-%d-%s%s", year, random, suffix)
}

func IsValidProtocol(protocol string) bool {
	return protocolPattern.MatchString(protocol)
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// SanitizeText trims, strips angle brackets and collapses runs of
// whitespace in free-text fields.
func SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "<", "")
	text = strings.ReplaceAll(text, ">", "")
	return whitespacePattern.ReplaceAllString(text, " ")
}
