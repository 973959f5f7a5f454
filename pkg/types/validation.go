package types

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxNameLength bounds participant display names. Longer names are
// truncated, not rejected.
const MaxNameLength = 30

// CodeLength is the fixed length of a session code.
const CodeLength = 5

var (
	codeRegex = regexp.MustCompile(`^[A-Z0-9]{5}$`)
	validate  = validator.New()
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NormalizeCode trims and uppercases a session code and rejects anything
// that does not match the 5-character alphanumeric pattern.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !codeRegex.MatchString(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

// NormalizeName trims a display name and truncates it to MaxNameLength
// runes. An empty result is rejected.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrInvalidName
	}
	if runes := []rune(name); len(runes) > MaxNameLength {
		name = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// GenerateCode produces a random session code drawn from [A-Z0-9].
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// DecodePayload unmarshals a raw event payload into the tagged variant and
// validates its schema. Anything that does not match is rejected here, at
// the boundary, before the event reaches a manager.
func DecodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
