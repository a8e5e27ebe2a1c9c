package utils

import (
	"crypto/rand"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type IUtils interface {
	NewULIDFromTimestamp(t time.Time) (string, error)
	CleanModelJSON(raw string) (string, error)
	ValidateAttemptKey(key string) error
}

type utils struct {
	maxAttemptKeyLen int
}

func New() IUtils {
	return &utils{
		maxAttemptKeyLen: 128,
	}
}

func (u *utils) NewULIDFromTimestamp(t time.Time) (string, error) {
	ms := ulid.Timestamp(t)
	entropy := ulid.Monotonic(rand.Reader, 0)

	id, err := ulid.New(ms, entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

var (
	fenceOpenRe  = regexp.MustCompile("(?i)^```(?:json)?\\s*\n?")
	fenceCloseRe = regexp.MustCompile("\n?```\\s*$")
	jsonObjectRe = regexp.MustCompile(`(?s)(\{.*\})`)
)

// CleanModelJSON strips markdown code fences and surrounding chatter from
// model output, leaving the raw JSON object. Models routinely wrap JSON in
// ```json blocks despite being told not to.
func (u *utils) CleanModelJSON(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", errors.New("empty model output")
	}

	content = fenceOpenRe.ReplaceAllString(content, "")
	content = fenceCloseRe.ReplaceAllString(content, "")
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, "{") && !strings.HasPrefix(content, "[") {
		match := jsonObjectRe.FindStringSubmatch(content)
		if match == nil {
			return "", errors.New("no JSON object found in model output")
		}
		content = match[1]
	}

	return content, nil
}

func (u *utils) ValidateAttemptKey(key string) error {
	if key == "" {
		return errors.New("attempt key is required")
	}
	if len(key) > u.maxAttemptKeyLen {
		return errors.New("attempt key exceeds maximum length")
	}
	for _, r := range key {
		if !isKeyRune(r) {
			return errors.New("attempt key contains invalid characters")
		}
	}
	return nil
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_' || r == ':' || r == '.':
		return true
	}
	return false
}
