package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultJoinCodeLength is used when configuration does not set one.
const DefaultJoinCodeLength = 6

// NewJoinCode returns a random upper-case alphanumeric code of the given length.
func NewJoinCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultJoinCodeLength
	}
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		b.WriteByte(joinCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeJoinCode makes lookups insensitive to case and surrounding space.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether code is non-empty upper-case alphanumeric.
func ValidJoinCode(code string) bool {
	if code == "" {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(joinCodeAlphabet, r) {
			return false
		}
	}
	return true
}

// ValidateQuestion checks an authored question before it is stored.
func ValidateQuestion(q Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question text is required", ErrInvalidInput)
	}
	if len(q.CorrectAnswers) == 0 {
		return fmt.Errorf("%w: at least one correct answer is required", ErrInvalidInput)
	}
	for _, a := range q.CorrectAnswers {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("%w: correct answers must not be blank", ErrInvalidInput)
		}
	}

	switch q.Type {
	case MultipleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: multiple choice questions need at least two options", ErrInvalidInput)
		}
		for _, a := range q.CorrectAnswers {
			if !containsFold(q.Options, a) {
				return fmt.Errorf("%w: correct answer %q is not one of the options", ErrInvalidInput, a)
			}
		}
	case FreeText:
		if len(q.Options) > 0 {
			return fmt.Errorf("%w: free text questions take no options", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", ErrInvalidInput, q.Type)
	}
	return nil
}

// NextOrderIndex returns the order index that appends after every existing question.
func NextOrderIndex(questions []Question) int {
	next := 0
	for _, q := range questions {
		if q.OrderIndex >= next {
			next = q.OrderIndex + 1
		}
	}
	return next
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
