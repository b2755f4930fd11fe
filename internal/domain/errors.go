package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a join code or record id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyFinished is returned when joining a session that has ended.
	ErrAlreadyFinished = errors.New("this quiz has already ended")
	// ErrInvalidState is returned when the current state forbids the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrStoreUnavailable marks transient record store failures; callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidInput is returned for malformed authoring or join requests.
	ErrInvalidInput = errors.New("invalid input")

	ErrQuizNotFound     = fmt.Errorf("quiz %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrPlayerNotFound   = fmt.Errorf("player %w", ErrNotFound)

	// ErrJoinCodeTaken is returned when another quiz already uses the join code.
	ErrJoinCodeTaken = fmt.Errorf("%w: join code already in use", ErrInvalidState)
	// ErrOrderTaken is returned when another question of the quiz holds the order index.
	ErrOrderTaken = fmt.Errorf("%w: order index already in use", ErrInvalidState)
)

// Unavailable wraps a transport or driver error as ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
