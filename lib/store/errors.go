package store

import (
	"context"
	"errors"
)

var (
	ErrArticleNotFound    = errors.New("article not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrGroupExists        = errors.New("group already exists")
	ErrInvalidGroupName   = errors.New("invalid group name")
	ErrIntegrity          = errors.New("article integrity check failed")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// IsRetryable reports whether operation may succeed if repeated later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBackendUnavailable)
}

// unavailableError keeps both sentinel and underlying cause visible to errors.Is.
type unavailableError struct {
	cause error
}

func (e unavailableError) Error() string {
	return ErrBackendUnavailable.Error() + ": " + e.cause.Error()
}

func (e unavailableError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.cause}
}

// Unavailable marks err as transient backend failure.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return unavailableError{cause: err}
}

// CtxErr converts context expiry into ErrBackendUnavailable.
func CtxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return Unavailable(err)
	}
	return nil
}
