package newsvc

import (
	"errors"

	"newsbase/lib/acl"
	"newsbase/lib/mail"
	"newsbase/lib/mailib"
	"newsbase/lib/minimail"
	"newsbase/lib/store"
)

// Errors callers are expected to test for with errors.Is.
var (
	ErrMalformedIdentifier = minimail.ErrMalformedIdentifier
	ErrMalformedHeaders    = mail.ErrMalformedHeaders
	ErrArticleTooLarge     = mailib.ErrArticleTooLarge
	ErrArticleNotFound     = store.ErrArticleNotFound
	ErrGroupNotFound       = store.ErrGroupNotFound
	ErrGroupExists         = store.ErrGroupExists
	ErrInvalidGroupName    = store.ErrInvalidGroupName
	ErrIntegrity           = store.ErrIntegrity
	ErrAccessDenied        = acl.ErrAccessDenied
	ErrBackendUnavailable  = store.ErrBackendUnavailable
)

// IsRetryable reports whether failed operation may be repeated later.
func IsRetryable(err error) bool {
	return store.IsRetryable(err)
}

// outcome classifies error for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case is(err, ErrAccessDenied):
		return "denied"
	case is(err, ErrArticleNotFound, ErrGroupNotFound):
		return "notfound"
	case is(err, ErrMalformedIdentifier, ErrMalformedHeaders,
		ErrArticleTooLarge, ErrInvalidGroupName):
		return "malformed"
	case is(err, ErrBackendUnavailable):
		return "unavailable"
	}
	return "error"
}

func is(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
