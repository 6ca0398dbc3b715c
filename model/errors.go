package model

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

// The ingestion path distinguishes three failure classes: a malformed record
// (identity or structure violation, no side effects), an unavailable store
// (transient, safe for the submitting agent to retry because upserts are
// idempotent), and a key conflict (an internal invariant breach that should
// be unreachable once a record's identity has validated).

type malformedRecordError struct {
	err error
}

func (e *malformedRecordError) Error() string { return e.err.Error() }

// MakeMalformedRecordError tags a validation failure so callers can map it
// to a client error. It returns nil when err is nil.
func MakeMalformedRecordError(err error) error {
	if err == nil {
		return nil
	}
	return &malformedRecordError{err: err}
}

func IsMalformedRecord(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(*malformedRecordError)
	return ok
}

type keyConflictError struct {
	id  string
	err error
}

func (e *keyConflictError) Error() string {
	return errors.Wrapf(e.err, "key conflict for id '%s'", e.id).Error()
}

func IsKeyConflict(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(*keyConflictError)
	return ok
}

// IsStorageUnavailable reports whether an error from the store indicates a
// transient connectivity or timeout problem rather than a request defect.
func IsStorageUnavailable(err error) bool {
	if err == nil {
		return false
	}

	cause := errors.Cause(err)
	if cause == context.DeadlineExceeded {
		return true
	}

	return mongo.IsTimeout(cause) || mongo.IsNetworkError(cause)
}
