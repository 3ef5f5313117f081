package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// BuildSpecError reports an invalid or incomplete package or projection
// spec.  It is never worth retrying.
type BuildSpecError struct {
	Reason string
}

func (e *BuildSpecError) Error() string {
	return fmt.Sprintf("build spec: %s", e.Reason)
}

// BuildSpecErrorf formats a BuildSpecError.
func BuildSpecErrorf(format string, args ...interface{}) error {
	return &BuildSpecError{Reason: fmt.Sprintf(format, args...)}
}

// RemoteDataError reports that the host lacks data needed to reach the
// target state: a missing manifest, package or projection, a difference
// no hosted file covers, or a transport that kept failing.
type RemoteDataError struct {
	Path   string
	Reason string
	Err    error
}

func (e *RemoteDataError) Error() string {
	msg := "remote data"
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteDataError) Unwrap() error { return e.Err }

// IsBuildSpec reports whether err is, or wraps, a BuildSpecError.
func IsBuildSpec(err error) bool {
	var e *BuildSpecError
	return errors.As(err, &e)
}

// IsRemoteData reports whether err is, or wraps, a RemoteDataError.
func IsRemoteData(err error) bool {
	var e *RemoteDataError
	return errors.As(err, &e)
}
