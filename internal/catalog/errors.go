package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"

	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
)

// ErrNotFound is a definite answer from the catalog that the object does not
// exist. It is never transient.
var ErrNotFound = fmt.Errorf("catalog: %w", apperrors.ErrNotFound)

type Error struct {
	Op        string
	Status    int
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "catalog " + e.Op
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(op string, status int, transient bool, err error) *Error {
	return &Error{Op: op, Status: status, Transient: transient, Err: err}
}

func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// IsTransient reports whether err should be retried on a later sweep. Network
// errors and timeouts count as transient even when not wrapped in *Error.
func IsTransient(err error) bool {
	if err == nil || IsNotFound(err) {
		return false
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
