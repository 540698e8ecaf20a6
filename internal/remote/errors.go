package remote

import (
	"errors"
	"fmt"
)

// Error codes shared by the persistence service and its clients.
const (
	CodeReferenced = "node_referenced"
	CodeNotFound   = "not_found"
	CodeInvalid    = "invalid"
	CodeConflict   = "conflict"
)

// ErrReferenced is matched (errors.Is) by domain errors refusing a delete because
// the node, or one of its descendants, is referenced by a field or document.
var ErrReferenced = errors.New("node is referenced and cannot be deleted")

// ErrNotFound is matched by domain errors about unknown nodes.
var ErrNotFound = errors.New("node not found")

// DomainError is a validation/domain refusal. Retrying the same request will fail again.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Is(target error) bool {
	switch target {
	case ErrReferenced:
		return e.Code == CodeReferenced
	case ErrNotFound:
		return e.Code == CodeNotFound
	}
	return false
}

func Domain(code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// TransientError is a transport or server failure; the same request may succeed later.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: server error (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsDomain(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
