package mutate

import (
	"fmt"
	"strings"

	"arborescence/internal/remote"
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidError is a pre-flight refusal; nothing was changed.
type InvalidError struct {
	Op     Op
	Reason string
}

func (e InvalidError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// BusyError rejects a request whose scope overlaps a mutation still in flight.
type BusyError struct {
	Op   Op
	Keys []string
}

func (e BusyError) Error() string {
	return fmt.Sprintf("%s: busy (%s has a change in flight)", e.Op, strings.Join(e.Keys, ", "))
}

type Kind int

const (
	// KindDomain: the server refused the change. Retrying will fail again.
	KindDomain Kind = iota
	// KindTransient: network or server failure. The same action may be retried.
	KindTransient
)

func (k Kind) String() string {
	if k == KindDomain {
		return "domain"
	}
	return "transient"
}

// Error is returned by Pending.Run when the remote call failed and the local
// change was rolled back.
type Error struct {
	Kind   Kind
	Op     Op
	NodeID string
	Err    error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.NodeID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool { return e.Kind == KindTransient }

func classify(err error) Kind {
	if remote.IsDomain(err) {
		return KindDomain
	}
	return KindTransient
}
