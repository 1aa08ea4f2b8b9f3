package rendezvous

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates the semantic category of an Error, independent
// of its formatted message.
type ErrorKind int

const (
	// KindSerialization covers encoding faults.
	KindSerialization ErrorKind = iota
	// KindDeserialization covers decoding faults.
	KindDeserialization
	// KindNotFound covers entity-absent lookups.
	KindNotFound
	// KindNodeInaccessible is returned locally when Register is attempted
	// with no external addresses; no wire request is ever issued.
	KindNodeInaccessible
	// KindRequestDispatch covers transport failures to deliver or match
	// a response.
	KindRequestDispatch
	// KindAddress covers a caller-supplied address missing a required
	// component (e.g. the peer-id segment).
	KindAddress
	// KindWrapped preserves a store or library failure verbatim.
	KindWrapped
)

func (k ErrorKind) String() string {
	switch k {
	case KindSerialization:
		return "serialization"
	case KindDeserialization:
		return "deserialization"
	case KindNotFound:
		return "not_found"
	case KindNodeInaccessible:
		return "node_inaccessible"
	case KindRequestDispatch:
		return "request_dispatch"
	case KindAddress:
		return "address"
	case KindWrapped:
		return "wrapped"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by this package. Callers
// distinguish cases with errors.Is against the Kind-only sentinels below,
// or by inspecting Kind/fields directly after an errors.As.
type Error struct {
	Kind ErrorKind

	// Key is set for KindNotFound.
	Key string

	// Peer/RequestNamespace/Command are set for KindRequestDispatch.
	Peer             string
	RequestNamespace string
	Command          string

	// Addr/Reason are set for KindAddress.
	Addr   string
	Reason string

	// wrapped is the underlying cause, set for KindWrapped and optionally
	// for KindSerialization/KindDeserialization.
	wrapped error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("rendezvous: not found: %s", e.Key)
	case KindNodeInaccessible:
		return "rendezvous: node has no external addresses"
	case KindRequestDispatch:
		return fmt.Sprintf("rendezvous: request dispatch to %s failed: namespace=%s command=%s: %v",
			e.Peer, e.RequestNamespace, e.Command, e.wrapped)
	case KindAddress:
		return fmt.Sprintf("rendezvous: invalid address %q: %s", e.Addr, e.Reason)
	case KindSerialization:
		return fmt.Sprintf("rendezvous: serialization error: %v", e.wrapped)
	case KindDeserialization:
		return fmt.Sprintf("rendezvous: deserialization error: %v", e.wrapped)
	case KindWrapped:
		return fmt.Sprintf("rendezvous: %v", e.wrapped)
	default:
		return "rendezvous: error"
	}
}

// Unwrap exposes the underlying cause where one exists.
func (e *Error) Unwrap() error { return e.wrapped }

// Is reports whether target is a *Error with the same Kind, enabling
// errors.Is(err, rendezvous.ErrNotFoundKind)-style kind checks via the
// sentinels below.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	if other.Key != "" || other.wrapped != nil || other.Peer != "" || other.Addr != "" {
		return false
	}
	return e.Kind == other.Kind
}

// Kind-only sentinels usable with errors.Is to test the category of an
// error without caring about its fields.
var (
	ErrNotFoundKind         = &Error{Kind: KindNotFound}
	ErrNodeInaccessibleKind = &Error{Kind: KindNodeInaccessible}
	ErrRequestDispatchKind  = &Error{Kind: KindRequestDispatch}
	ErrAddressKind          = &Error{Kind: KindAddress}
	ErrWrappedKind          = &Error{Kind: KindWrapped}
)

// NewNotFoundError builds a KindNotFound error for the given locator key.
func NewNotFoundError(key string) *Error {
	return &Error{Kind: KindNotFound, Key: key}
}

// NewNodeInaccessibleError builds a KindNodeInaccessible error.
func NewNodeInaccessibleError() *Error {
	return &Error{Kind: KindNodeInaccessible}
}

// NewRequestDispatchError builds a KindRequestDispatch error.
func NewRequestDispatchError(peer, namespace, command string, cause error) *Error {
	return &Error{Kind: KindRequestDispatch, Peer: peer, RequestNamespace: namespace, Command: command, wrapped: cause}
}

// NewAddressError builds a KindAddress error.
func NewAddressError(addr, reason string) *Error {
	return &Error{Kind: KindAddress, Addr: addr, Reason: reason}
}

// NewWrappedError preserves cause verbatim under KindWrapped.
func NewWrappedError(cause error) *Error {
	return &Error{Kind: KindWrapped, wrapped: cause}
}

// NewSerializationError builds a KindSerialization error.
func NewSerializationError(cause error) *Error {
	return &Error{Kind: KindSerialization, wrapped: cause}
}

// NewDeserializationError builds a KindDeserialization error.
func NewDeserializationError(cause error) *Error {
	return &Error{Kind: KindDeserialization, wrapped: cause}
}

// AsRendezvousError unwraps err to a *Error, if any is present in its chain.
func AsRendezvousError(err error) (*Error, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}
