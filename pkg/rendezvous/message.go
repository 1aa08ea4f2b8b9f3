package rendezvous

import (
	"time"

	"github.com/dep2p/rendezvous/pkg/types"
)

// CommandKind discriminates which RendezvousCommand variant is carried.
type CommandKind int

const (
	CmdRegister CommandKind = iota
	CmdDeregister
	CmdDiscover
	CmdFind
	CmdGroups
)

// RendezvousCommand is the request payload. Only the fields relevant to
// Kind are meaningful; this mirrors a Rust-style enum as an idiomatic Go
// tagged struct rather than an interface, since every variant is tiny and
// the wire codec benefits from a single concrete type per message.
type RendezvousCommand struct {
	Kind CommandKind

	// RegisterAddresses is set for CmdRegister.
	RegisterAddresses []types.Multiaddr

	// DiscoverGroup is set for CmdDiscover; nil means "no group filter".
	DiscoverGroup *string

	// FindLocator is set for CmdFind.
	FindLocator string
}

// RendezvousRequest is the request envelope sent over the wire.
type RendezvousRequest struct {
	Source  NodeIdentifier
	Command RendezvousCommand
}

// Registration is a stored peer registration, also returned by Discover
// and Find.
type Registration struct {
	Identity         NodeIdentifier
	Addresses        []types.Multiaddr
	LastRegistration time.Time
	TTL              time.Duration
}

// Expiration returns last_registration + ttl.
func (r Registration) Expiration() time.Time {
	return r.LastRegistration.Add(r.TTL)
}

// Key delegates to the identity's locator key.
func (r Registration) Key() string { return r.Identity.Key() }

// RendezvousResponse is the response envelope. Exactly one of the result
// fields is meaningful, selected by Kind; Err is non-nil on failure.
type RendezvousResponse struct {
	Kind CommandKind
	Err  *Error

	// RegisterExpiration is set on a successful CmdRegister response.
	RegisterExpiration time.Time

	// DiscoverResults is set on a successful CmdDiscover response.
	DiscoverResults []Registration

	// FindResult is set on a successful CmdFind response; nil means "not found".
	FindResult *Registration

	// GroupsResult is set on a successful CmdGroups response.
	GroupsResult []string
}

// Succeeded reports whether the response carries no error.
func (r RendezvousResponse) Succeeded() bool { return r.Err == nil }

func commandName(k CommandKind) string {
	switch k {
	case CmdRegister:
		return "register"
	case CmdDeregister:
		return "deregister"
	case CmdDiscover:
		return "discover"
	case CmdFind:
		return "find"
	case CmdGroups:
		return "groups"
	default:
		return "unknown"
	}
}
