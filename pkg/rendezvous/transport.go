package rendezvous

import (
	"context"

	"github.com/dep2p/rendezvous/pkg/types"
)

// ProtocolID is the stream-protocol name this package's wire messages are
// negotiated under.
const ProtocolID = "/interplex/rendezvous"

// RequestID identifies one outbound request for matching against its
// eventual response or failure, as handed back by Transport.Send.
type RequestID uint64

// Transport is the external collaborator this package is driven by: a
// request/response layer over an already-established connection to a known
// remote peer. Production wiring of a real multiplexed P2P stream
// transport is left to the surrounding node; this package only depends on
// this minimal surface. See internal/transport/framing for a length-prefixed
// TCP reference implementation used by cmd/rendezvous-server and by tests.
type Transport interface {
	// Send dispatches req to peer and returns a RequestID the caller can
	// correlate with a later Responses delivery. Send itself only reports
	// local dispatch failures (e.g. no known address); transport-level
	// delivery failure arrives asynchronously via Responses.
	Send(ctx context.Context, peer types.PeerID, req RendezvousRequest) (RequestID, error)

	// Responses returns a channel of completed exchanges: either a
	// matched response or a delivery failure, each tagged with the
	// RequestID returned by Send and the peer it was sent to.
	Responses() <-chan TransportResult

	// Requests returns a channel of inbound requests this transport has
	// received from remote peers, each paired with a function to send
	// the matching response.
	Requests() <-chan InboundRequest

	// LocalAddresses returns the external addresses this node is
	// currently reachable on, or nil if none are known yet.
	LocalAddresses() []types.Multiaddr

	// AddressChanges returns a channel that receives the current address
	// set every time it changes (including the transition to non-empty).
	AddressChanges() <-chan []types.Multiaddr

	// Close releases transport resources.
	Close() error
}

// TransportResult is one completed outbound exchange.
type TransportResult struct {
	Request RequestID
	Peer    types.PeerID
	// Response is set when the exchange was matched; Err is set
	// (a RequestDispatch-kind *Error) when the transport failed to
	// deliver or match the response.
	Response *RendezvousResponse
	Err      error
}

// InboundRequest is a request this node received from a remote peer,
// bundled with a closure to deliver the matching response.
type InboundRequest struct {
	From    types.PeerID
	Request RendezvousRequest
	Reply   func(RendezvousResponse) error
}
