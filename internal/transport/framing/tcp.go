package framing

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dep2p/rendezvous/pkg/rendezvous"
	"github.com/dep2p/rendezvous/pkg/types"
)

// TCPTransport is a minimal reference implementation of rendezvous.Transport
// over plain TCP connections framed by WriteFrame/ReadFrame. Peer addresses
// are resolved from a small in-memory directory populated by SetPeerAddress
// rather than any real P2P address-book; production wiring plugs a node's
// own multiplexed stream transport into the rendezvous.Transport interface
// instead of this one.
type TCPTransport struct {
	self     types.PeerID
	listener net.Listener

	mu         sync.Mutex
	localAddrs []types.Multiaddr
	peerAddrs  map[types.PeerID]string

	requests    chan rendezvous.InboundRequest
	responses   chan rendezvous.TransportResult
	addrChanges chan []types.Multiaddr

	nextReqID uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen starts accepting framed connections on addr (a "host:port" TCP
// address) on behalf of self.
func Listen(self types.PeerID, addr string) (*TCPTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("framing: listen %s: %w", addr, err)
	}
	local, err := types.NewMultiaddr(tcpAddrToMultiaddr(ln.Addr().(*net.TCPAddr)))
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	local, err = types.WithPeerID(local, self)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	t := &TCPTransport{
		self:        self,
		listener:    ln,
		localAddrs:  []types.Multiaddr{local},
		peerAddrs:   make(map[types.PeerID]string),
		requests:    make(chan rendezvous.InboundRequest, 64),
		responses:   make(chan rendezvous.TransportResult, 64),
		addrChanges: make(chan []types.Multiaddr, 1),
		closed:      make(chan struct{}),
	}
	t.addrChanges <- t.localAddrs
	go t.acceptLoop()
	return t, nil
}

func tcpAddrToMultiaddr(addr *net.TCPAddr) string {
	ip := addr.IP
	if ip4 := ip.To4(); ip4 != nil {
		return fmt.Sprintf("/ip4/%s/tcp/%d", ip4.String(), addr.Port)
	}
	return fmt.Sprintf("/ip6/%s/tcp/%d", ip.String(), addr.Port)
}

// SetPeerAddress registers the dial address for peer, used by Send to
// establish an outbound connection. This stands in for the node-level
// address book a production transport would consult.
func (t *TCPTransport) SetPeerAddress(peer types.PeerID, addr string) {
	t.mu.Lock()
	t.peerAddrs[peer] = addr
	t.mu.Unlock()
}

func (t *TCPTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
			}
			return
		}
		go t.serveInbound(conn)
	}
}

func (t *TCPTransport) serveInbound(conn net.Conn) {
	defer conn.Close()
	raw, err := ReadFrame(conn)
	if err != nil {
		return
	}
	req, err := rendezvous.UnmarshalRequest(raw)
	if err != nil {
		return
	}
	replied := make(chan struct{})
	ir := rendezvous.InboundRequest{
		From:    req.Source.PeerID,
		Request: req,
		Reply: func(resp rendezvous.RendezvousResponse) error {
			defer close(replied)
			return WriteFrame(conn, rendezvous.MarshalResponse(resp))
		},
	}
	select {
	case t.requests <- ir:
	case <-t.closed:
		return
	}
	<-replied
}

// Send dials peer's registered address, sends req, and asynchronously
// awaits exactly one framed response, delivering it on Responses.
func (t *TCPTransport) Send(ctx context.Context, peer types.PeerID, req rendezvous.RendezvousRequest) (rendezvous.RequestID, error) {
	t.mu.Lock()
	addr, ok := t.peerAddrs[peer]
	t.mu.Unlock()
	if !ok {
		return 0, rendezvous.NewAddressError(string(peer), "no known dial address for peer")
	}

	reqID := rendezvous.RequestID(atomic.AddUint64(&t.nextReqID, 1))
	data := rendezvous.MarshalRequest(req)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, rendezvous.NewRequestDispatchError(string(peer), req.Source.Namespace(), "dial", err)
	}

	go t.awaitResponse(conn, reqID, peer)

	if err := WriteFrame(conn, data); err != nil {
		return reqID, rendezvous.NewRequestDispatchError(string(peer), req.Source.Namespace(), "write", err)
	}
	return reqID, nil
}

func (t *TCPTransport) awaitResponse(conn net.Conn, reqID rendezvous.RequestID, peer types.PeerID) {
	defer conn.Close()
	raw, err := ReadFrame(conn)
	if err != nil {
		t.deliverResult(rendezvous.TransportResult{Request: reqID, Peer: peer, Err: rendezvous.NewRequestDispatchError(string(peer), "", "read", err)})
		return
	}
	resp, err := rendezvous.UnmarshalResponse(raw)
	if err != nil {
		t.deliverResult(rendezvous.TransportResult{Request: reqID, Peer: peer, Err: rendezvous.NewDeserializationError(err)})
		return
	}
	t.deliverResult(rendezvous.TransportResult{Request: reqID, Peer: peer, Response: &resp})
}

func (t *TCPTransport) deliverResult(res rendezvous.TransportResult) {
	select {
	case t.responses <- res:
	case <-t.closed:
	}
}

// Responses returns the channel of completed outbound exchanges.
func (t *TCPTransport) Responses() <-chan rendezvous.TransportResult { return t.responses }

// Requests returns the channel of inbound requests.
func (t *TCPTransport) Requests() <-chan rendezvous.InboundRequest { return t.requests }

// LocalAddresses returns this transport's single listen address.
func (t *TCPTransport) LocalAddresses() []types.Multiaddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.Multiaddr(nil), t.localAddrs...)
}

// AddressChanges returns a channel fed once with the initial address set.
// This reference transport's listen address never changes after Listen.
func (t *TCPTransport) AddressChanges() <-chan []types.Multiaddr { return t.addrChanges }

// Close stops accepting connections and releases the listener.
func (t *TCPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.listener.Close()
	})
	return err
}
