package rendezvous

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dep2p/rendezvous/pkg/types"
)

// mockTransport is an in-memory Transport double for unit-testing Server
// and Client without a real network. Tests drive it by pushing onto
// responses/requests directly and by inspecting Sent().
type mockTransport struct {
	mu         sync.Mutex
	localAddrs []types.Multiaddr

	responses   chan TransportResult
	requests    chan InboundRequest
	addrChanges chan []types.Multiaddr

	nextID uint64
	sent   []sentCall

	sendErr error
}

type sentCall struct {
	peer types.PeerID
	req  RendezvousRequest
	id   RequestID
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		responses:   make(chan TransportResult, 16),
		requests:    make(chan InboundRequest, 16),
		addrChanges: make(chan []types.Multiaddr, 4),
	}
}

func (m *mockTransport) Send(_ context.Context, peer types.PeerID, req RendezvousRequest) (RequestID, error) {
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	id := RequestID(atomic.AddUint64(&m.nextID, 1))
	m.mu.Lock()
	m.sent = append(m.sent, sentCall{peer: peer, req: req, id: id})
	m.mu.Unlock()
	return id, nil
}

func (m *mockTransport) Responses() <-chan TransportResult { return m.responses }
func (m *mockTransport) Requests() <-chan InboundRequest   { return m.requests }

func (m *mockTransport) LocalAddresses() []types.Multiaddr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Multiaddr(nil), m.localAddrs...)
}

func (m *mockTransport) setLocalAddresses(addrs []types.Multiaddr) {
	m.mu.Lock()
	m.localAddrs = addrs
	m.mu.Unlock()
	m.addrChanges <- addrs
}

func (m *mockTransport) AddressChanges() <-chan []types.Multiaddr { return m.addrChanges }

func (m *mockTransport) Close() error { return nil }

func (m *mockTransport) lastSent() (sentCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentCall{}, false
	}
	return m.sent[len(m.sent)-1], true
}

func (m *mockTransport) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
