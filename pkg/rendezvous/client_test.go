package rendezvous

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/rendezvous/pkg/types"
)

func testServerAddr(t *testing.T) (types.PeerID, types.Multiaddr) {
	t.Helper()
	peer := testPeerID(t, 42)
	addr := testAddr(t, peer, 4853)
	return peer, addr
}

func newTestClient(t *testing.T) (*Client, *mockTransport, *clock.Mock, types.PeerID) {
	t.Helper()
	transport := newMockTransport()
	server, serverAddr := testServerAddr(t)

	self := NewNodeIdentifier(types.PeerID("self-peer"), "ns")
	cfg := DefaultClientConfig(self, []types.Multiaddr{serverAddr}).
		WithRegistrationBuffer(time.Second)

	c, err := NewClient(cfg, transport)
	require.NoError(t, err)
	mock := clock.NewMock()
	c.clk = mock
	return c, transport, mock, server
}

func TestClientRegisterWithNoAddressesFailsLocally(t *testing.T) {
	c, transport, _, server := newTestClient(t)
	err := c.Register(context.Background(), server)
	require.Error(t, err)
	assert.Equal(t, 0, transport.sentCount())

	select {
	case ev := <-c.Events():
		assert.Equal(t, EvRegisterFailed, ev.Kind)
	default:
		t.Fatal("expected a RegisterFailed event")
	}
}

func TestClientRegisterSuccessEmitsRegistered(t *testing.T) {
	c, transport, _, server := newTestClient(t)
	self, _ := types.NewMultiaddr("/ip4/10.0.0.1/tcp/9000")
	transport.setLocalAddresses([]types.Multiaddr{self})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	// Drain the address-change-triggered registration.
	var sent sentCall
	require.Eventually(t, func() bool {
		var ok bool
		sent, ok = transport.lastSent()
		return ok
	}, time.Second, time.Millisecond)

	exp := time.Now().Add(2 * time.Second)
	transport.responses <- TransportResult{
		Request:  sent.id,
		Peer:     sent.peer,
		Response: &RendezvousResponse{Kind: CmdRegister, RegisterExpiration: exp},
	}

	select {
	case ev := <-c.Events():
		require.Equal(t, EvRegistered, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Registered event")
	}
	_ = server
}

func TestClientDiscoverCachesPeerWithExpiry(t *testing.T) {
	c, transport, _, server := newTestClient(t)
	self, _ := types.NewMultiaddr("/ip4/10.0.0.1/tcp/9000")
	transport.setLocalAddresses([]types.Multiaddr{self})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.NoError(t, c.Discover(ctx, server, nil))
	sent, ok := transport.lastSent()
	require.True(t, ok)
	require.Equal(t, CmdDiscover, sent.req.Command.Kind)

	found := NewNodeIdentifier(types.PeerID("found-peer"), "ns")
	reg := Registration{Identity: found, LastRegistration: time.Now(), TTL: time.Minute}
	transport.responses <- TransportResult{
		Request:  sent.id,
		Peer:     sent.peer,
		Response: &RendezvousResponse{Kind: CmdDiscover, DiscoverResults: []Registration{reg}},
	}

	select {
	case ev := <-c.Events():
		require.Equal(t, EvDiscovered, ev.Kind)
		require.Len(t, ev.Peers, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Discovered event")
	}

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, ok := c.peers[found.PeerID]
		return ok
	}, time.Second, time.Millisecond)
}

func TestClientDispatchFailureEmitsFailedEvent(t *testing.T) {
	c, transport, _, server := newTestClient(t)
	self, _ := types.NewMultiaddr("/ip4/10.0.0.1/tcp/9000")
	transport.setLocalAddresses([]types.Multiaddr{self})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.NoError(t, c.Groups(ctx, server))
	sent, ok := transport.lastSent()
	require.True(t, ok)

	transport.responses <- TransportResult{
		Request: sent.id,
		Peer:    sent.peer,
		Err:     NewRequestDispatchError(string(sent.peer), "ns", "groups", context.DeadlineExceeded),
	}

	select {
	case ev := <-c.Events():
		require.Equal(t, EvGroupsFailed, ev.Kind)
		require.Error(t, ev.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for GroupsFailed event")
	}
}

func TestSelectPointRoundRobinsAndSkipsCooldown(t *testing.T) {
	transport := newMockTransport()
	peerA := testPeerID(t, 101)
	peerB := testPeerID(t, 102)
	addrA := testAddr(t, peerA, 1000)
	addrB := testAddr(t, peerB, 1001)

	self := NewNodeIdentifier(types.PeerID("self-peer"), "ns")
	cfg := DefaultClientConfig(self, []types.Multiaddr{addrA, addrB}).WithMaxFailCount(1).WithFailCooldown(time.Minute)
	c, err := NewClient(cfg, transport)
	require.NoError(t, err)
	mock := clock.NewMock()
	c.clk = mock

	first, err := c.SelectPoint()
	require.NoError(t, err)
	second, err := c.SelectPoint()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	c.recordFailure(first)
	// first is now in cooldown; every subsequent selection should be second.
	for i := 0; i < 3; i++ {
		got, err := c.SelectPoint()
		require.NoError(t, err)
		assert.Equal(t, second, got)
	}
}
