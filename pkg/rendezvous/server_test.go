package rendezvous

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/rendezvous/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *mockTransport, *clock.Mock) {
	t.Helper()
	transport := newMockTransport()
	cfg := DefaultServerConfig(filepath.Join(t.TempDir(), "server.db")).
		WithExpirySweepInterval(time.Second).
		WithExpirySweepBatch(4).
		WithMaxLifetime(time.Millisecond)
	server, err := NewServer(cfg, transport)
	require.NoError(t, err)
	mock := clock.NewMock()
	server.clock = mock
	t.Cleanup(func() { _ = server.Close() })
	return server, transport, mock
}

func sendInbound(t *testing.T, transport *mockTransport, req RendezvousRequest) <-chan RendezvousResponse {
	t.Helper()
	replies := make(chan RendezvousResponse, 1)
	transport.requests <- InboundRequest{
		From:    req.Source.PeerID,
		Request: req,
		Reply: func(resp RendezvousResponse) error {
			replies <- resp
			return nil
		},
	}
	return replies
}

func TestServerHandlesRegister(t *testing.T) {
	server, transport, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	peer := types.PeerID("peer-a")
	req := RendezvousRequest{
		Source:  NewNodeIdentifier(peer, "ns"),
		Command: RendezvousCommand{Kind: CmdRegister},
	}
	replies := sendInbound(t, transport, req)

	select {
	case resp := <-replies:
		assert.True(t, resp.Succeeded())
		assert.False(t, resp.RegisterExpiration.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for register response")
	}

	got, err := server.Store().Get(req.Source.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestServerHandlesDiscoverAndGroups(t *testing.T) {
	server, transport, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	visible := NewNodeIdentifier(types.PeerID("peer-b"), "ns").WithDiscoverability(Namespace).WithGroup("red")
	_, err := server.Store().Register(visible, nil, time.Hour)
	require.NoError(t, err)

	requester := NewNodeIdentifier(types.PeerID("peer-a"), "ns")
	replies := sendInbound(t, transport, RendezvousRequest{Source: requester, Command: RendezvousCommand{Kind: CmdDiscover}})
	select {
	case resp := <-replies:
		require.True(t, resp.Succeeded())
		require.Len(t, resp.DiscoverResults, 1)
		assert.Equal(t, visible.PeerID, resp.DiscoverResults[0].Identity.PeerID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for discover response")
	}

	replies = sendInbound(t, transport, RendezvousRequest{Source: requester, Command: RendezvousCommand{Kind: CmdGroups}})
	select {
	case resp := <-replies:
		require.True(t, resp.Succeeded())
		assert.Equal(t, []string{"red"}, resp.GroupsResult)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for groups response")
	}
}

func TestServerHandlesFindMissing(t *testing.T) {
	server, transport, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	requester := NewNodeIdentifier(types.PeerID("peer-a"), "ns")
	replies := sendInbound(t, transport, RendezvousRequest{
		Source:  requester,
		Command: RendezvousCommand{Kind: CmdFind, FindLocator: "ns/default/nobody"},
	})
	select {
	case resp := <-replies:
		assert.True(t, resp.Succeeded())
		assert.Nil(t, resp.FindResult)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for find response")
	}
}

func TestServerSweepEmitsExpiredRegistration(t *testing.T) {
	server, _, mock := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	peer := NewNodeIdentifier(types.PeerID("peer-a"), "ns")
	_, err := server.Store().Register(peer, nil, time.Millisecond)
	require.NoError(t, err)

	mock.Add(2 * time.Second)

	select {
	case ev := <-server.Events():
		if ev.Kind != EvExpiredRegistration {
			t.Fatalf("expected EvExpiredRegistration, got %v", ev.Kind)
		}
		assert.Equal(t, peer.PeerID, ev.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expiry sweep event")
	}
}

func TestServerDeregisterMissingEntrySucceeds(t *testing.T) {
	server, transport, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.Run(ctx)

	requester := NewNodeIdentifier(types.PeerID("ghost"), "ns")
	replies := sendInbound(t, transport, RendezvousRequest{Source: requester, Command: RendezvousCommand{Kind: CmdDeregister}})
	select {
	case resp := <-replies:
		assert.True(t, resp.Succeeded())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deregister response")
	}
}
