package rendezvous

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/rendezvous/internal/util/logger"
	"github.com/dep2p/rendezvous/pkg/types"
)

// pointLifecycle is the client-side registration state for one rendezvous
// server, per the Unknown → Registering → Registered(E) machine.
type pointLifecycle int

const (
	pointUnknown pointLifecycle = iota
	pointRegistering
	pointRegistered
)

type pointState struct {
	addr       types.Multiaddr
	lifecycle  pointLifecycle
	expiration time.Time
	token      string

	failCount    int
	cooldownUnt  time.Time
}

type peerState struct {
	rendezvousNode types.PeerID
	registration   Registration
	token          string
}

type pendingRequest struct {
	target  types.PeerID
	command RendezvousCommand
}

type timerKind int

const (
	timerPoint timerKind = iota
	timerPeer
)

type timerFired struct {
	kind  timerKind
	id    types.PeerID
	token string
}

// ClientEventKind discriminates Client events. Every operation that issues
// a wire request produces exactly one terminal event.
type ClientEventKind int

const (
	EvRegistered ClientEventKind = iota
	EvRegisterFailed
	EvDeregistered
	EvDeregisterFailed
	EvDiscovered
	EvDiscoverFailed
	EvFound
	EvNotFound
	EvFindFailed
	EvGroups
	EvGroupsFailed
	EvPeerExpired
	EvRegistrationExpired
)

// ClientEvent is one terminal or observational event produced by the client.
type ClientEvent struct {
	Kind           ClientEventKind
	RendezvousNode types.PeerID
	Lifetime       time.Duration
	Peers          []Registration
	Key            string
	Peer           *Registration
	Groups         []string
	Err            error
}

// Client drives the registration lifecycle against known rendezvous
// servers and caches discovered peers with independent, generation-token
// guarded expirations.
type Client struct {
	cfg       ClientConfig
	transport Transport
	clk       clock.Clock
	log       *slog.Logger

	events chan ClientEvent
	timers chan timerFired

	mu                  sync.Mutex
	rendezvousPoints    map[types.PeerID]*pointState
	peers               map[types.PeerID]*peerState
	processingRequests  map[RequestID]*pendingRequest
	pointOrder          []types.PeerID
	nextPointIdx        int
}

// NewClient constructs a Client. cfg must already satisfy Validate.
func NewClient(cfg ClientConfig, transport Transport) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:                cfg,
		transport:          transport,
		clk:                clock.New(),
		log:                logger.Logger("client"),
		events:             make(chan ClientEvent, 64),
		timers:             make(chan timerFired, 64),
		rendezvousPoints:   make(map[types.PeerID]*pointState),
		peers:              make(map[types.PeerID]*peerState),
		processingRequests: make(map[RequestID]*pendingRequest),
	}
	for _, addr := range cfg.RendezvousServers {
		peerID, err := types.GetPeerID(addr)
		if err != nil {
			return nil, NewAddressError(addr.String(), "missing peer-id component")
		}
		c.rendezvousPoints[peerID] = &pointState{addr: addr, lifecycle: pointUnknown}
		c.pointOrder = append(c.pointOrder, peerID)
	}
	return c, nil
}

// Events returns the channel of client events.
func (c *Client) Events() <-chan ClientEvent { return c.events }

// Run drives the client's event loop until ctx is canceled: it reacts to
// transport responses, local-address changes, and timer firings. Public
// methods (Register, Discover, ...) may also be called directly from other
// goroutines, and address-change handling fans out concurrently, so all
// cache-map access goes through mu rather than being confined to this loop.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case addrs, ok := <-c.transport.AddressChanges():
			if !ok {
				return nil
			}
			c.onAddressChange(ctx, addrs)
		case res, ok := <-c.transport.Responses():
			if !ok {
				return nil
			}
			c.onResponse(res)
		case tf := <-c.timers:
			c.onTimerFired(tf)
		}
	}
}

// onAddressChange re-registers to every tracked rendezvous point whenever
// the address set becomes non-empty (cold start or NAT churn).
func (c *Client) onAddressChange(ctx context.Context, addrs []types.Multiaddr) {
	if len(addrs) == 0 {
		return
	}
	c.mu.Lock()
	points := append([]types.PeerID(nil), c.pointOrder...)
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range points {
		p := p
		g.Go(func() error {
			_ = c.Register(gctx, p)
			return nil
		})
	}
	_ = g.Wait()
}

// Register issues a Register request to point using the node's current
// external addresses. It fails locally with NodeInaccessible — no wire
// request is issued — when no external address is currently known.
func (c *Client) Register(ctx context.Context, point types.PeerID) error {
	addrs := c.transport.LocalAddresses()
	if len(addrs) == 0 {
		err := NewNodeInaccessibleError()
		c.emit(ClientEvent{Kind: EvRegisterFailed, RendezvousNode: point, Err: err})
		return err
	}
	req := RendezvousRequest{
		Source:  c.cfg.Identity,
		Command: RendezvousCommand{Kind: CmdRegister, RegisterAddresses: addrs},
	}
	return c.dispatch(ctx, point, req)
}

// Deregister issues a Deregister request to point.
func (c *Client) Deregister(ctx context.Context, point types.PeerID) error {
	req := RendezvousRequest{Source: c.cfg.Identity, Command: RendezvousCommand{Kind: CmdDeregister}}
	return c.dispatch(ctx, point, req)
}

// Discover issues a Discover request to point, optionally narrowed to group.
func (c *Client) Discover(ctx context.Context, point types.PeerID, group *string) error {
	req := RendezvousRequest{Source: c.cfg.Identity, Command: RendezvousCommand{Kind: CmdDiscover, DiscoverGroup: group}}
	return c.dispatch(ctx, point, req)
}

// Find issues a Find request to point for the given locator key.
func (c *Client) Find(ctx context.Context, point types.PeerID, locator string) error {
	req := RendezvousRequest{Source: c.cfg.Identity, Command: RendezvousCommand{Kind: CmdFind, FindLocator: locator}}
	return c.dispatch(ctx, point, req)
}

// Groups issues a Groups request to point.
func (c *Client) Groups(ctx context.Context, point types.PeerID) error {
	req := RendezvousRequest{Source: c.cfg.Identity, Command: RendezvousCommand{Kind: CmdGroups}}
	return c.dispatch(ctx, point, req)
}

func (c *Client) dispatch(ctx context.Context, point types.PeerID, req RendezvousRequest) error {
	reqID, err := c.transport.Send(ctx, point, req)
	if err != nil {
		c.failDispatch(point, req.Command, NewRequestDispatchError(string(point), "rendezvous", commandName(req.Command.Kind), err))
		return err
	}
	c.mu.Lock()
	c.processingRequests[reqID] = &pendingRequest{target: point, command: req.Command}
	if req.Command.Kind == CmdRegister {
		if st, ok := c.rendezvousPoints[point]; ok {
			st.lifecycle = pointRegistering
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) onResponse(res TransportResult) {
	c.mu.Lock()
	pr, ok := c.processingRequests[res.Request]
	if ok {
		delete(c.processingRequests, res.Request)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if res.Err != nil {
		c.recordFailure(pr.target)
		c.failDispatch(pr.target, pr.command, res.Err)
		return
	}
	c.recordSuccess(pr.target)

	resp := res.Response
	switch pr.command.Kind {
	case CmdRegister:
		c.handleRegisterResponse(pr.target, resp)
	case CmdDeregister:
		c.handleDeregisterResponse(pr.target, resp)
	case CmdDiscover:
		c.handleDiscoverResponse(pr.target, resp)
	case CmdFind:
		c.handleFindResponse(pr.target, pr.command.FindLocator, resp)
	case CmdGroups:
		c.handleGroupsResponse(pr.target, resp)
	}
}

func (c *Client) failDispatch(point types.PeerID, cmd RendezvousCommand, err error) {
	switch cmd.Kind {
	case CmdRegister:
		c.mu.Lock()
		if st, ok := c.rendezvousPoints[point]; ok {
			st.lifecycle = pointUnknown
		}
		c.mu.Unlock()
		c.emit(ClientEvent{Kind: EvRegisterFailed, RendezvousNode: point, Err: err})
	case CmdDeregister:
		c.emit(ClientEvent{Kind: EvDeregisterFailed, RendezvousNode: point, Err: err})
	case CmdDiscover:
		c.emit(ClientEvent{Kind: EvDiscoverFailed, RendezvousNode: point, Err: err})
	case CmdFind:
		c.emit(ClientEvent{Kind: EvFindFailed, RendezvousNode: point, Err: err})
	case CmdGroups:
		c.emit(ClientEvent{Kind: EvGroupsFailed, RendezvousNode: point, Err: err})
	}
}

func (c *Client) handleRegisterResponse(point types.PeerID, resp *RendezvousResponse) {
	if resp.Err != nil {
		c.mu.Lock()
		if st, ok := c.rendezvousPoints[point]; ok {
			st.lifecycle = pointUnknown
		}
		c.mu.Unlock()
		c.emit(ClientEvent{Kind: EvRegisterFailed, RendezvousNode: point, Err: resp.Err})
		return
	}

	token := uuid.New().String()
	now := c.clk.Now()
	delay := resp.RegisterExpiration.Sub(now) - c.cfg.RegistrationBuffer
	if delay < 0 {
		delay = 0
	}

	c.mu.Lock()
	st, ok := c.rendezvousPoints[point]
	if !ok {
		st = &pointState{}
		c.rendezvousPoints[point] = st
		c.pointOrder = append(c.pointOrder, point)
	}
	st.lifecycle = pointRegistered
	st.expiration = resp.RegisterExpiration
	st.token = token
	c.mu.Unlock()

	c.armTimer(timerPoint, point, token, delay)
	c.emit(ClientEvent{Kind: EvRegistered, RendezvousNode: point, Lifetime: resp.RegisterExpiration.Sub(now)})
}

func (c *Client) handleDeregisterResponse(point types.PeerID, resp *RendezvousResponse) {
	if resp.Err != nil {
		c.emit(ClientEvent{Kind: EvDeregisterFailed, RendezvousNode: point, Err: resp.Err})
		return
	}
	c.mu.Lock()
	delete(c.rendezvousPoints, point)
	c.mu.Unlock()
	c.emit(ClientEvent{Kind: EvDeregistered, RendezvousNode: point})
}

func (c *Client) handleDiscoverResponse(point types.PeerID, resp *RendezvousResponse) {
	if resp.Err != nil {
		c.emit(ClientEvent{Kind: EvDiscoverFailed, RendezvousNode: point, Err: resp.Err})
		return
	}
	for _, reg := range resp.DiscoverResults {
		c.insertPeer(point, reg)
	}
	c.emit(ClientEvent{Kind: EvDiscovered, RendezvousNode: point, Peers: resp.DiscoverResults})
}

func (c *Client) handleFindResponse(point types.PeerID, locator string, resp *RendezvousResponse) {
	if resp.Err != nil {
		c.emit(ClientEvent{Kind: EvFindFailed, RendezvousNode: point, Key: locator, Err: resp.Err})
		return
	}
	if resp.FindResult == nil {
		c.emit(ClientEvent{Kind: EvNotFound, RendezvousNode: point, Key: locator})
		return
	}
	c.insertPeer(point, *resp.FindResult)
	reg := *resp.FindResult
	c.emit(ClientEvent{Kind: EvFound, RendezvousNode: point, Key: locator, Peer: &reg})
}

func (c *Client) handleGroupsResponse(point types.PeerID, resp *RendezvousResponse) {
	if resp.Err != nil {
		c.emit(ClientEvent{Kind: EvGroupsFailed, RendezvousNode: point, Err: resp.Err})
		return
	}
	c.emit(ClientEvent{Kind: EvGroups, RendezvousNode: point, Groups: resp.GroupsResult})
}

// insertPeer caches reg, arming a generation-token-guarded expiry timer.
// Insertion happens, and the timer is armed, before the caller emits its
// Discovered/Found event, so a consumer can never observe a peer without
// later being able to observe its PeerExpired.
func (c *Client) insertPeer(point types.PeerID, reg Registration) {
	token := uuid.New().String()
	delay := reg.Expiration().Sub(c.clk.Now())
	if delay < 0 {
		delay = 0
	}
	c.mu.Lock()
	c.peers[reg.Identity.PeerID] = &peerState{rendezvousNode: point, registration: reg, token: token}
	c.mu.Unlock()
	c.armTimer(timerPeer, reg.Identity.PeerID, token, delay)
}

func (c *Client) armTimer(kind timerKind, id types.PeerID, token string, delay time.Duration) {
	c.clk.AfterFunc(delay, func() {
		select {
		case c.timers <- timerFired{kind: kind, id: id, token: token}:
		default:
			c.log.Warn("dropping timer firing, channel full", "id", id)
		}
	})
}

func (c *Client) onTimerFired(tf timerFired) {
	switch tf.kind {
	case timerPoint:
		c.onPointTimer(tf.id, tf.token)
	case timerPeer:
		c.onPeerTimer(tf.id, tf.token)
	}
}

// onPointTimer fires at expiration-minus-buffer. If the token still
// matches (no fresher registration superseded it), the client attempts a
// refresh; if it cannot attempt refresh because no external address is
// known, the registration is considered lost and RegistrationExpired is
// emitted.
func (c *Client) onPointTimer(point types.PeerID, token string) {
	c.mu.Lock()
	st, ok := c.rendezvousPoints[point]
	current := ok && st.token == token
	c.mu.Unlock()
	if !current {
		return
	}

	if len(c.transport.LocalAddresses()) == 0 {
		c.mu.Lock()
		delete(c.rendezvousPoints, point)
		c.mu.Unlock()
		c.emit(ClientEvent{Kind: EvRegistrationExpired, RendezvousNode: point})
		return
	}
	_ = c.Register(context.Background(), point)
}

func (c *Client) onPeerTimer(peerID types.PeerID, token string) {
	c.mu.Lock()
	st, ok := c.peers[peerID]
	if !ok || st.token != token {
		c.mu.Unlock()
		return
	}
	delete(c.peers, peerID)
	reg := st.registration
	rendezvousNode := st.rendezvousNode
	c.mu.Unlock()

	r := reg
	c.emit(ClientEvent{Kind: EvPeerExpired, RendezvousNode: rendezvousNode, Key: reg.Key(), Peer: &r})
}

func (c *Client) emit(ev ClientEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("dropping client event, consumer too slow", "kind", ev.Kind)
	}
}

// AddressHints returns the addresses last seen for peerID, suitable as
// dial candidates when opening a fresh outbound connection.
func (c *Client) AddressHints(peerID types.PeerID) []types.Multiaddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.peers[peerID]
	if !ok {
		return nil
	}
	return st.registration.Addresses
}

// SelectPoint picks the next tracked rendezvous point by round robin,
// skipping any point whose consecutive-failure count has crossed
// MaxFailCount within FailCooldown. Supplements the distilled
// specification's single-point operations with the multi-point selection
// policy this codebase already applies elsewhere to namespace discovery.
func (c *Client) SelectPoint() (types.PeerID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pointOrder) == 0 {
		return "", fmt.Errorf("rendezvous: no known rendezvous points")
	}
	now := c.clk.Now()
	for i := 0; i < len(c.pointOrder); i++ {
		idx := (c.nextPointIdx + i) % len(c.pointOrder)
		id := c.pointOrder[idx]
		st, ok := c.rendezvousPoints[id]
		if !ok {
			continue
		}
		if st.failCount >= c.cfg.MaxFailCount && now.Before(st.cooldownUnt) {
			continue
		}
		c.nextPointIdx = (idx + 1) % len(c.pointOrder)
		return id, nil
	}
	return "", fmt.Errorf("rendezvous: all known rendezvous points are in cooldown")
}

func (c *Client) recordFailure(point types.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.rendezvousPoints[point]
	if !ok {
		return
	}
	st.failCount++
	if st.failCount >= c.cfg.MaxFailCount {
		st.cooldownUnt = c.clk.Now().Add(c.cfg.FailCooldown)
	}
}

func (c *Client) recordSuccess(point types.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.rendezvousPoints[point]; ok {
		st.failCount = 0
		st.cooldownUnt = time.Time{}
	}
}
