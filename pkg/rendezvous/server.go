package rendezvous

import (
	"context"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/rendezvous/internal/util/logger"
	"github.com/dep2p/rendezvous/pkg/types"
)

// ServerEventKind discriminates Server observational events. Events never
// drive protocol behavior; they exist for logging and metrics.
type ServerEventKind int

const (
	EvCreatedRegistration ServerEventKind = iota
	EvRemovedRegistration
	EvExpiredRegistration
	EvRegistrationFailure
	EvDeregistrationFailure
	EvServedDiscovery
	EvFailedDiscovery
	EvServedFind
	EvFailedFind
	EvServedGroups
	EvFailedGroups
)

func (k ServerEventKind) String() string {
	switch k {
	case EvCreatedRegistration:
		return "created_registration"
	case EvRemovedRegistration:
		return "removed_registration"
	case EvExpiredRegistration:
		return "expired_registration"
	case EvRegistrationFailure:
		return "registration_failure"
	case EvDeregistrationFailure:
		return "deregistration_failure"
	case EvServedDiscovery:
		return "served_discovery"
	case EvFailedDiscovery:
		return "failed_discovery"
	case EvServedFind:
		return "served_find"
	case EvFailedFind:
		return "failed_find"
	case EvServedGroups:
		return "served_groups"
	case EvFailedGroups:
		return "failed_groups"
	default:
		return "unknown"
	}
}

// ServerEvent is one observational event emitted by the server.
type ServerEvent struct {
	Kind         ServerEventKind
	Source       types.PeerID
	Namespace    string
	Group        string
	ResultsCount int
	Registration *Registration
	Err          error
}

var serverEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rendezvous_server_events_total",
		Help: "Count of observational events emitted by the rendezvous server, by kind.",
	},
	[]string{"event"},
)

func init() {
	prometheus.MustRegister(serverEventsTotal)
}

// Server composes a Transport with a Store and a periodic bounded expiry
// sweep, translating inbound requests into store operations and emitting
// one observational event per handled request or sweep eviction.
type Server struct {
	cfg       ServerConfig
	store     *Store
	transport Transport
	clock     clock.Clock
	log       *slog.Logger

	events chan ServerEvent

	closeOnce sync.Once
	done      chan struct{}
}

// NewServer opens the store at cfg.DatabasePath and wires it to transport.
func NewServer(cfg ServerConfig, transport Transport) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := OpenStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		transport: transport,
		clock:     clock.New(),
		log:       logger.Logger("server"),
		events:    make(chan ServerEvent, 64),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of observational events. Emission never
// blocks: when the channel's 64-event buffer is full, the event is dropped
// and a warning is logged (the Prometheus counter is still incremented).
func (s *Server) Events() <-chan ServerEvent { return s.events }

// Store exposes the underlying registration store, e.g. for an operator
// tool to inspect state directly.
func (s *Server) Store() *Store { return s.store }

// Run drives the server's event loop until ctx is canceled: it services
// inbound requests from transport and periodically sweeps the expiry
// index. It does not return until ctx is done or the transport closes.
func (s *Server) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.cfg.ExpirySweepInterval)
	defer ticker.Stop()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep()
		case req, ok := <-s.transport.Requests():
			if !ok {
				return nil
			}
			s.handleRequest(req)
		}
	}
}

// Close stops accepting new work; Run's ctx cancellation is the primary
// shutdown path, this additionally closes the transport.
func (s *Server) Close() error {
	err := s.transport.Close()
	storeErr := s.store.Close()
	if err != nil {
		return err
	}
	return storeErr
}

func (s *Server) emit(ev ServerEvent) {
	serverEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
	select {
	case s.events <- ev:
	default:
		s.log.Warn("dropping server event, consumer too slow", "kind", ev.Kind.String())
	}
}

// sweep drains up to ExpirySweepBatch expired entries per tick so a long
// gap since the last sweep can't stall the request pipeline, but still
// bounds per-tick latency.
func (s *Server) sweep() {
	for i := 0; i < s.cfg.ExpirySweepBatch; i++ {
		reg, err := s.store.Poll(s.cfg.MaxLifetime)
		if err != nil {
			s.log.Warn("expiry sweep failed", "error", err)
			return
		}
		if reg == nil {
			return
		}
		s.log.Debug("registration expired", "key", reg.Key())
		r := *reg
		s.emit(ServerEvent{Kind: EvExpiredRegistration, Source: reg.Identity.PeerID, Registration: &r})
	}
	s.log.Debug("expiry sweep hit per-tick batch bound, more work remains", "batch", s.cfg.ExpirySweepBatch)
}

func (s *Server) handleRequest(ir InboundRequest) {
	req := ir.Request
	switch req.Command.Kind {
	case CmdRegister:
		s.handleRegister(ir)
	case CmdDeregister:
		s.handleDeregister(ir)
	case CmdDiscover:
		s.handleDiscover(ir)
	case CmdFind:
		s.handleFind(ir)
	case CmdGroups:
		s.handleGroups(ir)
	}
}

func (s *Server) handleRegister(ir InboundRequest) {
	req := ir.Request
	reg, err := s.store.Register(req.Source, req.Command.RegisterAddresses, s.cfg.MaxLifetime)
	if err != nil {
		s.emit(ServerEvent{Kind: EvRegistrationFailure, Source: req.Source.PeerID, Err: err})
		s.reply(ir, RendezvousResponse{Kind: CmdRegister, Err: toRendezvousError(err)})
		return
	}
	s.emit(ServerEvent{Kind: EvCreatedRegistration, Source: req.Source.PeerID, Registration: &reg})
	s.reply(ir, RendezvousResponse{Kind: CmdRegister, RegisterExpiration: reg.Expiration()})
}

func (s *Server) handleDeregister(ir InboundRequest) {
	req := ir.Request
	if err := s.store.Deregister(req.Source); err != nil {
		s.emit(ServerEvent{Kind: EvDeregistrationFailure, Source: req.Source.PeerID, Err: err})
		s.reply(ir, RendezvousResponse{Kind: CmdDeregister, Err: toRendezvousError(err)})
		return
	}
	s.emit(ServerEvent{Kind: EvRemovedRegistration, Source: req.Source.PeerID})
	s.reply(ir, RendezvousResponse{Kind: CmdDeregister})
}

func (s *Server) handleDiscover(ir InboundRequest) {
	req := ir.Request
	results, err := s.store.Discover(req.Source, req.Command.DiscoverGroup)
	if err != nil {
		s.emit(ServerEvent{Kind: EvFailedDiscovery, Source: req.Source.PeerID, Namespace: req.Source.Namespace(), Err: err})
		s.reply(ir, RendezvousResponse{Kind: CmdDiscover, Err: toRendezvousError(err)})
		return
	}
	group := ""
	if req.Command.DiscoverGroup != nil {
		group = *req.Command.DiscoverGroup
	}
	s.emit(ServerEvent{
		Kind: EvServedDiscovery, Source: req.Source.PeerID,
		Namespace: req.Source.Namespace(), Group: group, ResultsCount: len(results),
	})
	s.reply(ir, RendezvousResponse{Kind: CmdDiscover, DiscoverResults: results})
}

func (s *Server) handleFind(ir InboundRequest) {
	req := ir.Request
	reg, err := s.store.Get(req.Command.FindLocator)
	if err != nil {
		s.emit(ServerEvent{Kind: EvFailedFind, Source: req.Source.PeerID, Err: err})
		s.reply(ir, RendezvousResponse{Kind: CmdFind, Err: toRendezvousError(err)})
		return
	}
	s.emit(ServerEvent{Kind: EvServedFind, Source: req.Source.PeerID, Registration: reg})
	s.reply(ir, RendezvousResponse{Kind: CmdFind, FindResult: reg})
}

func (s *Server) handleGroups(ir InboundRequest) {
	req := ir.Request
	groups, err := s.store.Groups(req.Source.Namespace())
	if err != nil {
		s.emit(ServerEvent{Kind: EvFailedGroups, Source: req.Source.PeerID, Namespace: req.Source.Namespace(), Err: err})
		s.reply(ir, RendezvousResponse{Kind: CmdGroups, Err: toRendezvousError(err)})
		return
	}
	s.emit(ServerEvent{Kind: EvServedGroups, Source: req.Source.PeerID, Namespace: req.Source.Namespace(), ResultsCount: len(groups)})
	s.reply(ir, RendezvousResponse{Kind: CmdGroups, GroupsResult: groups})
}

func (s *Server) reply(ir InboundRequest, resp RendezvousResponse) {
	if err := ir.Reply(resp); err != nil {
		s.log.Warn("failed to deliver response", "peer", ir.From, "command", commandName(resp.Kind), "error", err)
	}
}

func toRendezvousError(err error) *Error {
	if rerr, ok := AsRendezvousError(err); ok {
		return rerr
	}
	return NewWrappedError(err)
}
