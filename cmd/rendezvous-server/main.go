// Package main provides a standalone rendezvous server binary.
//
// Usage:
//
//	go run . -addr :4853 -db /var/lib/rendezvous/server.db
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dep2p/rendezvous/internal/transport/framing"
	"github.com/dep2p/rendezvous/internal/util/logger"
	"github.com/dep2p/rendezvous/pkg/rendezvous"
	"github.com/dep2p/rendezvous/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", ":4853", "TCP listen address")
	dbPath := flag.String("db", "rendezvous.db", "bbolt database file path")
	maxLifetime := flag.Duration("max-lifetime", 12*time.Hour, "max registration lifetime before sweep eviction")
	sweepInterval := flag.Duration("sweep-interval", 30*time.Second, "expiry sweep tick interval")
	identitySeed := flag.String("identity-seed", "", "fixed seed for the server's peer identity; random if empty")
	flag.Parse()

	peerID, err := serverIdentity(*identitySeed)
	if err != nil {
		return fmt.Errorf("derive server identity: %w", err)
	}

	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║              Rendezvous Server                        ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		fmt.Printf("\nreceived signal %v, shutting down...\n", sig)
		cancel()
	}()

	transport, err := framing.Listen(peerID, *addr)
	if err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	defer transport.Close()

	cfg := rendezvous.DefaultServerConfig(*dbPath).
		WithMaxLifetime(*maxLifetime).
		WithExpirySweepInterval(*sweepInterval)

	server, err := rendezvous.NewServer(cfg, transport)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	defer server.Close()

	printServerInfo(peerID, transport, *dbPath)

	log := logger.Logger("cmd/rendezvous-server")
	go logEvents(ctx, server, log)

	if err := server.Run(ctx); err != nil && err != context.Canceled {
		return err
	}

	fmt.Println("\nrendezvous server stopped")
	return nil
}

// serverIdentity derives a stable PeerID from seed, or a fresh random one
// if seed is empty. This binary has no durable keypair management of its
// own; a production deployment derives identity from the surrounding
// node's existing key material instead.
func serverIdentity(seed string) (types.PeerID, error) {
	var key []byte
	if seed != "" {
		sum := sha256.Sum256([]byte(seed))
		key = sum[:]
	} else {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return types.EmptyPeerID, err
		}
	}
	return types.PeerIDFromPublicKey(key)
}

func printServerInfo(peerID types.PeerID, transport *framing.TCPTransport, dbPath string) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║                   Server Info                         ║")
	fmt.Println("╠══════════════════════════════════════════════════════╣")
	fmt.Printf("║ Peer ID: %s\n", peerID.ShortString())
	fmt.Printf("║ Database: %s\n", dbPath)
	fmt.Println("║ Listen addresses:")
	for _, a := range transport.LocalAddresses() {
		fmt.Printf("║   %s\n", a)
	}
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("waiting for client connections, press Ctrl+C to stop")
}

func logEvents(ctx context.Context, server *rendezvous.Server, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-server.Events():
			if !ok {
				return
			}
			if ev.Err != nil {
				log.Warn("rendezvous event", "kind", ev.Kind.String(), "source", ev.Source.ShortString(), "error", ev.Err)
				continue
			}
			log.Debug("rendezvous event", "kind", ev.Kind.String(), "source", ev.Source.ShortString(), "results", ev.ResultsCount)
		}
	}
}
