package rendezvous

import (
	"fmt"
	"time"

	"github.com/dep2p/rendezvous/pkg/types"
)

// ServerConfig configures a Server. Construct via DefaultServerConfig and
// refine with the fluent With* setters, matching the configuration idiom
// used throughout this codebase.
type ServerConfig struct {
	// DatabasePath is the filesystem path of the bbolt data file backing
	// the registration store.
	DatabasePath string

	// MaxLifetime bounds how long a registration survives without being
	// refreshed.
	MaxLifetime time.Duration

	// ExpirySweepInterval is how often the server polls the expiry
	// index for newly-expired registrations.
	ExpirySweepInterval time.Duration

	// ExpirySweepBatch bounds how many expired entries are drained per
	// tick, so a long gap since the last sweep can't stall the request
	// pipeline while catching up.
	ExpirySweepBatch int
}

// DefaultServerConfig returns the baseline server configuration: a 12 hour
// max lifetime and a 30 second sweep interval.
func DefaultServerConfig(databasePath string) ServerConfig {
	return ServerConfig{
		DatabasePath:        databasePath,
		MaxLifetime:         12 * time.Hour,
		ExpirySweepInterval: 30 * time.Second,
		ExpirySweepBatch:    256,
	}
}

// WithMaxLifetime returns a copy with MaxLifetime set.
func (c ServerConfig) WithMaxLifetime(d time.Duration) ServerConfig {
	c.MaxLifetime = d
	return c
}

// WithExpirySweepInterval returns a copy with ExpirySweepInterval set.
func (c ServerConfig) WithExpirySweepInterval(d time.Duration) ServerConfig {
	c.ExpirySweepInterval = d
	return c
}

// WithExpirySweepBatch returns a copy with ExpirySweepBatch set.
func (c ServerConfig) WithExpirySweepBatch(n int) ServerConfig {
	c.ExpirySweepBatch = n
	return c
}

// Validate checks the configuration is usable.
func (c ServerConfig) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("rendezvous: ServerConfig.DatabasePath must not be empty")
	}
	if c.MaxLifetime <= 0 {
		return fmt.Errorf("rendezvous: ServerConfig.MaxLifetime must be positive, got %s", c.MaxLifetime)
	}
	if c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("rendezvous: ServerConfig.ExpirySweepInterval must be positive, got %s", c.ExpirySweepInterval)
	}
	if c.ExpirySweepBatch <= 0 {
		return fmt.Errorf("rendezvous: ServerConfig.ExpirySweepBatch must be positive, got %d", c.ExpirySweepBatch)
	}
	return nil
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Identity is the local node's own identifier, used as the Source of
	// every outbound request.
	Identity NodeIdentifier

	// RendezvousServers is the set of known rendezvous-server peer
	// addresses; each must carry a peer-id component.
	RendezvousServers []types.Multiaddr

	// RegistrationBuffer is how far before the server-echoed expiration
	// the client re-registers. Defaults to 1 minute.
	RegistrationBuffer time.Duration

	// FailCooldown is how long a rendezvous point is skipped by
	// round-robin selection after crossing MaxFailCount consecutive
	// dispatch failures.
	FailCooldown time.Duration

	// MaxFailCount is the consecutive-failure threshold before a point
	// enters its cooldown window.
	MaxFailCount int
}

// DefaultClientConfig returns the baseline client configuration.
func DefaultClientConfig(identity NodeIdentifier, servers []types.Multiaddr) ClientConfig {
	return ClientConfig{
		Identity:           identity,
		RendezvousServers:  servers,
		RegistrationBuffer: time.Minute,
		FailCooldown:       5 * time.Minute,
		MaxFailCount:       3,
	}
}

// WithRegistrationBuffer returns a copy with RegistrationBuffer set.
func (c ClientConfig) WithRegistrationBuffer(d time.Duration) ClientConfig {
	c.RegistrationBuffer = d
	return c
}

// WithFailCooldown returns a copy with FailCooldown set.
func (c ClientConfig) WithFailCooldown(d time.Duration) ClientConfig {
	c.FailCooldown = d
	return c
}

// WithMaxFailCount returns a copy with MaxFailCount set.
func (c ClientConfig) WithMaxFailCount(n int) ClientConfig {
	c.MaxFailCount = n
	return c
}

// Validate checks the configuration is usable, including that every known
// rendezvous-server address carries a peer-id component (§9: address
// validation is a construction-time error, not a runtime one).
func (c ClientConfig) Validate() error {
	if c.Identity.PeerID.IsEmpty() {
		return fmt.Errorf("rendezvous: ClientConfig.Identity.PeerID must not be empty")
	}
	if c.Identity.Namespace() == "" {
		return fmt.Errorf("rendezvous: ClientConfig.Identity.NodeNamespace must not be empty")
	}
	if c.RegistrationBuffer < 0 {
		return fmt.Errorf("rendezvous: ClientConfig.RegistrationBuffer must not be negative")
	}
	for _, addr := range c.RendezvousServers {
		if _, err := types.GetPeerID(addr); err != nil {
			return NewAddressError(addr.String(), "missing peer-id component")
		}
	}
	return nil
}
