package rendezvous

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dep2p/rendezvous/internal/util/logger"
	"github.com/dep2p/rendezvous/pkg/types"
)

var storeLog = logger.Logger("store")

const (
	bucketRegistrations = "registrations"
	bucketExpirations   = "expirations"

	// timestampWidth is the zero-padded decimal width of the unix-second
	// prefix in expiry-index keys. Fixed width keeps lexicographic order
	// equal to chronological order; a bare strconv.Itoa of the timestamp
	// would not (e.g. "9:..." sorts after "10:...").
	timestampWidth = 19
)

// Store is the durable registration store: a registrations bucket keyed by
// locator key, and a parallel expirations bucket ordered for earliest-first
// scanning, both living in one bbolt environment so every public operation
// commits both in a single transaction.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (creating if absent) the bbolt-backed store at path and
// ensures both buckets exist.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, NewWrappedError(fmt.Errorf("open store: %w", err))
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketRegistrations)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(bucketExpirations))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, NewWrappedError(fmt.Errorf("init buckets: %w", err))
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return NewWrappedError(err)
	}
	return nil
}

func expiryKey(ts time.Time, locatorKey string) string {
	return fmt.Sprintf("%0*d:%s", timestampWidth, ts.Unix(), locatorKey)
}

func parseExpiryKey(k string) (int64, string, error) {
	idx := strings.IndexByte(k, ':')
	if idx < 0 {
		return 0, "", fmt.Errorf("malformed expiry key %q", k)
	}
	ts, err := strconv.ParseInt(k[:idx], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed expiry key %q: %w", k, err)
	}
	return ts, k[idx+1:], nil
}

// Register creates or refreshes the registration at node.Key(), replacing
// its addresses and discoverability/alias/metadata and resetting
// last_registration to now. The registrations and expirations buckets are
// updated atomically in one transaction (invariant 4).
func (s *Store) Register(node NodeIdentifier, addresses []types.Multiaddr, ttl time.Duration) (Registration, error) {
	if ttl <= 0 {
		return Registration{}, NewWrappedError(fmt.Errorf("ttl must be positive, got %s", ttl))
	}
	key := node.Key()
	now := time.Now().UTC()
	reg := Registration{
		Identity:         node,
		Addresses:        addresses,
		LastRegistration: now,
		TTL:              ttl,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		regs := tx.Bucket([]byte(bucketRegistrations))
		exps := tx.Bucket([]byte(bucketExpirations))

		if existing := regs.Get([]byte(key)); existing != nil {
			old, err := unmarshalRegistration(existing)
			if err != nil {
				return fmt.Errorf("decode existing registration: %w", err)
			}
			if err := exps.Delete([]byte(expiryKey(old.LastRegistration, key))); err != nil {
				return err
			}
		}

		if err := exps.Put([]byte(expiryKey(now, key)), []byte(key)); err != nil {
			return err
		}
		return regs.Put([]byte(key), marshalRegistration(reg))
	})
	if err != nil {
		return Registration{}, NewWrappedError(err)
	}
	return reg, nil
}

// Deregister removes the registration at node.Key() and its expiry entry,
// tolerating a missing entry.
func (s *Store) Deregister(node NodeIdentifier) error {
	key := node.Key()
	err := s.db.Update(func(tx *bbolt.Tx) error {
		regs := tx.Bucket([]byte(bucketRegistrations))
		exps := tx.Bucket([]byte(bucketExpirations))

		existing := regs.Get([]byte(key))
		if existing == nil {
			return nil
		}
		old, err := unmarshalRegistration(existing)
		if err != nil {
			return fmt.Errorf("decode existing registration: %w", err)
		}
		if err := exps.Delete([]byte(expiryKey(old.LastRegistration, key))); err != nil {
			return err
		}
		return regs.Delete([]byte(key))
	})
	if err != nil {
		return NewWrappedError(err)
	}
	return nil
}

// Get performs a point lookup. A nil, nil return means "not present";
// callers that must surface NotFound do so themselves (store-level misses
// are not inherently errors, see Find semantics in the server).
func (s *Store) Get(key string) (*Registration, error) {
	var out *Registration
	err := s.db.View(func(tx *bbolt.Tx) error {
		regs := tx.Bucket([]byte(bucketRegistrations))
		raw := regs.Get([]byte(key))
		if raw == nil {
			return nil
		}
		reg, err := unmarshalRegistration(raw)
		if err != nil {
			return err
		}
		out = &reg
		return nil
	})
	if err != nil {
		return nil, NewWrappedError(err)
	}
	return out, nil
}

// Discover returns registrations visible to requester, optionally narrowed
// to group, per the discoverability rules in invariant 5. The requester
// never appears in its own results.
func (s *Store) Discover(requester NodeIdentifier, group *string) ([]Registration, error) {
	prefix := namespacePrefix(requester.Namespace())
	if group != nil {
		prefix = namespaceGroupPrefix(requester.Namespace(), *group)
	}
	selfKey := requester.Key()
	requesterGroup := requester.GroupOrDefault()

	var out []Registration
	err := s.db.View(func(tx *bbolt.Tx) error {
		regs := tx.Bucket([]byte(bucketRegistrations))
		c := regs.Cursor()
		prefixBytes := []byte(prefix)
		for k, v := c.Seek(prefixBytes); k != nil && bytes.HasPrefix(k, prefixBytes); k, v = c.Next() {
			if string(k) == selfKey {
				continue
			}
			reg, err := unmarshalRegistration(v)
			if err != nil {
				return err
			}
			switch reg.Identity.Discoverability {
			case Namespace:
				out = append(out, reg)
			case Group:
				if reg.Identity.GroupOrDefault() == requesterGroup {
					out = append(out, reg)
				}
			case Direct:
				// never included
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewWrappedError(err)
	}
	return out, nil
}

// Groups enumerates the distinct non-empty group values registered under
// namespace, sorted for deterministic output.
func (s *Store) Groups(namespace string) ([]string, error) {
	prefix := []byte(namespacePrefix(namespace))
	seen := make(map[string]struct{})
	err := s.db.View(func(tx *bbolt.Tx) error {
		regs := tx.Bucket([]byte(bucketRegistrations))
		c := regs.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			reg, err := unmarshalRegistration(v)
			if err != nil {
				return err
			}
			if g := reg.Identity.GroupOrDefault(); g != "" {
				seen[g] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewWrappedError(err)
	}
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out, nil
}

// Poll returns at most one registration whose last_registration+maxTTL has
// elapsed, removing it and its expiry entry; nil, nil means nothing is
// currently expired. Designed to be called repeatedly by the server's
// bounded sweep loop.
func (s *Store) Poll(maxTTL time.Duration) (*Registration, error) {
	now := time.Now().UTC()
	var out *Registration
	err := s.db.Update(func(tx *bbolt.Tx) error {
		exps := tx.Bucket([]byte(bucketExpirations))
		regs := tx.Bucket([]byte(bucketRegistrations))
		c := exps.Cursor()
		k, v := c.First()
		if k == nil {
			return nil
		}
		ts, locatorKey, err := parseExpiryKey(string(k))
		if err != nil {
			storeLog.Warn("dropping malformed expiry entry", "key", string(k), "error", err)
			return exps.Delete(k)
		}
		if time.Unix(ts, 0).Add(maxTTL).After(now) {
			return nil // earliest entry not yet expired
		}
		raw := regs.Get(v)
		if raw == nil {
			// registration already gone; drop the dangling index entry.
			return exps.Delete(k)
		}
		reg, err := unmarshalRegistration(raw)
		if err != nil {
			return err
		}
		if err := exps.Delete(k); err != nil {
			return err
		}
		if err := regs.Delete(v); err != nil {
			return err
		}
		out = &reg
		return nil
	})
	if err != nil {
		return nil, NewWrappedError(err)
	}
	return out, nil
}
