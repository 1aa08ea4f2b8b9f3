// Package rendezvous implements a peer rendezvous and discovery service:
// durable server-side registration storage, a wire protocol for
// register/deregister/discover/find/groups, and a client-side state
// machine that keeps registrations refreshed and caches discovered peers.
package rendezvous

import (
	"fmt"
	"sort"

	"github.com/dep2p/rendezvous/pkg/types"
)

// Discoverability controls how aggressively a registration is surfaced to
// other peers via Discover.
type Discoverability int

const (
	// Direct entries are never returned by Discover; only exact Find
	// retrieves them. This is the zero value, matching the identity
	// model this was ported from: a freshly built identity is
	// "listed but unlisted" until the caller opts into broader visibility.
	Direct Discoverability = iota
	// Namespace entries are returned to any requester in the same namespace.
	Namespace
	// Group entries are returned only to requesters in the same group.
	Group
)

// String renders the discoverability mode for logging.
func (d Discoverability) String() string {
	switch d {
	case Direct:
		return "direct"
	case Namespace:
		return "namespace"
	case Group:
		return "group"
	default:
		return fmt.Sprintf("discoverability(%d)", int(d))
	}
}

// DefaultGroup is used whenever an identity omits a group.
const DefaultGroup = "default"

// ValueKind tags the type carried by a metadata Value.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueInt
	ValueBool
	ValueBytes
)

// Value is a self-describing metadata value. The rendezvous layer never
// interprets its contents; it only round-trips it through the wire codec.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Bool  bool
	Bytes []byte
}

// StringValue constructs a string-typed metadata Value.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// IntValue constructs an int-typed metadata Value.
func IntValue(v int64) Value { return Value{Kind: ValueInt, Int: v} }

// BoolValue constructs a bool-typed metadata Value.
func BoolValue(v bool) Value { return Value{Kind: ValueBool, Bool: v} }

// BytesValue constructs a bytes-typed metadata Value.
func BytesValue(b []byte) Value { return Value{Kind: ValueBytes, Bytes: b} }

// NodeIdentifier is a peer's identity as known to the rendezvous layer:
// its id, the namespace/group it belongs to, an optional human-readable
// alias, opaque metadata, and its discoverability mode.
type NodeIdentifier struct {
	PeerID          types.PeerID
	NodeNamespace   string
	NodeGroup       string
	Alias           string
	Metadata        map[string]Value
	Discoverability Discoverability
}

// NewNodeIdentifier constructs an identity defaulting Group to "default"
// and Discoverability to Direct.
func NewNodeIdentifier(peerID types.PeerID, namespace string) NodeIdentifier {
	return NodeIdentifier{
		PeerID:        peerID,
		NodeNamespace: namespace,
		NodeGroup:     DefaultGroup,
	}
}

// WithGroup returns a copy with the group set. An empty string resets to
// the default group.
func (n NodeIdentifier) WithGroup(group string) NodeIdentifier {
	if group == "" {
		group = DefaultGroup
	}
	n.NodeGroup = group
	return n
}

// WithAlias returns a copy with the alias set.
func (n NodeIdentifier) WithAlias(alias string) NodeIdentifier {
	n.Alias = alias
	return n
}

// WithDiscoverability returns a copy with the discoverability mode set.
func (n NodeIdentifier) WithDiscoverability(d Discoverability) NodeIdentifier {
	n.Discoverability = d
	return n
}

// WithMeta returns a copy with the given metadata key set.
func (n NodeIdentifier) WithMeta(key string, v Value) NodeIdentifier {
	m := make(map[string]Value, len(n.Metadata)+1)
	for k, val := range n.Metadata {
		m[k] = val
	}
	m[key] = v
	n.Metadata = m
	return n
}

// Namespace returns the identity's namespace.
func (n NodeIdentifier) Namespace() string { return n.NodeNamespace }

// GroupOrDefault returns the identity's group, defaulting to "default".
func (n NodeIdentifier) GroupOrDefault() string {
	if n.NodeGroup == "" {
		return DefaultGroup
	}
	return n.NodeGroup
}

// Key returns the locator key: "<namespace>/<group>/<peer_id>".
func (n NodeIdentifier) Key() string {
	return n.NodeNamespace + "/" + n.GroupOrDefault() + "/" + string(n.PeerID)
}

// Meta looks up a metadata value by key.
func (n NodeIdentifier) Meta(key string) (Value, bool) {
	v, ok := n.Metadata[key]
	return v, ok
}

// SortedMetaKeys returns metadata keys in deterministic order, used by the
// wire codec so encoding is stable across calls.
func (n NodeIdentifier) SortedMetaKeys() []string {
	keys := make([]string, 0, len(n.Metadata))
	for k := range n.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// namespacePrefix returns "<namespace>/" for prefix scans.
func namespacePrefix(namespace string) string {
	return namespace + "/"
}

// namespaceGroupPrefix returns "<namespace>/<group>/" for prefix scans.
func namespaceGroupPrefix(namespace, group string) string {
	return namespace + "/" + group + "/"
}
