package rendezvous

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/rendezvous/pkg/types"
)

func TestNewNodeIdentifierDefaults(t *testing.T) {
	id := NewNodeIdentifier(types.PeerID("peer-a"), "ns")
	assert.Equal(t, DefaultGroup, id.GroupOrDefault())
	assert.Equal(t, Direct, id.Discoverability)
	assert.Equal(t, "ns/default/peer-a", id.Key())
}

func TestWithGroupEmptyResetsToDefault(t *testing.T) {
	id := NewNodeIdentifier(types.PeerID("peer-a"), "ns").WithGroup("blue")
	assert.Equal(t, "blue", id.GroupOrDefault())
	id = id.WithGroup("")
	assert.Equal(t, DefaultGroup, id.GroupOrDefault())
}

func TestWithMetaIsImmutableCopy(t *testing.T) {
	base := NewNodeIdentifier(types.PeerID("peer-a"), "ns")
	withMeta := base.WithMeta("role", StringValue("worker"))

	assert.Nil(t, base.Metadata)
	v, ok := withMeta.Meta("role")
	assert.True(t, ok)
	assert.Equal(t, "worker", v.Str)
}

func TestSortedMetaKeysIsDeterministic(t *testing.T) {
	id := NewNodeIdentifier(types.PeerID("peer-a"), "ns").
		WithMeta("zeta", IntValue(1)).
		WithMeta("alpha", BoolValue(true)).
		WithMeta("mid", BytesValue([]byte{1, 2}))

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, id.SortedMetaKeys())
}

func TestKeyIncludesGroupAndPeer(t *testing.T) {
	id := NewNodeIdentifier(types.PeerID("peer-b"), "game").WithGroup("red")
	assert.Equal(t, "game/red/peer-b", id.Key())
}

func TestDiscoverabilityString(t *testing.T) {
	assert.Equal(t, "direct", Direct.String())
	assert.Equal(t, "namespace", Namespace.String())
	assert.Equal(t, "group", Group.String())
}
