package rendezvous

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/rendezvous/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rendezvous.db")
	store, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRegisterThenGet(t *testing.T) {
	store := openTestStore(t)
	id := NewNodeIdentifier(types.PeerID("peer-a"), "ns")
	addrs := []types.Multiaddr{}

	reg, err := store.Register(id, addrs, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, id.Key(), reg.Key())

	got, err := store.Get(id.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id.PeerID, got.Identity.PeerID)
}

func TestGetMissingReturnsNilNotError(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Get("ns/default/nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReRegisterReplacesSingleExpiryEntry(t *testing.T) {
	store := openTestStore(t)
	id := NewNodeIdentifier(types.PeerID("peer-a"), "ns")

	_, err := store.Register(id, nil, time.Minute)
	require.NoError(t, err)
	_, err = store.Register(id, nil, time.Minute)
	require.NoError(t, err)

	// Only one registration should be expirable for this key: Poll with a
	// maxTTL of zero should surface it exactly once.
	reg, err := store.Poll(0)
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Equal(t, id.Key(), reg.Key())

	reg, err = store.Poll(0)
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestDeregisterRemovesRegistrationAndExpiry(t *testing.T) {
	store := openTestStore(t)
	id := NewNodeIdentifier(types.PeerID("peer-a"), "ns")
	_, err := store.Register(id, nil, time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Deregister(id))

	got, err := store.Get(id.Key())
	require.NoError(t, err)
	assert.Nil(t, got)

	reg, err := store.Poll(0)
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestDeregisterTolerantOfMissingEntry(t *testing.T) {
	store := openTestStore(t)
	id := NewNodeIdentifier(types.PeerID("ghost"), "ns")
	assert.NoError(t, store.Deregister(id))
}

func TestDiscoverExcludesSelf(t *testing.T) {
	store := openTestStore(t)
	self := NewNodeIdentifier(types.PeerID("peer-a"), "ns").WithDiscoverability(Namespace)
	_, err := store.Register(self, nil, time.Minute)
	require.NoError(t, err)

	results, err := store.Discover(self, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDiscoverDirectNeverReturned(t *testing.T) {
	store := openTestStore(t)
	requester := NewNodeIdentifier(types.PeerID("peer-a"), "ns")
	hidden := NewNodeIdentifier(types.PeerID("peer-b"), "ns").WithDiscoverability(Direct)
	_, err := store.Register(hidden, nil, time.Minute)
	require.NoError(t, err)

	results, err := store.Discover(requester, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDiscoverNamespaceVisibleToAll(t *testing.T) {
	store := openTestStore(t)
	requester := NewNodeIdentifier(types.PeerID("peer-a"), "ns")
	visible := NewNodeIdentifier(types.PeerID("peer-b"), "ns").WithDiscoverability(Namespace)
	_, err := store.Register(visible, nil, time.Minute)
	require.NoError(t, err)

	results, err := store.Discover(requester, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, visible.PeerID, results[0].Identity.PeerID)
}

func TestDiscoverGroupFiltersByRequesterGroup(t *testing.T) {
	store := openTestStore(t)
	requester := NewNodeIdentifier(types.PeerID("peer-a"), "ns").WithGroup("red")
	sameGroup := NewNodeIdentifier(types.PeerID("peer-b"), "ns").WithGroup("red").WithDiscoverability(Group)
	otherGroup := NewNodeIdentifier(types.PeerID("peer-c"), "ns").WithGroup("blue").WithDiscoverability(Group)

	_, err := store.Register(sameGroup, nil, time.Minute)
	require.NoError(t, err)
	_, err = store.Register(otherGroup, nil, time.Minute)
	require.NoError(t, err)

	results, err := store.Discover(requester, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, sameGroup.PeerID, results[0].Identity.PeerID)
}

func TestDiscoverNamespacePrefixDoesNotLeakAcrossNamespaces(t *testing.T) {
	store := openTestStore(t)
	requester := NewNodeIdentifier(types.PeerID("peer-a"), "ns-1")
	other := NewNodeIdentifier(types.PeerID("peer-b"), "ns-10").WithDiscoverability(Namespace)
	_, err := store.Register(other, nil, time.Minute)
	require.NoError(t, err)

	results, err := store.Discover(requester, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGroupsEnumeratesDistinctSortedGroups(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Register(NewNodeIdentifier(types.PeerID("peer-a"), "ns").WithGroup("zeta"), nil, time.Minute)
	require.NoError(t, err)
	_, err = store.Register(NewNodeIdentifier(types.PeerID("peer-b"), "ns").WithGroup("alpha"), nil, time.Minute)
	require.NoError(t, err)
	_, err = store.Register(NewNodeIdentifier(types.PeerID("peer-c"), "ns").WithGroup("alpha"), nil, time.Minute)
	require.NoError(t, err)

	groups, err := store.Groups("ns")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, groups)
}

func TestPollReturnsNilWhenNothingExpired(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Register(NewNodeIdentifier(types.PeerID("peer-a"), "ns"), nil, time.Hour)
	require.NoError(t, err)

	reg, err := store.Poll(time.Hour)
	require.NoError(t, err)
	assert.Nil(t, reg)
}

func TestExpiryKeyOrderingIsChronological(t *testing.T) {
	early := time.Unix(9, 0)
	late := time.Unix(10, 0)
	assert.Less(t, expiryKey(early, "k"), expiryKey(late, "k"))
}
