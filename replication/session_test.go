package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStoreFirstResolutionWins(t *testing.T) {
	store := NewSessionStore()
	id := DatasetID{Project: "proj", Dataset: "sales"}

	first := mustDescriptor([]string{"us-east1"}, "us-east1")
	second := mustDescriptor([]string{"us-west1"}, "us-west1")

	store.Store(id, first)
	store.Store(id, second)

	entry, ok := store.Lookup(id)
	require.True(t, ok)
	assert.True(t, first.Equal(entry.Topology))
	assert.Equal(t, 1, store.Len())
}

func TestSessionStoreMissesUnknownDataset(t *testing.T) {
	store := NewSessionStore()

	_, ok := store.Lookup(DatasetID{Project: "proj", Dataset: "sales"})
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestSessionStoreSnapshot(t *testing.T) {
	store := NewSessionStore()
	store.Store(DatasetID{Project: "proj", Dataset: "a"}, mustDescriptor([]string{"us-east1"}, ""))
	store.Store(DatasetID{Project: "proj", Dataset: "b"}, mustDescriptor([]string{"us-west1"}, ""))

	entries := store.Snapshot()
	assert.Len(t, entries, 2)

	for _, entry := range entries {
		assert.False(t, entry.ResolvedAt.IsZero())
	}
}

func TestSessionStoreIdentity(t *testing.T) {
	a := NewSessionStore()
	b := NewSessionStore()

	assert.NotEqual(t, a.ID(), b.ID())
	assert.False(t, a.StartedAt().IsZero())
}
