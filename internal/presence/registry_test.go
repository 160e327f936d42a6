package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy-chat-service/internal/models"
)

func TestRegisterIsIdempotentPerPharmacist(t *testing.T) {
	r := NewRegistry(nil)

	r.Register(models.PresenceEntry{PharmacistID: 7, DisplayName: "Dr. Singh"}, "conn-a")
	r.Register(models.PresenceEntry{PharmacistID: 7, DisplayName: "Dr. Singh"}, "conn-b")

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, 7, list[0].PharmacistID)
}

func TestListOrderedByRegistrationTime(t *testing.T) {
	r := NewRegistry(nil)

	r.Register(models.PresenceEntry{PharmacistID: 9, DisplayName: "Dr. Okafor"}, "a")
	r.Register(models.PresenceEntry{PharmacistID: 7, DisplayName: "Dr. Singh"}, "b")
	r.Register(models.PresenceEntry{PharmacistID: 3, DisplayName: "Dr. Li"}, "c")

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, []int{9, 7, 3}, []int{list[0].PharmacistID, list[1].PharmacistID, list[2].PharmacistID})
}

func TestUnregisterRemovesEntry(t *testing.T) {
	r := NewRegistry(nil)

	r.Register(models.PresenceEntry{PharmacistID: 7}, "conn-a")
	r.Unregister(7, "conn-a")

	assert.Empty(t, r.List())
	assert.False(t, r.IsOnline(7))
}

func TestStaleUnregisterCannotEvictFreshConnection(t *testing.T) {
	r := NewRegistry(nil)

	// Pharmacist reconnects before the old connection's teardown runs.
	r.Register(models.PresenceEntry{PharmacistID: 7}, "conn-old")
	r.Register(models.PresenceEntry{PharmacistID: 7}, "conn-new")
	r.Unregister(7, "conn-old")

	assert.True(t, r.IsOnline(7))

	// The owning connection's disconnect still wins.
	r.Unregister(7, "conn-new")
	assert.False(t, r.IsOnline(7))
}

func TestEntrySurvivesUntilLastConnectionCloses(t *testing.T) {
	r := NewRegistry(nil)

	// Two tabs of the same pharmacist.
	r.Register(models.PresenceEntry{PharmacistID: 7}, "tab-a")
	r.Register(models.PresenceEntry{PharmacistID: 7}, "tab-b")

	// Closing the newer tab must not take presence down while the older
	// connection is still open.
	r.Unregister(7, "tab-b")
	assert.True(t, r.IsOnline(7))
	require.Len(t, r.List(), 1)

	r.Unregister(7, "tab-a")
	assert.False(t, r.IsOnline(7))
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	var snapshots [][]models.PresenceEntry
	r := NewRegistry(func(snapshot []models.PresenceEntry) {
		snapshots = append(snapshots, snapshot)
	})

	r.Register(models.PresenceEntry{PharmacistID: 7}, "a")
	r.Register(models.PresenceEntry{PharmacistID: 9}, "b")
	r.Unregister(7, "a")

	require.Len(t, snapshots, 3)
	assert.Len(t, snapshots[0], 1)
	assert.Len(t, snapshots[1], 2)
	require.Len(t, snapshots[2], 1)
	assert.Equal(t, 9, snapshots[2][0].PharmacistID)
}

func TestEmptyRegistryListsEmpty(t *testing.T) {
	r := NewRegistry(nil)
	assert.Empty(t, r.List())
}
