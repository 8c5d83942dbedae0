package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	machinestatus "factory-monitor/internal/machinestatus/domain"
)

var t0 = time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)

func TestStore_InsertIsIdempotentAndRefreshesStatus(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.PutMachine(machinestatus.Machine{ID: 1, Name: "CNC-01", Status: machinestatus.StatusStop}))

	events := []machinestatus.StatusEvent{
		{MachineID: 1, Status: machinestatus.StatusError, Timestamp: t0.Add(30 * time.Minute)},
		{MachineID: 1, Status: machinestatus.StatusRun, Timestamp: t0},
	}
	inserted, err := store.InsertEvents(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	inserted, err = store.InsertEvents(ctx, events)
	require.NoError(t, err)
	assert.Zero(t, inserted)

	status, ok, err := store.CurrentStoredStatus(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, machinestatus.StatusError, status)

	got, err := store.EventsInRange(ctx, 1, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, machinestatus.StatusRun, got[0].Status)
}

func TestStore_InsertRejectsInvalidEvent(t *testing.T) {
	store := NewStore()
	_, err := store.InsertEvents(context.Background(), []machinestatus.StatusEvent{
		{MachineID: 1, Status: machinestatus.StatusRun, Timestamp: t0},
		{MachineID: 1, Timestamp: t0},
	})
	require.ErrorIs(t, err, machinestatus.ErrInvalidEvent)

	got, err := store.EventsInRange(context.Background(), 1, t0.Add(-time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got, "a rejected batch stores nothing")
}

func TestStore_RangeIsHalfOpenAndLastEventInclusive(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, err := store.InsertEvents(ctx, []machinestatus.StatusEvent{
		{MachineID: 2, Status: machinestatus.StatusRun, Timestamp: t0},
		{MachineID: 2, Status: machinestatus.StatusStop, Timestamp: t0.Add(time.Hour)},
	})
	require.NoError(t, err)

	got, err := store.EventsInRange(ctx, 2, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)

	last, ok, err := store.LastEventAtOrBefore(ctx, 2, t0.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, machinestatus.StatusStop, last.Status)

	_, ok, err = store.LastEventAtOrBefore(ctx, 2, t0.Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.CurrentStoredStatus(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok, "events for uncatalogued machines do not create catalogue entries")
}

func TestStore_CatalogQueries(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, SeedDemo(ctx, store, t0))

	all, err := store.List(ctx, machinestatus.MachineFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].ID)

	cnc, err := store.List(ctx, machinestatus.MachineFilter{Type: "CNC"})
	require.NoError(t, err)
	assert.Len(t, cnc, 2)

	lineB, err := store.List(ctx, machinestatus.MachineFilter{Group: "Line B", Type: "CNC"})
	require.NoError(t, err)
	require.Len(t, lineB, 1)
	assert.Equal(t, "CNC-02", lineB[0].Name)

	types, err := store.ListTypes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CNC", "Press"}, types)

	missing, err := store.Get(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	machine, err := store.Get(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, machine)
	assert.False(t, machine.Status.IsZero(), "seeding refreshes the stored status")
}

func TestStore_MachineInfo(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	empty, err := store.GetInfo(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), empty.MachineID)
	assert.Empty(t, empty.Manufacturer)
	assert.Nil(t, empty.LastMaintenance)
	assert.NotNil(t, empty.RecentErrorCodes)

	started := t0.AddDate(-3, 0, 0)
	require.NoError(t, store.SaveInfo(ctx, machinestatus.MachineInfo{MachineID: 7, Manufacturer: " Okuma ", StartDate: &started}))
	require.NoError(t, store.SaveInfo(ctx, machinestatus.MachineInfo{MachineID: 7, Manufacturer: "Okuma", ContactPerson: "Shift lead", StartDate: &started}))
	require.NoError(t, store.RecordMaintenance(ctx, 7, t0.AddDate(0, -2, 0)))
	require.NoError(t, store.RecordMaintenance(ctx, 7, t0.AddDate(0, -1, 0)))
	require.NoError(t, store.RecordMaintenance(ctx, 7, t0.AddDate(0, -6, 0)))
	for i := 0; i < 7; i++ {
		require.NoError(t, store.RecordErrorCode(ctx, 7, fmt.Sprintf("E%d", i), t0.Add(time.Duration(i)*time.Hour)))
	}

	info, err := store.GetInfo(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Okuma", info.Manufacturer)
	assert.Equal(t, "Shift lead", info.ContactPerson)
	require.NotNil(t, info.StartDate)
	assert.Equal(t, time.Date(2021, time.March, 4, 0, 0, 0, 0, time.UTC), *info.StartDate)
	require.NotNil(t, info.LastMaintenance)
	assert.True(t, info.LastMaintenance.Equal(t0.AddDate(0, -1, 0)))
	assert.Equal(t, []string{"E6", "E5", "E4", "E3", "E2"}, info.RecentErrorCodes, "newest five first")

	assert.ErrorIs(t, store.SaveInfo(ctx, machinestatus.MachineInfo{}), machinestatus.ErrInvalidMachineID)
	_, err = store.GetInfo(ctx, 0)
	assert.ErrorIs(t, err, machinestatus.ErrInvalidMachineID)
}

func TestSeedDemo_FillsInfoSheet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, SeedDemo(ctx, store, t0))

	info, err := store.GetInfo(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Fanuc", info.Manufacturer)
	assert.NotNil(t, info.LastMaintenance)
	assert.Equal(t, []string{"E101", "E204", "E101"}, info.RecentErrorCodes)
}
