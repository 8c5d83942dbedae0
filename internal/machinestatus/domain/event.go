package machinestatus

import (
	"context"
	"sort"
	"time"
)

// StatusEvent records that a machine switched to Status at Timestamp.
type StatusEvent struct {
	MachineID int64
	Status    Status
	Timestamp time.Time
}

// Validate checks the event can be stored.
func (e StatusEvent) Validate() error {
	if e.MachineID <= 0 {
		return ErrInvalidMachineID
	}
	if e.Status.IsZero() || e.Timestamp.IsZero() {
		return ErrInvalidEvent
	}
	return nil
}

// EventSource is the read side of the machine status log.
type EventSource interface {
	// EventsInRange returns events with start <= ts < end, ascending.
	EventsInRange(ctx context.Context, machineID int64, start, end time.Time) ([]StatusEvent, error)
	// LastEventAtOrBefore returns the newest event with ts <= at.
	LastEventAtOrBefore(ctx context.Context, machineID int64, at time.Time) (StatusEvent, bool, error)
	// CurrentStoredStatus returns the status column of the machine catalogue.
	CurrentStoredStatus(ctx context.Context, machineID int64) (Status, bool, error)
}

// EventWriter appends status events. Re-sending an event that is already
// stored is not an error; inserted counts only new rows.
type EventWriter interface {
	InsertEvents(ctx context.Context, events []StatusEvent) (inserted int, err error)
}

// Clock provides time for aggregations.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now() }

// SortEvents returns a copy of events ordered by timestamp.
// Events sharing a timestamp keep their relative order.
func SortEvents(events []StatusEvent) []StatusEvent {
	sorted := make([]StatusEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// eventsBetween returns the sub-slice of sorted events with start <= ts < end.
func eventsBetween(sorted []StatusEvent, start, end time.Time) []StatusEvent {
	lo := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(sorted), func(i int) bool {
		return !sorted[i].Timestamp.Before(end)
	})
	if hi < lo {
		hi = lo
	}
	return sorted[lo:hi]
}
