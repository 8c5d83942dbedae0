package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	machinestatus "factory-monitor/internal/machinestatus/domain"
)

type eventKey struct {
	machineID int64
	ts        int64
	status    machinestatus.Status
}

type errorRecord struct {
	code string
	at   time.Time
}

// Store is an in-memory machine catalogue and status log for demo/testing.
// It implements EventSource, EventWriter, MachineCatalog and MachineInfoStore.
type Store struct {
	mu          sync.RWMutex
	machines    map[int64]machinestatus.Machine
	events      map[int64][]machinestatus.StatusEvent
	seen        map[eventKey]struct{}
	infos       map[int64]machinestatus.MachineInfo
	maintenance map[int64][]time.Time
	errorCodes  map[int64][]errorRecord
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		machines:    make(map[int64]machinestatus.Machine),
		events:      make(map[int64][]machinestatus.StatusEvent),
		seen:        make(map[eventKey]struct{}),
		infos:       make(map[int64]machinestatus.MachineInfo),
		maintenance: make(map[int64][]time.Time),
		errorCodes:  make(map[int64][]errorRecord),
	}
}

// PutMachine adds or replaces a catalogue entry.
func (s *Store) PutMachine(machine machinestatus.Machine) error {
	if machine.ID <= 0 {
		return machinestatus.ErrInvalidMachineID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machines[machine.ID] = machine
	return nil
}

// InsertEvents appends events, ignoring duplicates, and refreshes the stored
// status of each touched machine from its newest event.
func (s *Store) InsertEvents(ctx context.Context, events []machinestatus.StatusEvent) (int, error) {
	_ = ctx
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	touched := make(map[int64]struct{})
	for _, e := range events {
		e.Timestamp = e.Timestamp.UTC()
		key := eventKey{machineID: e.MachineID, ts: e.Timestamp.UnixNano(), status: e.Status}
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.events[e.MachineID] = append(s.events[e.MachineID], e)
		touched[e.MachineID] = struct{}{}
		inserted++
	}
	for id := range touched {
		sorted := machinestatus.SortEvents(s.events[id])
		s.events[id] = sorted
		if machine, ok := s.machines[id]; ok {
			machine.Status = sorted[len(sorted)-1].Status
			s.machines[id] = machine
		}
	}
	return inserted, nil
}

// EventsInRange returns events with start <= ts < end, ascending.
func (s *Store) EventsInRange(ctx context.Context, machineID int64, start, end time.Time) ([]machinestatus.StatusEvent, error) {
	_ = ctx
	if machineID <= 0 {
		return nil, machinestatus.ErrInvalidMachineID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[machineID]
	result := make([]machinestatus.StatusEvent, 0)
	for _, e := range stored {
		if e.Timestamp.Before(start) || !e.Timestamp.Before(end) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// LastEventAtOrBefore returns the newest event with ts <= at.
func (s *Store) LastEventAtOrBefore(ctx context.Context, machineID int64, at time.Time) (machinestatus.StatusEvent, bool, error) {
	_ = ctx
	if machineID <= 0 {
		return machinestatus.StatusEvent{}, false, machinestatus.ErrInvalidMachineID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[machineID]
	idx := sort.Search(len(stored), func(i int) bool {
		return stored[i].Timestamp.After(at)
	})
	if idx == 0 {
		return machinestatus.StatusEvent{}, false, nil
	}
	return stored[idx-1], true, nil
}

// CurrentStoredStatus returns the catalogue status of the machine.
func (s *Store) CurrentStoredStatus(ctx context.Context, machineID int64) (machinestatus.Status, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	machine, ok := s.machines[machineID]
	if !ok || machine.Status.IsZero() {
		return "", false, nil
	}
	return machine.Status, true, nil
}

// List returns machines matching the filter ordered by id.
func (s *Store) List(ctx context.Context, filter machinestatus.MachineFilter) ([]machinestatus.Machine, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]machinestatus.Machine, 0, len(s.machines))
	for _, machine := range s.machines {
		if filter.Group != "" && machine.Group != filter.Group {
			continue
		}
		if filter.Type != "" && machine.Type != filter.Type {
			continue
		}
		result = append(result, machine)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Get loads a machine by id; nil when absent.
func (s *Store) Get(ctx context.Context, id int64) (*machinestatus.Machine, error) {
	_ = ctx
	if id <= 0 {
		return nil, machinestatus.ErrInvalidMachineID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	machine, ok := s.machines[id]
	if !ok {
		return nil, nil
	}
	return &machine, nil
}

// ListTypes returns the distinct machine types, sorted.
func (s *Store) ListTypes(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	for _, machine := range s.machines {
		if machine.Type == "" {
			continue
		}
		set[machine.Type] = struct{}{}
	}
	result := make([]string, 0, len(set))
	for t := range set {
		result = append(result, t)
	}
	sort.Strings(result)
	return result, nil
}

// GetInfo returns the info sheet with the latest maintenance and the newest
// error codes first.
func (s *Store) GetInfo(ctx context.Context, machineID int64) (*machinestatus.MachineInfo, error) {
	_ = ctx
	if machineID <= 0 {
		return nil, machinestatus.ErrInvalidMachineID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := s.infos[machineID]
	info.MachineID = machineID
	if info.StartDate != nil {
		day := *info.StartDate
		info.StartDate = &day
	}
	for _, at := range s.maintenance[machineID] {
		if info.LastMaintenance == nil || at.After(*info.LastMaintenance) {
			at := at
			info.LastMaintenance = &at
		}
	}

	records := append([]errorRecord(nil), s.errorCodes[machineID]...)
	sort.SliceStable(records, func(i, j int) bool { return records[i].at.After(records[j].at) })
	if len(records) > machinestatus.RecentErrorCodeLimit {
		records = records[:machinestatus.RecentErrorCodeLimit]
	}
	info.RecentErrorCodes = make([]string, 0, len(records))
	for _, r := range records {
		info.RecentErrorCodes = append(info.RecentErrorCodes, r.code)
	}
	return &info, nil
}

// SaveInfo upserts the editable fields.
func (s *Store) SaveInfo(ctx context.Context, info machinestatus.MachineInfo) error {
	_ = ctx
	if err := info.Normalize(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos[info.MachineID] = machinestatus.MachineInfo{
		MachineID:     info.MachineID,
		Manufacturer:  info.Manufacturer,
		StartDate:     info.StartDate,
		ContactPerson: info.ContactPerson,
	}
	return nil
}

// RecordMaintenance adds a maintenance date to the history.
func (s *Store) RecordMaintenance(ctx context.Context, machineID int64, at time.Time) error {
	_ = ctx
	if machineID <= 0 {
		return machinestatus.ErrInvalidMachineID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maintenance[machineID] = append(s.maintenance[machineID], at.UTC())
	return nil
}

// RecordErrorCode adds a controller error code to the history.
func (s *Store) RecordErrorCode(ctx context.Context, machineID int64, code string, at time.Time) error {
	_ = ctx
	if machineID <= 0 {
		return machinestatus.ErrInvalidMachineID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCodes[machineID] = append(s.errorCodes[machineID], errorRecord{code: code, at: at.UTC()})
	return nil
}

// SeedDemo fills the store with three machines, a day of alternating status
// events ending at now and an info sheet for the first machine.
func SeedDemo(ctx context.Context, store *Store, now time.Time) error {
	if store == nil {
		return errors.New("memory store: nil store")
	}
	machines := []machinestatus.Machine{
		{ID: 1, Name: "CNC-01", Group: "Line A", Type: "CNC", ConnectionStatus: "ONLINE"},
		{ID: 2, Name: "Press-01", Group: "Line A", Type: "Press", ConnectionStatus: "ONLINE"},
		{ID: 3, Name: "CNC-02", Group: "Line B", Type: "CNC", ConnectionStatus: "OFFLINE"},
	}
	cycle := []machinestatus.Status{machinestatus.StatusRun, machinestatus.StatusStop, machinestatus.StatusRun, machinestatus.StatusError}
	start := now.UTC().Truncate(time.Hour).Add(-48 * time.Hour)

	for i, machine := range machines {
		if err := store.PutMachine(machine); err != nil {
			return err
		}
		var events []machinestatus.StatusEvent
		step := time.Duration(90+30*i) * time.Minute
		n := 0
		for ts := start; ts.Before(now); ts = ts.Add(step) {
			events = append(events, machinestatus.StatusEvent{
				MachineID: machine.ID,
				Status:    cycle[(n+i)%len(cycle)],
				Timestamp: ts,
			})
			n++
		}
		if _, err := store.InsertEvents(ctx, events); err != nil {
			return err
		}
	}

	commissioned := time.Date(2019, time.May, 1, 0, 0, 0, 0, time.UTC)
	if err := store.SaveInfo(ctx, machinestatus.MachineInfo{
		MachineID:     1,
		Manufacturer:  "Fanuc",
		StartDate:     &commissioned,
		ContactPerson: "Maintenance desk",
	}); err != nil {
		return err
	}
	if err := store.RecordMaintenance(ctx, 1, start.Add(-30*24*time.Hour)); err != nil {
		return err
	}
	for i, code := range []string{"E101", "E204", "E101"} {
		if err := store.RecordErrorCode(ctx, 1, code, start.Add(time.Duration(i)*6*time.Hour)); err != nil {
			return err
		}
	}
	return nil
}
