package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	machinestatus "factory-monitor/internal/machinestatus/domain"
)

const (
	defaultLogsTable     = "machine_logs"
	defaultMachinesTable = "machines"
)

// EventStore reads and writes the machine status log.
type EventStore struct {
	db            *sql.DB
	logsTable     string
	machinesTable string
}

// EventStoreOption configures the store.
type EventStoreOption func(*EventStore)

// WithLogsTable overrides the status log table name.
func WithLogsTable(table string) EventStoreOption {
	return func(s *EventStore) {
		if table != "" {
			s.logsTable = table
		}
	}
}

// WithStatusTable overrides the table holding the stored machine status.
func WithStatusTable(table string) EventStoreOption {
	return func(s *EventStore) {
		if table != "" {
			s.machinesTable = table
		}
	}
}

// NewEventStore constructs a store.
func NewEventStore(db *sql.DB, opts ...EventStoreOption) *EventStore {
	store := &EventStore{db: db, logsTable: defaultLogsTable, machinesTable: defaultMachinesTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// EventsInRange returns events with start <= ts < end, ascending.
func (s *EventStore) EventsInRange(ctx context.Context, machineID int64, start, end time.Time) ([]machinestatus.StatusEvent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("event store: nil db")
	}
	if machineID <= 0 {
		return nil, machinestatus.ErrInvalidMachineID
	}

	query := fmt.Sprintf(`
SELECT machine_id, status, log_time
FROM %s
WHERE machine_id = $1 AND log_time >= $2 AND log_time < $3
ORDER BY log_time ASC`, s.logsTable)

	rows, err := s.db.QueryContext(ctx, query, machineID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]machinestatus.StatusEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LastEventAtOrBefore returns the newest event with ts <= at.
func (s *EventStore) LastEventAtOrBefore(ctx context.Context, machineID int64, at time.Time) (machinestatus.StatusEvent, bool, error) {
	if s == nil || s.db == nil {
		return machinestatus.StatusEvent{}, false, errors.New("event store: nil db")
	}
	if machineID <= 0 {
		return machinestatus.StatusEvent{}, false, machinestatus.ErrInvalidMachineID
	}

	query := fmt.Sprintf(`
SELECT machine_id, status, log_time
FROM %s
WHERE machine_id = $1 AND log_time <= $2
ORDER BY log_time DESC
LIMIT 1`, s.logsTable)

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, machineID, at.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return machinestatus.StatusEvent{}, false, nil
		}
		return machinestatus.StatusEvent{}, false, err
	}
	return event, true, nil
}

// CurrentStoredStatus returns the status column of the machine row.
func (s *EventStore) CurrentStoredStatus(ctx context.Context, machineID int64) (machinestatus.Status, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errors.New("event store: nil db")
	}

	query := fmt.Sprintf(`
SELECT COALESCE(status, '')
FROM %s
WHERE id = $1
LIMIT 1`, s.machinesTable)

	var raw string
	if err := s.db.QueryRowContext(ctx, query, machineID).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	status := machinestatus.ParseStatus(raw)
	if status.IsZero() {
		return "", false, nil
	}
	return status, true, nil
}

// InsertEvents stores events in one transaction. Duplicates of
// (machine, time, status) are skipped. The stored status of every touched
// machine is refreshed from its newest event.
func (s *EventStore) InsertEvents(ctx context.Context, events []machinestatus.StatusEvent) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("event store: nil db")
	}
	for _, e := range events {
		if err := e.Validate(); err != nil {
			return 0, err
		}
	}
	if len(events) == 0 {
		return 0, nil
	}

	insert := fmt.Sprintf(`
INSERT INTO %s (machine_id, status, log_time)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`, s.logsTable)
	refresh := fmt.Sprintf(`
UPDATE %s
SET status = (
	SELECT l.status FROM %s l
	WHERE l.machine_id = %s.id
	ORDER BY l.log_time DESC
	LIMIT 1
)
WHERE id = $1`, s.machinesTable, s.logsTable, s.machinesTable)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	inserted := 0
	touched := make([]int64, 0)
	seen := make(map[int64]struct{})
	for _, e := range events {
		res, err := tx.ExecContext(ctx, insert, e.MachineID, string(e.Status), e.Timestamp.UTC())
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
		if _, ok := seen[e.MachineID]; !ok {
			seen[e.MachineID] = struct{}{}
			touched = append(touched, e.MachineID)
		}
	}
	for _, id := range touched {
		if _, err := tx.ExecContext(ctx, refresh, id); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (machinestatus.StatusEvent, error) {
	var (
		event  machinestatus.StatusEvent
		status string
	)
	if err := row.Scan(&event.MachineID, &status, &event.Timestamp); err != nil {
		return machinestatus.StatusEvent{}, err
	}
	event.Status = machinestatus.ParseStatus(status)
	event.Timestamp = event.Timestamp.UTC()
	return event, nil
}
