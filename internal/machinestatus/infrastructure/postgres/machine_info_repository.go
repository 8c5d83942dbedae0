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
	defaultInfoTable        = "machine_info"
	defaultMaintenanceTable = "machine_maintenance"
	defaultErrorsTable      = "machine_errors"
)

// MachineInfoRepository stores machine info sheets and reads the maintenance
// and error history they summarise.
type MachineInfoRepository struct {
	db               *sql.DB
	infoTable        string
	maintenanceTable string
	errorsTable      string
}

// NewMachineInfoRepository constructs a repository.
func NewMachineInfoRepository(db *sql.DB) *MachineInfoRepository {
	return &MachineInfoRepository{
		db:               db,
		infoTable:        defaultInfoTable,
		maintenanceTable: defaultMaintenanceTable,
		errorsTable:      defaultErrorsTable,
	}
}

// GetInfo loads the info row, the latest maintenance date and the newest
// error codes. A machine without an info row yields empty editable fields.
func (r *MachineInfoRepository) GetInfo(ctx context.Context, machineID int64) (*machinestatus.MachineInfo, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine info repo: nil db")
	}
	if machineID <= 0 {
		return nil, machinestatus.ErrInvalidMachineID
	}

	info := &machinestatus.MachineInfo{MachineID: machineID}

	var startDate sql.NullTime
	query := fmt.Sprintf(`
SELECT COALESCE(manufacturer, ''), start_date, COALESCE(contact_person, '')
FROM %s
WHERE machine_id = $1`, r.infoTable)
	err := r.db.QueryRowContext(ctx, query, machineID).Scan(&info.Manufacturer, &startDate, &info.ContactPerson)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	info.StartDate = nullableTime(startDate)

	var lastMaintenance sql.NullTime
	query = fmt.Sprintf(`
SELECT maintenance_date
FROM %s
WHERE machine_id = $1
ORDER BY maintenance_date DESC
LIMIT 1`, r.maintenanceTable)
	err = r.db.QueryRowContext(ctx, query, machineID).Scan(&lastMaintenance)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	info.LastMaintenance = nullableTime(lastMaintenance)

	query = fmt.Sprintf(`
SELECT error_code
FROM %s
WHERE machine_id = $1
ORDER BY error_time DESC
LIMIT $2`, r.errorsTable)
	rows, err := r.db.QueryContext(ctx, query, machineID, machinestatus.RecentErrorCodeLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	info.RecentErrorCodes = make([]string, 0, machinestatus.RecentErrorCodeLimit)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		info.RecentErrorCodes = append(info.RecentErrorCodes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return info, nil
}

// SaveInfo upserts the editable fields of the info row.
func (r *MachineInfoRepository) SaveInfo(ctx context.Context, info machinestatus.MachineInfo) error {
	if r == nil || r.db == nil {
		return errors.New("machine info repo: nil db")
	}
	if err := info.Normalize(); err != nil {
		return err
	}

	var startDate any
	if info.StartDate != nil {
		startDate = info.StartDate.UTC()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	machine_id,
	manufacturer,
	start_date,
	contact_person
) VALUES (
	$1, $2, $3, $4
)
ON CONFLICT (machine_id)
DO UPDATE SET
	manufacturer = EXCLUDED.manufacturer,
	start_date = EXCLUDED.start_date,
	contact_person = EXCLUDED.contact_person`, r.infoTable)

	_, err := r.db.ExecContext(ctx, query, info.MachineID, nullableString(info.Manufacturer), startDate, nullableString(info.ContactPerson))
	return err
}

// RecordMaintenance appends a maintenance date.
func (r *MachineInfoRepository) RecordMaintenance(ctx context.Context, machineID int64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("machine info repo: nil db")
	}
	if machineID <= 0 {
		return machinestatus.ErrInvalidMachineID
	}
	query := fmt.Sprintf(`INSERT INTO %s (machine_id, maintenance_date) VALUES ($1, $2)`, r.maintenanceTable)
	_, err := r.db.ExecContext(ctx, query, machineID, at.UTC())
	return err
}

// RecordErrorCode appends a controller error code.
func (r *MachineInfoRepository) RecordErrorCode(ctx context.Context, machineID int64, code string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("machine info repo: nil db")
	}
	if machineID <= 0 {
		return machinestatus.ErrInvalidMachineID
	}
	query := fmt.Sprintf(`INSERT INTO %s (machine_id, error_code, error_time) VALUES ($1, $2, $3)`, r.errorsTable)
	_, err := r.db.ExecContext(ctx, query, machineID, code, at.UTC())
	return err
}

func nullableTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
