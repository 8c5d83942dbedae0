package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	machinestatus "factory-monitor/internal/machinestatus/domain"
)

// MachineRepository is a Postgres implementation of the machine catalogue.
type MachineRepository struct {
	db    *sql.DB
	table string
}

// MachineOption configures the repository.
type MachineOption func(*MachineRepository)

// WithMachineTable overrides the default table name.
func WithMachineTable(table string) MachineOption {
	return func(repo *MachineRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewMachineRepository constructs a repository.
func NewMachineRepository(db *sql.DB, opts ...MachineOption) *MachineRepository {
	repo := &MachineRepository{db: db, table: defaultMachinesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

const machineColumns = `id, COALESCE(name, ''), COALESCE(group_name, ''), COALESCE(type_name, ''), COALESCE(status, ''), COALESCE(connection_status, '')`

// List returns machines matching the filter ordered by id.
func (r *MachineRepository) List(ctx context.Context, filter machinestatus.MachineFilter) ([]machinestatus.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}

	var (
		clauses []string
		args    []any
	)
	if filter.Group != "" {
		args = append(args, filter.Group)
		clauses = append(clauses, fmt.Sprintf("group_name = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		clauses = append(clauses, fmt.Sprintf("type_name = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
%s
ORDER BY id ASC`, machineColumns, r.table, where)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]machinestatus.Machine, 0)
	for rows.Next() {
		machine, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, machine)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get loads a machine by id; nil when absent.
func (r *MachineRepository) Get(ctx context.Context, id int64) (*machinestatus.Machine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}
	if id <= 0 {
		return nil, machinestatus.ErrInvalidMachineID
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1
LIMIT 1`, machineColumns, r.table)

	machine, err := scanMachine(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &machine, nil
}

// ListTypes returns the distinct, non-empty machine types.
func (r *MachineRepository) ListTypes(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("machine repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT DISTINCT type_name
FROM %s
WHERE type_name IS NOT NULL AND type_name <> ''
ORDER BY type_name ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		result = append(result, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a catalogue entry.
func (r *MachineRepository) Save(ctx context.Context, machine machinestatus.Machine) error {
	if r == nil || r.db == nil {
		return errors.New("machine repo: nil db")
	}
	if machine.ID <= 0 {
		return machinestatus.ErrInvalidMachineID
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	name,
	group_name,
	type_name,
	status,
	connection_status
) VALUES (
	$1, $2, $3, $4, $5, $6
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	group_name = EXCLUDED.group_name,
	type_name = EXCLUDED.type_name,
	status = EXCLUDED.status,
	connection_status = EXCLUDED.connection_status`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		machine.ID,
		machine.Name,
		machine.Group,
		machine.Type,
		string(machine.Status),
		machine.ConnectionStatus,
	)
	return err
}

func scanMachine(row rowScanner) (machinestatus.Machine, error) {
	var (
		machine machinestatus.Machine
		status  string
	)
	if err := row.Scan(
		&machine.ID,
		&machine.Name,
		&machine.Group,
		&machine.Type,
		&status,
		&machine.ConnectionStatus,
	); err != nil {
		return machinestatus.Machine{}, err
	}
	machine.Status = machinestatus.ParseStatus(status)
	return machine, nil
}
