package machinestatus

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// RecentErrorCodeLimit caps the error codes returned with machine info.
const RecentErrorCodeLimit = 5

const maxInfoFieldLength = 200

// ErrInvalidMachineInfo is returned when editable info fields are malformed.
var ErrInvalidMachineInfo = errors.New("machinestatus: invalid machine info")

// MachineInfo is the descriptive sheet of a machine. Manufacturer, StartDate
// and ContactPerson are editable; LastMaintenance and RecentErrorCodes are
// derived from the maintenance and error history.
type MachineInfo struct {
	MachineID        int64      `json:"machine_id"`
	Manufacturer     string     `json:"manufacturer"`
	StartDate        *time.Time `json:"start_date,omitempty"`
	ContactPerson    string     `json:"contact_person"`
	LastMaintenance  *time.Time `json:"last_maintenance,omitempty"`
	RecentErrorCodes []string   `json:"recent_error_codes"`
}

// Normalize trims the editable fields and validates them.
func (i *MachineInfo) Normalize() error {
	if i.MachineID <= 0 {
		return ErrInvalidMachineID
	}
	i.Manufacturer = strings.TrimSpace(i.Manufacturer)
	i.ContactPerson = strings.TrimSpace(i.ContactPerson)
	if utf8.RuneCountInString(i.Manufacturer) > maxInfoFieldLength || utf8.RuneCountInString(i.ContactPerson) > maxInfoFieldLength {
		return ErrInvalidMachineInfo
	}
	if i.StartDate != nil {
		if i.StartDate.IsZero() {
			i.StartDate = nil
		} else {
			day := truncateToDay(i.StartDate.UTC())
			i.StartDate = &day
		}
	}
	return nil
}

// MachineInfoStore reads and upserts machine info.
type MachineInfoStore interface {
	// GetInfo returns the info sheet of the machine. Missing editable
	// fields are left empty; it never returns nil without an error.
	GetInfo(ctx context.Context, machineID int64) (*MachineInfo, error)
	// SaveInfo upserts the editable fields only.
	SaveInfo(ctx context.Context, info MachineInfo) error
}
