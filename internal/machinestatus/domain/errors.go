package machinestatus

import "errors"

var (
	// ErrInvalidRange is returned when a window ends at or before its start.
	ErrInvalidRange = errors.New("machinestatus: invalid range")
	// ErrDataUnavailable wraps failures of the event source.
	ErrDataUnavailable = errors.New("machinestatus: data unavailable")
	// ErrInvalidMachineID is returned for non-positive machine ids.
	ErrInvalidMachineID = errors.New("machinestatus: invalid machine id")
	// ErrMachineNotFound is returned when a machine is not in the catalogue.
	ErrMachineNotFound = errors.New("machinestatus: machine not found")
	// ErrInvalidTiers is returned when granularity thresholds are not ascending.
	ErrInvalidTiers = errors.New("machinestatus: invalid granularity tiers")
	// ErrInvalidEvent is returned for events missing machine, status or time.
	ErrInvalidEvent = errors.New("machinestatus: invalid status event")
	// ErrInvalidGranularity is returned when granularity is unsupported.
	ErrInvalidGranularity = errors.New("machinestatus: invalid granularity")
)
