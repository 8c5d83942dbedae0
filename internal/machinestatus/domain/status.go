package machinestatus

import "strings"

// Status is the operating state reported by a machine.
// The set is open: values outside RUN/STOP/ERROR are kept as-is.
type Status string

const (
	StatusRun   Status = "RUN"
	StatusStop  Status = "STOP"
	StatusError Status = "ERROR"
)

// DefaultStatus is assumed when nothing is known about a machine.
const DefaultStatus = StatusStop

// Category classifies a status for duration accounting.
type Category int

const (
	// CategoryOther covers every status outside RUN/STOP/ERROR.
	// Time spent in it is not attributed to any accumulator.
	CategoryOther Category = iota
	CategoryRun
	CategoryStop
	CategoryError
)

// ParseStatus normalizes raw status text. Unknown values are preserved.
func ParseStatus(raw string) Status {
	return Status(strings.ToUpper(strings.TrimSpace(raw)))
}

// Category returns the accounting category of the status.
func (s Status) Category() Category {
	switch s {
	case StatusRun:
		return CategoryRun
	case StatusStop:
		return CategoryStop
	case StatusError:
		return CategoryError
	default:
		return CategoryOther
	}
}

// IsTracked tells whether time in this status is counted.
func (s Status) IsTracked() bool { return s.Category() != CategoryOther }

// IsZero reports an empty status.
func (s Status) IsZero() bool { return s == "" }

// String returns the raw value.
func (s Status) String() string { return string(s) }
