package machinestatus

import (
	"fmt"
	"time"
)

// Durations accumulates time spent per tracked status.
type Durations struct {
	Run   time.Duration
	Stop  time.Duration
	Error time.Duration
}

// Add attributes d to the accumulator of status. Untracked statuses are dropped.
func (d *Durations) Add(status Status, elapsed time.Duration) {
	if elapsed <= 0 {
		return
	}
	switch status.Category() {
	case CategoryRun:
		d.Run += elapsed
	case CategoryStop:
		d.Stop += elapsed
	case CategoryError:
		d.Error += elapsed
	case CategoryOther:
		// unaccounted on purpose
	}
}

// Total returns the tracked time.
func (d Durations) Total() time.Duration { return d.Run + d.Stop + d.Error }

// RunMinutes returns run time in minutes.
func (d Durations) RunMinutes() float64 { return d.Run.Minutes() }

// StopMinutes returns stop time in minutes.
func (d Durations) StopMinutes() float64 { return d.Stop.Minutes() }

// ErrorMinutes returns error time in minutes.
func (d Durations) ErrorMinutes() float64 { return d.Error.Minutes() }

// Integrate walks [start, end) beginning in status initial and switching
// status at every event, and returns the time spent per status together
// with the status active at end.
//
// Events must be ascending. Events outside [start, end) are ignored: an event
// at start replaces initial without elapsed time, an event at end belongs to
// the next interval.
func Integrate(start, end time.Time, initial Status, events []StatusEvent) (Durations, Status) {
	var acc Durations
	current := initial
	if !end.After(start) {
		return acc, current
	}

	cursor := start
	for _, evt := range events {
		if evt.Timestamp.Before(start) || !evt.Timestamp.Before(end) {
			continue
		}
		acc.Add(current, evt.Timestamp.Sub(cursor))
		current = evt.Status
		cursor = evt.Timestamp
	}
	acc.Add(current, end.Sub(cursor))
	return acc, current
}

// FormatElapsed renders a duration as HH:MM:SS, prefixed with whole days
// once it reaches 24 hours ("1d 02:03:04").
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	days := int64(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h, m, s := int64(d/time.Hour), int64(d/time.Minute)%60, int64(d/time.Second)%60
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
