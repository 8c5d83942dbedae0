package machinestatus

import (
	"math"
	"time"
)

// DailyStatistic holds the minutes spent per status during one calendar day.
type DailyStatistic struct {
	Date         time.Time `json:"date"`
	RunMinutes   float64   `json:"run_minutes"`
	StopMinutes  float64   `json:"stop_minutes"`
	ErrorMinutes float64   `json:"error_minutes"`
}

// TotalMinutes returns the tracked minutes of the day.
func (d DailyStatistic) TotalMinutes() float64 {
	return d.RunMinutes + d.StopMinutes + d.ErrorMinutes
}

// DateLabel formats the day as DD/MM/YYYY.
func (d DailyStatistic) DateLabel() string { return d.Date.Format("02/01/2006") }

// Efficiency returns the run share of tracked time in percent, one decimal.
func (d DailyStatistic) Efficiency() float64 {
	return EfficiencyPercent(d.RunMinutes, d.TotalMinutes())
}

// EfficiencyPercent returns run/total*100 rounded to one decimal, 0 for an empty total.
func EfficiencyPercent(run, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(run/total*1000) / 10
}

// OpeningStatusFunc resolves the status in effect at the start of a day.
type OpeningStatusFunc func(dayStart time.Time) (Status, error)

// AggregateDaily returns one statistic per calendar day from start's date to
// end's date inclusive, each covering the full day in start's location.
// Events may be unordered; those outside a day are not scanned for it.
func AggregateDaily(start, end time.Time, events []StatusEvent, opening OpeningStatusFunc) ([]DailyStatistic, error) {
	if !end.After(start) {
		return nil, ErrInvalidRange
	}
	if opening == nil {
		opening = func(time.Time) (Status, error) { return DefaultStatus, nil }
	}

	sorted := SortEvents(events)
	lastDay := truncateToDay(end.In(start.Location()))
	result := make([]DailyStatistic, 0, int(lastDay.Sub(truncateToDay(start)).Hours()/24)+1)
	for day := truncateToDay(start); !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		status, err := opening(day)
		if err != nil {
			return nil, err
		}
		acc, _ := Integrate(day, next, status, eventsBetween(sorted, day, next))
		result = append(result, DailyStatistic{
			Date:         day,
			RunMinutes:   acc.RunMinutes(),
			StopMinutes:  acc.StopMinutes(),
			ErrorMinutes: acc.ErrorMinutes(),
		})
	}
	return result, nil
}
