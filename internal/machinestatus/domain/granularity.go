package machinestatus

import "time"

// Granularity is the bucket width chosen for a window.
type Granularity string

const (
	GranularityHour  Granularity = "HOUR"
	GranularityDay   Granularity = "DAY"
	GranularityMonth Granularity = "MONTH"
	GranularityYear  Granularity = "YEAR"
)

// IsValid checks if the granularity is one of the supported values.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityHour, GranularityDay, GranularityMonth, GranularityYear:
		return true
	default:
		return false
	}
}

// Tiers holds the inclusive upper bounds, in days, of the hour/day/month tiers.
// Spans above MonthlyMaxDays use yearly buckets.
type Tiers struct {
	HourlyMaxDays  float64 `yaml:"hourly_max_days"`
	DailyMaxDays   float64 `yaml:"daily_max_days"`
	MonthlyMaxDays float64 `yaml:"monthly_max_days"`
}

// DefaultTiers returns the stock thresholds: 1 day, 90 days, 730 days.
func DefaultTiers() Tiers {
	return Tiers{HourlyMaxDays: 1, DailyMaxDays: 90, MonthlyMaxDays: 730}
}

// Validate ensures thresholds are positive and ascending.
func (t Tiers) Validate() error {
	if t.HourlyMaxDays <= 0 || t.DailyMaxDays <= t.HourlyMaxDays || t.MonthlyMaxDays <= t.DailyMaxDays {
		return ErrInvalidTiers
	}
	return nil
}

// Select picks the granularity for a span.
func (t Tiers) Select(span time.Duration) Granularity {
	days := span.Hours() / 24
	switch {
	case days <= t.HourlyMaxDays:
		return GranularityHour
	case days <= t.DailyMaxDays:
		return GranularityDay
	case days <= t.MonthlyMaxDays:
		return GranularityMonth
	default:
		return GranularityYear
	}
}

// BucketSpan is one planned bucket before clipping to now.
type BucketSpan struct {
	Start time.Time
	End   time.Time
	Label string
}

// PlanBuckets partitions [start, end) for the granularity.
// Hourly buckets step from start. Day, month and year buckets snap to
// calendar boundaries in start's location, the first one clipped to start.
// The last bucket is always clipped to end.
func PlanBuckets(start, end time.Time, granularity Granularity) ([]BucketSpan, error) {
	layout, err := labelLayout(granularity)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return []BucketSpan{}, nil
	}

	var spans []BucketSpan
	cursor := anchor(start, granularity)
	for cursor.Before(end) {
		next := advance(cursor, granularity)
		bucketStart := cursor
		if bucketStart.Before(start) {
			bucketStart = start
		}
		bucketEnd := next
		if bucketEnd.After(end) {
			bucketEnd = end
		}
		spans = append(spans, BucketSpan{
			Start: bucketStart,
			End:   bucketEnd,
			Label: bucketStart.Format(layout),
		})
		cursor = next
	}
	return spans, nil
}

func labelLayout(granularity Granularity) (string, error) {
	switch granularity {
	case GranularityHour:
		return "15:04", nil
	case GranularityDay:
		return "02/01", nil
	case GranularityMonth:
		return "01/2006", nil
	case GranularityYear:
		return "2006", nil
	default:
		return "", ErrInvalidGranularity
	}
}

func anchor(t time.Time, granularity Granularity) time.Time {
	switch granularity {
	case GranularityDay:
		return truncateToDay(t)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case GranularityYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	default:
		return t
	}
}

func advance(t time.Time, granularity Granularity) time.Time {
	switch granularity {
	case GranularityDay:
		return t.AddDate(0, 0, 1)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	case GranularityYear:
		return t.AddDate(1, 0, 0)
	default:
		return t.Add(time.Hour)
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
