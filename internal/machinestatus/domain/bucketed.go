package machinestatus

import "time"

// BucketStatistic holds the minutes spent per status inside one chart bucket.
type BucketStatistic struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Label        string    `json:"label"`
	RunMinutes   float64   `json:"run_minutes"`
	StopMinutes  float64   `json:"stop_minutes"`
	ErrorMinutes float64   `json:"error_minutes"`
}

// TotalMinutes returns the tracked minutes of the bucket.
func (b BucketStatistic) TotalMinutes() float64 {
	return b.RunMinutes + b.StopMinutes + b.ErrorMinutes
}

// BucketWindow describes one bucketed aggregation.
type BucketWindow struct {
	Start time.Time
	End   time.Time
	// Now clips buckets reaching into the future. It is fixed for the call.
	Now time.Time
	// StatusBefore is the status in effect at Start.
	StatusBefore Status
	Tiers        Tiers
}

// AggregateBuckets integrates events over the adaptive buckets of the window.
// The status at the end of each bucket carries into the next one. Buckets
// starting at or after Now are omitted. Events may be unordered.
func AggregateBuckets(window BucketWindow, events []StatusEvent) ([]BucketStatistic, error) {
	result := []BucketStatistic{}
	if !window.End.After(window.Start) {
		return result, nil
	}
	tiers := window.Tiers
	if tiers == (Tiers{}) {
		tiers = DefaultTiers()
	}
	if err := tiers.Validate(); err != nil {
		return nil, err
	}

	spans, err := PlanBuckets(window.Start, window.End, tiers.Select(window.End.Sub(window.Start)))
	if err != nil {
		return nil, err
	}

	sorted := SortEvents(events)
	carry := window.StatusBefore
	if carry.IsZero() {
		carry = DefaultStatus
	}
	for _, span := range spans {
		bucketEnd := span.End
		if bucketEnd.After(window.Now) {
			bucketEnd = window.Now
		}
		if !bucketEnd.After(span.Start) {
			continue
		}

		acc, final := Integrate(span.Start, bucketEnd, carry, eventsBetween(sorted, span.Start, bucketEnd))
		result = append(result, BucketStatistic{
			Start:        span.Start,
			End:          bucketEnd,
			Label:        span.Label,
			RunMinutes:   acc.RunMinutes(),
			StopMinutes:  acc.StopMinutes(),
			ErrorMinutes: acc.ErrorMinutes(),
		})
		carry = final
	}
	return result, nil
}
