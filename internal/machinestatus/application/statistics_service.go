package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	machinestatus "factory-monitor/internal/machinestatus/domain"
	"factory-monitor/internal/observability/metrics"
)

const (
	kindBucketed = "bucketed"
	kindDaily    = "daily"
	kindToday    = "today"

	defaultWorkers = 4
)

// StatisticsService serves status duration statistics from an event source.
type StatisticsService struct {
	source   machinestatus.EventSource
	catalog  machinestatus.MachineCatalog
	clock    machinestatus.Clock
	tiers    machinestatus.Tiers
	workers  int
	location *time.Location
	logger   *log.Logger
}

// Option configures the service.
type Option func(*StatisticsService)

// WithCatalog sets the machine catalogue used for display names.
func WithCatalog(catalog machinestatus.MachineCatalog) Option {
	return func(s *StatisticsService) {
		s.catalog = catalog
	}
}

// WithTiers overrides the granularity thresholds.
func WithTiers(tiers machinestatus.Tiers) Option {
	return func(s *StatisticsService) {
		s.tiers = tiers
	}
}

// WithWorkers bounds concurrent per-machine aggregations.
func WithWorkers(workers int) Option {
	return func(s *StatisticsService) {
		if workers > 0 {
			s.workers = workers
		}
	}
}

// WithLocation sets the location used to interpret report dates.
func WithLocation(loc *time.Location) Option {
	return func(s *StatisticsService) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *StatisticsService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStatisticsService constructs a StatisticsService.
func NewStatisticsService(source machinestatus.EventSource, clock machinestatus.Clock, opts ...Option) (*StatisticsService, error) {
	if source == nil {
		return nil, errors.New("statistics service: nil event source")
	}
	if clock == nil {
		clock = machinestatus.SystemClock{}
	}
	s := &StatisticsService{
		source:   source,
		clock:    clock,
		tiers:    machinestatus.DefaultTiers(),
		workers:  defaultWorkers,
		location: time.Local,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.tiers.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Location returns the location used for calendar days.
func (s *StatisticsService) Location() *time.Location { return s.location }

// BucketedStatistics returns chart buckets for [start, end). Buckets and
// labels follow the service location whatever the offset of start and end.
// An empty or inverted window yields an empty result without touching storage.
func (s *StatisticsService) BucketedStatistics(ctx context.Context, machineID int64, start, end time.Time) (result []machinestatus.BucketStatistic, err error) {
	now := s.clock.Now()
	start, end = start.In(s.location), end.In(s.location)
	if machineID <= 0 {
		return nil, machinestatus.ErrInvalidMachineID
	}
	if !end.After(start) {
		return []machinestatus.BucketStatistic{}, nil
	}

	began := time.Now()
	defer func() {
		metrics.ObserveAggregation(kindBucketed, resultOf(err), time.Since(began))
	}()

	events, err := s.source.EventsInRange(ctx, machineID, start, end)
	if err != nil {
		return nil, unavailable(err)
	}
	statusBefore := machinestatus.DefaultStatus
	last, ok, err := s.source.LastEventAtOrBefore(ctx, machineID, start)
	if err != nil {
		return nil, unavailable(err)
	}
	if ok {
		statusBefore = last.Status
	}

	return machinestatus.AggregateBuckets(machinestatus.BucketWindow{
		Start:        start,
		End:          end,
		Now:          now,
		StatusBefore: statusBefore,
		Tiers:        s.tiers,
	}, events)
}

// DailyStatistics returns one statistic per calendar day of [start, end] in
// the service location, integrating the caller supplied events. The opening
// status of every day is looked up in storage: last event at or before
// midnight, then the machine's stored status, then STOP.
//
// The stored status describes the machine now, so for past days without any
// earlier event it is an approximation.
func (s *StatisticsService) DailyStatistics(ctx context.Context, machineID int64, events []machinestatus.StatusEvent, start, end time.Time) (result []machinestatus.DailyStatistic, err error) {
	if machineID <= 0 {
		return nil, machinestatus.ErrInvalidMachineID
	}
	if !end.After(start) {
		return nil, machinestatus.ErrInvalidRange
	}
	start, end = start.In(s.location), end.In(s.location)

	began := time.Now()
	defer func() {
		metrics.ObserveAggregation(kindDaily, resultOf(err), time.Since(began))
	}()

	return machinestatus.AggregateDaily(start, end, events, s.openingStatus(ctx, machineID))
}

// openingStatus resolves the status at a day start: last event at or before
// it, then the stored status (loaded once), then STOP.
func (s *StatisticsService) openingStatus(ctx context.Context, machineID int64) machinestatus.OpeningStatusFunc {
	var (
		stored       machinestatus.Status
		storedLoaded bool
	)
	return func(dayStart time.Time) (machinestatus.Status, error) {
		last, ok, err := s.source.LastEventAtOrBefore(ctx, machineID, dayStart)
		if err != nil {
			return "", unavailable(err)
		}
		if ok {
			return last.Status, nil
		}
		if !storedLoaded {
			status, found, err := s.source.CurrentStoredStatus(ctx, machineID)
			if err != nil {
				return "", unavailable(err)
			}
			if found {
				stored = status
			}
			storedLoaded = true
		}
		if stored.IsZero() {
			return machinestatus.DefaultStatus, nil
		}
		return stored, nil
	}
}

// TodaySummary is the RUN/STOP/ERROR split of one machine from local
// midnight until now.
type TodaySummary struct {
	MachineID     int64
	Name          string
	From          time.Time
	To            time.Time
	Durations     machinestatus.Durations
	CurrentStatus machinestatus.Status
}

// Efficiency returns the run share of the elapsed part of the day.
func (t TodaySummary) Efficiency() float64 {
	return machinestatus.EfficiencyPercent(t.Durations.RunMinutes(), t.Durations.Total().Minutes())
}

// TodaySoFar integrates the machine's status from the start of the current
// day in the service location until the clock's now.
func (s *StatisticsService) TodaySoFar(ctx context.Context, machineID int64) (summary TodaySummary, err error) {
	if machineID <= 0 {
		return TodaySummary{}, machinestatus.ErrInvalidMachineID
	}
	now := s.clock.Now().In(s.location)
	dayStart := startOfDay(now)

	began := time.Now()
	defer func() {
		metrics.ObserveAggregation(kindToday, resultOf(err), time.Since(began))
	}()

	initial, err := s.openingStatus(ctx, machineID)(dayStart)
	if err != nil {
		return TodaySummary{}, err
	}
	events, err := s.source.EventsInRange(ctx, machineID, dayStart, now)
	if err != nil {
		return TodaySummary{}, unavailable(err)
	}
	durations, current := machinestatus.Integrate(dayStart, now, initial, machinestatus.SortEvents(events))
	return TodaySummary{
		MachineID:     machineID,
		Name:          s.machineName(ctx, machineID),
		From:          dayStart,
		To:            now,
		Durations:     durations,
		CurrentStatus: current,
	}, nil
}

// MachineBuckets is the bucketed result of one machine in a fan-out.
type MachineBuckets struct {
	MachineID int64
	Name      string
	Buckets   []machinestatus.BucketStatistic
	Err       error
}

// BucketedStatisticsForMachines aggregates every machine independently on a
// bounded worker pool. Results keep the order of machineIDs; a failing
// machine reports its error in its own entry.
func (s *StatisticsService) BucketedStatisticsForMachines(ctx context.Context, machineIDs []int64, start, end time.Time) ([]MachineBuckets, error) {
	results := make([]MachineBuckets, len(machineIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, id := range machineIDs {
		if err := ctx.Err(); err != nil {
			break
		}
		i, id := i, id
		g.Go(func() error {
			buckets, err := s.BucketedStatistics(gctx, id, start, end)
			if err != nil {
				s.logger.Printf("statistics: machine %d bucketed error: %v", id, err)
			}
			results[i] = MachineBuckets{
				MachineID: id,
				Name:      s.machineName(gctx, id),
				Buckets:   buckets,
				Err:       err,
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// MachineDaily is the daily result of one machine in a report.
type MachineDaily struct {
	MachineID int64
	Name      string
	Days      []machinestatus.DailyStatistic
}

// DailyReport computes daily statistics for each machine between the calendar
// dates of from and to (inclusive) in the service location. Any failure aborts
// the report.
func (s *StatisticsService) DailyReport(ctx context.Context, machineIDs []int64, from, to time.Time) ([]MachineDaily, error) {
	if len(machineIDs) == 0 {
		return nil, errors.New("statistics: no machines selected")
	}
	dayStart := startOfDay(from.In(s.location))
	windowEnd := startOfDay(to.In(s.location)).AddDate(0, 0, 1)
	if !windowEnd.After(dayStart) {
		return nil, machinestatus.ErrInvalidRange
	}

	results := make([]MachineDaily, len(machineIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range machineIDs {
		i, id := i, id
		g.Go(func() error {
			events, err := s.source.EventsInRange(gctx, id, dayStart, windowEnd)
			if err != nil {
				return fmt.Errorf("machine %d: %w", id, unavailable(err))
			}
			days, err := s.DailyStatistics(gctx, id, events, dayStart, windowEnd.Add(-time.Nanosecond))
			if err != nil {
				return fmt.Errorf("machine %d: %w", id, err)
			}
			results[i] = MachineDaily{MachineID: id, Name: s.machineName(gctx, id), Days: days}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *StatisticsService) machineName(ctx context.Context, id int64) string {
	fallback := machinestatus.Machine{ID: id}
	if s.catalog == nil {
		return fallback.DisplayName()
	}
	machine, err := s.catalog.Get(ctx, id)
	if err != nil {
		s.logger.Printf("statistics: machine %d lookup error: %v", id, err)
		return fallback.DisplayName()
	}
	if machine == nil {
		return fallback.DisplayName()
	}
	return machine.DisplayName()
}

func unavailable(err error) error {
	if errors.Is(err, machinestatus.ErrDataUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", machinestatus.ErrDataUnavailable, err)
}

func resultOf(err error) string {
	if err != nil {
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
