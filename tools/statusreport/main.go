package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	goflags "github.com/jessevdk/go-flags"

	"factory-monitor/internal/machinestatus/application"
	machinestatus "factory-monitor/internal/machinestatus/domain"
	"factory-monitor/internal/machinestatus/infrastructure/memory"
	"factory-monitor/internal/machinestatus/infrastructure/postgres"
	"factory-monitor/internal/machinestatus/interfaces/report"
)

const dateLayout = "2006-01-02"

type options struct {
	DSN      string  `long:"dsn" env:"DATABASE_URL" description:"Postgres connection string"`
	Demo     bool    `long:"demo" description:"Use the in-memory demo fleet instead of a database"`
	Machines []int64 `short:"m" long:"machine" required:"true" description:"Machine id, repeatable"`
	From     string  `long:"from" required:"true" description:"First day, YYYY-MM-DD"`
	To       string  `long:"to" required:"true" description:"Last day, YYYY-MM-DD"`
	Format   string  `short:"f" long:"format" default:"xlsx" choice:"xlsx" choice:"pdf" description:"Output format"`
	Out      string  `short:"o" long:"out" description:"Output file, defaults to daily-report_<from>_<to>.<format>"`
	Timezone string  `long:"tz" env:"TIMEZONE" default:"Local" description:"Time zone of the report days"`
	Company  string  `long:"company" description:"Company line of the report header"`
	Address  string  `long:"address" description:"Address line of the report header"`
	Contact  string  `long:"contact" description:"Contact line of the report header"`
	Weekly   int     `long:"weekly-after-days" default:"14" description:"Group columns by week above this many days"`
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		var flagsErr *goflags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == goflags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var opts options
	parser := goflags.NewParser(&opts, goflags.Default)
	parser.Name = "statusreport"
	parser.LongDescription = "Export daily RUN/STOP/ERROR minutes of machines as XLSX or PDF."
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}

	loc, err := loadLocation(opts.Timezone)
	if err != nil {
		return err
	}
	from, err := time.ParseInLocation(dateLayout, opts.From, loc)
	if err != nil {
		return fmt.Errorf("statusreport: --from must be YYYY-MM-DD: %w", err)
	}
	to, err := time.ParseInLocation(dateLayout, opts.To, loc)
	if err != nil {
		return fmt.Errorf("statusreport: --to must be YYYY-MM-DD: %w", err)
	}
	if to.Before(from) {
		return errors.New("statusreport: --to is before --from")
	}

	var (
		source  machinestatus.EventSource
		catalog machinestatus.MachineCatalog
	)
	switch {
	case opts.Demo:
		store := memory.NewStore()
		if err := memory.SeedDemo(ctx, store, to.AddDate(0, 0, 1)); err != nil {
			return err
		}
		source, catalog = store, store
	case opts.DSN != "":
		db, err := sql.Open("pgx", opts.DSN)
		if err != nil {
			return fmt.Errorf("statusreport: open db: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("statusreport: ping db: %w", err)
		}
		source, catalog = postgres.NewEventStore(db), postgres.NewMachineRepository(db)
	default:
		return errors.New("statusreport: --dsn or --demo is required")
	}

	service, err := application.NewStatisticsService(source, machinestatus.SystemClock{},
		application.WithCatalog(catalog),
		application.WithLocation(loc),
	)
	if err != nil {
		return err
	}
	machines, err := service.DailyReport(ctx, opts.Machines, from, to)
	if err != nil {
		return err
	}

	reportOpts := report.Options{
		Header:          report.Header{Company: opts.Company, Address: opts.Address, Contact: opts.Contact},
		WeeklyAfterDays: opts.Weekly,
		GeneratedAt:     time.Now().In(loc),
	}
	var data []byte
	switch strings.ToLower(opts.Format) {
	case "pdf":
		data, err = report.BuildDailyReportPDF(machines, reportOpts)
	default:
		data, err = report.BuildDailyReportXLSX(machines, reportOpts)
	}
	if err != nil {
		return err
	}

	out := opts.Out
	if out == "" {
		out = fmt.Sprintf("daily-report_%s_%s.%s", from.Format(dateLayout), to.Format(dateLayout), strings.ToLower(opts.Format))
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("statusreport: write %s: %w", out, err)
	}
	fmt.Fprintf(stdout, "wrote %s (%d machines, %d bytes)\n", out, len(machines), len(data))
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("statusreport: time zone %q: %w", name, err)
	}
	return loc, nil
}
