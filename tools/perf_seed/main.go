package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	goflags "github.com/jessevdk/go-flags"

	"factory-monitor/internal/auth"
	machinestatus "factory-monitor/internal/machinestatus/domain"
	"factory-monitor/internal/machinestatus/infrastructure/postgres"
)

const pushBatchSize = 500

type config struct {
	DSN           string `long:"pg-dsn" env:"DATABASE_URL" description:"Postgres DSN, seeds the tables directly"`
	BaseURL       string `long:"base-url" env:"BASE_URL" description:"Service URL, pushes events through signed ingest instead"`
	IngestSecret  string `long:"ingest-secret" env:"INGEST_HMAC_SECRET" description:"HMAC secret for signed ingest"`
	MachinePrefix string `long:"machine-prefix" default:"PERF-" description:"Machine name prefix"`
	FirstID       int64  `long:"first-id" default:"1000" description:"Id of the first seeded machine"`
	MachineCount  int    `long:"machine-count" default:"10" description:"Number of machines to seed"`
	StartDate     string `long:"start-date" description:"Start date (YYYY-MM-DD or RFC3339), defaults to a week ago"`
	Days          int    `long:"days" default:"7" description:"Number of days to seed"`
}

func main() {
	var cfg config
	if _, err := goflags.Parse(&cfg); err != nil {
		var flagsErr *goflags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == goflags.ErrHelp {
			return
		}
		os.Exit(2)
	}
	if cfg.DSN == "" && cfg.BaseURL == "" {
		log.Fatal("pg-dsn or base-url is required")
	}
	if cfg.MachineCount <= 0 {
		log.Fatal("machine-count must be > 0")
	}
	if cfg.Days <= 0 {
		log.Fatal("days must be > 0")
	}
	start, err := parseStartDate(cfg.StartDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}

	ctx := context.Background()
	machines := buildMachines(cfg.MachinePrefix, cfg.FirstID, cfg.MachineCount)

	if cfg.DSN != "" {
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		if err := seedDatabase(ctx, db, machines, start, cfg.Days); err != nil {
			log.Fatalf("seed database: %v", err)
		}
	} else {
		client := &http.Client{Timeout: 30 * time.Second}
		for _, machine := range machines {
			events := buildEvents(machine.ID, start, cfg.Days)
			inserted, err := pushEvents(ctx, client, cfg.BaseURL, []byte(cfg.IngestSecret), machine.ID, events)
			if err != nil {
				log.Fatalf("push events for machine %d: %v", machine.ID, err)
			}
			log.Printf("pushed machine %d: %d events, %d new", machine.ID, len(events), inserted)
		}
	}

	log.Printf("perf seed completed")
}

func parseStartDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC().AddDate(0, 0, -7).Truncate(24 * time.Hour), nil
	}
	if strings.Contains(value, "T") {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func buildMachines(prefix string, firstID int64, count int) []machinestatus.Machine {
	groups := []string{"Line A", "Line B", "Line C"}
	types := []string{"CNC", "Press", "Lathe"}
	list := make([]machinestatus.Machine, 0, count)
	for i := 0; i < count; i++ {
		list = append(list, machinestatus.Machine{
			ID:               firstID + int64(i),
			Name:             fmt.Sprintf("%s%04d", prefix, i+1),
			Group:            groups[i%len(groups)],
			Type:             types[i%len(types)],
			ConnectionStatus: "ONLINE",
		})
	}
	return list
}

// buildEvents produces a repeatable shift pattern: a run period, a short stop
// and an error every fourth cycle, with lengths varying by machine.
func buildEvents(machineID int64, start time.Time, days int) []machinestatus.StatusEvent {
	end := start.AddDate(0, 0, days)
	runFor := time.Duration(45+machineID%30) * time.Minute
	stopFor := time.Duration(10+machineID%15) * time.Minute
	errorFor := time.Duration(5+machineID%10) * time.Minute

	var events []machinestatus.StatusEvent
	ts := start
	for cycle := 0; ts.Before(end); cycle++ {
		events = append(events, machinestatus.StatusEvent{MachineID: machineID, Status: machinestatus.StatusRun, Timestamp: ts})
		ts = ts.Add(runFor)
		if !ts.Before(end) {
			break
		}
		status, length := machinestatus.StatusStop, stopFor
		if cycle%4 == 3 {
			status, length = machinestatus.StatusError, errorFor
		}
		events = append(events, machinestatus.StatusEvent{MachineID: machineID, Status: status, Timestamp: ts})
		ts = ts.Add(length)
	}
	return events
}

func seedDatabase(ctx context.Context, db *sql.DB, machines []machinestatus.Machine, start time.Time, days int) error {
	repo := postgres.NewMachineRepository(db)
	store := postgres.NewEventStore(db)
	for idx, machine := range machines {
		if err := repo.Save(ctx, machine); err != nil {
			return err
		}
		events := buildEvents(machine.ID, start, days)
		inserted, err := store.InsertEvents(ctx, events)
		if err != nil {
			return err
		}
		log.Printf("seeded machine %d (%d/%d): %d events, %d new", machine.ID, idx+1, len(machines), len(events), inserted)
	}
	return nil
}

type ingestEvent struct {
	TS     int64  `json:"ts"`
	Status string `json:"status"`
}

type ingestBody struct {
	MachineID int64         `json:"machineId"`
	Events    []ingestEvent `json:"events"`
}

func pushEvents(ctx context.Context, client *http.Client, baseURL string, secret []byte, machineID int64, events []machinestatus.StatusEvent) (int, error) {
	if strings.TrimSpace(baseURL) == "" {
		return 0, errors.New("base url required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	total := 0
	for offset := 0; offset < len(events); offset += pushBatchSize {
		end := offset + pushBatchSize
		if end > len(events) {
			end = len(events)
		}
		body := ingestBody{MachineID: machineID, Events: make([]ingestEvent, 0, end-offset)}
		for _, e := range events[offset:end] {
			body.Events = append(body.Events, ingestEvent{TS: e.Timestamp.UnixMilli(), Status: e.Status.String()})
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return total, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/ingest/status-events", bytes.NewReader(payload))
		if err != nil {
			return total, err
		}
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(auth.HeaderIngestTimestamp, timestamp)
		req.Header.Set(auth.HeaderIngestSignature, auth.SignIngest(secret, timestamp, payload))

		resp, err := client.Do(req)
		if err != nil {
			return total, err
		}
		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return total, fmt.Errorf("ingest failed: http %d", resp.StatusCode)
		}
		var respBody struct {
			Inserted int `json:"inserted"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
			_ = resp.Body.Close()
			return total, err
		}
		_ = resp.Body.Close()
		total += respBody.Inserted
	}
	return total, nil
}
