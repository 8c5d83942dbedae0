package metrics

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func TestObserveBeforeInitIsNoop(t *testing.T) {
	ObserveAggregation("", "", time.Millisecond)
	ObserveIngest("", time.Millisecond)
	AddIngestedEvents(3)
	AddIngestedEvents(-1)
	ObserveReportExport("", "", time.Millisecond)
}

func TestQueryCount(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE machines (id INTEGER PRIMARY KEY, status TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO machines (id, status) VALUES (1, 'ERROR'), (2, 'RUN'), (3, 'ERROR')`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if got := queryCount(db, nil, "SELECT COUNT(*) FROM machines WHERE status = 'ERROR'"); got != 2 {
		t.Fatalf("expected 2 machines in error, got %v", got)
	}
	if got := queryCount(db, nil, "SELECT COUNT(*) FROM missing_table"); got != 0 {
		t.Fatalf("expected 0 on query failure, got %v", got)
	}
	if got := queryCount(nil, nil, "SELECT 1"); got != 0 {
		t.Fatalf("expected 0 for nil db, got %v", got)
	}
}
