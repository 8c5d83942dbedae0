package statushttp

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"factory-monitor/internal/audit"
	machinestatus "factory-monitor/internal/machinestatus/domain"
	"factory-monitor/internal/observability/metrics"
)

const maxEventsPerRequest = 10_000

// IngestHandler accepts status events pushed by machine gateways.
type IngestHandler struct {
	writer      machinestatus.EventWriter
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(writer machinestatus.EventWriter, auditLogger audit.Logger, logger *log.Logger) (*IngestHandler, error) {
	if writer == nil {
		return nil, errors.New("status ingest: nil writer")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{writer: writer, auditLogger: auditLogger, logger: logger}, nil
}

// ServeHTTP ingests status events.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	if r.Method != http.MethodPost {
		result = metrics.ResultRejected
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Printf("status ingest: read body error: %v", err)
		result = metrics.ResultRejected
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Printf("status ingest: decode error: %v", err)
		result = metrics.ResultRejected
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	events, err := req.toEvents()
	if err != nil {
		h.logger.Printf("status ingest: invalid payload: %v", err)
		result = metrics.ResultRejected
		http.Error(w, "invalid payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	inserted, err := h.writer.InsertEvents(r.Context(), events)
	if err != nil {
		h.logger.Printf("status ingest: insert error: %v", err)
		result = metrics.ResultError
		http.Error(w, "insert error", http.StatusInternalServerError)
		return
	}
	metrics.AddIngestedEvents(inserted)
	h.logAudit(r, req.MachineID, len(events), inserted, body)

	writeJSON(w, http.StatusOK, map[string]any{
		"received": len(events),
		"inserted": inserted,
	})
}

func (h *IngestHandler) logAudit(r *http.Request, machineID int64, received, inserted int, body []byte) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"received": received, "inserted": inserted})
	if err := h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:         "gateway",
		Role:          "ingest",
		Action:        "status.ingest",
		ResourceType:  "machine",
		ResourceID:    strconv.FormatInt(machineID, 10),
		Metadata:      payload,
		PayloadDigest: audit.DigestJSON(body),
		IP:            audit.ClientIP(r),
		UserAgent:     r.UserAgent(),
	}); err != nil {
		h.logger.Printf("status ingest: audit error: %v", err)
	}
}

type ingestRequest struct {
	MachineID int64         `json:"machineId"`
	TS        int64         `json:"ts"`
	Status    string        `json:"status"`
	Events    []ingestEvent `json:"events"`
}

type ingestEvent struct {
	TS     int64  `json:"ts"`
	Status string `json:"status"`
}

func (r ingestRequest) toEvents() ([]machinestatus.StatusEvent, error) {
	if r.MachineID <= 0 {
		return nil, errors.New("missing machineId")
	}

	items := r.Events
	if len(items) == 0 && r.TS != 0 {
		items = []ingestEvent{{TS: r.TS, Status: r.Status}}
	}
	if len(items) == 0 {
		return nil, errors.New("no status events")
	}
	if len(items) > maxEventsPerRequest {
		return nil, errors.New("too many events")
	}

	events := make([]machinestatus.StatusEvent, 0, len(items))
	for _, item := range items {
		ts, err := parseTimestamp(item.TS)
		if err != nil {
			return nil, err
		}
		status := machinestatus.ParseStatus(item.Status)
		if status.IsZero() {
			return nil, errors.New("empty status")
		}
		events = append(events, machinestatus.StatusEvent{
			MachineID: r.MachineID,
			Status:    status,
			Timestamp: ts,
		})
	}
	return events, nil
}

func parseTimestamp(value int64) (time.Time, error) {
	if value <= 0 {
		return time.Time{}, errors.New("invalid ts")
	}
	// Accept milliseconds or seconds.
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC(), nil
	}
	return time.Unix(value, 0).UTC(), nil
}
