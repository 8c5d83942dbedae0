package statushttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"factory-monitor/internal/audit"
	"factory-monitor/internal/auth"
	"factory-monitor/internal/machinestatus/application"
	machinestatus "factory-monitor/internal/machinestatus/domain"
	"factory-monitor/internal/machinestatus/interfaces/report"
	"factory-monitor/internal/observability/metrics"
)

const (
	timeLayout = time.RFC3339
	dateLayout = "2006-01-02"

	maxMachinesPerRequest = 64
	maxInfoBodyBytes      = 16 << 10

	machineInfoPrefix = "/api/v1/machines/"
	machineInfoSuffix = "/info"

	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

// Handler serves machine catalogue, statistics and report endpoints.
type Handler struct {
	service     *application.StatisticsService
	catalog     machinestatus.MachineCatalog
	info        machinestatus.MachineInfoStore
	auditLogger audit.Logger
	report      report.Options
	logger      *log.Logger
}

// Option configures the handler.
type Option func(*Handler)

// WithAuditLogger records report exports.
func WithAuditLogger(logger audit.Logger) Option {
	return func(h *Handler) {
		h.auditLogger = logger
	}
}

// WithMachineInfo enables the machine info sheet routes.
func WithMachineInfo(store machinestatus.MachineInfoStore) Option {
	return func(h *Handler) {
		h.info = store
	}
}

// WithReportOptions sets header lines and grouping of exported reports.
func WithReportOptions(opts report.Options) Option {
	return func(h *Handler) {
		h.report = opts
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a handler.
func NewHandler(service *application.StatisticsService, catalog machinestatus.MachineCatalog, opts ...Option) (*Handler, error) {
	if service == nil {
		return nil, errors.New("machine status handler: nil service")
	}
	if catalog == nil {
		return nil, errors.New("machine status handler: nil catalog")
	}
	h := &Handler{service: service, catalog: catalog, logger: log.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles routes under /api/v1.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rawID, ok := machineInfoID(r.URL.Path); ok {
		h.handleMachineInfo(w, r, rawID)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/machines":
		h.handleMachines(w, r)
	case "/api/v1/machine-types":
		h.handleMachineTypes(w, r)
	case "/api/v1/stats/buckets":
		h.handleBuckets(w, r)
	case "/api/v1/stats/daily":
		h.handleDaily(w, r)
	case "/api/v1/stats/today":
		h.handleToday(w, r)
	case "/api/v1/reports/daily.xlsx":
		h.handleExport(w, r, "xlsx")
	case "/api/v1/reports/daily.pdf":
		h.handleExport(w, r, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleMachines(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	machines, err := h.catalog.List(r.Context(), machinestatus.MachineFilter{
		Group: strings.TrimSpace(query.Get("group")),
		Type:  strings.TrimSpace(query.Get("type")),
	})
	if err != nil {
		h.logger.Printf("machine status api: list machines error: %v", err)
		http.Error(w, "query machines error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, machines)
}

func (h *Handler) handleMachineTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.ListTypes(r.Context())
	if err != nil {
		h.logger.Printf("machine status api: list types error: %v", err)
		http.Error(w, "query machine types error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

type machineBucketsResponse struct {
	MachineID int64                           `json:"machine_id"`
	Name      string                          `json:"name"`
	Buckets   []machinestatus.BucketStatistic `json:"buckets"`
	Error     string                          `json:"error,omitempty"`
}

func (h *Handler) handleBuckets(w http.ResponseWriter, r *http.Request) {
	ids, err := parseMachineIDs(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.ensureMachines(r, ids); err != nil {
		respondServiceError(w, err)
		return
	}

	results, err := h.service.BucketedStatisticsForMachines(r.Context(), ids, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := make([]machineBucketsResponse, 0, len(results))
	failed := 0
	var firstErr error
	for _, result := range results {
		item := machineBucketsResponse{MachineID: result.MachineID, Name: result.Name, Buckets: result.Buckets}
		if item.Buckets == nil {
			item.Buckets = []machinestatus.BucketStatistic{}
		}
		if result.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = result.Err
			}
			item.Error = result.Err.Error()
		}
		resp = append(resp, item)
	}
	if failed > 0 && failed == len(results) {
		respondServiceError(w, firstErr)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type dayResponse struct {
	Date         string  `json:"date"`
	RunMinutes   float64 `json:"run_minutes"`
	StopMinutes  float64 `json:"stop_minutes"`
	ErrorMinutes float64 `json:"error_minutes"`
	Efficiency   float64 `json:"efficiency"`
}

type machineDailyResponse struct {
	MachineID int64         `json:"machine_id"`
	Name      string        `json:"name"`
	Days      []dayResponse `json:"days"`
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request) {
	ids, from, to, ok := h.parseReportQuery(w, r)
	if !ok {
		return
	}
	results, err := h.service.DailyReport(r.Context(), ids, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := make([]machineDailyResponse, 0, len(results))
	for _, result := range results {
		days := make([]dayResponse, 0, len(result.Days))
		for _, day := range result.Days {
			days = append(days, dayResponse{
				Date:         day.Date.Format(dateLayout),
				RunMinutes:   day.RunMinutes,
				StopMinutes:  day.StopMinutes,
				ErrorMinutes: day.ErrorMinutes,
				Efficiency:   day.Efficiency(),
			})
		}
		resp = append(resp, machineDailyResponse{MachineID: result.MachineID, Name: result.Name, Days: days})
	}
	writeJSON(w, http.StatusOK, resp)
}

type todayResponse struct {
	MachineID     int64   `json:"machine_id"`
	Name          string  `json:"name"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	CurrentStatus string  `json:"current_status"`
	RunMinutes    float64 `json:"run_minutes"`
	StopMinutes   float64 `json:"stop_minutes"`
	ErrorMinutes  float64 `json:"error_minutes"`
	Efficiency    float64 `json:"efficiency"`
	Run           string  `json:"run"`
	Stop          string  `json:"stop"`
	Error         string  `json:"error"`
}

func (h *Handler) handleToday(w http.ResponseWriter, r *http.Request) {
	ids, err := parseMachineIDs(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.ensureMachines(r, ids); err != nil {
		respondServiceError(w, err)
		return
	}

	resp := make([]todayResponse, 0, len(ids))
	for _, id := range ids {
		summary, err := h.service.TodaySoFar(r.Context(), id)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		d := summary.Durations
		resp = append(resp, todayResponse{
			MachineID:     summary.MachineID,
			Name:          summary.Name,
			From:          summary.From.Format(timeLayout),
			To:            summary.To.Format(timeLayout),
			CurrentStatus: summary.CurrentStatus.String(),
			RunMinutes:    d.RunMinutes(),
			StopMinutes:   d.StopMinutes(),
			ErrorMinutes:  d.ErrorMinutes(),
			Efficiency:    summary.Efficiency(),
			Run:           machinestatus.FormatElapsed(d.Run),
			Stop:          machinestatus.FormatElapsed(d.Stop),
			Error:         machinestatus.FormatElapsed(d.Error),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type machineInfoRequest struct {
	Manufacturer  string `json:"manufacturer"`
	StartDate     string `json:"start_date"`
	ContactPerson string `json:"contact_person"`
}

type machineInfoResponse struct {
	MachineID        int64      `json:"machine_id"`
	Name             string     `json:"name"`
	Manufacturer     string     `json:"manufacturer"`
	StartDate        string     `json:"start_date,omitempty"`
	ContactPerson    string     `json:"contact_person"`
	LastMaintenance  *time.Time `json:"last_maintenance,omitempty"`
	RecentErrorCodes []string   `json:"recent_error_codes"`
}

func (h *Handler) handleMachineInfo(w http.ResponseWriter, r *http.Request, rawID string) {
	if h.info == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPut {
		w.Header().Set("Allow", http.MethodGet+", "+http.MethodPut)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "machine id must be a positive integer", http.StatusBadRequest)
		return
	}
	machine, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.logger.Printf("machine status api: machine %d lookup error: %v", id, err)
		http.Error(w, "query machine error", http.StatusInternalServerError)
		return
	}
	if machine == nil {
		respondServiceError(w, fmt.Errorf("%w: %d", machinestatus.ErrMachineNotFound, id))
		return
	}

	if r.Method == http.MethodPut {
		var req machineInfoRequest
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInfoBodyBytes))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		update := machinestatus.MachineInfo{MachineID: id, Manufacturer: req.Manufacturer, ContactPerson: req.ContactPerson}
		if value := strings.TrimSpace(req.StartDate); value != "" {
			started, err := time.Parse(dateLayout, value)
			if err != nil {
				http.Error(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			update.StartDate = &started
		}
		if err := h.info.SaveInfo(r.Context(), update); err != nil {
			if errors.Is(err, machinestatus.ErrInvalidMachineInfo) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			h.logger.Printf("machine status api: save info %d error: %v", id, err)
			http.Error(w, "save machine info error", http.StatusInternalServerError)
			return
		}
		h.logAudit(r, "machine_info.update", "machine", strconv.FormatInt(id, 10), map[string]any{
			"manufacturer":   strings.TrimSpace(req.Manufacturer),
			"start_date":     strings.TrimSpace(req.StartDate),
			"contact_person": strings.TrimSpace(req.ContactPerson),
		})
	}

	info, err := h.info.GetInfo(r.Context(), id)
	if err != nil {
		h.logger.Printf("machine status api: load info %d error: %v", id, err)
		http.Error(w, "query machine info error", http.StatusInternalServerError)
		return
	}
	resp := machineInfoResponse{
		MachineID:        id,
		Name:             machine.DisplayName(),
		Manufacturer:     info.Manufacturer,
		ContactPerson:    info.ContactPerson,
		LastMaintenance:  info.LastMaintenance,
		RecentErrorCodes: info.RecentErrorCodes,
	}
	if info.StartDate != nil {
		resp.StartDate = info.StartDate.Format(dateLayout)
	}
	if resp.RecentErrorCodes == nil {
		resp.RecentErrorCodes = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportExport(format, result, time.Since(start))
	}()

	ids, from, to, ok := h.parseReportQuery(w, r)
	if !ok {
		result = metrics.ResultRejected
		return
	}
	machines, err := h.service.DailyReport(r.Context(), ids, from, to)
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}

	opts := h.report
	opts.GeneratedAt = time.Now().In(h.service.Location())
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "xlsx":
		data, err = report.BuildDailyReportXLSX(machines, opts)
		contentType = contentTypeXLSX
	default:
		data, err = report.BuildDailyReportPDF(machines, opts)
		contentType = contentTypePDF
	}
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("machine status api: export %s error: %v", format, err)
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("daily-report_%s_%s.%s", from.Format(dateLayout), to.Format(dateLayout), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, "report.export", "daily_report", joinIDs(ids), map[string]any{
		"format": format,
		"from":   from.Format(dateLayout),
		"to":     to.Format(dateLayout),
	})
}

func (h *Handler) parseReportQuery(w http.ResponseWriter, r *http.Request) ([]int64, time.Time, time.Time, bool) {
	ids, err := parseMachineIDs(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, time.Time{}, time.Time{}, false
	}
	from, err := parseDateQuery(r, "from", h.service.Location())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, time.Time{}, time.Time{}, false
	}
	to, err := parseDateQuery(r, "to", h.service.Location())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return nil, time.Time{}, time.Time{}, false
	}
	if err := h.ensureMachines(r, ids); err != nil {
		respondServiceError(w, err)
		return nil, time.Time{}, time.Time{}, false
	}
	return ids, from, to, true
}

func (h *Handler) ensureMachines(r *http.Request, ids []int64) error {
	for _, id := range ids {
		machine, err := h.catalog.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if machine == nil {
			return fmt.Errorf("%w: %d", machinestatus.ErrMachineNotFound, id)
		}
	}
	return nil
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	if err := h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}); err != nil {
		h.logger.Printf("machine status api: audit error: %v", err)
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, machinestatus.ErrInvalidRange),
		errors.Is(err, machinestatus.ErrInvalidMachineID),
		errors.Is(err, machinestatus.ErrInvalidTiers),
		errors.Is(err, machinestatus.ErrInvalidMachineInfo):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, machinestatus.ErrMachineNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, machinestatus.ErrDataUnavailable):
		http.Error(w, "status data unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// machineInfoID extracts the raw id of /api/v1/machines/{id}/info.
func machineInfoID(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, machineInfoPrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, machineInfoSuffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func parseMachineIDs(r *http.Request) ([]int64, error) {
	values := r.URL.Query()["machine_id"]
	ids := make([]int64, 0, len(values))
	seen := make(map[int64]struct{}, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, errors.New("machine_id must be a positive integer")
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("machine_id is required")
	}
	if len(ids) > maxMachinesPerRequest {
		return nil, fmt.Errorf("at most %d machines per request", maxMachinesPerRequest)
	}
	return ids, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed, nil
}

func parseDateQuery(r *http.Request, key string, loc *time.Location) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, errors.New(key + " must be YYYY-MM-DD")
	}
	return parsed, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
