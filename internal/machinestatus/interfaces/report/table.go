package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"factory-monitor/internal/machinestatus/application"
	machinestatus "factory-monitor/internal/machinestatus/domain"
)

// DefaultWeeklyAfterDays is the day count above which columns group by week.
const DefaultWeeklyAfterDays = 14

const (
	maxSheetNameLen = 31
	daysPerWeek     = 7
)

// Row labels of the report table, top to bottom.
var RowLabels = []string{"RUN (min)", "STOP (min)", "ERROR (min)", "Efficiency (%)"}

// Header holds the company lines printed above every table.
type Header struct {
	Company string `yaml:"company"`
	Address string `yaml:"address"`
	Contact string `yaml:"contact"`
}

// Lines returns the non-empty header lines.
func (h Header) Lines() []string {
	lines := make([]string, 0, 3)
	for _, line := range []string{h.Company, h.Address, h.Contact} {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Options configures rendering.
type Options struct {
	Header          Header
	Title           string
	WeeklyAfterDays int
	GeneratedAt     time.Time
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "PRODUCTION REPORT"
	}
	if o.WeeklyAfterDays <= 0 {
		o.WeeklyAfterDays = DefaultWeeklyAfterDays
	}
	if o.GeneratedAt.IsZero() {
		o.GeneratedAt = time.Now()
	}
	return o
}

// Column is one day or one week of a machine's table.
type Column struct {
	Label      string
	Run        float64
	Stop       float64
	Error      float64
	Efficiency float64
}

// Values returns the column in RowLabels order.
func (c Column) Values() []float64 {
	return []float64{c.Run, c.Stop, c.Error, c.Efficiency}
}

// Table is the report of one machine.
type Table struct {
	MachineID   int64
	MachineName string
	Weekly      bool
	Columns     []Column
	Total       Column
}

// BuildTable turns daily statistics into report columns. Spans longer than
// weeklyAfterDays are grouped into 7-day columns counted from the first day.
func BuildTable(machine application.MachineDaily, weeklyAfterDays int) Table {
	if weeklyAfterDays <= 0 {
		weeklyAfterDays = DefaultWeeklyAfterDays
	}
	table := Table{
		MachineID:   machine.MachineID,
		MachineName: machine.Name,
		Weekly:      len(machine.Days) > weeklyAfterDays,
		Columns:     make([]Column, 0, len(machine.Days)),
		Total:       Column{Label: "Total"},
	}

	if !table.Weekly {
		for _, day := range machine.Days {
			table.Columns = append(table.Columns, newColumn(day.DateLabel(), day.RunMinutes, day.StopMinutes, day.ErrorMinutes))
		}
	} else {
		for i := 0; i < len(machine.Days); i += daysPerWeek {
			end := i + daysPerWeek
			if end > len(machine.Days) {
				end = len(machine.Days)
			}
			var run, stop, errMinutes float64
			for _, day := range machine.Days[i:end] {
				run += day.RunMinutes
				stop += day.StopMinutes
				errMinutes += day.ErrorMinutes
			}
			label := fmt.Sprintf("Week %d (%s-%s)", i/daysPerWeek+1, machine.Days[i].DateLabel(), machine.Days[end-1].DateLabel())
			table.Columns = append(table.Columns, newColumn(label, run, stop, errMinutes))
		}
	}

	for _, col := range table.Columns {
		table.Total.Run += col.Run
		table.Total.Stop += col.Stop
		table.Total.Error += col.Error
	}
	sum := table.Total.Run + table.Total.Stop + table.Total.Error
	table.Total.Efficiency = round1(table.Total.Run / math.Max(1, sum) * 100)
	return table
}

func newColumn(label string, run, stop, errMinutes float64) Column {
	return Column{
		Label:      label,
		Run:        run,
		Stop:       stop,
		Error:      errMinutes,
		Efficiency: machinestatus.EfficiencyPercent(run, run+stop+errMinutes),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SheetName returns a worksheet name for the machine: characters rejected by
// spreadsheet applications removed, at most 31 runes, unique within used.
func SheetName(name string, machineID int64, used map[string]struct{}) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	cleaned = strings.Trim(strings.TrimSpace(cleaned), "'")
	if cleaned == "" {
		cleaned = "Machine " + strconv.FormatInt(machineID, 10)
	}
	cleaned = truncateRunes(cleaned, maxSheetNameLen)

	candidate := cleaned
	for n := 2; ; n++ {
		if _, taken := used[strings.ToLower(candidate)]; !taken {
			break
		}
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateRunes(cleaned, maxSheetNameLen-utf8.RuneCountInString(suffix)) + suffix
	}
	if used != nil {
		used[strings.ToLower(candidate)] = struct{}{}
	}
	return candidate
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
