package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"factory-monitor/internal/machinestatus/application"
	machinestatus "factory-monitor/internal/machinestatus/domain"
)

func machineDays(id int64, name string, count int) application.MachineDaily {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	days := make([]machinestatus.DailyStatistic, 0, count)
	for i := 0; i < count; i++ {
		days = append(days, machinestatus.DailyStatistic{
			Date:         start.AddDate(0, 0, i),
			RunMinutes:   600,
			StopMinutes:  800,
			ErrorMinutes: 40,
		})
	}
	return application.MachineDaily{MachineID: id, Name: name, Days: days}
}

func TestBuildTable_DailyColumns(t *testing.T) {
	machine := machineDays(1, "CNC-01", 3)
	machine.Days[2] = machinestatus.DailyStatistic{Date: machine.Days[2].Date}

	table := BuildTable(machine, 0)

	assert.False(t, table.Weekly)
	require.Len(t, table.Columns, 3)
	assert.Equal(t, "01/03/2024", table.Columns[0].Label)
	assert.Equal(t, 41.7, table.Columns[0].Efficiency)
	assert.Zero(t, table.Columns[2].Efficiency, "an empty day has no efficiency")

	assert.Equal(t, 1200.0, table.Total.Run)
	assert.Equal(t, 1600.0, table.Total.Stop)
	assert.Equal(t, 80.0, table.Total.Error)
	assert.Equal(t, 41.7, table.Total.Efficiency)
	assert.Equal(t, "Total", table.Total.Label)
}

func TestBuildTable_WeeklyColumnsAfterTwoWeeks(t *testing.T) {
	table := BuildTable(machineDays(1, "CNC-01", 14), DefaultWeeklyAfterDays)
	assert.False(t, table.Weekly, "exactly 14 days stays daily")
	assert.Len(t, table.Columns, 14)

	table = BuildTable(machineDays(1, "CNC-01", 17), DefaultWeeklyAfterDays)

	assert.True(t, table.Weekly)
	require.Len(t, table.Columns, 3)
	assert.Equal(t, "Week 1 (01/03/2024-07/03/2024)", table.Columns[0].Label)
	assert.Equal(t, "Week 3 (15/03/2024-17/03/2024)", table.Columns[2].Label)
	assert.Equal(t, 7*600.0, table.Columns[0].Run)
	assert.Equal(t, 3*40.0, table.Columns[2].Error)
	assert.Equal(t, 17*600.0, table.Total.Run)
}

func TestBuildTable_EmptyMachineTotals(t *testing.T) {
	table := BuildTable(application.MachineDaily{MachineID: 9}, 0)

	assert.Empty(t, table.Columns)
	assert.Zero(t, table.Total.Efficiency)
}

func TestSheetName(t *testing.T) {
	used := map[string]struct{}{}

	assert.Equal(t, "Line ACNC01", SheetName("Line A/CNC:01?", 1, used))
	assert.Equal(t, "Machine 7", SheetName("[]*", 7, used))

	long := strings.Repeat("é", 40)
	name := SheetName(long, 2, used)
	assert.Equal(t, 31, len([]rune(name)))

	dup := SheetName(long, 3, used)
	assert.NotEqual(t, name, dup)
	assert.True(t, strings.HasSuffix(dup, " (2)"))
	assert.Equal(t, 31, len([]rune(dup)))
}

func TestBuildDailyReportXLSX(t *testing.T) {
	machines := []application.MachineDaily{
		machineDays(1, "CNC-01", 2),
		machineDays(2, "CNC-01", 20),
	}

	data, err := BuildDailyReportXLSX(machines, Options{
		Header:      Header{Company: "Acme Industrial", Address: "1 Factory Road"},
		GeneratedAt: time.Date(2024, time.April, 1, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"CNC-01", "CNC-01 (2)"}, f.GetSheetList())

	company, err := f.GetCellValue("CNC-01", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Industrial", company)

	rows, err := f.GetRows("CNC-01")
	require.NoError(t, err)
	var header []string
	for _, row := range rows {
		if len(row) > 0 && row[0] == "Metric" {
			header = row
		}
	}
	require.NotNil(t, header)
	assert.Equal(t, []string{"Metric", "01/03/2024", "02/03/2024", "Total"}, header)

	weekly, err := f.GetRows("CNC-01 (2)")
	require.NoError(t, err)
	found := false
	for _, row := range weekly {
		if len(row) > 1 && strings.HasPrefix(row[1], "Week 1") {
			found = true
		}
	}
	assert.True(t, found, "a 20 day report groups by week")
}

func TestBuildDailyReportPDF(t *testing.T) {
	data, err := BuildDailyReportPDF([]application.MachineDaily{
		machineDays(1, "Máy cắt", 3),
		machineDays(2, "Press-01", 30),
	}, Options{Header: Header{Company: "Acme"}})

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestSplitColumns_WrapsWideTables(t *testing.T) {
	table := BuildTable(machineDays(1, "CNC-01", 365), DefaultWeeklyAfterDays)
	require.Len(t, table.Columns, 53)

	blocks := splitColumns(table, pdfColumnsPerBlock)

	require.Len(t, blocks, 5)
	widths := make([]int, 0, len(blocks))
	for i, block := range blocks {
		widths = append(widths, len(block.Columns))
		if i < len(blocks)-1 {
			assert.Nil(t, block.Total, "block %d", i)
		}
	}
	assert.Equal(t, []int{12, 12, 12, 12, 5}, widths)
	assert.True(t, strings.HasPrefix(blocks[1].Columns[0].Label, "Week 13 "))
	require.NotNil(t, blocks[4].Total)
	assert.Equal(t, table.Total, *blocks[4].Total)

	short := splitColumns(BuildTable(machineDays(1, "CNC-01", 3), 0), pdfColumnsPerBlock)
	require.Len(t, short, 1)
	assert.Len(t, short[0].Columns, 3)
	assert.NotNil(t, short[0].Total)

	empty := splitColumns(BuildTable(application.MachineDaily{MachineID: 9}, 0), pdfColumnsPerBlock)
	require.Len(t, empty, 1)
	assert.Empty(t, empty[0].Columns)
	assert.NotNil(t, empty[0].Total)
}

func TestBuildDailyReportPDF_YearOfWeeks(t *testing.T) {
	data, err := BuildDailyReportPDF([]application.MachineDaily{
		machineDays(1, "CNC-01", 365),
		machineDays(2, "Press-01", 14),
	}, Options{Header: Header{Company: "Acme", Address: "1 Mill Road", Contact: "ops@acme.test"}})

	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestBuildReport_NoMachines(t *testing.T) {
	_, err := BuildDailyReportXLSX(nil, Options{})
	require.Error(t, err)
	_, err = BuildDailyReportPDF(nil, Options{})
	require.Error(t, err)
}
