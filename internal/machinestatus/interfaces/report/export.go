package report

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"factory-monitor/internal/machinestatus/application"
)

const (
	exportedAtLayout = "02/01/2006 15:04"

	colorHeaderFill = "B0C4DE"
	colorStripeFill = "F0F8FF"
	colorTotalFill  = "FAFAD2"
)

var errNoMachines = errors.New("report: no machines")

// BuildDailyReportXLSX renders one worksheet per machine.
func BuildDailyReportXLSX(machines []application.MachineDaily, opts Options) ([]byte, error) {
	if len(machines) == 0 {
		return nil, errNoMachines
	}
	opts = opts.withDefaults()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	styles, err := newSheetStyles(f)
	if err != nil {
		return nil, err
	}

	used := make(map[string]struct{}, len(machines))
	for i, machine := range machines {
		table := BuildTable(machine, opts.WeeklyAfterDays)
		sheet := SheetName(machine.Name, machine.MachineID, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
		if err := writeSheet(f, sheet, table, opts, styles); err != nil {
			return nil, fmt.Errorf("report: sheet %q: %w", sheet, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type sheetStyles struct {
	bold, italic, title, exported, header, value, stripe, total int
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	defs := []*excelize.Style{
		{Font: &excelize.Font{Bold: true, Size: 10}},
		{Font: &excelize.Font{Italic: true}},
		{
			Font:      &excelize.Font{Bold: true, Size: 16},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		},
		{
			Font:      &excelize.Font{Italic: true},
			Alignment: &excelize.Alignment{Horizontal: "right"},
		},
		{
			Font:      &excelize.Font{Bold: true},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{colorHeaderFill}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center"},
			Border:    border,
		},
		{NumFmt: 2, Border: border},
		{
			NumFmt: 2,
			Fill:   excelize.Fill{Type: "pattern", Color: []string{colorStripeFill}, Pattern: 1},
			Border: border,
		},
		{
			NumFmt: 2,
			Font:   &excelize.Font{Bold: true},
			Fill:   excelize.Fill{Type: "pattern", Color: []string{colorTotalFill}, Pattern: 1},
			Border: border,
		},
	}
	var s sheetStyles
	targets := []*int{&s.bold, &s.italic, &s.title, &s.exported, &s.header, &s.value, &s.stripe, &s.total}
	for i, def := range defs {
		id, err := f.NewStyle(def)
		if err != nil {
			return sheetStyles{}, err
		}
		*targets[i] = id
	}
	return s, nil
}

func writeSheet(f *excelize.File, sheet string, table Table, opts Options, styles sheetStyles) error {
	totalColumns := len(table.Columns) + 2
	lastCol, err := excelize.ColumnNumberToName(totalColumns)
	if err != nil {
		return err
	}
	row := 1

	for i, line := range opts.Header.Lines() {
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetCellValue(sheet, cell, line); err != nil {
			return err
		}
		style := styles.italic
		if i == 0 {
			style = styles.bold
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
		row++
	}
	if row > 1 {
		row++
	}

	titleCell := fmt.Sprintf("A%d", row)
	if err := f.MergeCell(sheet, titleCell, fmt.Sprintf("%s%d", lastCol, row)); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, titleCell, fmt.Sprintf("%s - %s", opts.Title, table.MachineName)); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, titleCell, titleCell, styles.title); err != nil {
		return err
	}
	row++

	exportedCell := fmt.Sprintf("A%d", row)
	if err := f.MergeCell(sheet, exportedCell, fmt.Sprintf("%s%d", lastCol, row)); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, exportedCell, "Exported: "+opts.GeneratedAt.Format(exportedAtLayout)); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, exportedCell, exportedCell, styles.exported); err != nil {
		return err
	}
	row += 2

	header := make([]any, 0, totalColumns)
	header = append(header, "Metric")
	for _, col := range table.Columns {
		header = append(header, col.Label)
	}
	header = append(header, table.Total.Label)
	headerCell := fmt.Sprintf("A%d", row)
	if err := f.SetSheetRow(sheet, headerCell, &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, headerCell, fmt.Sprintf("%s%d", lastCol, row), styles.header); err != nil {
		return err
	}
	row++

	totals := table.Total.Values()
	for r, label := range RowLabels {
		values := make([]any, 0, totalColumns)
		values = append(values, label)
		for _, col := range table.Columns {
			values = append(values, col.Values()[r])
		}
		values = append(values, totals[r])

		first := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(sheet, first, &values); err != nil {
			return err
		}
		style := styles.value
		if r%2 == 0 {
			style = styles.stripe
		}
		if err := f.SetCellStyle(sheet, first, fmt.Sprintf("%s%d", lastCol, row), style); err != nil {
			return err
		}
		totalCell := fmt.Sprintf("%s%d", lastCol, row)
		if err := f.SetCellStyle(sheet, totalCell, totalCell, styles.total); err != nil {
			return err
		}
		row++
	}

	return f.SetColWidth(sheet, "A", lastCol, 18)
}

// BuildDailyReportPDF renders one page per machine.
func BuildDailyReportPDF(machines []application.MachineDaily, opts Options) ([]byte, error) {
	if len(machines) == 0 {
		return nil, errNoMachines
	}
	opts = opts.withDefaults()

	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageWidth, pageHeight := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	usable := pageWidth - left - right

	for _, machine := range machines {
		table := BuildTable(machine, opts.WeeklyAfterDays)
		pdf.AddPage()

		for i, line := range opts.Header.Lines() {
			style := "I"
			if i == 0 {
				style = "B"
			}
			pdf.SetFont("Arial", style, 10)
			pdf.Cell(0, 5, tr(line))
			pdf.Ln(5)
		}
		pdf.Ln(3)

		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("%s - %s", opts.Title, table.MachineName)), "", 1, "C", false, 0, "")
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, "Exported: "+opts.GeneratedAt.Format(exportedAtLayout), "", 1, "R", false, 0, "")
		pdf.Ln(4)

		perBlock := len(table.Columns)
		if perBlock > pdfColumnsPerBlock {
			perBlock = pdfColumnsPerBlock
		}
		labelWidth := 32.0
		cellWidth := (usable - labelWidth) / float64(perBlock+1)
		fontSize := 8.0
		if table.Weekly {
			fontSize = 7
		}

		for b, block := range splitColumns(table, pdfColumnsPerBlock) {
			if b > 0 {
				pdf.Ln(4)
			}
			if pdf.GetY()+pdfBlockHeight > pageHeight-bottom {
				pdf.AddPage()
			}
			writePDFBlock(pdf, tr, block, labelWidth, cellWidth, fontSize)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	// pdfColumnsPerBlock keeps landscape A4 cells wide enough to read.
	pdfColumnsPerBlock = 12
	pdfHeaderHeight    = 7.0
	pdfRowHeight       = 6.0
	pdfBlockHeight     = pdfHeaderHeight + pdfRowHeight*4
)

// tableBlock is one horizontal slice of a report table. Only the last block
// of a table carries the total column.
type tableBlock struct {
	Columns []Column
	Total   *Column
}

func splitColumns(table Table, perBlock int) []tableBlock {
	if perBlock <= 0 {
		perBlock = pdfColumnsPerBlock
	}
	var blocks []tableBlock
	for start := 0; start < len(table.Columns); start += perBlock {
		end := start + perBlock
		if end > len(table.Columns) {
			end = len(table.Columns)
		}
		blocks = append(blocks, tableBlock{Columns: table.Columns[start:end]})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, tableBlock{})
	}
	total := table.Total
	blocks[len(blocks)-1].Total = &total
	return blocks
}

func writePDFBlock(pdf *gofpdf.Fpdf, tr func(string) string, block tableBlock, labelWidth, cellWidth, fontSize float64) {
	pdf.SetFont("Arial", "B", fontSize)
	pdf.SetFillColor(176, 196, 222)
	pdf.CellFormat(labelWidth, pdfHeaderHeight, "Metric", "1", 0, "C", true, 0, "")
	for _, col := range block.Columns {
		pdf.CellFormat(cellWidth, pdfHeaderHeight, tr(col.Label), "1", 0, "C", true, 0, "")
	}
	if block.Total != nil {
		pdf.CellFormat(cellWidth, pdfHeaderHeight, block.Total.Label, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	for r, label := range RowLabels {
		stripe := r%2 == 0
		pdf.SetFillColor(240, 248, 255)
		pdf.SetFont("Arial", "", fontSize)
		pdf.CellFormat(labelWidth, pdfRowHeight, label, "1", 0, "L", stripe, 0, "")
		for _, col := range block.Columns {
			pdf.CellFormat(cellWidth, pdfRowHeight, formatValue(col.Values()[r]), "1", 0, "R", stripe, 0, "")
		}
		if block.Total != nil {
			pdf.SetFillColor(250, 250, 210)
			pdf.SetFont("Arial", "B", fontSize)
			pdf.CellFormat(cellWidth, pdfRowHeight, formatValue(block.Total.Values()[r]), "1", 0, "R", true, 0, "")
		}
		pdf.Ln(-1)
	}
}
