package interfaces

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	timeline "reservoir-ops/internal/timeline/domain"
)

// ExportMeta describes the window an export was taken from.
type ExportMeta struct {
	Title     string
	Kind      timeline.Kind
	ProjectID string
	OfficeID  string
	Window    timeline.Window
	Generated time.Time
}

func (m ExportMeta) title() string {
	if m.Title != "" {
		return m.Title
	}
	return "Operational Changes"
}

var settingHeader = []string{
	"Change Date", "Location", "Opening", "Opening Parameter", "Opening Units", "Invert Elevation",
	"Old Discharge", "New Discharge", "Discharge Units", "Scheduled Load", "Real Power", "Generation Units",
}

var changeHeader = []string{
	"Change Date", "Protected", "Reason", "Computation", "Old Total Override", "New Total Override",
	"Discharge Units", "Pool Elevation", "Tailwater Elevation", "Elevation Units", "Notes", "Settings",
}

func changeRow(c timeline.Change) []string {
	return []string{
		c.ChangeDate.UTC().Format(time.RFC3339),
		strconv.FormatBool(c.Protected),
		c.ReasonType.DisplayValue,
		c.DischargeComputationType.DisplayValue,
		formatFloat(c.OldTotalDischargeOverride),
		formatFloat(c.NewTotalDischargeOverride),
		c.DischargeUnits,
		formatFloat(c.PoolElevation),
		formatFloat(c.TailwaterElevation),
		c.ElevationUnits,
		c.Notes,
		strconv.Itoa(len(c.Settings)),
	}
}

func settingRow(at time.Time, s timeline.Setting) []string {
	return []string{
		at.UTC().Format(time.RFC3339),
		s.LocationID.Name,
		formatFloat(s.Opening),
		s.OpeningParameter,
		s.OpeningUnits,
		formatFloat(s.InvertElevation),
		formatFloat(s.OldDischarge),
		formatFloat(s.NewDischarge),
		s.DischargeUnits,
		formatFloat(s.ScheduledLoad),
		formatFloat(s.RealPower),
		s.GenerationUnits,
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func windowLabel(w timeline.Window) string {
	left, right := "[", ")"
	if !w.StartInclusive {
		left = "("
	}
	if w.EndInclusive {
		right = "]"
	}
	return left + w.Start.UTC().Format(time.RFC3339) + ", " + w.End.UTC().Format(time.RFC3339) + right
}

// BuildChangesCSV renders one row per setting, prefixed by its change date.
// Changes without settings produce a row with only the date.
func BuildChangesCSV(changes []timeline.Change) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{"Protected", "Reason"}, settingHeader...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, c := range changes {
		prefix := []string{strconv.FormatBool(c.Protected), c.ReasonType.DisplayValue}
		if len(c.Settings) == 0 {
			row := make([]string, len(settingHeader))
			row[0] = c.ChangeDate.UTC().Format(time.RFC3339)
			if err := w.Write(append(prefix, row...)); err != nil {
				return nil, err
			}
			continue
		}
		for _, s := range c.Settings {
			if err := w.Write(append(append([]string(nil), prefix...), settingRow(c.ChangeDate, s)...)); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildChangesXLSX renders a summary sheet, a changes sheet and a settings sheet.
func BuildChangesXLSX(meta ExportMeta, changes []timeline.Change) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	changesSheet := "changes"
	settingsSheet := "settings"
	f.SetSheetName("Sheet1", summarySheet)
	if _, err := f.NewSheet(changesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(settingsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", meta.title())
	_ = f.SetCellValue(summarySheet, "A3", "Office")
	_ = f.SetCellValue(summarySheet, "B3", meta.OfficeID)
	_ = f.SetCellValue(summarySheet, "A4", "Project")
	_ = f.SetCellValue(summarySheet, "B4", meta.ProjectID)
	_ = f.SetCellValue(summarySheet, "A5", "Kind")
	_ = f.SetCellValue(summarySheet, "B5", string(meta.Kind))
	_ = f.SetCellValue(summarySheet, "A6", "Window")
	_ = f.SetCellValue(summarySheet, "B6", windowLabel(meta.Window))
	_ = f.SetCellValue(summarySheet, "A7", "Changes")
	_ = f.SetCellValue(summarySheet, "B7", len(changes))
	if !meta.Generated.IsZero() {
		_ = f.SetCellValue(summarySheet, "A8", "Generated")
		_ = f.SetCellValue(summarySheet, "B8", meta.Generated.UTC().Format(time.RFC3339))
	}

	if err := writeRow(f, changesSheet, 1, changeHeader); err != nil {
		return nil, err
	}
	if err := writeRow(f, settingsSheet, 1, settingHeader); err != nil {
		return nil, err
	}
	settingRowNum := 2
	for i, c := range changes {
		if err := writeRow(f, changesSheet, i+2, changeRow(c)); err != nil {
			return nil, err
		}
		for _, s := range c.Settings {
			if err := writeRow(f, settingsSheet, settingRowNum, settingRow(c.ChangeDate, s)); err != nil {
				return nil, err
			}
			settingRowNum++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return f.SetSheetRow(sheet, cell, &out)
}

// BuildChangesPDF renders a landscape table of the changes and their settings.
func BuildChangesPDF(meta ExportMeta, changes []timeline.Change) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, meta.title())
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Project: %s/%s", meta.OfficeID, meta.ProjectID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Kind: %s", meta.Kind))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s", windowLabel(meta.Window)))
	pdf.Ln(5)
	if !meta.Generated.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", meta.Generated.UTC().Format(time.RFC3339)))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	widths := []float64{45, 20, 40, 40, 30, 30, 30}
	header := []string{"Change Date", "Protected", "Reason", "Location", "Opening", "New Discharge", "Real Power"}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range header {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, c := range changes {
		settings := c.Settings
		if len(settings) == 0 {
			settings = []timeline.Setting{{}}
		}
		for _, s := range settings {
			cells := []string{
				c.ChangeDate.UTC().Format("2006-01-02 15:04"),
				strconv.FormatBool(c.Protected),
				c.ReasonType.DisplayValue,
				s.LocationID.Name,
				formatFloat(s.Opening),
				formatFloat(s.NewDischarge),
				formatFloat(s.RealPower),
			}
			for i, v := range cells {
				align := "L"
				if i >= 4 {
					align = "R"
				}
				pdf.CellFormat(widths[i], 6, v, "1", 0, align, false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
