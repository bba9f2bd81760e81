package interfaces

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	outlets "reservoir-ops/internal/outlets/domain"
	timeline "reservoir-ops/internal/timeline/domain"
)

func sampleChanges() []timeline.Change {
	project := outlets.NewLocationID("SWT", "KEYS")
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return []timeline.Change{
		{
			Kind:                     timeline.KindGate,
			ProjectID:                project,
			ChangeDate:               base,
			Protected:                true,
			ReasonType:               timeline.LookupType{OfficeID: "SWT", DisplayValue: "Flood", Active: true},
			DischargeComputationType: timeline.LookupType{OfficeID: "SWT", DisplayValue: "Adjusted", Active: true},
			Settings: []timeline.Setting{
				{LocationID: outlets.NewLocationID("SWT", "KEYS-Gate1"), Opening: timeline.Float(2.5), OpeningUnits: "ft"},
				{LocationID: outlets.NewLocationID("SWT", "KEYS-Gate2"), Opening: timeline.Float(1), OpeningUnits: "ft"},
			},
		},
		{
			Kind:                     timeline.KindGate,
			ProjectID:                project,
			ChangeDate:               base.Add(time.Hour),
			ReasonType:               timeline.LookupType{OfficeID: "SWT", DisplayValue: "Routine", Active: true},
			DischargeComputationType: timeline.LookupType{OfficeID: "SWT", DisplayValue: "Adjusted", Active: true},
		},
	}
}

func sampleMeta() ExportMeta {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return ExportMeta{
		Kind:      timeline.KindGate,
		OfficeID:  "SWT",
		ProjectID: "KEYS",
		Window:    timeline.NewWindow(base, base.Add(24*time.Hour)),
	}
}

func TestBuildChangesCSV(t *testing.T) {
	data, err := BuildChangesCSV(sampleChanges())
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	if rows[1][3] != "KEYS-Gate1" || rows[1][4] != "2.5" || rows[1][0] != "true" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[3][2] != "2024-05-01T09:00:00Z" || rows[3][3] != "" {
		t.Fatalf("expected bare change row, got %v", rows[3])
	}
}

func TestBuildChangesXLSX(t *testing.T) {
	data, err := BuildChangesXLSX(sampleMeta(), sampleChanges())
	if err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if v, _ := f.GetCellValue("summary", "B6"); v != "[2024-05-01T00:00:00Z, 2024-05-02T00:00:00Z)" {
		t.Fatalf("unexpected window label %q", v)
	}
	changes, err := f.GetRows("changes")
	if err != nil || len(changes) != 3 {
		t.Fatalf("expected header plus 2 changes, got %v %v", changes, err)
	}
	settings, err := f.GetRows("settings")
	if err != nil || len(settings) != 3 {
		t.Fatalf("expected header plus 2 settings, got %v %v", settings, err)
	}
	if settings[2][1] != "KEYS-Gate2" {
		t.Fatalf("unexpected settings row %v", settings[2])
	}
}

func TestBuildChangesPDF(t *testing.T) {
	data, err := BuildChangesPDF(sampleMeta(), sampleChanges())
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected pdf header")
	}
}
