package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/report-pipeline-client/internal/core/domain"
)

const SheetName = "Reports"

var header = []any{"Report ID", "Company", "Created", "Source", "Extract", "Output", "Pipeline", "Errors"}

// Row is one report together with its latest file snapshot.
type Row struct {
	Report domain.Report
	Files  []domain.ReportFile
}

type Exporter struct {
	timeLayout string
}

func NewExporter() *Exporter {
	return &Exporter{timeLayout: "2006-01-02 15:04"}
}

// Write renders rows as a single-sheet workbook.
func (e *Exporter) Write(w io.Writer, rows []Row) error {
	f, err := e.build(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (e *Exporter) SaveAs(path string, rows []Row) error {
	f, err := e.build(rows)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func (e *Exporter) build(rows []Row) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(SheetName, "A1", "H1", bold)
	}
	_ = f.SetColWidth(SheetName, "B", "B", 28)
	_ = f.SetColWidth(SheetName, "C", "G", 16)
	_ = f.SetColWidth(SheetName, "H", "H", 48)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("resolve row %d: %w", i+2, err)
		}
		values := e.values(row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write report %d: %w", row.Report.ID, err)
		}
	}
	return f, nil
}

func (e *Exporter) values(row Row) []any {
	pipeline := domain.DerivePipeline(row.Files)

	created := ""
	if !row.Report.CreatedAt.IsZero() {
		created = row.Report.CreatedAt.Format(e.timeLayout)
	}

	values := []any{row.Report.ID, row.Report.CompanyName, created}
	var errs []string
	for _, category := range domain.PipelineCategories {
		stage := pipeline.Stage(category)
		if stage == nil {
			values = append(values, "-")
			continue
		}
		values = append(values, string(stage.Status))
		if stage.Error != "" {
			errs = append(errs, string(category)+": "+stage.Error)
		}
	}
	return append(values, pipeline.Summary(), strings.Join(errs, "; "))
}
