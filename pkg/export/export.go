package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"retail-cohorts/pkg/models"

	"github.com/xuri/excelize/v2"
)

// Colonnes du plan d'action, dans l'ordre du fichier exporté par le tableau de bord.
var actionPlanHeader = []string{"CustomerID", "Recency", "Frequency", "Monetary", "RFM_Score", "Segment", "RFM_Segment"}

// TimestampedFilename construit dir/name_YYYYMMDD_HHMMSS.ext.
func TimestampedFilename(dir, name, ext string, at time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", name, at.Format("20060102_150405"), ext))
}

func create(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return f, nil
}

// WriteJSON écrit v en JSON indenté.
func WriteJSON(path string, v any) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write JSON %s: %w", path, err)
	}
	return f.Close()
}

func actionPlanRow(r models.RFMRecord) []string {
	return []string{
		strconv.FormatUint(r.CustomerID, 10),
		strconv.Itoa(r.Recency),
		strconv.Itoa(r.Frequency),
		strconv.FormatFloat(r.Monetary, 'f', 2, 64),
		strconv.Itoa(r.RFMScore),
		r.Segment,
		r.RFMSegment,
	}
}

// WriteActionPlanCSV écrit la liste de clients d'un segment (voir calculator.ActionPlan).
func WriteActionPlanCSV(path string, records []models.RFMRecord) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(actionPlanHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(actionPlanRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write CSV %s: %w", path, err)
	}
	return f.Close()
}

// retentionRows met la matrice à plat : une ligne par cohorte, cellule vide
// quand la cohorte n'a pas encore atteint l'âge.
func retentionRows(m models.RetentionMatrix) [][]string {
	header := []string{"CohortMonth", "Size"}
	for age := 1; age <= m.MaxAge; age++ {
		header = append(header, strconv.Itoa(age))
	}
	out := [][]string{header}
	for _, r := range m.Rows {
		row := []string{r.CohortMonth.Format("2006-01"), strconv.Itoa(r.Size)}
		for age := 1; age <= m.MaxAge; age++ {
			cell := ""
			if age <= len(r.Fractions) && r.Fractions[age-1].Valid {
				cell = strconv.FormatFloat(r.Fractions[age-1].Float64, 'f', 4, 64)
			}
			row = append(row, cell)
		}
		out = append(out, row)
	}
	return out
}

// WriteRetentionCSV écrit la matrice de rétention en fractions.
func WriteRetentionCSV(path string, m models.RetentionMatrix) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(retentionRows(m)); err != nil {
		return fmt.Errorf("write CSV %s: %w", path, err)
	}
	return f.Close()
}

// Noms des feuilles du classeur.
const (
	SheetRetention  = "Retention"
	SheetSegments   = "Segments"
	SheetCLV        = "CLV"
	SheetActionPlan = "ActionPlan"
)

// WriteXLSX écrit le rapport dans un classeur : rétention, segments,
// CLV empirique et plan d'action.
func WriteXLSX(path string, report *models.Report, plan []models.RFMRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetRetention); err != nil {
		return err
	}
	if err := writeSheet(f, SheetRetention, stringRows(retentionRows(report.Retention))); err != nil {
		return err
	}

	segments := [][]any{{"Segment", "Count", "Recency", "Frequency", "Monetary", "AvgOrderValue", "ShareOfRevenue"}}
	for _, s := range report.Segments {
		segments = append(segments, []any{s.Segment, s.Count, s.Recency, s.Frequency, s.Monetary, s.AvgOrderValue, s.ShareOfRevenue})
	}
	if err := addSheet(f, SheetSegments, segments); err != nil {
		return err
	}

	clv := [][]any{{"CohortIndex", "RevenuePerCustomer", "CumulativeCLV"}}
	for _, p := range report.EmpiricalCLV {
		clv = append(clv, []any{p.CohortIndex, p.RevenuePerCustomer, p.CumulativeCLV})
	}
	if err := addSheet(f, SheetCLV, clv); err != nil {
		return err
	}

	actions := [][]any{toAny(actionPlanHeader)}
	for _, r := range plan {
		actions = append(actions, []any{r.CustomerID, r.Recency, r.Frequency, r.Monetary, r.RFMScore, r.Segment, r.RFMSegment})
	}
	if err := addSheet(f, SheetActionPlan, actions); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func addSheet(f *excelize.File, name string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	return writeSheet(f, name, rows)
}

func writeSheet(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func stringRows(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = toAny(r)
	}
	return out
}

func toAny(xs []string) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
