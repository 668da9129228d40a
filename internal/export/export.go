// Package export shapes the materialized row set for operators: the wide
// pivot table, the per-company solvency ratio and delimited output. It
// consumes collected rows only and never talks to the network.
package export

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"solvtrack/internal/model"
)

// Pivot is the wide table: one row per (sector, company), one column per
// account name.
type Pivot struct {
	Columns []string
	Rows    []PivotRow
}

type PivotRow struct {
	Sector      model.Sector
	CompanyName string
	Period      string
	Values      map[string]*float64
}

// BuildPivot pivots flat rows into the wide table. The first value seen
// for a cell wins; columns are the union of account names across both
// sources, so no column is dropped.
func BuildPivot(rows []model.StatRow) Pivot {
	columnSet := make(map[string]struct{})
	byCompany := make(map[string]*PivotRow)
	order := make([]string, 0)

	for _, row := range rows {
		account := strings.TrimSpace(row.AccountName)
		if account == "" {
			account = strings.TrimSpace(row.AccountCode)
		}
		columnSet[account] = struct{}{}

		key := string(row.Sector) + "|" + strings.TrimSpace(row.CompanyName)
		pivotRow, ok := byCompany[key]
		if !ok {
			pivotRow = &PivotRow{
				Sector:      row.Sector,
				CompanyName: strings.TrimSpace(row.CompanyName),
				Period:      row.Period,
				Values:      make(map[string]*float64),
			}
			byCompany[key] = pivotRow
			order = append(order, key)
		}
		if _, exists := pivotRow.Values[account]; !exists {
			pivotRow.Values[account] = row.Value
		}
	}

	columns := make([]string, 0, len(columnSet))
	for column := range columnSet {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	pivotRows := make([]PivotRow, 0, len(order))
	for _, key := range order {
		pivotRows = append(pivotRows, *byCompany[key])
	}

	return Pivot{Columns: columns, Rows: pivotRows}
}

// WriteCSV emits the pivot as delimited text with a header row.
func WriteCSV(w io.Writer, pivot Pivot) error {
	writer := csv.NewWriter(w)

	header := append([]string{"sector", "company", "period"}, pivot.Columns...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range pivot.Rows {
		record := []string{string(row.Sector), row.CompanyName, row.Period}
		for _, column := range pivot.Columns {
			record = append(record, formatValue(row.Values[column]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// RatioEntry is the downstream solvency metric for one company:
// available capital over required capital.
type RatioEntry struct {
	Sector      model.Sector `json:"sector"`
	CompanyCode string       `json:"company_code"`
	CompanyName string       `json:"company_name"`
	Available   *float64     `json:"available"`
	Required    *float64     `json:"required"`
	Ratio       *float64     `json:"ratio"`
}

// SolvencyRatios computes available ÷ required per company from the two
// named account codes. Companies missing either fact, or with a zero
// denominator, keep a nil ratio instead of being dropped.
func SolvencyRatios(rows []model.StatRow, availableCode, requiredCode string) []RatioEntry {
	availableCode = strings.TrimSpace(availableCode)
	requiredCode = strings.TrimSpace(requiredCode)

	byCompany := make(map[string]*RatioEntry)
	order := make([]string, 0)

	for _, row := range rows {
		code := strings.TrimSpace(row.AccountCode)
		if code != availableCode && code != requiredCode {
			continue
		}
		key := string(row.Sector) + "|" + strings.TrimSpace(row.CompanyCode)
		entry, ok := byCompany[key]
		if !ok {
			entry = &RatioEntry{
				Sector:      row.Sector,
				CompanyCode: strings.TrimSpace(row.CompanyCode),
				CompanyName: strings.TrimSpace(row.CompanyName),
			}
			byCompany[key] = entry
			order = append(order, key)
		}
		if code == availableCode && entry.Available == nil {
			entry.Available = row.Value
		}
		if code == requiredCode && entry.Required == nil {
			entry.Required = row.Value
		}
	}

	sort.Strings(order)
	entries := make([]RatioEntry, 0, len(order))
	for _, key := range order {
		entry := byCompany[key]
		if entry.Available != nil && entry.Required != nil && *entry.Required != 0 {
			ratio := *entry.Available / *entry.Required
			entry.Ratio = &ratio
		}
		entries = append(entries, *entry)
	}
	return entries
}

func formatValue(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}
