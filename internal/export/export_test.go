package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solvtrack/internal/model"
)

func row(sector model.Sector, companyCode, companyName, accountCode, accountName string, value *float64) model.StatRow {
	return model.StatRow{
		Sector:      sector,
		CompanyCode: companyCode,
		CompanyName: companyName,
		AccountCode: accountCode,
		AccountName: accountName,
		Period:      "202506",
		Value:       value,
	}
}

func floatPtr(v float64) *float64 { return &v }

// TestBuildPivot_WideTable verifies one row per company and the column
// union across sources.
func TestBuildPivot_WideTable(t *testing.T) {
	rows := []model.StatRow{
		row(model.SectorLife, "A1", "Alpha Life", "AC1", "Available capital", floatPtr(10)),
		row(model.SectorLife, "A1", "Alpha Life", "AC2", "Required capital", floatPtr(5)),
		row(model.SectorNonLife, "N1", "Delta General", "AC1", "Available capital", floatPtr(20)),
	}

	pivot := BuildPivot(rows)

	assert.Equal(t, []string{"Available capital", "Required capital"}, pivot.Columns)
	require.Len(t, pivot.Rows, 2)

	byName := map[string]PivotRow{}
	for _, pivotRow := range pivot.Rows {
		byName[pivotRow.CompanyName] = pivotRow
	}

	alpha := byName["Alpha Life"]
	require.NotNil(t, alpha.Values["Available capital"])
	assert.Equal(t, 10.0, *alpha.Values["Available capital"])
	require.NotNil(t, alpha.Values["Required capital"])
	assert.Equal(t, 5.0, *alpha.Values["Required capital"])

	delta := byName["Delta General"]
	require.NotNil(t, delta.Values["Available capital"])
	assert.Equal(t, 20.0, *delta.Values["Available capital"])
	_, hasRequired := delta.Values["Required capital"]
	assert.False(t, hasRequired, "missing cell stays empty, column is kept")
}

// TestBuildPivot_FirstValueWins verifies duplicate cells keep the first
// value seen, matching the original aggregation.
func TestBuildPivot_FirstValueWins(t *testing.T) {
	rows := []model.StatRow{
		row(model.SectorLife, "A1", "Alpha Life", "AC1", "Available capital", floatPtr(10)),
		row(model.SectorLife, "A1", "Alpha Life", "AC1", "Available capital", floatPtr(99)),
	}

	pivot := BuildPivot(rows)
	require.Len(t, pivot.Rows, 1)
	require.NotNil(t, pivot.Rows[0].Values["Available capital"])
	assert.Equal(t, 10.0, *pivot.Rows[0].Values["Available capital"])
}

// TestWriteCSV_Shape verifies the delimited export: header plus one
// record per company, empty cells for nil values.
func TestWriteCSV_Shape(t *testing.T) {
	pivot := BuildPivot([]model.StatRow{
		row(model.SectorLife, "A1", "Alpha Life", "AC1", "Available capital", floatPtr(10)),
		row(model.SectorLife, "A1", "Alpha Life", "AC2", "Required capital", nil),
	})

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, pivot))

	assert.Equal(t,
		"sector,company,period,Available capital,Required capital\n"+
			"life,Alpha Life,202506,10,\n",
		buf.String(),
	)
}

// TestSolvencyRatios verifies available over required per company, with
// nil ratios for missing facts or a zero denominator.
func TestSolvencyRatios(t *testing.T) {
	rows := []model.StatRow{
		row(model.SectorLife, "A1", "Alpha Life", "A001", "Available capital", floatPtr(300)),
		row(model.SectorLife, "A1", "Alpha Life", "B001", "Required capital", floatPtr(150)),
		row(model.SectorLife, "A2", "Gamma Life", "A001", "Available capital", floatPtr(100)),
		row(model.SectorNonLife, "N1", "Delta General", "A001", "Available capital", floatPtr(50)),
		row(model.SectorNonLife, "N1", "Delta General", "B001", "Required capital", floatPtr(0)),
	}

	entries := SolvencyRatios(rows, "A001", "B001")
	require.Len(t, entries, 3)

	byCode := map[string]RatioEntry{}
	for _, entry := range entries {
		byCode[entry.CompanyCode] = entry
	}

	alpha := byCode["A1"]
	require.NotNil(t, alpha.Ratio)
	assert.Equal(t, 2.0, *alpha.Ratio)

	gamma := byCode["A2"]
	assert.Nil(t, gamma.Ratio, "missing required capital leaves the ratio unknown")

	delta := byCode["N1"]
	assert.Nil(t, delta.Ratio, "zero denominator leaves the ratio unknown")
}

// TestSolvencyRatios_IgnoresUnrelatedAccounts verifies other account
// codes do not leak into the metric.
func TestSolvencyRatios_IgnoresUnrelatedAccounts(t *testing.T) {
	rows := []model.StatRow{
		row(model.SectorLife, "A1", "Alpha Life", "Z999", "Something else", floatPtr(1)),
	}
	entries := SolvencyRatios(rows, "A001", "B001")
	assert.Empty(t, entries)
}
