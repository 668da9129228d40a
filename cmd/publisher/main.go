package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"solvtrack/internal/export"
	"solvtrack/internal/fisis"
	"solvtrack/internal/model"
	"solvtrack/internal/store"
	"solvtrack/internal/store/postgres"
	"solvtrack/internal/store/sqlite"
)

type summaryFile struct {
	GeneratedAt string              `json:"generated_at"`
	Period      string              `json:"period"`
	Ratios      []export.RatioEntry `json:"ratios"`
	LatestYield *model.YieldPoint   `json:"latest_yield,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "build":
		build(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func build(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	outDir := fs.String("out", "site/data", "output directory")
	period := fs.String("period", "", "reporting period YYYYMM (required)")
	dbPath := fs.String("db", "solvtrack.db", "sqlite database path")
	pgDSN := fs.String("pg", "", "postgres DSN (overrides -db when set)")
	availableCode := fs.String("available-account", "A001", "account code holding available capital")
	requiredCode := fs.String("required-account", "B001", "account code holding required capital")
	withRates := fs.Bool("rates", false, "enrich the summary with the latest bond yield")
	fs.Parse(args)

	if err := runBuild(*outDir, *period, *dbPath, *pgDSN, *availableCode, *requiredCode, *withRates); err != nil {
		fmt.Fprintln(os.Stderr, "publisher build failed:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: publisher build [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -out                output directory (default: site/data)")
	fmt.Fprintln(os.Stderr, "  -period             reporting period YYYYMM (required)")
	fmt.Fprintln(os.Stderr, "  -db                 sqlite database path (default: solvtrack.db)")
	fmt.Fprintln(os.Stderr, "  -pg                 postgres DSN (overrides -db)")
	fmt.Fprintln(os.Stderr, "  -available-account  account code holding available capital")
	fmt.Fprintln(os.Stderr, "  -required-account   account code holding required capital")
	fmt.Fprintln(os.Stderr, "  -rates              enrich the summary with the latest bond yield")
}

func runBuild(outDir, period, dbPath, pgDSN, availableCode, requiredCode string, withRates bool) error {
	_ = godotenv.Load()

	period = strings.TrimSpace(period)
	if period == "" {
		return fmt.Errorf("period is required")
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, dbPath, pgDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.QueryByPeriod(ctx, period)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no cached rows for period %s", period)
	}

	pivot := export.BuildPivot(rows)
	csvPath := filepath.Join(outDir, fmt.Sprintf("pivot_%s.csv", period))
	csvFile, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	if err := export.WriteCSV(csvFile, pivot); err != nil {
		csvFile.Close()
		return err
	}
	if err := csvFile.Close(); err != nil {
		return err
	}

	summary := summaryFile{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Period:      period,
		Ratios:      export.SolvencyRatios(rows, availableCode, requiredCode),
	}
	if withRates {
		summary.LatestYield = latestYield(ctx)
	}

	summaryPath := filepath.Join(outDir, fmt.Sprintf("summary_%s.json", period))
	if err := writeJSON(summaryPath, summary); err != nil {
		return err
	}

	fmt.Printf("publisher build complete (out=%s rows=%d companies=%d)\n", outDir, len(rows), len(pivot.Rows))
	return nil
}

// latestYield fetches the trailing month of the bond-yield series and
// keeps the newest point. Enrichment only; failures leave the summary
// without a yield.
func latestYield(ctx context.Context) *model.YieldPoint {
	client, err := fisis.NewRatesClient(fisis.RatesConfigFromEnv())
	if err != nil {
		return nil
	}
	now := time.Now().UTC()
	points, err := client.FetchDailyYields(ctx, now.AddDate(0, -1, 0).Format("20060102"), now.Format("20060102"))
	if err != nil || len(points) == 0 {
		return nil
	}
	latest := points[0]
	for _, point := range points[1:] {
		if point.Date > latest.Date {
			latest = point
		}
	}
	return &latest
}

func writeJSON(path string, value any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func openStore(ctx context.Context, dbPath, pgDSN string) (store.Store, error) {
	if strings.TrimSpace(pgDSN) != "" {
		return postgres.New(ctx, pgDSN)
	}
	if strings.TrimSpace(dbPath) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(dbPath)
}
