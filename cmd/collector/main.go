package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"solvtrack/internal/collect"
	"solvtrack/internal/fisis"
	"solvtrack/internal/store"
	"solvtrack/internal/store/postgres"
	"solvtrack/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	period := fs.String("period", "", "reporting period YYYYMM (required)")
	auth := fs.String("auth", "", "FISIS auth key (default: FISIS_AUTH_KEY env)")
	dbPath := fs.String("db", "solvtrack.db", "sqlite database path (empty disables persistence)")
	pgDSN := fs.String("pg", "", "postgres DSN (overrides -db when set)")
	concurrency := fs.Int("concurrency", 20, "max in-flight statistic fetches")
	lifeList := fs.String("life-list", collect.DefaultLifeListNo, "account list number for life insurers")
	nonLifeList := fs.String("nonlife-list", collect.DefaultNonLifeListNo, "account list number for non-life insurers")
	verbose := fs.Bool("verbose", false, "enable diagnostic logging")
	fs.Parse(args)

	if err := runCollector(*period, *auth, *dbPath, *pgDSN, *concurrency, *lifeList, *nonLifeList, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "collector run failed:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: collector run [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -period       reporting period YYYYMM (required)")
	fmt.Fprintln(os.Stderr, "  -auth         FISIS auth key (default: FISIS_AUTH_KEY env)")
	fmt.Fprintln(os.Stderr, "  -db           sqlite database path (default: solvtrack.db)")
	fmt.Fprintln(os.Stderr, "  -pg           postgres DSN (overrides -db)")
	fmt.Fprintln(os.Stderr, "  -concurrency  max in-flight statistic fetches (default: 20)")
	fmt.Fprintln(os.Stderr, "  -life-list    account list number for life insurers (default: SH021)")
	fmt.Fprintln(os.Stderr, "  -nonlife-list account list number for non-life insurers (default: SI021)")
	fmt.Fprintln(os.Stderr, "  -verbose      enable diagnostic logging")
}

func runCollector(period, auth, dbPath, pgDSN string, concurrency int, lifeList, nonLifeList string, verbose bool) error {
	// Best-effort .env; the key may come from the real environment.
	_ = godotenv.Load()

	log := zap.NewNop()
	if verbose {
		dev, err := zap.NewDevelopment()
		if err == nil {
			log = dev
		}
		defer log.Sync()
	}

	ctx := context.Background()

	cfg, err := fisis.ConfigFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(auth) != "" {
		cfg.AuthKey = strings.TrimSpace(auth)
	}
	client, err := fisis.NewWithConfig(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, dbPath, pgDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	collector := collect.New(client, client, st, collect.Config{
		Concurrency:   concurrency,
		LifeListNo:    lifeList,
		NonLifeListNo: nonLifeList,
	}, log)
	collector.Progress = func(done, total int) {
		if done == total || done%100 == 0 {
			fmt.Printf("fetched %d/%d\n", done, total)
		}
	}

	result, err := collector.Run(ctx, period)
	if err != nil {
		return err
	}

	fmt.Printf("collector run complete (period=%s cached=%d tasks=%d fetched=%d rows=%d)\n",
		strings.TrimSpace(period), result.CachedCount, result.TaskCount, result.FetchCount, len(result.Rows),
	)
	return nil
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
