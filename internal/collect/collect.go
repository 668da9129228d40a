// Package collect implements the cache-aware incremental collection run:
// split the (company, account) universe against the cache, fetch only the
// missing pairs, persist the delta and return the union.
package collect

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solvtrack/internal/fetch"
	"solvtrack/internal/fisis"
	"solvtrack/internal/model"
	"solvtrack/internal/store"
)

const (
	DefaultLifeListNo    = "SH021"
	DefaultNonLifeListNo = "SI021"
)

// Catalog lists the company and account universes.
type Catalog interface {
	ListCompanies(ctx context.Context, sector model.Sector) ([]model.Company, error)
	ListAccounts(ctx context.Context, listNo string) ([]model.Account, error)
}

// StatFetcher fetches a single statistic value.
type StatFetcher interface {
	FetchStat(ctx context.Context, company model.Company, account model.Account, period string) (model.StatRow, error)
}

type Config struct {
	Concurrency   int
	LifeListNo    string
	NonLifeListNo string
}

// Collector drives one reconciliation per call to Run. It exclusively
// owns the transition of rows from fetched to cached; nothing else
// writes to the store.
type Collector struct {
	catalog Catalog
	fetcher StatFetcher
	store   store.Store
	config  Config
	log     *zap.Logger

	// Progress, when set, receives completion counts from the fetch
	// engine.
	Progress fetch.Progress

	mu          sync.Mutex
	periodLocks map[string]*sync.Mutex
}

func New(catalog Catalog, fetcher StatFetcher, st store.Store, cfg Config, log *zap.Logger) *Collector {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = fetch.DefaultConcurrency
	}
	if strings.TrimSpace(cfg.LifeListNo) == "" {
		cfg.LifeListNo = DefaultLifeListNo
	}
	if strings.TrimSpace(cfg.NonLifeListNo) == "" {
		cfg.NonLifeListNo = DefaultNonLifeListNo
	}
	if st == nil {
		st = &store.NopStore{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		catalog:     catalog,
		fetcher:     fetcher,
		store:       st,
		config:      cfg,
		log:         log,
		periodLocks: make(map[string]*sync.Mutex),
	}
}

// Result is the outcome of one run.
type Result struct {
	Rows        []model.StatRow
	CachedCount int
	TaskCount   int
	FetchCount  int
}

type pairKey struct {
	companyCode string
	accountCode string
}

func keyFor(companyCode, accountCode string) pairKey {
	return pairKey{
		companyCode: strings.TrimSpace(companyCode),
		accountCode: strings.TrimSpace(accountCode),
	}
}

// Run reconciles one reporting period. Runs for the same period are
// serialized so a second concurrent run observes the first run's rows
// and computes an empty work list.
func (c *Collector) Run(ctx context.Context, period string) (Result, error) {
	period = strings.TrimSpace(period)
	if len(period) != 6 || !isDigits(period) {
		return Result{}, eris.Errorf("collect: invalid period %q (want YYYYMM)", period)
	}

	lock := c.periodLock(period)
	lock.Lock()
	defer lock.Unlock()

	cached, err := c.store.QueryByPeriod(ctx, period)
	if err != nil {
		// Cache-store failure degrades to a cold run, refetching
		// everything.
		c.log.Warn("cache read failed, starting cold", zap.String("period", period), zap.Error(err))
		cached = nil
	}

	existing := make(map[pairKey]struct{}, len(cached))
	for _, row := range cached {
		existing[keyFor(row.CompanyCode, row.AccountCode)] = struct{}{}
	}

	catalogs, err := c.fetchCatalogs(ctx, period)
	if err != nil {
		return Result{}, err
	}

	tasks := make([]fetch.Task, 0)
	addMissing := func(companies []model.Company, accounts []model.Account) {
		for _, company := range companies {
			for _, account := range accounts {
				if _, ok := existing[keyFor(company.Code, account.Code)]; ok {
					continue
				}
				tasks = append(tasks, fetch.Task{Company: company, Account: account})
			}
		}
	}
	addMissing(catalogs.lifeCompanies, catalogs.lifeAccounts)
	addMissing(catalogs.nonLifeCompanies, catalogs.nonLifeAccounts)

	if len(tasks) == 0 {
		c.log.Info("cache hit, nothing to collect", zap.String("period", period), zap.Int("cached", len(cached)))
		return Result{Rows: cached, CachedCount: len(cached)}, nil
	}

	engine := fetch.Engine{Concurrency: c.config.Concurrency}
	newRows := engine.Run(ctx, tasks, c.fetchOne(period), c.Progress)
	if err := ctx.Err(); err != nil {
		return Result{}, eris.Wrap(err, "collect: run canceled")
	}

	normalizeRows(newRows)

	if len(newRows) > 0 {
		if err := c.store.AppendRows(ctx, newRows); err != nil {
			// Same degradation as the read side: the run still returns
			// its rows, the next run refetches what was lost.
			c.log.Warn("cache write failed, delta not persisted", zap.String("period", period), zap.Error(err))
		}
	}

	rows := make([]model.StatRow, 0, len(cached)+len(newRows))
	rows = append(rows, cached...)
	rows = append(rows, newRows...)

	return Result{
		Rows:        rows,
		CachedCount: len(cached),
		TaskCount:   len(tasks),
		FetchCount:  len(newRows),
	}, nil
}

type catalogSet struct {
	lifeCompanies    []model.Company
	nonLifeCompanies []model.Company
	lifeAccounts     []model.Account
	nonLifeAccounts  []model.Account
}

// fetchCatalogs issues the four independent catalog calls concurrently
// and joins on all of them. A failed partition degrades to empty: the
// run then has nothing to collect there rather than aborting.
func (c *Collector) fetchCatalogs(ctx context.Context, period string) (catalogSet, error) {
	var set catalogSet
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		set.lifeCompanies = c.companies(ctx, model.SectorLife)
	}()
	go func() {
		defer wg.Done()
		set.nonLifeCompanies = c.companies(ctx, model.SectorNonLife)
	}()
	go func() {
		defer wg.Done()
		set.lifeAccounts = c.accounts(ctx, c.config.LifeListNo)
	}()
	go func() {
		defer wg.Done()
		set.nonLifeAccounts = c.accounts(ctx, c.config.NonLifeListNo)
	}()

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return catalogSet{}, eris.Wrap(err, "collect: catalog fetch canceled")
	}

	c.log.Info("catalogs resolved",
		zap.String("period", period),
		zap.Int("life_companies", len(set.lifeCompanies)),
		zap.Int("nonlife_companies", len(set.nonLifeCompanies)),
		zap.Int("life_accounts", len(set.lifeAccounts)),
		zap.Int("nonlife_accounts", len(set.nonLifeAccounts)),
	)
	return set, nil
}

func (c *Collector) companies(ctx context.Context, sector model.Sector) []model.Company {
	companies, err := c.catalog.ListCompanies(ctx, sector)
	if err != nil {
		if errors.Is(err, fisis.ErrNoRecords) {
			c.log.Info("company catalog empty", zap.String("sector", string(sector)))
		} else {
			c.log.Warn("company catalog fetch failed", zap.String("sector", string(sector)), zap.Error(err))
		}
		return nil
	}
	return companies
}

func (c *Collector) accounts(ctx context.Context, listNo string) []model.Account {
	accounts, err := c.catalog.ListAccounts(ctx, listNo)
	if err != nil {
		if errors.Is(err, fisis.ErrNoRecords) {
			c.log.Info("account catalog empty", zap.String("list_no", listNo))
		} else {
			c.log.Warn("account catalog fetch failed", zap.String("list_no", listNo), zap.Error(err))
		}
		return nil
	}
	return accounts
}

func (c *Collector) fetchOne(period string) fetch.FetchFunc {
	return func(ctx context.Context, task fetch.Task) (model.StatRow, bool) {
		row, err := c.fetcher.FetchStat(ctx, task.Company, task.Account, period)
		if err != nil {
			if errors.Is(err, fisis.ErrNoRecords) {
				c.log.Debug("no data for pair",
					zap.String("company", task.Company.Code),
					zap.String("account", task.Account.Code),
				)
			} else {
				c.log.Debug("point fetch failed",
					zap.String("company", task.Company.Code),
					zap.String("account", task.Account.Code),
					zap.Error(err),
				)
			}
			return model.StatRow{}, false
		}
		if strings.TrimSpace(row.Period) == "" {
			row.Period = period
		}
		return row, true
	}
}

// normalizeRows fills Value from the raw wire value: thousands
// separators stripped, unparsable left nil.
func normalizeRows(rows []model.StatRow) {
	for i := range rows {
		rows[i].Value = ParseNumeric(rows[i].Raw)
	}
}

// ParseNumeric coerces a wire value to a float. Returns nil when the
// value does not parse, which keeps the row but marks the fact unknown.
func ParseNumeric(raw string) *float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return nil
	}
	parsed, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	value := parsed.InexactFloat64()
	return &value
}

func (c *Collector) periodLock(period string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.periodLocks[period]
	if !ok {
		lock = &sync.Mutex{}
		c.periodLocks[period] = lock
	}
	return lock
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
