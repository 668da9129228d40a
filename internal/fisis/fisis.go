package fisis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"solvtrack/internal/model"
)

const (
	defaultBaseURL         = "http://fisis.fss.or.kr/openapi"
	defaultCompanyPath     = "companySearch.json"
	defaultAccountPath     = "accountListSearch.json"
	defaultStatPath        = "statisticsInfoSearch.json"
	defaultLang            = "kr"
	defaultTerm            = "Q"
	defaultTimeoutSeconds  = 10
	defaultUserAgent       = "solvtrack/0.1"
	defaultRateLimitPerSec = 0
	defaultRateLimitBurst  = 0
)

// ErrNoRecords means the API answered but carried no result list. It is
// distinct from transport and decode failures so callers can tell
// confirmed-empty from could-not-determine.
var ErrNoRecords = errors.New("fisis: no records found")

type Config struct {
	BaseURL         string
	CompanyPath     string
	AccountPath     string
	StatPath        string
	AuthKey         string
	Lang            string
	Term            string
	Timeout         time.Duration
	UserAgent       string
	RateLimitPerSec int
	RateLimitBurst  int
}

type Client struct {
	config  Config
	client  *http.Client
	limiter *rateLimiter
}

func New() (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

func NewWithConfig(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.CompanyPath) == "" {
		cfg.CompanyPath = defaultCompanyPath
	}
	if strings.TrimSpace(cfg.AccountPath) == "" {
		cfg.AccountPath = defaultAccountPath
	}
	if strings.TrimSpace(cfg.StatPath) == "" {
		cfg.StatPath = defaultStatPath
	}
	if strings.TrimSpace(cfg.AuthKey) == "" {
		return nil, errors.New("fisis: auth key is required")
	}
	if strings.TrimSpace(cfg.Lang) == "" {
		cfg.Lang = defaultLang
	}
	if strings.TrimSpace(cfg.Term) == "" {
		cfg.Term = defaultTerm
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Client{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: newRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst),
	}, nil
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:     getenv("FISIS_BASE_URL", defaultBaseURL),
		CompanyPath: getenv("FISIS_COMPANY_PATH", defaultCompanyPath),
		AccountPath: getenv("FISIS_ACCOUNT_PATH", defaultAccountPath),
		StatPath:    getenv("FISIS_STAT_PATH", defaultStatPath),
		AuthKey:     strings.TrimSpace(os.Getenv("FISIS_AUTH_KEY")),
		Lang:        getenv("FISIS_LANG", defaultLang),
		Term:        getenv("FISIS_TERM", defaultTerm),
		UserAgent:   getenv("FISIS_USER_AGENT", defaultUserAgent),
	}

	cfg.Timeout = time.Duration(getenvInt("FISIS_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second
	cfg.RateLimitPerSec = getenvInt("FISIS_RATE_LIMIT_PER_SEC", defaultRateLimitPerSec)
	cfg.RateLimitBurst = getenvInt("FISIS_RATE_LIMIT_BURST", defaultRateLimitBurst)

	return cfg, nil
}

// ListCompanies fetches the company catalog for one sector partition.
func (c *Client) ListCompanies(ctx context.Context, sector model.Sector) ([]model.Company, error) {
	params := url.Values{}
	params.Set("partDiv", sector.PartDiv())

	rows, err := c.fetchList(ctx, c.config.CompanyPath, params)
	if err != nil {
		return nil, err
	}

	companies := make([]model.Company, 0, len(rows))
	for _, row := range rows {
		code, ok := getString(row, "finance_cd", "financeCd")
		if !ok {
			continue
		}
		name, _ := getString(row, "finance_nm", "financeNm")
		companies = append(companies, model.Company{
			Code:   strings.TrimSpace(code),
			Name:   strings.TrimSpace(name),
			Sector: sector,
		})
	}
	if len(companies) == 0 {
		return nil, ErrNoRecords
	}
	return companies, nil
}

// ListAccounts fetches the account catalog for one list-number grouping.
func (c *Client) ListAccounts(ctx context.Context, listNo string) ([]model.Account, error) {
	params := url.Values{}
	params.Set("listNo", listNo)

	rows, err := c.fetchList(ctx, c.config.AccountPath, params)
	if err != nil {
		return nil, err
	}

	accounts := make([]model.Account, 0, len(rows))
	for _, row := range rows {
		code, ok := getString(row, "account_cd", "accountCd")
		if !ok {
			continue
		}
		name, _ := getString(row, "account_nm", "accountNm")
		accounts = append(accounts, model.Account{
			Code:   strings.TrimSpace(code),
			Name:   strings.TrimSpace(name),
			ListNo: listNo,
		})
	}
	if len(accounts) == 0 {
		return nil, ErrNoRecords
	}
	return accounts, nil
}

// FetchStat fetches a single statistic value for one (company, account,
// period) triple. Start and end period are both pinned to the requested
// period so the response carries at most the one quarter.
func (c *Client) FetchStat(ctx context.Context, company model.Company, account model.Account, period string) (model.StatRow, error) {
	params := url.Values{}
	params.Set("financeCd", company.Code)
	params.Set("listNo", account.ListNo)
	params.Set("accountCd", account.Code)
	params.Set("term", c.config.Term)
	params.Set("startBaseMm", period)
	params.Set("endBaseMm", period)

	rows, err := c.fetchList(ctx, c.config.StatPath, params)
	if err != nil {
		return model.StatRow{}, err
	}

	item := rows[0]
	baseMonth, ok := getString(item, "base_month", "baseMonth")
	if !ok {
		baseMonth = period
	}
	unit, _ := getString(item, "unit_name", "unitName")

	return model.StatRow{
		Sector:      company.Sector,
		CompanyCode: company.Code,
		CompanyName: company.Name,
		AccountCode: account.Code,
		AccountName: account.Name,
		Period:      baseMonth,
		Unit:        unit,
		Raw:         rawValue(item),
	}, nil
}

// rawValue extracts the wire value from a statistics row. The API is
// inconsistent about which field carries the number across account
// types; the first field present wins, in this exact order.
func rawValue(row map[string]any) string {
	for _, key := range []string{"a", "won", "column_value"} {
		if value, ok := row[key]; ok {
			return stringify(value)
		}
	}
	return "0"
}

type envelope struct {
	Result struct {
		List []map[string]any `json:"list"`
	} `json:"result"`
}

func (c *Client) fetchList(ctx context.Context, path string, params url.Values) ([]map[string]any, error) {
	body, err := c.doRequest(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var payload envelope
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("fisis: decode response: %w", err)
	}

	if len(payload.Result.List) == 0 {
		return nil, ErrNoRecords
	}
	return payload.Result.List, nil
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	endpoint := c.buildURL(path, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fisis: request failed (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (c *Client) buildURL(path string, params url.Values) string {
	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	query.Set("lang", c.config.Lang)
	query.Set("auth", c.config.AuthKey)

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	return endpoint + "?" + query.Encode()
}

type rateLimiter struct {
	tokens chan struct{}
}

func newRateLimiter(ratePerSec, burst int) *rateLimiter {
	if ratePerSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}

	limiter := &rateLimiter{
		tokens: make(chan struct{}, burst),
	}
	for i := 0; i < burst; i++ {
		limiter.tokens <- struct{}{}
	}

	interval := time.Second / time.Duration(ratePerSec)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case limiter.tokens <- struct{}{}:
			default:
			}
		}
	}()

	return limiter
}

func (l *rateLimiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}

func getString(row map[string]any, keys ...string) (string, bool) {
	value, ok := getValue(row, keys...)
	if !ok {
		return "", false
	}
	s := stringify(value)
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func getValue(row map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := row[key]; ok {
			return value, ok
		}
	}
	for rowKey, value := range row {
		for _, key := range keys {
			if strings.EqualFold(rowKey, key) {
				return value, true
			}
		}
	}
	return nil, false
}

func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return ""
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
