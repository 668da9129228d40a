package fisis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"solvtrack/internal/model"
)

const (
	defaultRatesBaseURL = "http://fisis.fss.or.kr/openapi"
	defaultRatesPath    = "marketRateSearch.json"
)

// RatesConfig configures the auxiliary bond-yield client. The series is
// optional enrichment only; callers degrade silently when it fails.
type RatesConfig struct {
	BaseURL   string
	Path      string
	AuthKey   string
	Lang      string
	Timeout   time.Duration
	UserAgent string
}

type RatesClient struct {
	config RatesConfig
	client *http.Client
}

func NewRatesClient(cfg RatesConfig) (*RatesClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultRatesBaseURL
	}
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = defaultRatesPath
	}
	if strings.TrimSpace(cfg.Lang) == "" {
		cfg.Lang = defaultLang
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &RatesClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func RatesConfigFromEnv() RatesConfig {
	return RatesConfig{
		BaseURL:   getenv("RATES_BASE_URL", defaultRatesBaseURL),
		Path:      getenv("RATES_PATH", defaultRatesPath),
		AuthKey:   strings.TrimSpace(os.Getenv("FISIS_AUTH_KEY")),
		Lang:      getenv("FISIS_LANG", defaultLang),
		Timeout:   time.Duration(getenvInt("RATES_TIMEOUT_SECONDS", defaultTimeoutSeconds)) * time.Second,
		UserAgent: getenv("FISIS_USER_AGENT", defaultUserAgent),
	}
}

// FetchDailyYields returns the daily bond-yield series for an inclusive
// YYYYMMDD date range.
func (c *RatesClient) FetchDailyYields(ctx context.Context, from, to string) ([]model.YieldPoint, error) {
	params := url.Values{}
	params.Set("lang", c.config.Lang)
	params.Set("auth", c.config.AuthKey)
	params.Set("startBaseDd", from)
	params.Set("endBaseDd", to)

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(c.config.Path, "/") + "?" + params.Encode()
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

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fisis: rates request failed (%s)", resp.Status)
	}

	var payload envelope
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("fisis: decode rates response: %w", err)
	}
	if len(payload.Result.List) == 0 {
		return nil, ErrNoRecords
	}

	points := make([]model.YieldPoint, 0, len(payload.Result.List))
	for _, row := range payload.Result.List {
		date, ok := getString(row, "base_dd", "baseDd", "base_dt", "date")
		if !ok {
			continue
		}
		raw, ok := getString(row, "yield", "int_rate", "rate")
		if !ok {
			continue
		}
		rate, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), 64)
		if err != nil {
			continue
		}
		points = append(points, model.YieldPoint{Date: strings.TrimSpace(date), Rate: rate})
	}
	if len(points) == 0 {
		return nil, ErrNoRecords
	}
	return points, nil
}
