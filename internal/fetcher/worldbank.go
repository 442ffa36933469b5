package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"econindex/internal/model"
	"econindex/internal/reference"
	"econindex/internal/version"
)

const (
	worldBankSource  = "worldbank"
	worldBankMaxPage = 1000
)

// WorldBankOptions parameterise the World Bank indicators API client.
type WorldBankOptions struct {
	BaseURL   string
	PerPage   int
	Timeout   time.Duration
	UserAgent string
}

// WorldBank fetches annual series from the World Bank API v2.
type WorldBank struct {
	opts    WorldBankOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewWorldBank constructs a World Bank client.
func NewWorldBank(opts WorldBankOptions, logger zerolog.Logger) *WorldBank {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 20000
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.worldbank.org/v2"
	}

	return &WorldBank{
		opts:    opts,
		logger:  logger.With().Str("component", "worldbank_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Series returns a RecordSource for one World Bank indicator code.
func (w *WorldBank) Series(code string, indicator model.IndicatorType, unit string) RecordSource {
	return &worldBankSeries{client: w, code: code, indicator: indicator, unit: unit}
}

// FX returns an FXSource for an official exchange-rate indicator such as PA.NUS.FCRF.
func (w *WorldBank) FX(code string) FXSource {
	return &worldBankFX{client: w, code: code}
}

type worldBankSeries struct {
	client    *WorldBank
	code      string
	indicator model.IndicatorType
	unit      string
}

func (s *worldBankSeries) Name() string { return worldBankSource }

func (s *worldBankSeries) Fetch(ctx context.Context) ([]model.IndicatorRecord, error) {
	observations, err := s.client.fetchIndicator(ctx, s.code)
	if err != nil {
		return nil, err
	}

	records := make([]model.IndicatorRecord, 0, len(observations))
	for _, obs := range observations {
		records = append(records, model.IndicatorRecord{
			CountryCode: obs.country,
			CountryName: obs.name,
			Year:        obs.year,
			Indicator:   s.indicator,
			Value:       obs.value,
			Unit:        s.unit,
			Source:      worldBankSource,
		})
	}
	return records, nil
}

type worldBankFX struct {
	client *WorldBank
	code   string
}

func (s *worldBankFX) FetchFX(ctx context.Context) ([]model.FXRecord, error) {
	observations, err := s.client.fetchIndicator(ctx, s.code)
	if err != nil {
		return nil, err
	}

	rates := make([]model.FXRecord, 0, len(observations))
	for _, obs := range observations {
		rates = append(rates, model.FXRecord{CountryCode: obs.country, Year: obs.year, Rate: obs.value})
	}
	return rates, nil
}

type observation struct {
	country string
	name    string
	year    int
	value   decimal.Decimal
}

// fetchIndicator walks every page of /country/all/indicator/{code}. Null
// values and rows without an ISO3 code are skipped.
func (w *WorldBank) fetchIndicator(ctx context.Context, code string) ([]observation, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("world bank indicator code required")
	}

	var (
		out     []observation
		skipped int
	)
	for page := 1; page <= worldBankMaxPage; page++ {
		meta, rows, err := w.fetchPage(ctx, code, page)
		if err != nil {
			return nil, err
		}

		for _, row := range rows {
			if !row.Value.Valid {
				continue
			}
			country := strings.ToUpper(strings.TrimSpace(row.CountryISO3))
			if !reference.IsCountry(country) {
				skipped++
				continue
			}
			year, err := ParsePeriod(row.Date)
			if err != nil {
				skipped++
				continue
			}
			out = append(out, observation{
				country: country,
				name:    row.Country.Value,
				year:    year,
				value:   row.Value.Decimal,
			})
		}

		if page >= meta.Pages {
			break
		}
	}

	w.logger.Debug().Str("indicator", code).Int("observations", len(out)).Int("skipped", skipped).Msg("world bank indicator fetched")
	return out, nil
}

func (w *WorldBank) fetchPage(ctx context.Context, code string, page int) (pageMeta, []worldBankRow, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("per_page", strconv.Itoa(w.opts.PerPage))
	query.Set("page", strconv.Itoa(page))
	endpoint := fmt.Sprintf("%s/country/all/indicator/%s?%s", w.baseURL, url.PathEscape(code), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return pageMeta{}, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(w.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return pageMeta{}, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return pageMeta{}, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return pageMeta{}, nil, parseWorldBankError(resp.StatusCode, payload)
	}

	var envelope []json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return pageMeta{}, nil, fmt.Errorf("decode world bank response: %w", err)
	}
	if len(envelope) == 0 {
		return pageMeta{}, nil, errors.New("world bank response empty")
	}

	var meta pageMeta
	if err := json.Unmarshal(envelope[0], &meta); err != nil {
		return pageMeta{}, nil, fmt.Errorf("decode world bank page header: %w", err)
	}
	if len(meta.Message) > 0 {
		return pageMeta{}, nil, fmt.Errorf("world bank api error: %s", meta.Message[0].Value)
	}
	if len(envelope) < 2 {
		return meta, nil, nil
	}

	var rows []worldBankRow
	if err := json.Unmarshal(envelope[1], &rows); err != nil {
		return pageMeta{}, nil, fmt.Errorf("decode world bank rows: %w", err)
	}
	return meta, rows, nil
}

type pageMeta struct {
	Page    int              `json:"page"`
	Pages   int              `json:"pages"`
	Message []worldBankError `json:"message"`
}

type worldBankError struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type worldBankRow struct {
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
	CountryISO3 string              `json:"countryiso3code"`
	Date        string              `json:"date"`
	Value       decimal.NullDecimal `json:"value"`
}

func parseWorldBankError(status int, payload []byte) error {
	var envelope []pageMeta
	if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope) > 0 && len(envelope[0].Message) > 0 {
		return fmt.Errorf("world bank api error (%d): %s", status, envelope[0].Message[0].Value)
	}
	if len(payload) > 0 {
		return fmt.Errorf("world bank api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("world bank api error (%d)", status)
}

var _ RecordSource = (*worldBankSeries)(nil)
var _ FXSource = (*worldBankFX)(nil)
