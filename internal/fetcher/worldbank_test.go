package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"econindex/internal/model"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

const worldBankPage1 = `[
  {"page":1,"pages":2,"per_page":"2","total":4},
  [
    {"indicator":{"id":"FP.CPI.TOTL","value":"Consumer price index (2010 = 100)"},"country":{"id":"RO","value":"Romania"},"countryiso3code":"ROU","date":"2005","value":71.2,"decimal":1},
    {"indicator":{"id":"FP.CPI.TOTL","value":"Consumer price index (2010 = 100)"},"country":{"id":"RO","value":"Romania"},"countryiso3code":"ROU","date":"2004","value":null,"decimal":1}
  ]
]`

const worldBankPage2 = `[
  {"page":2,"pages":2,"per_page":"2","total":4},
  [
    {"indicator":{"id":"FP.CPI.TOTL","value":"Consumer price index (2010 = 100)"},"country":{"id":"1W","value":"World"},"countryiso3code":"","date":"2005","value":88.1,"decimal":1},
    {"indicator":{"id":"FP.CPI.TOTL","value":"Consumer price index (2010 = 100)"},"country":{"id":"EU","value":"European Union"},"countryiso3code":"EUU","date":"2005","value":90.4,"decimal":1},
    {"indicator":{"id":"FP.CPI.TOTL","value":"Consumer price index (2010 = 100)"},"country":{"id":"1W","value":"World"},"countryiso3code":"WLD","date":"2005","value":88.1,"decimal":1},
    {"indicator":{"id":"FP.CPI.TOTL","value":"Consumer price index (2010 = 100)"},"country":{"id":"TR","value":"Turkiye"},"countryiso3code":"TUR","date":"2005","value":1.2e1,"decimal":1}
  ]
]`

func TestWorldBankSeriesPaginates(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/country/all/indicator/FP.CPI.TOTL") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("format") != "json" {
			t.Fatalf("format=json 缺失")
		}
		if r.Header.Get("User-Agent") == "" {
			t.Fatalf("User-Agent should be set")
		}
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		w.Header().Set("Content-Type", "application/json")
		if page == "1" {
			fmt.Fprint(w, worldBankPage1)
			return
		}
		fmt.Fprint(w, worldBankPage2)
	}))
	defer srv.Close()

	wb := NewWorldBank(WorldBankOptions{BaseURL: srv.URL, PerPage: 2, Timeout: time.Second}, noopLogger())
	source := wb.Series("FP.CPI.TOTL", model.IndicatorCPI, "index 2010=100")

	records, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if strings.Join(pages, ",") != "1,2" {
		t.Fatalf("expected pages 1,2, got %v", pages)
	}
	if len(records) != 2 {
		t.Fatalf("null values and aggregates must be skipped, got %d records", len(records))
	}

	rou := records[0]
	if rou.CountryCode != "ROU" || rou.Year != 2005 || rou.CountryName != "Romania" {
		t.Fatalf("unexpected record %+v", rou)
	}
	if !rou.Value.Equal(decimal.RequireFromString("71.2")) {
		t.Fatalf("期望 71.2, 实际 %s", rou.Value)
	}
	if rou.Source != "worldbank" || rou.Indicator != model.IndicatorCPI || rou.Unit != "index 2010=100" {
		t.Fatalf("record metadata not populated: %+v", rou)
	}
	if !records[1].Value.Equal(decimal.NewFromInt(12)) {
		t.Fatalf("exponent notation should parse, got %s", records[1].Value)
	}
}

func TestWorldBankFX(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"page":1,"pages":1},[{"country":{"id":"RO","value":"Romania"},"countryiso3code":"ROU","date":"2004","value":32637}]]`)
	}))
	defer srv.Close()

	rates, err := NewWorldBank(WorldBankOptions{BaseURL: srv.URL}, noopLogger()).FX("PA.NUS.FCRF").FetchFX(context.Background())
	if err != nil {
		t.Fatalf("fetch fx should succeed: %v", err)
	}
	if len(rates) != 1 || rates[0].CountryCode != "ROU" || rates[0].Year != 2004 {
		t.Fatalf("unexpected rates %+v", rates)
	}
	if !rates[0].Rate.Equal(decimal.NewFromInt(32637)) {
		t.Fatalf("rate mismatch: %s", rates[0].Rate)
	}
}

func TestWorldBankAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"message":[{"id":"120","key":"Invalid value","value":"The provided parameter value is not valid"}]}]`)
	}))
	defer srv.Close()

	_, err := NewWorldBank(WorldBankOptions{BaseURL: srv.URL}, noopLogger()).Series("BAD", model.IndicatorCPI, "").Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not valid") {
		t.Fatalf("api error message should surface, got %v", err)
	}
}

func TestWorldBankHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream down")
	}))
	defer srv.Close()

	_, err := NewWorldBank(WorldBankOptions{BaseURL: srv.URL}, noopLogger()).Series("FP.CPI.TOTL", model.IndicatorCPI, "").Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("HTTP 502 应返回错误, got %v", err)
	}
}

func TestWorldBankRequiresCode(t *testing.T) {
	_, err := NewWorldBank(WorldBankOptions{}, noopLogger()).Series(" ", model.IndicatorCPI, "").Fetch(context.Background())
	if err == nil {
		t.Fatal("empty indicator code should be rejected")
	}
}
