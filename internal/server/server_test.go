package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"github.com/iwvelando/autocall-forecast/pkg/testutil"
	"go.uber.org/zap"
)

const simulatedConfig = `
output:
  notional: 10000
data:
  source: simulated
simulation:
  seed: 11
  paths: 8
  workers: 2
products:
  - name: flat
    active: true
    underlyings: [HSCEI, KOSPI200]
    startDate: 2020-01-02
    maturity: 1
    period: 6
    coupon: 0.06
    barriers: [0.9, 0.85]
`

const sqliteConfig = `
data:
  source: sqlite
products:
  - name: history
    active: true
    underlyings: [SX5E]
    startDate: 2020-01-02
    maturity: 1
    period: 6
    coupon: 0.06
    barriers: [0.9, 0.85]
`

func newTestHandler(prices pricetable.Provider) http.Handler {
	return NewHandler(zap.NewNop(), constants.DefaultMaxUploadSizeBytes, "1.2.3", prices)
}

func postYAML(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-yaml")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeEvaluate(t *testing.T, rr *httptest.ResponseRecorder) evaluateResponse {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp evaluateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHandleEvaluateSimulated(t *testing.T) {
	resp := decodeEvaluate(t, postYAML(t, newTestHandler(nil), simulatedConfig))

	if len(resp.Products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(resp.Products))
	}
	p := resp.Products[0]
	if p.Outcome != "early_redeemed" || p.Observation != 1 || p.Months != 6 {
		t.Errorf("unexpected result %+v", p)
	}
	if p.Redemption != "10300.00" {
		t.Errorf("Redemption = %s, expected 10300.00", p.Redemption)
	}
	if len(p.Schedule) != 2 || p.Schedule[0] != "2020-07-02" {
		t.Errorf("Schedule = %v, expected two dates starting 2020-07-02", p.Schedule)
	}
	if p.Distribution == nil || p.Distribution.Paths != 8 || p.Distribution.Probabilities["early_redeemed"] != 1 {
		t.Errorf("Distribution = %+v, expected 8 early redemptions", p.Distribution)
	}
	if resp.CSV == "" || resp.Duration == "" || resp.ConfigYAML == "" || resp.Config == nil {
		t.Errorf("expected csv, duration and config echo in response")
	}
	// Neither underlying has a volatility configured.
	if len(resp.Warnings) != 2 {
		t.Errorf("Warnings = %v, expected 2", resp.Warnings)
	}
}

func TestHandleEvaluateMultipart(t *testing.T) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "config.yaml")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte(simulatedConfig)); err != nil {
		t.Fatalf("failed to write form data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	newTestHandler(nil).ServeHTTP(rr, req)

	resp := decodeEvaluate(t, rr)
	if len(resp.Products) != 1 {
		t.Errorf("expected 1 product, got %d", len(resp.Products))
	}
}

func TestHandleEvaluateHistory(t *testing.T) {
	table := testutil.DailyTable(t, []string{"SX5E"}, "2020-01-02", "2021-02-05", func(d, _ int) float64 {
		return 3800 - float64(d)*3 // steady decline
	})

	resp := decodeEvaluate(t, postYAML(t, newTestHandler(pricetable.MemoryProvider{Table: table}), sqliteConfig))
	p := resp.Products[0]
	if p.Outcome != "maturity_redeemed" || p.Months != 12 {
		t.Errorf("unexpected result %+v", p)
	}
	if p.Distribution != nil {
		t.Errorf("Distribution should be omitted without simulation paths")
	}
}

func TestHandleEvaluateErrors(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		body     string
		limit    int64
		expected int
	}{
		{"Wrong method", http.MethodGet, "", 0, http.StatusMethodNotAllowed},
		{"Empty body", http.MethodPost, "", 0, http.StatusBadRequest},
		{"Malformed yaml", http.MethodPost, "products: [", 0, http.StatusBadRequest},
		{"Invalid product", http.MethodPost, strings.Replace(simulatedConfig, "[0.9, 0.85]", "[0.9, 1.5]", 1), 0, http.StatusBadRequest},
		{"Barrier count mismatch", http.MethodPost, strings.Replace(simulatedConfig, "[0.9, 0.85]", "[0.9]", 1), 0, http.StatusBadRequest},
		{"Sqlite unavailable", http.MethodPost, sqliteConfig, 0, http.StatusBadRequest},
		{"Horizon too long", http.MethodPost, strings.Replace(simulatedConfig, "seed: 11", "seed: 11\n  horizonDays: 2000000000", 1), 0, http.StatusBadRequest},
		{"Maturity too long", http.MethodPost, strings.Replace(simulatedConfig, "maturity: 1", "maturity: 100", 1), 0, http.StatusBadRequest},
		{"Too large", http.MethodPost, simulatedConfig, 16, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(zap.NewNop(), tt.limit, "", nil)
			req := httptest.NewRequest(tt.method, "/api/evaluate", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.expected {
				t.Errorf("status = %d, expected %d: %s", rr.Code, tt.expected, rr.Body.String())
			}
		})
	}
}

func TestHandleSimulate(t *testing.T) {
	body := `{"assets":["A","B"],"horizonDays":10,"meanReturns":{"A":0,"B":0},
		"volatilities":{"A":0.01,"B":0.02},"correlation":[[1,0.5],[0.5,1]],
		"seed":5,"initialPrices":[100,50],"startDate":"2021-06-01"}`

	req := httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newTestHandler(nil).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp simulateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Dates) != 11 || resp.Dates[0] != "2021-06-01" {
		t.Errorf("Dates = %v, expected 11 days from 2021-06-01", resp.Dates)
	}
	if len(resp.Prices["A"]) != 11 || resp.Prices["A"][0] != 100 || resp.Prices["B"][0] != 50 {
		t.Errorf("Prices = %v, expected paths starting at the initial prices", resp.Prices)
	}

	// The same seed reproduces the same path.
	rr2 := httptest.NewRecorder()
	newTestHandler(nil).ServeHTTP(rr2, httptest.NewRequest(http.MethodPost, "/api/simulate", strings.NewReader(body)))
	if rr2.Body.String() != rr.Body.String() {
		t.Errorf("seeded simulations differ")
	}
}

func TestHandleSimulatePNG(t *testing.T) {
	body := `{"assets":["A"],"horizonDays":30,"meanReturns":{"A":0},"volatilities":{"A":0.01},"seed":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/simulate?format=png", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newTestHandler(nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %s, expected image/png", ct)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")) {
		t.Errorf("body is not a PNG")
	}
}

func TestHandleSimulateErrors(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		body     string
		expected int
	}{
		{"Wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"Malformed json", http.MethodPost, "{", http.StatusBadRequest},
		{"No assets", http.MethodPost, `{"horizonDays":5}`, http.StatusBadRequest},
		{"Bad start date", http.MethodPost, `{"assets":["A"],"horizonDays":5,"startDate":"June"}`, http.StatusBadRequest},
		{"Missing volatility", http.MethodPost, `{"assets":["A"],"horizonDays":5,"meanReturns":{"A":0}}`, http.StatusBadRequest},
		{"Ragged correlation", http.MethodPost, `{"assets":["A","B"],"horizonDays":5,"meanReturns":{"A":0,"B":0},"volatilities":{"A":0.1,"B":0.1},"correlation":[[1]]}`, http.StatusBadRequest},
		{"Horizon too long", http.MethodPost, `{"assets":["A"],"horizonDays":999999}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/simulate", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			newTestHandler(nil).ServeHTTP(rr, req)
			if rr.Code != tt.expected {
				t.Errorf("status = %d, expected %d: %s", rr.Code, tt.expected, rr.Body.String())
			}
		})
	}
}

func TestHandleVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		method   string
		status   int
		expected string
	}{
		{"Configured", "1.2.3", http.MethodGet, http.StatusOK, "1.2.3"},
		{"Defaults to dev", "  ", http.MethodGet, http.StatusOK, "dev"},
		{"Wrong method", "1.2.3", http.MethodPost, http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, 0, tt.version, nil)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tt.method, "/api/version", nil))
			if rr.Code != tt.status {
				t.Fatalf("status = %d, expected %d", rr.Code, tt.status)
			}
			if tt.expected == "" {
				return
			}
			var resp map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["version"] != tt.expected {
				t.Errorf("version = %s, expected %s", resp["version"], tt.expected)
			}
		})
	}
}
