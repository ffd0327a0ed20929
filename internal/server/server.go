// Package server exposes product evaluation and path simulation over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/iwvelando/autocall-forecast/internal/chart"
	"github.com/iwvelando/autocall-forecast/internal/config"
	"github.com/iwvelando/autocall-forecast/internal/forecast"
	"github.com/iwvelando/autocall-forecast/internal/montecarlo"
	"github.com/iwvelando/autocall-forecast/pkg/autocall"
	"github.com/iwvelando/autocall-forecast/pkg/calendar"
	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/format"
	"github.com/iwvelando/autocall-forecast/pkg/output"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"github.com/iwvelando/autocall-forecast/pkg/ratio"
	"github.com/iwvelando/autocall-forecast/pkg/schedule"
	"github.com/iwvelando/autocall-forecast/pkg/simulation"
	"github.com/iwvelando/autocall-forecast/pkg/validation"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	version       string
	prices        pricetable.Provider
	simulator     *simulation.Simulator
}

// NewHandler constructs the HTTP handler that serves the evaluation API.
// prices backs sqlite-sourced configurations and may be nil, in which case
// only simulated sources can be evaluated.
func NewHandler(logger *zap.Logger, maxUploadSize int64, version string, prices pricetable.Provider) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	if maxUploadSize <= 0 {
		maxUploadSize = constants.DefaultMaxUploadSizeBytes
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:        logger,
		maxUploadSize: maxUploadSize,
		version:       trimmedVersion,
		prices:        prices,
		simulator:     simulation.NewSimulator(logger),
	}

	mux := http.NewServeMux()

	// Product evaluation (YAML configuration body or multipart "file" upload)
	mux.HandleFunc("/api/evaluate", h.handleEvaluate)

	// Single path simulation, JSON by default or PNG with ?format=png
	mux.HandleFunc("/api/simulate", h.handleSimulate)

	mux.HandleFunc("/api/version", h.handleVersion)

	return mux
}

type evaluateResponse struct {
	Products   []productResult        `json:"products"`
	CSV        string                 `json:"csv"`
	Warnings   []string               `json:"warnings,omitempty"`
	Duration   string                 `json:"duration"`
	Config     map[string]interface{} `json:"config,omitempty"`
	ConfigYAML string                 `json:"configYaml,omitempty"`
}

type productResult struct {
	Name         string            `json:"name"`
	Variant      string            `json:"variant"`
	Underlyings  []string          `json:"underlyings"`
	StartDate    string            `json:"startDate"`
	Extras       map[string]string `json:"extras,omitempty"`
	Schedule     []string          `json:"schedule"`
	Outcome      string            `json:"outcome"`
	Observation  int               `json:"observation"`
	Months       int               `json:"months"`
	Payoff       float64           `json:"payoff"`
	Redemption   string            `json:"redemption"`
	KnockedIn    bool              `json:"knockedIn"`
	AccrualCount int               `json:"accrualCount"`
	Notes        []string          `json:"notes,omitempty"`
	Distribution *distribution     `json:"distribution,omitempty"`
}

type distribution struct {
	Paths           int                `json:"paths"`
	BaseSeed        uint64             `json:"baseSeed"`
	Probabilities   map[string]float64 `json:"probabilities"`
	MeanPayoff      float64            `json:"meanPayoff"`
	StdDevPayoff    float64            `json:"stdDevPayoff"`
	MeanMonths      float64            `json:"meanMonths"`
	LossProbability float64            `json:"lossProbability"`
	Percentiles     map[string]float64 `json:"percentiles"`
}

func (h *handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleEvaluate"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	configBytes, status, err := h.readConfig(w, r)
	if err != nil {
		h.respondError(w, status, err.Error(), op)
		return
	}

	configMap, err := decodeYAMLToMap(configBytes)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("error reading config data, %v", err), op)
		return
	}

	cfg, err := config.LoadConfigurationFromReader(bytes.NewReader(configBytes))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	if err := cfg.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	warnings := cfg.ValidateConfiguration()

	if cfg.Data.Source == constants.DataSourceSQLite && h.prices == nil {
		h.respondError(w, http.StatusBadRequest, "sqlite data source is not available on this server; use the simulated source", op)
		return
	}

	results, err := forecast.GetForecast(r.Context(), h.logger, *cfg, h.prices)
	if err != nil {
		h.respondError(w, statusFor(err), fmt.Sprintf("failed to evaluate products: %v", err), op)
		return
	}

	csv, err := output.CsvString(results, cfg.Output.Notional)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render csv: %v", err), op)
		return
	}

	elapsed := time.Since(start)
	response := evaluateResponse{
		Products:   buildProducts(results, cfg.Output.Notional),
		CSV:        csv,
		Warnings:   warnings,
		Duration:   elapsed.String(),
		Config:     configMap,
		ConfigYAML: string(configBytes),
	}

	h.logger.Info("products evaluated",
		zap.String("op", op),
		zap.Int("products", len(response.Products)),
		zap.Duration("duration", elapsed),
	)

	h.writeJSON(w, http.StatusOK, response)
}

// readConfig returns the uploaded configuration: the "file" part of a
// multipart form, or the raw request body otherwise.
func (h *handler) readConfig(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	var src io.Reader = r.Body
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
			return nil, uploadStatus(err), fmt.Errorf("failed to parse upload: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, http.StatusBadRequest, errors.New("missing configuration file")
		}
		defer func() {
			if closeErr := file.Close(); closeErr != nil {
				h.logger.Warn("failed to close uploaded file",
					zap.String("op", "server.readConfig"),
					zap.Error(closeErr),
				)
			}
		}()
		src = file
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, src); err != nil {
		return nil, uploadStatus(err), fmt.Errorf("failed to read configuration: %w", err)
	}
	if len(bytes.TrimSpace(buf.Bytes())) == 0 {
		return nil, http.StatusBadRequest, errors.New("missing configuration")
	}
	return buf.Bytes(), http.StatusOK, nil
}

func uploadStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// simulateRequest mirrors simulation.Parameters with JSON names.
type simulateRequest struct {
	Assets        []string           `json:"assets"`
	HorizonDays   int                `json:"horizonDays"`
	MeanReturns   map[string]float64 `json:"meanReturns"`
	Volatilities  map[string]float64 `json:"volatilities"`
	Correlation   [][]float64        `json:"correlation"`
	Seed          *uint64            `json:"seed"`
	InitialPrices []float64          `json:"initialPrices"`
	StartDate     string             `json:"startDate"`
}

type simulateResponse struct {
	Dates  []string             `json:"dates"`
	Prices map[string][]float64 `json:"prices"`
}

func (h *handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleSimulate"
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, uploadStatus(err), fmt.Sprintf("failed to decode parameters: %v", err), op)
		return
	}

	startDate := datetime.Truncate(time.Now())
	if req.StartDate != "" {
		d, err := datetime.ParseDate(req.StartDate)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), op)
			return
		}
		startDate = d
	}
	if req.HorizonDays > constants.MaxHorizonDays {
		h.respondError(w, http.StatusBadRequest, fmt.Sprintf("horizonDays must not exceed %d", constants.MaxHorizonDays), op)
		return
	}

	table, err := h.simulator.Simulate(simulation.Parameters{
		Assets:        req.Assets,
		HorizonDays:   req.HorizonDays,
		MeanReturns:   req.MeanReturns,
		Volatilities:  req.Volatilities,
		Correlation:   req.Correlation,
		Seed:          req.Seed,
		InitialPrices: req.InitialPrices,
		StartDate:     startDate,
	})
	if err != nil {
		h.respondError(w, statusFor(err), fmt.Sprintf("simulation failed: %v", err), op)
		return
	}

	if r.URL.Query().Get("format") == "png" {
		png, err := chart.RenderPaths(table, table.Assets(), "Simulated paths")
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err), op)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(png); err != nil {
			h.logger.Error("failed to write chart", zap.String("op", op), zap.Error(err))
		}
		return
	}

	resp := simulateResponse{Prices: make(map[string][]float64, len(req.Assets))}
	for _, d := range table.Dates() {
		resp.Dates = append(resp.Dates, datetime.Format(d))
	}
	for _, a := range table.Assets() {
		series, err := table.Series(a)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, err.Error(), op)
			return
		}
		resp.Prices[a] = series
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

// clientErrors are caused by the request contents rather than the server.
var clientErrors = []error{
	autocall.ErrEmptyBarrierSchedule,
	autocall.ErrInvalidProduct,
	calendar.ErrInvalidCalendar,
	forecast.ErrNoPriceSource,
	montecarlo.ErrInvalidRun,
	pricetable.ErrMissingAsset,
	pricetable.ErrMissingDate,
	ratio.ErrObservationOutOfRange,
	schedule.ErrInvalidSchedule,
	simulation.ErrInsufficientHistory,
	simulation.ErrInvalidCorrelation,
	simulation.ErrInvalidParameters,
	simulation.ErrShapeMismatch,
	validation.ErrInvalidConfiguration,
}

func statusFor(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

func buildProducts(results []forecast.Forecast, notional float64) []productResult {
	products := make([]productResult, 0, len(results))
	for _, f := range results {
		dates := make([]string, len(f.Schedule))
		for i, d := range f.Schedule {
			dates[i] = datetime.Format(d)
		}
		p := productResult{
			Name:         f.Name,
			Variant:      f.Info.Variant,
			Underlyings:  f.Info.Underlyings,
			StartDate:    f.Info.StartDate,
			Extras:       f.Info.Extras,
			Schedule:     dates,
			Outcome:      f.Result.Outcome.String(),
			Observation:  f.Result.Observation,
			Months:       f.Result.Months,
			Payoff:       f.Result.Payoff,
			Redemption:   format.Redemption(notional, f.Result.Payoff).StringFixed(2),
			KnockedIn:    f.Result.KnockedIn,
			AccrualCount: f.Result.AccrualCount,
			Notes:        f.Notes,
		}
		if s := f.Distribution; s != nil {
			d := &distribution{
				Paths:           s.Paths,
				BaseSeed:        s.BaseSeed,
				Probabilities:   make(map[string]float64, len(s.Counts)),
				MeanPayoff:      s.MeanPayoff,
				StdDevPayoff:    s.StdDevPayoff,
				MeanMonths:      s.MeanMonths,
				LossProbability: s.LossProbability,
				Percentiles:     make(map[string]float64, len(s.Percentiles)),
			}
			for o := range s.Counts {
				d.Probabilities[o.String()] = s.Probability(o)
			}
			for q, v := range s.Percentiles {
				d.Percentiles[fmt.Sprintf("p%g", q*100)] = v
			}
			p.Distribution = d
		}
		products = append(products, p)
	}
	return products
}

func decodeYAMLToMap(data []byte) (map[string]interface{}, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return make(map[string]interface{}), nil
	}

	var result map[string]interface{}
	if err := yaml.Unmarshal(trimmed, &result); err != nil {
		return nil, err
	}
	if result == nil {
		result = make(map[string]interface{})
	}
	return result, nil
}

func (h *handler) respondError(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
