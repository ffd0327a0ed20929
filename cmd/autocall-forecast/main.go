package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/iwvelando/autocall-forecast/internal/chart"
	"github.com/iwvelando/autocall-forecast/internal/config"
	"github.com/iwvelando/autocall-forecast/internal/forecast"
	"github.com/iwvelando/autocall-forecast/internal/server"
	"github.com/iwvelando/autocall-forecast/internal/storage"
	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/output"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"github.com/iwvelando/autocall-forecast/pkg/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var config zap.Config
	switch format {
	case "console":
		config = zap.NewDevelopmentConfig()
	case "json":
		config = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		}
		_ = file.Close()

		config.OutputPaths = []string{loggingConfig.OutputFile}
		config.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return config.Build()
}

func fatalJSON(msg string, err error) {
	fmt.Printf("{\"op\": \"main\", \"level\": \"fatal\", \"msg\": %q, \"error\": %q}\n", msg, err.Error())
	os.Exit(1)
}

func main() {
	configLocation := flag.String("config", constants.DefaultConfigFile, "path to configuration file")
	outputFormatFlag := flag.String("output-format", "", "type of output override: pretty, csv")
	logLevel := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	chartPath := flag.String("chart", "", "write a PNG chart of each product's underlyings to this path")
	serve := flag.Bool("serve", false, "run the HTTP API instead of a one-off evaluation")
	serverConfig := flag.String("server-config", constants.DefaultServerConfigFile, "path to server configuration file")
	importCSV := flag.String("import-csv", "", "import closing prices from a CSV file into the configured SQLite database")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve {
		runServer(ctx, *serverConfig, *logLevel)
		return
	}

	conf, err := config.LoadConfiguration(*configLocation)
	if err != nil {
		fatalJSON(fmt.Sprintf("failed to load configuration at %s", *configLocation), err)
	}

	logger, err := initializeLogger(conf.Logging, *logLevel)
	if err != nil {
		fatalJSON("failed to initialize logger", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if *importCSV != "" {
		runImport(ctx, logger, conf.Data.SQLitePath, *importCSV)
		return
	}

	outputFormat := conf.Output.Format
	if *outputFormatFlag != "" {
		outputFormat = *outputFormatFlag
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	if err := validation.ValidateOutputFormat(outputFormat); err != nil {
		logger.Fatal(err.Error(),
			zap.String("op", "main"),
		)
	}

	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}
	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	var prices pricetable.Provider
	if conf.Data.Source == constants.DataSourceSQLite || conf.Simulation.EstimateFrom != "" {
		store, err := storage.Open(logger, conf.Data.SQLitePath)
		if err != nil {
			logger.Fatal("failed to open price store",
				zap.String("op", "main"),
				zap.String("path", conf.Data.SQLitePath),
				zap.Error(err),
			)
		}
		defer store.Close()
		prices = store
	}

	results, err := forecast.GetForecast(ctx, logger, *conf, prices)
	if err != nil {
		logger.Fatal("failed to evaluate products",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	switch outputFormat {
	case constants.OutputFormatPretty:
		err = output.PrettyFormat(os.Stdout, results, conf.Output.Notional)
	case constants.OutputFormatCSV:
		err = output.CsvFormat(os.Stdout, results, conf.Output.Notional)
	}
	if err != nil {
		logger.Fatal("failed to write output",
			zap.String("op", "main"),
			zap.Error(err),
		)
	}

	if *chartPath != "" {
		for _, result := range results {
			path := chartFile(*chartPath, result.Name, len(results))
			if err := writeChart(path, result); err != nil {
				logger.Fatal("failed to write chart",
					zap.String("op", "main"),
					zap.String("path", path),
					zap.Error(err),
				)
			}
			logger.Info("chart written",
				zap.String("op", "main"),
				zap.String("product", result.Name),
				zap.String("path", path),
			)
		}
	}
}

func runImport(ctx context.Context, logger *zap.Logger, dbPath, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		logger.Fatal("failed to open price file",
			zap.String("op", "main.runImport"),
			zap.String("path", csvPath),
			zap.Error(err),
		)
	}
	defer file.Close()

	store, err := storage.Open(logger, dbPath)
	if err != nil {
		logger.Fatal("failed to open price store",
			zap.String("op", "main.runImport"),
			zap.String("path", dbPath),
			zap.Error(err),
		)
	}
	defer store.Close()

	n, err := store.ImportCSV(ctx, file)
	if err != nil {
		logger.Fatal("failed to import prices",
			zap.String("op", "main.runImport"),
			zap.Error(err),
		)
	}
	logger.Info("prices imported",
		zap.String("op", "main.runImport"),
		zap.Int("closes", n),
		zap.String("database", dbPath),
	)
}

func runServer(ctx context.Context, path, logLevel string) {
	cfg, err := server.LoadConfig(path)
	if err != nil {
		fatalJSON(fmt.Sprintf("failed to load server configuration at %s", path), err)
	}

	logger, err := initializeLogger(cfg.Logging, logLevel)
	if err != nil {
		fatalJSON("failed to initialize logger", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	var prices pricetable.Provider
	if cfg.SQLitePath != "" {
		store, err := storage.Open(logger, cfg.SQLitePath)
		if err != nil {
			logger.Fatal("failed to open price store",
				zap.String("op", "main.runServer"),
				zap.String("path", cfg.SQLitePath),
				zap.Error(err),
			)
		}
		defer store.Close()
		prices = store
	}

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           server.NewHandler(logger, cfg.UploadSizeBytes(), version, prices),
		ReadHeaderTimeout: cfg.ReadHeaderTimeoutDuration(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed",
				zap.String("op", "main.runServer"),
				zap.Error(err),
			)
		}
	}()

	logger.Info("starting server",
		zap.String("op", "main.runServer"),
		zap.String("address", cfg.Address),
		zap.Int64("maxUploadSize", cfg.UploadSizeBytes()),
		zap.Bool("sqlite", prices != nil),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed",
			zap.String("op", "main.runServer"),
			zap.Error(err),
		)
	}
}

// chartFile returns base unchanged for a single product, otherwise base with
// the product name inserted before the extension.
func chartFile(base, product string, products int) string {
	if products <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	name := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, product)
	return strings.TrimSuffix(base, ext) + "-" + name + ext
}

func writeChart(path string, result forecast.Forecast) error {
	png, err := chart.RenderPaths(result.Prices, result.Info.Underlyings, result.Name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0644)
}
