// Package constants provides shared constants for the autocall-forecast application.
package constants

// DateLayout is the date format expected in config files, CSV imports and
// the SQLite store. It is also the output date format.
const DateLayout = "2006-01-02"

// Product constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// MonthlyPeriod is the observation period used by monthly-pay products
	MonthlyPeriod = 1

	// DefaultInitialPrice is the day-0 level of a simulated asset when no
	// initial price is configured
	DefaultInitialPrice = 1.0

	// DefaultLizardCouponMultiplier is the lizard coupon multiple applied
	// when none is configured
	DefaultLizardCouponMultiplier = 1.0
)

// Product variant names as they appear in configuration files.
const (
	VariantPlain         = "plain"
	VariantLock          = "lock"
	VariantKnockIn       = "knockin"
	VariantLizard        = "lizard"
	VariantLizardKnockIn = "lizardknockin"
	VariantMonthlyPay    = "monthlypay"
)

// Data source names
const (
	// DataSourceSQLite reads historical closes from the SQLite price store
	DataSourceSQLite = "sqlite"

	// DataSourceSimulated generates correlated GBM paths
	DataSourceSimulated = "simulated"
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"

	// DefaultSQLitePath is the default location of the price store
	DefaultSQLitePath = "prices.db"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the API
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum upload size for YAML configs (256 KB)
	DefaultMaxUploadSizeBytes int64 = 256 * 1024
)

// Simulation defaults
const (
	// DefaultHorizonDays is used when a simulated product does not specify a horizon
	DefaultHorizonDays = 365

	// DefaultWorkers bounds the monte carlo worker pool when unset
	DefaultWorkers = 4

	// MaxPaths caps the number of monte carlo paths in a single run
	MaxPaths = 100000

	// MaxHorizonDays caps the length of any simulated path
	MaxHorizonDays = 20000

	// MaxMaturityYears caps product maturity so a simulated life fits in MaxHorizonDays
	MaxMaturityYears = 50
)

// Output defaults
const (
	// DefaultNotional is the notional used to express payoffs as amounts
	DefaultNotional = 10000.0

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0

	// RatioTolerance is the tolerance for comparing ratios in tests and warnings
	RatioTolerance = 1e-12
)
