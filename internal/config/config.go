// Package config defines the data structures related to configuration and
// includes functions for loading and validating the config.
package config

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/iwvelando/autocall-forecast/pkg/constants"
	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/validation"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DateLayout is the format expected in config files and is also the output
// date format.
const DateLayout = constants.DateLayout

// Configuration holds all configuration for autocall-forecast.
type Configuration struct {
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
	Output     OutputConfig     `yaml:"output,omitempty"`
	Data       DataConfig       `yaml:"data,omitempty"`
	Calendar   CalendarConfig   `yaml:"calendar,omitempty"`
	Simulation SimulationConfig `yaml:"simulation,omitempty"`
	Products   []Product        `yaml:"products" validate:"required,min=1,dive"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format   string  `yaml:"format,omitempty"` // pretty, csv
	Notional float64 `yaml:"notional,omitempty" validate:"gte=0"`
}

// DataConfig selects where price histories come from.
type DataConfig struct {
	Source     string `yaml:"source,omitempty" validate:"omitempty,oneof=sqlite simulated"`
	SQLitePath string `yaml:"sqlitePath,omitempty"`
}

// CalendarConfig describes market calendars. Holidays are keyed by
// underlying; viper folds map keys to lower case.
type CalendarConfig struct {
	Weekends bool                `yaml:"weekends,omitempty"`
	Holidays map[string][]string `yaml:"holidays,omitempty" validate:"dive,dive,datetime=2006-01-02"`
}

// SimulationConfig parameterises simulated price histories. Mean returns and
// volatilities are daily and keyed by underlying.
type SimulationConfig struct {
	Assets        []string           `yaml:"assets,omitempty" validate:"unique"` // order of correlation rows and initial prices
	HorizonDays   int                `yaml:"horizonDays,omitempty" validate:"gte=0,lte=20000"`
	Seed          *uint64            `yaml:"seed,omitempty"`
	EstimateFrom  string             `yaml:"estimateFrom,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EstimateTo    string             `yaml:"estimateTo,omitempty" validate:"omitempty,datetime=2006-01-02"`
	MeanReturns   map[string]float64 `yaml:"meanReturns,omitempty"`
	Volatilities  map[string]float64 `yaml:"volatilities,omitempty" validate:"dive,gte=0"`
	Correlation   [][]float64        `yaml:"correlation,omitempty" validate:"dive,dive,gte=-1,lte=1"`
	InitialPrices []float64          `yaml:"initialPrices,omitempty" validate:"dive,gt=0"`
	Paths         int                `yaml:"paths,omitempty" validate:"gte=0,lte=100000"`
	Workers       int                `yaml:"workers,omitempty" validate:"gte=0"`
}

// Product is one configured autocallable note.
type Product struct {
	Name              string       `yaml:"name" validate:"required"`
	Active            bool         `yaml:"active"`
	Underlyings       []string     `yaml:"underlyings" validate:"required,min=1,unique,dive,required"`
	StartDate         string       `yaml:"startDate" validate:"required,datetime=2006-01-02"`
	Maturity          int          `yaml:"maturity" validate:"gt=0,lte=50"`              // years
	Period            int          `yaml:"period" validate:"gt=0"`                       // months
	Coupon            float64      `yaml:"coupon" validate:"gte=0"`                      // annualised
	Barriers          []float64    `yaml:"barriers" validate:"required,dive,gt=0,lte=1"` // one per observation
	HolidayAware      bool         `yaml:"holidayAware,omitempty"`
	Variant           string       `yaml:"variant,omitempty" validate:"variant"`
	LockObservation   int          `yaml:"lockObservation,omitempty" validate:"gte=0"`
	KnockInBarrier    float64      `yaml:"knockInBarrier,omitempty" validate:"gte=0,lte=1"`
	Lizard            []LizardStep `yaml:"lizard,omitempty" validate:"dive"`
	LizardCoupon      float64      `yaml:"lizardCoupon,omitempty" validate:"gte=0"`
	MonthlyPayBarrier float64      `yaml:"monthlyPayBarrier,omitempty" validate:"gte=0,lte=1"`
}

// LizardStep is the lizard threshold at one observation.
type LizardStep struct {
	Observation int     `yaml:"observation" validate:"gte=1"` // 1-based
	Barrier     float64 `yaml:"barrier" validate:"gt=0,lte=1"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %w", err)
	}
	return decode(v)
}

// LoadConfigurationFromReader loads a YAML-formatted configuration from r.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := viper.New()
	v.SetConfigType("yml")

	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config, %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		dateToString,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&configuration, hook); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	configuration.ApplyDefaults()
	return &configuration, nil
}

// dateToString turns unquoted YAML dates, which arrive as time.Time, back
// into DateLayout strings.
func dateToString(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	if t, ok := data.(time.Time); ok {
		return datetime.Format(t), nil
	}
	return data, nil
}

// ApplyDefaults fills unset optional fields.
func (c *Configuration) ApplyDefaults() {
	if c.Output.Notional == 0 {
		c.Output.Notional = constants.DefaultNotional
	}
	if c.Data.Source == "" {
		c.Data.Source = constants.DataSourceSQLite
	}
	if c.Data.SQLitePath == "" {
		c.Data.SQLitePath = constants.DefaultSQLitePath
	}
	if c.Simulation.HorizonDays == 0 {
		c.Simulation.HorizonDays = constants.DefaultHorizonDays
	}
	if c.Simulation.Workers == 0 {
		c.Simulation.Workers = constants.DefaultWorkers
	}
	for i := range c.Products {
		p := &c.Products[i]
		if p.Variant == "" {
			p.Variant = constants.VariantPlain
		}
		if p.LizardCoupon == 0 && (p.Variant == constants.VariantLizard || p.Variant == constants.VariantLizardKnockIn) {
			p.LizardCoupon = constants.DefaultLizardCouponMultiplier
		}
	}
}

// Validate checks struct constraints and enumerated options.
func (c *Configuration) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if c.Output.Format != "" {
		if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
			return err
		}
	}
	return validation.ValidateDataSource(c.Data.Source)
}

// SimulationAssets returns the asset order used for simulation: the
// configured list, or every active underlying in order of appearance.
func (c *Configuration) SimulationAssets() []string {
	if len(c.Simulation.Assets) > 0 {
		return append([]string(nil), c.Simulation.Assets...)
	}
	return c.Assets()
}

// ActiveProducts returns the products flagged active, in configuration order.
func (c *Configuration) ActiveProducts() []Product {
	var active []Product
	for _, p := range c.Products {
		if p.Active {
			active = append(active, p)
		}
	}
	return active
}

// Assets returns every underlying referenced by an active product, in order
// of first appearance.
func (c *Configuration) Assets() []string {
	seen := map[string]bool{}
	var assets []string
	for _, p := range c.ActiveProducts() {
		for _, u := range p.Underlyings {
			if !seen[u] {
				seen[u] = true
				assets = append(assets, u)
			}
		}
	}
	return assets
}

// LizardSchedule returns the lizard thresholds keyed by observation.
func (p Product) LizardSchedule() map[int]float64 {
	if len(p.Lizard) == 0 {
		return nil
	}
	out := make(map[int]float64, len(p.Lizard))
	for _, step := range p.Lizard {
		out[step.Observation] = step.Barrier
	}
	return out
}

// Lookup reads an asset-keyed map, falling back to a case-insensitive match
// because viper lower-cases map keys.
func Lookup[V any](m map[string]V, asset string) (V, bool) {
	if v, ok := m[asset]; ok {
		return v, true
	}
	if v, ok := m[strings.ToLower(asset)]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, asset) {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	products := make([]validation.ProductInfo, 0, len(c.Products))
	for _, p := range c.Products {
		products = append(products, validation.ProductInfo{
			Name:              p.Name,
			Active:            p.Active,
			Variant:           p.Variant,
			Barriers:          p.Barriers,
			LockObservation:   p.LockObservation,
			KnockInBarrier:    p.KnockInBarrier,
			Lizard:            p.LizardSchedule(),
			LizardCoupon:      p.LizardCoupon,
			MonthlyPayBarrier: p.MonthlyPayBarrier,
		})
	}

	validator := validation.ConfigValidator{Products: products}
	warnings := validator.ValidateAll()

	if c.Data.Source == constants.DataSourceSimulated {
		for _, asset := range c.Assets() {
			if _, ok := Lookup(c.Simulation.Volatilities, asset); !ok && c.Simulation.EstimateFrom == "" {
				warnings = append(warnings, fmt.Sprintf("Underlying '%s' has no simulation volatility and no estimation window; it will not move", asset))
			}
		}
	}
	return warnings
}
