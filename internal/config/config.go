// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config defines the structure for all application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Risk         RiskConfig         `yaml:"risk"`
	Intel        IntelConfig        `yaml:"intel"`
	Providers    []ProviderConfig   `yaml:"providers"`
	Agents       []AgentConfig      `yaml:"agents"`
	Notify       NotifyConfig       `yaml:"notify"`

	// Loaded from environment, never from YAML.
	Database DatabaseConfig `yaml:"-"`
	Venue    VenueConfig    `yaml:"-"`
	LogLevel string         `yaml:"-"`
	LogFmt   string         `yaml:"-"`
}

// ServerConfig controls the HTTP control/read API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// OrchestratorConfig controls the cycle scheduler.
type OrchestratorConfig struct {
	IntervalMinutes     int `yaml:"interval_minutes"`
	CycleTimeoutSeconds int `yaml:"cycle_timeout_seconds"`
}

// RiskConfig holds the ledger-wide trading limits.
type RiskConfig struct {
	// MaxTradeFraction caps a single trade at this fraction of an
	// agent's initial capital.
	MaxTradeFraction Decimal `yaml:"max_trade_fraction"`
	// MinLiquidity is the market liquidity floor below which trades are rejected.
	MinLiquidity Decimal `yaml:"min_liquidity"`
	// DustEpsilon is the share count below which a position is deleted.
	DustEpsilon Decimal `yaml:"dust_epsilon"`
}

// IntelConfig controls the market intelligence fetches.
type IntelConfig struct {
	MarketsURL     string  `yaml:"markets_url"`
	NewsURL        string  `yaml:"news_url"`
	SocialURL      string  `yaml:"social_url"`
	MaxMarkets     int     `yaml:"max_markets"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
}

// ProviderConfig describes one LLM decision provider endpoint.
// The API key is taken from the environment variable <NAME>_API_KEY.
type ProviderConfig struct {
	Name              string `yaml:"name"`
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	APIKey            string `yaml:"-"`
}

// AgentConfig describes one trading agent in the fleet.
type AgentConfig struct {
	Name           string   `yaml:"name"`
	Provider       string   `yaml:"provider"`
	Model          string   `yaml:"model"`
	Strategy       string   `yaml:"strategy"`
	InitialCapital Decimal  `yaml:"initial_capital"`
	Active         FlexBool `yaml:"active"`
}

// NotifyConfig controls outbound alert notifications.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// DatabaseConfig holds the Postgres connection parameters.
// All fields come from the environment; an empty Host means "run without a
// database" (in-memory ledger).
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Enabled reports whether a database connection is configured.
func (d DatabaseConfig) Enabled() bool { return d.Host != "" }

// DSN builds the pgx connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// VenueConfig holds order-venue credentials for live execution.
// Missing credentials are not an error: the executor falls back to
// simulation mode.
type VenueConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

// Configured reports whether live-venue credentials are present.
func (v VenueConfig) Configured() bool { return v.APIKey != "" && v.APISecret != "" }

// LoadConfig loads configuration from the specified YAML file path and the
// environment. A .env file in the working directory is loaded first if present.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load() // best effort; absence of .env is normal

	cfg := &Config{
		LogLevel: "info",
		LogFmt:   "json",
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config.LoadConfig: read %q: %w", configPath, err)
	}
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("config.LoadConfig: parse %q: %w", configPath, err)
	}

	applyDefaults(cfg)
	loadEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config.LoadConfig: %w", err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Orchestrator.IntervalMinutes <= 0 {
		cfg.Orchestrator.IntervalMinutes = 15
	}
	if cfg.Orchestrator.CycleTimeoutSeconds <= 0 {
		cfg.Orchestrator.CycleTimeoutSeconds = 600
	}
	if cfg.Risk.MaxTradeFraction.IsZero() {
		cfg.Risk.MaxTradeFraction = NewDecimalFromString("0.1")
	}
	if cfg.Risk.MinLiquidity.IsZero() {
		cfg.Risk.MinLiquidity = NewDecimalFromString("1000")
	}
	if cfg.Risk.DustEpsilon.IsZero() {
		cfg.Risk.DustEpsilon = NewDecimalFromString("0.0001")
	}
	if cfg.Intel.MaxMarkets <= 0 {
		cfg.Intel.MaxMarkets = 20
	}
	if cfg.Intel.TimeoutSeconds <= 0 {
		cfg.Intel.TimeoutSeconds = 30
	}
	if cfg.Intel.RatePerSecond <= 0 {
		cfg.Intel.RatePerSecond = 5
	}
	for i := range cfg.Providers {
		if cfg.Providers[i].TimeoutSeconds <= 0 {
			cfg.Providers[i].TimeoutSeconds = 60
		}
		if cfg.Providers[i].RequestsPerMinute <= 0 {
			cfg.Providers[i].RequestsPerMinute = 30
		}
	}
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFmt = v
	}

	cfg.Database = DatabaseConfig{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		Name:     os.Getenv("DB_NAME"),
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "5432"
	}

	cfg.Venue = VenueConfig{
		BaseURL:   os.Getenv("VENUE_BASE_URL"),
		APIKey:    os.Getenv("VENUE_API_KEY"),
		APISecret: os.Getenv("VENUE_API_SECRET"),
	}

	for i := range cfg.Providers {
		envKey := strings.ToUpper(strings.ReplaceAll(cfg.Providers[i].Name, "-", "_")) + "_API_KEY"
		cfg.Providers[i].APIKey = os.Getenv(envKey)
	}
}

func validate(cfg *Config) error {
	if len(cfg.Agents) == 0 {
		return fmt.Errorf("no agents configured")
	}
	providers := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider with empty name")
		}
		providers[p.Name] = true
	}
	seen := make(map[string]bool, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.Name == "" {
			return fmt.Errorf("agent with empty name")
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
		if !providers[a.Provider] {
			return fmt.Errorf("agent %q references unknown provider %q", a.Name, a.Provider)
		}
		if !a.InitialCapital.Decimal().IsPositive() {
			return fmt.Errorf("agent %q has non-positive initial capital", a.Name)
		}
	}
	one := NewDecimalFromString("1")
	if !cfg.Risk.MaxTradeFraction.Decimal().IsPositive() || cfg.Risk.MaxTradeFraction.Decimal().GreaterThan(one.Decimal()) {
		return fmt.Errorf("max_trade_fraction must be in (0, 1]")
	}
	return nil
}
