package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DatabaseSchemePostgres is the postgres database scheme identifier
	DatabaseSchemePostgres = "postgres"
)

// ErrInvalid is returned by Validate when the configuration cannot be used.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	RPCURL    string `yaml:"rpc_url"`
	APIURL    string `yaml:"api_url"` // Cosmos REST API base URL (e.g., http://node:1317)
	DBDialect string `yaml:"-"`       // postgres only
	DBDsn     string `yaml:"database_url"`

	CoinDenom    string `yaml:"coin_minimal_denom"`
	CoinDecimals int32  `yaml:"coin_decimals"`

	Threads        int           `yaml:"threads"`
	GapInterval    time.Duration `yaml:"gap_interval"`
	WorkerInterval time.Duration `yaml:"worker_interval"`
	BatchSize      int64         `yaml:"batch_size"`
	StartHeight    int64         `yaml:"start_height"` // 0: start at the chain tip
	JobTimeout     time.Duration `yaml:"job_timeout"`
	BackoffInitial time.Duration `yaml:"retry_backoff_initial"`
	BackoffMax     time.Duration `yaml:"retry_backoff_max"`
	StuckAfter     time.Duration `yaml:"stuck_after"`

	MetricsAddr  string `yaml:"metrics_addr"`  // empty disables the metrics server
	OTLPEndpoint string `yaml:"otlp_endpoint"` // empty disables trace export

	TUI   bool `yaml:"tui"`
	Debug bool `yaml:"debug"`

	decimalsSet bool
}

func defaults() Config {
	return Config{
		Threads:        4,
		GapInterval:    3 * time.Second,
		WorkerInterval: time.Second,
		BatchSize:      100,
		JobTimeout:     60 * time.Second,
		BackoffInitial: time.Second,
		BackoffMax:     30 * time.Second,
		StuckAfter:     10 * time.Minute,
	}
}

// Load builds the configuration from CONFIG_FILE (optional YAML) and then
// the environment, which takes precedence.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
		cfg.decimalsSet = yamlHasKey(raw, "coin_decimals")
	}

	var errs []error
	cfg.RPCURL = strings.TrimSuffix(getenv("RPC_URL", cfg.RPCURL), "/")
	cfg.APIURL = strings.TrimSuffix(getenv("API_URL", cfg.APIURL), "/")
	cfg.DBDsn = strings.TrimSpace(getenv("DATABASE_URL", cfg.DBDsn))
	cfg.CoinDenom = getenv("COIN_MINIMAL_DENOM", cfg.CoinDenom)
	if v := os.Getenv("COIN_DECIMALS"); v != "" {
		d, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("COIN_DECIMALS: %w", err))
		}
		cfg.CoinDecimals = int32(d)
		cfg.decimalsSet = true
	}
	cfg.Threads = getenvInt("THREADS", cfg.Threads, &errs)
	cfg.BatchSize = int64(getenvInt("BATCH_SIZE", int(cfg.BatchSize), &errs))
	cfg.StartHeight = int64(getenvInt("START_HEIGHT", int(cfg.StartHeight), &errs))
	cfg.GapInterval = getenvDuration("GAP_INTERVAL", cfg.GapInterval, &errs)
	cfg.WorkerInterval = getenvDuration("WORKER_INTERVAL", cfg.WorkerInterval, &errs)
	cfg.JobTimeout = getenvDuration("JOB_TIMEOUT", cfg.JobTimeout, &errs)
	cfg.BackoffInitial = getenvDuration("RETRY_BACKOFF_INITIAL", cfg.BackoffInitial, &errs)
	cfg.BackoffMax = getenvDuration("RETRY_BACKOFF_MAX", cfg.BackoffMax, &errs)
	cfg.StuckAfter = getenvDuration("STUCK_AFTER", cfg.StuckAfter, &errs)
	cfg.MetricsAddr = getenv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.OTLPEndpoint = getenv("OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.TUI = getenvBool("TUI", cfg.TUI)
	cfg.Debug = getenvBool("DEBUG", cfg.Debug)

	if cfg.DBDsn != "" {
		dialect, dsn, err := parseDatabaseURL(cfg.DBDsn)
		if err != nil {
			errs = append(errs, err)
		}
		cfg.DBDialect, cfg.DBDsn = dialect, dsn
	}
	if len(errs) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return cfg, nil
}

// Validate reports every missing or out-of-range setting at once.
func (c Config) Validate() error {
	var problems []string
	if c.RPCURL == "" {
		problems = append(problems, "RPC_URL is required")
	}
	if c.APIURL == "" {
		problems = append(problems, "API_URL is required")
	}
	if c.DBDsn == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.CoinDenom == "" {
		problems = append(problems, "COIN_MINIMAL_DENOM is required")
	}
	if !c.decimalsSet {
		problems = append(problems, "COIN_DECIMALS is required")
	} else if c.CoinDecimals < 0 || c.CoinDecimals > 18 {
		problems = append(problems, "COIN_DECIMALS must be within 0..18")
	}
	if c.Threads < 1 {
		problems = append(problems, "THREADS must be positive")
	}
	if c.BatchSize < 1 {
		problems = append(problems, "BATCH_SIZE must be positive")
	}
	if c.StartHeight < 0 {
		problems = append(problems, "START_HEIGHT must not be negative")
	}
	if c.GapInterval <= 0 || c.WorkerInterval <= 0 {
		problems = append(problems, "GAP_INTERVAL and WORKER_INTERVAL must be positive")
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		problems = append(problems, "RETRY_BACKOFF_INITIAL must be positive and not above RETRY_BACKOFF_MAX")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func yamlHasKey(raw []byte, key string) bool {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, ok := m[key]
	return ok
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func getenvInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

// parseDatabaseURL interprets DATABASE_URL and returns (dialect, dsn).
// Supported schemes: postgres, postgresql.
func parseDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", fmt.Errorf("DATABASE_URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case DatabaseSchemePostgres, "postgresql":
		// GORM postgres driver accepts URL DSN as-is
		return DatabaseSchemePostgres, databaseURL, nil
	default:
		return "", "", fmt.Errorf("unsupported DATABASE_URL scheme: %s", u.Scheme)
	}
}

// DebugString returns a human-friendly configuration string with masked secrets.
func (c Config) DebugString() string {
	return fmt.Sprintf(
		"rpc=%s api=%s dsn=%s denom=%s decimals=%d threads=%d batch=%d start=%d",
		c.RPCURL,
		c.APIURL,
		maskDSN(c.DBDialect, c.DBDsn),
		c.CoinDenom,
		c.CoinDecimals,
		c.Threads,
		c.BatchSize,
		c.StartHeight,
	)
}

func maskDSN(dialect, dsn string) string {
	if strings.ToLower(dialect) != DatabaseSchemePostgres {
		return dsn
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		if u.User != nil {
			u.User = url.User(u.User.Username())
		}
		return u.String()
	}
	parts := strings.Fields(dsn)
	for i, p := range parts {
		if strings.HasPrefix(strings.ToLower(p), "password=") {
			parts[i] = "password=***"
		}
	}
	return strings.Join(parts, " ")
}
