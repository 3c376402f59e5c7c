// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/payslip-crawler/internal/crawler"
	"github.com/joho/godotenv"
)

// Defaults for the Oracle HCM tenant the crawler was written against.
const (
	DefaultLoginURL     = "https://ehyn.login.us6.oraclecloud.com/"
	DefaultDocumentsURL = "https://ehyn.fa.us6.oraclecloud.com/hcmUI/faces/FndOverview?fnd=%3B%3B%3B%3Bfalse%3B256%3B%3B%3B&fndGlobalItemNodeId=PER_HCMPEOPLETOP_FUSE_PER_INFO"
	DefaultDownloadPath = "./downloads"
)

// ErrMissingCredentials is returned by RequireCredentials.
var ErrMissingCredentials = errors.New("portal credentials are not set (ORACLE_USERNAME, ORACLE_PASSWORD)")

// Duration is a time.Duration written as "30s" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the resolved configuration of one command.
type Config struct {
	// Portal
	Username     string            `json:"username,omitempty"`
	Password     string            `json:"password,omitempty"`
	LoginURL     string            `json:"login_url,omitempty" validate:"required,url"`
	DocumentsURL string            `json:"documents_url,omitempty" validate:"required,url"`
	Selectors    crawler.Selectors `json:"selectors,omitempty"`

	// Storage
	DownloadPath string `json:"download_path,omitempty" validate:"required"`
	DatabaseURL  string `json:"database_url,omitempty" validate:"omitempty,url"` // PostgreSQL progress backend
	NoLedger     bool   `json:"no_ledger,omitempty"`

	// Crawl
	Headless               bool `json:"headless"`
	ForceRestart           bool `json:"force_restart,omitempty"`
	BatchSize              int  `json:"batch_size,omitempty" validate:"min=1"`
	MaxItems               int  `json:"max_items,omitempty" validate:"min=1"`
	MaxConsecutiveFailures int  `json:"max_consecutive_failures" validate:"min=0"`

	// Timing
	StepTimeout     Duration `json:"step_timeout,omitempty" validate:"gt=0"`
	DownloadTimeout Duration `json:"download_timeout,omitempty" validate:"gt=0"`
	SettleDelay     Duration `json:"settle_delay,omitempty" validate:"gte=0"`

	// Logging
	Verbose bool   `json:"verbose,omitempty"`
	LogFile string `json:"log_file,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LoginURL:               DefaultLoginURL,
		DocumentsURL:           DefaultDocumentsURL,
		DownloadPath:           DefaultDownloadPath,
		Headless:               true,
		BatchSize:              crawler.DefaultBatchSize,
		MaxItems:               crawler.DefaultMaxItems,
		MaxConsecutiveFailures: 10,
		StepTimeout:            Duration(30 * time.Second),
		DownloadTimeout:        Duration(20 * time.Second),
		SettleDelay:            Duration(2 * time.Second),
	}
}

// LoadConfig reads a JSON config file over base. Keys missing from the file
// keep the value they have in base.
func LoadConfig(path string, base Config) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := base
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// Load resolves defaults, the optional config file, a .env file in the
// working directory and the process environment, in that order. CLI flags
// are applied by the caller afterwards.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fromFile, err := LoadConfig(path, cfg)
		if err != nil {
			return nil, err
		}
		cfg = *fromFile
	}

	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config error: %s must be true or false, got %q", key, v)
		}
		*dst = b
		return nil
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config error: %s must be an integer, got %q", key, v)
		}
		*dst = n
		return nil
	}

	str("ORACLE_USERNAME", &c.Username)
	str("ORACLE_PASSWORD", &c.Password)
	str("PORTAL_LOGIN_URL", &c.LoginURL)
	str("PORTAL_DOCUMENTS_URL", &c.DocumentsURL)
	str("DOWNLOAD_PATH", &c.DownloadPath)
	str("DATABASE_URL", &c.DatabaseURL)

	if err := boolean("HEADLESS", &c.Headless); err != nil {
		return err
	}
	if err := boolean("FORCE_RESTART", &c.ForceRestart); err != nil {
		return err
	}
	if err := integer("BATCH_SIZE", &c.BatchSize); err != nil {
		return err
	}
	return integer("MAX_ITEMS", &c.MaxItems)
}

// Validate checks that the configuration has valid values.
// Note: credentials are not checked here since only the crawl needs them;
// see RequireCredentials.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("config error: '%s' failed the '%s' check", jsonName(fe.StructField()), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// RequireCredentials fails when username or password is missing.
func (c *Config) RequireCredentials() error {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// EffectiveSelectors returns the configured selectors with every empty
// list taken from the built-in ones.
func (c *Config) EffectiveSelectors() crawler.Selectors {
	return c.Selectors.Merge(crawler.DefaultSelectors())
}

var jsonNames = map[string]string{
	"LoginURL":               "login_url",
	"DocumentsURL":           "documents_url",
	"DownloadPath":           "download_path",
	"DatabaseURL":            "database_url",
	"BatchSize":              "batch_size",
	"MaxItems":               "max_items",
	"MaxConsecutiveFailures": "max_consecutive_failures",
	"StepTimeout":            "step_timeout",
	"DownloadTimeout":        "download_timeout",
	"SettleDelay":            "settle_delay",
}

func jsonName(field string) string {
	if name, ok := jsonNames[field]; ok {
		return name
	}
	return field
}
