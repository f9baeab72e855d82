// Package config assembles runtime settings from an optional .env file, an
// optional YAML file and FORMFLOW_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formflow/pkg/options"
	"github.com/goliatone/go-formflow/pkg/repository"
	"github.com/goliatone/go-formflow/pkg/vat"
)

const (
	BackendPostgREST = "postgrest"
	BackendSQL       = "sql"
)

const EnvPrefix = "FORMFLOW_"

type Backend struct {
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"apiKey"`
	DSN     string        `yaml:"dsn"`
	Timeout time.Duration `yaml:"timeout"`
}

type Tables struct {
	Forms          string `yaml:"forms"`
	ProjectSigners string `yaml:"projectSigners"`
	Requests       string `yaml:"requests"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Backend      Backend `yaml:"backend"`
	Tables       Tables  `yaml:"tables"`
	HTTP         HTTP    `yaml:"http"`
	Log          Log     `yaml:"log"`
	PageSize     int     `yaml:"pageSize"`
	VATRate      string  `yaml:"vatRate"`
	TemplatesDir string  `yaml:"templatesDir"`
}

// Lookup resolves one environment variable.
type Lookup func(key string) (string, bool)

func Default() Config {
	tables := repository.DefaultTables()
	return Config{
		Backend: Backend{Kind: BackendPostgREST, Timeout: 30 * time.Second},
		Tables: Tables{
			Forms:          tables.Forms,
			ProjectSigners: tables.ProjectSigners,
			Requests:       tables.Requests,
		},
		HTTP:     HTTP{Addr: ":8080"},
		Log:      Log{Level: "info", Format: "json"},
		PageSize: options.DefaultPageSize,
		VATRate:  vat.DefaultRate.String(),
	}
}

// Load reads path (when set) and the process environment. envFiles are read
// with godotenv; variables already present in the environment win, as with
// godotenv.Load. Missing env files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	dotenv := map[string]string{}
	for _, file := range envFiles {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
		for key, value := range values {
			if _, seen := dotenv[key]; !seen {
				dotenv[key] = value
			}
		}
	}

	lookup := func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := dotenv[key]
		return value, ok
	}
	if path == "" {
		if value, ok := lookup(EnvPrefix + "CONFIG"); ok {
			path = value
		}
	}
	return FromSources(path, lookup)
}

// FromSources builds a Config from an optional YAML file and lookup.
func FromSources(path string, lookup Lookup) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup Lookup) error {
	str := func(name string, dst *string) {
		if value, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(value) != "" {
			*dst = strings.TrimSpace(value)
		}
	}
	str("BACKEND", &c.Backend.Kind)
	str("BACKEND_URL", &c.Backend.URL)
	str("BACKEND_KEY", &c.Backend.APIKey)
	str("DATABASE_DSN", &c.Backend.DSN)
	str("TABLE_FORMS", &c.Tables.Forms)
	str("TABLE_PROJECT_SIGNERS", &c.Tables.ProjectSigners)
	str("TABLE_REQUESTS", &c.Tables.Requests)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("VAT_RATE", &c.VATRate)
	str("TEMPLATES_DIR", &c.TemplatesDir)

	if value, ok := lookup(EnvPrefix + "PAGE_SIZE"); ok && value != "" {
		size, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: %sPAGE_SIZE: %w", EnvPrefix, err)
		}
		c.PageSize = size
	}
	if value, ok := lookup(EnvPrefix + "TIMEOUT"); ok && value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: %sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Backend.Timeout = timeout
	}
	return nil
}

// Validate checks the settings needed by the selected backend.
func (c Config) Validate() error {
	switch c.Backend.Kind {
	case BackendPostgREST:
		if c.Backend.URL == "" || c.Backend.APIKey == "" {
			return errors.New("config: postgrest backend needs url and apiKey")
		}
	case BackendSQL:
		if c.Backend.DSN == "" {
			return errors.New("config: sql backend needs dsn")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend.Kind)
	}
	if c.PageSize <= 0 || c.PageSize > options.MaxPageSize {
		return fmt.Errorf("config: pageSize must be between 1 and %d", options.MaxPageSize)
	}
	if _, err := c.Rate(); err != nil {
		return err
	}
	return nil
}

// Rate parses the VAT rate.
func (c Config) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.VATRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("config: vatRate %q: %w", c.VATRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("config: vatRate %q out of range", c.VATRate)
	}
	return rate, nil
}

// RepositoryTables converts the table names for repository.WithTables.
func (c Config) RepositoryTables() repository.Tables {
	return repository.Tables{
		Forms:          c.Tables.Forms,
		ProjectSigners: c.Tables.ProjectSigners,
		Requests:       c.Tables.Requests,
	}
}
