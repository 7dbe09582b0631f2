package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"`
	DBPath      string `json:"db_path" validate:"required"`
	MetricsPort int    `json:"metrics_port" validate:"gte=0"`

	Auth struct {
		ClientID          string   `json:"client_id" validate:"required"`
		AuthorizeURL      string   `json:"authorize_url" validate:"required,url"`
		TokenURL          string   `json:"token_url" validate:"required,url"`
		CallbackPort      int      `json:"callback_port" validate:"min=1,max=65535"`
		MobileRedirectURI string   `json:"mobile_redirect_uri" validate:"required"`
		FlowTimeout       Duration `json:"flow_timeout" validate:"min=1s"`
		EncryptionKey     string   `json:"encryption_key" validate:"required,min=32"`
	} `json:"auth"`

	Budgets struct {
		SearchPaths []string `json:"search_paths"`
	} `json:"budgets"`
}

// Duration is a wrapper around time.Duration that implements JSON
// marshaling/unmarshaling.
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns a configuration with provider and flow defaults
// filled in. ClientID and EncryptionKey still have to come from the
// config file or environment.
func Default() *Config {
	cfg := &Config{
		LogLevel: "info",
		DBPath:   defaultDBPath(),
	}
	cfg.Auth.AuthorizeURL = "https://www.dropbox.com/oauth2/authorize"
	cfg.Auth.TokenURL = "https://api.dropboxapi.com/oauth2/token"
	cfg.Auth.CallbackPort = 8742
	cfg.Auth.MobileRedirectURI = "ynab4viewer://oauth/callback"
	cfg.Auth.FlowTimeout = Duration{5 * time.Minute}
	return cfg
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "budgetview.db"
	}
	return filepath.Join(home, ".budgetview", "budgetview.db")
}

// Load reads configuration from a file and overrides with environment
// variables. A missing file is not an error: defaults plus environment
// overrides are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		// fall through to env overrides
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("BUDGETVIEW_CLIENT_ID"); v != "" {
		c.Auth.ClientID = v
	}
	if v := os.Getenv("BUDGETVIEW_ENCRYPTION_KEY"); v != "" {
		c.Auth.EncryptionKey = v
	}
	if v := os.Getenv("BUDGETVIEW_AUTHORIZE_URL"); v != "" {
		c.Auth.AuthorizeURL = v
	}
	if v := os.Getenv("BUDGETVIEW_TOKEN_URL"); v != "" {
		c.Auth.TokenURL = v
	}

	if v := os.Getenv("BUDGETVIEW_CALLBACK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing BUDGETVIEW_CALLBACK_PORT: %w", err)
		}
		c.Auth.CallbackPort = port
	}

	if v := os.Getenv("BUDGETVIEW_FLOW_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing BUDGETVIEW_FLOW_TIMEOUT: %w", err)
		}
		c.Auth.FlowTimeout = Duration{d}
	}

	if v := os.Getenv("BUDGETVIEW_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BUDGETVIEW_DB_PATH"); v != "" {
		c.DBPath = v
	}

	if v := os.Getenv("BUDGETVIEW_METRICS_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing BUDGETVIEW_METRICS_PORT: %w", err)
		}
		c.MetricsPort = port
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}
