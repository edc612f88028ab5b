package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Store backends
const (
	BackendSheets = "sheets"
	BackendXLSX   = "xlsx"
	BackendMemory = "memory"
)

type (
	Config struct {
		Env          string
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		RollbarToken string

		Server   ServerConfig
		Identity IdentityConfig
		Store    StoreConfig
		Sheets   SheetsConfig
		Cache    CacheConfig
	}

	ServerConfig struct {
		Address         string
		Host            string
		ShutdownTimeout time.Duration
	}

	IdentityConfig struct {
		Endpoint  string
		JWTSecret string
	}

	StoreConfig struct {
		Backend  string
		ID       string
		Sheet    string
		XLSXPath string
	}

	// SheetsConfig holds the service identity used to talk to the remote tabular store.
	SheetsConfig struct {
		BaseURL             string
		TokenURL            string
		Scope               string
		ServiceAccountEmail string
		PrivateKey          string // base64-encoded, newline-escaped PEM
	}

	CacheConfig struct {
		TTL           time.Duration
		SweepInterval time.Duration
	}
)

// NewConfig loads the configuration from the environment, after loading `config/.env.<env>` if it exists.
func NewConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("app_name", "LearnSync")
	v.SetDefault("build", "develop")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.backend", BackendSheets)
	v.SetDefault("store.sheet", "Sheet1")
	v.SetDefault("store.xlsx_path", "progress.xlsx")
	v.SetDefault("sheets.base_url", "https://sheets.googleapis.com/v4/spreadsheets")
	v.SetDefault("token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("token_scope", "https://www.googleapis.com/auth/spreadsheets")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.sweep_interval", time.Minute)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetDefault("test_mode", env == "TEST")

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}

	// server.shutdown_timeout <- SERVER_SHUTDOWN_TIMEOUT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("test_mode"),
		AppName:      v.GetString("app_name"),
		Build:        v.GetString("build"),
		RollbarToken: v.GetString("rollbar_token"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			Host:            v.GetString("server.host"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Identity: IdentityConfig{
			Endpoint:  v.GetString("identity.endpoint"),
			JWTSecret: v.GetString("identity.jwt_secret"),
		},
		Store: StoreConfig{
			Backend:  strings.ToLower(v.GetString("store.backend")),
			ID:       v.GetString("store.id"),
			Sheet:    v.GetString("store.sheet"),
			XLSXPath: v.GetString("store.xlsx_path"),
		},
		Sheets: SheetsConfig{
			BaseURL:             v.GetString("sheets.base_url"),
			TokenURL:            v.GetString("token_url"),
			Scope:               v.GetString("token_scope"),
			ServiceAccountEmail: v.GetString("service_account.email"),
			PrivateKey:          v.GetString("service_account.private_key"),
		},
		Cache: CacheConfig{
			TTL:           v.GetDuration("cache.ttl"),
			SweepInterval: v.GetDuration("cache.sweep_interval"),
		},
	}
	return conf, conf.Validate()
}

// Validate reports the settings missing for the selected store backend.
func (c *Config) Validate() error {
	var flds []FieldError
	missing := func(key, val string) {
		if strings.TrimSpace(val) == "" {
			flds = append(flds, FieldError{Field: key, Error: "this setting is required"})
		}
	}

	switch c.Store.Backend {
	case BackendSheets:
		missing("STORE_ID", c.Store.ID)
		missing("SERVICE_ACCOUNT_EMAIL", c.Sheets.ServiceAccountEmail)
		missing("SERVICE_ACCOUNT_PRIVATE_KEY", c.Sheets.PrivateKey)
	case BackendXLSX:
		missing("STORE_XLSX_PATH", c.Store.XLSXPath)
	case BackendMemory:
	default:
		flds = append(flds, FieldError{Field: "STORE_BACKEND", Error: "unknown backend " + c.Store.Backend})
	}
	if c.Identity.Endpoint == "" && c.Identity.JWTSecret == "" {
		flds = append(flds, FieldError{Field: "IDENTITY_ENDPOINT", Error: "one of IDENTITY_ENDPOINT or IDENTITY_JWT_SECRET is required"})
	}

	if len(flds) > 0 {
		names := make([]string, 0, len(flds))
		for _, fld := range flds {
			names = append(names, fld.Field)
		}
		return NewValidationError(errors.Errorf("invalid configuration: %s", strings.Join(names, ", ")), flds...)
	}
	return nil
}
