/*
Package config loads server settings from the environment.

SOURCES (later wins):
  1. Defaults below
  2. .env file in the working directory, if present
  3. Process environment
  4. Command-line flags (-port, -db) applied by cmd/server

VARIABLES:
  PORT                    HTTP port (default 8080)
  LEDGER_BACKEND          sqlite | mongodb | memory (default sqlite)
  SQLITE_PATH             SQLite file, ":memory:" allowed (default smartpasal.db)
  MONGO_URI               MongoDB connection string (replica set required)
  MONGO_DATABASE          MongoDB database (default smartpasal)
  JWT_SECRET              HS256 signing key; required unless AUTH_DISABLED=true
  AUTH_DISABLED           skip bearer auth, for local development only
  ALLOWED_ORIGINS         comma separated CORS origins (default *)
  LOG_LEVEL               debug | info | warn | error (default info)
  ENVIRONMENT             development | production (default development)
  VERSION                 build version reported in logs and /health
  SALE_MAX_ATTEMPTS       version-conflict retries per sale (default 5)
  MISSING_PRODUCT_POLICY  skip | fail (default skip)
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/smartpasal/pos-ledger/sales"
)

type Backend string

const (
	BackendSQLite  Backend = "sqlite"
	BackendMongoDB Backend = "mongodb"
	BackendMemory  Backend = "memory"
)

type Config struct {
	Port        int
	Backend     Backend
	SQLitePath  string
	MongoURI    string
	MongoDB     string
	JWTSecret   string
	AuthEnabled bool
	Origins     []string
	LogLevel    string
	Environment string
	Version     string

	SaleMaxAttempts int
	MissingProducts sales.MissingProductPolicy
}

func Default() Config {
	return Config{
		Port:            8080,
		Backend:         BackendSQLite,
		SQLitePath:      "smartpasal.db",
		MongoURI:        "mongodb://localhost:27017/?replicaSet=rs0",
		MongoDB:         "smartpasal",
		AuthEnabled:     true,
		Origins:         []string{"*"},
		LogLevel:        "info",
		Environment:     "development",
		Version:         "dev",
		SaleMaxAttempts: sales.DefaultConfig().MaxAttempts,
		MissingProducts: sales.SkipMissingProduct,
	}
}

// Load reads the optional .env file and the environment on top of the
// defaults. A missing .env is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a lookup function such as os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	var err error
	if v, ok := get("PORT"); ok {
		if cfg.Port, err = strconv.Atoi(v); err != nil || cfg.Port <= 0 {
			return Config{}, fmt.Errorf("PORT: invalid port %q", v)
		}
	}
	if v, ok := get("LEDGER_BACKEND"); ok {
		cfg.Backend = Backend(strings.ToLower(v))
	}
	if v, ok := get("SQLITE_PATH"); ok {
		cfg.SQLitePath = v
	}
	if v, ok := get("MONGO_URI"); ok {
		cfg.MongoURI = v
	}
	if v, ok := get("MONGO_DATABASE"); ok {
		cfg.MongoDB = v
	}
	if v, ok := get("JWT_SECRET"); ok {
		cfg.JWTSecret = v
	}
	if v, ok := get("AUTH_DISABLED"); ok {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("AUTH_DISABLED: %w", err)
		}
		cfg.AuthEnabled = !disabled
	}
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		cfg.Origins = splitList(v)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := get("ENVIRONMENT"); ok {
		cfg.Environment = v
	}
	if v, ok := get("VERSION"); ok {
		cfg.Version = v
	}
	if v, ok := get("SALE_MAX_ATTEMPTS"); ok {
		if cfg.SaleMaxAttempts, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("SALE_MAX_ATTEMPTS: %w", err)
		}
	}
	if v, ok := get("MISSING_PRODUCT_POLICY"); ok {
		cfg.MissingProducts = sales.MissingProductPolicy(strings.ToLower(v))
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendMongoDB, BackendMemory:
	default:
		return fmt.Errorf("LEDGER_BACKEND: unknown backend %q", c.Backend)
	}
	if !c.MissingProducts.Valid() {
		return fmt.Errorf("MISSING_PRODUCT_POLICY: unknown policy %q", c.MissingProducts)
	}
	if c.SaleMaxAttempts < 1 {
		return errors.New("SALE_MAX_ATTEMPTS: must be at least 1")
	}
	if c.AuthEnabled && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	return nil
}

// SalesConfig is the coordinator configuration implied by c.
func (c Config) SalesConfig() sales.Config {
	cfg := sales.DefaultConfig()
	cfg.MaxAttempts = c.SaleMaxAttempts
	cfg.MissingProducts = c.MissingProducts
	return cfg
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
