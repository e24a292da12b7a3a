package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartpasal/pos-ledger/config"
	"github.com/smartpasal/pos-ledger/sales"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := config.FromEnv(env(map[string]string{"JWT_SECRET": "s3cret"}))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.BackendSQLite, cfg.Backend)
	assert.Equal(t, "smartpasal.db", cfg.SQLitePath)
	assert.True(t, cfg.AuthEnabled)
	assert.Equal(t, []string{"*"}, cfg.Origins)
	assert.Equal(t, sales.SkipMissingProduct, cfg.MissingProducts)
	assert.Equal(t, 5, cfg.SalesConfig().MaxAttempts)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := config.FromEnv(env(map[string]string{
		"PORT":                   "3000",
		"LEDGER_BACKEND":         "MongoDB",
		"MONGO_URI":              "mongodb://db:27017/?replicaSet=rs0",
		"MONGO_DATABASE":         "pasal_test",
		"AUTH_DISABLED":          "true",
		"ALLOWED_ORIGINS":        "https://app.smartpasal.np, http://localhost:19006 ,",
		"LOG_LEVEL":              "DEBUG",
		"SALE_MAX_ATTEMPTS":      "8",
		"MISSING_PRODUCT_POLICY": "fail",
	}))
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, config.BackendMongoDB, cfg.Backend)
	assert.Equal(t, "pasal_test", cfg.MongoDB)
	assert.False(t, cfg.AuthEnabled)
	assert.Equal(t, []string{"https://app.smartpasal.np", "http://localhost:19006"}, cfg.Origins)
	assert.Equal(t, "debug", cfg.LogLevel)

	sc := cfg.SalesConfig()
	assert.Equal(t, 8, sc.MaxAttempts)
	assert.Equal(t, sales.FailOnMissingProduct, sc.MissingProducts)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"missing secret":  {},
		"bad port":        {"JWT_SECRET": "x", "PORT": "eighty"},
		"unknown backend": {"JWT_SECRET": "x", "LEDGER_BACKEND": "postgres"},
		"unknown policy":  {"JWT_SECRET": "x", "MISSING_PRODUCT_POLICY": "ignore"},
		"zero attempts":   {"JWT_SECRET": "x", "SALE_MAX_ATTEMPTS": "0"},
		"bad bool":        {"AUTH_DISABLED": "maybe"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromEnv(env(vars))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-dotenv\nLEDGER_BACKEND=memory\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("PORT", "9090")
	// godotenv does not override variables that are already set.
	t.Setenv("LEDGER_BACKEND", "sqlite")
	os.Unsetenv("JWT_SECRET")
	t.Cleanup(func() { os.Unsetenv("JWT_SECRET") })

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.JWTSecret)
	assert.Equal(t, config.BackendSQLite, cfg.Backend)
	assert.Equal(t, 9090, cfg.Port)
}
