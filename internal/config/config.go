// Package config loads the runtime settings from the environment and the
// table catalog from its YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	SourceDriver string
	SourceDSN    string
	// SourceLocation is the session time zone of the source database.
	SourceLocation  *time.Location
	WarehouseDriver string
	WarehouseDSN    string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	BucketRaw        string
	BucketClean      string
	BucketAggregated string
	RetryDelay       time.Duration

	// MongoConnString is optional; without it no run ledger is kept.
	MongoConnString string
	MongoDatabase   string
	// LockTTL bounds how long a crashed run can keep its date locked.
	LockTTL time.Duration

	LogLevel    string
	LogFile     string
	CatalogFile string
}

// LedgerEnabled reports whether a Mongo run ledger is configured.
func (c *Config) LedgerEnabled() bool {
	return c.MongoConnString != ""
}

// RequireSource checks the settings needed to read the source database.
func (c *Config) RequireSource() error {
	if c.SourceDSN == "" {
		return errors.New("SOURCE_DSN environment variable not set")
	}
	return nil
}

// RequireWarehouse checks the settings needed to write the warehouse.
func (c *Config) RequireWarehouse() error {
	if c.WarehouseDSN == "" {
		return errors.New("WAREHOUSE_DSN environment variable not set")
	}
	return nil
}

// RequireStore checks the settings needed to reach the object store.
func (c *Config) RequireStore() error {
	if c.S3Endpoint == "" {
		return errors.New("S3_ENDPOINT environment variable not set")
	}
	return nil
}

// LoadConfig loads application settings from environment variables
// (which should be populated by the .env file in main.go). Connection settings
// are checked by RequireSource, RequireWarehouse and RequireStore, since each
// command needs a different subset of them.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		SourceDriver:     getenv("SOURCE_DRIVER", "postgres"),
		SourceDSN:        os.Getenv("SOURCE_DSN"),
		WarehouseDriver:  getenv("WAREHOUSE_DRIVER", "postgres"),
		WarehouseDSN:     os.Getenv("WAREHOUSE_DSN"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3Region:         getenv("S3_REGION", "us-east-1"),
		BucketRaw:        getenv("BUCKET_RAW", "raw"),
		BucketClean:      getenv("BUCKET_CLEAN", "clean"),
		BucketAggregated: getenv("BUCKET_AGGREGATED", "aggregated"),
		MongoConnString:  os.Getenv("MONGO_CONNECTION_STRING"),
		MongoDatabase:    getenv("MONGO_DATABASE", "sante_etl"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		CatalogFile:      os.Getenv("CATALOG_FILE"),
	}

	var err error
	if cfg.S3UseSSL, err = parseBool("S3_USE_SSL", false); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = parseDuration("STORAGE_RETRY_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.LockTTL, err = parseDuration("LOCK_TTL", 6*time.Hour); err != nil {
		return nil, err
	}
	tz := getenv("SOURCE_TIMEZONE", "UTC")
	if cfg.SourceLocation, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid SOURCE_TIMEZONE %q: %w", tz, err)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, v)
	}
	return d, nil
}
