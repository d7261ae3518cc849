package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"imovelworker/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Portal selection and entry URLs
	Portal string
	OLXURL string
	ZapURL string

	// Run identity; checkpoint files are keyed by it
	RunID         string
	CheckpointDir string
	DataDir       string

	// Termination policy
	MaxPages       int
	TargetListings int
	EmptyPageLimit int

	// Retry policy
	MaxRetries int
	RetryDelay time.Duration

	// Fetcher pacing between pages
	PageDelayMin time.Duration
	PageDelayMax time.Duration

	// Rate-limit block cache (optional; in-memory fallback when unset)
	MemcacheAddr string

	// Optional downstream publishing of admitted listings
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamCount, _ := strconv.Atoi(getEnv("REDIS_STREAM_COUNT", "1"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	maxPages, _ := strconv.Atoi(getEnv("MAX_PAGES", "80"))
	targetListings, _ := strconv.Atoi(getEnv("TARGET_LISTINGS", "4000"))
	emptyPageLimit, _ := strconv.Atoi(getEnv("EMPTY_PAGE_LIMIT", "3"))
	maxRetries, _ := strconv.Atoi(getEnv("MAX_RETRIES", "3"))
	retryDelay, _ := strconv.Atoi(getEnv("RETRY_DELAY_SECONDS", "10"))
	pageDelayMin, _ := strconv.Atoi(getEnv("PAGE_DELAY_MIN_SECONDS", "5"))
	pageDelayMax, _ := strconv.Atoi(getEnv("PAGE_DELAY_MAX_SECONDS", "10"))

	portal := getEnv("PORTAL", "olx")

	return Config{
		Portal:               portal,
		OLXURL:               getEnv("OLX_URL", "https://www.olx.com.br/imoveis/aluguel/estado-sp/vale-do-paraiba-e-litoral-norte/sao-jose-dos-campos?sf=1&gsp=2&ros=3&ros=4&ros=5"),
		ZapURL:               getEnv("ZAP_URL", "https://www.zapimoveis.com.br/aluguel/imoveis/sp+sao-jose-dos-campos/3-quartos/?quartos=3%2C4&vagas=2&transacao=aluguel"),
		RunID:                getEnv("RUN_ID", portal),
		CheckpointDir:        getEnv("CHECKPOINT_DIR", "checkpoints"),
		DataDir:              getEnv("DATA_DIR", "data"),
		MaxPages:             maxPages,
		TargetListings:       targetListings,
		EmptyPageLimit:       emptyPageLimit,
		MaxRetries:           maxRetries,
		RetryDelay:           time.Duration(retryDelay) * time.Second,
		PageDelayMin:         time.Duration(pageDelayMin) * time.Second,
		PageDelayMax:         time.Duration(pageDelayMax) * time.Second,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "listings"),
		RedisStreamCount:     streamCount,
		RedisStreamMaxLength: streamMaxLen,
		Environment:          getEnv("IMOVEL_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.Portal != "olx" && c.Portal != "zap" {
		return errors.NewConfiguration(fmt.Sprintf("unknown portal %q (want olx or zap)", c.Portal), nil)
	}
	if c.RunID == "" {
		return errors.NewConfiguration("run id must not be empty", nil)
	}
	if c.MaxPages < 1 {
		return errors.NewConfiguration(fmt.Sprintf("max pages must be at least 1, got %d", c.MaxPages), nil)
	}
	if c.EmptyPageLimit < 1 {
		return errors.NewConfiguration(fmt.Sprintf("empty page limit must be at least 1, got %d", c.EmptyPageLimit), nil)
	}
	if c.MaxRetries < 0 {
		return errors.NewConfiguration(fmt.Sprintf("max retries must not be negative, got %d", c.MaxRetries), nil)
	}
	if c.PageDelayMax < c.PageDelayMin {
		return errors.NewConfiguration(fmt.Sprintf("page delay max %v is below min %v", c.PageDelayMax, c.PageDelayMin), nil)
	}
	return nil
}

// PortalURL returns the configured entry URL for the selected portal
func (c *Config) PortalURL() string {
	if c.Portal == "zap" {
		return c.ZapURL
	}
	return c.OLXURL
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
