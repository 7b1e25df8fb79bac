package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultOrigin    = "https://www.auto24.ee"
	defaultSearchURL = "https://www.auto24.ee/soidukid/kasutatud/"
	defaultUserAgent = "Mozilla/5.0 (compatible; CarSniperBot/0.1)"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	BotToken string
	DryRun   bool

	ScanInterval   time.Duration
	FirstScanDelay time.Duration

	SiteOrigin string
	SourceURLs []string
	MaxBatch   int

	FetchMode      string // "http" or "browser"
	FetchTimeout   time.Duration
	FetchRetries   int
	UserAgent      string
	MaxConcurrency int
	RateLimitMs    int
	ChromeBin      string

	SendTimeout time.Duration
	SendRate    float64

	Storage          string // "postgres" or "memory"
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	CSVOutputPath string
	StatusAddr    string

	LogLevel   string
	LogFormat  string
	LogColor   bool
	FluentHost string
	FluentPort int
	FluentTag  string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		token = os.Getenv("TELEGRAM_TOKEN")
	}

	return &Config{
		BotToken: token,
		DryRun:   getEnvBool("DRY_RUN", false),

		ScanInterval:   getEnvPositiveSeconds("SCAN_INTERVAL", 60),
		FirstScanDelay: getEnvSeconds("FIRST_SCAN_DELAY", 5),

		SiteOrigin: getEnv("SITE_ORIGIN", defaultOrigin),
		SourceURLs: getEnvList("SOURCE_URLS", []string{defaultSearchURL}),
		MaxBatch:   getEnvInt("MAX_BATCH", 60),

		FetchMode:      strings.ToLower(getEnv("FETCH_MODE", "http")),
		FetchTimeout:   getEnvPositiveSeconds("FETCH_TIMEOUT", 30),
		FetchRetries:   getEnvInt("FETCH_RETRIES", 1),
		UserAgent:      getEnv("USER_AGENT", defaultUserAgent),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1000),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		SendTimeout: getEnvPositiveSeconds("SEND_TIMEOUT", 10),
		SendRate:    getEnvFloat("SEND_RATE", 20),

		Storage:          strings.ToLower(getEnv("STORAGE", "postgres")),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "sniper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "sniper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "car_sniper"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		CSVOutputPath: getEnv("CSV_OUTPUT_PATH", ""),
		StatusAddr:    getEnv("STATUS_ADDR", ":8080"),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogColor:   getEnvBool("LOG_COLOR", true),
		FluentHost: getEnv("FLUENT_HOST", ""),
		FluentPort: getEnvInt("FLUENT_PORT", 24224),
		FluentTag:  getEnv("FLUENT_TAG", "car-sniper"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

// getEnvPositiveSeconds is getEnvSeconds with zero and negative values
// replaced by the fallback.
func getEnvPositiveSeconds(key string, fallback int) time.Duration {
	if n := getEnvInt(key, fallback); n > 0 {
		return time.Duration(n) * time.Second
	}
	return time.Duration(fallback) * time.Second
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
