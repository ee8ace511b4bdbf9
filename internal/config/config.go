package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr       string
	APIBase          string
	APITimeout       time.Duration
	DBPath           string
	ArtworkPath      string
	MaxUploadBytes   int64
	RedisAddr        string
	QuoteTTL         time.Duration
	SessionIdleTTL   time.Duration
	StorageRetention time.Duration
	CookieSecure     bool
	LogLevel         string
	LogFormat        string
	LogFile          string
	TestMode         bool
}

// Load reads configuration from the environment. A .env file in the working
// directory, if present, is loaded first; variables already set win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		APIBase:          getEnv("API_BASE", "http://localhost:8000/api"),
		APITimeout:       getDuration("API_TIMEOUT", 15*time.Second),
		DBPath:           getEnv("DB_PATH", "/data/bannerfront.db"),
		ArtworkPath:      getEnv("ARTWORK_PATH", "/data/artwork"),
		MaxUploadBytes:   int64(getInt("MAX_UPLOAD_MB", 10)) * 1024 * 1024,
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		QuoteTTL:         getDuration("QUOTE_TTL", 30*time.Second),
		SessionIdleTTL:   getDuration("SESSION_IDLE_TTL", 2*time.Hour),
		StorageRetention: getDuration("STORAGE_RETENTION", 90*24*time.Hour),
		CookieSecure:     getEnv("COOKIE_SECURE", "false") == "true",
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		LogFile:          getEnv("LOG_FILE", ""),
		TestMode:         os.Getenv("BANNERFRONT_TEST_MODE") == "1",
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
