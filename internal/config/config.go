package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port            string
	AllowedOrigin   string
	StoreBackend    string
	DatabasePath    string
	BoltPath        string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CacheTTLSeconds int
	MirrorURL       string
	MirrorAPIKey    string
	FSNCronSpec     string
	LogMode         string
	LogFileEnable   bool
	LogFilename     string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("PRODUCT_CACHE_TTL_SECONDS", "30"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 30
	}

	cfg := Config{
		Port:            getEnv("PORT", "8080"),
		AllowedOrigin:   getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		StoreBackend:    strings.TrimSpace(os.Getenv("STORE_BACKEND")),
		DatabasePath:    getEnv("DATABASE_PATH", "motormods.db"),
		BoltPath:        getEnv("BOLT_PATH", "motormods.bolt"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         redisDB,
		CacheTTLSeconds: cacheTTL,
		MirrorURL:       strings.TrimSpace(os.Getenv("MIRROR_URL")),
		MirrorAPIKey:    strings.TrimSpace(os.Getenv("MIRROR_API_KEY")),
		FSNCronSpec:     getEnv("FSN_CRON_SPEC", "30 2 * * *"),
		LogMode:         getEnv("LOG_MODE", "development"),
		LogFileEnable:   getEnv("LOG_FILE_ENABLE", "") == "true",
		LogFilename:     getEnv("LOG_FILENAME", "motormods.log"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
