package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadOnce sync.Once

func load() {
	loadOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})
}

func Config(key string) string {
	load()
	return os.Getenv(key)
}

// ConfigDefault returns def when key is unset or blank.
func ConfigDefault(key, def string) string {
	if v := strings.TrimSpace(Config(key)); v != "" {
		return v
	}
	return def
}

func ConfigInt(key string, def int) int {
	v := strings.TrimSpace(Config(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️ Invalid integer for %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func ConfigBool(key string, def bool) bool {
	v := strings.TrimSpace(Config(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("⚠️ Invalid boolean for %s=%q, using default %t", key, v, def)
		return def
	}
	return b
}

// ConfigDuration accepts Go duration strings ("90s", "30m").
func ConfigDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(Config(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️ Invalid duration for %s=%q, using default %s", key, v, def)
		return def
	}
	return d
}

func IsProduction() bool {
	return strings.EqualFold(Config("APP_ENV"), "production")
}
