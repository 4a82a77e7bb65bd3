// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable. Token TTLs are in seconds, matching the values
// written into the exp claim.
type Config struct {
	Env           string // application environment (dev/test/prod)
	Port          string // HTTP port to listen on
	DBUser        string // database username
	DBPass        string // database password (optional)
	DBHost        string // database host address
	DBPort        string // database port number
	DBName        string // database name
	JWTSecret     string // secret used to sign session tokens
	AccessTTLSec  int    // access token time-to-live in seconds
	RefreshTTLSec int    // refresh token time-to-live in seconds
	BcryptCost    int    // bcrypt cost for password hashing
}

// Load reads configuration from the environment. Required variables are
// enforced by must(); missing values exit with a fatal log message.
func Load() Config {
	return Config{
		Env:           must("APP_ENV"),
		Port:          must("APP_PORT"),
		DBUser:        must("DB_USER"),
		DBPass:        os.Getenv("DB_PASS"),
		DBHost:        must("DB_HOST"),
		DBPort:        must("DB_PORT"),
		DBName:        must("DB_NAME"),
		JWTSecret:     must("JWT_SECRET"),
		AccessTTLSec:  mustInt("ACCESS_TOKEN_TTL_SEC"),
		RefreshTTLSec: mustInt("REFRESH_TOKEN_TTL_SEC"),
		BcryptCost:    mustInt("BCRYPT_COST"),
	}
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value to an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
