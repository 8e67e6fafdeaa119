// Package config loads server configuration from the environment.
//
// Convenience for local dev: variables are read from .env if present
// (godotenv); in production rely on real environment variables. Flags in
// cmd/server override the environment for the values they cover.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/campusgate/gatepass-engine/gatepass"
)

type Config struct {
	Addr   string
	DBPath string

	// JWTSecret signs the bearer tokens the auth layer issues. Required
	// outside dev.
	JWTSecret string
	TokenTTL  time.Duration

	// PersonalQuota caps Personal-purpose requests per faculty per month.
	PersonalQuota int

	AllowedOrigins []string
}

func Load() Config {
	_ = godotenv.Load()

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}

	return Config{
		Addr:           addr,
		DBPath:         env("DB_PATH", "gatepass.db"),
		JWTSecret:      env("JWT_SECRET", "dev-secret-do-not-use"),
		TokenTTL:       envDuration("TOKEN_TTL", 24*time.Hour),
		PersonalQuota:  envInt("PERSONAL_QUOTA", gatepass.DefaultPersonalQuota),
		AllowedOrigins: envList("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:8080"),
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
