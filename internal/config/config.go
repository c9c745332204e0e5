package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Get returns an environment value or the fallback when unset/blank.
func Get(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// GetInt parses an integer environment value, falling back (with a log
// line) on unset or malformed input.
func GetInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

// GetFloat parses a float environment value, falling back (with a log
// line) on unset or malformed input.
func GetFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s=%q is not a number, using %g", key, raw, fallback)
		return fallback
	}
	return v
}
