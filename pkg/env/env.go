package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Prefix namespaces every variable the services read.
const Prefix = "DUKA_"

// Lookup returns the first non-empty value of DUKA_<key> or <key>. Keys that
// already carry the prefix are looked up as given.
func Lookup(key string) (string, bool) {
	keys := []string{key}
	if !strings.HasPrefix(key, Prefix) {
		keys = []string{Prefix + key, key}
	}
	for _, k := range keys {
		if val := strings.TrimSpace(os.Getenv(k)); val != "" {
			return val, true
		}
	}
	return "", false
}

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val, ok := Lookup(key); ok {
		return val
	}
	return fallback
}

// Bool accepts the strconv.ParseBool spellings; anything else yields fallback.
func Bool(key string, fallback bool) bool {
	val, ok := Lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// Duration parses Go duration syntax such as "30s" or "5m".
func Duration(key string, fallback time.Duration) time.Duration {
	val, ok := Lookup(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
