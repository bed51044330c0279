package env

import "os"

// Get returns the value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// Lookup reports whether key is set to a non-empty value.
func Lookup(key string) (string, bool) {
	val := os.Getenv(key)
	return val, val != ""
}
