package apihttp

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const timeLayout = time.RFC3339

// PathParams returns the non-empty path segments after prefix.
func PathParams(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path {
		return nil
	}
	var parts []string
	for _, part := range strings.Split(rest, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// ParseTimeQuery reads a required RFC3339 query parameter.
func ParseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

// ParseBoolQuery reads an optional boolean query parameter.
func ParseBoolQuery(r *http.Request, key string, fallback bool) (bool, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.New(key + " must be true or false")
	}
	return parsed, nil
}

// ParseIntQuery reads an optional integer query parameter.
func ParseIntQuery(r *http.Request, key string, fallback int) (int, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return parsed, nil
}

// FormatTime renders t as RFC3339 in UTC, or "" for the zero time.
func FormatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

// FormatFloat renders an optional value, or "" when unset.
func FormatFloat(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}
