package types

import (
	"strconv"
	"strings"
	"time"
)

// ParseLatLon parses a latitude/longitude pair as stored by the appraisal district.
func ParseLatLon(latStr, lonStr string) (float64, float64, bool) {
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	return lat, lon, err1 == nil && err2 == nil
}

// ParseDollar parses a currency-like string, tolerating thousands separators and a leading $.
func ParseDollar(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(strings.TrimSpace(s), "$")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

// ParseInt parses an integer column, returning 0 for blank or malformed values.
func ParseInt(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

// dateLayouts are the formats seen in deed and sale date columns.
var dateLayouts = []string{
	"01-02-2006",
	"01/02/2006",
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"20060102",
}

// ParseDate parses a sale or deed date in any of the known layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Normalize produces a canonical form of an address key.
func Normalize(addr string) string {
	addr = strings.ToUpper(strings.TrimSpace(addr))
	addr = strings.ReplaceAll(addr, ",", "")
	return strings.Join(strings.Fields(addr), " ")
}
