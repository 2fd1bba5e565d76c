// Package validate holds the input checks applied before anything reaches
// the management API. Every function is pure: no I/O, no state.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxDeviceIDLength  = 50
	MaxReasonLength    = 200
	MaxRollbackSeconds = 86400
	MinAPIKeyLength    = 10
	MinLimit           = 1
	MaxLimit           = 1000
)

// ValidationError reports caller input that violates a syntactic or range
// constraint. It never originates from the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// deviceIDPattern matches identifiers that are safe to embed unescaped in a URL path.
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,50}$`)

// DeviceID checks that id is non-empty, at most 50 characters, and drawn
// only from letters, digits, dots, underscores and hyphens.
func DeviceID(id string) error {
	if id == "" {
		return invalid("device_id", "must be a non-empty string")
	}
	if !deviceIDPattern.MatchString(id) {
		return invalid("device_id", "must contain only alphanumeric characters, dots, hyphens, and underscores (max %d chars)", MaxDeviceIDLength)
	}
	return nil
}

// PolicyID applies the device identifier rules to security policy ids,
// which are embedded in URL paths the same way.
func PolicyID(id string) error {
	if err := DeviceID(id); err != nil {
		return invalid("policy_id", "must contain only alphanumeric characters, dots, hyphens, and underscores (max %d chars)", MaxDeviceIDLength)
	}
	return nil
}

// HTTPMethod returns the canonical uppercase form of method.
func HTTPMethod(method string) (string, error) {
	if method == "" {
		return "", invalid("method", "HTTP method must be a non-empty string")
	}
	upper := strings.ToUpper(method)
	switch upper {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS":
		return upper, nil
	default:
		return "", invalid("method", "invalid HTTP method: %q", method)
	}
}

// BaseURL parses raw and rejects anything that is not https with a host.
func BaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, invalid("base_url", "must be a non-empty string")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, invalid("base_url", "invalid base URL format")
	}
	if u.Scheme != "https" {
		return nil, invalid("base_url", "HTTPS required for API connections")
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, invalid("base_url", "invalid base URL format: missing host")
	}
	return u, nil
}

// APIKey enforces the minimum credential length.
func APIKey(key string) error {
	if key == "" {
		return invalid("api_key", "API key must be a non-empty string")
	}
	if len(key) < MinAPIKeyLength {
		return invalid("api_key", "API key too short (minimum %d characters)", MinAPIKeyLength)
	}
	return nil
}

// RollbackTimer bounds automated rollback scheduling to 24 hours.
func RollbackTimer(seconds int) error {
	if seconds < 0 || seconds > MaxRollbackSeconds {
		return invalid("rollback_timer", "rollback_timer must be between 0 and %d seconds", MaxRollbackSeconds)
	}
	return nil
}

// ReasonText accepts an optional free-form reason of at most 200 characters.
func ReasonText(text string) error {
	if utf8.RuneCountInString(text) > MaxReasonLength {
		return invalid("reason", "reason too long (max %d characters)", MaxReasonLength)
	}
	return nil
}

// Limit bounds page sizes for list queries.
func Limit(n int) error {
	if n < MinLimit || n > MaxLimit {
		return invalid("limit", "limit must be between %d and %d", MinLimit, MaxLimit)
	}
	return nil
}

// SeverityFilter normalizes a severity query value to lowercase.
func SeverityFilter(s string) (string, error) {
	lower := strings.ToLower(s)
	switch lower {
	case "low", "medium", "high", "critical":
		return lower, nil
	default:
		return "", invalid("severity", "invalid severity: %q", s)
	}
}

// IPAddress accepts any parseable unicast IPv4 or IPv6 address.
func IPAddress(ip string) error {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return invalid("source_ip", "invalid IP address: %q", ip)
	}
	if parsed.IsUnspecified() || parsed.IsMulticast() || parsed.Equal(net.IPv4bcast) {
		return invalid("source_ip", "cannot target address %q", ip)
	}
	return nil
}

// MACAddress accepts EUI-48 and EUI-64 hardware addresses.
func MACAddress(mac string) error {
	if _, err := net.ParseMAC(mac); err != nil {
		return invalid("source_mac", "invalid hardware address: %q", mac)
	}
	return nil
}
