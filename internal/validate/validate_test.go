package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestDeviceID_Valid(t *testing.T) {
	for _, id := range []string{"AP-123", "switch_01", "device.test", "SW-001-Floor-2", "a1b2c3d4e5", strings.Repeat("x", 50)} {
		if err := DeviceID(id); err != nil {
			t.Errorf("DeviceID(%q) = %v, want nil", id, err)
		}
	}
}

func TestDeviceID_Invalid(t *testing.T) {
	cases := []string{
		"",
		"device with spaces",
		"device@invalid",
		strings.Repeat("x", 51),
		"device<script>",
		"device>x",
		"device/slash",
		"../etc",
	}
	for _, id := range cases {
		err := DeviceID(id)
		if err == nil {
			t.Errorf("DeviceID(%q) = nil, want error", id)
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("DeviceID(%q) error %T, want *ValidationError", id, err)
		}
		if ve.Field != "device_id" {
			t.Errorf("Field = %q, want device_id", ve.Field)
		}
	}
}

func TestHTTPMethod(t *testing.T) {
	for _, m := range []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"} {
		for _, variant := range []string{m, strings.ToLower(m), strings.ToUpper(m[:1]) + strings.ToLower(m[1:])} {
			got, err := HTTPMethod(variant)
			if err != nil {
				t.Errorf("HTTPMethod(%q) error: %v", variant, err)
			}
			if got != m {
				t.Errorf("HTTPMethod(%q) = %q, want %q", variant, got, m)
			}
		}
	}

	for _, m := range []string{"", "INVALID", "CONNECT", "TRACE", "GETS", " get"} {
		if _, err := HTTPMethod(m); err == nil {
			t.Errorf("HTTPMethod(%q) = nil error, want failure", m)
		}
	}
}

func TestBaseURL(t *testing.T) {
	u, err := BaseURL("https://api.example.com")
	if err != nil {
		t.Fatalf("BaseURL https: %v", err)
	}
	if u.Host != "api.example.com" {
		t.Errorf("Host = %q", u.Host)
	}

	bad := map[string]string{
		"http://api.example.com": "HTTPS required",
		"not-a-url":              "HTTPS required",
		"":                       "non-empty",
		"https://":               "missing host",
		"ftp://api.example.com":  "HTTPS required",
	}
	for raw, want := range bad {
		_, err := BaseURL(raw)
		if err == nil {
			t.Errorf("BaseURL(%q) = nil error", raw)
			continue
		}
		if !strings.Contains(err.Error(), want) {
			t.Errorf("BaseURL(%q) error %q, want it to mention %q", raw, err, want)
		}
	}
}

func TestAPIKey(t *testing.T) {
	if err := APIKey("valid_api_key_123"); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if err := APIKey(""); err == nil || !strings.Contains(err.Error(), "non-empty") {
		t.Errorf("empty key: %v", err)
	}
	if err := APIKey("short"); err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("short key: %v", err)
	}
}

func TestRollbackTimer(t *testing.T) {
	for _, s := range []int{0, 1, 3600, 86400} {
		if err := RollbackTimer(s); err != nil {
			t.Errorf("RollbackTimer(%d) = %v", s, err)
		}
	}
	for _, s := range []int{-1, 86401, 90000} {
		err := RollbackTimer(s)
		if err == nil || !strings.Contains(err.Error(), "between 0 and 86400") {
			t.Errorf("RollbackTimer(%d) = %v", s, err)
		}
	}
}

func TestReasonText(t *testing.T) {
	if err := ReasonText(""); err != nil {
		t.Errorf("empty reason: %v", err)
	}
	if err := ReasonText(strings.Repeat("x", 200)); err != nil {
		t.Errorf("200 chars: %v", err)
	}
	if err := ReasonText(strings.Repeat("x", 201)); err == nil {
		t.Error("201 chars accepted")
	}
	// multibyte characters count once each
	if err := ReasonText(strings.Repeat("é", 200)); err != nil {
		t.Errorf("200 runes: %v", err)
	}
}

func TestLimitAndSeverity(t *testing.T) {
	for _, n := range []int{0, 1001, -5} {
		if err := Limit(n); err == nil {
			t.Errorf("Limit(%d) accepted", n)
		}
	}
	if err := Limit(1000); err != nil {
		t.Errorf("Limit(1000): %v", err)
	}

	got, err := SeverityFilter("HIGH")
	if err != nil || got != "high" {
		t.Errorf("SeverityFilter(HIGH) = %q, %v", got, err)
	}
	if _, err := SeverityFilter("invalid"); err == nil || !strings.Contains(err.Error(), "invalid severity") {
		t.Errorf("SeverityFilter(invalid) = %v", err)
	}
}

func TestIPAndMAC(t *testing.T) {
	if err := IPAddress("192.168.1.100"); err != nil {
		t.Errorf("IPAddress: %v", err)
	}
	for _, ip := range []string{"", "999.1.1.1", "0.0.0.0", "255.255.255.255", "224.0.0.1"} {
		if err := IPAddress(ip); err == nil {
			t.Errorf("IPAddress(%q) accepted", ip)
		}
	}
	if err := MACAddress("00:11:22:33:44:55"); err != nil {
		t.Errorf("MACAddress: %v", err)
	}
	if err := MACAddress("00:11:22"); err == nil {
		t.Error("short MAC accepted")
	}
}
