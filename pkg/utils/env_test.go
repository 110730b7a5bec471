package utils

import (
	"os"
	"testing"
	"time"
)

func TestEnvOrDefault(t *testing.T) {
	const key = "UTIL_TEST_STRING"
	_ = os.Unsetenv(key)
	if got := EnvOrDefault(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	_ = os.Setenv(key, "value")
	if got := EnvOrDefault(key, "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestEnvOrDefaultInt(t *testing.T) {
	const key = "UTIL_TEST_INT"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultInt(key, 10); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	_ = os.Setenv(key, "5")
	if got := EnvOrDefaultInt(key, 10); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	_ = os.Setenv(key, "bad")
	if got := EnvOrDefaultInt(key, 7); got != 7 {
		t.Fatalf("expected fallback on parse error, got %d", got)
	}
}

func TestEnvOrDefaultUint64(t *testing.T) {
	const key = "UTIL_TEST_UINT64"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultUint64(key, 99); got != 99 {
		t.Fatalf("expected 99, got %d", got)
	}
	_ = os.Setenv(key, "42")
	if got := EnvOrDefaultUint64(key, 99); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	_ = os.Setenv(key, "bad")
	if got := EnvOrDefaultUint64(key, 77); got != 77 {
		t.Fatalf("expected fallback on parse error, got %d", got)
	}
}

func TestEnvOrDefaultFloat64(t *testing.T) {
	const key = "UTIL_TEST_FLOAT64"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultFloat64(key, 0.95); got != 0.95 {
		t.Fatalf("expected 0.95, got %v", got)
	}
	_ = os.Setenv(key, "0.5")
	if got := EnvOrDefaultFloat64(key, 0.95); got != 0.5 {
		t.Fatalf("expected 0.5, got %v", got)
	}
	_ = os.Setenv(key, "bad")
	if got := EnvOrDefaultFloat64(key, 0.95); got != 0.95 {
		t.Fatalf("expected fallback on parse error, got %v", got)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	const key = "UTIL_TEST_BOOL"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultBool(key, true); got != true {
		t.Fatalf("expected true, got %v", got)
	}
	_ = os.Setenv(key, "false")
	if got := EnvOrDefaultBool(key, true); got != false {
		t.Fatalf("expected false, got %v", got)
	}
	_ = os.Setenv(key, "bad")
	if got := EnvOrDefaultBool(key, true); got != true {
		t.Fatalf("expected fallback on parse error, got %v", got)
	}
}

func TestEnvOrDefaultDuration(t *testing.T) {
	const key = "UTIL_TEST_DURATION"
	_ = os.Unsetenv(key)
	if got := EnvOrDefaultDuration(key, 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected 30s, got %v", got)
	}
	_ = os.Setenv(key, "2m")
	if got := EnvOrDefaultDuration(key, 30*time.Second); got != 2*time.Minute {
		t.Fatalf("expected 2m, got %v", got)
	}
	_ = os.Setenv(key, "bad")
	if got := EnvOrDefaultDuration(key, 30*time.Second); got != 30*time.Second {
		t.Fatalf("expected fallback on parse error, got %v", got)
	}
}
