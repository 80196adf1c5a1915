package core

import (
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("REFINERY_TEST_STR", "value")

	if got := GetEnvOrDefault("REFINERY_TEST_STR", "fallback"); got != "value" {
		t.Errorf("set variable: got %q", got)
	}
	if got := GetEnvOrDefault("REFINERY_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("unset variable: got %q", got)
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"valid", "42", 42},
		{"negative", "-7", -7},
		{"invalid", "not-a-number", 10},
		{"empty", "", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REFINERY_TEST_INT", tt.value)
			if got := ParseIntEnv("REFINERY_TEST_INT", 10); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseFloat64Env(t *testing.T) {
	t.Setenv("REFINERY_TEST_FLOAT", "7.5")
	if got := ParseFloat64Env("REFINERY_TEST_FLOAT", 1.0); got != 7.5 {
		t.Errorf("got %v", got)
	}

	t.Setenv("REFINERY_TEST_FLOAT", "nope")
	if got := ParseFloat64Env("REFINERY_TEST_FLOAT", 1.0); got != 1.0 {
		t.Errorf("invalid value must fall back, got %v", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"off", false},
		{"garbage", true}, // falls back to default
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("REFINERY_TEST_BOOL", tt.value)
			if got := ParseBoolEnv("REFINERY_TEST_BOOL", true); got != tt.want {
				t.Errorf("ParseBoolEnv(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("REFINERY_TEST_DUR", "30")
	if got := ParseDurationEnv("REFINERY_TEST_DUR", 5); got != 30*time.Second {
		t.Errorf("got %v", got)
	}

	t.Setenv("REFINERY_TEST_DUR", "")
	if got := ParseDurationEnv("REFINERY_TEST_DUR", 5); got != 5*time.Second {
		t.Errorf("default: got %v", got)
	}
}
