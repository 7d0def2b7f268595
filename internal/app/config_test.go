package app

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestGetenv(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "custom_value")

	if got := getenv("TEST_ENV_VAR", "default"); got != "custom_value" {
		t.Errorf("getenv set = %q, want %q", got, "custom_value")
	}
	if got := getenv("TEST_ENV_VAR_NOTSET", "default"); got != "default" {
		t.Errorf("getenv unset = %q, want %q", got, "default")
	}
}

func TestGetenvIntClamped(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"within range", "500", 500},
		{"below min", "-100", 200},
		{"above max", "2000", 800},
		{"unset", "", 400},
		{"invalid", "not_a_number", 400},
		{"exactly min", "200", 200},
		{"exactly max", "800", 800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)
			if got := getenvIntClamped("TEST_INT", 400, 200, 800); got != tt.want {
				t.Errorf("getenvIntClamped(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetenvOptionalFloat(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  *float64
	}{
		{"within range", "0.5", ptr(0.5)},
		{"zero kept", "0", ptr(0)},
		{"below min", "-0.5", ptr(0)},
		{"above max", "2.5", ptr(2)},
		{"unset", "", nil},
		{"invalid", "warm", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FLOAT", tt.value)
			got := getenvOptionalFloat("TEST_FLOAT", 0, 2)
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("getenvOptionalFloat(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func ptr(f float64) *float64 { return &f }

func TestGetenvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"45s", 45 * time.Second},
		{"", time.Minute},
		{"soon", time.Minute},
		{"-5s", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := getenvDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("getenvDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"+5511999990000", []string{"+5511999990000"}},
		{"+5511999990000,+5521988880000", []string{"+5511999990000", "+5521988880000"}},
		{"  a  ,  b  ", []string{"a", "b"}},
		{"a,", []string{"a"}},
		{"", nil},
		{" , ", nil},
	}

	for _, tt := range tests {
		if got := parseList(tt.input); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseList(%q) = %#v, want %#v", tt.input, got, tt.want)
		}
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "PUBLIC_BASE_URL", "LOG_LEVEL", "MONGODB_DATABASE",
		"OPENAI_MODEL", "OPENAI_MAX_TOKENS", "OPENAI_TEMPERATURE", "STT_LANGUAGE",
		"SEGMENT_SILENCE_MS", "SEGMENT_INACTIVITY_MS",
		"SESSION_TICKET_TTL", "SHUTDOWN_DRAIN_TIMEOUT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg := LoadConfigFromEnv()

	checks := []struct {
		name      string
		got, want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"PublicBaseURL", cfg.PublicBaseURL, "http://localhost:8080"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"MongoDatabase", cfg.MongoDatabase, "telemedicina"},
		{"OpenAIModel", cfg.OpenAIModel, "gpt-3.5-turbo"},
		{"OpenAIMaxTokens", cfg.OpenAIMaxTokens, 200},
		{"STTLanguage", cfg.STTLanguage, "pt-BR"},
		{"SegmentSilence", cfg.SegmentSilence, 2 * time.Second},
		{"SegmentInactivity", cfg.SegmentInactivity, 10 * time.Second},
		{"SessionTicketTTL", cfg.SessionTicketTTL, 2 * time.Minute},
		{"ShutdownDrainTimeout", cfg.ShutdownDrainTimeout, 30 * time.Second},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.OpenAITemperature != nil {
		t.Errorf("OpenAITemperature = %v, want nil", *cfg.OpenAITemperature)
	}
}

func TestLoadConfigFromEnvCustomValues(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("SEGMENT_SILENCE_MS", "1500")
	t.Setenv("SEGMENT_INACTIVITY_MS", "50")
	t.Setenv("SESSION_TICKET_TTL", "90s")
	t.Setenv("ONCALL_PHONES", "+5511999990000, +5521988880000")
	t.Setenv("APNS_PRODUCTION", "true")

	cfg := LoadConfigFromEnv()

	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("MongoURI = %q", cfg.MongoURI)
	}
	if cfg.SegmentSilence != 1500*time.Millisecond {
		t.Errorf("SegmentSilence = %v", cfg.SegmentSilence)
	}
	if cfg.SegmentInactivity != time.Second {
		t.Errorf("SegmentInactivity = %v, want clamped to 1s", cfg.SegmentInactivity)
	}
	if cfg.SessionTicketTTL != 90*time.Second {
		t.Errorf("SessionTicketTTL = %v", cfg.SessionTicketTTL)
	}
	if len(cfg.OncallPhones) != 2 {
		t.Errorf("OncallPhones = %v", cfg.OncallPhones)
	}
	if !cfg.APNsProduction {
		t.Error("APNsProduction should be true")
	}
}
