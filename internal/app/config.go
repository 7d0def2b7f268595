package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	LogLevel      string
	LogFile       string // JSON log file with rotation, disabled when empty
	SentryDSN     string
	Environment   string

	// Record storage: MongoDB wins over PostgreSQL, memory when neither is set.
	// DATABASE_URL also enables the consultation event log.
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string

	// Chat assistant
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	OpenAIMaxTokens    int
	OpenAITemperature  *float64 // nil uses the provider default
	OpenAISystemPrompt string

	// Server-side speech recognition (optional)
	DeepgramAPIKey   string
	STTLanguage      string
	STTEndpointingMs int

	// Speech segmentation
	SegmentSilence    time.Duration
	SegmentInactivity time.Duration

	// Consultation session tickets
	SessionSecret    string
	SessionTicketTTL time.Duration

	// Emergency notifications
	DiscordWebhookURL  string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioSMSFrom      string
	OncallPhones       []string
	APNsKeyPath        string
	APNsKeyID          string
	APNsTeamID         string
	APNsBundleID       string
	APNsProduction     bool
	OncallDeviceTokens []string

	ShutdownDrainTimeout time.Duration
}

// LoadDotEnv reads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFile:       getenv("LOG_FILE", ""),
		SentryDSN:     getenv("SENTRY_DSN", ""),
		Environment:   getenv("ENVIRONMENT", "development"),

		MongoURI:      getenv("MONGODB_URI", ""),
		MongoDatabase: getenv("MONGODB_DATABASE", "telemedicina"),
		DatabaseURL:   getenv("DATABASE_URL", ""),

		OpenAIAPIKey:       getenv("OPENAI_API_KEY", ""),
		OpenAIModel:        getenv("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL:      getenv("OPENAI_BASE_URL", ""),
		OpenAIMaxTokens:    getenvIntClamped("OPENAI_MAX_TOKENS", 200, 16, 4096),
		OpenAITemperature:  getenvOptionalFloat("OPENAI_TEMPERATURE", 0, 2),
		OpenAISystemPrompt: os.Getenv("OPENAI_SYSTEM_PROMPT"),

		DeepgramAPIKey:   getenv("DEEPGRAM_API_KEY", ""),
		STTLanguage:      getenv("STT_LANGUAGE", "pt-BR"),
		STTEndpointingMs: getenvIntClamped("STT_ENDPOINTING_MS", 0, 0, 5000),

		SegmentSilence:    time.Duration(getenvIntClamped("SEGMENT_SILENCE_MS", 2000, 200, 10000)) * time.Millisecond,
		SegmentInactivity: time.Duration(getenvIntClamped("SEGMENT_INACTIVITY_MS", 10000, 1000, 120000)) * time.Millisecond,

		SessionSecret:    os.Getenv("SESSION_SECRET"), // random per process when empty
		SessionTicketTTL: getenvDuration("SESSION_TICKET_TTL", 2*time.Minute),

		DiscordWebhookURL:  getenv("DISCORD_WEBHOOK_URL", ""),
		TwilioAccountSID:   getenv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getenv("TWILIO_AUTH_TOKEN", ""),
		TwilioSMSFrom:      getenv("TWILIO_SMS_FROM", ""),
		OncallPhones:       parseList(os.Getenv("ONCALL_PHONES")),
		APNsKeyPath:        getenv("APNS_KEY_PATH", ""),
		APNsKeyID:          getenv("APNS_KEY_ID", ""),
		APNsTeamID:         getenv("APNS_TEAM_ID", ""),
		APNsBundleID:       getenv("APNS_BUNDLE_ID", ""),
		APNsProduction:     getenv("APNS_PRODUCTION", "") == "true",
		OncallDeviceTokens: parseList(os.Getenv("ONCALL_DEVICE_TOKENS")),

		ShutdownDrainTimeout: getenvDuration("SHUTDOWN_DRAIN_TIMEOUT", 30*time.Second),
	}
}

// parseList splits a comma separated value, dropping blanks.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// getenvIntClamped falls back to def when unset or unparsable.
func getenvIntClamped(k string, def, min, max int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return clamp(v, min, max)
}

// getenvOptionalFloat returns nil when unset or unparsable.
func getenvOptionalFloat(k string, min, max float64) *float64 {
	v, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return nil
	}
	v = clamp(v, min, max)
	return &v
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func clamp[T int | float64](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
