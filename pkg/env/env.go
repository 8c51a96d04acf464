package env

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/troikatech/cab-voice-agent/pkg/audio"
)

type Config struct {
	AppEnv       string
	AppPort      string
	TZ           string
	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	AccessTTLMin int

	RedisURL        string
	LiveStateTTLSec int

	MongoURI string
	DBName   string

	// Realtime speech model
	OpenAIApiKey       string
	RealtimeURL        string
	RealtimeModel      string
	RealtimeVoice      string
	TranscriptionModel string
	VADThreshold       float64
	VADSilenceMs       int

	// Structured field extraction
	OpenAIModel        string
	OpenAIMaxTokens    int
	AnthropicApiKey    string
	AnthropicModel     string
	AnthropicMaxTokens int
	ExtractorTimeoutMs int

	// Collaborators
	AddressResolverURL  string
	FareServiceURL      string
	CollaboratorTimeout time.Duration
	ResolverCacheSize   int
	ResolverCacheTTL    time.Duration

	// Session tuning
	NoReplyTimeout       time.Duration
	FollowUpSilence      time.Duration
	GoodbyeFailsafe      time.Duration
	SilenceFailsafe      time.Duration
	AudioGrace           time.Duration
	TranscriptGrace      time.Duration
	PhantomWindow        time.Duration
	RecentActivityWindow time.Duration
	ProfileLookupTimeout time.Duration
	MaxReprompts         int
	MaxClarifications    int
	HighFareThreshold    float64
	CompanyName          string

	// Telephony voicebot
	VoicebotBaseURL string
	TelephonyHost   string
	TelephonyRateHz int

	APIRateLimitRPM    int
	LogLevel           string
	LogFile            string
	CORSAllowedOrigins string

	OTELEndpoint string
	OTELEnabled  bool
}

func Load(envFile string) (*Config, error) {
	if envFile != "" {
		// A missing .env is fine; production injects plain environment variables.
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		AppPort:      getEnv("APP_PORT", "8080"),
		TZ:           getEnv("TZ", "Europe/London"),
		JWTSecret:    mustGetEnv("JWT_SECRET"),
		JWTIssuer:    getEnv("JWT_ISSUER", "troika-cab-agent"),
		JWTAudience:  getEnv("JWT_AUDIENCE", "troika-web-caller"),
		AccessTTLMin: getEnvInt("ACCESS_TTL_MIN", 60),

		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		LiveStateTTLSec: getEnvInt("LIVE_STATE_TTL_SEC", 3600),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "cab_agent"),

		OpenAIApiKey:       getEnv("OPENAI_API_KEY", ""),
		RealtimeURL:        getEnv("REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		RealtimeModel:      getEnv("REALTIME_MODEL", "gpt-4o-realtime-preview"),
		RealtimeVoice:      getEnv("REALTIME_VOICE", "alloy"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		VADThreshold:       getEnvFloat("VAD_THRESHOLD", 0.55),
		VADSilenceMs:       getEnvInt("VAD_SILENCE_MS", 650),

		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTokens:    getEnvInt("OPENAI_MAX_TOKENS", 400),
		AnthropicApiKey:    getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:     getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),
		AnthropicMaxTokens: getEnvInt("ANTHROPIC_MAX_TOKENS", 400),
		ExtractorTimeoutMs: getEnvInt("EXTRACTOR_TIMEOUT_MS", 3500),

		AddressResolverURL:  getEnv("ADDRESS_RESOLVER_URL", "http://localhost:8091"),
		FareServiceURL:      getEnv("FARE_SERVICE_URL", "http://localhost:8092"),
		CollaboratorTimeout: getEnvMillis("COLLABORATOR_TIMEOUT_MS", 3000),
		ResolverCacheSize:   getEnvInt("RESOLVER_CACHE_SIZE", 2048),
		ResolverCacheTTL:    time.Duration(getEnvInt("RESOLVER_CACHE_TTL_MIN", 30)) * time.Minute,

		NoReplyTimeout:       getEnvMillis("NO_REPLY_TIMEOUT_MS", 8000),
		FollowUpSilence:      getEnvMillis("FOLLOW_UP_SILENCE_MS", 10000),
		GoodbyeFailsafe:      getEnvMillis("GOODBYE_FAILSAFE_MS", 6000),
		SilenceFailsafe:      getEnvMillis("SILENCE_FAILSAFE_MS", 15000),
		AudioGrace:           getEnvMillis("AUDIO_GRACE_MS", 3000),
		TranscriptGrace:      getEnvMillis("TRANSCRIPT_GRACE_MS", 4000),
		PhantomWindow:        getEnvMillis("PHANTOM_WINDOW_MS", 1500),
		RecentActivityWindow: getEnvMillis("RECENT_ACTIVITY_MS", 2000),
		ProfileLookupTimeout: getEnvMillis("PROFILE_LOOKUP_TIMEOUT_MS", 1500),
		MaxReprompts:         getEnvInt("MAX_REPROMPTS", 2),
		MaxClarifications:    getEnvInt("MAX_CLARIFICATIONS", 2),
		HighFareThreshold:    getEnvFloat("HIGH_FARE_THRESHOLD", 80),
		CompanyName:          getEnv("COMPANY_NAME", "Troika Cabs"),

		VoicebotBaseURL: getEnv("VOICEBOT_BASE_URL", ""),
		TelephonyHost:   getEnv("TELEPHONY_ORIGIN_HOST", "my.exotel.com"),
		TelephonyRateHz: getEnvInt("TELEPHONY_SAMPLE_RATE", 8000),

		APIRateLimitRPM:    getEnvInt("API_RATE_LIMIT_RPM", 180),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", ""),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),
		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
	}

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", cfg.TZ, err)
	}
	time.Local = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would leave a call without a terminal path.
func (c *Config) Validate() error {
	var errs []error
	windows := map[string]time.Duration{
		"NO_REPLY_TIMEOUT_MS":  c.NoReplyTimeout,
		"FOLLOW_UP_SILENCE_MS": c.FollowUpSilence,
		"GOODBYE_FAILSAFE_MS":  c.GoodbyeFailsafe,
		"SILENCE_FAILSAFE_MS":  c.SilenceFailsafe,
		"AUDIO_GRACE_MS":       c.AudioGrace,
		"TRANSCRIPT_GRACE_MS":  c.TranscriptGrace,
	}
	for key, d := range windows {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.SilenceFailsafe <= c.FollowUpSilence {
		errs = append(errs, errors.New("SILENCE_FAILSAFE_MS must be longer than FOLLOW_UP_SILENCE_MS"))
	}
	if c.MaxReprompts < 0 || c.MaxClarifications < 0 {
		errs = append(errs, errors.New("MAX_REPROMPTS and MAX_CLARIFICATIONS cannot be negative"))
	}
	if !audio.SupportedRate(c.TelephonyRateHz) {
		errs = append(errs, fmt.Errorf("TELEPHONY_SAMPLE_RATE %d is not supported", c.TelephonyRateHz))
	}
	if c.AppEnv == "production" && c.OpenAIApiKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required in production"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustGetEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvMillis(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}

func getEnvFloat(key string, defaultValue float64) float64 {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	strValue := os.Getenv(key)
	if strValue == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strValue)
	if err != nil {
		return defaultValue
	}
	return value
}
