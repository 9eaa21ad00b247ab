package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerPort string
	JWTSecret  string
	Postgres   PostgresConfig
	Mongo      MongoConfig
	Logging    LoggingConfig
	StoryAPI   StoryAPIConfig
	Speech     SpeechConfig
	Knowledge  KnowledgeConfig
}

type PostgresConfig struct {
	DSN               string
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

// StoryAPIConfig points at an OpenAI-compatible chat completions endpoint.
type StoryAPIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type SpeechConfig struct {
	BaseURL   string
	APIKey    string
	VoiceType string
	Format    string
	Timeout   time.Duration
}

type KnowledgeConfig struct {
	AssetDir string
}

func LoadConfig() (*Config, error) {
	port := envOrDefault("PORT", "8080")
	jwtSecret := envOrDefault("JWT_SECRET", "dev-secret")

	pgPort, _ := strconv.Atoi(envOrDefault("POSTGRES_PORT", "5432"))
	maxConns := parseInt32(envOrDefault("POSTGRES_MAX_CONNS", "8"), 8)
	minConns := parseInt32(envOrDefault("POSTGRES_MIN_CONNS", "1"), 1)

	logging := LoggingConfig{
		Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
		Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
		EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
		ServiceName:  envOrDefault("SERVICE_NAME", "storyteller-server"),
	}

	temperature, err := strconv.ParseFloat(envOrDefault("STORY_API_TEMPERATURE", "0.8"), 64)
	if err != nil {
		return nil, fmt.Errorf("config: parse STORY_API_TEMPERATURE: %w", err)
	}

	maxTokens, err := strconv.Atoi(envOrDefault("STORY_API_MAX_TOKENS", "800"))
	if err != nil {
		return nil, fmt.Errorf("config: parse STORY_API_MAX_TOKENS: %w", err)
	}

	cfg := &Config{
		ServerPort: port,
		JWTSecret:  jwtSecret,
		Postgres: PostgresConfig{
			DSN:               os.Getenv("POSTGRES_DSN"),
			Host:              envOrDefault("POSTGRES_HOST", "localhost"),
			Port:              pgPort,
			User:              envOrDefault("POSTGRES_USER", "postgres"),
			Password:          envOrDefault("POSTGRES_PASSWORD", "postgres"),
			Database:          envOrDefault("POSTGRES_DB", "storyteller"),
			MaxConns:          maxConns,
			MinConns:          minConns,
			MaxConnLifetime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_LIFETIME", "1h"), time.Hour),
			MaxConnIdleTime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_IDLE", "30m"), 30*time.Minute),
			HealthCheckPeriod: parseDuration(envOrDefault("POSTGRES_HEALTH_CHECK_PERIOD", "1m"), time.Minute),
			ConnectTimeout:    parseDuration(envOrDefault("POSTGRES_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Mongo: MongoConfig{
			URI:            envOrDefault("MONGO_URI", "mongodb://localhost:27017"),
			Database:       envOrDefault("MONGO_DATABASE", "storyteller"),
			ConnectTimeout: parseDuration(envOrDefault("MONGO_CONNECT_TIMEOUT", "5s"), 5*time.Second),
		},
		Logging: logging,
		StoryAPI: StoryAPIConfig{
			BaseURL:     strings.TrimRight(envOrDefault("STORY_API_BASE_URL", "https://api.openai.com/v1"), "/"),
			APIKey:      os.Getenv("STORY_API_KEY"),
			Model:       envOrDefault("STORY_API_MODEL", "gpt-4o-mini"),
			Temperature: temperature,
			MaxTokens:   maxTokens,
			Timeout:     parseDuration(envOrDefault("STORY_API_TIMEOUT", "60s"), 60*time.Second),
		},
		Speech: SpeechConfig{
			BaseURL:   strings.TrimRight(envOrDefault("TTS_BASE_URL", "https://api.openai.com/v1"), "/"),
			APIKey:    os.Getenv("TTS_API_KEY"),
			VoiceType: envOrDefault("TTS_VOICE_TYPE", "en_us_storyteller_female"),
			Format:    envOrDefault("TTS_FORMAT", "mp3"),
			Timeout:   parseDuration(envOrDefault("TTS_TIMEOUT", "60s"), 60*time.Second),
		},
		Knowledge: KnowledgeConfig{
			AssetDir: envOrDefault("KNOWLEDGE_ASSET_DIR", "assets"),
		},
	}

	return cfg, nil
}

func (c PostgresConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt32(value string, fallback int32) int32 {
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return int32(i)
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}
