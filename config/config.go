package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full application configuration
type Config struct {
	Host        string
	Port        int
	Debug       bool
	LogLevel    string
	LogFile     string // optional rotating log file, empty = stdout only
	CORSOrigins []string

	OpenAI   OpenAIConfig
	Crawler  CrawlerConfig
	Chat     ChatConfig
	Library  LibraryConfig
	Discord  DiscordConfig
	Keywords []string // extra relevance keywords merged into the built-in list
}

// OpenAIConfig holds the language-model settings
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// CrawlerConfig holds the Firecrawl retrieval settings
type CrawlerConfig struct {
	APIKey             string
	BaseURL            string
	MaxResults         int
	Timeout            time.Duration
	DeepResearch       bool
	DeepResearchDepth  int
	DeepResearchLimit  int // time limit in seconds passed to the service
	DeepResearchURLs   int
	PollInterval       time.Duration
	PollTimeout        time.Duration
}

// ChatConfig bounds the assembled prompt
type ChatConfig struct {
	MaxHistoryTurns int
	MaxPromptChars  int
}

// LibraryConfig holds the local briefing-library settings
type LibraryConfig struct {
	Enabled    bool
	DataPath   string
	Collection string
	ChunkSize  int
	Watch      bool
}

// DiscordConfig holds the Discord frontend settings
type DiscordConfig struct {
	Token         string
	CommandPrefix string
}

// Default returns a configuration with default values
func Default() Config {
	return Config{
		Host:        "0.0.0.0",
		Port:        8000,
		Debug:       false,
		LogLevel:    "info",
		CORSOrigins: []string{"http://localhost:3000"},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4",
			MaxTokens:   2000,
			Temperature: 0.7,
			Timeout:     30 * time.Second,
		},
		Crawler: CrawlerConfig{
			BaseURL:           "https://api.firecrawl.dev/v1",
			MaxResults:        5,
			Timeout:           10 * time.Second,
			DeepResearch:      false,
			DeepResearchDepth: 5,
			DeepResearchLimit: 240,
			DeepResearchURLs:  20,
			PollInterval:      3 * time.Second,
			PollTimeout:       300 * time.Second,
		},
		Chat: ChatConfig{
			MaxHistoryTurns: 12,
			MaxPromptChars:  12000,
		},
		Library: LibraryConfig{
			Enabled:    false,
			DataPath:   "data",
			Collection: "briefings",
			ChunkSize:  500,
			Watch:      true,
		},
		Discord: DiscordConfig{
			CommandPrefix: "!analyst ",
		},
	}
}

// Load builds the configuration from defaults, a .env file when present, and
// environment variable overrides. A missing .env file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	cfg.Host = getEnvString("HOST", cfg.Host)
	cfg.Port = getEnvInt("PORT", cfg.Port)
	cfg.Debug = getEnvBool("DEBUG", cfg.Debug)
	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnvString("LOG_FILE", cfg.LogFile)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)

	cfg.OpenAI.APIKey = getEnvString("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = getEnvString("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.Model = getEnvString("OPENAI_MODEL", cfg.OpenAI.Model)
	cfg.OpenAI.MaxTokens = getEnvInt("MAX_TOKENS", cfg.OpenAI.MaxTokens)
	cfg.OpenAI.Temperature = getEnvFloat("TEMPERATURE", cfg.OpenAI.Temperature)
	cfg.OpenAI.Timeout = getEnvSeconds("OPENAI_TIMEOUT_SECONDS", cfg.OpenAI.Timeout)

	cfg.Crawler.APIKey = getEnvString("FIRECRAWL_API_KEY", cfg.Crawler.APIKey)
	cfg.Crawler.BaseURL = getEnvString("FIRECRAWL_BASE_URL", cfg.Crawler.BaseURL)
	cfg.Crawler.MaxResults = getEnvInt("FIRECRAWL_MAX_RESULTS", cfg.Crawler.MaxResults)
	cfg.Crawler.Timeout = getEnvSeconds("FIRECRAWL_TIMEOUT_SECONDS", cfg.Crawler.Timeout)
	cfg.Crawler.DeepResearch = getEnvBool("FIRECRAWL_DEEP_RESEARCH", cfg.Crawler.DeepResearch)
	cfg.Crawler.PollTimeout = getEnvSeconds("FIRECRAWL_POLL_TIMEOUT_SECONDS", cfg.Crawler.PollTimeout)

	cfg.Chat.MaxHistoryTurns = getEnvInt("MAX_HISTORY_TURNS", cfg.Chat.MaxHistoryTurns)
	cfg.Chat.MaxPromptChars = getEnvInt("MAX_PROMPT_CHARS", cfg.Chat.MaxPromptChars)

	cfg.Library.Enabled = getEnvBool("LIBRARY_ENABLED", cfg.Library.Enabled)
	cfg.Library.DataPath = getEnvString("LIBRARY_DATA_PATH", cfg.Library.DataPath)
	cfg.Library.Collection = getEnvString("LIBRARY_COLLECTION", cfg.Library.Collection)
	cfg.Library.Watch = getEnvBool("LIBRARY_WATCH", cfg.Library.Watch)

	cfg.Discord.Token = getEnvString("DISCORD_BOT_TOKEN", cfg.Discord.Token)
	cfg.Discord.CommandPrefix = getEnvString("DISCORD_COMMAND_PREFIX", cfg.Discord.CommandPrefix)

	cfg.Keywords = getEnvList("RELEVANCE_KEYWORDS", cfg.Keywords)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks configuration values that would break the pipeline
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Crawler.MaxResults <= 0 {
		return fmt.Errorf("crawler max results must be positive, got %d", c.Crawler.MaxResults)
	}
	if c.Chat.MaxPromptChars <= 0 {
		return fmt.Errorf("max prompt chars must be positive, got %d", c.Chat.MaxPromptChars)
	}
	return nil
}

// Addr returns the host:port listen address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "true", "1", "t", "yes":
		return true
	case "false", "0", "f", "no":
		return false
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
