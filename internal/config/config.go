package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is loaded once at
// startup and passed into components at construction; nothing reads toggles
// from the environment mid-operation.
type Config struct {
	// Port is the HTTP control-plane port.
	Port int

	// DatabasePath is the SQLite file holding the comment ledger.
	DatabasePath string

	// RedisAddr enables the ledger lookup cache when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTLHours int

	// Platform tags every ledger record.
	Platform string

	// Targets is the default ordered account list. Loaded from the
	// TARGETS env var (comma separated) or from TargetsFile.
	Targets     []string
	TargetsFile string

	// MaxAgeDays drops candidates older than this; 0 disables the filter.
	MaxAgeDays int

	// Caption gate bounds, both inclusive.
	CaptionMinLength int
	CaptionMaxLength int

	// Inter-account delay window for batch runs.
	DelayMin time.Duration
	DelayMax time.Duration

	// Generation retry policy for the pipeline's generate step.
	GenerationAttempts   int
	GenerationRetryDelay time.Duration

	// Scheduler settings.
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	SkipIfRunning     bool
	RunOnStart        bool
	StartupDelay      time.Duration

	// WebhookAPIKey protects POST /webhook/run-bot when non-empty.
	WebhookAPIKey string

	// OpenAI generator settings.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// BrowserURL is the DevTools control URL of the browser owning the
	// automation session. Empty means launch a local browser.
	BrowserURL string
}

// Load reads configuration from environment variables with sensible
// defaults, then resolves the target account list.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                 envInt("PORT", 3000),
		DatabasePath:         envOr("DATABASE_PATH", "data/instaagent.db"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              envInt("REDIS_DB", 0),
		CacheTTLHours:        envInt("CACHE_TTL_HOURS", 48),
		Platform:             envOr("PLATFORM", "instagram"),
		TargetsFile:          os.Getenv("TARGETS_FILE"),
		MaxAgeDays:           envInt("MAX_POST_AGE_DAYS", 1),
		CaptionMinLength:     envInt("CAPTION_MIN_LENGTH", 50),
		CaptionMaxLength:     envInt("CAPTION_MAX_LENGTH", 2200),
		DelayMin:             time.Duration(envInt("DELAY_MIN_SECONDS", 30)) * time.Second,
		DelayMax:             time.Duration(envInt("DELAY_MAX_SECONDS", 90)) * time.Second,
		GenerationAttempts:   envInt("GENERATION_ATTEMPTS", 1),
		GenerationRetryDelay: time.Duration(envInt("GENERATION_RETRY_DELAY_SECONDS", 5)) * time.Second,
		SchedulerEnabled:     envBool("SCHEDULER_ENABLED", true),
		SchedulerInterval:    time.Duration(envInt("SCHEDULER_INTERVAL_MINUTES", 30)) * time.Minute,
		SkipIfRunning:        envBool("SCHEDULER_SKIP_IF_RUNNING", true),
		RunOnStart:           envBool("SCHEDULER_RUN_ON_START", false),
		StartupDelay:         time.Duration(envInt("SCHEDULER_STARTUP_DELAY_SECONDS", 10)) * time.Second,
		WebhookAPIKey:        os.Getenv("WEBHOOK_API_KEY"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        envOr("OPENAI_BASE_URL", "https://api.openai.com"),
		OpenAIModel:          envOr("OPENAI_MODEL", "gpt-4o-mini"),
		BrowserURL:           os.Getenv("BROWSER_URL"),
	}

	if cfg.CaptionMaxLength < cfg.CaptionMinLength {
		return nil, fmt.Errorf("CAPTION_MAX_LENGTH (%d) is below CAPTION_MIN_LENGTH (%d)",
			cfg.CaptionMaxLength, cfg.CaptionMinLength)
	}
	if cfg.DelayMax < cfg.DelayMin {
		return nil, fmt.Errorf("DELAY_MAX_SECONDS is below DELAY_MIN_SECONDS")
	}

	if raw := os.Getenv("TARGETS"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Targets = append(cfg.Targets, t)
			}
		}
	} else if cfg.TargetsFile != "" {
		targets, err := loadTargetsFile(cfg.TargetsFile)
		if err != nil {
			return nil, err
		}
		cfg.Targets = targets
	}

	return cfg, nil
}

// loadTargetsFile reads the YAML account list:
//
//	accounts:
//	  - some_account
//	  - another_account
func loadTargetsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()

	var doc struct {
		Accounts []string `yaml:"accounts"`
	}
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode targets file: %w", err)
	}

	targets := make([]string, 0, len(doc.Accounts))
	for _, a := range doc.Accounts {
		if a = strings.TrimSpace(a); a != "" {
			targets = append(targets, a)
		}
	}
	return targets, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
