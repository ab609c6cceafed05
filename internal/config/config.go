package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	// Game server
	MCHost     string
	MCPort     int
	MCUser     string
	MCProtocol int
	MCLoginCmd string

	WaitAfterSpawn time.Duration
	SpawnWait      time.Duration
	ProbeTimeout   time.Duration
	ReconnectDelay time.Duration

	// Enumeration
	CompletionCommand string
	CompletionTimeout time.Duration
	ScanDelay         time.Duration
	ScanPrefixes      []string
	RosterFallback    bool
	AutoScanInterval  time.Duration

	RulesPath string

	// AI tier
	AIEnabled     bool
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	AIBudget      int
	AIBanConf     float64
	AIOKConf      float64
	AIDelay       time.Duration
	AIOnScan      bool
	RedisURL      string
	AICacheTTL    time.Duration

	// Surfaces
	HTTPAddr     string
	BotToken     string
	ChatID       string
	MessageLimit int
	MessagesDir  string
}

const (
	DefaultPrefixes    = "abcdefghijklmnopqrstuvwxyz0123456789_"
	DefaultGeminiModel = "gemini-1.5-flash"
	DefaultGeminiURL   = "https://generativelanguage.googleapis.com"
)

// Load reads the daemon configuration. MC_HOST and MC_USER are required.
func Load() (*AppConfig, error) { return load(true) }

// LoadOffline reads the same keys without requiring a game server, for tools
// that only classify names.
func LoadOffline() (*AppConfig, error) { return load(false) }

func load(requireGame bool) (*AppConfig, error) {
	cfg := &AppConfig{
		MCPort:            25565,
		MCProtocol:        47,
		WaitAfterSpawn:    3 * time.Second,
		SpawnWait:         8 * time.Second,
		ProbeTimeout:      5 * time.Second,
		ReconnectDelay:    5 * time.Second,
		CompletionCommand: "/msg ",
		CompletionTimeout: 2500 * time.Millisecond,
		ScanDelay:         200 * time.Millisecond,
		RosterFallback:    true,
		RulesPath:         "rules.json",
		AIEnabled:         true,
		GeminiModel:       DefaultGeminiModel,
		GeminiBaseURL:     DefaultGeminiURL,
		AIBudget:          30,
		AIBanConf:         0.75,
		AIOKConf:          0.75,
		AIDelay:           350 * time.Millisecond,
		AICacheTTL:        24 * time.Hour,
		HTTPAddr:          ":3000",
		MessageLimit:      3900,
	}

	cfg.MCHost = strings.TrimSpace(os.Getenv("MC_HOST"))
	cfg.MCUser = strings.TrimSpace(os.Getenv("MC_USER"))
	cfg.MCLoginCmd = strings.TrimSpace(os.Getenv("MC_LOGIN_CMD"))
	if n, ok := positiveInt("MC_PORT"); ok {
		cfg.MCPort = n
	}
	if n, ok := positiveInt("MC_PROTOCOL"); ok {
		cfg.MCProtocol = n
	}

	setMillis(&cfg.WaitAfterSpawn, "WAIT_AFTER_SPAWN_MS")
	setMillis(&cfg.SpawnWait, "SPAWN_WAIT_MS")
	setMillis(&cfg.ProbeTimeout, "PROBE_TIMEOUT_MS")
	setMillis(&cfg.ReconnectDelay, "RECONNECT_DELAY_MS")
	setMillis(&cfg.CompletionTimeout, "COMPLETION_TIMEOUT_MS")
	setMillis(&cfg.AIDelay, "AI_DELAY_MS")
	if v, ok := os.LookupEnv("SCAN_DELAY_MS"); ok {
		// zero is allowed here: no pause between prefixes
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			cfg.ScanDelay = time.Duration(n) * time.Millisecond
		}
	}

	// the trailing space of the command is significant, so no TrimSpace
	if v := os.Getenv("COMPLETION_COMMAND"); strings.TrimSpace(v) != "" {
		cfg.CompletionCommand = v
	}
	cfg.ScanPrefixes = splitPrefixes(os.Getenv("SCAN_PREFIXES"))
	setBool(&cfg.RosterFallback, "ROSTER_FALLBACK")
	if v := strings.TrimSpace(os.Getenv("AUTO_SCAN_INTERVAL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AutoScanInterval = d
		}
	}

	if v := strings.TrimSpace(os.Getenv("RULES_PATH")); v != "" {
		cfg.RulesPath = v
	}

	setBool(&cfg.AIEnabled, "AI_ENABLED")
	setBool(&cfg.AIOnScan, "AI_ON_SCAN")
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if v := strings.TrimSpace(os.Getenv("GEMINI_MODEL")); v != "" {
		cfg.GeminiModel = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")); v != "" {
		cfg.GeminiBaseURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv("AI_BUDGET_PER_AI_CLICK")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.AIBudget = n
		}
	}
	setFraction(&cfg.AIBanConf, "AI_MIN_CONF_FOR_BAN")
	setFraction(&cfg.AIOKConf, "AI_MIN_CONF_FOR_OK")
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("AI_CACHE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.AICacheTTL = d
		}
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	} else if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.HTTPAddr = ":" + v
	}
	cfg.BotToken = strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	cfg.ChatID = strings.TrimSpace(os.Getenv("CHAT_ID"))
	if n, ok := positiveInt("MESSAGE_LIMIT"); ok {
		cfg.MessageLimit = n
	}
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if !requireGame {
		return cfg, nil
	}
	if cfg.MCHost == "" {
		return nil, errors.New("MC_HOST is required")
	}
	if cfg.MCUser == "" {
		return nil, errors.New("MC_USER is required")
	}

	return cfg, nil
}

// AIAvailable reports whether the AI tier can be used at all.
func (c *AppConfig) AIAvailable() bool {
	return c.AIEnabled && c.GeminiAPIKey != ""
}

// Prefixes returns the sweep prefixes, falling back to DefaultPrefixes.
func (c *AppConfig) Prefixes() []string {
	if len(c.ScanPrefixes) > 0 {
		return c.ScanPrefixes
	}
	return splitPrefixes(DefaultPrefixes)
}

// splitPrefixes accepts either a comma separated list ("ab,cd") or a bare
// run of symbols, one prefix per symbol.
func splitPrefixes(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	var out []string
	if strings.Contains(v, ",") {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	for _, r := range v {
		out = append(out, string(r))
	}
	return out
}

func positiveInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func setMillis(dst *time.Duration, key string) {
	if n, ok := positiveInt(key); ok {
		*dst = time.Duration(n) * time.Millisecond
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setFraction(dst *float64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			*dst = f
		}
	}
}
