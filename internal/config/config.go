package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"monopoly_server/internal/game"
	"monopoly_server/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AdminSecret   string
	AllowedOrigin string
	LogLevel      string
	LogJSON       bool

	// Board files; empty means the embedded defaults.
	BoardPath string
	PawnsPath string

	// Rules
	StartingBalance    int64
	GoSalary           int64
	JailFine           int64
	MinPlayers         int
	MaxLevel           int
	AuctionsEnabled    bool
	BankruptcyCreditor game.CreditorPolicy
	DisconnectPolicy   game.DisconnectPolicy
	ChoiceTimeout      time.Duration
	TimeoutDefaults    map[game.ChoiceKind]string

	// Limits
	WSMessageLimit  int
	WSMessageWindow time.Duration
	APIRateLimit    int
	APIRateWindow   time.Duration
}

// Load reads the configuration from the environment (and .env when present).
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		AppPort:       envString("APP_PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),
		AdminSecret:   os.Getenv("ADMIN_JWT_SECRET"),
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),
		LogLevel:      envString("LOG_LEVEL", "info"),
		LogJSON:       os.Getenv("LOG_JSON") == "true",

		BoardPath: os.Getenv("BOARD_PATH"),
		PawnsPath: os.Getenv("PAWNS_PATH"),

		StartingBalance: int64(envInt("STARTING_BALANCE", 1500)),
		GoSalary:        int64(envInt("GO_SALARY", 200)),
		JailFine:        int64(envInt("JAIL_FINE", 50)),
		MinPlayers:      envInt("MIN_PLAYERS", 2),
		MaxLevel:        envInt("MAX_LEVEL", 5),
		AuctionsEnabled: os.Getenv("AUCTIONS_ENABLED") == "true",
		ChoiceTimeout:   time.Duration(envInt("CHOICE_TIMEOUT_SECONDS", 0)) * time.Second,

		WSMessageLimit:  envInt("WS_MESSAGE_LIMIT", 30),
		WSMessageWindow: time.Duration(envInt("WS_MESSAGE_WINDOW_SECONDS", 10)) * time.Second,
		APIRateLimit:    envInt("API_RATE_LIMIT", 60),
		APIRateWindow:   time.Duration(envInt("API_RATE_WINDOW_SECONDS", 60)) * time.Second,
	}

	switch v := game.CreditorPolicy(os.Getenv("BANKRUPTCY_CREDITOR")); v {
	case game.CreditorBank, game.CreditorPlayer:
		cfg.BankruptcyCreditor = v
	case "":
		cfg.BankruptcyCreditor = game.CreditorPlayer
	default:
		logger.Fatal("invalid BANKRUPTCY_CREDITOR", "value", v)
	}

	switch v := game.DisconnectPolicy(os.Getenv("DISCONNECT_POLICY")); v {
	case game.DisconnectForfeit, game.DisconnectSkip:
		cfg.DisconnectPolicy = v
	case "":
		cfg.DisconnectPolicy = game.DisconnectForfeit
	default:
		logger.Fatal("invalid DISCONNECT_POLICY", "value", v)
	}

	defaults, err := ParseTimeoutDefaults(os.Getenv("CHOICE_TIMEOUT_DEFAULTS"))
	if err != nil {
		logger.Fatal("invalid CHOICE_TIMEOUT_DEFAULTS", "error", err)
	}
	cfg.TimeoutDefaults = defaults

	if cfg.MinPlayers < 2 {
		cfg.MinPlayers = 2
	}

	return cfg
}

// Rules converts the rule-related settings into engine rules.
func (c *Config) Rules() game.Rules {
	r := game.DefaultRules()
	r.StartingBalance = c.StartingBalance
	r.GoSalary = c.GoSalary
	r.JailFine = c.JailFine
	r.MinPlayers = c.MinPlayers
	r.MaxLevel = c.MaxLevel
	r.AuctionsEnabled = c.AuctionsEnabled
	r.BankruptcyCreditor = c.BankruptcyCreditor
	r.DisconnectPolicy = c.DisconnectPolicy
	r.ChoiceTimeout = c.ChoiceTimeout
	for kind, decision := range c.TimeoutDefaults {
		r.TimeoutDefaults[kind] = decision
	}
	return r
}

// ParseTimeoutDefaults parses "KIND:DECISION,KIND:DECISION".
func ParseTimeoutDefaults(s string) (map[game.ChoiceKind]string, error) {
	out := make(map[game.ChoiceKind]string)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		kind, decision, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, &parseError{pair}
		}
		k := game.ChoiceKind(strings.ToUpper(strings.TrimSpace(kind)))
		d := strings.ToUpper(strings.TrimSpace(decision))
		if !game.ValidTimeoutDefault(k, d) {
			return nil, &parseError{pair}
		}
		out[k] = d
	}
	return out, nil
}

type parseError struct{ pair string }

func (e *parseError) Error() string {
	return "bad timeout default " + strconv.Quote(e.pair)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
