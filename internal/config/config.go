package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/susu3304/warikan/internal/money"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	// Discord Bot, optional
	DiscordToken string

	// Discord OAuth2
	DiscordClientID     string
	DiscordClientSecret string
	DiscordRedirectURI  string

	// Storage
	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	// Web Server
	WebBind      string
	WebUIBaseURL string

	// Signing keys
	JWTSecret          string
	ConfirmationSecret string

	// Activity feed, disabled without brokers
	KafkaBrokers []string
	KafkaTopic   string

	CurrencyExponent int32
	CurrencySymbol   string
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv without touching .env files.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		DiscordToken:        get("DISCORD_TOKEN", ""),
		DiscordClientID:     get("DISCORD_CLIENT_ID", ""),
		DiscordClientSecret: get("DISCORD_CLIENT_SECRET", ""),
		DiscordRedirectURI:  get("DISCORD_REDIRECT_URI", "http://localhost:3000/api/auth/callback"),
		DatabaseURL:         get("DATABASE_URL", ""),
		MongoURI:            get("MONGO_URI", ""),
		MongoDatabase:       get("MONGO_DATABASE", "warikan"),
		WebBind:             get("WEB_BIND", "0.0.0.0:3000"),
		JWTSecret:           get("JWT_SECRET", "dev-only-change-me"),
		KafkaTopic:          get("KAFKA_TOPIC", "warikan.activity"),
		CurrencySymbol:      get("CURRENCY_SYMBOL", "円"),
	}
	cfg.ConfirmationSecret = get("CONFIRMATION_SECRET", cfg.JWTSecret)
	cfg.WebUIBaseURL = extractBaseURL(cfg.DiscordRedirectURI)
	cfg.KafkaBrokers = splitList(getenv("KAFKA_BROKERS"))

	exp, err := strconv.ParseInt(get("CURRENCY_EXPONENT", "0"), 10, 32)
	if err != nil || exp < 0 || exp > 8 {
		return nil, fmt.Errorf("CURRENCY_EXPONENT must be an integer between 0 and 8")
	}
	cfg.CurrencyExponent = int32(exp)

	// Default to postgres when a URL is given, otherwise keep everything in memory
	defDriver := DriverMemory
	if cfg.DatabaseURL != "" {
		defDriver = DriverPostgres
	}
	cfg.StoreDriver = strings.ToLower(get("STORE_DRIVER", defDriver))

	switch cfg.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is required for the mongo store")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if (cfg.DiscordClientID == "") != (cfg.DiscordClientSecret == "") {
		return nil, fmt.Errorf("DISCORD_CLIENT_ID and DISCORD_CLIENT_SECRET must be set together")
	}

	return cfg, nil
}

func (c *Config) Currency() money.Currency {
	return money.Currency{Exponent: c.CurrencyExponent, Symbol: c.CurrencySymbol}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func extractBaseURL(redirectURI string) string {
	// e.g., "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
