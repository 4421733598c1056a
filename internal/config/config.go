package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"salonpos/backend/internal/billing"
	"salonpos/backend/internal/domain"
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	StoreID       string `env:"DEFAULT_STORE_ID" envDefault:"main-store"`
	StoresFile    string `env:"STORES_FILE"`

	QuoteCacheTTLSeconds  int    `env:"QUOTE_CACHE_TTL_SECONDS" envDefault:"30"`
	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"480"`
	ManagerPIN            string `env:"MANAGER_PIN"`

	LoyaltyPointValue     decimal.Decimal `env:"LOYALTY_POINT_VALUE" envDefault:"1"`
	LoyaltyBasePointsRate decimal.Decimal `env:"LOYALTY_BASE_POINTS_RATE" envDefault:"0.01"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads a .env file when one exists, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	if cfg.QuoteCacheTTLSeconds < 1 {
		cfg.QuoteCacheTTLSeconds = 30
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.LoyaltyPointValue.Sign() <= 0 {
		return Config{}, fmt.Errorf("LOYALTY_POINT_VALUE must be positive")
	}
	if cfg.LoyaltyBasePointsRate.IsNegative() {
		return Config{}, fmt.Errorf("LOYALTY_BASE_POINTS_RATE must not be negative")
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) QuoteCacheTTL() time.Duration {
	return time.Duration(c.QuoteCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) LoyaltyRules() billing.Rules {
	return billing.Rules{
		PointValue:     c.LoyaltyPointValue,
		BasePointsRate: c.LoyaltyBasePointsRate,
	}
}

type storesFile struct {
	Stores []domain.Store `toml:"store"`
}

// LoadStores parses a TOML file of [[store]] tables.
func LoadStores(path string) ([]domain.Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stores file: %w", err)
	}

	var file storesFile
	if _, err := toml.Decode(string(raw), &file); err != nil {
		return nil, fmt.Errorf("decode stores file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Stores))
	for i, st := range file.Stores {
		if st.ID == "" {
			return nil, fmt.Errorf("store #%d: id is required", i+1)
		}
		if _, dup := seen[st.ID]; dup {
			return nil, fmt.Errorf("store %q defined twice", st.ID)
		}
		seen[st.ID] = struct{}{}
		if st.TaxRate.IsNegative() {
			return nil, fmt.Errorf("store %q: tax_rate must not be negative", st.ID)
		}
		if st.OpenHour < 0 || st.CloseHour > 24 || st.OpenHour >= st.CloseHour {
			return nil, fmt.Errorf("store %q: opening hours %d-%d are invalid", st.ID, st.OpenHour, st.CloseHour)
		}
		if st.Timezone != "" {
			if _, err := time.LoadLocation(st.Timezone); err != nil {
				return nil, fmt.Errorf("store %q: %w", st.ID, err)
			}
		}
	}
	return file.Stores, nil
}
