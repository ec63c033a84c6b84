package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=recepcion port=5432 sslmode=disable"

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	JWTSecret   string
	CORSOrigins string

	// DraftDir is the Badger directory for drafts and commit backups. Empty
	// keeps them in memory.
	DraftDir      string
	DraftDebounce time.Duration
	DraftMaxAge   time.Duration

	// RedisAddr enables the shared negative reservation cache.
	RedisAddr        string
	RedisPassword    string
	NegativeCacheTTL time.Duration

	ScanDedupeWindow time.Duration

	// SupplierStrategies maps supplier ID to code strategy ("model",
	// "batch" or "passthrough"). Read from SUPPLIER_STRATEGIES as
	// "PROV-01=model,PROV-02=batch".
	SupplierStrategies map[string]string
	ModelPrefixLen     int

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and the environment. Insecure settings stop
// the process.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[WARN] .env no se pudo leer: %v", err)
	}

	cfg, err := load(viper.New())
	if err != nil {
		log.Fatalf("[FATAL] %v", err)
	}

	if cfg.DatabaseDSN == defaultDSN {
		log.Println("[WARN] DATABASE_DSN usa el valor por defecto; define la conexión de Postgres para producción.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS usa el valor por defecto; define tu dominio para producción.")
	}
	return cfg
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_DSN", defaultDSN)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("DRAFT_DIR", "./data/drafts")
	v.SetDefault("DRAFT_DEBOUNCE", "2s")
	v.SetDefault("DRAFT_MAX_AGE", "24h")
	v.SetDefault("NEGATIVE_CACHE_TTL", "5m")
	v.SetDefault("SCAN_DEDUPE_WINDOW", "300ms")
	v.SetDefault("MODEL_PREFIX_LEN", 6)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	cfg := &Config{
		HTTPPort:         v.GetString("HTTP_PORT"),
		DatabaseDSN:      v.GetString("DATABASE_DSN"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		CORSOrigins:      v.GetString("CORS_ALLOWED_ORIGINS"),
		DraftDir:         v.GetString("DRAFT_DIR"),
		DraftDebounce:    v.GetDuration("DRAFT_DEBOUNCE"),
		DraftMaxAge:      v.GetDuration("DRAFT_MAX_AGE"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		NegativeCacheTTL: v.GetDuration("NEGATIVE_CACHE_TTL"),
		ScanDedupeWindow: v.GetDuration("SCAN_DEDUPE_WINDOW"),
		ModelPrefixLen:   v.GetInt("MODEL_PREFIX_LEN"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFormat:        v.GetString("LOG_FORMAT"),
	}

	strategies, err := parseStrategies(v.GetString("SUPPLIER_STRATEGIES"))
	if err != nil {
		return nil, err
	}
	cfg.SupplierStrategies = strategies
	if cfg.ModelPrefixLen <= 0 {
		return nil, errors.New("MODEL_PREFIX_LEN debe ser mayor que cero")
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET no está definido; es obligatorio")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET debe tener al menos 32 caracteres")
	}
	for name, d := range map[string]time.Duration{
		"DRAFT_DEBOUNCE":     cfg.DraftDebounce,
		"DRAFT_MAX_AGE":      cfg.DraftMaxAge,
		"NEGATIVE_CACHE_TTL": cfg.NegativeCacheTTL,
		"SCAN_DEDUPE_WINDOW": cfg.ScanDedupeWindow,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%s debe ser una duración positiva", name)
		}
	}
	return cfg, nil
}

func parseStrategies(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		supplier, name, ok := strings.Cut(pair, "=")
		supplier, name = strings.TrimSpace(supplier), strings.ToLower(strings.TrimSpace(name))
		if !ok || supplier == "" {
			return nil, fmt.Errorf("SUPPLIER_STRATEGIES: entrada inválida %q", pair)
		}
		switch name {
		case "model", "batch", "passthrough":
			out[supplier] = name
		default:
			return nil, fmt.Errorf("SUPPLIER_STRATEGIES: estrategia desconocida %q para %s", name, supplier)
		}
	}
	return out, nil
}
