// Package config loads typed configuration from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read when no explicit file is given and it exists.
const DefaultEnvFile = ".env"

// App is the server configuration, read with the WARM prefix.
type App struct {
	Addr        string   `envconfig:"ADDR" default:":8000"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string   `envconfig:"LOG_FORMAT" default:"text"`

	ContextRetention     int           `envconfig:"CONTEXT_RETENTION" default:"10"`
	SummaryMaxUtterances int           `envconfig:"SUMMARY_MAX_UTTERANCES" default:"10"`
	SummaryMaxChars      int           `envconfig:"SUMMARY_MAX_CHARS" default:"600"`
	SummaryTimeout       time.Duration `envconfig:"SUMMARY_TIMEOUT" default:"15s"`
	TransferTTL          time.Duration `envconfig:"TRANSFER_TTL" default:"5m"`
	SweepInterval        time.Duration `envconfig:"SWEEP_INTERVAL" default:"30s"`
	NotifyBuffer         int           `envconfig:"NOTIFY_BUFFER" default:"16"`

	RateLimit float64 `envconfig:"RATE_LIMIT" default:"20"`
	RateBurst int     `envconfig:"RATE_BURST" default:"40"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"warm:"`
	RedisLocking  bool   `envconfig:"REDIS_LOCKING" default:"false"`

	RedactPatterns      []string `envconfig:"REDACT_PATTERNS"`
	ContextKey          string   `envconfig:"CONTEXT_KEY"`
	ContextFallbackKeys []string `envconfig:"CONTEXT_FALLBACK_KEYS"`

	TelephonyEnabled bool   `envconfig:"TELEPHONY_ENABLED" default:"false"`
	RoomProvider     string `envconfig:"ROOM_PROVIDER" default:"livekit"`
}

// Validate rejects combinations the server cannot run with.
func (a App) Validate() error {
	var errs []error
	if a.ContextRetention <= 0 {
		errs = append(errs, errors.New("WARM_CONTEXT_RETENTION must be positive"))
	}
	if a.TransferTTL <= 0 {
		errs = append(errs, errors.New("WARM_TRANSFER_TTL must be positive"))
	}
	if a.SweepInterval <= 0 {
		errs = append(errs, errors.New("WARM_SWEEP_INTERVAL must be positive"))
	}
	switch a.RoomProvider {
	case "livekit", "memory":
	default:
		errs = append(errs, fmt.Errorf("WARM_ROOM_PROVIDER %q is not one of livekit, memory", a.RoomProvider))
	}
	if a.RedisLocking && a.RedisAddr == "" {
		errs = append(errs, errors.New("WARM_REDIS_LOCKING requires WARM_REDIS_ADDR"))
	}
	if len(a.ContextFallbackKeys) > 0 && a.ContextKey == "" {
		errs = append(errs, errors.New("WARM_CONTEXT_FALLBACK_KEYS requires WARM_CONTEXT_KEY"))
	}
	return errors.Join(errs...)
}

// Load exports envFile (or ./.env when envFile is empty and present) into the
// process environment, then populates T from variables under prefix.
// Variables already set in the environment win over the file.
func Load[T any](prefix, envFile string) (*T, error) {
	if err := exportFile(envFile); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

// MustLoad is Load that panics on error.
func MustLoad[T any](prefix, envFile string) *T {
	conf, err := Load[T](prefix, envFile)
	if err != nil {
		panic(err)
	}
	return conf
}

func exportFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		info, err := os.Stat(DefaultEnvFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		path = DefaultEnvFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}
