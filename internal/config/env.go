package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envOverrides lists the environment variables that win over the config file.
// Unset variables leave the file value alone.
type envOverrides struct {
	APIID           *int     `envconfig:"TELEGRAM_API_ID"`
	APIHash         *string  `envconfig:"TELEGRAM_API_HASH"`
	Phone           *string  `envconfig:"TELEGRAM_PHONE"`
	BotToken        *string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	OwnerIDs        []int64  `envconfig:"BOT_OWNER_ID"`
	LogChatID       *int64   `envconfig:"LOG_CHAT_ID"`
	DefaultInterval *int     `envconfig:"DEFAULT_INTERVAL_MINUTES"`
	SessionFile     *string  `envconfig:"SESSION_FILE"`
	SendRate        *float64 `envconfig:"MTPROTO_SEND_RATE"`
	StorageDriver   *string  `envconfig:"STORAGE_DRIVER"`
	StoragePath     *string  `envconfig:"STORAGE_PATH"`
	StorageDSN      *string  `envconfig:"STORAGE_DSN"`
	StorageAddr     *string  `envconfig:"STORAGE_ADDR"`
	StoragePassword *string  `envconfig:"STORAGE_PASSWORD"`
	LogLevel        *string  `envconfig:"LOG_LEVEL"`
	DebugAddr       *string  `envconfig:"DEBUG_ADDR"`
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	set(&cfg.MTProto.APIID, env.APIID)
	set(&cfg.MTProto.APIHash, env.APIHash)
	set(&cfg.MTProto.Phone, env.Phone)
	set(&cfg.MTProto.SessionPath, env.SessionFile)
	set(&cfg.MTProto.SendRate, env.SendRate)
	set(&cfg.Telegram.Token, env.BotToken)
	set(&cfg.Telegram.LogChatID, env.LogChatID)
	if len(env.OwnerIDs) > 0 {
		cfg.Telegram.OwnerUserIDs = env.OwnerIDs
	}
	set(&cfg.Broadcast.DefaultIntervalMinutes, env.DefaultInterval)
	set(&cfg.Storage.Driver, env.StorageDriver)
	set(&cfg.Storage.Path, env.StoragePath)
	set(&cfg.Storage.DSN, env.StorageDSN)
	set(&cfg.Storage.Addr, env.StorageAddr)
	set(&cfg.Storage.Password, env.StoragePassword)
	set(&cfg.Logging.Level, env.LogLevel)
	set(&cfg.Debug.Addr, env.DebugAddr)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
