package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"relaybot/internal/config"
	"relaybot/internal/gateway/mtproto"
	"relaybot/internal/observability/debugserver"
	"relaybot/internal/storage"
	"relaybot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
		RingSize: cfg.Logging.RingSize,
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		switch driver {
		case "", "file":
			path = "./data"
		case "sqlite", "sqlite3":
			path = "./data/relaybot.db"
		}
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		DSN:         sc.DSN,
		Addr:        sc.Addr,
		Password:    sc.Password,
		DB:          sc.DB,
		KeyPrefix:   sc.KeyPrefix,
		BusyTimeout: config.DurationOr(sc.BusyTimeout, time.Second),
	}
}

func mapMTProtoConfig(cfg *config.Config) mtproto.Config {
	return mtproto.Config{
		APIID:       cfg.MTProto.APIID,
		APIHash:     cfg.MTProto.APIHash,
		SessionPath: cfg.MTProto.SessionPath,
		SendRate:    cfg.MTProto.SendRate,
	}
}

func mapDebugConfig(cfg *config.Config) debugserver.Config {
	d := cfg.Debug
	return debugserver.Config{
		Enabled:              d.Enabled,
		Addr:                 d.Addr,
		Token:                d.Token,
		AllowInsecure:        d.AllowInsecure,
		Pprof:                d.Pprof,
		ReadTimeout:          config.DurationOr(d.ReadTimeout, 10*time.Second),
		WriteTimeout:         config.DurationOr(d.WriteTimeout, 0),
		IdleTimeout:          config.DurationOr(d.IdleTimeout, 60*time.Second),
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
	}
}

// openStore opens the configured backend. Driver "none" keeps documents in
// memory for the life of the process.
func openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc := mapStorageConfig(cfg)
	st, err := storage.Open(sc, log)
	if errors.Is(err, storage.ErrDisabled) {
		log.Warn("storage disabled; settings and stats are kept in memory only")
		return storage.NewMemory(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", sc.Driver, err)
	}
	return st, nil
}

// checkSession fails when the MTProto session file is missing or empty.
func checkSession(path string) error {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session file %s not found; run `relaybot init-session` first", path)
	}
	if err != nil {
		return fmt.Errorf("session file: %w", err)
	}
	if fi.IsDir() || fi.Size() == 0 {
		return fmt.Errorf("session file %s is empty; run `relaybot init-session` first", path)
	}
	return nil
}
