package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Validate reports everything that keeps the relay from starting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token (TELEGRAM_BOT_TOKEN) is required"))
	}
	if len(c.Telegram.OwnerUserIDs) == 0 {
		errs = append(errs, errors.New("telegram.owner_user_ids (BOT_OWNER_ID) is required"))
	}
	if c.MTProto.APIID == 0 {
		errs = append(errs, errors.New("mtproto.api_id (TELEGRAM_API_ID) is required"))
	}
	if strings.TrimSpace(c.MTProto.APIHash) == "" {
		errs = append(errs, errors.New("mtproto.api_hash (TELEGRAM_API_HASH) is required"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Driver {
	case "", "file", "sqlite", "memory", "none":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	case "redis":
		if c.Storage.Addr == "" {
			errs = append(errs, errors.New("storage.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Debug.Enabled {
		for _, f := range []struct{ path, raw string }{
			{"debug.read_timeout", c.Debug.ReadTimeout},
			{"debug.write_timeout", c.Debug.WriteTimeout},
			{"debug.idle_timeout", c.Debug.IdleTimeout},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				errs = append(errs, err)
			}
		}
		if !isLoopback(c.Debug.Addr) && c.Debug.Token == "" && !c.Debug.AllowInsecure {
			errs = append(errs, fmt.Errorf("debug.addr %q is not loopback; set debug.token or debug.allow_insecure", c.Debug.Addr))
		}
	}
	return errors.Join(errs...)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// ParseDurationField parses an optional non-negative Go duration; empty is 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// DurationOr parses raw and returns def for empty or zero values.
// Call Validate first; a malformed value also yields def.
func DurationOr(raw string, def time.Duration) time.Duration {
	d, err := ParseDurationField("", raw)
	if err != nil || d == 0 {
		return def
	}
	return d
}
