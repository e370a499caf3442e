package config

import (
	"slices"
	"sort"
	"strings"

	"relaybot/pkg/logx"
)

// SummarizeChange lists the changed sections and safe log fields for them.
// Secrets (tokens, api hash, passwords, dsn) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || ot.LogChatID != nt.LogChatID ||
		!slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", nt.PollTimeout),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.log_chat_set", nt.LogChatID != 0),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	om, nm := oldCfg.MTProto, newCfg.MTProto
	if om.APIID != nm.APIID || om.APIHash != nm.APIHash || om.SessionPath != nm.SessionPath || om.SendRate != nm.SendRate {
		changed = append(changed, "mtproto")
		attrs = append(attrs,
			logx.Int("mtproto.api_id", nm.APIID),
			logx.String("mtproto.session_path", nm.SessionPath),
			logx.Float64("mtproto.send_rate", nm.SendRate),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs, logx.Int("broadcast.default_interval_minutes", newCfg.Broadcast.DefaultIntervalMinutes))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
			logx.String("storage.addr", newCfg.Storage.Addr),
		)
	}

	od, nd := oldCfg.Debug, newCfg.Debug
	if od != nd {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", nd.Addr),
			logx.Bool("debug.pprof", nd.Pprof),
			logx.Bool("debug.token_set", nd.Token != ""),
			logx.Bool("debug.allow_insecure", nd.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changes that only take effect after a restart.
// Logging, owner ids, send rate, default interval and the debug server apply live.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram.token/poll_timeout")
	}
	om, nm := oldCfg.MTProto, newCfg.MTProto
	if om.APIID != nm.APIID || om.APIHash != nm.APIHash || om.SessionPath != nm.SessionPath {
		out = append(out, "mtproto credentials/session")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	return out
}
