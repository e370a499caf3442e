package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// clearEnv hides overrides set on the host so tests see only their own.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TELEGRAM_API_ID", "TELEGRAM_API_HASH", "TELEGRAM_PHONE", "TELEGRAM_BOT_TOKEN", "BOT_OWNER_ID",
		"LOG_CHAT_ID", "DEFAULT_INTERVAL_MINUTES", "SESSION_FILE", "MTPROTO_SEND_RATE",
		"STORAGE_DRIVER", "STORAGE_PATH", "STORAGE_DSN", "STORAGE_ADDR", "STORAGE_PASSWORD",
		"LOG_LEVEL", "DEBUG_ADDR",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	clearEnv(t)
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestParseYAMLMatchesJSON(t *testing.T) {
	y := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
mtproto:
  api_id: 1001
  api_hash: deadbeef
broadcast:
  default_interval_minutes: 15
storage:
  driver: sqlite
  path: ./data/relay.db
`)
	j := writeFile(t, "config.json", `{
  "telegram": {"token": "123:abc", "owner_user_ids": [42]},
  "mtproto": {"api_id": 1001, "api_hash": "deadbeef"},
  "broadcast": {"default_interval_minutes": 15},
  "storage": {"driver": "sqlite", "path": "./data/relay.db"}
}`)

	fromYAML, err := NewManager(y).Parse()
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	fromJSON, err := NewManager(j).Parse()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if hashConfig(fromYAML) != hashConfig(fromJSON) {
		t.Fatalf("yaml and json decode differently:\n%+v\n%+v", fromYAML, fromJSON)
	}
	if fromYAML.Broadcast.DefaultIntervalMinutes != 15 || fromYAML.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected values: %+v", fromYAML)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram": {"token": "x", "nope": 1}}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("expected unknown field error")
	}
	p = writeFile(t, "config.yml", "plugins: {}\n")
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("expected unknown field error for yaml")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeFile(t, "config.json", `{} {}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestMissingFileUsesEnvAndDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_API_ID", "777")
	t.Setenv("TELEGRAM_API_HASH", "hash")
	t.Setenv("TELEGRAM_BOT_TOKEN", "1:tok")
	t.Setenv("BOT_OWNER_ID", "11,22")
	t.Setenv("DEFAULT_INTERVAL_MINUTES", "3")
	t.Setenv("SESSION_FILE", "/tmp/relay.session")

	cfg, err := NewManager(filepath.Join(t.TempDir(), "absent.json")).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.MTProto.APIID != 777 || cfg.MTProto.APIHash != "hash" || cfg.Telegram.Token != "1:tok" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if !slices.Equal(cfg.Telegram.OwnerUserIDs, []int64{11, 22}) {
		t.Fatalf("owners = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Broadcast.DefaultIntervalMinutes != 3 || cfg.MTProto.SessionPath != "/tmp/relay.session" {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.Storage.Driver != "file" || cfg.Logging.Level != "info" || cfg.Logging.RingSize != 100 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "config.json", `{"storage": {"driver": "file", "path": "./a"}, "logging": {"level": "debug"}}`)
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("STORAGE_DSN", "postgres://relay@localhost/relay")
	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" || cfg.Storage.Path != "./a" {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("file value lost: %q", cfg.Logging.Level)
	}
}

func TestValidateReportsEveryMissingCredential(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"TELEGRAM_BOT_TOKEN", "BOT_OWNER_ID", "TELEGRAM_API_ID", "TELEGRAM_API_HASH"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestValidateDebugExposure(t *testing.T) {
	cfg := validConfig()
	cfg.Debug = DebugConfig{Enabled: true, Addr: "0.0.0.0:6060"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("public debug server without token must be rejected")
	}
	cfg.Debug.Token = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token should allow public bind: %v", err)
	}
	cfg.Debug = DebugConfig{Enabled: true, Addr: "127.0.0.1:6060", ReadTimeout: "-1s"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("negative timeout must be rejected")
	}
}

func TestValidateStorageDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Driver = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown driver must be rejected")
	}
	cfg.Storage.Driver = "redis"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("redis without addr must be rejected")
	}
}

func TestDurationOr(t *testing.T) {
	if d := DurationOr("", 5*time.Second); d != 5*time.Second {
		t.Fatalf("empty = %v", d)
	}
	if d := DurationOr("2m", time.Second); d != 2*time.Minute {
		t.Fatalf("2m = %v", d)
	}
	if d := DurationOr("bogus", time.Second); d != time.Second {
		t.Fatalf("bogus = %v", d)
	}
}

func TestReloadPublishesOnlyChanges(t *testing.T) {
	p := writeFile(t, "config.json", `{"logging": {"level": "info"}}`)
	m := NewManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)

	if published, err := m.Reload(context.Background()); err != nil || published {
		t.Fatalf("unchanged reload: published=%v err=%v", published, err)
	}

	if err := os.WriteFile(p, []byte(`{"logging": {"level": "debug"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	published, err := m.Reload(context.Background())
	if err != nil || !published {
		t.Fatalf("changed reload: published=%v err=%v", published, err)
	}
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published stale config: %+v", cfg.Logging)
		}
	default:
		t.Fatalf("subscriber got nothing")
	}

	m.SetValidator(func(ctx context.Context, cfg *Config) error { return os.ErrInvalid })
	_ = os.WriteFile(p, []byte(`{"logging": {"level": "warn"}}`), 0o600)
	if published, err := m.Reload(context.Background()); err == nil || published {
		t.Fatalf("validator ignored")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatalf("rejected config was committed")
	}
}

func TestSummarizeChangeHidesSecrets(t *testing.T) {
	a := validConfig()
	b := validConfig()
	b.Telegram.Token = "2:other"
	b.Storage.DSN = "postgres://secret"
	b.Storage.Driver = "postgres"
	b.Logging.Level = "debug"

	changed, attrs := SummarizeChange(a, b)
	if !slices.Equal(changed, []string{"logging", "storage", "telegram"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
	restart := RestartRequired(a, b)
	if len(restart) != 2 {
		t.Fatalf("restart = %v", restart)
	}
}

func validConfig() *Config {
	cfg := &Config{
		Telegram: TelegramConfig{Token: "1:abc", OwnerUserIDs: []int64{1}},
		MTProto:  MTProtoConfig{APIID: 1, APIHash: "h"},
	}
	cfg.ApplyDefaults()
	return cfg
}
