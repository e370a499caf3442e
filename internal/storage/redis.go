package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "relaybot/pkg/logx"
)

// auditKeep bounds the redis audit list.
const auditKeep = 1000

type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "relaybot:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Debug("redis store opened", logx.String("addr", addr), logx.String("prefix", prefix))
	return &redisStore{client: client, prefix: prefix, log: log}, nil
}

func (s *redisStore) docKey(key string) string { return s.prefix + "doc:" + key }
func (s *redisStore) auditKey() string         { return s.prefix + "audit" }

func (s *redisStore) GetDoc(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, s.docKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *redisStore) PutDoc(ctx context.Context, key string, doc []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	return s.client.Set(ctx, s.docKey(key), doc, 0).Err()
}

func (s *redisStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	payload, err := json.Marshal(stamp(e))
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.auditKey(), payload)
	pipe.LTrim(ctx, s.auditKey(), 0, auditKeep-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	if n <= 0 {
		n = 50
	}
	raw, err := s.client.LRange(ctx, s.auditKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(raw))
	for _, r := range raw {
		var e AuditEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *redisStore) Close() error { return s.client.Close() }
