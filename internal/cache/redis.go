package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/learnhub/internal/config"
)

const scanBatch = 100

// Redis хранит кэш в redis, значения хранятся в JSON.
type Redis struct {
	Db *redis.Client
}

// InitServer подключается к redis и проверяет соединение.
func InitServer(ctx context.Context, cfg config.RedisConnection) (*Redis, error) {
	const op = "cache.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Redis{Db: db}, nil
}

// Get читает значение по ключу и декодирует его в result.
func (c *Redis) Get(key string, result any) (bool, error) {
	const op = "cache.Redis.Get"
	val, err := c.Db.Get(context.Background(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if err = json.Unmarshal(val, result); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Set сохраняет значение с временем жизни ttl.
func (c *Redis) Set(key string, value any, ttl time.Duration) error {
	const op = "cache.Redis.Set"
	if ttl <= 0 {
		return c.Db.Del(context.Background(), key).Err()
	}
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = c.Db.Set(context.Background(), key, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Invalidate удаляет все ключи, содержащие substring.
func (c *Redis) Invalidate(substring string) error {
	const op = "cache.Redis.Invalidate"
	ctx := context.Background()

	// Ключи удаляются только после полного обхода: DEL во время SCAN
	// сдвигает курсор, и часть ключей пропускается.
	var keys []string
	iter := c.Db.Scan(ctx, 0, "*"+escapeGlob(substring)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for len(keys) > 0 {
		n := min(scanBatch, len(keys))
		if err := c.Db.Del(ctx, keys[:n]...).Err(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		keys = keys[n:]
	}
	return nil
}

// Close закрывает соединение.
func (c *Redis) Close() error {
	return c.Db.Close()
}

// escapeGlob экранирует спецсимволы шаблона MATCH, чтобы подстрока
// сравнивалась буквально.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
