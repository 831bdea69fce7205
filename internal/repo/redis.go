package repo

import (
	"PanShare/config"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	ShareExpireKeyPrefix = "share:expire:"
	activationKeyPrefix  = "user:activate:"
)

var ErrLockBusy = errors.New("lock is busy")

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("redis ready", "addr", rdb.Options().Addr)
	return rdb, nil
}

// EnableKeyspaceNotifications turns on expired-key events.
func EnableKeyspaceNotifications(ctx context.Context, rdb *redis.Client) error {
	return rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

type RedisLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration

	mu    sync.Mutex
	token string
}

// NewRedisLock creates a Redis lock helper.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb: rdb,
		key: key,
		ttl: ttl,
	}
}

// Lock acquires the lock or returns ErrLockBusy.
func (l *RedisLock) Lock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases the lock if this holder still owns it.
func (l *RedisLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	_, err := unlockScript.Run(
		ctx,
		l.rdb,
		[]string{l.key},
		token,
	).Result()
	return err
}

// ShareExpiryNotifier keeps one TTL key per expiring share so that the
// expired-key listener can trigger a sweep close to the expiry moment.
type ShareExpiryNotifier struct {
	rdb *redis.Client
}

func NewShareExpiryNotifier(rdb *redis.Client) *ShareExpiryNotifier {
	return &ShareExpiryNotifier{rdb: rdb}
}

// Arm sets the key for shareID to expire at expiresAt.
func (n *ShareExpiryNotifier) Arm(ctx context.Context, shareID uint64, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	return n.rdb.Set(ctx, ShareExpireKey(shareID), "1", ttl).Err()
}

// Disarm drops the key for shareID.
func (n *ShareExpiryNotifier) Disarm(ctx context.Context, shareID uint64) error {
	return n.rdb.Del(ctx, ShareExpireKey(shareID)).Err()
}

func ShareExpireKey(shareID uint64) string {
	return ShareExpireKeyPrefix + strconv.FormatUint(shareID, 10)
}

// ParseShareExpireKey extracts the share id from an expiry key.
func ParseShareExpireKey(key string) (uint64, bool) {
	if !strings.HasPrefix(key, ShareExpireKeyPrefix) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(key, ShareExpireKeyPrefix), 10, 64)
	return id, err == nil
}

// ActivationStore holds one-time account activation tokens.
type ActivationStore struct {
	rdb *redis.Client
}

func NewActivationStore(rdb *redis.Client) *ActivationStore {
	return &ActivationStore{rdb: rdb}
}

func (a *ActivationStore) Save(ctx context.Context, token string, userID uint64, ttl time.Duration) error {
	return a.rdb.Set(ctx, activationKeyPrefix+token, userID, ttl).Err()
}

// Take consumes token and returns its user id; unknown or used tokens
// yield ErrNotFound.
func (a *ActivationStore) Take(ctx context.Context, token string) (uint64, error) {
	val, err := a.rdb.GetDel(ctx, activationKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(val, 10, 64)
}

// ListenRedisExpired subscribes to expired-key events of db and calls
// handle for each key until ctx is done. ready, when non-nil, is closed
// once the subscription is confirmed.
func ListenRedisExpired(ctx context.Context, rdb *redis.Client, ready chan<- struct{}, handle func(ctx context.Context, key string)) error {
	channel := fmt.Sprintf("__keyevent@%d__:expired", rdb.Options().DB)
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			slog.Debug("redis key expired", "key", msg.Payload)
			handle(ctx, msg.Payload)
		}
	}
}
