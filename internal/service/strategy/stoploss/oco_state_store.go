package stoploss

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const defaultLockTTL = 15 * time.Second

// OCOState is the persisted progress of one monitor.
type OCOState struct {
	EntryPrice        decimal.Decimal `json:"entry_price"`
	EntryDate         string          `json:"entry_date"`
	TakeProfitOrderID string          `json:"take_profit_order_id,omitempty"`
	StopLossOrderID   string          `json:"stop_loss_order_id,omitempty"`
	Triggered         bool            `json:"triggered"`
	Closed            bool            `json:"closed"`
	ExitQuantity      int64           `json:"exit_quantity"`
	ExitNotional      decimal.Decimal `json:"exit_notional"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type StateStore interface {
	Load(ctx context.Context, key string) (OCOState, bool, error)
	Save(ctx context.Context, key string, state OCOState) error
	AcquireProcessingLock(ctx context.Context, key string, ttl time.Duration, owner string) (bool, error)
	ReleaseProcessingLock(ctx context.Context, key string, owner string) error
}

type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(cacheDSN string) (*RedisStateStore, error) {
	if cacheDSN == "" {
		return nil, fmt.Errorf("redis cache_dsn is required")
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis cache_dsn: %w", err)
	}

	return NewRedisStateStoreWithClient(redis.NewClient(options)), nil
}

func NewRedisStateStoreWithClient(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStateStore) Load(ctx context.Context, key string) (OCOState, bool, error) {
	rawState, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return OCOState{}, false, nil
		}
		return OCOState{}, false, err
	}

	var state OCOState
	if err := json.Unmarshal([]byte(rawState), &state); err != nil {
		return OCOState{}, false, err
	}

	return state, true, nil
}

func (s *RedisStateStore) Save(ctx context.Context, key string, state OCOState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, payload, 0).Err()
}

func (s *RedisStateStore) AcquireProcessingLock(ctx context.Context, key string, ttl time.Duration, owner string) (bool, error) {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	return s.client.SetNX(ctx, processingLockKey(key), owner, ttl).Result()
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

func (s *RedisStateStore) ReleaseProcessingLock(ctx context.Context, key string, owner string) error {
	_, err := releaseLockScript.Run(ctx, s.client, []string{processingLockKey(key)}, owner).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	return nil
}

func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

func processingLockKey(stateKey string) string {
	return fmt.Sprintf("%s:processing-lock", stateKey)
}
