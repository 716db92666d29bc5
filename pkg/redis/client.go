package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/okulsoft/absence-dispatch/environments"
	"github.com/okulsoft/absence-dispatch/internal/domain"
	"github.com/okulsoft/absence-dispatch/pkg/logger"
)

type Client struct {
	client valkey.Client
}

const (
	sentNotificationKeyPrefix = "absence_sent:"
	sentNotificationTTL       = 48 * time.Hour
)

func sentKey(studentID int64, dateKey string) string {
	return fmt.Sprintf("%s%s:%d", sentNotificationKeyPrefix, dateKey, studentID)
}

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

// MarkSent caches a delivered notification so eligibility checks can skip the
// database for already-handled students. The store remains the source of
// truth; a cache miss just falls through to SQL.
func (c *Client) MarkSent(ctx context.Context, studentID int64, dateKey, providerMessageID string, sentAt time.Time) error {
	cache := domain.SentNotificationCache{
		ProviderMessageID: providerMessageID,
		SentAt:            sentAt,
	}

	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	key := sentKey(studentID, dateKey)

	err = c.client.Do(ctx, c.client.B().Set().Key(key).Value(string(data)).Ex(sentNotificationTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache sent notification: %w", err)
	}

	logger.Debugf("Cached sent notification %s -> %s", key, providerMessageID)

	return nil
}

// IsSent reports whether a sent marker exists for (student, date). Errors are
// returned so the caller can decide to fall back to the store.
func (c *Client) IsSent(ctx context.Context, studentID int64, dateKey string) (bool, error) {
	key := sentKey(studentID, dateKey)

	result := c.client.Do(ctx, c.client.B().Exists().Key(key).Build())
	if result.Error() != nil {
		return false, fmt.Errorf("failed to check sent marker: %w", result.Error())
	}

	n, err := result.AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to read sent marker: %w", err)
	}

	return n > 0, nil
}

// GetSentMarkers returns all cached sent markers for a date, keyed by
// student id.
func (c *Client) GetSentMarkers(ctx context.Context, dateKey string) (map[int64]*domain.SentNotificationCache, error) {
	pattern := fmt.Sprintf("%s%s:*", sentNotificationKeyPrefix, dateKey)

	var keys []string
	var cursor uint64
	for {
		result := c.client.Do(ctx, c.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build())
		if result.Error() != nil {
			return nil, fmt.Errorf("failed to scan cache keys: %w", result.Error())
		}

		scanResult, err := result.AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to parse scan result: %w", err)
		}

		keys = append(keys, scanResult.Elements...)
		cursor = scanResult.Cursor

		if cursor == 0 {
			break
		}
	}

	markers := make(map[int64]*domain.SentNotificationCache)

	for _, key := range keys {
		getResult := c.client.Do(ctx, c.client.B().Get().Key(key).Build())
		if getResult.Error() != nil {
			continue
		}

		data, err := getResult.ToString()
		if err != nil {
			continue
		}

		var cache domain.SentNotificationCache
		if err := json.Unmarshal([]byte(data), &cache); err != nil {
			continue
		}

		var studentID int64
		var date string

		if _, err := fmt.Sscanf(key, sentNotificationKeyPrefix+"%10s:%d", &date, &studentID); err != nil {
			logger.Warnf("failed to parse student id from redis key %q: %v", key, err)
			continue
		}

		markers[studentID] = &cache
	}

	return markers, nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
