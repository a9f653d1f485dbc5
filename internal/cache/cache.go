// Package cache is the key-value cache in front of read-heavy queries.
// Redis backs it in production; MemoryCache serves single-process setups.
package cache

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Cache stores opaque byte values with a time to live.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// TTL tiers.
const (
	TTLShort    = time.Minute
	TTLMedium   = 5 * time.Minute
	TTLLong     = 15 * time.Minute
	TTLHour     = time.Hour
	TTLVeryLong = 24 * time.Hour
)

// Key prefixes. List keys append their query parameters so one pattern
// delete drops every cached page.
const (
	KeyBooksAll           = "books:all"
	KeyBorrowRecords      = "borrow:records"
	KeyUsersAll           = "users:all"
	KeyAnalyticsDashboard = "analytics:dashboard"
	KeyAnalyticsTrends    = "analytics:trends"
	KeyAnalyticsStats     = "analytics:stats"
)

// BookDetail is the key for a single book.
func BookDetail(id string) string { return "books:detail:" + id }

// UserDetail is the key for a single user.
func UserDetail(id string) string { return "users:detail:" + id }

// FeaturedBooks is the key for the featured shelf. It sits under
// KeyBooksAll so every catalog or stock change drops it.
func FeaturedBooks(limit int) string { return ListKey(KeyBooksAll, "featured", limit) }

// AnalyticsStats is the key for one section of the statistics feed.
func AnalyticsStats(section string) string { return KeyAnalyticsStats + ":" + section }

// BorrowDetail is the key for a single borrow record.
func BorrowDetail(id string) string { return "borrow:detail:" + id }

// ListKey appends query parameters to a list prefix.
func ListKey(prefix string, params ...interface{}) string {
	key := prefix
	for i := 0; i+1 < len(params); i += 2 {
		key += fmt.Sprintf(":%v:%v", params[i], params[i+1])
	}
	return key
}

// Pattern matches every key under prefix, including the bare prefix.
func Pattern(prefix string) string { return prefix + "*" }

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Fetch returns the cached value for key or calls load and caches its
// result. Cache failures degrade to calling load.
func Fetch[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if c != nil {
		if raw, ok, err := c.Get(ctx, key); err == nil && ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		}
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if c != nil {
		if raw, err := json.Marshal(v); err == nil {
			_ = c.Set(ctx, key, raw, ttl)
		}
	}
	return v, nil
}

// Invalidate deletes exact keys and every key under the given prefixes.
func Invalidate(ctx context.Context, c Cache, keys []string, prefixes ...string) error {
	if c == nil {
		return nil
	}
	if len(keys) > 0 {
		if err := c.Delete(ctx, keys...); err != nil {
			return fmt.Errorf("delete cache keys: %w", err)
		}
	}
	for _, p := range prefixes {
		if _, err := c.DeletePattern(ctx, Pattern(p)); err != nil {
			return fmt.Errorf("delete cache pattern %s: %w", p, err)
		}
	}
	return nil
}
