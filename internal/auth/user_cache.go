package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

// UserCacheKeyPrefix namespaces cached user documents away from the store's
// own keys.
const UserCacheKeyPrefix = "cache:user:"

// UserLookup is the uncached source of user documents.
type UserLookup interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

// UserCache fronts user-by-email lookups with a short-TTL redis cache. A
// scanner station resolves the same acting user on every scan; there is no
// reason to hit the document store each time. Misses and cache failures fall
// through to the store.
type UserCache struct {
	Client *redis.Client
	Source UserLookup
	Logger *logger.Logger
	TTL    time.Duration
}

func NewUserCache(client *redis.Client, source UserLookup, log *logger.Logger) *UserCache {
	return &UserCache{
		Client: client,
		Source: source,
		Logger: log,
		TTL:    30 * time.Second,
	}
}

func (c *UserCache) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	key := UserCacheKeyPrefix + email

	if raw, err := c.Client.Get(ctx, key).Result(); err == nil {
		var user models.User
		if err := json.Unmarshal([]byte(raw), &user); err == nil {
			return &user, nil
		}
		// Unreadable cache entry: drop it and refetch.
		_ = c.Client.Del(ctx, key).Err()
	} else if err != redis.Nil && c.Logger != nil {
		c.Logger.Warn("AUTH", fmt.Sprintf("user cache read failed for %s: %v", email, err))
	}

	user, err := c.Source.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if buf, err := json.Marshal(user); err == nil {
		if err := c.Client.Set(ctx, key, buf, c.TTL).Err(); err != nil && c.Logger != nil {
			c.Logger.Warn("AUTH", fmt.Sprintf("user cache write failed for %s: %v", email, err))
		}
	}

	return user, nil
}

// Invalidate drops one cached user, for when an admin edits an account and
// the stale permissions must not outlive the TTL.
func (c *UserCache) Invalidate(ctx context.Context, email string) {
	if err := c.Client.Del(ctx, UserCacheKeyPrefix+email).Err(); err != nil && c.Logger != nil {
		c.Logger.Warn("AUTH", fmt.Sprintf("user cache invalidate failed for %s: %v", email, err))
	}
}
