package redis

import (
	"context"
	"math/rand"
	"time"

	"trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ProfileLoader fetches user profiles from a backing store (e.g. the
// platform API or a database).
type ProfileLoader interface {
	LoadProfile(ctx context.Context, userID string) (domain.Profile, error)
}

// ProfileDirectory caches profiles in Redis (hash per user) and falls
// back to a loader on cache miss.
// Profiles are stored as: HSET user:{userID}:profile name {displayName} avatar {avatarRef}
type ProfileDirectory struct {
	client *redis.Client
	loader ProfileLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewProfileDirectory(client *redis.Client, loader ProfileLoader, ttl time.Duration) *ProfileDirectory {
	return &ProfileDirectory{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *ProfileDirectory) Lookup(ctx context.Context, userID string) (domain.Profile, error) {
	key := d.key(userID)

	fields, err := d.client.HGetAll(ctx, key).Result()
	if err == nil && len(fields) > 0 {
		return profileFromHash(userID, fields), nil
	}

	result, err, _ := d.sf.Do(userID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		fields, err := d.client.HGetAll(ctx, key).Result()
		if err == nil && len(fields) > 0 {
			return profileFromHash(userID, fields), nil
		}

		profile, err := d.loader.LoadProfile(ctx, userID)
		if err != nil {
			return domain.Profile{}, err
		}

		pipe := d.client.Pipeline()
		pipe.HSet(ctx, key, "name", profile.DisplayName, "avatar", profile.AvatarRef)
		if ttl := d.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return profile, nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return result.(domain.Profile), nil
}

func (d *ProfileDirectory) key(userID string) string {
	return "user:" + userID + ":profile"
}

func profileFromHash(userID string, fields map[string]string) domain.Profile {
	return domain.Profile{
		UserID:      userID,
		DisplayName: fields["name"],
		AvatarRef:   fields["avatar"],
	}
}

func (d *ProfileDirectory) ttlWithJitter() time.Duration {
	if d.ttl <= 0 {
		return 0
	}
	jitterMax := int64(d.ttl) / 10
	return d.ttl + time.Duration(d.rnd.Int63n(jitterMax+1))
}
