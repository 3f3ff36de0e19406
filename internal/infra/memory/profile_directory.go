package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"trivia-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// ProfileLoader fetches user profiles from a backing store (e.g. the
// platform API or a database).
type ProfileLoader interface {
	LoadProfile(ctx context.Context, userID string) (domain.Profile, error)
}

// ProfileDirectory caches profiles with TTL to avoid repeated lookups
// against the backing store.
type ProfileDirectory struct {
	loader ProfileLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedProfile
}

type cachedProfile struct {
	profile   domain.Profile
	expiresAt time.Time
}

func NewProfileDirectory(loader ProfileLoader, ttl time.Duration) *ProfileDirectory {
	return &ProfileDirectory{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedProfile),
	}
}

func (d *ProfileDirectory) Lookup(ctx context.Context, userID string) (domain.Profile, error) {
	now := d.clock()

	d.mu.RLock()
	if entry, ok := d.cache[userID]; ok && entry.expiresAt.After(now) {
		d.mu.RUnlock()
		return entry.profile, nil
	}
	d.mu.RUnlock()

	result, err, _ := d.sf.Do(userID, func() (interface{}, error) {
		now := d.clock()
		d.mu.RLock()
		if entry, ok := d.cache[userID]; ok && entry.expiresAt.After(now) {
			d.mu.RUnlock()
			return entry.profile, nil
		}
		d.mu.RUnlock()

		profile, err := d.loader.LoadProfile(ctx, userID)
		if err != nil {
			return domain.Profile{}, err
		}

		d.mu.Lock()
		d.cache[userID] = cachedProfile{
			profile:   profile,
			expiresAt: now.Add(d.ttlWithJitter()),
		}
		d.mu.Unlock()
		return profile, nil
	})
	if err != nil {
		return domain.Profile{}, err
	}
	return result.(domain.Profile), nil
}

func (d *ProfileDirectory) ttlWithJitter() time.Duration {
	if d.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(d.ttl) / 10
	return d.ttl + time.Duration(d.rnd.Int63n(jitterMax+1))
}

// StaticProfileLoader serves profiles from an in-memory map. With
// fallback enabled, unknown users get a placeholder profile instead of
// an error, which keeps local development usable without a directory
// backend.
type StaticProfileLoader struct {
	profiles map[string]domain.Profile
	fallback bool
}

func NewStaticProfileLoader(profiles map[string]domain.Profile, fallback bool) *StaticProfileLoader {
	return &StaticProfileLoader{profiles: profiles, fallback: fallback}
}

func (l *StaticProfileLoader) LoadProfile(_ context.Context, userID string) (domain.Profile, error) {
	if profile, ok := l.profiles[userID]; ok {
		return profile, nil
	}
	if l.fallback {
		return domain.Profile{
			UserID:      userID,
			DisplayName: "unknown_" + userID,
			AvatarRef:   "avatar:unknown",
		}, nil
	}
	return domain.Profile{}, domain.ErrProfileNotFound
}
