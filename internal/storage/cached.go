package storage

import (
	"context"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/agentkpi/internal/cache"
)

const profileKind = "profile"

// CachedStore memoizes profile lookups for a short TTL. Every write
// through the store drops the affected profile. Entries are keyed on the
// trimmed username, the form Users stores.
type CachedStore struct {
	Store
	profiles *cache.Cache[Profile]
}

func NewCachedStore(store Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store:    store,
		profiles: cache.New[Profile](ttl),
	}
}

func (c *CachedStore) GetProfile(ctx context.Context, username string) (Profile, error) {
	key := cache.Key{Kind: profileKind, Selector: strings.TrimSpace(username)}
	return c.profiles.Get(key, func() (Profile, error) {
		return c.Store.GetProfile(ctx, username)
	})
}

func (c *CachedStore) SetPassword(ctx context.Context, username, password string, mustReset bool) error {
	defer c.profiles.Invalidate(profileKind, strings.TrimSpace(username))
	return c.Store.SetPassword(ctx, username, password, mustReset)
}

func (c *CachedStore) CreateUser(ctx context.Context, u NewUser) error {
	defer c.profiles.Invalidate(profileKind, strings.TrimSpace(u.Username))
	return c.Store.CreateUser(ctx, u)
}

func (c *CachedStore) DeleteUser(ctx context.Context, username, actingUser string) error {
	defer c.profiles.Invalidate(profileKind, strings.TrimSpace(username))
	return c.Store.DeleteUser(ctx, username, actingUser)
}
