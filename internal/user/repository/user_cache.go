package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"classjudge/internal/common/cache"
	"classjudge/internal/common/db"
)

const (
	userInfoKeyPrefix = "user:info:"
	userNameKeyPrefix = "user:name:"

	userCacheTTL      = 30 * time.Minute
	userCacheEmptyTTL = 5 * time.Minute
)

// CachedUserRepository wraps a UserRepository with cache-aside reads.
// Reads inside a transaction bypass the cache so they observe their
// own uncommitted writes.
type CachedUserRepository struct {
	inner UserRepository
	cache cache.Cache
}

func NewCachedUserRepository(inner UserRepository, cacheClient cache.Cache) *CachedUserRepository {
	return &CachedUserRepository{inner: inner, cache: cacheClient}
}

func (r *CachedUserRepository) Create(ctx context.Context, tx db.Transaction, user *User) (int64, error) {
	id, err := r.inner.Create(ctx, tx, user)
	if err != nil {
		return 0, err
	}
	// A cached "no such user" entry for this username is now stale.
	if user != nil {
		_ = r.cache.Del(ctx, userNameKeyPrefix+user.Username)
	}
	return id, nil
}

func (r *CachedUserRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error) {
	if tx != nil {
		return r.inner.GetByID(ctx, tx, id)
	}
	key := fmt.Sprintf("%s%d", userInfoKeyPrefix, id)
	return r.getCached(ctx, key, func(ctx context.Context) (*User, error) {
		return r.inner.GetByID(ctx, nil, id)
	})
}

func (r *CachedUserRepository) GetByUsername(ctx context.Context, tx db.Transaction, username string) (*User, error) {
	if tx != nil {
		return r.inner.GetByUsername(ctx, tx, username)
	}
	return r.getCached(ctx, userNameKeyPrefix+username, func(ctx context.Context) (*User, error) {
		return r.inner.GetByUsername(ctx, nil, username)
	})
}

func (r *CachedUserRepository) ExistsByUsername(ctx context.Context, tx db.Transaction, username string) (bool, error) {
	return r.inner.ExistsByUsername(ctx, tx, username)
}

func (r *CachedUserRepository) getCached(ctx context.Context, key string, load func(context.Context) (*User, error)) (*User, error) {
	user, err := cache.GetWithCached(ctx, r.cache, key,
		userCacheTTL, userCacheEmptyTTL,
		func(u *User) bool { return u == nil },
		marshalUser, unmarshalUser,
		func(ctx context.Context) (*User, error) {
			u, err := load(ctx)
			if errors.Is(err, ErrUserNotFound) {
				return nil, nil
			}
			return u, err
		},
	)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func marshalUser(user *User) string {
	data, err := json.Marshal(user)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalUser(data string) (*User, error) {
	var user User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

var _ UserRepository = (*CachedUserRepository)(nil)
