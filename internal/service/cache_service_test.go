package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/thesis-lifecycle-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}}
}

func (r *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return r.getErr
	}
	raw, ok := r.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (r *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = raw
	return nil
}

func (r *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range r.values {
		if strings.HasPrefix(key, prefix) {
			delete(r.values, key)
		}
	}
	return nil
}

func TestCacheServiceRoundTripAndInvalidate(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, NewMetricsService(), time.Minute, nil, true)
	ctx := context.Background()

	var got []string
	assert.False(t, svc.Get(ctx, applicationsCacheKey, &got))

	svc.Set(ctx, applicationsCacheKey, []string{"app-1"}, 0)
	assert.True(t, svc.Get(ctx, applicationsCacheKey, &got))
	assert.Equal(t, []string{"app-1"}, got)

	svc.Invalidate(ctx, applicationsCachePattern)
	assert.False(t, svc.Get(ctx, applicationsCacheKey, &got))
}

func TestCacheServiceDisabledIsNoop(t *testing.T) {
	repo := newMemoryCacheRepo()
	svc := NewCacheService(repo, nil, 0, nil, false)
	svc.Set(context.Background(), applicationsCacheKey, []string{"x"}, 0)
	assert.Empty(t, repo.values)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Get(context.Background(), applicationsCacheKey, &[]string{}))
}

func TestCacheServiceBackendErrorIsMiss(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("connection reset")
	svc := NewCacheService(repo, nil, 0, nil, true)
	assert.False(t, svc.Get(context.Background(), applicationsCacheKey, &[]string{}))
}
