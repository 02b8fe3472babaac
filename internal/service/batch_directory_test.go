package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-announcement-api/pkg/errors"
)

type memoryCacheRepo struct {
	values map[string][]byte
	getErr error
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

type countingBatchStore struct {
	existing map[string]bool
	members  map[string]*string
	calls    int
	err      error
}

func (s *countingBatchStore) Exists(ctx context.Context, id string) (bool, error) {
	s.calls++
	return s.existing[id], s.err
}

func (s *countingBatchStore) CurrentBatchID(ctx context.Context, userID string) (*string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	batchID, ok := s.members[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return batchID, nil
}

func TestBatchDirectoryCachesPositiveExistence(t *testing.T) {
	store := &countingBatchStore{existing: map[string]bool{"b1": true}}
	cache := NewCacheService(newMemoryCacheRepo(), NewMetricsService(), time.Minute, nil, true)
	directory := NewBatchDirectory(store, store, cache, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := directory.BatchExists(ctx, "b1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, store.calls)

	for i := 0; i < 2; i++ {
		ok, err := directory.BatchExists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 3, store.calls)
}

func TestBatchDirectoryStudentMembership(t *testing.T) {
	b1 := "b1"
	store := &countingBatchStore{members: map[string]*string{"s1": &b1, "s2": nil}}
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	directory := NewBatchDirectory(store, store, cache, time.Minute, nil)
	ctx := context.Background()

	batchID, err := directory.StudentBatchID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, batchID)
	assert.Equal(t, "b1", *batchID)

	batchID, err = directory.StudentBatchID(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, batchID)

	batchID, err = directory.StudentBatchID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, batchID)
	assert.Equal(t, 3, store.calls)
}

func TestBatchDirectoryNeverCachesMembership(t *testing.T) {
	b1, b2 := "b1", "b2"
	store := &countingBatchStore{members: map[string]*string{"s1": &b1}}
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	directory := NewBatchDirectory(store, store, cache, time.Minute, nil)
	ctx := context.Background()

	batchID, err := directory.StudentBatchID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "b1", *batchID)

	store.members["s1"] = &b2

	batchID, err = directory.StudentBatchID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "b2", *batchID)
	assert.Equal(t, 2, store.calls)
	assert.Empty(t, repo.values)
}

func TestBatchDirectoryWithoutCacheReadsThrough(t *testing.T) {
	store := &countingBatchStore{existing: map[string]bool{"b1": true}}
	directory := NewBatchDirectory(store, store, nil, time.Minute, nil)

	for i := 0; i < 2; i++ {
		ok, err := directory.BatchExists(context.Background(), "b1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 2, store.calls)
}

func TestBatchDirectorySurfacesStoreErrors(t *testing.T) {
	store := &countingBatchStore{err: errors.New("timeout")}
	directory := NewBatchDirectory(store, store, nil, time.Minute, nil)

	_, err := directory.BatchExists(context.Background(), "b1")
	assert.Error(t, err)
	_, err = directory.StudentBatchID(context.Background(), "s1")
	assert.Error(t, err)
}

func TestCacheServiceFallsBackOnCacheErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	repo.getErr = errors.New("redis unavailable")
	cache := NewCacheService(repo, nil, 0, nil, true)
	store := &countingBatchStore{existing: map[string]bool{"b1": true}}
	directory := NewBatchDirectory(store, store, cache, time.Minute, nil)

	ok, err := directory.BatchExists(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, ok)

	disabled := NewCacheService(repo, nil, 0, nil, false)
	assert.False(t, disabled.Enabled())
	hit, err := disabled.Get(context.Background(), "k", new(string))
	require.NoError(t, err)
	assert.False(t, hit)
}
