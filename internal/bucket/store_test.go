package bucket

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3mock/s3mock/internal/lock"
	"github.com/s3mock/s3mock/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	fs, err := storage.New(t.TempDir())
	require.NoError(t, err)
	return NewStore(fs, lock.NewRegistry(), "us-east-1")
}

func TestCreateAndGetBucket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta, err := s.CreateBucket(ctx, "test-bucket", "", false)
	require.NoError(t, err)
	assert.Equal(t, "test-bucket", meta.Name)
	assert.Equal(t, "us-east-1", meta.Region)
	assert.False(t, meta.CreatedAt.IsZero())
	assert.Empty(t, meta.VersioningStatus)

	got, err := s.GetBucket(ctx, "test-bucket")
	require.NoError(t, err)
	assert.Equal(t, meta.Name, got.Name)
	assert.True(t, s.BucketExists(ctx, "test-bucket"))
	assert.False(t, s.BucketExists(ctx, "other"))
}

func TestCreateBucketDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateBucket(ctx, "dup", "", false)
	require.NoError(t, err)

	_, err = s.CreateBucket(ctx, "dup", "", false)
	assert.ErrorIs(t, err, ErrBucketOwnedByYou)
}

func TestCreateBucketInvalidName(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateBucket(context.Background(), "Bad_Name", "", false)
	assert.ErrorIs(t, err, ErrInvalidBucketName)
}

func TestCreateBucketWithObjectLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta, err := s.CreateBucket(ctx, "locked", "", true)
	require.NoError(t, err)
	assert.True(t, meta.ObjectLockEnabled)
	assert.Equal(t, VersioningEnabled, meta.VersioningStatus)

	// Object-lock buckets cannot leave the Enabled state.
	err = s.SetVersioning(ctx, "locked", VersioningSuspended)
	assert.Error(t, err)

	cfg, err := s.GetObjectLock(ctx, "locked")
	require.NoError(t, err)
	assert.Equal(t, "Enabled", cfg.ObjectLockEnabled)
}

func TestListBuckets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		_, err := s.CreateBucket(ctx, name, "", false)
		require.NoError(t, err)
	}

	buckets, err := s.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, "alpha", buckets[0].Name)
	assert.Equal(t, "bravo", buckets[1].Name)
	assert.Equal(t, "charlie", buckets[2].Name)
}

func TestDeleteBucket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateBucket(ctx, "doomed", "", false)
	require.NoError(t, err)

	require.NoError(t, s.DeleteBucket(ctx, "doomed"))
	assert.False(t, s.BucketExists(ctx, "doomed"))

	assert.ErrorIs(t, s.DeleteBucket(ctx, "doomed"), ErrBucketNotFound)
}

func TestDeleteBucketNotEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateBucket(ctx, "occupied", "", false)
	require.NoError(t, err)

	// Any key directory in the bucket blocks deletion.
	dir, err := s.Dir("occupied")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "some-key"), 0o755))

	assert.ErrorIs(t, s.DeleteBucket(ctx, "occupied"), ErrBucketNotEmpty)
}

func TestVersioningRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateBucket(ctx, "versioned", "", false)
	require.NoError(t, err)

	require.NoError(t, s.SetVersioning(ctx, "versioned", VersioningEnabled))
	meta, err := s.GetBucket(ctx, "versioned")
	require.NoError(t, err)
	assert.Equal(t, VersioningEnabled, meta.VersioningStatus)

	require.NoError(t, s.SetVersioning(ctx, "versioned", VersioningSuspended))
	meta, err = s.GetBucket(ctx, "versioned")
	require.NoError(t, err)
	assert.Equal(t, VersioningSuspended, meta.VersioningStatus)

	assert.Error(t, s.SetVersioning(ctx, "versioned", "Paused"))
}

func TestBucketConfigurations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateBucket(ctx, "cfg", "", false)
	require.NoError(t, err)

	t.Run("policy", func(t *testing.T) {
		_, err := s.GetPolicy(ctx, "cfg")
		assert.ErrorIs(t, err, ErrNoSuchPolicy)

		require.NoError(t, s.SetPolicy(ctx, "cfg", `{"Version":"2012-10-17"}`))
		policy, err := s.GetPolicy(ctx, "cfg")
		require.NoError(t, err)
		assert.Equal(t, `{"Version":"2012-10-17"}`, policy)

		require.NoError(t, s.SetPolicy(ctx, "cfg", ""))
		_, err = s.GetPolicy(ctx, "cfg")
		assert.ErrorIs(t, err, ErrNoSuchPolicy)
	})

	t.Run("lifecycle", func(t *testing.T) {
		_, err := s.GetLifecycle(ctx, "cfg")
		assert.ErrorIs(t, err, ErrNoSuchLifecycle)

		cfg := &LifecycleConfig{Rules: []LifecycleRule{{ID: "expire", Status: "Enabled"}}}
		require.NoError(t, s.SetLifecycle(ctx, "cfg", cfg))
		got, err := s.GetLifecycle(ctx, "cfg")
		require.NoError(t, err)
		require.Len(t, got.Rules, 1)
		assert.Equal(t, "expire", got.Rules[0].ID)
	})

	t.Run("cors", func(t *testing.T) {
		_, err := s.GetCORS(ctx, "cfg")
		assert.ErrorIs(t, err, ErrNoSuchCORS)

		cfg := &CORSConfig{CORSRules: []CORSRule{{AllowedMethods: []string{"GET"}, AllowedOrigins: []string{"*"}}}}
		require.NoError(t, s.SetCORS(ctx, "cfg", cfg))
		got, err := s.GetCORS(ctx, "cfg")
		require.NoError(t, err)
		require.Len(t, got.CORSRules, 1)
	})

	t.Run("encryption", func(t *testing.T) {
		_, err := s.GetEncryption(ctx, "cfg")
		assert.ErrorIs(t, err, ErrNoSuchEncryption)

		cfg := &EncryptionConfig{SSEAlgorithm: "aws:kms", KMSMasterKeyID: "key-1"}
		require.NoError(t, s.SetEncryption(ctx, "cfg", cfg))
		got, err := s.GetEncryption(ctx, "cfg")
		require.NoError(t, err)
		assert.Equal(t, "aws:kms", got.SSEAlgorithm)
		assert.Equal(t, "key-1", got.KMSMasterKeyID)
	})

	t.Run("object lock on plain bucket", func(t *testing.T) {
		_, err := s.GetObjectLock(ctx, "cfg")
		assert.ErrorIs(t, err, ErrNoObjectLockConfig)

		err = s.SetObjectLock(ctx, "cfg", &ObjectLockConfig{ObjectLockEnabled: "Enabled"})
		assert.ErrorIs(t, err, ErrNoObjectLockConfig)
	})

	t.Run("ownership", func(t *testing.T) {
		require.NoError(t, s.SetOwnership(ctx, "cfg", "BucketOwnerEnforced"))
		meta, err := s.GetBucket(ctx, "cfg")
		require.NoError(t, err)
		assert.Equal(t, "BucketOwnerEnforced", meta.Ownership)
	})
}
