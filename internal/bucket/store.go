package bucket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s3mock/s3mock/internal/lock"
	"github.com/s3mock/s3mock/internal/storage"
)

const metadataFile = "bucketMetadata.json"

// Store persists buckets as directories under the filesystem root with a
// bucketMetadata.json sidecar per bucket. The set of directories is the
// bucket listing; there is no separate index.
type Store struct {
	fs     *storage.Filesystem
	locks  *lock.Registry
	region string
}

// NewStore creates a bucket store on top of fs. region is advertised in
// LocationConstraint responses and recorded on new buckets.
func NewStore(fs *storage.Filesystem, locks *lock.Registry, region string) *Store {
	return &Store{fs: fs, locks: locks, region: region}
}

func (s *Store) bucketDir(name string) (string, error) {
	return s.fs.Path(name)
}

func (s *Store) metadataPath(name string) (string, error) {
	return s.fs.Path(name, metadataFile)
}

// CreateBucket creates the bucket directory and sidecar. objectLock enables
// object-lock at creation time, which implicitly enables versioning.
func (s *Store) CreateBucket(ctx context.Context, name, ownership string, objectLock bool) (*Metadata, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lock.Key(name))
	defer unlock()

	dir, err := s.bucketDir(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err == nil {
		// Single-owner emulator: every existing bucket is "yours".
		return nil, ErrBucketOwnedByYou
	}

	meta := &Metadata{
		Name:      name,
		CreatedAt: time.Now().UTC(),
		Region:    s.region,
		Ownership: ownership,
	}
	if objectLock {
		meta.ObjectLockEnabled = true
		meta.ObjectLock = &ObjectLockConfig{ObjectLockEnabled: "Enabled"}
		meta.VersioningStatus = VersioningEnabled
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}

	metaPath, err := s.metadataPath(name)
	if err != nil {
		return nil, err
	}
	if err := s.fs.WriteJSON(metaPath, meta); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"bucket":     name,
		"objectLock": objectLock,
	}).Debug("Bucket created")

	return meta, nil
}

// DeleteBucket removes the bucket if it holds no objects and no in-progress
// multipart uploads. Object key directories are removed by the object store
// when their last version disappears, so any remaining subdirectory means
// the bucket is not empty.
func (s *Store) DeleteBucket(ctx context.Context, name string) error {
	unlock := s.locks.Lock(lock.Key(name))
	defer unlock()

	dir, err := s.bucketDir(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrBucketNotFound
	}

	subdirs, err := s.fs.ListDirs(dir)
	if err != nil {
		return err
	}
	if len(subdirs) > 0 {
		return ErrBucketNotEmpty
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove bucket directory: %w", err)
	}

	logrus.WithField("bucket", name).Debug("Bucket deleted")
	return nil
}

// GetBucket reads the bucket metadata sidecar.
func (s *Store) GetBucket(ctx context.Context, name string) (*Metadata, error) {
	metaPath, err := s.metadataPath(name)
	if err != nil {
		return nil, ErrBucketNotFound
	}

	var meta Metadata
	if err := s.fs.ReadJSON(metaPath, &meta); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrBucketNotFound
		}
		return nil, err
	}
	return &meta, nil
}

// BucketExists reports whether the bucket directory exists.
func (s *Store) BucketExists(ctx context.Context, name string) bool {
	metaPath, err := s.metadataPath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(metaPath)
	return err == nil
}

// ListBuckets enumerates the bucket directories, sorted by name.
func (s *Store) ListBuckets(ctx context.Context) ([]*Metadata, error) {
	names, err := s.fs.ListDirs(s.fs.Root())
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	buckets := make([]*Metadata, 0, len(names))
	for _, name := range names {
		meta, err := s.GetBucket(ctx, name)
		if err != nil {
			// A directory without a sidecar is not a bucket.
			continue
		}
		buckets = append(buckets, meta)
	}
	return buckets, nil
}

// update applies fn to the bucket metadata under the bucket write lock and
// persists the result.
func (s *Store) update(ctx context.Context, name string, fn func(*Metadata) error) (*Metadata, error) {
	unlock := s.locks.Lock(lock.Key(name))
	defer unlock()

	meta, err := s.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := fn(meta); err != nil {
		return nil, err
	}

	metaPath, err := s.metadataPath(name)
	if err != nil {
		return nil, err
	}
	if err := s.fs.WriteJSON(metaPath, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// SetVersioning sets the bucket versioning status. Buckets with object-lock
// enabled cannot leave the Enabled state.
func (s *Store) SetVersioning(ctx context.Context, name, status string) error {
	if status != VersioningEnabled && status != VersioningSuspended {
		return fmt.Errorf("versioning status must be %q or %q", VersioningEnabled, VersioningSuspended)
	}
	_, err := s.update(ctx, name, func(m *Metadata) error {
		if m.ObjectLockEnabled && status != VersioningEnabled {
			return fmt.Errorf("versioning cannot be suspended on an object-lock bucket")
		}
		m.VersioningStatus = status
		return nil
	})
	return err
}

// SetLifecycle stores or clears the lifecycle configuration.
func (s *Store) SetLifecycle(ctx context.Context, name string, cfg *LifecycleConfig) error {
	_, err := s.update(ctx, name, func(m *Metadata) error {
		m.Lifecycle = cfg
		return nil
	})
	return err
}

// GetLifecycle returns the lifecycle configuration.
func (s *Store) GetLifecycle(ctx context.Context, name string) (*LifecycleConfig, error) {
	meta, err := s.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	if meta.Lifecycle == nil {
		return nil, ErrNoSuchLifecycle
	}
	return meta.Lifecycle, nil
}

// SetPolicy stores or clears the bucket policy. The policy document is an
// opaque JSON blob; it is persisted but never enforced.
func (s *Store) SetPolicy(ctx context.Context, name, policy string) error {
	_, err := s.update(ctx, name, func(m *Metadata) error {
		m.Policy = policy
		return nil
	})
	return err
}

// GetPolicy returns the bucket policy document.
func (s *Store) GetPolicy(ctx context.Context, name string) (string, error) {
	meta, err := s.GetBucket(ctx, name)
	if err != nil {
		return "", err
	}
	if meta.Policy == "" {
		return "", ErrNoSuchPolicy
	}
	return meta.Policy, nil
}

// SetCORS stores or clears the CORS configuration.
func (s *Store) SetCORS(ctx context.Context, name string, cfg *CORSConfig) error {
	_, err := s.update(ctx, name, func(m *Metadata) error {
		m.CORS = cfg
		return nil
	})
	return err
}

// GetCORS returns the CORS configuration.
func (s *Store) GetCORS(ctx context.Context, name string) (*CORSConfig, error) {
	meta, err := s.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	if meta.CORS == nil {
		return nil, ErrNoSuchCORS
	}
	return meta.CORS, nil
}

// SetACL stores the bucket ACL.
func (s *Store) SetACL(ctx context.Context, name string, acl *ACL) error {
	_, err := s.update(ctx, name, func(m *Metadata) error {
		m.ACL = acl
		return nil
	})
	return err
}

// SetOwnership stores or clears the ownership controls setting.
func (s *Store) SetOwnership(ctx context.Context, name, ownership string) error {
	_, err := s.update(ctx, name, func(m *Metadata) error {
		m.Ownership = ownership
		return nil
	})
	return err
}

// SetEncryption stores or clears the default encryption configuration.
func (s *Store) SetEncryption(ctx context.Context, name string, cfg *EncryptionConfig) error {
	_, err := s.update(ctx, name, func(m *Metadata) error {
		m.Encryption = cfg
		return nil
	})
	return err
}

// GetEncryption returns the default encryption configuration.
func (s *Store) GetEncryption(ctx context.Context, name string) (*EncryptionConfig, error) {
	meta, err := s.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	if meta.Encryption == nil {
		return nil, ErrNoSuchEncryption
	}
	return meta.Encryption, nil
}

// SetObjectLock stores the object-lock configuration. Only buckets created
// with object-lock enabled accept one.
func (s *Store) SetObjectLock(ctx context.Context, name string, cfg *ObjectLockConfig) error {
	_, err := s.update(ctx, name, func(m *Metadata) error {
		if !m.ObjectLockEnabled {
			return ErrNoObjectLockConfig
		}
		m.ObjectLock = cfg
		return nil
	})
	return err
}

// GetObjectLock returns the object-lock configuration.
func (s *Store) GetObjectLock(ctx context.Context, name string) (*ObjectLockConfig, error) {
	meta, err := s.GetBucket(ctx, name)
	if err != nil {
		return nil, err
	}
	if !meta.ObjectLockEnabled || meta.ObjectLock == nil {
		return nil, ErrNoObjectLockConfig
	}
	return meta.ObjectLock, nil
}

// Dir returns the bucket directory path for use by the object store.
func (s *Store) Dir(name string) (string, error) {
	dir, err := s.bucketDir(name)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", ErrBucketNotFound
	}
	return dir, nil
}
