package object

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s3mock/s3mock/internal/lock"
	"github.com/s3mock/s3mock/internal/storage"
)

// On-disk names inside a key directory. Version ids are hex (or "null"), so
// they can never collide with the uploads directory or the currentVersion
// pointer.
const (
	binaryDataFile     = "binaryData"
	metadataFile       = "objectMetadata.json"
	currentVersionFile = "currentVersion"
	uploadsDirName     = "uploads"
)

// Versioning status strings, as stored on the bucket.
const (
	versioningEnabled   = "Enabled"
	versioningSuspended = "Suspended"
)

// Store persists object versions under
// <root>/<bucket>/<url-encoded-key>/<versionId>/ with a JSON metadata
// sidecar per version and a currentVersion pointer file per key.
type Store struct {
	fs    *storage.Filesystem
	locks *lock.Registry
}

// NewStore creates an object store on top of fs.
func NewStore(fs *storage.Filesystem, locks *lock.Registry) *Store {
	return &Store{fs: fs, locks: locks}
}

func (s *Store) keyDir(bucket, key string) (string, error) {
	return s.fs.Path(bucket, storage.EncodeKey(key))
}

func (s *Store) versionDir(bucket, key, versionID string) (string, error) {
	return s.fs.Path(bucket, storage.EncodeKey(key), versionID)
}

// PutInput carries everything a PutObject needs besides the body stream.
// Versioning is the bucket's versioning status string.
type PutInput struct {
	Bucket string
	Key    string
	Body   io.Reader

	// ContentMD5 is the base64 Content-MD5 header value, if supplied.
	ContentMD5 string
	// ChecksumAlgorithm/ChecksumValue carry the optional additional
	// checksum (x-amz-sdk-checksum-algorithm and its value header).
	ChecksumAlgorithm string
	ChecksumValue     string

	ContentType        string
	ContentEncoding    string
	ContentLanguage    string
	ContentDisposition string
	CacheControl       string
	Expires            string

	UserMetadata map[string]string
	Tags         []Tag
	ACL          *ACL
	SSE          *SSEInfo
	Retention    *Retention
	LegalHold    string
	StorageClass string

	Versioning string
}

// ValidateKey enforces the S3 key length limits: 1 to MaxKeyLength bytes.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: object key must not be empty", ErrInvalidRequest)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: object key is %d bytes, the maximum is %d", ErrKeyTooLong, len(key), MaxKeyLength)
	}
	return nil
}

// ValidateUserMetadata enforces the 2 KiB total size cap.
func ValidateUserMetadata(meta map[string]string) error {
	total := 0
	for k, v := range meta {
		total += len(k) + len(v)
	}
	if total > MaxUserMetadataBytes {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrMetadataTooLarge, total, MaxUserMetadataBytes)
	}
	return nil
}

// ValidateTags enforces the tag set limits.
func ValidateTags(tags []Tag) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("%w: at most %d tags allowed", ErrInvalidTag, MaxTags)
	}
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t.Key == "" || len(t.Key) > MaxTagKeyLen {
			return fmt.Errorf("%w: tag key must be 1-%d characters", ErrInvalidTag, MaxTagKeyLen)
		}
		if len(t.Value) > MaxTagValueLen {
			return fmt.Errorf("%w: tag value must be at most %d characters", ErrInvalidTag, MaxTagValueLen)
		}
		if _, dup := seen[t.Key]; dup {
			return fmt.Errorf("%w: duplicate tag key %q", ErrInvalidTag, t.Key)
		}
		seen[t.Key] = struct{}{}
	}
	return nil
}

// PutObject streams the body to disk, computing MD5 (and the requested
// additional checksum) in a single pass, then writes the metadata sidecar
// and repoints currentVersion. Digests are validated before the staged file
// replaces any existing version.
func (s *Store) PutObject(ctx context.Context, in PutInput) (*Metadata, error) {
	if err := ValidateKey(in.Key); err != nil {
		return nil, err
	}
	if err := ValidateUserMetadata(in.UserMetadata); err != nil {
		return nil, err
	}
	if err := ValidateTags(in.Tags); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lock.Key(in.Bucket, in.Key))
	defer unlock()

	versionID := NullVersionID
	if in.Versioning == versioningEnabled {
		versionID = NewVersionID()
	}

	dir, err := s.versionDir(in.Bucket, in.Key, versionID)
	if err != nil {
		return nil, err
	}

	md5Hash := md5.New()
	writers := []io.Writer{md5Hash}

	var checksumHash hash.Hash
	if in.ChecksumAlgorithm != "" {
		checksumHash, err = NewChecksumHash(in.ChecksumAlgorithm)
		if err != nil {
			return nil, err
		}
		writers = append(writers, checksumHash)
	}

	pending, err := s.fs.StageStream(dir, binaryDataFile, in.Body, writers...)
	if err != nil {
		return nil, err
	}

	abort := func() {
		pending.Abort()
		// A brand-new version dir holds nothing else; drop it so the
		// failed PUT leaves no trace.
		if _, statErr := os.Stat(filepath.Join(dir, binaryDataFile)); os.IsNotExist(statErr) {
			os.RemoveAll(dir)
		}
		s.removeKeyDirIfEmpty(in.Bucket, in.Key)
	}

	md5Sum := md5Hash.Sum(nil)
	if in.ContentMD5 != "" {
		expected, decodeErr := base64.StdEncoding.DecodeString(in.ContentMD5)
		if decodeErr != nil || !bytes.Equal(expected, md5Sum) {
			abort()
			return nil, fmt.Errorf("%w: Content-MD5 does not match body", ErrBadDigest)
		}
	}

	var checksum *ChecksumInfo
	if checksumHash != nil {
		computed := base64.StdEncoding.EncodeToString(checksumHash.Sum(nil))
		if in.ChecksumValue != "" && in.ChecksumValue != computed {
			abort()
			return nil, fmt.Errorf("%w: %s checksum does not match body", ErrBadDigest, in.ChecksumAlgorithm)
		}
		checksum = &ChecksumInfo{Algorithm: in.ChecksumAlgorithm, Value: computed}
	}

	if err := pending.Commit(); err != nil {
		pending.Abort()
		return nil, err
	}

	acl := in.ACL
	if acl == nil {
		acl = DefaultACL()
	}

	meta := &Metadata{
		Bucket:       in.Bucket,
		Key:          in.Key,
		VersionID:    versionID,
		Size:         pending.Size(),
		LastModified: time.Now().UTC(),
		ETag:         hex.EncodeToString(md5Sum),
		StorageClass: in.StorageClass,

		ContentType:        in.ContentType,
		ContentEncoding:    in.ContentEncoding,
		ContentLanguage:    in.ContentLanguage,
		ContentDisposition: in.ContentDisposition,
		CacheControl:       in.CacheControl,
		Expires:            in.Expires,

		UserMetadata: in.UserMetadata,
		Tags:         in.Tags,
		ACL:          acl,
		LegalHold:    in.LegalHold,
		Retention:    in.Retention,
		SSE:          in.SSE,
		Checksum:     checksum,
	}

	if err := s.writeVersion(meta); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"bucket":    in.Bucket,
		"key":       in.Key,
		"versionId": versionID,
		"size":      meta.Size,
		"etag":      meta.ETag,
	}).Debug("Object stored")

	return meta, nil
}

// writeVersion persists the version sidecar and repoints currentVersion.
func (s *Store) writeVersion(meta *Metadata) error {
	dir, err := s.versionDir(meta.Bucket, meta.Key, meta.VersionID)
	if err != nil {
		return err
	}
	if err := s.fs.WriteJSON(filepath.Join(dir, metadataFile), meta); err != nil {
		return err
	}

	keyDir, err := s.keyDir(meta.Bucket, meta.Key)
	if err != nil {
		return err
	}
	return s.fs.WriteLine(filepath.Join(keyDir, currentVersionFile), meta.VersionID)
}

// currentVersionID reads the currentVersion pointer for a key.
func (s *Store) currentVersionID(bucket, key string) (string, error) {
	keyDir, err := s.keyDir(bucket, key)
	if err != nil {
		return "", ErrNoSuchKey
	}
	id, err := s.fs.ReadLine(filepath.Join(keyDir, currentVersionFile))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNoSuchKey
		}
		return "", err
	}
	return id, nil
}

// readVersionMeta loads the sidecar of one version.
func (s *Store) readVersionMeta(bucket, key, versionID string) (*Metadata, error) {
	dir, err := s.versionDir(bucket, key, versionID)
	if err != nil {
		return nil, ErrNoSuchVersion
	}
	var meta Metadata
	if err := s.fs.ReadJSON(filepath.Join(dir, metadataFile), &meta); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSuchVersion
		}
		return nil, err
	}
	return &meta, nil
}

// GetMetadata resolves a version (current when versionID is empty) and
// returns its metadata. The current version being a delete marker yields
// ErrNoSuchKey; an explicitly requested delete marker yields ErrDeleteMarker.
func (s *Store) GetMetadata(ctx context.Context, bucket, key, versionID string) (*Metadata, error) {
	unlock := s.locks.RLock(lock.Key(bucket, key))
	defer unlock()
	return s.getMetadataLocked(bucket, key, versionID)
}

func (s *Store) getMetadataLocked(bucket, key, versionID string) (*Metadata, error) {
	if versionID == "" {
		current, err := s.currentVersionID(bucket, key)
		if err != nil {
			return nil, err
		}
		meta, err := s.readVersionMeta(bucket, key, current)
		if err != nil {
			if errors.Is(err, ErrNoSuchVersion) {
				return nil, ErrNoSuchKey
			}
			return nil, err
		}
		if meta.DeleteMarker {
			return meta, ErrNoSuchKey
		}
		return meta, nil
	}

	meta, err := s.readVersionMeta(bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	if meta.DeleteMarker {
		return meta, ErrDeleteMarker
	}
	return meta, nil
}

// GetObject resolves a version and opens its bytes. The returned file is
// positioned at offset zero; callers seek for range reads and must close it.
func (s *Store) GetObject(ctx context.Context, bucket, key, versionID string) (*Metadata, *os.File, error) {
	unlock := s.locks.RLock(lock.Key(bucket, key))
	defer unlock()

	meta, err := s.getMetadataLocked(bucket, key, versionID)
	if err != nil {
		return meta, nil, err
	}

	dir, err := s.versionDir(bucket, key, meta.VersionID)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(dir, binaryDataFile))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open object data: %w", err)
	}
	return meta, f, nil
}

// DeleteResult reports what DeleteObject did.
type DeleteResult struct {
	DeleteMarker bool
	VersionID    string
}

// DeleteObject implements S3 delete semantics. With a version id the stored
// version is removed physically (subject to object-lock); without one the
// behavior depends on the bucket's versioning status. Deleting a missing key
// is not an error.
func (s *Store) DeleteObject(ctx context.Context, bucket, key, versionID, versioning string) (*DeleteResult, error) {
	unlock := s.locks.Lock(lock.Key(bucket, key))
	defer unlock()

	if versionID != "" {
		return s.deleteVersion(bucket, key, versionID)
	}

	switch versioning {
	case versioningEnabled:
		return s.insertDeleteMarker(bucket, key, NewVersionID())
	case versioningSuspended:
		// The null version is replaced by a null delete marker.
		if dir, err := s.versionDir(bucket, key, NullVersionID); err == nil {
			os.RemoveAll(dir)
		}
		return s.insertDeleteMarker(bucket, key, NullVersionID)
	default:
		result := &DeleteResult{}
		dir, err := s.versionDir(bucket, key, NullVersionID)
		if err != nil {
			return nil, err
		}
		if meta, err := s.readVersionMeta(bucket, key, NullVersionID); err == nil {
			if err := checkObjectLock(meta); err != nil {
				return nil, err
			}
		}
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove version: %w", err)
		}
		s.dropCurrentVersion(bucket, key)
		s.removeKeyDirIfEmpty(bucket, key)
		return result, nil
	}
}

// deleteVersion physically removes one version and repairs the
// currentVersion pointer.
func (s *Store) deleteVersion(bucket, key, versionID string) (*DeleteResult, error) {
	meta, err := s.readVersionMeta(bucket, key, versionID)
	if err != nil {
		if errors.Is(err, ErrNoSuchVersion) {
			// Deleting an absent version is a no-op, as on S3.
			return &DeleteResult{VersionID: versionID}, nil
		}
		return nil, err
	}
	if err := checkObjectLock(meta); err != nil {
		return nil, err
	}

	dir, err := s.versionDir(bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to remove version: %w", err)
	}

	result := &DeleteResult{DeleteMarker: meta.DeleteMarker, VersionID: versionID}

	current, err := s.currentVersionID(bucket, key)
	if err == nil && current == versionID {
		remaining, err := s.versionMetas(bucket, key)
		if err != nil {
			return nil, err
		}
		if len(remaining) == 0 {
			s.dropCurrentVersion(bucket, key)
			s.removeKeyDirIfEmpty(bucket, key)
		} else {
			// Newest remaining version becomes current.
			keyDir, err := s.keyDir(bucket, key)
			if err != nil {
				return nil, err
			}
			if err := s.fs.WriteLine(filepath.Join(keyDir, currentVersionFile), remaining[0].VersionID); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// checkObjectLock rejects physical deletion of versions under legal hold or
// unexpired retention.
func checkObjectLock(meta *Metadata) error {
	if meta.LegalHold == LegalHoldOn {
		return fmt.Errorf("%w: object version is under legal hold", ErrAccessDenied)
	}
	if meta.Retention != nil && time.Now().Before(meta.Retention.RetainUntilDate) {
		return fmt.Errorf("%w: object version is under %s retention until %s",
			ErrAccessDenied, meta.Retention.Mode, meta.Retention.RetainUntilDate.Format(time.RFC3339))
	}
	return nil
}

// insertDeleteMarker writes a zero-byte delete marker version and makes it
// current.
func (s *Store) insertDeleteMarker(bucket, key, versionID string) (*DeleteResult, error) {
	dir, err := s.versionDir(bucket, key, versionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.fs.WriteStream(dir, binaryDataFile, bytes.NewReader(nil)); err != nil {
		return nil, err
	}

	meta := &Metadata{
		Bucket:       bucket,
		Key:          key,
		VersionID:    versionID,
		Size:         0,
		LastModified: time.Now().UTC(),
		ETag:         hex.EncodeToString(md5.New().Sum(nil)),
		DeleteMarker: true,
		ACL:          DefaultACL(),
	}
	if err := s.writeVersion(meta); err != nil {
		return nil, err
	}
	return &DeleteResult{DeleteMarker: true, VersionID: versionID}, nil
}

func (s *Store) dropCurrentVersion(bucket, key string) {
	keyDir, err := s.keyDir(bucket, key)
	if err != nil {
		return
	}
	os.Remove(filepath.Join(keyDir, currentVersionFile))
}

// removeKeyDirIfEmpty removes the key directory once it holds no versions
// and no in-progress uploads, so empty keys do not keep a bucket non-empty.
func (s *Store) removeKeyDirIfEmpty(bucket, key string) {
	keyDir, err := s.keyDir(bucket, key)
	if err != nil {
		return
	}

	dirs, err := s.fs.ListDirs(keyDir)
	if err != nil {
		return
	}
	for _, d := range dirs {
		if d != uploadsDirName {
			return // a version remains
		}
		uploads, err := s.fs.ListDirs(filepath.Join(keyDir, uploadsDirName))
		if err != nil || len(uploads) > 0 {
			return // uploads in progress
		}
	}
	os.RemoveAll(keyDir)
}

// keyFromEncodedDir recovers the object key of a digest-shortened directory
// name from a version sidecar, or from an upload sidecar when only a
// multipart upload is in progress.
func (s *Store) keyFromEncodedDir(bucket, name string) (string, error) {
	keyDir, err := s.fs.Path(bucket, name)
	if err != nil {
		return "", err
	}
	dirs, err := s.fs.ListDirs(keyDir)
	if err != nil {
		return "", err
	}
	for _, d := range dirs {
		if d == uploadsDirName {
			continue
		}
		var meta Metadata
		if err := s.fs.ReadJSON(filepath.Join(keyDir, d, metadataFile), &meta); err == nil {
			return meta.Key, nil
		}
	}
	ids, err := s.fs.ListDirs(filepath.Join(keyDir, uploadsDirName))
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		var upload Upload
		if err := s.fs.ReadJSON(filepath.Join(keyDir, uploadsDirName, id, uploadMetadataFile), &upload); err == nil {
			return upload.Key, nil
		}
	}
	return "", ErrNoSuchKey
}

// versionMetas loads all version sidecars of a key, newest first.
func (s *Store) versionMetas(bucket, key string) ([]*Metadata, error) {
	keyDir, err := s.keyDir(bucket, key)
	if err != nil {
		return nil, err
	}
	names, err := s.fs.ListDirs(keyDir)
	if err != nil {
		return nil, err
	}

	var metas []*Metadata
	for _, name := range names {
		if name == uploadsDirName {
			continue
		}
		meta, err := s.readVersionMeta(bucket, key, name)
		if err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].LastModified.Equal(metas[j].LastModified) {
			return metas[i].LastModified.After(metas[j].LastModified)
		}
		return metas[i].VersionID < metas[j].VersionID
	})
	return metas, nil
}

// SetTags replaces the tag set of a version (current when versionID empty).
func (s *Store) SetTags(ctx context.Context, bucket, key, versionID string, tags []Tag) error {
	if err := ValidateTags(tags); err != nil {
		return err
	}
	return s.updateVersion(bucket, key, versionID, func(m *Metadata) error {
		m.Tags = tags
		return nil
	})
}

// SetACL replaces the ACL of a version.
func (s *Store) SetACL(ctx context.Context, bucket, key, versionID string, acl *ACL) error {
	return s.updateVersion(bucket, key, versionID, func(m *Metadata) error {
		m.ACL = acl
		return nil
	})
}

// SetLegalHold sets the legal hold flag of a version.
func (s *Store) SetLegalHold(ctx context.Context, bucket, key, versionID, status string) error {
	if status != LegalHoldOn && status != LegalHoldOff {
		return fmt.Errorf("%w: legal hold status must be ON or OFF", ErrInvalidRequest)
	}
	return s.updateVersion(bucket, key, versionID, func(m *Metadata) error {
		m.LegalHold = status
		return nil
	})
}

// SetRetention sets the retention of a version. Compliance retention cannot
// be shortened or removed before it expires.
func (s *Store) SetRetention(ctx context.Context, bucket, key, versionID string, retention *Retention) error {
	if retention != nil {
		if retention.Mode != RetentionGovernance && retention.Mode != RetentionCompliance {
			return fmt.Errorf("%w: retention mode must be GOVERNANCE or COMPLIANCE", ErrInvalidRequest)
		}
		if retention.RetainUntilDate.Before(time.Now()) {
			return fmt.Errorf("%w: retain-until date must be in the future", ErrInvalidRequest)
		}
	}
	return s.updateVersion(bucket, key, versionID, func(m *Metadata) error {
		if m.Retention != nil && m.Retention.Mode == RetentionCompliance &&
			time.Now().Before(m.Retention.RetainUntilDate) {
			if retention == nil || retention.RetainUntilDate.Before(m.Retention.RetainUntilDate) {
				return ErrRetentionLocked
			}
		}
		m.Retention = retention
		return nil
	})
}

// updateVersion mutates a version sidecar under the key write lock.
func (s *Store) updateVersion(bucket, key, versionID string, fn func(*Metadata) error) error {
	unlock := s.locks.Lock(lock.Key(bucket, key))
	defer unlock()

	meta, err := s.getMetadataLocked(bucket, key, versionID)
	if err != nil && !errors.Is(err, ErrDeleteMarker) {
		return err
	}
	if err := fn(meta); err != nil {
		return err
	}

	dir, err := s.versionDir(bucket, key, meta.VersionID)
	if err != nil {
		return err
	}
	return s.fs.WriteJSON(filepath.Join(dir, metadataFile), meta)
}
