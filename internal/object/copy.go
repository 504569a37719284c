package object

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s3mock/s3mock/internal/lock"
)

// Metadata and tagging directives on CopyObject.
const (
	DirectiveCopy    = "COPY"
	DirectiveReplace = "REPLACE"
)

// CopyInput describes a server-side copy. Replacement metadata/tags are
// only consulted when the corresponding directive is REPLACE.
type CopyInput struct {
	SrcBucket    string
	SrcKey       string
	SrcVersionID string
	DstBucket    string
	DstKey       string

	MetadataDirective string
	TaggingDirective  string

	ContentType        string
	ContentEncoding    string
	ContentLanguage    string
	ContentDisposition string
	CacheControl       string
	Expires            string
	UserMetadata       map[string]string
	Tags               []Tag
	SSE                *SSEInfo
	StorageClass       string

	// Versioning is the destination bucket's versioning status.
	Versioning string
}

// CopyObject copies a source version's bytes into a new version at the
// destination, applying the metadata/tagging directives. A self-copy that
// replaces nothing is rejected, as on S3. The source read lock and
// destination write lock are taken in (bucket, key) order.
func (s *Store) CopyObject(ctx context.Context, in CopyInput) (*Metadata, error) {
	sameObject := in.SrcBucket == in.DstBucket && in.SrcKey == in.DstKey && in.SrcVersionID == ""
	if sameObject && in.MetadataDirective != DirectiveReplace && in.TaggingDirective != DirectiveReplace {
		return nil, fmt.Errorf("%w: this copy request is illegal because it is copying an object to itself without changing the object's metadata", ErrInvalidRequest)
	}
	if err := ValidateKey(in.DstKey); err != nil {
		return nil, err
	}
	if err := ValidateUserMetadata(in.UserMetadata); err != nil {
		return nil, err
	}
	if err := ValidateTags(in.Tags); err != nil {
		return nil, err
	}

	srcLock := lock.Key(in.SrcBucket, in.SrcKey)
	dstLock := lock.Key(in.DstBucket, in.DstKey)
	unlock := s.locks.RLockThenLock(srcLock, dstLock)
	defer unlock()

	src, err := s.getMetadataLocked(in.SrcBucket, in.SrcKey, in.SrcVersionID)
	if err != nil {
		return nil, err
	}

	srcDir, err := s.versionDir(in.SrcBucket, in.SrcKey, src.VersionID)
	if err != nil {
		return nil, err
	}
	srcFile, err := os.Open(filepath.Join(srcDir, binaryDataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open copy source: %w", err)
	}
	defer srcFile.Close()

	versionID := NullVersionID
	if in.Versioning == versioningEnabled {
		versionID = NewVersionID()
	}
	dstDir, err := s.versionDir(in.DstBucket, in.DstKey, versionID)
	if err != nil {
		return nil, err
	}

	md5Hash := md5.New()
	pending, err := s.fs.StageStream(dstDir, binaryDataFile, srcFile, md5Hash)
	if err != nil {
		return nil, err
	}
	if err := pending.Commit(); err != nil {
		pending.Abort()
		return nil, err
	}

	meta := &Metadata{
		Bucket:       in.DstBucket,
		Key:          in.DstKey,
		VersionID:    versionID,
		Size:         pending.Size(),
		LastModified: time.Now().UTC(),
		ETag:         hex.EncodeToString(md5Hash.Sum(nil)),
		StorageClass: in.StorageClass,
		ACL:          DefaultACL(),
		SSE:          in.SSE,
		Checksum:     src.Checksum,
	}

	if in.MetadataDirective == DirectiveReplace {
		meta.ContentType = in.ContentType
		meta.ContentEncoding = in.ContentEncoding
		meta.ContentLanguage = in.ContentLanguage
		meta.ContentDisposition = in.ContentDisposition
		meta.CacheControl = in.CacheControl
		meta.Expires = in.Expires
		meta.UserMetadata = in.UserMetadata
	} else {
		meta.ContentType = src.ContentType
		meta.ContentEncoding = src.ContentEncoding
		meta.ContentLanguage = src.ContentLanguage
		meta.ContentDisposition = src.ContentDisposition
		meta.CacheControl = src.CacheControl
		meta.Expires = src.Expires
		meta.UserMetadata = src.UserMetadata
	}

	if in.TaggingDirective == DirectiveReplace {
		meta.Tags = in.Tags
	} else {
		meta.Tags = src.Tags
	}

	if err := s.writeVersion(meta); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"srcBucket": in.SrcBucket,
		"srcKey":    in.SrcKey,
		"dstBucket": in.DstBucket,
		"dstKey":    in.DstKey,
		"versionId": versionID,
	}).Debug("Object copied")

	return meta, nil
}

// OpenRange opens a version's bytes positioned at start, limited to length
// bytes. Used by UploadPartCopy.
func (s *Store) OpenRange(ctx context.Context, bucket, key, versionID string, start, length int64) (io.ReadCloser, error) {
	unlock := s.locks.RLock(lock.Key(bucket, key))
	defer unlock()

	meta, err := s.getMetadataLocked(bucket, key, versionID)
	if err != nil {
		return nil, err
	}

	dir, err := s.versionDir(bucket, key, meta.VersionID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, binaryDataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open object data: %w", err)
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to seek copy source: %w", err)
		}
	}
	return &limitedFile{Reader: io.LimitReader(f, length), file: f}, nil
}

type limitedFile struct {
	io.Reader
	file *os.File
}

func (l *limitedFile) Close() error {
	return l.file.Close()
}
