package object

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/s3mock/s3mock/internal/lock"
	"github.com/s3mock/s3mock/internal/storage"
)

const (
	uploadMetadataFile = "uploadMetadata.json"
	partsDirName       = "parts"
)

func (s *Store) uploadDir(bucket, key, uploadID string) (string, error) {
	return s.fs.Path(bucket, storage.EncodeKey(key), uploadsDirName, uploadID)
}

// CreateUploadInput captures the metadata of CreateMultipartUpload; it is
// applied to the assembled object on completion.
type CreateUploadInput struct {
	Bucket string
	Key    string

	ContentType        string
	ContentEncoding    string
	ContentLanguage    string
	ContentDisposition string
	CacheControl       string
	Expires            string

	UserMetadata      map[string]string
	Tags              []Tag
	ACL               *ACL
	SSE               *SSEInfo
	StorageClass      string
	ChecksumAlgorithm string
}

// CreateMultipartUpload allocates an upload id and records the initiation
// metadata in the staging directory.
func (s *Store) CreateMultipartUpload(ctx context.Context, in CreateUploadInput) (*Upload, error) {
	if err := ValidateKey(in.Key); err != nil {
		return nil, err
	}
	if err := ValidateUserMetadata(in.UserMetadata); err != nil {
		return nil, err
	}
	if err := ValidateTags(in.Tags); err != nil {
		return nil, err
	}

	upload := &Upload{
		UploadID:     uuid.NewString(),
		Bucket:       in.Bucket,
		Key:          in.Key,
		Initiated:    time.Now().UTC(),
		StorageClass: in.StorageClass,

		ContentType:        in.ContentType,
		ContentEncoding:    in.ContentEncoding,
		ContentLanguage:    in.ContentLanguage,
		ContentDisposition: in.ContentDisposition,
		CacheControl:       in.CacheControl,
		Expires:            in.Expires,

		UserMetadata:      in.UserMetadata,
		Tags:              in.Tags,
		ACL:               in.ACL,
		SSE:               in.SSE,
		ChecksumAlgorithm: in.ChecksumAlgorithm,
	}

	dir, err := s.uploadDir(in.Bucket, in.Key, upload.UploadID)
	if err != nil {
		return nil, err
	}
	if err := s.fs.WriteJSON(filepath.Join(dir, uploadMetadataFile), upload); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"bucket":   in.Bucket,
		"key":      in.Key,
		"uploadId": upload.UploadID,
	}).Debug("Multipart upload initiated")

	return upload, nil
}

// GetUpload loads the staging metadata of an upload.
func (s *Store) GetUpload(ctx context.Context, bucket, key, uploadID string) (*Upload, error) {
	dir, err := s.uploadDir(bucket, key, uploadID)
	if err != nil {
		return nil, ErrNoSuchUpload
	}
	var upload Upload
	if err := s.fs.ReadJSON(filepath.Join(dir, uploadMetadataFile), &upload); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSuchUpload
		}
		return nil, err
	}
	return &upload, nil
}

// UploadPart stages one part, recording its MD5 alongside. Overwriting an
// existing part number is allowed; last writer wins. Different parts of the
// same upload may be staged in parallel.
func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, body io.Reader) (*Part, error) {
	if partNumber < MinPartNumber || partNumber > MaxPartNumber {
		return nil, fmt.Errorf("%w: part number must be between %d and %d", ErrInvalidPart, MinPartNumber, MaxPartNumber)
	}
	if _, err := s.GetUpload(ctx, bucket, key, uploadID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(lock.Key(bucket, key, uploadID, strconv.Itoa(partNumber)))
	defer unlock()

	dir, err := s.uploadDir(bucket, key, uploadID)
	if err != nil {
		return nil, err
	}
	partsDir := filepath.Join(dir, partsDirName)
	partName := strconv.Itoa(partNumber)

	md5Hash := md5.New()
	size, err := s.fs.WriteStream(partsDir, partName, body, md5Hash)
	if err != nil {
		return nil, err
	}

	etag := hex.EncodeToString(md5Hash.Sum(nil))
	if err := s.fs.WriteLine(filepath.Join(partsDir, partName+".md5"), etag); err != nil {
		return nil, err
	}

	return &Part{
		PartNumber:   partNumber,
		ETag:         etag,
		Size:         size,
		LastModified: time.Now().UTC(),
	}, nil
}

// ListParts returns all staged parts of an upload, ordered by part number.
func (s *Store) ListParts(ctx context.Context, bucket, key, uploadID string) ([]Part, error) {
	if _, err := s.GetUpload(ctx, bucket, key, uploadID); err != nil {
		return nil, err
	}

	dir, err := s.uploadDir(bucket, key, uploadID)
	if err != nil {
		return nil, err
	}
	partsDir := filepath.Join(dir, partsDirName)
	names, err := s.fs.ListFiles(partsDir)
	if err != nil {
		return nil, err
	}

	var parts []Part
	for _, name := range names {
		if strings.HasSuffix(name, ".md5") {
			continue
		}
		partNumber, err := strconv.Atoi(name)
		if err != nil {
			continue
		}
		info, err := os.Stat(filepath.Join(partsDir, name))
		if err != nil {
			continue
		}
		etag, err := s.fs.ReadLine(filepath.Join(partsDir, name+".md5"))
		if err != nil {
			continue
		}
		parts = append(parts, Part{
			PartNumber:   partNumber,
			ETag:         etag,
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
	}

	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})
	return parts, nil
}

// ListUploads enumerates the in-progress uploads of a bucket, ordered by
// (key, upload id).
func (s *Store) ListUploads(ctx context.Context, bucket, prefix string) ([]*Upload, error) {
	keys, err := s.listKeys(bucket)
	if err != nil {
		return nil, err
	}

	var uploads []*Upload
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		keyDir, err := s.keyDir(bucket, key)
		if err != nil {
			continue
		}
		ids, err := s.fs.ListDirs(filepath.Join(keyDir, uploadsDirName))
		if err != nil {
			continue
		}
		sort.Strings(ids)
		for _, id := range ids {
			upload, err := s.GetUpload(ctx, bucket, key, id)
			if err != nil {
				continue
			}
			uploads = append(uploads, upload)
		}
	}
	return uploads, nil
}

// partConcatReader streams the staged part files in order, opening each one
// only when the previous is exhausted so completion never holds more than
// one descriptor.
type partConcatReader struct {
	paths   []string
	current *os.File
}

func (r *partConcatReader) Read(p []byte) (int, error) {
	for {
		if r.current == nil {
			if len(r.paths) == 0 {
				return 0, io.EOF
			}
			f, err := os.Open(r.paths[0])
			if err != nil {
				return 0, err
			}
			r.paths = r.paths[1:]
			r.current = f
		}
		n, err := r.current.Read(p)
		if err == io.EOF {
			r.current.Close()
			r.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *partConcatReader) Close() error {
	if r.current != nil {
		return r.current.Close()
	}
	return nil
}

// CompleteMultipartUpload validates the client's part list against the
// staged parts, concatenates them into a new object version and removes the
// staging directory. The composite ETag is
// hex(md5(concat(md5 bytes of each part)))-<partCount>, as S3 documents.
// Once one completion succeeds, concurrent retries find the staging
// directory gone and fail with NoSuchUpload.
func (s *Store) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, completed []CompletedPart, versioning string) (*Metadata, error) {
	unlock := s.locks.Lock(lock.Key(bucket, key))
	defer unlock()

	upload, err := s.GetUpload(ctx, bucket, key, uploadID)
	if err != nil {
		return nil, err
	}

	staged, err := s.ListParts(ctx, bucket, key, uploadID)
	if err != nil {
		return nil, err
	}
	stagedByNumber := make(map[int]Part, len(staged))
	for _, p := range staged {
		stagedByNumber[p.PartNumber] = p
	}

	uploadDir, err := s.uploadDir(bucket, key, uploadID)
	if err != nil {
		return nil, err
	}

	var (
		paths      []string
		md5Concat  []byte
		totalSize  int64
		lastNumber int
	)
	for i, cp := range completed {
		if cp.PartNumber <= lastNumber {
			return nil, fmt.Errorf("%w: part numbers must be in ascending order", ErrInvalidPartOrder)
		}
		lastNumber = cp.PartNumber

		part, ok := stagedByNumber[cp.PartNumber]
		if !ok {
			return nil, fmt.Errorf("%w: part %d was not uploaded", ErrInvalidPart, cp.PartNumber)
		}
		if !strings.EqualFold(strings.Trim(cp.ETag, `"`), part.ETag) {
			return nil, fmt.Errorf("%w: etag of part %d does not match", ErrInvalidPart, cp.PartNumber)
		}
		if i < len(completed)-1 && part.Size < MinPartSize {
			return nil, fmt.Errorf("%w: part %d is %d bytes, the minimum is %d",
				ErrEntityTooSmall, cp.PartNumber, part.Size, int64(MinPartSize))
		}

		rawMD5, err := hex.DecodeString(part.ETag)
		if err != nil {
			return nil, fmt.Errorf("%w: part %d has a corrupt checksum", ErrInvalidPart, cp.PartNumber)
		}
		md5Concat = append(md5Concat, rawMD5...)
		totalSize += part.Size
		paths = append(paths, filepath.Join(uploadDir, partsDirName, strconv.Itoa(cp.PartNumber)))
	}

	versionID := NullVersionID
	if versioning == versioningEnabled {
		versionID = NewVersionID()
	}
	dstDir, err := s.versionDir(bucket, key, versionID)
	if err != nil {
		return nil, err
	}

	reader := &partConcatReader{paths: paths}
	defer reader.Close()
	pending, err := s.fs.StageStream(dstDir, binaryDataFile, reader)
	if err != nil {
		return nil, err
	}
	if err := pending.Commit(); err != nil {
		pending.Abort()
		return nil, err
	}

	compositeSum := md5.Sum(md5Concat)
	etag := fmt.Sprintf("%s-%d", hex.EncodeToString(compositeSum[:]), len(completed))

	acl := upload.ACL
	if acl == nil {
		acl = DefaultACL()
	}

	meta := &Metadata{
		Bucket:       bucket,
		Key:          key,
		VersionID:    versionID,
		Size:         totalSize,
		LastModified: time.Now().UTC(),
		ETag:         etag,
		StorageClass: upload.StorageClass,
		PartCount:    len(completed),

		ContentType:        upload.ContentType,
		ContentEncoding:    upload.ContentEncoding,
		ContentLanguage:    upload.ContentLanguage,
		ContentDisposition: upload.ContentDisposition,
		CacheControl:       upload.CacheControl,
		Expires:            upload.Expires,

		UserMetadata: upload.UserMetadata,
		Tags:         upload.Tags,
		ACL:          acl,
		SSE:          upload.SSE,
	}
	if err := s.writeVersion(meta); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(uploadDir); err != nil {
		logrus.WithError(err).WithField("uploadId", uploadID).Warn("Failed to remove multipart staging directory")
	}

	logrus.WithFields(logrus.Fields{
		"bucket":    bucket,
		"key":       key,
		"uploadId":  uploadID,
		"parts":     len(completed),
		"size":      totalSize,
		"versionId": versionID,
	}).Debug("Multipart upload completed")

	return meta, nil
}

// AbortMultipartUpload discards the staging directory. Unknown upload ids
// fail with NoSuchUpload.
func (s *Store) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	unlock := s.locks.Lock(lock.Key(bucket, key))
	defer unlock()

	dir, err := s.uploadDir(bucket, key, uploadID)
	if err != nil {
		return ErrNoSuchUpload
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrNoSuchUpload
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove multipart staging directory: %w", err)
	}
	s.removeKeyDirIfEmpty(bucket, key)
	return nil
}
