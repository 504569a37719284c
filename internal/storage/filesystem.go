package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Common storage errors
var (
	ErrNotFound    = errors.New("entry not found")
	ErrInvalidPath = errors.New("invalid path")
)

// Filesystem provides the low-level primitives shared by the bucket, object
// and multipart stores: atomic streaming writes, JSON sidecars and the
// encoding that turns an arbitrary S3 key into a single path segment.
type Filesystem struct {
	root string
}

// New creates the root directory if needed and returns a Filesystem rooted
// there.
func New(root string) (*Filesystem, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create root directory %s: %w", root, err)
	}
	return &Filesystem{root: root}, nil
}

// Root returns the root directory path.
func (fs *Filesystem) Root() string {
	return fs.root
}

// Remove deletes the entire root directory tree. Called on shutdown when
// retainFilesOnExit is false.
func (fs *Filesystem) Remove() error {
	logrus.WithField("root", fs.root).Info("Removing filesystem root")
	return os.RemoveAll(fs.root)
}

// Encoded segments longer than maxSegmentLen would exceed common filesystem
// name limits (255 bytes); EncodeKey shortens them to a prefix plus a
// SHA-256 digest of the key, joined by hashedSegmentSep.
const (
	maxSegmentLen    = 200
	hashedPrefixLen  = 120
	hashedSegmentSep = "~"
)

// keyEscaper escapes the characters url.QueryEscape leaves alone that the
// layout needs for itself: dots, so the keys "." and ".." encode to names
// that pass segment validation, and the tilde used as the digest separator.
var keyEscaper = strings.NewReplacer(".", "%2E", "~", "%7E")

// EncodeKey encodes an S3 object key as a single path segment. Keys may
// contain '/', '..' and arbitrary bytes, none of which may reach the
// filesystem as path structure. Segments shortened with a digest cannot be
// decoded; callers recover the key from a metadata sidecar.
func EncodeKey(key string) string {
	escaped := keyEscaper.Replace(url.QueryEscape(key))
	if len(escaped) > maxSegmentLen {
		sum := sha256.Sum256([]byte(key))
		escaped = escaped[:hashedPrefixLen] + hashedSegmentSep + hex.EncodeToString(sum[:])
	}
	return escaped
}

// IsHashedSegment reports whether EncodeKey shortened the segment with a
// digest. Unshortened segments never contain the separator; EncodeKey
// escapes tildes in the key itself.
func IsHashedSegment(segment string) bool {
	return strings.Contains(segment, hashedSegmentSep)
}

// DecodeKey reverses EncodeKey for segments that were not shortened.
func DecodeKey(segment string) (string, error) {
	if IsHashedSegment(segment) {
		return "", fmt.Errorf("%w: segment %q is digest-shortened", ErrInvalidPath, segment)
	}
	return url.QueryUnescape(segment)
}

// validateSegment rejects path segments that could escape the root.
func validateSegment(segment string) error {
	if segment == "" || segment == "." || segment == ".." {
		return ErrInvalidPath
	}
	if strings.ContainsAny(segment, "/\\") {
		return ErrInvalidPath
	}
	return nil
}

// Path joins segments under the root after validating each one.
func (fs *Filesystem) Path(segments ...string) (string, error) {
	for _, s := range segments {
		if err := validateSegment(s); err != nil {
			return "", fmt.Errorf("%w: %q", err, s)
		}
	}
	return filepath.Join(append([]string{fs.root}, segments...)...), nil
}

// PendingFile is a fully-written temp file that has not yet been renamed to
// its final name. Callers validate digests against the streamed bytes before
// committing, so a digest mismatch never clobbers existing data.
type PendingFile struct {
	tmpPath   string
	finalPath string
	size      int64
}

// Size returns the number of bytes streamed into the pending file.
func (p *PendingFile) Size() int64 {
	return p.size
}

// Commit renames the pending file to its final name.
func (p *PendingFile) Commit() error {
	if err := os.Rename(p.tmpPath, p.finalPath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Abort removes the pending file. Safe to call after Commit.
func (p *PendingFile) Abort() {
	os.Remove(p.tmpPath)
}

// StageStream streams r into a temp file under dir, tee-ing the bytes
// through any extra writers (hash accumulators). The temp file is removed on
// failure so a cancelled upload never leaves a partial object behind; on
// success the caller commits or aborts the returned PendingFile.
func (fs *Filesystem) StageStream(dir, name string, r io.Reader, extra ...io.Writer) (*PendingFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	var dst io.Writer = tmp
	if len(extra) > 0 {
		dst = io.MultiWriter(append([]io.Writer{tmp}, extra...)...)
	}

	size, err := io.Copy(dst, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	return &PendingFile{
		tmpPath:   tmpName,
		finalPath: filepath.Join(dir, name),
		size:      size,
	}, nil
}

// WriteStream stages and immediately commits. For writes with no digest
// validation step.
func (fs *Filesystem) WriteStream(dir, name string, r io.Reader, extra ...io.Writer) (int64, error) {
	pending, err := fs.StageStream(dir, name, r, extra...)
	if err != nil {
		return 0, err
	}
	if err := pending.Commit(); err != nil {
		pending.Abort()
		return 0, err
	}
	return pending.Size(), nil
}

// WriteJSON atomically writes v as JSON to path.
func (fs *Filesystem) WriteJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}

// ReadJSON reads path into v. Returns ErrNotFound if the file does not exist.
func (fs *Filesystem) ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteLine atomically writes a single line of text to path.
func (fs *Filesystem) WriteLine(path, line string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(line + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write line: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}

// ReadLine reads the single line stored at path.
func (fs *Filesystem) ReadLine(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ListFiles returns the names of regular files in dir, sorted by name.
// A missing dir yields an empty list.
func (fs *Filesystem) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ListDirs returns the names of subdirectories of dir, sorted by name.
// A missing dir yields an empty list.
func (fs *Filesystem) ListDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
