package object

import (
	"context"
	"sort"
	"strings"

	"github.com/s3mock/s3mock/internal/storage"
)

// listKeys returns the decoded object keys of a bucket in UTF-8 byte order.
func (s *Store) listKeys(bucket string) ([]string, error) {
	dir, err := s.fs.Path(bucket)
	if err != nil {
		return nil, err
	}
	names, err := s.fs.ListDirs(dir)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		if storage.IsHashedSegment(name) {
			if key, err := s.keyFromEncodedDir(bucket, name); err == nil {
				keys = append(keys, key)
			}
			continue
		}
		key, err := storage.DecodeKey(name)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// listEntry is one candidate result row: either an object (meta set) or a
// rolled-up common prefix.
type listEntry struct {
	name string
	meta *Metadata
}

// collectEntries walks the bucket's keys, applies prefix filtering and
// delimiter rollup, and returns entries in key order. Keys whose current
// version is a delete marker are invisible.
func (s *Store) collectEntries(bucket, prefix, delimiter string) ([]listEntry, error) {
	keys, err := s.listKeys(bucket)
	if err != nil {
		return nil, err
	}

	var entries []listEntry
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		if delimiter != "" {
			rest := key[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				common := prefix + rest[:idx+len(delimiter)]
				if n := len(entries); n > 0 && entries[n-1].meta == nil && entries[n-1].name == common {
					continue // already rolled up
				}
				entries = append(entries, listEntry{name: common})
				continue
			}
		}

		meta, err := s.GetMetadata(context.Background(), bucket, key, "")
		if err != nil {
			continue // no current version, or a delete marker
		}
		entries = append(entries, listEntry{name: key, meta: meta})
	}
	return entries, nil
}

// ListObjects serves ListObjectsV1 and V2 (the handler maps marker vs.
// continuation-token). Results are ordered by UTF-8 byte order on the key;
// common prefixes count against maxKeys like keys do.
func (s *Store) ListObjects(ctx context.Context, bucket, prefix, delimiter, marker string, maxKeys int) (*ListResult, error) {
	// max-keys=0 is an empty, non-truncated page, as on S3.
	if maxKeys <= 0 {
		return &ListResult{}, nil
	}

	entries, err := s.collectEntries(bucket, prefix, delimiter)
	if err != nil {
		return nil, err
	}

	result := &ListResult{}
	count := 0
	for i, e := range entries {
		if marker != "" && e.name <= marker {
			continue
		}
		if count >= maxKeys {
			result.IsTruncated = true
			break
		}
		if e.meta == nil {
			result.CommonPrefixes = append(result.CommonPrefixes, e.name)
		} else {
			result.Objects = append(result.Objects, e.meta)
		}
		count++
		if count == maxKeys && i < len(entries)-1 {
			result.NextMarker = e.name
		}
	}
	if !result.IsTruncated {
		result.NextMarker = ""
	}
	return result, nil
}

// versionEntry is one row of a version listing.
type versionEntry struct {
	key       string
	versionID string
	meta      *Metadata // nil for a common prefix
}

// ListVersions lists all object versions, newest first within each key.
// Delete markers appear with their metadata so callers can render them as
// DeleteMarker elements.
func (s *Store) ListVersions(ctx context.Context, bucket, prefix, delimiter, keyMarker, versionIDMarker string, maxKeys int) (*VersionListResult, error) {
	if maxKeys <= 0 {
		return &VersionListResult{}, nil
	}

	keys, err := s.listKeys(bucket)
	if err != nil {
		return nil, err
	}

	var entries []versionEntry
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}

		if delimiter != "" {
			rest := key[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				common := prefix + rest[:idx+len(delimiter)]
				if n := len(entries); n > 0 && entries[n-1].meta == nil && entries[n-1].key == common {
					continue
				}
				entries = append(entries, versionEntry{key: common})
				continue
			}
		}

		metas, err := s.versionMetas(bucket, key)
		if err != nil {
			continue
		}
		for _, meta := range metas {
			entries = append(entries, versionEntry{key: key, versionID: meta.VersionID, meta: meta})
		}
	}

	// Skip up to and including the marker position.
	start := 0
	if keyMarker != "" {
		for start < len(entries) {
			e := entries[start]
			if e.key > keyMarker {
				break
			}
			if e.key == keyMarker && versionIDMarker != "" {
				start++
				if e.versionID == versionIDMarker {
					break
				}
				continue
			}
			start++
		}
	}

	result := &VersionListResult{}
	var last versionEntry
	for i := start; i < len(entries); i++ {
		if len(result.Versions)+len(result.CommonPrefixes) >= maxKeys {
			result.IsTruncated = true
			result.NextKeyMarker = last.key
			result.NextVersionIDMarker = last.versionID
			break
		}
		e := entries[i]
		if e.meta == nil {
			result.CommonPrefixes = append(result.CommonPrefixes, e.key)
		} else {
			result.Versions = append(result.Versions, e.meta)
		}
		last = e
	}
	return result, nil
}

// IsLatest reports whether meta is the current version of its key.
func (s *Store) IsLatest(ctx context.Context, meta *Metadata) bool {
	current, err := s.currentVersionID(meta.Bucket, meta.Key)
	return err == nil && current == meta.VersionID
}
