package s3api

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/s3mock/s3mock/internal/object"
)

// S3 request/response header names used throughout the handlers.
const (
	headerACL             = "x-amz-acl"
	headerCopySource      = "x-amz-copy-source"
	headerCopySourceRange = "x-amz-copy-source-range"
	headerDeleteMarker    = "x-amz-delete-marker"
	headerLegalHold       = "x-amz-object-lock-legal-hold"
	headerMetaPrefix      = "x-amz-meta-"
	headerMetadataDir     = "x-amz-metadata-directive"
	headerMpPartsCount    = "x-amz-mp-parts-count"
	headerObjectOwnership = "x-amz-object-ownership"
	headerRetentionDate   = "x-amz-object-lock-retain-until-date"
	headerRetentionMode   = "x-amz-object-lock-mode"
	headerSSE             = "x-amz-server-side-encryption"
	headerSSEKMSKeyID     = "x-amz-server-side-encryption-aws-kms-key-id"
	headerStorageClass    = "x-amz-storage-class"
	headerTagging         = "x-amz-tagging"
	headerTaggingCount    = "x-amz-tagging-count"
	headerTaggingDir      = "x-amz-tagging-directive"
	headerVersionID       = "x-amz-version-id"

	headerChecksumAlgorithm = "x-amz-sdk-checksum-algorithm"
	headerChecksumPrefix    = "x-amz-checksum-"
)

// parseRange parses a Range header against an object of the given size and
// returns the start offset and length of the slice. Supported forms are
// bytes=a-b, bytes=a- and bytes=-n. A malformed header yields InvalidRequest;
// a syntactically valid but unsatisfiable one yields InvalidRange.
func parseRange(header string, size int64) (int64, int64, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("%w: range header must start with bytes=", object.ErrInvalidRequest)
	}
	if strings.Contains(spec, ",") {
		return 0, 0, fmt.Errorf("%w: multiple ranges are not supported", object.ErrInvalidRequest)
	}

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: malformed range %q", object.ErrInvalidRequest, header)
	}

	// bytes=-n: the final n bytes.
	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, fmt.Errorf("%w: malformed range %q", object.ErrInvalidRequest, header)
		}
		if n > size {
			n = size
		}
		if n == 0 {
			return 0, 0, fmt.Errorf("%w: empty object has no satisfiable range", object.ErrInvalidRange)
		}
		return size - n, n, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, fmt.Errorf("%w: malformed range %q", object.ErrInvalidRequest, header)
	}
	if start >= size {
		return 0, 0, fmt.Errorf("%w: range start %d beyond object size %d", object.ErrInvalidRange, start, size)
	}

	// bytes=a-: from a to the end.
	if last == "" {
		return start, size - start, nil
	}

	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("%w: malformed range %q", object.ErrInvalidRequest, header)
	}
	if end >= size {
		end = size - 1
	}
	return start, end - start + 1, nil
}

// parseTaggingHeader parses the x-amz-tagging header, a URL-encoded
// key1=val1&key2=val2 list, into a tag set in header order.
func parseTaggingHeader(header string) ([]object.Tag, error) {
	if header == "" {
		return nil, nil
	}
	values, err := url.ParseQuery(header)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed tagging header", object.ErrInvalidRequest)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]object.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, object.Tag{Key: k, Value: values.Get(k)})
	}
	if err := object.ValidateTags(tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// cannedACL maps an x-amz-acl header value to a grant set.
func cannedACL(value string) (*object.ACL, error) {
	owner := object.DefaultOwner
	ownerGrant := object.Grant{
		Grantee: object.Grantee{
			Type:        object.GranteeTypeCanonicalUser,
			ID:          owner.ID,
			DisplayName: owner.DisplayName,
		},
		Permission: object.PermissionFullControl,
	}
	groupGrant := func(uri, permission string) object.Grant {
		return object.Grant{
			Grantee:    object.Grantee{Type: object.GranteeTypeGroup, URI: uri},
			Permission: permission,
		}
	}

	acl := &object.ACL{Owner: owner, Grants: []object.Grant{ownerGrant}}
	switch value {
	case "", "private", "bucket-owner-full-control", "bucket-owner-read":
	case "public-read":
		acl.Grants = append(acl.Grants, groupGrant(object.GroupAllUsers, object.PermissionRead))
	case "public-read-write":
		acl.Grants = append(acl.Grants,
			groupGrant(object.GroupAllUsers, object.PermissionRead),
			groupGrant(object.GroupAllUsers, object.PermissionWrite))
	case "authenticated-read":
		acl.Grants = append(acl.Grants, groupGrant(object.GroupAuthenticatedUsers, object.PermissionRead))
	default:
		return nil, fmt.Errorf("%w: unknown canned ACL %q", object.ErrInvalidRequest, value)
	}
	return acl, nil
}

// Object ownership settings accepted by x-amz-object-ownership.
var validOwnership = map[string]bool{
	"BucketOwnerPreferred": true,
	"BucketOwnerEnforced":  true,
	"ObjectWriter":         true,
}

// parseOwnership validates an x-amz-object-ownership value.
func parseOwnership(value string) (string, error) {
	if !validOwnership[value] {
		return "", fmt.Errorf("%w: unknown object ownership %q", object.ErrInvalidRequest, value)
	}
	return value, nil
}

// parseCopySource splits an x-amz-copy-source header into bucket, key and
// optional version id. The header is URL-encoded and may carry a leading
// slash.
func parseCopySource(header string) (string, string, string, error) {
	source := strings.TrimPrefix(header, "/")

	versionID := ""
	if idx := strings.Index(source, "?versionId="); idx >= 0 {
		versionID = source[idx+len("?versionId="):]
		source = source[:idx]
	}

	decoded, err := url.QueryUnescape(source)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: malformed copy source", object.ErrInvalidRequest)
	}

	bucketName, key, ok := strings.Cut(decoded, "/")
	if !ok || bucketName == "" || key == "" {
		return "", "", "", fmt.Errorf("%w: copy source must be bucket/key", object.ErrInvalidRequest)
	}
	return bucketName, key, versionID, nil
}

// parseConditions collects the conditional headers of a GET/HEAD, or the
// x-amz-copy-source-if-* family when prefix is given.
func parseConditions(r *http.Request, prefix string) object.Conditions {
	header := func(name string) string {
		return r.Header.Get(prefix + name)
	}
	date := func(name string) *time.Time {
		t, err := http.ParseTime(header(name))
		if err != nil {
			return nil
		}
		return &t
	}
	splitETags := func(name string) []string {
		v := header(name)
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}

	return object.Conditions{
		IfMatch:           splitETags("If-Match"),
		IfNoneMatch:       splitETags("If-None-Match"),
		IfModifiedSince:   date("If-Modified-Since"),
		IfUnmodifiedSince: date("If-Unmodified-Since"),
	}
}

// sseFromRequest collects SSE bookkeeping from headers, falling back to query
// parameters (clients exist that pass them there).
func sseFromRequest(r *http.Request) *object.SSEInfo {
	get := func(name string) string {
		if v := r.Header.Get(name); v != "" {
			return v
		}
		return r.URL.Query().Get(name)
	}

	algorithm := get(headerSSE)
	if algorithm == "" {
		return nil
	}
	return &object.SSEInfo{
		Algorithm: algorithm,
		KMSKeyID:  get(headerSSEKMSKeyID),
	}
}

// userMetadataFromRequest collects x-amz-meta-* headers, lower-cased names
// without the prefix.
func userMetadataFromRequest(r *http.Request) map[string]string {
	var meta map[string]string
	for name, values := range r.Header {
		lower := strings.ToLower(name)
		if !strings.HasPrefix(lower, headerMetaPrefix) || len(values) == 0 {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[strings.TrimPrefix(lower, headerMetaPrefix)] = values[0]
	}
	return meta
}

// checksumFromRequest returns the requested additional checksum algorithm
// and, when present, the expected value from its x-amz-checksum-* header.
func checksumFromRequest(r *http.Request) (string, string) {
	algorithm := strings.ToUpper(r.Header.Get(headerChecksumAlgorithm))
	if algorithm == "" {
		// The value header alone also selects the algorithm.
		for _, alg := range []string{object.ChecksumCRC32C, object.ChecksumCRC32, object.ChecksumSHA1, object.ChecksumSHA256} {
			if r.Header.Get(headerChecksumPrefix+strings.ToLower(alg)) != "" {
				algorithm = alg
				break
			}
		}
	}
	if algorithm == "" {
		return "", ""
	}
	return algorithm, r.Header.Get(headerChecksumPrefix + strings.ToLower(algorithm))
}

// retentionFromRequest parses the object-lock retention headers of a PUT.
func retentionFromRequest(r *http.Request) (*object.Retention, error) {
	mode := r.Header.Get(headerRetentionMode)
	date := r.Header.Get(headerRetentionDate)
	if mode == "" && date == "" {
		return nil, nil
	}
	if mode == "" || date == "" {
		return nil, fmt.Errorf("%w: object-lock mode and retain-until-date must be supplied together", object.ErrInvalidRequest)
	}
	until, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed retain-until-date", object.ErrInvalidRequest)
	}
	return &object.Retention{Mode: mode, RetainUntilDate: until}, nil
}
