package s3api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3mock/s3mock/internal/object"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		header string
		size   int64
		start  int64
		length int64
	}{
		{"bytes=0-0", 2, 0, 1},
		{"bytes=0-1", 10, 0, 2},
		{"bytes=3-7", 10, 3, 5},
		{"bytes=5-", 10, 5, 5},
		{"bytes=-3", 10, 7, 3},
		{"bytes=-100", 10, 0, 10},
		{"bytes=0-999", 10, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			start, length, err := parseRange(tt.header, tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.length, length)
		})
	}
}

func TestParseRangeErrors(t *testing.T) {
	malformed := []string{"0-5", "bytes=", "bytes=a-b", "bytes=5-2", "bytes=-0", "bytes=0-1,3-4"}
	for _, header := range malformed {
		_, _, err := parseRange(header, 10)
		assert.ErrorIs(t, err, object.ErrInvalidRequest, "header %q", header)
	}

	// Start beyond the object is unsatisfiable, not malformed.
	_, _, err := parseRange("bytes=10-20", 10)
	assert.ErrorIs(t, err, object.ErrInvalidRange)

	// Any range against an empty object is unsatisfiable.
	for _, header := range []string{"bytes=0-0", "bytes=0-", "bytes=-1"} {
		_, _, err := parseRange(header, 0)
		assert.ErrorIs(t, err, object.ErrInvalidRange, "header %q", header)
	}
}

func TestParseTaggingHeader(t *testing.T) {
	tags, err := parseTaggingHeader("env=prod&team=storage")
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, object.Tag{Key: "env", Value: "prod"}, tags[0])
	assert.Equal(t, object.Tag{Key: "team", Value: "storage"}, tags[1])

	tags, err = parseTaggingHeader("key=encoded%20value")
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "encoded value", tags[0].Value)

	tags, err = parseTaggingHeader("")
	require.NoError(t, err)
	assert.Nil(t, tags)

	_, err = parseTaggingHeader("bad=%zz")
	assert.ErrorIs(t, err, object.ErrInvalidRequest)
}

func TestCannedACL(t *testing.T) {
	acl, err := cannedACL("private")
	require.NoError(t, err)
	require.Len(t, acl.Grants, 1)
	assert.Equal(t, object.PermissionFullControl, acl.Grants[0].Permission)

	acl, err = cannedACL("public-read")
	require.NoError(t, err)
	require.Len(t, acl.Grants, 2)
	assert.Equal(t, object.GroupAllUsers, acl.Grants[1].Grantee.URI)
	assert.Equal(t, object.PermissionRead, acl.Grants[1].Permission)

	acl, err = cannedACL("public-read-write")
	require.NoError(t, err)
	assert.Len(t, acl.Grants, 3)

	_, err = cannedACL("world-domination")
	assert.ErrorIs(t, err, object.ErrInvalidRequest)
}

func TestParseCopySource(t *testing.T) {
	bucketName, key, versionID, err := parseCopySource("/src-bucket/path/to/key.txt")
	require.NoError(t, err)
	assert.Equal(t, "src-bucket", bucketName)
	assert.Equal(t, "path/to/key.txt", key)
	assert.Empty(t, versionID)

	bucketName, key, versionID, err = parseCopySource("src-bucket/key?versionId=abc123")
	require.NoError(t, err)
	assert.Equal(t, "src-bucket", bucketName)
	assert.Equal(t, "key", key)
	assert.Equal(t, "abc123", versionID)

	_, key, _, err = parseCopySource("/bucket/with%20space")
	require.NoError(t, err)
	assert.Equal(t, "with space", key)

	_, _, _, err = parseCopySource("just-a-bucket")
	assert.ErrorIs(t, err, object.ErrInvalidRequest)
}

func TestParseConditions(t *testing.T) {
	r := httptest.NewRequest("GET", "/b/k", nil)
	r.Header.Set("If-Match", `"etag1", "etag2"`)
	r.Header.Set("If-Modified-Since", "Tue, 10 Mar 2026 12:00:00 GMT")

	c := parseConditions(r, "")
	require.Len(t, c.IfMatch, 2)
	assert.Equal(t, `"etag1"`, c.IfMatch[0])
	require.NotNil(t, c.IfModifiedSince)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), c.IfModifiedSince.UTC())
	assert.Nil(t, c.IfUnmodifiedSince)

	// Copy conditions live under the x-amz-copy-source- prefix.
	r = httptest.NewRequest("PUT", "/b/k", nil)
	r.Header.Set("x-amz-copy-source-If-None-Match", "deadbeef")
	c = parseConditions(r, headerCopySource+"-")
	require.Len(t, c.IfNoneMatch, 1)
	assert.Equal(t, "deadbeef", c.IfNoneMatch[0])
}

func TestSSEFromRequest(t *testing.T) {
	r := httptest.NewRequest("PUT", "/b/k", nil)
	assert.Nil(t, sseFromRequest(r))

	r.Header.Set(headerSSE, "aws:kms")
	r.Header.Set(headerSSEKMSKeyID, "key-1")
	sse := sseFromRequest(r)
	require.NotNil(t, sse)
	assert.Equal(t, "aws:kms", sse.Algorithm)
	assert.Equal(t, "key-1", sse.KMSKeyID)

	// Query parameters work too.
	r = httptest.NewRequest("PUT", "/b/k?x-amz-server-side-encryption=aws:kms&x-amz-server-side-encryption-aws-kms-key-id=key-2", nil)
	sse = sseFromRequest(r)
	require.NotNil(t, sse)
	assert.Equal(t, "key-2", sse.KMSKeyID)
}

func TestUserMetadataFromRequest(t *testing.T) {
	r := httptest.NewRequest("PUT", "/b/k", nil)
	assert.Nil(t, userMetadataFromRequest(r))

	r.Header.Set("x-amz-meta-Project", "s3mock")
	r.Header.Set("X-Amz-Meta-OWNER", "qa")
	r.Header.Set("Content-Type", "text/plain")

	meta := userMetadataFromRequest(r)
	assert.Equal(t, map[string]string{"project": "s3mock", "owner": "qa"}, meta)
}

func TestChecksumFromRequest(t *testing.T) {
	r := httptest.NewRequest("PUT", "/b/k", nil)
	alg, value := checksumFromRequest(r)
	assert.Empty(t, alg)
	assert.Empty(t, value)

	r.Header.Set(headerChecksumAlgorithm, "crc32")
	r.Header.Set("x-amz-checksum-crc32", "AAAAAA==")
	alg, value = checksumFromRequest(r)
	assert.Equal(t, object.ChecksumCRC32, alg)
	assert.Equal(t, "AAAAAA==", value)

	// The value header alone selects the algorithm.
	r = httptest.NewRequest("PUT", "/b/k", nil)
	r.Header.Set("x-amz-checksum-sha256", "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=")
	alg, value = checksumFromRequest(r)
	assert.Equal(t, object.ChecksumSHA256, alg)
	assert.NotEmpty(t, value)
}

func TestRetentionFromRequest(t *testing.T) {
	r := httptest.NewRequest("PUT", "/b/k", nil)
	ret, err := retentionFromRequest(r)
	require.NoError(t, err)
	assert.Nil(t, ret)

	r.Header.Set(headerRetentionMode, object.RetentionGovernance)
	_, err = retentionFromRequest(r)
	assert.ErrorIs(t, err, object.ErrInvalidRequest)

	r.Header.Set(headerRetentionDate, "2030-01-01T00:00:00Z")
	ret, err = retentionFromRequest(r)
	require.NoError(t, err)
	require.NotNil(t, ret)
	assert.Equal(t, object.RetentionGovernance, ret.Mode)
	assert.Equal(t, 2030, ret.RetainUntilDate.Year())
}
