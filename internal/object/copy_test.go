package object

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyObject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	src := putObject(t, s, "src-bucket", "src-key", "copy me", "")
	require.NoError(t, s.SetTags(ctx, "src-bucket", "src-key", "", []Tag{{Key: "env", Value: "test"}}))

	dst, err := s.CopyObject(ctx, CopyInput{
		SrcBucket: "src-bucket",
		SrcKey:    "src-key",
		DstBucket: "dst-bucket",
		DstKey:    "dst-key",
	})
	require.NoError(t, err)
	assert.Equal(t, src.ETag, dst.ETag)
	assert.Equal(t, src.Size, dst.Size)

	meta, f, err := s.GetObject(ctx, "dst-bucket", "dst-key", "")
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "copy me", string(body))

	// COPY directive carries source tags and metadata along.
	require.Len(t, meta.Tags, 1)
	assert.Equal(t, "env", meta.Tags[0].Key)
}

func TestCopyObjectReplaceDirectives(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PutObject(ctx, PutInput{
		Bucket:       "b",
		Key:          "src",
		Body:         strings.NewReader("data"),
		ContentType:  "text/plain",
		UserMetadata: map[string]string{"origin": "source"},
	})
	require.NoError(t, err)

	dst, err := s.CopyObject(ctx, CopyInput{
		SrcBucket:         "b",
		SrcKey:            "src",
		DstBucket:         "b",
		DstKey:            "dst",
		MetadataDirective: DirectiveReplace,
		TaggingDirective:  DirectiveReplace,
		ContentType:       "application/json",
		UserMetadata:      map[string]string{"origin": "copy"},
		Tags:              []Tag{{Key: "fresh", Value: "yes"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", dst.ContentType)
	assert.Equal(t, map[string]string{"origin": "copy"}, dst.UserMetadata)
	require.Len(t, dst.Tags, 1)
	assert.Equal(t, "fresh", dst.Tags[0].Key)
}

func TestSelfCopyRequiresReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putObject(t, s, "b", "k", "data", "")

	_, err := s.CopyObject(ctx, CopyInput{
		SrcBucket: "b",
		SrcKey:    "k",
		DstBucket: "b",
		DstKey:    "k",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	// With REPLACE the self-copy refreshes metadata in place.
	meta, err := s.CopyObject(ctx, CopyInput{
		SrcBucket:         "b",
		SrcKey:            "k",
		DstBucket:         "b",
		DstKey:            "k",
		MetadataDirective: DirectiveReplace,
		ContentType:       "text/csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", meta.ContentType)
}

func TestCopyObjectSourceVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1 := putObject(t, s, "b", "k", "old", versioningEnabled)
	putObject(t, s, "b", "k", "new", versioningEnabled)

	dst, err := s.CopyObject(ctx, CopyInput{
		SrcBucket:    "b",
		SrcKey:       "k",
		SrcVersionID: v1.VersionID,
		DstBucket:    "b",
		DstKey:       "restored",
	})
	require.NoError(t, err)
	assert.Equal(t, v1.ETag, dst.ETag)

	_, f, err := s.GetObject(ctx, "b", "restored", "")
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "old", string(body))
}

func TestCopyObjectMissingSource(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CopyObject(context.Background(), CopyInput{
		SrcBucket: "b",
		SrcKey:    "ghost",
		DstBucket: "b",
		DstKey:    "dst",
	})
	assert.ErrorIs(t, err, ErrNoSuchKey)
}

func TestCopyIntoVersionedBucket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putObject(t, s, "src", "k", "data", "")

	dst, err := s.CopyObject(ctx, CopyInput{
		SrcBucket:  "src",
		SrcKey:     "k",
		DstBucket:  "dst",
		DstKey:     "k",
		Versioning: versioningEnabled,
	})
	require.NoError(t, err)
	assert.NotEqual(t, NullVersionID, dst.VersionID)
}

func TestOpenRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putObject(t, s, "b", "k", "0123456789", "")

	rc, err := s.OpenRange(ctx, "b", "k", "", 3, 4)
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(body))
}
