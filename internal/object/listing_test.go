package object

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListObjectsPrefixAndDelimiter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"a/1", "a/2", "a/b/3", "b/1", "top"} {
		putObject(t, s, "b", key, "x", "")
	}

	t.Run("no filters", func(t *testing.T) {
		res, err := s.ListObjects(ctx, "b", "", "", "", 1000)
		require.NoError(t, err)
		require.Len(t, res.Objects, 5)
		assert.Empty(t, res.CommonPrefixes)
		assert.False(t, res.IsTruncated)
	})

	t.Run("delimiter rolls up", func(t *testing.T) {
		res, err := s.ListObjects(ctx, "b", "", "/", "", 1000)
		require.NoError(t, err)
		require.Len(t, res.Objects, 1)
		assert.Equal(t, "top", res.Objects[0].Key)
		assert.Equal(t, []string{"a/", "b/"}, res.CommonPrefixes)
	})

	t.Run("prefix with delimiter", func(t *testing.T) {
		res, err := s.ListObjects(ctx, "b", "a/", "/", "", 1000)
		require.NoError(t, err)
		require.Len(t, res.Objects, 2)
		assert.Equal(t, "a/1", res.Objects[0].Key)
		assert.Equal(t, "a/2", res.Objects[1].Key)
		assert.Equal(t, []string{"a/b/"}, res.CommonPrefixes)
	})

	t.Run("prefix without delimiter", func(t *testing.T) {
		res, err := s.ListObjects(ctx, "b", "a/", "", "", 1000)
		require.NoError(t, err)
		require.Len(t, res.Objects, 3)
	})
}

func TestListObjectsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var all []string
	for i := 0; i < 7; i++ {
		key := fmt.Sprintf("key-%02d", i)
		all = append(all, key)
		putObject(t, s, "b", key, "x", "")
	}

	// Walk the listing two keys at a time; pages must neither overlap nor
	// skip.
	var seen []string
	marker := ""
	for {
		res, err := s.ListObjects(ctx, "b", "", "", marker, 2)
		require.NoError(t, err)
		for _, o := range res.Objects {
			seen = append(seen, o.Key)
		}
		if !res.IsTruncated {
			break
		}
		require.NotEmpty(t, res.NextMarker)
		marker = res.NextMarker
	}
	assert.Equal(t, all, seen)
}

func TestListObjectsMaxKeysZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putObject(t, s, "b", "k", "x", "")

	res, err := s.ListObjects(ctx, "b", "", "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, res.Objects)
	assert.False(t, res.IsTruncated)
	assert.Empty(t, res.NextMarker)
}

func TestListVersionsMaxKeysZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putObject(t, s, "b", "k", "x", versioningEnabled)
	putObject(t, s, "b", "k", "y", versioningEnabled)

	res, err := s.ListVersions(ctx, "b", "", "", "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, res.Versions)
	assert.False(t, res.IsTruncated)
	assert.Empty(t, res.NextKeyMarker)
}

func TestListObjectsHidesDeleteMarkers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putObject(t, s, "b", "visible", "x", versioningEnabled)
	putObject(t, s, "b", "deleted", "x", versioningEnabled)
	_, err := s.DeleteObject(ctx, "b", "deleted", "", versioningEnabled)
	require.NoError(t, err)

	res, err := s.ListObjects(ctx, "b", "", "", "", 1000)
	require.NoError(t, err)
	require.Len(t, res.Objects, 1)
	assert.Equal(t, "visible", res.Objects[0].Key)
}

func TestListVersionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v1 := putObject(t, s, "b", "k", "one", versioningEnabled)
	v2 := putObject(t, s, "b", "k", "two", versioningEnabled)
	del, err := s.DeleteObject(ctx, "b", "k", "", versioningEnabled)
	require.NoError(t, err)

	res, err := s.ListVersions(ctx, "b", "", "", "", "", 1000)
	require.NoError(t, err)
	require.Len(t, res.Versions, 3)

	// Newest first: the delete marker, then v2, then v1.
	assert.Equal(t, del.VersionID, res.Versions[0].VersionID)
	assert.True(t, res.Versions[0].DeleteMarker)
	assert.Equal(t, v2.VersionID, res.Versions[1].VersionID)
	assert.Equal(t, v1.VersionID, res.Versions[2].VersionID)
}

func TestListVersionsPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		putObject(t, s, "b", key, "1", versioningEnabled)
		putObject(t, s, "b", key, "2", versioningEnabled)
	}

	var seen [][2]string
	keyMarker, versionMarker := "", ""
	for {
		res, err := s.ListVersions(ctx, "b", "", "", keyMarker, versionMarker, 2)
		require.NoError(t, err)
		for _, v := range res.Versions {
			seen = append(seen, [2]string{v.Key, v.VersionID})
		}
		if !res.IsTruncated {
			break
		}
		keyMarker, versionMarker = res.NextKeyMarker, res.NextVersionIDMarker
	}

	require.Len(t, seen, 6)
	for i := 1; i < len(seen); i++ {
		assert.NotEqual(t, seen[i-1], seen[i], "pages returned a duplicate row")
	}
}

func TestListVersionsDelimiter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	putObject(t, s, "b", "dir/nested", "x", versioningEnabled)
	putObject(t, s, "b", "plain", "x", versioningEnabled)

	res, err := s.ListVersions(ctx, "b", "", "/", "", "", 1000)
	require.NoError(t, err)
	require.Len(t, res.Versions, 1)
	assert.Equal(t, "plain", res.Versions[0].Key)
	assert.Equal(t, []string{"dir/"}, res.CommonPrefixes)
}
