package object

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func condMeta() *Metadata {
	return &Metadata{
		ETag:         "49f68a5c8493ec2c0bf489821c21fc3b",
		LastModified: time.Date(2026, 3, 10, 12, 0, 0, 500e6, time.UTC),
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestCheckConditionsEmpty(t *testing.T) {
	assert.NoError(t, CheckConditions(condMeta(), Conditions{}))
	assert.True(t, Conditions{}.Empty())
}

func TestIfMatch(t *testing.T) {
	meta := condMeta()

	assert.NoError(t, CheckConditions(meta, Conditions{IfMatch: []string{meta.ETag}}))
	assert.NoError(t, CheckConditions(meta, Conditions{IfMatch: []string{`"` + meta.ETag + `"`}}))
	assert.NoError(t, CheckConditions(meta, Conditions{IfMatch: []string{"*"}}))
	assert.ErrorIs(t, CheckConditions(meta, Conditions{IfMatch: []string{"deadbeef"}}), ErrPreconditionFailed)
}

func TestIfNoneMatch(t *testing.T) {
	meta := condMeta()

	assert.ErrorIs(t, CheckConditions(meta, Conditions{IfNoneMatch: []string{meta.ETag}}), ErrNotModified)
	assert.ErrorIs(t, CheckConditions(meta, Conditions{IfNoneMatch: []string{"*"}}), ErrNotModified)
	assert.NoError(t, CheckConditions(meta, Conditions{IfNoneMatch: []string{"deadbeef"}}))
}

func TestDateConditions(t *testing.T) {
	meta := condMeta()
	before := meta.LastModified.Add(-time.Hour)
	after := meta.LastModified.Add(time.Hour)

	assert.NoError(t, CheckConditions(meta, Conditions{IfModifiedSince: ptrTime(before)}))
	assert.ErrorIs(t, CheckConditions(meta, Conditions{IfModifiedSince: ptrTime(after)}), ErrNotModified)

	assert.NoError(t, CheckConditions(meta, Conditions{IfUnmodifiedSince: ptrTime(after)}))
	assert.ErrorIs(t, CheckConditions(meta, Conditions{IfUnmodifiedSince: ptrTime(before)}), ErrPreconditionFailed)

	// HTTP dates carry second precision; sub-second modification must not
	// fail an exact-second match.
	exact := meta.LastModified.Truncate(time.Second)
	assert.NoError(t, CheckConditions(meta, Conditions{IfUnmodifiedSince: ptrTime(exact)}))
	assert.ErrorIs(t, CheckConditions(meta, Conditions{IfModifiedSince: ptrTime(exact)}), ErrNotModified)
}

func TestETagConditionsSuppressDates(t *testing.T) {
	meta := condMeta()
	before := meta.LastModified.Add(-time.Hour)
	after := meta.LastModified.Add(time.Hour)

	// A satisfied If-Match suppresses a failing If-Unmodified-Since.
	assert.NoError(t, CheckConditions(meta, Conditions{
		IfMatch:           []string{meta.ETag},
		IfUnmodifiedSince: ptrTime(before),
	}))

	// A satisfied If-None-Match suppresses a failing If-Modified-Since.
	assert.NoError(t, CheckConditions(meta, Conditions{
		IfNoneMatch:     []string{"deadbeef"},
		IfModifiedSince: ptrTime(after),
	}))
}
