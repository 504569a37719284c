package object

import (
	"strings"
	"time"
)

// Conditions are the parsed conditional request headers of a GET/HEAD or
// the x-amz-copy-source-if-* headers of a copy.
type Conditions struct {
	IfMatch           []string
	IfNoneMatch       []string
	IfModifiedSince   *time.Time
	IfUnmodifiedSince *time.Time
}

// Empty reports whether no condition was supplied.
func (c Conditions) Empty() bool {
	return len(c.IfMatch) == 0 && len(c.IfNoneMatch) == 0 &&
		c.IfModifiedSince == nil && c.IfUnmodifiedSince == nil
}

func etagMatches(candidates []string, etag string) bool {
	for _, c := range candidates {
		c = strings.Trim(strings.TrimSpace(c), `"`)
		if c == "*" || c == etag {
			return true
		}
	}
	return false
}

// CheckConditions evaluates preconditions against a version's ETag and
// LastModified. ETag conditions are evaluated before date conditions, and a
// supplied ETag condition suppresses the corresponding date condition, per
// RFC 9110. LastModified is compared at second precision, rounded down.
func CheckConditions(meta *Metadata, c Conditions) error {
	modified := meta.LastModified.Truncate(time.Second)

	if len(c.IfMatch) > 0 {
		if !etagMatches(c.IfMatch, meta.ETag) {
			return ErrPreconditionFailed
		}
	} else if c.IfUnmodifiedSince != nil {
		if modified.After(*c.IfUnmodifiedSince) {
			return ErrPreconditionFailed
		}
	}

	if len(c.IfNoneMatch) > 0 {
		if etagMatches(c.IfNoneMatch, meta.ETag) {
			return ErrNotModified
		}
	} else if c.IfModifiedSince != nil {
		if !modified.After(*c.IfModifiedSince) {
			return ErrNotModified
		}
	}

	return nil
}
