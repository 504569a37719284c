package object

import "errors"

// Common object errors
var (
	ErrNoSuchKey          = errors.New("object not found")
	ErrNoSuchVersion      = errors.New("object version not found")
	ErrDeleteMarker       = errors.New("version is a delete marker")
	ErrBadDigest          = errors.New("digest mismatch")
	ErrInvalidRange       = errors.New("invalid range")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotModified        = errors.New("not modified")
	ErrInvalidTag         = errors.New("invalid tag")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrKeyTooLong         = errors.New("object key too long")
	ErrMetadataTooLarge   = errors.New("user metadata too large")
	ErrAccessDenied       = errors.New("access denied")
	ErrRetentionLocked    = errors.New("compliance retention cannot be shortened or removed")

	// Multipart errors
	ErrNoSuchUpload     = errors.New("multipart upload not found")
	ErrInvalidPart      = errors.New("invalid part")
	ErrInvalidPartOrder = errors.New("invalid part order")
	ErrEntityTooSmall   = errors.New("part too small")
)
