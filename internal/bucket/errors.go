package bucket

import "errors"

// Common bucket errors
var (
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrBucketExists       = errors.New("bucket already exists")
	ErrBucketOwnedByYou   = errors.New("bucket already owned by you")
	ErrBucketNotEmpty     = errors.New("bucket not empty")
	ErrInvalidBucketName  = errors.New("invalid bucket name")
	ErrNoSuchPolicy       = errors.New("no bucket policy")
	ErrNoSuchLifecycle    = errors.New("no lifecycle configuration")
	ErrNoSuchCORS         = errors.New("no CORS configuration")
	ErrNoSuchEncryption   = errors.New("no encryption configuration")
	ErrNoObjectLockConfig = errors.New("no object lock configuration")
)
