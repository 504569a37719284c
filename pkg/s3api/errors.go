package s3api

import (
	"errors"
	"net/http"

	"github.com/s3mock/s3mock/internal/bucket"
	"github.com/s3mock/s3mock/internal/object"
	"github.com/s3mock/s3mock/internal/storage"
)

// apiError is a domain error resolved to its S3 code and HTTP status.
type apiError struct {
	Code    string
	Message string
	Status  int
}

type errorMapping struct {
	sentinel error
	code     string
	status   int
}

// Mapping order matters only for wrapped chains carrying several sentinels,
// which does not occur; first match wins.
var errorMappings = []errorMapping{
	{bucket.ErrBucketNotFound, "NoSuchBucket", http.StatusNotFound},
	{bucket.ErrBucketOwnedByYou, "BucketAlreadyOwnedByYou", http.StatusConflict},
	{bucket.ErrBucketExists, "BucketAlreadyExists", http.StatusConflict},
	{bucket.ErrBucketNotEmpty, "BucketNotEmpty", http.StatusConflict},
	{bucket.ErrInvalidBucketName, "InvalidBucketName", http.StatusBadRequest},
	{bucket.ErrNoSuchPolicy, "NoSuchBucketPolicy", http.StatusNotFound},
	{bucket.ErrNoSuchLifecycle, "NoSuchLifecycleConfiguration", http.StatusNotFound},
	{bucket.ErrNoSuchCORS, "NoSuchCORSConfiguration", http.StatusNotFound},
	{bucket.ErrNoSuchEncryption, "ServerSideEncryptionConfigurationNotFoundError", http.StatusNotFound},
	{bucket.ErrNoObjectLockConfig, "ObjectLockConfigurationNotFoundError", http.StatusNotFound},

	{object.ErrNoSuchKey, "NoSuchKey", http.StatusNotFound},
	{object.ErrNoSuchVersion, "NoSuchVersion", http.StatusNotFound},
	{object.ErrDeleteMarker, "MethodNotAllowed", http.StatusMethodNotAllowed},
	{object.ErrNoSuchUpload, "NoSuchUpload", http.StatusNotFound},
	{object.ErrInvalidPartOrder, "InvalidPartOrder", http.StatusBadRequest},
	{object.ErrInvalidPart, "InvalidPart", http.StatusBadRequest},
	{object.ErrEntityTooSmall, "EntityTooSmall", http.StatusBadRequest},
	{object.ErrInvalidRange, "InvalidRange", http.StatusRequestedRangeNotSatisfiable},
	{object.ErrPreconditionFailed, "PreconditionFailed", http.StatusPreconditionFailed},
	{object.ErrBadDigest, "BadDigest", http.StatusBadRequest},
	{object.ErrInvalidTag, "InvalidTag", http.StatusBadRequest},
	{object.ErrKeyTooLong, "KeyTooLongError", http.StatusBadRequest},
	{object.ErrInvalidRequest, "InvalidRequest", http.StatusBadRequest},
	{object.ErrMetadataTooLarge, "MetadataTooLarge", http.StatusBadRequest},
	{object.ErrRetentionLocked, "AccessDenied", http.StatusForbidden},
	{object.ErrAccessDenied, "AccessDenied", http.StatusForbidden},

	{storage.ErrInvalidPath, "InvalidRequest", http.StatusBadRequest},
}

// resolveError maps a domain error to its S3 representation. Unrecognized
// errors become InternalError with a generic message; the cause is logged at
// the call site, never leaked to the client.
func resolveError(err error) apiError {
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			return apiError{Code: m.code, Message: err.Error(), Status: m.status}
		}
	}
	return apiError{
		Code:    "InternalError",
		Message: "We encountered an internal error. Please try again.",
		Status:  http.StatusInternalServerError,
	}
}
