package s3api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/xml"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/s3mock/s3mock/internal/bucket"
	"github.com/s3mock/s3mock/internal/kms"
	"github.com/s3mock/s3mock/internal/object"
)

// ISO8601 timestamp format used in S3 XML bodies.
const timeFormat = "2006-01-02T15:04:05.000Z"

// Handler implements the S3 REST API on top of the bucket and object stores.
type Handler struct {
	buckets *bucket.Store
	objects *object.Store
	keys    *kms.Registry
}

// NewHandler creates an API handler.
func NewHandler(buckets *bucket.Store, objects *object.Store, keys *kms.Registry) *Handler {
	return &Handler{
		buckets: buckets,
		objects: objects,
		keys:    keys,
	}
}

// RegisterRoutes wires all S3 operations into the router. Subresource routes
// carry Queries() matchers and must be registered before the bare
// method routes; mux dispatches in registration order.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.ListBuckets).Methods("GET")

	bucketRouter := router.PathPrefix("/{bucket}").Subrouter()

	for _, path := range []string{"", "/"} {
		// Bucket subresources first.
		bucketRouter.HandleFunc(path, h.GetBucketLocation).Methods("GET").Queries("location", "")
		bucketRouter.HandleFunc(path, h.GetBucketVersioning).Methods("GET").Queries("versioning", "")
		bucketRouter.HandleFunc(path, h.PutBucketVersioning).Methods("PUT").Queries("versioning", "")
		bucketRouter.HandleFunc(path, h.GetBucketPolicy).Methods("GET").Queries("policy", "")
		bucketRouter.HandleFunc(path, h.PutBucketPolicy).Methods("PUT").Queries("policy", "")
		bucketRouter.HandleFunc(path, h.DeleteBucketPolicy).Methods("DELETE").Queries("policy", "")
		bucketRouter.HandleFunc(path, h.GetBucketLifecycle).Methods("GET").Queries("lifecycle", "")
		bucketRouter.HandleFunc(path, h.PutBucketLifecycle).Methods("PUT").Queries("lifecycle", "")
		bucketRouter.HandleFunc(path, h.DeleteBucketLifecycle).Methods("DELETE").Queries("lifecycle", "")
		bucketRouter.HandleFunc(path, h.GetBucketCORS).Methods("GET").Queries("cors", "")
		bucketRouter.HandleFunc(path, h.PutBucketCORS).Methods("PUT").Queries("cors", "")
		bucketRouter.HandleFunc(path, h.DeleteBucketCORS).Methods("DELETE").Queries("cors", "")
		bucketRouter.HandleFunc(path, h.GetBucketACL).Methods("GET").Queries("acl", "")
		bucketRouter.HandleFunc(path, h.PutBucketACL).Methods("PUT").Queries("acl", "")
		bucketRouter.HandleFunc(path, h.GetBucketEncryption).Methods("GET").Queries("encryption", "")
		bucketRouter.HandleFunc(path, h.PutBucketEncryption).Methods("PUT").Queries("encryption", "")
		bucketRouter.HandleFunc(path, h.DeleteBucketEncryption).Methods("DELETE").Queries("encryption", "")
		bucketRouter.HandleFunc(path, h.GetObjectLockConfiguration).Methods("GET").Queries("object-lock", "")
		bucketRouter.HandleFunc(path, h.PutObjectLockConfiguration).Methods("PUT").Queries("object-lock", "")
		bucketRouter.HandleFunc(path, h.GetOwnershipControls).Methods("GET").Queries("ownershipControls", "")
		bucketRouter.HandleFunc(path, h.PutOwnershipControls).Methods("PUT").Queries("ownershipControls", "")
		bucketRouter.HandleFunc(path, h.DeleteOwnershipControls).Methods("DELETE").Queries("ownershipControls", "")
		bucketRouter.HandleFunc(path, h.ListObjectVersions).Methods("GET").Queries("versions", "")
		bucketRouter.HandleFunc(path, h.ListMultipartUploads).Methods("GET").Queries("uploads", "")
		bucketRouter.HandleFunc(path, h.DeleteObjects).Methods("POST").Queries("delete", "")

		// Bare bucket operations.
		bucketRouter.HandleFunc(path, h.HeadBucket).Methods("HEAD")
		bucketRouter.HandleFunc(path, h.CreateBucket).Methods("PUT")
		bucketRouter.HandleFunc(path, h.DeleteBucket).Methods("DELETE")
		bucketRouter.HandleFunc(path, h.ListObjects).Methods("GET")
	}

	objectRouter := bucketRouter.PathPrefix("/{key:.+}").Subrouter()

	// Multipart operations.
	objectRouter.HandleFunc("", h.CreateMultipartUpload).Methods("POST").Queries("uploads", "")
	objectRouter.HandleFunc("", h.UploadPartCopy).Methods("PUT").
		Queries("partNumber", "{partNumber}", "uploadId", "{uploadId}").
		Headers(headerCopySource, "")
	objectRouter.HandleFunc("", h.UploadPart).Methods("PUT").Queries("partNumber", "{partNumber}", "uploadId", "{uploadId}")
	objectRouter.HandleFunc("", h.CompleteMultipartUpload).Methods("POST").Queries("uploadId", "{uploadId}")
	objectRouter.HandleFunc("", h.AbortMultipartUpload).Methods("DELETE").Queries("uploadId", "{uploadId}")
	objectRouter.HandleFunc("", h.ListParts).Methods("GET").Queries("uploadId", "{uploadId}")

	// Object subresources.
	objectRouter.HandleFunc("", h.GetObjectTagging).Methods("GET").Queries("tagging", "")
	objectRouter.HandleFunc("", h.PutObjectTagging).Methods("PUT").Queries("tagging", "")
	objectRouter.HandleFunc("", h.DeleteObjectTagging).Methods("DELETE").Queries("tagging", "")
	objectRouter.HandleFunc("", h.GetObjectACL).Methods("GET").Queries("acl", "")
	objectRouter.HandleFunc("", h.PutObjectACL).Methods("PUT").Queries("acl", "")
	objectRouter.HandleFunc("", h.GetObjectRetention).Methods("GET").Queries("retention", "")
	objectRouter.HandleFunc("", h.PutObjectRetention).Methods("PUT").Queries("retention", "")
	objectRouter.HandleFunc("", h.GetObjectLegalHold).Methods("GET").Queries("legal-hold", "")
	objectRouter.HandleFunc("", h.PutObjectLegalHold).Methods("PUT").Queries("legal-hold", "")

	// Copy before bare PUT; the header matcher disambiguates.
	objectRouter.HandleFunc("", h.CopyObject).Methods("PUT").Headers(headerCopySource, "")

	// Bare object operations.
	objectRouter.HandleFunc("", h.HeadObject).Methods("HEAD")
	objectRouter.HandleFunc("", h.GetObject).Methods("GET")
	objectRouter.HandleFunc("", h.PutObject).Methods("PUT")
	objectRouter.HandleFunc("", h.DeleteObject).Methods("DELETE")
}

// bucketName extracts the bucket from mux vars.
func bucketName(r *http.Request) string {
	return mux.Vars(r)["bucket"]
}

// objectKey extracts the object key from mux vars, already decoded by mux.
func objectKey(r *http.Request) string {
	return mux.Vars(r)["key"]
}

// generateRequestID returns a 16 hex char request id.
func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return strings.ToUpper(hex.EncodeToString(b))
}

// generateHostID returns a 64 hex char x-amz-id-2 value.
func generateHostID() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}

func addAmzHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Amz-Request-Id", generateRequestID())
	w.Header().Set("X-Amz-Id-2", generateHostID())
	w.Header().Set("Accept-Ranges", "bytes")
}

// writeXML serializes v with the XML declaration.
func (h *Handler) writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	addAmzHeaders(w)
	w.WriteHeader(status)
	w.Write([]byte(xml.Header))
	if err := xml.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Failed to encode XML response")
	}
}

// writeErrorResponse emits the S3 error envelope.
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	WriteErrorResponse(w, r, code, message, status)
}

// WriteErrorResponse emits the S3 error envelope. Exported for middleware
// that rejects requests before they reach a handler.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	requestID := generateRequestID()
	hostID := generateHostID()

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("X-Amz-Request-Id", requestID)
	w.Header().Set("X-Amz-Id-2", hostID)
	w.Header().Set("Date", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(status)

	w.Write([]byte(xml.Header))

	resp := Error{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		HostID:    hostID,
	}
	switch code {
	case "NoSuchKey":
		resp.Key = strings.TrimPrefix(objectKey(r), "/")
	case "NoSuchBucket", "BucketAlreadyExists", "BucketAlreadyOwnedByYou", "BucketNotEmpty":
		resp.BucketName = bucketName(r)
	default:
		resp.Resource = r.URL.Path
	}

	if err := xml.NewEncoder(w).Encode(resp); err != nil {
		logrus.WithError(err).Error("Failed to encode error response")
	}
}

// WriteKMSKeyNotFound emits the KMS-style rejection of a write naming an
// unknown SSE-KMS key: HTTP 400 with a KMS.NotFoundException envelope.
func WriteKMSKeyNotFound(w http.ResponseWriter, keyID string) {
	requestID := generateRequestID()

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("X-Amz-Request-Id", requestID)
	w.WriteHeader(http.StatusBadRequest)

	w.Write([]byte(xml.Header))
	resp := Error{
		Code:      "KMS.NotFoundException",
		Message:   "Key " + keyID + " does not exist!",
		Resource:  "kmsService",
		RequestID: requestID,
	}
	if err := xml.NewEncoder(w).Encode(resp); err != nil {
		logrus.WithError(err).Error("Failed to encode error response")
	}
}

// sendError resolves a domain error and emits it. Unmapped errors are logged
// with their cause before the generic InternalError goes out.
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	resolved := resolveError(err)
	if resolved.Status == http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
	}
	h.writeErrorResponse(w, r, resolved.Code, resolved.Message, resolved.Status)
}

// requireBucket resolves the bucket or emits NoSuchBucket.
func (h *Handler) requireBucket(w http.ResponseWriter, r *http.Request) (*bucket.Metadata, bool) {
	meta, err := h.buckets.GetBucket(r.Context(), bucketName(r))
	if err != nil {
		h.sendError(w, r, err)
		return nil, false
	}
	return meta, true
}
