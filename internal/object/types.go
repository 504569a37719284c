package object

import (
	"time"
)

// Version ids for buckets without versioning enabled.
const NullVersionID = "null"

// User metadata is capped at 2 KiB total (keys + values), matching S3.
const MaxUserMetadataBytes = 2 * 1024

// Object keys are capped at 1024 bytes, matching S3.
const MaxKeyLength = 1024

// Tagging limits
const (
	MaxTags        = 10
	MaxTagKeyLen   = 128
	MaxTagValueLen = 256
)

// Retention modes
const (
	RetentionGovernance = "GOVERNANCE"
	RetentionCompliance = "COMPLIANCE"
)

// Legal hold states
const (
	LegalHoldOn  = "ON"
	LegalHoldOff = "OFF"
)

// Metadata is the objectMetadata.json sidecar: everything about a stored
// object version except its bytes.
type Metadata struct {
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	VersionID    string    `json:"versionId"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	ETag         string    `json:"etag"`
	StorageClass string    `json:"storageClass,omitempty"`
	DeleteMarker bool      `json:"deleteMarker,omitempty"`
	PartCount    int       `json:"partCount,omitempty"`

	ContentType        string `json:"contentType,omitempty"`
	ContentEncoding    string `json:"contentEncoding,omitempty"`
	ContentLanguage    string `json:"contentLanguage,omitempty"`
	ContentDisposition string `json:"contentDisposition,omitempty"`
	CacheControl       string `json:"cacheControl,omitempty"`
	Expires            string `json:"expires,omitempty"`

	UserMetadata map[string]string `json:"userMetadata,omitempty"`
	Tags         []Tag             `json:"tags,omitempty"`
	ACL          *ACL              `json:"acl,omitempty"`
	LegalHold    string            `json:"legalHold,omitempty"`
	Retention    *Retention        `json:"retention,omitempty"`
	SSE          *SSEInfo          `json:"sse,omitempty"`
	Checksum     *ChecksumInfo     `json:"checksum,omitempty"`
}

// Tag is a single object tag.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Retention is the object-lock retention setting of a version.
type Retention struct {
	Mode            string    `json:"mode"`
	RetainUntilDate time.Time `json:"retainUntilDate"`
}

// SSEInfo records the server-side encryption bookkeeping for a version. The
// emulator never encrypts; key material is never stored.
type SSEInfo struct {
	Algorithm string `json:"algorithm"`
	KMSKeyID  string `json:"kmsKeyId,omitempty"`
}

// ChecksumInfo records the client-requested additional checksum.
type ChecksumInfo struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// ACL is the access control list of an object version.
type ACL struct {
	Owner  Owner   `json:"owner"`
	Grants []Grant `json:"grants"`
}

// Owner identifies the object owner.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Grant is a single ACL grant.
type Grant struct {
	Grantee    Grantee `json:"grantee"`
	Permission string  `json:"permission"`
}

// Grantee is the recipient of a grant.
type Grantee struct {
	Type        string `json:"type"`
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	URI         string `json:"uri,omitempty"`
}

// ACL permission constants
const (
	PermissionFullControl = "FULL_CONTROL"
	PermissionWrite       = "WRITE"
	PermissionWriteACP    = "WRITE_ACP"
	PermissionRead        = "READ"
	PermissionReadACP     = "READ_ACP"
)

// Pre-defined grantee groups
const (
	GranteeTypeCanonicalUser = "CanonicalUser"
	GranteeTypeGroup         = "Group"

	GroupAllUsers           = "http://acs.amazonaws.com/groups/global/AllUsers"
	GroupAuthenticatedUsers = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
)

// DefaultOwner is the single account this emulator serves.
var DefaultOwner = Owner{
	ID:          "79a59df900b949e55d96a1e698fbacedfd6e09d98eacf8f8d5218e7cd47ef2be",
	DisplayName: "s3mock",
}

// DefaultACL grants the owner full control.
func DefaultACL() *ACL {
	return &ACL{
		Owner: DefaultOwner,
		Grants: []Grant{{
			Grantee:    Grantee{Type: GranteeTypeCanonicalUser, ID: DefaultOwner.ID, DisplayName: DefaultOwner.DisplayName},
			Permission: PermissionFullControl,
		}},
	}
}

// ListResult is the outcome of ListObjects (V1 or V2 share it).
type ListResult struct {
	Objects        []*Metadata
	CommonPrefixes []string
	IsTruncated    bool
	NextMarker     string
}

// VersionListResult is the outcome of ListObjectVersions.
type VersionListResult struct {
	Versions            []*Metadata
	CommonPrefixes      []string
	IsTruncated         bool
	NextKeyMarker       string
	NextVersionIDMarker string
}

// Upload is the uploadMetadata.json sidecar of an in-progress multipart
// upload: initiation metadata captured until completion.
type Upload struct {
	UploadID     string    `json:"uploadId"`
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Initiated    time.Time `json:"initiated"`
	StorageClass string    `json:"storageClass,omitempty"`

	ContentType        string `json:"contentType,omitempty"`
	ContentEncoding    string `json:"contentEncoding,omitempty"`
	ContentLanguage    string `json:"contentLanguage,omitempty"`
	ContentDisposition string `json:"contentDisposition,omitempty"`
	CacheControl       string `json:"cacheControl,omitempty"`
	Expires            string `json:"expires,omitempty"`

	UserMetadata      map[string]string `json:"userMetadata,omitempty"`
	Tags              []Tag             `json:"tags,omitempty"`
	ACL               *ACL              `json:"acl,omitempty"`
	SSE               *SSEInfo          `json:"sse,omitempty"`
	ChecksumAlgorithm string            `json:"checksumAlgorithm,omitempty"`
}

// Part describes a staged part of a multipart upload.
type Part struct {
	PartNumber   int       `json:"partNumber"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// CompletedPart is one entry of the client's CompleteMultipartUpload list.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// Multipart limits
const (
	MinPartNumber = 1
	MaxPartNumber = 10000

	// Every part except the last must be at least this large on complete.
	MinPartSize = 5 * 1024 * 1024
)
