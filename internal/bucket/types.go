package bucket

import (
	"time"
)

// Versioning states
const (
	VersioningUnversioned = ""
	VersioningEnabled     = "Enabled"
	VersioningSuspended   = "Suspended"
)

// Metadata is the bucketMetadata.json sidecar: everything the server knows
// about a bucket besides its objects.
type Metadata struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Region    string    `json:"region"`

	VersioningStatus string `json:"versioningStatus,omitempty"`

	ObjectLockEnabled bool              `json:"objectLockEnabled,omitempty"`
	ObjectLock        *ObjectLockConfig `json:"objectLock,omitempty"`

	Lifecycle  *LifecycleConfig  `json:"lifecycle,omitempty"`
	Policy     string            `json:"policy,omitempty"`
	CORS       *CORSConfig       `json:"cors,omitempty"`
	ACL        *ACL              `json:"acl,omitempty"`
	Ownership  string            `json:"ownership,omitempty"`
	Encryption *EncryptionConfig `json:"encryption,omitempty"`
}

// ObjectLockConfig mirrors the S3 bucket object-lock configuration.
type ObjectLockConfig struct {
	ObjectLockEnabled string            `json:"objectLockEnabled"`
	DefaultRetention  *DefaultRetention `json:"defaultRetention,omitempty"`
}

// DefaultRetention is the default retention applied to new object versions.
type DefaultRetention struct {
	Mode  string `json:"mode"`
	Days  *int   `json:"days,omitempty"`
	Years *int   `json:"years,omitempty"`
}

// LifecycleConfig holds the bucket lifecycle rules.
type LifecycleConfig struct {
	Rules []LifecycleRule `json:"rules"`
}

// LifecycleRule is a single lifecycle rule.
type LifecycleRule struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Prefix     string      `json:"prefix,omitempty"`
	Expiration *Expiration `json:"expiration,omitempty"`
	Transition *Transition `json:"transition,omitempty"`

	AbortIncompleteMultipartUpload *AbortIncompleteMultipartUpload `json:"abortIncompleteMultipartUpload,omitempty"`
}

// Expiration defines when objects matched by a rule expire.
type Expiration struct {
	Days *int       `json:"days,omitempty"`
	Date *time.Time `json:"date,omitempty"`
}

// Transition defines a storage-class transition.
type Transition struct {
	Days         *int   `json:"days,omitempty"`
	StorageClass string `json:"storageClass,omitempty"`
}

// AbortIncompleteMultipartUpload aborts stale uploads after N days.
type AbortIncompleteMultipartUpload struct {
	DaysAfterInitiation int `json:"daysAfterInitiation"`
}

// CORSConfig holds the bucket CORS rules.
type CORSConfig struct {
	CORSRules []CORSRule `json:"corsRules"`
}

// CORSRule is a single CORS rule.
type CORSRule struct {
	ID             string   `json:"id,omitempty"`
	AllowedMethods []string `json:"allowedMethods"`
	AllowedOrigins []string `json:"allowedOrigins"`
	AllowedHeaders []string `json:"allowedHeaders,omitempty"`
	ExposeHeaders  []string `json:"exposeHeaders,omitempty"`
	MaxAgeSeconds  *int     `json:"maxAgeSeconds,omitempty"`
}

// EncryptionConfig is the bucket default encryption configuration. Only
// bookkeeping; no bytes are ever encrypted.
type EncryptionConfig struct {
	SSEAlgorithm   string `json:"sseAlgorithm"`
	KMSMasterKeyID string `json:"kmsMasterKeyId,omitempty"`
}

// ACL is the bucket access control list.
type ACL struct {
	Owner  Owner   `json:"owner"`
	Grants []Grant `json:"grants"`
}

// Owner identifies the bucket owner.
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
