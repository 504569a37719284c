package s3api

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s3mock/s3mock/internal/bucket"
	"github.com/s3mock/s3mock/internal/object"
)

const defaultMaxKeys = 1000

// ListBuckets handles GET /.
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.buckets.ListBuckets(r.Context())
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	result := ListAllMyBucketsResult{
		Owner: Owner{ID: object.DefaultOwner.ID, DisplayName: object.DefaultOwner.DisplayName},
	}
	for _, b := range buckets {
		result.Buckets = append(result.Buckets, BucketEntry{
			Name:         b.Name,
			CreationDate: b.CreatedAt.UTC().Format(timeFormat),
		})
	}
	h.writeXML(w, http.StatusOK, result)
}

// CreateBucket handles PUT /{bucket}.
func (h *Handler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	name := bucketName(r)

	ownership := ""
	if v := r.Header.Get(headerObjectOwnership); v != "" {
		parsed, err := parseOwnership(v)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
		ownership = parsed
	}
	objectLock := r.Header.Get("x-amz-bucket-object-lock-enabled") == "true"

	// The optional CreateBucketConfiguration body names a region; ignored
	// beyond validation since a single region is served.
	if r.ContentLength != 0 {
		var cfg CreateBucketConfiguration
		if body, err := io.ReadAll(r.Body); err == nil && len(body) > 0 {
			if err := xml.Unmarshal(body, &cfg); err != nil {
				h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
				return
			}
		}
	}

	if _, err := h.buckets.CreateBucket(r.Context(), name, ownership, objectLock); err != nil {
		h.sendError(w, r, err)
		return
	}

	logrus.WithField("bucket", name).Info("Bucket created")
	addAmzHeaders(w)
	w.Header().Set("Location", "/"+name)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucket handles DELETE /{bucket}.
func (h *Handler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	if err := h.buckets.DeleteBucket(r.Context(), bucketName(r)); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// HeadBucket handles HEAD /{bucket}. Errors carry no body on HEAD.
func (h *Handler) HeadBucket(w http.ResponseWriter, r *http.Request) {
	addAmzHeaders(w)
	if !h.buckets.BucketExists(r.Context(), bucketName(r)) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetBucketLocation handles GET /{bucket}?location.
func (h *Handler) GetBucketLocation(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.requireBucket(w, r)
	if !ok {
		return
	}

	// us-east-1 is the S3 default and is reported as an empty constraint.
	region := meta.Region
	if region == "us-east-1" {
		region = ""
	}
	h.writeXML(w, http.StatusOK, LocationConstraint{Value: region})
}

// GetBucketVersioning handles GET /{bucket}?versioning.
func (h *Handler) GetBucketVersioning(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.requireBucket(w, r)
	if !ok {
		return
	}
	h.writeXML(w, http.StatusOK, VersioningConfiguration{Status: meta.VersioningStatus})
}

// PutBucketVersioning handles PUT /{bucket}?versioning.
func (h *Handler) PutBucketVersioning(w http.ResponseWriter, r *http.Request) {
	var cfg VersioningConfiguration
	if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}
	if cfg.Status != bucket.VersioningEnabled && cfg.Status != bucket.VersioningSuspended {
		h.writeErrorResponse(w, r, "IllegalVersioningConfigurationException",
			"The versioning configuration is invalid", http.StatusBadRequest)
		return
	}

	if err := h.buckets.SetVersioning(r.Context(), bucketName(r), cfg.Status); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// GetBucketPolicy handles GET /{bucket}?policy. Policies are opaque JSON.
func (h *Handler) GetBucketPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.buckets.GetPolicy(r.Context(), bucketName(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(policy))
}

// PutBucketPolicy handles PUT /{bucket}?policy.
func (h *Handler) PutBucketPolicy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		h.writeErrorResponse(w, r, "InvalidRequest", "Request body is required", http.StatusBadRequest)
		return
	}
	if err := h.buckets.SetPolicy(r.Context(), bucketName(r), string(body)); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBucketPolicy handles DELETE /{bucket}?policy.
func (h *Handler) DeleteBucketPolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.buckets.SetPolicy(r.Context(), bucketName(r), ""); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetBucketLifecycle handles GET /{bucket}?lifecycle.
func (h *Handler) GetBucketLifecycle(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.buckets.GetLifecycle(r.Context(), bucketName(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.writeXML(w, http.StatusOK, lifecycleToXML(cfg))
}

// PutBucketLifecycle handles PUT /{bucket}?lifecycle.
func (h *Handler) PutBucketLifecycle(w http.ResponseWriter, r *http.Request) {
	var cfg LifecycleConfiguration
	if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}
	if err := h.buckets.SetLifecycle(r.Context(), bucketName(r), lifecycleFromXML(&cfg)); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucketLifecycle handles DELETE /{bucket}?lifecycle.
func (h *Handler) DeleteBucketLifecycle(w http.ResponseWriter, r *http.Request) {
	if err := h.buckets.SetLifecycle(r.Context(), bucketName(r), nil); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetBucketCORS handles GET /{bucket}?cors.
func (h *Handler) GetBucketCORS(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.buckets.GetCORS(r.Context(), bucketName(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	result := CORSConfiguration{}
	for _, rule := range cfg.CORSRules {
		result.Rules = append(result.Rules, CORSRule{
			ID:             rule.ID,
			AllowedMethods: rule.AllowedMethods,
			AllowedOrigins: rule.AllowedOrigins,
			AllowedHeaders: rule.AllowedHeaders,
			ExposeHeaders:  rule.ExposeHeaders,
			MaxAgeSeconds:  rule.MaxAgeSeconds,
		})
	}
	h.writeXML(w, http.StatusOK, result)
}

// PutBucketCORS handles PUT /{bucket}?cors.
func (h *Handler) PutBucketCORS(w http.ResponseWriter, r *http.Request) {
	var cfg CORSConfiguration
	if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}

	stored := &bucket.CORSConfig{}
	for _, rule := range cfg.Rules {
		stored.CORSRules = append(stored.CORSRules, bucket.CORSRule{
			ID:             rule.ID,
			AllowedMethods: rule.AllowedMethods,
			AllowedOrigins: rule.AllowedOrigins,
			AllowedHeaders: rule.AllowedHeaders,
			ExposeHeaders:  rule.ExposeHeaders,
			MaxAgeSeconds:  rule.MaxAgeSeconds,
		})
	}
	if err := h.buckets.SetCORS(r.Context(), bucketName(r), stored); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucketCORS handles DELETE /{bucket}?cors.
func (h *Handler) DeleteBucketCORS(w http.ResponseWriter, r *http.Request) {
	if err := h.buckets.SetCORS(r.Context(), bucketName(r), nil); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetBucketACL handles GET /{bucket}?acl.
func (h *Handler) GetBucketACL(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.requireBucket(w, r)
	if !ok {
		return
	}

	acl := meta.ACL
	if acl == nil {
		def := object.DefaultACL()
		acl = &bucket.ACL{
			Owner: bucket.Owner{ID: def.Owner.ID, DisplayName: def.Owner.DisplayName},
		}
		for _, g := range def.Grants {
			acl.Grants = append(acl.Grants, bucket.Grant{
				Grantee: bucket.Grantee{
					Type:        g.Grantee.Type,
					ID:          g.Grantee.ID,
					DisplayName: g.Grantee.DisplayName,
					URI:         g.Grantee.URI,
				},
				Permission: g.Permission,
			})
		}
	}

	result := AccessControlPolicy{
		Owner: Owner{ID: acl.Owner.ID, DisplayName: acl.Owner.DisplayName},
	}
	for _, g := range acl.Grants {
		result.Grants = append(result.Grants, GrantEntry{
			Grantee: Grantee{
				Type:        g.Grantee.Type,
				ID:          g.Grantee.ID,
				DisplayName: g.Grantee.DisplayName,
				URI:         g.Grantee.URI,
			},
			Permission: g.Permission,
		})
	}
	h.writeXML(w, http.StatusOK, result)
}

// PutBucketACL handles PUT /{bucket}?acl, canned header or XML body.
func (h *Handler) PutBucketACL(w http.ResponseWriter, r *http.Request) {
	var acl *bucket.ACL

	if canned := r.Header.Get(headerACL); canned != "" {
		objACL, err := cannedACL(canned)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
		acl = bucketACLFromObject(objACL)
	} else {
		var policy AccessControlPolicy
		if err := xml.NewDecoder(r.Body).Decode(&policy); err != nil {
			h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
			return
		}
		acl = &bucket.ACL{
			Owner: bucket.Owner{ID: policy.Owner.ID, DisplayName: policy.Owner.DisplayName},
		}
		for _, g := range policy.Grants {
			acl.Grants = append(acl.Grants, bucket.Grant{
				Grantee: bucket.Grantee{
					Type:        g.Grantee.Type,
					ID:          g.Grantee.ID,
					DisplayName: g.Grantee.DisplayName,
					URI:         g.Grantee.URI,
				},
				Permission: g.Permission,
			})
		}
	}

	if err := h.buckets.SetACL(r.Context(), bucketName(r), acl); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

func bucketACLFromObject(acl *object.ACL) *bucket.ACL {
	out := &bucket.ACL{
		Owner: bucket.Owner{ID: acl.Owner.ID, DisplayName: acl.Owner.DisplayName},
	}
	for _, g := range acl.Grants {
		out.Grants = append(out.Grants, bucket.Grant{
			Grantee: bucket.Grantee{
				Type:        g.Grantee.Type,
				ID:          g.Grantee.ID,
				DisplayName: g.Grantee.DisplayName,
				URI:         g.Grantee.URI,
			},
			Permission: g.Permission,
		})
	}
	return out
}

// GetBucketEncryption handles GET /{bucket}?encryption.
func (h *Handler) GetBucketEncryption(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.buckets.GetEncryption(r.Context(), bucketName(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	result := ServerSideEncryptionConfiguration{
		Rules: []EncryptionRule{{
			ApplyServerSideEncryptionByDefault: &EncryptionByDefault{
				SSEAlgorithm:   cfg.SSEAlgorithm,
				KMSMasterKeyID: cfg.KMSMasterKeyID,
			},
		}},
	}
	h.writeXML(w, http.StatusOK, result)
}

// PutBucketEncryption handles PUT /{bucket}?encryption.
func (h *Handler) PutBucketEncryption(w http.ResponseWriter, r *http.Request) {
	var cfg ServerSideEncryptionConfiguration
	if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}
	if len(cfg.Rules) == 0 || cfg.Rules[0].ApplyServerSideEncryptionByDefault == nil {
		h.writeErrorResponse(w, r, "MalformedXML", "Encryption configuration must carry a default rule", http.StatusBadRequest)
		return
	}

	byDefault := cfg.Rules[0].ApplyServerSideEncryptionByDefault
	err := h.buckets.SetEncryption(r.Context(), bucketName(r), &bucket.EncryptionConfig{
		SSEAlgorithm:   byDefault.SSEAlgorithm,
		KMSMasterKeyID: byDefault.KMSMasterKeyID,
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// DeleteBucketEncryption handles DELETE /{bucket}?encryption.
func (h *Handler) DeleteBucketEncryption(w http.ResponseWriter, r *http.Request) {
	if err := h.buckets.SetEncryption(r.Context(), bucketName(r), nil); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetObjectLockConfiguration handles GET /{bucket}?object-lock.
func (h *Handler) GetObjectLockConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.buckets.GetObjectLock(r.Context(), bucketName(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	result := ObjectLockConfiguration{ObjectLockEnabled: cfg.ObjectLockEnabled}
	if cfg.DefaultRetention != nil {
		result.Rule = &ObjectLockRule{
			DefaultRetention: &DefaultRetention{
				Mode:  cfg.DefaultRetention.Mode,
				Days:  cfg.DefaultRetention.Days,
				Years: cfg.DefaultRetention.Years,
			},
		}
	}
	h.writeXML(w, http.StatusOK, result)
}

// PutObjectLockConfiguration handles PUT /{bucket}?object-lock.
func (h *Handler) PutObjectLockConfiguration(w http.ResponseWriter, r *http.Request) {
	var cfg ObjectLockConfiguration
	if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}

	stored := &bucket.ObjectLockConfig{ObjectLockEnabled: cfg.ObjectLockEnabled}
	if cfg.Rule != nil && cfg.Rule.DefaultRetention != nil {
		stored.DefaultRetention = &bucket.DefaultRetention{
			Mode:  cfg.Rule.DefaultRetention.Mode,
			Days:  cfg.Rule.DefaultRetention.Days,
			Years: cfg.Rule.DefaultRetention.Years,
		}
	}
	if err := h.buckets.SetObjectLock(r.Context(), bucketName(r), stored); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// GetOwnershipControls handles GET /{bucket}?ownershipControls.
func (h *Handler) GetOwnershipControls(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.requireBucket(w, r)
	if !ok {
		return
	}
	if meta.Ownership == "" {
		h.writeErrorResponse(w, r, "OwnershipControlsNotFoundError",
			"The bucket ownership controls were not found", http.StatusNotFound)
		return
	}
	h.writeXML(w, http.StatusOK, OwnershipControls{
		Rules: []OwnershipRule{{ObjectOwnership: meta.Ownership}},
	})
}

// PutOwnershipControls handles PUT /{bucket}?ownershipControls.
func (h *Handler) PutOwnershipControls(w http.ResponseWriter, r *http.Request) {
	var cfg OwnershipControls
	if err := xml.NewDecoder(r.Body).Decode(&cfg); err != nil || len(cfg.Rules) == 0 {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}
	ownership, err := parseOwnership(cfg.Rules[0].ObjectOwnership)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	if err := h.buckets.SetOwnership(r.Context(), bucketName(r), ownership); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// DeleteOwnershipControls handles DELETE /{bucket}?ownershipControls.
func (h *Handler) DeleteOwnershipControls(w http.ResponseWriter, r *http.Request) {
	if err := h.buckets.SetOwnership(r.Context(), bucketName(r), ""); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// parseMaxKeys reads a positive integer query parameter with a default.
func parseMaxKeys(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultMaxKeys, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", object.ErrInvalidRequest, name)
	}
	if n > defaultMaxKeys {
		n = defaultMaxKeys
	}
	return n, nil
}

// ListObjects handles GET /{bucket}, dispatching V2 when list-type=2.
func (h *Handler) ListObjects(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}

	query := r.URL.Query()
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	maxKeys, err := parseMaxKeys(r, "max-keys")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	v2 := query.Get("list-type") == "2"
	marker := query.Get("marker")
	if v2 {
		// V2 pages on continuation-token (an opaque key here), falling back
		// to start-after on the first page.
		marker = query.Get("continuation-token")
		if marker == "" {
			marker = query.Get("start-after")
		}
	}

	result, err := h.objects.ListObjects(r.Context(), bucketName(r), prefix, delimiter, marker, maxKeys)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	contents := make([]ObjectEntry, 0, len(result.Objects))
	for _, meta := range result.Objects {
		contents = append(contents, ObjectEntry{
			Key:          meta.Key,
			LastModified: meta.LastModified.UTC().Format(timeFormat),
			ETag:         quoteETag(meta.ETag),
			Size:         meta.Size,
			StorageClass: storageClassOrDefault(meta.StorageClass),
			Owner:        &Owner{ID: object.DefaultOwner.ID, DisplayName: object.DefaultOwner.DisplayName},
		})
	}
	prefixes := make([]CommonPrefix, 0, len(result.CommonPrefixes))
	for _, p := range result.CommonPrefixes {
		prefixes = append(prefixes, CommonPrefix{Prefix: p})
	}

	if v2 {
		h.writeXML(w, http.StatusOK, ListBucketResultV2{
			Name:                  bucketName(r),
			Prefix:                prefix,
			StartAfter:            query.Get("start-after"),
			ContinuationToken:     query.Get("continuation-token"),
			NextContinuationToken: result.NextMarker,
			KeyCount:              len(contents) + len(prefixes),
			MaxKeys:               maxKeys,
			Delimiter:             delimiter,
			IsTruncated:           result.IsTruncated,
			Contents:              contents,
			CommonPrefixes:        prefixes,
		})
		return
	}

	h.writeXML(w, http.StatusOK, ListBucketResult{
		Name:           bucketName(r),
		Prefix:         prefix,
		Marker:         query.Get("marker"),
		NextMarker:     result.NextMarker,
		MaxKeys:        maxKeys,
		Delimiter:      delimiter,
		IsTruncated:    result.IsTruncated,
		Contents:       contents,
		CommonPrefixes: prefixes,
	})
}

// ListObjectVersions handles GET /{bucket}?versions.
func (h *Handler) ListObjectVersions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}

	query := r.URL.Query()
	prefix := query.Get("prefix")
	delimiter := query.Get("delimiter")
	keyMarker := query.Get("key-marker")
	versionIDMarker := query.Get("version-id-marker")
	maxKeys, err := parseMaxKeys(r, "max-keys")
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	result, err := h.objects.ListVersions(r.Context(), bucketName(r), prefix, delimiter, keyMarker, versionIDMarker, maxKeys)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	out := ListVersionsResult{
		Name:                bucketName(r),
		Prefix:              prefix,
		KeyMarker:           keyMarker,
		VersionIDMarker:     versionIDMarker,
		NextKeyMarker:       result.NextKeyMarker,
		NextVersionIDMarker: result.NextVersionIDMarker,
		MaxKeys:             maxKeys,
		Delimiter:           delimiter,
		IsTruncated:         result.IsTruncated,
	}
	owner := &Owner{ID: object.DefaultOwner.ID, DisplayName: object.DefaultOwner.DisplayName}
	for _, meta := range result.Versions {
		isLatest := h.objects.IsLatest(r.Context(), meta)
		if meta.DeleteMarker {
			out.DeleteMarkers = append(out.DeleteMarkers, DeleteMarkerEntry{
				Key:          meta.Key,
				VersionID:    meta.VersionID,
				IsLatest:     isLatest,
				LastModified: meta.LastModified.UTC().Format(timeFormat),
				Owner:        owner,
			})
			continue
		}
		out.Versions = append(out.Versions, ObjectVersion{
			Key:          meta.Key,
			VersionID:    meta.VersionID,
			IsLatest:     isLatest,
			LastModified: meta.LastModified.UTC().Format(timeFormat),
			ETag:         quoteETag(meta.ETag),
			Size:         meta.Size,
			StorageClass: storageClassOrDefault(meta.StorageClass),
			Owner:        owner,
		})
	}
	for _, p := range result.CommonPrefixes {
		out.CommonPrefixes = append(out.CommonPrefixes, CommonPrefix{Prefix: p})
	}
	h.writeXML(w, http.StatusOK, out)
}

func storageClassOrDefault(class string) string {
	if class == "" {
		return "STANDARD"
	}
	return class
}

func lifecycleToXML(cfg *bucket.LifecycleConfig) LifecycleConfiguration {
	out := LifecycleConfiguration{}
	for _, rule := range cfg.Rules {
		x := LifecycleRule{ID: rule.ID, Status: rule.Status, Prefix: rule.Prefix}
		if rule.Expiration != nil {
			x.Expiration = &LifecycleExpiration{Days: rule.Expiration.Days}
			if rule.Expiration.Date != nil {
				x.Expiration.Date = rule.Expiration.Date.UTC().Format(timeFormat)
			}
		}
		if rule.Transition != nil {
			x.Transition = &LifecycleTransition{
				Days:         rule.Transition.Days,
				StorageClass: rule.Transition.StorageClass,
			}
		}
		if rule.AbortIncompleteMultipartUpload != nil {
			x.AbortIncompleteMultipartUpload = &AbortIncompleteMultipartUpload{
				DaysAfterInitiation: rule.AbortIncompleteMultipartUpload.DaysAfterInitiation,
			}
		}
		out.Rules = append(out.Rules, x)
	}
	return out
}

func lifecycleFromXML(cfg *LifecycleConfiguration) *bucket.LifecycleConfig {
	out := &bucket.LifecycleConfig{}
	for _, rule := range cfg.Rules {
		stored := bucket.LifecycleRule{ID: rule.ID, Status: rule.Status, Prefix: rule.Prefix}
		if rule.Expiration != nil {
			stored.Expiration = &bucket.Expiration{Days: rule.Expiration.Days}
			if rule.Expiration.Date != "" {
				if t, err := time.Parse(timeFormat, rule.Expiration.Date); err == nil {
					stored.Expiration.Date = &t
				}
			}
		}
		if rule.Transition != nil {
			stored.Transition = &bucket.Transition{
				Days:         rule.Transition.Days,
				StorageClass: rule.Transition.StorageClass,
			}
		}
		if rule.AbortIncompleteMultipartUpload != nil {
			stored.AbortIncompleteMultipartUpload = &bucket.AbortIncompleteMultipartUpload{
				DaysAfterInitiation: rule.AbortIncompleteMultipartUpload.DaysAfterInitiation,
			}
		}
		out.Rules = append(out.Rules, stored)
	}
	return out
}
