package s3api

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/s3mock/s3mock/internal/bucket"
	"github.com/s3mock/s3mock/internal/object"
)

// defaultRetentionFor derives the retention of a new version from the
// bucket's object-lock default rule.
func defaultRetentionFor(meta *bucket.Metadata) *object.Retention {
	if meta.ObjectLock == nil || meta.ObjectLock.DefaultRetention == nil {
		return nil
	}
	rule := meta.ObjectLock.DefaultRetention

	until := time.Now().UTC()
	switch {
	case rule.Days != nil:
		until = until.AddDate(0, 0, *rule.Days)
	case rule.Years != nil:
		until = until.AddDate(*rule.Years, 0, 0)
	default:
		return nil
	}
	return &object.Retention{Mode: rule.Mode, RetainUntilDate: until}
}

// sseFor resolves the SSE bookkeeping of a write: request headers win,
// then the bucket's default encryption configuration.
func sseFor(r *http.Request, meta *bucket.Metadata) *object.SSEInfo {
	if sse := sseFromRequest(r); sse != nil {
		return sse
	}
	if meta.Encryption != nil {
		return &object.SSEInfo{
			Algorithm: meta.Encryption.SSEAlgorithm,
			KMSKeyID:  meta.Encryption.KMSMasterKeyID,
		}
	}
	return nil
}

// PutObject handles PUT /{bucket}/{key}.
func (h *Handler) PutObject(w http.ResponseWriter, r *http.Request) {
	bucketMeta, ok := h.requireBucket(w, r)
	if !ok {
		return
	}

	tags, err := parseTaggingHeader(r.Header.Get(headerTagging))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	acl, err := cannedACL(r.Header.Get(headerACL))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	retention, err := retentionFromRequest(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	if retention == nil {
		retention = defaultRetentionFor(bucketMeta)
	}
	checksumAlgorithm, checksumValue := checksumFromRequest(r)

	meta, err := h.objects.PutObject(r.Context(), object.PutInput{
		Bucket: bucketMeta.Name,
		Key:    objectKey(r),
		Body:   r.Body,

		ContentMD5:        r.Header.Get("Content-MD5"),
		ChecksumAlgorithm: checksumAlgorithm,
		ChecksumValue:     checksumValue,

		ContentType:        r.Header.Get("Content-Type"),
		ContentEncoding:    r.Header.Get("Content-Encoding"),
		ContentLanguage:    r.Header.Get("Content-Language"),
		ContentDisposition: r.Header.Get("Content-Disposition"),
		CacheControl:       r.Header.Get("Cache-Control"),
		Expires:            r.Header.Get("Expires"),

		UserMetadata: userMetadataFromRequest(r),
		Tags:         tags,
		ACL:          acl,
		SSE:          sseFor(r, bucketMeta),
		Retention:    retention,
		LegalHold:    r.Header.Get(headerLegalHold),
		StorageClass: r.Header.Get(headerStorageClass),

		Versioning: bucketMeta.VersioningStatus,
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	addAmzHeaders(w)
	w.Header().Set("ETag", quoteETag(meta.ETag))
	if bucketMeta.VersioningStatus != bucket.VersioningUnversioned {
		w.Header().Set(headerVersionID, meta.VersionID)
	}
	if meta.Checksum != nil {
		w.Header().Set(headerChecksumPrefix+strings.ToLower(meta.Checksum.Algorithm), meta.Checksum.Value)
	}
	writeSSEHeaders(w, meta.SSE)
	w.WriteHeader(http.StatusOK)
}

func writeSSEHeaders(w http.ResponseWriter, sse *object.SSEInfo) {
	if sse == nil {
		return
	}
	w.Header().Set(headerSSE, sse.Algorithm)
	if sse.KMSKeyID != "" {
		w.Header().Set(headerSSEKMSKeyID, sse.KMSKeyID)
	}
}

// writeObjectHeaders emits the metadata headers shared by GET and HEAD.
func writeObjectHeaders(w http.ResponseWriter, meta *object.Metadata, versioned bool) {
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("ETag", quoteETag(meta.ETag))
	w.Header().Set("Last-Modified", meta.LastModified.UTC().Format(http.TimeFormat))

	setIfPresent := func(name, value string) {
		if value != "" {
			w.Header().Set(name, value)
		}
	}
	setIfPresent("Content-Encoding", meta.ContentEncoding)
	setIfPresent("Content-Language", meta.ContentLanguage)
	setIfPresent("Content-Disposition", meta.ContentDisposition)
	setIfPresent("Cache-Control", meta.CacheControl)
	setIfPresent("Expires", meta.Expires)
	setIfPresent(headerStorageClass, meta.StorageClass)

	if versioned {
		w.Header().Set(headerVersionID, meta.VersionID)
	}
	for k, v := range meta.UserMetadata {
		w.Header().Set(headerMetaPrefix+k, v)
	}
	if len(meta.Tags) > 0 {
		w.Header().Set(headerTaggingCount, strconv.Itoa(len(meta.Tags)))
	}
	if meta.PartCount > 0 {
		w.Header().Set(headerMpPartsCount, strconv.Itoa(meta.PartCount))
	}
	if meta.Checksum != nil {
		w.Header().Set(headerChecksumPrefix+strings.ToLower(meta.Checksum.Algorithm), meta.Checksum.Value)
	}
	writeSSEHeaders(w, meta.SSE)
}

// serveObject implements GET and HEAD.
func (h *Handler) serveObject(w http.ResponseWriter, r *http.Request, includeBody bool) {
	bucketMeta, ok := h.requireBucket(w, r)
	if !ok {
		return
	}
	versioned := bucketMeta.VersioningStatus != bucket.VersioningUnversioned
	versionID := r.URL.Query().Get("versionId")

	meta, file, err := h.objects.GetObject(r.Context(), bucketMeta.Name, objectKey(r), versionID)
	if err != nil {
		addAmzHeaders(w)
		if meta != nil && meta.DeleteMarker {
			w.Header().Set(headerDeleteMarker, "true")
			w.Header().Set(headerVersionID, meta.VersionID)
		}
		if errors.Is(err, object.ErrDeleteMarker) {
			h.writeErrorResponse(w, r, "MethodNotAllowed",
				"The specified method is not allowed against this resource.", http.StatusMethodNotAllowed)
			return
		}
		h.sendError(w, r, err)
		return
	}
	defer file.Close()

	if conditions := parseConditions(r, ""); !conditions.Empty() {
		if err := object.CheckConditions(meta, conditions); err != nil {
			if errors.Is(err, object.ErrNotModified) {
				addAmzHeaders(w)
				w.Header().Set("ETag", quoteETag(meta.ETag))
				w.WriteHeader(http.StatusNotModified)
				return
			}
			h.sendError(w, r, err)
			return
		}
	}

	addAmzHeaders(w)
	writeObjectHeaders(w, meta, versioned)

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		start, length, err := parseRange(rangeHeader, meta.Size)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, start+length-1, meta.Size))
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.WriteHeader(http.StatusPartialContent)
		if includeBody {
			if _, err := file.Seek(start, io.SeekStart); err == nil {
				io.CopyN(w, file, length)
			}
		}
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	w.WriteHeader(http.StatusOK)
	if includeBody {
		io.Copy(w, file)
	}
}

// GetObject handles GET /{bucket}/{key}.
func (h *Handler) GetObject(w http.ResponseWriter, r *http.Request) {
	h.serveObject(w, r, true)
}

// HeadObject handles HEAD /{bucket}/{key}.
func (h *Handler) HeadObject(w http.ResponseWriter, r *http.Request) {
	h.serveObject(w, r, false)
}

// DeleteObject handles DELETE /{bucket}/{key}.
func (h *Handler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	bucketMeta, ok := h.requireBucket(w, r)
	if !ok {
		return
	}

	result, err := h.objects.DeleteObject(r.Context(), bucketMeta.Name, objectKey(r),
		r.URL.Query().Get("versionId"), bucketMeta.VersioningStatus)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	addAmzHeaders(w)
	if result.DeleteMarker {
		w.Header().Set(headerDeleteMarker, "true")
	}
	if result.VersionID != "" {
		w.Header().Set(headerVersionID, result.VersionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteObjects handles POST /{bucket}?delete, the batch form.
func (h *Handler) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	bucketMeta, ok := h.requireBucket(w, r)
	if !ok {
		return
	}

	var req Delete
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}

	result := DeleteResult{}
	for _, obj := range req.Objects {
		res, err := h.objects.DeleteObject(r.Context(), bucketMeta.Name, obj.Key,
			obj.VersionID, bucketMeta.VersioningStatus)
		if err != nil {
			resolved := resolveError(err)
			result.Errors = append(result.Errors, DeleteError{
				Key:     obj.Key,
				Code:    resolved.Code,
				Message: resolved.Message,
			})
			continue
		}
		if req.Quiet {
			continue
		}
		deleted := DeletedObject{Key: obj.Key, VersionID: obj.VersionID}
		if res.DeleteMarker {
			deleted.DeleteMarker = true
			deleted.DeleteMarkerVersionID = res.VersionID
		}
		result.Deleted = append(result.Deleted, deleted)
	}

	logrus.WithFields(logrus.Fields{
		"bucket":  bucketMeta.Name,
		"deleted": len(result.Deleted),
		"errors":  len(result.Errors),
	}).Debug("Batch delete handled")
	h.writeXML(w, http.StatusOK, result)
}

// CopyObject handles PUT /{bucket}/{key} with x-amz-copy-source.
func (h *Handler) CopyObject(w http.ResponseWriter, r *http.Request) {
	dstBucket, ok := h.requireBucket(w, r)
	if !ok {
		return
	}

	srcBucket, srcKey, srcVersionID, err := parseCopySource(r.Header.Get(headerCopySource))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	if !h.buckets.BucketExists(r.Context(), srcBucket) {
		h.writeErrorResponse(w, r, "NoSuchBucket", "The specified bucket does not exist", http.StatusNotFound)
		return
	}

	// Copy preconditions always surface as 412.
	if conditions := parseConditions(r, headerCopySource+"-"); !conditions.Empty() {
		srcMeta, err := h.objects.GetMetadata(r.Context(), srcBucket, srcKey, srcVersionID)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
		if err := object.CheckConditions(srcMeta, conditions); err != nil {
			h.writeErrorResponse(w, r, "PreconditionFailed",
				"At least one of the pre-conditions you specified did not hold", http.StatusPreconditionFailed)
			return
		}
	}

	tags, err := parseTaggingHeader(r.Header.Get(headerTagging))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	meta, err := h.objects.CopyObject(r.Context(), object.CopyInput{
		SrcBucket:    srcBucket,
		SrcKey:       srcKey,
		SrcVersionID: srcVersionID,
		DstBucket:    dstBucket.Name,
		DstKey:       objectKey(r),

		MetadataDirective: strings.ToUpper(r.Header.Get(headerMetadataDir)),
		TaggingDirective:  strings.ToUpper(r.Header.Get(headerTaggingDir)),

		ContentType:        r.Header.Get("Content-Type"),
		ContentEncoding:    r.Header.Get("Content-Encoding"),
		ContentLanguage:    r.Header.Get("Content-Language"),
		ContentDisposition: r.Header.Get("Content-Disposition"),
		CacheControl:       r.Header.Get("Cache-Control"),
		Expires:            r.Header.Get("Expires"),
		UserMetadata:       userMetadataFromRequest(r),
		Tags:               tags,
		SSE:                sseFor(r, dstBucket),
		StorageClass:       r.Header.Get(headerStorageClass),

		Versioning: dstBucket.VersioningStatus,
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	if srcVersionID != "" {
		w.Header().Set("x-amz-copy-source-version-id", srcVersionID)
	}
	if dstBucket.VersioningStatus != bucket.VersioningUnversioned {
		w.Header().Set(headerVersionID, meta.VersionID)
	}
	h.writeXML(w, http.StatusOK, CopyObjectResult{
		ETag:         quoteETag(meta.ETag),
		LastModified: meta.LastModified.UTC().Format(timeFormat),
	})
}

// resolveVersionMeta loads metadata for subresource handlers, tolerating
// delete markers when the version is addressed explicitly.
func (h *Handler) resolveVersionMeta(w http.ResponseWriter, r *http.Request) (*object.Metadata, bool) {
	if _, ok := h.requireBucket(w, r); !ok {
		return nil, false
	}
	meta, err := h.objects.GetMetadata(r.Context(), bucketName(r), objectKey(r), r.URL.Query().Get("versionId"))
	if err != nil && !errors.Is(err, object.ErrDeleteMarker) {
		h.sendError(w, r, err)
		return nil, false
	}
	return meta, true
}

// GetObjectTagging handles GET /{bucket}/{key}?tagging.
func (h *Handler) GetObjectTagging(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.resolveVersionMeta(w, r)
	if !ok {
		return
	}

	tagging := Tagging{TagSet: []TagEntry{}}
	for _, t := range meta.Tags {
		tagging.TagSet = append(tagging.TagSet, TagEntry{Key: t.Key, Value: t.Value})
	}
	if r.URL.Query().Get("versionId") != "" {
		w.Header().Set(headerVersionID, meta.VersionID)
	}
	h.writeXML(w, http.StatusOK, tagging)
}

// PutObjectTagging handles PUT /{bucket}/{key}?tagging.
func (h *Handler) PutObjectTagging(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}

	var tagging Tagging
	if err := xml.NewDecoder(r.Body).Decode(&tagging); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}
	tags := make([]object.Tag, 0, len(tagging.TagSet))
	for _, t := range tagging.TagSet {
		tags = append(tags, object.Tag{Key: t.Key, Value: t.Value})
	}

	if err := h.objects.SetTags(r.Context(), bucketName(r), objectKey(r), r.URL.Query().Get("versionId"), tags); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// DeleteObjectTagging handles DELETE /{bucket}/{key}?tagging.
func (h *Handler) DeleteObjectTagging(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}
	if err := h.objects.SetTags(r.Context(), bucketName(r), objectKey(r), r.URL.Query().Get("versionId"), nil); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetObjectACL handles GET /{bucket}/{key}?acl.
func (h *Handler) GetObjectACL(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.resolveVersionMeta(w, r)
	if !ok {
		return
	}

	acl := meta.ACL
	if acl == nil {
		acl = object.DefaultACL()
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

// PutObjectACL handles PUT /{bucket}/{key}?acl, canned header or XML body.
func (h *Handler) PutObjectACL(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}

	var acl *object.ACL
	if canned := r.Header.Get(headerACL); canned != "" {
		parsed, err := cannedACL(canned)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
		acl = parsed
	} else {
		var policy AccessControlPolicy
		if err := xml.NewDecoder(r.Body).Decode(&policy); err != nil {
			h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
			return
		}
		acl = &object.ACL{
			Owner: object.Owner{ID: policy.Owner.ID, DisplayName: policy.Owner.DisplayName},
		}
		for _, g := range policy.Grants {
			acl.Grants = append(acl.Grants, object.Grant{
				Grantee: object.Grantee{
					Type:        g.Grantee.Type,
					ID:          g.Grantee.ID,
					DisplayName: g.Grantee.DisplayName,
					URI:         g.Grantee.URI,
				},
				Permission: g.Permission,
			})
		}
	}

	if err := h.objects.SetACL(r.Context(), bucketName(r), objectKey(r), r.URL.Query().Get("versionId"), acl); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// GetObjectRetention handles GET /{bucket}/{key}?retention.
func (h *Handler) GetObjectRetention(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.resolveVersionMeta(w, r)
	if !ok {
		return
	}
	if meta.Retention == nil {
		h.writeErrorResponse(w, r, "NoSuchObjectLockConfiguration",
			"The specified object does not have an ObjectLock configuration", http.StatusNotFound)
		return
	}
	h.writeXML(w, http.StatusOK, Retention{
		Mode:            meta.Retention.Mode,
		RetainUntilDate: meta.Retention.RetainUntilDate.UTC().Format(timeFormat),
	})
}

// PutObjectRetention handles PUT /{bucket}/{key}?retention.
func (h *Handler) PutObjectRetention(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}

	var body Retention
	if err := xml.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}
	until, err := time.Parse(time.RFC3339, body.RetainUntilDate)
	if err != nil {
		h.sendError(w, r, fmt.Errorf("%w: malformed RetainUntilDate", object.ErrInvalidRequest))
		return
	}

	err = h.objects.SetRetention(r.Context(), bucketName(r), objectKey(r), r.URL.Query().Get("versionId"),
		&object.Retention{Mode: body.Mode, RetainUntilDate: until})
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}

// GetObjectLegalHold handles GET /{bucket}/{key}?legal-hold.
func (h *Handler) GetObjectLegalHold(w http.ResponseWriter, r *http.Request) {
	meta, ok := h.resolveVersionMeta(w, r)
	if !ok {
		return
	}

	status := meta.LegalHold
	if status == "" {
		status = object.LegalHoldOff
	}
	h.writeXML(w, http.StatusOK, LegalHold{Status: status})
}

// PutObjectLegalHold handles PUT /{bucket}/{key}?legal-hold.
func (h *Handler) PutObjectLegalHold(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}

	var body LegalHold
	if err := xml.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}

	err := h.objects.SetLegalHold(r.Context(), bucketName(r), objectKey(r), r.URL.Query().Get("versionId"), body.Status)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusOK)
}
