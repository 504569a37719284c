package s3api

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/s3mock/s3mock/internal/object"
)

const defaultMaxParts = 1000

func uploadID(r *http.Request) string {
	if id := mux.Vars(r)["uploadId"]; id != "" {
		return id
	}
	return r.URL.Query().Get("uploadId")
}

func partNumber(r *http.Request) (int, error) {
	v := mux.Vars(r)["partNumber"]
	if v == "" {
		v = r.URL.Query().Get("partNumber")
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < object.MinPartNumber || n > object.MaxPartNumber {
		return 0, fmt.Errorf("%w: part number must be an integer between %d and %d",
			object.ErrInvalidRequest, object.MinPartNumber, object.MaxPartNumber)
	}
	return n, nil
}

// CreateMultipartUpload handles POST /{bucket}/{key}?uploads.
func (h *Handler) CreateMultipartUpload(w http.ResponseWriter, r *http.Request) {
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
	checksumAlgorithm, _ := checksumFromRequest(r)

	upload, err := h.objects.CreateMultipartUpload(r.Context(), object.CreateUploadInput{
		Bucket: bucketMeta.Name,
		Key:    objectKey(r),

		ContentType:        r.Header.Get("Content-Type"),
		ContentEncoding:    r.Header.Get("Content-Encoding"),
		ContentLanguage:    r.Header.Get("Content-Language"),
		ContentDisposition: r.Header.Get("Content-Disposition"),
		CacheControl:       r.Header.Get("Cache-Control"),
		Expires:            r.Header.Get("Expires"),

		UserMetadata:      userMetadataFromRequest(r),
		Tags:              tags,
		ACL:               acl,
		SSE:               sseFor(r, bucketMeta),
		StorageClass:      r.Header.Get(headerStorageClass),
		ChecksumAlgorithm: checksumAlgorithm,
	})
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.writeXML(w, http.StatusOK, InitiateMultipartUploadResult{
		Bucket:   bucketMeta.Name,
		Key:      upload.Key,
		UploadID: upload.UploadID,
	})
}

// UploadPart handles PUT /{bucket}/{key}?partNumber=N&uploadId=U.
func (h *Handler) UploadPart(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}
	n, err := partNumber(r)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	part, err := h.objects.UploadPart(r.Context(), bucketName(r), objectKey(r), uploadID(r), n, r.Body)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	addAmzHeaders(w)
	w.Header().Set("ETag", quoteETag(part.ETag))
	w.WriteHeader(http.StatusOK)
}

// UploadPartCopy handles PUT /{bucket}/{key}?partNumber=N&uploadId=U with
// x-amz-copy-source.
func (h *Handler) UploadPartCopy(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}
	n, err := partNumber(r)
	if err != nil {
		h.sendError(w, r, err)
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

	srcMeta, err := h.objects.GetMetadata(r.Context(), srcBucket, srcKey, srcVersionID)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	start, length := int64(0), srcMeta.Size
	if rangeHeader := r.Header.Get(headerCopySourceRange); rangeHeader != "" {
		start, length, err = parseRange(rangeHeader, srcMeta.Size)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
	}

	src, err := h.objects.OpenRange(r.Context(), srcBucket, srcKey, srcVersionID, start, length)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	defer src.Close()

	part, err := h.objects.UploadPart(r.Context(), bucketName(r), objectKey(r), uploadID(r), n, src)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	if srcVersionID != "" {
		w.Header().Set("x-amz-copy-source-version-id", srcVersionID)
	}
	h.writeXML(w, http.StatusOK, CopyPartResult{
		ETag:         quoteETag(part.ETag),
		LastModified: part.LastModified.UTC().Format(timeFormat),
	})
}

// ListParts handles GET /{bucket}/{key}?uploadId=U with part-number-marker
// and max-parts pagination.
func (h *Handler) ListParts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}

	query := r.URL.Query()
	marker := 0
	if v := query.Get("part-number-marker"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.sendError(w, r, fmt.Errorf("%w: part-number-marker must be a non-negative integer", object.ErrInvalidRequest))
			return
		}
		marker = n
	}
	maxParts := defaultMaxParts
	if v := query.Get("max-parts"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.sendError(w, r, fmt.Errorf("%w: max-parts must be a non-negative integer", object.ErrInvalidRequest))
			return
		}
		maxParts = n
	}

	upload, err := h.objects.GetUpload(r.Context(), bucketName(r), objectKey(r), uploadID(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	parts, err := h.objects.ListParts(r.Context(), bucketName(r), objectKey(r), uploadID(r))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	result := ListPartsResult{
		Bucket:           bucketName(r),
		Key:              upload.Key,
		UploadID:         upload.UploadID,
		PartNumberMarker: marker,
		MaxParts:         maxParts,
		StorageClass:     storageClassOrDefault(upload.StorageClass),
		Initiator:        &Owner{ID: object.DefaultOwner.ID, DisplayName: object.DefaultOwner.DisplayName},
		Owner:            &Owner{ID: object.DefaultOwner.ID, DisplayName: object.DefaultOwner.DisplayName},
	}
	for _, p := range parts {
		if p.PartNumber <= marker {
			continue
		}
		if len(result.Parts) >= maxParts {
			result.IsTruncated = true
			if n := len(result.Parts); n > 0 {
				result.NextPartNumberMarker = result.Parts[n-1].PartNumber
			}
			break
		}
		result.Parts = append(result.Parts, PartEntry{
			PartNumber:   p.PartNumber,
			LastModified: p.LastModified.UTC().Format(timeFormat),
			ETag:         quoteETag(p.ETag),
			Size:         p.Size,
		})
	}
	h.writeXML(w, http.StatusOK, result)
}

// ListMultipartUploads handles GET /{bucket}?uploads with key-marker and
// upload-id-marker pagination.
func (h *Handler) ListMultipartUploads(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}

	query := r.URL.Query()
	prefix := query.Get("prefix")
	keyMarker := query.Get("key-marker")
	uploadIDMarker := query.Get("upload-id-marker")
	maxUploads := defaultMaxKeys
	if v := query.Get("max-uploads"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.sendError(w, r, fmt.Errorf("%w: max-uploads must be a non-negative integer", object.ErrInvalidRequest))
			return
		}
		maxUploads = n
	}

	uploads, err := h.objects.ListUploads(r.Context(), bucketName(r), prefix)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key != uploads[j].Key {
			return uploads[i].Key < uploads[j].Key
		}
		return uploads[i].UploadID < uploads[j].UploadID
	})

	result := ListMultipartUploadsResult{
		Bucket:         bucketName(r),
		KeyMarker:      keyMarker,
		UploadIDMarker: uploadIDMarker,
		MaxUploads:     maxUploads,
	}
	owner := &Owner{ID: object.DefaultOwner.ID, DisplayName: object.DefaultOwner.DisplayName}
	for _, u := range uploads {
		if keyMarker != "" {
			if u.Key < keyMarker {
				continue
			}
			if u.Key == keyMarker && (uploadIDMarker == "" || u.UploadID <= uploadIDMarker) {
				continue
			}
		}
		if len(result.Uploads) >= maxUploads {
			result.IsTruncated = true
			if n := len(result.Uploads); n > 0 {
				result.NextKeyMarker = result.Uploads[n-1].Key
				result.NextUploadIDMarker = result.Uploads[n-1].UploadID
			}
			break
		}
		result.Uploads = append(result.Uploads, UploadEntry{
			Key:          u.Key,
			UploadID:     u.UploadID,
			Initiated:    u.Initiated.UTC().Format(timeFormat),
			StorageClass: storageClassOrDefault(u.StorageClass),
			Initiator:    owner,
			Owner:        owner,
		})
	}
	h.writeXML(w, http.StatusOK, result)
}

// CompleteMultipartUpload handles POST /{bucket}/{key}?uploadId=U.
func (h *Handler) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request) {
	bucketMeta, ok := h.requireBucket(w, r)
	if !ok {
		return
	}

	var req CompleteMultipartUpload
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, "MalformedXML", "The XML you provided was not well-formed", http.StatusBadRequest)
		return
	}
	if len(req.Parts) == 0 {
		h.writeErrorResponse(w, r, "MalformedXML", "You must specify at least one part", http.StatusBadRequest)
		return
	}

	parts := make([]object.CompletedPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, object.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	meta, err := h.objects.CompleteMultipartUpload(r.Context(), bucketMeta.Name, objectKey(r),
		uploadID(r), parts, bucketMeta.VersioningStatus)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	if bucketMeta.VersioningStatus != "" {
		w.Header().Set(headerVersionID, meta.VersionID)
	}
	h.writeXML(w, http.StatusOK, CompleteMultipartUploadResult{
		Location: fmt.Sprintf("http://%s/%s/%s", r.Host, bucketMeta.Name, meta.Key),
		Bucket:   bucketMeta.Name,
		Key:      meta.Key,
		ETag:     quoteETag(meta.ETag),
	})
}

// AbortMultipartUpload handles DELETE /{bucket}/{key}?uploadId=U.
func (h *Handler) AbortMultipartUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireBucket(w, r); !ok {
		return
	}
	if err := h.objects.AbortMultipartUpload(r.Context(), bucketName(r), objectKey(r), uploadID(r)); err != nil {
		h.sendError(w, r, err)
		return
	}
	addAmzHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}
