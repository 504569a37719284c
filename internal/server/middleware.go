package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/s3mock/s3mock/internal/kms"
	"github.com/s3mock/s3mock/pkg/s3api"
)

// SSE parameter names checked by the KMS filter; clients send them as
// headers or, in some tooling, as query parameters.
const (
	sseParam       = "x-amz-server-side-encryption"
	sseKMSKeyParam = "x-amz-server-side-encryption-aws-kms-key-id"
)

// kmsFilter rejects writes that name an SSE-KMS key absent from the
// registry, before the request reaches a handler.
func kmsFilter(keys *kms.Registry, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut || r.Method == http.MethodPost {
			get := func(name string) string {
				if v := r.Header.Get(name); v != "" {
					return v
				}
				return r.URL.Query().Get(name)
			}
			if get(sseParam) == "aws:kms" {
				if keyID := get(sseKMSKeyParam); keyID != "" && !keys.Contains(keyID) {
					logrus.WithFields(logrus.Fields{
						"keyId": keyID,
						"path":  r.URL.Path,
					}).Debug("Rejected write with unknown KMS key")
					s3api.WriteKMSKeyNotFound(w, keyID)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// virtualHostRewrite accepts virtual-hosted-style requests by moving the
// bucket from the Host header into the path. A host of the form
// <bucket>.<base domain> becomes a path-style request for <bucket>.
func virtualHostRewrite(baseDomains []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}

		for _, domain := range baseDomains {
			suffix := "." + domain
			if !strings.HasSuffix(host, suffix) {
				continue
			}
			bucketName := strings.TrimSuffix(host, suffix)
			if bucketName == "" || strings.Contains(bucketName, ".") {
				continue
			}
			r.URL.Path = "/" + bucketName + r.URL.Path
			if r.URL.RawPath != "" {
				r.URL.RawPath = "/" + bucketName + r.URL.RawPath
			}
			break
		}
		next.ServeHTTP(w, r)
	})
}
