// Package kms holds the allow-list of symbolic KMS key ids. No cryptography
// happens here; the server only records the algorithm and key id on objects.
package kms

// Registry is a constant-after-construction set of valid KMS key ids.
type Registry struct {
	keys map[string]struct{}
}

// NewRegistry builds a registry from the configured key ids. Key ids may be
// given as bare ids or full ARNs; both forms are accepted on lookup.
func NewRegistry(keyIDs []string) *Registry {
	keys := make(map[string]struct{}, len(keyIDs))
	for _, id := range keyIDs {
		keys[id] = struct{}{}
	}
	return &Registry{keys: keys}
}

// Contains reports whether keyID is in the allow-list.
func (r *Registry) Contains(keyID string) bool {
	_, ok := r.keys[keyID]
	return ok
}
