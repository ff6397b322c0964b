// File: internal/importer/registry.go
// Brief: Run-scoped dedup so shared items reconcile once per deploy run.

package importer

import "sync"

// registry records the secrets and image tags already handled during one
// deploy run. Service sets frequently share secrets and base images; the
// first requester reconciles, later requesters are a no-op.
type registry struct {
	mu      sync.Mutex
	secrets map[string]bool
	istags  map[string]bool
}

func newRegistry() *registry {
	return &registry{secrets: map[string]bool{}, istags: map[string]bool{}}
}

// claimSecret returns true exactly once per secret name.
func (r *registry) claimSecret(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.secrets[name] {
		return false
	}
	r.secrets[name] = true
	return true
}

// claimImage returns true exactly once per istag.
func (r *registry) claimImage(istag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.istags[istag] {
		return false
	}
	r.istags[istag] = true
	return true
}
