// File: internal/config/validate.go
// Brief: Deploy-order dependency validation.

package config

// ValidateOrder checks every set's `requires` entries against the resolved
// deploy order: a required set must appear earlier in the same list. The
// declared order is authoritative and is never reordered here; this is order
// validation, not a topological sort. It runs before any cluster mutation.
func ValidateOrder(sets []*ServiceSet) error {
	seen := map[string]bool{}
	for _, set := range sets {
		for _, req := range set.Requires {
			if !seen[req] {
				return &DependencyError{Set: set.Name, Requires: req}
			}
		}
		seen[set.Name] = true
	}
	return nil
}
