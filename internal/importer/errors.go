// File: internal/importer/errors.go
// Brief: Import failure types carrying the failed item's identity.

package importer

import "fmt"

// SecretError is a failed secret reconciliation. Fatal for the service set
// that requested the secret.
type SecretError struct {
	Name string
	Err  error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("import secret %q: %v", e.Name, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// ImageError is a failed image-tag reconciliation.
type ImageError struct {
	ISTag string
	Err   error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("import image %q: %v", e.ISTag, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }
