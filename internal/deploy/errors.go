// File: internal/deploy/errors.go
// Brief: Deploy failure types carrying set/stage/component context.

package deploy

import "fmt"

// ApplyError is a failed create-or-update of one rendered object.
type ApplyError struct {
	Set       string
	Stage     string
	Component string
	Kind      string
	Name      string
	Err       error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("set %q stage %q component %q: apply %s/%s: %v",
		e.Set, e.Stage, e.Component, e.Kind, e.Name, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// StageError wraps any failure inside one stage, readiness timeouts included.
type StageError struct {
	Set   string
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("set %q stage %q: %v", e.Set, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
