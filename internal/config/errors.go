package config

import "fmt"

// ConfigError reports malformed or missing configuration. It is always raised
// before any cluster mutation.
type ConfigError struct {
	Path string
	Set  string
	Err  error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Set != "" && e.Path != "":
		return fmt.Sprintf("config for service set %q (%s): %v", e.Set, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	case e.Set != "":
		return fmt.Sprintf("config for service set %q: %v", e.Set, e.Err)
	default:
		return fmt.Sprintf("config: %v", e.Err)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DependencyError reports a `requires` entry that is absent from, or ordered
// after, the dependent set in the resolved deploy order.
type DependencyError struct {
	Set      string
	Requires string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("service set %q requires set %q, which is not deployed earlier in the deploy order", e.Set, e.Requires)
}
