// File: internal/config/merge.go
// Brief: Variable-scope and _cfg fragment merge rules.

package config

import (
	"fmt"

	"dario.cat/mergo"
)

// Variables is the free-form variable mapping for one scope. The reserved
// "parameters" key holds the cluster-template parameter map; everything else
// feeds the first render phase.
type Variables map[string]any

// Parameters extracts the "parameters" submap with values stringified.
func (v Variables) Parameters() map[string]string {
	raw, ok := v["parameters"].(map[string]any)
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		out[k] = fmt.Sprint(val)
	}
	return out
}

// FreeForm returns every variable except the reserved "parameters" key.
func (v Variables) FreeForm() map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		if k == "parameters" {
			continue
		}
		out[k] = val
	}
	return out
}

// SetParameter writes one parameter value, allocating the submap if needed.
func (v Variables) SetParameter(name, value string) {
	params, ok := v["parameters"].(map[string]any)
	if !ok {
		params = map[string]any{}
		v["parameters"] = params
	}
	params[name] = value
}

// MergeUnder fills keys missing from v with values from lower, recursing into
// nested maps. Existing values in v always win, so chaining MergeUnder calls
// from the highest-precedence scope downward yields
// component-over-set-over-global resolution.
func (v Variables) MergeUnder(lower Variables) (Variables, error) {
	out := deepCopyMap(map[string]any(v))
	if err := mergo.Merge(&out, deepCopyMap(map[string]any(lower))); err != nil {
		return nil, fmt.Errorf("merge variables: %w", err)
	}
	return Variables(out), nil
}

func deepCopyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, val := range in {
		if m, ok := val.(map[string]any); ok {
			out[k] = deepCopyMap(m)
			continue
		}
		out[k] = val
	}
	return out
}

// MergeConfigFragment lays an environment `_cfg` fragment over a base deploy
// config. Mapping keys merge recursively; list-valued keys (stage component
// lists, secret/image lists) are replaced wholesale by the fragment when it
// defines them, never concatenated.
func MergeConfigFragment(base, frag DeployConfig) (DeployConfig, error) {
	out := frag
	if err := mergo.Merge(&out, base); err != nil {
		return DeployConfig{}, fmt.Errorf("merge config fragment: %w", err)
	}
	return out, nil
}
