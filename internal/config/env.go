// File: internal/config/env.go
// Brief: Layered environment-source handling (global / set / set-component scopes).

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// cfgKey is the reserved env-source key carrying a partial deploy config.
const cfgKey = "_cfg"

// envSource is one parsed environment file: variable scopes keyed by
// "global", "<set>", or "<set>/<component>", plus an optional config
// fragment.
type envSource struct {
	Name   string
	Scopes map[string]Variables
	Cfg    *DeployConfig
}

// EnvHandler loads and layers environment sources. Environments listed first
// in Names win on conflicting keys; set-level env files refine the root-level
// ones for their own set.
type EnvHandler struct {
	Names   []string
	DirName string

	rootDir string
	base    []envSource

	lastSet    string
	lastMerged map[string]Variables
}

// NewEnvHandler reads the root-level env dir (rootDir/DirName). Only files
// named after an entry in names are loaded. A missing env dir is not an
// error; it simply yields no variables.
func NewEnvHandler(rootDir, dirName string, names []string) (*EnvHandler, error) {
	h := &EnvHandler{Names: names, DirName: dirName, rootDir: rootDir}
	if dirName == "" {
		h.DirName = "env"
	}
	base, err := loadEnvDir(filepath.Join(rootDir, h.DirName), names)
	if err != nil {
		return nil, err
	}
	h.base = base
	return h, nil
}

func loadEnvDir(dir string, names []string) ([]envSource, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil
	}
	files, err := CfgFilesInDir(dir)
	if err != nil {
		return nil, &ConfigError{Path: dir, Err: err}
	}
	byName := map[string]string{}
	for _, path := range files {
		base := filepath.Base(path)
		byName[strings.TrimSuffix(base, filepath.Ext(base))] = path
	}

	var sources []envSource
	for _, name := range names {
		path, ok := byName[name]
		if !ok {
			continue
		}
		src, err := loadEnvFile(path, name)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func loadEnvFile(path, name string) (envSource, error) {
	var raw map[string]json.RawMessage
	if err := LoadFile(path, &raw); err != nil {
		return envSource{}, &ConfigError{Path: path, Err: err}
	}
	src := envSource{Name: name, Scopes: map[string]Variables{}}
	for key, msg := range raw {
		if key == cfgKey {
			var frag DeployConfig
			if err := json.Unmarshal(msg, &frag); err != nil {
				return envSource{}, &ConfigError{Path: path, Err: fmt.Errorf("parse %s section: %w", cfgKey, err)}
			}
			src.Cfg = &frag
			continue
		}
		var vars map[string]any
		if err := json.Unmarshal(msg, &vars); err != nil {
			return envSource{}, &ConfigError{Path: path, Err: fmt.Errorf("scope %q must be a mapping: %w", key, err)}
		}
		src.Scopes[key] = Variables(vars)
	}
	return src, nil
}

// BaseCfgFragment merges the `_cfg` fragments of the root-level env sources.
// The first-listed environment wins on conflicts.
func (h *EnvHandler) BaseCfgFragment() (DeployConfig, bool, error) {
	return mergeCfgFragments(h.base)
}

// SetCfgFragment merges the `_cfg` fragments of a service set's own env dir.
func (h *EnvHandler) SetCfgFragment(setDir string) (DeployConfig, bool, error) {
	sources, err := loadEnvDir(filepath.Join(setDir, h.DirName), h.Names)
	if err != nil {
		return DeployConfig{}, false, err
	}
	return mergeCfgFragments(sources)
}

func mergeCfgFragments(sources []envSource) (DeployConfig, bool, error) {
	var out DeployConfig
	found := false
	// Iterate lowest precedence first so later merges let earlier envs win.
	for i := len(sources) - 1; i >= 0; i-- {
		if sources[i].Cfg == nil {
			continue
		}
		if !found {
			out = *sources[i].Cfg
			found = true
			continue
		}
		merged, err := MergeConfigFragment(out, *sources[i].Cfg)
		if err != nil {
			return DeployConfig{}, false, err
		}
		out = merged
	}
	return out, found, nil
}

// VarsForComponent resolves the layered variables for one component:
// component scope over set scope over global scope, with root-level and
// set-level env sources combined (set-level refines root-level) and the
// first-listed environment winning across environments.
func (h *EnvHandler) VarsForComponent(setDir, set, component string) (Variables, error) {
	if len(h.Names) == 0 {
		return Variables{}, nil
	}
	merged, err := h.mergedScopesForSet(setDir, set)
	if err != nil {
		return nil, err
	}

	vars := deepCopyMap(merged[set+"/"+component])
	out, err := Variables(vars).MergeUnder(merged[set+"/"+GlobalScope])
	if err != nil {
		return nil, err
	}
	out, err = out.MergeUnder(merged[GlobalScope])
	if err != nil {
		return nil, err
	}
	if _, ok := out["parameters"]; !ok {
		out["parameters"] = map[string]any{}
	}
	return out, nil
}

// mergedScopesForSet is cached per set: stages resolve components of the same
// set back to back.
func (h *EnvHandler) mergedScopesForSet(setDir, set string) (map[string]Variables, error) {
	if h.lastSet == set && h.lastMerged != nil {
		return h.lastMerged, nil
	}
	setSources, err := loadEnvDir(filepath.Join(setDir, h.DirName), h.Names)
	if err != nil {
		return nil, err
	}

	merged := map[string]Variables{}
	// Precedence, highest first: earlier-listed env beats later-listed env;
	// within one env, a set-level file beats the root-level file.
	for _, name := range h.Names {
		for _, src := range setSources {
			if src.Name != name {
				continue
			}
			for key, vars := range src.Scopes {
				if err := mergeScope(merged, normalizeSetScopeKey(set, key), vars); err != nil {
					return nil, &ConfigError{Set: set, Err: fmt.Errorf("env %q scope %q: %w", name, key, err)}
				}
			}
		}
		for _, src := range h.base {
			if src.Name != name {
				continue
			}
			for key, vars := range src.Scopes {
				if err := mergeScope(merged, normalizeBaseScopeKey(key), vars); err != nil {
					return nil, &ConfigError{Set: set, Err: fmt.Errorf("env %q scope %q: %w", name, key, err)}
				}
			}
		}
	}
	h.lastSet = set
	h.lastMerged = merged
	return merged, nil
}

// normalizeBaseScopeKey maps root env file keys onto canonical scope keys:
// "global" stays global, "<set>" becomes the set's own global scope, and
// "<set>/<component>" is already canonical.
func normalizeBaseScopeKey(key string) string {
	if key == GlobalScope || strings.Contains(key, "/") {
		return key
	}
	return key + "/" + GlobalScope
}

// normalizeSetScopeKey maps set-level env file keys (component names, or
// "global" for the whole set) onto canonical scope keys.
func normalizeSetScopeKey(set, key string) string {
	if idx := strings.Index(key, "/"); idx >= 0 {
		// Set-level files should only name components; strip a redundant
		// leading set name if present.
		key = key[idx+1:]
	}
	return set + "/" + key
}

func mergeScope(merged map[string]Variables, key string, vars Variables) error {
	existing, ok := merged[key]
	if !ok {
		merged[key] = Variables(deepCopyMap(vars))
		return nil
	}
	// Existing entries were written by a higher-precedence source.
	out, err := existing.MergeUnder(vars)
	if err != nil {
		return err
	}
	merged[key] = out
	return nil
}
