// File: internal/config/load.go
// Brief: Config and manifest file discovery/loading.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"
)

// CfgFileName is the reserved per-directory deploy config file.
const CfgFileName = "_cfg.yml"

// LoadFile reads a YAML or JSON document into out. YAML is converted through
// JSON so custom UnmarshalJSON hooks on config types apply either way.
func LoadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Errorf("file %s is empty", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("file %s must be YAML or JSON", path)
	}
	return nil
}

// CfgFilesInDir lists the .yml/.yaml/.json files in dir, sorted, skipping the
// reserved _cfg file.
func CfgFilesInDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "_cfg") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".yml", ".yaml", ".json":
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadDeployConfig loads a _cfg file from dir.
func LoadDeployConfig(dir string) (DeployConfig, error) {
	var cfg DeployConfig
	path := filepath.Join(dir, CfgFileName)
	if _, err := os.Stat(path); err != nil {
		return cfg, &ConfigError{Path: path, Err: fmt.Errorf("unable to find deploy config: %w", err)}
	}
	if err := LoadFile(path, &cfg); err != nil {
		return cfg, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// ListServiceSets returns the service set names declared in the root config's
// deploy_order, stage names ascending, components in listed order.
func ListServiceSets(root DeployConfig) []string {
	stageNames := make([]string, 0, len(root.DeployOrder))
	for name := range root.DeployOrder {
		stageNames = append(stageNames, name)
	}
	sort.Strings(stageNames)
	var sets []string
	for _, stage := range stageNames {
		sets = append(sets, root.DeployOrder[stage].Components...)
	}
	return sets
}
