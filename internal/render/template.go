// File: internal/render/template.go
// Brief: Cluster template model and loading.

package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"
)

// Parameter is one declared template parameter. Substitution only considers
// declared parameters; variables absent from the declaration list are
// skipped, and declared parameters absent from the variable mapping fall back
// to their default value.
type Parameter struct {
	Name     string `json:"name"`
	Value    string `json:"value,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// Template is a parameterized list of cluster objects, the unit a component
// references.
type Template struct {
	Path string
	Name string

	raw []byte
}

type templateDoc struct {
	Kind       string            `json:"kind"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Parameters []Parameter       `json:"parameters,omitempty"`
	Objects    []map[string]any  `json:"objects,omitempty"`
}

// Load reads and sanity-checks a template file. The component name is the
// file name minus its extension.
func Load(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	var doc templateDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	if !strings.EqualFold(doc.Kind, "Template") {
		return nil, fmt.Errorf("template %s is not of kind 'Template'", path)
	}
	base := filepath.Base(path)
	return &Template{
		Path: path,
		Name: strings.TrimSuffix(base, filepath.Ext(base)),
		raw:  raw,
	}, nil
}
