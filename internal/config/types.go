// File: internal/config/types.go
// Brief: Service set, stage, secret, and image configuration types.

package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultStageTimeout applies when a stage omits its own timeout.
const DefaultStageTimeout = 300 * time.Second

// DefaultPostDeployTimeout applies when a set omits post_deploy_timeout.
// An explicit 0 disables post-deploy waiting.
const DefaultPostDeployTimeout = 300 * time.Second

// GlobalScope is the reserved scope name in env sources. A service set or
// component may not be named "global".
const GlobalScope = "global"

// DeployConfig is the raw `_cfg` document for the root template dir or for a
// single service set. Environment sources may carry a partial DeployConfig
// under their reserved `_cfg` key; see MergeConfigFragment.
type DeployConfig struct {
	Requires          []string               `json:"requires,omitempty"`
	Secrets           SecretList             `json:"secrets,omitempty"`
	Images            ImageList              `json:"images,omitempty"`
	CustomDeployLogic bool                   `json:"custom_deploy_logic,omitempty"`
	PostDeployTimeout *int                   `json:"post_deploy_timeout,omitempty"`
	DeployOrder       map[string]StageConfig `json:"deploy_order,omitempty"`
}

// StageConfig is one entry under deploy_order. Stage execution order is the
// ascending sort of the stage names, not declaration order.
type StageConfig struct {
	Wait       *bool    `json:"wait,omitempty"`
	Timeout    *int     `json:"timeout,omitempty"`
	Components []string `json:"components,omitempty"`
}

// Secret declares a shared secret a service set needs present in the target
// namespace. Config accepts either a bare name or the long form.
type Secret struct {
	Name string   `json:"name"`
	Link []string `json:"link,omitempty"`
	Envs []string `json:"envs,omitempty"`
}

func (s *Secret) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("secret name is empty")
		}
		*s = Secret{Name: name}
		return nil
	}
	type long Secret
	var l long
	if err := json.Unmarshal(b, &l); err != nil {
		return fmt.Errorf("secrets entries must be a name or a {name, link, envs} object: %w", err)
	}
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("secret entry is missing 'name'")
	}
	*s = Secret(l)
	return nil
}

// SecretList unmarshals the `secrets` section.
type SecretList []Secret

// Image declares an image-stream tag to reconcile before deploying. Config
// accepts the long form, the single-pair short form
// ({"name:tag": "registry/image:tag"}), and the legacy mapping form at the
// ImageList level.
type Image struct {
	ISTag     string   `json:"istag"`
	From      string   `json:"from"`
	Envs      []string `json:"envs,omitempty"`
	Scheduled *bool    `json:"scheduled,omitempty"`
}

// ImportScheduled reports whether the import policy should be scheduled.
// Defaults to true.
func (i Image) ImportScheduled() bool {
	return i.Scheduled == nil || *i.Scheduled
}

func (i *Image) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("entries in 'images' must be objects: %w", err)
	}
	_, hasTag := raw["istag"]
	_, hasFrom := raw["from"]
	switch {
	case hasTag && hasFrom:
		type long Image
		var l long
		if err := json.Unmarshal(b, &l); err != nil {
			return err
		}
		*i = Image(l)
	case len(raw) == 1:
		for istag, fromRaw := range raw {
			var from string
			if err := json.Unmarshal(fromRaw, &from); err != nil {
				return fmt.Errorf("image %q: 'from' must be a string: %w", istag, err)
			}
			*i = Image{ISTag: istag, From: from}
		}
	default:
		return fmt.Errorf("unknown syntax for 'images' entry (want istag/from pair or single short-form mapping)")
	}
	if strings.TrimSpace(i.ISTag) == "" || strings.TrimSpace(i.From) == "" {
		return fmt.Errorf("image entry needs both 'istag' and 'from'")
	}
	i.ISTag = NormalizeISTag(i.ISTag)
	return nil
}

// ImageList accepts both the list form and the legacy `istag: from` mapping.
type ImageList []Image

func (l *ImageList) UnmarshalJSON(b []byte) error {
	var entries []Image
	if err := json.Unmarshal(b, &entries); err == nil {
		*l = entries
		return nil
	}
	var legacy map[string]string
	if err := json.Unmarshal(b, &legacy); err != nil {
		return fmt.Errorf("'images' must be a list or an istag-to-from mapping: %w", err)
	}
	keys := make([]string, 0, len(legacy))
	for istag := range legacy {
		keys = append(keys, istag)
	}
	sort.Strings(keys)
	out := make([]Image, 0, len(keys))
	for _, istag := range keys {
		out = append(out, Image{ISTag: NormalizeISTag(istag), From: legacy[istag]})
	}
	*l = out
	return nil
}

// NormalizeISTag appends ":latest" when the key carries no tag.
func NormalizeISTag(istag string) string {
	if !strings.Contains(istag, ":") {
		return istag + ":latest"
	}
	return istag
}

// Component is a single template unit inside a stage.
type Component struct {
	Name         string
	TemplatePath string
}

// Stage is one resolved phase of a service set deploy.
type Stage struct {
	Name       string
	Components []Component
	Wait       bool
	Timeout    time.Duration
}

// ServiceSet is a resolved, deployable group of components.
type ServiceSet struct {
	Name              string
	Dir               string
	Requires          []string
	Stages            []Stage
	Secrets           []Secret
	Images            []Image
	CustomDeployLogic bool
	PostDeployTimeout time.Duration
}

// Stage lookup helper used by skip/pick selection.
func (s *ServiceSet) HasComponent(name string) bool {
	for _, st := range s.Stages {
		for _, c := range st.Components {
			if c.Name == name {
				return true
			}
		}
	}
	return false
}

// ResolveStages turns the raw deploy_order mapping into the ordered stage
// list: names ascending, wait defaulting to true, timeout to
// DefaultStageTimeout.
func ResolveStages(order map[string]StageConfig, componentPath func(component string) string) []Stage {
	names := make([]string, 0, len(order))
	for name := range order {
		names = append(names, name)
	}
	sort.Strings(names)

	stages := make([]Stage, 0, len(names))
	for _, name := range names {
		sc := order[name]
		stage := Stage{
			Name:    name,
			Wait:    sc.Wait == nil || *sc.Wait,
			Timeout: DefaultStageTimeout,
		}
		if sc.Timeout != nil {
			stage.Timeout = time.Duration(*sc.Timeout) * time.Second
		}
		for _, comp := range sc.Components {
			c := Component{Name: comp}
			if componentPath != nil {
				c.TemplatePath = componentPath(comp)
			}
			stage.Components = append(stage.Components, c)
		}
		stages = append(stages, stage)
	}
	return stages
}
