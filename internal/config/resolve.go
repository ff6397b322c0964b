// File: internal/config/resolve.go
// Brief: ConfigTree resolution: one immutable view of everything a run deploys.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PromptFunc supplies a concrete value for a `{prompt}` parameter. It is
// called during tree resolution, never during rendering or deploying.
type PromptFunc func(set, component, name string) (string, error)

// promptSentinel marks a parameter whose value must be supplied
// interactively before the run starts.
const promptSentinel = "{prompt}"

// TreeOptions configures Resolve.
type TreeOptions struct {
	RootDir     string
	ProjectName string
	// SecretsSourceProject feeds the SECRETS_PROJECT built-in parameter.
	SecretsSourceProject string
	Env                  *EnvHandler
	// Selected names the service sets chosen for this run, in any order; the
	// root config's deploy_order decides execution order.
	Selected []string
	// GlobalParams are extra parameter overrides applied at global scope
	// (e.g. --set flags). They override any env-source value.
	GlobalParams map[string]string
	Prompt       PromptFunc
}

// Tree is the resolved configuration for one run. It is built once, before
// any cluster mutation, and never modified afterwards.
type Tree struct {
	ProjectName string
	RootDir     string
	Base        DeployConfig
	// Sets holds the selected service sets in deploy order.
	Sets []*ServiceSet

	vars map[string]Variables
}

// VariablesFor returns the resolved variable mapping for a component.
func (t *Tree) VariablesFor(set, component string) Variables {
	if v, ok := t.vars[set+"/"+component]; ok {
		return v
	}
	return Variables{}
}

// VariablesForSet returns the per-component variable mappings for every
// component of one set, keyed by component name.
func (t *Tree) VariablesForSet(set *ServiceSet) map[string]Variables {
	out := map[string]Variables{}
	for _, stage := range set.Stages {
		for _, comp := range stage.Components {
			out[comp.Name] = t.VariablesFor(set.Name, comp.Name)
		}
	}
	return out
}

// Resolve builds the ConfigTree: root config plus per-set configs, overlaid
// with env-source fragments, with every component's variables merged down to
// final values and `{prompt}` parameters resolved.
func Resolve(opts TreeOptions) (*Tree, error) {
	if opts.Env == nil {
		env, err := NewEnvHandler(opts.RootDir, "", nil)
		if err != nil {
			return nil, err
		}
		opts.Env = env
	}

	base, err := LoadDeployConfig(opts.RootDir)
	if err != nil {
		return nil, err
	}
	if frag, ok, err := opts.Env.BaseCfgFragment(); err != nil {
		return nil, err
	} else if ok {
		base, err = MergeConfigFragment(base, frag)
		if err != nil {
			return nil, &ConfigError{Path: opts.RootDir, Err: err}
		}
	}

	declared := ListServiceSets(base)
	declaredSet := map[string]bool{}
	for _, name := range declared {
		if declaredSet[name] {
			return nil, &ConfigError{Path: opts.RootDir, Err: fmt.Errorf("service set %q appears more than once in deploy_order", name)}
		}
		declaredSet[name] = true
	}

	selected := map[string]bool{}
	for _, name := range opts.Selected {
		if !declaredSet[name] {
			return nil, &ConfigError{Path: opts.RootDir, Err: fmt.Errorf("service set %q not found in base config", name)}
		}
		selected[name] = true
	}

	tree := &Tree{
		ProjectName: opts.ProjectName,
		RootDir:     opts.RootDir,
		Base:        base,
		vars:        map[string]Variables{},
	}

	for _, name := range declared {
		if !selected[name] {
			continue
		}
		set, err := resolveSet(opts, name)
		if err != nil {
			return nil, err
		}
		if err := resolveSetVariables(opts, tree, set); err != nil {
			return nil, err
		}
		tree.Sets = append(tree.Sets, set)
	}
	return tree, nil
}

func resolveSet(opts TreeOptions, name string) (*ServiceSet, error) {
	dir := filepath.Join(opts.RootDir, name)
	cfg, err := LoadDeployConfig(dir)
	if err != nil {
		return nil, err
	}
	if frag, ok, err := opts.Env.SetCfgFragment(dir); err != nil {
		return nil, err
	} else if ok {
		cfg, err = MergeConfigFragment(cfg, frag)
		if err != nil {
			return nil, &ConfigError{Set: name, Path: dir, Err: err}
		}
	}

	templates, err := templatePathsInDir(dir)
	if err != nil {
		return nil, &ConfigError{Set: name, Path: dir, Err: err}
	}

	set := &ServiceSet{
		Name:              name,
		Dir:               dir,
		Requires:          cfg.Requires,
		Secrets:           cfg.Secrets,
		Images:            cfg.Images,
		CustomDeployLogic: cfg.CustomDeployLogic,
	}
	set.PostDeployTimeout = DefaultPostDeployTimeout
	if cfg.PostDeployTimeout != nil {
		set.PostDeployTimeout = time.Duration(*cfg.PostDeployTimeout) * time.Second
	}
	set.Stages = ResolveStages(cfg.DeployOrder, func(component string) string {
		return templates[component]
	})

	for _, stage := range set.Stages {
		for _, comp := range stage.Components {
			if comp.TemplatePath == "" {
				return nil, &ConfigError{Set: name, Path: dir, Err: fmt.Errorf(
					"component %q in stage %q has no template file", comp.Name, stage.Name)}
			}
		}
	}
	return set, nil
}

// templatePathsInDir maps component name (file name minus extension) to the
// template file path.
func templatePathsInDir(dir string) (map[string]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	files, err := CfgFilesInDir(dir)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, path := range files {
		base := filepath.Base(path)
		out[strings.TrimSuffix(base, filepath.Ext(base))] = path
	}
	return out, nil
}

func resolveSetVariables(opts TreeOptions, tree *Tree, set *ServiceSet) error {
	for _, stage := range set.Stages {
		for _, comp := range stage.Components {
			vars, err := opts.Env.VarsForComponent(set.Dir, set.Name, comp.Name)
			if err != nil {
				return err
			}
			// Built-in parameters every render receives.
			vars.SetParameter("NAMESPACE", opts.ProjectName)
			if opts.SecretsSourceProject != "" {
				vars.SetParameter("SECRETS_PROJECT", opts.SecretsSourceProject)
			}
			for k, v := range opts.GlobalParams {
				vars.SetParameter(k, v)
			}
			if err := resolvePrompts(opts, set.Name, comp.Name, vars); err != nil {
				return err
			}
			tree.vars[set.Name+"/"+comp.Name] = vars
		}
	}
	return nil
}

// resolvePrompts replaces `{prompt}` parameter values with concrete input.
// Rendering never sees the sentinel.
func resolvePrompts(opts TreeOptions, set, component string, vars Variables) error {
	params, ok := vars["parameters"].(map[string]any)
	if !ok {
		return nil
	}
	for name, val := range params {
		s, ok := val.(string)
		if !ok || s != promptSentinel {
			continue
		}
		if opts.Prompt == nil {
			return &ConfigError{Set: set, Err: fmt.Errorf(
				"parameter %q for component %q requires a prompted value but prompting is disabled", name, component)}
		}
		concrete, err := opts.Prompt(set, component, name)
		if err != nil {
			return &ConfigError{Set: set, Err: fmt.Errorf("prompt for parameter %q: %w", name, err)}
		}
		params[name] = concrete
	}
	return nil
}
