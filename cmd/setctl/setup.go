// setup.go holds the wiring shared by the subcommands: client construction,
// tree resolution, and --set parameter parsing.
package main

import (
	"fmt"
	"sort"

	"helm.sh/helm/v3/pkg/strvals"

	"github.com/kubekattle/setctl/internal/config"
	"github.com/kubekattle/setctl/internal/kube"
)

func buildClient(opts *globalOptions) (*kube.Client, error) {
	return kube.New(opts.kubeconfig, opts.kubeContext)
}

// parseSetParams turns --set values ("NAME=x,OTHER=y", repeatable) into the
// global parameter overrides. Nested values flatten to dotted names.
func parseSetParams(values []string) (map[string]string, error) {
	merged := map[string]any{}
	for _, val := range values {
		if err := strvals.ParseInto(val, merged); err != nil {
			return nil, fmt.Errorf("parse --set %q: %w", val, err)
		}
	}
	out := map[string]string{}
	flattenParams("", merged, out)
	return out, nil
}

func flattenParams(prefix string, in map[string]any, out map[string]string) {
	for key, val := range in {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenParams(name, nested, out)
			continue
		}
		out[name] = fmt.Sprint(val)
	}
}

// normalizeScaleFactor maps the --scale-resources flag onto the renderer's
// convention: zero is reserved there for "unset", so any strip request
// (factor <= 0) travels as a negative factor.
func normalizeScaleFactor(f float64) float64 {
	if f <= 0 {
		return -1
	}
	return f
}

// resolveTree builds the run's config tree from command-line inputs.
func resolveTree(opts *globalOptions, namespace, secretsSrc string, envs, sets, setParams []string, prompt config.PromptFunc) (*config.Tree, error) {
	env, err := config.NewEnvHandler(opts.templateDir, "", envs)
	if err != nil {
		return nil, err
	}
	globalParams, err := parseSetParams(setParams)
	if err != nil {
		return nil, err
	}
	return config.Resolve(config.TreeOptions{
		RootDir:              opts.templateDir,
		ProjectName:          namespace,
		SecretsSourceProject: secretsSrc,
		Env:                  env,
		Selected:             sets,
		GlobalParams:         globalParams,
		Prompt:               prompt,
	})
}

// allSetNames lists every service set declared in the base config, in deploy
// order.
func allSetNames(opts *globalOptions) ([]string, error) {
	base, err := config.LoadDeployConfig(opts.templateDir)
	if err != nil {
		return nil, err
	}
	return config.ListServiceSets(base), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
