// process.go implements `setctl process`: render templates locally without
// touching a cluster.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/kubekattle/setctl/internal/config"
	"github.com/kubekattle/setctl/internal/render"
)

type processOptions struct {
	sets           []string
	all            bool
	envs           []string
	setParams      []string
	namespace      string
	scaleResources float64
	label          string
	pick           []string
	varsOnly       bool
	toDir          string
	diffDir        string
	noConfirm      bool
}

func newProcessCommand(gopts *globalOptions) *cobra.Command {
	opts := &processOptions{scaleResources: 1.0, namespace: "local"}
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Render service set templates to stdout or a directory",
		Long: `Process runs the same two-phase render a deploy would, but writes the
result out instead of applying it. Useful for reviewing what a deploy would
create, and for diffing against a previous render.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, gopts, opts)
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVarP(&opts.sets, "sets", "s", nil, "Comma-separated service sets to render")
	fl.BoolVar(&opts.all, "all", false, "Render every service set the base config declares")
	fl.StringSliceVarP(&opts.envs, "env", "e", nil, "Environment names to apply, first listed wins")
	fl.StringArrayVar(&opts.setParams, "set", nil, "Global parameter overrides (NAME=value, repeatable)")
	fl.StringVarP(&opts.namespace, "namespace", "n", opts.namespace, "Namespace name to render with")
	fl.Float64Var(&opts.scaleResources, "scale-resources", opts.scaleResources, "Multiply cpu/memory requests and limits by this factor (<=0 strips them)")
	fl.StringVarP(&opts.label, "label", "l", "", "Label to apply to every rendered object (key=value)")
	fl.StringSliceVar(&opts.pick, "pick", nil, "Render only these components, as set/component")
	fl.BoolVar(&opts.varsOnly, "vars-only", false, "Stop after variable substitution and print the raw template text")
	fl.StringVar(&opts.toDir, "to-dir", "", "Write rendered manifests under this directory instead of stdout")
	fl.StringVar(&opts.diffDir, "diff-dir", "", "Diff rendered manifests against files in this directory")
	fl.BoolVar(&opts.noConfirm, "no-confirm", false, "Disable {prompt} parameter input")
	return cmd
}

func runProcess(cmd *cobra.Command, gopts *globalOptions, opts *processOptions) error {
	sets := opts.sets
	var err error
	if opts.all {
		if len(sets) > 0 {
			return fmt.Errorf("--all and --sets are mutually exclusive")
		}
		sets, err = allSetNames(gopts)
		if err != nil {
			return err
		}
	}
	if len(sets) == 0 {
		return fmt.Errorf("nothing to render: pass --sets or --all")
	}
	if opts.toDir != "" && opts.diffDir != "" {
		return fmt.Errorf("--to-dir and --diff-dir are mutually exclusive")
	}

	tree, err := resolveTree(gopts, opts.namespace, "", opts.envs, sets, opts.setParams, promptFunc(opts.noConfirm))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	differs := 0
	for _, set := range tree.Sets {
		for _, stage := range set.Stages {
			for _, comp := range stage.Components {
				if !pickSelected(opts.pick, set.Name, comp.Name) {
					continue
				}
				text, err := renderComponentText(tree, set, comp, opts)
				if err != nil {
					return err
				}
				switch {
				case opts.toDir != "":
					if err := writeRendered(opts.toDir, set.Name, comp.Name, text); err != nil {
						return err
					}
				case opts.diffDir != "":
					same, err := diffRendered(out, opts.diffDir, set.Name, comp.Name, text)
					if err != nil {
						return err
					}
					if !same {
						differs++
					}
				default:
					fmt.Fprintf(out, "---\n# %s/%s\n%s", set.Name, comp.Name, text)
				}
			}
		}
	}
	if differs > 0 {
		return fmt.Errorf("%d component(s) differ", differs)
	}
	return nil
}

func pickSelected(pick []string, set, component string) bool {
	if len(pick) == 0 {
		return true
	}
	key := set + "/" + component
	for _, p := range pick {
		if p == key {
			return true
		}
	}
	return false
}

func renderComponentText(tree *config.Tree, set *config.ServiceSet, comp config.Component, opts *processOptions) (string, error) {
	tpl, err := render.Load(comp.TemplatePath)
	if err != nil {
		return "", err
	}
	vars := tree.VariablesFor(set.Name, comp.Name)
	if opts.varsOnly {
		return render.RenderVarsOnly(tpl, vars.FreeForm())
	}

	res, err := render.TwoPhase{}.Render(tpl, vars.Parameters(), vars.FreeForm(), render.Options{
		ScaleFactor: normalizeScaleFactor(opts.scaleResources),
		Label:       opts.label,
	})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, obj := range res.Objects {
		raw, err := yaml.Marshal(obj.Object)
		if err != nil {
			return "", fmt.Errorf("marshal %s/%s: %w", obj.GetKind(), obj.GetName(), err)
		}
		if b.Len() > 0 {
			b.WriteString("---\n")
		}
		b.Write(raw)
	}
	return b.String(), nil
}

func writeRendered(dir, set, component, text string) error {
	target := filepath.Join(dir, set)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(target, component+".yaml"), []byte(text), 0o644)
}

// diffRendered prints a unified diff between the previously rendered file and
// the fresh render. Returns whether the two match.
func diffRendered(out io.Writer, dir, set, component, text string) (bool, error) {
	path := filepath.Join(dir, set, component+".yaml")
	prev, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		fmt.Fprintf(out, "%s/%s: no previous render at %s\n", set, component, path)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if string(prev) == text {
		return true, nil
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(prev)),
		B:        difflib.SplitLines(text),
		FromFile: path,
		ToFile:   set + "/" + component + " (rendered)",
		Context:  3,
	})
	if err != nil {
		return false, err
	}
	fmt.Fprint(out, diff)
	return false, nil
}
