// File: internal/deploy/stages.go
// Brief: Built-in deploy and post-deploy phases.

package deploy

import (
	"context"
	"fmt"

	"github.com/kubekattle/setctl/internal/config"
	"github.com/kubekattle/setctl/internal/kube"
	"github.com/kubekattle/setctl/internal/render"
	"github.com/kubekattle/setctl/internal/watch"
)

// buildConfigNameLabel is set by the build controller on builds it creates.
const buildConfigNameLabel = "openshift.io/build-config.name"

// defaultDeploy runs the set's stages in order: render and apply every
// selected component, then wait for the stage's workloads when the stage asks
// for it. The first stage failure stops the set.
func defaultDeploy(ctx context.Context, hc *HookContext) error {
	run, set := hc.Run, hc.Set
	for _, stage := range set.Stages {
		if err := runStage(ctx, hc, stage); err != nil {
			run.recordStage(ctx, set.Name, stage.Name, err)
			return &StageError{Set: set.Name, Stage: stage.Name, Err: err}
		}
		run.recordStage(ctx, set.Name, stage.Name, nil)
	}
	return nil
}

func runStage(ctx context.Context, hc *HookContext, stage config.Stage) error {
	run, set := hc.Run, hc.Set
	log := run.Log.WithValues("set", set.Name, "stage", stage.Name)

	var results []*render.Result
	for _, comp := range stage.Components {
		if !run.componentSelected(set.Name, comp.Name) {
			log.Info("skipping component", "component", comp.Name)
			continue
		}
		res, err := deployComponent(ctx, hc, stage, comp)
		if err != nil {
			return err
		}
		results = append(results, res)
	}
	hc.Rendered = append(hc.Rendered, results...)

	if !stage.Wait {
		return nil
	}
	targets := workloadTargets(results)
	if len(targets) == 0 {
		return nil
	}
	log.Info("waiting for readiness", "targets", len(targets), "timeout", stage.Timeout)
	_, err := run.Watcher.Wait(ctx, stage.Timeout, targets)
	return err
}

func deployComponent(ctx context.Context, hc *HookContext, stage config.Stage, comp config.Component) (*render.Result, error) {
	run, set := hc.Run, hc.Set
	log := run.Log.WithValues("set", set.Name, "stage", stage.Name, "component", comp.Name)

	tpl, err := render.Load(comp.TemplatePath)
	if err != nil {
		return nil, err
	}
	vars := run.Tree.VariablesFor(set.Name, comp.Name)
	res, err := run.Renderer.Render(tpl, vars.Parameters(), vars.FreeForm(), render.Options{
		ScaleFactor: run.Opts.ScaleFactor,
		Label:       run.Opts.Label,
	})
	if err != nil {
		return nil, err
	}
	if len(res.SkippedParams) > 0 {
		log.Info("ignoring parameters the template does not declare", "parameters", res.SkippedParams)
	}
	if res.Empty() {
		log.Info("template rendered no objects")
		return res, nil
	}

	for _, obj := range res.Objects {
		log.Info("applying", "kind", obj.GetKind(), "name", obj.GetName())
		if err := run.Ops.Apply(ctx, obj); err != nil {
			return nil, &ApplyError{
				Set:       set.Name,
				Stage:     stage.Name,
				Component: comp.Name,
				Kind:      obj.GetKind(),
				Name:      obj.GetName(),
				Err:       err,
			}
		}
	}
	return res, nil
}

// workloadTargets collects the readiness-watchable objects out of rendered
// results: replica workloads plus directly rendered builds.
func workloadTargets(results []*render.Result) []watch.Target {
	var targets []watch.Target
	for _, res := range results {
		for _, obj := range res.Objects {
			if kube.IsReplicaWorkload(obj.GetKind()) || kube.IsBuildLike(obj.GetKind()) {
				targets = append(targets, watch.Target{Kind: obj.GetKind(), Name: obj.GetName()})
			}
		}
	}
	return targets
}

// defaultPostDeploy triggers a build for every rendered build config that has
// never built, then waits for all of the set's builds to complete. A zero
// post_deploy_timeout skips the waiting but still triggers.
func defaultPostDeploy(ctx context.Context, hc *HookContext) error {
	run, set := hc.Run, hc.Set
	log := run.Log.WithValues("set", set.Name)

	var buildTargets []watch.Target
	for _, res := range hc.Rendered {
		for _, bc := range res.NamesForKind("BuildConfig") {
			builds, err := run.Ops.List(ctx, "Build", buildConfigNameLabel+"="+bc)
			if err != nil {
				return fmt.Errorf("list builds for %q: %w", bc, err)
			}
			if len(builds) == 0 {
				log.Info("triggering first build", "buildconfig", bc)
				name, err := run.Ops.TriggerBuild(ctx, bc)
				if err != nil {
					return err
				}
				buildTargets = append(buildTargets, watch.Target{Kind: "Build", Name: name})
				continue
			}
			for _, build := range builds {
				buildTargets = append(buildTargets, watch.Target{Kind: "Build", Name: build.GetName()})
			}
		}
	}

	if set.PostDeployTimeout <= 0 || len(buildTargets) == 0 {
		return nil
	}
	log.Info("waiting for builds", "builds", len(buildTargets), "timeout", set.PostDeployTimeout)
	_, err := run.Watcher.Wait(ctx, set.PostDeployTimeout, buildTargets)
	return err
}
