// File: internal/deploy/scheduler.go
// Brief: Per-set phase machine: import, pre, stages, post.

package deploy

import (
	"context"
	"fmt"

	"github.com/kubekattle/setctl/internal/config"
)

// Phase is where a service set currently is in its deploy.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseImporting
	PhasePreDeploy
	PhaseStages
	PhasePostDeploy
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseImporting:
		return "importing"
	case PhasePreDeploy:
		return "pre-deploy"
	case PhaseStages:
		return "stages"
	case PhasePostDeploy:
		return "post-deploy"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// runSet walks one service set through its phases. The first phase error
// marks the set failed and stops it; later sets are the orchestrator's call.
func runSet(ctx context.Context, run *Run, set *config.ServiceSet) error {
	hooks := resolveHooks(run.Tree.ProjectName, set)
	hc := &HookContext{Run: run, Set: set}
	log := run.Log.WithValues("set", set.Name)

	type step struct {
		phase Phase
		fn    func(context.Context, *HookContext) error
	}
	steps := []step{
		{PhaseImporting, func(ctx context.Context, hc *HookContext) error {
			if err := run.Secrets.Import(ctx, set.Secrets); err != nil {
				return err
			}
			return run.Images.Import(ctx, set.Images)
		}},
		{PhasePreDeploy, hooks.PreDeploy},
		{PhaseStages, hooks.Deploy},
		{PhasePostDeploy, hooks.PostDeploy},
	}

	for _, s := range steps {
		log.Info("entering phase", "phase", s.phase.String())
		run.recordPhase(ctx, set.Name, s.phase.String(), nil)
		if err := s.fn(ctx, hc); err != nil {
			run.recordPhase(ctx, set.Name, PhaseFailed.String(), err)
			return fmt.Errorf("set %q %s: %w", set.Name, s.phase, err)
		}
	}
	run.recordPhase(ctx, set.Name, PhaseDone.String(), nil)
	log.Info("set deployed")
	return nil
}
