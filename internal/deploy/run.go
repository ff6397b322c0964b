// File: internal/deploy/run.go
// Brief: Deploy run wiring: resolved tree, cluster surface, options.

package deploy

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/kubekattle/setctl/internal/config"
	"github.com/kubekattle/setctl/internal/importer"
	"github.com/kubekattle/setctl/internal/kube"
	"github.com/kubekattle/setctl/internal/render"
	"github.com/kubekattle/setctl/internal/watch"
)

// Options are the per-run knobs from the command line.
type Options struct {
	// SkipComponents removes "set/component" entries from the run.
	SkipComponents []string
	// PickComponents, when non-empty, restricts the run to these
	// "set/component" entries. Skip still applies on top.
	PickComponents []string
	// ScaleFactor multiplies cpu/memory requests and limits on every
	// rendered object. 0 (unset) or 1 leaves them alone; a negative factor
	// strips them.
	ScaleFactor float64
	// Label is added to every rendered object as "key=value".
	Label string
	// IgnoreRequires disables dependency-order validation.
	IgnoreRequires bool
	// ContinueOnError keeps deploying later sets after one fails.
	ContinueOnError bool
}

// Journal records run progress for later inspection. A nil journal disables
// recording.
type Journal interface {
	SetPhase(ctx context.Context, set, phase string, err error)
	StageOutcome(ctx context.Context, set, stage string, err error)
}

// Run bundles everything one deploy invocation needs. Hooks receive it
// through their HookContext.
type Run struct {
	Tree     *config.Tree
	Ops      kube.Ops
	Renderer render.Renderer
	Watcher  *watch.Watcher
	Secrets  *importer.SecretImporter
	Images   *importer.ImageImporter
	Journal  Journal
	Log      logr.Logger
	Opts     Options
}

// componentSelected applies the pick/skip filters to "set/component".
func (r *Run) componentSelected(set, component string) bool {
	key := set + "/" + component
	if len(r.Opts.PickComponents) > 0 {
		picked := false
		for _, p := range r.Opts.PickComponents {
			if p == key {
				picked = true
				break
			}
		}
		if !picked {
			return false
		}
	}
	for _, s := range r.Opts.SkipComponents {
		if s == key {
			return false
		}
	}
	return true
}

func (r *Run) recordPhase(ctx context.Context, set, phase string, err error) {
	if r.Journal != nil {
		r.Journal.SetPhase(ctx, set, phase, err)
	}
}

func (r *Run) recordStage(ctx context.Context, set, stage string, err error) {
	if r.Journal != nil {
		r.Journal.StageOutcome(ctx, set, stage, err)
	}
}
