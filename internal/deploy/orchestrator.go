// File: internal/deploy/orchestrator.go
// Brief: Whole-run orchestration across service sets.

package deploy

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/kubekattle/setctl/internal/config"
)

// Deploy runs every selected service set in tree order. Dependency order is
// validated up front so a bad selection fails before any cluster mutation.
// With ContinueOnError the run presses on past failed sets and reports them
// all at the end; otherwise the first failure halts the run.
func Deploy(ctx context.Context, run *Run) error {
	if len(run.Tree.Sets) == 0 {
		return fmt.Errorf("nothing selected to deploy")
	}
	if !run.Opts.IgnoreRequires {
		if err := config.ValidateOrder(run.Tree.Sets); err != nil {
			return err
		}
	}

	var merr *multierror.Error
	for _, set := range run.Tree.Sets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runSet(ctx, run, set); err != nil {
			if !run.Opts.ContinueOnError {
				return err
			}
			run.Log.Error(err, "set failed, continuing", "set", set.Name)
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
