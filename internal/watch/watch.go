// File: internal/watch/watch.go
// Brief: Concurrent readiness polling against a shared deadline.

package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/kubekattle/setctl/internal/kube"
)

// DefaultInterval is the poll cadence per target.
const DefaultInterval = 2 * time.Second

// Target identifies one object to wait on.
type Target struct {
	Kind string
	Name string
}

func (t Target) String() string { return strings.ToLower(t.Kind) + "/" + t.Name }

// TimeoutError reports the targets still pending when the deadline hit.
type TimeoutError struct {
	Timeout time.Duration
	Pending []Target
}

func (e *TimeoutError) Error() string {
	names := make([]string, len(e.Pending))
	for i, t := range e.Pending {
		names[i] = t.String()
	}
	return fmt.Sprintf("not ready after %s: %s", e.Timeout, strings.Join(names, ", "))
}

// FailureError reports a target that reached a terminal failed state. It
// short-circuits the whole wait.
type FailureError struct {
	Target Target
	Reason string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Target, e.Reason)
}

// Result is the final verdict for one target. Every target in a wait gets
// exactly one Result, whatever the outcome.
type Result struct {
	Target Target
	Ready  bool
	Err    error
}

// Watcher polls a group of targets until all are ready, one fails
// terminally, or the shared deadline expires.
type Watcher struct {
	Fetch    FetchFunc
	Interval time.Duration
	Log      logr.Logger
}

// FetchFunc fetches the current object for a target. A NotFound error is a
// pending condition, not a failure: objects may lag their triggers.
type FetchFunc func(ctx context.Context, kind, name string) (map[string]any, error)

// OpsFetcher adapts the cluster Ops surface to a FetchFunc.
func OpsFetcher(ops kube.Ops) FetchFunc {
	return func(ctx context.Context, kind, name string) (map[string]any, error) {
		obj, err := ops.Get(ctx, kind, name)
		if err != nil {
			return nil, err
		}
		return obj.UnstructuredContent(), nil
	}
}

// Wait polls every target concurrently. It returns the per-target results in
// target order plus the aggregated error, nil when everything went ready in
// time. A terminal failure cancels the remaining polls immediately.
func (w *Watcher) Wait(ctx context.Context, timeout time.Duration, targets []Target) ([]Result, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			res := w.waitOne(gctx, interval, target, timeout)
			results[i] = res
			if res.Err != nil {
				if _, terminal := res.Err.(*FailureError); terminal {
					return res.Err
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var merr *multierror.Error
	var pending []Target
	for _, res := range results {
		var timeoutErr *TimeoutError
		switch {
		case res.Err == nil:
		case errors.As(res.Err, &timeoutErr):
			pending = append(pending, res.Target)
		case errors.Is(res.Err, context.Canceled):
			// Canceled by another target's terminal failure; that failure
			// carries the report.
		default:
			merr = multierror.Append(merr, res.Err)
		}
	}
	if len(pending) > 0 {
		sort.Slice(pending, func(i, j int) bool { return pending[i].String() < pending[j].String() })
		merr = multierror.Append(merr, &TimeoutError{Timeout: timeout, Pending: pending})
	}
	return results, merr.ErrorOrNil()
}

func (w *Watcher) waitOne(ctx context.Context, interval time.Duration, target Target, timeout time.Duration) Result {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		obj, err := w.Fetch(ctx, target.Kind, target.Name)
		switch {
		case err == nil:
			st, msg := evaluateContent(target.Kind, obj)
			switch st {
			case stateReady:
				w.Log.Info("ready", "target", target.String())
				return Result{Target: target, Ready: true}
			case stateFailed:
				return Result{Target: target, Err: &FailureError{Target: target, Reason: msg}}
			default:
				w.Log.V(1).Info("waiting", "target", target.String(), "status", msg)
			}
		case apierrors.IsNotFound(err):
			w.Log.V(1).Info("waiting", "target", target.String(), "status", "not created yet")
		case ctx.Err() != nil:
			// Fall through to the select below to classify the cancelation.
		default:
			return Result{Target: target, Err: fmt.Errorf("poll %s: %w", target, err)}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{Target: target, Err: &TimeoutError{Timeout: timeout, Pending: []Target{target}}}
			}
			return Result{Target: target, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}
