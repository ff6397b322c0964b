// File: internal/events/stream.go
// Brief: Live namespace event streaming during a deploy.

package events

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	corev1 "k8s.io/api/core/v1"

	"github.com/kubekattle/setctl/internal/kube"
)

var (
	warnReason   = color.New(color.FgYellow, color.Bold)
	normalReason = color.New(color.FgCyan)
)

// Streamer tails namespace events to a writer while a deploy runs. Only
// events newer than Since are shown, so pre-existing noise stays out of the
// way.
type Streamer struct {
	Ops   kube.Ops
	Out   io.Writer
	Since time.Time
}

// Run streams until the context is canceled or the server closes the watch.
// It is meant to run in its own goroutine next to the deploy.
func (s *Streamer) Run(ctx context.Context) error {
	w, err := s.Ops.WatchEvents(ctx)
	if err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.ResultChan():
			if !ok {
				return nil
			}
			event, ok := ev.Object.(*corev1.Event)
			if !ok {
				continue
			}
			if s.stamp(event).Before(s.Since) {
				continue
			}
			s.print(event)
		}
	}
}

// stamp picks the most recent timestamp an event carries; the fields vary by
// event source.
func (s *Streamer) stamp(event *corev1.Event) time.Time {
	t := event.LastTimestamp.Time
	if event.EventTime.Time.After(t) {
		t = event.EventTime.Time
	}
	if event.FirstTimestamp.Time.After(t) {
		t = event.FirstTimestamp.Time
	}
	return t
}

func (s *Streamer) print(event *corev1.Event) {
	paint := normalReason
	if event.Type == corev1.EventTypeWarning {
		paint = warnReason
	}
	fmt.Fprintf(s.Out, "%s  %s %s/%s: %s\n",
		paint.Sprint(event.Reason),
		event.Type,
		event.InvolvedObject.Kind,
		event.InvolvedObject.Name,
		event.Message,
	)
}
