// File: internal/watch/predicates.go
// Brief: Per-kind readiness predicates over unstructured objects.

package watch

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/kubekattle/setctl/internal/kube"
)

// state is one poll's verdict for a target.
type state int

const (
	statePending state = iota
	stateReady
	stateFailed
)

// terminalBuildPhases end a build without success. Seeing one of these makes
// further waiting pointless.
var terminalBuildPhases = map[string]bool{
	"Failed":    true,
	"Cancelled": true,
	"Error":     true,
}

// evaluateContent classifies a target from its raw object content.
func evaluateContent(kind string, content map[string]any) (state, string) {
	return evaluate(kind, &unstructured.Unstructured{Object: content})
}

// evaluate inspects one object and classifies the target. The returned
// message explains a pending or failed verdict for progress logging.
func evaluate(kind string, obj *unstructured.Unstructured) (state, string) {
	switch {
	case kube.IsBuildLike(kind):
		return evaluateBuild(obj)
	case strings.EqualFold(kind, "DaemonSet"):
		return evaluateDaemonSet(obj)
	case kube.IsReplicaWorkload(kind):
		return evaluateReplicas(obj)
	default:
		// Kinds with no readiness notion count as ready on existence.
		return stateReady, ""
	}
}

func evaluateBuild(obj *unstructured.Unstructured) (state, string) {
	phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	switch {
	case phase == "Complete":
		return stateReady, ""
	case terminalBuildPhases[phase]:
		return stateFailed, fmt.Sprintf("build ended with phase %s", phase)
	default:
		return statePending, fmt.Sprintf("build phase %s", phase)
	}
}

func evaluateReplicas(obj *unstructured.Unstructured) (state, string) {
	desired, found, _ := unstructured.NestedInt64(obj.Object, "spec", "replicas")
	if !found {
		desired = 1
	}
	if stale(obj) {
		return statePending, "status not yet observed for latest generation"
	}
	ready, _, _ := unstructured.NestedInt64(obj.Object, "status", "readyReplicas")
	updated, _, _ := unstructured.NestedInt64(obj.Object, "status", "updatedReplicas")
	if ready >= desired && updated >= desired {
		return stateReady, ""
	}
	return statePending, fmt.Sprintf("%d/%d replicas ready, %d updated", ready, desired, updated)
}

func evaluateDaemonSet(obj *unstructured.Unstructured) (state, string) {
	if stale(obj) {
		return statePending, "status not yet observed for latest generation"
	}
	desired, _, _ := unstructured.NestedInt64(obj.Object, "status", "desiredNumberScheduled")
	ready, _, _ := unstructured.NestedInt64(obj.Object, "status", "numberReady")
	updated, _, _ := unstructured.NestedInt64(obj.Object, "status", "updatedNumberScheduled")
	if ready >= desired && updated >= desired {
		return stateReady, ""
	}
	return statePending, fmt.Sprintf("%d/%d pods ready, %d updated", ready, desired, updated)
}

// stale reports whether the controller has not yet observed the latest spec.
func stale(obj *unstructured.Unstructured) bool {
	observed, found, _ := unstructured.NestedInt64(obj.Object, "status", "observedGeneration")
	return found && observed < obj.GetGeneration()
}
