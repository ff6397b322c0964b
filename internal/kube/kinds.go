// File: internal/kube/kinds.go
// Brief: Resource kind aliases and group/version hints.

package kube

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// kindAliases maps CLI-style shortcuts onto canonical kind names.
var kindAliases = map[string]string{
	"bc":     "BuildConfig",
	"dc":     "DeploymentConfig",
	"is":     "ImageStream",
	"istag":  "ImageStreamTag",
	"po":     "Pod",
	"svc":    "Service",
	"sa":     "ServiceAccount",
	"pvc":    "PersistentVolumeClaim",
	"sts":    "StatefulSet",
	"ds":     "DaemonSet",
	"deploy": "Deployment",
}

// preferredGroupVersions pins kinds that discovery can be slow or ambiguous
// about, OpenShift API groups in particular.
var preferredGroupVersions = map[string]schema.GroupVersionKind{
	"deploymentconfig":      {Group: "apps.openshift.io", Version: "v1", Kind: "DeploymentConfig"},
	"buildconfig":           {Group: "build.openshift.io", Version: "v1", Kind: "BuildConfig"},
	"build":                 {Group: "build.openshift.io", Version: "v1", Kind: "Build"},
	"imagestream":           {Group: "image.openshift.io", Version: "v1", Kind: "ImageStream"},
	"imagestreamtag":        {Group: "image.openshift.io", Version: "v1", Kind: "ImageStreamTag"},
	"route":                 {Group: "route.openshift.io", Version: "v1", Kind: "Route"},
	"deployment":            {Group: "apps", Version: "v1", Kind: "Deployment"},
	"statefulset":           {Group: "apps", Version: "v1", Kind: "StatefulSet"},
	"daemonset":             {Group: "apps", Version: "v1", Kind: "DaemonSet"},
	"secret":                {Group: "", Version: "v1", Kind: "Secret"},
	"service":               {Group: "", Version: "v1", Kind: "Service"},
	"serviceaccount":        {Group: "", Version: "v1", Kind: "ServiceAccount"},
	"configmap":             {Group: "", Version: "v1", Kind: "ConfigMap"},
	"pod":                   {Group: "", Version: "v1", Kind: "Pod"},
	"persistentvolumeclaim": {Group: "", Version: "v1", Kind: "PersistentVolumeClaim"},
}

// CanonicalKind resolves a kind name or shortcut to its canonical form.
func CanonicalKind(kind string) (string, error) {
	k := strings.TrimSpace(kind)
	if full, ok := kindAliases[strings.ToLower(k)]; ok {
		return full, nil
	}
	if gvk, ok := preferredGroupVersions[strings.ToLower(k)]; ok {
		return gvk.Kind, nil
	}
	if k == "" {
		return "", fmt.Errorf("empty resource kind")
	}
	// Unknown kinds pass through; the REST mapper has the final word.
	return k, nil
}

// GVKForKind returns the pinned GroupVersionKind for a kind, when one exists.
func GVKForKind(kind string) (schema.GroupVersionKind, bool) {
	gvk, ok := preferredGroupVersions[strings.ToLower(strings.TrimSpace(kind))]
	return gvk, ok
}

// ReplicaWorkloadKinds are the kinds whose readiness is replica-count based.
var ReplicaWorkloadKinds = []string{"Deployment", "DeploymentConfig", "StatefulSet", "DaemonSet"}

// IsReplicaWorkload reports whether a kind carries replicas worth waiting on.
func IsReplicaWorkload(kind string) bool {
	for _, k := range ReplicaWorkloadKinds {
		if strings.EqualFold(kind, k) {
			return true
		}
	}
	return false
}

// IsBuildLike reports whether a kind completes through a terminal phase.
func IsBuildLike(kind string) bool {
	return strings.EqualFold(kind, "Build")
}
