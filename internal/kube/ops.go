// File: internal/kube/ops.go
// Brief: Cluster operations used by the deploy pipeline.

package kube

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
)

// Ops is the cluster surface the deploy pipeline runs against. Tests swap in
// a fake; production code uses the dynamic-client implementation from NewOps.
type Ops interface {
	// Namespace returns the namespace all operations are scoped to.
	Namespace() string

	// Apply creates the object, or updates it in place when it already
	// exists.
	Apply(ctx context.Context, obj *unstructured.Unstructured) error
	// Get fetches one object by kind (canonical name or shortcut) and name.
	Get(ctx context.Context, kind, name string) (*unstructured.Unstructured, error)
	// List fetches all objects of a kind matching the label selector.
	// An empty selector matches everything.
	List(ctx context.Context, kind, selector string) ([]*unstructured.Unstructured, error)
	// DeleteCollection removes all objects of a kind matching the label
	// selector, or every object of the kind when the selector is empty.
	DeleteCollection(ctx context.Context, kind, selector string) error

	GetSecret(ctx context.Context, name string) (*corev1.Secret, error)
	UpsertSecret(ctx context.Context, secret *corev1.Secret) error
	// LinkSecret attaches a secret to a service account for pulling and
	// mounting. Existing links are left alone.
	LinkSecret(ctx context.Context, serviceAccount, secretName string) error

	GetImageTag(ctx context.Context, stream, tag string) (string, error)
	ImportImage(ctx context.Context, stream, tag, from string, scheduled bool) error
	TagImage(ctx context.Context, stream, tag, from string, scheduled bool) error

	// TriggerBuild instantiates a build from a build config and returns the
	// new build's name.
	TriggerBuild(ctx context.Context, buildConfig string) (string, error)
	// ListRoutes returns route name -> host for the namespace.
	ListRoutes(ctx context.Context) (map[string]string, error)
	// WatchEvents opens an event watch on the namespace.
	WatchEvents(ctx context.Context) (watch.Interface, error)
}

type clusterOps struct {
	client    *Client
	namespace string
}

// NewOps returns the dynamic-client implementation of Ops, scoped to the
// given namespace.
func NewOps(client *Client, namespace string) Ops {
	return &clusterOps{client: client, namespace: namespace}
}

func (o *clusterOps) Namespace() string { return o.namespace }

// resourceFor maps a GroupVersionKind onto a namespaced dynamic resource
// handle.
func (o *clusterOps) resourceFor(gvk schema.GroupVersionKind) (dynamic.ResourceInterface, error) {
	mapping, err := o.client.RESTMapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return nil, fmt.Errorf("map kind %s: %w", gvk.Kind, err)
	}
	res := o.client.Dynamic.Resource(mapping.Resource)
	if mapping.Scope.Name() == "root" {
		return res, nil
	}
	return res.Namespace(o.namespace), nil
}

// resourceForKind resolves a kind name or shortcut, preferring the pinned
// group/version when one exists.
func (o *clusterOps) resourceForKind(kind string) (dynamic.ResourceInterface, error) {
	canonical, err := CanonicalKind(kind)
	if err != nil {
		return nil, err
	}
	if gvk, ok := GVKForKind(canonical); ok {
		return o.resourceFor(gvk)
	}
	gvk, err := o.client.RESTMapper.KindFor(schema.GroupVersionResource{Resource: strings.ToLower(canonical)})
	if err != nil {
		return nil, fmt.Errorf("discover kind %q: %w", kind, err)
	}
	return o.resourceFor(gvk)
}

func (o *clusterOps) Apply(ctx context.Context, obj *unstructured.Unstructured) error {
	gvk := obj.GroupVersionKind()
	if gvk.Kind == "" {
		return fmt.Errorf("object %q has no kind", obj.GetName())
	}
	res, err := o.resourceFor(gvk)
	if err != nil {
		return err
	}

	existing, err := res.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = res.Create(ctx, obj, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("create %s %q: %w", gvk.Kind, obj.GetName(), err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("get %s %q: %w", gvk.Kind, obj.GetName(), err)
	}

	obj = obj.DeepCopy()
	obj.SetResourceVersion(existing.GetResourceVersion())
	if _, err := res.Update(ctx, obj, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update %s %q: %w", gvk.Kind, obj.GetName(), err)
	}
	return nil
}

func (o *clusterOps) Get(ctx context.Context, kind, name string) (*unstructured.Unstructured, error) {
	res, err := o.resourceForKind(kind)
	if err != nil {
		return nil, err
	}
	obj, err := res.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s %q: %w", kind, name, err)
	}
	return obj, nil
}

func (o *clusterOps) List(ctx context.Context, kind, selector string) ([]*unstructured.Unstructured, error) {
	res, err := o.resourceForKind(kind)
	if err != nil {
		return nil, err
	}
	list, err := res.List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	out := make([]*unstructured.Unstructured, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, &list.Items[i])
	}
	return out, nil
}

func (o *clusterOps) DeleteCollection(ctx context.Context, kind, selector string) error {
	res, err := o.resourceForKind(kind)
	if err != nil {
		return err
	}
	opts := metav1.ListOptions{LabelSelector: selector}
	if err := res.DeleteCollection(ctx, metav1.DeleteOptions{}, opts); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete %s collection: %w", kind, err)
	}
	return nil
}

func (o *clusterOps) TriggerBuild(ctx context.Context, buildConfig string) (string, error) {
	res, err := o.resourceFor(schema.GroupVersionKind{Group: "build.openshift.io", Version: "v1", Kind: "BuildConfig"})
	if err != nil {
		return "", err
	}
	request := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "build.openshift.io/v1",
		"kind":       "BuildRequest",
		"metadata":   map[string]any{"name": buildConfig},
	}}
	build, err := res.Create(ctx, request, metav1.CreateOptions{}, "instantiate")
	if err != nil {
		return "", fmt.Errorf("instantiate build from %q: %w", buildConfig, err)
	}
	return build.GetName(), nil
}

func (o *clusterOps) ListRoutes(ctx context.Context) (map[string]string, error) {
	routes, err := o.List(ctx, "Route", "")
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(routes))
	for _, route := range routes {
		host, _, _ := unstructured.NestedString(route.Object, "spec", "host")
		out[route.GetName()] = host
	}
	return out, nil
}

func (o *clusterOps) WatchEvents(ctx context.Context) (watch.Interface, error) {
	w, err := o.client.Clientset.CoreV1().Events(o.namespace).Watch(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("watch events in %s: %w", o.namespace, err)
	}
	return w, nil
}
