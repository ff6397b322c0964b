// File: internal/kube/images.go
// Brief: Image stream tag inspection and import.

package kube

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var imageStreamGVK = schema.GroupVersionKind{Group: "image.openshift.io", Version: "v1", Kind: "ImageStream"}

// GetImageTag returns the source image URI the stream's tag currently points
// at, or "" when the stream or tag does not exist.
func (o *clusterOps) GetImageTag(ctx context.Context, stream, tag string) (string, error) {
	res, err := o.resourceFor(imageStreamGVK)
	if err != nil {
		return "", err
	}
	is, err := res.Get(ctx, stream, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get image stream %q: %w", stream, err)
	}

	tags, _, _ := unstructured.NestedSlice(is.Object, "spec", "tags")
	for _, t := range tags {
		entry, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if name, _, _ := unstructured.NestedString(entry, "name"); name != tag {
			continue
		}
		from, _, _ := unstructured.NestedString(entry, "from", "name")
		return from, nil
	}
	return "", nil
}

// ImportImage ensures the stream exists and its tag tracks the given source
// image.
func (o *clusterOps) ImportImage(ctx context.Context, stream, tag, from string, scheduled bool) error {
	return o.upsertStreamTag(ctx, stream, tag, from, scheduled)
}

// TagImage repoints an existing tag at a new source image. It shares the
// upsert path with ImportImage; the split exists so callers can log the two
// situations differently.
func (o *clusterOps) TagImage(ctx context.Context, stream, tag, from string, scheduled bool) error {
	return o.upsertStreamTag(ctx, stream, tag, from, scheduled)
}

func (o *clusterOps) upsertStreamTag(ctx context.Context, stream, tag, from string, scheduled bool) error {
	res, err := o.resourceFor(imageStreamGVK)
	if err != nil {
		return err
	}

	tagSpec := map[string]any{
		"name":            tag,
		"from":            map[string]any{"kind": "DockerImage", "name": from},
		"importPolicy":    map[string]any{"scheduled": scheduled},
		"referencePolicy": map[string]any{"type": "Source"},
	}

	is, err := res.Get(ctx, stream, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		is = &unstructured.Unstructured{Object: map[string]any{
			"apiVersion": "image.openshift.io/v1",
			"kind":       "ImageStream",
			"metadata":   map[string]any{"name": stream, "namespace": o.namespace},
			"spec":       map[string]any{"tags": []any{tagSpec}},
		}}
		if _, err := res.Create(ctx, is, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("create image stream %q: %w", stream, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("get image stream %q: %w", stream, err)
	}

	tags, _, _ := unstructured.NestedSlice(is.Object, "spec", "tags")
	replaced := false
	for i, t := range tags {
		entry, ok := t.(map[string]any)
		if !ok {
			continue
		}
		if name, _, _ := unstructured.NestedString(entry, "name"); name == tag {
			tags[i] = tagSpec
			replaced = true
			break
		}
	}
	if !replaced {
		tags = append(tags, tagSpec)
	}
	if err := unstructured.SetNestedSlice(is.Object, tags, "spec", "tags"); err != nil {
		return fmt.Errorf("set tags on image stream %q: %w", stream, err)
	}
	if _, err := res.Update(ctx, is, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update image stream %q: %w", stream, err)
	}
	return nil
}
