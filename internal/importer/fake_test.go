package importer

import (
	"context"
	"fmt"
	"sync"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
)

// fakeOps is an in-memory stand-in for the cluster surface.
type fakeOps struct {
	mu sync.Mutex

	namespace string
	secrets   map[string]*corev1.Secret
	istags    map[string]string // "stream:tag" -> from

	links         []string // "sa->secret"
	upserts       []string
	imports       []string
	retags        []string
	secretFetches int
}

func newFakeOps(ns string) *fakeOps {
	return &fakeOps{
		namespace: ns,
		secrets:   map[string]*corev1.Secret{},
		istags:    map[string]string{},
	}
}

func (f *fakeOps) Namespace() string { return f.namespace }

func (f *fakeOps) Apply(ctx context.Context, obj *unstructured.Unstructured) error { return nil }

func (f *fakeOps) Get(ctx context.Context, kind, name string) (*unstructured.Unstructured, error) {
	return nil, apierrors.NewNotFound(schema.GroupResource{Resource: kind}, name)
}

func (f *fakeOps) List(ctx context.Context, kind, selector string) ([]*unstructured.Unstructured, error) {
	return nil, nil
}

func (f *fakeOps) DeleteCollection(ctx context.Context, kind, selector string) error { return nil }

func (f *fakeOps) GetSecret(ctx context.Context, name string) (*corev1.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secretFetches++
	secret, ok := f.secrets[name]
	if !ok {
		return nil, apierrors.NewNotFound(schema.GroupResource{Resource: "secrets"}, name)
	}
	return secret.DeepCopy(), nil
}

func (f *fakeOps) UpsertSecret(ctx context.Context, secret *corev1.Secret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.secrets[secret.Name] = secret.DeepCopy()
	f.upserts = append(f.upserts, secret.Name)
	return nil
}

func (f *fakeOps) LinkSecret(ctx context.Context, serviceAccount, secretName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, serviceAccount+"->"+secretName)
	return nil
}

func (f *fakeOps) GetImageTag(ctx context.Context, stream, tag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.istags[stream+":"+tag], nil
}

func (f *fakeOps) ImportImage(ctx context.Context, stream, tag, from string, scheduled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stream + ":" + tag
	f.istags[key] = from
	f.imports = append(f.imports, key)
	return nil
}

func (f *fakeOps) TagImage(ctx context.Context, stream, tag, from string, scheduled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stream + ":" + tag
	f.istags[key] = from
	f.retags = append(f.retags, key)
	return nil
}

func (f *fakeOps) TriggerBuild(ctx context.Context, buildConfig string) (string, error) {
	return buildConfig + "-1", nil
}

func (f *fakeOps) ListRoutes(ctx context.Context) (map[string]string, error) { return nil, nil }

func (f *fakeOps) WatchEvents(ctx context.Context) (watch.Interface, error) {
	return nil, fmt.Errorf("not implemented")
}
