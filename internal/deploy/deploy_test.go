package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	k8swatch "k8s.io/apimachinery/pkg/watch"

	"github.com/kubekattle/setctl/internal/config"
	"github.com/kubekattle/setctl/internal/importer"
	"github.com/kubekattle/setctl/internal/render"
	"github.com/kubekattle/setctl/internal/watch"
)

// fakeOps records cluster mutations in memory.
type fakeOps struct {
	mu sync.Mutex

	applies   []string // "Kind/name"
	triggered []string
	builds    map[string][]string // bc name -> existing build names

	applyErr error
}

func newDeployFakeOps() *fakeOps {
	return &fakeOps{builds: map[string][]string{}}
}

func (f *fakeOps) Namespace() string { return "test-ns" }

func (f *fakeOps) Apply(ctx context.Context, obj *unstructured.Unstructured) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applies = append(f.applies, obj.GetKind()+"/"+obj.GetName())
	return nil
}

func (f *fakeOps) Get(ctx context.Context, kind, name string) (*unstructured.Unstructured, error) {
	return nil, apierrors.NewNotFound(schema.GroupResource{Resource: kind}, name)
}

func (f *fakeOps) List(ctx context.Context, kind, selector string) ([]*unstructured.Unstructured, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for bc, names := range f.builds {
		if selector == buildConfigNameLabel+"="+bc {
			var out []*unstructured.Unstructured
			for _, name := range names {
				obj := &unstructured.Unstructured{}
				obj.SetKind("Build")
				obj.SetName(name)
				out = append(out, obj)
			}
			return out, nil
		}
	}
	return nil, nil
}

func (f *fakeOps) DeleteCollection(ctx context.Context, kind, selector string) error { return nil }

func (f *fakeOps) GetSecret(ctx context.Context, name string) (*corev1.Secret, error) {
	return nil, apierrors.NewNotFound(schema.GroupResource{Resource: "secrets"}, name)
}

func (f *fakeOps) UpsertSecret(ctx context.Context, secret *corev1.Secret) error { return nil }

func (f *fakeOps) LinkSecret(ctx context.Context, serviceAccount, secretName string) error {
	return nil
}

func (f *fakeOps) GetImageTag(ctx context.Context, stream, tag string) (string, error) {
	return "", nil
}

func (f *fakeOps) ImportImage(ctx context.Context, stream, tag, from string, scheduled bool) error {
	return nil
}

func (f *fakeOps) TagImage(ctx context.Context, stream, tag, from string, scheduled bool) error {
	return nil
}

func (f *fakeOps) TriggerBuild(ctx context.Context, buildConfig string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, buildConfig)
	return buildConfig + "-1", nil
}

func (f *fakeOps) ListRoutes(ctx context.Context) (map[string]string, error) { return nil, nil }

func (f *fakeOps) WatchEvents(ctx context.Context) (k8swatch.Interface, error) {
	return nil, fmt.Errorf("not implemented")
}

// fakeJournal records phase transitions.
type fakeJournal struct {
	mu     sync.Mutex
	phases []string
	stages []string
}

func (j *fakeJournal) SetPhase(ctx context.Context, set, phase string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.phases = append(j.phases, set+":"+phase)
}

func (j *fakeJournal) StageOutcome(ctx context.Context, set, stage string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stages = append(j.stages, set+":"+stage)
}

// readyFetcher pretends every polled object is instantly ready, and counts
// the polls.
type readyFetcher struct {
	mu    sync.Mutex
	polls []string
}

func (r *readyFetcher) fetch(ctx context.Context, kind, name string) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls = append(r.polls, kind+"/"+name)
	if kind == "Build" {
		return map[string]any{"status": map[string]any{"phase": "Complete"}}, nil
	}
	return map[string]any{
		"spec": map[string]any{"replicas": int64(1)},
		"status": map[string]any{
			"readyReplicas":   int64(1),
			"updatedReplicas": int64(1),
		},
	}, nil
}

const deployTestTemplate = `
kind: Template
apiVersion: template.openshift.io/v1
metadata:
  name: %s
parameters:
  - name: NAMESPACE
objects:
  - apiVersion: apps/v1
    kind: Deployment
    metadata:
      name: %s
`

const buildTemplate = `
kind: Template
apiVersion: template.openshift.io/v1
metadata:
  name: builder
objects:
  - apiVersion: build.openshift.io/v1
    kind: BuildConfig
    metadata:
      name: app-build
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// fixtureRun builds a resolved run over a one-set fixture: stage 0 deploys db
// (wait), stage 1 deploys api (no wait) plus a build config.
func fixtureRun(t *testing.T, ops *fakeOps, fetch watch.FetchFunc) *Run {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "_cfg.yml"), `
deploy_order:
  "0":
    components:
      - myset
`)
	writeFile(t, filepath.Join(root, "myset", "_cfg.yml"), `
post_deploy_timeout: 5
deploy_order:
  "0":
    components:
      - db
  "1":
    wait: false
    components:
      - api
      - builder
`)
	writeFile(t, filepath.Join(root, "myset", "db.yml"), fmt.Sprintf(deployTestTemplate, "db", "db"))
	writeFile(t, filepath.Join(root, "myset", "api.yml"), fmt.Sprintf(deployTestTemplate, "api", "api"))
	writeFile(t, filepath.Join(root, "myset", "builder.yml"), buildTemplate)

	tree, err := config.Resolve(config.TreeOptions{
		RootDir:     root,
		ProjectName: "test-ns",
		Selected:    []string{"myset"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	secrets, err := importer.NewSecretImporter(ops, nil, "", nil, logr.Discard())
	if err != nil {
		t.Fatalf("secret importer: %v", err)
	}
	return &Run{
		Tree:     tree,
		Ops:      ops,
		Renderer: render.TwoPhase{},
		Watcher:  &watch.Watcher{Fetch: fetch, Interval: 1, Log: logr.Discard()},
		Secrets:  secrets,
		Images:   importer.NewImageImporter(ops, nil, logr.Discard()),
		Log:      logr.Discard(),
	}
}

func TestDeployHappyPath(t *testing.T) {
	ops := newDeployFakeOps()
	fetcher := &readyFetcher{}
	run := fixtureRun(t, ops, fetcher.fetch)
	journal := &fakeJournal{}
	run.Journal = journal

	if err := Deploy(context.Background(), run); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	// Stage order: db before api/builder.
	if len(ops.applies) != 3 || ops.applies[0] != "Deployment/db" {
		t.Fatalf("applies = %v", ops.applies)
	}

	// Stage 0 waits on its deployment; stage 1 opted out of waiting.
	for _, poll := range fetcher.polls {
		if poll == "Deployment/api" {
			t.Fatalf("wait:false stage was polled: %v", fetcher.polls)
		}
	}

	// The build config had no builds, so the post phase triggers one and
	// waits for it.
	if len(ops.triggered) != 1 || ops.triggered[0] != "app-build" {
		t.Fatalf("triggered = %v", ops.triggered)
	}
	polledBuild := false
	for _, poll := range fetcher.polls {
		if poll == "Build/app-build-1" {
			polledBuild = true
		}
	}
	if !polledBuild {
		t.Fatalf("triggered build never waited on: %v", fetcher.polls)
	}

	want := []string{
		"myset:importing",
		"myset:pre-deploy",
		"myset:stages",
		"myset:post-deploy",
		"myset:done",
	}
	if len(journal.phases) != len(want) {
		t.Fatalf("phases = %v", journal.phases)
	}
	for i, phase := range want {
		if journal.phases[i] != phase {
			t.Fatalf("phase %d = %q, want %q", i, journal.phases[i], phase)
		}
	}
}

const directBuildTemplate = `
kind: Template
apiVersion: template.openshift.io/v1
metadata:
  name: migrator
objects:
  - apiVersion: build.openshift.io/v1
    kind: Build
    metadata:
      name: db-migrate
`

func TestDeployWaitsOnRenderedBuilds(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "_cfg.yml"), `
deploy_order:
  "0":
    components:
      - jobs
`)
	writeFile(t, filepath.Join(root, "jobs", "_cfg.yml"), `
post_deploy_timeout: 0
deploy_order:
  "0":
    components:
      - migrator
`)
	writeFile(t, filepath.Join(root, "jobs", "migrator.yml"), directBuildTemplate)

	tree, err := config.Resolve(config.TreeOptions{
		RootDir:     root,
		ProjectName: "test-ns",
		Selected:    []string{"jobs"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	ops := newDeployFakeOps()
	fetcher := &readyFetcher{}
	secrets, err := importer.NewSecretImporter(ops, nil, "", nil, logr.Discard())
	if err != nil {
		t.Fatalf("secret importer: %v", err)
	}
	run := &Run{
		Tree:     tree,
		Ops:      ops,
		Renderer: render.TwoPhase{},
		Watcher:  &watch.Watcher{Fetch: fetcher.fetch, Interval: 1, Log: logr.Discard()},
		Secrets:  secrets,
		Images:   importer.NewImageImporter(ops, nil, logr.Discard()),
		Log:      logr.Discard(),
	}

	if err := Deploy(context.Background(), run); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	polled := false
	for _, poll := range fetcher.polls {
		if poll == "Build/db-migrate" {
			polled = true
		}
	}
	if !polled {
		t.Fatalf("directly rendered build never waited on: %v", fetcher.polls)
	}
}

func TestDeployPostPhaseSkipsTriggeredBuilds(t *testing.T) {
	ops := newDeployFakeOps()
	ops.builds["app-build"] = []string{"app-build-7"}
	fetcher := &readyFetcher{}
	run := fixtureRun(t, ops, fetcher.fetch)

	if err := Deploy(context.Background(), run); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if len(ops.triggered) != 0 {
		t.Fatalf("build config with existing builds re-triggered: %v", ops.triggered)
	}
}

func TestDeployApplyFailureCarriesContext(t *testing.T) {
	ops := newDeployFakeOps()
	ops.applyErr = fmt.Errorf("boom")
	run := fixtureRun(t, ops, (&readyFetcher{}).fetch)

	err := Deploy(context.Background(), run)
	var applyErr *ApplyError
	if !errors.As(err, &applyErr) {
		t.Fatalf("want ApplyError, got %v", err)
	}
	if applyErr.Set != "myset" || applyErr.Stage != "0" || applyErr.Component != "db" {
		t.Fatalf("context = %+v", applyErr)
	}
}

func TestDeploySkipAndPick(t *testing.T) {
	ops := newDeployFakeOps()
	run := fixtureRun(t, ops, (&readyFetcher{}).fetch)
	run.Opts.SkipComponents = []string{"myset/builder"}

	if err := Deploy(context.Background(), run); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	for _, applied := range ops.applies {
		if applied == "BuildConfig/app-build" {
			t.Fatalf("skipped component still applied: %v", ops.applies)
		}
	}

	ops2 := newDeployFakeOps()
	run2 := fixtureRun(t, ops2, (&readyFetcher{}).fetch)
	run2.Opts.PickComponents = []string{"myset/api"}
	if err := Deploy(context.Background(), run2); err != nil {
		t.Fatalf("deploy with pick: %v", err)
	}
	if len(ops2.applies) != 1 || ops2.applies[0] != "Deployment/api" {
		t.Fatalf("pick applies = %v", ops2.applies)
	}
}

func TestDeployValidatesRequires(t *testing.T) {
	ops := newDeployFakeOps()
	run := fixtureRun(t, ops, (&readyFetcher{}).fetch)
	run.Tree.Sets[0].Requires = []string{"not-deployed"}

	err := Deploy(context.Background(), run)
	var depErr *config.DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("want DependencyError, got %v", err)
	}
	if len(ops.applies) != 0 {
		t.Fatalf("cluster touched despite validation failure: %v", ops.applies)
	}

	run.Opts.IgnoreRequires = true
	if err := Deploy(context.Background(), run); err != nil {
		t.Fatalf("ignore-requires deploy: %v", err)
	}
}
