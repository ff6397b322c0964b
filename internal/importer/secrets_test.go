package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/kubekattle/setctl/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const dbSecret = `
apiVersion: v1
kind: Secret
metadata:
  name: db-credentials
  namespace: somewhere-else
  resourceVersion: "12345"
type: Opaque
data:
  password: aHVudGVyMg==
`

func TestSecretImportFromLocalDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db.yml"), dbSecret)

	target := newFakeOps("app-ns")
	imp, err := NewSecretImporter(target, nil, dir, nil, logr.Discard())
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}
	if err := imp.Import(context.Background(), []config.Secret{{Name: "db-credentials", Link: []string{"builder"}}}); err != nil {
		t.Fatalf("import: %v", err)
	}

	stored, ok := target.secrets["db-credentials"]
	if !ok {
		t.Fatal("secret not written to target")
	}
	if stored.Namespace != "" || stored.ResourceVersion != "" {
		t.Fatalf("cluster metadata must be stripped: %+v", stored.ObjectMeta)
	}
	if len(target.links) != 1 || target.links[0] != "builder->db-credentials" {
		t.Fatalf("links = %v", target.links)
	}
}

func TestSecretImportDedupsAcrossSets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db.yml"), dbSecret)

	target := newFakeOps("app-ns")
	imp, err := NewSecretImporter(target, nil, dir, nil, logr.Discard())
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}

	// Two service sets request the same secret.
	for i := 0; i < 2; i++ {
		if err := imp.Import(context.Background(), []config.Secret{{Name: "db-credentials"}}); err != nil {
			t.Fatalf("import %d: %v", i, err)
		}
	}
	if len(target.upserts) != 1 {
		t.Fatalf("secret reconciled %d times, want once per run", len(target.upserts))
	}
}

func TestSecretImportIdenticalDataIsNoOp(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db.yml"), dbSecret)

	target := newFakeOps("app-ns")
	seed, err := parseSecretFile(filepath.Join(dir, "db.yml"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	target.secrets["db-credentials"] = seed[0]

	imp, err := NewSecretImporter(target, nil, dir, nil, logr.Discard())
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}
	if err := imp.Import(context.Background(), []config.Secret{{Name: "db-credentials"}}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(target.upserts) != 0 {
		t.Fatalf("identical secret rewritten: %v", target.upserts)
	}
}

func TestSecretImportFromSourceNamespace(t *testing.T) {
	target := newFakeOps("app-ns")
	source := newFakeOps("secret-source")
	seed := sanitizeSecret(mustSecret(t, "shared-token", map[string][]byte{"token": []byte("abc")}))
	source.secrets["shared-token"] = seed

	imp, err := NewSecretImporter(target, source, "", nil, logr.Discard())
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}
	if err := imp.Import(context.Background(), []config.Secret{{Name: "shared-token"}}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, ok := target.secrets["shared-token"]; !ok {
		t.Fatal("secret not copied from source namespace")
	}
}

func TestSecretImportMissingEverywhere(t *testing.T) {
	target := newFakeOps("app-ns")
	imp, err := NewSecretImporter(target, nil, "", nil, logr.Discard())
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}
	err = imp.Import(context.Background(), []config.Secret{{Name: "ghost"}})
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("want SecretError, got %v", err)
	}
	if secretErr.Name != "ghost" {
		t.Fatalf("error names %q", secretErr.Name)
	}
}

func TestSecretImportEnvGating(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "db.yml"), dbSecret)

	target := newFakeOps("app-ns")
	imp, err := NewSecretImporter(target, nil, dir, []string{"qa"}, logr.Discard())
	if err != nil {
		t.Fatalf("new importer: %v", err)
	}
	secrets := []config.Secret{{Name: "db-credentials", Envs: []string{"prod"}}}
	if err := imp.Import(context.Background(), secrets); err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(target.upserts) != 0 {
		t.Fatalf("env-gated secret imported outside its envs: %v", target.upserts)
	}
}

func TestLoadLocalSecretsRejectsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.yml"), dbSecret)
	writeFile(t, filepath.Join(dir, "two.yml"), dbSecret)

	if _, err := loadLocalSecrets(dir); err == nil {
		t.Fatal("duplicate secret definitions accepted")
	}
}

func TestParseSecretFileListForm(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bundle.yml"), `
apiVersion: v1
kind: List
items:
  - apiVersion: v1
    kind: Secret
    metadata:
      name: first
  - apiVersion: v1
    kind: Secret
    metadata:
      name: second
`)
	secrets, err := parseSecretFile(filepath.Join(dir, "bundle.yml"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(secrets) != 2 || secrets[0].Name != "first" || secrets[1].Name != "second" {
		t.Fatalf("parsed %+v", secrets)
	}
}

func mustSecret(t *testing.T, name string, data map[string][]byte) *corev1.Secret {
	t.Helper()
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Type:       corev1.SecretTypeOpaque,
		Data:       data,
	}
}
