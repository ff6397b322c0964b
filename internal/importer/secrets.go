// File: internal/importer/secrets.go
// Brief: Secret reconciliation from a local directory or a source namespace.

package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/kubekattle/setctl/internal/config"
	"github.com/kubekattle/setctl/internal/kube"
)

// SecretImporter reconciles requested secrets into the target namespace.
// Local secret files win over the source namespace; a run-scoped registry
// makes repeat requests no-ops.
type SecretImporter struct {
	// Target is the namespace being deployed into.
	Target kube.Ops
	// Source fetches secrets that are not provided locally. Nil disables
	// source-namespace lookup.
	Source kube.Ops
	// LocalDir holds secret manifests. "" disables local lookup.
	LocalDir string
	// Envs are the active environment names, used to honor per-secret env
	// gating.
	Envs []string

	Log logr.Logger

	reg   *registry
	local map[string]*corev1.Secret
}

// NewSecretImporter builds an importer and eagerly parses the local secret
// directory so malformed files fail the run before anything touches the
// cluster.
func NewSecretImporter(target, source kube.Ops, localDir string, envs []string, log logr.Logger) (*SecretImporter, error) {
	imp := &SecretImporter{
		Target:   target,
		Source:   source,
		LocalDir: localDir,
		Envs:     envs,
		Log:      log,
		reg:      newRegistry(),
	}
	local, err := loadLocalSecrets(localDir)
	if err != nil {
		return nil, err
	}
	imp.local = local
	return imp, nil
}

// Import reconciles every secret the set declares. Env-gated entries outside
// the active environments are skipped. The first error stops the set.
func (imp *SecretImporter) Import(ctx context.Context, secrets []config.Secret) error {
	for _, secret := range secrets {
		if !envSelected(secret.Envs, imp.Envs) {
			imp.Log.V(1).Info("skipping secret outside active envs", "secret", secret.Name, "envs", secret.Envs)
			continue
		}
		if imp.reg.claimSecret(secret.Name) {
			if err := imp.reconcile(ctx, secret.Name); err != nil {
				return &SecretError{Name: secret.Name, Err: err}
			}
		}
		// Links are additive and idempotent, so they run on every request;
		// two sets may link the same secret to different accounts.
		for _, sa := range secret.Link {
			if err := imp.Target.LinkSecret(ctx, sa, secret.Name); err != nil {
				return &SecretError{Name: secret.Name, Err: err}
			}
		}
	}
	return nil
}

func (imp *SecretImporter) reconcile(ctx context.Context, name string) error {
	desired, err := imp.fetch(ctx, name)
	if err != nil {
		return err
	}

	existing, err := imp.Target.GetSecret(ctx, name)
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	if apierrors.IsNotFound(err) {
		existing = nil
	}
	if existing != nil && existing.Type == desired.Type && reflect.DeepEqual(existing.Data, desired.Data) {
		imp.Log.V(1).Info("secret up to date", "secret", name)
		return nil
	}

	imp.Log.Info("importing secret", "secret", name)
	return imp.Target.UpsertSecret(ctx, desired)
}

// fetch locates the desired secret, preferring the local directory.
func (imp *SecretImporter) fetch(ctx context.Context, name string) (*corev1.Secret, error) {
	if secret, ok := imp.local[name]; ok {
		return secret, nil
	}
	if imp.Source == nil {
		return nil, fmt.Errorf("secret not found locally and no source namespace configured")
	}
	secret, err := imp.Source.GetSecret(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetch from source namespace: %w", err)
	}
	return sanitizeSecret(secret), nil
}

// loadLocalSecrets parses every manifest in dir. Files may hold a single
// Secret or a v1 List of them. The same secret name in two files is an error.
func loadLocalSecrets(dir string) (map[string]*corev1.Secret, error) {
	out := map[string]*corev1.Secret{}
	if dir == "" {
		return out, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets dir %s: %w", dir, err)
	}

	owner := map[string]string{}
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		secrets, err := parseSecretFile(path)
		if err != nil {
			return nil, err
		}
		for _, secret := range secrets {
			if prev, ok := owner[secret.Name]; ok {
				return nil, fmt.Errorf("secret %q defined in both %s and %s", secret.Name, prev, path)
			}
			owner[secret.Name] = path
			out[secret.Name] = secret
		}
	}
	return out, nil
}

func parseSecretFile(path string) ([]*corev1.Secret, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var probe struct {
		Kind string `json:"kind"`
	}
	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var secrets []*corev1.Secret
	switch {
	case strings.EqualFold(probe.Kind, "Secret"):
		var secret corev1.Secret
		if err := yaml.Unmarshal(raw, &secret); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		secrets = append(secrets, &secret)
	case strings.EqualFold(probe.Kind, "List"):
		var list struct {
			Items []corev1.Secret `json:"items"`
		}
		if err := yaml.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for i := range list.Items {
			if !strings.EqualFold(list.Items[i].Kind, "Secret") {
				continue
			}
			secrets = append(secrets, &list.Items[i])
		}
	default:
		return nil, fmt.Errorf("%s: expected kind Secret or List, got %q", path, probe.Kind)
	}

	for i, secret := range secrets {
		if secret.Name == "" {
			return nil, fmt.Errorf("%s: secret %d has no name", path, i)
		}
		secrets[i] = sanitizeSecret(secret)
	}
	return secrets, nil
}

// sanitizeSecret strips cluster-assigned metadata so the secret can be
// re-created in another namespace.
func sanitizeSecret(in *corev1.Secret) *corev1.Secret {
	return &corev1.Secret{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Secret"},
		ObjectMeta: metav1.ObjectMeta{
			Name:   in.Name,
			Labels: in.Labels,
		},
		Type:       in.Type,
		Data:       in.Data,
		StringData: in.StringData,
	}
}

// envSelected reports whether an env-gated item applies. An empty gate list
// always applies.
func envSelected(gate, active []string) bool {
	if len(gate) == 0 {
		return true
	}
	for _, g := range gate {
		for _, a := range active {
			if g == a {
				return true
			}
		}
	}
	return false
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml" || ext == ".json"
}

// SortedNames is a debugging aid listing the locally provided secrets.
func (imp *SecretImporter) SortedNames() []string {
	names := make([]string, 0, len(imp.local))
	for name := range imp.local {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
