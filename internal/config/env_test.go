package config

import (
	"os"
	"path/filepath"
	"testing"
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

func TestVarsForComponentScopePrecedence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "env", "prod.yml"), `
global:
  parameters:
    A: global
    B: global
    C: global
backend:
  parameters:
    B: set
    C: set
backend/api:
  parameters:
    C: component
`)

	h, err := NewEnvHandler(root, "", []string{"prod"})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	vars, err := h.VarsForComponent(filepath.Join(root, "backend"), "backend", "api")
	if err != nil {
		t.Fatalf("vars: %v", err)
	}

	params := vars.Parameters()
	if params["A"] != "global" || params["B"] != "set" || params["C"] != "component" {
		t.Fatalf("precedence wrong: %v", params)
	}
}

func TestVarsForComponentFirstListedEnvWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "env", "prod.yml"), `
global:
  parameters:
    WHO: prod
`)
	writeFile(t, filepath.Join(root, "env", "qa.yml"), `
global:
  parameters:
    WHO: qa
    ONLY_QA: "yes"
`)

	h, err := NewEnvHandler(root, "", []string{"prod", "qa"})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	vars, err := h.VarsForComponent(filepath.Join(root, "backend"), "backend", "api")
	if err != nil {
		t.Fatalf("vars: %v", err)
	}
	params := vars.Parameters()
	if params["WHO"] != "prod" {
		t.Fatalf("WHO = %q, want first-listed env to win", params["WHO"])
	}
	if params["ONLY_QA"] != "yes" {
		t.Fatalf("keys unique to later envs must still apply: %v", params)
	}
}

func TestVarsForComponentSetLevelRefinesRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "env", "prod.yml"), `
backend:
  parameters:
    FROM_ROOT: root
    SHARED: root
`)
	setDir := filepath.Join(root, "backend")
	writeFile(t, filepath.Join(setDir, "env", "prod.yml"), `
global:
  parameters:
    SHARED: set-level
api:
  parameters:
    LOCAL: set-level
`)

	h, err := NewEnvHandler(root, "", []string{"prod"})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	vars, err := h.VarsForComponent(setDir, "backend", "api")
	if err != nil {
		t.Fatalf("vars: %v", err)
	}
	params := vars.Parameters()
	if params["SHARED"] != "set-level" {
		t.Fatalf("set-level env should beat the root-level file: %v", params)
	}
	if params["FROM_ROOT"] != "root" {
		t.Fatalf("root-level values must survive: %v", params)
	}
	if params["LOCAL"] != "set-level" {
		t.Fatalf("component scope from set-level env missing: %v", params)
	}
}

func TestVarsForComponentNoEnvsYieldsEmpty(t *testing.T) {
	root := t.TempDir()
	h, err := NewEnvHandler(root, "", nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	vars, err := h.VarsForComponent(filepath.Join(root, "x"), "x", "y")
	if err != nil {
		t.Fatalf("vars: %v", err)
	}
	if len(vars) != 0 {
		t.Fatalf("expected empty vars, got %v", vars)
	}
}

func TestBaseCfgFragmentFirstEnvWins(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "env", "prod.yml"), `
_cfg:
  post_deploy_timeout: 600
`)
	writeFile(t, filepath.Join(root, "env", "qa.yml"), `
_cfg:
  post_deploy_timeout: 30
  custom_deploy_logic: true
`)

	h, err := NewEnvHandler(root, "", []string{"prod", "qa"})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	frag, ok, err := h.BaseCfgFragment()
	if err != nil {
		t.Fatalf("fragment: %v", err)
	}
	if !ok {
		t.Fatal("expected a merged fragment")
	}
	if frag.PostDeployTimeout == nil || *frag.PostDeployTimeout != 600 {
		t.Fatalf("post_deploy_timeout = %v, want first env's 600", frag.PostDeployTimeout)
	}
	if !frag.CustomDeployLogic {
		t.Fatal("fields unique to the later env must still merge in")
	}
}

func TestEnvHandlerIgnoresUnlistedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "env", "prod.yml"), `
global:
  parameters:
    WHO: prod
`)
	writeFile(t, filepath.Join(root, "env", "stray.yml"), `
global:
  parameters:
    WHO: stray
`)

	h, err := NewEnvHandler(root, "", []string{"prod"})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	vars, err := h.VarsForComponent(filepath.Join(root, "s"), "s", "c")
	if err != nil {
		t.Fatalf("vars: %v", err)
	}
	if vars.Parameters()["WHO"] != "prod" {
		t.Fatalf("unlisted env file leaked in: %v", vars)
	}
}

func TestMergeScopeKeepsPrecedenceAndReportsErrors(t *testing.T) {
	merged := map[string]Variables{}
	if err := mergeScope(merged, "global", Variables{"parameters": map[string]any{"A": "high"}}); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	// A second write to the same key fills missing values only.
	if err := mergeScope(merged, "global", Variables{"parameters": map[string]any{"A": "low", "B": "fill"}}); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	params, ok := merged["global"]["parameters"].(map[string]any)
	if !ok {
		t.Fatalf("parameters missing: %v", merged["global"])
	}
	if params["A"] != "high" || params["B"] != "fill" {
		t.Fatalf("params = %v, want existing value kept and missing value filled", params)
	}
}
