package deploy

import (
	"context"
	"testing"

	"github.com/kubekattle/setctl/internal/config"
)

func markerHook(calls *[]string, name string) HookFunc {
	return func(ctx context.Context, hc *HookContext) error {
		*calls = append(*calls, name)
		return nil
	}
}

func TestResolveHooksRequiresOptIn(t *testing.T) {
	var calls []string
	RegisterHooks("proj-a/opted-out", Hooks{PreDeploy: markerHook(&calls, "set")})

	set := &config.ServiceSet{Name: "opted-out"}
	hooks := resolveHooks("proj-a", set)
	if err := hooks.PreDeploy(context.Background(), &HookContext{Set: set}); err != nil {
		t.Fatalf("pre: %v", err)
	}
	if len(calls) != 0 {
		t.Fatal("custom hook ran without custom_deploy_logic")
	}
}

func TestResolveHooksMostSpecificWins(t *testing.T) {
	var calls []string
	RegisterHooks("proj-b/svc", Hooks{PreDeploy: markerHook(&calls, "set-scoped")})
	RegisterHooks("proj-b", Hooks{
		PreDeploy:  markerHook(&calls, "project-scoped"),
		PostDeploy: markerHook(&calls, "project-post"),
	})
	RegisterHooks("deploy_svc", Hooks{PreDeploy: markerHook(&calls, "legacy")})

	set := &config.ServiceSet{Name: "svc", CustomDeployLogic: true}
	hooks := resolveHooks("proj-b", set)

	hc := &HookContext{Set: set}
	if err := hooks.PreDeploy(context.Background(), hc); err != nil {
		t.Fatalf("pre: %v", err)
	}
	if len(calls) != 1 || calls[0] != "set-scoped" {
		t.Fatalf("calls = %v, want the set-scoped hook only", calls)
	}

	// Phases resolve independently: post falls through to the project hook.
	calls = nil
	if err := hooks.PostDeploy(context.Background(), hc); err != nil {
		t.Fatalf("post: %v", err)
	}
	if len(calls) != 1 || calls[0] != "project-post" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestResolveHooksLegacyNameFallback(t *testing.T) {
	var calls []string
	RegisterHooks("deploy_legacy-set", Hooks{PreDeploy: markerHook(&calls, "legacy")})

	set := &config.ServiceSet{Name: "legacy-set", CustomDeployLogic: true}
	hooks := resolveHooks("proj-c", set)
	if err := hooks.PreDeploy(context.Background(), &HookContext{Set: set}); err != nil {
		t.Fatalf("pre: %v", err)
	}
	if len(calls) != 1 || calls[0] != "legacy" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestComponentSelected(t *testing.T) {
	run := &Run{}
	if !run.componentSelected("s", "c") {
		t.Fatal("default selection should include everything")
	}

	run.Opts.SkipComponents = []string{"s/c"}
	if run.componentSelected("s", "c") {
		t.Fatal("skip ignored")
	}

	run = &Run{}
	run.Opts.PickComponents = []string{"s/other"}
	if run.componentSelected("s", "c") {
		t.Fatal("pick should exclude everything not listed")
	}
	if !run.componentSelected("s", "other") {
		t.Fatal("picked component excluded")
	}

	// Skip applies on top of pick.
	run.Opts.SkipComponents = []string{"s/other"}
	if run.componentSelected("s", "other") {
		t.Fatal("skip must win over pick")
	}
}
