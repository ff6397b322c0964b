// File: internal/deploy/hooks.go
// Brief: Custom deploy logic registry and resolution.

package deploy

import (
	"context"
	"sync"

	"github.com/kubekattle/setctl/internal/config"
	"github.com/kubekattle/setctl/internal/render"
)

// HookContext is what a hook gets to work with: the whole run plus the
// service set currently being deployed.
type HookContext struct {
	Run *Run
	Set *config.ServiceSet

	// Rendered accumulates the render results produced so far for this set,
	// so post-deploy hooks can see what the deploy phase created.
	Rendered []*render.Result
}

// HookFunc is one phase of a service set deploy.
type HookFunc func(ctx context.Context, hc *HookContext) error

// Hooks customizes a service set's deploy. A nil phase falls back to the
// built-in behavior: pre is a no-op, deploy runs the stage loop, post
// triggers untriggered builds and waits for them.
type Hooks struct {
	PreDeploy  HookFunc
	Deploy     HookFunc
	PostDeploy HookFunc
}

var (
	hooksMu  sync.RWMutex
	hooksReg = map[string]Hooks{}
)

// RegisterHooks installs custom deploy logic under a lookup key. Keys are
// matched most specific first: "<project>/<set>", then "<project>", then the
// legacy "deploy_<set>". Registration normally happens from init funcs in a
// hooks package linked into the binary.
func RegisterHooks(key string, h Hooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooksReg[key] = h
}

func noopHook(context.Context, *HookContext) error { return nil }

// resolveHooks picks the hooks for a set. Sets that do not opt in via
// custom_deploy_logic always get the built-ins. Each phase resolves
// independently and most specific key wins, so a custom deploy can still use
// the built-in post phase.
func resolveHooks(project string, set *config.ServiceSet) Hooks {
	out := Hooks{PreDeploy: noopHook, Deploy: defaultDeploy, PostDeploy: defaultPostDeploy}
	if !set.CustomDeployLogic {
		return out
	}

	hooksMu.RLock()
	defer hooksMu.RUnlock()
	var havePre, haveDeploy, havePost bool
	for _, key := range []string{project + "/" + set.Name, project, "deploy_" + set.Name} {
		h, ok := hooksReg[key]
		if !ok {
			continue
		}
		if !havePre && h.PreDeploy != nil {
			out.PreDeploy, havePre = h.PreDeploy, true
		}
		if !haveDeploy && h.Deploy != nil {
			out.Deploy, haveDeploy = h.Deploy, true
		}
		if !havePost && h.PostDeploy != nil {
			out.PostDeploy, havePost = h.PostDeploy, true
		}
	}
	return out
}
