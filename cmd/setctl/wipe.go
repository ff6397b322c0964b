// wipe.go implements `setctl wipe`: bulk deletion of deployed objects.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kubekattle/setctl/internal/kube"
	"github.com/kubekattle/setctl/internal/logging"
)

// wipeKinds is everything a deploy can create, in an order that tears
// dependents down before their sources.
var wipeKinds = []string{
	"Build",
	"BuildConfig",
	"Deployment",
	"DeploymentConfig",
	"StatefulSet",
	"DaemonSet",
	"Service",
	"Route",
	"ConfigMap",
	"ImageStream",
}

type wipeOptions struct {
	label          string
	all            bool
	includeSecrets bool
	includePVCs    bool
	noConfirm      bool
}

func newWipeCommand(gopts *globalOptions) *cobra.Command {
	opts := &wipeOptions{}
	cmd := &cobra.Command{
		Use:   "wipe NAMESPACE",
		Short: "Delete deployed objects from a namespace",
		Long: `Wipe deletes the objects a deploy created, selected by label or
wholesale with --all. Secrets and volume claims survive unless asked for
explicitly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWipe(cmd, args[0], gopts, opts)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&opts.label, "label", "l", "", "Only delete objects carrying this label (key=value)")
	fl.BoolVar(&opts.all, "all", false, "Delete every object of the managed kinds")
	fl.BoolVar(&opts.includeSecrets, "include-secrets", false, "Also delete secrets")
	fl.BoolVar(&opts.includePVCs, "include-pvcs", false, "Also delete persistent volume claims")
	fl.BoolVar(&opts.noConfirm, "no-confirm", false, "Do not ask for confirmation")
	return cmd
}

func runWipe(cmd *cobra.Command, namespace string, gopts *globalOptions, opts *wipeOptions) error {
	if opts.label == "" && !opts.all {
		return fmt.Errorf("refusing to wipe without --label or --all")
	}
	log, err := logging.New(gopts.logLevel)
	if err != nil {
		return err
	}
	client, err := buildClient(gopts)
	if err != nil {
		return err
	}

	scope := "objects labeled " + opts.label
	if opts.all {
		scope = "ALL managed objects"
	}
	ok, err := confirmProceed(fmt.Sprintf("Delete %s in namespace %q on %s?", scope, namespace, client.Host), opts.noConfirm)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted")
	}

	kinds := wipeKinds
	if opts.includeSecrets {
		kinds = append(kinds, "Secret")
	}
	if opts.includePVCs {
		kinds = append(kinds, "PersistentVolumeClaim")
	}

	ops := kube.NewOps(client, namespace)
	for _, kind := range kinds {
		log.Info("deleting", "kind", kind, "selector", opts.label)
		if err := ops.DeleteCollection(cmd.Context(), kind, opts.label); err != nil {
			return err
		}
	}
	return nil
}
