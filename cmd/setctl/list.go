// list.go implements `setctl list-sets` and `setctl list-routes`.
package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kubekattle/setctl/internal/config"
	"github.com/kubekattle/setctl/internal/kube"
)

func newListSetsCommand(gopts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-sets",
		Short: "List the service sets the template directory declares",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := config.LoadDeployConfig(gopts.templateDir)
			if err != nil {
				return err
			}
			names := config.ListServiceSets(base)
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no service sets declared")
				return nil
			}
			bold := color.New(color.Bold)
			for _, name := range names {
				cfg, err := config.LoadDeployConfig(filepath.Join(gopts.templateDir, name))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), bold.Sprint(name))
				if len(cfg.Requires) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "  requires: %s\n", strings.Join(cfg.Requires, ", "))
				}
				for _, stage := range config.ResolveStages(cfg.DeployOrder, nil) {
					comps := make([]string, len(stage.Components))
					for i, c := range stage.Components {
						comps[i] = c.Name
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  stage %s: %s\n", stage.Name, strings.Join(comps, ", "))
				}
			}
			return nil
		},
	}
}

func newListRoutesCommand(gopts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list-routes NAMESPACE",
		Short: "List route hosts in a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient(gopts)
			if err != nil {
				return err
			}
			ops := kube.NewOps(client, args[0])
			routes, err := ops.ListRoutes(cmd.Context())
			if err != nil {
				return err
			}
			if len(routes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no routes found")
				return nil
			}
			for _, name := range sortedKeys(routes) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, routes[name])
			}
			return nil
		},
	}
}
