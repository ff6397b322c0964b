// main.go bootstraps setctl: root Cobra command, env/config binding through
// viper, and signal-aware execution.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

// globalOptions are the persistent flags every subcommand shares.
type globalOptions struct {
	kubeconfig  string
	kubeContext string
	logLevel    string
	templateDir string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{logLevel: "info", templateDir: "templates"}
	cmd := &cobra.Command{
		Use:   "setctl",
		Short: "Multi-stage service set deployments for cluster namespaces",
		Long: `setctl deploys groups of templated services ("service sets") into a
cluster namespace in dependency-validated stages, importing the secrets and
images they need and waiting for each stage to go ready before the next.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.kubeconfig, "kubeconfig", "k", "", "Path to the kubeconfig file to use for CLI requests")
	cmd.PersistentFlags().StringVarP(&opts.kubeContext, "context", "K", "", "Name of the kubeconfig context to use")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", opts.logLevel, "Log level for setctl output (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&opts.templateDir, "template-dir", "t", opts.templateDir, "Directory holding the service set templates")

	deployCmd := newDeployCommand(opts)
	processCmd := newProcessCommand(opts)
	wipeCmd := newWipeCommand(opts)
	listSetsCmd := newListSetsCommand(opts)
	listRoutesCmd := newListRoutesCommand(opts)
	runsCmd := newRunsCommand(opts)
	cmd.AddCommand(deployCmd, processCmd, wipeCmd, listSetsCmd, listRoutesCmd, runsCmd)

	bindViper(cmd, deployCmd, processCmd, wipeCmd, listSetsCmd, listRoutesCmd, runsCmd)
	return cmd
}

// bindViper lets SETCTL_* environment variables and an optional config file
// back any flag the user did not set explicitly.
func bindViper(commands ...*cobra.Command) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("SETCTL")
	v.AutomaticEnv()
	if configFile := os.Getenv("SETCTL_CONFIG"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("setctl")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/setctl")
	}

	cobra.OnInitialize(func() {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				cobra.CheckErr(err)
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				cobra.CheckErr(err)
			}
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				cobra.CheckErr(err)
			}
		}
		for _, cmd := range commands {
			for _, fs := range []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()} {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed || !v.IsSet(f.Name) {
						return
					}
					if val := fmt.Sprintf("%v", v.Get(f.Name)); val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
	})
}

func handleError(err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = fmt.Sprintf("%s\nHint: raise the stage timeout in _cfg.yml or check that the namespace has capacity.", err)
	case apierrors.IsUnauthorized(err):
		message = fmt.Sprintf("%s\nHint: kubeconfig credentials were rejected. Run 'kubectl config view' to confirm the active user.", err)
	case apierrors.IsForbidden(err):
		message = fmt.Sprintf("%s\nHint: missing permissions in the target namespace.", err)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", message)
}
