// deploy.go implements `setctl deploy`, the multi-stage service set rollout.
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kubekattle/setctl/internal/deploy"
	"github.com/kubekattle/setctl/internal/events"
	"github.com/kubekattle/setctl/internal/importer"
	"github.com/kubekattle/setctl/internal/kube"
	"github.com/kubekattle/setctl/internal/logging"
	"github.com/kubekattle/setctl/internal/render"
	"github.com/kubekattle/setctl/internal/runlog"
	"github.com/kubekattle/setctl/internal/watch"
)

type deployOptions struct {
	sets            []string
	all             bool
	envs            []string
	setParams       []string
	secretsLocalDir string
	secretsSrc      string
	scaleResources  float64
	label           string
	skip            []string
	pick            []string
	ignoreRequires  bool
	continueOnError bool
	noConfirm       bool
	watchEvents     bool
	noJournal       bool
}

func newDeployCommand(gopts *globalOptions) *cobra.Command {
	opts := &deployOptions{scaleResources: 1.0, secretsLocalDir: "secrets"}
	cmd := &cobra.Command{
		Use:   "deploy NAMESPACE",
		Short: "Deploy service sets into a namespace",
		Long: `Deploy renders and applies the selected service sets into the target
namespace, stage by stage. Secrets and images each set declares are imported
first; stages that ask for it block until their workloads go ready.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, args[0], gopts, opts)
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVarP(&opts.sets, "sets", "s", nil, "Comma-separated service sets to deploy")
	fl.BoolVar(&opts.all, "all", false, "Deploy every service set the base config declares")
	fl.StringSliceVarP(&opts.envs, "env", "e", nil, "Environment names to apply, first listed wins")
	fl.StringArrayVar(&opts.setParams, "set", nil, "Global parameter overrides (NAME=value, repeatable)")
	fl.StringVar(&opts.secretsLocalDir, "secrets-local-dir", opts.secretsLocalDir, "Directory with local secret manifests")
	fl.StringVar(&opts.secretsSrc, "secrets-src-project", "", "Namespace to copy missing secrets from")
	fl.Float64Var(&opts.scaleResources, "scale-resources", opts.scaleResources, "Multiply cpu/memory requests and limits by this factor (<=0 strips them)")
	fl.StringVarP(&opts.label, "label", "l", "", "Label to apply to every deployed object (key=value)")
	fl.StringSliceVar(&opts.skip, "skip", nil, "Components to skip, as set/component")
	fl.StringSliceVar(&opts.pick, "pick", nil, "Deploy only these components, as set/component")
	fl.BoolVar(&opts.ignoreRequires, "ignore-requires", false, "Skip dependency-order validation of 'requires'")
	fl.BoolVar(&opts.continueOnError, "continue-on-error", false, "Keep deploying later sets after one fails")
	fl.BoolVar(&opts.noConfirm, "no-confirm", false, "Do not ask for confirmation (also disables {prompt} parameters)")
	fl.BoolVarP(&opts.watchEvents, "watch", "w", false, "Stream namespace events while deploying")
	fl.BoolVar(&opts.noJournal, "no-journal", false, "Do not record this run in the local journal")
	return cmd
}

func runDeploy(cmd *cobra.Command, namespace string, gopts *globalOptions, opts *deployOptions) error {
	ctx := cmd.Context()
	log, err := logging.New(gopts.logLevel)
	if err != nil {
		return err
	}

	sets := opts.sets
	if opts.all {
		if len(sets) > 0 {
			return fmt.Errorf("--all and --sets are mutually exclusive")
		}
		sets, err = allSetNames(gopts)
		if err != nil {
			return err
		}
	}
	if len(sets) == 0 {
		return fmt.Errorf("nothing to deploy: pass --sets or --all")
	}

	client, err := buildClient(gopts)
	if err != nil {
		return err
	}
	ok, err := confirmProceed(fmt.Sprintf("Deploy sets [%s] to namespace %q on %s?",
		strings.Join(sets, ", "), namespace, client.Host), opts.noConfirm)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted")
	}

	tree, err := resolveTree(gopts, namespace, opts.secretsSrc, opts.envs, sets, opts.setParams, promptFunc(opts.noConfirm))
	if err != nil {
		return err
	}

	ops := kube.NewOps(client, namespace)
	var sourceOps kube.Ops
	if opts.secretsSrc != "" {
		sourceOps = kube.NewOps(client, opts.secretsSrc)
	}
	secrets, err := importer.NewSecretImporter(ops, sourceOps, opts.secretsLocalDir, opts.envs, log)
	if err != nil {
		return err
	}
	images := importer.NewImageImporter(ops, opts.envs, log)

	run := &deploy.Run{
		Tree:     tree,
		Ops:      ops,
		Renderer: render.TwoPhase{},
		Watcher:  &watch.Watcher{Fetch: watch.OpsFetcher(ops), Log: log},
		Secrets:  secrets,
		Images:   images,
		Log:      log,
		Opts: deploy.Options{
			SkipComponents:  opts.skip,
			PickComponents:  opts.pick,
			ScaleFactor:     normalizeScaleFactor(opts.scaleResources),
			Label:           opts.label,
			IgnoreRequires:  opts.ignoreRequires,
			ContinueOnError: opts.continueOnError,
		},
	}

	var journal *runlog.Journal
	if !opts.noJournal {
		j, jerr := runlog.Open("")
		if jerr != nil {
			log.Error(jerr, "journal unavailable, continuing without it")
		} else if _, jerr = j.StartRun(ctx, namespace, sets); jerr != nil {
			log.Error(jerr, "journal unavailable, continuing without it")
			_ = j.Close()
		} else {
			journal = j
			run.Journal = journal
			defer journal.Close()
		}
	}

	if opts.watchEvents {
		streamer := &events.Streamer{Ops: ops, Out: cmd.OutOrStdout(), Since: time.Now()}
		go func() {
			if serr := streamer.Run(ctx); serr != nil && ctx.Err() == nil {
				log.Error(serr, "event stream stopped")
			}
		}()
	}

	deployErr := deploy.Deploy(ctx, run)
	if journal != nil {
		journal.FinishRun(ctx, deployErr)
	}
	return deployErr
}
