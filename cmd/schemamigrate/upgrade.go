package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tordrt/schemamigrate"
	"github.com/tordrt/schemamigrate/internal/deployment"
	"github.com/tordrt/schemamigrate/internal/executor"
	"github.com/tordrt/schemamigrate/internal/formatter"
	"github.com/tordrt/schemamigrate/internal/mapping"
	"github.com/tordrt/schemamigrate/internal/schema"
)

func newVersionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "versions",
		Short: "List the versions a client can upgrade to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID, err := a.client()
			if err != nil {
				return err
			}
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			all, err := a.loadDeployments()
			if err != nil {
				return err
			}

			candidates, err := schemamigrate.Versions(store, clientID, all)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(candidates) == 0 {
				_, err := fmt.Fprintln(out, "You are all up to date!")
				return err
			}
			if _, err := fmt.Fprintln(out, "There are upgrades available"); err != nil {
				return err
			}
			for _, d := range candidates {
				if _, err := fmt.Fprintf(out, "  %s: %s\n", d.Version, d.Notes); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newPlanCmd(a *app) *cobra.Command {
	var to, format string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the changes an upgrade would make",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatter.New(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			u, err := a.prepareUpgrade(cmd, to)
			if err != nil {
				return err
			}
			defer a.closeEnvironment(u.env)

			plan, err := schemamigrate.Plan(cmd.Context(), u.env, u.store, u.clientID, u.target, a.logger)
			if err != nil {
				return err
			}
			return f.FormatPlan(plan)
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Target version (default: latest)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or markdown")
	return cmd
}

func newApplyCmd(a *app) *cobra.Command {
	var to, format string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Upgrade a client to a version",
		Long: `apply creates every missing field of the target version in the client's live
environment. New fields are written to the mapping file even when some changes
fail; the client's version only advances when all of them succeed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatter.New(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			u, err := a.prepareUpgrade(cmd, to)
			if err != nil {
				return err
			}
			defer a.closeEnvironment(u.env)

			registry := prometheus.NewRegistry()
			report, err := schemamigrate.Upgrade(cmd.Context(), u.env, u.store, u.clientID, u.target, &schemamigrate.UpgradeOptions{
				Timeout:     a.cfg.ActionTimeout,
				Concurrency: a.cfg.Concurrency,
				Limiter:     a.cfg.Limiter(),
				Logger:      a.logger,
				Metrics:     executor.NewMetrics(registry),
				DryRun:      dryRun,
			})
			if report == nil {
				return err
			}

			if report.Result == nil {
				return f.FormatPlan(report.Plan)
			}
			if ferr := f.FormatWarnings(report.Plan.Warnings); ferr != nil {
				return ferr
			}
			if ferr := f.FormatResult(report.Result); ferr != nil {
				return ferr
			}
			if err != nil {
				return err
			}

			if serr := a.saveStore(u.store); serr != nil {
				return serr
			}
			if path := a.cfg.MetricsTextfile; path != "" {
				if merr := prometheus.WriteToTextfile(path, registry); merr != nil {
					a.logger.Warn("failed to write metrics", "path", path, "error", merr)
				}
			}

			if !report.Advanced {
				return fmt.Errorf("%d of %d changes failed, client %s stays at its current version",
					report.Result.Failed(), len(report.Result.Outcomes), u.clientID)
			}
			a.logger.Info("client upgraded", "client", u.clientID, "version", u.target.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Target version (default: latest)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the plan without applying it")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or markdown")
	return cmd
}

// upgradeTarget bundles what plan and apply work on
type upgradeTarget struct {
	clientID string
	store    *mapping.Store
	target   *deployment.Descriptor
	env      schema.Environment
}

// prepareUpgrade loads the mapping and descriptors, selects the target
// version and opens the live environment last
func (a *app) prepareUpgrade(cmd *cobra.Command, to string) (*upgradeTarget, error) {
	clientID, err := a.client()
	if err != nil {
		return nil, err
	}
	store, err := a.loadStore()
	if err != nil {
		return nil, err
	}
	all, err := a.loadDeployments()
	if err != nil {
		return nil, err
	}
	target, err := schemamigrate.SelectTarget(store, clientID, all, to)
	if err != nil {
		return nil, err
	}
	env, err := a.openEnvironment(cmd.Context())
	if err != nil {
		return nil, err
	}
	return &upgradeTarget{clientID: clientID, store: store, target: target, env: env}, nil
}
