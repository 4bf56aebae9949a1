package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tordrt/schemamigrate/internal/deployment"
	"github.com/tordrt/schemamigrate/internal/encoder"
	"github.com/tordrt/schemamigrate/internal/formatter"
	"github.com/tordrt/schemamigrate/internal/schema"
)

// readLive opens the live environment and reads its schema
func (a *app) readLive(cmd *cobra.Command) (*schema.Snapshot, error) {
	env, err := a.openEnvironment(cmd.Context())
	if err != nil {
		return nil, err
	}
	defer a.closeEnvironment(env)

	live, err := env.ReadSchema(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to read live schema: %w", err)
	}
	return live, nil
}

func newInspectCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the live schema of an environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatter.New(format, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			live, err := a.readLive(cmd)
			if err != nil {
				return err
			}
			return f.FormatSnapshot(live)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text or markdown")
	return cmd
}

func newEncodeCmd(a *app) *cobra.Command {
	var version, notes, authorName, authorEmail, output, format string

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a live environment as a deployment descriptor",
		Long: `encode reads the live schema and writes it as a deployment descriptor.
With --client, tables and fields are tied to canonical entities through that
client's mapping; without it, through the source catalog.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := encoder.ParseFormat(format)
			if err != nil {
				return err
			}
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			live, err := a.readLive(cmd)
			if err != nil {
				return err
			}

			d, err := encoder.Encode(live, store, a.cfg.Client, version, encoder.Author{Name: authorName, Email: authorEmail})
			if err != nil {
				return err
			}
			d.Notes = notes

			if output == "" {
				return encoder.WriteDescriptor(cmd.OutOrStdout(), d, f)
			}
			if err := encoder.WriteFile(output, d, f); err != nil {
				return err
			}
			a.logger.Info("descriptor written", "path", output, "version", d.Version, "tables", len(d.Tables))
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Version of the new descriptor")
	cmd.Flags().StringVar(&notes, "notes", "", "Release notes")
	cmd.Flags().StringVar(&authorName, "author-name", "", "Author name")
	cmd.Flags().StringVar(&authorEmail, "author-email", "", "Author email")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func newBootstrapCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create mapping entries from live environments",
	}
	cmd.AddCommand(newBootstrapSourceCmd(a), newBootstrapClientCmd(a))
	return cmd
}

func newBootstrapSourceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "source",
		Short: "Add the canonical environment's tables and fields to the source catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadOrCreateStore()
			if err != nil {
				return err
			}
			live, err := a.readLive(cmd)
			if err != nil {
				return err
			}

			added := store.AddSource(encoder.BootstrapSource(live))
			if err := a.saveStore(store); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added %d source entities\n", added)
			return err
		},
	}
}

func newBootstrapClientCmd(a *app) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Map a client environment to the canonical schema by name",
		Long: `client matches the live tables and fields of a client environment to a
descriptor's canonical entities by case-insensitive name and adds the result
to the mapping file. Entities without a match are listed, not mapped.`,
		Args: cobra.NoArgs,
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

			d := deployment.Latest(all)
			if from != "" {
				d = deployment.Find(all, from)
			}
			if d == nil {
				return fmt.Errorf("no deployment descriptor to bootstrap from")
			}

			live, err := a.readLive(cmd)
			if err != nil {
				return err
			}

			b := encoder.BootstrapClient(live, store, d, clientID)
			if err := store.AddClient(b.Client); err != nil {
				return err
			}
			if err := a.saveStore(store); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "Mapped %d tables for client %s at version %s\n", len(b.Client.Tables), clientID, d.Version); err != nil {
				return err
			}
			for _, name := range b.UnmatchedTables {
				if _, err := fmt.Fprintf(out, "  unmatched table: %s\n", name); err != nil {
					return err
				}
			}
			for _, name := range b.UnmatchedFields {
				if _, err := fmt.Fprintf(out, "  unmatched field: %s\n", name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Descriptor version to match against (default: latest)")
	return cmd
}
