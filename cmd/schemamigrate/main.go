package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tordrt/schemamigrate"
	"github.com/tordrt/schemamigrate/internal/config"
	"github.com/tordrt/schemamigrate/internal/deployment"
	"github.com/tordrt/schemamigrate/internal/logging"
	"github.com/tordrt/schemamigrate/internal/mapping"
	"github.com/tordrt/schemamigrate/internal/schema"
)

// app carries the state shared by every command of one invocation
type app struct {
	configFile string
	tables     string
	schemaName string

	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	stderr io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "schemamigrate",
		Short: "Upgrade client environments to versioned canonical schemas",
		Long: `schemamigrate compares a client environment with a versioned canonical schema
and creates the fields the client is missing, recording every new field in the
mapping file.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default: ./"+config.DefaultFile+" when present)")
	flags.String("database-url", "", "Live environment URL (postgres://, mysql:// or sqlite://)")
	flags.String("mapping", "mapping.json", "Mapping file")
	flags.String("deployments", "deployments", "Directory of deployment descriptors")
	flags.StringP("client", "c", "", "Client id in the mapping file")
	flags.Duration("action-timeout", 0, "Timeout for each field creation (default 30s)")
	flags.Int("concurrency", 0, "Field creations in flight at once (default 4)")
	flags.Float64("rate-limit", 0, "Field creations per second, 0 for no limit (default 5)")
	flags.String("metrics-textfile", "", "Write run metrics to this file in Prometheus text format")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("log-file", "", "Also write JSON logs to this rotating file")
	flags.StringVarP(&a.tables, "tables", "t", "", "Specific live tables (comma-separated, optional)")
	flags.StringVarP(&a.schemaName, "schema", "s", "", "Database schema name (default: public for PostgreSQL)")

	rootCmd.AddCommand(
		newVersionsCmd(a),
		newPlanCmd(a),
		newApplyCmd(a),
		newInspectCmd(a),
		newEncodeCmd(a),
		newBootstrapCmd(a),
	)
	return rootCmd
}

// setup loads the configuration and builds the logger
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}

	lc := cfg.Logging()
	lc.Output = a.stderr
	logger, closer, err := logging.New(lc)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.closer = closer
	return nil
}

func (a *app) close() {
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func (a *app) client() (string, error) {
	if a.cfg.Client == "" {
		return "", fmt.Errorf("--client is required")
	}
	return a.cfg.Client, nil
}

func (a *app) loadStore() (*mapping.Store, error) {
	store, err := mapping.LoadFile(a.cfg.Mapping)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping: %w", err)
	}
	return store, nil
}

// loadOrCreateStore starts an empty mapping when the file does not exist yet
func (a *app) loadOrCreateStore() (*mapping.Store, error) {
	if _, err := os.Stat(a.cfg.Mapping); errors.Is(err, fs.ErrNotExist) {
		a.logger.Info("starting a new mapping file", "path", a.cfg.Mapping)
		return mapping.New(&mapping.File{}), nil
	}
	return a.loadStore()
}

func (a *app) saveStore(store *mapping.Store) error {
	if err := store.SaveFile(a.cfg.Mapping); err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	a.logger.Debug("mapping saved", "path", a.cfg.Mapping)
	return nil
}

func (a *app) loadDeployments() ([]*deployment.Descriptor, error) {
	all, err := deployment.LoadDir(a.cfg.Deployments)
	if err != nil {
		return nil, fmt.Errorf("failed to load deployments: %w", err)
	}
	return all, nil
}

func (a *app) openEnvironment(ctx context.Context) (schema.Environment, error) {
	if a.cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("--database-url is required")
	}
	return schemamigrate.Open(ctx, a.cfg.DatabaseURL, &schemamigrate.Options{
		Tables:     parseTableList(a.tables),
		SchemaName: a.schemaName,
	})
}

func (a *app) closeEnvironment(env schema.Environment) {
	if err := env.Close(); err != nil {
		a.logger.Warn("failed to close live environment", "error", err)
	}
}

// parseTableList splits a comma-separated table list
func parseTableList(tables string) []string {
	if tables == "" {
		return nil
	}
	tableList := strings.Split(tables, ",")
	for i, t := range tableList {
		tableList[i] = strings.TrimSpace(t)
	}
	return tableList
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stderr: stderr}
	defer a.close()

	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		os.Exit(1)
	}
}
