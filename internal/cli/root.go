// Package cli contains the cobra commands of streamctl.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/getpup/pupstream/es/eventstore"
	"github.com/getpup/pupstream/es/logging"
	"github.com/getpup/pupstream/internal/config"
	pupstream "github.com/getpup/pupstream/pkg"
)

// env wires the commands to a configured event store.
type env struct {
	cfg    config.Config
	log    *logrus.Logger
	closer func() error
	store  *eventstore.Store
	docs   *backend
}

// NewRoot constructs the streamctl root command.
func NewRoot() *cobra.Command {
	return newRoot(&env{})
}

func newRoot(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "streamctl",
		Short:         "Inspect and write event streams stored in a document database",
		Version:       pupstream.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.String("config", os.Getenv("PUPSTREAM_CONFIG"), "Path to a YAML config file")
	f.String("backend", "", "Backend: sqlite|postgres|pgx|mysql|pebble|dynamodb")
	f.String("dsn", "", "Database DSN for SQL backends")
	f.String("data-dir", "", "Pebble data directory")
	f.String("table", "", "Documents table name")
	f.String("fsync", "", "Pebble fsync mode: always|interval|never")
	f.Int("buckets", 0, "Hash streams into N partitions (0 or 1: one partition per stream)")
	f.String("partition-prefix", "", "Prefix of hashed partition keys")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json")
	f.String("dynamodb-endpoint", "", "DynamoDB endpoint override")
	f.String("dynamodb-region", "", "DynamoDB region")

	root.AddCommand(
		newMigrateCommand(e),
		newCreateCommand(e),
		newAppendCommand(e),
		newReadCommand(e),
		newSnapshotCommand(e),
	)
	return root
}

// Execute runs the root command with ctx and returns the process exit code.
// The backend is closed whether or not the command succeeds.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	e := &env{}
	root := newRoot(e)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := e.teardown(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func (e *env) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	config.FromEnv(&cfg)
	applyFlags(flags, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg

	e.log = newLogger(cfg, cmd.ErrOrStderr())
	esLogger := logging.NewLogrus(e.log.WithField("backend", cfg.Backend))

	b, err := openBackend(cmd.Context(), cfg, esLogger)
	if err != nil {
		return err
	}
	e.docs = b
	e.closer = b.close

	retry, err := cfg.Retry.EventStore()
	if err != nil {
		return err
	}
	e.store = eventstore.New(b.docs, eventstore.NewStoreConfig(
		eventstore.WithLogger(esLogger),
		eventstore.WithRouter(cfg.Partition.Router()),
		eventstore.WithRetry(retry),
	))
	return nil
}

func (e *env) teardown() error {
	if e.closer == nil {
		return nil
	}
	err := e.closer()
	e.closer = nil
	return err
}

// applyFlags overlays explicitly set flags onto cfg.
func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	str := map[string]*string{
		"backend":           &cfg.Backend,
		"dsn":               &cfg.DSN,
		"data-dir":          &cfg.DataDir,
		"table":             &cfg.Table,
		"fsync":             &cfg.Fsync,
		"partition-prefix":  &cfg.Partition.Prefix,
		"log-level":         &cfg.LogLevel,
		"log-format":        &cfg.LogFormat,
		"dynamodb-endpoint": &cfg.DynamoDB.Endpoint,
		"dynamodb-region":   &cfg.DynamoDB.Region,
	}
	for name, dst := range str {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("buckets") {
		cfg.Partition.Buckets, _ = flags.GetInt("buckets")
	}
}

func newLogger(cfg config.Config, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return logger
}
