package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Bacorsx/EcoEnergy-IC/internal/alerts"
	"github.com/Bacorsx/EcoEnergy-IC/internal/api"
	"github.com/Bacorsx/EcoEnergy-IC/internal/config"
	"github.com/Bacorsx/EcoEnergy-IC/internal/crypto"
	"github.com/Bacorsx/EcoEnergy-IC/internal/historian"
	"github.com/Bacorsx/EcoEnergy-IC/internal/ingest"
	"github.com/Bacorsx/EcoEnergy-IC/internal/logger"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

type options struct {
	configFile  string
	historianID string
	conn        historian.Config
	query       historian.Query
	productID   string
	since       string
	evaluate    bool
	dryRun      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := command().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func command() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Import measurement history from an external historian",
		Long: `Reads readings from a MySQL, PostgreSQL or SQL Server historian and
records them as measurements for one product. Use --historian to reuse a
registered connection or the connection flags to describe one inline.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	setupFlags(cmd, opts)
	return cmd
}

func setupFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	f.StringVar(&opts.historianID, "historian", "", "Registered historian id")
	f.StringVar(&opts.conn.Type, "type", "", "Historian type: mysql, postgres, mssql")
	f.StringVar(&opts.conn.Host, "host", "", "Historian host")
	f.IntVar(&opts.conn.Port, "port", 0, "Historian port")
	f.StringVar(&opts.conn.User, "user", "", "Historian user")
	f.StringVar(&opts.conn.Password, "password", "", "Historian password")
	f.StringVar(&opts.conn.Database, "database", "", "Historian database")
	f.StringVar(&opts.conn.SSLMode, "ssl-mode", "", "SSL mode for postgres historians")
	f.StringVar(&opts.query.Table, "table", "", "Source table, optionally schema-qualified")
	f.StringVar(&opts.query.ValueColumn, "value-column", "value", "Column holding the reading")
	f.StringVar(&opts.query.UnitColumn, "unit-column", "", "Column holding the unit")
	f.StringVar(&opts.query.TimestampColumn, "timestamp-column", "measured_at", "Column holding the reading time")
	f.StringVar(&opts.query.DefaultUnit, "default-unit", "", "Unit for rows without one")
	f.IntVar(&opts.query.Limit, "limit", 1000, "Maximum rows to read")
	f.StringVar(&opts.productID, "product", "", "Product the readings belong to")
	f.StringVar(&opts.since, "since", "", "Only rows newer than this RFC3339 time")
	f.BoolVar(&opts.evaluate, "evaluate", false, "Evaluate alert rules for every imported row")
	f.BoolVar(&opts.dryRun, "dry-run", false, "Read and convert without writing")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("product")
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	log := logger.WithComponent("backfill")

	if _, err := uuid.Parse(opts.productID); err != nil {
		return fmt.Errorf("--product: %w", err)
	}
	if opts.since != "" {
		since, err := time.Parse(time.RFC3339, opts.since)
		if err != nil {
			return fmt.Errorf("--since: %w", err)
		}
		opts.query.Since = since
	}

	store, err := storage.NewStore(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer store.Close()
	repo := storage.NewRepository(store)

	if _, err := repo.GetProduct(ctx, opts.productID); err != nil {
		return fmt.Errorf("product %s: %w", opts.productID, err)
	}

	connCfg, err := resolveConnection(ctx, repo, cfg.EncryptionKey, opts)
	if err != nil {
		return err
	}
	conn, err := historian.New(connCfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	readings, err := conn.ReadMeasurements(ctx, opts.query)
	if err != nil {
		return err
	}
	batch, skipped := toBatch(readings, opts.productID)
	log.Info().Int("read", len(readings)).Int("skipped", skipped).Int("batch", len(batch)).Msg("readings converted")
	if opts.dryRun {
		return nil
	}

	evaluator := alerts.NewEvaluator(alerts.Options{SkipDeletedRules: cfg.Alerts.SkipDeletedRules}, log)
	hook := ingest.NewHook(ingest.PgTransactor{Repo: repo}, evaluator, ingest.WithLogger(log))
	res, err := hook.Import(ingest.WithSource(ctx, "backfill"), batch, opts.evaluate)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	log.Info().Int64("inserted", res.Inserted).Int("events", res.Events).Msg("backfill complete")
	return nil
}

// resolveConnection prefers a registered historian over the inline flags.
func resolveConnection(ctx context.Context, repo *storage.Repository, encryptionKey string, opts *options) (historian.Config, error) {
	if opts.historianID == "" {
		if opts.conn.Type == "" || opts.conn.Host == "" {
			return historian.Config{}, errors.New("either --historian or --type and --host are required")
		}
		return opts.conn, nil
	}
	if encryptionKey == "" {
		return historian.Config{}, errors.New("ENCRYPTION_KEY is required to use a registered historian")
	}
	key, err := crypto.ParseKey(encryptionKey)
	if err != nil {
		return historian.Config{}, err
	}
	box, err := crypto.NewSecretBox(key)
	if err != nil {
		return historian.Config{}, err
	}
	rec, err := repo.GetHistorian(ctx, opts.historianID)
	if err != nil {
		return historian.Config{}, fmt.Errorf("historian %s: %w", opts.historianID, err)
	}
	password, err := box.Decrypt(rec.Password)
	if err != nil {
		return historian.Config{}, fmt.Errorf("decrypt historian password: %w", err)
	}
	return api.HistorianConfig(rec, password), nil
}

// toBatch attaches readings to the product. Readings the store would reject
// are skipped so one bad row does not abort the import.
func toBatch(readings []historian.Reading, productID string) ([]storage.NewMeasurement, int) {
	batch := make([]storage.NewMeasurement, 0, len(readings))
	skipped := 0
	for _, r := range readings {
		in := storage.NewMeasurement{
			ProductID:  &productID,
			Value:      r.Value,
			Unit:       r.Unit,
			MeasuredAt: r.MeasuredAt,
		}
		if err := storage.ValidateMeasurement(in); err != nil {
			skipped++
			continue
		}
		batch = append(batch, in)
	}
	return batch, skipped
}
