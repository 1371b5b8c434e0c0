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

	"github.com/Bacorsx/EcoEnergy-IC/internal/config"
	"github.com/Bacorsx/EcoEnergy-IC/internal/logger"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

type options struct {
	configFile string
	olderThan  time.Duration
	entities   []string
	id         string
}

// purger is the part of storage.Repository the command drives.
type purger interface {
	PurgeDeleted(ctx context.Context, entity storage.Entity, before time.Time) (int64, error)
	HardDelete(ctx context.Context, entity storage.Entity, id string) error
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
		Use:   "purge",
		Short: "Hard-delete soft-deleted rows",
		Long: `Removes rows that were soft-deleted longer ago than --older-than.
Foreign keys cascade, so purging a product also removes its rules,
measurements and alert events. With --id a single row of one --entity is
removed whatever its status.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			entities, err := opts.targets()
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			logger.Init(cfg.Log.Level, cfg.Log.Pretty)
			store, err := storage.NewStore(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("connect to db: %w", err)
			}
			defer store.Close()
			return run(cmd, storage.NewRepository(store), entities, opts, time.Now().UTC())
		},
	}
	setupFlags(cmd, opts)
	return cmd
}

func setupFlags(cmd *cobra.Command, opts *options) {
	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", os.Getenv("CONFIG_FILE"), "Path to a YAML config file")
	f.DurationVar(&opts.olderThan, "older-than", 30*24*time.Hour, "Only purge rows deleted at least this long ago")
	f.StringSliceVar(&opts.entities, "entity", nil, "Tables to purge (default: all, children first)")
	f.StringVar(&opts.id, "id", "", "Hard-delete this row of the single --entity")
}

// targets validates the flags and returns the entities in purge order.
func (o *options) targets() ([]storage.Entity, error) {
	if o.olderThan < 0 {
		return nil, errors.New("--older-than must not be negative")
	}
	if len(o.entities) == 0 {
		if o.id != "" {
			return nil, errors.New("--id needs exactly one --entity")
		}
		return storage.PurgeOrder, nil
	}
	picked := map[storage.Entity]bool{}
	for _, name := range o.entities {
		e, ok := storage.ParseEntity(name)
		if !ok {
			return nil, fmt.Errorf("--entity: unknown table %q", name)
		}
		picked[e] = true
	}
	if o.id != "" {
		if len(picked) != 1 {
			return nil, errors.New("--id needs exactly one --entity")
		}
		if _, err := uuid.Parse(o.id); err != nil {
			return nil, fmt.Errorf("--id: %w", err)
		}
	}
	out := make([]storage.Entity, 0, len(picked))
	for _, e := range storage.PurgeOrder {
		if picked[e] {
			out = append(out, e)
		}
	}
	return out, nil
}

func run(cmd *cobra.Command, repo purger, entities []storage.Entity, opts *options, now time.Time) error {
	ctx := cmd.Context()
	log := logger.WithComponent("purge")
	if opts.id != "" {
		if err := repo.HardDelete(ctx, entities[0], opts.id); err != nil {
			return fmt.Errorf("delete %s %s: %w", entities[0], opts.id, err)
		}
		log.Info().Str("entity", string(entities[0])).Str("id", opts.id).Msg("row deleted")
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s deleted\n", entities[0], opts.id)
		return nil
	}
	cutoff := now.Add(-opts.olderThan)
	for _, e := range entities {
		n, err := repo.PurgeDeleted(ctx, e, cutoff)
		if err != nil {
			return err
		}
		log.Info().Str("entity", string(e)).Int64("rows", n).Time("before", cutoff).Msg("purged")
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d purged\n", e, n)
	}
	return nil
}
