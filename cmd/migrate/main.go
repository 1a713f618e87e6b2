package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"fundsflow.org/internal/config"
	"fundsflow.org/internal/fixtures"
	"fundsflow.org/internal/migrate"
	"fundsflow.org/internal/obs"
	"fundsflow.org/internal/store/pg"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config_load_failed")
	}
	var (
		dsn            = flag.String("dsn", cfg.PostgresDSN, "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", cfg.Migrations, "Directory of SQL migrations (embedded set when missing)")
		seedsPath      = flag.String("seeds", cfg.Seeds, "Directory of SQL seeds (embedded set when missing)")
		count          = flag.Int("count", cfg.FixtureCount, "Transactions generated by the fixtures command")
		seed           = flag.Int64("seed", cfg.FixtureSeed, "Fixture generator seed")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal().Msg("missing DSN: provide via -dsn or FUNDSFLOW_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|seed|status|fixtures]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open_db_failed")
	}
	defer store.Close()

	mgr := migrate.NewManager(store.DB(), dirOr(*migrationsPath, migrate.Migrations()), dirOr(*seedsPath, migrate.Seeds()))

	cmd := flag.Arg(0)
	var applied []string
	switch cmd {
	case "up":
		applied, err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		applied, err = mgr.Seed(ctx)
	case "status":
		applied, err = mgr.Status(ctx)
	case "fixtures":
		err = loadFixtures(ctx, store, *seed, *count)
	default:
		log.Fatal().Str("command", cmd).Msg("unknown command")
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("migrate_failed")
	}
	for _, item := range applied {
		fmt.Println(item)
	}
}

// dirOr prefers an on-disk directory and falls back to the embedded tree.
func dirOr(path string, embedded fs.FS) fs.FS {
	if path == "" {
		return embedded
	}
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return os.DirFS(path)
	}
	return embedded
}

func loadFixtures(ctx context.Context, store *pg.Store, seed int64, n int) error {
	now := time.Now().UTC()
	gen := fixtures.New(seed, now)
	ws := fixtures.Wallets(now.Add(-72 * time.Hour))
	if err := store.PutWallets(ctx, ws, fixtures.ExternalBalances()); err != nil {
		return fmt.Errorf("wallets: %w", err)
	}
	for _, w := range ws {
		if err := store.AddMovements(ctx, fixtures.Movements(w.ID, now)...); err != nil {
			return fmt.Errorf("movements for wallet %s: %w", w.ID, err)
		}
	}
	added, err := store.Add(ctx, gen.Transactions(n)...)
	if err != nil {
		return fmt.Errorf("transactions: %w", err)
	}
	obs.Logger().Info().Int("wallets", len(ws)).Int("transactions", len(added)).Msg("fixtures_loaded")
	return nil
}
