// accounts-seed creates the users schema and the bootstrap accounts.
//
//	accounts-seed -config configs/accounts.yaml [-password secret]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/config"
	"github.com/goliatone/go-accounts/logging"
	"github.com/goliatone/go-accounts/service"
)

const defaultConfigPath = "configs/accounts.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("accounts-seed", flag.ContinueOnError)
	configPath := fs.String("config", envOr("ACCOUNTS_CONFIG", defaultConfigPath), "path to the YAML config file")
	password := fs.String("password", accounts.DefaultSeedPassword, "password for every seeded account")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Default().Error("configuration rejected", "path", *configPath, "error", err)
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, "accounts-seed")
	log.Info("configuration loaded", "path", *configPath)

	// seeding never needs to deliver mail
	cfg.Mail.Transport = config.TransportNone

	svc, err := service.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("starting service: %w", err)
	}
	defer svc.Close()

	created, err := svc.Seed(ctx, accounts.NewBcryptHasher(cfg.Password.BcryptCost), *password)
	if err != nil {
		return fmt.Errorf("seeding accounts: %w", err)
	}

	if created == 0 {
		log.Info("store already populated, nothing seeded")
		return nil
	}
	log.Info("accounts seeded", "count", created)
	return nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
