package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fintrack/fintrack/internal/domain"
	"github.com/fintrack/fintrack/internal/infrastructure/logger"
	"github.com/fintrack/fintrack/internal/repository"
	"github.com/fintrack/fintrack/internal/security/auth"
	"github.com/fintrack/fintrack/internal/service"
	"github.com/fintrack/fintrack/internal/worker"
	"github.com/fintrack/fintrack/pkg/config"
	"github.com/fintrack/fintrack/pkg/database"
)

// env bundles what every command needs
type env struct {
	ctx   context.Context
	log   *slog.Logger
	pool  *database.ConnectionPool
	store domain.Store
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	if command == "help" {
		printUsage()
		return
	}

	e, err := connect()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer e.pool.Close()

	switch command {
	case "migrate":
		err = e.migrate()
	case "tiers":
		err = e.handleTiers(args)
	case "clients":
		err = e.handleClients(args)
	case "users":
		err = e.handleUsers(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func connect() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.NewLogger(cfg.LogLevel, "text")

	ctx := context.Background()
	pool, err := database.NewConnectionPool(ctx, cfg.Database(), log)
	if err != nil {
		return nil, err
	}
	return &env{
		ctx:   ctx,
		log:   log,
		pool:  pool,
		store: repository.NewPostgresStore(pool.GetDB(), log),
	}, nil
}

func (e *env) migrate() error {
	if err := e.pool.Migrate(e.ctx); err != nil {
		return err
	}
	fmt.Println("✓ Migrations applied")
	return nil
}

func (e *env) handleTiers(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: fintrack tiers <seed|list>")
		return nil
	}

	catalog := service.NewTierCatalog(e.store, e.log)
	switch args[0] {
	case "seed":
		tiers, err := catalog.EnsureDefaults(e.ctx)
		if err != nil {
			return err
		}
		for _, t := range tiers {
			fmt.Printf("✓ %s (id %d)\n", t.Label(), t.ID)
		}
		return nil
	case "list":
		tiers, err := catalog.List(e.ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPREMIUM\tMAX TX/MONTH\tEXPORT\tANALYTICS")
		for _, t := range tiers {
			fmt.Fprintf(w, "%d\t%s\t%t\t%d\t%t\t%t\n",
				t.ID, t.Name, t.IsPremium, t.MaxTransactionsPerMonth, t.CanExportData, t.CanAdvancedAnalytics)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unknown tiers command: %s", args[0])
	}
}

func (e *env) handleClients(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: fintrack clients <stats|upgrade|downgrade|move|backfill>")
		return nil
	}

	switch args[0] {
	case "stats":
		stats, err := service.NewStatisticsAggregator(e.store.Clients()).Snapshot(e.ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TOTAL\tACTIVE\tINACTIVE\tPREMIUM\tBASIC")
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n", stats.Total, stats.Active, stats.Inactive, stats.Premium, stats.Basic)
		return w.Flush()
	case "upgrade", "downgrade":
		return e.changeTier(args[0], args[1:])
	case "move":
		return e.moveClient(args[1:])
	case "backfill":
		prov := service.NewProvisioningService(e.store, e.log)
		n := worker.NewBackfillWorker(e.store.Users(), prov, e.log, time.Minute).RunOnce(e.ctx)
		fmt.Printf("✓ Provisioned %d client(s)\n", n)
		return nil
	default:
		return fmt.Errorf("unknown clients command: %s", args[0])
	}
}

func (e *env) changeTier(direction string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: fintrack clients %s <client-id>", direction)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid client id %q", args[0])
	}

	client, err := e.store.Clients().GetByID(e.ctx, id)
	if err != nil {
		return err
	}

	transitions := service.NewTierTransitionService(e.store, e.log)
	var applied bool
	if direction == "upgrade" {
		applied, err = transitions.UpgradeToPremium(e.ctx, client)
	} else {
		applied, err = transitions.DowngradeToStandard(e.ctx, client)
	}
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("target tier is not configured; run `fintrack tiers seed` first")
	}
	fmt.Printf("✓ Client %d is now on %s\n", client.ID, client.Tier.Label())
	return nil
}

func (e *env) moveClient(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: fintrack clients move <client-id> <tier-id>")
	}
	clientID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid client id %q", args[0])
	}
	tierID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid tier id %q", args[1])
	}

	client, err := e.store.Clients().GetByID(e.ctx, clientID)
	if err != nil {
		return err
	}
	if err := service.NewTierTransitionService(e.store, e.log).MoveToTier(e.ctx, client, tierID); err != nil {
		return err
	}
	fmt.Printf("✓ Client %d is now on %s\n", client.ID, client.Tier.Label())
	return nil
}

func (e *env) handleUsers(args []string) error {
	if len(args) < 1 || args[0] != "create-staff" {
		fmt.Println("Usage: fintrack users create-staff -username <name> -email <email> -password <password>")
		return nil
	}

	fs := flag.NewFlagSet("create-staff", flag.ExitOnError)
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email")
	password := fs.String("password", "", "password")
	fs.Parse(args[1:])

	if *username == "" || *email == "" || *password == "" {
		fs.PrintDefaults()
		return fmt.Errorf("username, email and password are required")
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		return err
	}
	user := &domain.User{
		Username:     *username,
		Email:        *email,
		PasswordHash: hash,
		IsStaff:      true,
		IsActive:     true,
	}
	if err := e.store.Users().Create(e.ctx, user); err != nil {
		return err
	}
	fmt.Printf("✓ Staff user created: %s (id %d)\n", user.Username, user.ID)
	return nil
}

func printUsage() {
	fmt.Print(`FinTrack admin CLI

Usage:
  fintrack <command> [options]

Commands:
  migrate    Apply database migrations
  tiers      Access tiers (seed, list)
  clients    Clients (stats, upgrade <id>, downgrade <id>, move <id> <tier-id>, backfill)
  users      Identities (create-staff)
  help       Show this help message

Configuration is read from the same environment as the server (DATABASE_URL, LOG_LEVEL).

Examples:
  fintrack migrate
  fintrack tiers seed
  fintrack clients upgrade 42
  fintrack clients move 42 3
  fintrack users create-staff -username admin -email admin@example.com -password Secret123
`)
}
