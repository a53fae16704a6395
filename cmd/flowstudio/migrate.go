package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/flowstudio/config"
	"github.com/BaSui01/flowstudio/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "up":
		withMigrator("up", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunUp(ctx)
		})
	case "down":
		runMigrateDown(subargs)
	case "steps":
		n := requireInt("steps", subargs)
		withMigrator("steps", subargs[1:], nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunSteps(ctx, n)
		})
	case "status":
		withMigrator("status", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunStatus(ctx)
		})
	case "info":
		withMigrator("info", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunInfo(ctx)
		})
	case "version":
		withMigrator("version", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunVersion(ctx)
		})
	case "goto":
		v := requireInt("goto", subargs)
		if v < 0 {
			fmt.Fprintf(os.Stderr, "Invalid version number: %d\n", v)
			os.Exit(1)
		}
		withMigrator("goto", subargs[1:], nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunGoto(ctx, uint(v))
		})
	case "force":
		v := requireInt("force", subargs)
		withMigrator("force", subargs[1:], nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunForce(ctx, v)
		})
	case "reset":
		withMigrator("reset", subargs, nil, func(ctx context.Context, cli *migration.CLI) error {
			return cli.RunDownAll(ctx)
		})
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  flowstudio migrate <subcommand> [options]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration (--all rolls back everything)
  steps <n>   Apply n migrations (negative n rolls back)
  status      Show migration status
  info        Show migration summary
  version     Show current migration version
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  reset       Rollback all migrations
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)

Examples:
  flowstudio migrate up
  flowstudio migrate up --config /etc/flowstudio/config.yaml
  flowstudio migrate down --all
  flowstudio migrate steps -1
  flowstudio migrate goto 1
  flowstudio migrate force 0`)
}

func runMigrateDown(args []string) {
	var all *bool
	withMigrator("down", args, func(fs *flag.FlagSet) {
		all = fs.Bool("all", false, "Rollback all migrations")
	}, func(ctx context.Context, cli *migration.CLI) error {
		if *all {
			return cli.RunDownAll(ctx)
		}
		return cli.RunDown(ctx)
	})
}

// requireInt parses the positional version or step argument
func requireInt(name string, args []string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: flowstudio migrate %s <number>\n", name)
		os.Exit(1)
	}
	v, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid number: %s\n", args[0])
		os.Exit(1)
	}
	return int(v)
}

// withMigrator parses the shared flags, opens a migrator and runs fn.
// extra registers subcommand specific flags before parsing.
func withMigrator(name string, args []string, extra func(*flag.FlagSet), fn func(context.Context, *migration.CLI) error) {
	fs := flag.NewFlagSet("migrate "+name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	if extra != nil {
		extra(fs)
	}
	_ = fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbType != "" {
		cfg.Database.Driver = *dbType
	}

	migrator, err := migration.NewMigratorFromConfig(cfg.Database, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}

	runErr := fn(context.Background(), migration.NewCLI(migrator))
	if err := migrator.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close migrator: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", name, runErr)
		os.Exit(1)
	}
}
