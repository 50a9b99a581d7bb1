package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/deckhand-ai/deckhand/internal/adapter/postgres"
	"github.com/deckhand-ai/deckhand/internal/config"
	"github.com/deckhand-ai/deckhand/internal/port/notifier"
)

// runAdmin dispatches admin subcommands (hash-token, migrate-status,
// migrate-rollback, notifiers).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "hash-token":
		return runAdminHashToken(args[1:])
	case "migrate-status":
		return runAdminMigrateStatus(args[1:])
	case "migrate-rollback":
		return runAdminMigrateRollback(args[1:])
	case "notifiers":
		return runAdminNotifiers(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: deckhand admin <command> [options]

Commands:
  hash-token        Hash an API token for the server.token_hash config key
  migrate-status    Show the applied migration version
  migrate-rollback  Roll back database migrations
  notifiers         List available notification providers
  help              Show this help message

Examples:
  deckhand admin hash-token
  deckhand admin migrate-status
  deckhand admin migrate-rollback --steps 1
  deckhand admin notifiers
`)
}

func runAdminHashToken(args []string) error {
	fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
	token := fs.String("token", "", "API token (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	t := *token
	if t == "" {
		var err error
		t, err = promptSecret("API token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		confirm, err := promptSecret("Confirm token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		if t != confirm {
			return fmt.Errorf("tokens do not match")
		}
	}
	if t == "" {
		return fmt.Errorf("token must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(t), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash token: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Set this as server.token_hash (or DECKHAND_SERVER_TOKEN_HASH):")
	fmt.Println(string(hash))
	return nil
}

// adminDSN resolves the database DSN for migration commands: the --dsn flag
// wins, otherwise the regular config hierarchy applies.
func adminDSN(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	return cfg.Postgres.DSN, nil
}

func runAdminMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate-status", flag.ContinueOnError)
	dsn := fs.String("dsn", "", "PostgreSQL connection string (defaults to config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resolved, err := adminDSN(*dsn)
	if err != nil {
		return err
	}

	v, err := postgres.MigrationVersion(context.Background(), resolved)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}

	if v == 0 {
		fmt.Println("No migrations applied.")
		return nil
	}
	fmt.Printf("Migration version: %d\n", v)
	return nil
}

func runAdminMigrateRollback(args []string) error {
	fs := flag.NewFlagSet("migrate-rollback", flag.ContinueOnError)
	dsn := fs.String("dsn", "", "PostgreSQL connection string (defaults to config)")
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *steps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}

	resolved, err := adminDSN(*dsn)
	if err != nil {
		return err
	}

	if err := postgres.RollbackMigrations(context.Background(), resolved, *steps); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s).\n", *steps)
	return nil
}

func runAdminNotifiers(args []string) error {
	fs := flag.NewFlagSet("notifiers", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := notifier.Available()
	if len(names) == 0 {
		fmt.Println("No notification providers compiled in.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tRICH\tPERSISTENT")
	for _, name := range names {
		// Probe with empty config; factories tolerate it and report
		// capabilities regardless.
		n, err := notifier.New(name, nil)
		if err != nil {
			_, _ = fmt.Fprintf(w, "%s\t?\t?\n", name)
			continue
		}
		caps := n.Capabilities()
		_, _ = fmt.Fprintf(w, "%s\t%t\t%t\n", name, caps.RichFormatting, caps.Persistent)
	}
	return w.Flush()
}

// promptSecret reads a value from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
