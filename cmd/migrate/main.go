package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/noah-isme/backend-sekolah/internal/db"
	"github.com/noah-isme/backend-sekolah/internal/obs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply the embedded fee counter schema migrations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dsn, "database-url", "", "Postgres URL (defaults to DATABASE_URL)")

	open := func() (*db.Migrator, error) {
		logger := obs.NewLogger("console", "info").With().Str("component", "migrate").Logger()
		url := strings.TrimSpace(dsn)
		if url == "" {
			_ = godotenv.Load()
			url = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if url == "" {
			return nil, errors.New("DATABASE_URL is not set")
		}
		return db.NewMigrator(url, logger)
	}

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Up()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the given number of migrations (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Down(steps)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", version, dirty)
			return nil
		},
	})

	return root
}
