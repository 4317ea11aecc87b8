package main

import (
	"fmt"
	"os"

	"github.com/jonathan/cv-tailor/internal/db"
	"github.com/spf13/cobra"
)

var (
	migrateDatabaseURL string
	migrateSQLitePath  string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply hot-tier schema migrations",
	Long:  "Applies pending migrations to the PostgreSQL database, or creates the SQLite schema when --sqlite is given.",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDatabaseURL, "database-url", "", "PostgreSQL URL (defaults to DATABASE_URL)")
	migrateCmd.Flags().StringVar(&migrateSQLitePath, "sqlite", "", "SQLite database path (takes precedence over PostgreSQL)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	if migrateSQLitePath != "" {
		lite, err := db.OpenSQLite(migrateSQLitePath)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "SQLite schema ready at %s\n", migrateSQLitePath)
		return lite.Close()
	}

	url := migrateDatabaseURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --database-url is required")
	}

	pg, err := db.Connect(cmd.Context(), url)
	if err != nil {
		return err
	}
	defer pg.Close()

	applied, err := pg.Migrate(cmd.Context())
	for _, name := range applied {
		_, _ = fmt.Fprintf(out, "applied %s\n", name)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		_, _ = fmt.Fprintln(out, "database is up to date")
	}
	return nil
}
