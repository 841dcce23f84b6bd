package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/solatis/cratedigger/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending catalog migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().Bool("status", false, "list migrations without applying them")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("--db-url required (or set CD_DATABASE_URL)")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	database, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if status, _ := cmd.Flags().GetBool("status"); status {
		statuses, err := db.MigrateStatus(ctx, database)
		if err != nil {
			return err
		}
		return renderMigrations(cmd.OutOrStdout(), statuses)
	}

	applied, err := db.MigrateUp(ctx, database)
	if err != nil {
		return err
	}
	for _, id := range applied {
		logger.Info("migration applied", "migration_id", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(applied))
	return nil
}

// requireMigrated refuses to serve a catalog with pending migrations.
func requireMigrated(ctx context.Context, database *sqlx.DB) error {
	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	for _, s := range statuses {
		if !s.Applied {
			return fmt.Errorf("migration %s not applied - run 'cratedigger migrate' first", s.ID)
		}
	}
	return nil
}

func renderMigrations(out io.Writer, statuses []db.MigrationStatus) error {
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Migration", "Applied", "Applied At", "Duration (ms)"})
	for _, s := range statuses {
		appliedAt := "-"
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		row := []string{s.ID, strconv.FormatBool(s.Applied), appliedAt, strconv.FormatInt(s.ExecutionMs, 10)}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
	}
	return table.Render()
}
