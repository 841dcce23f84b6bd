package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/solatis/cratedigger/internal/core/db"
	"github.com/solatis/cratedigger/internal/types"
)

var reportsCmd = &cobra.Command{
	Use:   "reports [REPORT_ID]",
	Short: "List stored reports, or print one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.Flags().Int("limit", 20, "maximum number of reports to list")
	reportsCmd.Flags().Bool("table", false, "print a stored report as a summary table")
	reportsCmd.Flags().String("out", "", "write a stored report to this file instead of stdout")
}

func runReports(cmd *cobra.Command, args []string) error {
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

	if err := requireMigrated(ctx, database); err != nil {
		return err
	}
	catalog, err := db.NewCatalog(database)
	if err != nil {
		return err
	}

	if len(args) == 1 {
		id, err := types.ParseReportID(args[0])
		if err != nil {
			return err
		}
		rep, err := catalog.GetReport(ctx, id)
		if err != nil {
			return err
		}
		return writeReport(cmd, rep)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}
	summaries, err := catalog.ListReports(ctx, limit)
	if err != nil {
		return err
	}
	return renderSummaries(cmd.OutOrStdout(), summaries)
}

func renderSummaries(out io.Writer, summaries []db.ReportSummary) error {
	table := tablewriter.NewWriter(out)
	table.Header([]string{"Report ID", "Stored At", "Generated At", "Candidates"})
	for _, s := range summaries {
		storedAt := "-"
		if t := types.ReportIDTime(s.ID); !t.IsZero() {
			storedAt = t.UTC().Format(time.RFC3339)
		}
		row := []string{string(s.ID), storedAt, s.GeneratedAt, strconv.Itoa(s.CandidateCount)}
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
	}
	return table.Render()
}
