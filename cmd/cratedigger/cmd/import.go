package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solatis/cratedigger/internal/core/db"
	"github.com/solatis/cratedigger/internal/report"
	"github.com/solatis/cratedigger/internal/types"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load records, rules and canonical ids into the catalog",
	Long: `Load input files into the catalog database. Files are validated exactly as
'cratedigger report' validates them; nothing is written unless both decode.

  cratedigger import --db-url sqlite://catalog.db --records tracks.json --context context.yaml`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("records", "", "records file (JSON array)")
	importCmd.Flags().String("context", "", "context file with rules and canonicalMap (JSON or YAML)")
}

func runImport(cmd *cobra.Command, args []string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("--db-url required (or set CD_DATABASE_URL)")
	}
	recordsPath, _ := cmd.Flags().GetString("records")
	contextPath, _ := cmd.Flags().GetString("context")
	if recordsPath == "" && contextPath == "" {
		return fmt.Errorf("nothing to import: give --records and/or --context")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		records []types.Record
		ectx    *types.EvaluationContext
	)
	if recordsPath != "" {
		raw, err := readInput(recordsPath)
		if err != nil {
			return err
		}
		if records, err = report.DecodeRecords(raw); err != nil {
			return err
		}
	}
	if contextPath != "" {
		raw, err := readContext(contextPath)
		if err != nil {
			return err
		}
		if ectx, err = report.DecodeContext(raw); err != nil {
			return err
		}
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

	if records != nil {
		if err := catalog.UpsertRecords(ctx, records); err != nil {
			return err
		}
		logger.Info("records imported", "count", len(records))
	}

	if ectx != nil {
		for _, rule := range ectx.Rules {
			if err := catalog.UpsertRule(ctx, rule); err != nil {
				return err
			}
		}
		for raw, canonical := range ectx.CanonicalMap {
			if err := catalog.PutCanonicalID(ctx, raw, canonical); err != nil {
				return err
			}
		}
		logger.Info("context imported", "rules", len(ectx.Rules), "canonical_ids", len(ectx.CanonicalMap))
	}
	return nil
}
