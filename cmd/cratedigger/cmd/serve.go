package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solatis/cratedigger/internal/core/api"
	"github.com/solatis/cratedigger/internal/core/db"
	"github.com/solatis/cratedigger/internal/core/server"
	"github.com/solatis/cratedigger/internal/report"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC report service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "127.0.0.1", "gRPC server host")
	serveCmd.Flags().Int("port", 50061, "gRPC server port")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog is optional: without a database only GenerateReport is served
	var catalog api.Catalog
	if cfg.Database.URL != "" {
		database, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		if err := requireMigrated(ctx, database); err != nil {
			return err
		}

		c, err := db.NewCatalog(database)
		if err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}
		catalog = c
	}

	generator := report.NewGenerator(
		report.WithWorkers(cfg.Engine.Workers),
		report.WithLogger(logger),
	)

	service, err := api.NewReportService(generator, catalog, cfg.Engine.Policy(), logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(&cfg.Server, service, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting cratedigger report service",
		"version", Version,
		"addr", cfg.Server.Addr(),
		"catalog", catalog != nil,
	)
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		return grpcServer.Shutdown(context.Background())
	}
}
