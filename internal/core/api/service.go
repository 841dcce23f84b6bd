// Package api provides the gRPC ReportService for cratedigger.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/solatis/cratedigger/internal/report"
	"github.com/solatis/cratedigger/internal/types"
)

// Catalog is the storage the stored-report RPCs read from and write to.
// *db.Catalog satisfies it.
type Catalog interface {
	report.RecordProvider
	report.ContextProvider
	SaveReport(ctx context.Context, rep *types.Report) (types.ReportID, error)
	GetReport(ctx context.Context, id types.ReportID) (*types.Report, error)
}

// ReportService implements ReportServiceServer.
// Thin orchestration layer delegating to the report and db packages.
type ReportService struct {
	generator *report.Generator
	catalog   Catalog
	defaults  types.Policy
	logger    *slog.Logger
}

// NewReportService creates service instance with dependencies.
// catalog may be nil, in which case only GenerateReport is available.
// defaults supply policy flags a stored-report request leaves unset.
func NewReportService(generator *report.Generator, catalog Catalog, defaults types.Policy, logger *slog.Logger) (*ReportService, error) {
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &ReportService{
		generator: generator,
		catalog:   catalog,
		defaults:  defaults,
		logger:    logger,
	}, nil
}
