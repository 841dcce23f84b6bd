package api

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// GenerateReport builds a report from records and context carried in the
// request: {"records": [...], "context": {...}}.
// Validation runs in the JSON entry point's fixed order; the first failure
// is returned as INVALID_ARGUMENT.
func (s *ReportService) GenerateReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	recordsJSON, err := fieldJSON(req, "records")
	if err != nil {
		return nil, toStatus(err)
	}
	contextJSON, err := fieldJSON(req, "context")
	if err != nil {
		return nil, toStatus(err)
	}

	rep, err := s.generator.GenerateReportJSONContext(ctx, recordsJSON, contextJSON)
	if err != nil {
		s.logger.InfoContext(ctx, "report rejected", "error", err)
		return nil, toStatus(err)
	}

	out, err := reportValue(rep)
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.InfoContext(ctx, "report generated",
		"candidates", len(rep.Candidates),
		"duration", time.Since(start),
	)
	return out.GetStructValue(), nil
}
