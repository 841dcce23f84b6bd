package api

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/cratedigger/internal/types"
)

// GenerateStoredReport builds a report from the catalog.
// Request: {"currentTime": "...", "includeZeroCandidates"?, "maxCandidates"?, "persist"?}.
// Response: {"report": {...}} plus "reportId" when persisted.
func (s *ReportService) GenerateStoredReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.catalog == nil {
		return nil, status.Error(codes.FailedPrecondition, "no catalog database configured")
	}
	start := time.Now()

	currentTime := req.GetFields()["currentTime"].GetStringValue()
	policy := policyFromStruct(req, s.defaults)

	rep, err := s.generator.GenerateFrom(ctx, s.catalog, s.catalog, currentTime, policy)
	if err != nil {
		s.logger.InfoContext(ctx, "stored report rejected", "error", err)
		return nil, toStatus(err)
	}

	repValue, err := reportValue(rep)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &structpb.Struct{Fields: map[string]*structpb.Value{"report": repValue}}

	if req.GetFields()["persist"].GetBoolValue() {
		id, err := s.catalog.SaveReport(ctx, rep)
		if err != nil {
			return nil, toStatus(err)
		}
		resp.Fields["reportId"] = structpb.NewStringValue(string(id))
		s.logger.InfoContext(ctx, "report stored", "report_id", id)
	}

	s.logger.InfoContext(ctx, "stored report generated",
		"candidates", len(rep.Candidates),
		"duration", time.Since(start),
	)
	return resp, nil
}

// GetReport returns a persisted report: {"reportId": "..."} -> {"report": {...}}.
func (s *ReportService) GetReport(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.catalog == nil {
		return nil, status.Error(codes.FailedPrecondition, "no catalog database configured")
	}

	id, err := types.ParseReportID(req.GetFields()["reportId"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "reportId must be a UUID")
	}

	rep, err := s.catalog.GetReport(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}

	repValue, err := reportValue(rep)
	if err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{"report": repValue}}, nil
}
