package api

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/cratedigger/internal/types"
)

// Client calls ReportService over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateReport sends raw records and context JSON and returns the report.
// Both inputs must be valid JSON; shape validation happens on the server.
func (c *Client) GenerateReport(ctx context.Context, recordsJSON, contextJSON []byte, opts ...grpc.CallOption) (*types.Report, error) {
	records, err := valueFromJSON(recordsJSON)
	if err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	ectx, err := valueFromJSON(contextJSON)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}

	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"records": records,
		"context": ectx,
	}}
	out, err := c.invoke(ctx, GenerateReportMethod, req, opts...)
	if err != nil {
		return nil, err
	}
	return reportFromValue(structpb.NewStructValue(out))
}

// StoredReportRequest selects the catalog run options.
// Nil fields fall back to the server's configured defaults.
type StoredReportRequest struct {
	CurrentTime           string `json:"currentTime"`
	IncludeZeroCandidates *bool  `json:"includeZeroCandidates,omitempty"`
	MaxCandidates         *int   `json:"maxCandidates,omitempty"`
	Persist               bool   `json:"persist,omitempty"`
}

// GenerateStoredReport runs a report over the server's catalog.
// The returned ID is empty unless the request asked to persist.
func (c *Client) GenerateStoredReport(ctx context.Context, r StoredReportRequest, opts ...grpc.CallOption) (*types.Report, types.ReportID, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, "", err
	}
	req, err := structFromJSON(b)
	if err != nil {
		return nil, "", err
	}

	out, err := c.invoke(ctx, GenerateStoredReportMethod, req, opts...)
	if err != nil {
		return nil, "", err
	}
	rep, err := reportFromValue(out.GetFields()["report"])
	if err != nil {
		return nil, "", err
	}
	return rep, types.ReportID(out.GetFields()["reportId"].GetStringValue()), nil
}

// GetReport fetches a persisted report.
func (c *Client) GetReport(ctx context.Context, id types.ReportID, opts ...grpc.CallOption) (*types.Report, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"reportId": structpb.NewStringValue(string(id)),
	}}
	out, err := c.invoke(ctx, GetReportMethod, req, opts...)
	if err != nil {
		return nil, err
	}
	return reportFromValue(out.GetFields()["report"])
}
