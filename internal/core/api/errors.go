package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/cratedigger/internal/core/db"
	"github.com/solatis/cratedigger/internal/types"
)

// Input kinds the caller can fix by changing the request.
var invalidArgument = []error{
	types.ErrInvalidRecords,
	types.ErrInvalidContext,
	types.ErrInvalidRuleDefinition,
	types.ErrInvalidCanonicalMapping,
	types.ErrSyntax,
	types.ErrExpression,
}

// toStatus maps engine and storage errors onto gRPC status codes.
// Validation and rule failures map to INVALID_ARGUMENT.
// Missing reports map to NOT_FOUND.
// Regex searches that ran out of time map to RESOURCE_EXHAUSTED.
// Context timeouts map to DEADLINE_EXCEEDED.
// Anything else came from storage and maps to UNAVAILABLE.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, kind := range invalidArgument {
		if errors.Is(err, kind) {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	switch {
	case errors.Is(err, db.ErrReportNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, types.ErrMatchTimeout):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unavailable, err.Error())
	}
}
