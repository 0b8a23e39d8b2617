package grpc

import (
	"context"
	"errors"

	"github.com/pmfstudio/reportgate/internal/server/scoring"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Health(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"status":  "ok",
		"message": "PMF report API is running",
	})
}

func (s *GRPCServer) Score(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	res, err := s.scorer.Score(req.AsMap())
	if err != nil {
		return nil, s.scoringError(ctx, err)
	}

	return toStruct(map[string]any{
		"pmf_score":  res.Score,
		"stage":      string(res.Stage),
		"components": componentsValue(res.Components),
	})
}

func (s *GRPCServer) Report(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {

	var perm string
	if t, ok := AccessTokenFromContext(ctx); ok {
		perm = t.Perm.String()
	}

	rep, err := s.reports.Generate(ctx, req.AsMap(), perm)
	if err != nil {
		return nil, s.scoringError(ctx, err)
	}

	var link any
	if rep.Link != "" {
		link = rep.Link
	}

	s.logger.Info(ctx, "Report generated", "score", rep.Score, "published", rep.Link != "")
	return toStruct(map[string]any{
		"pmf_score":   rep.Score,
		"stage":       string(rep.Stage),
		"report_link": link,
		"permission":  perm,
	})
}

func (s *GRPCServer) scoringError(ctx context.Context, err error) error {
	if errors.Is(err, scoring.ErrInvalidInput) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	s.logger.Error(ctx, err.Error())
	return status.Error(codes.Internal, "internal error")
}

func componentsValue(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return st, nil
}
