package grpc

import (
	"context"
	"net"
	"time"

	"github.com/pmfstudio/reportgate/internal/logging"
	"github.com/pmfstudio/reportgate/internal/server/models"
	"github.com/pmfstudio/reportgate/internal/server/reports"
	"github.com/pmfstudio/reportgate/internal/server/scoring"
	"google.golang.org/grpc"
)

// Authorizer decides whether a presented access token is admitted.
type Authorizer interface {
	Authorize(ctx context.Context, token string, now time.Time) (models.Verdict, error)
}

// Scorer scores a raw survey.
type Scorer interface {
	Score(raw map[string]any) (scoring.Result, error)
}

// ReportGenerator scores, renders and publishes a report.
type ReportGenerator interface {
	Generate(ctx context.Context, raw map[string]any, perm string) (reports.Report, error)
}

type GRPCServer struct {
	address   string
	logger    logging.Logger
	validator Authorizer
	scorer    Scorer
	reports   ReportGenerator
	now       func() time.Time
}

func NewGRPCServer(a string, l logging.Logger, v Authorizer, sc Scorer, rg ReportGenerator) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		validator: v,
		scorer:    sc,
		reports:   rg,
		now:       time.Now,
	}
}

// newServer creates the gRPC server with the access token gate installed and
// the report service registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv.RegisterService(&ReportServiceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
