// Package server wires the report gate: it opens the token store, builds the
// access validator and report pipeline, and runs the gRPC server until a
// signal arrives.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pmfstudio/reportgate/internal/logging"
	"github.com/pmfstudio/reportgate/internal/netx"
	"github.com/pmfstudio/reportgate/internal/server/config"
	"github.com/pmfstudio/reportgate/internal/server/objectstore"
	"github.com/pmfstudio/reportgate/internal/server/reports"
	"github.com/pmfstudio/reportgate/internal/server/repositories/repomanager"
	"github.com/pmfstudio/reportgate/internal/server/scoring"
	"github.com/pmfstudio/reportgate/internal/server/services"

	gs "github.com/pmfstudio/reportgate/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *repomanager.Handle
	server  *gs.GRPCServer
	uploads bool
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	store, err := repomanager.Open(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("token store init error: %w", err)
	}

	validator := services.NewAccessValidator(store.Store, logger)
	engine := scoring.NewEngineFromFile(ctx, c.WeightsPath, logger)

	uploader := newUploader(ctx, c, logger)
	rs := reports.NewService(engine, reports.DefaultRenderer(), uploader, logger)

	srv := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, validator, engine, rs)

	return &App{config: c, logger: logger, store: store, server: srv, uploads: uploader != nil}, nil
}

// newUploader returns nil when no bucket is configured or the object store
// client cannot be built; reports are then served without a link.
func newUploader(ctx context.Context, c *config.Config, logger logging.Logger) *reports.Uploader {
	if c.S3Bucket == "" {
		return nil
	}
	client, err := objectstore.NewClient(ctx, c)
	if err != nil {
		logger.Warn(ctx, "report uploads disabled", "error", err)
		return nil
	}
	return reports.NewUploader(s3.NewPresignClient(client), netx.DefaultClient, c.S3Bucket, c.S3ReportsPrefix, c.ReportLinkValidity)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// closes the token store.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.store.Backend, "report_uploads", app.uploads)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "closing token store", "error", err)
	}
}
