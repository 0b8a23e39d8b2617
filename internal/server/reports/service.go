package reports

import (
	"context"
	"time"

	"github.com/pmfstudio/reportgate/internal/logging"
	"github.com/pmfstudio/reportgate/internal/server/scoring"
)

// Report is the outcome of Generate. Link is empty when publishing failed.
type Report struct {
	scoring.Result
	Key  string
	Link string
}

// Service scores a survey, renders the report and publishes it.
type Service struct {
	engine   *scoring.Engine
	renderer *Renderer
	uploader *Uploader
	logger   logging.Logger
	now      func() time.Time
}

// NewService wires the report pipeline. uploader may be nil, in which case
// reports are rendered but never published.
func NewService(engine *scoring.Engine, renderer *Renderer, uploader *Uploader, logger logging.Logger) *Service {
	if renderer == nil {
		renderer = DefaultRenderer()
	}
	return &Service{
		engine:   engine,
		renderer: renderer,
		uploader: uploader,
		logger:   logger.With("module", "reports"),
		now:      time.Now,
	}
}

// Generate builds the report for raw. Scoring and rendering errors are
// returned; a failed upload is only logged and leaves Link empty.
func (s *Service) Generate(ctx context.Context, raw map[string]any, perm string) (Report, error) {
	res, err := s.engine.Score(raw)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Result: res}

	data := DataFromRaw(raw, res, s.now())
	data.Permission = perm
	html, err := s.renderer.HTML(data)
	if err != nil {
		return Report{}, err
	}

	if s.uploader == nil {
		s.logger.Warn(ctx, "report storage not configured, skipping upload")
		return rep, nil
	}

	key, link, err := s.uploader.Upload(ctx, html)
	if err != nil {
		s.logger.Error(ctx, "report upload failed", "error", err)
		return rep, nil
	}
	rep.Key, rep.Link = key, link
	s.logger.Info(ctx, "report published", "key", key, "score", res.Score)
	return rep, nil
}
