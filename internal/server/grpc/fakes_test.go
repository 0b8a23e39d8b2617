package grpc

import (
	"context"
	"time"

	"github.com/pmfstudio/reportgate/internal/server/models"
	"github.com/pmfstudio/reportgate/internal/server/reports"
	"github.com/pmfstudio/reportgate/internal/server/scoring"
)

type fakeAuthorizer struct {
	verdict models.Verdict
	err     error

	calls    int
	gotToken string
	gotNow   time.Time
}

func (f *fakeAuthorizer) Authorize(ctx context.Context, token string, now time.Time) (models.Verdict, error) {
	f.calls++
	f.gotToken, f.gotNow = token, now
	return f.verdict, f.err
}

type fakeScorer struct {
	res scoring.Result
	err error
	raw map[string]any
}

func (f *fakeScorer) Score(raw map[string]any) (scoring.Result, error) {
	f.raw = raw
	return f.res, f.err
}

type fakeReports struct {
	rep     reports.Report
	err     error
	gotPerm string
}

func (f *fakeReports) Generate(ctx context.Context, raw map[string]any, perm string) (reports.Report, error) {
	f.gotPerm = perm
	return f.rep, f.err
}

func admitted(perm models.Permission) models.Verdict {
	return models.Admit(&models.AccessToken{Token: "tok", Label: "l", Perm: perm, Active: true})
}
