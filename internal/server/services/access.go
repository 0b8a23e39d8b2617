package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pmfstudio/reportgate/internal/common"
	"github.com/pmfstudio/reportgate/internal/logging"
	"github.com/pmfstudio/reportgate/internal/server/models"
	"github.com/pmfstudio/reportgate/internal/server/repositories/accesstokens"
)

// AccessValidator decides whether a presented token is admitted. It only
// reads the store and never takes the TokenManager lock.
type AccessValidator struct {
	store  accesstokens.Store
	logger logging.Logger
}

func NewAccessValidator(store accesstokens.Store, logger logging.Logger) *AccessValidator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &AccessValidator{store: store, logger: logger.With("module", "access")}
}

// Authorize checks token against the store at now. Denials are returned as
// verdicts with a nil error. A store failure returns a DenyStoreError
// verdict together with the error, so callers that ignore the error still
// refuse the request.
func (v *AccessValidator) Authorize(ctx context.Context, token string, now time.Time) (models.Verdict, error) {
	if token == "" {
		v.logger.Info(ctx, "access denied", "reason", string(models.DenyNotFound), "token", "")
		return models.Deny(models.DenyNotFound), nil
	}

	tokens, err := v.store.Load(ctx)
	if err != nil {
		v.logger.Error(ctx, "token store read failed during authorization",
			"token", common.Fingerprint(token), "error", err)
		return models.Deny(models.DenyStoreError), fmt.Errorf("authorize: %w", err)
	}

	i := indexOf(tokens, token)
	if i < 0 {
		return v.deny(ctx, token, models.DenyNotFound), nil
	}

	rec := tokens[i]
	switch {
	case !rec.Active:
		return v.deny(ctx, token, models.DenyRevoked), nil
	case rec.Expired(now):
		return v.deny(ctx, token, models.DenyExpired), nil
	}

	v.logger.Debug(ctx, "access admitted", "token", common.Fingerprint(token), "perm", rec.Perm.String())
	return models.Admit(&rec), nil
}

func (v *AccessValidator) deny(ctx context.Context, token string, reason models.DenyReason) models.Verdict {
	v.logger.Info(ctx, "access denied", "reason", string(reason), "token", common.Fingerprint(token))
	return models.Deny(reason)
}
