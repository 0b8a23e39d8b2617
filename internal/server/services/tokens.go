// Package services contains server-side business logic. This file implements
// TokenManager, the only writer of access token records: create, list,
// revoke and extend.
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pmfstudio/reportgate/internal/common"
	"github.com/pmfstudio/reportgate/internal/logging"
	"github.com/pmfstudio/reportgate/internal/server/models"
	"github.com/pmfstudio/reportgate/internal/server/repositories/accesstokens"
	"github.com/pmfstudio/reportgate/internal/timex"
)

const (
	// tokenBytes is the amount of randomness behind every token string.
	tokenBytes = 32
	// maxCreateAttempts bounds retries after a generated token collides.
	maxCreateAttempts = 5
	// maxExpiryYear is the last year an RFC 3339 timestamp can carry.
	maxExpiryYear = 9999
)

// TokenManager runs every mutation as one store Update, so concurrent
// writers, in this process or another, never overwrite each other.
type TokenManager struct {
	store   accesstokens.Store
	allowed []models.Permission
	logger  logging.Logger

	now      func() time.Time
	newToken func() (string, error)
}

// NewTokenManager builds a manager over store. allowed restricts the
// permission tags accepted by Create; an empty list allows every known tag.
func NewTokenManager(store accesstokens.Store, allowed []models.Permission, logger logging.Logger) *TokenManager {
	if len(allowed) == 0 {
		allowed = models.KnownPermissions
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &TokenManager{
		store:   store,
		allowed: allowed,
		logger:  logger.With("module", "tokens"),
		now:     time.Now,
		newToken: func() (string, error) {
			return common.MakeRandHexString(tokenBytes)
		},
	}
}

// Create issues a new active token valid for validity from now. The returned
// record carries the plaintext token; it is the only time a caller gets it
// without listing the store.
func (m *TokenManager) Create(ctx context.Context, label string, perm models.Permission, validity time.Duration) (models.AccessToken, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return models.AccessToken{}, common.ErrInvalidLabel
	}
	if !slices.Contains(m.allowed, perm) {
		return models.AccessToken{}, fmt.Errorf("%w: %q", common.ErrUnknownPermission, perm)
	}
	if validity <= 0 {
		return models.AccessToken{}, fmt.Errorf("%w: %s", common.ErrInvalidDuration, validity)
	}

	var rec models.AccessToken
	err := m.store.Update(ctx, func(tokens []models.AccessToken) ([]models.AccessToken, error) {
		token, err := m.uniqueToken(ctx, tokens)
		if err != nil {
			return nil, err
		}
		now := timex.UTC(m.now())
		rec = models.AccessToken{
			Token:     token,
			Label:     label,
			Perm:      perm,
			ExpiresAt: now.Add(validity),
			CreatedAt: now,
			Active:    true,
		}
		return append(tokens, rec), nil
	})
	if err != nil {
		return models.AccessToken{}, err
	}

	m.logger.Info(ctx, "token created",
		"token", common.Fingerprint(rec.Token),
		"perm", perm.String(),
		"expires_at", rec.ExpiresAt.Format(time.RFC3339))
	return rec, nil
}

func (m *TokenManager) uniqueToken(ctx context.Context, existing []models.AccessToken) (string, error) {
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		token, err := m.newToken()
		if err != nil {
			return "", fmt.Errorf("generating token: %w", err)
		}
		if indexOf(existing, token) < 0 {
			return token, nil
		}
		m.logger.Warn(ctx, "generated token collides, retrying", "attempt", attempt)
	}
	return "", common.ErrDuplicateToken
}

// List returns every record in store order, revoked and expired ones included.
func (m *TokenManager) List(ctx context.Context) ([]models.AccessToken, error) {
	return m.store.Load(ctx)
}

// Get returns the record for token.
func (m *TokenManager) Get(ctx context.Context, token string) (models.AccessToken, error) {
	tokens, err := m.store.Load(ctx)
	if err != nil {
		return models.AccessToken{}, err
	}
	i := indexOf(tokens, token)
	if i < 0 {
		return models.AccessToken{}, common.ErrTokenNotFound
	}
	return tokens[i], nil
}

// Revoke deactivates token. Revoking a token that is already inactive
// succeeds without touching the store.
func (m *TokenManager) Revoke(ctx context.Context, token string) error {
	var revoked bool
	err := m.store.Update(ctx, func(tokens []models.AccessToken) ([]models.AccessToken, error) {
		revoked = false
		i := indexOf(tokens, token)
		if i < 0 {
			return nil, common.ErrTokenNotFound
		}
		if !tokens[i].Active {
			return nil, nil
		}
		tokens[i].Active = false
		revoked = true
		return tokens, nil
	})
	if err != nil {
		return err
	}

	if revoked {
		m.logger.Info(ctx, "token revoked", "token", common.Fingerprint(token))
	}
	return nil
}

// Extend moves the expiry of token forward by extra, counting from the
// current expiry rather than from now. A revoked token keeps its new expiry
// but stays revoked.
func (m *TokenManager) Extend(ctx context.Context, token string, extra time.Duration) (models.AccessToken, error) {
	if extra <= 0 {
		return models.AccessToken{}, fmt.Errorf("%w: %s", common.ErrInvalidDuration, extra)
	}

	var rec models.AccessToken
	err := m.store.Update(ctx, func(tokens []models.AccessToken) ([]models.AccessToken, error) {
		i := indexOf(tokens, token)
		if i < 0 {
			return nil, common.ErrTokenNotFound
		}
		next := tokens[i].ExpiresAt.UTC().Add(extra)
		if next.Year() > maxExpiryYear || next.Before(tokens[i].ExpiresAt) {
			return nil, fmt.Errorf("%w: expiry would pass year %d", common.ErrInvalidDuration, maxExpiryYear)
		}
		tokens[i].ExpiresAt = next
		rec = tokens[i]
		return tokens, nil
	})
	if err != nil {
		return models.AccessToken{}, err
	}

	if !rec.Active {
		m.logger.Warn(ctx, "extended a revoked token; it stays revoked", "token", common.Fingerprint(token))
	} else {
		m.logger.Info(ctx, "token extended",
			"token", common.Fingerprint(token),
			"expires_at", rec.ExpiresAt.Format(time.RFC3339))
	}
	return rec, nil
}

// IsClientError reports whether err is caused by bad administrative input
// or a missing token rather than by the store.
func IsClientError(err error) bool {
	return errors.Is(err, common.ErrTokenNotFound) ||
		errors.Is(err, common.ErrInvalidLabel) ||
		errors.Is(err, common.ErrUnknownPermission) ||
		errors.Is(err, common.ErrInvalidDuration)
}

func indexOf(tokens []models.AccessToken, token string) int {
	return slices.IndexFunc(tokens, func(t models.AccessToken) bool { return t.Token == token })
}
