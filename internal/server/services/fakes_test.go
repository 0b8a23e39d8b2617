package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pmfstudio/reportgate/internal/logging"
	"github.com/pmfstudio/reportgate/internal/server/models"
	"github.com/pmfstudio/reportgate/internal/server/repositories/accesstokens"
)

// memStore is an in-memory accesstokens.Store that counts saves and can be
// told to fail.
type memStore struct {
	mu      sync.Mutex
	tokens  []models.AccessToken
	saves   int
	loadErr error
	saveErr error
}

func (s *memStore) Load(ctx context.Context) ([]models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return append([]models.AccessToken(nil), s.tokens...), nil
}

func (s *memStore) Save(ctx context.Context, tokens []models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.tokens = append([]models.AccessToken(nil), tokens...)
	return nil
}

func (s *memStore) Update(ctx context.Context, fn accesstokens.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return s.loadErr
	}
	next, err := fn(append([]models.AccessToken(nil), s.tokens...))
	if err != nil || next == nil {
		return err
	}
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.tokens = append([]models.AccessToken(nil), next...)
	return nil
}

func (s *memStore) snapshot() []models.AccessToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AccessToken(nil), s.tokens...)
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

var t0 = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

// newTestManager returns a manager with its clock pinned to t0.
func newTestManager(t *testing.T, store *memStore) *TokenManager {
	t.Helper()
	m := NewTokenManager(store, nil, logging.Nop())
	m.now = func() time.Time { return t0 }
	return m
}

// sequenceTokens returns a generator that yields ids in order and then
// numbered tokens.
func sequenceTokens(ids ...string) func() (string, error) {
	var mu sync.Mutex
	n := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n <= len(ids) {
			return ids[n-1], nil
		}
		return fmt.Sprintf("tok-%d", n), nil
	}
}
