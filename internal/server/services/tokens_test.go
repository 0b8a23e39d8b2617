package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pmfstudio/reportgate/internal/common"
	"github.com/pmfstudio/reportgate/internal/logging"
	"github.com/pmfstudio/reportgate/internal/server/models"
	"github.com/pmfstudio/reportgate/internal/server/repositories/accesstokens"
	"github.com/pmfstudio/reportgate/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_Success(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)

	rec, err := m.Create(context.Background(), "  A사 홍길동 ", models.PermissionTrial, 30*timex.Day)
	require.NoError(t, err)

	assert.Len(t, rec.Token, 2*tokenBytes)
	assert.Equal(t, "A사 홍길동", rec.Label)
	assert.Equal(t, models.PermissionTrial, rec.Perm)
	assert.Equal(t, t0.Add(30*timex.Day), rec.ExpiresAt)
	assert.Equal(t, t0, rec.CreatedAt)
	assert.True(t, rec.Active)

	assert.Equal(t, []models.AccessToken{rec}, store.snapshot())
}

func TestCreate_NormalizesClockToUTCSeconds(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	seoul := time.FixedZone("KST", 9*3600)
	m.now = func() time.Time { return time.Date(2025, 3, 1, 18, 30, 0, 999, seoul) }

	rec, err := m.Create(context.Background(), "x", models.PermissionFull, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, rec.ExpiresAt.Location())
	assert.Equal(t, t0.Add(time.Hour), rec.ExpiresAt)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		perm     models.Permission
		validity time.Duration
		wantErr  error
	}{
		{"empty label", "", models.PermissionTrial, time.Hour, common.ErrInvalidLabel},
		{"blank label", "   ", models.PermissionTrial, time.Hour, common.ErrInvalidLabel},
		{"unknown perm", "a", models.Permission("admin"), time.Hour, common.ErrUnknownPermission},
		{"zero duration", "a", models.PermissionTrial, 0, common.ErrInvalidDuration},
		{"negative duration", "a", models.PermissionTrial, -time.Hour, common.ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			m := newTestManager(t, store)

			_, err := m.Create(context.Background(), tt.label, tt.perm, tt.validity)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsClientError(err))
			assert.Zero(t, store.saveCount(), "invalid input must not touch the store")
		})
	}
}

func TestCreate_RestrictedPermissions(t *testing.T) {
	store := &memStore{}
	m := NewTokenManager(store, []models.Permission{models.PermissionTrial}, logging.Nop())

	_, err := m.Create(context.Background(), "a", models.PermissionInternal, time.Hour)
	require.ErrorIs(t, err, common.ErrUnknownPermission)

	_, err = m.Create(context.Background(), "a", models.PermissionTrial, time.Hour)
	require.NoError(t, err)
}

func TestCreate_RetriesOnCollision(t *testing.T) {
	store := &memStore{tokens: []models.AccessToken{{Token: "dup", Label: "old", Perm: models.PermissionFull, ExpiresAt: t0, Active: true}}}
	m := newTestManager(t, store)
	m.newToken = sequenceTokens("dup", "dup", "fresh")

	rec, err := m.Create(context.Background(), "new", models.PermissionTrial, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "fresh", rec.Token)
	assert.Len(t, store.snapshot(), 2)
}

func TestCreate_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &memStore{tokens: []models.AccessToken{{Token: "dup", Label: "old", Perm: models.PermissionFull, ExpiresAt: t0, Active: true}}}
	m := newTestManager(t, store)
	calls := 0
	m.newToken = func() (string, error) {
		calls++
		return "dup", nil
	}

	_, err := m.Create(context.Background(), "new", models.PermissionTrial, time.Hour)
	require.ErrorIs(t, err, common.ErrDuplicateToken)
	assert.Equal(t, maxCreateAttempts, calls)
	assert.Zero(t, store.saveCount())
}

func TestCreate_GeneratorError(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	m.newToken = func() (string, error) { return "", errors.New("entropy exhausted") }

	_, err := m.Create(context.Background(), "a", models.PermissionTrial, time.Hour)
	require.ErrorContains(t, err, "entropy exhausted")
}

func TestCreate_StoreErrorsPropagate(t *testing.T) {
	t.Run("load", func(t *testing.T) {
		store := &memStore{loadErr: common.ErrStoreCorrupt}
		_, err := newTestManager(t, store).Create(context.Background(), "a", models.PermissionTrial, time.Hour)
		require.ErrorIs(t, err, common.ErrStoreCorrupt)
		assert.False(t, IsClientError(err))
	})
	t.Run("save", func(t *testing.T) {
		store := &memStore{saveErr: common.ErrStoreUnavailable}
		_, err := newTestManager(t, store).Create(context.Background(), "a", models.PermissionTrial, time.Hour)
		require.ErrorIs(t, err, common.ErrStoreUnavailable)
	})
}

func TestCreate_ConcurrentCallsProduceDistinctRecords(t *testing.T) {
	store := &memStore{}
	m := NewTokenManager(store, nil, logging.Nop())

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Create(context.Background(), fmt.Sprintf("holder %d", i), models.PermissionFull, time.Hour)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := store.snapshot()
	require.Len(t, got, n)
	seen := map[string]bool{}
	for _, rec := range got {
		assert.False(t, seen[rec.Token], "duplicate token %s", rec.Token)
		seen[rec.Token] = true
	}
}

func TestCreate_ConcurrentCollidingGeneratorsStillDistinct(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	// both creates draw "same" first; the second must retry.
	m.newToken = sequenceTokens("same", "same")

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Create(context.Background(), "a", models.PermissionTrial, time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got := store.snapshot()
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].Token, got[1].Token)
}

func TestList_KeepsInsertionOrder(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	m.newToken = sequenceTokens("c", "a", "b")

	for _, label := range []string{"first", "second", "third"} {
		_, err := m.Create(context.Background(), label, models.PermissionTrial, time.Hour)
		require.NoError(t, err)
	}
	require.NoError(t, m.Revoke(context.Background(), "a"))

	got, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{got[0].Token, got[1].Token, got[2].Token})
	assert.False(t, got[1].Active, "revoked records stay listed")
	assert.Equal(t, 4, store.saveCount(), "list must not save")
}

func TestGet(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	rec, err := m.Create(context.Background(), "a", models.PermissionFull, time.Hour)
	require.NoError(t, err)

	got, err := m.Get(context.Background(), rec.Token)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = m.Get(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrTokenNotFound)
}

func TestRevoke(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	rec, err := m.Create(context.Background(), "a", models.PermissionFull, time.Hour)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(context.Background(), rec.Token))
	got, _ := m.Get(context.Background(), rec.Token)
	assert.False(t, got.Active)
	assert.Equal(t, rec.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, 2, store.saveCount())
}

func TestRevoke_Idempotent(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	rec, err := m.Create(context.Background(), "a", models.PermissionFull, time.Hour)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(context.Background(), rec.Token))
	before := store.snapshot()
	saves := store.saveCount()

	require.NoError(t, m.Revoke(context.Background(), rec.Token))
	assert.Equal(t, before, store.snapshot())
	assert.Equal(t, saves, store.saveCount(), "second revoke must not save")
}

func TestRevoke_NotFound(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)

	err := m.Revoke(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrTokenNotFound)
	assert.True(t, IsClientError(err))
	assert.Zero(t, store.saveCount())
}

func TestExtend_FromCurrentExpiry(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	rec, err := m.Create(context.Background(), "a", models.PermissionTrial, 3*timex.Day)
	require.NoError(t, err)

	// a clock far in the future must not matter.
	m.now = func() time.Time { return t0.Add(365 * timex.Day) }

	got, err := m.Extend(context.Background(), rec.Token, 7*timex.Day)
	require.NoError(t, err)
	assert.Equal(t, rec.ExpiresAt.Add(7*timex.Day), got.ExpiresAt)
	assert.True(t, got.Active)

	stored, _ := m.Get(context.Background(), rec.Token)
	assert.Equal(t, got, stored)
}

func TestExtend_ExpiredTokenBecomesUsableAgain(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	v := NewAccessValidator(store, logging.Nop())
	ctx := context.Background()

	rec, err := m.Create(ctx, "a", models.PermissionTrial, 1*timex.Day)
	require.NoError(t, err)

	later := t0.Add(2 * timex.Day)
	verdict, err := v.Authorize(ctx, rec.Token, later)
	require.NoError(t, err)
	assert.Equal(t, models.DenyExpired, verdict.Reason)

	_, err = m.Extend(ctx, rec.Token, 7*timex.Day)
	require.NoError(t, err)

	verdict, err = v.Authorize(ctx, rec.Token, later)
	require.NoError(t, err)
	assert.True(t, verdict.Admitted)
}

func TestExtend_Errors(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	rec, err := m.Create(context.Background(), "a", models.PermissionTrial, time.Hour)
	require.NoError(t, err)

	_, err = m.Extend(context.Background(), "missing", time.Hour)
	require.ErrorIs(t, err, common.ErrTokenNotFound)

	_, err = m.Extend(context.Background(), rec.Token, 0)
	require.ErrorIs(t, err, common.ErrInvalidDuration)

	_, err = m.Extend(context.Background(), rec.Token, -time.Hour)
	require.ErrorIs(t, err, common.ErrInvalidDuration)

	got, _ := m.Get(context.Background(), rec.Token)
	assert.Equal(t, rec.ExpiresAt, got.ExpiresAt, "failed extends leave expiry alone")
}

func TestExtend_RevokedStaysRevoked(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	ctx := context.Background()

	rec, err := m.Create(ctx, "Y", models.PermissionFull, 30*timex.Day)
	require.NoError(t, err)
	require.NoError(t, m.Revoke(ctx, rec.Token))

	got, err := m.Extend(ctx, rec.Token, 7*timex.Day)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, rec.ExpiresAt.Add(7*timex.Day), got.ExpiresAt)
}

func TestMutations_NoLostUpdates(t *testing.T) {
	store := &memStore{}
	m := newTestManager(t, store)
	ctx := context.Background()

	const n = 16
	var recs []models.AccessToken
	for i := 0; i < n; i++ {
		rec, err := m.Create(ctx, fmt.Sprintf("h%d", i), models.PermissionTrial, time.Hour)
		require.NoError(t, err)
		recs = append(recs, rec)
	}

	var wg sync.WaitGroup
	for i, rec := range recs {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, m.Revoke(ctx, token))
			} else {
				_, err := m.Extend(ctx, token, time.Hour)
				assert.NoError(t, err)
			}
		}(i, rec.Token)
	}
	wg.Wait()

	got := store.snapshot()
	require.Len(t, got, n)
	for i, rec := range got {
		if i%2 == 0 {
			assert.False(t, rec.Active, "revoke of %s lost", rec.Label)
			assert.Equal(t, t0.Add(time.Hour), rec.ExpiresAt)
		} else {
			assert.True(t, rec.Active)
			assert.Equal(t, t0.Add(2*time.Hour), rec.ExpiresAt, "extend of %s lost", rec.Label)
		}
	}
}

// Every admin command builds its own manager over its own store handle, so
// the writer lock has to live in the store, not in the manager.
func TestCreate_IndependentManagersOnOneFileKeepEveryRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens_db.json")
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := NewTokenManager(accesstokens.NewFileStore(path), nil, logging.Nop())
			_, err := m.Create(ctx, fmt.Sprintf("writer-%d", i), models.PermissionTrial, time.Hour)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := accesstokens.NewFileStore(path).Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, n)
	seen := map[string]bool{}
	for _, rec := range got {
		seen[rec.Token] = true
	}
	assert.Len(t, seen, n)
}

func TestRevokeAndExtend_IndependentManagersOnOneFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens_db.json")
	ctx := context.Background()
	m := NewTokenManager(accesstokens.NewFileStore(path), nil, logging.Nop())

	var tokens []string
	for i := 0; i < 10; i++ {
		rec, err := m.Create(ctx, fmt.Sprintf("h%d", i), models.PermissionFull, time.Hour)
		require.NoError(t, err)
		tokens = append(tokens, rec.Token)
	}

	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			other := NewTokenManager(accesstokens.NewFileStore(path), nil, logging.Nop())
			if i%2 == 0 {
				assert.NoError(t, other.Revoke(ctx, token))
			} else {
				_, err := other.Extend(ctx, token, time.Hour)
				assert.NoError(t, err)
			}
		}(i, token)
	}
	wg.Wait()

	got, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(tokens))
	for i, rec := range got {
		if i%2 == 0 {
			assert.False(t, rec.Active, "revoke of %s lost", rec.Label)
		} else {
			assert.True(t, rec.Active)
			assert.Equal(t, rec.CreatedAt.Add(2*time.Hour), rec.ExpiresAt, "extend of %s lost", rec.Label)
		}
	}
}

func TestExtend_RejectsExpiryPastYear9999(t *testing.T) {
	far := time.Date(9990, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{tokens: []models.AccessToken{
		{Token: "x", Label: "a", Perm: models.PermissionInternal, ExpiresAt: far, Active: true},
	}}
	m := newTestManager(t, store)

	_, err := m.Extend(context.Background(), "x", time.Duration(timex.MaxDays)*timex.Day)
	require.ErrorIs(t, err, common.ErrInvalidDuration)
	assert.Zero(t, store.saveCount())
	assert.Equal(t, far, store.snapshot()[0].ExpiresAt)
}
