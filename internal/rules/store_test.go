package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-carbon-must-flow/internal/cache"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

type fakeRepo struct {
	rules     map[string]map[string]model.LearnedRule
	listCalls int
	mu        sync.Mutex
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rules: make(map[string]map[string]model.LearnedRule)}
}

func (r *fakeRepo) UpsertRule(_ context.Context, rule model.LearnedRule) (model.LearnedRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	org := r.rules[rule.OrganizationID]
	if org == nil {
		org = make(map[string]model.LearnedRule)
		r.rules[rule.OrganizationID] = org
	}
	if existing, ok := org[rule.MerchantKey]; ok {
		rule.ID = existing.ID
		rule.CreatedAt = existing.CreatedAt
	}
	org[rule.MerchantKey] = rule
	return rule, nil
}

func (r *fakeRepo) DeleteRule(_ context.Context, org, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rules[org], key)
	return nil
}

func (r *fakeRepo) ListRules(_ context.Context, org string) ([]model.LearnedRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	out := make([]model.LearnedRule, 0, len(r.rules[org]))
	for _, rule := range r.rules[org] {
		out = append(out, rule)
	}
	return out, nil
}

func (r *fakeRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

type recordingSweeper struct {
	err   error
	rules []model.LearnedRule
	block bool
	mu    sync.Mutex
}

func (s *recordingSweeper) Sweep(ctx context.Context, rule model.LearnedRule) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	s.mu.Lock()
	s.rules = append(s.rules, rule)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSweeper) swept() []model.LearnedRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LearnedRule(nil), s.rules...)
}

func TestStore_ReadAfterWrite(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := NewStore(repo)
	defer store.Close()

	// Prime the cache with an empty rule set.
	_, found, err := store.Find(ctx, "org-1", "Acme Consulting")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.Upsert(ctx, "org-1", "ACME Consulting SARL", model.CategoryPurchasedGoods, 0.9, "alice")
	require.NoError(t, err)

	rule, found, err := store.Find(ctx, "org-1", "acme consulting")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.CategoryPurchasedGoods, rule.Category)
	assert.InDelta(t, 0.9, rule.Confidence, 1e-9)

	// Overwrite the same key with a new category.
	_, err = store.Upsert(ctx, "org-1", "Acme Consulting", model.CategoryCapitalGoods, 0, "bob")
	require.NoError(t, err)

	rule, found, err = store.Find(ctx, "org-1", "ACME CONSULTING INVOICE 4471")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.CategoryCapitalGoods, rule.Category)
	assert.InDelta(t, model.DefaultRuleConfidence, rule.Confidence, 1e-9)

	list, err := store.List(ctx, "org-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_OrganizationsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newFakeRepo())
	defer store.Close()

	_, err := store.Upsert(ctx, "org-1", "Shell", model.CategoryFuel, 0.95, "")
	require.NoError(t, err)

	_, found, err := store.Find(ctx, "org-2", "Shell")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_FindTieBreak(t *testing.T) {
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	tests := []struct {
		name  string
		rules []model.LearnedRule
		text  string
		want  model.Category
	}{
		{
			name: "exact match beats longer substring",
			rules: []model.LearnedRule{
				{MerchantKey: "air", Category: model.CategoryPurchasedGoods},
				{MerchantKey: "air france klm", Category: model.CategoryBusinessTravel},
			},
			text: "Air",
			want: model.CategoryPurchasedGoods,
		},
		{
			name: "longest key wins",
			rules: []model.LearnedRule{
				{MerchantKey: "total", Category: model.CategoryFuel},
				{MerchantKey: "total energies electricite", Category: model.CategoryElectricity},
			},
			text: "PRLV TOTAL ENERGIES ELECTRICITE 0424",
			want: model.CategoryElectricity,
		},
		{
			name: "equal length prefers most recent",
			rules: []model.LearnedRule{
				{MerchantKey: "abcd", Category: model.CategoryFuel, UpdatedAt: older},
				{MerchantKey: "wxyz", Category: model.CategoryWaste, UpdatedAt: newer},
			},
			text: "abcd wxyz",
			want: model.CategoryWaste,
		},
		{
			name: "equal length and time prefers smaller key",
			rules: []model.LearnedRule{
				{MerchantKey: "wxyz", Category: model.CategoryWaste, UpdatedAt: older},
				{MerchantKey: "abcd", Category: model.CategoryFuel, UpdatedAt: older},
			},
			text: "wxyz abcd",
			want: model.CategoryFuel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				rule, ok := NewSnapshot(tt.rules).find(Normalize(tt.text))
				require.True(t, ok)
				assert.Equal(t, tt.want, rule.Category)
			}
		})
	}
}

func TestStore_CacheAndInvalidation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := NewStore(repo, WithCache(cache.NewMemory[*Snapshot](0)))
	defer store.Close()

	_, err := store.Upsert(ctx, "org-1", "Shell", model.CategoryFuel, 0.95, "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, found, err := store.Find(ctx, "org-1", "SHELL STATION 12")
		require.NoError(t, err)
		assert.True(t, found)
	}
	assert.Equal(t, 1, repo.calls(), "rules should be loaded once and served from cache")

	require.NoError(t, store.Delete(ctx, "org-1", "Shell"))

	_, found, err := store.Find(ctx, "org-1", "SHELL STATION 12")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 2, repo.calls())
}

// pausingRepo reads the rule list, then holds the first ListRules call
// until released, so a write can land between the read and the cache fill.
type pausingRepo struct {
	*fakeRepo
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *pausingRepo) ListRules(ctx context.Context, org string) ([]model.LearnedRule, error) {
	list, err := r.fakeRepo.ListRules(ctx, org)
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return list, err
}

func TestStore_WriteDuringLoadIsNotMasked(t *testing.T) {
	tests := []struct {
		name  string
		write func(*Store) error
		text  string
		want  bool
	}{
		{
			name: "upsert",
			write: func(s *Store) error {
				_, err := s.Upsert(context.Background(), "org-1", "ACME", model.CategoryFuel, 0.95, "")
				return err
			},
			text: "ACME",
			want: true,
		},
		{
			name:  "delete",
			write: func(s *Store) error { return s.Delete(context.Background(), "org-1", "Shell") },
			text:  "SHELL STATION",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			base := newFakeRepo()
			_, err := base.UpsertRule(ctx, model.LearnedRule{OrganizationID: "org-1", MerchantKey: "shell", Category: model.CategoryFuel})
			require.NoError(t, err)

			repo := &pausingRepo{fakeRepo: base, entered: make(chan struct{}), release: make(chan struct{})}
			store := NewStore(repo)
			defer store.Close()

			loaded := make(chan struct{})
			go func() {
				defer close(loaded)
				_, _, _ = store.Find(ctx, "org-1", "ANYTHING")
			}()

			<-repo.entered
			require.NoError(t, tt.write(store))
			close(repo.release)
			<-loaded

			_, found, err := store.Find(ctx, "org-1", tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, found)
		})
	}
}

func TestStore_CloseReleasesDefaultCache(t *testing.T) {
	store := NewStore(newFakeRepo())
	require.NotNil(t, store.owned)
	store.Close()

	select {
	case <-store.owned.Done():
	default:
		t.Fatal("default cache still running after Close")
	}

	injected := cache.NewMemory[*Snapshot](0)
	defer injected.Close()
	assert.Nil(t, NewStore(newFakeRepo(), WithCache(injected)).owned)
}

func TestStore_UpsertTriggersSweep(t *testing.T) {
	sweeper := &recordingSweeper{err: errors.New("storage offline")}
	store := NewStore(newFakeRepo(), WithSweeper(sweeper))

	stored, err := store.Upsert(context.Background(), "org-1", "EDF SA", model.CategoryElectricity, 0.95, "alice")
	require.NoError(t, err, "sweep failures must not surface to the caller")
	store.Wait()

	swept := sweeper.swept()
	require.Len(t, swept, 1)
	assert.Equal(t, "edf", swept[0].MerchantKey)
	assert.Equal(t, stored.ID, swept[0].ID)
	store.Close()
}

func TestStore_CloseCancelsSweep(t *testing.T) {
	store := NewStore(newFakeRepo(), WithSweeper(&recordingSweeper{block: true}))

	_, err := store.Upsert(context.Background(), "org-1", "Shell", model.CategoryFuel, 0.95, "")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		store.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the running sweep")
	}
}

func TestStore_UpsertValidation(t *testing.T) {
	store := NewStore(newFakeRepo())
	defer store.Close()
	ctx := context.Background()

	_, err := store.Upsert(ctx, "", "Shell", model.CategoryFuel, 0.9, "")
	assert.ErrorIs(t, err, ErrMissingOrganization)

	_, err = store.Upsert(ctx, "org-1", "!!!", model.CategoryFuel, 0.9, "")
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = store.Upsert(ctx, "org-1", "Shell", model.Category("rocket_fuel"), 0.9, "")
	assert.ErrorIs(t, err, common.ErrUnknownCategory)
}
