// Package rules manages organization-scoped learned rules that map
// normalized merchant text to a category.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-carbon-must-flow/internal/cache"
	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// Rule store errors.
var (
	ErrEmptyKey            = errors.New("merchant text normalizes to an empty key")
	ErrMissingOrganization = errors.New("organization is required")
)

// Repository persists learned rules.
type Repository interface {
	// UpsertRule inserts or overwrites the rule for (organization, key) and
	// returns the stored row.
	UpsertRule(ctx context.Context, rule model.LearnedRule) (model.LearnedRule, error)
	DeleteRule(ctx context.Context, organizationID, key string) error
	ListRules(ctx context.Context, organizationID string) ([]model.LearnedRule, error)
}

// Sweeper reapplies a new rule to an organization's unclassified subjects.
type Sweeper interface {
	Sweep(ctx context.Context, rule model.LearnedRule) error
}

// Snapshot is the immutable per-organization rule set kept in the cache.
// It is replaced whole on invalidation, never modified.
type Snapshot struct {
	exact   map[string]model.LearnedRule
	ordered []model.LearnedRule // substring candidates, best first
}

// NewSnapshot indexes rules for lookup.
func NewSnapshot(rules []model.LearnedRule) *Snapshot {
	s := &Snapshot{
		exact:   make(map[string]model.LearnedRule, len(rules)),
		ordered: make([]model.LearnedRule, 0, len(rules)),
	}
	for _, r := range rules {
		if r.MerchantKey == "" {
			continue
		}
		s.exact[r.MerchantKey] = r
		s.ordered = append(s.ordered, r)
	}
	// Longest key wins; ties go to the most recently updated rule, then to
	// the lexicographically smaller key.
	sort.SliceStable(s.ordered, func(i, j int) bool {
		a, b := s.ordered[i], s.ordered[j]
		if len(a.MerchantKey) != len(b.MerchantKey) {
			return len(a.MerchantKey) > len(b.MerchantKey)
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.MerchantKey < b.MerchantKey
	})
	return s
}

func (s *Snapshot) find(key string) (model.LearnedRule, bool) {
	if r, ok := s.exact[key]; ok {
		return r, true
	}
	for _, r := range s.ordered {
		if strings.Contains(key, r.MerchantKey) {
			return r, true
		}
	}
	return model.LearnedRule{}, false
}

// Option configures a Store.
type Option func(*Store)

// WithSweeper sets the component that reapplies new rules in the background.
func WithSweeper(sw Sweeper) Option {
	return func(s *Store) { s.sweeper = sw }
}

// WithCacheTTL overrides how long an organization's rules stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithCache replaces the default in-memory snapshot cache. The caller
// keeps ownership of c.
func WithCache(c cache.Cache[*Snapshot]) Option {
	return func(s *Store) {
		s.cache = c
		s.owned = nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the learned rule store.
type Store struct {
	repo    Repository
	cache   cache.Cache[*Snapshot]
	owned   *cache.Memory[*Snapshot] // default cache, closed with the store
	sweeper Sweeper
	logger  *slog.Logger
	baseCtx context.Context
	cancel  context.CancelFunc
	now     func() time.Time
	ttl     time.Duration
	wg      sync.WaitGroup

	// gens counts invalidations per organization. A snapshot read under
	// an older generation is never cached.
	gens  map[string]uint64
	genMu sync.Mutex
}

// NewStore creates a rule store backed by repo.
func NewStore(repo Repository, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	mem := cache.NewMemory[*Snapshot](10 * time.Minute)
	s := &Store{
		repo:    repo,
		cache:   mem,
		owned:   mem,
		logger:  slog.Default(),
		baseCtx: ctx,
		cancel:  cancel,
		now:     time.Now,
		ttl:     24 * time.Hour,
		gens:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.owned == nil {
		mem.Close()
	}
	return s
}

func cacheKey(org string) string {
	return "rules:" + org
}

// Upsert stores a rule for the organization, replacing any rule with the
// same normalized key. The organization's cache is invalidated before
// Upsert returns; the reclassification sweep runs in the background.
func (s *Store) Upsert(ctx context.Context, org, merchantText string, category model.Category, confidence float64, createdBy string) (model.LearnedRule, error) {
	if org == "" {
		return model.LearnedRule{}, ErrMissingOrganization
	}
	if !category.Valid() {
		return model.LearnedRule{}, fmt.Errorf("%w: %q", common.ErrUnknownCategory, category)
	}
	key := Normalize(merchantText)
	if key == "" {
		return model.LearnedRule{}, ErrEmptyKey
	}
	if confidence <= 0 || confidence > 1 {
		confidence = model.DefaultRuleConfidence
	}

	now := s.now()
	rule := model.LearnedRule{
		ID:             uuid.NewString(),
		OrganizationID: org,
		MerchantKey:    key,
		Category:       category,
		Confidence:     confidence,
		CreatedBy:      createdBy,
		Source:         model.RuleSourceManual,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	stored, err := s.repo.UpsertRule(ctx, rule)
	if err != nil {
		return model.LearnedRule{}, fmt.Errorf("failed to save rule %q: %w", key, err)
	}
	s.invalidate(org)

	s.logger.Debug("Learned rule saved",
		"organization", org,
		"key", key,
		"category", category)

	s.startSweep(stored)
	return stored, nil
}

func (s *Store) startSweep(rule model.LearnedRule) {
	if s.sweeper == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sweeper.Sweep(s.baseCtx, rule); err != nil {
			s.logger.Warn("Reclassification sweep failed",
				"organization", rule.OrganizationID,
				"key", rule.MerchantKey,
				"error", err)
		}
	}()
}

// Find returns the rule matching text for the organization: an exact key
// match first, otherwise the best rule whose key is contained in the text.
func (s *Store) Find(ctx context.Context, org, text string) (model.LearnedRule, bool, error) {
	key := Normalize(text)
	if key == "" {
		return model.LearnedRule{}, false, nil
	}

	snap, err := s.load(ctx, org)
	if err != nil {
		return model.LearnedRule{}, false, err
	}
	rule, ok := snap.find(key)
	return rule, ok, nil
}

func (s *Store) load(ctx context.Context, org string) (*Snapshot, error) {
	if snap, ok := s.cache.Get(cacheKey(org)); ok {
		return snap, nil
	}

	s.genMu.Lock()
	gen := s.gens[org]
	s.genMu.Unlock()

	list, err := s.repo.ListRules(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for %s: %w", org, err)
	}
	snap := NewSnapshot(list)

	s.genMu.Lock()
	if s.gens[org] == gen {
		s.cache.Set(cacheKey(org), snap, s.ttl)
	}
	s.genMu.Unlock()
	return snap, nil
}

// invalidate drops the organization's snapshot and makes loads that
// started earlier discard theirs.
func (s *Store) invalidate(org string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.gens[org]++
	s.cache.Delete(cacheKey(org))
}

// Delete removes the rule with the given key. Subjects already classified
// by the rule keep their assignment.
func (s *Store) Delete(ctx context.Context, org, key string) error {
	normalized := Normalize(key)
	if normalized == "" {
		return ErrEmptyKey
	}
	if err := s.repo.DeleteRule(ctx, org, normalized); err != nil {
		return fmt.Errorf("failed to delete rule %q: %w", normalized, err)
	}
	s.invalidate(org)
	return nil
}

// List returns the organization's rules ordered by key.
func (s *Store) List(ctx context.Context, org string) ([]model.LearnedRule, error) {
	list, err := s.repo.ListRules(ctx, org)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules for %s: %w", org, err)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].MerchantKey < list[j].MerchantKey })
	return list, nil
}

// Wait blocks until all running sweeps finish.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Close cancels running sweeps, waits for them to stop and releases the
// default cache.
func (s *Store) Close() {
	s.cancel()
	s.wg.Wait()
	if s.owned != nil {
		s.owned.Close()
	}
}
