package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/events"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
	"github.com/Veraticus/the-carbon-must-flow/internal/rules"
)

// Reclassifier applies a newly stored rule to the organization's
// unclassified subjects. It implements rules.Sweeper.
type Reclassifier struct {
	source    SubjectSource
	writer    AssignmentWriter
	publisher events.Publisher
	logger    *slog.Logger
	workers   int
}

var _ rules.Sweeper = (*Reclassifier)(nil)

// NewReclassifier creates a sweeper. A nil publisher logs events.
func NewReclassifier(source SubjectSource, writer AssignmentWriter, publisher events.Publisher, workers int, logger *slog.Logger) *Reclassifier {
	logger = common.LoggerOrDefault(logger)
	if publisher == nil {
		publisher = events.NewLogPublisher(logger)
	}
	if workers <= 0 {
		workers = 4
	}
	return &Reclassifier{
		source:    source,
		writer:    writer,
		publisher: publisher,
		logger:    logger,
		workers:   workers,
	}
}

// Sweep assigns rule's category to every unclassified subject whose
// normalized text contains the rule key, and publishes one event per
// subject. It stops at the first cancellation; write and publish errors
// for one subject are logged and the sweep continues.
func (r *Reclassifier) Sweep(ctx context.Context, rule model.LearnedRule) error {
	subjects, err := r.source.ListUnclassified(ctx, rule.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to list unclassified subjects: %w", err)
	}

	seen := make(map[string]struct{}, len(subjects))
	var matched []model.Subject
	for _, s := range subjects {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		if strings.Contains(rules.Normalize(s.Text()), rule.MerchantKey) {
			matched = append(matched, s)
		}
	}

	var updated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, s := range matched {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			a := model.NewAssignment(s.ID, rule.Category, model.TierLearnedRule, rule.Confidence,
				fmt.Sprintf("learned rule %q", rule.MerchantKey))
			a.ClassifiedBy = ClassifiedBy
			if err := r.writer.SaveAssignment(gctx, a); err != nil {
				if errors.Is(err, common.ErrPinned) {
					r.logger.Debug("subject pinned since listing", "subject_id", s.ID, "rule_id", rule.ID)
					return nil
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("failed to reclassify subject", "subject_id", s.ID, "rule_id", rule.ID, "error", err)
				return nil
			}

			ev := events.SubjectReclassified{
				At:             time.Now(),
				SubjectID:      s.ID,
				OrganizationID: rule.OrganizationID,
				RuleID:         rule.ID,
				Category:       rule.Category,
			}
			if err := r.publisher.Publish(gctx, ev); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("failed to publish reclassification", "subject_id", s.ID, "error", err)
			}
			updated.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("sweep interrupted: %w", err)
	}

	r.logger.Info("rule sweep finished",
		"organization_id", rule.OrganizationID,
		"rule_key", rule.MerchantKey,
		"candidates", len(subjects),
		"reclassified", updated.Load())
	return nil
}
