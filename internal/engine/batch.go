package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// BatchOptions configures ClassifyBatch.
type BatchOptions struct {
	// Writer persists each assignment; nil only collects them.
	Writer AssignmentWriter
	// Quantity returns the activity quantity used to compute an emission.
	// Nil skips factor matching.
	Quantity func(model.Subject) (float64, bool)
	// OnProgress is called once per finished subject.
	OnProgress func()
	Retry      common.RetryOptions
	Workers    int
}

// BatchFailure records a subject the batch could not finish.
type BatchFailure struct {
	Err       error
	SubjectID string
}

// BatchReport summarizes a batch run. Assignments are in input order and
// omit failed subjects. Pinned counts subjects whose stored assignment was
// pinned and kept.
type BatchReport struct {
	ByTier      map[model.Tier]int
	Assignments []model.Assignment
	Failures    []BatchFailure
	Total       int
	NeedsReview int
	Pinned      int
	Duration    time.Duration
}

// ClassifyBatch classifies subjects concurrently with at most opts.Workers
// in flight. One subject's failure never stops the others.
func (e *Engine) ClassifyBatch(ctx context.Context, subjects []model.Subject, opts BatchOptions) BatchReport {
	start := time.Now()
	workers := opts.Workers
	if workers <= 0 {
		workers = 5
	}

	type outcome struct {
		err        error
		assignment model.Assignment
	}
	results := make([]outcome, len(subjects))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, s := range subjects {
		g.Go(func() error {
			a, err := e.classifyOne(ctx, s, opts)
			results[i] = outcome{assignment: a, err: err}
			if opts.OnProgress != nil {
				opts.OnProgress()
			}
			return nil
		})
	}
	_ = g.Wait()

	report := BatchReport{
		Total:  len(subjects),
		ByTier: make(map[model.Tier]int),
	}
	for i, r := range results {
		if errors.Is(r.err, common.ErrPinned) {
			report.Pinned++
			continue
		}
		if r.err != nil {
			report.Failures = append(report.Failures, BatchFailure{SubjectID: subjects[i].ID, Err: r.err})
			continue
		}
		report.Assignments = append(report.Assignments, r.assignment)
		report.ByTier[r.assignment.Tier]++
		if r.assignment.NeedsReview {
			report.NeedsReview++
		}
	}
	report.Duration = time.Since(start)

	e.logger.Info("batch classification finished",
		"total", report.Total,
		"classified", len(report.Assignments),
		"failed", len(report.Failures),
		"needs_review", report.NeedsReview,
		"pinned", report.Pinned,
		"duration", report.Duration)
	return report
}

func (e *Engine) classifyOne(ctx context.Context, s model.Subject, opts BatchOptions) (model.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return model.Assignment{}, err
	}

	var a model.Assignment
	if qty, ok := quantityFor(opts, s); ok {
		q, err := e.Quantify(ctx, s, qty)
		if err != nil {
			return model.Assignment{}, err
		}
		a = q.Assignment
	} else {
		var err error
		if a, err = e.Classify(ctx, s); err != nil {
			return model.Assignment{}, err
		}
	}

	if opts.Writer != nil {
		err := common.WithRetry(ctx, func() error {
			return opts.Writer.SaveAssignment(ctx, a)
		}, opts.Retry)
		if err != nil {
			return a, fmt.Errorf("failed to save assignment: %w", err)
		}
	}
	return a, nil
}

func quantityFor(opts BatchOptions, s model.Subject) (float64, bool) {
	if opts.Quantity == nil {
		return 0, false
	}
	return opts.Quantity(s)
}

// SpendQuantity uses the absolute amount of outgoing payments as the
// activity quantity, for spend-based factors.
func SpendQuantity(s model.Subject) (float64, bool) {
	if !s.IsOutflow() {
		return 0, false
	}
	return -*s.Amount, true
}
