package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// ErrReviewQuit is returned when the user stops the review.
var ErrReviewQuit = errors.New("review stopped")

// Decision is the user's verdict on one assignment.
type Decision int

// Review decisions.
const (
	DecisionAccept Decision = iota
	DecisionChange
	DecisionSkip
)

// ReviewResult is the outcome of reviewing one assignment. Category is the
// confirmed or corrected category; it is empty when skipped.
type ReviewResult struct {
	Category model.Category
	Decision Decision
}

// ReviewStats counts decisions over a session.
type ReviewStats struct {
	StartTime time.Time
	Accepted  int
	Changed   int
	Skipped   int
}

// Reviewer walks the user through assignments that need review.
type Reviewer struct {
	writer io.Writer
	reader *NonBlockingReader
	recent []model.Category
	stats  ReviewStats
	mu     sync.Mutex
}

// NewReviewer creates a reviewer reading answers from r and writing to w.
func NewReviewer(r io.Reader, w io.Writer) *Reviewer {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &Reviewer{
		reader: NewNonBlockingReader(r),
		writer: w,
		stats:  ReviewStats{StartTime: time.Now()},
	}
}

// Review shows one subject with its assignment and asks the user to accept
// it, change the category or skip it. Quitting returns ErrReviewQuit.
func (r *Reviewer) Review(ctx context.Context, s model.Subject, a model.Assignment) (ReviewResult, error) {
	if err := RenderAssignment(r.writer, s, a); err != nil {
		return ReviewResult{}, fmt.Errorf("failed to show assignment: %w", err)
	}

	choice, err := r.promptChoice(ctx, "[a]ccept, [c]hange, [s]kip, [q]uit", []string{"a", "c", "s", "q", ""})
	if err != nil {
		return ReviewResult{}, err
	}

	switch choice {
	case "a", "":
		r.record(DecisionAccept, a.Category)
		return ReviewResult{Decision: DecisionAccept, Category: a.Category}, nil
	case "s":
		r.record(DecisionSkip, "")
		return ReviewResult{Decision: DecisionSkip}, nil
	case "q":
		return ReviewResult{}, ErrReviewQuit
	}

	category, err := r.promptCategory(ctx)
	if err != nil {
		return ReviewResult{}, err
	}
	r.record(DecisionChange, category)
	return ReviewResult{Decision: DecisionChange, Category: category}, nil
}

func (r *Reviewer) record(d Decision, category model.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch d {
	case DecisionAccept:
		r.stats.Accepted++
	case DecisionChange:
		r.stats.Changed++
	case DecisionSkip:
		r.stats.Skipped++
		return
	}
	r.recent = append([]model.Category{category}, r.recent...)
	if len(r.recent) > 5 {
		r.recent = r.recent[:5]
	}
}

func (r *Reviewer) promptChoice(ctx context.Context, prompt string, valid []string) (string, error) {
	for {
		if _, err := fmt.Fprint(r.writer, FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}
		input, err := r.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrReviewQuit
			}
			return "", err
		}

		choice := strings.ToLower(input)
		for _, v := range valid {
			if choice == v {
				return choice, nil
			}
		}
		if _, err := fmt.Fprintln(r.writer, FormatError("Invalid choice. Please try again.")); err != nil {
			slog.Warn("Failed to write error message", "error", err)
		}
	}
}

func (r *Reviewer) promptCategory(ctx context.Context) (model.Category, error) {
	var b strings.Builder
	for _, c := range model.AllCategories() {
		fmt.Fprintf(&b, "  %-4s %-22s %s\n", c.Info().GHGCode, c, SubtleStyle.Render(c.Info().Name))
	}
	r.mu.Lock()
	if len(r.recent) > 0 {
		names := make([]string, len(r.recent))
		for i, c := range r.recent {
			names[i] = string(c)
		}
		fmt.Fprintf(&b, "\nRecent: %s\n", strings.Join(names, ", "))
	}
	r.mu.Unlock()
	if _, err := fmt.Fprint(r.writer, b.String()); err != nil {
		return "", fmt.Errorf("failed to list categories: %w", err)
	}

	for {
		if _, err := fmt.Fprint(r.writer, FormatPrompt("Category (code or GHG code)")); err != nil {
			return "", fmt.Errorf("failed to write category prompt: %w", err)
		}
		input, err := r.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", ErrReviewQuit
			}
			return "", err
		}
		category, err := model.ParseCategory(input)
		if err == nil {
			return category, nil
		}
		if _, werr := fmt.Fprintln(r.writer, FormatError(err.Error())); werr != nil {
			slog.Warn("Failed to write category error", "error", werr)
		}
	}
}

// Stats returns the decisions made so far.
func (r *Reviewer) Stats() ReviewStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// ShowCompletion prints the session summary.
func (r *Reviewer) ShowCompletion() {
	stats := r.Stats()
	summary := fmt.Sprintf("  • Accepted: %d\n  • Changed: %d\n  • Skipped: %d\n  • Time taken: %s",
		stats.Accepted, stats.Changed, stats.Skipped, time.Since(stats.StartTime).Round(time.Second))
	if _, err := fmt.Fprintln(r.writer, RenderBox("Review complete", summary)); err != nil {
		slog.Warn("Failed to write completion box", "error", err)
	}
}
