// Package events carries notifications about classification changes to
// downstream consumers.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// SubjectReclassified is published once per subject a rule sweep reassigns.
type SubjectReclassified struct {
	At             time.Time
	SubjectID      string
	OrganizationID string
	RuleID         string
	Category       model.Category
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev SubjectReclassified) error
}

// LogPublisher writes events to a structured log.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs at Info.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: common.LoggerOrDefault(logger)}
}

// Publish logs ev.
func (p *LogPublisher) Publish(ctx context.Context, ev SubjectReclassified) error {
	p.logger.InfoContext(ctx, "subject reclassified",
		"subject_id", ev.SubjectID,
		"organization_id", ev.OrganizationID,
		"rule_id", ev.RuleID,
		"category", ev.Category)
	return nil
}

// ChannelPublisher hands events to an in-process consumer.
type ChannelPublisher struct {
	ch chan SubjectReclassified
}

// NewChannelPublisher creates a publisher with the given buffer size.
func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan SubjectReclassified, buffer)}
}

// Events returns the receive side.
func (p *ChannelPublisher) Events() <-chan SubjectReclassified {
	return p.ch
}

// Publish blocks until the event is buffered or ctx is done.
func (p *ChannelPublisher) Publish(ctx context.Context, ev SubjectReclassified) error {
	select {
	case p.ch <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish canceled: %w", ctx.Err())
	}
}

// Multi fans an event out to several publishers and returns the first error.
type Multi []Publisher

// Publish sends ev to every publisher.
func (m Multi) Publish(ctx context.Context, ev SubjectReclassified) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
