package fixtures

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// BaseDate is the date of the first subject a builder creates.
var BaseDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// SubjectBuilder creates subjects for one organization, one day apart,
// with sequential ids ("<org>-1", "<org>-2", ...).
type SubjectBuilder struct {
	org      string
	subjects []model.Subject
}

// NewSubjectBuilder starts a builder for org.
func NewSubjectBuilder(org string) *SubjectBuilder {
	return &SubjectBuilder{org: org}
}

// Spend adds a subject with a description and a signed amount in EUR.
func (b *SubjectBuilder) Spend(description string, amount float64) *SubjectBuilder {
	n := len(b.subjects)
	b.subjects = append(b.subjects, model.Subject{
		ID:             fmt.Sprintf("%s-%d", b.org, n+1),
		OrganizationID: b.org,
		Date:           BaseDate.AddDate(0, 0, n),
		Description:    description,
		Amount:         model.Float(amount),
		Currency:       "EUR",
		Source:         "fixture",
	})
	return b
}

// Merchant adds a subject identified by merchant name only.
func (b *SubjectBuilder) Merchant(name string, amount float64) *SubjectBuilder {
	b.Spend("", amount)
	b.last().MerchantName = name
	return b
}

// WithCode sets the merchant category code of the last subject.
func (b *SubjectBuilder) WithCode(code string) *SubjectBuilder {
	b.last().MerchantCode = code
	return b
}

// WithUnit sets the declared unit of the last subject.
func (b *SubjectBuilder) WithUnit(unit string) *SubjectBuilder {
	b.last().Unit = unit
	return b
}

// Build returns a copy of the subjects built so far.
func (b *SubjectBuilder) Build() []model.Subject {
	out := make([]model.Subject, len(b.subjects))
	copy(out, b.subjects)
	return out
}

func (b *SubjectBuilder) last() *model.Subject {
	if len(b.subjects) == 0 {
		panic("fixtures: no subject to modify; call Spend or Merchant first")
	}
	return &b.subjects[len(b.subjects)-1]
}
