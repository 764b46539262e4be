package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
)

// Subject is one activity record to classify: a bank line, an invoice line
// or a manual entry.
type Subject struct {
	Date           time.Time
	Amount         *float64 // signed; negative means money out
	ID             string
	OrganizationID string
	Description    string
	MerchantName   string
	MerchantCode   string // 3-4 digit merchant category code, optional
	Currency       string
	Unit           string // declared unit of quantity, optional
	Source         string // e.g. "ofx", "manual"
}

// Validate rejects subjects that can never be classified.
func (s Subject) Validate() error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return &common.InvalidSubjectError{SubjectID: s.ID, Reason: "missing id"}
	case strings.TrimSpace(s.OrganizationID) == "":
		return &common.InvalidSubjectError{SubjectID: s.ID, Reason: "missing organization"}
	case strings.TrimSpace(s.Description) == "" &&
		strings.TrimSpace(s.MerchantName) == "" &&
		strings.TrimSpace(s.MerchantCode) == "":
		return &common.InvalidSubjectError{SubjectID: s.ID, Reason: "no description, merchant or code"}
	}
	return nil
}

// Text returns the free text used for rule and pattern matching: the
// merchant name when present, followed by the description.
func (s Subject) Text() string {
	parts := make([]string, 0, 2)
	if m := strings.TrimSpace(s.MerchantName); m != "" {
		parts = append(parts, m)
	}
	if d := strings.TrimSpace(s.Description); d != "" && !strings.EqualFold(d, s.MerchantName) {
		parts = append(parts, d)
	}
	return strings.Join(parts, " ")
}

// IsOutflow reports whether the subject has a negative amount.
func (s Subject) IsOutflow() bool {
	return s.Amount != nil && *s.Amount < 0
}

// GenerateID derives a stable identifier for imported subjects.
func (s Subject) GenerateID() string {
	amount := 0.0
	if s.Amount != nil {
		amount = *s.Amount
	}
	data := fmt.Sprintf("%s:%s:%.2f:%s:%s",
		s.OrganizationID,
		s.Date.Format("2006-01-02"),
		amount,
		s.MerchantName,
		s.Description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16])
}

// Float returns a pointer to v. Handy for building subjects with amounts.
func Float(v float64) *float64 {
	return &v
}
