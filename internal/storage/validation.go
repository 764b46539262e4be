package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-carbon-must-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrInvalidFactor     = errors.New("invalid emission factor")
	ErrInvalidRule       = errors.New("invalid learned rule")
	ErrInvalidAssignment = errors.New("invalid assignment")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateFactor(f model.EmissionFactor) error {
	switch {
	case strings.TrimSpace(f.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidFactor)
	case strings.TrimSpace(f.Name) == "":
		return fmt.Errorf("%w: %s: missing name", ErrInvalidFactor, f.ID)
	case strings.TrimSpace(f.Unit) == "":
		return fmt.Errorf("%w: %s: missing unit", ErrInvalidFactor, f.ID)
	case f.Category != "" && !f.Category.Valid():
		return fmt.Errorf("%w: %s: unknown category %q", ErrInvalidFactor, f.ID, f.Category)
	case f.KgCO2ePerUnit < 0:
		return fmt.Errorf("%w: %s: negative factor", ErrInvalidFactor, f.ID)
	}
	return nil
}

func validateRule(r model.LearnedRule) error {
	switch {
	case strings.TrimSpace(r.OrganizationID) == "":
		return fmt.Errorf("%w: missing organization", ErrInvalidRule)
	case strings.TrimSpace(r.MerchantKey) == "":
		return fmt.Errorf("%w: missing key", ErrInvalidRule)
	case !r.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRule, r.Category)
	}
	return nil
}

func validateAssignment(a model.Assignment) error {
	switch {
	case strings.TrimSpace(a.SubjectID) == "":
		return fmt.Errorf("%w: missing subject id", ErrInvalidAssignment)
	case !a.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidAssignment, a.Category)
	case a.Confidence < 0 || a.Confidence > 1:
		return fmt.Errorf("%w: confidence %.2f out of range", ErrInvalidAssignment, a.Confidence)
	}
	return nil
}
