package model

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-carbon-must-flow/internal/common"
)

// Category is the emission category a subject is assigned to.
type Category string

// Emission categories. CategoryExcluded marks activity that carries no emissions
// (salaries, taxes, internal transfers) and is never passed to factor resolution.
const (
	CategoryFuel                Category = "fuel"
	CategoryGas                 Category = "gas"
	CategoryElectricity         Category = "electricity"
	CategoryBusinessTravel      Category = "business_travel"
	CategoryPurchasedGoods      Category = "purchased_goods"
	CategoryCapitalGoods        Category = "capital_goods"
	CategoryUpstreamTransport   Category = "upstream_transport"
	CategoryDownstreamTransport Category = "downstream_transport"
	CategoryEmployeeCommuting   Category = "employee_commuting"
	CategoryWaste               Category = "waste"
	CategoryExcluded            Category = "excluded"
)

// Scope is a GHG protocol scope. ScopeNone is used for excluded activity.
type Scope int

// Scopes.
const (
	ScopeNone Scope = 0
	Scope1    Scope = 1
	Scope2    Scope = 2
	Scope3    Scope = 3
)

// String renders the scope the way reports print it.
func (s Scope) String() string {
	if s == ScopeNone {
		return "none"
	}
	return fmt.Sprintf("scope %d", int(s))
}

// CategoryInfo is the display metadata attached to a category.
type CategoryInfo struct {
	Name    string
	GHGCode string
	Scope   Scope
}

var categoryInfo = map[Category]CategoryInfo{
	CategoryFuel:                {Name: "Fuel combustion", GHGCode: "1.1", Scope: Scope1},
	CategoryGas:                 {Name: "Natural gas", GHGCode: "1.2", Scope: Scope1},
	CategoryElectricity:         {Name: "Electricity", GHGCode: "2.1", Scope: Scope2},
	CategoryPurchasedGoods:      {Name: "Purchased goods and services", GHGCode: "3.1", Scope: Scope3},
	CategoryCapitalGoods:        {Name: "Capital goods", GHGCode: "3.2", Scope: Scope3},
	CategoryUpstreamTransport:   {Name: "Upstream transportation", GHGCode: "3.4", Scope: Scope3},
	CategoryWaste:               {Name: "Waste generated in operations", GHGCode: "3.5", Scope: Scope3},
	CategoryBusinessTravel:      {Name: "Business travel", GHGCode: "3.6", Scope: Scope3},
	CategoryEmployeeCommuting:   {Name: "Employee commuting", GHGCode: "3.7", Scope: Scope3},
	CategoryDownstreamTransport: {Name: "Downstream transportation", GHGCode: "3.9", Scope: Scope3},
	CategoryExcluded:            {Name: "Excluded", GHGCode: "", Scope: ScopeNone},
}

// Info returns the display metadata of the category.
func (c Category) Info() CategoryInfo {
	return categoryInfo[c]
}

// Scope returns the GHG scope of the category.
func (c Category) Scope() Scope {
	return categoryInfo[c].Scope
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryInfo[c]
	return ok
}

// IsExcluded reports whether the category is the excluded marker.
func (c Category) IsExcluded() bool {
	return c == CategoryExcluded
}

func (c Category) String() string {
	return string(c)
}

// AllCategories returns every category ordered by GHG code, excluded last.
func AllCategories() []Category {
	return []Category{
		CategoryFuel,
		CategoryGas,
		CategoryElectricity,
		CategoryPurchasedGoods,
		CategoryCapitalGoods,
		CategoryUpstreamTransport,
		CategoryWaste,
		CategoryBusinessTravel,
		CategoryEmployeeCommuting,
		CategoryDownstreamTransport,
		CategoryExcluded,
	}
}

// ParseCategory accepts a category code ("business_travel") or a GHG
// protocol code ("3.6") and returns the matching category.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	if s == "" {
		return "", fmt.Errorf("%w: empty", common.ErrUnknownCategory)
	}

	if c := Category(s); c.Valid() {
		return c, nil
	}
	for c, info := range categoryInfo {
		if info.GHGCode != "" && info.GHGCode == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownCategory, s)
}
