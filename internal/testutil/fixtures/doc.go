// Package fixtures builds subjects and emission factors for tests.
//
// Example usage:
//
//	subjects := fixtures.NewSubjectBuilder("org-1").
//		Spend("TOTAL STATION PARIS", -40).
//		WithCode("5541").
//		Spend("ACME CONSULTING", -1200).
//		Build()
//
//	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{
//		Factors:  fixtures.StandardCatalog(),
//		Subjects: subjects,
//	})
package fixtures
