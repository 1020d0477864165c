package checks

import "testing"

func TestEvaluateFinalOutput(t *testing.T) {
	contains := Loaded{Frontmatter: Frontmatter{PassCriteria: PassCriteria{Kind: PassCriteriaContains, Value: "ok"}}}
	if err := EvaluateFinalOutput(contains, "all ok here"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
	if err := EvaluateFinalOutput(contains, "nope"); err == nil {
		t.Fatal("expected failure for missing substring")
	}

	notContains := Loaded{Frontmatter: Frontmatter{PassCriteria: PassCriteria{Kind: PassCriteriaNotContains, Value: "bad"}}}
	if err := EvaluateFinalOutput(notContains, "all good"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
	if err := EvaluateFinalOutput(notContains, "this is bad"); err == nil {
		t.Fatal("expected failure for forbidden substring present")
	}

	equals := Loaded{Frontmatter: Frontmatter{PassCriteria: PassCriteria{Kind: PassCriteriaEquals, Value: "exact"}}}
	if err := EvaluateFinalOutput(equals, "exact"); err != nil {
		t.Fatalf("expected pass, got %v", err)
	}
	if err := EvaluateFinalOutput(equals, "exact "); err == nil {
		t.Fatal("expected failure for non-exact match")
	}
}

func TestRunProducesReportTallies(t *testing.T) {
	checksList := []Loaded{
		{Name: "a", Required: true, Frontmatter: Frontmatter{PassCriteria: PassCriteria{Kind: PassCriteriaContains, Value: "ok"}}},
		{Name: "b", Required: false, Frontmatter: Frontmatter{PassCriteria: PassCriteria{Kind: PassCriteriaContains, Value: "missing"}}},
	}
	report := Run(checksList, "ok")
	if report.Passed != 1 || report.Failed != 1 {
		t.Fatalf("expected 1 passed, 1 failed; got passed=%d failed=%d", report.Passed, report.Failed)
	}
	// b fails but isn't required, so it shouldn't block a successful exit.
	if report.ExitCode() != ExitOk {
		t.Fatalf("expected ExitOk since the only failure is non-required, got %v", report.ExitCode())
	}

	checksList[1].Required = true
	report = Run(checksList, "ok")
	if report.ExitCode() != ExitFailedChecks {
		t.Fatalf("expected ExitFailedChecks once the failing check is required, got %v", report.ExitCode())
	}
}
