package planner

import (
	"github.com/auditecx/audit_backend/nlu"
)

// MockAdapter stands in for an LLM-backed planner. It is deterministic:
// it returns the static table's plan, so mock-mode runs behave identically
// whether or not the adapter path is exercised.
type MockAdapter struct {
	// Err, when set, simulates an adapter outage. Used to test the
	// explicit-fallback policy at call sites.
	Err error
}

func (m MockAdapter) Plan(parsed nlu.ParsedIntent) ([]PlanStep, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return StaticPlan(parsed.Intent), nil
}
