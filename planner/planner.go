// Package planner turns a parsed intent into an ordered task plan.
// Plans come from a static per-intent table; an optional adapter (a mock
// LLM in this build) may propose a plan instead, and the fallback to the
// static table is an explicit decision made by the caller.
package planner

import (
	"github.com/auditecx/audit_backend/nlu"
)

// PlanStep names one task in a run plan. Task names the orchestrator does
// not recognize are skipped, so plans may reference future tasks.
type PlanStep struct {
	Step        int    `json:"step"`
	Task        string `json:"task"`
	Description string `json:"description"`
}

// Adapter proposes a plan for a parsed intent. Implementations may fail;
// callers decide whether to fall back to the deterministic table.
type Adapter interface {
	Plan(parsed nlu.ParsedIntent) ([]PlanStep, error)
}

var deterministicPlans = map[string][]PlanStep{
	"generate_package": {
		{Step: 1, Task: "doc.find_docs", Description: "Collect supporting documents"},
		{Step: 2, Task: "data.query_journal", Description: "Fetch ledger entries"},
		{Step: 3, Task: "match.reconcile", Description: "Reconcile documents and journal"},
		{Step: 4, Task: "summary.stream_summary", Description: "Draft auditor summary"},
		{Step: 5, Task: "notify.prepare_package", Description: "Prepare package and notifications"},
	},
	"send_package": {
		{Step: 1, Task: "package.ensure_ready", Description: "Ensure package exists"},
		{Step: 2, Task: "notify.send_package", Description: "Deliver package to recipient"},
	},
	"get_summary": {
		{Step: 1, Task: "summary.collect_metrics", Description: "Collect key metrics"},
		{Step: 2, Task: "summary.generate_markdown", Description: "Generate summary markdown"},
	},
	"download_package": {
		{Step: 1, Task: "package.locate", Description: "Locate existing package"},
		{Step: 2, Task: "package.prepare_download", Description: "Provide download link"},
	},
	"general_query": {
		{Step: 1, Task: "router.determine", Description: "Evaluate request details"},
	},
}

// StaticPlan returns a copy of the deterministic plan for an intent label,
// defaulting to the general_query plan for unknown intents.
func StaticPlan(intent string) []PlanStep {
	steps, ok := deterministicPlans[intent]
	if !ok {
		steps = deterministicPlans["general_query"]
	}
	out := make([]PlanStep, len(steps))
	copy(out, steps)
	return out
}

// PlanTasks asks the adapter for a plan when one is configured. The adapter
// error is returned to the caller rather than swallowed; StaticPlan is the
// documented fallback.
func PlanTasks(parsed nlu.ParsedIntent, adapter Adapter) ([]PlanStep, error) {
	if adapter == nil {
		return StaticPlan(parsed.Intent), nil
	}
	steps, err := adapter.Plan(parsed)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return StaticPlan(parsed.Intent), nil
	}
	return steps, nil
}
