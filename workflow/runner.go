package workflow

import (
	"context"
	"fmt"

	"github.com/auditecx/audit_backend/config"
	"github.com/auditecx/audit_backend/models"
	"github.com/auditecx/audit_backend/nlu"
	"github.com/auditecx/audit_backend/planner"
	"github.com/auditecx/audit_backend/summary"
	"github.com/sirupsen/logrus"
)

// SubmitOptions carries the per-request switches of a run.
type SubmitOptions struct {
	Email       string
	UserId      int
	DryRun      bool
	ConfirmSend bool
}

// Runner glues admission together: it parses the query, plans, registers
// the run's event stream and hands the job to the bounded pool. The
// stream is registered before the job is admitted, so a client can open
// the SSE endpoint immediately after Submit returns without racing the
// worker's first event.
type Runner struct {
	Registry      *Registry
	Pool          *Pool
	Orchestrator  *Orchestrator
	Notifications *NotificationLog
	Adapter       planner.Adapter
	Logger        *logrus.Logger
}

func NewRunner(registry *Registry, pool *Pool, orchestrator *Orchestrator, notifications *NotificationLog, adapter planner.Adapter, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Runner{
		Registry:      registry,
		Pool:          pool,
		Orchestrator:  orchestrator,
		Notifications: notifications,
		Adapter:       adapter,
		Logger:        logger,
	}
}

// Submit parses and plans the query, then queues the run. It returns the
// run id and parsed intent; execution happens on a pool worker.
func (r *Runner) Submit(query string, opts SubmitOptions) (string, nlu.ParsedIntent, error) {
	parsed := nlu.ParseIntent(query)

	plan, err := planner.PlanTasks(parsed, r.Adapter)
	if err != nil {
		// The adapter is advisory: planning falls back to the static
		// tables rather than failing admission.
		config.LogError(r.Logger, "runner.go", "Submit", "planner adapter failed, using static plan", parsed.Intent, err)
		plan = planner.StaticPlan(parsed.Intent)
	}

	runId := NewRunId()
	if _, err := models.CreateAuditRun(context.Background(), runId, opts.UserId, query, parsed.Intent); err != nil {
		return "", parsed, err
	}

	r.Registry.Register(runId)
	job := func(ctx context.Context) {
		r.execute(ctx, runId, parsed, plan, opts)
	}
	if err := r.Pool.Submit(job); err != nil {
		r.Registry.Close(runId)
		_ = models.UpdateAuditRunStatus(context.Background(), runId, models.RunStatusFailed, map[string]interface{}{"error_message": err.Error()})
		return "", parsed, err
	}
	return runId, parsed, nil
}

func (r *Runner) execute(ctx context.Context, runId string, parsed nlu.ParsedIntent, plan []planner.PlanStep, opts SubmitOptions) {
	defer r.Registry.Close(runId)

	_ = models.UpdateAuditRunStatus(ctx, runId, models.RunStatusRunning, nil)
	r.Registry.Publish(runId, "status", map[string]interface{}{"status": "running", "intent": parsed.Intent})

	sink := summary.SinkFunc(func(chunk string) {
		r.Registry.Publish(runId, "summary_chunk", map[string]interface{}{"text": chunk})
	})

	outcome, err := r.Orchestrator.Execute(ctx, ExecuteRequest{
		RunId:  runId,
		Intent: parsed,
		Plan:   plan,
		Sink:   sink,
		Events: func(event string, payload map[string]interface{}) {
			r.Registry.Publish(runId, event, payload)
		},
		DryRun:      opts.DryRun,
		ConfirmSend: opts.ConfirmSend,
	})
	if err != nil {
		config.LogError(r.Logger, "runner.go", "execute", "run failed", runId, err)
		r.Registry.SetResult(&RunResult{RunId: runId, Failed: true, ErrorMessage: err.Error()})
		r.Registry.Publish(runId, "error", map[string]interface{}{"message": err.Error()})
		_ = models.UpdateAuditRunStatus(ctx, runId, models.RunStatusFailed, map[string]interface{}{"error_message": err.Error()})
		if r.Notifications != nil {
			if _, nerr := r.Notifications.Append("run_failed", fmt.Sprintf("Audit run %s failed: %s", runId, err.Error())); nerr != nil {
				config.LogError(r.Logger, "runner.go", "execute", "writing failure notification", runId, nerr)
			}
		}
		return
	}

	r.Registry.SetResult(&RunResult{
		RunId:        runId,
		PackagePath:  outcome.PackagePath,
		ManifestPath: outcome.ManifestPath,
		SummaryText:  outcome.SummaryText,
	})
	if r.Notifications != nil {
		if _, nerr := r.Notifications.Append("run_complete", fmt.Sprintf("Audit run %s completed", runId)); nerr != nil {
			config.LogError(r.Logger, "runner.go", "execute", "writing completion notification", runId, nerr)
		}
	}
	r.Registry.Publish(runId, "complete", map[string]interface{}{
		"run_id":        runId,
		"package_path":  outcome.PackagePath,
		"manifest_path": outcome.ManifestPath,
		"email":         opts.Email,
	})
	_ = models.UpdateAuditRunStatus(ctx, runId, models.RunStatusCompleted, map[string]interface{}{
		"manifest_path": outcome.ManifestPath,
		"package_path":  outcome.PackagePath,
	})
}

// TriggerScheduled runs a canned packaging query for one vendor. The
// scheduler uses it as its fire callback.
func (r *Runner) TriggerScheduled(vendorId string) (string, error) {
	query := fmt.Sprintf("Prepare audit package for %s", vendorId)
	runId, _, err := r.Submit(query, SubmitOptions{})
	return runId, err
}
