package workflow

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/auditecx/audit_backend/config"
	"github.com/auditecx/audit_backend/dataset"
	"github.com/auditecx/audit_backend/nlu"
	"github.com/auditecx/audit_backend/packager"
	"github.com/auditecx/audit_backend/planner"
	"github.com/auditecx/audit_backend/reconcile"
	"github.com/auditecx/audit_backend/summary"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunContext is the mutable accumulator each task writes into. Its JSON
// form (minus the plan, which the manifest carries separately) is the
// durable record of what the run saw and produced.
type RunContext struct {
	RunId          string                   `json:"run_id"`
	Intent         nlu.ParsedIntent         `json:"intent"`
	Identifiers    []string                 `json:"identifiers"`
	Documents      []dataset.DocumentRecord `json:"documents,omitempty"`
	JournalEntries []dataset.LedgerEntry    `json:"journal_entries,omitempty"`
	Matches        []reconcile.MatchResult  `json:"matches,omitempty"`
	Anomalies      []reconcile.Anomaly      `json:"anomalies,omitempty"`
	SummaryText    string                   `json:"summary_text,omitempty"`
	PackagePath    string                   `json:"package_path,omitempty"`
}

// ExecuteRequest carries one run's inputs. Sink receives incremental
// summary text; Events receives progress events. Either may be nil.
type ExecuteRequest struct {
	RunId       string
	Intent      nlu.ParsedIntent
	Plan        []planner.PlanStep
	Sink        summary.Sink
	Events      func(event string, payload map[string]interface{})
	DryRun      bool
	ConfirmSend bool
}

// RunOutcome is what Execute returns on the success path.
type RunOutcome struct {
	RunId        string
	ManifestPath string
	PackagePath  string
	SummaryText  string
	Context      RunContext
}

// Orchestrator executes plans task by task, strictly in sequence. It does
// not recover from task faults: an error aborts the loop and propagates to
// the caller, which owns logging and user-facing surfacing.
type Orchestrator struct {
	Logger            *logrus.Logger
	JournalPath       string
	DocumentDirs      []string
	OutputDir         string
	AuditLogDir       string
	Packager          *packager.Packager
	SimulateStreaming bool
}

func NewOrchestrator(logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Orchestrator{
		Logger:            logger,
		JournalPath:       filepath.Join(config.DataRoot(), "journal_entries.csv"),
		DocumentDirs:      config.DocumentDirs(),
		OutputDir:         config.OutputDir(),
		AuditLogDir:       config.AuditLogDir(),
		Packager:          packager.New(config.OutputDir(), config.AuditLogDir(), logger),
		SimulateStreaming: config.MockMode(),
	}
}

// NewRunId builds a process-unique run identifier: a UTC timestamp plus a
// random suffix so pooled workers starting in the same second cannot
// collide.
func NewRunId() string {
	return time.Now().UTC().Format("20060102150405") + "-" + strings.Split(uuid.NewString(), "-")[0]
}

// Execute runs the plan and always writes the run manifest on the success
// path, dry-run included; only the packaging step is skipped under dry-run.
// Unknown task names are skipped so plans may reference tasks this build
// does not implement yet.
func (o *Orchestrator) Execute(ctx context.Context, req ExecuteRequest) (*RunOutcome, error) {
	runId := req.RunId
	if runId == "" {
		runId = NewRunId()
	}
	emit := req.Events
	if emit == nil {
		emit = func(string, map[string]interface{}) {}
	}

	o.Logger.WithFields(logrus.Fields{"run_id": runId, "intent": req.Intent.Intent}).Info("starting orchestration run")

	runCtx := RunContext{
		RunId:       runId,
		Intent:      req.Intent,
		Identifiers: req.Intent.Identifiers(),
	}
	var results []reconcile.MatchResult

	for _, step := range req.Plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.Logger.WithFields(logrus.Fields{"run_id": runId, "task": step.Task}).Debug("executing task")

		switch step.Task {
		case "doc.find_docs", "collect_documents":
			documents, err := dataset.FindDocs(runCtx.Identifiers, o.DocumentDirs)
			if err != nil {
				return nil, err
			}
			runCtx.Documents = documents
			emit("documents_ready", map[string]interface{}{"count": len(documents)})

		case "data.query_journal":
			rows, err := dataset.QueryJournal(o.JournalPath, runCtx.Identifiers)
			if err != nil {
				return nil, err
			}
			runCtx.JournalEntries = rows
			emit("journal_ready", map[string]interface{}{"count": len(rows)})

		case "match.reconcile":
			outcome := reconcile.Reconcile(runCtx.JournalEntries, runCtx.Documents)
			runCtx.Matches = outcome.Matches
			runCtx.Anomalies = outcome.Anomalies
			results = outcome.Results
			emit("anomalies_detected", map[string]interface{}{
				"matches":   len(outcome.Matches),
				"anomalies": len(outcome.Anomalies),
			})

		case "summary.stream_summary", "summary.generate":
			text := summary.Stream(summary.StreamContext{
				Documents:      runCtx.Documents,
				JournalEntries: runCtx.JournalEntries,
				Anomalies:      runCtx.Anomalies,
			}, req.Sink, o.SimulateStreaming)
			runCtx.SummaryText = text
			emit("summary_ready", map[string]interface{}{"chars": len(text)})

		case "notify.prepare_package", "package.ensure_ready":
			if req.DryRun {
				o.Logger.WithField("run_id", runId).Info("dry run active, skipping package preparation")
				continue
			}
			bundle := summary.Generate(resultsOrMatches(results, runCtx.Matches))
			artifacts, err := o.Packager.CreatePackage(runId, bundle, runCtx.Matches)
			if err != nil {
				return nil, err
			}
			runCtx.PackagePath = artifacts.PackagePath
			emit("package_ready", map[string]interface{}{"path": artifacts.PackagePath})

		default:
			o.Logger.WithFields(logrus.Fields{"run_id": runId, "task": step.Task}).Debug("no handler for task; skipping")
		}
	}

	manifestPath, err := o.writeManifest(runId, req, runCtx)
	if err != nil {
		return nil, err
	}
	emit("manifest_written", map[string]interface{}{"path": manifestPath})

	return &RunOutcome{
		RunId:        runId,
		ManifestPath: manifestPath,
		PackagePath:  runCtx.PackagePath,
		SummaryText:  runCtx.SummaryText,
		Context:      runCtx,
	}, nil
}

// writeManifest records the full run context. It is the single source of
// truth for run outcome inspection after a restart; the in-memory registry
// is not reconciled against it.
func (o *Orchestrator) writeManifest(runId string, req ExecuteRequest, runCtx RunContext) (string, error) {
	runDir := filepath.Join(o.OutputDir, runId)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	manifest := map[string]interface{}{
		"run_id":       runId,
		"intent":       req.Intent,
		"plan":         req.Plan,
		"context":      runCtx,
		"dry_run":      req.DryRun,
		"confirm_send": req.ConfirmSend,
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}

	manifestPath := filepath.Join(runDir, "manifest.json")
	if err := os.WriteFile(manifestPath, raw, 0o644); err != nil {
		return "", err
	}
	o.Logger.WithFields(logrus.Fields{"run_id": runId, "path": manifestPath}).Info("manifest written")
	return manifestPath, nil
}

func resultsOrMatches(results, matches []reconcile.MatchResult) []reconcile.MatchResult {
	if len(results) > 0 {
		return results
	}
	return matches
}
