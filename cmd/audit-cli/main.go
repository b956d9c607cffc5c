// audit-cli runs one natural-language audit query end to end and prints
// the streamed summary to stdout. It never touches the database.
//
// Usage:
//
//	go run ./cmd/audit-cli "Prepare the audit package for VEND-100" [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/auditecx/audit_backend/config"
	"github.com/auditecx/audit_backend/nlu"
	"github.com/auditecx/audit_backend/planner"
	"github.com/auditecx/audit_backend/summary"
	"github.com/auditecx/audit_backend/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Execute without creating a package archive")
	logLevel := flag.String("log-level", "warning", "Logging level (debug, info, warning, error)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: audit-cli [flags] \"natural language query\"")
		os.Exit(2)
	}
	query := flag.Arg(0)

	logger := config.GetLogger()
	if level, err := logrus.ParseLevel(strings.ToLower(*logLevel)); err == nil {
		logger.SetLevel(level)
	}

	parsed := nlu.ParseIntent(query)
	plan, err := planner.PlanTasks(parsed, &planner.MockAdapter{})
	if err != nil {
		logger.WithField("intent", parsed.Intent).Warn("planner adapter failed, using static plan: " + err.Error())
		plan = planner.StaticPlan(parsed.Intent)
	}

	sink := summary.SinkFunc(func(chunk string) {
		if chunk == "" {
			return
		}
		if strings.HasSuffix(chunk, "\n") {
			fmt.Print(chunk)
		} else {
			fmt.Println(chunk)
		}
	})

	orchestrator := workflow.NewOrchestrator(logger)
	outcome, err := orchestrator.Execute(context.Background(), workflow.ExecuteRequest{
		Intent: parsed,
		Plan:   plan,
		Sink:   sink,
		DryRun: *dryRun,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n---")
	fmt.Printf("Run ID: %s\n", outcome.RunId)
	if outcome.PackagePath != "" {
		fmt.Printf("Package: %s\n", outcome.PackagePath)
	} else {
		fmt.Println("Package: (dry run, not generated)")
	}
	fmt.Printf("Manifest: %s\n", outcome.ManifestPath)
}
