package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MockMode keeps every external interaction deterministic: the planner and
// summary adapters return canned responses and no email is actually sent.
//
// Set via env:
// - MOCK_MODE=true (default true; only "false"/"0"/"no" disable it)
func MockMode() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("MOCK_MODE")))
	if v == "" {
		return true
	}
	return !(v == "0" || v == "false" || v == "no" || v == "n")
}

// DataRoot is the directory holding the mock datasets
// (journal_entries.csv, vendor_profiles.csv, files/).
func DataRoot() string {
	if v := strings.TrimSpace(os.Getenv("AUDIT_DATA_ROOT")); v != "" {
		return v
	}
	return "mock_data"
}

// OutputDir holds per-run working directories and finished packages.
func OutputDir() string {
	if v := strings.TrimSpace(os.Getenv("AUDIT_OUTPUT_DIR")); v != "" {
		return v
	}
	return "out"
}

// AuditLogDir holds the durable artifacts: run manifests, summary copies,
// notifications.json and schedules.json.
func AuditLogDir() string {
	if v := strings.TrimSpace(os.Getenv("AUDIT_LOG_DIR")); v != "" {
		return v
	}
	return "audit_logs"
}

// DocumentDirs lists the directories scanned for supporting documents.
// AUDIT_DOC_DIRS is a comma-separated list; default is <DataRoot>/files.
func DocumentDirs() []string {
	raw := strings.TrimSpace(os.Getenv("AUDIT_DOC_DIRS"))
	if raw == "" {
		return []string{filepath.Join(DataRoot(), "files")}
	}
	var dirs []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

// SchedulerPollInterval is how often the schedule log is scanned for due
// entries. The loop sleeps for the whole interval between polls.
func SchedulerPollInterval() time.Duration {
	if n := intFromEnv("SCHEDULER_POLL_SECONDS", 60); n > 0 {
		return time.Duration(n) * time.Second
	}
	return time.Minute
}

// RunWorkers bounds the number of concurrently executing audit runs.
func RunWorkers() int {
	if n := intFromEnv("RUN_WORKERS", 4); n > 0 {
		return n
	}
	return 4
}

// RunQueueDepth bounds how many admitted runs may wait for a worker.
func RunQueueDepth() int {
	if n := intFromEnv("RUN_QUEUE_DEPTH", 64); n > 0 {
		return n
	}
	return 64
}
