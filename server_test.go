package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/auditecx/audit_backend/workflow"
)

func TestValidRunId(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{workflow.NewRunId(), true},
		{"20250110093000-abcd", true},
		{"run_1", true},
		{"", false},
		{"..", false},
		{"../other", false},
		{"a/b", false},
		{"-leading-dash", false},
		{"run id", false},
	}
	for _, tc := range cases {
		if got := validRunId(tc.id); got != tc.valid {
			t.Fatalf("validRunId(%q) = %v, want %v", tc.id, got, tc.valid)
		}
	}
}

func TestRunManifest_RejectsTraversalOutsideOutputDir(t *testing.T) {
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	outputDir := filepath.Join(root, "out")
	if err := os.MkdirAll(filepath.Join(outputDir, "run1"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// A manifest one level above the output dir must stay unreachable.
	if err := os.WriteFile(filepath.Join(root, "manifest.json"), []byte(`{"run_id":"outside"}`), 0o644); err != nil {
		t.Fatalf("write outside manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, "run1", "manifest.json"), []byte(`{"run_id":"run1"}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	app := &api{outputDir: outputDir}
	r := gin.New()
	r.GET("/api/runs/:run_id/manifest", app.runManifest)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/../manifest", nil))
	if rec.Code == http.StatusOK || strings.Contains(rec.Body.String(), "outside") {
		t.Fatalf("traversal served: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run1/manifest", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "run1") {
		t.Fatalf("legitimate run id refused: %d %s", rec.Code, rec.Body.String())
	}
}
