package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/auditecx/audit_backend/config"
	"github.com/auditecx/audit_backend/metrics"
	"github.com/auditecx/audit_backend/middlewares"
	"github.com/auditecx/audit_backend/models"
	"github.com/auditecx/audit_backend/planner"
	"github.com/auditecx/audit_backend/policy"
	"github.com/auditecx/audit_backend/utils"
	"github.com/auditecx/audit_backend/workflow"
)

const defaultPort = "8080"

// Run ids are timestamp-plus-suffix tokens; anything else in a path
// parameter is rejected before it reaches the filesystem.
var runIdPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

func validRunId(id string) bool {
	return runIdPattern.MatchString(id)
}

type api struct {
	logger        *logrus.Logger
	runner        *workflow.Runner
	registry      *workflow.Registry
	notifications *workflow.NotificationLog
	schedules     *workflow.ScheduleStore
	outputDir     string
}

func main() {
	// Local development convenience; the file is absent in deployment.
	_ = godotenv.Load()

	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	registry := workflow.NewRegistry()
	pool := workflow.NewPool(config.RunWorkers(), config.RunQueueDepth(), logger)
	notifications := workflow.NewNotificationLog(filepath.Join(config.AuditLogDir(), "notifications.json"))
	schedules := workflow.NewScheduleStore(filepath.Join(config.AuditLogDir(), "schedules.json"))
	orchestrator := workflow.NewOrchestrator(logger)
	runner := workflow.NewRunner(registry, pool, orchestrator, notifications, &planner.MockAdapter{}, logger)

	app := &api{
		logger:        logger,
		runner:        runner,
		registry:      registry,
		notifications: notifications,
		schedules:     schedules,
		outputDir:     config.OutputDir(),
	}

	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(middlewares.AuthMiddleware())
	r.Use(errorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/auth/register", app.register)
	r.POST("/api/auth/login", app.login)

	protected := r.Group("/api", middlewares.RequireAuth())
	protected.POST("/nl_query", app.nlQuery)
	protected.GET("/stream/:run_id", app.stream)
	protected.GET("/download/:run_id", app.download)
	protected.POST("/confirm_send", app.confirmSend)
	protected.GET("/notifications", app.listNotifications)
	protected.POST("/notifications/ack", app.ackNotifications)
	protected.POST("/scheduler", app.createSchedule)
	protected.GET("/scheduler", app.listSchedules)
	protected.DELETE("/scheduler/:id", app.deleteSchedule)
	protected.GET("/vendor_risk", app.vendorRisk)
	protected.POST("/policy_check", app.policyCheck)
	protected.GET("/runs", app.listRuns)
	protected.GET("/runs/:run_id/manifest", app.runManifest)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db != nil {
		sqlDB, _ := db.DB()
		defer func() {
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		}()
		if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
			if err := models.MigrateDatabase(); err != nil {
				logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
			}
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
	}

	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	defer cancelScheduler()
	go workflow.NewScheduler(schedules, notifications, runner.TriggerScheduled, logger).Run(schedulerCtx)

	logger.WithFields(logrus.Fields{"port": port}).Info("audit backend listening")
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers before draining requests.
	cancelScheduler()
	pool.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}

func (a *api) register(c *gin.Context) {
	var input models.NewUser
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := models.CreateUser(c.Request.Context(), input)
	if errors.Is(err, utils.ErrorDatabaseUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user store unavailable"})
		return
	}
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "could not create user"})
		return
	}
	token, err := utils.JwtGenerate(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": user})
}

func (a *api) login(c *gin.Context) {
	var input models.Login
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := models.AuthenticateUser(c.Request.Context(), input)
	if errors.Is(err, utils.ErrorDatabaseUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user store unavailable"})
		return
	}
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, err := utils.JwtGenerate(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

type nlQueryInput struct {
	Query       string `json:"query" binding:"required"`
	Email       string `json:"email"`
	DryRun      bool   `json:"dry_run"`
	ConfirmSend bool   `json:"confirm_send"`
}

func (a *api) nlQuery(c *gin.Context) {
	var input nlQueryInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userId := 0
	if claims := middlewares.CtxValue(c.Request.Context()); claims != nil {
		userId = claims.ID
	}

	runId, parsed, err := a.runner.Submit(input.Query, workflow.SubmitOptions{
		Email:       input.Email,
		UserId:      userId,
		DryRun:      input.DryRun,
		ConfirmSend: input.ConfirmSend,
	})
	if err != nil {
		if errors.Is(err, workflow.ErrPoolSaturated) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many concurrent runs; retry shortly"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	models.RecordActivity(c.Request.Context(), userId, runId, "nl_query", input.Query)

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":     runId,
		"intent":     parsed.Intent,
		"stream_url": "/api/stream/" + runId,
	})
}

// stream replays the run's event queue as SSE. Events published before
// the client attached are buffered, so attaching after Submit never
// loses the start of the run.
func (a *api) stream(c *gin.Context) {
	runId := c.Param("run_id")
	s, ok := a.registry.Subscribe(runId)
	if !ok {
		// The run may have already finished; serve its terminal snapshot.
		if result, done := a.registry.Result(runId); done {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.SSEvent("result", result)
			c.SSEvent("end", gin.H{"run_id": runId})
			c.Writer.Flush()
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	for {
		event, ok := s.Next()
		if !ok {
			break
		}
		c.SSEvent(event.Event, event.Payload)
		c.Writer.Flush()
	}
	c.SSEvent("end", gin.H{"run_id": runId})
	c.Writer.Flush()
}

func (a *api) download(c *gin.Context) {
	runId := c.Param("run_id")
	if !validRunId(runId) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	packagePath := ""
	if result, ok := a.registry.Result(runId); ok && !result.Failed {
		packagePath = result.PackagePath
	}
	if packagePath == "" {
		// After a restart the registry is empty; fall back to the disk
		// layout the packager uses.
		candidate := filepath.Join(a.outputDir, "package_"+runId+".zip")
		if _, err := os.Stat(candidate); err == nil {
			packagePath = candidate
		}
	}
	if packagePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no package for run"})
		return
	}
	if _, err := os.Stat(packagePath); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "package file missing"})
		return
	}
	c.FileAttachment(packagePath, filepath.Base(packagePath))
}

type confirmSendInput struct {
	RunId string `json:"run_id" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// confirmSend performs the mock delivery: no mail leaves the process, the
// send is recorded as a notification and an activity row.
func (a *api) confirmSend(c *gin.Context) {
	var input confirmSendInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, ok := a.registry.Result(input.RunId)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown run"})
		return
	}
	if result.Failed || result.PackagePath == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "run has no package to send"})
		return
	}

	message := fmt.Sprintf("Audit package for run %s sent to %s", input.RunId, input.Email)
	if _, err := a.notifications.Append("package_sent", message); err != nil {
		config.LogError(a.logger, "server.go", "confirmSend", "writing notification", input.RunId, err)
	}
	userId := 0
	if claims := middlewares.CtxValue(c.Request.Context()); claims != nil {
		userId = claims.ID
	}
	models.RecordActivity(c.Request.Context(), userId, input.RunId, "confirm_send", input.Email)

	c.JSON(http.StatusOK, gin.H{"status": "sent", "run_id": input.RunId, "email": input.Email})
}

func (a *api) listNotifications(c *gin.Context) {
	entries, err := a.notifications.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": entries})
}

type ackInput struct {
	Ids []string `json:"ids" binding:"required"`
}

func (a *api) ackNotifications(c *gin.Context) {
	var input ackInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	changed, err := a.notifications.Ack(input.Ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": changed})
}

type scheduleInput struct {
	VendorId  string `json:"vendor_id" binding:"required"`
	Frequency string `json:"frequency" binding:"required,oneof=daily weekly monthly"`
	StartAt   string `json:"start_at"`
}

func (a *api) createSchedule(c *gin.Context) {
	var input scheduleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var startAt time.Time
	if input.StartAt != "" {
		parsed, err := time.Parse(time.RFC3339, input.StartAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_at must be RFC3339"})
			return
		}
		startAt = parsed
	}
	schedule, err := a.schedules.Create(input.VendorId, input.Frequency, startAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, schedule)
}

func (a *api) listSchedules(c *gin.Context) {
	schedules, err := a.schedules.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

func (a *api) deleteSchedule(c *gin.Context) {
	ok, err := a.schedules.Delete(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown schedule"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) vendorRisk(c *gin.Context) {
	builder := metrics.Builder{
		VendorProfilesPath: filepath.Join(config.DataRoot(), "vendor_profiles.csv"),
		JournalPath:        filepath.Join(config.DataRoot(), "journal_entries.csv"),
		AuditLogDir:        config.AuditLogDir(),
	}
	results, err := builder.Build()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vendors": results})
}

func (a *api) policyCheck(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var controls []string
	if selected := strings.TrimSpace(c.PostForm("controls")); selected != "" {
		controls = splitAndTrim(selected)
	}

	report := policy.AnalyzeText(fileHeader.Filename, string(raw), controls)
	c.JSON(http.StatusOK, report)
}

func (a *api) listRuns(c *gin.Context) {
	runs, err := models.ListAuditRuns(c.Request.Context(), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (a *api) runManifest(c *gin.Context) {
	runId := c.Param("run_id")
	if !validRunId(runId) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	raw, err := os.ReadFile(filepath.Join(a.outputDir, runId, "manifest.json"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no manifest for run"})
		return
	}
	var manifest json.RawMessage = raw
	c.JSON(http.StatusOK, manifest)
}

// errorLogger logs only requests that accumulated gin errors.
func errorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(raw string) []string {
	var parts []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
