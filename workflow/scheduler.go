package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/auditecx/audit_backend/config"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const scheduleTimeLayout = "2006-01-02T15:04:05Z"

// catchUpLimit bounds how many periods a stale schedule advances in one
// evaluation, so a schedule that slept for years cannot spin the loop.
const catchUpLimit = 512

// Schedule describes a recurring audit run for one vendor.
type Schedule struct {
	Id        string `json:"id"`
	VendorId  string `json:"vendor_id"`
	Frequency string `json:"frequency"`
	StartAt   string `json:"start_at"`
	NextRunAt string `json:"next_run_at"`
	LastRunAt string `json:"last_run_at,omitempty"`
	LastRunId string `json:"last_run_id,omitempty"`
}

// ScheduleStore persists schedules as one JSON file, read-modify-written
// whole under a process lock.
type ScheduleStore struct {
	path string
	mu   sync.Mutex
}

func NewScheduleStore(path string) *ScheduleStore {
	return &ScheduleStore{path: path}
}

func (s *ScheduleStore) load() ([]Schedule, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Schedule{}, nil
		}
		return nil, err
	}
	var schedules []Schedule
	if err := json.Unmarshal(raw, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (s *ScheduleStore) save(schedules []Schedule) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(schedules, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

func validFrequency(frequency string) bool {
	switch frequency {
	case "daily", "weekly", "monthly":
		return true
	}
	return false
}

// Create registers a schedule. The first run fires at startAt; a zero
// startAt means one period from now.
func (s *ScheduleStore) Create(vendorId, frequency string, startAt time.Time) (Schedule, error) {
	if !validFrequency(frequency) {
		return Schedule{}, fmt.Errorf("unsupported frequency %q", frequency)
	}
	if startAt.IsZero() {
		startAt = advance(time.Now().UTC(), frequency)
	}
	startAt = startAt.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	schedules, err := s.load()
	if err != nil {
		return Schedule{}, err
	}
	schedule := Schedule{
		Id:        uuid.NewString(),
		VendorId:  vendorId,
		Frequency: frequency,
		StartAt:   startAt.Format(scheduleTimeLayout),
		NextRunAt: startAt.Format(scheduleTimeLayout),
	}
	schedules = append(schedules, schedule)
	if err := s.save(schedules); err != nil {
		return Schedule{}, err
	}
	return schedule, nil
}

func (s *ScheduleStore) List() ([]Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Delete removes the schedule with the given id; ok reports whether it
// existed.
func (s *ScheduleStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedules, err := s.load()
	if err != nil {
		return false, err
	}
	kept := schedules[:0]
	found := false
	for _, schedule := range schedules {
		if schedule.Id == id {
			found = true
			continue
		}
		kept = append(kept, schedule)
	}
	if !found {
		return false, nil
	}
	return true, s.save(kept)
}

// markFired records the completed trigger and advances next_run_at past
// now, catching up over missed periods.
func (s *ScheduleStore) markFired(id, runId string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedules, err := s.load()
	if err != nil {
		return err
	}
	for i := range schedules {
		if schedules[i].Id != id {
			continue
		}
		next, err := time.Parse(scheduleTimeLayout, schedules[i].NextRunAt)
		if err != nil {
			next = now
		}
		schedules[i].LastRunAt = now.UTC().Format(scheduleTimeLayout)
		schedules[i].LastRunId = runId
		schedules[i].NextRunAt = nextAfter(next, schedules[i].Frequency, now).Format(scheduleTimeLayout)
		break
	}
	return s.save(schedules)
}

// due returns the schedules whose next_run_at is at or before now.
func (s *ScheduleStore) due(now time.Time) ([]Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schedules, err := s.load()
	if err != nil {
		return nil, err
	}
	var fired []Schedule
	for _, schedule := range schedules {
		next, err := time.Parse(scheduleTimeLayout, schedule.NextRunAt)
		if err != nil {
			continue
		}
		if !next.After(now) {
			fired = append(fired, schedule)
		}
	}
	return fired, nil
}

// advance moves one period forward. Monthly advancement clamps to the
// last day of the target month (Jan 31 + monthly = Feb 28/29).
func advance(t time.Time, frequency string) time.Time {
	switch frequency {
	case "daily":
		return t.Add(24 * time.Hour)
	case "weekly":
		return t.Add(7 * 24 * time.Hour)
	case "monthly":
		return advanceMonth(t)
	}
	return t.Add(24 * time.Hour)
}

func advanceMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	firstOfNext := time.Date(year, month+1, 1, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}

// nextAfter advances from the last planned fire time until strictly
// after now, bounded by catchUpLimit periods.
func nextAfter(from time.Time, frequency string, now time.Time) time.Time {
	next := advance(from, frequency)
	for i := 0; i < catchUpLimit && !next.After(now); i++ {
		next = advance(next, frequency)
	}
	return next
}

// Scheduler polls the store and fires due schedules through the trigger
// callback. One fire per schedule per poll; catch-up happens by
// advancing next_run_at past now.
type Scheduler struct {
	Store         *ScheduleStore
	Notifications *NotificationLog
	Logger        *logrus.Logger

	// Trigger submits a scheduled audit run and returns its run id.
	Trigger func(vendorId string) (string, error)

	PollInterval time.Duration
}

func NewScheduler(store *ScheduleStore, notifications *NotificationLog, trigger func(string) (string, error), logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Scheduler{
		Store:         store,
		Notifications: notifications,
		Logger:        logger,
		Trigger:       trigger,
		PollInterval:  config.SchedulerPollInterval(),
	}
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Logger.WithField("interval", s.PollInterval.String()).Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler stopped")
			return
		case <-time.After(s.PollInterval):
			s.Poll(time.Now().UTC())
		}
	}
}

// Poll evaluates every due schedule once. Trigger failures are logged
// and the schedule is left untouched so the next poll retries it.
func (s *Scheduler) Poll(now time.Time) {
	due, err := s.Store.due(now)
	if err != nil {
		config.LogError(s.Logger, "scheduler.go", "Poll", "loading due schedules", "", err)
		return
	}
	for _, schedule := range due {
		runId, err := s.Trigger(schedule.VendorId)
		if err != nil {
			config.LogError(s.Logger, "scheduler.go", "Poll", "triggering schedule", schedule.Id, err)
			continue
		}
		if err := s.Store.markFired(schedule.Id, runId, now); err != nil {
			config.LogError(s.Logger, "scheduler.go", "Poll", "recording fired schedule", schedule.Id, err)
		}
		if s.Notifications != nil {
			message := fmt.Sprintf("Scheduled audit for %s started (run %s)", schedule.VendorId, runId)
			if _, err := s.Notifications.Append("scheduler_triggered", message); err != nil {
				config.LogError(s.Logger, "scheduler.go", "Poll", "writing notification", schedule.Id, err)
			}
		}
		s.Logger.WithFields(logrus.Fields{"schedule_id": schedule.Id, "vendor_id": schedule.VendorId, "run_id": runId}).Info("schedule fired")
	}
}
