package workflow

import (
	"path/filepath"
	"testing"
	"time"
)

func mustParseSchedule(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(scheduleTimeLayout, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestScheduleStore_CreateListDelete(t *testing.T) {
	store := NewScheduleStore(filepath.Join(t.TempDir(), "schedules.json"))

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	created, err := store.Create("VEND-100", "weekly", start)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.NextRunAt != "2025-03-01T09:00:00Z" {
		t.Fatalf("next_run_at = %s", created.NextRunAt)
	}

	schedules, err := store.List()
	if err != nil || len(schedules) != 1 {
		t.Fatalf("List = %v, err = %v", schedules, err)
	}

	ok, err := store.Delete(created.Id)
	if err != nil || !ok {
		t.Fatalf("Delete = %v, err = %v", ok, err)
	}
	ok, err = store.Delete(created.Id)
	if err != nil || ok {
		t.Fatalf("second Delete should report not found, got %v, err = %v", ok, err)
	}
}

func TestScheduleStore_RejectsUnknownFrequency(t *testing.T) {
	store := NewScheduleStore(filepath.Join(t.TempDir(), "schedules.json"))
	if _, err := store.Create("VEND-100", "hourly", time.Now()); err == nil {
		t.Fatalf("expected error for unsupported frequency")
	}
}

func TestAdvanceMonth_ClampsToShortMonths(t *testing.T) {
	jan31 := time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC)
	feb := advanceMonth(jan31)
	if feb.Month() != time.February || feb.Day() != 28 {
		t.Fatalf("advanceMonth(Jan 31) = %v", feb)
	}
	// Leap year clamps to the 29th.
	jan31leap := time.Date(2024, 1, 31, 8, 0, 0, 0, time.UTC)
	if got := advanceMonth(jan31leap); got.Day() != 29 {
		t.Fatalf("advanceMonth(leap Jan 31) = %v", got)
	}
}

func TestNextAfter_CatchesUpOverMissedPeriods(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)
	next := nextAfter(from, "daily", now)
	if !next.After(now) {
		t.Fatalf("next = %v, not after now %v", next, now)
	}
	if next.Day() != 21 {
		t.Fatalf("next = %v, want Jan 21", next)
	}
}

func TestScheduler_PollFiresDueSchedule(t *testing.T) {
	dir := t.TempDir()
	store := NewScheduleStore(filepath.Join(dir, "schedules.json"))
	notifications := NewNotificationLog(filepath.Join(dir, "notifications.json"))

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	created, err := store.Create("VEND-100", "daily", start)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var triggered []string
	scheduler := NewScheduler(store, notifications, func(vendorId string) (string, error) {
		triggered = append(triggered, vendorId)
		return "run-xyz", nil
	}, testLogger())

	now := start.Add(time.Hour)
	scheduler.Poll(now)

	if len(triggered) != 1 || triggered[0] != "VEND-100" {
		t.Fatalf("triggered = %v", triggered)
	}

	schedules, err := store.List()
	if err != nil || len(schedules) != 1 {
		t.Fatalf("List = %v, err = %v", schedules, err)
	}
	updated := schedules[0]
	if updated.LastRunId != "run-xyz" {
		t.Fatalf("last_run_id = %s", updated.LastRunId)
	}
	next := mustParseSchedule(t, updated.NextRunAt)
	if !next.After(now) {
		t.Fatalf("next_run_at %v not advanced past %v", next, now)
	}

	entries, err := notifications.List()
	if err != nil || len(entries) != 1 || entries[0].Type != "scheduler_triggered" {
		t.Fatalf("notifications = %v, err = %v", entries, err)
	}

	// Same poll time again: nothing is due anymore.
	scheduler.Poll(now)
	if len(triggered) != 1 {
		t.Fatalf("schedule fired twice for one period: %v", triggered)
	}
	_ = created
}

func TestScheduler_TriggerFailureLeavesScheduleDue(t *testing.T) {
	dir := t.TempDir()
	store := NewScheduleStore(filepath.Join(dir, "schedules.json"))

	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	if _, err := store.Create("VEND-200", "daily", start); err != nil {
		t.Fatalf("Create: %v", err)
	}

	calls := 0
	scheduler := NewScheduler(store, nil, func(vendorId string) (string, error) {
		calls++
		return "", ErrPoolSaturated
	}, testLogger())

	now := start.Add(time.Hour)
	scheduler.Poll(now)
	scheduler.Poll(now)
	if calls != 2 {
		t.Fatalf("failed trigger should be retried on the next poll, calls = %d", calls)
	}
}
