package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/auditecx/audit_backend/utils"
	"github.com/google/uuid"
)

// Notification is one entry of the append-only notification log.
type Notification struct {
	Id        string `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read"`
}

// NotificationLog persists notifications as a single JSON file with
// whole-file read-modify-write under a process lock. Concurrent writers
// from other processes are not supported.
type NotificationLog struct {
	path string
	mu   sync.Mutex
}

func NewNotificationLog(path string) *NotificationLog {
	return &NotificationLog{path: path}
}

// load tolerates both the bare-array shape and the older wrapped
// {"notifications": [...]} shape.
func (l *NotificationLog) load() ([]Notification, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Notification{}, nil
		}
		return nil, err
	}

	var entries []Notification
	if err := json.Unmarshal(raw, &entries); err == nil {
		return entries, nil
	}
	var wrapped struct {
		Notifications []Notification `json:"notifications"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Notifications, nil
}

func (l *NotificationLog) save(entries []Notification) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(l.path, raw, 0o644)
}

// Append records a new unread notification and returns it.
func (l *NotificationLog) Append(notificationType, message string) (Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return Notification{}, err
	}
	entry := Notification{
		Id:        uuid.NewString(),
		Type:      notificationType,
		Message:   message,
		Timestamp: utils.TimestampUTC(),
	}
	entries = append(entries, entry)
	if err := l.save(entries); err != nil {
		return Notification{}, err
	}
	return entry, nil
}

// List returns all notifications, unread first is not guaranteed; the
// order is append order.
func (l *NotificationLog) List() ([]Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load()
}

// Ack marks the given ids read and returns how many entries changed.
// Unknown ids are ignored.
func (l *NotificationLog) Ack(ids []string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.load()
	if err != nil {
		return 0, err
	}
	wanted := map[string]bool{}
	for _, id := range ids {
		wanted[id] = true
	}
	changed := 0
	for i := range entries {
		if wanted[entries[i].Id] && !entries[i].Read {
			entries[i].Read = true
			changed++
		}
	}
	if changed > 0 {
		if err := l.save(entries); err != nil {
			return 0, err
		}
	}
	return changed, nil
}
