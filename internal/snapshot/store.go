// Package snapshot persists pre-mutation file state so mutating steps can be
// rolled back. Snapshots are append-only, one JSON document per snapshot id,
// indexed per file path in arrival order, and reloaded at process start.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/foreman/internal/filelock"
)

// Operation is the kind of mutation a snapshot was captured for.
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// Snapshot captures one file's state around a single mutating operation.
// PreviousContent is nil for create operations (and for modify/delete of a
// file that did not exist yet). Content is updated to the post-operation
// on-disk state once the operation completes.
type Snapshot struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	FilePath        string    `json:"filePath"`
	Operation       Operation `json:"operation"`
	PreviousContent *string   `json:"previousContent,omitempty"`
	Content         string    `json:"content"`
}

// Result reports a rollback outcome. Rollback never errors out through the
// engine path; failures are carried in Message.
type Result struct {
	Success bool
	Message string
}

// Store is the on-disk snapshot store. Safe for concurrent use within the
// process; a flock guards the directory against a concurrently running CLI.
type Store struct {
	dir  string
	lock *filelock.FileLock

	mu     sync.Mutex
	byID   map[string]*Snapshot
	byPath map[string][]string // file path -> snapshot ids in arrival order
}

// NewStore opens (creating if needed) the snapshot directory and reloads
// the existing snapshots into the in-memory index.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	s := &Store{
		dir:    dir,
		lock:   filelock.NewFileLock(filepath.Join(dir, ".lock")),
		byID:   make(map[string]*Snapshot),
		byPath: make(map[string][]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads every persisted snapshot and rebuilds the per-path ordered
// history by capture timestamp.
func (s *Store) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var loaded []*Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read snapshot %s: %w", entry.Name(), err)
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			// A corrupt snapshot document should not brick the store.
			continue
		}
		if snap.ID == "" {
			continue
		}
		loaded = append(loaded, &snap)
	}

	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].Timestamp.Before(loaded[j].Timestamp)
	})
	for _, snap := range loaded {
		s.byID[snap.ID] = snap
		s.byPath[snap.FilePath] = append(s.byPath[snap.FilePath], snap.ID)
	}
	return nil
}

// Capture records the pre-mutation state of path for the given operation and
// persists the snapshot. For create operations no previous content is read;
// for modify/delete the current on-disk content is captured when present.
func (s *Store) Capture(path string, op Operation) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		FilePath:  path,
		Operation: op,
	}

	if op != OpCreate {
		if data, err := os.ReadFile(path); err == nil {
			content := string(data)
			snap.PreviousContent = &content
			snap.Content = content
		}
	}

	if err := s.persist(snap); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.byID[snap.ID] = snap
	s.byPath[snap.FilePath] = append(s.byPath[snap.FilePath], snap.ID)
	s.mu.Unlock()

	return snap, nil
}

// Finalize re-reads the snapshot's file from disk after the operation
// completed and updates the snapshot's content to the new state.
func (s *Store) Finalize(id string) error {
	s.mu.Lock()
	snap, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("snapshot %s not found", id)
	}

	content := ""
	if data, err := os.ReadFile(snap.FilePath); err == nil {
		content = string(data)
	}

	s.mu.Lock()
	snap.Content = content
	s.mu.Unlock()

	return s.persist(snap)
}

// Get returns the snapshot with the given id, or nil.
func (s *Store) Get(id string) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

// List returns all snapshots in capture order.
func (s *Store) List() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]*Snapshot, 0, len(s.byID))
	for _, snap := range s.byID {
		all = append(all, snap)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all
}

// Rollback restores the state captured by the snapshot with the given id.
// For create snapshots the file is deleted if present; otherwise the
// previous content is written back, creating parent directories as needed.
// All failures are reported in the result message, never as a Go error.
func (s *Store) Rollback(id string) Result {
	s.mu.Lock()
	snap, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return Result{Success: false, Message: fmt.Sprintf("snapshot %s not found", id)}
	}

	if snap.Operation == OpCreate {
		if err := os.Remove(snap.FilePath); err != nil && !os.IsNotExist(err) {
			return Result{Success: false, Message: fmt.Sprintf("failed to delete %s: %v", snap.FilePath, err)}
		}
		return Result{Success: true, Message: fmt.Sprintf("deleted %s (rollback of create)", snap.FilePath)}
	}

	if snap.PreviousContent == nil {
		// Modify/delete of a file that did not exist when captured.
		if err := os.Remove(snap.FilePath); err != nil && !os.IsNotExist(err) {
			return Result{Success: false, Message: fmt.Sprintf("failed to delete %s: %v", snap.FilePath, err)}
		}
		return Result{Success: true, Message: fmt.Sprintf("removed %s (no previous content)", snap.FilePath)}
	}

	if err := os.MkdirAll(filepath.Dir(snap.FilePath), 0755); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("failed to create parent directory for %s: %v", snap.FilePath, err)}
	}
	if err := os.WriteFile(snap.FilePath, []byte(*snap.PreviousContent), 0644); err != nil {
		return Result{Success: false, Message: fmt.Sprintf("failed to restore %s: %v", snap.FilePath, err)}
	}
	return Result{Success: true, Message: fmt.Sprintf("restored %s to snapshot %s", snap.FilePath, snap.ID)}
}

// RollbackFile rolls the path back to its most recently captured snapshot.
func (s *Store) RollbackFile(path string) Result {
	s.mu.Lock()
	ids := s.byPath[path]
	s.mu.Unlock()
	if len(ids) == 0 {
		return Result{Success: false, Message: fmt.Sprintf("no snapshots recorded for %s", path)}
	}
	return s.Rollback(ids[len(ids)-1])
}

// persist writes the snapshot document under the store directory, guarded
// by the store's file lock.
func (s *Store) persist(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", snap.ID, err)
	}

	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	target := filepath.Join(s.dir, snap.ID+".json")
	if err := filelock.AtomicWrite(target, data); err != nil {
		return fmt.Errorf("failed to persist snapshot %s: %w", snap.ID, err)
	}
	return nil
}
