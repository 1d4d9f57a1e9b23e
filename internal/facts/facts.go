// Package facts maintains the structured project knowledge one task
// accumulates while it runs: which paths are confirmed to exist or be
// missing, directory listings, installed and missing packages, dev-server
// and build status, the module import graph, and an error log.
//
// Facts are corrected, never merely appended: each tool result overwrites
// whatever was previously believed about the paths it touched, so a path is
// never simultaneously confirmed existing and confirmed missing.
package facts

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harrison/foreman/internal/models"
)

// Build status values tracked for the target project.
const (
	BuildUnknown = "unknown"
	BuildSuccess = "success"
	BuildFailed  = "failed"
)

// ErrorRecord is one entry in the per-task error log.
type ErrorRecord struct {
	StepID    string    `json:"stepId"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Store holds the facts for a single task. It is owned by the task's run
// and discarded at task end; the mutex guards against observers (CLI,
// loggers) reading while the engine writes.
type Store struct {
	mu sync.Mutex

	existingFiles map[string]bool
	existingDirs  map[string]bool
	nonExistent   map[string]bool
	dirContents   map[string][]string

	installed   map[string]bool
	missingDeps map[string]bool

	devServerRunning bool
	runningPort      int
	buildStatus      string

	modules     map[string]*ModuleInfo
	deps        map[string][]string
	reverseDeps map[string][]string

	errors []ErrorRecord
}

// NewStore creates an empty fact store.
func NewStore() *Store {
	return &Store{
		existingFiles: make(map[string]bool),
		existingDirs:  make(map[string]bool),
		nonExistent:   make(map[string]bool),
		dirContents:   make(map[string][]string),
		installed:     make(map[string]bool),
		missingDeps:   make(map[string]bool),
		buildStatus:   BuildUnknown,
		modules:       make(map[string]*ModuleInfo),
		deps:          make(map[string][]string),
		reverseDeps:   make(map[string][]string),
	}
}

// MarkFileExists records path as a confirmed-existing file, clearing any
// previous confirmed-missing record.
func (s *Store) MarkFileExists(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path = filepath.ToSlash(path)
	s.existingFiles[path] = true
	delete(s.nonExistent, path)
}

// MarkDirectoryExists records path as a confirmed-existing directory.
func (s *Store) MarkDirectoryExists(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path = filepath.ToSlash(path)
	s.existingDirs[path] = true
	delete(s.nonExistent, path)
}

// MarkPathMissing records path as confirmed missing, clearing any previous
// confirmed-existing record.
func (s *Store) MarkPathMissing(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path = filepath.ToSlash(path)
	s.nonExistent[path] = true
	delete(s.existingFiles, path)
	delete(s.existingDirs, path)
}

// SetDirectoryContents records a directory listing and marks the directory
// existing.
func (s *Store) SetDirectoryContents(path string, entries []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path = filepath.ToSlash(path)
	s.dirContents[path] = append([]string(nil), entries...)
	s.existingDirs[path] = true
	delete(s.nonExistent, path)
}

// FileKnownExisting reports whether path is confirmed to exist as a file.
func (s *Store) FileKnownExisting(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existingFiles[filepath.ToSlash(path)]
}

// PathKnownMissing reports whether path is confirmed missing.
func (s *Store) PathKnownMissing(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonExistent[filepath.ToSlash(path)]
}

// MarkDependencyInstalled records a package as installed, clearing any
// missing record for it.
func (s *Store) MarkDependencyInstalled(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installed[name] = true
	delete(s.missingDeps, name)
}

// MarkDependencyMissing records a package as missing.
func (s *Store) MarkDependencyMissing(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missingDeps[name] = true
	delete(s.installed, name)
}

// DependencyKnownMissing reports whether the package is recorded missing.
func (s *Store) DependencyKnownMissing(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missingDeps[name]
}

// SetBuildStatus records the last observed build outcome.
func (s *Store) SetBuildStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buildStatus = status
}

// SetDevServer records that a dev server was started, with its port when
// one was parsed from the command output (0 when unknown).
func (s *Store) SetDevServer(running bool, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devServerRunning = running
	s.runningPort = port
}

// DevServer returns the recorded dev-server state.
func (s *Store) DevServer() (running bool, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devServerRunning, s.runningPort
}

// BuildStatus returns the last observed build outcome.
func (s *Store) BuildStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildStatus
}

// RecordError appends an entry to the task's error log.
func (s *Store) RecordError(stepID, errType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, ErrorRecord{
		StepID:    stepID,
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// Errors returns a copy of the error log in arrival order.
func (s *Store) Errors() []ErrorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ErrorRecord(nil), s.errors...)
}

var (
	notFoundRe   = regexp.MustCompile(`(?i)(does not exist|no such file|not found)`)
	installCmdRe = regexp.MustCompile(`^\s*(?:npm\s+(?:install|i|add)|yarn\s+add|pnpm\s+(?:install|add)|bun\s+(?:install|add))\s+(.+)$`)
	missingModRe = regexp.MustCompile(`Cannot find (?:module|package) '([^']+)'`)
	hostPortRe   = regexp.MustCompile(`(?:localhost|127\.0\.0\.1|0\.0\.0\.0):(\d{2,5})`)
	devCommandRe = regexp.MustCompile(`(?:^|\s)(?:dev|start)(?:\s|$)`)
	buildCmdRe   = regexp.MustCompile(`(?:^|\s)build(?:\s|$)`)
)

// RecordToolResult corrects the facts from one tool invocation outcome.
// success and errMsg come from the tool's result convention; output is the
// raw result map (may be nil).
func (s *Store) RecordToolResult(step *models.ExecutionStep, success bool, errMsg string, output map[string]any) {
	path := step.StringParam("path")

	switch step.Action {
	case models.ActionReadFile, models.ActionCreateFile, models.ActionApplyPatch:
		if path == "" {
			return
		}
		if success {
			s.MarkFileExists(path)
		} else if notFoundRe.MatchString(errMsg) {
			s.MarkPathMissing(path)
		}

	case models.ActionDeleteFile:
		if path == "" {
			return
		}
		if success {
			s.MarkPathMissing(path)
		}

	case models.ActionListDirectory:
		if path == "" {
			return
		}
		if success {
			if entries, ok := listEntries(output); ok {
				s.SetDirectoryContents(path, entries)
			} else {
				s.MarkDirectoryExists(path)
			}
		} else if notFoundRe.MatchString(errMsg) {
			s.MarkPathMissing(path)
		}

	case models.ActionRunCommand:
		s.recordCommandResult(step.StringParam("command"), success, errMsg, output)
	}
}

func (s *Store) recordCommandResult(command string, success bool, errMsg string, output map[string]any) {
	if m := installCmdRe.FindStringSubmatch(command); m != nil && success {
		for _, name := range strings.Fields(m[1]) {
			if strings.HasPrefix(name, "-") {
				continue
			}
			s.MarkDependencyInstalled(stripVersionSpec(name))
		}
	}

	for _, m := range missingModRe.FindAllStringSubmatch(errMsg, -1) {
		if !strings.HasPrefix(m[1], ".") {
			s.MarkDependencyMissing(m[1])
		}
	}

	if devCommandRe.MatchString(command) && success {
		port := 0
		if text, ok := outputText(output); ok {
			if m := hostPortRe.FindStringSubmatch(text); m != nil {
				port, _ = strconv.Atoi(m[1])
			}
		}
		s.SetDevServer(true, port)
	}

	if buildCmdRe.MatchString(command) {
		if success {
			s.SetBuildStatus(BuildSuccess)
		} else {
			s.SetBuildStatus(BuildFailed)
		}
	}
}

// stripVersionSpec drops an @version suffix from a package spec while
// preserving scoped package names like @scope/pkg.
func stripVersionSpec(name string) string {
	at := strings.LastIndex(name, "@")
	if at > 0 {
		return name[:at]
	}
	return name
}

func listEntries(output map[string]any) ([]string, bool) {
	if output == nil {
		return nil, false
	}
	raw, ok := output["entries"]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), true
	case []any:
		entries := make([]string, 0, len(v))
		for _, item := range v {
			if str, isStr := item.(string); isStr {
				entries = append(entries, str)
			}
		}
		return entries, true
	}
	return nil, false
}

func outputText(output map[string]any) (string, bool) {
	if output == nil {
		return "", false
	}
	for _, key := range []string{"output", "stdout", "text"} {
		if str, ok := output[key].(string); ok && str != "" {
			return str, true
		}
	}
	return "", false
}

// Summary is the JSON-serializable snapshot of the facts handed to the
// recovery capability.
type Summary struct {
	ExistingFiles       []string            `json:"existingFiles"`
	ExistingDirectories []string            `json:"existingDirectories"`
	NonExistentPaths    []string            `json:"nonExistentPaths"`
	DirectoryContents   map[string][]string `json:"directoryContents,omitempty"`
	InstalledPackages   []string            `json:"installedPackages"`
	MissingPackages     []string            `json:"missingPackages"`
	DevServerRunning    bool                `json:"devServerRunning"`
	RunningPort         int                 `json:"runningPort,omitempty"`
	BuildStatus         string              `json:"buildStatus"`
	Modules             []string            `json:"modules"`
	Errors              []ErrorRecord       `json:"errors,omitempty"`
}

// Snapshot returns a point-in-time summary of the facts.
func (s *Store) Snapshot() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := &Summary{
		ExistingFiles:       sortedKeys(s.existingFiles),
		ExistingDirectories: sortedKeys(s.existingDirs),
		NonExistentPaths:    sortedKeys(s.nonExistent),
		InstalledPackages:   sortedKeys(s.installed),
		MissingPackages:     sortedKeys(s.missingDeps),
		DevServerRunning:    s.devServerRunning,
		RunningPort:         s.runningPort,
		BuildStatus:         s.buildStatus,
		Errors:              append([]ErrorRecord(nil), s.errors...),
	}
	if len(s.dirContents) > 0 {
		summary.DirectoryContents = make(map[string][]string, len(s.dirContents))
		for dir, entries := range s.dirContents {
			summary.DirectoryContents[dir] = append([]string(nil), entries...)
		}
	}
	for path := range s.modules {
		summary.Modules = append(summary.Modules, path)
	}
	sort.Strings(summary.Modules)
	return summary
}

// Serialize renders the facts summary as JSON for recovery prompts.
func (s *Store) Serialize() json.RawMessage {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
