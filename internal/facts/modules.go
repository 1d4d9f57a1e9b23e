package facts

import (
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Module type values inferred from path segments.
const (
	ModuleComponent = "component"
	ModulePage      = "page"
	ModuleStore     = "store"
	ModuleAPI       = "api"
	ModuleUtil      = "util"
	ModuleConfig    = "config"
	ModuleStyle     = "style"
	ModuleOther     = "other"
)

// ModuleInfo describes one tracked source module: its inferred role, what it
// exports, and the raw import specifiers it references.
type ModuleInfo struct {
	Path          string    `json:"path"`
	Type          string    `json:"type"`
	Exports       []string  `json:"exports"`
	DefaultExport string    `json:"defaultExport,omitempty"`
	Imports       []string  `json:"imports"`
	CreatedAt     time.Time `json:"createdAt"`
}

// MissingReference reports a module whose import resolves to a path that is
// neither a tracked module nor a known existing file.
type MissingReference struct {
	From       string `json:"from"`
	Missing    string `json:"missing"`
	ImportPath string `json:"importPath"`
}

var sourceExtensions = map[string]bool{
	".js":     true,
	".jsx":    true,
	".ts":     true,
	".tsx":    true,
	".mjs":    true,
	".cjs":    true,
	".vue":    true,
	".svelte": true,
}

// SourceFile reports whether the path carries a tracked source extension.
func SourceFile(p string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(p))]
}

var styleExtensions = map[string]bool{
	".css":  true,
	".scss": true,
	".sass": true,
	".less": true,
}

// inferModuleType classifies a module from its path segments.
func inferModuleType(p string) string {
	if styleExtensions[strings.ToLower(filepath.Ext(p))] {
		return ModuleStyle
	}
	base := strings.ToLower(filepath.Base(p))
	if strings.Contains(base, "config") || strings.HasPrefix(base, ".env") {
		return ModuleConfig
	}
	for _, segment := range strings.Split(filepath.ToSlash(strings.ToLower(p)), "/") {
		switch segment {
		case "components", "component":
			return ModuleComponent
		case "pages", "views", "app":
			return ModulePage
		case "store", "stores", "state":
			return ModuleStore
		case "api", "services":
			return ModuleAPI
		case "utils", "util", "lib", "helpers":
			return ModuleUtil
		}
	}
	return ModuleOther
}

var (
	esImportRe     = regexp.MustCompile(`(?m)^\s*import\s+(?:type\s+)?(?:[\w$]+|\*\s+as\s+[\w$]+|\{[^}]*\}|[\w$]+\s*,\s*\{[^}]*\})\s+from\s+['"]([^'"]+)['"]`)
	sideEffectRe   = regexp.MustCompile(`(?m)^\s*import\s+['"]([^'"]+)['"]`)
	requireRe      = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)
	namedExportRe  = regexp.MustCompile(`(?m)^\s*export\s+(?:async\s+)?(?:function|class|const|let|var|interface|type|enum)\s+([A-Za-z_$][\w$]*)`)
	exportBlockRe  = regexp.MustCompile(`(?m)^\s*export\s*\{([^}]*)\}`)
	defaultNamedRe = regexp.MustCompile(`(?m)^\s*export\s+default\s+(?:async\s+)?(?:function|class)?\s*([A-Za-z_$][\w$]*)?`)
)

// parseImports extracts the raw import specifiers from source text,
// covering ES imports, side-effect imports, and CommonJS require calls.
func parseImports(content string) []string {
	seen := make(map[string]bool)
	var imports []string
	for _, re := range []*regexp.Regexp{esImportRe, sideEffectRe, requireRe} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			if spec := m[1]; !seen[spec] {
				seen[spec] = true
				imports = append(imports, spec)
			}
		}
	}
	return imports
}

// parseExports extracts named exports and the default export name, if any.
func parseExports(content string) (exports []string, defaultExport string) {
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || name == "default" || seen[name] {
			return
		}
		seen[name] = true
		exports = append(exports, name)
	}

	for _, m := range namedExportRe.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	for _, m := range exportBlockRe.FindAllStringSubmatch(content, -1) {
		for _, entry := range strings.Split(m[1], ",") {
			// "foo as bar" exports bar
			if idx := strings.Index(entry, " as "); idx >= 0 {
				entry = entry[idx+4:]
			}
			add(entry)
		}
	}
	if m := defaultNamedRe.FindStringSubmatch(content); m != nil {
		defaultExport = strings.TrimSpace(m[1])
	}
	return exports, defaultExport
}

// RecordSourceFile parses a successfully written source file into a
// ModuleInfo and refreshes the forward and reverse dependency maps.
// Non-source paths are ignored.
func (s *Store) RecordSourceFile(p, content string) {
	if !SourceFile(p) {
		return
	}
	p = filepath.ToSlash(p)

	imports := parseImports(content)
	exports, defaultExport := parseExports(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := time.Now()
	if existing, ok := s.modules[p]; ok {
		createdAt = existing.CreatedAt
	}
	s.modules[p] = &ModuleInfo{
		Path:          p,
		Type:          inferModuleType(p),
		Exports:       exports,
		DefaultExport: defaultExport,
		Imports:       imports,
		CreatedAt:     createdAt,
	}
	s.existingFiles[p] = true
	delete(s.nonExistent, p)

	s.rebuildDependencyMapsLocked()
}

// Module returns the tracked module for path, or nil.
func (s *Store) Module(p string) *ModuleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modules[filepath.ToSlash(p)]
}

// ModulePaths returns the tracked module paths in sorted order.
func (s *Store) ModulePaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.modules))
	for p := range s.modules {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Dependents returns the tracked modules that import the given module path.
func (s *Store) Dependents(p string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reverseDeps[filepath.ToSlash(p)]...)
}

// rebuildDependencyMapsLocked recomputes forward and reverse dependency maps
// from the tracked modules. Callers must hold s.mu.
func (s *Store) rebuildDependencyMapsLocked() {
	s.deps = make(map[string][]string)
	s.reverseDeps = make(map[string][]string)
	for from, mod := range s.modules {
		for _, spec := range mod.Imports {
			resolved := resolveImport(from, spec)
			if resolved == "" {
				continue
			}
			target := s.resolveToKnownLocked(resolved)
			if target == "" {
				target = resolved
			}
			s.deps[from] = append(s.deps[from], target)
			s.reverseDeps[target] = append(s.reverseDeps[target], from)
		}
	}
	for _, m := range []map[string][]string{s.deps, s.reverseDeps} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
}

// resolveImport maps an import specifier to a project path. Relative specs
// resolve against the importing file's directory; the "@/" alias resolves to
// src/. Bare package specifiers resolve to "" (they name dependencies, not
// project modules).
func resolveImport(from, spec string) string {
	switch {
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"):
		return path.Clean(path.Join(path.Dir(filepath.ToSlash(from)), spec))
	case strings.HasPrefix(spec, "@/"):
		return path.Clean(path.Join("src", spec[2:]))
	}
	return ""
}

// candidatePaths lists the file paths an extensionless resolved import may
// refer to, applying the common extension and index-file substitutions.
func candidatePaths(resolved string) []string {
	if SourceFile(resolved) || styleExtensions[strings.ToLower(path.Ext(resolved))] {
		return []string{resolved}
	}
	exts := []string{".tsx", ".ts", ".jsx", ".js", ".vue", ".svelte"}
	candidates := make([]string, 0, len(exts)*2+1)
	for _, ext := range exts {
		candidates = append(candidates, resolved+ext)
	}
	for _, ext := range exts {
		candidates = append(candidates, resolved+"/index"+ext)
	}
	return candidates
}

// resolveToKnownLocked returns the first candidate path that is a tracked
// module or a confirmed-existing file, or "". Callers must hold s.mu.
func (s *Store) resolveToKnownLocked(resolved string) string {
	for _, candidate := range candidatePaths(resolved) {
		if _, ok := s.modules[candidate]; ok {
			return candidate
		}
		if s.existingFiles[candidate] {
			return candidate
		}
	}
	return ""
}

// ValidateModuleGraph checks every tracked module's resolved project imports
// and reports the ones that no tracked module, known file, or substitution
// candidate satisfies. The result feeds the phase-completion recovery check.
func (s *Store) ValidateModuleGraph() []MissingReference {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []MissingReference
	froms := make([]string, 0, len(s.modules))
	for from := range s.modules {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	for _, from := range froms {
		for _, spec := range s.modules[from].Imports {
			resolved := resolveImport(from, spec)
			if resolved == "" {
				continue
			}
			if s.resolveToKnownLocked(resolved) == "" {
				missing = append(missing, MissingReference{
					From:       from,
					Missing:    resolved,
					ImportPath: spec,
				})
			}
		}
	}
	return missing
}
