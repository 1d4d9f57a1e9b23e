// Package tool defines the MCP-style tool client contract and the registry
// mapping logical tool names to client instances. The concrete adapters
// (filesystem, shell, browser) live outside this engine; the executor only
// relies on the call contract here.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Info describes one tool exposed by a client.
type Info struct {
	Name        string
	Description string
}

// Client is the call contract for an MCP tool server. The result is an
// arbitrary tagged object, but by convention exposes "success" (bool) and
// "error" (string).
type Client interface {
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
	ListTools(ctx context.Context) ([]Info, error)
}

// Registry maps logical tool names to registered clients. It is owned by a
// single engine instance, never process-wide.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register associates a logical tool name with a client, replacing any
// previous registration.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
}

// Lookup returns the client registered under name. Calling an unregistered
// tool is a contract violation, reported as an error.
func (r *Registry) Lookup(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("no client registered for tool %q", name)
	}
	return client, nil
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResultSuccess reads the conventional "success" tag from a tool result.
// A result without the tag is treated as successful.
func ResultSuccess(result map[string]any) bool {
	if result == nil {
		return true
	}
	if success, ok := result["success"].(bool); ok {
		return success
	}
	return true
}

// ResultError reads the conventional "error" tag from a tool result.
func ResultError(result map[string]any) string {
	if result == nil {
		return ""
	}
	if msg, ok := result["error"].(string); ok {
		return msg
	}
	return ""
}
