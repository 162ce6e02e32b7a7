// Package executor defines the named-strategy contract that the retry
// controller drives, and the two concrete implementations: HTTP forwarding
// and simulated shell sessions.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pitabwire/relaygate/model"
)

// Executor is a named operation taking an envelope and a cancellation
// signal, producing an execution result. Implementations must not panic
// for recognized failure modes and must honor ctx by returning a transient
// Timeout result promptly.
type Executor interface {
	Name() string
	Execute(ctx context.Context, env *model.RequestEnvelope, attempt int) *model.ExecutionResult
}

// Registry is a case-insensitive, boot-populated lookup of executors by
// name, mirroring the dynamic-dispatch-over-executors design note.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds executor under its own Name(), lowercased. Registering two
// executors under the same name is a boot-time configuration error.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(e.Name())
	if _, exists := r.executors[name]; exists {
		panic(fmt.Sprintf("executor: duplicate registration for %q", name))
	}
	r.executors[name] = e
}

// Get looks up an executor by name, case-insensitively.
func (r *Registry) Get(name string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[strings.ToLower(name)]
	return e, ok
}

// Names returns the registered executor names in indeterminate order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.executors))
	for n := range r.executors {
		names = append(names, n)
	}
	return names
}
