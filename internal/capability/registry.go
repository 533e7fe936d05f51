// Package capability tracks which optional ML backends survived startup
// probing and which requests had to fall back at runtime. Handles registered
// here are process-wide singletons: initialized once, read-only afterwards.
package capability

import (
	"log"
	"sync"
	"time"
)

// Name 标识一个可降级的后端能力。
type Name string

const (
	EmotionClassifier Name = "emotion_classifier"
	Transcriber       Name = "transcriber"
	Retriever         Name = "retriever"
	Responder         Name = "responder"
)

// Degradation records one substitution of a fallback for a preferred backend.
// Startup degradations are emitted once per unavailable capability; runtime
// entries mark a single turn that had to fall back mid-call.
type Degradation struct {
	Capability Name      `json:"capability"`
	Reason     string    `json:"reason"`
	At         time.Time `json:"at"`
	Runtime    bool      `json:"runtime"`
}

type entry struct {
	handle   any
	degraded bool
}

// Registry resolves capabilities to their implementation handles.
// Resolve never fails: Provide guarantees every registered capability has a
// dependency-free fallback behind it.
type Registry struct {
	mu           sync.RWMutex
	entries      map[Name]entry
	degradations []Degradation
	closers      []func()
}

// NewRegistry 创建空的能力注册表。
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Name]entry)}
}

// Provide probes the preferred implementation via build and installs it, or
// installs the fallback and records a startup degradation when build fails.
// A nil build means the backend was never configured.
func (r *Registry) Provide(name Name, build func() (any, error), fallback any) {
	if build == nil {
		r.install(name, fallback, true, "backend not configured")
		return
	}

	handle, err := build()
	if err != nil {
		r.install(name, fallback, true, err.Error())
		return
	}

	r.install(name, handle, false, "")
}

func (r *Registry) install(name Name, handle any, degraded bool, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[name] = entry{handle: handle, degraded: degraded}
	if degraded {
		log.Printf("[capability] %s degraded to fallback: %s", name, reason)
		r.degradations = append(r.degradations, Degradation{
			Capability: name,
			Reason:     reason,
			At:         time.Now().UTC(),
		})
	}
}

// Resolve returns the implementation handle for a capability. It never fails
// for a provided capability; resolving an unknown name returns nil, which is
// a wiring bug rather than a runtime condition.
func (r *Registry) Resolve(name Name) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name].handle
}

// Available reports whether the preferred (non-fallback) implementation is
// serving the capability.
func (r *Registry) Available(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && !e.degraded
}

// MarkRuntime records a mid-call degradation for a single turn. Components
// call this when a live backend call fails and the fallback path was taken.
func (r *Registry) MarkRuntime(name Name, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	log.Printf("[capability] %s runtime fallback: %s", name, reason)
	r.degradations = append(r.degradations, Degradation{
		Capability: name,
		Reason:     reason,
		At:         time.Now().UTC(),
		Runtime:    true,
	})
}

// Degradations returns a snapshot for observability tooling.
func (r *Registry) Degradations() []Degradation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Degradation, len(r.degradations))
	copy(out, r.degradations)
	return out
}

// OnShutdown 注册在进程退出时需要释放的资源。
func (r *Registry) OnShutdown(release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, release)
}

// Shutdown releases registered backend resources in reverse order.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	closers := r.closers
	r.closers = nil
	r.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
