package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/af-corp/conduit/internal/config"
	"github.com/af-corp/conduit/internal/pricing"
)

// Registry holds the named orchestrators built from providers.yaml. It
// supports atomic replacement on config reload.
type Registry struct {
	mu            sync.RWMutex
	orchestrators map[string]*Orchestrator
	defaultName   string
}

// BuildRegistry constructs one orchestrator per configured entry. Each
// gets its pricing from the table when the provider/model pair is priced.
func BuildRegistry(cfg *config.OrchestratorsConfig, table pricing.Table, opts ...Option) (*Registry, error) {
	orchestrators := make(map[string]*Orchestrator, len(cfg.Orchestrators))
	for name, pc := range cfg.Orchestrators {
		orchOpts := append([]Option(nil), opts...)
		if rates, ok := table.Lookup(pc.Provider, pc.Model); ok {
			orchOpts = append(orchOpts, WithPricing(rates))
		}
		orch, err := New(pc, orchOpts...)
		if err != nil {
			return nil, fmt.Errorf("orchestrator %q: %w", name, err)
		}
		orchestrators[name] = orch
	}
	return &Registry{orchestrators: orchestrators, defaultName: cfg.Default}, nil
}

// Get resolves an orchestrator by name. An empty name resolves the
// configured default.
func (r *Registry) Get(name string) (*Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	orch, ok := r.orchestrators[name]
	return orch, ok
}

// Names lists the configured orchestrator names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.orchestrators))
	for name := range r.orchestrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Each calls fn for every orchestrator.
func (r *Registry) Each(fn func(name string, orch *Orchestrator)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, orch := range r.orchestrators {
		fn(name, orch)
	}
}

// Replace swaps in the contents of other; used on config hot reload.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	orchestrators, defaultName := other.orchestrators, other.defaultName
	other.mu.RUnlock()

	r.mu.Lock()
	r.orchestrators = orchestrators
	r.defaultName = defaultName
	r.mu.Unlock()
}
