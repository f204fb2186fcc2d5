package core

import "sync"

// Flag names recognized by FeatureFlags (spec.md §9).
const (
	FlagHybridSearch     = "hybrid_search"
	FlagEntityExtraction = "entity_extraction"
	FlagGraphExpansion   = "graph_expansion"
	FlagGraphEnabled     = "graph_enabled"
)

// FeatureFlags is the two-layer flag controller spec.md §9 describes: a
// compile/startup default per flag, and a runtime override map that takes
// precedence when set. EmergencyRollback sets every flag's override to
// false, the way an operator would kill hybrid search/graph expansion
// without redeploying.
type FeatureFlags struct {
	mu        sync.RWMutex
	defaults  map[string]bool
	overrides map[string]bool
}

// NewFeatureFlags seeds the default layer from cfg.
func NewFeatureFlags(cfg FeaturesConfig) *FeatureFlags {
	return &FeatureFlags{
		defaults: map[string]bool{
			FlagHybridSearch:     cfg.HybridSearch,
			FlagEntityExtraction: cfg.EntityExtraction,
			FlagGraphExpansion:   cfg.GraphExpansion,
			FlagGraphEnabled:     cfg.GraphEnabled,
		},
		overrides: make(map[string]bool),
	}
}

// IsEnabled reports whether flag is on, consulting the override layer
// first and falling back to the default. An unrecognized flag name is
// always reported disabled.
func (f *FeatureFlags) IsEnabled(flag string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if v, ok := f.overrides[flag]; ok {
		return v
	}
	return f.defaults[flag]
}

// SetOverride sets a runtime override for flag, taking precedence over its
// default until cleared.
func (f *FeatureFlags) SetOverride(flag string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[flag] = enabled
}

// ClearOverride removes flag's runtime override, reverting it to its
// default.
func (f *FeatureFlags) ClearOverride(flag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.overrides, flag)
}

// EmergencyRollback forces every recognized flag's override to false, the
// way an operator would respond to a hybrid-search incident without a
// redeploy (spec.md §9).
func (f *FeatureFlags) EmergencyRollback() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, flag := range []string{FlagHybridSearch, FlagEntityExtraction, FlagGraphExpansion, FlagGraphEnabled} {
		f.overrides[flag] = false
	}
}
