package registry

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is the thread-safe store of configured asset rules.
//
// Rules live in an ordered sequence that only grows; the enabled index is
// the single mutable piece of state. Registering the same contract again
// re-enables it and appends a fresh entry, keeping the configuration
// history visible.
type Registry struct {
	mu      sync.RWMutex
	rules   []AssetRule
	enabled map[common.Address]bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		enabled: make(map[common.Address]bool),
	}
}

// Register validates the rule, appends it to the sequence, and marks its
// contract enabled. Duplicate contracts are accepted.
func (r *Registry) Register(rule AssetRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = append(r.rules, rule)
	r.enabled[rule.Contract] = true
	return nil
}

// Disable flips the contract's enabled flag off. The rule sequence is left
// untouched. Disabling an unregistered or already-disabled contract fails
// with ErrUnknownAsset.
func (r *Registry) Disable(contract common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled[contract] {
		return ErrUnknownAsset
	}
	r.enabled[contract] = false
	return nil
}

// Enabled reports whether rules for the contract currently participate in
// access evaluation.
func (r *Registry) Enabled(contract common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled[contract]
}

// Len returns the number of registered rules, including disabled ones.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// RuleAt returns the rule at the given registration index.
func (r *Registry) RuleAt(i int) (AssetRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.rules) {
		return AssetRule{}, false
	}
	return r.rules[i], true
}

// Rules returns a copy of the rule sequence in registration order.
func (r *Registry) Rules() []AssetRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AssetRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Contracts returns the distinct contract addresses that ever appeared in
// the registry, in first-registration order.
func (r *Registry) Contracts() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[common.Address]struct{}, len(r.enabled))
	var out []common.Address
	for _, rule := range r.rules {
		if _, ok := seen[rule.Contract]; ok {
			continue
		}
		seen[rule.Contract] = struct{}{}
		out = append(out, rule.Contract)
	}
	return out
}

// Snapshot is a point-in-time copy of the registry used during one access
// evaluation, so a concurrent Register or Disable cannot be observed
// halfway through an iteration.
type Snapshot struct {
	Rules   []AssetRule
	Enabled map[common.Address]bool
}

// Snapshot copies the current rule sequence and enabled index.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]AssetRule, len(r.rules))
	copy(rules, r.rules)
	enabled := make(map[common.Address]bool, len(r.enabled))
	for addr, on := range r.enabled {
		enabled[addr] = on
	}
	return Snapshot{Rules: rules, Enabled: enabled}
}
