// Package entitlement decides whether an account currently qualifies for
// gated access given the registered asset rules.
package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/halverson/tokengate/pkg/holdings"
	"github.com/halverson/tokengate/pkg/registry"
)

// FailurePolicy controls what a failing oracle query does to an evaluation.
type FailurePolicy int

const (
	// PolicyStrict aborts the whole evaluation on the first oracle
	// failure. One misbehaving registered contract then denies every
	// access check that reaches it.
	PolicyStrict FailurePolicy = iota

	// PolicyResilient treats a failing rule as not qualifying and keeps
	// evaluating the remaining rules. Failures are reported through the
	// diagnostic callback.
	PolicyResilient
)

// RuleFailure describes one oracle query that did not answer during a
// resilient evaluation.
type RuleFailure struct {
	Rule    registry.AssetRule
	Account common.Address
	Err     error
}

type cacheEntry struct {
	granted   bool
	expiresAt time.Time
}

// Evaluator runs access checks against the registry, first match wins.
type Evaluator struct {
	registry *registry.Registry
	oracle   holdings.Oracle
	policy   FailurePolicy
	onFail   func(RuleFailure)
	logger   zerolog.Logger

	cacheTTL time.Duration
	mu       sync.RWMutex
	cache    map[common.Address]cacheEntry
}

// New creates an evaluator with the strict failure policy and no result
// caching.
func New(reg *registry.Registry, oracle holdings.Oracle, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		registry: reg,
		oracle:   oracle,
		logger:   logger.With().Str("component", "entitlement").Logger(),
		cache:    make(map[common.Address]cacheEntry),
	}
}

// SetFailurePolicy selects how oracle failures are handled.
func (e *Evaluator) SetFailurePolicy(p FailurePolicy) {
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
}

// SetFailureHandler installs a diagnostic callback invoked for each rule
// skipped under PolicyResilient.
func (e *Evaluator) SetFailureHandler(fn func(RuleFailure)) {
	e.mu.Lock()
	e.onFail = fn
	e.mu.Unlock()
}

// SetCacheTTL enables caching of verdicts for the given duration. Zero
// disables caching.
func (e *Evaluator) SetCacheTTL(ttl time.Duration) {
	e.mu.Lock()
	e.cacheTTL = ttl
	e.mu.Unlock()
}

// CheckAccess reports whether the account holds at least one enabled
// qualifying asset. Rules are visited in registration order against a
// snapshot of the registry; the first enabled rule the account satisfies
// decides the answer and later rules are not consulted.
func (e *Evaluator) CheckAccess(ctx context.Context, account common.Address) (bool, error) {
	e.mu.RLock()
	policy := e.policy
	onFail := e.onFail
	ttl := e.cacheTTL
	entry, cached := e.cache[account]
	e.mu.RUnlock()

	if ttl > 0 && cached && time.Now().Before(entry.expiresAt) {
		return entry.granted, nil
	}

	snap := e.registry.Snapshot()

	granted := false
	for _, rule := range snap.Rules {
		if !snap.Enabled[rule.Contract] {
			continue
		}

		holds, err := e.oracle.Holds(ctx, rule, account)
		if err != nil {
			if policy == PolicyStrict {
				return false, err
			}
			e.logger.Warn().
				Err(err).
				Str("contract", rule.Contract.Hex()).
				Str("standard", rule.Standard.String()).
				Str("account", account.Hex()).
				Msg("rule skipped, oracle query failed")
			if onFail != nil {
				onFail(RuleFailure{Rule: rule, Account: account, Err: err})
			}
			continue
		}
		if holds {
			granted = true
			break
		}
	}

	if ttl > 0 {
		e.mu.Lock()
		e.cache[account] = cacheEntry{granted: granted, expiresAt: time.Now().Add(ttl)}
		e.mu.Unlock()
	}

	return granted, nil
}

// Invalidate drops a cached verdict, forcing the next check to requery the
// chain. Called when a transfer involving the account is observed.
func (e *Evaluator) Invalidate(account common.Address) {
	e.mu.Lock()
	delete(e.cache, account)
	e.mu.Unlock()
}

// InvalidateAll drops every cached verdict. Called after a registry
// mutation so no account keeps a grant decided under the old rule set.
func (e *Evaluator) InvalidateAll() {
	e.mu.Lock()
	e.cache = make(map[common.Address]cacheEntry)
	e.mu.Unlock()
}

// CacheSize returns the number of cached verdicts (for monitoring).
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
