// Package gatekeeper wires the asset registry, entitlement evaluator,
// subscription ledger, and treasury behind a single administrative trust
// boundary.
//
// Exactly one privileged address exists, granted to the caller of
// Initialize and never rotated. Every mutating operation takes the
// caller's address as an explicit credential; anything else is rejected
// with ErrUnauthorized and no state change.
package gatekeeper

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/halverson/tokengate/pkg/entitlement"
	"github.com/halverson/tokengate/pkg/holdings"
	"github.com/halverson/tokengate/pkg/registry"
	"github.com/halverson/tokengate/pkg/subscription"
	"github.com/halverson/tokengate/pkg/treasury"
)

var (
	ErrUnauthorized       = errors.New("caller does not hold the admin role")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
)

// Gatekeeper is the externally facing facade over the gating core.
type Gatekeeper struct {
	mu          sync.RWMutex
	admin       common.Address
	initialized bool

	registry  *registry.Registry
	evaluator *entitlement.Evaluator
	ledger    *subscription.Ledger
	treasury  *treasury.Treasury
	logger    zerolog.Logger
}

// New creates an uninitialized gatekeeper. The sender may be nil; treasury
// withdrawals then fail until one is wired.
func New(oracle holdings.Oracle, sender treasury.Sender, logger zerolog.Logger) *Gatekeeper {
	reg := registry.New()
	return &Gatekeeper{
		registry:  reg,
		evaluator: entitlement.New(reg, oracle, logger),
		ledger:    subscription.NewLedger(),
		treasury:  treasury.New(sender),
		logger:    logger.With().Str("component", "gatekeeper").Logger(),
	}
}

// SetFailurePolicy forwards the oracle failure policy to the evaluator.
func (g *Gatekeeper) SetFailurePolicy(p entitlement.FailurePolicy) {
	g.evaluator.SetFailurePolicy(p)
}

// SetFailureHandler forwards the diagnostic callback to the evaluator.
func (g *Gatekeeper) SetFailureHandler(fn func(entitlement.RuleFailure)) {
	g.evaluator.SetFailureHandler(fn)
}

// SetCacheTTL enables verdict caching in the evaluator.
func (g *Gatekeeper) SetCacheTTL(ttl time.Duration) {
	g.evaluator.SetCacheTTL(ttl)
}

// SetClock overrides the ledger's time source (tests).
func (g *Gatekeeper) SetClock(now func() time.Time) {
	g.ledger.SetClock(now)
}

// Initialize grants the admin role to the caller. One-shot: a second call
// fails with ErrAlreadyInitialized regardless of who makes it.
func (g *Gatekeeper) Initialize(caller common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.initialized {
		return ErrAlreadyInitialized
	}
	g.admin = caller
	g.initialized = true
	g.logger.Info().Str("admin", caller.Hex()).Msg("admin role granted")
	return nil
}

// Admin returns the privileged address.
func (g *Gatekeeper) Admin() common.Address {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.admin
}

func (g *Gatekeeper) requireAdmin(caller common.Address) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.initialized {
		return ErrNotInitialized
	}
	if caller != g.admin {
		return ErrUnauthorized
	}
	return nil
}

// RegisterAsset adds a qualifying asset rule. Admin only.
func (g *Gatekeeper) RegisterAsset(caller common.Address, rule registry.AssetRule) error {
	if err := g.requireAdmin(caller); err != nil {
		return err
	}
	if err := g.registry.Register(rule); err != nil {
		return err
	}
	g.evaluator.InvalidateAll()
	g.logger.Info().
		Str("contract", rule.Contract.Hex()).
		Str("standard", rule.Standard.String()).
		Msg("asset registered")
	return nil
}

// DisableAsset soft-disables every rule referencing the contract. Admin only.
func (g *Gatekeeper) DisableAsset(caller, contract common.Address) error {
	if err := g.requireAdmin(caller); err != nil {
		return err
	}
	if err := g.registry.Disable(contract); err != nil {
		return err
	}
	g.evaluator.InvalidateAll()
	g.logger.Info().Str("contract", contract.Hex()).Msg("asset disabled")
	return nil
}

// SetFee replaces the subscription fee schedule. Admin only.
func (g *Gatekeeper) SetFee(caller common.Address, price *big.Int, kindLabel string) error {
	if err := g.requireAdmin(caller); err != nil {
		return err
	}
	if err := g.ledger.SetFee(price, kindLabel); err != nil {
		return err
	}
	g.logger.Info().Str("price", price.String()).Str("kind", kindLabel).Msg("fee updated")
	return nil
}

// Withdraw pays the entire treasury balance out to the caller. Admin only.
func (g *Gatekeeper) Withdraw(ctx context.Context, caller common.Address) (*big.Int, error) {
	if err := g.requireAdmin(caller); err != nil {
		return nil, err
	}
	amount, err := g.treasury.Withdraw(ctx, caller)
	if err != nil {
		return nil, err
	}
	g.logger.Info().Str("to", caller.Hex()).Str("amount", amount.String()).Msg("treasury withdrawn")
	return amount, nil
}

// CheckAccess evaluates the account's entitlement. Public, read-only.
func (g *Gatekeeper) CheckAccess(ctx context.Context, account common.Address) (bool, error) {
	return g.evaluator.CheckAccess(ctx, account)
}

// Subscribe records a subscription purchase and retains the payment in the
// treasury. Public.
func (g *Gatekeeper) Subscribe(subscriber common.Address, payment *big.Int) (subscription.Record, error) {
	rec, err := g.ledger.Subscribe(subscriber, payment)
	if err != nil {
		return subscription.Record{}, err
	}
	g.treasury.Deposit(rec.Payment)
	g.logger.Info().
		Str("subscriber", subscriber.Hex()).
		Str("payment", rec.Payment.String()).
		Time("expires_at", rec.ExpiresAt).
		Msg("subscription recorded")
	return rec, nil
}

// InvalidateAccess drops a cached entitlement verdict for the account.
// Wired to the transfer watcher.
func (g *Gatekeeper) InvalidateAccess(account common.Address) {
	g.evaluator.Invalidate(account)
}

// Rules returns the registered rule sequence.
func (g *Gatekeeper) Rules() []registry.AssetRule {
	return g.registry.Rules()
}

// RuleAt returns the rule at a registration index.
func (g *Gatekeeper) RuleAt(i int) (registry.AssetRule, bool) {
	return g.registry.RuleAt(i)
}

// AssetEnabled reports whether the contract currently participates in
// evaluation.
func (g *Gatekeeper) AssetEnabled(contract common.Address) bool {
	return g.registry.Enabled(contract)
}

// WatchedContracts returns the distinct contracts ever registered, for the
// transfer watcher's subscription filter.
func (g *Gatekeeper) WatchedContracts() []common.Address {
	return g.registry.Contracts()
}

// Fee returns the active fee schedule.
func (g *Gatekeeper) Fee() subscription.FeeSchedule {
	return g.ledger.Fee()
}

// Subscriptions returns the full purchase history.
func (g *Gatekeeper) Subscriptions() []subscription.Record {
	return g.ledger.Records()
}

// TreasuryBalance returns the held balance.
func (g *Gatekeeper) TreasuryBalance() *big.Int {
	return g.treasury.Balance()
}
