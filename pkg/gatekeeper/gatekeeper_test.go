package gatekeeper

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halverson/tokengate/pkg/registry"
	"github.com/halverson/tokengate/pkg/subscription"
	"github.com/halverson/tokengate/pkg/treasury"
)

var (
	admin     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	intruder  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	account   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	contractA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	contractB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// fakeOracle answers from a per-contract table.
type fakeOracle struct {
	holds map[common.Address]bool
}

func (f *fakeOracle) Holds(_ context.Context, rule registry.AssetRule, _ common.Address) (bool, error) {
	return f.holds[rule.Contract], nil
}

type fakeSender struct {
	err error
}

func (f *fakeSender) Send(context.Context, common.Address, *big.Int) error {
	return f.err
}

func newInitialized(t *testing.T, oracle *fakeOracle, sender treasury.Sender) *Gatekeeper {
	t.Helper()
	g := New(oracle, sender, zerolog.Nop())
	require.NoError(t, g.Initialize(admin))
	return g
}

func TestInitializeIsOneShot(t *testing.T) {
	g := New(&fakeOracle{}, nil, zerolog.Nop())

	require.NoError(t, g.Initialize(admin))
	assert.Equal(t, admin, g.Admin())

	require.ErrorIs(t, g.Initialize(admin), ErrAlreadyInitialized)
	require.ErrorIs(t, g.Initialize(intruder), ErrAlreadyInitialized)
	assert.Equal(t, admin, g.Admin(), "a failed re-initialization must not touch the role")
}

func TestMutationsRequireInitialization(t *testing.T) {
	g := New(&fakeOracle{}, nil, zerolog.Nop())

	err := g.RegisterAsset(admin, registry.AssetRule{Contract: contractA, Standard: registry.StandardERC721})
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestUnauthorizedCallersAreRejected(t *testing.T) {
	g := newInitialized(t, &fakeOracle{}, &fakeSender{})

	rule := registry.AssetRule{Contract: contractA, Standard: registry.StandardERC721}
	require.NoError(t, g.RegisterAsset(admin, rule))

	tests := []struct {
		name string
		call func() error
	}{
		{"RegisterAsset", func() error { return g.RegisterAsset(intruder, rule) }},
		{"DisableAsset", func() error { return g.DisableAsset(intruder, contractA) }},
		{"SetFee", func() error { return g.SetFee(intruder, big.NewInt(1), "monthly") }},
		{"Withdraw", func() error {
			_, err := g.Withdraw(context.Background(), intruder)
			return err
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.call(), ErrUnauthorized)
		})
	}

	// No state changed: one rule, still enabled, fee still zero.
	assert.Len(t, g.Rules(), 1)
	assert.True(t, g.AssetEnabled(contractA))
	assert.Equal(t, int64(0), g.Fee().Price.Int64())
}

func TestRegisterValidationPropagates(t *testing.T) {
	g := newInitialized(t, &fakeOracle{}, nil)

	err := g.RegisterAsset(admin, registry.AssetRule{Contract: contractA, Standard: registry.StandardERC1155})
	require.ErrorIs(t, err, registry.ErrMissingTokenID)
	assert.Empty(t, g.Rules())
}

func TestCheckAccessUsesRegistry(t *testing.T) {
	oracle := &fakeOracle{holds: map[common.Address]bool{contractA: false, contractB: true}}
	g := newInitialized(t, oracle, nil)

	require.NoError(t, g.RegisterAsset(admin, registry.AssetRule{
		Contract: contractA, Standard: registry.StandardERC20, MinAmount: big.NewInt(100),
	}))
	require.NoError(t, g.RegisterAsset(admin, registry.AssetRule{
		Contract: contractB, Standard: registry.StandardERC721,
	}))

	granted, err := g.CheckAccess(context.Background(), account)
	require.NoError(t, err)
	assert.True(t, granted)

	require.NoError(t, g.DisableAsset(admin, contractB))
	oracle.holds[contractA] = true

	granted, err = g.CheckAccess(context.Background(), account)
	require.NoError(t, err)
	assert.True(t, granted)

	require.NoError(t, g.DisableAsset(admin, contractA))

	granted, err = g.CheckAccess(context.Background(), account)
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestRegistryMutationsDropCachedVerdicts(t *testing.T) {
	oracle := &fakeOracle{holds: map[common.Address]bool{contractA: true}}
	g := newInitialized(t, oracle, nil)
	g.SetCacheTTL(time.Minute)

	require.NoError(t, g.RegisterAsset(admin, registry.AssetRule{Contract: contractA, Standard: registry.StandardERC721}))

	granted, err := g.CheckAccess(context.Background(), account)
	require.NoError(t, err)
	require.True(t, granted)

	require.NoError(t, g.DisableAsset(admin, contractA))

	granted, err = g.CheckAccess(context.Background(), account)
	require.NoError(t, err)
	assert.False(t, granted, "checkAccess must ignore rules of a disabled address even with a warm cache")

	// Registering an asset the account holds must likewise take effect
	// before a cached denial expires.
	oracle.holds[contractB] = true
	require.NoError(t, g.RegisterAsset(admin, registry.AssetRule{Contract: contractB, Standard: registry.StandardERC721}))

	granted, err = g.CheckAccess(context.Background(), account)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestSubscribeDepositsToTreasury(t *testing.T) {
	g := newInitialized(t, &fakeOracle{}, &fakeSender{})
	require.NoError(t, g.SetFee(admin, big.NewInt(1000), "monthly"))

	rec, err := g.Subscribe(account, big.NewInt(1500))
	require.NoError(t, err)
	assert.Equal(t, subscription.KindMonthly, rec.Kind)
	assert.Equal(t, int64(1500), g.TreasuryBalance().Int64(), "the full payment including excess is retained")

	_, err = g.Subscribe(account, big.NewInt(999))
	require.ErrorIs(t, err, subscription.ErrInsufficientPayment)
	assert.Equal(t, int64(1500), g.TreasuryBalance().Int64(), "an underpayment is not consumed")
	assert.Len(t, g.Subscriptions(), 1)
}

func TestWithdrawToCaller(t *testing.T) {
	sender := &fakeSender{}
	g := newInitialized(t, &fakeOracle{}, sender)
	_, err := g.Subscribe(account, big.NewInt(700))
	require.NoError(t, err)

	amount, err := g.Withdraw(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, int64(700), amount.Int64())
	assert.Equal(t, int64(0), g.TreasuryBalance().Int64())
}

func TestWithdrawFailureIsAtomic(t *testing.T) {
	sender := &fakeSender{err: errors.New("rpc unreachable")}
	g := newInitialized(t, &fakeOracle{}, sender)
	_, err := g.Subscribe(account, big.NewInt(700))
	require.NoError(t, err)

	_, err = g.Withdraw(context.Background(), admin)
	require.ErrorIs(t, err, treasury.ErrTransferFailed)
	assert.Equal(t, int64(700), g.TreasuryBalance().Int64())
}

func TestWatchedContracts(t *testing.T) {
	g := newInitialized(t, &fakeOracle{}, nil)
	require.NoError(t, g.RegisterAsset(admin, registry.AssetRule{Contract: contractA, Standard: registry.StandardERC721}))
	require.NoError(t, g.RegisterAsset(admin, registry.AssetRule{Contract: contractA, Standard: registry.StandardERC721, TokenID: big.NewInt(1)}))
	require.NoError(t, g.RegisterAsset(admin, registry.AssetRule{Contract: contractB, Standard: registry.StandardERC721}))

	assert.Equal(t, []common.Address{contractA, contractB}, g.WatchedContracts())
}
