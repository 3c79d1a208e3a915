package transferwatch

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockInvalidator records invalidated wallets.
type mockInvalidator struct {
	wallets []common.Address
}

func (m *mockInvalidator) InvalidateAccess(wallet common.Address) {
	m.wallets = append(m.wallets, wallet)
}

func newTestWatcher(inv Invalidator) *Watcher {
	return &Watcher{invalidator: inv, logger: zerolog.Nop()}
}

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(a.Bytes(), 32))
}

func TestHandleLogERC20Transfer(t *testing.T) {
	inv := &mockInvalidator{}
	w := newTestWatcher(inv)

	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	// ERC-20: value is unindexed, so only 3 topics.
	w.handleLog(types.Log{
		Topics: []common.Hash{transferSig, addrTopic(from), addrTopic(to)},
		Data:   make([]byte, 32),
	})

	require.Len(t, inv.wallets, 2)
	assert.Equal(t, from, inv.wallets[0])
	assert.Equal(t, to, inv.wallets[1])
}

func TestHandleLogERC721Transfer(t *testing.T) {
	inv := &mockInvalidator{}
	w := newTestWatcher(inv)

	from := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	to := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	tokenID := common.BigToHash(common.Big1)

	// ERC-721: tokenId is indexed, 4 topics.
	w.handleLog(types.Log{
		Topics: []common.Hash{transferSig, addrTopic(from), addrTopic(to), tokenID},
	})

	require.Len(t, inv.wallets, 2)
	assert.Equal(t, from, inv.wallets[0])
	assert.Equal(t, to, inv.wallets[1])
}

func TestHandleLogTransferSingle(t *testing.T) {
	inv := &mockInvalidator{}
	w := newTestWatcher(inv)

	from := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	to := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	w.handleLog(types.Log{
		Topics: []common.Hash{
			transferSingleSig,
			addrTopic(common.Address{}), // operator
			addrTopic(from),
			addrTopic(to),
		},
		Data: make([]byte, 64), // id + value
	})

	require.Len(t, inv.wallets, 2)
	assert.Equal(t, from, inv.wallets[0])
	assert.Equal(t, to, inv.wallets[1])
}

func TestHandleLogMintSkipsZeroSender(t *testing.T) {
	inv := &mockInvalidator{}
	w := newTestWatcher(inv)

	to := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")

	w.handleLog(types.Log{
		Topics: []common.Hash{
			transferSingleSig,
			addrTopic(common.Address{}),
			addrTopic(common.Address{}), // mint: from = zero
			addrTopic(to),
		},
		Data: make([]byte, 64),
	})

	require.Len(t, inv.wallets, 1, "only the receiver is invalidated on a mint")
	assert.Equal(t, to, inv.wallets[0])
}

func TestHandleLogBurnSkipsZeroReceiver(t *testing.T) {
	inv := &mockInvalidator{}
	w := newTestWatcher(inv)

	from := common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")

	w.handleLog(types.Log{
		Topics: []common.Hash{transferSig, addrTopic(from), addrTopic(common.Address{})},
		Data:   make([]byte, 32),
	})

	require.Len(t, inv.wallets, 1)
	assert.Equal(t, from, inv.wallets[0])
}

func TestHandleLogIgnoresForeignEvents(t *testing.T) {
	inv := &mockInvalidator{}
	w := newTestWatcher(inv)

	w.handleLog(types.Log{
		Topics: []common.Hash{common.HexToHash("0x01"), addrTopic(common.Address{})},
	})
	w.handleLog(types.Log{Topics: []common.Hash{transferSig}}) // too few topics
	w.handleLog(types.Log{})

	assert.Empty(t, inv.wallets)
}
