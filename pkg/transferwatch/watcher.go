// Package transferwatch watches registered asset contracts for transfer
// events and invalidates cached entitlement verdicts for the wallets
// involved.
//
// It subscribes over WebSocket to ERC-20/721 Transfer and ERC-1155
// TransferSingle and TransferBatch logs. A sender may have lost a
// qualifying holding and a receiver may have gained one, so both sides of
// every transfer are invalidated. The watcher only ever clears cache; it
// never grants or denies access by itself.
package transferwatch

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Event signatures (keccak256).
var (
	// Transfer(address indexed from, address indexed to, uint256 value|tokenId)
	// Same signature for ERC-20 (value not indexed) and ERC-721 (tokenId indexed).
	transferSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	// TransferSingle(address indexed operator, address indexed from, address indexed to, uint256 id, uint256 value)
	transferSingleSig = common.HexToHash("0xc3d58168c5ae7397731d063d5bbf3d657854427343f4c083240f7aacaa2d0f62")
	// TransferBatch(address indexed operator, address indexed from, address indexed to, uint256[] ids, uint256[] values)
	transferBatchSig = common.HexToHash("0x4a39dc06d4c0dbc64b70af90fd698a233a518aa5d07e595d983b8c0526c8f7fb")
)

// Invalidator drops a cached entitlement verdict for a wallet.
type Invalidator interface {
	InvalidateAccess(wallet common.Address)
}

// Watcher monitors transfer events on the registered asset contracts.
type Watcher struct {
	client      *ethclient.Client
	contracts   func() []common.Address
	invalidator Invalidator
	logger      zerolog.Logger
	cancel      context.CancelFunc
}

// NewWatcher creates a transfer event watcher. wsURL must be a WebSocket
// RPC endpoint. contracts is re-read on every (re)subscription, so assets
// registered after a reconnect are picked up.
func NewWatcher(wsURL string, contracts func() []common.Address, invalidator Invalidator, logger zerolog.Logger) (*Watcher, error) {
	client, err := ethclient.Dial(wsURL)
	if err != nil {
		return nil, err
	}

	return &Watcher{
		client:      client,
		contracts:   contracts,
		invalidator: invalidator,
		logger:      logger.With().Str("component", "transferwatch").Logger(),
	}, nil
}

// Start watches for transfer events until the context is cancelled,
// reconnecting on errors.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := w.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Warn().Err(err).Msg("subscription error, reconnecting in 10s")
				time.Sleep(10 * time.Second)
			}
		}
	}
}

// Stop cancels the watcher and closes the client.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.client.Close()
}

func (w *Watcher) subscribe(ctx context.Context) error {
	contracts := w.contracts()
	if len(contracts) == 0 {
		// Nothing registered yet; poll again shortly.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(30 * time.Second):
			return nil
		}
	}

	query := ethereum.FilterQuery{
		Addresses: contracts,
		Topics: [][]common.Hash{
			{transferSig, transferSingleSig, transferBatchSig},
		},
	}

	logs := make(chan types.Log)
	sub, err := w.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	w.logger.Info().Int("contracts", len(contracts)).Msg("watching asset contracts for transfers")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case vLog := <-logs:
			w.handleLog(vLog)
		}
	}
}

// handleLog extracts the from/to wallets of a transfer event and
// invalidates both. Mints (from = zero) and burns (to = zero) touch only
// one side.
func (w *Watcher) handleLog(vLog types.Log) {
	if len(vLog.Topics) == 0 {
		return
	}

	var from, to common.Address
	switch vLog.Topics[0] {
	case transferSig:
		// ERC-20 Transfer carries 3 topics, ERC-721 carries 4
		// (indexed tokenId); from/to sit at the same positions.
		if len(vLog.Topics) < 3 {
			return
		}
		from = common.BytesToAddress(vLog.Topics[1].Bytes())
		to = common.BytesToAddress(vLog.Topics[2].Bytes())

	case transferSingleSig, transferBatchSig:
		// Topics: [sig, operator, from, to]
		if len(vLog.Topics) < 4 {
			return
		}
		from = common.BytesToAddress(vLog.Topics[2].Bytes())
		to = common.BytesToAddress(vLog.Topics[3].Bytes())

	default:
		return
	}

	zeroAddr := common.Address{}
	if from != zeroAddr {
		w.logger.Debug().
			Str("contract", vLog.Address.Hex()).
			Str("wallet", from.Hex()).
			Msg("transfer out, verdict invalidated")
		w.invalidator.InvalidateAccess(from)
	}
	if to != zeroAddr {
		w.invalidator.InvalidateAccess(to)
	}
}
