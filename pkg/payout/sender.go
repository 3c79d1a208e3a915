// Package payout sends native-coin value transfers for treasury
// withdrawals.
package payout

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// gas limit for a plain value transfer
const transferGasLimit = 21000

// ChainSender signs and broadcasts value-transfer transactions from a
// configured payout key. Sends are serialized so concurrent withdrawals
// cannot race on the account nonce.
type ChainSender struct {
	client  *ethclient.Client
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	mu      sync.Mutex
	logger  zerolog.Logger
}

// New creates a sender from a hex-encoded private key.
func New(rpcURL, privateKeyHex string, chainID int64, logger zerolog.Logger) (*ChainSender, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to Ethereum RPC: %w", err)
	}

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parsing payout key: %w", err)
	}

	return &ChainSender{
		client:  client,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		logger:  logger.With().Str("component", "payout").Logger(),
	}, nil
}

// From returns the sending account address.
func (s *ChainSender) From() common.Address {
	return s.from
}

// Send signs and broadcasts a value transfer. Unlike the read paths, an
// error here must reach the caller so the withdrawal can fail atomically.
func (s *ChainSender) Send(ctx context.Context, to common.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return fmt.Errorf("getting nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("getting gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, amount, transferGasLimit, gasPrice, nil)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.key)
	if err != nil {
		return fmt.Errorf("signing tx: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("sending tx: %w", err)
	}

	s.logger.Info().
		Str("tx", signedTx.Hash().Hex()).
		Str("to", to.Hex()).
		Str("amount", amount.String()).
		Msg("payout tx sent")
	return nil
}

// Close shuts down the Ethereum client.
func (s *ChainSender) Close() {
	s.client.Close()
}
