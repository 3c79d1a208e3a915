// Package treasury tracks retained subscription payments and pays the
// accumulated balance out on demand.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrTransferFailed wraps any payout that did not complete. The balance is
// left unchanged so the withdrawal can be retried.
var ErrTransferFailed = errors.New("transfer failed")

// Sender moves native funds to a recipient. Implemented by payout.ChainSender.
type Sender interface {
	Send(ctx context.Context, to common.Address, amount *big.Int) error
}

// Treasury holds the running balance of retained payments.
type Treasury struct {
	mu      sync.Mutex
	balance *big.Int
	sender  Sender
}

// New creates an empty treasury. A nil sender is allowed; withdrawal then
// fails until one is configured.
func New(sender Sender) *Treasury {
	return &Treasury{
		balance: big.NewInt(0),
		sender:  sender,
	}
}

// Deposit adds a retained payment to the balance.
func (t *Treasury) Deposit(amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	t.mu.Lock()
	t.balance.Add(t.balance, amount)
	t.mu.Unlock()
}

// Balance returns a copy of the held balance.
func (t *Treasury) Balance() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance)
}

// Withdraw sends the entire balance to the recipient and returns the amount
// moved. The balance is zeroed only after the send succeeds; a failed send
// leaves it intact.
func (t *Treasury) Withdraw(ctx context.Context, to common.Address) (*big.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sender == nil {
		return nil, fmt.Errorf("%w: no payout sender configured", ErrTransferFailed)
	}

	// Nothing held, nothing to send. Skips broadcasting a zero-value
	// transaction that would only burn gas.
	if t.balance.Sign() == 0 {
		return big.NewInt(0), nil
	}

	amount := new(big.Int).Set(t.balance)
	if err := t.sender.Send(ctx, to, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	t.balance.SetInt64(0)
	return amount, nil
}
