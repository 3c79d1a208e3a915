// Package subscription records fee-gated subscription purchases.
//
// The ledger is append-only: records are never mutated or deleted, a
// subscriber may hold any number of overlapping records, and expiry is
// descriptive data that nothing in this core enforces.
package subscription

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Duration of one purchased period.
const Duration = 30 * 24 * time.Hour

// Purchase and fee errors.
var (
	ErrInsufficientPayment = errors.New("payment below subscription price")
	ErrNegativePrice       = errors.New("subscription price must be non-negative")
)

// FeeSchedule is the single active fee record, overwritten wholesale by
// each update. No history is kept.
type FeeSchedule struct {
	Price *big.Int
	Kind  Kind
}

// Record is one subscription purchase.
type Record struct {
	ID          uuid.UUID
	Subscriber  common.Address
	Payment     *big.Int
	PurchasedAt time.Time
	ExpiresAt   time.Time
	Kind        Kind
}

// Ledger holds the fee schedule and the purchase history.
type Ledger struct {
	mu      sync.RWMutex
	fee     FeeSchedule
	records []Record
	now     func() time.Time
}

// NewLedger creates a ledger with a zero price, so subscriptions are free
// until a fee is configured.
func NewLedger() *Ledger {
	return &Ledger{
		fee: FeeSchedule{Price: big.NewInt(0), Kind: KindMonthly},
		now: time.Now,
	}
}

// SetClock overrides the time source (tests).
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// SetFee replaces the fee schedule. The label must name a known kind.
func (l *Ledger) SetFee(price *big.Int, kindLabel string) error {
	if price == nil || price.Sign() < 0 {
		return ErrNegativePrice
	}
	kind, err := ParseKind(kindLabel)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.fee = FeeSchedule{Price: new(big.Int).Set(price), Kind: kind}
	return nil
}

// Fee returns the current fee schedule.
func (l *Ledger) Fee() FeeSchedule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return FeeSchedule{Price: new(big.Int).Set(l.fee.Price), Kind: l.fee.Kind}
}

// Subscribe appends a purchase record for the subscriber. The payment must
// cover the configured price; any excess is retained, not refunded. On an
// underpayment nothing is recorded.
//
// Every record is tagged KindMonthly regardless of the schedule's
// configured kind; no other duration is sold. The schedule kind exists so
// a future duration can be priced without reshaping the ledger.
func (l *Ledger) Subscribe(subscriber common.Address, payment *big.Int) (Record, error) {
	if payment == nil {
		payment = big.NewInt(0)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if payment.Cmp(l.fee.Price) < 0 {
		return Record{}, ErrInsufficientPayment
	}

	now := l.now()
	rec := Record{
		ID:          uuid.New(),
		Subscriber:  subscriber,
		Payment:     new(big.Int).Set(payment),
		PurchasedAt: now,
		ExpiresAt:   now.Add(Duration),
		Kind:        KindMonthly,
	}
	l.records = append(l.records, rec)
	return rec, nil
}

// Len returns the number of purchase records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// RecordAt returns the record at the given index in purchase order.
func (l *Ledger) RecordAt(i int) (Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.records) {
		return Record{}, false
	}
	return l.records[i], true
}

// Records returns a copy of the purchase history in order.
func (l *Ledger) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// BySubscriber returns the subscriber's records in purchase order.
func (l *Ledger) BySubscriber(subscriber common.Address) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Record
	for _, rec := range l.records {
		if rec.Subscriber == subscriber {
			out = append(out, rec)
		}
	}
	return out
}
