package economy

import (
	"context"
	"fmt"
	"sync"
)

// PaymentKind labels a payment inside a distribution batch.
type PaymentKind string

const (
	PaymentKindUserBuyback PaymentKind = "user_buyback"
	PaymentKindInvestor    PaymentKind = "investor"
	PaymentKindOperations  PaymentKind = "operations"
	PaymentKindReserve     PaymentKind = "reserve"
	PaymentKindBuyback     PaymentKind = "buyback_payout"
)

// Payment is one outgoing revenue transfer.
type Payment struct {
	To     Address     `json:"to"`
	Amount Amount      `json:"amount"`
	Kind   PaymentKind `json:"kind"`
}

// PaymentSink delivers revenue payments. TransferBatch must be atomic:
// either every payment lands or none does, since a partial distribution
// payout would corrupt the splitter's accounting totals.
type PaymentSink interface {
	TransferBatch(ctx context.Context, payments []Payment) error
}

// MemoryPaymentSink is an in-process PaymentSink that accumulates balances
// per destination. It is the default wiring and the test double.
type MemoryPaymentSink struct {
	mu       sync.Mutex
	balances map[Address]Amount
}

func NewMemoryPaymentSink() *MemoryPaymentSink {
	return &MemoryPaymentSink{balances: make(map[Address]Amount)}
}

func (s *MemoryPaymentSink) TransferBatch(_ context.Context, payments []Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range payments {
		if p.To == "" {
			return fmt.Errorf("payment of %s (%s): %w", p.Amount, p.Kind, ErrInvalidAddress)
		}
	}
	for _, p := range payments {
		s.balances[p.To] = s.balances[p.To].Add(p.Amount)
	}
	return nil
}

// Balance returns the accumulated amount delivered to an address.
func (s *MemoryPaymentSink) Balance(addr Address) Amount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[addr]
}
