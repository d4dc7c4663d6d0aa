package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Repayment cap multiplier bounds, in percent of the initial investment.
const (
	MinCapMultiplierPercent = 300
	MaxCapMultiplierPercent = 500
)

// SplitConfig is the four-way revenue split. The percentages must sum to
// exactly 100; a new value replaces the old atomically.
type SplitConfig struct {
	UserBuybacksPct      uint64 `json:"user_buybacks_pct"`
	InvestorRepaymentPct uint64 `json:"investor_repayment_pct"`
	OperationsPct        uint64 `json:"operations_pct"`
	ReservePct           uint64 `json:"reserve_pct"`
}

func (s SplitConfig) sum() uint64 {
	return s.UserBuybacksPct + s.InvestorRepaymentPct + s.OperationsPct + s.ReservePct
}

// Treasuries names the three unconditional payment destinations.
type Treasuries struct {
	UserBuyback Address
	Operations  Address
	Reserve     Address
}

func (t Treasuries) validate() error {
	if t.UserBuyback == "" || t.Operations == "" || t.Reserve == "" {
		return errors.New("all three treasury addresses are required")
	}
	return nil
}

// Investor is an append-only early-investor entry. PaidAmount only grows,
// never exceeds RepaymentCap, and CapReached never reverts once set.
type Investor struct {
	Address           Address   `json:"address"`
	InitialInvestment Amount    `json:"initial_investment"`
	RepaymentCap      Amount    `json:"repayment_cap"`
	PaidAmount        Amount    `json:"paid_amount"`
	CapReached        bool      `json:"cap_reached"`
	RegisteredAt      time.Time `json:"registered_at"`
}

// DistributionTotals are the running per-bucket totals for reporting.
type DistributionTotals struct {
	Deposited         Amount `json:"deposited"`
	Distributions     uint64 `json:"distributions"`
	UserBuybacks      Amount `json:"user_buybacks"`
	InvestorRepayment Amount `json:"investor_repayment"`
	Operations        Amount `json:"operations"`
	Reserve           Amount `json:"reserve"`
	BuybacksPaid      Amount `json:"buybacks_paid"`
}

// DistributionResult reports one completed distribution.
type DistributionResult struct {
	DistributionID   uuid.UUID `json:"distribution_id"`
	Amount           Amount    `json:"amount"`
	UserAmount       Amount    `json:"user_amount"`
	InvestorAmount   Amount    `json:"investor_amount"`
	OpsAmount        Amount    `json:"ops_amount"`
	ReserveAmount    Amount    `json:"reserve_amount"`
	InvestorPaid     Amount    `json:"investor_paid"`
	InvestorPayments int       `json:"investor_payments"`
	CarriedToUsers   Amount    `json:"carried_to_users"`
	Retained         Amount    `json:"retained"`
}

// SplitterConfig configures a Splitter.
type SplitterConfig struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Authorizer Authorizer
	Events     Sink
	Ledger     *Ledger
	Payments   PaymentSink
	Treasuries Treasuries

	// InitialSplit seeds the split config. Zero value selects an even
	// placeholder that an admin is expected to replace.
	InitialSplit SplitConfig
}

func (cfg *SplitterConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Authorizer == nil {
		return errors.New("authorizer is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Payments == nil {
		return errors.New("payment sink is required")
	}
	if err := cfg.Treasuries.validate(); err != nil {
		return err
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Events == nil {
		cfg.Events = NopSink{}
	}
	if cfg.InitialSplit.sum() == 0 {
		cfg.InitialSplit = SplitConfig{UserBuybacksPct: 25, InvestorRepaymentPct: 25, OperationsPct: 25, ReservePct: 25}
	}
	if cfg.InitialSplit.sum() != 100 {
		return fmt.Errorf("initial split: %w", ErrInvalidSplit)
	}
	return nil
}

// Splitter accepts revenue deposits, runs the four-way split with
// capped-proportional investor repayment, and executes utility buybacks.
// All mutations are serialized behind one mutex.
type Splitter struct {
	log *slog.Logger
	cfg SplitterConfig

	mu             sync.Mutex
	split          SplitConfig
	investors      []*Investor
	byAddr         map[Address]*Investor
	holding        Amount
	buybackPrice   Amount
	buybackEnabled bool
	totals         DistributionTotals
}

func NewSplitter(cfg SplitterConfig) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{
		log:    cfg.Logger,
		cfg:    cfg,
		split:  cfg.InitialSplit,
		byAddr: make(map[Address]*Investor),
	}, nil
}

// AddInvestor registers an early investor with a repayment cap of
// initialInvestment × capMultiplierPercent / 100. Admin only; one entry per
// address; multiplier constrained to 300–500 percent (3x–5x).
func (s *Splitter) AddInvestor(ctx context.Context, caller, investor Address, initialInvestment Amount, capMultiplierPercent uint64) (Investor, error) {
	if err := requireRole(s.cfg.Authorizer, caller, RoleAdmin); err != nil {
		return Investor{}, err
	}
	if capMultiplierPercent < MinCapMultiplierPercent || capMultiplierPercent > MaxCapMultiplierPercent {
		return Investor{}, fmt.Errorf("multiplier %d: %w", capMultiplierPercent, ErrInvalidMultiplier)
	}
	if initialInvestment.IsZero() {
		return Investor{}, fmt.Errorf("add investor: %w", ErrZeroAmount)
	}

	s.mu.Lock()
	if _, exists := s.byAddr[investor]; exists {
		s.mu.Unlock()
		return Investor{}, fmt.Errorf("investor %s: %w", investor, ErrDuplicateInvestor)
	}
	entry := &Investor{
		Address:           investor,
		InitialInvestment: initialInvestment,
		RepaymentCap:      initialInvestment.MulUint(capMultiplierPercent).DivUint(100),
		RegisteredAt:      s.cfg.Clock.Now().UTC(),
	}
	s.investors = append(s.investors, entry)
	s.byAddr[investor] = entry
	view := *entry
	s.mu.Unlock()

	s.log.Info("revenue: investor registered", "investor", investor, "investment", initialInvestment, "cap", view.RepaymentCap)
	s.cfg.Events.Publish(ctx, InvestorRegistered{
		eventBase:         eventBase{OccurredAt: view.RegisteredAt},
		Investor:          investor,
		InitialInvestment: initialInvestment,
		RepaymentCap:      view.RepaymentCap,
	})
	return view, nil
}

// SetSplit atomically replaces the revenue split configuration. Admin only.
func (s *Splitter) SetSplit(ctx context.Context, caller Address, split SplitConfig) error {
	if err := requireRole(s.cfg.Authorizer, caller, RoleAdmin); err != nil {
		return err
	}
	if split.sum() != 100 {
		return fmt.Errorf("split sums to %d: %w", split.sum(), ErrInvalidSplit)
	}

	s.mu.Lock()
	s.split = split
	s.mu.Unlock()

	s.log.Info("revenue: split updated", "split", split)
	s.cfg.Events.Publish(ctx, SplitUpdated{
		eventBase: eventBase{OccurredAt: s.cfg.Clock.Now().UTC()},
		Split:     split,
	})
	return nil
}

// Deposit adds external revenue to the splitter's holding balance.
// Distributor only.
func (s *Splitter) Deposit(ctx context.Context, caller Address, amount Amount) error {
	if err := requireRole(s.cfg.Authorizer, caller, RoleDistributor); err != nil {
		return err
	}
	if amount.IsZero() {
		return fmt.Errorf("deposit: %w", ErrZeroAmount)
	}

	s.mu.Lock()
	s.holding = s.holding.Add(amount)
	s.totals.Deposited = s.totals.Deposited.Add(amount)
	s.mu.Unlock()

	s.log.Info("revenue: deposit", "amount", amount, "from", caller)
	return nil
}

// Distribute splits amount four ways, pays investors capped-proportionally,
// and forwards whatever the investors could not absorb to the user-buyback
// treasury. The reserve bucket absorbs integer-division rounding so the
// four parts sum exactly to amount. The per-investor division remainder
// stays in the holding balance for future distributions. All transfers go
// out in one atomic batch; a rejected transfer aborts the whole call.
func (s *Splitter) Distribute(ctx context.Context, caller Address, amount Amount) (DistributionResult, error) {
	if err := requireRole(s.cfg.Authorizer, caller, RoleDistributor); err != nil {
		return DistributionResult{}, err
	}
	if amount.IsZero() {
		return DistributionResult{}, fmt.Errorf("distribute: %w", ErrZeroAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holding.Cmp(amount) < 0 {
		return DistributionResult{}, fmt.Errorf("distribute %s: %w (holding %s)", amount, ErrInsufficientBalance, s.holding)
	}

	userAmt := amount.MulUint(s.split.UserBuybacksPct).DivUint(100)
	investorAmt := amount.MulUint(s.split.InvestorRepaymentPct).DivUint(100)
	opsAmt := amount.MulUint(s.split.OperationsPct).DivUint(100)
	reserveAmt := amount
	for _, part := range []Amount{userAmt, investorAmt, opsAmt} {
		reserveAmt, _ = reserveAmt.Sub(part)
	}

	// Plan the capped-proportional investor payout.
	var active []*Investor
	for _, inv := range s.investors {
		if !inv.CapReached {
			active = append(active, inv)
		}
	}
	type plannedPayment struct {
		inv    *Investor
		amount Amount
	}
	var (
		planned      []plannedPayment
		investorPaid Amount
		retained     Amount
	)
	if len(active) > 0 {
		perInvestor := investorAmt.DivUint(uint64(len(active)))
		for _, inv := range active {
			headroom, _ := inv.RepaymentCap.Sub(inv.PaidAmount)
			pay := perInvestor.Min(headroom)
			if pay.IsZero() {
				continue
			}
			planned = append(planned, plannedPayment{inv: inv, amount: pay})
			investorPaid = investorPaid.Add(pay)
		}
		// The floor-division remainder is never handed out; it stays in
		// the holding balance for future distributions.
		distributed := perInvestor.MulUint(uint64(len(active)))
		retained, _ = investorAmt.Sub(distributed)
	}
	shortfall, _ := investorAmt.Sub(investorPaid)
	carryToUsers, _ := shortfall.Sub(retained)
	userTotal := userAmt.Add(carryToUsers)

	payments := make([]Payment, 0, len(planned)+3)
	payments = append(payments,
		Payment{To: s.cfg.Treasuries.Operations, Amount: opsAmt, Kind: PaymentKindOperations},
		Payment{To: s.cfg.Treasuries.Reserve, Amount: reserveAmt, Kind: PaymentKindReserve},
	)
	for _, p := range planned {
		payments = append(payments, Payment{To: p.inv.Address, Amount: p.amount, Kind: PaymentKindInvestor})
	}
	payments = append(payments, Payment{To: s.cfg.Treasuries.UserBuyback, Amount: userTotal, Kind: PaymentKindUserBuyback})

	if err := s.cfg.Payments.TransferBatch(ctx, payments); err != nil {
		return DistributionResult{}, fmt.Errorf("failed to execute distribution transfers: %w", err)
	}

	// Transfers landed; commit investor bookkeeping and totals.
	now := s.cfg.Clock.Now().UTC()
	distributionID := uuid.New()
	for _, p := range planned {
		p.inv.PaidAmount = p.inv.PaidAmount.Add(p.amount)
		if p.inv.PaidAmount.Cmp(p.inv.RepaymentCap) >= 0 {
			p.inv.CapReached = true
		}
		s.cfg.Events.Publish(ctx, InvestorPaid{
			eventBase:      eventBase{OccurredAt: now},
			DistributionID: distributionID,
			Investor:       p.inv.Address,
			Amount:         p.amount,
			CumulativePaid: p.inv.PaidAmount,
			CapReached:     p.inv.CapReached,
		})
	}
	paidOut := userTotal.Add(investorPaid).Add(opsAmt).Add(reserveAmt)
	s.holding, _ = s.holding.Sub(paidOut)
	s.totals.Distributions++
	s.totals.UserBuybacks = s.totals.UserBuybacks.Add(userTotal)
	s.totals.InvestorRepayment = s.totals.InvestorRepayment.Add(investorPaid)
	s.totals.Operations = s.totals.Operations.Add(opsAmt)
	s.totals.Reserve = s.totals.Reserve.Add(reserveAmt)

	s.log.Info("revenue: distributed",
		"id", distributionID,
		"amount", amount,
		"users", userTotal,
		"investors", investorPaid,
		"ops", opsAmt,
		"reserve", reserveAmt,
		"retained", retained)
	s.cfg.Events.Publish(ctx, RevenueDistributed{
		eventBase:      eventBase{OccurredAt: now},
		DistributionID: distributionID,
		Amount:         amount,
		UserAmount:     userAmt,
		InvestorAmount: investorAmt,
		OpsAmount:      opsAmt,
		ReserveAmount:  reserveAmt,
		InvestorPaid:   investorPaid,
		CarriedToUsers: carryToUsers,
	})

	return DistributionResult{
		DistributionID:   distributionID,
		Amount:           amount,
		UserAmount:       userAmt,
		InvestorAmount:   investorAmt,
		OpsAmount:        opsAmt,
		ReserveAmount:    reserveAmt,
		InvestorPaid:     investorPaid,
		InvestorPayments: len(planned),
		CarriedToUsers:   carryToUsers,
		Retained:         retained,
	}, nil
}

// SetBuybackPrice sets the per-unit buyback price. Admin only.
func (s *Splitter) SetBuybackPrice(_ context.Context, caller Address, price Amount) error {
	if err := requireRole(s.cfg.Authorizer, caller, RoleAdmin); err != nil {
		return err
	}
	s.mu.Lock()
	s.buybackPrice = price
	s.mu.Unlock()
	s.log.Info("revenue: buyback price set", "price", price)
	return nil
}

// SetBuybackEnabled toggles the buyback facility. Admin only.
func (s *Splitter) SetBuybackEnabled(_ context.Context, caller Address, enabled bool) error {
	if err := requireRole(s.cfg.Authorizer, caller, RoleAdmin); err != nil {
		return err
	}
	s.mu.Lock()
	s.buybackEnabled = enabled
	s.mu.Unlock()
	s.log.Info("revenue: buyback enabled", "enabled", enabled)
	return nil
}

// SellBack burns the caller's utility units and pays out
// utilityAmount × buybackPrice from the holding balance.
func (s *Splitter) SellBack(ctx context.Context, caller Address, utilityAmount Amount) (Amount, error) {
	if utilityAmount.IsZero() {
		return Amount{}, fmt.Errorf("buyback: %w", ErrZeroAmount)
	}

	s.mu.Lock()
	if !s.buybackEnabled {
		s.mu.Unlock()
		return Amount{}, ErrBuybackDisabled
	}
	payout := utilityAmount.MulPerUnit(s.buybackPrice)
	if s.holding.Cmp(payout) < 0 {
		s.mu.Unlock()
		return Amount{}, fmt.Errorf("buyback payout %s: %w (holding %s)", payout, ErrInsufficientBalance, s.holding)
	}

	// Debit first so the ledger check and debit are atomic, then pay. If
	// the payment is rejected, the debit is refunded and the whole call
	// fails with no net state change. No burn event is emitted here;
	// BuybackExecuted is the single audit record once the payout lands.
	if err := s.cfg.Ledger.debitUtility(caller, utilityAmount); err != nil {
		s.mu.Unlock()
		return Amount{}, err
	}
	if err := s.cfg.Payments.TransferBatch(ctx, []Payment{{To: caller, Amount: payout, Kind: PaymentKindBuyback}}); err != nil {
		s.cfg.Ledger.refundUtility(caller, utilityAmount)
		s.mu.Unlock()
		return Amount{}, fmt.Errorf("failed to pay buyback: %w", err)
	}
	s.holding, _ = s.holding.Sub(payout)
	s.totals.BuybacksPaid = s.totals.BuybacksPaid.Add(payout)
	s.mu.Unlock()

	s.log.Info("revenue: buyback", "account", caller, "utility", utilityAmount, "paid", payout)
	s.cfg.Events.Publish(ctx, BuybackExecuted{
		eventBase:     eventBase{OccurredAt: s.cfg.Clock.Now().UTC()},
		Account:       caller,
		UtilityBurned: utilityAmount,
		Paid:          payout,
	})
	return payout, nil
}

// Split returns the current split configuration.
func (s *Splitter) Split() SplitConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.split
}

// Totals returns the running distribution totals.
func (s *Splitter) Totals() DistributionTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// HoldingBalance returns deposited revenue not yet paid out.
func (s *Splitter) HoldingBalance() Amount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holding
}

// BuybackPrice returns the admin-set per-unit buyback price.
func (s *Splitter) BuybackPrice() Amount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buybackPrice
}

// Investors returns a snapshot of all investor entries in registration
// order.
func (s *Splitter) Investors() []Investor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Investor, 0, len(s.investors))
	for _, inv := range s.investors {
		out = append(out, *inv)
	}
	return out
}

// InvestorProgress returns one investor's repayment progress.
func (s *Splitter) InvestorProgress(addr Address) (Investor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byAddr[addr]
	if !ok {
		return Investor{}, false
	}
	return *inv, true
}
