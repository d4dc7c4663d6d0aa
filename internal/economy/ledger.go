package economy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Defaults for the dual-unit ledger. Credit amounts are derived from value
// points at a fixed rate; conversion to utility units is 100:1 on whole
// credit units.
const (
	DefaultCreditPerPoint     = 10
	DefaultConversionRatio    = 100
	DefaultMinimumConversion  = 100
	DefaultVotingLockMaturity = 30 * 24 * time.Hour
)

// LedgerConfig configures a Ledger.
type LedgerConfig struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Authorizer Authorizer
	Events     Sink

	// CreditPerPoint is the credit minted per value point. Zero selects
	// the default of 10 whole units.
	CreditPerPoint Amount

	// ConversionRatio is the credit-to-utility ratio. Zero selects 100.
	ConversionRatio uint64

	// MinimumConversion is the smallest convertible credit amount. Zero
	// selects 100 whole units.
	MinimumConversion Amount

	// VotingLockMaturity is the minimum remaining lock for a stake to
	// carry voting weight. Zero selects 30 days.
	VotingLockMaturity time.Duration
}

func (cfg *LedgerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Authorizer == nil {
		return errors.New("authorizer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Events == nil {
		cfg.Events = NopSink{}
	}
	if cfg.CreditPerPoint.IsZero() {
		cfg.CreditPerPoint = Units(DefaultCreditPerPoint)
	}
	if cfg.ConversionRatio == 0 {
		cfg.ConversionRatio = DefaultConversionRatio
	}
	if cfg.MinimumConversion.IsZero() {
		cfg.MinimumConversion = Units(DefaultMinimumConversion)
	}
	if cfg.VotingLockMaturity == 0 {
		cfg.VotingLockMaturity = DefaultVotingLockMaturity
	}
	return nil
}

type stakeSlot struct {
	amount   Amount
	stakedAt time.Time
	lockEnd  time.Time
}

type account struct {
	credit  Amount
	utility Amount
	stake   *stakeSlot
}

// Ledger is the dual-unit ledger: per-account participation credit and
// utility unit balances, a single stake slot per account, and running unit
// supplies. All mutations are serialized behind one mutex so each call is
// one atomic transaction.
type Ledger struct {
	log *slog.Logger
	cfg LedgerConfig

	mu            sync.Mutex
	accounts      map[Address]*account
	creditSupply  Amount
	utilitySupply Amount
}

func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		log:      cfg.Logger,
		cfg:      cfg,
		accounts: make(map[Address]*account),
	}, nil
}

func (l *Ledger) getOrCreate(addr Address) *account {
	acct, ok := l.accounts[addr]
	if !ok {
		acct = &account{}
		l.accounts[addr] = acct
	}
	return acct
}

// Mint issues participation credit for value points. Restricted to the
// minter role; the daily cap is enforced upstream by the issuer.
func (l *Ledger) Mint(ctx context.Context, caller, to Address, valuePoints uint64) (Amount, error) {
	if err := requireRole(l.cfg.Authorizer, caller, RoleMinter); err != nil {
		return Amount{}, err
	}
	if valuePoints == 0 {
		return Amount{}, fmt.Errorf("mint: %w", ErrZeroAmount)
	}

	l.mu.Lock()
	minted := l.cfg.CreditPerPoint.MulUint(valuePoints)
	acct := l.getOrCreate(to)
	acct.credit = acct.credit.Add(minted)
	l.creditSupply = l.creditSupply.Add(minted)
	l.mu.Unlock()

	l.log.Debug("ledger: credit minted", "account", to, "points", valuePoints, "amount", minted)
	l.cfg.Events.Publish(ctx, CreditMinted{
		eventBase:    eventBase{OccurredAt: l.cfg.Clock.Now().UTC()},
		Account:      to,
		Amount:       minted,
		SourcePoints: valuePoints,
	})
	return minted, nil
}

// ConvertResult reports a conversion, including the sub-ratio remainder
// left untouched in the liquid credit balance.
type ConvertResult struct {
	CreditIn      Amount `json:"credit_in"`
	CreditBurned  Amount `json:"credit_burned"`
	UtilityMinted Amount `json:"utility_minted"`
	Remainder     Amount `json:"remainder"`
}

// Convert burns liquid credit and mints utility units at the configured
// ratio. Only whole ratio multiples convert; the remainder stays liquid.
// Burn and mint are a single atomic step.
func (l *Ledger) Convert(ctx context.Context, caller Address, creditAmount Amount) (ConvertResult, error) {
	if creditAmount.Cmp(l.cfg.MinimumConversion) < 0 {
		return ConvertResult{}, fmt.Errorf("convert %s: %w (minimum %s)",
			creditAmount, ErrBelowMinimumConversion, l.cfg.MinimumConversion)
	}

	l.mu.Lock()
	acct := l.getOrCreate(caller)
	if acct.credit.Cmp(creditAmount) < 0 {
		l.mu.Unlock()
		return ConvertResult{}, fmt.Errorf("convert %s: %w (liquid %s)", creditAmount, ErrInsufficientBalance, acct.credit)
	}

	step := Units(l.cfg.ConversionRatio)
	burned := creditAmount.FloorToMultiple(step)
	minted := burned.DivUint(l.cfg.ConversionRatio)
	remainder, _ := creditAmount.Sub(burned)

	acct.credit, _ = acct.credit.Sub(burned)
	acct.utility = acct.utility.Add(minted)
	l.creditSupply, _ = l.creditSupply.Sub(burned)
	l.utilitySupply = l.utilitySupply.Add(minted)
	l.mu.Unlock()

	l.log.Debug("ledger: credit converted", "account", caller, "burned", burned, "minted", minted)
	l.cfg.Events.Publish(ctx, CreditConverted{
		eventBase:     eventBase{OccurredAt: l.cfg.Clock.Now().UTC()},
		Account:       caller,
		CreditIn:      creditAmount,
		CreditBurned:  burned,
		UtilityMinted: minted,
	})
	return ConvertResult{
		CreditIn:      creditAmount,
		CreditBurned:  burned,
		UtilityMinted: minted,
		Remainder:     remainder,
	}, nil
}

// Stake moves liquid credit into the caller's single stake slot,
// accumulating onto an existing stake and refreshing its lock window.
func (l *Ledger) Stake(ctx context.Context, caller Address, amount Amount, lock time.Duration) error {
	if amount.IsZero() {
		return fmt.Errorf("stake: %w", ErrZeroAmount)
	}
	if lock <= 0 {
		return fmt.Errorf("stake: %w", ErrInvalidLock)
	}

	l.mu.Lock()
	acct := l.getOrCreate(caller)
	if acct.credit.Cmp(amount) < 0 {
		l.mu.Unlock()
		return fmt.Errorf("stake %s: %w (liquid %s)", amount, ErrInsufficientBalance, acct.credit)
	}
	now := l.cfg.Clock.Now().UTC()
	acct.credit, _ = acct.credit.Sub(amount)
	if acct.stake == nil {
		acct.stake = &stakeSlot{}
	}
	acct.stake.amount = acct.stake.amount.Add(amount)
	acct.stake.stakedAt = now
	acct.stake.lockEnd = now.Add(lock)
	total := acct.stake.amount
	lockEnd := acct.stake.lockEnd
	l.mu.Unlock()

	l.log.Debug("ledger: credit staked", "account", caller, "amount", amount, "lock_end", lockEnd)
	l.cfg.Events.Publish(ctx, CreditStaked{
		eventBase:   eventBase{OccurredAt: now},
		Account:     caller,
		Amount:      amount,
		TotalStaked: total,
		LockEnd:     lockEnd,
	})
	return nil
}

// Unstake returns the full staked amount to the liquid balance once the
// lock has elapsed and clears the stake slot.
func (l *Ledger) Unstake(ctx context.Context, caller Address) (Amount, error) {
	l.mu.Lock()
	acct := l.getOrCreate(caller)
	if acct.stake == nil || acct.stake.amount.IsZero() {
		l.mu.Unlock()
		return Amount{}, fmt.Errorf("unstake: %w", ErrNoStake)
	}
	now := l.cfg.Clock.Now().UTC()
	if now.Before(acct.stake.lockEnd) {
		lockEnd := acct.stake.lockEnd
		l.mu.Unlock()
		return Amount{}, fmt.Errorf("unstake: %w until %s", ErrStakeLocked, lockEnd.Format(time.RFC3339))
	}
	amount := acct.stake.amount
	acct.credit = acct.credit.Add(amount)
	acct.stake = nil
	l.mu.Unlock()

	l.log.Debug("ledger: credit unstaked", "account", caller, "amount", amount)
	l.cfg.Events.Publish(ctx, CreditUnstaked{
		eventBase: eventBase{OccurredAt: now},
		Account:   caller,
		Amount:    amount,
	})
	return amount, nil
}

// VotingWeight returns the staked amount only while the stake has at least
// the configured maturity window remaining before its lock end. This is a
// read-time policy, not a stored flag.
func (l *Ledger) VotingWeight(addr Address) Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[addr]
	if !ok || acct.stake == nil {
		return Amount{}
	}
	threshold := l.cfg.Clock.Now().UTC().Add(l.cfg.VotingLockMaturity)
	if acct.stake.lockEnd.Before(threshold) {
		return Amount{}
	}
	return acct.stake.amount
}

// Burn destroys utility units held by the caller.
func (l *Ledger) Burn(ctx context.Context, caller Address, utilityAmount Amount) error {
	if utilityAmount.IsZero() {
		return fmt.Errorf("burn: %w", ErrZeroAmount)
	}
	if err := l.debitUtility(caller, utilityAmount); err != nil {
		return err
	}

	l.log.Debug("ledger: utility burned", "account", caller, "amount", utilityAmount)
	l.cfg.Events.Publish(ctx, UtilityBurned{
		eventBase: eventBase{OccurredAt: l.cfg.Clock.Now().UTC()},
		Account:   caller,
		Amount:    utilityAmount,
	})
	return nil
}

// debitUtility removes held utility without emitting an event. Callers that
// may still roll back (buybacks) publish their own event once the operation
// is final; refundUtility is the inverse.
func (l *Ledger) debitUtility(caller Address, utilityAmount Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreate(caller)
	if acct.utility.Cmp(utilityAmount) < 0 {
		return fmt.Errorf("burn %s: %w (held %s)", utilityAmount, ErrInsufficientBalance, acct.utility)
	}
	acct.utility, _ = acct.utility.Sub(utilityAmount)
	l.utilitySupply, _ = l.utilitySupply.Sub(utilityAmount)
	return nil
}

// AdminPenaltyBurn removes liquid participation credit from an account as
// an anti-gaming penalty. It bypasses the account owner's consent but still
// requires the admin role and sufficient liquid balance.
func (l *Ledger) AdminPenaltyBurn(ctx context.Context, caller, target Address, amount Amount) error {
	if err := requireRole(l.cfg.Authorizer, caller, RoleAdmin); err != nil {
		return err
	}
	if amount.IsZero() {
		return fmt.Errorf("penalty burn: %w", ErrZeroAmount)
	}

	l.mu.Lock()
	acct := l.getOrCreate(target)
	if acct.credit.Cmp(amount) < 0 {
		l.mu.Unlock()
		return fmt.Errorf("penalty burn %s: %w (liquid %s)", amount, ErrInsufficientBalance, acct.credit)
	}
	acct.credit, _ = acct.credit.Sub(amount)
	l.creditSupply, _ = l.creditSupply.Sub(amount)
	l.mu.Unlock()

	l.log.Info("ledger: penalty burn", "account", target, "amount", amount, "admin", caller)
	l.cfg.Events.Publish(ctx, CreditPenalized{
		eventBase: eventBase{OccurredAt: l.cfg.Clock.Now().UTC()},
		Account:   target,
		Amount:    amount,
	})
	return nil
}

// refundUtility restores burned utility after a downstream transfer
// failure, keeping buybacks all-or-nothing.
func (l *Ledger) refundUtility(addr Address, amount Amount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.getOrCreate(addr)
	acct.utility = acct.utility.Add(amount)
	l.utilitySupply = l.utilitySupply.Add(amount)
}

// StakeView describes an account's active stake.
type StakeView struct {
	Amount   Amount    `json:"amount"`
	StakedAt time.Time `json:"staked_at"`
	LockEnd  time.Time `json:"lock_end"`
}

// AccountView is a point-in-time snapshot of an account.
type AccountView struct {
	Address        Address    `json:"address"`
	CreditBalance  Amount     `json:"credit_balance"`
	UtilityBalance Amount     `json:"utility_balance"`
	Stake          *StakeView `json:"stake,omitempty"`
}

// Account returns a snapshot of the account, which may be empty if the
// address has never held a balance.
func (l *Ledger) Account(addr Address) AccountView {
	l.mu.Lock()
	defer l.mu.Unlock()
	view := AccountView{Address: addr}
	acct, ok := l.accounts[addr]
	if !ok {
		return view
	}
	view.CreditBalance = acct.credit
	view.UtilityBalance = acct.utility
	if acct.stake != nil {
		view.Stake = &StakeView{
			Amount:   acct.stake.amount,
			StakedAt: acct.stake.stakedAt,
			LockEnd:  acct.stake.lockEnd,
		}
	}
	return view
}

// CreditSupply returns the total participation credit in existence,
// including staked amounts.
func (l *Ledger) CreditSupply() Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creditSupply
}

// UtilitySupply returns the total utility units in existence.
func (l *Ledger) UtilitySupply() Amount {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.utilitySupply
}

// CreditPerPoint exposes the configured point conversion rate.
func (l *Ledger) CreditPerPoint() Amount {
	return l.cfg.CreditPerPoint
}
