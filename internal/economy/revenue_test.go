package economy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type rejectingPaymentSink struct{}

func (rejectingPaymentSink) TransferBatch(context.Context, []Payment) error {
	return errors.New("downstream rejected the batch")
}

// recordingSink captures published event kinds in order.
type recordingSink struct {
	mu    sync.Mutex
	kinds []string
}

func (c *recordingSink) Publish(_ context.Context, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, ev.Kind())
}

func (c *recordingSink) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestTerracare_Revenue_AddInvestor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newTestHarness(t)
	s := h.newSplitter(t, NewMemoryPaymentSink(), SplitConfig{})
	investor := testAddr(0x20)

	t.Run("requires the admin role", func(t *testing.T) {
		_, err := s.AddInvestor(ctx, investor, investor, Units(1000), 300)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("multiplier must be between 3x and 5x", func(t *testing.T) {
		_, err := s.AddInvestor(ctx, h.admin, investor, Units(1000), 299)
		require.ErrorIs(t, err, ErrInvalidMultiplier)
		_, err = s.AddInvestor(ctx, h.admin, investor, Units(1000), 501)
		require.ErrorIs(t, err, ErrInvalidMultiplier)
	})

	t.Run("registers with a derived repayment cap", func(t *testing.T) {
		inv, err := s.AddInvestor(ctx, h.admin, investor, Units(1000), 300)
		require.NoError(t, err)
		require.Equal(t, 0, inv.RepaymentCap.Cmp(Units(3000)))
		require.True(t, inv.PaidAmount.IsZero())
		require.False(t, inv.CapReached)
	})

	t.Run("one entry per address", func(t *testing.T) {
		_, err := s.AddInvestor(ctx, h.admin, investor, Units(500), 400)
		require.ErrorIs(t, err, ErrDuplicateInvestor)
	})
}

func TestTerracare_Revenue_SetSplit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newTestHarness(t)
	s := h.newSplitter(t, NewMemoryPaymentSink(), SplitConfig{})

	require.ErrorIs(t,
		s.SetSplit(ctx, h.admin, SplitConfig{UserBuybacksPct: 50, InvestorRepaymentPct: 30, OperationsPct: 30, ReservePct: 10}),
		ErrInvalidSplit)

	want := SplitConfig{UserBuybacksPct: 30, InvestorRepaymentPct: 20, OperationsPct: 40, ReservePct: 10}
	require.NoError(t, s.SetSplit(ctx, h.admin, want))
	require.Equal(t, want, s.Split())
}

func TestTerracare_Revenue_Distribute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	userTreasury := testAddr(0xA0)
	opsTreasury := testAddr(0xA1)
	reserveTreasury := testAddr(0xA2)

	t.Run("requires a funded holding balance", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		s := h.newSplitter(t, NewMemoryPaymentSink(), SplitConfig{})

		_, err := s.Distribute(ctx, h.distrib, Units(100))
		require.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("with no investors the repayment share goes to users", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		sink := NewMemoryPaymentSink()
		s := h.newSplitter(t, sink, SplitConfig{UserBuybacksPct: 30, InvestorRepaymentPct: 20, OperationsPct: 40, ReservePct: 10})

		require.NoError(t, s.Deposit(ctx, h.distrib, Units(1000)))
		res, err := s.Distribute(ctx, h.distrib, Units(1000))
		require.NoError(t, err)

		require.Equal(t, 0, res.UserAmount.Cmp(Units(300)))
		require.Equal(t, 0, res.InvestorAmount.Cmp(Units(200)))
		require.Equal(t, 0, res.OpsAmount.Cmp(Units(400)))
		require.Equal(t, 0, res.ReserveAmount.Cmp(Units(100)))
		require.Equal(t, 0, res.CarriedToUsers.Cmp(Units(200)))
		require.True(t, res.InvestorPaid.IsZero())

		require.Equal(t, 0, sink.Balance(userTreasury).Cmp(Units(500)))
		require.Equal(t, 0, sink.Balance(opsTreasury).Cmp(Units(400)))
		require.Equal(t, 0, sink.Balance(reserveTreasury).Cmp(Units(100)))
		require.True(t, s.HoldingBalance().IsZero())
	})

	t.Run("investor payouts stop at the repayment cap", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		sink := NewMemoryPaymentSink()
		s := h.newSplitter(t, sink, SplitConfig{UserBuybacksPct: 25, InvestorRepaymentPct: 25, OperationsPct: 25, ReservePct: 25})
		investor := testAddr(0x20)

		// Cap is 300; a 1000-unit distribution allocates 250 to repayment.
		_, err := s.AddInvestor(ctx, h.admin, investor, Units(100), 300)
		require.NoError(t, err)

		require.NoError(t, s.Deposit(ctx, h.distrib, Units(2400)))

		res, err := s.Distribute(ctx, h.distrib, Units(1000))
		require.NoError(t, err)
		require.Equal(t, 0, res.InvestorPaid.Cmp(Units(250)))

		// Second round: only 50 of headroom remains, the rest carries to
		// the user bucket.
		res, err = s.Distribute(ctx, h.distrib, Units(1000))
		require.NoError(t, err)
		require.Equal(t, 0, res.InvestorPaid.Cmp(Units(50)))
		require.Equal(t, 0, res.CarriedToUsers.Cmp(Units(200)))
		require.Equal(t, 0, sink.Balance(investor).Cmp(Units(300)))

		inv, ok := s.InvestorProgress(investor)
		require.True(t, ok)
		require.True(t, inv.CapReached)
		require.Equal(t, 0, inv.PaidAmount.Cmp(inv.RepaymentCap))

		// A capped investor is excluded from later rounds.
		res, err = s.Distribute(ctx, h.distrib, Units(400))
		require.NoError(t, err)
		require.True(t, res.InvestorPaid.IsZero())
		require.Equal(t, 0, res.CarriedToUsers.Cmp(Units(100)))
	})

	t.Run("the division remainder stays in holding", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		sink := NewMemoryPaymentSink()
		s := h.newSplitter(t, sink, SplitConfig{UserBuybacksPct: 25, InvestorRepaymentPct: 25, OperationsPct: 25, ReservePct: 25})

		for i := byte(0); i < 3; i++ {
			_, err := s.AddInvestor(ctx, h.admin, testAddr(0x20+i), Units(1000), 500)
			require.NoError(t, err)
		}

		// 400 units allocate 100 to repayment; 100/3 leaves one base unit.
		require.NoError(t, s.Deposit(ctx, h.distrib, Units(400)))
		res, err := s.Distribute(ctx, h.distrib, Units(400))
		require.NoError(t, err)

		require.Equal(t, "1", res.Retained.BaseUnits().String())
		require.Equal(t, "1", s.HoldingBalance().BaseUnits().String())
		require.True(t, res.CarriedToUsers.IsZero())
	})

	t.Run("a rejected transfer batch leaves no trace", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		s := h.newSplitter(t, rejectingPaymentSink{}, SplitConfig{})
		investor := testAddr(0x20)
		_, err := s.AddInvestor(ctx, h.admin, investor, Units(100), 300)
		require.NoError(t, err)

		require.NoError(t, s.Deposit(ctx, h.distrib, Units(1000)))
		_, err = s.Distribute(ctx, h.distrib, Units(1000))
		require.Error(t, err)

		require.Equal(t, 0, s.HoldingBalance().Cmp(Units(1000)))
		require.Equal(t, uint64(0), s.Totals().Distributions)
		inv, _ := s.InvestorProgress(investor)
		require.True(t, inv.PaidAmount.IsZero())
	})

	t.Run("running totals accumulate", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		s := h.newSplitter(t, NewMemoryPaymentSink(), SplitConfig{})

		require.NoError(t, s.Deposit(ctx, h.distrib, Units(800)))
		_, err := s.Distribute(ctx, h.distrib, Units(400))
		require.NoError(t, err)
		_, err = s.Distribute(ctx, h.distrib, Units(400))
		require.NoError(t, err)

		totals := s.Totals()
		require.Equal(t, uint64(2), totals.Distributions)
		require.Equal(t, 0, totals.Deposited.Cmp(Units(800)))
		require.Equal(t, 0, totals.Operations.Cmp(Units(200)))
		// No investors, so their quarter carried to the user bucket.
		require.Equal(t, 0, totals.UserBuybacks.Cmp(Units(400)))
	})
}

func TestTerracare_Revenue_Buyback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// fundUtility mints credit and converts it so member holds utility.
	fundUtility := func(t *testing.T, h *testHarness, member Address, points uint64) {
		t.Helper()
		_, err := h.ledger.Mint(ctx, h.minter, member, points)
		require.NoError(t, err)
		_, err = h.ledger.Convert(ctx, member, Units(points*10))
		require.NoError(t, err)
	}

	t.Run("disabled by default", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		s := h.newSplitter(t, NewMemoryPaymentSink(), SplitConfig{})
		_, err := s.SellBack(ctx, testAddr(0x10), Units(1))
		require.ErrorIs(t, err, ErrBuybackDisabled)
	})

	t.Run("burns utility and pays at the set price", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		sink := NewMemoryPaymentSink()
		s := h.newSplitter(t, sink, SplitConfig{})
		member := testAddr(0x10)
		fundUtility(t, h, member, 30) // 3 utility units

		require.NoError(t, s.SetBuybackPrice(ctx, h.admin, mustAmount(t, "2.5")))
		require.NoError(t, s.SetBuybackEnabled(ctx, h.admin, true))
		require.NoError(t, s.Deposit(ctx, h.distrib, Units(10)))

		paid, err := s.SellBack(ctx, member, Units(2))
		require.NoError(t, err)
		require.Equal(t, "5", paid.String())

		require.Equal(t, 0, sink.Balance(member).Cmp(Units(5)))
		require.Equal(t, 0, h.ledger.Account(member).UtilityBalance.Cmp(Units(1)))
		require.Equal(t, 0, h.ledger.UtilitySupply().Cmp(Units(1)))
		require.Equal(t, 0, s.HoldingBalance().Cmp(Units(5)))
		require.Equal(t, 0, s.Totals().BuybacksPaid.Cmp(Units(5)))
	})

	t.Run("requires holding to cover the payout", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		s := h.newSplitter(t, NewMemoryPaymentSink(), SplitConfig{})
		member := testAddr(0x10)
		fundUtility(t, h, member, 30)

		require.NoError(t, s.SetBuybackPrice(ctx, h.admin, Units(10)))
		require.NoError(t, s.SetBuybackEnabled(ctx, h.admin, true))
		require.NoError(t, s.Deposit(ctx, h.distrib, Units(5)))

		_, err := s.SellBack(ctx, member, Units(1))
		require.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("a rejected payout refunds the burn", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		s := h.newSplitter(t, rejectingPaymentSink{}, SplitConfig{})
		member := testAddr(0x10)
		fundUtility(t, h, member, 30)

		require.NoError(t, s.SetBuybackPrice(ctx, h.admin, Units(1)))
		require.NoError(t, s.SetBuybackEnabled(ctx, h.admin, true))
		require.NoError(t, s.Deposit(ctx, h.distrib, Units(10)))

		_, err := s.SellBack(ctx, member, Units(2))
		require.Error(t, err)

		require.Equal(t, 0, h.ledger.Account(member).UtilityBalance.Cmp(Units(3)))
		require.Equal(t, 0, h.ledger.UtilitySupply().Cmp(Units(3)))
		require.Equal(t, 0, s.HoldingBalance().Cmp(Units(10)))
	})

	t.Run("a rejected payout leaves no trace in the event stream", func(t *testing.T) {
		t.Parallel()
		sink := &recordingSink{}
		h := newTestHarnessWithEvents(t, sink)
		s := h.newSplitter(t, rejectingPaymentSink{}, SplitConfig{})
		member := testAddr(0x10)
		fundUtility(t, h, member, 30)

		require.NoError(t, s.SetBuybackPrice(ctx, h.admin, Units(1)))
		require.NoError(t, s.SetBuybackEnabled(ctx, h.admin, true))
		require.NoError(t, s.Deposit(ctx, h.distrib, Units(10)))

		_, err := s.SellBack(ctx, member, Units(2))
		require.Error(t, err)

		// The failed buyback must not publish a burn the audit journal
		// would record as having happened.
		require.Zero(t, sink.count("utility_burned"))
		require.Zero(t, sink.count("buyback_executed"))
	})

	t.Run("a successful buyback audits as one buyback event", func(t *testing.T) {
		t.Parallel()
		sink := &recordingSink{}
		h := newTestHarnessWithEvents(t, sink)
		s := h.newSplitter(t, NewMemoryPaymentSink(), SplitConfig{})
		member := testAddr(0x10)
		fundUtility(t, h, member, 30)

		require.NoError(t, s.SetBuybackPrice(ctx, h.admin, Units(1)))
		require.NoError(t, s.SetBuybackEnabled(ctx, h.admin, true))
		require.NoError(t, s.Deposit(ctx, h.distrib, Units(10)))

		_, err := s.SellBack(ctx, member, Units(2))
		require.NoError(t, err)

		// The burned amount is carried on BuybackExecuted; a separate
		// burn event would double-count it.
		require.Equal(t, 1, sink.count("buyback_executed"))
		require.Zero(t, sink.count("utility_burned"))

		// Voluntary burns still audit as burns.
		require.NoError(t, h.ledger.Burn(ctx, member, Units(1)))
		require.Equal(t, 1, sink.count("utility_burned"))
	})

	t.Run("cannot sell more than held", func(t *testing.T) {
		t.Parallel()
		h := newTestHarness(t)
		s := h.newSplitter(t, NewMemoryPaymentSink(), SplitConfig{})
		member := testAddr(0x10)
		fundUtility(t, h, member, 30)

		require.NoError(t, s.SetBuybackPrice(ctx, h.admin, Units(1)))
		require.NoError(t, s.SetBuybackEnabled(ctx, h.admin, true))
		require.NoError(t, s.Deposit(ctx, h.distrib, Units(100)))

		_, err := s.SellBack(ctx, member, Units(4))
		require.ErrorIs(t, err, ErrInsufficientBalance)
	})
}
