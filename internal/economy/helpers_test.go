package economy

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/testutil"
)

// testAddr builds a deterministic well-formed address from a fill byte.
func testAddr(n byte) Address {
	var raw [32]byte
	for i := range raw {
		raw[i] = n
	}
	addr, err := AddressFromBytes(raw[:])
	if err != nil {
		panic(err)
	}
	return addr
}

type testHarness struct {
	auth    *StaticAuthorizer
	clock   *clockwork.FakeClock
	events  Sink
	ledger  *Ledger
	minter  Address
	oracle  Address
	admin   Address
	distrib Address
}

func newTestHarness(t *testing.T) *testHarness {
	return newTestHarnessWithEvents(t, nil)
}

func newTestHarnessWithEvents(t *testing.T, events Sink) *testHarness {
	t.Helper()

	h := &testHarness{
		auth:    NewStaticAuthorizer(),
		clock:   clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		events:  events,
		minter:  testAddr(0x01),
		oracle:  testAddr(0x02),
		admin:   testAddr(0x03),
		distrib: testAddr(0x04),
	}
	h.auth.Grant(h.minter, RoleMinter)
	h.auth.Grant(h.oracle, RoleOracle)
	h.auth.Grant(h.admin, RoleAdmin)
	h.auth.Grant(h.distrib, RoleDistributor)

	ledger, err := NewLedger(LedgerConfig{
		Logger:     testutil.NewLogger(),
		Clock:      h.clock,
		Authorizer: h.auth,
		Events:     events,
	})
	require.NoError(t, err)
	h.ledger = ledger
	return h
}

func (h *testHarness) newIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(IssuerConfig{
		Logger:     testutil.NewLogger(),
		Clock:      h.clock,
		Authorizer: h.auth,
		Ledger:     h.ledger,
		Minter:     h.minter,
	})
	require.NoError(t, err)
	return issuer
}

func (h *testHarness) newSplitter(t *testing.T, payments PaymentSink, split SplitConfig) *Splitter {
	t.Helper()
	splitter, err := NewSplitter(SplitterConfig{
		Logger:     testutil.NewLogger(),
		Clock:      h.clock,
		Authorizer: h.auth,
		Events:     h.events,
		Ledger:     h.ledger,
		Payments:   payments,
		Treasuries: Treasuries{
			UserBuyback: testAddr(0xA0),
			Operations:  testAddr(0xA1),
			Reserve:     testAddr(0xA2),
		},
		InitialSplit: split,
	})
	require.NoError(t, err)
	return splitter
}

func mustAmount(t *testing.T, s string) Amount {
	t.Helper()
	a, err := ParseAmount(s)
	require.NoError(t, err)
	return a
}
