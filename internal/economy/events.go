package economy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event is an observable engine event for off-chain indexing and audit.
type Event interface {
	Kind() string
	At() time.Time
}

type eventBase struct {
	OccurredAt time.Time `json:"occurred_at"`
}

func (e eventBase) At() time.Time { return e.OccurredAt }

// CreditMinted is emitted when participation credit is issued.
type CreditMinted struct {
	eventBase
	Account      Address `json:"account"`
	Amount       Amount  `json:"amount"`
	SourcePoints uint64  `json:"source_points"`
}

func (CreditMinted) Kind() string { return "credit_minted" }

// CreditConverted is emitted when credit is converted to utility units.
type CreditConverted struct {
	eventBase
	Account       Address `json:"account"`
	CreditIn      Amount  `json:"credit_in"`
	CreditBurned  Amount  `json:"credit_burned"`
	UtilityMinted Amount  `json:"utility_minted"`
}

func (CreditConverted) Kind() string { return "credit_converted" }

// CreditStaked is emitted when credit moves into an account's stake slot.
type CreditStaked struct {
	eventBase
	Account     Address   `json:"account"`
	Amount      Amount    `json:"amount"`
	TotalStaked Amount    `json:"total_staked"`
	LockEnd     time.Time `json:"lock_end"`
}

func (CreditStaked) Kind() string { return "credit_staked" }

// CreditUnstaked is emitted when a matured stake returns to the liquid balance.
type CreditUnstaked struct {
	eventBase
	Account Address `json:"account"`
	Amount  Amount  `json:"amount"`
}

func (CreditUnstaked) Kind() string { return "credit_unstaked" }

// UtilityBurned is emitted for voluntary utility burns. Buybacks audit
// their burn through BuybackExecuted instead.
type UtilityBurned struct {
	eventBase
	Account Address `json:"account"`
	Amount  Amount  `json:"amount"`
}

func (UtilityBurned) Kind() string { return "utility_burned" }

// CreditPenalized is emitted when an admin penalty removes liquid credit.
type CreditPenalized struct {
	eventBase
	Account Address `json:"account"`
	Amount  Amount  `json:"amount"`
}

func (CreditPenalized) Kind() string { return "credit_penalized" }

// ActivityRecorded is emitted for every accepted activity attestation,
// including fully capped ones awarded zero points.
type ActivityRecorded struct {
	eventBase
	ActivityID     string  `json:"activity_id"`
	MemberID       Address `json:"member_id"`
	Category       string  `json:"category"`
	EvidenceHash   string  `json:"evidence_hash"`
	RequestedScore uint64  `json:"requested_score"`
	AwardedScore   uint64  `json:"awarded_score"`
	Capped         bool    `json:"capped"`
	Oracle         Address `json:"oracle"`
}

func (ActivityRecorded) Kind() string { return "activity_recorded" }

// InvestorRegistered is emitted when an early investor is added.
type InvestorRegistered struct {
	eventBase
	Investor          Address `json:"investor"`
	InitialInvestment Amount  `json:"initial_investment"`
	RepaymentCap      Amount  `json:"repayment_cap"`
}

func (InvestorRegistered) Kind() string { return "investor_registered" }

// SplitUpdated is emitted when the revenue split configuration changes.
type SplitUpdated struct {
	eventBase
	Split SplitConfig `json:"split"`
}

func (SplitUpdated) Kind() string { return "split_updated" }

// RevenueDistributed is emitted once per successful distribution.
type RevenueDistributed struct {
	eventBase
	DistributionID uuid.UUID `json:"distribution_id"`
	Amount         Amount    `json:"amount"`
	UserAmount     Amount    `json:"user_amount"`
	InvestorAmount Amount    `json:"investor_amount"`
	OpsAmount      Amount    `json:"ops_amount"`
	ReserveAmount  Amount    `json:"reserve_amount"`
	InvestorPaid   Amount    `json:"investor_paid"`
	CarriedToUsers Amount    `json:"carried_to_users"`
}

func (RevenueDistributed) Kind() string { return "revenue_distributed" }

// InvestorPaid is emitted per investor payment inside a distribution.
type InvestorPaid struct {
	eventBase
	DistributionID uuid.UUID `json:"distribution_id"`
	Investor       Address   `json:"investor"`
	Amount         Amount    `json:"amount"`
	CumulativePaid Amount    `json:"cumulative_paid"`
	CapReached     bool      `json:"cap_reached"`
}

func (InvestorPaid) Kind() string { return "investor_paid" }

// BuybackExecuted is emitted when utility units are bought back and burned.
type BuybackExecuted struct {
	eventBase
	Account       Address `json:"account"`
	UtilityBurned Amount  `json:"utility_burned"`
	Paid          Amount  `json:"paid"`
}

func (BuybackExecuted) Kind() string { return "buyback_executed" }

// Sink receives engine events. Publishing is best-effort; sinks must not
// block engine operations on downstream failures.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}

// LogSink writes events to a structured logger.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Publish(_ context.Context, ev Event) {
	s.Log.Info("economy event", "kind", ev.Kind(), "event", ev)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}
