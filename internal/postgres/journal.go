package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/economy"
	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/metrics"
)

// JournalConfig configures a Journal.
type JournalConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *JournalConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

// Journal is the write-behind audit store for engine events. The engine
// core stays the single-writer source of truth; journal failures are
// logged and counted but never fail engine operations.
type Journal struct {
	log *slog.Logger
	cfg JournalConfig
}

func NewJournal(cfg JournalConfig) (*Journal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Journal{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Ping verifies the backing pool is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.cfg.Pool.Ping(ctx)
}

func numeric(a economy.Amount) string {
	return a.BaseUnits().String()
}

func amountFromNumeric(s string) (economy.Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return economy.Amount{}, fmt.Errorf("invalid numeric %q", s)
	}
	return economy.FromBaseUnits(v)
}

// Publish implements economy.Sink.
func (j *Journal) Publish(ctx context.Context, ev economy.Event) {
	var err error
	switch e := ev.(type) {
	case economy.ActivityRecorded:
		err = j.insertActivity(ctx, e)
	case economy.RevenueDistributed:
		err = j.insertDistribution(ctx, e)
	case economy.InvestorPaid:
		err = j.insertInvestorPayment(ctx, e)
	case economy.InvestorRegistered:
		err = j.insertInvestor(ctx, e)
	case economy.CreditMinted:
		err = j.insertLedgerEvent(ctx, ev, e.Account)
	case economy.CreditConverted:
		err = j.insertLedgerEvent(ctx, ev, e.Account)
	case economy.CreditStaked:
		err = j.insertLedgerEvent(ctx, ev, e.Account)
	case economy.CreditUnstaked:
		err = j.insertLedgerEvent(ctx, ev, e.Account)
	case economy.UtilityBurned:
		err = j.insertLedgerEvent(ctx, ev, e.Account)
	case economy.CreditPenalized:
		err = j.insertLedgerEvent(ctx, ev, e.Account)
	case economy.BuybackExecuted:
		err = j.insertLedgerEvent(ctx, ev, e.Account)
	case economy.SplitUpdated:
		err = j.insertLedgerEvent(ctx, ev, "")
	default:
		return
	}
	if err != nil {
		metrics.JournalWritesTotal.WithLabelValues(ev.Kind(), "error").Inc()
		j.log.Error("journal: failed to record event", "kind", ev.Kind(), "error", err)
		return
	}
	metrics.JournalWritesTotal.WithLabelValues(ev.Kind(), "success").Inc()
}

func (j *Journal) insertActivity(ctx context.Context, e economy.ActivityRecorded) error {
	_, err := j.cfg.Pool.Exec(ctx, `
		INSERT INTO activities (activity_id, member_id, category, evidence_hash, requested_score, awarded_score, capped, oracle, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (activity_id) DO NOTHING`,
		e.ActivityID, e.MemberID.String(), e.Category, e.EvidenceHash,
		int64(e.RequestedScore), int64(e.AwardedScore), e.Capped, e.Oracle.String(), e.At())
	return err
}

func (j *Journal) insertDistribution(ctx context.Context, e economy.RevenueDistributed) error {
	_, err := j.cfg.Pool.Exec(ctx, `
		INSERT INTO distributions (id, amount, user_amount, investor_amount, ops_amount, reserve_amount, investor_paid, carried_to_users, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.DistributionID, numeric(e.Amount), numeric(e.UserAmount), numeric(e.InvestorAmount),
		numeric(e.OpsAmount), numeric(e.ReserveAmount), numeric(e.InvestorPaid), numeric(e.CarriedToUsers), e.At())
	return err
}

func (j *Journal) insertInvestorPayment(ctx context.Context, e economy.InvestorPaid) error {
	_, err := j.cfg.Pool.Exec(ctx, `
		INSERT INTO investor_payments (distribution_id, investor, amount, cumulative_paid, cap_reached, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.DistributionID, e.Investor.String(), numeric(e.Amount), numeric(e.CumulativePaid), e.CapReached, e.At())
	if err != nil {
		return err
	}
	_, err = j.cfg.Pool.Exec(ctx, `
		UPDATE investors SET paid_amount = $2, cap_reached = $3 WHERE address = $1`,
		e.Investor.String(), numeric(e.CumulativePaid), e.CapReached)
	return err
}

func (j *Journal) insertInvestor(ctx context.Context, e economy.InvestorRegistered) error {
	_, err := j.cfg.Pool.Exec(ctx, `
		INSERT INTO investors (address, initial_investment, repayment_cap, paid_amount, cap_reached, registered_at)
		VALUES ($1, $2, $3, 0, FALSE, $4)
		ON CONFLICT (address) DO NOTHING`,
		e.Investor.String(), numeric(e.InitialInvestment), numeric(e.RepaymentCap), e.At())
	return err
}

func (j *Journal) insertLedgerEvent(ctx context.Context, ev economy.Event, account economy.Address) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	_, err = j.cfg.Pool.Exec(ctx, `
		INSERT INTO ledger_events (kind, account, payload, occurred_at)
		VALUES ($1, $2, $3, $4)`,
		ev.Kind(), account.String(), payload, ev.At())
	return err
}

// ActivityRow is a persisted activity record.
type ActivityRow struct {
	ActivityID     string    `json:"activity_id"`
	MemberID       string    `json:"member_id"`
	Category       string    `json:"category"`
	EvidenceHash   string    `json:"evidence_hash"`
	RequestedScore int64     `json:"requested_score"`
	AwardedScore   int64     `json:"awarded_score"`
	Capped         bool      `json:"capped"`
	Oracle         string    `json:"oracle"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// MemberActivities returns a member's most recent activities.
func (j *Journal) MemberActivities(ctx context.Context, member economy.Address, limit int) ([]ActivityRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.cfg.Pool.Query(ctx, `
		SELECT activity_id, member_id, category, evidence_hash, requested_score, awarded_score, capped, oracle, occurred_at
		FROM activities
		WHERE member_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2`,
		member.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var out []ActivityRow
	for rows.Next() {
		var r ActivityRow
		if err := rows.Scan(&r.ActivityID, &r.MemberID, &r.Category, &r.EvidenceHash,
			&r.RequestedScore, &r.AwardedScore, &r.Capped, &r.Oracle, &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DistributionRow is a persisted distribution summary.
type DistributionRow struct {
	ID             uuid.UUID      `json:"id"`
	Amount         economy.Amount `json:"amount"`
	UserAmount     economy.Amount `json:"user_amount"`
	InvestorAmount economy.Amount `json:"investor_amount"`
	OpsAmount      economy.Amount `json:"ops_amount"`
	ReserveAmount  economy.Amount `json:"reserve_amount"`
	InvestorPaid   economy.Amount `json:"investor_paid"`
	CarriedToUsers economy.Amount `json:"carried_to_users"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// Distributions returns the most recent distributions.
func (j *Journal) Distributions(ctx context.Context, limit int) ([]DistributionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.cfg.Pool.Query(ctx, `
		SELECT id, amount::text, user_amount::text, investor_amount::text, ops_amount::text,
		       reserve_amount::text, investor_paid::text, carried_to_users::text, occurred_at
		FROM distributions
		ORDER BY occurred_at DESC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query distributions: %w", err)
	}
	defer rows.Close()

	var out []DistributionRow
	for rows.Next() {
		var (
			r    DistributionRow
			cols [7]string
		)
		if err := rows.Scan(&r.ID, &cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6], &r.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan distribution row: %w", err)
		}
		dests := []*economy.Amount{&r.Amount, &r.UserAmount, &r.InvestorAmount, &r.OpsAmount, &r.ReserveAmount, &r.InvestorPaid, &r.CarriedToUsers}
		for i, dest := range dests {
			v, err := amountFromNumeric(cols[i])
			if err != nil {
				return nil, fmt.Errorf("failed to parse distribution amount: %w", err)
			}
			*dest = v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InvestorRow is a persisted investor snapshot.
type InvestorRow struct {
	Address           string         `json:"address"`
	InitialInvestment economy.Amount `json:"initial_investment"`
	RepaymentCap      economy.Amount `json:"repayment_cap"`
	PaidAmount        economy.Amount `json:"paid_amount"`
	CapReached        bool           `json:"cap_reached"`
	RegisteredAt      time.Time      `json:"registered_at"`
}

// Investors returns all persisted investor snapshots in registration order.
func (j *Journal) Investors(ctx context.Context) ([]InvestorRow, error) {
	rows, err := j.cfg.Pool.Query(ctx, `
		SELECT address, initial_investment::text, repayment_cap::text, paid_amount::text, cap_reached, registered_at
		FROM investors
		ORDER BY registered_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query investors: %w", err)
	}
	defer rows.Close()

	var out []InvestorRow
	for rows.Next() {
		var (
			r    InvestorRow
			cols [3]string
		)
		if err := rows.Scan(&r.Address, &cols[0], &cols[1], &cols[2], &r.CapReached, &r.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan investor row: %w", err)
		}
		dests := []*economy.Amount{&r.InitialInvestment, &r.RepaymentCap, &r.PaidAmount}
		for i, dest := range dests {
			v, err := amountFromNumeric(cols[i])
			if err != nil {
				return nil, fmt.Errorf("failed to parse investor amount: %w", err)
			}
			*dest = v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
