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

// Daily issuance limits. A member can be awarded at most DefaultDailyCap
// value points per UTC calendar day, and no single activity may claim more
// than DefaultMaxActivityScore.
const (
	DefaultDailyCap         = 100
	DefaultMaxActivityScore = 100
)

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Authorizer Authorizer
	Events     Sink
	Ledger     *Ledger

	// Minter is the identity the issuer mints under. It must hold the
	// minter role with the ledger's authorizer.
	Minter Address

	// DailyCap is the per-member daily point budget. Zero selects 100.
	DailyCap uint64

	// MaxActivityScore bounds a single activity's value score. Zero
	// selects 100.
	MaxActivityScore uint64
}

func (cfg *IssuerConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Authorizer == nil {
		return errors.New("authorizer is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger is required")
	}
	if cfg.Minter == "" {
		return errors.New("minter address is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Events == nil {
		cfg.Events = NopSink{}
	}
	if cfg.DailyCap == 0 {
		cfg.DailyCap = DefaultDailyCap
	}
	if cfg.MaxActivityScore == 0 {
		cfg.MaxActivityScore = DefaultMaxActivityScore
	}
	return nil
}

// ActivityRecord is the write-once record of an attested activity. The
// stored value score is post-cap.
type ActivityRecord struct {
	ActivityID   string    `json:"activity_id"`
	MemberID     Address   `json:"member_id"`
	Category     string    `json:"category"`
	EvidenceHash string    `json:"evidence_hash"`
	ValueScore   uint64    `json:"value_score"`
	RecordedAt   time.Time `json:"recorded_at"`
	Oracle       Address   `json:"oracle"`
}

// ActivityRequest is one attested activity submitted by an oracle.
type ActivityRequest struct {
	ActivityID    string  `json:"activity_id"`
	MemberID      Address `json:"member_id"`
	Category      string  `json:"category"`
	EvidenceHash  string  `json:"evidence_hash"`
	ValueScore    uint64  `json:"value_score"`
	PayoutAccount Address `json:"payout_account"`
}

// ActivityResult reports the applied outcome, which may be smaller than
// requested when the daily cap clipped the award.
type ActivityResult struct {
	ActivityID     string `json:"activity_id"`
	RequestedScore uint64 `json:"requested_score"`
	AwardedScore   uint64 `json:"awarded_score"`
	Capped         bool   `json:"capped"`
	RemainingToday uint64 `json:"remaining_today"`
	CreditMinted   Amount `json:"credit_minted"`
}

// BatchResult reports a bulk submission. Skipped holds activity ids that
// already had records and were idempotently ignored.
type BatchResult struct {
	Results []ActivityResult `json:"results"`
	Skipped []string         `json:"skipped"`
}

type bucketKey struct {
	member Address
	day    int64
}

// Issuer validates attested activities, enforces the rolling per-member
// daily cap, and mints participation credit through the ledger. Day buckets
// are created lazily per (member, UTC day) and never reset in place; a new
// day simply reads a fresh bucket.
type Issuer struct {
	log *slog.Logger
	cfg IssuerConfig

	mu      sync.Mutex
	records map[string]*ActivityRecord
	buckets map[bucketKey]uint64
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Issuer{
		log:     cfg.Logger,
		cfg:     cfg,
		records: make(map[string]*ActivityRecord),
		buckets: make(map[bucketKey]uint64),
	}, nil
}

func dayIndex(t time.Time) int64 {
	return t.UTC().Unix() / 86400
}

func (is *Issuer) validateRequest(req ActivityRequest) error {
	if req.ValueScore == 0 || req.ValueScore > is.cfg.MaxActivityScore {
		return fmt.Errorf("activity %q score %d: %w (1..%d)",
			req.ActivityID, req.ValueScore, ErrInvalidScore, is.cfg.MaxActivityScore)
	}
	if req.EvidenceHash == "" {
		return fmt.Errorf("activity %q: %w", req.ActivityID, ErrMissingEvidence)
	}
	return nil
}

// apply records one validated, non-duplicate request under is.mu and mints
// any awarded credit.
func (is *Issuer) apply(ctx context.Context, caller Address, req ActivityRequest) (ActivityResult, error) {
	now := is.cfg.Clock.Now().UTC()
	key := bucketKey{member: req.MemberID, day: dayIndex(now)}
	used := is.buckets[key]

	remaining := uint64(0)
	if used < is.cfg.DailyCap {
		remaining = is.cfg.DailyCap - used
	}
	awarded := req.ValueScore
	if awarded > remaining {
		awarded = remaining
	}
	capped := awarded < req.ValueScore

	is.records[req.ActivityID] = &ActivityRecord{
		ActivityID:   req.ActivityID,
		MemberID:     req.MemberID,
		Category:     req.Category,
		EvidenceHash: req.EvidenceHash,
		ValueScore:   awarded,
		RecordedAt:   now,
		Oracle:       caller,
	}
	is.buckets[key] = used + awarded

	var minted Amount
	if awarded > 0 {
		payout := req.PayoutAccount
		if payout == "" {
			payout = req.MemberID
		}
		var err error
		minted, err = is.cfg.Ledger.Mint(ctx, is.cfg.Minter, payout, awarded)
		if err != nil {
			// Minting cannot fail for a positive award unless the wiring
			// revoked the issuer's minter grant; undo the record so the
			// call stays all-or-nothing.
			delete(is.records, req.ActivityID)
			is.buckets[key] = used
			return ActivityResult{}, fmt.Errorf("failed to mint credit for activity %q: %w", req.ActivityID, err)
		}
	}

	if capped {
		is.log.Info("issuer: daily cap reached", "member", req.MemberID, "requested", req.ValueScore, "awarded", awarded)
	}
	is.cfg.Events.Publish(ctx, ActivityRecorded{
		eventBase:      eventBase{OccurredAt: now},
		ActivityID:     req.ActivityID,
		MemberID:       req.MemberID,
		Category:       req.Category,
		EvidenceHash:   req.EvidenceHash,
		RequestedScore: req.ValueScore,
		AwardedScore:   awarded,
		Capped:         capped,
		Oracle:         caller,
	})

	return ActivityResult{
		ActivityID:     req.ActivityID,
		RequestedScore: req.ValueScore,
		AwardedScore:   awarded,
		Capped:         capped,
		RemainingToday: remaining - awarded,
		CreditMinted:   minted,
	}, nil
}

// RecordActivity validates and records one attested activity, silently
// capping the award to the member's remaining daily budget. Restricted to
// the oracle role. Duplicate activity ids abort with ErrDuplicateActivity.
func (is *Issuer) RecordActivity(ctx context.Context, caller Address, req ActivityRequest) (ActivityResult, error) {
	if err := requireRole(is.cfg.Authorizer, caller, RoleOracle); err != nil {
		return ActivityResult{}, err
	}
	if err := is.validateRequest(req); err != nil {
		return ActivityResult{}, err
	}

	is.mu.Lock()
	defer is.mu.Unlock()
	if _, exists := is.records[req.ActivityID]; exists {
		return ActivityResult{}, fmt.Errorf("activity %q: %w", req.ActivityID, ErrDuplicateActivity)
	}
	return is.apply(ctx, caller, req)
}

// BatchRecordActivities applies the per-activity logic to every request in
// one call. Entries whose id already has a record are skipped rather than
// failing the batch, which keeps bulk oracle retries idempotent. Any other
// validation failure aborts the whole batch before any entry is applied.
func (is *Issuer) BatchRecordActivities(ctx context.Context, caller Address, reqs []ActivityRequest) (BatchResult, error) {
	if err := requireRole(is.cfg.Authorizer, caller, RoleOracle); err != nil {
		return BatchResult{}, err
	}
	for _, req := range reqs {
		if err := is.validateRequest(req); err != nil {
			return BatchResult{}, err
		}
	}

	is.mu.Lock()
	defer is.mu.Unlock()

	var out BatchResult
	seen := make(map[string]bool, len(reqs))
	for _, req := range reqs {
		if _, exists := is.records[req.ActivityID]; exists || seen[req.ActivityID] {
			out.Skipped = append(out.Skipped, req.ActivityID)
			continue
		}
		seen[req.ActivityID] = true
		res, err := is.apply(ctx, caller, req)
		if err != nil {
			return BatchResult{}, err
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

// RemainingDailyPoints returns the member's unclaimed point budget for the
// current UTC day.
func (is *Issuer) RemainingDailyPoints(member Address) uint64 {
	is.mu.Lock()
	defer is.mu.Unlock()
	used := is.buckets[bucketKey{member: member, day: dayIndex(is.cfg.Clock.Now())}]
	if used >= is.cfg.DailyCap {
		return 0
	}
	return is.cfg.DailyCap - used
}

// CanEarnPoints reports whether the full requested amount fits in today's
// budget. This is a pre-flight hint with exact comparison; RecordActivity
// itself caps rather than rejects.
func (is *Issuer) CanEarnPoints(member Address, requested uint64) bool {
	is.mu.Lock()
	defer is.mu.Unlock()
	used := is.buckets[bucketKey{member: member, day: dayIndex(is.cfg.Clock.Now())}]
	if used >= is.cfg.DailyCap {
		return requested == 0
	}
	return requested <= is.cfg.DailyCap-used
}

// Activity returns the write-once record for an activity id, if present.
func (is *Issuer) Activity(activityID string) (ActivityRecord, bool) {
	is.mu.Lock()
	defer is.mu.Unlock()
	rec, ok := is.records[activityID]
	if !ok {
		return ActivityRecord{}, false
	}
	return *rec, true
}
