package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"

	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/economy"
	"github.com/DudeAdrian/Terracare-Ledger-sub000/internal/metrics"
)

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func parseAddressParam(w http.ResponseWriter, r *http.Request, name string) (economy.Address, bool) {
	addr, err := economy.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return addr, true
}

type recordActivityRequest struct {
	ActivityID    string `json:"activity_id"`
	MemberID      string `json:"member_id"`
	Category      string `json:"category"`
	EvidenceHash  string `json:"evidence_hash"`
	ValueScore    uint64 `json:"value_score"`
	PayoutAccount string `json:"payout_account,omitempty"`
}

func (req recordActivityRequest) toEngine() (economy.ActivityRequest, error) {
	member, err := economy.ParseAddress(req.MemberID)
	if err != nil {
		return economy.ActivityRequest{}, err
	}
	payout := member
	if req.PayoutAccount != "" {
		payout, err = economy.ParseAddress(req.PayoutAccount)
		if err != nil {
			return economy.ActivityRequest{}, err
		}
	}
	return economy.ActivityRequest{
		ActivityID:    req.ActivityID,
		MemberID:      member,
		Category:      req.Category,
		EvidenceHash:  req.EvidenceHash,
		ValueScore:    req.ValueScore,
		PayoutAccount: payout,
	}, nil
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	span := sentry.StartSpan(r.Context(), "engine.record_activity")
	defer span.Finish()

	var body recordActivityRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.toEngine()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.cfg.Issuer.RecordActivity(span.Context(), principalFrom(r).Address, req)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		metrics.ActivitiesTotal.WithLabelValues("error").Inc()
		writeEngineError(w, err)
		return
	}
	span.Status = sentry.SpanStatusOK
	metrics.ActivitiesTotal.WithLabelValues("success").Inc()
	metrics.PointsAwardedTotal.Add(float64(res.AwardedScore))
	writeJSON(w, http.StatusCreated, res)
}

type batchRecordRequest struct {
	Activities []recordActivityRequest `json:"activities"`
}

func (s *Server) handleBatchRecordActivities(w http.ResponseWriter, r *http.Request) {
	span := sentry.StartSpan(r.Context(), "engine.batch_record_activities")
	defer span.Finish()

	var body batchRecordRequest
	if !decodeBody(w, r, &body) {
		return
	}
	reqs := make([]economy.ActivityRequest, 0, len(body.Activities))
	for _, a := range body.Activities {
		req, err := a.toEngine()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		reqs = append(reqs, req)
	}

	res, err := s.cfg.Issuer.BatchRecordActivities(span.Context(), principalFrom(r).Address, reqs)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		metrics.ActivitiesTotal.WithLabelValues("error").Inc()
		writeEngineError(w, err)
		return
	}
	span.Status = sentry.SpanStatusOK
	for _, item := range res.Results {
		metrics.ActivitiesTotal.WithLabelValues("success").Inc()
		metrics.PointsAwardedTotal.Add(float64(item.AwardedScore))
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.cfg.Issuer.Activity(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "activity not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDailyPoints(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParam(w, r, "address")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{
		"remaining_daily_points": s.cfg.Issuer.RemainingDailyPoints(addr),
	})
}

type convertRequest struct {
	CreditAmount economy.Amount `json:"credit_amount"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var body convertRequest
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.cfg.Ledger.Convert(r.Context(), principalFrom(r).Address, body.CreditAmount)
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues("error").Inc()
		writeEngineError(w, err)
		return
	}
	metrics.ConversionsTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, res)
}

type stakeRequest struct {
	Amount      economy.Amount `json:"amount"`
	LockSeconds int64          `json:"lock_seconds"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var body stakeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	caller := principalFrom(r).Address
	if err := s.cfg.Ledger.Stake(r.Context(), caller, body.Amount, secondsToDuration(body.LockSeconds)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Ledger.Account(caller))
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	caller := principalFrom(r).Address
	amount, err := s.cfg.Ledger.Unstake(r.Context(), caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]economy.Amount{"unstaked": amount})
}

type burnRequest struct {
	Amount economy.Amount `json:"amount"`
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var body burnRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.cfg.Ledger.Burn(r.Context(), principalFrom(r).Address, body.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "burned"})
}

type penaltyBurnRequest struct {
	Account string         `json:"account"`
	Amount  economy.Amount `json:"amount"`
}

func (s *Server) handlePenaltyBurn(w http.ResponseWriter, r *http.Request) {
	var body penaltyBurnRequest
	if !decodeBody(w, r, &body) {
		return
	}
	target, err := economy.ParseAddress(body.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.cfg.Ledger.AdminPenaltyBurn(r.Context(), principalFrom(r).Address, target, body.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "penalized"})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParam(w, r, "address")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Ledger.Account(addr))
}

func (s *Server) handleVotingWeight(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParam(w, r, "address")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]economy.Amount{
		"voting_weight": s.cfg.Ledger.VotingWeight(addr),
	})
}

func (s *Server) handleSupply(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]economy.Amount{
		"credit_supply":  s.cfg.Ledger.CreditSupply(),
		"utility_supply": s.cfg.Ledger.UtilitySupply(),
	})
}

type addInvestorRequest struct {
	Address              string         `json:"address"`
	InitialInvestment    economy.Amount `json:"initial_investment"`
	CapMultiplierPercent uint64         `json:"cap_multiplier_percent"`
}

func (s *Server) handleAddInvestor(w http.ResponseWriter, r *http.Request) {
	var body addInvestorRequest
	if !decodeBody(w, r, &body) {
		return
	}
	addr, err := economy.ParseAddress(body.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	inv, err := s.cfg.Splitter.AddInvestor(r.Context(), principalFrom(r).Address, addr, body.InitialInvestment, body.CapMultiplierPercent)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleListInvestors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Splitter.Investors())
}

func (s *Server) handleGetInvestor(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParam(w, r, "address")
	if !ok {
		return
	}
	inv, found := s.cfg.Splitter.InvestorProgress(addr)
	if !found {
		writeError(w, http.StatusNotFound, "investor not found")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleGetSplit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Splitter.Split())
}

func (s *Server) handleSetSplit(w http.ResponseWriter, r *http.Request) {
	var body economy.SplitConfig
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.cfg.Splitter.SetSplit(r.Context(), principalFrom(r).Address, body); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

type amountRequest struct {
	Amount economy.Amount `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var body amountRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.cfg.Splitter.Deposit(r.Context(), principalFrom(r).Address, body.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]economy.Amount{"holding": s.cfg.Splitter.HoldingBalance()})
}

func (s *Server) handleDistribute(w http.ResponseWriter, r *http.Request) {
	span := sentry.StartSpan(r.Context(), "engine.distribute")
	defer span.Finish()

	var body amountRequest
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.cfg.Splitter.Distribute(span.Context(), principalFrom(r).Address, body.Amount)
	if err != nil {
		span.Status = sentry.SpanStatusInternalError
		metrics.DistributionsTotal.WithLabelValues("error").Inc()
		writeEngineError(w, err)
		return
	}
	span.Status = sentry.SpanStatusOK
	metrics.DistributionsTotal.WithLabelValues("success").Inc()
	metrics.InvestorPaymentsTotal.Add(float64(res.InvestorPayments))
	writeJSON(w, http.StatusOK, res)
}

type buybackRequest struct {
	UtilityAmount economy.Amount `json:"utility_amount"`
}

func (s *Server) handleBuyback(w http.ResponseWriter, r *http.Request) {
	var body buybackRequest
	if !decodeBody(w, r, &body) {
		return
	}
	paid, err := s.cfg.Splitter.SellBack(r.Context(), principalFrom(r).Address, body.UtilityAmount)
	if err != nil {
		metrics.BuybacksTotal.WithLabelValues("error").Inc()
		writeEngineError(w, err)
		return
	}
	metrics.BuybacksTotal.WithLabelValues("success").Inc()
	writeJSON(w, http.StatusOK, map[string]economy.Amount{"paid": paid})
}

type buybackPriceRequest struct {
	Price economy.Amount `json:"price"`
}

func (s *Server) handleSetBuybackPrice(w http.ResponseWriter, r *http.Request) {
	var body buybackPriceRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.cfg.Splitter.SetBuybackPrice(r.Context(), principalFrom(r).Address, body.Price); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]economy.Amount{"price": body.Price})
}

type buybackEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetBuybackEnabled(w http.ResponseWriter, r *http.Request) {
	var body buybackEnabledRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.cfg.Splitter.SetBuybackEnabled(r.Context(), principalFrom(r).Address, body.Enabled); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Splitter.Totals())
}

func (s *Server) handleHistoryDistributions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}
	rows, err := s.cfg.Journal.Distributions(r.Context(), 100)
	if err != nil {
		s.log.Error("failed to query distribution history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHistoryActivities(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}
	addr, ok := parseAddressParam(w, r, "address")
	if !ok {
		return
	}
	rows, err := s.cfg.Journal.MemberActivities(r.Context(), addr, 100)
	if err != nil {
		s.log.Error("failed to query activity history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
