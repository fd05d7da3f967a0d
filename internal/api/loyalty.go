package api

import (
	"net/http"

	"techcare/internal/models"
)

// GET /api/loyalty
func (s *Server) handleLoyaltySummary(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	summary, err := s.svc.Loyalty.Summary(r.Context(), actor)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", summary)
}

// GET /api/loyalty/transactions
func (s *Server) handleLoyaltyTransactions(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	limit, offset, ok := page(w, r)
	if !ok {
		return
	}
	txs, err := s.svc.Loyalty.Transactions(r.Context(), actor, limit, offset)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", txs)
}

// GET /api/loyalty/rewards
func (s *Server) handleRewards(w http.ResponseWriter, r *http.Request, _ *models.Profile) {
	writeSuccess(w, http.StatusOK, "", s.svc.Loyalty.Rewards())
}

// POST /api/loyalty/rewards/{id}/redeem
func (s *Server) handleRedeemReward(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	redeemed, err := s.svc.Loyalty.Redeem(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Reward redeemed", redeemed)
}

// GET /api/loyalty/redeemed
func (s *Server) handleRedeemedRewards(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	rewards, err := s.svc.Loyalty.Redeemed(r.Context(), actor)
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", rewards)
}

// POST /api/loyalty/redeemed/{code}/use
func (s *Server) handleUseReward(w http.ResponseWriter, r *http.Request, actor *models.Profile) {
	used, err := s.svc.Loyalty.UseCode(r.Context(), actor, r.PathValue("code"))
	if err != nil {
		serviceError(w, r, s.logger, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Reward used", used)
}
