package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ecomsimply/repricer/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Rules

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule storage.PricingRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := s.repo.CreateRule(&rule)
	switch {
	case errors.Is(err, storage.ErrInvalidRule):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrDuplicateRule):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("create rule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create rule")
	default:
		writeJSON(w, http.StatusCreated, rule)
	}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rules, err := s.repo.ListRules(q.Get("user_id"), q.Get("status"), q.Get("marketplace_id"))
	if err != nil {
		s.logger.Error("list rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.repo.GetRule(r.PathValue("id"))
	if errors.Is(err, storage.ErrRuleNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("get rule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rule")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

type ruleUpdateRequest struct {
	MinPrice     *float64 `json:"min_price"`
	MaxPrice     *float64 `json:"max_price"`
	VariancePct  *float64 `json:"variance_pct"`
	MAPPrice     *float64 `json:"map_price"`
	CostPrice    *float64 `json:"cost_price"`
	Strategy     *string  `json:"strategy"`
	MarginTarget *float64 `json:"margin_target"`
	Status       *string  `json:"status"`
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.repo.GetRule(r.PathValue("id"))
	if errors.Is(err, storage.ErrRuleNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rule")
		return
	}

	var req ruleUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.MinPrice != nil {
		rule.MinPrice = *req.MinPrice
	}
	if req.MaxPrice != nil {
		rule.MaxPrice = *req.MaxPrice
	}
	if req.VariancePct != nil {
		rule.VariancePct = *req.VariancePct
	}
	if req.MAPPrice != nil {
		rule.MAPPrice = req.MAPPrice
	}
	if req.CostPrice != nil {
		rule.CostPrice = req.CostPrice
	}
	if req.Strategy != nil {
		rule.Strategy = *req.Strategy
	}
	if req.MarginTarget != nil {
		rule.MarginTarget = req.MarginTarget
	}
	if req.Status != nil {
		rule.Status = *req.Status
	}

	err = s.repo.UpdateRule(rule)
	switch {
	case errors.Is(err, storage.ErrInvalidRule):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrVersionConflict):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("update rule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update rule")
	default:
		writeJSON(w, http.StatusOK, rule)
	}
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	err := s.repo.DeleteRule(r.PathValue("id"))
	if errors.Is(err, storage.ErrRuleNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("delete rule", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pricing

type calculateRequest struct {
	RuleID       string   `json:"rule_id"`
	CurrentPrice *float64 `json:"current_price"`
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	rule, err := s.repo.GetRule(req.RuleID)
	if errors.Is(err, storage.ErrRuleNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rule")
		return
	}

	calc := s.engine.CalculateOptimalPrice(r.Context(), rule, req.CurrentPrice, nil)
	writeJSON(w, http.StatusOK, calc)
}

type publishRequest struct {
	SKU           string  `json:"sku"`
	MarketplaceID string  `json:"marketplace_id"`
	Price         float64 `json:"price"`
	Method        string  `json:"method"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SKU == "" || req.MarketplaceID == "" || req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "sku, marketplace_id and a positive price are required")
		return
	}
	if req.Method == "" {
		req.Method = s.config.Pricing.PublishMethod
	}

	result := s.publisher.PublishPrice(r.Context(), req.SKU, req.MarketplaceID, req.Price, req.Method)
	writeJSON(w, http.StatusOK, result)
}

// History & stats

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.repo.ListHistory(q.Get("user_id"), q.Get("sku"), limit)
	if err != nil {
		s.logger.Error("list history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries, "count": len(entries)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.GetHistoryStats(r.URL.Query().Get("user_id"))
	if err != nil {
		s.logger.Error("history stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Batches

type createBatchRequest struct {
	UserID        string   `json:"user_id"`
	MarketplaceID string   `json:"marketplace_id"`
	SKUs          []string `json:"skus"`
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.MarketplaceID == "" || len(req.SKUs) == 0 {
		writeError(w, http.StatusBadRequest, "user_id, marketplace_id and a non-empty skus list are required")
		return
	}

	b, err := s.processor.NewBatch(req.UserID, req.MarketplaceID, req.SKUs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Detached from the request context: the batch outlives the HTTP call.
	go s.processor.Run(context.Background(), b)

	writeJSON(w, http.StatusAccepted, b)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.repo.GetBatch(r.PathValue("id"))
	if errors.Is(err, storage.ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("get batch", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load batch")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Dashboard

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	stats, err := s.repo.GetHistoryStats(userID)
	if err != nil {
		s.logger.Error("dashboard stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	rules, err := s.repo.ListRules(userID, storage.RuleStatusActive, "")
	if err != nil {
		s.logger.Error("dashboard rules", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	recent, err := s.repo.ListHistory(userID, "", 20)
	if err != nil {
		s.logger.Error("dashboard history", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":          stats,
		"active_rules":   len(rules),
		"recent_history": recent,
	})
}
