package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	usagesvc "switchboard/internal/services/usage"
	"switchboard/pkg/errors"
)

type usageResponse struct {
	TotalCostUSD decimal.Decimal       `json:"total_cost_usd"`
	Models       []usagesvc.ModelUsage `json:"models"`
}

type costResponse struct {
	From  time.Time                  `json:"from"`
	To    time.Time                  `json:"to"`
	Costs map[string]decimal.Decimal `json:"costs"`
}

func (s *handlers) usageTotals(w http.ResponseWriter, r *http.Request) {
	if s.deps.Usage == nil {
		writeJSON(w, http.StatusOK, usageResponse{TotalCostUSD: decimal.Zero, Models: []usagesvc.ModelUsage{}})
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		TotalCostUSD: s.deps.Usage.TotalCost(),
		Models:       s.deps.Usage.List(),
	})
}

// usageCosts groups stored costs by provider, or by model when ?provider= is set.
func (s *handlers) usageCosts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Costs == nil {
		s.writeError(w, r, errors.Wrap(errors.ErrProviderUnavailable, "usage analytics store is not configured"))
		return
	}

	from, to, err := parseWindow(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var costs map[string]decimal.Decimal
	if provider := r.URL.Query().Get("provider"); provider != "" {
		costs, err = s.deps.Costs.GetModelCosts(r.Context(), provider, from, to)
	} else {
		costs, err = s.deps.Costs.GetProviderCosts(r.Context(), from, to)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, costResponse{From: from, To: to, Costs: costs})
}
