package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/insurance"
	"github.com/coverline/coverline/internal/log"
)

// InsuranceService is the read surface the handlers need. Mutations go
// through the conversational agent only.
type InsuranceService interface {
	Plans(ctx context.Context) ([]insurance.Plan, error)
	PlanByID(ctx context.Context, id uuid.UUID) (insurance.Plan, error)
	PlansByCategory(ctx context.Context, category string) ([]insurance.Plan, error)
	PoliciesForUser(ctx context.Context, p auth.Principal) ([]insurance.Policy, error)
	PolicyDetail(ctx context.Context, p auth.Principal, policyNumber string) (insurance.PolicyDetail, error)
}

type insuranceHandler struct {
	service InsuranceService
	logger  log.Logger
}

// listPlans returns the catalog, optionally filtered with ?category=.
func (h *insuranceHandler) listPlans(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	var (
		plans []insurance.Plan
		err   error
	)
	if category == "" {
		plans, err = h.service.Plans(r.Context())
	} else {
		plans, err = h.service.PlansByCategory(r.Context(), category)
	}
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if plans == nil {
		plans = []insurance.Plan{}
	}
	writeJSON(w, h.logger, http.StatusOK, plans)
}

func (h *insuranceHandler) getPlan(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_id", "plan id must be a UUID")
		return
	}

	plan, err := h.service.PlanByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, plan)
}

func (h *insuranceHandler) listPolicies(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	policies, err := h.service.PoliciesForUser(r.Context(), p)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if policies == nil {
		policies = []insurance.Policy{}
	}
	writeJSON(w, h.logger, http.StatusOK, policies)
}

func (h *insuranceHandler) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := auth.PrincipalFrom(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	detail, err := h.service.PolicyDetail(r.Context(), p, r.PathValue("policyNumber"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, detail)
}
