package insurance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/log"
)

// ErrValidation indicates a malformed request, rejected before any write.
var ErrValidation = errors.New("validation failed")

// DefaultCancellationReason is used when the caller gives no reason.
const DefaultCancellationReason = "User requested"

// policyTerm is the initial policy duration granted on purchase. Renewal
// extends by one calendar year instead.
const policyTerm = 365 * 24 * time.Hour

// Service implements policy purchase, renewal, cancellation, and the
// owner-scoped reads. Every operation takes the authenticated principal
// explicitly; ownership is resolved through the principal's account
// email, never through caller-supplied identifiers.
type Service struct {
	store  Querier
	logger log.Logger
}

// NewService creates the insurance service. A nil logger is replaced with
// a no-op logger.
func NewService(store Querier, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// PurchaseRequest is the validated input to Purchase. There is no field
// for the buyer's identity; it always comes from the principal.
type PurchaseRequest struct {
	PlanName      string
	Insured       Insured
	Beneficiaries []Beneficiary
	CustomerPhone string
	AgentID       *uuid.UUID
}

func (r PurchaseRequest) validate() error {
	switch {
	case r.PlanName == "":
		return fmt.Errorf("%w: plan name is required", ErrValidation)
	case r.Insured.Name == "":
		return fmt.Errorf("%w: insured name is required", ErrValidation)
	case r.Insured.Relation == "":
		return fmt.Errorf("%w: insured relation is required", ErrValidation)
	case r.Insured.DOB.IsZero():
		return fmt.Errorf("%w: insured date of birth is required", ErrValidation)
	case r.CustomerPhone == "":
		return fmt.Errorf("%w: customer phone is required", ErrValidation)
	}
	return nil
}

// Purchase buys a policy on the named plan for the principal. The
// customer record is found or created by the principal's account email,
// the policy starts now with a one-year term, and a successful purchase
// payment is recorded. All writes happen atomically, so a failed attempt
// leaves no partial records.
func (s *Service) Purchase(ctx context.Context, p auth.Principal, req PurchaseRequest) (PurchaseView, error) {
	if err := req.validate(); err != nil {
		return PurchaseView{}, err
	}

	account, err := s.store.AccountByID(ctx, p.UserID)
	if err != nil {
		return PurchaseView{}, err
	}

	plan, err := s.store.PlanByName(ctx, req.PlanName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PurchaseView{}, fmt.Errorf("%w: no plan named %q", ErrNotFound, req.PlanName)
		}
		return PurchaseView{}, err
	}

	agentID := req.AgentID
	if agentID != nil {
		if _, err := s.store.AgentByID(ctx, *agentID); err != nil {
			return PurchaseView{}, err
		}
	} else {
		agent, err := s.store.FirstActiveAgent(ctx)
		switch {
		case err == nil:
			agentID = &agent.ID
		case errors.Is(err, ErrNotFound):
			// No active agents; the policy is issued unattributed.
		default:
			return PurchaseView{}, err
		}
	}

	now := time.Now()
	rec := PurchaseRecord{
		CustomerName:  account.Username,
		CustomerEmail: account.Email,
		CustomerPhone: req.CustomerPhone,
		PolicyNumber:  newPolicyNumber(now),
		Premium:       plan.BasePremium,
		StartDate:     now,
		EndDate:       now.Add(policyTerm),
		Insured:       req.Insured,
		Beneficiaries: req.Beneficiaries,
		PlanID:        plan.ID,
		AgentID:       agentID,
	}

	customer, policy, payment, err := s.store.CreatePurchase(ctx, rec)
	if err != nil {
		return PurchaseView{}, err
	}

	s.logger.Info("policy purchased",
		"policy_number", policy.PolicyNumber,
		"plan", plan.Code,
		"user_id", p.UserID)

	return PurchaseView{Policy: policy, Customer: customer, Plan: plan, Payment: payment}, nil
}

// Renew extends the policy's end date by exactly one calendar year,
// records a renewal, and creates a pending renewal payment. Renewing
// twice extends twice; there is no cap.
func (s *Service) Renew(ctx context.Context, p auth.Principal, policyNumber string) (RenewalView, error) {
	policy, err := s.ownedPolicy(ctx, p, policyNumber)
	if err != nil {
		return RenewalView{}, err
	}

	previousEnd := policy.EndDate
	newEnd := previousEnd.AddDate(1, 0, 0)

	renewal, err := s.store.CreateRenewal(ctx, policy.ID, previousEnd, newEnd)
	if err != nil {
		return RenewalView{}, err
	}
	if err := s.store.RenewPolicy(ctx, policy.ID, newEnd); err != nil {
		return RenewalView{}, err
	}
	payment, err := s.store.CreatePayment(ctx, policy.ID, PaymentRenewal, policy.Premium, PaymentPending)
	if err != nil {
		return RenewalView{}, err
	}
	if err := s.store.SetRenewalStatus(ctx, renewal.ID, RenewalCompleted); err != nil {
		return RenewalView{}, err
	}
	renewal.Status = RenewalCompleted

	updated, err := s.store.PolicyByID(ctx, policy.ID)
	if err != nil {
		return RenewalView{}, err
	}

	s.logger.Info("policy renewed",
		"policy_number", policy.PolicyNumber,
		"new_end", newEnd,
		"user_id", p.UserID)

	return RenewalView{Policy: updated, Renewal: renewal, Payment: payment}, nil
}

// Cancel records a cancellation request, marks the policy cancelled, and
// approves the request immediately. Cancelling an already-cancelled
// policy records another request and leaves the status cancelled.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, policyNumber, reason string) (CancellationView, error) {
	if reason == "" {
		reason = DefaultCancellationReason
	}

	policy, err := s.ownedPolicy(ctx, p, policyNumber)
	if err != nil {
		return CancellationView{}, err
	}

	cancellation, err := s.store.CreateCancellation(ctx, policy.ID, reason)
	if err != nil {
		return CancellationView{}, err
	}
	if err := s.store.SetPolicyStatus(ctx, policy.ID, PolicyCancelled); err != nil {
		return CancellationView{}, err
	}

	resolvedAt := time.Now()
	if err := s.store.ResolveCancellation(ctx, cancellation.ID, CancellationApproved, resolvedAt); err != nil {
		return CancellationView{}, err
	}
	cancellation.Status = CancellationApproved
	cancellation.ResolvedAt = &resolvedAt

	updated, err := s.store.PolicyByID(ctx, policy.ID)
	if err != nil {
		return CancellationView{}, err
	}

	s.logger.Info("policy cancelled",
		"policy_number", policy.PolicyNumber,
		"user_id", p.UserID)

	return CancellationView{Policy: updated, Cancellation: cancellation}, nil
}

// PoliciesForUser returns all policies belonging to the principal's
// customer record. A principal with no customer record has no policies
// yet; that is an empty list, not an error.
func (s *Service) PoliciesForUser(ctx context.Context, p auth.Principal) ([]Policy, error) {
	account, err := s.store.AccountByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	customer, err := s.store.CustomerByEmail(ctx, account.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Policy{}, nil
		}
		return nil, err
	}

	return s.store.PoliciesByCustomer(ctx, customer.ID)
}

// PolicyDetail returns an ownership-checked policy with its full payment,
// renewal, and cancellation history.
func (s *Service) PolicyDetail(ctx context.Context, p auth.Principal, policyNumber string) (PolicyDetail, error) {
	policy, err := s.ownedPolicy(ctx, p, policyNumber)
	if err != nil {
		return PolicyDetail{}, err
	}

	payments, err := s.store.PaymentsByPolicy(ctx, policy.ID)
	if err != nil {
		return PolicyDetail{}, err
	}
	renewals, err := s.store.RenewalsByPolicy(ctx, policy.ID)
	if err != nil {
		return PolicyDetail{}, err
	}
	cancellations, err := s.store.CancellationsByPolicy(ctx, policy.ID)
	if err != nil {
		return PolicyDetail{}, err
	}

	return PolicyDetail{
		Policy:        policy,
		Payments:      payments,
		Renewals:      renewals,
		Cancellations: cancellations,
	}, nil
}

// Plans returns the full plan catalog. Catalog reads carry no identity
// scoping.
func (s *Service) Plans(ctx context.Context) ([]Plan, error) {
	return s.store.Plans(ctx)
}

// PlanByID returns a single plan.
func (s *Service) PlanByID(ctx context.Context, id uuid.UUID) (Plan, error) {
	return s.store.PlanByID(ctx, id)
}

// PlansByCategory returns the plans in one category. An unknown category
// or a category without plans reports ErrNotFound.
func (s *Service) PlansByCategory(ctx context.Context, category string) ([]Plan, error) {
	if !ValidCategory(category) {
		return nil, fmt.Errorf("%w: no plan category %q", ErrNotFound, category)
	}
	plans, err := s.store.PlansByCategory(ctx, category)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: no plans in category %q", ErrNotFound, category)
	}
	return plans, nil
}

// ownedPolicy resolves a policy by number and verifies the ownership
// chain: principal account → customer record on the policy → email
// match. A missing policy, account, or customer reports ErrNotFound; an
// email mismatch reports ErrForbidden. The asymmetry is deliberate:
// policy access denial is reported explicitly rather than masked as
// absence.
func (s *Service) ownedPolicy(ctx context.Context, p auth.Principal, policyNumber string) (Policy, error) {
	policy, err := s.store.PolicyByNumber(ctx, policyNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Policy{}, fmt.Errorf("%w: no policy with number %q", ErrNotFound, policyNumber)
		}
		return Policy{}, err
	}

	account, err := s.store.AccountByID(ctx, p.UserID)
	if err != nil {
		return Policy{}, err
	}
	customer, err := s.store.CustomerByID(ctx, policy.CustomerID)
	if err != nil {
		return Policy{}, err
	}
	if customer.Email != account.Email {
		return Policy{}, fmt.Errorf("%w: you do not have permission to access this policy", ErrForbidden)
	}
	return policy, nil
}

const policySuffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newPolicyNumber generates POL-<unix milliseconds>-<8 random uppercase
// alphanumerics>.
func newPolicyNumber(now time.Time) string {
	suffix := make([]byte, 8)
	rand.Read(suffix) //nolint:errcheck // never fails per crypto/rand docs
	for i, b := range suffix {
		suffix[i] = policySuffixAlphabet[int(b)%len(policySuffixAlphabet)]
	}
	return fmt.Sprintf("POL-%d-%s", now.UnixMilli(), suffix)
}
