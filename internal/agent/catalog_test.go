package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/insurance"
	"github.com/coverline/coverline/internal/knowledge"
)

type fakePolicies struct {
	purchaseFn func(ctx context.Context, p auth.Principal, req insurance.PurchaseRequest) (insurance.PurchaseView, error)
	renewFn    func(ctx context.Context, p auth.Principal, policyNumber string) (insurance.RenewalView, error)
	cancelFn   func(ctx context.Context, p auth.Principal, policyNumber, reason string) (insurance.CancellationView, error)
	listFn     func(ctx context.Context, p auth.Principal) ([]insurance.Policy, error)
	detailFn   func(ctx context.Context, p auth.Principal, policyNumber string) (insurance.PolicyDetail, error)
}

func (f *fakePolicies) Purchase(ctx context.Context, p auth.Principal, req insurance.PurchaseRequest) (insurance.PurchaseView, error) {
	return f.purchaseFn(ctx, p, req)
}
func (f *fakePolicies) Renew(ctx context.Context, p auth.Principal, policyNumber string) (insurance.RenewalView, error) {
	return f.renewFn(ctx, p, policyNumber)
}
func (f *fakePolicies) Cancel(ctx context.Context, p auth.Principal, policyNumber, reason string) (insurance.CancellationView, error) {
	return f.cancelFn(ctx, p, policyNumber, reason)
}
func (f *fakePolicies) PoliciesForUser(ctx context.Context, p auth.Principal) ([]insurance.Policy, error) {
	return f.listFn(ctx, p)
}
func (f *fakePolicies) PolicyDetail(ctx context.Context, p auth.Principal, policyNumber string) (insurance.PolicyDetail, error) {
	return f.detailFn(ctx, p, policyNumber)
}

type fakePlans struct {
	plansFn      func(ctx context.Context) ([]insurance.Plan, error)
	byIDFn       func(ctx context.Context, id uuid.UUID) (insurance.Plan, error)
	byCategoryFn func(ctx context.Context, category string) ([]insurance.Plan, error)
}

func (f *fakePlans) Plans(ctx context.Context) ([]insurance.Plan, error) { return f.plansFn(ctx) }
func (f *fakePlans) PlanByID(ctx context.Context, id uuid.UUID) (insurance.Plan, error) {
	return f.byIDFn(ctx, id)
}
func (f *fakePlans) PlansByCategory(ctx context.Context, category string) ([]insurance.Plan, error) {
	return f.byCategoryFn(ctx, category)
}

type fakeRetriever struct {
	searchFn func(ctx context.Context, userID uuid.UUID, query string, topK int) ([]knowledge.Result, error)
}

func (f *fakeRetriever) SearchForUser(ctx context.Context, userID uuid.UUID, query string, topK int) ([]knowledge.Result, error) {
	return f.searchFn(ctx, userID, query, topK)
}

// newTestCatalog builds a catalog where every handler fails loudly unless
// the test overrides it.
func newTestCatalog(t *testing.T, policies *fakePolicies, plans *fakePlans, retriever *fakeRetriever) *Catalog {
	t.Helper()
	if policies == nil {
		policies = &fakePolicies{}
	}
	if plans == nil {
		plans = &fakePlans{}
	}
	if retriever == nil {
		retriever = &fakeRetriever{
			searchFn: func(context.Context, uuid.UUID, string, int) ([]knowledge.Result, error) {
				return nil, nil
			},
		}
	}
	c, err := NewCatalog(policies, plans, retriever)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func testPrincipal() auth.Principal {
	return auth.Principal{
		UserID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Email:  "alice@example.com",
		Role:   "user",
	}
}

func TestCatalogNames(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t, &fakePolicies{}, &fakePlans{}, nil)

	want := []string{
		"cancel_insurance",
		"general_assistant_knowledge",
		"get_all_plans",
		"get_insurance",
		"get_insurance_by_policy_number",
		"get_plan_by_id",
		"get_plans_by_category",
		"purchase_insurance",
		"renew_insurance",
	}
	got := c.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDispatchBindsPrincipal(t *testing.T) {
	t.Parallel()

	var got auth.Principal
	policies := &fakePolicies{
		listFn: func(_ context.Context, p auth.Principal) ([]insurance.Policy, error) {
			got = p
			return nil, nil
		},
	}
	c := newTestCatalog(t, policies, &fakePlans{}, nil)
	p := testPrincipal()

	if _, err := c.Dispatch(context.Background(), p, ToolGetInsurance, map[string]any{}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.UserID != p.UserID || got.Email != p.Email {
		t.Errorf("handler saw principal %+v, want %+v", got, p)
	}
}

func TestDispatchUnknownToolFedBackToModel(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t, &fakePolicies{}, &fakePlans{}, nil)

	out, err := c.Dispatch(context.Background(), testPrincipal(), "transfer_funds", map[string]any{})
	if err != nil {
		t.Fatalf("unknown tool must not abort the turn, got %v", err)
	}
	assertErrorOutput(t, out, "unknown tool")
}

func TestDispatchRejectsInvalidArguments(t *testing.T) {
	t.Parallel()

	renewCalled := false
	policies := &fakePolicies{
		renewFn: func(context.Context, auth.Principal, string) (insurance.RenewalView, error) {
			renewCalled = true
			return insurance.RenewalView{}, nil
		},
	}
	c := newTestCatalog(t, policies, &fakePlans{}, nil)

	// policyNumber must be a string.
	out, err := c.Dispatch(context.Background(), testPrincipal(), ToolRenewInsurance,
		map[string]any{"policyNumber": float64(42)})
	if err != nil {
		t.Fatalf("invalid arguments must not abort the turn, got %v", err)
	}
	assertErrorOutput(t, out, "")
	if renewCalled {
		t.Error("handler ran despite failed schema validation")
	}
}

func TestDispatchDomainErrorFedBackToModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"not found", insurance.ErrNotFound},
		{"forbidden", insurance.ErrForbidden},
		{"validation", insurance.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			policies := &fakePolicies{
				renewFn: func(context.Context, auth.Principal, string) (insurance.RenewalView, error) {
					return insurance.RenewalView{}, tt.err
				},
			}
			c := newTestCatalog(t, policies, &fakePlans{}, nil)

			out, err := c.Dispatch(context.Background(), testPrincipal(), ToolRenewInsurance,
				map[string]any{"policyNumber": "POL-1-AAAAAAAA"})
			if err != nil {
				t.Fatalf("domain error must not abort the turn, got %v", err)
			}
			assertErrorOutput(t, out, "")
		})
	}
}

func TestDispatchInfrastructureErrorAborts(t *testing.T) {
	t.Parallel()

	infraErr := errors.New("connection refused")
	policies := &fakePolicies{
		renewFn: func(context.Context, auth.Principal, string) (insurance.RenewalView, error) {
			return insurance.RenewalView{}, infraErr
		},
	}
	c := newTestCatalog(t, policies, &fakePlans{}, nil)

	out, err := c.Dispatch(context.Background(), testPrincipal(), ToolRenewInsurance,
		map[string]any{"policyNumber": "POL-1-AAAAAAAA"})
	if err == nil {
		t.Fatalf("infrastructure failure must abort, got output %v", out)
	}
	if !errors.Is(err, infraErr) {
		t.Errorf("error = %v, want wrapped %v", err, infraErr)
	}
}

func TestDispatchPurchaseRejectsBadDateOfBirth(t *testing.T) {
	t.Parallel()

	purchased := false
	policies := &fakePolicies{
		purchaseFn: func(context.Context, auth.Principal, insurance.PurchaseRequest) (insurance.PurchaseView, error) {
			purchased = true
			return insurance.PurchaseView{}, nil
		},
	}
	c := newTestCatalog(t, policies, &fakePlans{}, nil)

	out, err := c.Dispatch(context.Background(), testPrincipal(), ToolPurchaseInsurance, map[string]any{
		"planName":      "Basic Health Insurance",
		"customerPhone": "+91-9876543210",
		"insured": map[string]any{
			"name":     "Alice",
			"relation": "self",
			"dob":      "15 March 1990",
		},
	})
	if err != nil {
		t.Fatalf("bad dob must not abort the turn, got %v", err)
	}
	assertErrorOutput(t, out, "YYYY-MM-DD")
	if purchased {
		t.Error("purchase ran despite invalid date of birth")
	}
}

func TestDispatchPurchaseConvertsInput(t *testing.T) {
	t.Parallel()

	agentID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	var got insurance.PurchaseRequest
	policies := &fakePolicies{
		purchaseFn: func(_ context.Context, _ auth.Principal, req insurance.PurchaseRequest) (insurance.PurchaseView, error) {
			got = req
			return insurance.PurchaseView{}, nil
		},
	}
	c := newTestCatalog(t, policies, &fakePlans{}, nil)

	_, err := c.Dispatch(context.Background(), testPrincipal(), ToolPurchaseInsurance, map[string]any{
		"planName":      "Basic Health Insurance",
		"customerPhone": "+91-9876543210",
		"agentId":       agentID.String(),
		"insured": map[string]any{
			"name":     "Alice",
			"relation": "self",
			"dob":      "1990-03-15",
		},
		"beneficiaries": []any{
			map[string]any{"name": "Bob", "relation": "spouse"},
		},
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got.PlanName != "Basic Health Insurance" {
		t.Errorf("plan name = %q", got.PlanName)
	}
	if got.Insured.DOB.Format("2006-01-02") != "1990-03-15" {
		t.Errorf("dob = %v", got.Insured.DOB)
	}
	if got.AgentID == nil || *got.AgentID != agentID {
		t.Errorf("agent id = %v, want %s", got.AgentID, agentID)
	}
	if len(got.Beneficiaries) != 1 || got.Beneficiaries[0].Name != "Bob" {
		t.Errorf("beneficiaries = %+v", got.Beneficiaries)
	}
}

func TestDispatchPlanByIDRejectsMalformedID(t *testing.T) {
	t.Parallel()

	plans := &fakePlans{
		byIDFn: func(context.Context, uuid.UUID) (insurance.Plan, error) {
			t.Error("handler ran despite malformed plan id")
			return insurance.Plan{}, nil
		},
	}
	c := newTestCatalog(t, &fakePolicies{}, plans, nil)

	out, err := c.Dispatch(context.Background(), testPrincipal(), ToolGetPlanByID,
		map[string]any{"planId": "not-a-uuid"})
	if err != nil {
		t.Fatalf("malformed id must not abort the turn, got %v", err)
	}
	assertErrorOutput(t, out, "UUID")
}

func TestKnowledgeToolReportsNoData(t *testing.T) {
	t.Parallel()

	retriever := &fakeRetriever{
		searchFn: func(context.Context, uuid.UUID, string, int) ([]knowledge.Result, error) {
			return nil, nil
		},
	}
	c := newTestCatalog(t, &fakePolicies{}, &fakePlans{}, retriever)

	out, err := c.Dispatch(context.Background(), testPrincipal(), ToolKnowledge,
		map[string]any{"query": "what is a deductible"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out != "There is no relevant data for what you asked." {
		t.Errorf("output = %v, want the fixed no-data statement", out)
	}
}

func TestKnowledgeToolSearchesAsCurrentUser(t *testing.T) {
	t.Parallel()

	p := testPrincipal()
	var gotUser uuid.UUID
	retriever := &fakeRetriever{
		searchFn: func(_ context.Context, userID uuid.UUID, _ string, _ int) ([]knowledge.Result, error) {
			gotUser = userID
			return []knowledge.Result{
				{Chunk: knowledge.Chunk{Content: "A deductible is the amount you pay first."}, Similarity: 0.9},
				{Chunk: knowledge.Chunk{Content: "Premiums are paid yearly."}, Similarity: 0.7},
			}, nil
		},
	}
	c := newTestCatalog(t, &fakePolicies{}, &fakePlans{}, retriever)

	out, err := c.Dispatch(context.Background(), p, ToolKnowledge,
		map[string]any{"query": "what is a deductible"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gotUser != p.UserID {
		t.Errorf("searched as %s, want %s", gotUser, p.UserID)
	}
	text, ok := out.(string)
	if !ok {
		t.Fatalf("output type = %T, want string", out)
	}
	if !strings.Contains(text, "deductible") || !strings.Contains(text, "Premiums") {
		t.Errorf("output missing passages: %q", text)
	}
}

// assertErrorOutput checks that out is the error-shaped payload dispatch
// produces for failures the model should react to.
func assertErrorOutput(t *testing.T, out any, contains string) {
	t.Helper()
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("output type = %T, want map with error key", out)
	}
	msg, ok := m["error"].(string)
	if !ok || msg == "" {
		t.Fatalf("output = %v, want non-empty error message", m)
	}
	if contains != "" && !strings.Contains(msg, contains) {
		t.Errorf("error = %q, want it to mention %q", msg, contains)
	}
}
