package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"

	"github.com/coverline/coverline/internal/auth"
	"github.com/coverline/coverline/internal/insurance"
	"github.com/coverline/coverline/internal/knowledge"
)

// Tool names as exposed to the model.
const (
	ToolPurchaseInsurance    = "purchase_insurance"
	ToolRenewInsurance       = "renew_insurance"
	ToolCancelInsurance      = "cancel_insurance"
	ToolGetInsurance         = "get_insurance"
	ToolGetInsuranceByNumber = "get_insurance_by_policy_number"
	ToolGetAllPlans          = "get_all_plans"
	ToolGetPlanByID          = "get_plan_by_id"
	ToolGetPlansByCategory   = "get_plans_by_category"
	ToolKnowledge            = "general_assistant_knowledge"
)

// noRelevantData is the fixed reply of the knowledge tool when retrieval
// finds nothing. The system instruction tells the model to relay it
// verbatim instead of answering from its own knowledge.
const noRelevantData = "There is no relevant data for what you asked."

// errToolInput marks a dispatch failure the model caused: an unknown tool
// name or arguments that fail schema validation or decoding. These are
// fed back as tool results so the model can correct itself.
var errToolInput = errors.New("invalid tool input")

// PolicyService is the policy surface the catalog dispatches to. All
// user-scoped operations take the authenticated principal explicitly.
type PolicyService interface {
	Purchase(ctx context.Context, p auth.Principal, req insurance.PurchaseRequest) (insurance.PurchaseView, error)
	Renew(ctx context.Context, p auth.Principal, policyNumber string) (insurance.RenewalView, error)
	Cancel(ctx context.Context, p auth.Principal, policyNumber, reason string) (insurance.CancellationView, error)
	PoliciesForUser(ctx context.Context, p auth.Principal) ([]insurance.Policy, error)
	PolicyDetail(ctx context.Context, p auth.Principal, policyNumber string) (insurance.PolicyDetail, error)
}

// PlanCatalog is the read-only plan surface.
type PlanCatalog interface {
	Plans(ctx context.Context) ([]insurance.Plan, error)
	PlanByID(ctx context.Context, id uuid.UUID) (insurance.Plan, error)
	PlansByCategory(ctx context.Context, category string) ([]insurance.Plan, error)
}

// Retriever searches the document index scoped to one user.
type Retriever interface {
	SearchForUser(ctx context.Context, userID uuid.UUID, query string, topK int) ([]knowledge.Result, error)
}

// Tool is one dispatchable catalog entry. The input schema is resolved
// once at construction and every dispatch validates arguments against it
// before the handler runs.
type Tool struct {
	name        string
	description string
	schema      *jsonschema.Resolved
	run         func(ctx context.Context, p auth.Principal, args map[string]any) (any, error)
}

// Name returns the tool name as exposed to the model.
func (t *Tool) Name() string { return t.name }

// Description returns the model-facing tool description.
func (t *Tool) Description() string { return t.description }

// newTool builds a Tool whose handler receives the decoded typed input.
func newTool[T any](name, description string, run func(ctx context.Context, p auth.Principal, in T) (any, error)) (Tool, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return Tool{}, fmt.Errorf("schema for %s: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return Tool{}, fmt.Errorf("resolving schema for %s: %w", name, err)
	}
	return Tool{
		name:        name,
		description: description,
		schema:      resolved,
		run: func(ctx context.Context, p auth.Principal, args map[string]any) (any, error) {
			in, err := decodeArgs[T](args)
			if err != nil {
				return nil, err
			}
			return run(ctx, p, in)
		},
	}, nil
}

// decodeArgs converts validated argument maps into the typed input.
func decodeArgs[T any](args map[string]any) (T, error) {
	var in T
	raw, err := json.Marshal(args)
	if err != nil {
		return in, fmt.Errorf("%w: %v", errToolInput, err)
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("%w: %v", errToolInput, err)
	}
	return in, nil
}

// Catalog holds the full tool set and dispatches validated calls.
type Catalog struct {
	tools  []Tool
	byName map[string]*Tool
}

// NewCatalog assembles the complete tool set over the given services.
func NewCatalog(policies PolicyService, plans PlanCatalog, retriever Retriever) (*Catalog, error) {
	if policies == nil {
		return nil, errors.New("policy service is required")
	}
	if plans == nil {
		return nil, errors.New("plan catalog is required")
	}
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}

	c := &Catalog{}
	var err error
	addTool := func(t Tool, buildErr error) {
		if buildErr != nil && err == nil {
			err = buildErr
		}
		c.tools = append(c.tools, t)
	}

	addTool(newTool(ToolPurchaseInsurance,
		"Purchase a new insurance policy for the current user. Look up the plan with get_all_plans or get_plans_by_category first; the plan name must match the catalog exactly.",
		purchaseHandler(policies)))
	addTool(newTool(ToolRenewInsurance,
		"Renew an existing insurance policy by policy number, extending coverage by one year and recording a renewal payment.",
		renewHandler(policies)))
	addTool(newTool(ToolCancelInsurance,
		"Cancel an existing insurance policy by policy number. Records a cancellation request and marks the policy cancelled.",
		cancelHandler(policies)))
	addTool(newTool(ToolGetInsurance,
		"Get all insurance policies belonging to the current user.",
		listPoliciesHandler(policies)))
	addTool(newTool(ToolGetInsuranceByNumber,
		"Get one of the current user's insurance policies by policy number, including its payment, renewal and cancellation history.",
		policyDetailHandler(policies)))
	addTool(newTool(ToolGetAllPlans,
		"Get all available insurance plans with premiums, sum insured and riders.",
		allPlansHandler(plans)))
	addTool(newTool(ToolGetPlanByID,
		"Get a specific insurance plan by its ID.",
		planByIDHandler(plans)))
	addTool(newTool(ToolGetPlansByCategory,
		"Get insurance plans in a category: health, life, motor or home.",
		plansByCategoryHandler(plans)))
	addTool(newTool(ToolKnowledge,
		"Answer general questions, insurance concepts and questions about the user's uploaded documents from the knowledge base. Use this for anything not covered by the other tools.",
		knowledgeHandler(retriever)))
	if err != nil {
		return nil, err
	}

	c.byName = make(map[string]*Tool, len(c.tools))
	for i := range c.tools {
		c.byName[c.tools[i].name] = &c.tools[i]
	}
	return c, nil
}

// Names returns all tool names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tools))
	for i := range c.tools {
		names = append(names, c.tools[i].name)
	}
	sort.Strings(names)
	return names
}

// Refs returns tool references for model calls. Resolution happens in
// the Genkit registry, so RegisterTools must have run against the same
// instance the model call uses.
func (c *Catalog) Refs() []ai.ToolRef {
	refs := make([]ai.ToolRef, 0, len(c.tools))
	for i := range c.tools {
		refs = append(refs, ai.ToolName(c.tools[i].name))
	}
	return refs
}

// Tools returns the catalog entries in registration order.
func (c *Catalog) Tools() []*Tool {
	out := make([]*Tool, 0, len(c.tools))
	for i := range c.tools {
		out = append(out, &c.tools[i])
	}
	return out
}

// Dispatch validates args against the tool's schema and runs the handler
// with the authenticated principal. Failures the model can correct
// (unknown tool, invalid arguments, domain errors such as "policy not
// found") come back as an error-shaped output with a nil error so the
// caller can feed them to the model; a non-nil error means
// infrastructure failed and the turn must abort.
func (c *Catalog) Dispatch(ctx context.Context, p auth.Principal, name string, rawArgs any) (any, error) {
	tool, ok := c.byName[name]
	if !ok {
		return errorOutput(fmt.Errorf("%w: unknown tool %q", errToolInput, name)), nil
	}

	args, err := argsAsMap(rawArgs)
	if err != nil {
		return errorOutput(err), nil
	}
	if err := tool.schema.Validate(args); err != nil {
		return errorOutput(fmt.Errorf("%w: %v", errToolInput, err)), nil
	}

	out, err := tool.run(ctx, p, args)
	if err != nil {
		if businessError(err) {
			return errorOutput(err), nil
		}
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return out, nil
}

// argsAsMap normalizes the model-supplied input into a JSON object.
func argsAsMap(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		// Some models wrap arguments in a JSON string.
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return map[string]any{}, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
			return nil, fmt.Errorf("%w: arguments are not a JSON object: %v", errToolInput, err)
		}
		return m, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errToolInput, err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: arguments are not a JSON object: %v", errToolInput, err)
		}
		return m, nil
	}
}

// businessError reports whether err is a domain outcome the model should
// see and react to, as opposed to an infrastructure failure.
func businessError(err error) bool {
	return errors.Is(err, errToolInput) ||
		errors.Is(err, insurance.ErrNotFound) ||
		errors.Is(err, insurance.ErrForbidden) ||
		errors.Is(err, insurance.ErrValidation)
}

// errorOutput shapes a business failure as a tool result payload.
func errorOutput(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

func purchaseHandler(policies PolicyService) func(context.Context, auth.Principal, PurchaseInsuranceInput) (any, error) {
	return func(ctx context.Context, p auth.Principal, in PurchaseInsuranceInput) (any, error) {
		dob, err := time.Parse("2006-01-02", in.Insured.DOB)
		if err != nil {
			return nil, fmt.Errorf("%w: insured dob must be YYYY-MM-DD: %v", insurance.ErrValidation, err)
		}

		req := insurance.PurchaseRequest{
			PlanName: in.PlanName,
			Insured: insurance.Insured{
				Name:     in.Insured.Name,
				Relation: in.Insured.Relation,
				DOB:      dob,
			},
			CustomerPhone: in.CustomerPhone,
		}
		for _, b := range in.Beneficiaries {
			req.Beneficiaries = append(req.Beneficiaries, insurance.Beneficiary{
				Name:     b.Name,
				Relation: b.Relation,
			})
		}
		if in.AgentID != "" {
			agentID, err := uuid.Parse(in.AgentID)
			if err != nil {
				return nil, fmt.Errorf("%w: agent id must be a UUID: %v", insurance.ErrValidation, err)
			}
			req.AgentID = &agentID
		}

		return policies.Purchase(ctx, p, req)
	}
}

func renewHandler(policies PolicyService) func(context.Context, auth.Principal, RenewInsuranceInput) (any, error) {
	return func(ctx context.Context, p auth.Principal, in RenewInsuranceInput) (any, error) {
		return policies.Renew(ctx, p, in.PolicyNumber)
	}
}

func cancelHandler(policies PolicyService) func(context.Context, auth.Principal, CancelInsuranceInput) (any, error) {
	return func(ctx context.Context, p auth.Principal, in CancelInsuranceInput) (any, error) {
		return policies.Cancel(ctx, p, in.PolicyNumber, in.Reason)
	}
}

func listPoliciesHandler(policies PolicyService) func(context.Context, auth.Principal, GetInsuranceInput) (any, error) {
	return func(ctx context.Context, p auth.Principal, _ GetInsuranceInput) (any, error) {
		return policies.PoliciesForUser(ctx, p)
	}
}

func policyDetailHandler(policies PolicyService) func(context.Context, auth.Principal, GetInsuranceByNumberInput) (any, error) {
	return func(ctx context.Context, p auth.Principal, in GetInsuranceByNumberInput) (any, error) {
		return policies.PolicyDetail(ctx, p, in.PolicyNumber)
	}
}

func allPlansHandler(plans PlanCatalog) func(context.Context, auth.Principal, GetAllPlansInput) (any, error) {
	return func(ctx context.Context, _ auth.Principal, _ GetAllPlansInput) (any, error) {
		return plans.Plans(ctx)
	}
}

func planByIDHandler(plans PlanCatalog) func(context.Context, auth.Principal, GetPlanByIDInput) (any, error) {
	return func(ctx context.Context, _ auth.Principal, in GetPlanByIDInput) (any, error) {
		id, err := uuid.Parse(in.PlanID)
		if err != nil {
			return nil, fmt.Errorf("%w: plan id must be a UUID: %v", insurance.ErrValidation, err)
		}
		return plans.PlanByID(ctx, id)
	}
}

func plansByCategoryHandler(plans PlanCatalog) func(context.Context, auth.Principal, GetPlansByCategoryInput) (any, error) {
	return func(ctx context.Context, _ auth.Principal, in GetPlansByCategoryInput) (any, error) {
		return plans.PlansByCategory(ctx, in.Category)
	}
}

func knowledgeHandler(retriever Retriever) func(context.Context, auth.Principal, KnowledgeQueryInput) (any, error) {
	return func(ctx context.Context, p auth.Principal, in KnowledgeQueryInput) (any, error) {
		if strings.TrimSpace(in.Query) == "" {
			return nil, fmt.Errorf("%w: query is required", errToolInput)
		}

		results, err := retriever.SearchForUser(ctx, p.UserID, in.Query, 0)
		if err != nil {
			return nil, fmt.Errorf("searching knowledge base: %w", err)
		}
		if len(results) == 0 {
			return noRelevantData, nil
		}

		var b strings.Builder
		for i, r := range results {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(r.Chunk.Content)
		}
		return b.String(), nil
	}
}
