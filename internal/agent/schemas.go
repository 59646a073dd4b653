package agent

// Tool input types. None of them carries a user identifier: user-scoped
// tools are bound to the authenticated principal at dispatch.

// InsuredInput identifies the person being insured.
type InsuredInput struct {
	Name     string `json:"name" jsonschema_description:"Name of the person insured"`
	Relation string `json:"relation" jsonschema_description:"Relationship to customer (e.g., self, spouse, child)"`
	DOB      string `json:"dob" jsonschema_description:"Date of birth in ISO format (YYYY-MM-DD)"`
}

// BeneficiaryInput names one benefit recipient.
type BeneficiaryInput struct {
	Name     string `json:"name" jsonschema_description:"Beneficiary name"`
	Relation string `json:"relation" jsonschema_description:"Relationship to insured"`
}

// PurchaseInsuranceInput defines input for purchase_insurance.
type PurchaseInsuranceInput struct {
	PlanName      string             `json:"planName" jsonschema_description:"The name of the insurance plan (e.g., 'Basic Health Insurance'). Use get_all_plans to see available plans."`
	AgentID       string             `json:"agentId,omitempty" jsonschema_description:"Optional agent ID selling this policy (auto-assigned if not provided)"`
	Insured       InsuredInput       `json:"insured" jsonschema_description:"The person this policy covers"`
	Beneficiaries []BeneficiaryInput `json:"beneficiaries,omitempty" jsonschema_description:"List of beneficiaries who will receive benefits"`
	CustomerPhone string             `json:"customerPhone" jsonschema_description:"Customer's phone number"`
}

// RenewInsuranceInput defines input for renew_insurance.
type RenewInsuranceInput struct {
	PolicyNumber string `json:"policyNumber" jsonschema_description:"The policy number (e.g., POL-1731234567890-ABCD1234) of the policy to renew"`
}

// CancelInsuranceInput defines input for cancel_insurance.
type CancelInsuranceInput struct {
	PolicyNumber string `json:"policyNumber" jsonschema_description:"The policy number of the policy to cancel"`
	Reason       string `json:"reason,omitempty" jsonschema_description:"Optional reason for cancellation (e.g., 'Customer requested', 'Found better plan')"`
}

// GetInsuranceInput defines input for get_insurance. The user comes from
// the authentication context, so there is nothing to supply.
type GetInsuranceInput struct{}

// GetInsuranceByNumberInput defines input for get_insurance_by_policy_number.
type GetInsuranceByNumberInput struct {
	PolicyNumber string `json:"policyNumber" jsonschema_description:"The policy number of the insurance policy"`
}

// GetAllPlansInput defines input for get_all_plans.
type GetAllPlansInput struct{}

// GetPlanByIDInput defines input for get_plan_by_id.
type GetPlanByIDInput struct {
	PlanID string `json:"planId" jsonschema_description:"The ID of the insurance plan"`
}

// GetPlansByCategoryInput defines input for get_plans_by_category.
type GetPlansByCategoryInput struct {
	Category string `json:"category" jsonschema_description:"The category of insurance plans to retrieve (health, life, motor, or home)"`
}

// KnowledgeQueryInput defines input for general_assistant_knowledge.
type KnowledgeQueryInput struct {
	Query string `json:"query" jsonschema_description:"The question or topic to search the knowledge base and uploaded documents for"`
}
