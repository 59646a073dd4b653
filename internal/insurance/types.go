// Package insurance implements the policy domain: plan catalog, customer
// records, policy purchase/renewal/cancellation, payments, and the
// customer-email ownership chain every policy read and mutation is
// checked against.
package insurance

import (
	"time"

	"github.com/google/uuid"
)

// Plan categories.
const (
	CategoryHealth = "health"
	CategoryLife   = "life"
	CategoryMotor  = "motor"
	CategoryHome   = "home"
)

// Policy statuses.
const (
	PolicyPending   = "pending"
	PolicyActive    = "active"
	PolicyLapsed    = "lapsed"
	PolicyCancelled = "cancelled"
)

// Payment types and statuses.
const (
	PaymentPurchase = "purchase"
	PaymentRenewal  = "renewal"
	PaymentRefund   = "refund"

	PaymentPending = "pending"
	PaymentSuccess = "success"
	PaymentFailed  = "failed"
)

// Renewal statuses.
const (
	RenewalRequested = "requested"
	RenewalCompleted = "completed"
	RenewalFailed    = "failed"
)

// Cancellation request statuses.
const (
	CancellationRequested = "requested"
	CancellationApproved  = "approved"
	CancellationRejected  = "rejected"
	CancellationRefunded  = "refunded"
)

// ValidCategory reports whether c is a known plan category.
func ValidCategory(c string) bool {
	switch c {
	case CategoryHealth, CategoryLife, CategoryMotor, CategoryHome:
		return true
	}
	return false
}

// Plan is a purchasable product from the catalog.
type Plan struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	BasePremium int64     `json:"basePremium"`
	SumInsured  int64     `json:"sumInsured"`
	Riders      []string  `json:"riders"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Customer is the policyholder record, keyed by email. A user account and
// its customer record are linked only through the email address.
type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
}

// SalesAgent sells policies; every policy is optionally attributed to one.
type SalesAgent struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Insured identifies the person a policy covers.
type Insured struct {
	Name     string    `json:"name"`
	Relation string    `json:"relation"`
	DOB      time.Time `json:"dob"`
}

// Beneficiary receives benefits under a policy.
type Beneficiary struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
}

// Policy is an issued insurance contract.
type Policy struct {
	ID            uuid.UUID     `json:"id"`
	PolicyNumber  string        `json:"policyNumber"`
	Status        string        `json:"status"`
	StartDate     time.Time     `json:"startDate"`
	EndDate       time.Time     `json:"endDate"`
	Premium       int64         `json:"premium"`
	Insured       Insured       `json:"insured"`
	Beneficiaries []Beneficiary `json:"beneficiaries"`
	CustomerID    uuid.UUID     `json:"customerId"`
	PlanID        uuid.UUID     `json:"planId"`
	AgentID       *uuid.UUID    `json:"agentId,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Payment is a money movement against a policy.
type Payment struct {
	ID         uuid.UUID  `json:"id"`
	PolicyID   uuid.UUID  `json:"policyId"`
	Type       string     `json:"type"`
	GatewayRef *string    `json:"gatewayRef,omitempty"`
	Amount     int64      `json:"amount"`
	Status     string     `json:"status"`
	PaidAt     *time.Time `json:"paidAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Renewal records one term extension of a policy.
type Renewal struct {
	ID          uuid.UUID `json:"id"`
	PolicyID    uuid.UUID `json:"policyId"`
	PreviousEnd time.Time `json:"previousEnd"`
	NewEnd      time.Time `json:"newEnd"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CancellationRequest records one request to terminate a policy.
type CancellationRequest struct {
	ID          uuid.UUID  `json:"id"`
	PolicyID    uuid.UUID  `json:"policyId"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requestedAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// Account is the slice of the user record this package needs for
// customer creation (the customer's default name and email).
type Account struct {
	ID       uuid.UUID
	Email    string
	Username string
}

// PurchaseView is what a successful purchase returns.
type PurchaseView struct {
	Policy   Policy   `json:"policy"`
	Customer Customer `json:"customer"`
	Plan     Plan     `json:"plan"`
	Payment  Payment  `json:"payment"`
}

// RenewalView is what a successful renewal returns.
type RenewalView struct {
	Policy  Policy  `json:"policy"`
	Renewal Renewal `json:"renewal"`
	Payment Payment `json:"payment"`
}

// CancellationView is what a successful cancellation returns.
type CancellationView struct {
	Policy       Policy              `json:"policy"`
	Cancellation CancellationRequest `json:"cancellation"`
}

// PolicyDetail is a policy with its full transaction history.
type PolicyDetail struct {
	Policy        Policy                `json:"policy"`
	Payments      []Payment             `json:"payments"`
	Renewals      []Renewal             `json:"renewals"`
	Cancellations []CancellationRequest `json:"cancellations"`
}
