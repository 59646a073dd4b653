package insurance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PurchaseRecord is everything a purchase writes, validated and resolved
// by the service before it reaches the store.
type PurchaseRecord struct {
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	PolicyNumber  string
	Premium       int64
	StartDate     time.Time
	EndDate       time.Time
	Insured       Insured
	Beneficiaries []Beneficiary
	PlanID        uuid.UUID
	AgentID       *uuid.UUID
}

// Querier is the data access surface the insurance service depends on.
// Implementations map "no rows" to ErrNotFound so the service never sees
// driver-level sentinels.
type Querier interface {
	AccountByID(ctx context.Context, id uuid.UUID) (Account, error)
	CustomerByID(ctx context.Context, id uuid.UUID) (Customer, error)
	CustomerByEmail(ctx context.Context, email string) (Customer, error)

	Plans(ctx context.Context) ([]Plan, error)
	PlanByID(ctx context.Context, id uuid.UUID) (Plan, error)
	PlanByName(ctx context.Context, name string) (Plan, error)
	PlansByCategory(ctx context.Context, category string) ([]Plan, error)

	AgentByID(ctx context.Context, id uuid.UUID) (SalesAgent, error)
	FirstActiveAgent(ctx context.Context) (SalesAgent, error)

	// CreatePurchase atomically finds-or-creates the customer and inserts
	// the policy and its purchase payment. Nothing is written on error.
	CreatePurchase(ctx context.Context, rec PurchaseRecord) (Customer, Policy, Payment, error)

	PolicyByID(ctx context.Context, id uuid.UUID) (Policy, error)
	PolicyByNumber(ctx context.Context, number string) (Policy, error)
	PoliciesByCustomer(ctx context.Context, customerID uuid.UUID) ([]Policy, error)
	RenewPolicy(ctx context.Context, policyID uuid.UUID, newEnd time.Time) error
	SetPolicyStatus(ctx context.Context, policyID uuid.UUID, status string) error

	CreatePayment(ctx context.Context, policyID uuid.UUID, typ string, amount int64, status string) (Payment, error)
	PaymentsByPolicy(ctx context.Context, policyID uuid.UUID) ([]Payment, error)

	CreateRenewal(ctx context.Context, policyID uuid.UUID, previousEnd, newEnd time.Time) (Renewal, error)
	SetRenewalStatus(ctx context.Context, id uuid.UUID, status string) error
	RenewalsByPolicy(ctx context.Context, policyID uuid.UUID) ([]Renewal, error)

	CreateCancellation(ctx context.Context, policyID uuid.UUID, reason string) (CancellationRequest, error)
	ResolveCancellation(ctx context.Context, id uuid.UUID, status string, at time.Time) error
	CancellationsByPolicy(ctx context.Context, policyID uuid.UUID) ([]CancellationRequest, error)
}

// Store implements Querier against PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an insurance store backed by the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) AccountByID(ctx context.Context, id uuid.UUID) (Account, error) {
	const query = `SELECT id, email, username FROM users WHERE id = $1`

	var a Account
	err := s.pool.QueryRow(ctx, query, id).Scan(&a.ID, &a.Email, &a.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: user", ErrNotFound)
		}
		return Account{}, fmt.Errorf("querying user: %w", err)
	}
	return a, nil
}

func (s *Store) CustomerByID(ctx context.Context, id uuid.UUID) (Customer, error) {
	const query = `SELECT id, name, email, phone, created_at FROM customers WHERE id = $1`
	return s.scanCustomer(s.pool.QueryRow(ctx, query, id))
}

func (s *Store) CustomerByEmail(ctx context.Context, email string) (Customer, error) {
	const query = `SELECT id, name, email, phone, created_at FROM customers WHERE email = $1`
	return s.scanCustomer(s.pool.QueryRow(ctx, query, email))
}

func (s *Store) scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, fmt.Errorf("%w: customer", ErrNotFound)
		}
		return Customer{}, fmt.Errorf("querying customer: %w", err)
	}
	return c, nil
}

const planColumns = `id, code, name, category, base_premium, sum_insured, riders, created_at`

func (s *Store) Plans(ctx context.Context) ([]Plan, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+planColumns+` FROM plans ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", err)
	}
	return scanPlans(rows)
}

func (s *Store) PlanByID(ctx context.Context, id uuid.UUID) (Plan, error) {
	return s.scanPlan(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
}

func (s *Store) PlanByName(ctx context.Context, name string) (Plan, error) {
	return s.scanPlan(s.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE name = $1`, name))
}

func (s *Store) PlansByCategory(ctx context.Context, category string) ([]Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+planColumns+` FROM plans WHERE category = $1 ORDER BY name`, category)
	if err != nil {
		return nil, fmt.Errorf("querying plans by category: %w", err)
	}
	return scanPlans(rows)
}

func (s *Store) scanPlan(row pgx.Row) (Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.BasePremium, &p.SumInsured, &p.Riders, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Plan{}, fmt.Errorf("%w: plan", ErrNotFound)
		}
		return Plan{}, fmt.Errorf("querying plan: %w", err)
	}
	return p, nil
}

func scanPlans(rows pgx.Rows) ([]Plan, error) {
	defer rows.Close()
	var plans []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.BasePremium, &p.SumInsured, &p.Riders, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plans: %w", err)
	}
	return plans, nil
}

const agentColumns = `id, code, name, email, status, created_at`

func (s *Store) AgentByID(ctx context.Context, id uuid.UUID) (SalesAgent, error) {
	return s.scanAgent(s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM sales_agents WHERE id = $1`, id))
}

func (s *Store) FirstActiveAgent(ctx context.Context) (SalesAgent, error) {
	return s.scanAgent(s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM sales_agents WHERE status = 'active' ORDER BY created_at LIMIT 1`))
}

func (s *Store) scanAgent(row pgx.Row) (SalesAgent, error) {
	var a SalesAgent
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Email, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SalesAgent{}, fmt.Errorf("%w: agent", ErrNotFound)
		}
		return SalesAgent{}, fmt.Errorf("querying agent: %w", err)
	}
	return a, nil
}

// CreatePurchase runs the customer find-or-create, policy insert, and
// payment insert in one transaction so a failed purchase leaves no rows
// behind.
func (s *Store) CreatePurchase(ctx context.Context, rec PurchaseRecord) (Customer, Policy, Payment, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Customer{}, Policy{}, Payment{}, fmt.Errorf("beginning purchase: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var customer Customer
	err = tx.QueryRow(ctx,
		`SELECT id, name, email, phone, created_at FROM customers WHERE email = $1`,
		rec.CustomerEmail).
		Scan(&customer.ID, &customer.Name, &customer.Email, &customer.Phone, &customer.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx,
			`INSERT INTO customers (name, email, phone) VALUES ($1, $2, $3)
			 RETURNING id, name, email, phone, created_at`,
			rec.CustomerName, rec.CustomerEmail, rec.CustomerPhone).
			Scan(&customer.ID, &customer.Name, &customer.Email, &customer.Phone, &customer.CreatedAt)
	}
	if err != nil {
		return Customer{}, Policy{}, Payment{}, fmt.Errorf("resolving customer: %w", err)
	}

	beneficiaries, err := json.Marshal(rec.Beneficiaries)
	if err != nil {
		return Customer{}, Policy{}, Payment{}, fmt.Errorf("encoding beneficiaries: %w", err)
	}

	var policy Policy
	var rawBeneficiaries []byte
	err = tx.QueryRow(ctx,
		`INSERT INTO policies (policy_number, status, start_date, end_date, premium,
		                       insured_name, insured_relation, insured_dob,
		                       beneficiaries, customer_id, plan_id, agent_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+policyColumns,
		rec.PolicyNumber, PolicyActive, rec.StartDate, rec.EndDate, rec.Premium,
		rec.Insured.Name, rec.Insured.Relation, rec.Insured.DOB,
		beneficiaries, customer.ID, rec.PlanID, rec.AgentID).
		Scan(policyDest(&policy, &rawBeneficiaries)...)
	if err != nil {
		return Customer{}, Policy{}, Payment{}, fmt.Errorf("inserting policy: %w", err)
	}
	if err := decodeBeneficiaries(rawBeneficiaries, &policy); err != nil {
		return Customer{}, Policy{}, Payment{}, err
	}

	now := time.Now()
	var payment Payment
	err = tx.QueryRow(ctx,
		`INSERT INTO payments (policy_id, type, amount, status, paid_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, policy_id, type, gateway_ref, amount, status, paid_at, created_at`,
		policy.ID, PaymentPurchase, rec.Premium, PaymentSuccess, now).
		Scan(&payment.ID, &payment.PolicyID, &payment.Type, &payment.GatewayRef,
			&payment.Amount, &payment.Status, &payment.PaidAt, &payment.CreatedAt)
	if err != nil {
		return Customer{}, Policy{}, Payment{}, fmt.Errorf("inserting purchase payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Customer{}, Policy{}, Payment{}, fmt.Errorf("committing purchase: %w", err)
	}
	return customer, policy, payment, nil
}

const policyColumns = `id, policy_number, status, start_date, end_date, premium,
	insured_name, insured_relation, insured_dob, beneficiaries,
	customer_id, plan_id, agent_id, created_at, updated_at`

func policyDest(p *Policy, rawBeneficiaries *[]byte) []any {
	return []any{
		&p.ID, &p.PolicyNumber, &p.Status, &p.StartDate, &p.EndDate, &p.Premium,
		&p.Insured.Name, &p.Insured.Relation, &p.Insured.DOB, rawBeneficiaries,
		&p.CustomerID, &p.PlanID, &p.AgentID, &p.CreatedAt, &p.UpdatedAt,
	}
}

func decodeBeneficiaries(raw []byte, p *Policy) error {
	if len(raw) == 0 {
		p.Beneficiaries = nil
		return nil
	}
	if err := json.Unmarshal(raw, &p.Beneficiaries); err != nil {
		return fmt.Errorf("decoding beneficiaries: %w", err)
	}
	return nil
}

func (s *Store) PolicyByID(ctx context.Context, id uuid.UUID) (Policy, error) {
	return s.scanPolicy(s.pool.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = $1`, id))
}

func (s *Store) PolicyByNumber(ctx context.Context, number string) (Policy, error) {
	return s.scanPolicy(s.pool.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE policy_number = $1`, number))
}

func (s *Store) scanPolicy(row pgx.Row) (Policy, error) {
	var p Policy
	var raw []byte
	if err := row.Scan(policyDest(&p, &raw)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Policy{}, fmt.Errorf("%w: policy", ErrNotFound)
		}
		return Policy{}, fmt.Errorf("querying policy: %w", err)
	}
	if err := decodeBeneficiaries(raw, &p); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func (s *Store) PoliciesByCustomer(ctx context.Context, customerID uuid.UUID) ([]Policy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE customer_id = $1 ORDER BY created_at`,
		customerID)
	if err != nil {
		return nil, fmt.Errorf("querying policies: %w", err)
	}
	defer rows.Close()

	var policies []Policy
	for rows.Next() {
		var p Policy
		var raw []byte
		if err := rows.Scan(policyDest(&p, &raw)...); err != nil {
			return nil, fmt.Errorf("scanning policy: %w", err)
		}
		if err := decodeBeneficiaries(raw, &p); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating policies: %w", err)
	}
	return policies, nil
}

func (s *Store) RenewPolicy(ctx context.Context, policyID uuid.UUID, newEnd time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE policies SET end_date = $2, status = $3, updated_at = now() WHERE id = $1`,
		policyID, newEnd, PolicyActive)
	if err != nil {
		return fmt.Errorf("renewing policy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: policy", ErrNotFound)
	}
	return nil
}

func (s *Store) SetPolicyStatus(ctx context.Context, policyID uuid.UUID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE policies SET status = $2, updated_at = now() WHERE id = $1`,
		policyID, status)
	if err != nil {
		return fmt.Errorf("updating policy status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: policy", ErrNotFound)
	}
	return nil
}

const paymentColumns = `id, policy_id, type, gateway_ref, amount, status, paid_at, created_at`

func (s *Store) CreatePayment(ctx context.Context, policyID uuid.UUID, typ string, amount int64, status string) (Payment, error) {
	var p Payment
	err := s.pool.QueryRow(ctx,
		`INSERT INTO payments (policy_id, type, amount, status)
		 VALUES ($1, $2, $3, $4) RETURNING `+paymentColumns,
		policyID, typ, amount, status).
		Scan(&p.ID, &p.PolicyID, &p.Type, &p.GatewayRef, &p.Amount, &p.Status, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		return Payment{}, fmt.Errorf("inserting payment: %w", err)
	}
	return p, nil
}

func (s *Store) PaymentsByPolicy(ctx context.Context, policyID uuid.UUID) ([]Payment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE policy_id = $1 ORDER BY created_at`,
		policyID)
	if err != nil {
		return nil, fmt.Errorf("querying payments: %w", err)
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.PolicyID, &p.Type, &p.GatewayRef, &p.Amount, &p.Status, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payments: %w", err)
	}
	return payments, nil
}

const renewalColumns = `id, policy_id, previous_end, new_end, status, created_at`

func (s *Store) CreateRenewal(ctx context.Context, policyID uuid.UUID, previousEnd, newEnd time.Time) (Renewal, error) {
	var r Renewal
	err := s.pool.QueryRow(ctx,
		`INSERT INTO renewals (policy_id, previous_end, new_end)
		 VALUES ($1, $2, $3) RETURNING `+renewalColumns,
		policyID, previousEnd, newEnd).
		Scan(&r.ID, &r.PolicyID, &r.PreviousEnd, &r.NewEnd, &r.Status, &r.CreatedAt)
	if err != nil {
		return Renewal{}, fmt.Errorf("inserting renewal: %w", err)
	}
	return r, nil
}

func (s *Store) SetRenewalStatus(ctx context.Context, id uuid.UUID, status string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE renewals SET status = $2 WHERE id = $1`, id, status); err != nil {
		return fmt.Errorf("updating renewal status: %w", err)
	}
	return nil
}

func (s *Store) RenewalsByPolicy(ctx context.Context, policyID uuid.UUID) ([]Renewal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+renewalColumns+` FROM renewals WHERE policy_id = $1 ORDER BY created_at`,
		policyID)
	if err != nil {
		return nil, fmt.Errorf("querying renewals: %w", err)
	}
	defer rows.Close()

	var renewals []Renewal
	for rows.Next() {
		var r Renewal
		if err := rows.Scan(&r.ID, &r.PolicyID, &r.PreviousEnd, &r.NewEnd, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning renewal: %w", err)
		}
		renewals = append(renewals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating renewals: %w", err)
	}
	return renewals, nil
}

const cancellationColumns = `id, policy_id, reason, status, requested_at, resolved_at`

func (s *Store) CreateCancellation(ctx context.Context, policyID uuid.UUID, reason string) (CancellationRequest, error) {
	var c CancellationRequest
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cancellation_requests (policy_id, reason)
		 VALUES ($1, $2) RETURNING `+cancellationColumns,
		policyID, reason).
		Scan(&c.ID, &c.PolicyID, &c.Reason, &c.Status, &c.RequestedAt, &c.ResolvedAt)
	if err != nil {
		return CancellationRequest{}, fmt.Errorf("inserting cancellation request: %w", err)
	}
	return c, nil
}

func (s *Store) ResolveCancellation(ctx context.Context, id uuid.UUID, status string, at time.Time) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE cancellation_requests SET status = $2, resolved_at = $3 WHERE id = $1`,
		id, status, at); err != nil {
		return fmt.Errorf("resolving cancellation request: %w", err)
	}
	return nil
}

func (s *Store) CancellationsByPolicy(ctx context.Context, policyID uuid.UUID) ([]CancellationRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cancellationColumns+` FROM cancellation_requests WHERE policy_id = $1 ORDER BY requested_at`,
		policyID)
	if err != nil {
		return nil, fmt.Errorf("querying cancellation requests: %w", err)
	}
	defer rows.Close()

	var cancellations []CancellationRequest
	for rows.Next() {
		var c CancellationRequest
		if err := rows.Scan(&c.ID, &c.PolicyID, &c.Reason, &c.Status, &c.RequestedAt, &c.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scanning cancellation request: %w", err)
		}
		cancellations = append(cancellations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cancellation requests: %w", err)
	}
	return cancellations, nil
}
