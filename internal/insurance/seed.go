package insurance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coverline/coverline/internal/log"
)

type seedPlan struct {
	code       string
	name       string
	category   string
	premium    int64
	sumInsured int64
	riders     []string
}

type seedAgent struct {
	code  string
	name  string
	email string
}

var seedPlans = []seedPlan{
	{"HEALTH-BASIC", "Basic Health Insurance", CategoryHealth, 1200, 500000,
		[]string{"OPD", "Critical Illness"}},
	{"HEALTH-PREMIUM", "Premium Health Insurance", CategoryHealth, 2500, 1000000,
		[]string{"OPD", "Critical Illness", "Maternity", "Dental"}},
	{"LIFE-TERM", "Term Life Insurance", CategoryLife, 800, 5000000,
		[]string{"Accidental Death", "Critical Illness"}},
	{"MOTOR-COMPREHENSIVE", "Comprehensive Motor Insurance", CategoryMotor, 1500, 300000,
		[]string{"Zero Depreciation", "Engine Protection"}},
	{"HOME-STANDARD", "Standard Home Insurance", CategoryHome, 1000, 2000000,
		[]string{"Earthquake", "Fire", "Theft"}},
}

var seedAgents = []seedAgent{
	{"AGT001", "Rajesh Kumar", "rajesh.kumar@insurance.com"},
	{"AGT002", "Priya Sharma", "priya.sharma@insurance.com"},
	{"AGT003", "Amit Patel", "amit.patel@insurance.com"},
}

// Seed inserts the starter plan catalog and sales agents. Each table is
// seeded only when empty, so running it against a populated database is
// a no-op.
func Seed(ctx context.Context, pool *pgxpool.Pool, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNop()
	}

	var planCount int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM plans`).Scan(&planCount); err != nil {
		return fmt.Errorf("counting plans: %w", err)
	}
	if planCount == 0 {
		for _, p := range seedPlans {
			if _, err := pool.Exec(ctx,
				`INSERT INTO plans (code, name, category, base_premium, sum_insured, riders)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				p.code, p.name, p.category, p.premium, p.sumInsured, p.riders); err != nil {
				return fmt.Errorf("seeding plan %s: %w", p.code, err)
			}
		}
		logger.Info("seeded plan catalog", "count", len(seedPlans))
	}

	var agentCount int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM sales_agents`).Scan(&agentCount); err != nil {
		return fmt.Errorf("counting agents: %w", err)
	}
	if agentCount == 0 {
		for _, a := range seedAgents {
			if _, err := pool.Exec(ctx,
				`INSERT INTO sales_agents (code, name, email) VALUES ($1, $2, $3)`,
				a.code, a.name, a.email); err != nil {
				return fmt.Errorf("seeding agent %s: %w", a.code, err)
			}
		}
		logger.Info("seeded sales agents", "count", len(seedAgents))
	}

	return nil
}
