// Package agent implements the conversational orchestrator: it turns one
// user utterance plus prior history into one assistant reply through a
// bounded loop of model calls and tool dispatches.
//
// The loop is explicit. The model is asked to return tool requests
// instead of having them auto-executed, every dispatch goes through
// schema validation, and user-scoped tools receive the authenticated
// principal from the orchestrator, never from model-supplied arguments.
package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/coverline/coverline/internal/log"
)

// Sentinel errors for orchestrator outcomes.
var (
	// ErrExecutionFailed indicates a model or infrastructure failure; the
	// turn is aborted and the caller gets a generic failure.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrTurnLimit indicates the tool-call loop hit its round ceiling
	// without the model producing a final answer.
	ErrTurnLimit = errors.New("turn limit exceeded")
)

// fallbackReply is returned when the model yields an empty final answer.
const fallbackReply = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// systemInstruction is the behavioral contract sent as the first message
// of every model invocation. It is constant across turns and users and is
// never persisted into session history.
const systemInstruction = `You are an insurance assistant for the Coverline platform. You help users browse insurance plans, purchase policies, and manage their existing policies.

STRICT RULES:
1. Every factual claim you make MUST come from a tool result. Never answer from your own knowledge; if no tool provides the information, say so.
2. For general questions, insurance concepts, or questions about uploaded documents, ALWAYS call the general_assistant_knowledge tool. If it reports no relevant data, relay that statement; do not substitute your own answer.
3. Use the plan tools to look up available plans before purchasing. Plan names must match the catalog exactly.
4. The user is identified automatically from their authentication context. Never ask for, accept, or pass along user identifiers.
5. When a tool reports an error, explain it to the user in plain language and suggest what to do next.
6. Confirm completed purchases, renewals, and cancellations by quoting the policy number from the tool result.`

// Message is one prior-history entry handed to the orchestrator. Entries
// whose role is neither "user" nor "assistant" are dropped during context
// construction.
type Message struct {
	Role    string
	Content string
}

// History roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Config contains all required parameters for the Orchestrator.
type Config struct {
	LLM      LLM
	Catalog  *Catalog
	Logger   log.Logger
	MaxTurns int // tool-call round ceiling (<= 0 uses default of 5)

	// Resilience (zero values use defaults)
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	RateLimiter          *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.LLM == nil {
		return errors.New("llm is required")
	}
	if cfg.Catalog == nil {
		return errors.New("tool catalog is required")
	}
	return nil
}

// Orchestrator runs conversational turns. All configuration is captured
// immutably at construction; it is safe for concurrent use.
type Orchestrator struct {
	llm      LLM
	catalog  *Catalog
	logger   log.Logger
	maxTurns int

	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 5
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	o := &Orchestrator{
		llm:            cfg.LLM,
		catalog:        cfg.Catalog,
		logger:         logger,
		maxTurns:       maxTurns,
		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		rateLimiter:    rl,
	}

	o.logger.Info("orchestrator initialized",
		"tools", strings.Join(o.catalog.Names(), ", "),
		"max_turns", o.maxTurns)
	return o, nil
}

// SystemInstruction returns the constant behavioral contract. Exposed for
// verification; the orchestrator always injects it itself.
func SystemInstruction() string {
	return systemInstruction
}

// elapsedSince is separated for readability in log call sites.
func elapsedSince(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}

// wrapInfra tags err as an infrastructure failure.
func wrapInfra(err error) error {
	return fmt.Errorf("%w: %w", ErrExecutionFailed, err)
}
