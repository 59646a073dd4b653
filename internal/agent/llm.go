package agent

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// LLM is the language-model surface the orchestrator depends on. One call
// submits a full message sequence plus the tool catalog and yields either
// a final answer or tool requests; the orchestrator owns the multi-round
// exchange.
type LLM interface {
	Generate(ctx context.Context, messages []*ai.Message, tools []ai.ToolRef) (*ai.ModelResponse, error)
}

// GenkitLLM implements LLM on a Genkit instance. Tool requests are
// returned to the caller instead of being auto-executed, which keeps the
// dispatch loop in the orchestrator.
type GenkitLLM struct {
	g         *genkit.Genkit
	modelName string
}

// NewGenkitLLM creates an LLM bound to the provider-qualified model name
// (e.g. "googleai/gemini-2.5-flash").
func NewGenkitLLM(g *genkit.Genkit, modelName string) *GenkitLLM {
	return &GenkitLLM{g: g, modelName: modelName}
}

func (l *GenkitLLM) Generate(ctx context.Context, messages []*ai.Message, tools []ai.ToolRef) (*ai.ModelResponse, error) {
	resp, err := genkit.Generate(ctx, l.g,
		ai.WithModelName(l.modelName),
		ai.WithMessages(messages...),
		ai.WithTools(tools...),
		ai.WithReturnToolRequests(true),
	)
	if err != nil {
		return nil, fmt.Errorf("generating: %w", err)
	}
	return resp, nil
}
