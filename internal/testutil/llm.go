// Package testutil provides shared test infrastructure: a scripted
// language model, a deterministic embedder and a disposable PostgreSQL
// instance.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"
)

// ScriptedStep is one pre-planned model response. Either Err is returned,
// or a response carrying the tool requests (if any) and the text.
type ScriptedStep struct {
	ToolRequests []*ai.ToolRequest
	Text         string
	Err          error
}

// ScriptedLLM plays back a fixed sequence of model responses and records
// the exact message sequence of every call, so tests can assert on what
// the orchestrator actually sent. Safe for concurrent use.
type ScriptedLLM struct {
	mu    sync.Mutex
	steps []ScriptedStep
	calls [][]*ai.Message
}

// NewScriptedLLM creates a model that responds with the given steps in
// order. Calls beyond the script fail.
func NewScriptedLLM(steps ...ScriptedStep) *ScriptedLLM {
	return &ScriptedLLM{steps: steps}
}

// Generate implements the orchestrator's model surface.
func (s *ScriptedLLM) Generate(_ context.Context, messages []*ai.Message, _ []ai.ToolRef) (*ai.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]*ai.Message, len(messages))
	copy(snapshot, messages)
	s.calls = append(s.calls, snapshot)

	if len(s.calls) > len(s.steps) {
		return nil, fmt.Errorf("scripted llm: unexpected call %d, script has %d steps", len(s.calls), len(s.steps))
	}
	step := s.steps[len(s.calls)-1]
	if step.Err != nil {
		return nil, step.Err
	}

	var parts []*ai.Part
	for _, tr := range step.ToolRequests {
		parts = append(parts, ai.NewToolRequestPart(tr))
	}
	if step.Text != "" {
		parts = append(parts, ai.NewTextPart(step.Text))
	}

	return &ai.ModelResponse{
		Request: &ai.ModelRequest{Messages: snapshot},
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: parts,
		},
	}, nil
}

// Calls returns the message sequences of all calls made so far.
func (s *ScriptedLLM) Calls() [][]*ai.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]*ai.Message, len(s.calls))
	copy(out, s.calls)
	return out
}
