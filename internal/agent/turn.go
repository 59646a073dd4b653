package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/coverline/coverline/internal/auth"
)

// RunTurn produces one assistant reply for the utterance given the prior
// history. The model context is rebuilt from scratch every round: the
// system instruction is always the first message, followed by the
// filtered history and the new utterance. Tool requests returned by the
// model are validated and dispatched here, bound to the authenticated
// principal, and their results are appended before the next model call.
// The loop runs at most the configured number of rounds.
func (o *Orchestrator) RunTurn(ctx context.Context, p auth.Principal, utterance string, history []Message) (string, error) {
	start := time.Now()

	messages := o.buildContext(utterance, history)
	tools := o.catalog.Refs()

	for round := 0; round < o.maxTurns; round++ {
		if err := o.circuitBreaker.Allow(); err != nil {
			return "", wrapInfra(err)
		}

		resp, err := o.generateWithRetry(ctx, messages, tools)
		if err != nil {
			o.circuitBreaker.Failure()
			return "", wrapInfra(err)
		}
		o.circuitBreaker.Success()

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			text := resp.Text()
			if text == "" {
				text = fallbackReply
			}
			o.logger.Debug("turn complete",
				"user_id", p.UserID,
				"rounds", round+1,
				"elapsed", elapsedSince(start))
			return text, nil
		}

		// Resume from the model's own view of the exchange so the
		// request/response pairing stays intact.
		messages = resp.History()
		for _, req := range requests {
			out, err := o.catalog.Dispatch(ctx, p, req.Name, req.Input)
			if err != nil {
				return "", wrapInfra(err)
			}
			o.logger.Debug("tool dispatched",
				"tool", req.Name,
				"user_id", p.UserID,
				"round", round+1)
			messages = append(messages, ai.NewMessage(ai.RoleTool, nil,
				ai.NewToolResponsePart(&ai.ToolResponse{
					Name:   req.Name,
					Ref:    req.Ref,
					Output: out,
				})))
		}
	}

	return "", fmt.Errorf("%w: no final answer after %d rounds: %w",
		ErrExecutionFailed, o.maxTurns, ErrTurnLimit)
}

// buildContext assembles the model input: system instruction first, then
// prior user/assistant exchanges, then the new utterance. History entries
// with any other role are dropped, so persisted history can never smuggle
// in a competing system message or stale tool chatter.
func (o *Orchestrator) buildContext(utterance string, history []Message) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history)+2)
	messages = append(messages, ai.NewSystemTextMessage(systemInstruction))
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			messages = append(messages, ai.NewUserTextMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, ai.NewModelTextMessage(m.Content))
		}
	}
	messages = append(messages, ai.NewUserTextMessage(utterance))
	return messages
}
