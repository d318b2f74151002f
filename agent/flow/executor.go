package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/chronicai/chronicai/agent/contract"
	statex "github.com/chronicai/chronicai/agent/state"
	toolx "github.com/chronicai/chronicai/agent/tool"
)

// DefaultMaxToolRounds bounds how many times one specialist step may go
// back to the model with fresh tool results.
const DefaultMaxToolRounds = 8

// StepOutcome is one specialist step's terminal result: a final answer
// or exactly one handoff instruction.
type StepOutcome struct {
	Final   string
	Handoff *contractx.Handoff
}

// Executor runs a single specialist reasoning turn: invoke the
// specialist, execute the tools it requests through the gateway,
// materialize each patch into the working state, repeat until a final
// answer or a handoff.
type Executor struct {
	gateway       *toolx.Gateway
	maxToolRounds int
}

func NewExecutor(gateway *toolx.Gateway, maxToolRounds int) (*Executor, error) {
	if gateway == nil {
		return nil, fmt.Errorf("%w: tool gateway is required", contractx.ErrConfig)
	}
	if maxToolRounds <= 0 {
		maxToolRounds = DefaultMaxToolRounds
	}
	return &Executor{
		gateway:       gateway,
		maxToolRounds: maxToolRounds,
	}, nil
}

// RunStep mutates st in place; callers pass a scratch clone and commit
// it only when the step succeeds.
func (e *Executor) RunStep(ctx context.Context, sp contractx.Specialist, st *statex.AppState, now time.Time) (StepOutcome, error) {
	var results []contractx.ToolResult

	for round := 0; round < e.maxToolRounds; round++ {
		resp, err := sp.Step(ctx, contractx.StepRequest{
			UserID:      st.UserID,
			Messages:    st.Messages,
			ToolResults: results,
		})
		if err != nil {
			return StepOutcome{}, err
		}

		if len(resp.ToolRequests) == 0 {
			final := strings.TrimSpace(resp.Message)
			if final == "" {
				return StepOutcome{}, fmt.Errorf("%w: specialist=%s produced neither answer nor tool requests", contractx.ErrSchemaViolation, sp.Name())
			}
			st.Apply(statex.Patch{Messages: []statex.Message{{
				Role:    statex.RoleAssistant,
				Name:    string(sp.Name()),
				Content: final,
			}}}, now)
			return StepOutcome{Final: final}, nil
		}

		results = make([]contractx.ToolResult, 0, len(resp.ToolRequests))
		for _, tr := range resp.ToolRequests {
			env := e.gateway.Execute(ctx, st, tr)
			st.Apply(env.Patch, now)
			if env.Handoff != nil {
				// a handoff ends the step immediately; remaining requests
				// in the batch are dropped, not executed
				return StepOutcome{Handoff: env.Handoff}, nil
			}
			result := contractx.ToolResult{Tool: tr.Tool, Result: env.Payload}
			if errText, ok := env.Payload["error"].(string); ok {
				result.Error = errText
			}
			results = append(results, result)
		}
	}

	return StepOutcome{}, fmt.Errorf("%w: specialist=%s exceeded %d tool rounds", contractx.ErrFlow, sp.Name(), e.maxToolRounds)
}
