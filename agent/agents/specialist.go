package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/chronicai/chronicai/agent/contract"
	toolx "github.com/chronicai/chronicai/agent/tool"
)

// llmSpecialist runs one reasoning step through a chat-completion model
// with the specialist's closed tool set bound. The decision policy lives
// in the model; this type only enforces the response schema.
type llmSpecialist struct {
	name         contractx.AgentName
	client       *openaisdk.Client
	model        string
	temperature  float64
	maxTokens    int
	systemPrompt string
	tools        []openaisdk.ChatCompletionToolParam
	allowedTools map[string]struct{}
}

func newLLMSpecialist(
	name contractx.AgentName,
	client *openaisdk.Client,
	model string,
	temperature float64,
	maxTokens int,
	systemPrompt string,
) (*llmSpecialist, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: model client is required", contractx.ErrConfig)
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("%w: model name is required for specialist=%s", contractx.ErrConfig, name)
	}

	toolNames := toolx.ForAgent(name)
	allowed := make(map[string]struct{}, len(toolNames))
	for _, t := range toolNames {
		allowed[t] = struct{}{}
	}

	return &llmSpecialist{
		name:         name,
		client:       client,
		model:        model,
		temperature:  temperature,
		maxTokens:    maxTokens,
		systemPrompt: systemPrompt,
		tools:        toolDefs(name),
		allowedTools: allowed,
	}, nil
}

func (s *llmSpecialist) Name() contractx.AgentName { return s.name }

func (s *llmSpecialist) Step(ctx context.Context, req contractx.StepRequest) (contractx.StepResponse, error) {
	payload := map[string]any{
		"user_id":      req.UserID,
		"messages":     req.Messages,
		"tool_results": req.ToolResults,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.StepResponse{}, fmt.Errorf("%w: marshal step payload: %v", contractx.ErrValidation, err)
	}

	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(s.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(s.systemPrompt),
			openaisdk.UserMessage(string(input)),
		},
		Temperature: openaisdk.Float(s.temperature),
	}
	if s.maxTokens > 0 {
		params.MaxTokens = openaisdk.Int(int64(s.maxTokens))
	}
	if len(s.tools) > 0 {
		params.Tools = s.tools
	}

	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return contractx.StepResponse{}, fmt.Errorf("%w: specialist=%s: %v", contractx.ErrModelInvoke, s.name, err)
	}
	if len(resp.Choices) == 0 {
		return contractx.StepResponse{}, fmt.Errorf("%w: specialist=%s returned no choices", contractx.ErrModelInvoke, s.name)
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		reqs, err := s.toToolRequests(msg.ToolCalls)
		if err != nil {
			return contractx.StepResponse{}, err
		}
		return contractx.StepResponse{ToolRequests: reqs}, nil
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return contractx.StepResponse{}, fmt.Errorf("%w: specialist=%s message is empty", contractx.ErrSchemaViolation, s.name)
	}
	return contractx.StepResponse{Message: content}, nil
}

func (s *llmSpecialist) toToolRequests(calls []openaisdk.ChatCompletionMessageToolCall) ([]contractx.ToolRequest, error) {
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}
		if _, ok := s.allowedTools[name]; !ok {
			return nil, fmt.Errorf("%w: tool=%s is not allowed for specialist=%s", contractx.ErrSchemaViolation, name, s.name)
		}

		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}

		reqs = append(reqs, contractx.ToolRequest{Tool: name, Args: args})
	}
	return reqs, nil
}
