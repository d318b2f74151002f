package contract

import (
	statex "github.com/chronicai/chronicai/agent/state"
)

// AgentName identifies one specialist in the closed handoff topology.
type AgentName string

const (
	AgentProfile        AgentName = "profile_agent"
	AgentAnalytics      AgentName = "analytics_agent"
	AgentRecommendation AgentName = "recommendation_agent"
)

// KnownAgents is the full closed set. Every handoff target must resolve
// against it.
var KnownAgents = map[AgentName]struct{}{
	AgentProfile:        {},
	AgentAnalytics:      {},
	AgentRecommendation: {},
}

// Handoff is a specialist's request to transfer control to a named peer.
// It lives for a single turn: produced by a tool call, consumed by the
// orchestrator, surviving only as an audit message in the transcript.
type Handoff struct {
	Target AgentName `json:"target"`
	Reason string    `json:"reason,omitempty"`
}

// Envelope is the result of one gateway operation: a payload surfaced to
// the calling specialist plus a state patch merged into session state.
// requestHandoff sets Handoff instead of a normal payload.
type Envelope struct {
	Payload map[string]any `json:"payload,omitempty"`
	Patch   statex.Patch   `json:"state_update,omitempty"`
	Handoff *Handoff       `json:"handoff,omitempty"`
}

// ToolRequest is one tool invocation decided by a specialist.
type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the payload handed back to the specialist on its next
// step within the same turn.
type ToolResult struct {
	Tool   string         `json:"tool"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// StepRequest carries everything a specialist sees for one reasoning
// step: the tenant, the transcript so far, and results of tool calls it
// requested earlier in the same step.
type StepRequest struct {
	UserID      string           `json:"user_id"`
	Messages    []statex.Message `json:"messages"`
	ToolResults []ToolResult     `json:"tool_results,omitempty"`
}

// StepResponse is either a batch of tool requests to execute or, when
// ToolRequests is empty, a final assistant message ending the step.
type StepResponse struct {
	Message      string        `json:"message,omitempty"`
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
}
