package state

import (
	"time"
)

// Message roles mirror the transcript roles the specialists consume.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one role-tagged transcript entry. Messages are append-only
// within a turn; nothing ever reorders or truncates them mid-flow.
type Message struct {
	Role    string `json:"role"`
	Name    string `json:"name,omitempty"`
	Content string `json:"content"`
}

// ProfileState holds the per-section profile sub-records. Each section is
// an arbitrary key->value mapping merged field by field, never replaced
// wholesale.
type ProfileState struct {
	ProfileDetails   map[string]any `json:"profile_details,omitempty"`
	HealthIndicators map[string]any `json:"health_indicators,omitempty"`
	RawMetrics       map[string]any `json:"raw_metrics,omitempty"`
	Assessment       map[string]any `json:"assessment,omitempty"`
	Trends           map[string]any `json:"trends,omitempty"`
	Recommendations  map[string]any `json:"recommendations,omitempty"`
}

// ChatState carries conversational carry-over between turns.
type ChatState struct {
	LastInsight string `json:"last_insight,omitempty"`
}

// AppState is the mutable session record shared by all specialists and
// tool calls within one conversation. UserID is immutable once set for
// the session; all mutation goes through Apply.
type AppState struct {
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id"`
	Messages  []Message    `json:"messages"`
	Profile   ProfileState `json:"profile"`
	Chat      ChatState    `json:"chat"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewAppState(sessionID, userID string, now time.Time) *AppState {
	return &AppState{
		SessionID: sessionID,
		UserID:    userID,
		UpdatedAt: now.UTC(),
	}
}

func (s *AppState) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// AppendMessage adds one transcript entry.
func (s *AppState) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

// Clone returns a deep copy so a step can work on scratch state that is
// only committed when the step succeeds.
func (s *AppState) Clone() *AppState {
	if s == nil {
		return nil
	}
	out := &AppState{
		SessionID: s.SessionID,
		UserID:    s.UserID,
		UpdatedAt: s.UpdatedAt,
		Chat:      s.Chat,
	}
	out.Messages = append(out.Messages, s.Messages...)
	out.Profile = ProfileState{
		ProfileDetails:   cloneMap(s.Profile.ProfileDetails),
		HealthIndicators: cloneMap(s.Profile.HealthIndicators),
		RawMetrics:       cloneMap(s.Profile.RawMetrics),
		Assessment:       cloneMap(s.Profile.Assessment),
		Trends:           cloneMap(s.Profile.Trends),
		Recommendations:  cloneMap(s.Profile.Recommendations),
	}
	return out
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
