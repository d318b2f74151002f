package state

import "time"

// Patch is a partial AppState produced by one tool call or agent step.
// Only the fields it intends to change are set; nil/empty fields are
// no-ops, never deletes. A patch is consumed by exactly one Apply and
// then discarded.
type Patch struct {
	UserID   string        `json:"user_id,omitempty"`
	Messages []Message     `json:"messages,omitempty"`
	Profile  *ProfilePatch `json:"profile,omitempty"`
	Chat     *ChatPatch    `json:"chat,omitempty"`
}

// ProfilePatch updates individual profile sections. Each non-nil section
// map is deep-merged key by key into the current section, patch values
// winning on scalar conflicts.
type ProfilePatch struct {
	ProfileDetails   map[string]any `json:"profile_details,omitempty"`
	HealthIndicators map[string]any `json:"health_indicators,omitempty"`
	RawMetrics       map[string]any `json:"raw_metrics,omitempty"`
	Assessment       map[string]any `json:"assessment,omitempty"`
	Trends           map[string]any `json:"trends,omitempty"`
	Recommendations  map[string]any `json:"recommendations,omitempty"`
}

// ChatPatch updates chat carry-over fields. An empty LastInsight is a
// no-op rather than an erase.
type ChatPatch struct {
	LastInsight string `json:"last_insight,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.UserID == "" && len(p.Messages) == 0 && p.Profile == nil && p.Chat == nil
}

// Apply is the only mutation entry point for AppState. Messages use
// append semantics; profile and chat sub-records are merged field by
// field. Callers must serialize concurrent patches to the same session;
// within a field, last writer wins at the leaf level.
func (s *AppState) Apply(p Patch, now time.Time) {
	if s == nil {
		return
	}
	if p.UserID != "" && s.UserID == "" {
		s.UserID = p.UserID
	}
	if len(p.Messages) > 0 {
		s.Messages = append(s.Messages, p.Messages...)
	}
	if p.Profile != nil {
		s.Profile.ProfileDetails = DeepMerge(s.Profile.ProfileDetails, p.Profile.ProfileDetails)
		s.Profile.HealthIndicators = DeepMerge(s.Profile.HealthIndicators, p.Profile.HealthIndicators)
		s.Profile.RawMetrics = DeepMerge(s.Profile.RawMetrics, p.Profile.RawMetrics)
		s.Profile.Assessment = DeepMerge(s.Profile.Assessment, p.Profile.Assessment)
		s.Profile.Trends = DeepMerge(s.Profile.Trends, p.Profile.Trends)
		s.Profile.Recommendations = DeepMerge(s.Profile.Recommendations, p.Profile.Recommendations)
	}
	if p.Chat != nil && p.Chat.LastInsight != "" {
		s.Chat.LastInsight = p.Chat.LastInsight
	}
	s.Touch(now)
}

// DeepMerge combines right into left recursively: mapping values merge
// key by key, anything else is replaced by the right-hand value. A nil
// right side leaves left untouched. Neither input is mutated.
func DeepMerge(left, right map[string]any) map[string]any {
	if len(right) == 0 {
		return left
	}
	out := make(map[string]any, len(left)+len(right))
	for k, v := range left {
		out[k] = v
	}
	for k, v := range right {
		if v == nil {
			continue
		}
		lv, lok := out[k].(map[string]any)
		rv, rok := v.(map[string]any)
		if lok && rok {
			out[k] = DeepMerge(lv, rv)
			continue
		}
		out[k] = v
	}
	return out
}
