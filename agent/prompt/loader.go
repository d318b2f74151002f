package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/profile.txt
	profileRaw string

	//go:embed template/analytics.txt
	analyticsRaw string

	//go:embed template/recommendation.txt
	recommendationRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Profile        string
	Analytics      string
	Recommendation string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time, trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Profile:        strings.TrimSpace(profileRaw),
		Analytics:      strings.TrimSpace(analyticsRaw),
		Recommendation: strings.TrimSpace(recommendationRaw),
	}
}
