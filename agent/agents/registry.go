package agents

import (
	openaisdk "github.com/openai/openai-go"

	contractx "github.com/chronicai/chronicai/agent/contract"
	llmx "github.com/chronicai/chronicai/agent/llm"
	promptx "github.com/chronicai/chronicai/agent/prompt"
)

type registryImpl struct {
	profile        contractx.Specialist
	analytics      contractx.Specialist
	recommendation contractx.Specialist
}

func (r *registryImpl) Profile() contractx.Specialist {
	return r.profile
}

func (r *registryImpl) Analytics() contractx.Specialist {
	return r.analytics
}

func (r *registryImpl) Recommendation() contractx.Specialist {
	return r.recommendation
}

// NewRegistry wires the closed specialist set against one model client.
func NewRegistry(client *openaisdk.Client, cfg llmx.Config) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()

	profileModel, profileTemp := cfg.ModelFor(contractx.AgentProfile)
	profile, err := newLLMSpecialist(contractx.AgentProfile, client, profileModel, profileTemp, cfg.MaxCompletionToken, prompts.Profile)
	if err != nil {
		return nil, err
	}

	analyticsModel, analyticsTemp := cfg.ModelFor(contractx.AgentAnalytics)
	analytics, err := newLLMSpecialist(contractx.AgentAnalytics, client, analyticsModel, analyticsTemp, cfg.MaxCompletionToken, prompts.Analytics)
	if err != nil {
		return nil, err
	}

	recommendationModel, recommendationTemp := cfg.ModelFor(contractx.AgentRecommendation)
	recommendation, err := newLLMSpecialist(contractx.AgentRecommendation, client, recommendationModel, recommendationTemp, cfg.MaxCompletionToken, prompts.Recommendation)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		profile:        profile,
		analytics:      analytics,
		recommendation: recommendation,
	}, nil
}
