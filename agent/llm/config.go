package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/chronicai/chronicai/agent/contract"
	openrouterx "github.com/chronicai/chronicai/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	EmbeddingModel     string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.2"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ProfileModel              string  `envconfig:"PROFILE_MODEL" split_words:"true"`
	AnalyticsModel            string  `envconfig:"ANALYTICS_MODEL" split_words:"true"`
	RecommendationModel       string  `envconfig:"RECOMMENDATION_MODEL" split_words:"true"`
	ProfileTemperature        float64 `envconfig:"PROFILE_TEMPERATURE" split_words:"true" default:"-1"`
	AnalyticsTemperature      float64 `envconfig:"ANALYTICS_TEMPERATURE" split_words:"true" default:"-1"`
	RecommendationTemperature float64 `envconfig:"RECOMMENDATION_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: model api key is required", contractx.ErrConfig)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrConfig)
	}
	return nil
}

// ClientConfig maps the shared settings onto the OpenRouter client.
func (c Config) ClientConfig() openrouterx.Config {
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              strings.TrimSpace(c.Model),
		EmbeddingModel:     strings.TrimSpace(c.EmbeddingModel),
		MaxCompletionToken: c.MaxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// ModelFor returns the model name and temperature for one specialist,
// falling back to the shared defaults.
func (c Config) ModelFor(agent contractx.AgentName) (string, float64) {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	switch agent {
	case contractx.AgentProfile:
		if v := strings.TrimSpace(c.ProfileModel); v != "" {
			modelName = v
		}
		if c.ProfileTemperature >= 0 {
			temp = c.ProfileTemperature
		}
	case contractx.AgentAnalytics:
		if v := strings.TrimSpace(c.AnalyticsModel); v != "" {
			modelName = v
		}
		if c.AnalyticsTemperature >= 0 {
			temp = c.AnalyticsTemperature
		}
	case contractx.AgentRecommendation:
		if v := strings.TrimSpace(c.RecommendationModel); v != "" {
			modelName = v
		}
		if c.RecommendationTemperature >= 0 {
			temp = c.RecommendationTemperature
		}
	}

	return modelName, temp
}
