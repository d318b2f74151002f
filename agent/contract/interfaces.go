package contract

import "context"

// Specialist is one role in the handoff topology. Step is a single
// reasoning turn: decide which tools to call, or produce a final answer.
type Specialist interface {
	Name() AgentName
	Step(ctx context.Context, req StepRequest) (StepResponse, error)
}

// Registry exposes the fixed specialist set.
type Registry interface {
	Profile() Specialist
	Analytics() Specialist
	Recommendation() Specialist
}

// Datastore is the tenant datastore RPC surface. The core never issues
// raw SQL through any other path; ExecReadOnly only ever receives text
// the SQL guard has already sanitized.
type Datastore interface {
	SchemaSnapshot(ctx context.Context, tables []string) ([]map[string]any, error)
	ExecReadOnly(ctx context.Context, query string) ([]map[string]any, error)
	ProfileDetails(ctx context.Context, userID string) (map[string]any, error)
	LatestHealthIndicators(ctx context.Context, userID string) (map[string]any, error)
	WeeklyMetrics(ctx context.Context, userID string) ([]map[string]any, error)
}

// Retriever is the vector retrieval surface: ordered text snippets for a
// query, already capped to the configured snippet length.
type Retriever interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]string, error)
}

// Embedder turns retrieval queries into vectors for the datastore's
// document-matching procedure.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
