package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	auditx "github.com/chronicai/chronicai/agent/audit"
	contractx "github.com/chronicai/chronicai/agent/contract"
	policyx "github.com/chronicai/chronicai/agent/policy"
	sqlguardx "github.com/chronicai/chronicai/agent/sqlguard"
	statex "github.com/chronicai/chronicai/agent/state"
)

// Fixed operation set. The model decides when to call these; the gateway
// makes every call safe to repeat.
const (
	ToolSQLSchema             = "sql_schema"
	ToolSQLRunReadonly        = "sql_run_readonly"
	ToolRAGRetrieve           = "rag_retrieve"
	ToolWeeklyMetrics         = "get_weekly_metrics"
	ToolRecordAssessment      = "record_assessment"
	ToolRecordRecommendations = "record_recommendations"
	ToolPersistInsight        = "persist_insight"
	ToolHandoff               = "handoff_to"
)

// DefaultRowCap bounds how many rows a guarded query returns to the
// calling specialist; row_count still reports the true total.
const DefaultRowCap = 200

// ForAgent returns the tool names a given specialist may invoke.
func ForAgent(agent contractx.AgentName) []string {
	switch agent {
	case contractx.AgentProfile:
		return []string{ToolWeeklyMetrics, ToolRecordAssessment}
	case contractx.AgentAnalytics:
		return []string{ToolHandoff, ToolSQLSchema, ToolSQLRunReadonly, ToolPersistInsight}
	case contractx.AgentRecommendation:
		return []string{ToolHandoff, ToolRAGRetrieve, ToolRecordRecommendations, ToolPersistInsight}
	default:
		return nil
	}
}

// Gateway executes the fixed operation set. Every operation returns an
// envelope whose patch appends exactly one trace message, error paths
// included, so the transcript reconstructs what ran.
type Gateway struct {
	ds        contractx.Datastore
	retriever contractx.Retriever
	guard     *sqlguardx.Guard
	allow     *policyx.Allowlist
	audit     *auditx.Recorder
	rowCap    int
}

func NewGateway(
	ds contractx.Datastore,
	retriever contractx.Retriever,
	guard *sqlguardx.Guard,
	allow *policyx.Allowlist,
	audit *auditx.Recorder,
) (*Gateway, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: datastore is required", contractx.ErrConfig)
	}
	if guard == nil {
		return nil, fmt.Errorf("%w: sql guard is required", contractx.ErrConfig)
	}
	if allow == nil {
		return nil, fmt.Errorf("%w: allow-list is required", contractx.ErrConfig)
	}
	return &Gateway{
		ds:        ds,
		retriever: retriever,
		guard:     guard,
		allow:     allow,
		audit:     audit,
		rowCap:    DefaultRowCap,
	}, nil
}

// Execute dispatches one tool request. Backend and policy failures come
// back as error payloads, never as Go errors: the specialist degrades,
// the turn survives.
func (g *Gateway) Execute(ctx context.Context, st *statex.AppState, req contractx.ToolRequest) contractx.Envelope {
	switch req.Tool {
	case ToolSQLSchema:
		return g.lookupSchema(ctx)
	case ToolSQLRunReadonly:
		return g.runReadOnlyQuery(ctx, st.UserID, stringArg(req.Args, "sql"))
	case ToolRAGRetrieve:
		return g.retrieveKnowledge(ctx, stringArg(req.Args, "section"), stringArg(req.Args, "query"), intArg(req.Args, "k", 3))
	case ToolWeeklyMetrics:
		return g.weeklyMetrics(ctx, st.UserID)
	case ToolRecordAssessment:
		return g.recordAssessment(mapArg(req.Args, "raw_metrics"), mapArg(req.Args, "assessment"), mapArg(req.Args, "trends"))
	case ToolRecordRecommendations:
		return g.recordRecommendations(mapArg(req.Args, "recs"))
	case ToolPersistInsight:
		return g.recordInsight(stringArg(req.Args, "summary"))
	case ToolHandoff:
		return g.requestHandoff(contractx.AgentName(stringArg(req.Args, "target")), stringArg(req.Args, "reason"))
	default:
		return errorEnvelope(req.Tool, fmt.Errorf("%w: unknown tool %q", contractx.ErrValidation, req.Tool))
	}
}

func (g *Gateway) lookupSchema(ctx context.Context) contractx.Envelope {
	tables, err := g.allow.Sorted()
	if err != nil {
		return errorEnvelope(ToolSQLSchema, err)
	}
	rows, err := g.ds.SchemaSnapshot(ctx, tables)
	if err != nil {
		return errorEnvelope(ToolSQLSchema, err)
	}
	return resultEnvelope(ToolSQLSchema, map[string]any{"schema": rows})
}

func (g *Gateway) runReadOnlyQuery(ctx context.Context, tenantID, rawSQL string) contractx.Envelope {
	sanitized, err := g.guard.Validate(rawSQL)
	if err != nil {
		g.audit.Record(tenantID, "sql_rejected", 0, 0)
		return errorEnvelope(ToolSQLRunReadonly, err)
	}

	t0 := time.Now()
	rows, err := g.ds.ExecReadOnly(ctx, sanitized)
	latency := time.Since(t0)
	if err != nil {
		g.audit.Record(tenantID, "sql_failed", 0, latency)
		return errorEnvelope(ToolSQLRunReadonly, err)
	}
	g.audit.Record(tenantID, "sql_run_readonly", len(rows), latency)

	capped := rows
	if len(capped) > g.rowCap {
		capped = capped[:g.rowCap]
	}
	return resultEnvelope(ToolSQLRunReadonly, map[string]any{
		"rows":      capped,
		"row_count": len(rows),
	})
}

func (g *Gateway) retrieveKnowledge(ctx context.Context, section, query string, k int) contractx.Envelope {
	if g.retriever == nil {
		return errorEnvelope(ToolRAGRetrieve, fmt.Errorf("%w: retriever is not configured", contractx.ErrBackendUnavailable))
	}
	snippets, err := g.retriever.SimilaritySearch(ctx, query, k)
	if err != nil {
		return errorEnvelope(ToolRAGRetrieve, err)
	}
	return resultEnvelope(ToolRAGRetrieve, map[string]any{
		"section":  section,
		"snippets": snippets,
	})
}

func (g *Gateway) weeklyMetrics(ctx context.Context, userID string) contractx.Envelope {
	rows, err := g.ds.WeeklyMetrics(ctx, userID)
	if err != nil {
		return errorEnvelope(ToolWeeklyMetrics, err)
	}
	return resultEnvelope(ToolWeeklyMetrics, map[string]any{"weekly_metrics": rows})
}

func (g *Gateway) recordAssessment(rawMetrics, assessment, trends map[string]any) contractx.Envelope {
	env := resultEnvelope(ToolRecordAssessment, map[string]any{"recorded": true})
	env.Patch.Profile = &statex.ProfilePatch{
		RawMetrics: rawMetrics,
		Assessment: assessment,
		Trends:     trends,
	}
	return env
}

func (g *Gateway) recordRecommendations(recs map[string]any) contractx.Envelope {
	env := resultEnvelope(ToolRecordRecommendations, map[string]any{"recorded": true})
	env.Patch.Profile = &statex.ProfilePatch{Recommendations: recs}
	return env
}

func (g *Gateway) recordInsight(summary string) contractx.Envelope {
	env := resultEnvelope(ToolPersistInsight, map[string]any{"recorded": true})
	env.Patch.Chat = &statex.ChatPatch{LastInsight: summary}
	return env
}

func (g *Gateway) requestHandoff(target contractx.AgentName, reason string) contractx.Envelope {
	handoff := &contractx.Handoff{Target: target, Reason: reason}
	env := resultEnvelope(ToolHandoff, map[string]any{
		"handoff": string(target),
		"reason":  reason,
	})
	env.Handoff = handoff
	return env
}

func resultEnvelope(tool string, payload map[string]any) contractx.Envelope {
	return contractx.Envelope{
		Payload: payload,
		Patch: statex.Patch{
			Messages: []statex.Message{traceMessage(tool, payload)},
		},
	}
}

func errorEnvelope(tool string, err error) contractx.Envelope {
	payload := map[string]any{"error": err.Error()}
	return contractx.Envelope{
		Payload: payload,
		Patch: statex.Patch{
			Messages: []statex.Message{traceMessage(tool, payload)},
		},
	}
}

func traceMessage(tool string, payload map[string]any) statex.Message {
	content, err := json.Marshal(payload)
	if err != nil {
		content = []byte(`{"error":"trace payload not serializable"}`)
	}
	return statex.Message{
		Role:    statex.RoleTool,
		Name:    tool,
		Content: string(content),
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func mapArg(args map[string]any, key string) map[string]any {
	v, _ := args[key].(map[string]any)
	return v
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
