package flow

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	auditx "github.com/chronicai/chronicai/agent/audit"
	contractx "github.com/chronicai/chronicai/agent/contract"
	policyx "github.com/chronicai/chronicai/agent/policy"
	sqlguardx "github.com/chronicai/chronicai/agent/sqlguard"
	statex "github.com/chronicai/chronicai/agent/state"
	toolx "github.com/chronicai/chronicai/agent/tool"
)

type fakeSpecialist struct {
	name  contractx.AgentName
	step  func(req contractx.StepRequest) (contractx.StepResponse, error)
	calls int
}

func (f *fakeSpecialist) Name() contractx.AgentName { return f.name }

func (f *fakeSpecialist) Step(_ context.Context, req contractx.StepRequest) (contractx.StepResponse, error) {
	f.calls++
	return f.step(req)
}

// scripted returns one response per call, in order.
func scripted(name contractx.AgentName, responses ...contractx.StepResponse) *fakeSpecialist {
	i := 0
	return &fakeSpecialist{
		name: name,
		step: func(contractx.StepRequest) (contractx.StepResponse, error) {
			if i >= len(responses) {
				return contractx.StepResponse{}, errors.New("no scripted response left")
			}
			resp := responses[i]
			i++
			return resp, nil
		},
	}
}

type fakeRegistry struct {
	profile        contractx.Specialist
	analytics      contractx.Specialist
	recommendation contractx.Specialist
}

func (r *fakeRegistry) Profile() contractx.Specialist        { return r.profile }
func (r *fakeRegistry) Analytics() contractx.Specialist      { return r.analytics }
func (r *fakeRegistry) Recommendation() contractx.Specialist { return r.recommendation }

type fakeDatastore struct {
	execQueries []string
	execRows    []map[string]any
	execErr     error

	profileDetails   map[string]any
	healthIndicators map[string]any
	weeklyRows       []map[string]any
	prefetchErr      error
}

func (f *fakeDatastore) SchemaSnapshot(_ context.Context, tables []string) ([]map[string]any, error) {
	return []map[string]any{{"tables": tables}}, nil
}

func (f *fakeDatastore) ExecReadOnly(_ context.Context, query string) ([]map[string]any, error) {
	f.execQueries = append(f.execQueries, query)
	return f.execRows, f.execErr
}

func (f *fakeDatastore) ProfileDetails(_ context.Context, _ string) (map[string]any, error) {
	return f.profileDetails, f.prefetchErr
}

func (f *fakeDatastore) LatestHealthIndicators(_ context.Context, _ string) (map[string]any, error) {
	return f.healthIndicators, f.prefetchErr
}

func (f *fakeDatastore) WeeklyMetrics(_ context.Context, _ string) ([]map[string]any, error) {
	return f.weeklyRows, nil
}

type fakeRetriever struct {
	snippets []string
}

func (f *fakeRetriever) SimilaritySearch(_ context.Context, _ string, _ int) ([]string, error) {
	return f.snippets, nil
}

func writeAllowlist(t *testing.T, tables ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allowed_tables.yaml")
	var b strings.Builder
	b.WriteString("allowed_tables:\n")
	for _, table := range tables {
		b.WriteString("  - " + table + "\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write allow-list: %v", err)
	}
	return path
}

func newTestExecutor(t *testing.T, ds *fakeDatastore) *Executor {
	t.Helper()
	allow, err := policyx.NewAllowlist(writeAllowlist(t, "health_metrics", "profile_details"), time.Minute)
	if err != nil {
		t.Fatalf("allow-list: %v", err)
	}
	guard, err := sqlguardx.New(allow)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	gw, err := toolx.NewGateway(ds, &fakeRetriever{snippets: []string{"sleep hygiene"}}, guard, allow, auditx.NewRecorder(io.Discard))
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	exec, err := NewExecutor(gw, 0)
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	return exec
}

func newTestOrchestrator(t *testing.T, ds *fakeDatastore, reg contractx.Registry, cfg Config) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(reg, newTestExecutor(t, ds), ds, cfg)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return orch
}

func handoffRequest(target contractx.AgentName, reason string) contractx.StepResponse {
	return contractx.StepResponse{ToolRequests: []contractx.ToolRequest{{
		Tool: toolx.ToolHandoff,
		Args: map[string]any{"target": string(target), "reason": reason},
	}}}
}

func finalAnswer(text string) contractx.StepResponse {
	return contractx.StepResponse{Message: text}
}

func TestChatTurnHandoffThenGuardedQuery(t *testing.T) {
	t.Parallel()

	ds := &fakeDatastore{
		execRows: []map[string]any{{"week": "2026-W35", "avg_hr": 61.0}},
	}
	reg := &fakeRegistry{
		profile: scripted(contractx.AgentProfile),
		recommendation: scripted(contractx.AgentRecommendation,
			handoffRequest(contractx.AgentAnalytics, "needs numbers"),
		),
		analytics: scripted(contractx.AgentAnalytics,
			contractx.StepResponse{ToolRequests: []contractx.ToolRequest{
				{Tool: toolx.ToolSQLRunReadonly, Args: map[string]any{
					"sql": "SELECT avg_hr FROM health_metrics WHERE user_id = 'u-1';",
				}},
				{Tool: toolx.ToolPersistInsight, Args: map[string]any{
					"summary": "resting heart rate trending down",
				}},
			}},
			finalAnswer("Your resting heart rate keeps improving."),
		),
	}
	orch := newTestOrchestrator(t, ds, reg, Config{})

	st := statex.NewAppState("sess-1", "u-1", time.Now())
	reply, err := orch.ChatTurn(context.Background(), st, "how is my heart doing?")
	if err != nil {
		t.Fatalf("ChatTurn: %v", err)
	}
	if reply != "Your resting heart rate keeps improving." {
		t.Fatalf("unexpected reply %q", reply)
	}

	if len(ds.execQueries) != 1 {
		t.Fatalf("expected one executed query, got %d", len(ds.execQueries))
	}
	if got := ds.execQueries[0]; strings.HasSuffix(got, ";") || !strings.HasPrefix(got, "SELECT") {
		t.Fatalf("query was not sanitized before execution: %q", got)
	}

	if st.Chat.LastInsight == "" {
		t.Fatal("persist_insight did not land in chat state")
	}

	// transcript: user + SESSION_UID + profile context, handoff trace,
	// handoff audit, sql trace, insight trace, final assistant answer
	var roles []string
	for _, m := range st.Messages {
		roles = append(roles, m.Role+"/"+m.Name)
	}
	want := []string{
		"user/",
		"system/",
		"system/",
		"tool/" + toolx.ToolHandoff,
		"system/handoff",
		"tool/" + toolx.ToolSQLRunReadonly,
		"tool/" + toolx.ToolPersistInsight,
		"assistant/" + string(contractx.AgentAnalytics),
	}
	if len(roles) != len(want) {
		t.Fatalf("transcript shape mismatch: got %v", roles)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("message %d: got %q, want %q (full: %v)", i, roles[i], want[i], roles)
		}
	}
}

func TestChatTurnStepCeiling(t *testing.T) {
	t.Parallel()

	ds := &fakeDatastore{}
	reg := &fakeRegistry{
		profile: scripted(contractx.AgentProfile),
		recommendation: &fakeSpecialist{
			name: contractx.AgentRecommendation,
			step: func(contractx.StepRequest) (contractx.StepResponse, error) {
				return handoffRequest(contractx.AgentAnalytics, "ping"), nil
			},
		},
		analytics: &fakeSpecialist{
			name: contractx.AgentAnalytics,
			step: func(contractx.StepRequest) (contractx.StepResponse, error) {
				return handoffRequest(contractx.AgentRecommendation, "pong"), nil
			},
		},
	}
	orch := newTestOrchestrator(t, ds, reg, Config{StepCeiling: 4})

	st := statex.NewAppState("sess-2", "u-1", time.Now())
	_, err := orch.ChatTurn(context.Background(), st, "hi")
	if !errors.Is(err, contractx.ErrFlow) {
		t.Fatalf("expected ErrFlow, got %v", err)
	}

	var handoffs int
	for _, m := range st.Messages {
		if m.Name == "handoff" {
			handoffs++
		}
	}
	if handoffs != 4 {
		t.Fatalf("expected exactly 4 committed handoffs before the ceiling, got %d", handoffs)
	}
}

func TestChatTurnRejectsSelfHandoff(t *testing.T) {
	t.Parallel()

	ds := &fakeDatastore{}
	reg := &fakeRegistry{
		profile:   scripted(contractx.AgentProfile),
		analytics: scripted(contractx.AgentAnalytics),
		recommendation: scripted(contractx.AgentRecommendation,
			handoffRequest(contractx.AgentRecommendation, "loop"),
		),
	}
	orch := newTestOrchestrator(t, ds, reg, Config{})

	st := statex.NewAppState("sess-3", "u-1", time.Now())
	_, err := orch.ChatTurn(context.Background(), st, "hi")
	if !errors.Is(err, contractx.ErrFlow) {
		t.Fatalf("expected ErrFlow, got %v", err)
	}

	// the failed step's scratch state is discarded: only the turn seed
	// messages remain
	if len(st.Messages) != 3 {
		t.Fatalf("failed step leaked state into the session: %d messages", len(st.Messages))
	}
}

func TestChatTurnRejectsTargetOutsideTopology(t *testing.T) {
	t.Parallel()

	ds := &fakeDatastore{}
	reg := &fakeRegistry{
		profile:   scripted(contractx.AgentProfile),
		analytics: scripted(contractx.AgentAnalytics),
		recommendation: scripted(contractx.AgentRecommendation,
			handoffRequest(contractx.AgentProfile, "wrong lane"),
		),
	}
	orch := newTestOrchestrator(t, ds, reg, Config{})

	st := statex.NewAppState("sess-4", "u-1", time.Now())
	_, err := orch.ChatTurn(context.Background(), st, "hi")
	if !errors.Is(err, contractx.ErrFlow) {
		t.Fatalf("expected ErrFlow, got %v", err)
	}
}

func TestProfileTurnMergesPrefetchAndAssessment(t *testing.T) {
	t.Parallel()

	ds := &fakeDatastore{
		profileDetails:   map[string]any{"age": 44.0, "conditions": []any{"hypertension"}},
		healthIndicators: map[string]any{"hba1c": 5.9},
		weeklyRows:       []map[string]any{{"week": "2026-W35", "steps": 52000.0}},
	}
	reg := &fakeRegistry{
		analytics:      scripted(contractx.AgentAnalytics),
		recommendation: scripted(contractx.AgentRecommendation),
		profile: scripted(contractx.AgentProfile,
			contractx.StepResponse{ToolRequests: []contractx.ToolRequest{{
				Tool: toolx.ToolRecordAssessment,
				Args: map[string]any{
					"raw_metrics": map[string]any{"steps_weekly": 52000.0},
					"assessment":  map[string]any{"activity": "adequate"},
					"trends":      map[string]any{"steps": "stable"},
				},
			}}},
			finalAnswer("profile updated"),
		),
	}
	orch := newTestOrchestrator(t, ds, reg, Config{})

	st := statex.NewAppState("sess-5", "u-1", time.Now())
	if err := orch.ProfileTurn(context.Background(), st); err != nil {
		t.Fatalf("ProfileTurn: %v", err)
	}

	if got := st.Profile.ProfileDetails["age"]; got != 44.0 {
		t.Fatalf("prefetched profile details missing: %v", st.Profile.ProfileDetails)
	}
	if got := st.Profile.HealthIndicators["hba1c"]; got != 5.9 {
		t.Fatalf("prefetched indicators missing: %v", st.Profile.HealthIndicators)
	}
	if got := st.Profile.Assessment["activity"]; got != "adequate" {
		t.Fatalf("assessment not recorded: %v", st.Profile.Assessment)
	}
}

func TestProfileTurnRejectsHandoff(t *testing.T) {
	t.Parallel()

	ds := &fakeDatastore{}
	reg := &fakeRegistry{
		analytics:      scripted(contractx.AgentAnalytics),
		recommendation: scripted(contractx.AgentRecommendation),
		profile: scripted(contractx.AgentProfile,
			handoffRequest(contractx.AgentAnalytics, "not my job"),
		),
	}
	orch := newTestOrchestrator(t, ds, reg, Config{})

	st := statex.NewAppState("sess-6", "u-1", time.Now())
	err := orch.ProfileTurn(context.Background(), st)
	if !errors.Is(err, contractx.ErrFlow) {
		t.Fatalf("expected ErrFlow, got %v", err)
	}
}

func TestProfileTurnSurvivesPrefetchFailure(t *testing.T) {
	t.Parallel()

	ds := &fakeDatastore{prefetchErr: errors.New("supabase down")}
	reg := &fakeRegistry{
		analytics:      scripted(contractx.AgentAnalytics),
		recommendation: scripted(contractx.AgentRecommendation),
		profile:        scripted(contractx.AgentProfile, finalAnswer("nothing new")),
	}
	orch := newTestOrchestrator(t, ds, reg, Config{})

	st := statex.NewAppState("sess-7", "u-1", time.Now())
	if err := orch.ProfileTurn(context.Background(), st); err != nil {
		t.Fatalf("prefetch failure must be best-effort, got %v", err)
	}
}

func TestNewOrchestratorValidatesRegistry(t *testing.T) {
	t.Parallel()

	ds := &fakeDatastore{}
	_, err := NewOrchestrator(nil, newTestExecutor(t, ds), ds, Config{})
	if !errors.Is(err, contractx.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
