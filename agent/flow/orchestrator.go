package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/chronicai/chronicai/agent/contract"
	statex "github.com/chronicai/chronicai/agent/state"
)

// DefaultStepCeiling is the hard bound on specialist steps (and thereby
// handoff transitions) per external chat request.
const DefaultStepCeiling = 10

// Config comes from the environment with the FLOW prefix.
type Config struct {
	StepCeiling   int `envconfig:"STEP_CEILING" split_words:"true" default:"10"`
	MaxToolRounds int `envconfig:"MAX_TOOL_ROUNDS" split_words:"true" default:"8"`
}

// chatTransitions is the closed handoff topology, validated at startup:
// a handoff may only name a peer listed for the current specialist.
var chatTransitions = map[contractx.AgentName][]contractx.AgentName{
	contractx.AgentRecommendation: {contractx.AgentAnalytics},
	contractx.AgentAnalytics:      {contractx.AgentRecommendation},
}

const chatEntry = contractx.AgentRecommendation

// Orchestrator drives the bounded step sequence for one external
// request: the fixed profile pipeline and the handoff-capable chat loop.
type Orchestrator struct {
	registry    contractx.Registry
	executor    *Executor
	ds          contractx.Datastore
	stepCeiling int
	transitions map[contractx.AgentName]map[contractx.AgentName]struct{}
	entry       contractx.AgentName
	now         func() time.Time
}

func NewOrchestrator(registry contractx.Registry, executor *Executor, ds contractx.Datastore, cfg Config) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: specialist registry is required", contractx.ErrConfig)
	}
	if executor == nil {
		return nil, fmt.Errorf("%w: step executor is required", contractx.ErrConfig)
	}
	if ds == nil {
		return nil, fmt.Errorf("%w: datastore is required", contractx.ErrConfig)
	}

	stepCeiling := cfg.StepCeiling
	if stepCeiling <= 0 {
		stepCeiling = DefaultStepCeiling
	}

	o := &Orchestrator{
		registry:    registry,
		executor:    executor,
		ds:          ds,
		stepCeiling: stepCeiling,
		transitions: make(map[contractx.AgentName]map[contractx.AgentName]struct{}, len(chatTransitions)),
		entry:       chatEntry,
		now:         time.Now,
	}

	// validate the topology once: every source and target must resolve
	// to a known specialist before the first request runs
	for source, targets := range chatTransitions {
		if _, err := o.specialist(source); err != nil {
			return nil, err
		}
		set := make(map[contractx.AgentName]struct{}, len(targets))
		for _, target := range targets {
			if _, ok := contractx.KnownAgents[target]; !ok {
				return nil, fmt.Errorf("%w: transition target %q is not a known specialist", contractx.ErrConfig, target)
			}
			if _, err := o.specialist(target); err != nil {
				return nil, err
			}
			if target == source {
				return nil, fmt.Errorf("%w: transition table allows self-handoff for %s", contractx.ErrConfig, source)
			}
			set[target] = struct{}{}
		}
		o.transitions[source] = set
	}
	if _, err := o.specialist(o.entry); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *Orchestrator) specialist(name contractx.AgentName) (contractx.Specialist, error) {
	var sp contractx.Specialist
	switch name {
	case contractx.AgentProfile:
		sp = o.registry.Profile()
	case contractx.AgentAnalytics:
		sp = o.registry.Analytics()
	case contractx.AgentRecommendation:
		sp = o.registry.Recommendation()
	default:
		return nil, fmt.Errorf("%w: unknown specialist %q", contractx.ErrConfig, name)
	}
	if sp == nil {
		return nil, fmt.Errorf("%w: registry has no %s specialist", contractx.ErrConfig, name)
	}
	return sp, nil
}

// ProfileTurn runs the fixed single-specialist profile pipeline:
// best-effort prefetch of reference data, one profile step, merge. No
// handoff is possible here.
func (o *Orchestrator) ProfileTurn(ctx context.Context, st *statex.AppState) error {
	now := o.now()

	prefetch := &statex.ProfilePatch{}
	if details, err := o.ds.ProfileDetails(ctx, st.UserID); err != nil {
		log.Warn().Err(err).Str("user_id", st.UserID).Msg("profile details prefetch failed")
	} else {
		prefetch.ProfileDetails = details
	}
	if indicators, err := o.ds.LatestHealthIndicators(ctx, st.UserID); err != nil {
		log.Warn().Err(err).Str("user_id", st.UserID).Msg("health indicators prefetch failed")
	} else {
		prefetch.HealthIndicators = indicators
	}
	st.Apply(statex.Patch{Profile: prefetch}, now)

	sp, err := o.specialist(contractx.AgentProfile)
	if err != nil {
		return err
	}

	working := st.Clone()
	outcome, err := o.executor.RunStep(ctx, sp, working, now)
	if err != nil {
		return err
	}
	if outcome.Handoff != nil {
		return fmt.Errorf("%w: profile flow does not support handoff (target=%s)", contractx.ErrFlow, outcome.Handoff.Target)
	}

	*st = *working
	return nil
}

// ChatTurn runs the handoff-capable chat loop over st. State merged by
// completed steps stays committed even when a later step fails; no
// partial state from a failed or aborted step is ever merged.
func (o *Orchestrator) ChatTurn(ctx context.Context, st *statex.AppState, message string) (string, error) {
	now := o.now()

	st.Apply(statex.Patch{Messages: []statex.Message{
		{Role: statex.RoleUser, Content: message},
		{Role: statex.RoleSystem, Content: "SESSION_UID=" + st.UserID},
		profileContextMessage(st),
	}}, now)

	current := o.entry
	for step := 0; step < o.stepCeiling; step++ {
		sp, err := o.specialist(current)
		if err != nil {
			return "", err
		}

		working := st.Clone()
		outcome, err := o.executor.RunStep(ctx, sp, working, now)
		if err != nil {
			return "", err
		}

		if outcome.Handoff == nil {
			*st = *working
			return outcome.Final, nil
		}

		target := outcome.Handoff.Target
		if target == current {
			return "", fmt.Errorf("%w: specialist %s attempted self-handoff", contractx.ErrFlow, current)
		}
		if _, ok := o.transitions[current][target]; !ok {
			return "", fmt.Errorf("%w: handoff from %s to unknown target %q", contractx.ErrFlow, current, target)
		}

		*st = *working
		st.Apply(statex.Patch{Messages: []statex.Message{
			handoffAuditMessage(current, outcome.Handoff),
		}}, now)
		log.Debug().
			Str("session_id", st.SessionID).
			Str("from", string(current)).
			Str("to", string(target)).
			Msg("handoff")
		current = target
	}

	return "", fmt.Errorf("%w: step ceiling %d exceeded", contractx.ErrFlow, o.stepCeiling)
}

func handoffAuditMessage(from contractx.AgentName, h *contractx.Handoff) statex.Message {
	content, _ := json.Marshal(map[string]string{
		"event":  "handoff",
		"from":   string(from),
		"to":     string(h.Target),
		"reason": h.Reason,
	})
	return statex.Message{
		Role:    statex.RoleSystem,
		Name:    "handoff",
		Content: string(content),
	}
}

func profileContextMessage(st *statex.AppState) statex.Message {
	payload, _ := json.Marshal(map[string]any{
		"assessment": st.Profile.Assessment,
		"trends":     st.Profile.Trends,
	})
	return statex.Message{
		Role:    statex.RoleSystem,
		Content: "PROFILE_CONTEXT_JSON\n" + string(payload),
	}
}
