package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/chronicai/chronicai/agent/contract"
	statex "github.com/chronicai/chronicai/agent/state"
)

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	SessionID       string         `json:"session_id"`
	Reply           string         `json:"reply"`
	LastInsight     string         `json:"last_insight,omitempty"`
	Recommendations map[string]any `json:"recommendations,omitempty"`
}

// ProfileResult is the outcome of one profile pipeline run.
type ProfileResult struct {
	SessionID string              `json:"session_id"`
	Profile   statex.ProfileState `json:"profile"`
}

// Service is the session-facing entry point. It owns session identity,
// per-session serialization, and the load/run/save cycle around the
// orchestrator.
type Service struct {
	store        statex.Store
	orchestrator *Orchestrator
	locks        sync.Map // session id -> *sync.Mutex
	now          func() time.Time
}

func NewService(store statex.Store, orchestrator *Orchestrator) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: session store is required", contractx.ErrConfig)
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("%w: orchestrator is required", contractx.ErrConfig)
	}
	return &Service{
		store:        store,
		orchestrator: orchestrator,
		now:          time.Now,
	}, nil
}

// Chat runs one chat turn for the session. An empty sessionID starts a
// new session; the returned ChatResult always carries the id to use for
// the next turn.
func (s *Service) Chat(ctx context.Context, sessionID, userID, message string) (ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return ChatResult{}, fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	}

	st, unlock, err := s.checkout(ctx, sessionID, userID)
	if err != nil {
		return ChatResult{}, err
	}
	defer unlock()

	reply, flowErr := s.orchestrator.ChatTurn(ctx, st, message)

	// state merged by completed steps stays committed even when a later
	// step failed, so persist before surfacing the error
	if err := s.store.Save(ctx, st); err != nil {
		log.Error().Err(err).Str("session_id", st.SessionID).Msg("session save failed")
		if flowErr == nil {
			flowErr = err
		}
	}
	if flowErr != nil {
		return ChatResult{SessionID: st.SessionID}, flowErr
	}
	return ChatResult{
		SessionID:       st.SessionID,
		Reply:           reply,
		LastInsight:     st.Chat.LastInsight,
		Recommendations: st.Profile.Recommendations,
	}, nil
}

// Profile runs the profile pipeline for the session and returns the
// merged profile sections.
func (s *Service) Profile(ctx context.Context, sessionID, userID string) (ProfileResult, error) {
	st, unlock, err := s.checkout(ctx, sessionID, userID)
	if err != nil {
		return ProfileResult{}, err
	}
	defer unlock()

	flowErr := s.orchestrator.ProfileTurn(ctx, st)

	if err := s.store.Save(ctx, st); err != nil {
		log.Error().Err(err).Str("session_id", st.SessionID).Msg("session save failed")
		if flowErr == nil {
			flowErr = err
		}
	}
	if flowErr != nil {
		return ProfileResult{SessionID: st.SessionID}, flowErr
	}
	return ProfileResult{SessionID: st.SessionID, Profile: st.Profile}, nil
}

// checkout resolves session identity, acquires the per-session lock, and
// loads (or creates) the state record. The returned unlock must be
// called once the turn is fully persisted.
func (s *Service) checkout(ctx context.Context, sessionID, userID string) (*statex.AppState, func(), error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil, fmt.Errorf("%w: user id is required", contractx.ErrValidation)
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	mu := s.sessionLock(sessionID)
	mu.Lock()

	st, err := s.store.Load(ctx, sessionID)
	switch {
	case errors.Is(err, statex.ErrStateNotFound):
		st = statex.NewAppState(sessionID, userID, s.now())
	case err != nil:
		mu.Unlock()
		return nil, nil, err
	}

	if st.UserID == "" {
		st.UserID = userID
	} else if st.UserID != userID {
		mu.Unlock()
		return nil, nil, fmt.Errorf("%w: session %s belongs to another user", contractx.ErrValidation, sessionID)
	}

	return st, mu.Unlock, nil
}

func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	actual, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
