// Package session tracks the evaluate, critique and improve results of one
// incident across separate user actions.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/okian/rcagrade/internal/domain/model"
	"github.com/okian/rcagrade/pkg/logger"
)

// State holds the three result slots for one incident. EvaluatedIncident is
// the incident text the evaluation was produced from.
type State struct {
	IncidentID        string                   `json:"incident_id"`
	EvaluatedIncident *model.Incident          `json:"evaluated_incident,omitempty"`
	Evaluation        *model.EvaluationResult  `json:"evaluation"`
	Critique          *model.CritiqueResult    `json:"critique"`
	Improvement       *model.ImprovementResult `json:"improvement"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

// WithEvaluation stores e as the evaluation of inc and clears the critique
// and improvement slots.
func (s State) WithEvaluation(inc model.Incident, e *model.EvaluationResult) State {
	s.EvaluatedIncident = &inc
	s.Evaluation = e
	s.Critique = nil
	s.Improvement = nil
	return s
}

// WithCritique stores c. It fails when there is no evaluation to critique.
func (s State) WithCritique(c *model.CritiqueResult) (State, error) {
	if s.Evaluation == nil {
		return s, ErrNoEvaluation
	}
	s.Critique = c
	return s, nil
}

// WithImprovement stores i. Improvement has no precondition.
func (s State) WithImprovement(i *model.ImprovementResult) State {
	s.Improvement = i
	return s
}

// Runner performs the model round trips.
type Runner interface {
	Evaluate(ctx context.Context, inc model.Incident) (*model.EvaluationResult, error)
	Critique(ctx context.Context, inc model.Incident, evaluation *model.EvaluationResult) (*model.CritiqueResult, error)
	Improve(ctx context.Context, inc model.Incident) (*model.ImprovementResult, error)
}

// Store persists session state by incident id.
type Store interface {
	// Get returns the state for id or ErrNotFound.
	Get(ctx context.Context, id string) (State, error)
	// Update applies fn to the current state for id atomically. A missing
	// session is passed to fn as a zero State with IncidentID set.
	Update(ctx context.Context, id string, fn func(State) (State, error)) (State, error)
}

// Manager drives state transitions. Model calls run outside the store's
// critical section; results are applied to the freshest state afterwards.
type Manager struct {
	runner Runner
	store  Store
	logger logger.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager.
func NewManager(runner Runner, store Store, opts ...Option) *Manager {
	m := &Manager{
		runner: runner,
		store:  store,
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the session for id.
func (m *Manager) Get(ctx context.Context, id string) (State, error) {
	return m.store.Get(ctx, id)
}

// Evaluate runs a fresh evaluation and resets downstream slots. On failure
// the session is left unchanged.
func (m *Manager) Evaluate(ctx context.Context, inc model.Incident) (State, error) {
	res, err := m.runner.Evaluate(ctx, inc)
	if err != nil {
		return State{}, err
	}
	state, err := m.store.Update(ctx, inc.IncidentID, func(s State) (State, error) {
		s = s.WithEvaluation(inc, res)
		s.UpdatedAt = m.now()
		return s, nil
	})
	if err != nil {
		return State{}, err
	}
	m.logger.Info(ctx, "session evaluated",
		logger.String("incident_id", inc.IncidentID),
		logger.Int("total", res.Total),
	)
	return state, nil
}

// Critique reviews the stored evaluation. It fails before any model call
// with ErrNoEvaluation when the session has none, and with
// ErrIncidentMismatch when inc differs from the incident that was evaluated.
func (m *Manager) Critique(ctx context.Context, inc model.Incident) (State, error) {
	current, err := m.store.Get(ctx, inc.IncidentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return State{}, err
	}
	if current.Evaluation == nil {
		return State{}, ErrNoEvaluation
	}
	if current.EvaluatedIncident == nil || *current.EvaluatedIncident != inc {
		m.logger.Warn(ctx, "critique refused for changed incident",
			logger.String("incident_id", inc.IncidentID))
		return State{}, ErrIncidentMismatch
	}

	res, err := m.runner.Critique(ctx, inc, current.Evaluation)
	if err != nil {
		return State{}, err
	}
	state, err := m.store.Update(ctx, inc.IncidentID, func(s State) (State, error) {
		if s.Evaluation != current.Evaluation {
			return s, ErrStaleEvaluation
		}
		next, err := s.WithCritique(res)
		if err != nil {
			return s, err
		}
		next.UpdatedAt = m.now()
		return next, nil
	})
	if err != nil {
		return State{}, err
	}
	m.logger.Info(ctx, "session critiqued",
		logger.String("incident_id", inc.IncidentID),
		logger.String("confidence", string(res.Confidence)),
	)
	return state, nil
}

// Improve rewrites the RCA regardless of other slots.
func (m *Manager) Improve(ctx context.Context, inc model.Incident) (State, error) {
	res, err := m.runner.Improve(ctx, inc)
	if err != nil {
		return State{}, err
	}
	state, err := m.store.Update(ctx, inc.IncidentID, func(s State) (State, error) {
		s = s.WithImprovement(res)
		s.UpdatedAt = m.now()
		return s, nil
	})
	if err != nil {
		return State{}, err
	}
	m.logger.Info(ctx, "session improved", logger.String("incident_id", inc.IncidentID))
	return state, nil
}
