package navigation

import (
	"context"
	"math/rand/v2"

	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	metricsx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/metrics"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

// GoalSelector draws base goals from the grid without replacement. The pool
// is refilled with the whole grid once it runs dry.
type GoalSelector struct {
	grid GridConfig
	rng  *rand.Rand
	pool []contractx.NavigationGoal

	metrics *metricsx.Collector
	logger  zerolog.Logger
}

type SelectorOption func(*GoalSelector)

func WithSelectorMetrics(c *metricsx.Collector) SelectorOption {
	return func(s *GoalSelector) {
		s.metrics = c
	}
}

func WithSelectorLogger(l zerolog.Logger) SelectorOption {
	return func(s *GoalSelector) {
		s.logger = l
	}
}

// NewGoalSelector validates grid. A nil rng uses a randomly seeded source.
func NewGoalSelector(grid GridConfig, rng *rand.Rand, opts ...SelectorOption) (*GoalSelector, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	s := &GoalSelector{grid: grid, rng: rng, logger: logx.For("select_goal")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *GoalSelector) Outcomes() []contractx.Outcome {
	return []contractx.Outcome{contractx.OutcomeSelected, contractx.OutcomeNotSelected, contractx.OutcomeFailed}
}

// Remaining reports how many goals are left before the next regeneration.
func (s *GoalSelector) Remaining() int {
	return len(s.pool)
}

// Select draws one goal. It yields failed when ctx is already done and
// not_selected when a regeneration produced no goals.
func (s *GoalSelector) Select(ctx context.Context) (contractx.NavigationGoal, contractx.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return contractx.NavigationGoal{}, contractx.OutcomeFailed, err
	}

	if len(s.pool) == 0 {
		s.pool = s.grid.Enumerate()
		s.metrics.RecordPoolRegenerated(len(s.pool))
		s.logger.Debug().Int("size", len(s.pool)).Err(contractx.ErrGoalPoolExhausted).Msg("goal pool regenerated")
		if len(s.pool) == 0 {
			return contractx.NavigationGoal{}, contractx.OutcomeNotSelected, nil
		}
	}

	i := s.rng.IntN(len(s.pool))
	goal := s.pool[i]
	s.pool = append(s.pool[:i], s.pool[i+1:]...)
	s.metrics.SetPoolRemaining(len(s.pool))

	s.logger.Info().
		Float64("x", goal.X).
		Float64("y", goal.Y).
		Float64("theta", goal.Theta).
		Int("remaining", len(s.pool)).
		Msg("navigation goal selected")
	return goal, contractx.OutcomeSelected, nil
}
