// Package pick is the pick-and-place sub-skill: detect an object, choose a
// side or top grasp, grasp it and put it on the tray.
package pick

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	manipulationx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/manipulation"
)

const Name = "pick_and_place"

type GraspSelector interface {
	Execute(ctx context.Context, obj contractx.DetectedObject) (contractx.Outcome, error)
	Outcomes() []contractx.Outcome
}

type GraspExecutor interface {
	Execute(ctx context.Context, obj contractx.DetectedObject, retry *manipulationx.RetryState) (contractx.Outcome, error)
	Outcomes() []contractx.Outcome
}

type Placer interface {
	Execute(ctx context.Context) (contractx.Outcome, error)
	Outcomes() []contractx.Outcome
}

// Deps wires the executors. Approach is optional; when set, the base is
// driven to the selected goal before the object is detected.
type Deps struct {
	Objects   contractx.ObjectSource
	Approach  contractx.Skill
	Selector  GraspSelector
	Side      GraspExecutor
	Top       GraspExecutor
	PlaceSide Placer
	PlaceTop  Placer
}

// Skill runs the pick-and-place graph. Each grasp executor keeps its own
// retry state across runs.
type Skill struct {
	deps      Deps
	sideRetry *manipulationx.RetryState
	topRetry  *manipulationx.RetryState

	runner compose.Runnable[contractx.SkillInput, pickResult]
	logger zerolog.Logger
}

func New(ctx context.Context, deps Deps, maxRetries int) (*Skill, error) {
	if deps.Objects == nil {
		return nil, errors.New("object source is required")
	}
	if deps.Selector == nil {
		return nil, errors.New("grasp selector is required")
	}
	if deps.Side == nil || deps.Top == nil {
		return nil, errors.New("side and top grasp executors are required")
	}
	if deps.PlaceSide == nil || deps.PlaceTop == nil {
		return nil, errors.New("tray placement executors are required")
	}
	checks := []struct {
		node    string
		results map[contractx.Outcome]contractx.Outcome
		yields  []contractx.Outcome
	}{
		{nodeSelectGrasp, strategyResults, deps.Selector.Outcomes()},
		{nodeGraspSide, sideGraspResults, deps.Side.Outcomes()},
		{nodeGraspTop, topGraspResults, deps.Top.Outcomes()},
		{nodePlaceTraySide, placeResults, deps.PlaceSide.Outcomes()},
		{nodePlaceTrayTop, placeResults, deps.PlaceTop.Outcomes()},
	}
	for _, c := range checks {
		if err := checkResults(c.node, c.results, c.yields); err != nil {
			return nil, err
		}
	}

	s := &Skill{
		deps:      deps,
		sideRetry: manipulationx.NewRetryState(maxRetries),
		topRetry:  manipulationx.NewRetryState(maxRetries),
		logger:    logx.For(Name),
	}
	runner, err := s.compileGraph(ctx)
	if err != nil {
		return nil, err
	}
	s.runner = runner
	return s, nil
}

func (s *Skill) Name() string { return Name }

// Retries returns copies of the side and top retry states.
func (s *Skill) Retries() (side, top manipulationx.RetryState) {
	return *s.sideRetry, *s.topRetry
}

func (s *Skill) Run(ctx context.Context, in contractx.SkillInput) (contractx.Outcome, error) {
	out, err := s.runner.Invoke(ctx, in)
	if err != nil {
		return "", fmt.Errorf("run %s graph: %w", Name, err)
	}
	s.logger.Info().
		Str("object", out.Object).
		Str("strategy", string(out.Strategy)).
		Str("outcome", string(out.Outcome)).
		Msg("pick and place finished")
	return out.Outcome, nil
}
