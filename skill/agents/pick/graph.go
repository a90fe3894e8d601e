package pick

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

const (
	nodeSelectGrasp   = "select_grasp"
	nodeGraspSide     = "grasp_side"
	nodeGraspTop      = "grasp_top"
	nodePlaceTraySide = "place_tray_side"
	nodePlaceTrayTop  = "place_tray_top"
	nodeAbort         = "abort"
)

// The result tables map an executor outcome to the skill outcome it decides.
// An empty result lets the graph continue to the next node.
var (
	strategyResults = map[contractx.Outcome]contractx.Outcome{
		contractx.OutcomeSide:   "",
		contractx.OutcomeTop:    "",
		contractx.OutcomeFailed: contractx.OutcomeFailed,
	}
	sideGraspResults = map[contractx.Outcome]contractx.Outcome{
		contractx.OutcomeGrasped:    "",
		contractx.OutcomeNotGrasped: contractx.OutcomeNotReached,
		contractx.OutcomeFailed:     contractx.OutcomeFailed,
	}
	topGraspResults = map[contractx.Outcome]contractx.Outcome{
		contractx.OutcomeSucceeded:     "",
		contractx.OutcomeNoIKSolution:  contractx.OutcomeNotReached,
		contractx.OutcomeNoMoreRetries: contractx.OutcomeNotReached,
		contractx.OutcomeFailed:        contractx.OutcomeFailed,
	}
	placeResults = map[contractx.Outcome]contractx.Outcome{
		contractx.OutcomeSucceeded: contractx.OutcomeReached,
		contractx.OutcomeFailed:    contractx.OutcomeFailed,
	}
)

func checkResults(node string, results map[contractx.Outcome]contractx.Outcome, yields []contractx.Outcome) error {
	if len(yields) == 0 {
		return fmt.Errorf("%w: node=%s declares no outcomes", contractx.ErrInvalidTransitionTable, node)
	}
	for _, o := range yields {
		if _, ok := results[o]; !ok {
			return fmt.Errorf("%w: node=%s outcome=%s has no result", contractx.ErrInvalidTransitionTable, node, o)
		}
	}
	return nil
}

func resultFor(node string, results map[contractx.Outcome]contractx.Outcome, outcome contractx.Outcome) (contractx.Outcome, error) {
	result, ok := results[outcome]
	if !ok {
		return "", fmt.Errorf("%w: node=%s outcome=%q", contractx.ErrUndeclaredOutcome, node, outcome)
	}
	return result, nil
}

type pickState struct {
	Input    contractx.SkillInput
	Object   contractx.DetectedObject
	Strategy contractx.Outcome
	// Result is set once the run is decided and no further step may act.
	Result contractx.Outcome
}

type pickResult struct {
	Object   string
	Strategy contractx.Outcome
	Outcome  contractx.Outcome
}

func (st *pickState) result() pickResult {
	return pickResult{Object: st.Object.Label, Strategy: st.Strategy, Outcome: st.Result}
}

func (s *Skill) compileGraph(ctx context.Context) (compose.Runnable[contractx.SkillInput, pickResult], error) {
	graph := compose.NewGraph[contractx.SkillInput, pickResult]()

	if err := graph.AddLambdaNode(nodeSelectGrasp,
		compose.InvokableLambda(s.selectGrasp),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeSelectGrasp, err)
	}

	if err := graph.AddLambdaNode(nodeGraspSide,
		compose.InvokableLambda(func(ctx context.Context, st *pickState) (*pickState, error) {
			outcome, err := s.deps.Side.Execute(ctx, st.Object, s.sideRetry)
			if err != nil {
				return nil, err
			}
			if st.Result, err = resultFor(nodeGraspSide, sideGraspResults, outcome); err != nil {
				return nil, err
			}
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeGraspSide, err)
	}

	if err := graph.AddLambdaNode(nodeGraspTop,
		compose.InvokableLambda(func(ctx context.Context, st *pickState) (*pickState, error) {
			outcome, err := s.deps.Top.Execute(ctx, st.Object, s.topRetry)
			if err != nil {
				return nil, err
			}
			if st.Result, err = resultFor(nodeGraspTop, topGraspResults, outcome); err != nil {
				return nil, err
			}
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeGraspTop, err)
	}

	if err := graph.AddLambdaNode(nodePlaceTraySide,
		compose.InvokableLambda(func(ctx context.Context, st *pickState) (pickResult, error) {
			return s.place(ctx, nodePlaceTraySide, s.deps.PlaceSide, st)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodePlaceTraySide, err)
	}

	if err := graph.AddLambdaNode(nodePlaceTrayTop,
		compose.InvokableLambda(func(ctx context.Context, st *pickState) (pickResult, error) {
			return s.place(ctx, nodePlaceTrayTop, s.deps.PlaceTop, st)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodePlaceTrayTop, err)
	}

	if err := graph.AddLambdaNode(nodeAbort,
		compose.InvokableLambda(func(ctx context.Context, st *pickState) (pickResult, error) {
			return st.result(), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodeAbort, err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, st *pickState) (string, error) {
			if st.Result != "" {
				return nodeAbort, nil
			}
			switch st.Strategy {
			case contractx.OutcomeSide:
				return nodeGraspSide, nil
			case contractx.OutcomeTop:
				return nodeGraspTop, nil
			default:
				return "", fmt.Errorf("%w: grasp strategy %q", contractx.ErrUndeclaredOutcome, st.Strategy)
			}
		},
		map[string]bool{
			nodeGraspSide: true,
			nodeGraspTop:  true,
			nodeAbort:     true,
		},
	)
	if err := graph.AddBranch(nodeSelectGrasp, branch); err != nil {
		return nil, fmt.Errorf("add select grasp branch: %w", err)
	}

	edges := [][2]string{
		{compose.START, nodeSelectGrasp},
		{nodeGraspSide, nodePlaceTraySide},
		{nodeGraspTop, nodePlaceTrayTop},
		{nodePlaceTraySide, compose.END},
		{nodePlaceTrayTop, compose.END},
		{nodeAbort, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("pick.pick_and_place"))
	if err != nil {
		return nil, fmt.Errorf("compile pick graph: %w", err)
	}
	return runner, nil
}

// selectGrasp optionally approaches the goal, then detects the object and
// chooses a strategy.
func (s *Skill) selectGrasp(ctx context.Context, in contractx.SkillInput) (*pickState, error) {
	st := &pickState{Input: in}

	if s.deps.Approach != nil {
		outcome, err := s.deps.Approach.Run(ctx, in)
		if err != nil {
			return nil, err
		}
		if outcome != contractx.OutcomeReached {
			st.Result = outcome
			return st, nil
		}
	}

	if in.Object != nil {
		st.Object = *in.Object
	} else {
		obj, err := s.deps.Objects.Detect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.logger.Warn().Err(err).Msg("object detection failed")
			st.Result = contractx.OutcomeNotReached
			return st, nil
		}
		st.Object = obj
	}

	strategy, err := s.deps.Selector.Execute(ctx, st.Object)
	if err != nil {
		return nil, err
	}
	st.Strategy = strategy
	if st.Result, err = resultFor(nodeSelectGrasp, strategyResults, strategy); err != nil {
		return nil, err
	}
	return st, nil
}

// place puts the object on the tray when the grasp succeeded.
func (s *Skill) place(ctx context.Context, node string, placer Placer, st *pickState) (pickResult, error) {
	if st.Result != "" {
		return st.result(), nil
	}
	outcome, err := placer.Execute(ctx)
	if err != nil {
		return pickResult{}, err
	}
	if st.Result, err = resultFor(node, placeResults, outcome); err != nil {
		return pickResult{}, err
	}
	return st.result(), nil
}
