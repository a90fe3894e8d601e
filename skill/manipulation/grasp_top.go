package manipulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	metricsx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/metrics"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

const topGraspName = "grasp_top"

// TopGrasp grasps low objects from above with a spherical grip.
type TopGrasp struct {
	transformer *PoseTransformer
	ik          *IKClient
	motion      contractx.MotionFacade
	speech      contractx.Speaker
	geometry    GraspGeometry
	frame       string
	seed        contractx.JointState

	metrics *metricsx.Collector
	logger  *zerolog.Logger
}

func NewTopGrasp(
	transformer *PoseTransformer,
	ik *IKClient,
	motion contractx.MotionFacade,
	speech contractx.Speaker,
	cfg Config,
	opts ...Option,
) (*TopGrasp, error) {
	if transformer == nil {
		return nil, errors.New("pose transformer is required")
	}
	if ik == nil {
		return nil, errors.New("ik client is required")
	}
	if motion == nil {
		return nil, errors.New("motion facade is required")
	}
	o := buildOptions(topGraspName, opts)
	return &TopGrasp{
		transformer: transformer,
		ik:          ik,
		motion:      motion,
		speech:      speech,
		geometry:    TopGeometry,
		frame:       frameOrDefault(cfg.BaseFrame),
		seed:        seedFrom(nil, cfg.PregraspTopSeed),
		metrics:     o.metrics,
		logger:      o.logger,
	}, nil
}

func (g *TopGrasp) Outcomes() []contractx.Outcome {
	return []contractx.Outcome{
		contractx.OutcomeSucceeded,
		contractx.OutcomeNoIKSolution,
		contractx.OutcomeNoMoreRetries,
		contractx.OutcomeFailed,
	}
}

func (g *TopGrasp) Plan(ctx context.Context, obj contractx.DetectedObject) (GraspPlan, error) {
	inBase, err := g.transformer.ToFrame(ctx, obj.Pose, g.frame)
	if err != nil {
		return GraspPlan{}, err
	}
	return g.geometry.PlanFrom(g.geometry.GraspPose(inBase, obj)), nil
}

func (g *TopGrasp) Execute(ctx context.Context, obj contractx.DetectedObject, retry *RetryState) (contractx.Outcome, error) {
	if retry == nil {
		return "", fmt.Errorf("%w: retry state is required", contractx.ErrValidation)
	}
	outcome := g.execute(ctx, obj, retry)
	g.metrics.RecordGrasp(topGraspName, string(outcome))
	return outcome, ctx.Err()
}

func (g *TopGrasp) execute(ctx context.Context, obj contractx.DetectedObject, retry *RetryState) contractx.Outcome {
	if retry.Exhausted() {
		g.logger.Warn().Int("attempts", retry.Attempts).Int("max_retries", retry.MaxRetries).Msg("max retries reached")
		retry.Reset()
		retreat(ctx, g.motion, g.logger)
		return contractx.OutcomeNoMoreRetries
	}

	plan, err := g.Plan(ctx, obj)
	if err != nil {
		g.logger.Error().Err(err).Str("object", obj.Label).Msg("transformation not possible")
		return contractx.OutcomeFailed
	}

	sol, fail := solvePlan(ctx, g.ik, g.seed, plan)
	if fail != nil {
		g.logger.Error().Err(fail).Str("stage", fail.Stage).Str("code", fail.Code.String()).Msgf("ik %s failed", fail.Stage)
		g.metrics.RecordIKFailure(topGraspName, fail.Stage, fail.Code.String())
		retry.Fail()
		return contractx.OutcomeNoIKSolution
	}

	say(ctx, g.speech, g.logger, "I am grasping the "+obj.Label+" now.")

	act := newActuation(ctx, g.motion, g.logger)
	act.move(contractx.GroupTorso, contractx.Named("home"), true)
	arm := act.move(contractx.GroupArm, contractx.Joints(sol.PreGrasp.Positions, sol.Grasp.Positions), false)
	act.move(contractx.GroupGripper, contractx.Named("spheropen"), true)
	act.wait(contractx.GroupArm, arm)
	act.move(contractx.GroupGripper, contractx.Named("spherclosed"), true)

	act.move(contractx.GroupHead, contractx.Named("front"), false)
	act.move(contractx.GroupArm, contractx.Joints(sol.PostGrasp.Positions).Then(contractx.Named("hold")), true)
	if act.err != nil {
		return contractx.OutcomeFailed
	}

	retry.Reset()
	return contractx.OutcomeSucceeded
}
