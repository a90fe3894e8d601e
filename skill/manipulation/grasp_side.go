package manipulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	metricsx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/metrics"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

const sideGraspName = "grasp_side"

// SideGrasp grasps an object from the side using a generic frame transform
// and a fixed orientation override.
type SideGrasp struct {
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

func NewSideGrasp(
	transformer *PoseTransformer,
	ik *IKClient,
	motion contractx.MotionFacade,
	speech contractx.Speaker,
	cfg Config,
	opts ...Option,
) (*SideGrasp, error) {
	if transformer == nil {
		return nil, errors.New("pose transformer is required")
	}
	if ik == nil {
		return nil, errors.New("ik client is required")
	}
	if motion == nil {
		return nil, errors.New("motion facade is required")
	}
	o := buildOptions(sideGraspName, opts)
	return &SideGrasp{
		transformer: transformer,
		ik:          ik,
		motion:      motion,
		speech:      speech,
		geometry:    SideGeometry,
		frame:       frameOrDefault(cfg.BaseFrame),
		seed:        seedFrom(nil, cfg.PregraspSeed),
		metrics:     o.metrics,
		logger:      o.logger,
	}, nil
}

func (g *SideGrasp) Outcomes() []contractx.Outcome {
	return []contractx.Outcome{contractx.OutcomeGrasped, contractx.OutcomeNotGrasped, contractx.OutcomeFailed}
}

// Plan returns the staged poses for obj without solving or moving anything.
func (g *SideGrasp) Plan(ctx context.Context, obj contractx.DetectedObject) (GraspPlan, error) {
	inBase, err := g.transformer.ToFrame(ctx, obj.Pose, g.frame)
	if err != nil {
		return GraspPlan{}, err
	}
	return g.geometry.PlanFrom(g.geometry.GraspPose(inBase, obj)), nil
}

func (g *SideGrasp) Execute(ctx context.Context, obj contractx.DetectedObject, retry *RetryState) (contractx.Outcome, error) {
	if retry == nil {
		return "", fmt.Errorf("%w: retry state is required", contractx.ErrValidation)
	}
	outcome := g.execute(ctx, obj, retry)
	g.metrics.RecordGrasp(sideGraspName, string(outcome))
	return outcome, ctx.Err()
}

func (g *SideGrasp) execute(ctx context.Context, obj contractx.DetectedObject, retry *RetryState) contractx.Outcome {
	if retry.Exhausted() {
		g.logger.Warn().Int("attempts", retry.Attempts).Int("max_retries", retry.MaxRetries).Msg("max retries reached")
		retry.Reset()
		retreat(ctx, g.motion, g.logger)
		return contractx.OutcomeNotGrasped
	}

	plan, err := g.Plan(ctx, obj)
	if err != nil {
		g.logger.Error().Err(err).Str("object", obj.Label).Msg("transformation not possible")
		return contractx.OutcomeFailed
	}

	sol, fail := solvePlan(ctx, g.ik, g.seed, plan)
	if fail != nil {
		g.logger.Error().Err(fail).Str("stage", fail.Stage).Str("code", fail.Code.String()).Msgf("ik %s failed", fail.Stage)
		g.metrics.RecordIKFailure(sideGraspName, fail.Stage, fail.Code.String())
		retry.Fail()
		return contractx.OutcomeNotGrasped
	}

	say(ctx, g.speech, g.logger, "I am grasping the "+obj.Label+" now.")

	act := newActuation(ctx, g.motion, g.logger)
	act.move(contractx.GroupTorso, contractx.Named("front"), true)
	arm := act.move(contractx.GroupArm, contractx.Joints(sol.PreGrasp.Positions, sol.Grasp.Positions), false)
	act.move(contractx.GroupGripper, contractx.Named("cylopen"), true)
	act.wait(contractx.GroupArm, arm)
	act.move(contractx.GroupGripper, contractx.Named("cylclosed"), true)

	act.move(contractx.GroupHead, contractx.Named("front"), false)
	act.move(contractx.GroupArm, contractx.Joints(sol.PostGrasp.Positions).Then(contractx.Named("hold")), true)
	if act.err != nil {
		return contractx.OutcomeFailed
	}

	retry.Reset()
	return contractx.OutcomeGrasped
}
