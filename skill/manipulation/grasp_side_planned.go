package manipulation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	metricsx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/metrics"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

const sidePlannedGraspName = "grasp_side_planned"

// SidePlannedGrasp is the side grasp that asks the pose-transform service for
// the tip pose, plans arm motion, drives the light indicator and confirms the
// grasp with the hand sensors.
type SidePlannedGrasp struct {
	transformer *PoseTransformer
	ik          *IKClient
	motion      contractx.MotionFacade
	speech      contractx.Speaker
	light       contractx.Indicator
	detector    contractx.GraspDetector
	geometry    GraspGeometry
	seed        contractx.JointState

	tipLink    string
	rootLink   string
	originLink string

	metrics *metricsx.Collector
	logger  *zerolog.Logger
}

func NewSidePlannedGrasp(
	transformer *PoseTransformer,
	ik *IKClient,
	motion contractx.MotionFacade,
	speech contractx.Speaker,
	light contractx.Indicator,
	detector contractx.GraspDetector,
	cfg Config,
	opts ...Option,
) (*SidePlannedGrasp, error) {
	if transformer == nil {
		return nil, errors.New("pose transformer is required")
	}
	if ik == nil {
		return nil, errors.New("ik client is required")
	}
	if motion == nil {
		return nil, errors.New("motion facade is required")
	}
	if detector == nil {
		return nil, errors.New("grasp detector is required")
	}
	if strings.TrimSpace(cfg.TransformTipLink) == "" || strings.TrimSpace(cfg.TransformRootLink) == "" {
		return nil, fmt.Errorf("%w: transform tip and root links are required", contractx.ErrValidation)
	}
	o := buildOptions(sidePlannedGraspName, opts)
	return &SidePlannedGrasp{
		transformer: transformer,
		ik:          ik,
		motion:      motion,
		speech:      speech,
		light:       light,
		detector:    detector,
		geometry:    SidePlannedGeometry,
		seed:        seedFrom(cfg.ArmJointNames, cfg.PregraspSeed),
		tipLink:     cfg.TransformTipLink,
		rootLink:    cfg.TransformRootLink,
		originLink:  cfg.TransformOriginLink,
		metrics:     o.metrics,
		logger:      o.logger,
	}, nil
}

func (g *SidePlannedGrasp) Outcomes() []contractx.Outcome {
	return []contractx.Outcome{contractx.OutcomeGrasped, contractx.OutcomeNotGrasped, contractx.OutcomeFailed}
}

// Plan asks the pose-transform service for the grasp pose of obj and derives
// the staged poses from it.
func (g *SidePlannedGrasp) Plan(ctx context.Context, obj contractx.DetectedObject) (GraspPlan, error) {
	tip, err := g.transformer.ForTip(ctx, contractx.PoseTransformRequest{
		TipLink:             g.tipLink,
		RootLink:            g.rootLink,
		Target:              obj.Pose,
		OrientationOverride: g.geometry.Orientation(),
		Origin:              geometryx.Pose{Orientation: geometryx.Identity, Frame: g.originLink, Stamp: obj.Pose.Stamp},
	})
	if err != nil {
		return GraspPlan{}, err
	}
	return g.geometry.PlanFrom(g.geometry.GraspPose(tip, obj)), nil
}

func (g *SidePlannedGrasp) Execute(ctx context.Context, obj contractx.DetectedObject, retry *RetryState) (contractx.Outcome, error) {
	if retry == nil {
		return "", fmt.Errorf("%w: retry state is required", contractx.ErrValidation)
	}
	outcome := g.execute(ctx, obj, retry)
	g.metrics.RecordGrasp(sidePlannedGraspName, string(outcome))
	return outcome, ctx.Err()
}

func (g *SidePlannedGrasp) execute(ctx context.Context, obj contractx.DetectedObject, retry *RetryState) contractx.Outcome {
	if retry.Exhausted() {
		g.logger.Warn().Int("attempts", retry.Attempts).Int("max_retries", retry.MaxRetries).Msg("max retries reached")
		setLight(ctx, g.light, g.logger, contractx.ColorYellow)
		retry.Reset()
		retreat(ctx, g.motion, g.logger)
		return contractx.OutcomeNotGrasped
	}

	plan, err := g.Plan(ctx, obj)
	if err != nil {
		g.logger.Error().Err(err).Str("object", obj.Label).Msg("transformation not possible")
		setLight(ctx, g.light, g.logger, contractx.ColorRed)
		retry.Reset()
		return contractx.OutcomeFailed
	}

	setLight(ctx, g.light, g.logger, contractx.ColorBlue)
	sol, fail := solvePlan(ctx, g.ik, g.seed, plan)
	if fail != nil {
		g.logger.Error().Err(fail).Str("stage", fail.Stage).Str("code", fail.Code.String()).Msgf("ik %s failed", fail.Stage)
		g.metrics.RecordIKFailure(sidePlannedGraspName, fail.Stage, fail.Code.String())
		if fail.Code != contractx.IKNoSolution {
			setLight(ctx, g.light, g.logger, contractx.ColorRed)
		}
		retry.Fail()
		return contractx.OutcomeNotGrasped
	}

	setLight(ctx, g.light, g.logger, contractx.ColorYellow)
	say(ctx, g.speech, g.logger, "I am grasping the "+obj.Label+" now.")

	act := newActuation(ctx, g.motion, g.logger)
	arm := act.movePlanned(contractx.GroupArm, contractx.Joints(sol.PreGrasp.Positions), false)
	act.move(contractx.GroupGripper, contractx.Named("cylopen"), false)
	act.wait(contractx.GroupArm, arm)
	act.move(contractx.GroupArm, contractx.Joints(sol.Grasp.Positions), true)
	act.move(contractx.GroupGripper, contractx.Named("cylclosed"), true)

	act.move(contractx.GroupHead, contractx.Named("front"), false)
	act.move(contractx.GroupTorso, contractx.Named("front"), true)
	act.move(contractx.GroupArm, contractx.Joints(sol.PostGrasp.Positions), true)
	act.move(contractx.GroupArm, contractx.Named("hold"), true)
	if act.err != nil {
		setLight(ctx, g.light, g.logger, contractx.ColorRed)
		return contractx.OutcomeFailed
	}

	retry.Reset()
	grasped, err := g.detector.IsGrasped(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("grasp detection failed")
	}
	if err != nil || !grasped {
		g.logger.Warn().Str("object", obj.Label).Err(contractx.ErrGraspNotConfirmed).Msg("grasp not confirmed")
		say(ctx, g.speech, g.logger, "I could not grasp "+obj.Label)
		return contractx.OutcomeNotGrasped
	}
	return contractx.OutcomeGrasped
}
