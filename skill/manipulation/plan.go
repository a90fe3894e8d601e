package manipulation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

// GraspPlan is the staged approach, contact and retreat poses of one attempt.
type GraspPlan struct {
	PreGrasp  geometryx.Pose
	Grasp     geometryx.Pose
	PostGrasp geometryx.Pose
}

// PlanFrom derives pre- and post-grasp poses from an already adjusted grasp pose.
func (g GraspGeometry) PlanFrom(grasp geometryx.Pose) GraspPlan {
	return GraspPlan{
		PreGrasp:  grasp.Offset(g.PreGraspOffset),
		Grasp:     grasp,
		PostGrasp: grasp.Offset(g.PostGraspOffset),
	}
}

// GraspPose applies the orientation override and the grasp offset to an
// object pose expressed in the base frame.
func (g GraspGeometry) GraspPose(objectInBase geometryx.Pose, obj contractx.DetectedObject) geometryx.Pose {
	grasp := objectInBase.WithOrientation(g.Orientation()).Offset(g.GraspOffset)
	if g.HalfHeight {
		grasp = grasp.Translate(0, 0, obj.BoundingBox.Z/2.0)
	}
	return grasp
}

// GraspSolution holds the joint states for the three stages of a plan.
type GraspSolution struct {
	PreGrasp  contractx.JointState
	Grasp     contractx.JointState
	PostGrasp contractx.JointState
}

// ikFailure describes the first stage that could not be solved.
type ikFailure struct {
	Stage string
	Code  contractx.IKErrorCode
}

func (f *ikFailure) Error() string {
	return fmt.Sprintf("%s: stage=%s code=%s", contractx.ErrIKFailure, f.Stage, f.Code)
}

func (f *ikFailure) Unwrap() error { return contractx.ErrIKFailure }

// solvePlan solves pre-grasp, grasp and post-grasp in order, each seeded by
// the previous solution. It stops at the first failure.
func solvePlan(ctx context.Context, ik *IKClient, seed contractx.JointState, plan GraspPlan) (GraspSolution, *ikFailure) {
	var sol GraspSolution
	var code contractx.IKErrorCode

	sol.PreGrasp, code = ik.Solve(ctx, seed, plan.PreGrasp)
	if code != contractx.IKSuccess {
		return GraspSolution{}, &ikFailure{Stage: "pre_grasp", Code: code}
	}
	sol.Grasp, code = ik.Solve(ctx, sol.PreGrasp, plan.Grasp)
	if code != contractx.IKSuccess {
		return GraspSolution{}, &ikFailure{Stage: "grasp", Code: code}
	}
	sol.PostGrasp, code = ik.Solve(ctx, sol.Grasp, plan.PostGrasp)
	if code != contractx.IKSuccess {
		return GraspSolution{}, &ikFailure{Stage: "post_grasp", Code: code}
	}
	return sol, nil
}

// actuation issues motion commands in order and remembers the first error;
// once an error is recorded every later call is skipped.
type actuation struct {
	ctx    context.Context
	motion contractx.MotionFacade
	logger *zerolog.Logger
	err    error
}

func newActuation(ctx context.Context, motion contractx.MotionFacade, logger *zerolog.Logger) *actuation {
	return &actuation{ctx: ctx, motion: motion, logger: logger}
}

func (a *actuation) move(group string, target contractx.Target, blocking bool) contractx.MotionHandle {
	return a.issue(a.motion.Move, "move", group, target, blocking)
}

func (a *actuation) movePlanned(group string, target contractx.Target, blocking bool) contractx.MotionHandle {
	return a.issue(a.motion.MovePlanned, "move_planned", group, target, blocking)
}

type moveFunc func(ctx context.Context, group string, target contractx.Target, blocking bool) (contractx.MotionHandle, error)

func (a *actuation) issue(fn moveFunc, kind, group string, target contractx.Target, blocking bool) contractx.MotionHandle {
	if a.err != nil {
		return nil
	}
	h, err := fn(a.ctx, group, target, blocking)
	if err != nil {
		a.fail(err, kind, group)
		return nil
	}
	return h
}

func (a *actuation) wait(group string, h contractx.MotionHandle) {
	if a.err != nil || h == nil {
		return
	}
	if err := h.Wait(a.ctx); err != nil {
		a.fail(err, "wait", group)
	}
}

func (a *actuation) fail(err error, kind, group string) {
	a.err = err
	a.logger.Error().Err(err).Str("group", group).Str("command", kind).Msg("actuation failed")
}

func say(ctx context.Context, speech contractx.Speaker, logger *zerolog.Logger, text string) {
	if speech == nil {
		return
	}
	if err := speech.Say(ctx, text, false); err != nil {
		logger.Warn().Err(err).Str("text", text).Msg("speech failed")
	}
}

func setLight(ctx context.Context, light contractx.Indicator, logger *zerolog.Logger, color contractx.Color) {
	if light == nil {
		return
	}
	if err := light.SetColor(ctx, color); err != nil {
		logger.Warn().Err(err).Str("color", string(color)).Msg("indicator update failed")
	}
}

// retreat folds arm and torso after the retry budget is used up: torso home
// (waited), arm folded (not waited).
func retreat(ctx context.Context, motion contractx.MotionFacade, logger *zerolog.Logger) {
	act := newActuation(ctx, motion, logger)
	torso := act.move(contractx.GroupTorso, contractx.Named("home"), false)
	act.wait(contractx.GroupTorso, torso)
	act.move(contractx.GroupArm, contractx.Named("look_at_table-to-folded"), false)
}

func seedFrom(names []string, positions []float64) contractx.JointState {
	return contractx.JointState{
		Names:     append([]string(nil), names...),
		Positions: contractx.JointConfiguration(positions).Clone(),
	}
}
