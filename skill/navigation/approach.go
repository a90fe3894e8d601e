package navigation

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

const ApproachPoseName = "approach_pose"

// ApproachPose drives the base to the selected goal.
type ApproachPose struct {
	motion contractx.MotionFacade
	logger zerolog.Logger
}

func NewApproachPose(motion contractx.MotionFacade) (*ApproachPose, error) {
	if motion == nil {
		return nil, errors.New("motion facade is required")
	}
	return &ApproachPose{motion: motion, logger: logx.For(ApproachPoseName)}, nil
}

func (a *ApproachPose) Name() string { return ApproachPoseName }

func (a *ApproachPose) Run(ctx context.Context, in contractx.SkillInput) (contractx.Outcome, error) {
	if in.Goal == nil {
		a.logger.Error().Msg("no navigation goal selected")
		return contractx.OutcomeFailed, nil
	}
	goal := *in.Goal

	if _, err := a.motion.Move(ctx, contractx.GroupBase, contractx.BasePose(goal), true); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contractx.OutcomeFailed, ctxErr
		}
		a.logger.Warn().Err(err).Float64("x", goal.X).Float64("y", goal.Y).Float64("theta", goal.Theta).Msg("base goal not reached")
		return contractx.OutcomeNotReached, nil
	}
	a.logger.Info().Float64("x", goal.X).Float64("y", goal.Y).Float64("theta", goal.Theta).Msg("base goal reached")
	return contractx.OutcomeReached, nil
}
