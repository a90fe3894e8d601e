package conditions

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

// PostconditionCheck verifies the base ended up at the selected goal by
// looking up the robot frame in the reference frame.
type PostconditionCheck struct {
	rules  *Postconditions
	frames contractx.TransformService
	logger zerolog.Logger
}

// NewPostconditionCheck accepts nil rules; the check then always succeeds.
func NewPostconditionCheck(rules *Postconditions, frames contractx.TransformService) (*PostconditionCheck, error) {
	if rules != nil && frames == nil {
		return nil, errors.New("transform service is required")
	}
	return &PostconditionCheck{rules: rules, frames: frames, logger: logx.For("postcondition_check")}, nil
}

func (p *PostconditionCheck) Outcomes() []contractx.Outcome {
	return []contractx.Outcome{contractx.OutcomeSuccess, contractx.OutcomeFailed}
}

func (p *PostconditionCheck) Run(ctx context.Context, goal *contractx.NavigationGoal) (contractx.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return contractx.OutcomeFailed, err
	}
	if p.rules == nil {
		return contractx.OutcomeSuccess, nil
	}
	if goal == nil {
		p.logger.Error().Msg("no goal to compare against")
		return contractx.OutcomeFailed, nil
	}

	robot, err := p.robotPose(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Str("robot_frame", p.rules.RobotFrame).Str("reference_frame", p.rules.ReferenceFrame).Msg("robot pose lookup failed")
		return contractx.OutcomeFailed, nil
	}

	dist := geometryx.PlanarDistance(robot.Position, r3.Vector{X: goal.X, Y: goal.Y})
	dyaw := math.Abs(geometryx.AngleDiff(robot.Yaw(), goal.Theta))
	log := p.logger.With().Float64("distance", dist).Float64("yaw_error", dyaw).Logger()
	if dist > p.rules.PositionTolerance || dyaw > p.rules.OrientationTolerance {
		log.Warn().Msg("robot not at goal")
		return contractx.OutcomeFailed, nil
	}
	log.Info().Msg("postconditions satisfied")
	return contractx.OutcomeSuccess, nil
}

func (p *PostconditionCheck) robotPose(ctx context.Context) (geometryx.Pose, error) {
	stamp, err := p.frames.LatestCommonTime(ctx, p.rules.ReferenceFrame, p.rules.RobotFrame)
	if err != nil {
		return geometryx.Pose{}, fmt.Errorf("%w: common time %s<-%s: %v", contractx.ErrTransform, p.rules.ReferenceFrame, p.rules.RobotFrame, err)
	}
	origin := geometryx.NewPose(p.rules.RobotFrame, r3.Vector{}, geometryx.Identity, stamp)
	pose, err := p.frames.TransformPose(ctx, p.rules.ReferenceFrame, origin)
	if err != nil {
		return geometryx.Pose{}, fmt.Errorf("%w: %s<-%s: %v", contractx.ErrTransform, p.rules.ReferenceFrame, p.rules.RobotFrame, err)
	}
	return pose, nil
}
