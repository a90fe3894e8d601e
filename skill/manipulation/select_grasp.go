package manipulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

// GraspSelector picks a side grasp for high objects and a top grasp for low ones.
type GraspSelector struct {
	transformer  *PoseTransformer
	frame        string
	heightSwitch float64
	logger       *zerolog.Logger
}

func NewGraspSelector(transformer *PoseTransformer, cfg Config, opts ...Option) (*GraspSelector, error) {
	if transformer == nil {
		return nil, errors.New("pose transformer is required")
	}
	o := buildOptions("select_grasp", opts)
	return &GraspSelector{
		transformer:  transformer,
		frame:        frameOrDefault(cfg.BaseFrame),
		heightSwitch: cfg.HeightSwitch,
		logger:       o.logger,
	}, nil
}

func (s *GraspSelector) Outcomes() []contractx.Outcome {
	return []contractx.Outcome{contractx.OutcomeTop, contractx.OutcomeSide, contractx.OutcomeFailed}
}

// Strategy returns OutcomeSide when the object's height above the base frame
// is at least the switch height, OutcomeTop otherwise. Transform failures are
// returned as ErrTransform.
func (s *GraspSelector) Strategy(ctx context.Context, obj contractx.DetectedObject) (contractx.Outcome, error) {
	inBase, err := s.transformer.ToFrame(ctx, obj.Pose, s.frame)
	if err != nil {
		return contractx.OutcomeFailed, err
	}
	if inBase.Position.Z >= s.heightSwitch {
		return contractx.OutcomeSide, nil
	}
	return contractx.OutcomeTop, nil
}

// Execute is Strategy with the transform failure folded into OutcomeFailed.
func (s *GraspSelector) Execute(ctx context.Context, obj contractx.DetectedObject) (contractx.Outcome, error) {
	outcome, err := s.Strategy(ctx, obj)
	if err != nil {
		if !errors.Is(err, contractx.ErrTransform) {
			return "", fmt.Errorf("select grasp: %w", err)
		}
		s.logger.Error().Err(err).Str("object", obj.Label).Msg("transformation not possible")
		return contractx.OutcomeFailed, nil
	}
	s.logger.Debug().Str("object", obj.Label).Str("strategy", string(outcome)).Msg("grasp strategy selected")
	return outcome, nil
}
