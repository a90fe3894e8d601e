package pick

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	manipulationx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/manipulation"
)

// Services are the robot interfaces the pick-and-place executors run on.
// Light, Detector and Poses are optional.
type Services struct {
	Frames   contractx.TransformService
	Poses    contractx.PoseTransformService
	IK       contractx.IKService
	Motion   contractx.MotionFacade
	Speech   contractx.Speaker
	Light    contractx.Indicator
	Detector contractx.GraspDetector
	Objects  contractx.ObjectSource
	Approach contractx.Skill
}

// Build wires the grasp and tray placement executors from svc. When the
// pose-transform service, light and grasp detector are all present the side
// grasp uses the planned variant that confirms the grasp with the hand.
func Build(ctx context.Context, svc Services, cfg manipulationx.Config, opts ...manipulationx.Option) (*Skill, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transformer, err := manipulationx.NewPoseTransformer(svc.Frames, svc.Poses)
	if err != nil {
		return nil, fmt.Errorf("build pose transformer: %w", err)
	}
	ik, err := manipulationx.NewIKClient(svc.IK, cfg.IKTipLink)
	if err != nil {
		return nil, fmt.Errorf("build ik client: %w", err)
	}

	selector, err := manipulationx.NewGraspSelector(transformer, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build grasp selector: %w", err)
	}

	var side GraspExecutor
	if svc.Poses != nil && svc.Light != nil && svc.Detector != nil {
		side, err = manipulationx.NewSidePlannedGrasp(transformer, ik, svc.Motion, svc.Speech, svc.Light, svc.Detector, cfg, opts...)
	} else {
		side, err = manipulationx.NewSideGrasp(transformer, ik, svc.Motion, svc.Speech, cfg, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("build side grasp: %w", err)
	}

	top, err := manipulationx.NewTopGrasp(transformer, ik, svc.Motion, svc.Speech, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build top grasp: %w", err)
	}
	placeSide, err := manipulationx.NewPlaceTraySide(svc.Motion, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build side tray placement: %w", err)
	}
	placeTop, err := manipulationx.NewPlaceTrayTop(svc.Motion, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build top tray placement: %w", err)
	}

	return New(ctx, Deps{
		Objects:   svc.Objects,
		Approach:  svc.Approach,
		Selector:  selector,
		Side:      side,
		Top:       top,
		PlaceSide: placeSide,
		PlaceTop:  placeTop,
	}, cfg.MaxRetries)
}
