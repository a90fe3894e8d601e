package manipulation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

// PoseTransformer converts object poses between frames. Either service may be
// nil; calls that need a missing service fail with ErrTransform.
type PoseTransformer struct {
	frames contractx.TransformService
	poses  contractx.PoseTransformService
}

func NewPoseTransformer(frames contractx.TransformService, poses contractx.PoseTransformService) (*PoseTransformer, error) {
	if frames == nil && poses == nil {
		return nil, errors.New("at least one transform service is required")
	}
	return &PoseTransformer{frames: frames, poses: poses}, nil
}

// ToFrame stamps pose with the latest time both frames share and expresses it
// in target.
func (t *PoseTransformer) ToFrame(ctx context.Context, pose geometryx.Pose, target string) (geometryx.Pose, error) {
	if t.frames == nil {
		return geometryx.Pose{}, fmt.Errorf("%w: frame transform service is not configured", contractx.ErrTransform)
	}
	if strings.TrimSpace(pose.Frame) == "" {
		return geometryx.Pose{}, fmt.Errorf("%w: pose has no frame", contractx.ErrTransform)
	}

	stamp, err := t.frames.LatestCommonTime(ctx, target, pose.Frame)
	if err != nil {
		return geometryx.Pose{}, fmt.Errorf("%w: common time %s<-%s: %v", contractx.ErrTransform, target, pose.Frame, err)
	}

	out, err := t.frames.TransformPose(ctx, target, pose.WithStamp(stamp))
	if err != nil {
		return geometryx.Pose{}, fmt.Errorf("%w: %s<-%s: %v", contractx.ErrTransform, target, pose.Frame, err)
	}
	return out, nil
}

// ForTip delegates to the pose-transform service, which also applies the
// orientation override for the requested tip/root pair.
func (t *PoseTransformer) ForTip(ctx context.Context, req contractx.PoseTransformRequest) (geometryx.Pose, error) {
	if t.poses == nil {
		return geometryx.Pose{}, fmt.Errorf("%w: pose transform service is not configured", contractx.ErrTransform)
	}
	out, err := t.poses.Transform(ctx, req)
	if err != nil {
		return geometryx.Pose{}, fmt.Errorf("%w: tip=%s root=%s: %v", contractx.ErrTransform, req.TipLink, req.RootLink, err)
	}
	return out, nil
}
