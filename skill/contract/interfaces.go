package contract

import (
	"context"
	"time"

	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

type TransformService interface {
	LatestCommonTime(ctx context.Context, targetFrame, sourceFrame string) (time.Time, error)
	TransformPose(ctx context.Context, targetFrame string, pose geometryx.Pose) (geometryx.Pose, error)
}

type PoseTransformService interface {
	Transform(ctx context.Context, req PoseTransformRequest) (geometryx.Pose, error)
}

type IKService interface {
	Solve(ctx context.Context, req IKRequest) (IKResponse, error)
}

// MotionHandle tracks a motion command. Wait blocks until the motion ends.
type MotionHandle interface {
	Wait(ctx context.Context) error
}

// MotionFacade issues arm/torso/gripper/head/tray/base commands. With
// blocking=false the returned handle must be waited on by the caller.
type MotionFacade interface {
	Move(ctx context.Context, group string, target Target, blocking bool) (MotionHandle, error)
	MovePlanned(ctx context.Context, group string, target Target, blocking bool) (MotionHandle, error)
}

type Speaker interface {
	Say(ctx context.Context, text string, blocking bool) error
}

type Indicator interface {
	SetColor(ctx context.Context, color Color) error
}

type GraspDetector interface {
	IsGrasped(ctx context.Context) (bool, error)
}

// ComponentMonitor reports whether a robot component is up.
type ComponentMonitor interface {
	Available(ctx context.Context, component string) (bool, error)
}

// Sleeper waits for a settle duration. Tests replace it.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
