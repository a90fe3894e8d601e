package manipulation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

var errFake = errors.New("fake failure")

func quiet() Option {
	return WithLogger(zerolog.Nop())
}

func objectAt(label string, x, y, z float64) contractx.DetectedObject {
	return contractx.DetectedObject{
		Label:       label,
		Pose:        geometryx.NewPose("/head_camera", r3.Vector{X: x, Y: y, Z: z}, geometryx.Identity, time.Time{}),
		BoundingBox: r3.Vector{X: 0.08, Y: 0.08, Z: 0.12},
	}
}

// fakeFrames expresses every pose in the requested frame without moving it.
type fakeFrames struct {
	stamp time.Time
	err   error
	calls int
}

func (f *fakeFrames) LatestCommonTime(ctx context.Context, target, source string) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	return f.stamp, nil
}

func (f *fakeFrames) TransformPose(ctx context.Context, target string, pose geometryx.Pose) (geometryx.Pose, error) {
	f.calls++
	if f.err != nil {
		return geometryx.Pose{}, f.err
	}
	return pose.InFrame(target), nil
}

type fakePoses struct {
	requests []contractx.PoseTransformRequest
	err      error
}

func (f *fakePoses) Transform(ctx context.Context, req contractx.PoseTransformRequest) (geometryx.Pose, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return geometryx.Pose{}, f.err
	}
	return req.Target.InFrame(req.RootLink).WithOrientation(req.OrientationOverride), nil
}

// fakeIK answers with codes in order; once they run out every call succeeds.
// The n-th successful solution has all positions set to n.
type fakeIK struct {
	codes    []contractx.IKErrorCode
	requests []contractx.IKRequest
	err      error
}

func (f *fakeIK) Solve(ctx context.Context, req contractx.IKRequest) (contractx.IKResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return contractx.IKResponse{}, f.err
	}
	idx := len(f.requests) - 1
	if idx < len(f.codes) && f.codes[idx] != contractx.IKSuccess {
		return contractx.IKResponse{Code: f.codes[idx]}, nil
	}
	pos := make(contractx.JointConfiguration, 7)
	for i := range pos {
		pos[i] = float64(len(f.requests))
	}
	return contractx.IKResponse{Solution: contractx.JointState{Positions: pos}}, nil
}

type fakeHandle struct {
	group  string
	motion *fakeMotion
}

func (h *fakeHandle) Wait(ctx context.Context) error {
	h.motion.log = append(h.motion.log, "wait "+h.group)
	return nil
}

// fakeMotion records commands as "group target" with a "~" suffix for
// non-blocking calls and "planned " prefix for planned motion.
type fakeMotion struct {
	log    []string
	failOn string
}

func (m *fakeMotion) Move(ctx context.Context, group string, target contractx.Target, blocking bool) (contractx.MotionHandle, error) {
	return m.record("", group, target, blocking)
}

func (m *fakeMotion) MovePlanned(ctx context.Context, group string, target contractx.Target, blocking bool) (contractx.MotionHandle, error) {
	return m.record("planned ", group, target, blocking)
}

func (m *fakeMotion) record(prefix, group string, target contractx.Target, blocking bool) (contractx.MotionHandle, error) {
	entry := prefix + group + " " + describe(target)
	if !blocking {
		entry += "~"
	}
	m.log = append(m.log, entry)
	if m.failOn != "" && strings.HasPrefix(entry, m.failOn) {
		return nil, errFake
	}
	return &fakeHandle{group: group, motion: m}, nil
}

func describe(target contractx.Target) string {
	parts := make([]string, 0, len(target))
	for _, w := range target {
		if len(w.Joints) > 0 {
			parts = append(parts, fmt.Sprintf("j%g", w.Joints[0]))
			continue
		}
		parts = append(parts, w.String())
	}
	return strings.Join(parts, ",")
}

type fakeSpeaker struct {
	said []string
}

func (s *fakeSpeaker) Say(ctx context.Context, text string, blocking bool) error {
	s.said = append(s.said, text)
	return nil
}

type fakeLight struct {
	colors []contractx.Color
}

func (l *fakeLight) SetColor(ctx context.Context, color contractx.Color) error {
	l.colors = append(l.colors, color)
	return nil
}

type fakeDetector struct {
	grasped bool
	err     error
}

func (d *fakeDetector) IsGrasped(ctx context.Context) (bool, error) {
	return d.grasped, d.err
}

type fakeSleeper struct {
	slept []time.Duration
	err   error
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	return s.err
}

func equalLog(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
