// Package sim is an in-process robot backend. It answers every external
// contract the skills use so the orchestrator can run without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

var ErrNoObject = errors.New("no object in view")

type Config struct {
	MapFrame       string        `split_words:"true" default:"/map"`
	BaseFrame      string        `split_words:"true" default:"/base_link"`
	MotionDuration time.Duration `split_words:"true" default:"20ms"`
	// Reach is the largest distance from the base origin the arm can solve for.
	Reach float64 `default:"1.2"`
	// Down lists components reported as unavailable.
	Down []string
	// FailGroups lists motion groups whose commands are rejected.
	FailGroups []string `split_words:"true"`
}

func DefaultConfig() Config {
	return Config{
		MapFrame:       "/map",
		BaseFrame:      "/base_link",
		MotionDuration: 20 * time.Millisecond,
		Reach:          1.2,
	}
}

// Robot tracks the base pose and gripper state. It is safe for concurrent
// use by motion goroutines.
type Robot struct {
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	base    contractx.NavigationGoal
	gripper string
	log     []string
	said    []string
	colors  []contractx.Color
	object  *contractx.DetectedObject
	down    map[string]bool
	failing map[string]bool
}

type Option func(*Robot)

func WithClock(now func() time.Time) Option {
	return func(r *Robot) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Robot) {
		r.logger = l
	}
}

// WithObject places an object in front of the robot for detection.
func WithObject(obj contractx.DetectedObject) Option {
	return func(r *Robot) {
		o := obj
		r.object = &o
	}
}

func New(cfg Config, opts ...Option) *Robot {
	if cfg.MapFrame == "" {
		cfg.MapFrame = "/map"
	}
	if cfg.BaseFrame == "" {
		cfg.BaseFrame = "/base_link"
	}
	if cfg.Reach <= 0 {
		cfg.Reach = DefaultConfig().Reach
	}
	r := &Robot{
		cfg:     cfg,
		now:     time.Now,
		logger:  logx.For("sim"),
		gripper: "home",
		down:    toSet(cfg.Down),
		failing: toSet(cfg.FailGroups),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out[it] = true
		}
	}
	return out
}

// SetDown marks a component as unavailable or available again.
func (r *Robot) SetDown(component string, down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down[component] = down
}

func (r *Robot) SetObject(obj contractx.DetectedObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := obj
	r.object = &o
}

// BasePose returns the last base goal reached.
func (r *Robot) BasePose() contractx.NavigationGoal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.base
}

// Log returns a copy of the motion commands issued so far.
func (r *Robot) Log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func (r *Robot) Said() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.said...)
}

func (r *Robot) Colors() []contractx.Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]contractx.Color(nil), r.colors...)
}

func (r *Robot) LatestCommonTime(ctx context.Context, target, source string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if target == "" || source == "" {
		return time.Time{}, fmt.Errorf("%w: empty frame", contractx.ErrTransform)
	}
	return r.now(), nil
}

// TransformPose knows two frames: the map and the robot base. Every other
// frame is treated as rigidly attached to the base.
func (r *Robot) TransformPose(ctx context.Context, target string, pose geometryx.Pose) (geometryx.Pose, error) {
	if err := ctx.Err(); err != nil {
		return geometryx.Pose{}, err
	}
	if target == "" || pose.Frame == "" {
		return geometryx.Pose{}, fmt.Errorf("%w: empty frame", contractx.ErrTransform)
	}
	base := r.BasePose()
	switch {
	case pose.Frame == target:
		return pose, nil
	case target == r.cfg.MapFrame:
		return toMap(pose, base).InFrame(target), nil
	case pose.Frame == r.cfg.MapFrame:
		return fromMap(pose, base).InFrame(target), nil
	default:
		return pose.InFrame(target), nil
	}
}

func toMap(p geometryx.Pose, base contractx.NavigationGoal) geometryx.Pose {
	s, c := math.Sincos(base.Theta)
	pos := r3.Vector{
		X: base.X + c*p.Position.X - s*p.Position.Y,
		Y: base.Y + s*p.Position.X + c*p.Position.Y,
		Z: p.Position.Z,
	}
	out := p
	out.Position = pos
	return out.WithOrientation(geometryx.FromYaw(p.Yaw() + base.Theta))
}

func fromMap(p geometryx.Pose, base contractx.NavigationGoal) geometryx.Pose {
	s, c := math.Sincos(-base.Theta)
	dx, dy := p.Position.X-base.X, p.Position.Y-base.Y
	out := p
	out.Position = r3.Vector{X: c*dx - s*dy, Y: s*dx + c*dy, Z: p.Position.Z}
	return out.WithOrientation(geometryx.FromYaw(p.Yaw() - base.Theta))
}

func (r *Robot) Transform(ctx context.Context, req contractx.PoseTransformRequest) (geometryx.Pose, error) {
	if req.TipLink == "" || req.RootLink == "" {
		return geometryx.Pose{}, fmt.Errorf("%w: tip and root links are required", contractx.ErrTransform)
	}
	inRoot, err := r.TransformPose(ctx, req.RootLink, req.Target)
	if err != nil {
		return geometryx.Pose{}, err
	}
	return inRoot.WithOrientation(req.OrientationOverride), nil
}

// Solve answers IKNoSolution for targets out of reach. The solution encodes
// the target position in the first three joints.
func (r *Robot) Solve(ctx context.Context, req contractx.IKRequest) (contractx.IKResponse, error) {
	if err := ctx.Err(); err != nil {
		return contractx.IKResponse{}, err
	}
	if req.TipLink == "" {
		return contractx.IKResponse{Code: contractx.IKOtherFailure}, nil
	}
	if req.Target.Position.Norm() > r.cfg.Reach {
		return contractx.IKResponse{Code: contractx.IKNoSolution}, nil
	}
	n := len(req.Seed.Positions)
	if n < 3 {
		n = 7
	}
	pos := make(contractx.JointConfiguration, n)
	copy(pos, req.Seed.Positions)
	pos[0], pos[1], pos[2] = req.Target.Position.X, req.Target.Position.Y, req.Target.Position.Z
	return contractx.IKResponse{
		Solution: contractx.JointState{Names: append([]string(nil), req.Seed.Names...), Positions: pos},
		Code:     contractx.IKSuccess,
	}, nil
}

func (r *Robot) Say(ctx context.Context, text string, blocking bool) error {
	r.mu.Lock()
	r.said = append(r.said, text)
	r.mu.Unlock()
	r.logger.Info().Str("text", text).Bool("blocking", blocking).Msg("say")
	return nil
}

func (r *Robot) SetColor(ctx context.Context, color contractx.Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.colors = append(r.colors, color)
	return nil
}

// IsGrasped reports whether the hand was last closed.
func (r *Robot) IsGrasped(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.HasSuffix(r.gripper, "closed"), nil
}

func (r *Robot) Available(ctx context.Context, component string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.down[component], nil
}

// Detect returns the placed object, expressed in the base frame.
func (r *Robot) Detect(ctx context.Context) (contractx.DetectedObject, error) {
	if err := ctx.Err(); err != nil {
		return contractx.DetectedObject{}, err
	}
	r.mu.Lock()
	obj := r.object
	r.mu.Unlock()
	if obj == nil {
		return contractx.DetectedObject{}, ErrNoObject
	}
	out := *obj
	out.Pose = out.Pose.WithStamp(r.now())
	return out, nil
}
