package manipulation

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/num/quat"

	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	metricsx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/metrics"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

// Config carries the robot-specific values the grasp and place states need.
// Loaded with the MANIPULATION prefix.
type Config struct {
	MaxRetries   int     `split_words:"true" default:"1"`
	HeightSwitch float64 `split_words:"true" default:"0.5"`
	BaseFrame    string  `split_words:"true" default:"/base_link"`
	IKTipLink    string  `envconfig:"IK_TIP_LINK" default:"sdh_grasp_link"`

	ArmJointNames   []string  `split_words:"true" default:"arm_1_joint,arm_2_joint,arm_3_joint,arm_4_joint,arm_5_joint,arm_6_joint,arm_7_joint"`
	PregraspSeed    []float64 `split_words:"true" default:"-1.1572,-1.9149,-0.3118,-1.1175,2.0040,1.4871,1.6755"`
	PregraspTopSeed []float64 `split_words:"true" default:"-0.4812,-1.7133,-0.4071,-1.9823,1.8617,1.6403,-1.5447"`

	// Transform-service variant.
	TransformTipLink    string `split_words:"true" default:"arm_7_link"`
	TransformRootLink   string `split_words:"true" default:"arm_base_link"`
	TransformOriginLink string `split_words:"true" default:"sdh_grasp_link"`

	TraySettle time.Duration `split_words:"true" default:"2s"`
	FoldSettle time.Duration `split_words:"true" default:"3s"`
}

// DefaultConfig mirrors the envconfig defaults for callers that build states
// without the environment.
func DefaultConfig() Config {
	return Config{
		MaxRetries:          1,
		HeightSwitch:        0.5,
		BaseFrame:           "/base_link",
		IKTipLink:           "sdh_grasp_link",
		ArmJointNames:       []string{"arm_1_joint", "arm_2_joint", "arm_3_joint", "arm_4_joint", "arm_5_joint", "arm_6_joint", "arm_7_joint"},
		PregraspSeed:        []float64{-1.1572, -1.9149, -0.3118, -1.1175, 2.0040, 1.4871, 1.6755},
		PregraspTopSeed:     []float64{-0.4812, -1.7133, -0.4071, -1.9823, 1.8617, 1.6403, -1.5447},
		TransformTipLink:    "arm_7_link",
		TransformRootLink:   "arm_base_link",
		TransformOriginLink: "sdh_grasp_link",
		TraySettle:          2 * time.Second,
		FoldSettle:          3 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.BaseFrame) == "" {
		return fmt.Errorf("%w: base frame is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.IKTipLink) == "" {
		return fmt.Errorf("%w: ik tip link is required", contractx.ErrValidation)
	}
	if len(c.ArmJointNames) > 0 && len(c.PregraspSeed) > 0 && len(c.ArmJointNames) != len(c.PregraspSeed) {
		return fmt.Errorf("%w: pregrasp seed has %d values for %d joints", contractx.ErrValidation, len(c.PregraspSeed), len(c.ArmJointNames))
	}
	if c.TraySettle < 0 || c.FoldSettle < 0 {
		return fmt.Errorf("%w: settle durations must be >= 0", contractx.ErrValidation)
	}
	return nil
}

func frameOrDefault(frame string) string {
	if f := strings.TrimSpace(frame); f != "" {
		return f
	}
	return "/base_link"
}

// GraspGeometry holds the fixed offsets of one grasp strategy, all in the
// base frame.
type GraspGeometry struct {
	Roll, Pitch, Yaw float64
	GraspOffset      r3.Vector
	PreGraspOffset   r3.Vector
	PostGraspOffset  r3.Vector
	// HalfHeight adds half the object's bounding-box height to the grasp z.
	HalfHeight bool
}

func (g GraspGeometry) Orientation() quat.Number {
	return geometryx.FromEuler(g.Roll, g.Pitch, g.Yaw)
}

var (
	SideGeometry = GraspGeometry{
		Roll: -1.5708, Pitch: 0, Yaw: 2.481,
		GraspOffset:     r3.Vector{Z: 0.1},
		PreGraspOffset:  r3.Vector{Y: 0.10, Z: 0.2},
		PostGraspOffset: r3.Vector{X: 0.05, Z: 0.17},
	}

	SidePlannedGeometry = GraspGeometry{
		Roll: -1.552, Pitch: -0.042, Yaw: 2.481,
		PreGraspOffset:  r3.Vector{Y: 0.10, Z: 0.2},
		PostGraspOffset: r3.Vector{X: 0.05, Z: 0.17},
		HalfHeight:      true,
	}

	TopGeometry = GraspGeometry{
		Roll: 3.121, Pitch: 0.077, Yaw: -2.662,
		PreGraspOffset:  r3.Vector{Z: 0.18},
		PostGraspOffset: r3.Vector{X: 0.05, Z: 0.15},
	}
)

// Option customizes a manipulation state.
type Option func(*options)

type options struct {
	metrics *metricsx.Collector
	logger  *zerolog.Logger
	sleep   contractx.Sleeper
}

func WithMetrics(c *metricsx.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &l
	}
}

func WithSleeper(s contractx.Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleep = s
		}
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{sleep: contractx.Sleep}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		l := logx.For(component)
		o.logger = &l
	}
	return o
}
