package contract

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
)

// DetectedObject is produced by perception and is read-only to the skills.
type DetectedObject struct {
	Label       string         `json:"label"`
	Pose        geometryx.Pose `json:"pose"`
	BoundingBox r3.Vector      `json:"bounding_box"` // x,y,z extents in meters
}

// JointConfiguration is only meaningful next to the robot model that produced it.
type JointConfiguration []float64

func (c JointConfiguration) Clone() JointConfiguration {
	if c == nil {
		return nil
	}
	return append(JointConfiguration(nil), c...)
}

// JointState is a named joint configuration, used as an explicit IK seed.
type JointState struct {
	Names     []string           `json:"names,omitempty"`
	Positions JointConfiguration `json:"positions"`
}

// NavigationGoal is a planar base pose.
type NavigationGoal struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

type IKErrorCode int

const (
	IKSuccess IKErrorCode = iota
	IKNoSolution
	IKOtherFailure
)

func (c IKErrorCode) String() string {
	switch c {
	case IKSuccess:
		return "SUCCESS"
	case IKNoSolution:
		return "NO_IK_SOLUTION"
	default:
		return "OTHER_FAILURE"
	}
}

type IKRequest struct {
	TipLink string         `json:"tip_link"`
	Seed    JointState     `json:"seed"`
	Target  geometryx.Pose `json:"target"`
}

type IKResponse struct {
	Solution JointState  `json:"solution"`
	Code     IKErrorCode `json:"code"`
}

// PoseTransformRequest asks the pose-transform service to express Target
// for a tip/root link pair with a fixed orientation override.
type PoseTransformRequest struct {
	TipLink             string         `json:"tip_link"`
	RootLink            string         `json:"root_link"`
	Target              geometryx.Pose `json:"target"`
	OrientationOverride quat.Number    `json:"orientation_override"`
	Origin              geometryx.Pose `json:"origin"`
}

type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorBlue   Color = "blue"
)

// Motion groups addressed through the MotionFacade.
const (
	GroupArm     = "arm"
	GroupTorso   = "torso"
	GroupGripper = "sdh"
	GroupHead    = "head"
	GroupTray    = "tray"
	GroupBase    = "base"
)

// Waypoint is either a named stored position or an explicit joint configuration.
type Waypoint struct {
	Name   string             `json:"name,omitempty"`
	Joints JointConfiguration `json:"joints,omitempty"`
	Goal   *NavigationGoal    `json:"goal,omitempty"`
}

func (w Waypoint) String() string {
	switch {
	case w.Name != "":
		return w.Name
	case w.Goal != nil:
		return "goal"
	default:
		return "joints"
	}
}

// Target is an ordered list of waypoints for a single motion command.
type Target []Waypoint

func Named(names ...string) Target {
	out := make(Target, 0, len(names))
	for _, n := range names {
		out = append(out, Waypoint{Name: n})
	}
	return out
}

func Joints(cfgs ...JointConfiguration) Target {
	out := make(Target, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Waypoint{Joints: c.Clone()})
	}
	return out
}

func BasePose(goal NavigationGoal) Target {
	g := goal
	return Target{{Goal: &g}}
}

// Then appends waypoints to a copy of t.
func (t Target) Then(more Target) Target {
	out := make(Target, 0, len(t)+len(more))
	out = append(out, t...)
	return append(out, more...)
}
