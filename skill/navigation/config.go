package navigation

import (
	"fmt"
	"math"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

// GridConfig bounds the candidate base poses. Loaded with the NAV_GRID prefix.
type GridConfig struct {
	XMin       float64 `split_words:"true" default:"0"`
	XMax       float64 `split_words:"true" default:"4.0"`
	XIncrement float64 `split_words:"true" default:"2"`

	YMin       float64 `split_words:"true" default:"-4.0"`
	YMax       float64 `split_words:"true" default:"0.0"`
	YIncrement float64 `split_words:"true" default:"2"`

	ThMin       float64 `split_words:"true" default:"-3.14"`
	ThMax       float64 `split_words:"true" default:"3.14"`
	ThIncrement float64 `split_words:"true" default:"1.5707463"`
}

func DefaultGrid() GridConfig {
	return GridConfig{
		XMin: 0, XMax: 4.0, XIncrement: 2,
		YMin: -4.0, YMax: 0.0, YIncrement: 2,
		ThMin: -3.14, ThMax: 3.14, ThIncrement: 2 * 3.1414926 / 4,
	}
}

func (g *GridConfig) Validate() error {
	axes := []struct {
		name        string
		lo, hi, inc float64
	}{
		{"x", g.XMin, g.XMax, g.XIncrement},
		{"y", g.YMin, g.YMax, g.YIncrement},
		{"theta", g.ThMin, g.ThMax, g.ThIncrement},
	}
	for _, a := range axes {
		if math.IsNaN(a.lo) || math.IsNaN(a.hi) || math.IsNaN(a.inc) {
			return fmt.Errorf("%w: %s bounds must be numbers", contractx.ErrValidation, a.name)
		}
		if a.inc <= 0 {
			return fmt.Errorf("%w: %s increment must be > 0", contractx.ErrValidation, a.name)
		}
		if a.hi < a.lo {
			return fmt.Errorf("%w: %s max %.3f is below min %.3f", contractx.ErrValidation, a.name, a.hi, a.lo)
		}
	}
	return nil
}

// steps returns lo, lo+inc, ... up to and including hi. Values are
// computed by index so accumulated float error cannot add or drop a step.
func steps(lo, hi, inc float64) []float64 {
	n := int(math.Floor((hi-lo)/inc+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*inc
	}
	return out
}

// Enumerate lists every grid goal, nested x then y then theta.
func (g GridConfig) Enumerate() []contractx.NavigationGoal {
	xs := steps(g.XMin, g.XMax, g.XIncrement)
	ys := steps(g.YMin, g.YMax, g.YIncrement)
	ths := steps(g.ThMin, g.ThMax, g.ThIncrement)

	out := make([]contractx.NavigationGoal, 0, len(xs)*len(ys)*len(ths))
	for _, x := range xs {
		for _, y := range ys {
			for _, th := range ths {
				out = append(out, contractx.NavigationGoal{X: x, Y: y, Theta: th})
			}
		}
	}
	return out
}
