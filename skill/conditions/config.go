package conditions

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

// SkillConfig is the per-skill YAML file with precondition and postcondition
// rules.
type SkillConfig struct {
	Name           string          `mapstructure:"name"`
	Preconditions  Preconditions   `mapstructure:"preconditions"`
	Postconditions *Postconditions `mapstructure:"postconditions"`
}

type Preconditions struct {
	RequiredComponents []string `mapstructure:"required_components"`
	OptionalComponents []string `mapstructure:"optional_components"`
}

// Postconditions compare the robot frame against the selected goal in the
// reference frame.
type Postconditions struct {
	ReferenceFrame       string  `mapstructure:"reference_frame"`
	RobotFrame           string  `mapstructure:"robot_frame"`
	PositionTolerance    float64 `mapstructure:"position_tolerance"`
	OrientationTolerance float64 `mapstructure:"orientation_tolerance"`
}

// Load reads a skill config file. The format follows the file extension
// (yaml, json or toml). A missing name falls back to the file's base name.
func Load(path string) (*SkillConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: skill config path is required", contractx.ErrValidation)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("postconditions.reference_frame", "/map")
	v.SetDefault("postconditions.robot_frame", "/base_link")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read skill config %s: %w", path, err)
	}

	var cfg SkillConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode skill config %s: %w", path, err)
	}
	if !v.IsSet("postconditions.position_tolerance") && !v.IsSet("postconditions.orientation_tolerance") {
		cfg.Postconditions = nil
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SkillConfig) Validate() error {
	seen := map[string]bool{}
	for _, name := range append(append([]string(nil), c.Preconditions.RequiredComponents...), c.Preconditions.OptionalComponents...) {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty component name", contractx.ErrValidation)
		}
		if seen[name] {
			return fmt.Errorf("%w: component %q listed twice", contractx.ErrValidation, name)
		}
		seen[name] = true
	}

	if p := c.Postconditions; p != nil {
		if p.PositionTolerance < 0 || p.OrientationTolerance < 0 {
			return fmt.Errorf("%w: postcondition tolerances must be >= 0", contractx.ErrValidation)
		}
		if strings.TrimSpace(p.ReferenceFrame) == "" || strings.TrimSpace(p.RobotFrame) == "" {
			return fmt.Errorf("%w: postcondition frames are required", contractx.ErrValidation)
		}
	}
	return nil
}
