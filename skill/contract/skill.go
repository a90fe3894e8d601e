package contract

import "context"

// SkillInput is what the orchestrator hands to the sub-skill in SKILL_SM.
type SkillInput struct {
	Goal       *NavigationGoal `json:"goal,omitempty"`
	Object     *DetectedObject `json:"object,omitempty"`
	Components []string        `json:"components,omitempty"`
}

// SkillOutcomes are the labels every sub-skill may yield.
var SkillOutcomes = []Outcome{OutcomeReached, OutcomeNotReached, OutcomeFailed}

// Skill is a sub-skill run by the orchestrator. It yields reached,
// not_reached or failed.
type Skill interface {
	Name() string
	Run(ctx context.Context, in SkillInput) (Outcome, error)
}

// ObjectSource supplies the object a manipulation skill should pick.
type ObjectSource interface {
	Detect(ctx context.Context) (DetectedObject, error)
}
