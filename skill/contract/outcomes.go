package contract

// Outcome is the single label a state yields when it finishes.
type Outcome string

// Grasp strategy selection.
const (
	OutcomeSide Outcome = "side"
	OutcomeTop  Outcome = "top"
)

// Side grasp.
const (
	OutcomeGrasped    Outcome = "grasped"
	OutcomeNotGrasped Outcome = "not_grasped"
)

// Top grasp and placement.
const (
	OutcomeSucceeded     Outcome = "succeeded"
	OutcomeNoIKSolution  Outcome = "no_ik_solution"
	OutcomeNoMoreRetries Outcome = "no_more_retries"
)

// Goal selection.
const (
	OutcomeSelected    Outcome = "selected"
	OutcomeNotSelected Outcome = "not_selected"
)

// Sub-skills and orchestrator.
const (
	OutcomeReached    Outcome = "reached"
	OutcomeNotReached Outcome = "not_reached"
	OutcomeSuccess    Outcome = "success"
	OutcomeEnded      Outcome = "ended"
)

// Shared by every state.
const OutcomeFailed Outcome = "failed"
