package contract

import "errors"

var (
	ErrTransform              = errors.New("pose transform failed")
	ErrIKFailure              = errors.New("inverse kinematics failed")
	ErrGraspNotConfirmed      = errors.New("grasp not confirmed by sensor")
	ErrGoalPoolExhausted      = errors.New("navigation goal pool exhausted")
	ErrValidation             = errors.New("validation failed")
	ErrUndeclaredOutcome      = errors.New("state returned an undeclared outcome")
	ErrInvalidTransitionTable = errors.New("invalid transition table")
	ErrActuation              = errors.New("actuation failed")
)
