package orchestrator

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	machinex "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/machine"
	statex "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/state"
)

const (
	StatePreconditionCheck  machinex.State = "PRECONDITION_CHECK"
	StateSelectGoal         machinex.State = "SELECT_GOAL"
	StateSkill              machinex.State = "SKILL_SM"
	StatePostconditionCheck machinex.State = "POSTCONDITION_CHECK"
)

// TerminalOutcomes are the labels a run can end with.
var TerminalOutcomes = []contractx.Outcome{
	contractx.OutcomeSuccess,
	contractx.OutcomeFailed,
	contractx.OutcomeEnded,
	contractx.OutcomeReached,
	contractx.OutcomeNotReached,
}

// runData is threaded through the states of one run.
type runData struct {
	goal   *contractx.NavigationGoal
	record *statex.RunRecord
}

func (o *Orchestrator) buildMachine() (*machinex.Machine[runData], error) {
	opts := []machinex.Option{machinex.WithClock(o.now)}
	if o.cfg.MaxSteps > 0 {
		opts = append(opts, machinex.WithMaxSteps(o.cfg.MaxSteps))
	}

	m, err := machinex.New("skill."+o.name, StatePreconditionCheck, TerminalOutcomes, []machinex.StateSpec[runData]{
		{
			Name:     StatePreconditionCheck,
			Run:      o.checkPreconditions,
			Outcomes: o.pre.Outcomes(),
			Transitions: map[contractx.Outcome]machinex.Target{
				contractx.OutcomeSuccess: machinex.To(StateSelectGoal),
				contractx.OutcomeFailed:  machinex.To(StatePreconditionCheck),
			},
		},
		{
			Name:     StateSelectGoal,
			Run:      o.selectGoal,
			Outcomes: o.goals.Outcomes(),
			Transitions: map[contractx.Outcome]machinex.Target{
				contractx.OutcomeSelected:    machinex.To(StateSkill),
				contractx.OutcomeNotSelected: machinex.Finish(contractx.OutcomeFailed),
				contractx.OutcomeFailed:      machinex.Finish(contractx.OutcomeFailed),
			},
		},
		{
			Name:     StateSkill,
			Run:      o.runSkill,
			Outcomes: contractx.SkillOutcomes,
			Transitions: map[contractx.Outcome]machinex.Target{
				contractx.OutcomeReached:    machinex.To(StatePostconditionCheck),
				contractx.OutcomeFailed:     machinex.To(StateSelectGoal),
				contractx.OutcomeNotReached: machinex.To(StateSelectGoal),
			},
		},
		{
			Name:     StatePostconditionCheck,
			Run:      o.checkPostconditions,
			Outcomes: o.post.Outcomes(),
			Transitions: map[contractx.Outcome]machinex.Target{
				contractx.OutcomeSuccess: machinex.Finish(contractx.OutcomeSuccess),
				contractx.OutcomeFailed:  machinex.Finish(contractx.OutcomeFailed),
			},
		},
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("build skill machine: %w", err)
	}
	return m, nil
}

func (o *Orchestrator) checkPreconditions(ctx context.Context, data *runData) (contractx.Outcome, error) {
	outcome, err := o.pre.Run(ctx)
	if err != nil {
		return "", err
	}
	if outcome == contractx.OutcomeFailed && o.cfg.PreconditionRetryDelay > 0 {
		if err := o.sleep(ctx, o.cfg.PreconditionRetryDelay); err != nil {
			return "", err
		}
	}
	return outcome, nil
}

func (o *Orchestrator) selectGoal(ctx context.Context, data *runData) (contractx.Outcome, error) {
	goal, outcome, err := o.goals.Select(ctx)
	if err != nil && ctx.Err() != nil {
		return "", err
	}
	if err != nil {
		o.logger.Error().Err(err).Msg("goal selection failed")
		return contractx.OutcomeFailed, nil
	}
	if outcome == contractx.OutcomeSelected {
		data.goal = &goal
	} else {
		data.goal = nil
	}
	return outcome, nil
}

func (o *Orchestrator) runSkill(ctx context.Context, data *runData) (contractx.Outcome, error) {
	outcome, err := o.skill.Run(ctx, contractx.SkillInput{
		Goal:       data.goal,
		Components: o.pre.FullComponents(),
	})
	if err != nil {
		return "", fmt.Errorf("skill %s: %w", o.skill.Name(), err)
	}
	return outcome, nil
}

func (o *Orchestrator) checkPostconditions(ctx context.Context, data *runData) (contractx.Outcome, error) {
	return o.post.Run(ctx, data.goal)
}
