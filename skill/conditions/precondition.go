package conditions

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

// PreconditionCheck asks the component monitor whether every required
// component is up. Optional components that are up are added to the
// component list handed to the sub-skill.
type PreconditionCheck struct {
	rules   Preconditions
	monitor contractx.ComponentMonitor
	logger  zerolog.Logger

	full []string
}

func NewPreconditionCheck(rules Preconditions, monitor contractx.ComponentMonitor) (*PreconditionCheck, error) {
	if monitor == nil && len(rules.RequiredComponents)+len(rules.OptionalComponents) > 0 {
		return nil, errors.New("component monitor is required")
	}
	return &PreconditionCheck{rules: rules, monitor: monitor, logger: logx.For("precondition_check")}, nil
}

func (p *PreconditionCheck) Outcomes() []contractx.Outcome {
	return []contractx.Outcome{contractx.OutcomeSuccess, contractx.OutcomeFailed}
}

// FullComponents returns the components found up by the last successful check.
func (p *PreconditionCheck) FullComponents() []string {
	return append([]string(nil), p.full...)
}

func (p *PreconditionCheck) Run(ctx context.Context) (contractx.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return contractx.OutcomeFailed, err
	}

	full := make([]string, 0, len(p.rules.RequiredComponents)+len(p.rules.OptionalComponents))
	for _, c := range p.rules.RequiredComponents {
		ok, err := p.monitor.Available(ctx, c)
		if err != nil {
			p.logger.Warn().Err(err).Str("component", c).Msg("component status unknown")
			return contractx.OutcomeFailed, nil
		}
		if !ok {
			p.logger.Warn().Str("component", c).Msg("required component not available")
			return contractx.OutcomeFailed, nil
		}
		full = append(full, c)
	}
	for _, c := range p.rules.OptionalComponents {
		ok, err := p.monitor.Available(ctx, c)
		if err != nil || !ok {
			p.logger.Debug().Err(err).Str("component", c).Msg("optional component skipped")
			continue
		}
		full = append(full, c)
	}

	p.full = full
	p.logger.Info().Strs("components", full).Msg("preconditions satisfied")
	return contractx.OutcomeSuccess, nil
}
