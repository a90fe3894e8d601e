package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	metricsx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/metrics"
	conditionsx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/conditions"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	machinex "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/machine"
	statex "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/state"
)

// GoalSelector hands out navigation goals for SELECT_GOAL.
type GoalSelector interface {
	Select(ctx context.Context) (contractx.NavigationGoal, contractx.Outcome, error)
	Outcomes() []contractx.Outcome
}

// Deps are the collaborators of one orchestrator. Store may be nil.
type Deps struct {
	Monitor contractx.ComponentMonitor
	Frames  contractx.TransformService
	Goals   GoalSelector
	Skill   contractx.Skill
	Store   statex.Store
}

type Config struct {
	// PreconditionRetryDelay is waited before PRECONDITION_CHECK polls again.
	PreconditionRetryDelay time.Duration
	// MaxSteps bounds the states executed per run. Zero means unbounded.
	MaxSteps int
}

// RunNotifier is told about every finished run after it has been saved.
type RunNotifier interface {
	NotifyRun(ctx context.Context, rec *statex.RunRecord) error
}

type Option func(*Orchestrator)

func WithMetrics(c *metricsx.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithSleeper(s contractx.Sleeper) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithNotifier publishes finished runs. Notification failures are logged and
// never change the run result.
func WithNotifier(n RunNotifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs a skill: check preconditions, pick a goal, run the
// sub-skill and verify postconditions. A failed sub-skill loops back to goal
// selection; a failed postcondition ends the run.
type Orchestrator struct {
	name       string
	configPath string

	pre   *conditionsx.PreconditionCheck
	post  *conditionsx.PostconditionCheck
	goals GoalSelector
	skill contractx.Skill
	store statex.Store

	notifier RunNotifier

	machine *machinex.Machine[runData]
	cfg     Config

	metrics *metricsx.Collector
	logger  zerolog.Logger
	sleep   contractx.Sleeper
	now     func() time.Time
}

// New loads the skill config at configPath and builds the orchestrator.
func New(configPath string, deps Deps, cfg Config, opts ...Option) (*Orchestrator, error) {
	skillCfg, err := conditionsx.Load(configPath)
	if err != nil {
		return nil, err
	}
	o, err := NewFromConfig(skillCfg, deps, cfg, opts...)
	if err != nil {
		return nil, err
	}
	o.configPath = configPath
	return o, nil
}

func NewFromConfig(skillCfg *conditionsx.SkillConfig, deps Deps, cfg Config, opts ...Option) (*Orchestrator, error) {
	if skillCfg == nil {
		return nil, errors.New("skill config is required")
	}
	if deps.Goals == nil {
		return nil, errors.New("goal selector is required")
	}
	if deps.Skill == nil {
		return nil, errors.New("sub-skill is required")
	}
	if cfg.PreconditionRetryDelay < 0 || cfg.MaxSteps < 0 {
		return nil, fmt.Errorf("%w: retry delay and max steps must be >= 0", contractx.ErrValidation)
	}

	pre, err := conditionsx.NewPreconditionCheck(skillCfg.Preconditions, deps.Monitor)
	if err != nil {
		return nil, fmt.Errorf("build precondition check: %w", err)
	}
	post, err := conditionsx.NewPostconditionCheck(skillCfg.Postconditions, deps.Frames)
	if err != nil {
		return nil, fmt.Errorf("build postcondition check: %w", err)
	}

	name := strings.TrimSpace(skillCfg.Name)
	if name == "" {
		name = deps.Skill.Name()
	}

	o := &Orchestrator{
		name:   name,
		pre:    pre,
		post:   post,
		goals:  deps.Goals,
		skill:  deps.Skill,
		store:  deps.Store,
		cfg:    cfg,
		logger: logx.For("orchestrator"),
		sleep:  contractx.Sleep,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.store == nil {
		o.store = noopStore{}
	}

	m, err := o.buildMachine()
	if err != nil {
		return nil, err
	}
	o.machine = m
	return o, nil
}

func (o *Orchestrator) Name() string { return o.name }

// Outcomes returns the terminal outcomes exposed by Run.
func (o *Orchestrator) Outcomes() []contractx.Outcome {
	return o.machine.Outcomes()
}

// Run executes the skill once and returns its terminal outcome together with
// the persisted run record. The error is set when the run was interrupted or
// the record could not be saved.
func (o *Orchestrator) Run(ctx context.Context) (contractx.Outcome, *statex.RunRecord, error) {
	start := o.now()
	data := &runData{record: statex.NewRunRecord(o.name, o.configPath, start)}
	log := o.logger.With().Str("run_id", data.record.ID).Str("skill", o.name).Logger()
	log.Info().Msg("skill run started")

	outcome, runErr := o.machine.Run(ctx, data, func(tr machinex.Transition) {
		o.recordStep(data, tr)
	})

	data.record.Finish(outcome, runErr, o.now())
	o.metrics.RecordSkillRun(o.name, runOutcomeLabel(outcome, runErr), o.now().Sub(start))

	saveCtx := ctx
	if ctx.Err() != nil {
		saveCtx = context.WithoutCancel(ctx)
	}
	saveErr := o.store.Save(saveCtx, data.record)
	if saveErr != nil {
		log.Error().Err(saveErr).Msg("save run record failed")
		saveErr = fmt.Errorf("save run record: %w", saveErr)
	}
	if o.notifier != nil {
		if err := o.notifier.NotifyRun(saveCtx, data.record); err != nil {
			log.Warn().Err(err).Msg("notify run failed")
		}
	}

	if runErr != nil {
		log.Error().Err(runErr).Int("steps", len(data.record.Steps)).Msg("skill run aborted")
		return outcome, data.record, errors.Join(runErr, saveErr)
	}
	log.Info().Str("outcome", string(outcome)).Int("steps", len(data.record.Steps)).Msg("skill run finished")
	return outcome, data.record, saveErr
}

func (o *Orchestrator) recordStep(data *runData, tr machinex.Transition) {
	step := statex.StepRecord{
		State:   string(tr.From),
		Outcome: tr.Outcome,
		Next:    tr.To.String(),
		At:      tr.At,
	}
	if tr.From == StateSelectGoal && tr.Outcome == contractx.OutcomeSelected {
		step.Goal = data.goal
	}
	data.record.AddStep(step)

	o.metrics.RecordStateOutcome(string(tr.From), string(tr.Outcome))
	o.metrics.RecordTransition(tr.Machine, string(tr.From), string(tr.Outcome), tr.To.String())
	o.logger.Debug().
		Str("run_id", data.record.ID).
		Int("step", tr.Step).
		Str("from", string(tr.From)).
		Str("outcome", string(tr.Outcome)).
		Str("to", tr.To.String()).
		Msg("state transition")
}

func runOutcomeLabel(outcome contractx.Outcome, err error) string {
	if err != nil {
		return "error"
	}
	return string(outcome)
}

type noopStore struct{}

func (noopStore) Load(context.Context, string) (*statex.RunRecord, error) {
	return nil, statex.ErrRunNotFound
}

func (noopStore) Save(context.Context, *statex.RunRecord) error { return nil }

func (noopStore) Delete(context.Context, string) error { return nil }
