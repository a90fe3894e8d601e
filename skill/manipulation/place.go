package manipulation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	metricsx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/metrics"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
)

const (
	PlaceVariantTraySide = "tray_side"
	PlaceVariantTrayTop  = "tray_top"
	PlaceVariantTable    = "table"
)

type stepKind int

const (
	stepMove stepKind = iota
	stepWait
	stepSettle
)

// placeStep is one line of a placement script. Non-blocking moves keep their
// handle under the group name until a wait step for that group.
type placeStep struct {
	kind     stepKind
	group    string
	target   contractx.Target
	blocking bool
	settle   time.Duration
}

func moveTo(group string, target contractx.Target, blocking bool) placeStep {
	return placeStep{kind: stepMove, group: group, target: target, blocking: blocking}
}

func waitFor(group string) placeStep {
	return placeStep{kind: stepWait, group: group}
}

func settle(d time.Duration) placeStep {
	return placeStep{kind: stepSettle, settle: d}
}

// Placement puts a held object down by running a fixed motion script. It
// never solves IK and never retries.
type Placement struct {
	variant string
	steps   []placeStep
	motion  contractx.MotionFacade

	sleep   contractx.Sleeper
	metrics *metricsx.Collector
	logger  *zerolog.Logger
}

func NewPlaceTraySide(motion contractx.MotionFacade, cfg Config, opts ...Option) (*Placement, error) {
	return newPlacement(PlaceVariantTraySide, motion, []placeStep{
		moveTo(contractx.GroupArm, contractx.Named("grasp-to-tray"), false),
		settle(cfg.TraySettle),
		moveTo(contractx.GroupTray, contractx.Named("up"), true),
		waitFor(contractx.GroupArm),
		moveTo(contractx.GroupGripper, contractx.Named("cylopen"), true),
		moveTo(contractx.GroupArm, contractx.Named("tray-to-folded"), false),
		settle(cfg.FoldSettle),
		moveTo(contractx.GroupGripper, contractx.Named("home"), true),
		waitFor(contractx.GroupArm),
	}, opts)
}

func NewPlaceTrayTop(motion contractx.MotionFacade, cfg Config, opts ...Option) (*Placement, error) {
	return newPlacement(PlaceVariantTrayTop, motion, []placeStep{
		moveTo(contractx.GroupArm, contractx.Named("grasp-to-tray_top"), false),
		settle(cfg.TraySettle),
		moveTo(contractx.GroupTray, contractx.Named("up"), true),
		waitFor(contractx.GroupArm),
		moveTo(contractx.GroupGripper, contractx.Named("spheropen"), true),
		moveTo(contractx.GroupArm, contractx.Named("tray_top-to-folded"), false),
		settle(cfg.FoldSettle),
		moveTo(contractx.GroupGripper, contractx.Named("home"), false),
		waitFor(contractx.GroupArm),
	}, opts)
}

func NewPlaceTable(motion contractx.MotionFacade, cfg Config, opts ...Option) (*Placement, error) {
	return newPlacement(PlaceVariantTable, motion, []placeStep{
		moveTo(contractx.GroupArm, contractx.Named("pregrasp"), true),
		moveTo(contractx.GroupGripper, contractx.Named("cylopen"), true),
		moveTo(contractx.GroupArm, contractx.Named("hold", "folded"), false),
		settle(cfg.FoldSettle),
		moveTo(contractx.GroupGripper, contractx.Named("home"), false),
		waitFor(contractx.GroupArm),
	}, opts)
}

func newPlacement(variant string, motion contractx.MotionFacade, steps []placeStep, opts []Option) (*Placement, error) {
	if motion == nil {
		return nil, errors.New("motion facade is required")
	}
	o := buildOptions("place_"+variant, opts)
	return &Placement{
		variant: variant,
		steps:   steps,
		motion:  motion,
		sleep:   o.sleep,
		metrics: o.metrics,
		logger:  o.logger,
	}, nil
}

func (p *Placement) Variant() string { return p.variant }

func (p *Placement) Outcomes() []contractx.Outcome {
	return []contractx.Outcome{contractx.OutcomeSucceeded, contractx.OutcomeFailed}
}

// Execute runs the script. Any motion error, or an interrupted settle, ends
// the script with OutcomeFailed.
func (p *Placement) Execute(ctx context.Context) (contractx.Outcome, error) {
	outcome := p.run(ctx)
	p.metrics.RecordPlacement(p.variant, string(outcome))
	return outcome, ctx.Err()
}

func (p *Placement) run(ctx context.Context) contractx.Outcome {
	act := newActuation(ctx, p.motion, p.logger)
	pending := map[string]contractx.MotionHandle{}

	for _, s := range p.steps {
		switch s.kind {
		case stepMove:
			h := act.move(s.group, s.target, s.blocking)
			if !s.blocking && h != nil {
				pending[s.group] = h
			}
		case stepWait:
			act.wait(s.group, pending[s.group])
			delete(pending, s.group)
		case stepSettle:
			if err := p.sleep(ctx, s.settle); err != nil {
				act.fail(err, "settle", "")
			}
		}
		if act.err != nil {
			return contractx.OutcomeFailed
		}
	}

	p.logger.Debug().Str("variant", p.variant).Msg("object placed")
	return contractx.OutcomeSucceeded
}
