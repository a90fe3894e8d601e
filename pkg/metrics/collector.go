package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records skill execution metrics. A nil *Collector is a no-op so
// components can be built without metrics in tests.
type Collector struct {
	transitions     *prometheus.CounterVec
	stateOutcomes   *prometheus.CounterVec
	ikFailures      *prometheus.CounterVec
	graspOutcomes   *prometheus.CounterVec
	placeOutcomes   *prometheus.CounterVec
	poolRefills     prometheus.Counter
	poolRemaining   prometheus.Gauge
	skillRuns       *prometheus.CounterVec
	skillRunSeconds *prometheus.HistogramVec
}

// NewCollector registers the skill metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skill_state_transitions_total",
				Help: "State machine transitions by machine, source state, outcome and target",
			},
			[]string{"machine", "from", "outcome", "to"},
		),
		stateOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skill_state_outcomes_total",
				Help: "Outcomes yielded by individual states",
			},
			[]string{"state", "outcome"},
		),
		ikFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skill_ik_failures_total",
				Help: "Inverse kinematics failures by executor, stage and error code",
			},
			[]string{"executor", "stage", "code"},
		),
		graspOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skill_grasp_outcomes_total",
				Help: "Grasp executor outcomes",
			},
			[]string{"executor", "outcome"},
		),
		placeOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skill_place_outcomes_total",
				Help: "Placement executor outcomes",
			},
			[]string{"variant", "outcome"},
		),
		poolRefills: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "skill_goal_pool_regenerations_total",
				Help: "Number of times the navigation goal pool was regenerated",
			},
		),
		poolRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "skill_goal_pool_remaining",
				Help: "Navigation goals left in the pool",
			},
		),
		skillRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skill_runs_total",
				Help: "Completed skill orchestrator runs by skill and terminal outcome",
			},
			[]string{"skill", "outcome"},
		),
		skillRunSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skill_run_duration_seconds",
				Help:    "Skill orchestrator run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"skill"},
		),
	}
}

func (c *Collector) RecordTransition(machine, from, outcome, to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(machine, from, outcome, to).Inc()
}

func (c *Collector) RecordStateOutcome(state, outcome string) {
	if c == nil {
		return
	}
	c.stateOutcomes.WithLabelValues(state, outcome).Inc()
}

func (c *Collector) RecordIKFailure(executor, stage, code string) {
	if c == nil {
		return
	}
	c.ikFailures.WithLabelValues(executor, stage, code).Inc()
}

func (c *Collector) RecordGrasp(executor, outcome string) {
	if c == nil {
		return
	}
	c.graspOutcomes.WithLabelValues(executor, outcome).Inc()
}

func (c *Collector) RecordPlacement(variant, outcome string) {
	if c == nil {
		return
	}
	c.placeOutcomes.WithLabelValues(variant, outcome).Inc()
}

func (c *Collector) RecordPoolRegenerated(size int) {
	if c == nil {
		return
	}
	c.poolRefills.Inc()
	c.poolRemaining.Set(float64(size))
}

func (c *Collector) SetPoolRemaining(n int) {
	if c == nil {
		return
	}
	c.poolRemaining.Set(float64(n))
}

func (c *Collector) RecordSkillRun(skill, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.skillRuns.WithLabelValues(skill, outcome).Inc()
	c.skillRunSeconds.WithLabelValues(skill).Observe(d.Seconds())
}
