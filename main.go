package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	configx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/config"
	logx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger"
	_ "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/logger/autoload"
	metricsx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/metrics"
	qstashx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/pkg/qstash"
	"github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/agents/orchestrator"
	"github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/agents/pick"
	contractx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/contract"
	geometryx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/geometry"
	manipulationx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/manipulation"
	navigationx "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/navigation"
	"github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/sim"
	statex "github.com/tanpawarit/Skill-Manipulation-Orchestrator/skill/state"
)

const (
	storeMemory   = "memory"
	storeUpstash  = "upstash"
	storePostgres = "postgres"
)

type AppConfig struct {
	ConfigPath             string        `split_words:"true" default:"configs/approach_pose.yaml"`
	SubSkill               string        `split_words:"true" default:"approach_pose"`
	Runs                   int           `default:"1"`
	PreconditionRetryDelay time.Duration `split_words:"true" default:"1s"`
	MaxSteps               int           `split_words:"true" default:"0"`
	Store                  string        `default:"memory"`
	MetricsAddr            string        `split_words:"true"`
	// NotifyRuns publishes every finished run record through QStash.
	NotifyRuns bool `split_words:"true"`
}

func (c *AppConfig) Validate() error {
	if c.Runs < 1 {
		return errors.New("runs must be >= 1")
	}
	switch c.SubSkill {
	case navigationx.ApproachPoseName, pick.Name:
	default:
		return fmt.Errorf("unknown sub-skill %q", c.SubSkill)
	}
	switch c.Store {
	case storeMemory, storeUpstash, storePostgres:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	return nil
}

func main() {
	appCfg := configx.MustNew[AppConfig]("SKILL")
	log := logx.For("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := metricsx.NewCollector(reg)
	if appCfg.MetricsAddr != "" {
		go serveMetrics(appCfg.MetricsAddr, reg)
	}

	store, closeStore := mustStore(ctx, appCfg.Store)
	defer closeStore()

	simCfg := configx.MustNew[sim.Config]("SIM")
	robot := sim.New(*simCfg, sim.WithObject(contractx.DetectedObject{
		Label:       "milk",
		Pose:        geometryx.NewPose("/head_camera", r3.Vector{X: 0.6, Z: 0.8}, geometryx.Identity, time.Time{}),
		BoundingBox: r3.Vector{X: 0.07, Y: 0.07, Z: 0.2},
	}))

	gridCfg := configx.MustNew[navigationx.GridConfig]("NAV_GRID")
	goals, err := navigationx.NewGoalSelector(*gridCfg, nil, navigationx.WithSelectorMetrics(metrics))
	if err != nil {
		panic(fmt.Errorf("failed to build goal selector: %w", err))
	}

	approach, err := navigationx.NewApproachPose(robot)
	if err != nil {
		panic(fmt.Errorf("failed to build approach pose: %w", err))
	}

	var skill contractx.Skill = approach
	if appCfg.SubSkill == pick.Name {
		manipCfg := configx.MustNew[manipulationx.Config]("MANIPULATION")
		skill, err = pick.Build(ctx, pick.Services{
			Frames:   robot,
			Poses:    robot,
			IK:       robot,
			Motion:   robot,
			Speech:   robot,
			Light:    robot,
			Detector: robot,
			Objects:  robot,
			Approach: approach,
		}, *manipCfg, manipulationx.WithMetrics(metrics))
		if err != nil {
			panic(fmt.Errorf("failed to build pick skill: %w", err))
		}
	}

	orc, err := orchestrator.New(appCfg.ConfigPath, orchestrator.Deps{
		Monitor: robot,
		Frames:  robot,
		Goals:   goals,
		Skill:   skill,
		Store:   store,
	}, orchestrator.Config{
		PreconditionRetryDelay: appCfg.PreconditionRetryDelay,
		MaxSteps:               appCfg.MaxSteps,
	}, orchestratorOptions(appCfg, metrics)...)
	if err != nil {
		panic(fmt.Errorf("failed to build orchestrator: %w", err))
	}

	for i := 0; i < appCfg.Runs; i++ {
		outcome, record, err := orc.Run(ctx)
		if err != nil {
			log.Error().Err(err).Int("run", i+1).Msg("skill run failed")
			if ctx.Err() != nil {
				return
			}
			continue
		}
		log.Info().
			Int("run", i+1).
			Str("run_id", record.ID).
			Str("outcome", string(outcome)).
			Int("steps", len(record.Steps)).
			Msg("skill run completed")
	}
}

func orchestratorOptions(appCfg *AppConfig, metrics *metricsx.Collector) []orchestrator.Option {
	opts := []orchestrator.Option{orchestrator.WithMetrics(metrics)}
	if appCfg.NotifyRuns {
		qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
		opts = append(opts, orchestrator.WithNotifier(newRunPublisher(qstashx.MustNew(*qstashCfg))))
	}
	return opts
}

// runPublisher forwards finished run records to the QStash destination.
type runPublisher struct {
	client *qstashx.Client
	logger zerolog.Logger
}

func newRunPublisher(client *qstashx.Client) *runPublisher {
	return &runPublisher{client: client, logger: logx.For("notifier")}
}

func (p *runPublisher) NotifyRun(ctx context.Context, rec *statex.RunRecord) error {
	id, err := p.client.PublishJSON(ctx, rec)
	if err != nil {
		return err
	}
	p.logger.Debug().Str("run_id", rec.ID).Str("message_id", id).Msg("run published")
	return nil
}

func mustStore(ctx context.Context, backend string) (statex.Store, func()) {
	switch backend {
	case storeUpstash:
		cfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		store, err := statex.NewUpstashRedisStore(*cfg)
		if err != nil {
			panic(fmt.Errorf("failed to initialize upstash store: %w", err))
		}
		return store, func() {}
	case storePostgres:
		cfg := configx.MustNew[statex.PostgresConfig]("POSTGRES")
		store, err := statex.NewPostgresStore(*cfg)
		if err != nil {
			panic(fmt.Errorf("failed to initialize postgres store: %w", err))
		}
		if err := store.Init(ctx); err != nil {
			panic(fmt.Errorf("failed to create run table: %w", err))
		}
		return store, func() { _ = store.Close() }
	default:
		return statex.NewMemoryStore(), func() {}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger := logx.For("metrics")
		logger.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
	}
}
