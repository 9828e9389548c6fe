package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gridflex/flexcore/config"
	"github.com/gridflex/flexcore/core/belief"
	coremetrics "github.com/gridflex/flexcore/core/metrics"
	"github.com/gridflex/flexcore/core/scheduler"
	"github.com/gridflex/flexcore/core/solver"
	"github.com/gridflex/flexcore/infra/logger"
	"github.com/gridflex/flexcore/infra/metrics"
	"github.com/gridflex/flexcore/infra/mqtt"
	"github.com/gridflex/flexcore/infra/store"
	"github.com/gridflex/flexcore/internal/worker"
)

// Service wires the belief store, solver backend, worker pool and ingestion
// into one runnable unit.
type Service struct {
	Store     belief.Store
	Scheduler *scheduler.Scheduler
	Pool      *worker.Pool

	cfg      *config.Config
	log      logger.Logger
	ingestor *mqtt.Ingestor
	pg       *store.PostgresStore
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	cfg.Logging.Apply()
	logg := logger.New("service")

	var (
		bstore belief.Store
		pg     *store.PostgresStore
	)
	switch cfg.Store.Type {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var err error
		pg, err = store.New(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		bstore = pg
	default:
		bstore = belief.NewMemoryStore()
	}

	backend, err := solver.New(cfg.Solver)
	if err != nil {
		return nil, fmt.Errorf("solver backend: %w", err)
	}

	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	sched := scheduler.New(bstore, backend, cfg.Scheduler, logger.New("scheduler"))
	asm := scheduler.NewAssembler(bstore)
	pool := worker.New(sched, asm, sink, logger.New("worker"), cfg.Workers.Count, cfg.Workers.Queue)

	svc := &Service{
		Store:     bstore,
		Scheduler: sched,
		Pool:      pool,
		cfg:       cfg,
		log:       logg,
		pg:        pg,
	}

	if cfg.MQTT.Broker != "" {
		ing, err := mqtt.NewIngestor(cfg.MQTT, bstore, sink, logger.New("ingestor"))
		if err != nil {
			return nil, fmt.Errorf("belief ingestor: %w", err)
		}
		svc.ingestor = ing
	}
	return svc, nil
}

// Run serves until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.Pool.Start(ctx)
	if port := s.cfg.Metrics.PrometheusPort; port > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", port)
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prometheus server: %v", err)
			}
		}()
	}

	events := s.Pool.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Phase == worker.PhaseFinished {
				s.log.Infof("job %s sensor=%s finished status=%s", ev.JobID, ev.SensorID, ev.Status)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Pool.Close()
	if s.ingestor != nil {
		s.ingestor.Close()
	}
	if s.pg != nil {
		s.pg.Close()
	}
	return nil
}
