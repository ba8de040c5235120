package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"dedup/internal/deduplication/adapters/tasks"
	dedupconsumer "dedup/internal/deduplication/consumer"
	"dedup/internal/deduplication/guard"
	"dedup/internal/deduplication/handler"
	dedupmetrics "dedup/internal/deduplication/metrics"
	"dedup/internal/deduplication/service"
	jwttoken "dedup/internal/jwt_token"
	"dedup/internal/platform/config"
	"dedup/internal/platform/httpserver"
	kafkaconsumer "dedup/internal/platform/kafka/consumer"
	"dedup/internal/platform/kafka/producer"
	"dedup/internal/platform/logger"
	"dedup/internal/platform/metrics"
	"dedup/internal/platform/postgres"
	"dedup/internal/platform/redis"
	"dedup/internal/registry/store"
	audit "dedup/pkg/platform/audit"
	"dedup/pkg/platform/audit/publishers/compliance"
	"dedup/pkg/platform/audit/publishers/ops"
	auditmemory "dedup/pkg/platform/audit/store/memory"
	auditpostgres "dedup/pkg/platform/audit/store/postgres"
	auditworker "dedup/pkg/platform/audit/worker"
	"dedup/pkg/platform/httputil"
	"dedup/pkg/platform/middleware/request"
	"dedup/pkg/platform/middleware/requesttime"
)

const topicPartitions = 3

// infra holds the optional backing services. Nil fields are not configured.
type infra struct {
	db       *sql.DB
	redis    *redis.Client
	producer *producer.Producer
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.New(reg)

	var in infra
	defer in.close()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	in.db = db

	var (
		registry   service.Registry
		mergeTx    service.MergeTx
		auditStore audit.Store
		outbox     *auditpostgres.Store
	)
	if db != nil {
		pg := store.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		outbox = auditpostgres.New(db)
		if err := outbox.EnsureSchema(ctx); err != nil {
			return err
		}
		registry, mergeTx, auditStore = pg, newPostgresMergeTx(db, pg, cfg.Dedup.MergeTxTimeout), outbox
		log.Info("using postgres registry")
	} else {
		mem := store.NewInMemory()
		registry, mergeTx, auditStore = mem, service.NewInMemoryTx(mem, cfg.Dedup.MergeTxTimeout), auditmemory.NewInMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory registry")
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(dedupmetrics.New(reg)),
		service.WithConcurrency(cfg.Dedup.TaskConcurrency),
		service.WithAuditPublisher(compliance.New(auditStore,
			compliance.WithLogger(log),
			compliance.WithMetrics(compliance.NewMetrics(reg)),
		)),
		service.WithOpsPublisher(ops.New(auditStore,
			ops.WithLogger(log),
			ops.WithMetrics(ops.NewMetrics(reg)),
		)),
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		in.redis = rdb
		opts = append(opts, service.WithGuard(guard.New(rdb.Client,
			guard.WithLockTTL(cfg.Dedup.MergeLockTTL),
			guard.WithProcessedTTL(cfg.Dedup.ProcessedTTL),
			guard.WithLogger(log),
		)))
	} else {
		log.Warn("REDIS_URL not set, merges rely on row locks only")
	}

	var taskClient service.TaskClient
	if cfg.Tasks.BaseURL != "" {
		taskClient = tasks.New(cfg.Tasks.BaseURL,
			tasks.WithHTTPClient(&http.Client{Timeout: cfg.Tasks.Timeout}),
			tasks.WithTokenIssuer(jwtService),
			tasks.WithLogger(log),
		)
	} else {
		log.Warn("TASKS_BASE_URL not set, review task creation disabled")
	}

	svc := service.New(registry, mergeTx, taskClient, opts...)

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		if err := startKafka(gctx, g, cfg, log, svc, outbox, &in); err != nil {
			return err
		}
	} else {
		log.Warn("KAFKA_BROKERS not set, task completion events are not consumed")
	}

	router := chi.NewRouter()
	router.Use(request.RequestID)
	router.Use(requesttime.Middleware)
	router.Use(request.Logger(log))
	router.Use(request.Recovery(log))
	router.Use(request.ContentTypeJSON)
	router.Use(httpMetrics.Instrument)
	router.Method(http.MethodGet, "/metrics", httpMetrics.Handler())
	router.Get("/healthz", in.healthz)
	handler.New(svc, log, jwttoken.NewJWTServiceAdapter(jwtService)).Register(router)

	srv := httpserver.New(cfg.Server.Addr, router)
	g.Go(func() error {
		log.Info("starting dedup", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("dedup stopped")
	return nil
}

// startKafka bootstraps topics, subscribes to task completions and, with a
// Postgres outbox, relays audit events.
func startKafka(ctx context.Context, g *errgroup.Group, cfg config.Config, log *slog.Logger, svc *service.Service, outbox *auditpostgres.Store, in *infra) error {
	topics := []string{cfg.Kafka.TaskCompletedTopic}
	if outbox != nil && cfg.Kafka.AuditTopic != "" {
		topics = append(topics, cfg.Kafka.AuditTopic)
	}
	if err := kafkaconsumer.EnsureTopics(ctx, cfg.Kafka.Brokers, topicPartitions, topics...); err != nil {
		log.Warn("kafka topic bootstrap failed", "error", err)
	}

	router := kafkaconsumer.NewRouter(log, nil)
	router.Register(cfg.Kafka.TaskCompletedTopic, dedupconsumer.NewTaskCompletedHandler(svc, log))
	cons, err := kafkaconsumer.New(kafkaconsumer.Config{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.ConsumerGroup,
		Topics:  router.Topics(),
	}, router, kafkaconsumer.WithLogger(log))
	if err != nil {
		return err
	}
	g.Go(func() error {
		defer cons.Close()
		return cons.Run(ctx)
	})

	if outbox == nil || cfg.Kafka.AuditTopic == "" {
		return nil
	}
	prod, err := producer.New(cfg.Kafka.Brokers)
	if err != nil {
		return err
	}
	in.producer = prod
	relay := auditworker.NewWorker(outbox, prod, cfg.Kafka.AuditTopic, auditworker.WithLogger(log))
	g.Go(func() error {
		return relay.Run(ctx)
	})
	return nil
}

func (in *infra) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			healthy = false
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if in.db != nil {
		record("postgres", in.db.PingContext(ctx))
	}
	if in.redis != nil {
		record("redis", in.redis.Health(ctx))
	}
	if in.producer != nil {
		record("kafka", in.producer.Ping(ctx))
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
}

func (in *infra) close() {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
