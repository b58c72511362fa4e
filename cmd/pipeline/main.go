// Command pipeline is the handshake-pipeline binary. It serves three roles
// from one executable: the composite supervisor (re-exec'ing itself once
// per stage, grounded on original_source's MCPHandshakeETLModel), a single
// stage worker (e1, t1, e2, or t2), and a one-shot seed publisher for the
// developer CLI described in spec.md §6. Flag parsing is grounded on
// cli/cmd/ariadne/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jerling2/handshake-pipeline/internal/backoff"
	"github.com/jerling2/handshake-pipeline/internal/codec"
	"github.com/jerling2/handshake-pipeline/internal/config"
	"github.com/jerling2/handshake-pipeline/internal/crawler"
	"github.com/jerling2/handshake-pipeline/internal/gateway"
	"github.com/jerling2/handshake-pipeline/internal/ratelimit"
	"github.com/jerling2/handshake-pipeline/internal/repository"
	"github.com/jerling2/handshake-pipeline/internal/stage/e1"
	"github.com/jerling2/handshake-pipeline/internal/stage/e2"
	"github.com/jerling2/handshake-pipeline/internal/stage/t1"
	"github.com/jerling2/handshake-pipeline/internal/stage/t2"
	"github.com/jerling2/handshake-pipeline/internal/supervisor"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/logging"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/metrics"
	"github.com/jerling2/handshake-pipeline/internal/telemetry/tracing"
)

var stageOrder = []string{"e1", "t1", "e2", "t2"}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "supervise":
		err = runSupervise(os.Args[2:])
	case "stage":
		err = runStage(os.Args[2:])
	case "seed":
		err = runSeed(os.Args[2:])
	case "-h", "-help", "--help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("pipeline exited with error", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  pipeline supervise [-config path] [-metrics-backend prom|otel|noop] [-metrics-addr host:port]
  pipeline stage <e1|t1|e2|t2> [-config path] [-metrics-backend prom|otel|noop] [-metrics-addr host:port]
  pipeline seed -start-page N -end-page N -per-page N`)
}

// runSupervise launches one child process per stage, each a re-exec of this
// same binary with `stage <name>`, and forwards INT/TERM the way
// supervisor.MainControlProgram does for a single Program — here the
// Program is the composite supervisor.ETL.
func runSupervise(args []string) error {
	fs := flag.NewFlagSet("supervise", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the stage-tuning YAML overlay")
	metricsBackend := fs.String("metrics-backend", "", "metrics backend forwarded to every stage: prom|otel|noop")
	metricsAddr := fs.String("metrics-addr", "", "metrics listen address forwarded to every stage")
	if err := fs.Parse(args); err != nil {
		return err
	}

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("supervise: resolve executable path: %w", err)
	}

	stages := make([]supervisor.StageSpec, 0, len(stageOrder))
	for _, name := range stageOrder {
		stageArgs := []string{"stage", name}
		if *configPath != "" {
			stageArgs = append(stageArgs, "-config", *configPath)
		}
		if *metricsBackend != "" {
			stageArgs = append(stageArgs, "-metrics-backend", *metricsBackend)
		}
		if *metricsAddr != "" {
			stageArgs = append(stageArgs, "-metrics-addr", *metricsAddr)
		}
		stages = append(stages, supervisor.StageSpec{Name: name, Args: stageArgs})
	}

	etl := &supervisor.ETL{
		Binary: binary,
		Stages: stages,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: slog.Default(),
	}
	mcp := &supervisor.MainControlProgram{Program: etl}
	return mcp.Run(context.Background())
}

// runStage builds one stage Worker and drives it through
// supervisor.MainControlProgram, the single-process analogue of what
// runSupervise does for the whole group.
func runStage(args []string) error {
	if len(args) == 0 {
		usage()
		return fmt.Errorf("stage: missing stage name")
	}
	name := args[0]
	fs := flag.NewFlagSet("stage "+name, flag.ExitOnError)
	configPath := fs.String("config", "", "path to the stage-tuning YAML overlay")
	metricsBackend := fs.String("metrics-backend", "", "override stage-tuning metrics backend: prom|otel|noop")
	metricsAddr := fs.String("metrics-addr", "", "expose metrics on this address when the backend is prom")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	tuning, err := config.LoadStageTuning(*configPath)
	if err != nil {
		return err
	}
	if *metricsBackend != "" {
		tuning.MetricsBackend = *metricsBackend
	}

	deps, err := newStageDeps(name, tuning)
	if err != nil {
		return err
	}
	defer deps.Close()

	if *metricsAddr != "" {
		if prom, ok := deps.metricsProvider.(*metrics.PrometheusProvider); ok {
			serveMetrics(*metricsAddr, prom)
		}
	}

	program, err := buildWorker(name, deps, tuning)
	if err != nil {
		return err
	}
	mcp := &supervisor.MainControlProgram{Program: program}
	return mcp.Run(context.Background())
}

// runSeed publishes one Extract1Cmd to kick off a crawl, the developer CLI
// described in spec.md §6. It exits 0 once the broker has acknowledged the
// record.
func runSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	startPage := fs.Int("start-page", 1, "first listing page to fetch")
	endPage := fs.Int("end-page", 1, "last listing page to fetch (inclusive)")
	perPage := fs.Int("per-page", 50, "jobs per listing page (1..50)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	kafkaCfg, err := config.KafkaConfigFromEnv("handshake-pipeline-seed")
	if err != nil {
		return err
	}

	producer, err := newKafkaClient(kafkaCfg, "")
	if err != nil {
		return fmt.Errorf("seed: connect to broker: %w", err)
	}
	defer producer.Close()

	gw := gateway.New(nil, producer)
	value, err := codec.Extract1Codec{}.Serialize(codec.Extract1Cmd{
		StartPage: *startPage,
		EndPage:   *endPage,
		PerPage:   *perPage,
	})
	if err != nil {
		return fmt.Errorf("seed: encode extract1 command: %w", err)
	}

	delivered := make(chan error, 1)
	if err := gw.Send(context.Background(), codec.Extract1Topic, nil, value, func(err error) {
		delivered <- err
	}); err != nil {
		return fmt.Errorf("seed: send: %w", err)
	}

	select {
	case err := <-delivered:
		if err != nil {
			return fmt.Errorf("seed: delivery failed: %w", err)
		}
	case <-time.After(10 * time.Second):
		return fmt.Errorf("seed: delivery timed out")
	}
	return gw.Close(context.Background(), 10*time.Second)
}

// stageDeps bundles every collaborator a stage Worker is assembled from.
type stageDeps struct {
	gateway         *gateway.Gateway
	mongoClient     *mongo.Client
	db              repository.Database
	dispatcher      *crawler.Dispatcher
	auth            *crawler.Auth
	limiter         ratelimit.RateLimiter
	metricsProvider metrics.Provider
	pipelineMetrics *metrics.PipelineMetrics
	tracer          *tracing.Tracer
	logger          logging.Logger
	sessionWatcher  *config.SessionWatcher
	watchCancel     context.CancelFunc
}

func (d *stageDeps) Close() {
	if d.watchCancel != nil {
		d.watchCancel()
	}
	if d.sessionWatcher != nil {
		_ = d.sessionWatcher.Stop()
	}
	if d.limiter != nil {
		_ = d.limiter.Close()
	}
	if d.mongoClient != nil {
		_ = d.mongoClient.Disconnect(context.Background())
	}
}

func newStageDeps(stageName string, tuning config.StageTuning) (*stageDeps, error) {
	logger := logging.New(slog.Default())

	kafkaCfg, err := config.KafkaConfigFromEnv("handshake-pipeline-" + stageName)
	if err != nil {
		return nil, err
	}
	client, err := newKafkaClient(kafkaCfg, kafkaCfg.GroupID)
	if err != nil {
		return nil, fmt.Errorf("%s: connect to broker: %w", stageName, err)
	}

	mongoCfg, err := config.MongoConfigFromEnv()
	if err != nil {
		client.Close()
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoCfg.URI()))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: connect to document store: %w", stageName, err)
	}
	db := repository.NewDatabase(mongoClient.Database(mongoCfg.Database))

	provider, err := newMetricsProvider(tuning.MetricsBackend, stageName)
	if err != nil {
		client.Close()
		_ = mongoClient.Disconnect(context.Background())
		return nil, err
	}
	pipelineMetrics := metrics.NewPipelineMetrics(provider)

	tracer, err := tracing.New("handshake-pipeline-"+stageName, "production")
	if err != nil {
		client.Close()
		_ = mongoClient.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: init tracer: %w", stageName, err)
	}

	gw := gateway.New(client, client, gateway.WithTracer(tracer), gateway.WithMetrics(gateway.Metrics{
		DeadLetter: func(topic string) { pipelineMetrics.DeadLetters.Inc(1, stageName, topic) },
	}))

	creds, err := config.SourceCredentialsFromEnv()
	if err != nil {
		client.Close()
		_ = mongoClient.Disconnect(context.Background())
		return nil, err
	}
	// LoginFunc is left nil: the credential exchange against the
	// authenticated source is the headless-browser collaborator spec.md §1
	// treats as out of scope. A deployment wires its own LoginFunc here;
	// without one, EnsureLoggedIn surfaces AuthStaleError instead of
	// silently skipping authentication.
	auth := &crawler.Auth{
		SessionPath: tuning.SessionPath,
		Username:    creds.Username,
		Password:    creds.Password,
		TTL:         12 * time.Hour,
	}
	if err := auth.Load(); err != nil {
		logger.WarnCtx(context.Background(), "failed to load persisted session, will re-login on first use", "error", err)
	}

	var sessionWatcher *config.SessionWatcher
	var watchCancel context.CancelFunc
	if (stageName == "e1" || stageName == "e2") && tuning.SessionPath != "" {
		sw, err := config.NewSessionWatcher(tuning.SessionPath)
		if err != nil {
			client.Close()
			_ = mongoClient.Disconnect(context.Background())
			return nil, fmt.Errorf("%s: build session watcher: %w", stageName, err)
		}
		watchCtx, cancel := context.WithCancel(context.Background())
		changes, errs := sw.Watch(watchCtx)
		go func() {
			for {
				select {
				case _, ok := <-changes:
					if !ok {
						return
					}
					auth.Invalidate()
					logger.InfoCtx(watchCtx, "session file changed out of band, invalidated cached session", "stage", stageName)
				case err, ok := <-errs:
					if !ok {
						continue
					}
					logger.WarnCtx(watchCtx, "session watcher error", "stage", stageName, "error", err)
				}
			}
		}()
		sessionWatcher = sw
		watchCancel = cancel
	}

	limiter := ratelimit.NewAdaptiveRateLimiter(ratelimit.Config{Enabled: true})

	retry := backoff.Config{
		MaxAttempts: tuning.Retry.MaxAttempts,
		Base:        tuning.Retry.Base,
		Cap:         tuning.Retry.Cap,
	}
	fetcher, err := crawler.NewCollyFetcher(crawler.Policy{
		UserAgent:  "handshake-pipeline/1.0",
		Timeout:    30 * time.Second,
		MaxRetries: tuning.Retry.MaxAttempts,
	}, auth)
	if err != nil {
		if watchCancel != nil {
			watchCancel()
			_ = sessionWatcher.Stop()
		}
		client.Close()
		_ = mongoClient.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: build fetcher: %w", stageName, err)
	}

	maxConcurrency := tuning.E1.MaxConcurrency
	if stageName == "e2" {
		maxConcurrency = tuning.E2.MaxConcurrency
	}
	dispatcher := &crawler.Dispatcher{
		Fetcher:        fetcher,
		Limiter:        limiter,
		MaxConcurrency: maxConcurrency,
		Retry:          retry,
	}

	return &stageDeps{
		gateway:         gw,
		mongoClient:     mongoClient,
		db:              db,
		dispatcher:      dispatcher,
		auth:            auth,
		limiter:         limiter,
		metricsProvider: provider,
		pipelineMetrics: pipelineMetrics,
		tracer:          tracer,
		logger:          logger,
		sessionWatcher:  sessionWatcher,
		watchCancel:     watchCancel,
	}, nil
}

func buildWorker(stageName string, deps *stageDeps, tuning config.StageTuning) (supervisor.Program, error) {
	switch stageName {
	case "e1":
		return &e1.Worker{
			Gateway:     deps.gateway,
			Repo:        &repository.RawStage1Repo{Collection: deps.db.Collection("raw.stage1")},
			Auth:        deps.auth,
			Dispatcher:  deps.dispatcher,
			Logger:      deps.logger,
			Metrics:     deps.pipelineMetrics,
			PollTimeout: tuning.E1.PollTimeout,
		}, nil
	case "t1":
		return &t1.Worker{
			Gateway:     deps.gateway,
			Postings:    &repository.PostingsRepo{Collection: deps.db.Collection("job-postings")},
			Logger:      deps.logger,
			Metrics:     deps.pipelineMetrics,
			PollTimeout: tuning.T1.PollTimeout,
		}, nil
	case "e2":
		return &e2.Worker{
			Gateway:     deps.gateway,
			Postings:    &repository.PostingsRepo{Collection: deps.db.Collection("job-postings")},
			Auth:        deps.auth,
			Dispatcher:  deps.dispatcher,
			Logger:      deps.logger,
			Metrics:     deps.pipelineMetrics,
			PollTimeout: tuning.E2.PollTimeout,
			BufSize:     tuning.E2.BufSize,
			BufTimeout:  tuning.E2.BufTimeout,
		}, nil
	case "t2":
		return &t2.Worker{
			Gateway:     deps.gateway,
			Repo:        &repository.EnrichedRepo{Collection: deps.db.Collection("enriched-job")},
			Logger:      deps.logger,
			Metrics:     deps.pipelineMetrics,
			PollTimeout: tuning.T2.PollTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q (want one of %v)", stageName, stageOrder)
	}
}

// newKafkaClient builds a franz-go client good for both producing and
// consuming, mirroring the original's collapsing of separate
// KafkaConsumerConfig/KafkaProducerConfig into one broker connection per
// process. groupID empty means produce-only (no consumer group joined).
func newKafkaClient(cfg config.KafkaConfig, groupID string) (*kgo.Client, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(strings.Split(cfg.BootstrapServers, ",")...),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if groupID != "" {
		opts = append(opts, kgo.ConsumerGroup(groupID))
		offset := kgo.NewOffset().AtEnd()
		if cfg.AutoOffsetReset == "earliest" {
			offset = kgo.NewOffset().AtStart()
		}
		opts = append(opts, kgo.ConsumeResetOffset(offset))
	}
	return kgo.NewClient(opts...)
}

func newMetricsProvider(backend, stageName string) (metrics.Provider, error) {
	switch backend {
	case "", "noop":
		return metrics.NewNoopProvider(), nil
	case "prom":
		return metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{}), nil
	case "otel":
		return metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: "handshake-pipeline-" + stageName}), nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %q (want prom|otel|noop)", backend)
	}
}

// serveMetrics exposes prom's registry on addr until the process exits,
// matching the -metrics/-enable-metrics flag pairing in cli/cmd/ariadne's
// main.go.
func serveMetrics(addr string, prom *metrics.PrometheusProvider) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
}
