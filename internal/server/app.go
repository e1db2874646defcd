// Package server builds the long-lived application services and serves the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/mention-radar/internal/api"
	"github.com/JakeFAU/mention-radar/internal/classifier"
	"github.com/JakeFAU/mention-radar/internal/clock/system"
	"github.com/JakeFAU/mention-radar/internal/config"
	"github.com/JakeFAU/mention-radar/internal/consensus"
	collyfetcher "github.com/JakeFAU/mention-radar/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/mention-radar/internal/fetcher/headless"
	"github.com/JakeFAU/mention-radar/internal/headless/detector"
	"github.com/JakeFAU/mention-radar/internal/heartbeat"
	"github.com/JakeFAU/mention-radar/internal/id/uuid"
	"github.com/JakeFAU/mention-radar/internal/job"
	"github.com/JakeFAU/mention-radar/internal/llm"
	"github.com/JakeFAU/mention-radar/internal/metrics"
	"github.com/JakeFAU/mention-radar/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/mention-radar/internal/publisher/pubsub"
	"github.com/JakeFAU/mention-radar/internal/radar"
	"github.com/JakeFAU/mention-radar/internal/retry"
	"github.com/JakeFAU/mention-radar/internal/source"
	gcsstorage "github.com/JakeFAU/mention-radar/internal/storage/gcs"
	localstorage "github.com/JakeFAU/mention-radar/internal/storage/local"
	memorystorage "github.com/JakeFAU/mention-radar/internal/storage/memory"
	pgstore "github.com/JakeFAU/mention-radar/internal/storage/postgres"
	"github.com/JakeFAU/mention-radar/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store   radar.Store
	clock   radar.Clock
	ids     radar.IDGenerator
	tracker *heartbeat.Tracker
	runner  *job.Runner
	ingest  *source.Runner

	adapters   []source.Adapter
	classifier *classifier.Classifier
	consensus  *consensus.Engine
	// llmErr explains why the classifier and consensus engine are unavailable.
	llmErr error

	headless      *headlessfetcher.Fetcher
	pubsubClient  *pubsub.Client
	publisher     *gcppublisher.Publisher
	storageClient *storage.Client

	tracerProvider *sdktrace.TracerProvider
}

// Build creates the application's dependencies. Callers must Close the returned App.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	app.logger.Info("building application dependencies",
		zap.String("database", cfg.Database.Provider),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.Bool("notify", cfg.Notify.Enabled),
		zap.Bool("archive", cfg.Archive.Enabled),
	)

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}
	app.tracker = heartbeat.New(app.store, app.clock, cfg.Heartbeat.HealthyWindow(), logger)
	app.runner = job.NewRunner(app.clock, app.tracker, logger)
	if err := app.setupTracing(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.ingest = source.NewRunner(app.store, app.store, app.ids, app.clock, logger)

	archive, err := app.setupArchive(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupAdapters(archive); err != nil {
		app.Close()
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	if err := app.setupModels(publisher); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Database.Provider {
	case "postgres":
		if a.cfg.Database.Migrate {
			if err := pgstore.RunMigrations(a.cfg.Database.DSN); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}
			a.logger.Info("database migrations applied")
		}
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      a.cfg.Database.DSN,
			MaxConns: a.cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.store = store
		a.logger.Info("postgres store initialized", zap.Int32("max_conns", a.cfg.Database.MaxConns))
	default:
		a.logger.Warn("using in-memory store; data is lost on exit")
		a.store = memorystorage.NewStore()
	}
	return nil
}

func (a *App) setupTracing(ctx context.Context) error {
	if !a.cfg.Tracing.Enabled {
		return nil
	}
	tp, err := telemetry.NewTracerProvider(ctx, a.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracer provider init failed: %w", err)
	}
	telemetry.Install(tp)
	a.tracerProvider = tp
	a.runner.WithTracer(tp.Tracer("github.com/JakeFAU/mention-radar/internal/job"))
	a.logger.Info("job tracing enabled", zap.String("project", a.cfg.Tracing.ProjectID))
	return nil
}

func (a *App) setupArchive(ctx context.Context) (radar.Archiver, error) {
	if !a.cfg.Archive.Enabled {
		return nil, nil
	}
	if a.cfg.Archive.GCSBucket == "" {
		archive, err := localstorage.New(localstorage.Config{
			BaseDir: a.cfg.Archive.LocalDir,
			Prefix:  a.cfg.Archive.Prefix,
		}, a.clock)
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("raw payload archive enabled", zap.String("dir", a.cfg.Archive.LocalDir))
		return archive, nil
	}
	var err error
	a.storageClient, err = storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	archive, err := gcsstorage.New(a.storageClient, gcsstorage.Config{
		Bucket: a.cfg.Archive.GCSBucket,
		Prefix: a.cfg.Archive.Prefix,
	}, a.clock)
	if err != nil {
		return nil, fmt.Errorf("gcs archive init failed: %w", err)
	}
	a.logger.Info("raw payload archive enabled", zap.String("bucket", a.cfg.Archive.GCSBucket))
	return archive, nil
}

func (a *App) setupPublisher(ctx context.Context) (radar.Publisher, error) {
	if !a.cfg.Notify.Enabled {
		a.logger.Info("opportunity notifications disabled")
		return nil, nil
	}
	var err error
	a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.publisher = gcppublisher.New(a.pubsubClient)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.Notify.ProjectID),
		zap.String("topic", a.cfg.Notify.Topic),
	)
	return a.publisher, nil
}

func (a *App) setupAdapters(archive radar.Archiver) error {
	sources := a.cfg.Sources
	intervals := map[string]time.Duration{
		string(radar.SourceReddit):     sources.Reddit.Pacing(),
		string(radar.SourceHackerNews): sources.HackerNews.Pacing(),
		string(radar.SourceTikTok):     sources.TikTok.Pacing(),
		string(radar.SourceInstagram):  sources.Instagram.Pacing(),
		string(radar.SourceTwitter):    sources.Twitter.Pacing(),
	}
	limiter := ratelimit.New(ratelimit.Config{Intervals: intervals})

	page := collyfetcher.New(collyfetcher.Config{
		UserAgent: sources.UserAgent,
		Timeout:   sources.Timeout(),
	})
	var rendered radar.Fetcher = headlessfetcher.NewNoop()
	if a.cfg.Headless.Enabled {
		h, err := headlessfetcher.New(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         sources.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("headless fetcher init failed: %w", err)
		}
		a.headless = h
		rendered = h
		a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	}

	upstream := func(src radar.Source, fetcher radar.Fetcher, sc config.SourceConfig) *source.Upstream {
		return &source.Upstream{
			Name:    string(src),
			Fetcher: fetcher,
			Limiter: limiter,
			Policy:  retry.New(sc.RetryAttempts, sc.RetryBase()),
			Archive: archive,
			Logger:  a.logger.Named("upstream").With(zap.String("source", string(src))),
		}
	}

	for _, src := range radar.AllSources {
		var adapter source.Adapter
		switch src {
		case radar.SourceReddit:
			if sources.Reddit.Enabled {
				adapter = source.NewReddit(upstream(src, page, sources.Reddit), sources.Reddit.BaseURL,
					sources.Reddit.Limit, a.clock, a.logger)
			}
		case radar.SourceHackerNews:
			if sources.HackerNews.Enabled {
				adapter = source.NewHackerNews(upstream(src, page, sources.HackerNews), sources.HackerNews.BaseURL,
					sources.HackerNews.Limit, a.logger)
			}
		case radar.SourceTikTok:
			if sources.TikTok.Enabled {
				promoting := headlessfetcher.NewPromoting(page, rendered,
					detector.NewHeuristic(0, source.TikTokStateScripts...), a.logger.Named("promote"))
				adapter = source.NewTikTok(upstream(src, promoting, sources.TikTok), sources.TikTok.BaseURL,
					sources.TikTok.Limit, a.logger)
			}
		case radar.SourceInstagram:
			if sources.Instagram.Enabled {
				adapter = source.NewInstagram(upstream(src, page, sources.Instagram), sources.Instagram.BaseURL,
					sources.Instagram.Limit, a.logger)
			}
		case radar.SourceTwitter:
			if sources.Twitter.Enabled {
				adapter = source.NewTwitter(upstream(src, page, sources.Twitter.SourceConfig), sources.Twitter.BaseURL,
					sources.Twitter.BearerToken, sources.Twitter.Limit, a.logger)
			}
		}
		if adapter == nil {
			a.logger.Info("source disabled", zap.String("source", string(src)))
			continue
		}
		a.adapters = append(a.adapters, adapter)
	}
	return nil
}

func (a *App) setupModels(publisher radar.Publisher) error {
	client, err := llm.New(llm.Config{
		BaseURL: a.cfg.LLM.BaseURL,
		APIKey:  a.cfg.LLM.APIKey,
		Referer: a.cfg.LLM.Referer,
		Title:   a.cfg.LLM.Title,
	})
	if err != nil {
		a.llmErr = err
		a.logger.Warn("llm client unavailable; classify and suggest are disabled", zap.Error(err))
		return nil
	}

	notifyTopic := ""
	if publisher != nil {
		notifyTopic = a.cfg.Notify.Topic
	}
	a.classifier, err = classifier.New(classifier.Config{
		Model:              a.cfg.Classifier.Model,
		Temperature:        a.cfg.Classifier.Temperature,
		MaxTokens:          a.cfg.Classifier.MaxTokens,
		Timeout:            a.cfg.ClassifierTimeout(),
		BatchSize:          a.cfg.Classifier.BatchSize,
		Fallback:           a.cfg.Classifier.Fallback,
		NotifyTopic:        notifyTopic,
		NotifyMinRelevance: a.cfg.Notify.MinRelevance,
	}, classifier.Deps{
		LLM:       client,
		Store:     a.store,
		IDs:       a.ids,
		Clock:     a.clock,
		Publisher: publisher,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("classifier init failed: %w", err)
	}

	a.consensus, err = consensus.New(consensus.Config{
		Models:             a.cfg.Consensus.Models,
		Timeout:            a.cfg.ConsensusTimeout(),
		MaxParallel:        a.cfg.Consensus.MaxParallel,
		PreselectThreshold: a.cfg.Consensus.PreselectThreshold,
		Temperature:        a.cfg.Consensus.Temperature,
		MaxTokens:          a.cfg.Consensus.MaxTokens,
	}, client, a.logger)
	if err != nil {
		return fmt.Errorf("consensus engine init failed: %w", err)
	}
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the configured store.
func (a *App) Store() radar.Store { return a.store }

// Clock returns the wall clock used by every component.
func (a *App) Clock() radar.Clock { return a.clock }

// IDs returns the entity id generator.
func (a *App) IDs() radar.IDGenerator { return a.ids }

// Tracker returns the heartbeat tracker.
func (a *App) Tracker() *heartbeat.Tracker { return a.tracker }

// Runner returns the job runner that records heartbeats.
func (a *App) Runner() *job.Runner { return a.runner }

// Consensus returns the keyword suggestion engine, or why it is unavailable.
func (a *App) Consensus() (*consensus.Engine, error) {
	if a.consensus == nil {
		return nil, fmt.Errorf("keyword suggestions unavailable: %w", a.llmErr)
	}
	return a.consensus, nil
}

// ScrapeJobs returns one job per enabled adapter in want, or every enabled adapter when want is
// empty. Requesting a disabled source is an error.
func (a *App) ScrapeJobs(want ...radar.Source) ([]job.Job, error) {
	byName := make(map[radar.Source]source.Adapter, len(a.adapters))
	for _, ad := range a.adapters {
		byName[ad.Source()] = ad
	}
	if len(want) == 0 {
		for _, ad := range a.adapters {
			want = append(want, ad.Source())
		}
	}
	jobs := make([]job.Job, 0, len(want))
	for _, src := range want {
		adapter, ok := byName[src]
		if !ok {
			return nil, fmt.Errorf("source %s is disabled", src)
		}
		jobs = append(jobs, job.Job{
			Name: string(src),
			Run: func(ctx context.Context) (int, error) {
				return a.ingest.Run(ctx, adapter)
			},
		})
	}
	return jobs, nil
}

// ClassifyJob returns the classification batch as a job.
func (a *App) ClassifyJob() (job.Job, error) {
	if a.classifier == nil {
		return job.Job{}, fmt.Errorf("classifier unavailable: %w", a.llmErr)
	}
	return job.Job{Name: radar.ClassifierName, Run: a.classifier.Run}, nil
}

// APIServer builds the HTTP API over the application's services.
func (a *App) APIServer() *api.Server {
	deps := api.Deps{
		Store:  a.store,
		Health: a.tracker,
		IDs:    a.ids,
		Clock:  a.clock,
		Logger: a.logger,
	}
	if a.consensus != nil {
		deps.Suggester = a.consensus
	}
	return api.NewServer(deps, a.cfg)
}

// Serve runs the HTTP API until ctx is canceled or the process is signaled.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases every client the App opened.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}
