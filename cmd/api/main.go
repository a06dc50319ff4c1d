package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-dispatcher/bridge"
	"github.com/marcelsud/webhook-dispatcher/config"
	"github.com/marcelsud/webhook-dispatcher/delivery"
	deliverymemory "github.com/marcelsud/webhook-dispatcher/delivery/memory"
	deliveryredis "github.com/marcelsud/webhook-dispatcher/delivery/redis"
	"github.com/marcelsud/webhook-dispatcher/deliverylog"
	logmemory "github.com/marcelsud/webhook-dispatcher/deliverylog/memory"
	logpostgres "github.com/marcelsud/webhook-dispatcher/deliverylog/postgres"
	"github.com/marcelsud/webhook-dispatcher/dispatcher"
	"github.com/marcelsud/webhook-dispatcher/engine"
	"github.com/marcelsud/webhook-dispatcher/internal/clock"
	"github.com/marcelsud/webhook-dispatcher/internal/http/chi"
	"github.com/marcelsud/webhook-dispatcher/internal/logger"
	"github.com/marcelsud/webhook-dispatcher/internal/postgres"
	"github.com/marcelsud/webhook-dispatcher/metrics"
	"github.com/marcelsud/webhook-dispatcher/retry"
	"github.com/marcelsud/webhook-dispatcher/signature"
	"github.com/marcelsud/webhook-dispatcher/subscription"
	submemory "github.com/marcelsud/webhook-dispatcher/subscription/memory"
	subpostgres "github.com/marcelsud/webhook-dispatcher/subscription/postgres"
	"github.com/marcelsud/webhook-dispatcher/sweeper"
	"github.com/marcelsud/webhook-dispatcher/worker"
	"go.uber.org/zap"
)

const TIMEOUT = 30 * time.Second

/* main wires the stores, the delivery pipeline and the admin API.
 * Imports only flow downward: the binary imports the engine, which imports the stores
 */
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("", "")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.New(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"service": "webhook-dispatcher"},
	})
	if err != nil {
		return err
	}
	defer l.Flush(2 * time.Second)
	log := l.Zap()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	clk := clock.New()
	signer, err := signature.NewSigner(cfg.Signature.Algorithm, clk)
	if err != nil {
		return err
	}

	queue, heartbeats, err := openQueue(cfg)
	if err != nil {
		return err
	}
	defer queue.Close(context.Background())

	logs, err := openLogs(ctx, cfg)
	if err != nil {
		return err
	}
	defer logs.Close(context.Background())

	subs, err := openSubscriptions(ctx, cfg)
	if err != nil {
		return err
	}
	defer subs.Close(context.Background())

	loader := subscription.NewLoader(cfg.Delivery.RetryCount)
	switch err := loader.Load(cfg.Subscriptions.File); {
	case err == nil:
		if err := loader.Seed(ctx, subs); err != nil {
			return err
		}
		log.Info("subscriptions loaded", zap.String("file", cfg.Subscriptions.File), zap.Int("count", len(loader.List())))
	case errors.Is(err, os.ErrNotExist):
		log.Warn("subscriptions file not found, using the store as is", zap.String("file", cfg.Subscriptions.File))
	default:
		return err
	}
	cached := subscription.NewCache(subs, cfg.Subscriptions.CacheSize, cfg.Subscriptions.CacheTTL)

	var workers metrics.WorkerLister
	if heartbeats != nil {
		workers = heartbeats
	}

	var pool *worker.Pool
	collector := metrics.NewStoreCollector(queue, logs, workers, clk)
	exporter, err := metrics.NewOTelExporter(collector, metrics.PoolStatsFunc(func() worker.PoolStats { return pool.Stats() }))
	if err != nil {
		return err
	}

	w := worker.New(worker.Config{UserAgent: cfg.Worker.UserAgent}, worker.Deps{
		Queue:         queue,
		Subscriptions: subs,
		Logs:          logs,
		Sender: worker.NewSender(worker.SenderConfig{
			DefaultTimeout:       cfg.Delivery.Timeout,
			MaxResponseBodyBytes: int(cfg.Worker.MaxResponseBodyBytes),
		}, clk),
		Signer: signer,
		Policy: retry.NewPolicy(retry.Config{
			DefaultRetryDelay: cfg.Delivery.RetryDelay,
			MaxBackoff:        cfg.Delivery.MaxBackoff,
			FailureThreshold:  cfg.Delivery.FailureThreshold,
		}),
		Notifier: retry.NewLogNotifier(log),
		Observer: exporter,
		Clock:    clk,
		Logger:   log,
	})

	hostname, _ := os.Hostname()
	pool = worker.NewPool(ctx, w, worker.PoolConfig{
		ID:        hostname + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.NewString()[:8],
		Size:      cfg.Worker.PoolSize,
		QueueSize: cfg.Worker.QueueSize,
	}, log)

	d := dispatcher.New(dispatcher.Deps{
		Subscriptions: cached,
		Queue:         queue,
		Logs:          logs,
		Submitter:     pool,
		Clock:         clk,
		Logger:        log,
	})

	svc := engine.NewService(engine.Deps{
		Dispatcher:    d,
		Queue:         queue,
		Logs:          logs,
		Subscriptions: cached,
		Tester:        w,
		Submitter:     pool,
		Clock:         clk,
		Logger:        log,
	}, cfg.Intake.Size)

	/* the intake is drained until CloseIntake, not until the signal */
	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		_ = d.Listen(context.WithoutCancel(ctx), svc.Intake())
	}()

	sweepers := []sweeper.Sweeper{
		sweeper.NewRetrySweeper(sweeper.RetryConfig{
			Interval:   cfg.Sweeper.Interval,
			StaleAfter: cfg.Sweeper.StaleAfter,
			Batch:      cfg.Sweeper.Batch,
		}, queue, pool, clk, log),
		sweeper.NewRetentionSweeper(sweeper.RetentionConfig{
			RetentionDays: cfg.Log.RetentionDays,
			Interval:      cfg.Log.CleanupInterval,
		}, logs, clk, log),
	}
	for _, s := range sweepers {
		go func(s sweeper.Sweeper) {
			if err := s.Start(ctx); err != nil {
				log.Error("sweeper stopped", zap.String("sweeper", s.Name()), zap.Error(err))
			}
		}(s)
	}

	if heartbeats != nil {
		go pool.Heartbeat(ctx, heartbeats, cfg.Worker.HeartbeatInterval)
	}

	var b *bridge.Bridge
	if cfg.NATS.URL != "" {
		b, err = bridge.New(bridge.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.Stream,
			ConsumerName:   cfg.NATS.Consumer,
			Subject:        cfg.NATS.Subject,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: "webhook-dispatcher",
			AckWait:        cfg.NATS.AckWait,
			MaxDeliver:     cfg.NATS.MaxDeliver,
		}, svc, log)
		if err != nil {
			return err
		}
		go func() {
			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event bridge stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      chi.Handlers(ctx, svc, exporter.ServeHTTP()),
	}

	errShutdown := make(chan error, 1)
	go shutdown(srv, ctx, errShutdown)
	log.Info("listening", zap.Int("port", cfg.Server.Port))
	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	err = <-errShutdown

	ctxTimeout, cancel := context.WithTimeout(context.Background(), TIMEOUT)
	defer cancel()

	if b != nil {
		b.Close()
	}
	svc.CloseIntake()
	select {
	case <-listenDone:
	case <-ctxTimeout.Done():
	}
	if cerr := d.Close(ctxTimeout); cerr != nil {
		log.Error("flushing pending batches", zap.Error(cerr))
	}
	for _, s := range sweepers {
		if serr := s.Stop(ctxTimeout); serr != nil {
			log.Warn("stopping sweeper", zap.String("sweeper", s.Name()), zap.Error(serr))
		}
	}
	pool.Stop()
	if serr := exporter.Shutdown(ctxTimeout); serr != nil {
		log.Warn("shutting down metrics exporter", zap.Error(serr))
	}
	log.Info("shutdown complete")
	return err
}

func shutdown(server *http.Server, ctxShutdown context.Context, errShutdown chan error) {
	<-ctxShutdown.Done()

	ctxTimeout, stop := context.WithTimeout(context.Background(), TIMEOUT)
	defer stop()

	err := server.Shutdown(ctxTimeout)
	switch err {
	case nil:
		errShutdown <- nil
	case context.DeadlineExceeded:
		errShutdown <- fmt.Errorf("forcing closing the server")
	default:
		errShutdown <- fmt.Errorf("forcing closing the server: %w", err)
	}
}

func openQueue(cfg *config.Config) (delivery.Repository, *deliveryredis.Repository, error) {
	if cfg.Store.Queue != config.StoreRedis {
		return deliverymemory.NewRepository(), nil, nil
	}
	repo, err := deliveryredis.NewRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo, nil
}

func openLogs(ctx context.Context, cfg *config.Config) (deliverylog.Store, error) {
	if cfg.Store.Log != config.StorePostgres {
		return logmemory.NewStore(), nil
	}
	db, err := postgres.Open(ctx, cfg.Postgres.URL, postgres.DefaultPool)
	if err != nil {
		return nil, err
	}
	store := logpostgres.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func openSubscriptions(ctx context.Context, cfg *config.Config) (subscription.Repository, error) {
	if cfg.Store.Subscriptions != config.StorePostgres {
		return submemory.NewRepository(), nil
	}
	repo, err := subpostgres.Open(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}
