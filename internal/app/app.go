// Package app wires the trainer components together and runs them.
package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/SentientTrainer/internal/animation"
	"github.com/AaronLay10/SentientTrainer/internal/api"
	"github.com/AaronLay10/SentientTrainer/internal/config"
	"github.com/AaronLay10/SentientTrainer/internal/events"
	"github.com/AaronLay10/SentientTrainer/internal/feedback"
	"github.com/AaronLay10/SentientTrainer/internal/mqtt"
	"github.com/AaronLay10/SentientTrainer/internal/notify"
	"github.com/AaronLay10/SentientTrainer/internal/objects"
	"github.com/AaronLay10/SentientTrainer/internal/sequence"
	"github.com/AaronLay10/SentientTrainer/internal/session"
	"github.com/AaronLay10/SentientTrainer/internal/steps"
	"github.com/AaronLay10/SentientTrainer/internal/storage/postgres"
	"github.com/AaronLay10/SentientTrainer/internal/version"
)

const (
	healthInterval    = 5 * time.Second
	heartbeatTolerant = 2.0
)

type Options struct {
	// ConfigDir is searched for metadata files when no explicit path is set.
	ConfigDir string
	// Offline skips MQTT, Postgres, Redis and the outbox. Used by the
	// simulate command and tests.
	Offline bool
	// Output receives the JSON event lines; defaults to stdout.
	Output io.Writer
}

// App owns every trainer component. After Run starts the loop, the
// scene, controller and session are only touched from the loop goroutine.
type App struct {
	cfg     *config.TrainerConfig
	secrets config.Secrets
	opts    Options

	sched    *animation.Scheduler
	loop     *session.Loop
	scene    *objects.Scene
	registry *steps.Registry
	provider steps.Provider
	ctrl     *sequence.Controller
	session  *session.Session

	notifier   notify.Notifier
	outbox     *notify.Outbox
	dispatcher *notify.Dispatcher
	guard      session.ActiveGuard
	redisGuard *session.RedisGuard

	topics    mqtt.Topics
	mqtt      *mqtt.Client
	publisher *mqtt.FeedbackPublisher
	monitor   *mqtt.Monitor

	pg      *postgres.Client
	metrics *api.Metrics
	server  *api.Server
}

// Build assembles the trainer from its configuration. Nothing is started.
func Build(cfg *config.TrainerConfig, secrets config.Secrets, opts Options) (*App, error) {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	events.SetOutput(opts.Output)

	a := &App{
		cfg:     cfg,
		secrets: secrets,
		opts:    opts,
		sched:   animation.NewScheduler(),
		topics:  mqtt.Topics{Prefix: cfg.TopicPrefix()},
	}

	var transformSink objects.TransformSink
	fbSinks := feedback.MultiSink{feedback.NewEventSink()}
	if !opts.Offline {
		a.mqtt = mqtt.NewClient(cfg.MQTT.Broker, cfg.MQTTClientID())
		a.publisher = mqtt.NewFeedbackPublisher(a.mqtt, a.topics)
		transformSink = a.publisher
		fbSinks = append(fbSinks, a.publisher)
	}

	scene, err := objects.Build(cfg.Objects, a.sched, transformSink)
	if err != nil {
		return nil, fmt.Errorf("build scene: %w", err)
	}
	a.scene = scene

	a.registry = steps.NewRegistry(steps.Options{
		Attempts: cfg.MetadataAttempts(),
		Delay:    cfg.MetadataRetryDelay(),
		Timeout:  cfg.MetadataTimeout(),
		Filter: func(id string) bool {
			_, ok := scene.Get(id)
			return ok
		},
	})
	a.provider = a.metadataProvider()

	engine := feedback.NewEngine(feedback.FromConfig(cfg.Feedback), a.sched, fbSinks)
	a.ctrl = sequence.NewController(a.registry, scene, engine)

	if err := a.buildNotifier(); err != nil {
		return nil, err
	}
	a.buildGuard()

	a.loop = session.NewLoop(a.sched, cfg.FrameInterval())
	a.session = session.New(a.ctrl, a.registry, a.sched, session.Options{
		TrainingID:  cfg.TrainingID(),
		ProjectName: cfg.ProjectName(),
		CloseDelay:  cfg.CloseDelay(),
		AutoClose:   cfg.AutoClose(),
		Guard:       a.guard,
		Dispatcher:  a.dispatcher,
		Post:        a.loop.Post,
	})

	if !opts.Offline {
		specs := mqtt.SpecsFromConfig(cfg.Objects, a.registry.Contains)
		a.monitor = mqtt.NewMonitor(specs, heartbeatTolerant)
	}

	a.metrics = api.NewMetrics(cfg.TrainingID())
	a.metrics.SetFrameSource(a.loop.Frames)
	a.server = api.NewServer(a, a.metrics)
	return a, nil
}

func (a *App) metadataProvider() steps.Provider {
	md := a.cfg.Metadata
	if md.URL != "" {
		return &steps.HTTPProvider{
			BaseURL:     md.URL,
			BuildName:   md.BuildName,
			BuildType:   md.BuildType,
			ContainerID: md.ContainerID,
			Token:       a.secrets.NotifierToken,
			Client:      &http.Client{Timeout: a.cfg.MetadataTimeout()},
		}
	}
	dir := a.opts.ConfigDir
	if dir == "" {
		dir = "."
	}
	return steps.NewFileProvider(md.Path, dir, a.cfg.ProjectName())
}

func (a *App) buildNotifier() error {
	nc := a.cfg.Notifier
	if nc.Simulate || nc.URL == "" {
		a.notifier = &notify.SimulatedNotifier{}
	} else {
		a.notifier = notify.NewHTTPNotifier(nc.URL, a.secrets.NotifierToken)
	}

	if !a.opts.Offline {
		path := a.cfg.OutboxPath()
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create outbox dir: %w", err)
			}
		}
		outbox, err := notify.OpenOutbox(path)
		if err != nil {
			return fmt.Errorf("open outbox: %w", err)
		}
		a.outbox = outbox
	}

	a.dispatcher = notify.NewDispatcher(a.notifier, a.outbox, notify.Options{
		Attempts: a.cfg.NotifierAttempts(),
		Delay:    a.cfg.NotifierRetryDelay(),
		Timeout:  a.cfg.NotifierTimeout(),
	})
	return nil
}

func (a *App) buildGuard() {
	if a.opts.Offline || a.cfg.Session.RedisAddr == "" {
		a.guard = session.NewMemoryGuard()
		return
	}
	a.redisGuard = session.NewRedisGuard(a.cfg.Session.RedisAddr, a.secrets.RedisPassword,
		session.WithGuardTTL(a.cfg.GuardTTL()))
	a.guard = a.redisGuard
}

// Handler exposes the HTTP API, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

func (a *App) Loop() *session.Loop {
	return a.loop
}

// Run starts every component and blocks until ctx is cancelled or the
// HTTP server fails.
func (a *App) Run(ctx context.Context) error {
	if err := api.InitTLS(); err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "trainer starting", map[string]interface{}{
		"service":  "trainer",
		"training": a.cfg.TrainingID(),
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	api.InitAuth(a.cfg.API.User, a.secrets)
	a.metrics.Attach()

	a.connectPostgres()
	a.connectRedis(ctx)

	a.loop.Start()
	a.loadSteps(ctx)
	a.connectMQTT(ctx)

	err := a.server.ListenAndServe(ctx, a.cfg.UIPort())
	if err != nil {
		events.Emit("error", "system.error", "api server failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	a.shutdown()
	return err
}

func (a *App) connectPostgres() {
	if a.opts.Offline || os.Getenv("PGHOST") == "" {
		api.SetPostgresStatus(false, true)
		return
	}
	pg, err := postgres.New(a.cfg.TrainingID())
	if err != nil {
		log.Printf("postgres unavailable, events stay in memory: %v", err)
		api.SetPostgresStatus(false, true)
		return
	}
	a.pg = pg
	events.SetPostgresClient(pg)
	api.SetPostgresStatus(true, true)
}

func (a *App) connectRedis(ctx context.Context) {
	if a.redisGuard == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redisGuard.Ping(pctx); err != nil {
		events.Emit("warn", "system.error", "redis guard unreachable", map[string]interface{}{
			"addr":  a.cfg.Session.RedisAddr,
			"error": err.Error(),
		})
	}
}

// loadSteps fetches metadata off the loop and applies the result on it.
func (a *App) loadSteps(ctx context.Context) {
	ch := a.registry.LoadAsync(ctx, a.provider)
	go func() {
		res, ok := <-ch
		if !ok {
			return
		}
		a.loop.Post(func() {
			a.session.ApplySteps(res)
			api.SetTrainerReady(a.registry.Len() > 0, a.registry.Source())
		})
	}()
}

func (a *App) connectMQTT(ctx context.Context) {
	if a.mqtt == nil {
		api.SetMQTTStatus(false, true)
		return
	}

	clicks := mqtt.NewClickSubscriber(a.mqtt, a.topics, func(id string) {
		a.loop.Post(func() { a.session.Click(id) })
	})
	handlers := map[string]paho.MessageHandler{clicks.Topic(): clicks.Handler()}
	for topic, h := range a.monitor.Handlers(a.topics) {
		handlers[topic] = h
	}

	connected := a.mqtt.Start(handlers)
	api.SetMQTTStatus(connected, true)
	a.monitor.Start(healthInterval)

	go func() {
		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				api.SetMQTTStatus(a.mqtt.IsConnected(), true)
			}
		}
	}()
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.loop.Do(ctx, func() {
		if a.session.Open() {
			_ = a.session.Close(ctx)
		}
	}); err != nil {
		log.Printf("close session on shutdown: %v", err)
	}
	a.loop.Stop()
	a.session.WaitGuard()
	a.dispatcher.Wait()
	api.SetTrainerReady(false, "")

	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	if a.outbox != nil {
		_ = a.outbox.Close()
	}
	if a.redisGuard != nil {
		_ = a.redisGuard.Close()
	}

	events.Emit("info", "system.shutdown", "trainer stopped", nil)
	a.metrics.Detach()
	events.CloseAllSubscribers()

	if a.pg != nil {
		events.SetPostgresClient(nil)
		_ = a.pg.Close()
	}
}
