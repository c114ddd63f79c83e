package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/ruleflow/pkg/channels/kafka"
	"github.com/dukex/ruleflow/pkg/cmd"
	"github.com/dukex/ruleflow/pkg/config"
	"github.com/dukex/ruleflow/pkg/definitions"
	"github.com/dukex/ruleflow/pkg/engine"
	"github.com/dukex/ruleflow/pkg/eventbus"
	"github.com/dukex/ruleflow/pkg/events"
	"github.com/dukex/ruleflow/pkg/log"
	"github.com/dukex/ruleflow/pkg/otelhelper"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/scheduler"
	"github.com/dukex/ruleflow/pkg/services"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 10 * time.Second

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the API server and the scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				Sources: cli.EnvVars("RULEFLOW_CONFIG"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   config.DefaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "store-url",
				Usage:   "Workflow store URL (memory://, file://, redis://, postgres://)",
				Sources: cli.EnvVars("STORE_URL", "DATABASE_URL", "REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "store-namespace",
				Usage:   "Namespace isolating this deployment's workflows",
				Value:   persistence.DefaultNamespace,
				Sources: cli.EnvVars("STORE_NAMESPACE"),
			},
			&cli.DurationFlag{
				Name:    "store-timeout",
				Usage:   "Timeout of a single store operation",
				Value:   config.DefaultStoreTimeout,
				Sources: cli.EnvVars("STORE_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Dispatch bus (gochannel, kafka)",
				Value:   config.DefaultEventBus,
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "workflows-path",
				Usage:   "Directory of workflow definitions to seed the store with",
				Sources: cli.EnvVars("WORKFLOWS_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   config.DefaultLogLevel,
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json, tint)",
				Value:   config.DefaultLogFormat,
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			log.Setup(cfg.Log.Level, cfg.Log.Format)

			return run(ctx, cfg, log.WithModule("ruleflow"))
		},
	}
}

// loadConfig reads the optional config file and applies every flag that was
// set explicitly or through its environment variable.
func loadConfig(command *cli.Command) (config.Config, error) {
	cfg := config.Default()

	if path := command.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}

		cfg = loaded
	}

	if command.IsSet("port") {
		cfg.Port = command.Int("port")
	}

	if command.IsSet("store-url") {
		cfg.Store.URL = command.String("store-url")
	}

	if command.IsSet("store-namespace") || cfg.Store.Namespace == "" {
		cfg.Store.Namespace = command.String("store-namespace")
	}

	if command.IsSet("store-timeout") {
		cfg.Store.Timeout = command.Duration("store-timeout")
	}

	if command.IsSet("event-bus") {
		cfg.EventBus.Type = command.String("event-bus")
	}

	if command.IsSet("kafka-brokers") {
		cfg.EventBus.KafkaBrokers = kafka.ParseBrokers(command.String("kafka-brokers"))
	}

	if command.IsSet("workflows-path") {
		cfg.WorkflowsPath = command.String("workflows-path")
	}

	if command.IsSet("log-level") {
		cfg.Log.Level = command.String("log-level")
	}

	if command.IsSet("log-format") {
		cfg.Log.Format = command.String("log-format")
	}

	if command.IsSet("tracing") {
		cfg.Tracing = command.Bool("tracing")
	}

	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.InfoContext(ctx, "Initializing ruleflow", "port", cfg.Port, "event_bus", cfg.EventBus.Type)

	tracer := otelhelper.NoopTracer()

	if cfg.Tracing {
		var (
			shutdown otelhelper.ShutdownFunc
			err      error
		)

		tracer, shutdown, err = otelhelper.NewTracer(ctx, "ruleflow")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	store, err := cmd.NewPersistence(ctx, logger, cfg.Store.URL, persistence.Options{
		Namespace: cfg.Store.Namespace,
		Timeout:   cfg.Store.Timeout,
	})
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	if cfg.WorkflowsPath != "" {
		seedWorkflows(ctx, logger, store, cfg.WorkflowsPath)
	}

	bus, err := cmd.NewEventBus(cfg.EventBus.Type, cfg.EventBus.KafkaBrokers, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	if err := subscribeMatches(ctx, bus, logger); err != nil {
		return err
	}

	return serve(ctx, cfg, logger, tracer, store, bus)
}

func serve(
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	tracer trace.Tracer,
	store persistence.Persistence,
	bus eventbus.EventPublisher,
) error {
	matcher := engine.New(logger)
	dispatcher := eventbus.NewDispatcher(bus, logger)
	sched := scheduler.New(store, matcher, dispatcher, logger, scheduler.WithTracer(tracer))

	if err := sched.Start(ctx); err != nil {
		logger.WarnContext(ctx, "Scheduler started without stored workflows", "error", err)
	}

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := sched.Stop(stopCtx); err != nil {
			logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
		}
	}()

	service := services.NewWorkflow(store, matcher, sched, logger, services.WithTracer(tracer))

	return NewAPI(logger, service, sched, dispatcher).Serve(ctx, cfg.Port)
}

func seedWorkflows(ctx context.Context, logger *slog.Logger, store persistence.Persistence, path string) {
	workflows, err := definitions.Load(path)
	if err != nil {
		logger.WarnContext(ctx, "Some workflow definitions were skipped", "path", path, "error", err)
	}

	seeded, err := definitions.Seed(ctx, store, workflows, time.Now())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to seed workflows", "path", path, "error", err)
	}

	logger.InfoContext(ctx, "Workflow definitions loaded", "path", path, "found", len(workflows), "seeded", seeded)
}

// subscribeMatches logs every published match. Action execution happens in
// downstream consumers of the same topic.
func subscribeMatches(ctx context.Context, bus eventbus.EventSubscriber, logger *slog.Logger) error {
	err := bus.Handle(events.WorkflowMatchedEvent, func(ctx context.Context, event any) error {
		matched, ok := event.(*events.WorkflowMatched)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}

		logger.InfoContext(ctx, "Workflow match published",
			"workflow_id", matched.WorkflowID,
			"event_id", matched.Event.ID,
			"event_type", matched.Event.Type,
			"actions", len(matched.Actions))

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register match handler: %w", err)
	}

	return bus.Subscribe(ctx)
}
