package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"

	"github.com/dukex/ruleflow/pkg/services"
	"github.com/dukex/ruleflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger     *slog.Logger
	service    *services.Workflow
	schedules  web.ScheduleInspector
	dispatcher web.Dispatcher
	validate   *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	service *services.Workflow,
	schedules web.ScheduleInspector,
	dispatcher web.Dispatcher,
) *API {
	return &API{
		logger:     logger,
		service:    service,
		schedules:  schedules,
		dispatcher: dispatcher,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.service, a.schedules, a.dispatcher, a.validate, a.logger)

	app := fiber.New(fiber.Config{AppName: "ruleflow"})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			_, ok := a.service.HealthCheck(c.Context())

			return ok
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Ruleflow API")
	})

	handlers.Register(app)

	return app
}

// Serve listens on port until ctx is done, then shuts the server down.
func (a *API) Serve(ctx context.Context, port int) error {
	app := a.App()
	errs := make(chan error, 1)

	go func() {
		errs <- app.Listen(net.JoinHostPort("", strconv.Itoa(port)), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	a.logger.InfoContext(ctx, "API listening", "port", port)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	a.logger.InfoContext(ctx, "Shutting down API")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}

	if err := <-errs; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}
