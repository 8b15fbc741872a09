package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/bootstrap"
	"github.com/aifans/aifans/internal/pkg/env"
	"github.com/aifans/aifans/internal/pkg/membership"
	"github.com/aifans/aifans/internal/pkg/middleware"
	"github.com/aifans/aifans/internal/pkg/router"
	"github.com/aifans/aifans/internal/pkg/scheduler"
	"github.com/aifans/aifans/internal/pkg/storage"
)

func main() {
	env.SetupEnvFile()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.NewContainer(ctx)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	app := NewApplication(container)
	sched := newScheduler(container)
	sched.Start()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000"))
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	fiberlog.Info("[Server] shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		fiberlog.Warnf("[Server] scheduler stop: %v", err)
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		fiberlog.Errorf("[Server] shutdown: %v", err)
	}
}

func NewApplication(container *bootstrap.Container) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "aifans",
		ErrorHandler: apperror.FiberErrorHandler,
		BodyLimit:    storage.MaxUploadSize + 1<<20,
		ReadTimeout:  30 * time.Second,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: env.GetEnv("CORS_ALLOW_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	var limiterStorage fiber.Storage
	if container.RedisReady {
		limiterStorage = middleware.NewLimiterStorage(container.Redis)
	}

	router.InstallRouter(app, container.Services, router.Options{
		MockPayments:   !env.IsProd(),
		LimiterStorage: limiterStorage,
	})
	return app
}

// newScheduler registers the cron jobs on the container's scheduler, which
// also serves the admin sweep trigger.
func newScheduler(container *bootstrap.Container) *scheduler.Scheduler {
	sched := container.Scheduler
	spec := env.GetEnv("SWEEP_CRON", scheduler.DefaultSweepSpec)
	err := sched.AddJob(membership.SweepJobName, spec, func(ctx context.Context) error {
		_, err := container.Services.Sweeper.Run(ctx)
		return err
	})
	if err != nil {
		log.Fatalf("register %s: %v", membership.SweepJobName, err)
	}
	return sched
}
