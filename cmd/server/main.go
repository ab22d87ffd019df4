package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"backend-clinic-queue/internal/config"
	"backend-clinic-queue/internal/http/handler"
	"backend-clinic-queue/internal/http/middleware"
	"backend-clinic-queue/internal/models"
	"backend-clinic-queue/internal/queue"
	"backend-clinic-queue/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	config.LoadEnv()
	log := config.NewLogger()
	config.InitRedis()
	config.InitDB()
	defer config.CloseDB()

	pub := realtime.NewRedisPublisher(config.Redis, log)
	store := queue.NewStore(config.DB, config.Redis, pub, log)
	hub := realtime.NewHub(store.GetTodayQueue, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go hub.RunBus(ctx, config.Redis)

	app := fiber.New(fiber.Config{
		Prefork:       false,
		CaseSensitive: true,
		StrictRouting: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE",
	}))

	h := handler.NewQueueHandler(store, hub, log)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Clinic queue API running",
		})
	})

	app.Post("/api/login", handler.Login)
	app.Get("/ws/queue", h.UpgradeWS)
	app.Get("/api/queue/position/:doctorId", h.NowServing)

	// Everything below requires a valid session
	api := app.Group("/api", middleware.JWTAuth())

	api.Post("/logout", handler.Logout)
	api.Get("/queue/today", h.GetTodayQueue)

	// Operator transitions
	staff := middleware.RoleAuth(models.RoleDoctor, models.RoleNurse, models.RoleAdmin)
	api.Post("/queue/call-next", staff, h.CallNext)
	api.Put("/queue/:appointmentId/status", staff, h.UpdateStatus)

	// Front-desk only
	desk := middleware.RoleAuth(models.RoleNurse, models.RoleAdmin)
	api.Put("/queue/:appointmentId/priority", desk, h.UpdatePriority)
	api.Post("/queue/:appointmentId/number", desk, h.AssignNumber)

	addr := config.GetEnv("APP_HOST", "0.0.0.0") + ":" + config.GetEnv("APP_PORT", "8080")

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		app.Shutdown()
	}()

	log.Info().Str("addr", addr).Msg("server listening")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
