package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ispkit/sessiond/internal/coasync"
	"github.com/ispkit/sessiond/internal/config"
	"github.com/ispkit/sessiond/internal/core"
	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/directory"
	"github.com/ispkit/sessiond/internal/events"
	"github.com/ispkit/sessiond/internal/frontend"
	"github.com/ispkit/sessiond/internal/handlers"
	"github.com/ispkit/sessiond/internal/lease"
	"github.com/ispkit/sessiond/internal/middleware"
	"github.com/ispkit/sessiond/internal/models"
	"github.com/ispkit/sessiond/internal/session"
)

func main() {
	log.Println("Starting sessiond...")

	cfg := config.Load()

	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	seedAdminUser()

	// Wiring: the event bus connects the admin API's entitlement changes to
	// the snapshot cache and the CoA synchronizer.
	bus := events.NewBus()

	leaseStore := lease.NewGormStore(database.DB)
	alloc := lease.NewAllocator(leaseStore)

	sessMgr := session.NewManager(session.NewGormStore(database.DB), leaseStore, bus)

	gormDir := directory.NewGormDirectory(database.DB)
	subs := directory.NewCachedSubscribers(gormDir, cfg.SnapshotTTL, cfg.SnapshotStaleMax, bus)

	coaClient := frontend.NewCoAClient(cfg.CoATimeout)
	dispatcher := coasync.NewDispatcher(coaClient, cfg.CoAQueueSize, cfg.CoAInterval, cfg.CoATimeout)
	synchronizer := coasync.NewSynchronizer(dispatcher, sessMgr, subs, bus)

	engine := core.NewEngine(alloc, leaseStore, sessMgr, gormDir, subs, synchronizer)

	reaper := lease.NewReaper(alloc, sessMgr, cfg.LeaseStaleAfter, cfg.LeaseReapInterval)

	dispatcher.Start()
	reaper.Start()

	radiusServer := frontend.NewServer(cfg.RadiusAuthPort, cfg.RadiusAcctPort, engine)
	if err := radiusServer.Start(); err != nil {
		log.Fatalf("Failed to start RADIUS server: %v", err)
	}
	log.Printf("RADIUS server started (auth: %d, acct: %d)", cfg.RadiusAuthPort, cfg.RadiusAcctPort)

	app := buildAPI(cfg, sessMgr, coaClient, bus)
	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()
	log.Printf("Admin API started on :%d", cfg.APIPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down sessiond...")
	app.Shutdown()
	reaper.Stop()
	dispatcher.Stop()
}

func buildAPI(cfg *config.Config, sessMgr *session.Manager, coaClient *frontend.CoAClient, bus *events.Bus) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "sessiond API v1.0",
		ServerHeader: "sessiond",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "sessiond",
		})
	})

	authHandler := handlers.NewAuthHandler(cfg)
	poolHandler := handlers.NewIPPoolHandler()
	leaseHandler := handlers.NewLeaseHandler()
	sessionHandler := handlers.NewSessionHandler(sessMgr, coaClient)
	nasHandler := handlers.NewNasHandler()
	subscriberHandler := handlers.NewSubscriberHandler(bus)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/login", authHandler.Login)
	auth.Post("/logout", middleware.AuthRequired(cfg), authHandler.Logout)
	auth.Get("/me", middleware.AuthRequired(cfg), authHandler.Me)

	protected := api.Group("", middleware.AuthRequired(cfg))

	pools := protected.Group("/pools")
	pools.Get("/", poolHandler.List)
	pools.Get("/:id", poolHandler.Get)
	pools.Post("/", poolHandler.Create)
	pools.Put("/:id", poolHandler.Update)
	pools.Delete("/:id", poolHandler.Delete)

	leases := protected.Group("/leases")
	leases.Get("/", leaseHandler.List)
	leases.Post("/static", leaseHandler.CreateStatic)
	leases.Delete("/:id", leaseHandler.Release)

	sessions := protected.Group("/sessions")
	sessions.Get("/", sessionHandler.List)
	sessions.Get("/stats", sessionHandler.Stats)
	sessions.Get("/:id", sessionHandler.Get)
	sessions.Post("/:id/finish", sessionHandler.Finish)

	nas := protected.Group("/nas", middleware.AdminOnly())
	nas.Get("/", nasHandler.List)
	nas.Get("/:id", nasHandler.Get)
	nas.Post("/", nasHandler.Create)
	nas.Put("/:id", nasHandler.Update)
	nas.Delete("/:id", nasHandler.Delete)

	subscribers := protected.Group("/subscribers")
	subscribers.Get("/", subscriberHandler.List)
	subscribers.Get("/:id", subscriberHandler.Get)
	subscribers.Put("/:id/service", subscriberHandler.SetService)
	subscribers.Delete("/:id/service", subscriberHandler.StopService)
	subscribers.Post("/batch-stop", subscriberHandler.BatchStopService)

	return app
}

// seedAdminUser creates the initial admin account when the users table is
// empty. The password comes from ADMIN_PASSWORD or defaults to "admin".
func seedAdminUser() {
	var count int64
	database.DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin"
		log.Println("WARNING: ADMIN_PASSWORD not set - seeding admin with default password")
	}

	admin := models.User{
		Username: "admin",
		UserType: models.UserTypeAdmin,
		IsActive: true,
	}
	if err := admin.SetPassword(password); err != nil {
		log.Printf("Failed to hash admin password: %v", err)
		return
	}
	if err := database.DB.Create(&admin).Error; err != nil {
		log.Printf("Failed to seed admin user: %v", err)
		return
	}
	log.Println("Seeded initial admin user")
}
