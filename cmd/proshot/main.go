package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/proshotai/proshot/app/controllers"
	"github.com/proshotai/proshot/app/repository"
	"github.com/proshotai/proshot/internal/pkg/account"
	"github.com/proshotai/proshot/internal/pkg/billing"
	"github.com/proshotai/proshot/internal/pkg/cache"
	"github.com/proshotai/proshot/internal/pkg/credits"
	"github.com/proshotai/proshot/internal/pkg/database"
	"github.com/proshotai/proshot/internal/pkg/env"
	"github.com/proshotai/proshot/internal/pkg/generation"
	"github.com/proshotai/proshot/internal/pkg/imageprocessor"
	"github.com/proshotai/proshot/internal/pkg/router"
	"github.com/proshotai/proshot/internal/pkg/storage"
	"github.com/proshotai/proshot/internal/pkg/stripe"
)

func main() {
	app, previews := NewApplication()

	// graceful shutdown: drain the preview workers before the process exits
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("[App] Fahre herunter...")
		previews.Stop()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *imageprocessor.Processor) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()

	store, err := storage.NewClientFromEnv()
	if err != nil {
		log.Fatalf("[App] Objekt-Storage nicht erreichbar: %v", err)
	}

	stripeClient := stripe.NewClientFromEnv()
	model := generation.NewClientFromEnv()

	repos := repository.NewRepositories(db)
	ledger := credits.NewService(db)
	accounts := account.NewService(db, stripeClient)
	billingSvc := billing.NewServiceFromDB(db, stripeClient)
	previews := imageprocessor.NewProcessor(db, store)
	previews.Start()

	ctrl := router.Controllers{
		Auth:       controllers.NewAuthController(repos.User, accounts, billingSvc),
		OAuth:      controllers.NewOAuthController(db, accounts),
		Billing:    controllers.NewBillingController(billingSvc, stripeClient, repos.User),
		Generation: controllers.NewGenerationController(repos.Generation, ledger, model, store, previews),
		User:       controllers.NewUserController(repos.User, ledger, accounts),
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		// one product image plus three references, each up to 10 MiB,
		// plus multipart overhead
		BodyLimit: 64 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app, ctrl)

	log.Printf("[App] ProShot bereit auf %s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))

	return app, previews
}
